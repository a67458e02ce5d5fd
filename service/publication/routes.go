package publication

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"
	"github.com/onvm-app/onvm-server/cmd/models"
	"github.com/onvm-app/onvm-server/cmd/utils"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// Notifier receives the fan-out side effects of likes, comments and
// retweets.
type Notifier interface {
	Notify(targetUserID, senderUserID uint, kind, content string) error
}

type PostHandler struct {
	db       *gorm.DB
	notifier Notifier
}

func NewPostHandler(db *gorm.DB, notifier Notifier) *PostHandler {
	return &PostHandler{db: db, notifier: notifier}
}

func (h *PostHandler) RegisterRoutes(router *mux.Router) {
	router.HandleFunc("/publications", utils.AuthMiddleware(h.CreatePost)).Methods("POST")
	router.HandleFunc("/publications", utils.AuthMiddleware(h.GetFeed)).Methods("GET")
	router.HandleFunc("/publications/{id}", h.GetPost).Methods("GET")
	router.HandleFunc("/publications/{id}", utils.AuthMiddleware(h.DeletePost)).Methods("DELETE")

	router.HandleFunc("/publications/{id}/like", utils.AuthMiddleware(h.LikePost)).Methods("POST")
	router.HandleFunc("/publications/{id}/unlike", utils.AuthMiddleware(h.UnlikePost)).Methods("POST")
	router.HandleFunc("/publications/{id}/retweet", utils.AuthMiddleware(h.Retweet)).Methods("POST")
	router.HandleFunc("/publications/{id}/retweet", utils.AuthMiddleware(h.Unretweet)).Methods("DELETE")

	router.HandleFunc("/publications/{id}/comment", utils.AuthMiddleware(h.AddComment)).Methods("POST")
	router.HandleFunc("/publications/{id}/comments", h.GetComments).Methods("GET")
	router.HandleFunc("/publications/comments/{commentId}/reply", utils.AuthMiddleware(h.AddReply)).Methods("POST")

	router.HandleFunc("/users/{id}/publications", h.GetUserPublications).Methods("GET")
	router.HandleFunc("/users/{id}/retweets", h.GetUserRetweets).Methods("GET")
}

// CreatePost accepts multipart content and/or a single media file. A post
// with neither is rejected before anything is stored.
func (h *PostHandler) CreatePost(w http.ResponseWriter, r *http.Request) {
	userID, err := utils.GetUserIDFromContext(r.Context())
	if err != nil {
		utils.WriteError(w, http.StatusUnauthorized, "Unauthorized")
		return
	}

	if err := r.ParseMultipartForm(utils.MaxMediaSize); err != nil {
		utils.WriteError(w, http.StatusBadRequest, "Error parsing form")
		return
	}

	content := r.FormValue("content")

	var mediaURL, mediaType string
	file, header, err := r.FormFile("media")
	if err == nil {
		defer file.Close()
		mediaURL, mediaType, err = utils.SaveMedia(file, header, utils.MediaPath)
		if err != nil {
			logrus.WithError(err).WithField("user_id", userID).Error("publication: media upload failed")
			utils.WriteError(w, http.StatusBadGateway, "Error saving media")
			return
		}
	}

	if content == "" && mediaURL == "" {
		utils.WriteError(w, http.StatusBadRequest, "A publication needs text or a media file")
		return
	}

	post := models.Post{
		UserID:    userID,
		Content:   content,
		Media:     mediaURL,
		MediaType: mediaType,
	}
	if err := h.db.Create(&post).Error; err != nil {
		if mediaURL != "" {
			utils.DeleteMedia(mediaURL)
		}
		logrus.WithError(err).WithField("user_id", userID).Error("publication: create failed")
		utils.WriteError(w, http.StatusInternalServerError, "Error creating publication")
		return
	}

	utils.WriteJSON(w, http.StatusCreated, map[string]interface{}{
		"message": "Publication created successfully",
		"id":      post.ID,
	})
}

// GetFeed returns posts newest-first with the full enrichment: author,
// counts, viewer like state and nested comment threads.
func (h *PostHandler) GetFeed(w http.ResponseWriter, r *http.Request) {
	viewerID, err := utils.GetUserIDFromContext(r.Context())
	if err != nil {
		utils.WriteError(w, http.StatusUnauthorized, "Unauthorized")
		return
	}

	page, _ := strconv.Atoi(r.URL.Query().Get("page"))
	if page < 1 {
		page = 1
	}
	pageSize := 20

	var posts []models.Post
	if err := threadPreloads(h.db).
		Order("posts.created_at DESC, posts.id DESC").
		Offset((page - 1) * pageSize).
		Limit(pageSize).
		Find(&posts).Error; err != nil {
		logrus.WithError(err).Error("publication: feed query failed")
		utils.WriteError(w, http.StatusInternalServerError, "Error retrieving publications")
		return
	}

	feed, err := assembleFeed(h.db, posts, viewerID)
	if err != nil {
		logrus.WithError(err).Error("publication: feed enrichment failed")
		utils.WriteError(w, http.StatusInternalServerError, "Error retrieving publications")
		return
	}

	utils.WriteJSON(w, http.StatusOK, feed)
}

func (h *PostHandler) GetPost(w http.ResponseWriter, r *http.Request) {
	postID, err := parsePathID(r, "id")
	if err != nil {
		utils.WriteError(w, http.StatusBadRequest, "Invalid post ID")
		return
	}

	var post models.Post
	if err := threadPreloads(h.db).First(&post, postID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			utils.WriteError(w, http.StatusNotFound, "Publication not found")
			return
		}
		logrus.WithError(err).WithField("post_id", postID).Error("publication: get failed")
		utils.WriteError(w, http.StatusInternalServerError, "Error retrieving publication")
		return
	}

	feed, err := assembleFeed(h.db, []models.Post{post}, 0)
	if err != nil || len(feed) == 0 {
		logrus.WithError(err).WithField("post_id", postID).Error("publication: enrichment failed")
		utils.WriteError(w, http.StatusInternalServerError, "Error retrieving publication")
		return
	}

	utils.WriteJSON(w, http.StatusOK, feed[0])
}

// DeletePost removes the post only when the caller owns it. A non-owner
// always gets "not authorized", whether or not the post exists, so the
// response never leaks another user's content.
func (h *PostHandler) DeletePost(w http.ResponseWriter, r *http.Request) {
	userID, err := utils.GetUserIDFromContext(r.Context())
	if err != nil {
		utils.WriteError(w, http.StatusUnauthorized, "Unauthorized")
		return
	}

	postID, err := parsePathID(r, "id")
	if err != nil {
		utils.WriteError(w, http.StatusBadRequest, "Invalid post ID")
		return
	}

	var post models.Post
	err = h.db.Select("id", "media").
		Where("id = ? AND user_id = ?", postID, userID).
		First(&post).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			utils.WriteError(w, http.StatusForbidden, "You are not authorized to delete this publication")
			return
		}
		logrus.WithError(err).WithFields(logrus.Fields{"post_id": postID, "user_id": userID}).
			Error("publication: delete lookup failed")
		utils.WriteError(w, http.StatusInternalServerError, "Error deleting publication")
		return
	}

	err = h.db.Transaction(func(tx *gorm.DB) error {
		// sqlite in tests does not enforce the FK cascade, so dependent
		// rows are cleared explicitly.
		if err := tx.Where("post_id = ?", postID).Delete(&models.Like{}).Error; err != nil {
			return err
		}
		if err := tx.Where("post_id = ?", postID).Delete(&models.Retweet{}).Error; err != nil {
			return err
		}
		var commentIDs []uint
		if err := tx.Model(&models.Comment{}).Where("post_id = ?", postID).
			Pluck("id", &commentIDs).Error; err != nil {
			return err
		}
		if len(commentIDs) > 0 {
			if err := tx.Where("comment_id IN ?", commentIDs).Delete(&models.Reply{}).Error; err != nil {
				return err
			}
			if err := tx.Where("post_id = ?", postID).Delete(&models.Comment{}).Error; err != nil {
				return err
			}
		}
		return tx.Delete(&models.Post{}, postID).Error
	})
	if err != nil {
		logrus.WithError(err).WithFields(logrus.Fields{"post_id": postID, "user_id": userID}).
			Error("publication: delete failed")
		utils.WriteError(w, http.StatusInternalServerError, "Error deleting publication")
		return
	}

	if post.Media != "" {
		utils.DeleteMedia(post.Media)
	}

	utils.WriteMessage(w, http.StatusOK, "Publication deleted successfully")
}

func (h *PostHandler) LikePost(w http.ResponseWriter, r *http.Request) {
	userID, err := utils.GetUserIDFromContext(r.Context())
	if err != nil {
		utils.WriteError(w, http.StatusUnauthorized, "Unauthorized")
		return
	}

	postID, err := parsePathID(r, "id")
	if err != nil {
		utils.WriteError(w, http.StatusBadRequest, "Invalid post ID")
		return
	}

	var post models.Post
	if err := h.db.Select("id", "user_id").First(&post, postID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			utils.WriteError(w, http.StatusNotFound, "Publication not found")
			return
		}
		utils.WriteError(w, http.StatusInternalServerError, "Error liking publication")
		return
	}

	var existing models.Like
	if err := h.db.Where("user_id = ? AND post_id = ?", userID, postID).First(&existing).Error; err == nil {
		utils.WriteError(w, http.StatusConflict, "You already liked this publication")
		return
	}

	like := models.Like{UserID: userID, PostID: postID}
	if err := h.db.Create(&like).Error; err != nil {
		if utils.IsUniqueViolation(err) {
			utils.WriteError(w, http.StatusConflict, "You already liked this publication")
			return
		}
		logrus.WithError(err).WithFields(logrus.Fields{"post_id": postID, "user_id": userID}).
			Error("publication: like failed")
		utils.WriteError(w, http.StatusInternalServerError, "Error liking publication")
		return
	}

	h.fanOut(post.UserID, userID, models.NotificationLike, "liked your publication")

	utils.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"message": "Like added successfully",
		"id":      like.ID,
	})
}

func (h *PostHandler) UnlikePost(w http.ResponseWriter, r *http.Request) {
	userID, err := utils.GetUserIDFromContext(r.Context())
	if err != nil {
		utils.WriteError(w, http.StatusUnauthorized, "Unauthorized")
		return
	}

	postID, err := parsePathID(r, "id")
	if err != nil {
		utils.WriteError(w, http.StatusBadRequest, "Invalid post ID")
		return
	}

	res := h.db.Where("user_id = ? AND post_id = ?", userID, postID).Delete(&models.Like{})
	if res.Error != nil {
		utils.WriteError(w, http.StatusInternalServerError, "Error removing like")
		return
	}
	if res.RowsAffected == 0 {
		utils.WriteError(w, http.StatusNotFound, "Like not found")
		return
	}

	utils.WriteMessage(w, http.StatusOK, "Like removed successfully")
}

func (h *PostHandler) Retweet(w http.ResponseWriter, r *http.Request) {
	userID, err := utils.GetUserIDFromContext(r.Context())
	if err != nil {
		utils.WriteError(w, http.StatusUnauthorized, "Unauthorized")
		return
	}

	postID, err := parsePathID(r, "id")
	if err != nil {
		utils.WriteError(w, http.StatusBadRequest, "Invalid post ID")
		return
	}

	var post models.Post
	if err := h.db.Select("id", "user_id").First(&post, postID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			utils.WriteError(w, http.StatusNotFound, "Publication not found")
			return
		}
		utils.WriteError(w, http.StatusInternalServerError, "Error retweeting publication")
		return
	}

	var existing models.Retweet
	if err := h.db.Where("user_id = ? AND post_id = ?", userID, postID).First(&existing).Error; err == nil {
		utils.WriteError(w, http.StatusConflict, "You already retweeted this publication")
		return
	}

	retweet := models.Retweet{UserID: userID, PostID: postID}
	if err := h.db.Create(&retweet).Error; err != nil {
		if utils.IsUniqueViolation(err) {
			utils.WriteError(w, http.StatusConflict, "You already retweeted this publication")
			return
		}
		logrus.WithError(err).WithFields(logrus.Fields{"post_id": postID, "user_id": userID}).
			Error("publication: retweet failed")
		utils.WriteError(w, http.StatusInternalServerError, "Error retweeting publication")
		return
	}

	h.fanOut(post.UserID, userID, models.NotificationRetweet, "retweeted your publication")

	utils.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"message": "Retweet added successfully",
		"id":      retweet.ID,
	})
}

func (h *PostHandler) Unretweet(w http.ResponseWriter, r *http.Request) {
	userID, err := utils.GetUserIDFromContext(r.Context())
	if err != nil {
		utils.WriteError(w, http.StatusUnauthorized, "Unauthorized")
		return
	}

	postID, err := parsePathID(r, "id")
	if err != nil {
		utils.WriteError(w, http.StatusBadRequest, "Invalid post ID")
		return
	}

	res := h.db.Where("user_id = ? AND post_id = ?", userID, postID).Delete(&models.Retweet{})
	if res.Error != nil {
		utils.WriteError(w, http.StatusInternalServerError, "Error removing retweet")
		return
	}
	if res.RowsAffected == 0 {
		utils.WriteError(w, http.StatusNotFound, "Retweet not found")
		return
	}

	utils.WriteMessage(w, http.StatusOK, "Retweet removed successfully")
}

// AddComment attaches a comment (text and/or media) to a post and notifies
// the post owner.
func (h *PostHandler) AddComment(w http.ResponseWriter, r *http.Request) {
	userID, err := utils.GetUserIDFromContext(r.Context())
	if err != nil {
		utils.WriteError(w, http.StatusUnauthorized, "Unauthorized")
		return
	}

	postID, err := parsePathID(r, "id")
	if err != nil {
		utils.WriteError(w, http.StatusBadRequest, "Invalid post ID")
		return
	}

	if err := r.ParseMultipartForm(utils.MaxMediaSize); err != nil {
		utils.WriteError(w, http.StatusBadRequest, "Error parsing form")
		return
	}
	content := r.FormValue("comment")

	var mediaURL string
	file, header, err := r.FormFile("media")
	if err == nil {
		defer file.Close()
		mediaURL, _, err = utils.SaveMedia(file, header, utils.MediaPath)
		if err != nil {
			utils.WriteError(w, http.StatusBadGateway, "Error saving media")
			return
		}
	}

	if content == "" && mediaURL == "" {
		utils.WriteError(w, http.StatusBadRequest, "A comment needs text or a media file")
		return
	}

	var post models.Post
	if err := h.db.Select("id", "user_id").First(&post, postID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			utils.WriteError(w, http.StatusNotFound, "Publication not found")
			return
		}
		utils.WriteError(w, http.StatusInternalServerError, "Error adding comment")
		return
	}

	comment := models.Comment{
		UserID:  userID,
		PostID:  postID,
		Content: content,
		Media:   mediaURL,
	}
	if err := h.db.Create(&comment).Error; err != nil {
		logrus.WithError(err).WithFields(logrus.Fields{"post_id": postID, "user_id": userID}).
			Error("publication: comment failed")
		utils.WriteError(w, http.StatusInternalServerError, "Error adding comment")
		return
	}

	h.fanOut(post.UserID, userID, models.NotificationComment, "commented on your publication")

	utils.WriteJSON(w, http.StatusCreated, map[string]interface{}{
		"message": "Comment added successfully",
		"id":      comment.ID,
	})
}

func (h *PostHandler) GetComments(w http.ResponseWriter, r *http.Request) {
	postID, err := parsePathID(r, "id")
	if err != nil {
		utils.WriteError(w, http.StatusBadRequest, "Invalid post ID")
		return
	}

	var comments []models.Comment
	err = h.db.Preload("User").
		Preload("Replies", func(db *gorm.DB) *gorm.DB {
			return db.Order("replies.created_at ASC, replies.id ASC")
		}).
		Preload("Replies.User").
		Where("post_id = ?", postID).
		Order("created_at ASC, id ASC").
		Find(&comments).Error
	if err != nil {
		logrus.WithError(err).WithField("post_id", postID).Error("publication: comments query failed")
		utils.WriteError(w, http.StatusInternalServerError, "Error retrieving comments")
		return
	}

	utils.WriteJSON(w, http.StatusOK, comments)
}

type replyRequest struct {
	Reply string `json:"reply"`
}

func (h *PostHandler) AddReply(w http.ResponseWriter, r *http.Request) {
	userID, err := utils.GetUserIDFromContext(r.Context())
	if err != nil {
		utils.WriteError(w, http.StatusUnauthorized, "Unauthorized")
		return
	}

	commentID, err := parsePathID(r, "commentId")
	if err != nil {
		utils.WriteError(w, http.StatusBadRequest, "Invalid comment ID")
		return
	}

	var req replyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Reply == "" {
		utils.WriteError(w, http.StatusBadRequest, "Reply text is required")
		return
	}

	var comment models.Comment
	if err := h.db.Select("id").First(&comment, commentID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			utils.WriteError(w, http.StatusNotFound, "Comment not found")
			return
		}
		utils.WriteError(w, http.StatusInternalServerError, "Error adding reply")
		return
	}

	reply := models.Reply{
		UserID:    userID,
		CommentID: commentID,
		Content:   req.Reply,
	}
	if err := h.db.Create(&reply).Error; err != nil {
		logrus.WithError(err).WithFields(logrus.Fields{"comment_id": commentID, "user_id": userID}).
			Error("publication: reply failed")
		utils.WriteError(w, http.StatusInternalServerError, "Error adding reply")
		return
	}

	utils.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"message": "Reply added successfully",
		"id":      reply.ID,
	})
}

// GetUserPublications lists one user's posts newest-first.
func (h *PostHandler) GetUserPublications(w http.ResponseWriter, r *http.Request) {
	userID, err := parsePathID(r, "id")
	if err != nil {
		utils.WriteError(w, http.StatusBadRequest, "Invalid user ID")
		return
	}

	var posts []models.Post
	if err := h.db.Preload("User").
		Where("user_id = ?", userID).
		Order("created_at DESC, id DESC").
		Find(&posts).Error; err != nil {
		logrus.WithError(err).WithField("user_id", userID).Error("publication: user posts query failed")
		utils.WriteError(w, http.StatusInternalServerError, "Error retrieving publications")
		return
	}

	feed, err := assembleFeed(h.db, posts, 0)
	if err != nil {
		utils.WriteError(w, http.StatusInternalServerError, "Error retrieving publications")
		return
	}

	utils.WriteJSON(w, http.StatusOK, map[string]interface{}{"publications": feed})
}

// GetUserRetweets lists the posts a user has retweeted, newest retweet
// first.
func (h *PostHandler) GetUserRetweets(w http.ResponseWriter, r *http.Request) {
	userID, err := parsePathID(r, "id")
	if err != nil {
		utils.WriteError(w, http.StatusBadRequest, "Invalid user ID")
		return
	}

	var retweets []models.Retweet
	if err := h.db.Preload("Post").Preload("Post.User").
		Where("user_id = ?", userID).
		Order("created_at DESC, id DESC").
		Find(&retweets).Error; err != nil {
		logrus.WithError(err).WithField("user_id", userID).Error("publication: retweets query failed")
		utils.WriteError(w, http.StatusInternalServerError, "Error retrieving retweets")
		return
	}

	type retweetedPost struct {
		ID             uint   `json:"id"`
		Content        string `json:"content"`
		Media          string `json:"media,omitempty"`
		Username       string `json:"username"`
		ProfilePicture string `json:"profile_picture"`
	}

	result := make([]retweetedPost, 0, len(retweets))
	for _, retweet := range retweets {
		if retweet.Post == nil {
			continue
		}
		item := retweetedPost{
			ID:      retweet.Post.ID,
			Content: retweet.Post.Content,
			Media:   retweet.Post.Media,
		}
		if retweet.Post.User != nil {
			item.Username = retweet.Post.User.Username
			item.ProfilePicture = retweet.Post.User.ProfilePicture
		}
		result = append(result, item)
	}

	utils.WriteJSON(w, http.StatusOK, result)
}

// fanOut emits a notification for an action on someone else's content. The
// dispatcher drops self-notifications; failures only get logged.
func (h *PostHandler) fanOut(targetID, senderID uint, kind, content string) {
	if h.notifier == nil {
		return
	}
	if err := h.notifier.Notify(targetID, senderID, kind, content); err != nil {
		logrus.WithError(err).WithFields(logrus.Fields{
			"target_id": targetID,
			"sender_id": senderID,
			"kind":      kind,
		}).Warn("publication: notification failed")
	}
}

func parsePathID(r *http.Request, key string) (uint, error) {
	id, err := strconv.ParseUint(mux.Vars(r)[key], 10, 64)
	if err != nil {
		return 0, err
	}
	return uint(id), nil
}
