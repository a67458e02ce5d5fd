package social

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

// Notifier receives the fan-out side effect of a follow. The notification
// dispatcher satisfies it.
type Notifier interface {
	Notify(targetUserID, senderUserID uint, kind, content string) error
}

type SocialHandler struct {
	graph    *Graph
	notifier Notifier
}

func NewSocialHandler(db *gorm.DB, notifier Notifier) *SocialHandler {
	return &SocialHandler{graph: NewGraph(db), notifier: notifier}
}

func (h *SocialHandler) RegisterRoutes(router *mux.Router) {
	router.HandleFunc("/users/follow", utils.AuthMiddleware(h.Follow)).Methods("POST")
	router.HandleFunc("/users/unfollow", utils.AuthMiddleware(h.Unfollow)).Methods("POST")
	router.HandleFunc("/users/{id}/followers", h.GetFollowerCount).Methods("GET")
	router.HandleFunc("/users/{id}/followers-list", h.GetFollowersList).Methods("GET")
	router.HandleFunc("/users/{id}/following-list", h.GetFollowingList).Methods("GET")
	router.HandleFunc("/users/{id}/is-following", h.IsFollowing).Methods("GET")
}

type followRequest struct {
	FollowerID  uint `json:"followerId"`
	FollowingID uint `json:"followingId"`
}

func (h *SocialHandler) Follow(w http.ResponseWriter, r *http.Request) {
	var req followRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		utils.WriteError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if req.FollowerID == 0 || req.FollowingID == 0 {
		utils.WriteError(w, http.StatusBadRequest, "followerId and followingId are required")
		return
	}

	if err := h.graph.Follow(req.FollowerID, req.FollowingID); err != nil {
		switch {
		case errors.Is(err, ErrSelfFollow):
			utils.WriteError(w, http.StatusBadRequest, "You cannot follow yourself")
		case errors.Is(err, ErrAlreadyFollowing):
			utils.WriteError(w, http.StatusConflict, "You already follow this user")
		default:
			logrus.WithError(err).WithFields(logrus.Fields{
				"follower_id":  req.FollowerID,
				"following_id": req.FollowingID,
			}).Error("social: follow failed")
			utils.WriteError(w, http.StatusInternalServerError, "Error following user")
		}
		return
	}

	// Best-effort fan-out; a failed notification never fails the follow.
	if err := h.notifier.Notify(req.FollowingID, req.FollowerID, models.NotificationFollow, "started following you"); err != nil {
		logrus.WithError(err).WithField("following_id", req.FollowingID).Warn("social: follow notification failed")
	}

	utils.WriteMessage(w, http.StatusOK, "Followed successfully")
}

func (h *SocialHandler) Unfollow(w http.ResponseWriter, r *http.Request) {
	var req followRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		utils.WriteError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if req.FollowerID == 0 || req.FollowingID == 0 {
		utils.WriteError(w, http.StatusBadRequest, "followerId and followingId are required")
		return
	}

	if err := h.graph.Unfollow(req.FollowerID, req.FollowingID); err != nil {
		logrus.WithError(err).WithFields(logrus.Fields{
			"follower_id":  req.FollowerID,
			"following_id": req.FollowingID,
		}).Error("social: unfollow failed")
		utils.WriteError(w, http.StatusInternalServerError, "Error unfollowing user")
		return
	}

	utils.WriteMessage(w, http.StatusOK, "Unfollowed successfully")
}

func (h *SocialHandler) GetFollowerCount(w http.ResponseWriter, r *http.Request) {
	userID, err := parsePathID(r, "id")
	if err != nil {
		utils.WriteError(w, http.StatusBadRequest, "Invalid user ID")
		return
	}

	count, err := h.graph.CountFollowers(userID)
	if err != nil {
		logrus.WithError(err).WithField("user_id", userID).Error("social: follower count failed")
		utils.WriteError(w, http.StatusInternalServerError, "Error retrieving followers")
		return
	}

	utils.WriteJSON(w, http.StatusOK, map[string]int64{"totalFollowers": count})
}

func (h *SocialHandler) GetFollowersList(w http.ResponseWriter, r *http.Request) {
	userID, err := parsePathID(r, "id")
	if err != nil {
		utils.WriteError(w, http.StatusBadRequest, "Invalid user ID")
		return
	}

	followers, err := h.graph.Followers(userID)
	if err != nil {
		logrus.WithError(err).WithField("user_id", userID).Error("social: followers list failed")
		utils.WriteError(w, http.StatusInternalServerError, "Error retrieving followers")
		return
	}

	utils.WriteJSON(w, http.StatusOK, followers)
}

func (h *SocialHandler) GetFollowingList(w http.ResponseWriter, r *http.Request) {
	userID, err := parsePathID(r, "id")
	if err != nil {
		utils.WriteError(w, http.StatusBadRequest, "Invalid user ID")
		return
	}

	following, err := h.graph.Following(userID)
	if err != nil {
		logrus.WithError(err).WithField("user_id", userID).Error("social: following list failed")
		utils.WriteError(w, http.StatusInternalServerError, "Error retrieving following")
		return
	}

	utils.WriteJSON(w, http.StatusOK, following)
}

func (h *SocialHandler) IsFollowing(w http.ResponseWriter, r *http.Request) {
	followingID, err := parsePathID(r, "id")
	if err != nil {
		utils.WriteError(w, http.StatusBadRequest, "Invalid user ID")
		return
	}

	followerID, err := strconv.ParseUint(r.URL.Query().Get("followerId"), 10, 64)
	if err != nil {
		utils.WriteError(w, http.StatusBadRequest, "followerId query parameter is required")
		return
	}

	following, err := h.graph.IsFollowing(uint(followerID), followingID)
	if err != nil {
		logrus.WithError(err).WithFields(logrus.Fields{
			"follower_id":  followerID,
			"following_id": followingID,
		}).Error("social: is-following check failed")
		utils.WriteError(w, http.StatusInternalServerError, "Error checking follow status")
		return
	}

	utils.WriteJSON(w, http.StatusOK, map[string]bool{"isFollowing": following})
}

func parsePathID(r *http.Request, key string) (uint, error) {
	id, err := strconv.ParseUint(mux.Vars(r)[key], 10, 64)
	if err != nil {
		return 0, err
	}
	return uint(id), nil
}
