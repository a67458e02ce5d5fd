package community

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

type CommunityHandler struct {
	db *gorm.DB
}

func NewCommunityHandler(db *gorm.DB) *CommunityHandler {
	return &CommunityHandler{db: db}
}

func (h *CommunityHandler) RegisterRoutes(router *mux.Router) {
	router.HandleFunc("/communities", utils.AuthMiddleware(h.CreateCommunity)).Methods("POST")
	router.HandleFunc("/communities/{id:[0-9]+}", h.GetCommunity).Methods("GET")
	router.HandleFunc("/communities/{id:[0-9]+}/members", h.GetMembers).Methods("GET")
	router.HandleFunc("/communities/{id:[0-9]+}/join", utils.AuthMiddleware(h.JoinCommunity)).Methods("POST")
	router.HandleFunc("/communities/{id:[0-9]+}/messages", h.GetMessages).Methods("GET")
	router.HandleFunc("/communities/{id:[0-9]+}/messages", utils.AuthMiddleware(h.PostMessage)).Methods("POST")
	router.HandleFunc("/communities/{id:[0-9]+}/upload", utils.AuthMiddleware(h.UploadProfilePhoto)).Methods("POST")
	router.HandleFunc("/users/{userId}/communities", h.GetUserCommunities).Methods("GET")
	router.HandleFunc("/users/{userId}/community/{communityId}", h.CheckMembership).Methods("GET")
	router.HandleFunc("/users/{userId}/communities/{communityId}/messages", h.GetUserMessages).Methods("GET")
}

type createCommunityRequest struct {
	Name        string `json:"name"`
	Description string `json:"description"`
}

func (h *CommunityHandler) CreateCommunity(w http.ResponseWriter, r *http.Request) {
	userID, err := utils.GetUserIDFromContext(r.Context())
	if err != nil {
		utils.WriteError(w, http.StatusUnauthorized, "Unauthorized")
		return
	}

	var req createCommunityRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		utils.WriteError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if req.Name == "" || req.Description == "" {
		utils.WriteError(w, http.StatusBadRequest, "name and description are required")
		return
	}

	community := models.Community{
		Name:        req.Name,
		Description: req.Description,
		CreatedBy:   userID,
	}
	if err := h.db.Create(&community).Error; err != nil {
		logrus.WithError(err).Error("community: create failed")
		utils.WriteError(w, http.StatusInternalServerError, "Error creating community")
		return
	}

	utils.WriteJSON(w, http.StatusCreated, community)
}

func (h *CommunityHandler) GetCommunity(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseUint(mux.Vars(r)["id"], 10, 64)
	if err != nil {
		utils.WriteError(w, http.StatusBadRequest, "Invalid community ID")
		return
	}

	var community models.Community
	if err := h.db.First(&community, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			utils.WriteError(w, http.StatusNotFound, "Community not found")
			return
		}
		utils.WriteError(w, http.StatusInternalServerError, "Error retrieving community")
		return
	}

	utils.WriteJSON(w, http.StatusOK, community)
}

func (h *CommunityHandler) GetMembers(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseUint(mux.Vars(r)["id"], 10, 64)
	if err != nil {
		utils.WriteError(w, http.StatusBadRequest, "Invalid community ID")
		return
	}

	var members []models.UserSummary
	err = h.db.Model(&models.User{}).
		Select("users.id", "users.username", "users.profile_picture").
		Joins("JOIN community_members ON community_members.user_id = users.id").
		Where("community_members.community_id = ?", id).
		Order("community_members.created_at ASC").
		Scan(&members).Error
	if err != nil {
		utils.WriteError(w, http.StatusInternalServerError, "Error retrieving members")
		return
	}

	utils.WriteJSON(w, http.StatusOK, members)
}

func (h *CommunityHandler) JoinCommunity(w http.ResponseWriter, r *http.Request) {
	communityID, err := strconv.ParseUint(mux.Vars(r)["id"], 10, 64)
	if err != nil {
		utils.WriteError(w, http.StatusBadRequest, "Invalid community ID")
		return
	}

	userID, err := utils.GetUserIDFromContext(r.Context())
	if err != nil {
		utils.WriteError(w, http.StatusUnauthorized, "Unauthorized")
		return
	}

	var community models.Community
	if err := h.db.First(&community, communityID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			utils.WriteError(w, http.StatusNotFound, "Community not found")
			return
		}
		utils.WriteError(w, http.StatusInternalServerError, "Error joining community")
		return
	}
	if community.CreatedBy == userID {
		utils.WriteError(w, http.StatusConflict, "You already own this community")
		return
	}

	var existing models.CommunityMember
	err = h.db.Where("user_id = ? AND community_id = ?", userID, communityID).First(&existing).Error
	if err == nil {
		utils.WriteError(w, http.StatusConflict, "Already a member of this community")
		return
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		utils.WriteError(w, http.StatusInternalServerError, "Error joining community")
		return
	}

	member := models.CommunityMember{UserID: userID, CommunityID: uint(communityID)}
	if err := h.db.Create(&member).Error; err != nil {
		if utils.IsUniqueViolation(err) {
			utils.WriteError(w, http.StatusConflict, "Already a member of this community")
			return
		}
		utils.WriteError(w, http.StatusInternalServerError, "Error joining community")
		return
	}

	utils.WriteJSON(w, http.StatusCreated, member)
}

func (h *CommunityHandler) GetMessages(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseUint(mux.Vars(r)["id"], 10, 64)
	if err != nil {
		utils.WriteError(w, http.StatusBadRequest, "Invalid community ID")
		return
	}

	var messages []models.CommunityMessage
	if err := h.db.Preload("User").
		Where("community_id = ?", id).
		Order("created_at ASC, id ASC").
		Find(&messages).Error; err != nil {
		utils.WriteError(w, http.StatusInternalServerError, "Error retrieving messages")
		return
	}

	utils.WriteJSON(w, http.StatusOK, messages)
}

type postMessageRequest struct {
	Content string `json:"content"`
}

func (h *CommunityHandler) PostMessage(w http.ResponseWriter, r *http.Request) {
	communityID, err := strconv.ParseUint(mux.Vars(r)["id"], 10, 64)
	if err != nil {
		utils.WriteError(w, http.StatusBadRequest, "Invalid community ID")
		return
	}

	userID, err := utils.GetUserIDFromContext(r.Context())
	if err != nil {
		utils.WriteError(w, http.StatusUnauthorized, "Unauthorized")
		return
	}

	var req postMessageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Content == "" {
		utils.WriteError(w, http.StatusBadRequest, "content is required")
		return
	}

	var community models.Community
	if err := h.db.First(&community, communityID).Error; err != nil {
		utils.WriteError(w, http.StatusNotFound, "Community not found")
		return
	}

	// Only the owner or a member can post.
	if community.CreatedBy != userID {
		var count int64
		if err := h.db.Model(&models.CommunityMember{}).
			Where("user_id = ? AND community_id = ?", userID, communityID).
			Count(&count).Error; err != nil {
			utils.WriteError(w, http.StatusInternalServerError, "Error checking membership")
			return
		}
		if count == 0 {
			utils.WriteError(w, http.StatusForbidden, "You are not a member of this community")
			return
		}
	}

	message := models.CommunityMessage{
		CommunityID: uint(communityID),
		UserID:      userID,
		Content:     req.Content,
	}
	if err := h.db.Create(&message).Error; err != nil {
		utils.WriteError(w, http.StatusInternalServerError, "Error posting message")
		return
	}

	utils.WriteJSON(w, http.StatusCreated, message)
}

func (h *CommunityHandler) UploadProfilePhoto(w http.ResponseWriter, r *http.Request) {
	communityID, err := strconv.ParseUint(mux.Vars(r)["id"], 10, 64)
	if err != nil {
		utils.WriteError(w, http.StatusBadRequest, "Invalid community ID")
		return
	}

	userID, err := utils.GetUserIDFromContext(r.Context())
	if err != nil {
		utils.WriteError(w, http.StatusUnauthorized, "Unauthorized")
		return
	}

	var community models.Community
	if err := h.db.First(&community, communityID).Error; err != nil {
		utils.WriteError(w, http.StatusNotFound, "Community not found")
		return
	}
	if community.CreatedBy != userID {
		utils.WriteError(w, http.StatusForbidden, "Only the owner can change the community photo")
		return
	}

	if err := r.ParseMultipartForm(utils.MaxMediaSize); err != nil {
		utils.WriteError(w, http.StatusBadRequest, "Invalid multipart form")
		return
	}

	file, header, err := r.FormFile("profilePhoto")
	if err != nil {
		utils.WriteError(w, http.StatusBadRequest, "No photo uploaded")
		return
	}
	defer file.Close()

	url, kind, err := utils.SaveMedia(file, header, utils.ProfilePath)
	if err != nil {
		utils.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}
	if kind != utils.MediaImage {
		utils.DeleteMedia(url)
		utils.WriteError(w, http.StatusBadRequest, "Community photo must be an image")
		return
	}

	previous := community.ProfilePhoto
	if err := h.db.Model(&community).Update("profile_photo", url).Error; err != nil {
		utils.WriteError(w, http.StatusInternalServerError, "Error updating community photo")
		return
	}
	if previous != "" && previous != url {
		utils.DeleteMedia(previous)
	}

	utils.WriteJSON(w, http.StatusOK, map[string]string{
		"message":      "Community photo updated successfully",
		"profilePhoto": url,
	})
}

// userCommunity is a community row plus the caller's derived role: owner
// when they created it, member otherwise.
type userCommunity struct {
	ID           uint   `json:"id"`
	Name         string `json:"name"`
	Description  string `json:"description"`
	CreatedBy    uint   `json:"created_by"`
	ProfilePhoto string `json:"profile_photo,omitempty"`
	Role         string `json:"role"`
}

func (h *CommunityHandler) GetUserCommunities(w http.ResponseWriter, r *http.Request) {
	userID, err := strconv.ParseUint(mux.Vars(r)["userId"], 10, 64)
	if err != nil {
		utils.WriteError(w, http.StatusBadRequest, "Invalid user ID")
		return
	}

	var communities []models.Community
	err = h.db.
		Joins("LEFT JOIN community_members ON community_members.community_id = communities.id AND community_members.user_id = ?", userID).
		Where("communities.created_by = ? OR community_members.user_id = ?", userID, userID).
		Order("communities.created_at DESC").
		Distinct("communities.*").
		Find(&communities).Error
	if err != nil {
		logrus.WithError(err).WithField("user_id", userID).Error("community: user communities query failed")
		utils.WriteError(w, http.StatusInternalServerError, "Error retrieving communities")
		return
	}

	result := make([]userCommunity, 0, len(communities))
	for _, c := range communities {
		role := models.CommunityRoleMember
		if c.CreatedBy == uint(userID) {
			role = models.CommunityRoleOwner
		}
		result = append(result, userCommunity{
			ID:           c.ID,
			Name:         c.Name,
			Description:  c.Description,
			CreatedBy:    c.CreatedBy,
			ProfilePhoto: c.ProfilePhoto,
			Role:         role,
		})
	}

	utils.WriteJSON(w, http.StatusOK, result)
}

func (h *CommunityHandler) CheckMembership(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	userID, err1 := strconv.ParseUint(vars["userId"], 10, 64)
	communityID, err2 := strconv.ParseUint(vars["communityId"], 10, 64)
	if err1 != nil || err2 != nil {
		utils.WriteError(w, http.StatusBadRequest, "Invalid ID")
		return
	}

	var count int64
	err := h.db.Model(&models.CommunityMember{}).
		Where("user_id = ? AND community_id = ?", userID, communityID).
		Count(&count).Error
	if err != nil {
		utils.WriteError(w, http.StatusInternalServerError, "Error checking membership")
		return
	}

	if count == 0 {
		utils.WriteJSON(w, http.StatusNotFound, map[string]bool{"isMember": false})
		return
	}
	utils.WriteJSON(w, http.StatusOK, map[string]bool{"isMember": true})
}

func (h *CommunityHandler) GetUserMessages(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	userID, err1 := strconv.ParseUint(vars["userId"], 10, 64)
	communityID, err2 := strconv.ParseUint(vars["communityId"], 10, 64)
	if err1 != nil || err2 != nil {
		utils.WriteError(w, http.StatusBadRequest, "Invalid ID")
		return
	}

	var messages []models.CommunityMessage
	if err := h.db.Preload("User").
		Where("user_id = ? AND community_id = ?", userID, communityID).
		Order("created_at ASC, id ASC").
		Find(&messages).Error; err != nil {
		utils.WriteError(w, http.StatusInternalServerError, "Error retrieving messages")
		return
	}

	utils.WriteJSON(w, http.StatusOK, messages)
}
