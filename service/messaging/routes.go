package messaging

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"github.com/onvm-app/onvm-server/cmd/models"
	"github.com/onvm-app/onvm-server/cmd/utils"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

type MessagingHandler struct {
	db *gorm.DB
}

func NewMessagingHandler(db *gorm.DB) *MessagingHandler {
	return &MessagingHandler{db: db}
}

func (h *MessagingHandler) RegisterRoutes(router *mux.Router) {
	router.HandleFunc("/conversations/create", utils.AuthMiddleware(h.CreateConversation)).Methods("POST")
	router.HandleFunc("/conversations/unread/{userId}", utils.AuthMiddleware(h.GetUnreadCount)).Methods("GET")
	router.HandleFunc("/conversations/{userId}", utils.AuthMiddleware(h.GetConversations)).Methods("GET")
	router.HandleFunc("/messages", utils.AuthMiddleware(h.SendMessage)).Methods("POST")
	router.HandleFunc("/messages/{conversationId}", utils.AuthMiddleware(h.GetMessages)).Methods("GET")
	router.HandleFunc("/messages/{id}/read", utils.AuthMiddleware(h.MarkMessageRead)).Methods("PUT")
}

// GetOrCreateConversation looks up the unordered pair in both column orders
// before creating, so (A,B) and (B,A) always resolve to the same row.
func GetOrCreateConversation(db *gorm.DB, userA, userB uint) (*models.Conversation, error) {
	var conversation models.Conversation
	err := db.Where("(sender_id = ? AND receiver_id = ?) OR (sender_id = ? AND receiver_id = ?)",
		userA, userB, userB, userA).
		First(&conversation).Error
	if err == nil {
		return &conversation, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}

	conversation = models.Conversation{SenderID: userA, ReceiverID: userB}
	if err := db.Create(&conversation).Error; err != nil {
		return nil, err
	}
	return &conversation, nil
}

type createConversationRequest struct {
	SenderID   uint `json:"sender_id"`
	ReceiverID uint `json:"receiver_id"`
}

func (h *MessagingHandler) CreateConversation(w http.ResponseWriter, r *http.Request) {
	var req createConversationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		utils.WriteError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if req.SenderID == 0 || req.ReceiverID == 0 {
		utils.WriteError(w, http.StatusBadRequest, "sender_id and receiver_id are required")
		return
	}

	conversation, err := GetOrCreateConversation(h.db, req.SenderID, req.ReceiverID)
	if err != nil {
		logrus.WithError(err).WithFields(logrus.Fields{
			"sender_id":   req.SenderID,
			"receiver_id": req.ReceiverID,
		}).Error("messaging: conversation create failed")
		utils.WriteError(w, http.StatusInternalServerError, "Error creating conversation")
		return
	}

	utils.WriteJSON(w, http.StatusOK, conversation)
}

// conversationSummary is one row of a user's inbox: the other participant
// plus the most recent message.
type conversationSummary struct {
	ID              uint       `json:"id"`
	Username        string     `json:"username"`
	ProfilePicture  string     `json:"profile_picture"`
	LastMessage     string     `json:"last_message"`
	LastMessageTime *time.Time `json:"last_message_time"`
}

func (h *MessagingHandler) GetConversations(w http.ResponseWriter, r *http.Request) {
	userID, err := strconv.ParseUint(mux.Vars(r)["userId"], 10, 64)
	if err != nil {
		utils.WriteError(w, http.StatusBadRequest, "Invalid user ID")
		return
	}

	var conversations []models.Conversation
	if err := h.db.
		Where("sender_id = ? OR receiver_id = ?", userID, userID).
		Order("created_at DESC").
		Find(&conversations).Error; err != nil {
		logrus.WithError(err).WithField("user_id", userID).Error("messaging: conversations query failed")
		utils.WriteError(w, http.StatusInternalServerError, "Error retrieving conversations")
		return
	}

	summaries := make([]conversationSummary, 0, len(conversations))
	for _, conversation := range conversations {
		otherID := conversation.SenderID
		if otherID == uint(userID) {
			otherID = conversation.ReceiverID
		}

		summary := conversationSummary{ID: conversation.ID}

		var other models.User
		if err := h.db.Select("id", "username", "profile_picture").First(&other, otherID).Error; err == nil {
			summary.Username = other.Username
			summary.ProfilePicture = other.ProfilePicture
		}

		var last models.Message
		err := h.db.Where("conversation_id = ?", conversation.ID).
			Order("created_at DESC, id DESC").
			First(&last).Error
		if err == nil {
			summary.LastMessage = last.Content
			summary.LastMessageTime = &last.CreatedAt
		}

		summaries = append(summaries, summary)
	}

	utils.WriteJSON(w, http.StatusOK, summaries)
}

// GetUnreadCount counts unread messages addressed to the user: messages in
// the user's conversations authored by the other participant.
func (h *MessagingHandler) GetUnreadCount(w http.ResponseWriter, r *http.Request) {
	userID, err := strconv.ParseUint(mux.Vars(r)["userId"], 10, 64)
	if err != nil {
		utils.WriteError(w, http.StatusBadRequest, "Invalid user ID")
		return
	}

	var count int64
	err = h.db.Model(&models.Message{}).
		Joins("JOIN conversations ON conversations.id = messages.conversation_id").
		Where("(conversations.sender_id = ? OR conversations.receiver_id = ?)", userID, userID).
		Where("messages.user_id != ? AND messages.is_read = ?", userID, false).
		Count(&count).Error
	if err != nil {
		logrus.WithError(err).WithField("user_id", userID).Error("messaging: unread count failed")
		utils.WriteError(w, http.StatusInternalServerError, "Error counting unread messages")
		return
	}

	utils.WriteJSON(w, http.StatusOK, map[string]int64{"unreadCount": count})
}

type sendMessageRequest struct {
	ConversationID uint   `json:"conversation_id"`
	Content        string `json:"content"`
}

func (h *MessagingHandler) SendMessage(w http.ResponseWriter, r *http.Request) {
	userID, err := utils.GetUserIDFromContext(r.Context())
	if err != nil {
		utils.WriteError(w, http.StatusUnauthorized, "Unauthorized")
		return
	}

	var req sendMessageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		utils.WriteError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if req.ConversationID == 0 || req.Content == "" {
		utils.WriteError(w, http.StatusBadRequest, "conversation_id and content are required")
		return
	}

	var conversation models.Conversation
	if err := h.db.First(&conversation, req.ConversationID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			utils.WriteError(w, http.StatusNotFound, "Conversation not found")
			return
		}
		utils.WriteError(w, http.StatusInternalServerError, "Error sending message")
		return
	}
	if conversation.SenderID != userID && conversation.ReceiverID != userID {
		utils.WriteError(w, http.StatusForbidden, "You are not part of this conversation")
		return
	}

	message := models.Message{
		ConversationID: req.ConversationID,
		UserID:         userID,
		Content:        req.Content,
		Read:           false,
	}
	if err := h.db.Create(&message).Error; err != nil {
		logrus.WithError(err).WithFields(logrus.Fields{
			"conversation_id": req.ConversationID,
			"user_id":         userID,
		}).Error("messaging: send failed")
		utils.WriteError(w, http.StatusInternalServerError, "Error sending message")
		return
	}

	utils.WriteJSON(w, http.StatusCreated, message)
}

func (h *MessagingHandler) GetMessages(w http.ResponseWriter, r *http.Request) {
	userID, err := utils.GetUserIDFromContext(r.Context())
	if err != nil {
		utils.WriteError(w, http.StatusUnauthorized, "Unauthorized")
		return
	}

	conversationID, err := strconv.ParseUint(mux.Vars(r)["conversationId"], 10, 64)
	if err != nil {
		utils.WriteError(w, http.StatusBadRequest, "Invalid conversation ID")
		return
	}

	var conversation models.Conversation
	if err := h.db.First(&conversation, conversationID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			utils.WriteError(w, http.StatusNotFound, "Conversation not found")
			return
		}
		utils.WriteError(w, http.StatusInternalServerError, "Error retrieving messages")
		return
	}

	var messages []models.Message
	if err := h.db.Where("conversation_id = ?", conversationID).
		Order("created_at ASC, id ASC").
		Find(&messages).Error; err != nil {
		logrus.WithError(err).WithField("conversation_id", conversationID).
			Error("messaging: messages query failed")
		utils.WriteError(w, http.StatusInternalServerError, "Error retrieving messages")
		return
	}

	otherID := conversation.SenderID
	if otherID == userID {
		otherID = conversation.ReceiverID
	}

	var other models.User
	otherSummary := models.UserSummary{}
	if err := h.db.Select("id", "username", "profile_picture").First(&other, otherID).Error; err == nil {
		otherSummary = other.Summary()
	}

	utils.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"messages": messages,
		"user":     otherSummary,
	})
}

func (h *MessagingHandler) MarkMessageRead(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseUint(mux.Vars(r)["id"], 10, 64)
	if err != nil {
		utils.WriteError(w, http.StatusBadRequest, "Invalid message ID")
		return
	}

	userID, err := utils.GetUserIDFromContext(r.Context())
	if err != nil {
		utils.WriteError(w, http.StatusUnauthorized, "Unauthorized")
		return
	}

	var message models.Message
	if err := h.db.Preload("Conversation").First(&message, id).Error; err != nil {
		utils.WriteError(w, http.StatusNotFound, "Message not found")
		return
	}

	// Only the recipient can mark a message read.
	if message.Conversation == nil ||
		(message.Conversation.SenderID != userID && message.Conversation.ReceiverID != userID) ||
		message.UserID == userID {
		utils.WriteError(w, http.StatusForbidden, "You are not the recipient of this message")
		return
	}

	if err := h.db.Model(&models.Message{}).Where("id = ?", id).Update("is_read", true).Error; err != nil {
		utils.WriteError(w, http.StatusInternalServerError, "Error updating message")
		return
	}

	utils.WriteMessage(w, http.StatusOK, "Message marked as read")
}
