package notification

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"
	"github.com/onvm-app/onvm-server/cmd/models"
	"github.com/onvm-app/onvm-server/cmd/utils"
	expo "github.com/oliveroneill/exponent-server-sdk-golang/sdk"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

type NotificationHandler struct {
	db         *gorm.DB
	dispatcher *Dispatcher
}

func NewNotificationHandler(db *gorm.DB, dispatcher *Dispatcher) *NotificationHandler {
	return &NotificationHandler{db: db, dispatcher: dispatcher}
}

func (h *NotificationHandler) RegisterRoutes(router *mux.Router) {
	router.HandleFunc("/notifications/{userId}", utils.AuthMiddleware(h.GetNotifications)).Methods("GET")
	router.HandleFunc("/notifications", utils.AuthMiddleware(h.CreateNotification)).Methods("POST")
	router.HandleFunc("/notifications/{id}/read", utils.AuthMiddleware(h.MarkRead)).Methods("PUT")
	router.HandleFunc("/devices", utils.AuthMiddleware(h.RegisterDevice)).Methods("POST")
	router.HandleFunc("/devices/{id}", utils.AuthMiddleware(h.DeleteDevice)).Methods("DELETE")
}

func (h *NotificationHandler) GetNotifications(w http.ResponseWriter, r *http.Request) {
	userID, err := strconv.ParseUint(mux.Vars(r)["userId"], 10, 64)
	if err != nil {
		utils.WriteError(w, http.StatusBadRequest, "Invalid user ID")
		return
	}

	notifications, err := h.dispatcher.ListForUser(uint(userID))
	if err != nil {
		logrus.WithError(err).WithField("user_id", userID).Error("notification: list failed")
		utils.WriteError(w, http.StatusInternalServerError, "Error retrieving notifications")
		return
	}

	utils.WriteJSON(w, http.StatusOK, notifications)
}

type createNotificationRequest struct {
	UserID   uint   `json:"userId"`
	SenderID uint   `json:"senderId"`
	Kind     string `json:"type"`
	Content  string `json:"content"`
}

func (h *NotificationHandler) CreateNotification(w http.ResponseWriter, r *http.Request) {
	var req createNotificationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		utils.WriteError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if req.UserID == 0 || req.SenderID == 0 || req.Kind == "" {
		utils.WriteError(w, http.StatusBadRequest, "userId, senderId and type are required")
		return
	}

	if err := h.dispatcher.Notify(req.UserID, req.SenderID, req.Kind, req.Content); err != nil {
		logrus.WithError(err).WithFields(logrus.Fields{
			"user_id":   req.UserID,
			"sender_id": req.SenderID,
			"kind":      req.Kind,
		}).Error("notification: create failed")
		utils.WriteError(w, http.StatusInternalServerError, "Error creating notification")
		return
	}

	utils.WriteMessage(w, http.StatusCreated, "Notification created")
}

func (h *NotificationHandler) MarkRead(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseUint(mux.Vars(r)["id"], 10, 64)
	if err != nil {
		utils.WriteError(w, http.StatusBadRequest, "Invalid notification ID")
		return
	}

	if err := h.dispatcher.MarkRead(uint(id)); err != nil {
		if errors.Is(err, ErrNotFound) {
			utils.WriteError(w, http.StatusNotFound, "Notification not found")
			return
		}
		logrus.WithError(err).WithField("notification_id", id).Error("notification: mark read failed")
		utils.WriteError(w, http.StatusInternalServerError, "Error updating notification")
		return
	}

	utils.WriteMessage(w, http.StatusOK, "Notification marked as read")
}

type registerDeviceRequest struct {
	Token      string `json:"token"`
	UserID     uint   `json:"user_id"`
	DeviceType string `json:"device_type"`
	DeviceName string `json:"device_name"`
}

func (h *NotificationHandler) RegisterDevice(w http.ResponseWriter, r *http.Request) {
	var req registerDeviceRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		utils.WriteError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if req.UserID == 0 || req.Token == "" {
		utils.WriteError(w, http.StatusBadRequest, "user_id and token are required")
		return
	}
	if _, err := expo.NewExponentPushToken(req.Token); err != nil {
		utils.WriteError(w, http.StatusBadRequest, "Invalid push token format")
		return
	}

	var device models.Device
	result := h.db.Where("token = ? AND user_id = ?", req.Token, req.UserID).First(&device)
	if result.Error == nil {
		device.DeviceType = req.DeviceType
		device.DeviceName = req.DeviceName
		if err := h.db.Save(&device).Error; err != nil {
			utils.WriteError(w, http.StatusInternalServerError, "Error updating device")
			return
		}
	} else {
		device = models.Device{
			Token:      req.Token,
			UserID:     req.UserID,
			DeviceType: req.DeviceType,
			DeviceName: req.DeviceName,
		}
		if err := h.db.Create(&device).Error; err != nil {
			utils.WriteError(w, http.StatusInternalServerError, "Error registering device")
			return
		}
	}

	utils.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"message": "Device registered successfully",
		"device":  device,
	})
}

func (h *NotificationHandler) DeleteDevice(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseUint(mux.Vars(r)["id"], 10, 64)
	if err != nil {
		utils.WriteError(w, http.StatusBadRequest, "Invalid device ID")
		return
	}

	res := h.db.Delete(&models.Device{}, id)
	if res.Error != nil {
		utils.WriteError(w, http.StatusInternalServerError, "Error deleting device")
		return
	}
	if res.RowsAffected == 0 {
		utils.WriteError(w, http.StatusNotFound, "Device not found")
		return
	}

	utils.WriteMessage(w, http.StatusOK, "Device removed")
}
