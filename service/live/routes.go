package live

import (
	"encoding/json"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/onvm-app/onvm-server/cmd/utils"
)

type LiveHandler struct {
	registry    *Registry
	broadcaster Broadcaster
	hub         *Hub
}

func NewLiveHandler() *LiveHandler {
	hub := NewHub()
	return &LiveHandler{
		registry:    NewRegistry(),
		broadcaster: hub,
		hub:         hub,
	}
}

func (h *LiveHandler) RegisterRoutes(router *mux.Router) {
	router.HandleFunc("/live/start", utils.AuthMiddleware(h.StartLive)).Methods("POST")
	router.HandleFunc("/live/stop", utils.AuthMiddleware(h.StopLive)).Methods("POST")
	router.HandleFunc("/live/join", utils.AuthMiddleware(h.JoinLive)).Methods("POST")
	router.HandleFunc("/live/leave", utils.AuthMiddleware(h.LeaveLive)).Methods("POST")
	router.HandleFunc("/live/active", h.GetActive).Methods("GET")
	router.HandleFunc("/live/ws", h.hub.HandleWebSocket)
}

type startLiveRequest struct {
	UserID         uint   `json:"userId"`
	Username       string `json:"username"`
	ProfilePicture string `json:"profilePicture"`
}

func (h *LiveHandler) StartLive(w http.ResponseWriter, r *http.Request) {
	var req startLiveRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		utils.WriteError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if req.UserID == 0 || req.Username == "" {
		utils.WriteError(w, http.StatusBadRequest, "userId and username are required")
		return
	}

	user := LiveUser{
		UserID:         req.UserID,
		Username:       req.Username,
		ProfilePicture: req.ProfilePicture,
	}
	if h.registry.Start(user) {
		h.broadcaster.Broadcast("notify-live", user)
	}

	utils.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"message":         "Live started",
		"activeLiveUsers": h.registry.Active(),
	})
}

type stopLiveRequest struct {
	UserID uint `json:"userId"`
}

func (h *LiveHandler) StopLive(w http.ResponseWriter, r *http.Request) {
	var req stopLiveRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		utils.WriteError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if req.UserID == 0 {
		utils.WriteError(w, http.StatusBadRequest, "userId is required")
		return
	}

	h.registry.Stop(req.UserID)
	h.broadcaster.Broadcast("end-live", map[string]uint{"userId": req.UserID})

	utils.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"message":         "Live stopped",
		"activeLiveUsers": h.registry.Active(),
	})
}

type joinLeaveRequest struct {
	LiveID         uint   `json:"liveId"`
	Username       string `json:"username"`
	ProfilePicture string `json:"profilePicture"`
}

func (h *LiveHandler) JoinLive(w http.ResponseWriter, r *http.Request) {
	var req joinLeaveRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		utils.WriteError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if req.LiveID == 0 || req.Username == "" {
		utils.WriteError(w, http.StatusBadRequest, "liveId and username are required")
		return
	}

	if _, ok := h.registry.Get(req.LiveID); !ok {
		utils.WriteError(w, http.StatusNotFound, "Live not found")
		return
	}

	h.broadcaster.Broadcast("user-joined", map[string]interface{}{
		"liveId":         req.LiveID,
		"username":       req.Username,
		"profilePicture": req.ProfilePicture,
	})

	utils.WriteMessage(w, http.StatusOK, "Joined live successfully")
}

func (h *LiveHandler) LeaveLive(w http.ResponseWriter, r *http.Request) {
	var req joinLeaveRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		utils.WriteError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if req.LiveID == 0 || req.Username == "" {
		utils.WriteError(w, http.StatusBadRequest, "liveId and username are required")
		return
	}

	if _, ok := h.registry.Get(req.LiveID); !ok {
		utils.WriteError(w, http.StatusNotFound, "Live not found")
		return
	}

	h.broadcaster.Broadcast("user-left", map[string]interface{}{
		"liveId":   req.LiveID,
		"username": req.Username,
	})

	utils.WriteMessage(w, http.StatusOK, "Left live successfully")
}

func (h *LiveHandler) GetActive(w http.ResponseWriter, r *http.Request) {
	utils.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"activeLiveUsers": h.registry.Active(),
	})
}
