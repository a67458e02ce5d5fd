package wallet

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"
	"github.com/onvm-app/onvm-server/cmd/utils"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

type WalletHandler struct {
	ledger *Ledger
}

func NewWalletHandler(db *gorm.DB) *WalletHandler {
	return &WalletHandler{ledger: NewLedger(db)}
}

func (h *WalletHandler) RegisterRoutes(router *mux.Router) {
	walletRouter := router.PathPrefix("/wallet").Subrouter()

	walletRouter.HandleFunc("/{userId}/balance", h.GetBalance).Methods("GET")
	walletRouter.HandleFunc("/{userId}/history", h.GetHistory).Methods("GET")
	walletRouter.HandleFunc("/earn", utils.AuthMiddleware(h.Earn)).Methods("POST")
	walletRouter.HandleFunc("/spend", utils.AuthMiddleware(h.Spend)).Methods("POST")
}

func (h *WalletHandler) GetBalance(w http.ResponseWriter, r *http.Request) {
	userID, err := parseUserID(r)
	if err != nil {
		utils.WriteError(w, http.StatusBadRequest, "Invalid user ID")
		return
	}

	balance, err := h.ledger.Balance(userID)
	if err != nil {
		logrus.WithError(err).WithField("user_id", userID).Error("wallet: balance lookup failed")
		utils.WriteError(w, http.StatusInternalServerError, "Error retrieving balance")
		return
	}

	utils.WriteJSON(w, http.StatusOK, map[string]float64{"balance": balance})
}

type amountRequest struct {
	UserID uint    `json:"userId"`
	Amount float64 `json:"amount"`
}

func (h *WalletHandler) Earn(w http.ResponseWriter, r *http.Request) {
	var req amountRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		utils.WriteError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if req.UserID == 0 {
		utils.WriteError(w, http.StatusBadRequest, "User ID and amount required")
		return
	}

	newBalance, err := h.ledger.Earn(req.UserID, req.Amount)
	if err != nil {
		h.writeLedgerError(w, "earn", req.UserID, err)
		return
	}

	utils.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"message":    "Currency added successfully",
		"newBalance": newBalance,
	})
}

func (h *WalletHandler) Spend(w http.ResponseWriter, r *http.Request) {
	var req amountRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		utils.WriteError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if req.UserID == 0 {
		utils.WriteError(w, http.StatusBadRequest, "User ID and amount required")
		return
	}

	newBalance, err := h.ledger.Spend(req.UserID, req.Amount)
	if err != nil {
		h.writeLedgerError(w, "spend", req.UserID, err)
		return
	}

	utils.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"message":    "Currency spent successfully",
		"newBalance": newBalance,
	})
}

func (h *WalletHandler) GetHistory(w http.ResponseWriter, r *http.Request) {
	userID, err := parseUserID(r)
	if err != nil {
		utils.WriteError(w, http.StatusBadRequest, "Invalid user ID")
		return
	}

	transactions, err := h.ledger.History(userID)
	if err != nil {
		logrus.WithError(err).WithField("user_id", userID).Error("wallet: history lookup failed")
		utils.WriteError(w, http.StatusInternalServerError, "Error retrieving history")
		return
	}

	utils.WriteJSON(w, http.StatusOK, map[string]interface{}{"transactions": transactions})
}

func (h *WalletHandler) writeLedgerError(w http.ResponseWriter, op string, userID uint, err error) {
	switch {
	case errors.Is(err, ErrInvalidAmount):
		utils.WriteError(w, http.StatusBadRequest, "Amount must be a positive number")
	case errors.Is(err, ErrInsufficientBalance):
		utils.WriteError(w, http.StatusBadRequest, "Insufficient balance")
	default:
		logrus.WithError(err).WithFields(logrus.Fields{
			"operation": op,
			"user_id":   userID,
		}).Error("wallet: ledger operation failed")
		utils.WriteError(w, http.StatusInternalServerError, "Error updating balance")
	}
}

func parseUserID(r *http.Request) (uint, error) {
	id, err := strconv.ParseUint(mux.Vars(r)["userId"], 10, 64)
	if err != nil {
		return 0, err
	}
	return uint(id), nil
}
