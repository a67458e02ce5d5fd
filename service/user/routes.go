package user

import (
	"encoding/json"
	"errors"
	"fmt"
	"math/rand"
	"net/http"
	"os"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"github.com/onvm-app/onvm-server/cmd/models"
	"github.com/onvm-app/onvm-server/cmd/utils"
	"github.com/sirupsen/logrus"
	"golang.org/x/crypto/bcrypt"
	"gopkg.in/gomail.v2"
	"gorm.io/gorm"
)

const (
	accessTokenTTL  = 7 * 24 * time.Hour
	resetTokenTTL   = 5 * time.Minute
	minPasswordSize = 6
)

type UserHandler struct {
	db *gorm.DB
}

func NewUserHandler(db *gorm.DB) *UserHandler {
	return &UserHandler{db: db}
}

func (h *UserHandler) RegisterRoutes(router *mux.Router) {
	router.HandleFunc("/register", h.HandleRegister).Methods("POST")
	router.HandleFunc("/login", h.HandleLogin).Methods("POST")
	router.HandleFunc("/me", utils.AuthMiddleware(h.GetMe)).Methods("GET")
	router.HandleFunc("/users", utils.AuthMiddleware(h.GetUsers)).Methods("GET")
	router.HandleFunc("/users/search", utils.AuthMiddleware(h.SearchUsers)).Methods("GET")
	router.HandleFunc("/users/{id:[0-9]+}", h.GetUser).Methods("GET")
	router.HandleFunc("/users/{id:[0-9]+}/bio", utils.AuthMiddleware(h.UpdateBio)).Methods("PUT")
	router.HandleFunc("/users/{id:[0-9]+}/profile-picture", utils.AuthMiddleware(h.UpdateProfilePicture)).Methods("PUT")
	router.HandleFunc("/users/{id:[0-9]+}", utils.AuthMiddleware(h.DeleteUser)).Methods("DELETE")
	router.HandleFunc("/reset-password", h.HandlePasswordResetRequest).Methods("POST")
	router.HandleFunc("/verify-reset-token", h.HandleVerifyResetToken).Methods("POST")
	router.HandleFunc("/reset-password/{userId}/confirm", h.HandlePasswordReset).Methods("POST")
}

type registerRequest struct {
	Username string `json:"username"`
	Email    string `json:"email"`
	Password string `json:"password"`
	Bio      string `json:"bio"`
}

func (h *UserHandler) HandleRegister(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		utils.WriteError(w, http.StatusBadRequest, "Invalid JSON input")
		return
	}
	if req.Username == "" || req.Email == "" || req.Password == "" {
		utils.WriteError(w, http.StatusBadRequest, "username, email and password are required")
		return
	}
	if len(req.Password) < minPasswordSize {
		utils.WriteError(w, http.StatusBadRequest,
			fmt.Sprintf("Password must be at least %d characters long", minPasswordSize))
		return
	}

	var existing models.User
	err := h.db.Where("email = ? OR username = ?", req.Email, req.Username).First(&existing).Error
	if err == nil {
		if existing.Email == req.Email {
			utils.WriteError(w, http.StatusConflict, "Email is already in use")
		} else {
			utils.WriteError(w, http.StatusConflict, "Username is already in use")
		}
		return
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		utils.WriteError(w, http.StatusInternalServerError, "Error registering user")
		return
	}

	passwordHash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		utils.WriteError(w, http.StatusInternalServerError, "Error hashing password")
		return
	}

	user := models.User{
		Username:     req.Username,
		Email:        req.Email,
		PasswordHash: string(passwordHash),
		Bio:          req.Bio,
	}
	if err := h.db.Create(&user).Error; err != nil {
		if utils.IsUniqueViolation(err) {
			utils.WriteError(w, http.StatusConflict, "Username or email is already in use")
			return
		}
		logrus.WithError(err).Error("user: register failed")
		utils.WriteError(w, http.StatusInternalServerError, "Error registering user")
		return
	}

	token, err := utils.GenerateJWT(user.ID, accessTokenTTL)
	if err != nil {
		utils.WriteError(w, http.StatusInternalServerError, "Error generating token")
		return
	}

	utils.WriteJSON(w, http.StatusCreated, map[string]interface{}{
		"user":  user,
		"token": token,
	})
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

func (h *UserHandler) HandleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		utils.WriteError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	var user models.User
	if err := h.db.Where("email = ?", req.Email).First(&user).Error; err != nil {
		utils.WriteError(w, http.StatusNotFound, "User not found")
		return
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(req.Password)); err != nil {
		utils.WriteError(w, http.StatusBadRequest, "Incorrect password")
		return
	}

	token, err := utils.GenerateJWT(user.ID, accessTokenTTL)
	if err != nil {
		utils.WriteError(w, http.StatusInternalServerError, "Error generating token")
		return
	}

	utils.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"user":  user,
		"token": token,
	})
}

func (h *UserHandler) GetMe(w http.ResponseWriter, r *http.Request) {
	userID, err := utils.GetUserIDFromContext(r.Context())
	if err != nil {
		utils.WriteError(w, http.StatusUnauthorized, "Unauthorized")
		return
	}

	var user models.User
	if err := h.db.First(&user, userID).Error; err != nil {
		utils.WriteError(w, http.StatusNotFound, "User not found")
		return
	}

	utils.WriteJSON(w, http.StatusOK, user)
}

func (h *UserHandler) GetUsers(w http.ResponseWriter, r *http.Request) {
	var users []models.User
	if err := h.db.Order("username ASC").Find(&users).Error; err != nil {
		utils.WriteError(w, http.StatusInternalServerError, "Error retrieving users")
		return
	}

	summaries := make([]models.UserSummary, 0, len(users))
	for i := range users {
		summaries = append(summaries, users[i].Summary())
	}
	utils.WriteJSON(w, http.StatusOK, summaries)
}

func (h *UserHandler) SearchUsers(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query().Get("q")
	if query == "" {
		utils.WriteJSON(w, http.StatusOK, []models.UserSummary{})
		return
	}

	var users []models.User
	if err := h.db.Where("username LIKE ?", "%"+query+"%").
		Order("username ASC").
		Limit(50).
		Find(&users).Error; err != nil {
		utils.WriteError(w, http.StatusInternalServerError, "Error searching users")
		return
	}

	summaries := make([]models.UserSummary, 0, len(users))
	for i := range users {
		summaries = append(summaries, users[i].Summary())
	}
	utils.WriteJSON(w, http.StatusOK, summaries)
}

func (h *UserHandler) GetUser(w http.ResponseWriter, r *http.Request) {
	userID, err := strconv.ParseUint(mux.Vars(r)["id"], 10, 64)
	if err != nil {
		utils.WriteError(w, http.StatusBadRequest, "Invalid user ID")
		return
	}

	var user models.User
	if err := h.db.First(&user, userID).Error; err != nil {
		utils.WriteError(w, http.StatusNotFound, "User not found")
		return
	}

	utils.WriteJSON(w, http.StatusOK, user)
}

type updateBioRequest struct {
	Bio string `json:"bio"`
}

func (h *UserHandler) UpdateBio(w http.ResponseWriter, r *http.Request) {
	targetID, err := strconv.ParseUint(mux.Vars(r)["id"], 10, 64)
	if err != nil {
		utils.WriteError(w, http.StatusBadRequest, "Invalid user ID")
		return
	}

	callerID, err := utils.GetUserIDFromContext(r.Context())
	if err != nil || callerID != uint(targetID) {
		utils.WriteError(w, http.StatusForbidden, "You can only update your own profile")
		return
	}

	var req updateBioRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		utils.WriteError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	res := h.db.Model(&models.User{}).Where("id = ?", targetID).Update("bio", req.Bio)
	if res.Error != nil {
		utils.WriteError(w, http.StatusInternalServerError, "Error updating bio")
		return
	}
	if res.RowsAffected == 0 {
		utils.WriteError(w, http.StatusNotFound, "User not found")
		return
	}

	utils.WriteMessage(w, http.StatusOK, "Bio updated successfully")
}

func (h *UserHandler) UpdateProfilePicture(w http.ResponseWriter, r *http.Request) {
	targetID, err := strconv.ParseUint(mux.Vars(r)["id"], 10, 64)
	if err != nil {
		utils.WriteError(w, http.StatusBadRequest, "Invalid user ID")
		return
	}

	callerID, err := utils.GetUserIDFromContext(r.Context())
	if err != nil || callerID != uint(targetID) {
		utils.WriteError(w, http.StatusForbidden, "You can only update your own profile")
		return
	}

	if err := r.ParseMultipartForm(utils.MaxMediaSize); err != nil {
		utils.WriteError(w, http.StatusBadRequest, "Invalid multipart form")
		return
	}

	file, header, err := r.FormFile("image")
	if err != nil {
		utils.WriteError(w, http.StatusBadRequest, "An image file is required")
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
		utils.WriteError(w, http.StatusBadRequest, "Profile picture must be an image")
		return
	}

	var user models.User
	if err := h.db.First(&user, targetID).Error; err != nil {
		utils.WriteError(w, http.StatusNotFound, "User not found")
		return
	}
	previous := user.ProfilePicture

	if err := h.db.Model(&user).Update("profile_picture", url).Error; err != nil {
		utils.WriteError(w, http.StatusInternalServerError, "Error updating profile picture")
		return
	}

	if previous != "" && previous != url {
		utils.DeleteMedia(previous)
	}

	utils.WriteJSON(w, http.StatusOK, map[string]string{"profile_picture": url})
}

// DeleteUser removes an account and everything it owns. Only the account
// holder or an admin may do it. Dependent rows are deleted explicitly so
// the behavior does not depend on FK enforcement.
func (h *UserHandler) DeleteUser(w http.ResponseWriter, r *http.Request) {
	targetID, err := strconv.ParseUint(mux.Vars(r)["id"], 10, 64)
	if err != nil {
		utils.WriteError(w, http.StatusBadRequest, "Invalid user ID")
		return
	}

	callerID, err := utils.GetUserIDFromContext(r.Context())
	if err != nil {
		utils.WriteError(w, http.StatusUnauthorized, "Unauthorized")
		return
	}

	if callerID != uint(targetID) {
		var caller models.User
		if err := h.db.First(&caller, callerID).Error; err != nil || !caller.IsAdmin {
			utils.WriteError(w, http.StatusForbidden, "You are not authorized to delete this account")
			return
		}
	}

	var user models.User
	if err := h.db.First(&user, targetID).Error; err != nil {
		utils.WriteError(w, http.StatusNotFound, "User not found")
		return
	}

	err = h.db.Transaction(func(tx *gorm.DB) error {
		owned := []interface{}{
			&models.Like{}, &models.Retweet{}, &models.Reply{}, &models.Comment{},
			&models.Post{}, &models.Story{}, &models.Transaction{}, &models.Wallet{},
			&models.Device{}, &models.CommunityMessage{}, &models.CommunityMember{},
			&models.PasswordResetToken{},
		}
		for _, model := range owned {
			if err := tx.Where("user_id = ?", targetID).Delete(model).Error; err != nil {
				return err
			}
		}

		// Communities the user created go with them, children first.
		var communityIDs []uint
		if err := tx.Model(&models.Community{}).Where("created_by = ?", targetID).
			Pluck("id", &communityIDs).Error; err != nil {
			return err
		}
		if len(communityIDs) > 0 {
			if err := tx.Where("community_id IN ?", communityIDs).
				Delete(&models.CommunityMessage{}).Error; err != nil {
				return err
			}
			if err := tx.Where("community_id IN ?", communityIDs).
				Delete(&models.CommunityMember{}).Error; err != nil {
				return err
			}
			if err := tx.Delete(&models.Community{}, communityIDs).Error; err != nil {
				return err
			}
		}

		// Conversations involving the user, with every message in them.
		var conversationIDs []uint
		if err := tx.Model(&models.Conversation{}).
			Where("sender_id = ? OR receiver_id = ?", targetID, targetID).
			Pluck("id", &conversationIDs).Error; err != nil {
			return err
		}
		if len(conversationIDs) > 0 {
			if err := tx.Where("conversation_id IN ?", conversationIDs).
				Delete(&models.Message{}).Error; err != nil {
				return err
			}
			if err := tx.Delete(&models.Conversation{}, conversationIDs).Error; err != nil {
				return err
			}
		}

		if err := tx.Where("user_id = ? OR sender_id = ?", targetID, targetID).
			Delete(&models.Notification{}).Error; err != nil {
			return err
		}
		if err := tx.Where("follower_id = ? OR following_id = ?", targetID, targetID).
			Delete(&models.Follow{}).Error; err != nil {
			return err
		}
		return tx.Delete(&models.User{}, targetID).Error
	})
	if err != nil {
		logrus.WithError(err).WithField("user_id", targetID).Error("user: delete failed")
		utils.WriteError(w, http.StatusInternalServerError, "Error deleting user")
		return
	}

	utils.WriteMessage(w, http.StatusOK, "User deleted successfully")
}

func (h *UserHandler) HandlePasswordResetRequest(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Email string `json:"email"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		utils.WriteError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if req.Email == "" {
		utils.WriteError(w, http.StatusBadRequest, "Email is required")
		return
	}

	// The response is identical whether or not the account exists.
	vague := "If an account exists, a reset code will be sent to your email"

	var user models.User
	if err := h.db.Where("email = ?", req.Email).First(&user).Error; err != nil {
		utils.WriteMessage(w, http.StatusOK, vague)
		return
	}

	resetToken := fmt.Sprintf("%06d", rand.Intn(1000000))

	err := h.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("user_id = ?", user.ID).
			Delete(&models.PasswordResetToken{}).Error; err != nil {
			return err
		}
		return tx.Create(&models.PasswordResetToken{
			UserID:    user.ID,
			Token:     resetToken,
			ExpiresAt: time.Now().Add(resetTokenTTL),
		}).Error
	})
	if err != nil {
		utils.WriteError(w, http.StatusInternalServerError, "Error processing reset request")
		return
	}

	go func() {
		if err := sendResetEmail(user.Email, resetToken); err != nil {
			logrus.WithError(err).Error("user: reset email failed")
		}
	}()

	utils.WriteMessage(w, http.StatusOK, vague)
}

func (h *UserHandler) HandleVerifyResetToken(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Email string `json:"email"`
		Token string `json:"token"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		utils.WriteError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	var user models.User
	if err := h.db.Where("email = ?", req.Email).First(&user).Error; err != nil {
		utils.WriteError(w, http.StatusUnauthorized, "Invalid or expired reset token")
		return
	}

	var token models.PasswordResetToken
	err := h.db.Where("user_id = ? AND token = ?", user.ID, req.Token).First(&token).Error
	if err != nil || time.Now().After(token.ExpiresAt) {
		utils.WriteError(w, http.StatusUnauthorized, "Invalid or expired reset token")
		return
	}

	utils.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"message": "Token verified",
		"user_id": user.ID,
	})
}

func (h *UserHandler) HandlePasswordReset(w http.ResponseWriter, r *http.Request) {
	userID, err := strconv.ParseUint(mux.Vars(r)["userId"], 10, 32)
	if err != nil {
		utils.WriteError(w, http.StatusBadRequest, "Invalid user ID")
		return
	}

	var req struct {
		Token    string `json:"token"`
		Password string `json:"password"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		utils.WriteError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if len(req.Password) < minPasswordSize {
		utils.WriteError(w, http.StatusBadRequest,
			fmt.Sprintf("Password must be at least %d characters long", minPasswordSize))
		return
	}

	var token models.PasswordResetToken
	err = h.db.Where("user_id = ? AND token = ?", userID, req.Token).First(&token).Error
	if err != nil || time.Now().After(token.ExpiresAt) {
		utils.WriteError(w, http.StatusUnauthorized, "Invalid or expired reset token")
		return
	}

	passwordHash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		utils.WriteError(w, http.StatusInternalServerError, "Error hashing password")
		return
	}

	err = h.db.Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&models.User{}).Where("id = ?", userID).
			Update("password_hash", string(passwordHash))
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return gorm.ErrRecordNotFound
		}
		return tx.Where("user_id = ?", userID).Delete(&models.PasswordResetToken{}).Error
	})
	if errors.Is(err, gorm.ErrRecordNotFound) {
		utils.WriteError(w, http.StatusNotFound, "User not found")
		return
	}
	if err != nil {
		utils.WriteError(w, http.StatusInternalServerError, "Error processing password reset")
		return
	}

	utils.WriteMessage(w, http.StatusOK, "Password reset successful")
}

// sendResetEmail mails the reset code through the SMTP account configured
// in the environment.
func sendResetEmail(email, code string) error {
	smtpHost := os.Getenv("SMTP_HOST")
	smtpPort := os.Getenv("SMTP_PORT")
	smtpUser := os.Getenv("SMTP_USER")
	smtpPass := os.Getenv("SMTP_PASS")
	if smtpHost == "" || smtpUser == "" {
		return fmt.Errorf("SMTP is not configured")
	}

	port, err := strconv.Atoi(smtpPort)
	if err != nil {
		return fmt.Errorf("invalid SMTP port: %v", err)
	}

	m := gomail.NewMessage()
	m.SetHeader("From", smtpUser)
	m.SetHeader("To", email)
	m.SetHeader("Subject", "Password Reset Code")
	m.SetBody("text/plain", fmt.Sprintf("Your password reset code is: %s. Ignore this email if you did not request a reset.", code))

	d := gomail.NewDialer(smtpHost, port, smtpUser, smtpPass)
	return d.DialAndSend(m)
}
