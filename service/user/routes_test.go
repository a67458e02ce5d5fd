package user

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gorilla/mux"
	"github.com/onvm-app/onvm-server/cmd/models"
	"github.com/onvm-app/onvm-server/cmd/utils"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

type testEnv struct {
	db     *gorm.DB
	router *mux.Router
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	t.Setenv("SECRET_KEY", "test-secret")

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger:         logger.Default.LogMode(logger.Silent),
		TranslateError: true,
	})
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)

	require.NoError(t, db.AutoMigrate(
		&models.User{}, &models.PasswordResetToken{}, &models.Follow{},
		&models.Post{}, &models.Comment{}, &models.Reply{}, &models.Like{},
		&models.Retweet{}, &models.Story{}, &models.Wallet{}, &models.Transaction{},
		&models.Notification{}, &models.Device{},
		&models.Community{}, &models.CommunityMember{}, &models.CommunityMessage{},
		&models.Conversation{}, &models.Message{},
	))

	router := mux.NewRouter()
	NewUserHandler(db).RegisterRoutes(router)

	return &testEnv{db: db, router: router}
}

func (e *testEnv) seedUser(t *testing.T, username, email, password string) *models.User {
	t.Helper()
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.MinCost)
	require.NoError(t, err)
	user := &models.User{Username: username, Email: email, PasswordHash: string(hash)}
	require.NoError(t, e.db.Create(user).Error)
	return user
}

func (e *testEnv) do(t *testing.T, method, target string, userID uint, body interface{}) *httptest.ResponseRecorder {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}

	req := httptest.NewRequest(method, target, &buf)
	req.Header.Set("Content-Type", "application/json")
	if userID != 0 {
		token, err := utils.GenerateJWT(userID, time.Hour)
		require.NoError(t, err)
		req.Header.Set("Authorization", "Bearer "+token)
	}

	rec := httptest.NewRecorder()
	e.router.ServeHTTP(rec, req)
	return rec
}

func TestRegisterReturnsUserAndToken(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodPost, "/register", 0, map[string]string{
		"username": "alice",
		"email":    "alice@example.com",
		"password": "pw123456",
	})
	require.Equal(t, http.StatusCreated, rec.Code)

	var resp struct {
		User  models.User `json:"user"`
		Token string      `json:"token"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "alice", resp.User.Username)
	assert.NotEmpty(t, resp.Token)

	var stored models.User
	require.NoError(t, env.db.Where("email = ?", "alice@example.com").First(&stored).Error)
	assert.NoError(t, bcrypt.CompareHashAndPassword([]byte(stored.PasswordHash), []byte("pw123456")))
}

func TestRegisterRejectsDuplicateEmail(t *testing.T) {
	env := newTestEnv(t)
	env.seedUser(t, "alice", "alice@example.com", "pw123456")

	rec := env.do(t, http.MethodPost, "/register", 0, map[string]string{
		"username": "alice2",
		"email":    "alice@example.com",
		"password": "pw123456",
	})
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Contains(t, rec.Body.String(), "Email is already in use")
}

func TestRegisterRejectsDuplicateUsername(t *testing.T) {
	env := newTestEnv(t)
	env.seedUser(t, "alice", "alice@example.com", "pw123456")

	rec := env.do(t, http.MethodPost, "/register", 0, map[string]string{
		"username": "alice",
		"email":    "other@example.com",
		"password": "pw123456",
	})
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Contains(t, rec.Body.String(), "Username is already in use")
}

func TestLogin(t *testing.T) {
	env := newTestEnv(t)
	env.seedUser(t, "alice", "alice@example.com", "pw123456")

	rec := env.do(t, http.MethodPost, "/login", 0, map[string]string{
		"email":    "alice@example.com",
		"password": "pw123456",
	})
	require.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		Token string `json:"token"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.NotEmpty(t, resp.Token)

	rec = env.do(t, http.MethodPost, "/login", 0, map[string]string{
		"email":    "alice@example.com",
		"password": "wrong",
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = env.do(t, http.MethodPost, "/login", 0, map[string]string{
		"email":    "nobody@example.com",
		"password": "pw123456",
	})
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestGetMe(t *testing.T) {
	env := newTestEnv(t)
	alice := env.seedUser(t, "alice", "alice@example.com", "pw123456")

	rec := env.do(t, http.MethodGet, "/me", alice.ID, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var me models.User
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &me))
	assert.Equal(t, "alice", me.Username)

	rec = env.do(t, http.MethodGet, "/me", 0, nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestUpdateBioOnlyForOwnProfile(t *testing.T) {
	env := newTestEnv(t)
	alice := env.seedUser(t, "alice", "alice@example.com", "pw123456")
	bob := env.seedUser(t, "bob", "bob@example.com", "pw123456")

	rec := env.do(t, http.MethodPut, "/users/1/bio", alice.ID, map[string]string{"bio": "hello"})
	require.Equal(t, http.StatusOK, rec.Code)

	var stored models.User
	require.NoError(t, env.db.First(&stored, alice.ID).Error)
	assert.Equal(t, "hello", stored.Bio)

	rec = env.do(t, http.MethodPut, "/users/1/bio", bob.ID, map[string]string{"bio": "hacked"})
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestSearchUsersMatchesSubstring(t *testing.T) {
	env := newTestEnv(t)
	env.seedUser(t, "alice", "alice@example.com", "pw123456")
	env.seedUser(t, "alicia", "alicia@example.com", "pw123456")
	env.seedUser(t, "bob", "bob@example.com", "pw123456")

	rec := env.do(t, http.MethodGet, "/users/search?q=ali", 1, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var results []models.UserSummary
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &results))
	require.Len(t, results, 2)
	assert.Equal(t, "alice", results[0].Username)
	assert.Equal(t, "alicia", results[1].Username)
}

func TestDeleteUserRemovesOwnedRows(t *testing.T) {
	env := newTestEnv(t)
	alice := env.seedUser(t, "alice", "alice@example.com", "pw123456")
	bob := env.seedUser(t, "bob", "bob@example.com", "pw123456")

	require.NoError(t, env.db.Create(&models.Post{UserID: alice.ID, Content: "bye"}).Error)
	require.NoError(t, env.db.Create(&models.Wallet{UserID: alice.ID, Balance: 50}).Error)
	require.NoError(t, env.db.Create(&models.Follow{FollowerID: bob.ID, FollowingID: alice.ID}).Error)

	rec := env.do(t, http.MethodDelete, "/users/1", bob.ID, nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = env.do(t, http.MethodDelete, "/users/1", alice.ID, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var postCount, walletCount, followCount int64
	env.db.Model(&models.Post{}).Where("user_id = ?", alice.ID).Count(&postCount)
	env.db.Model(&models.Wallet{}).Where("user_id = ?", alice.ID).Count(&walletCount)
	env.db.Model(&models.Follow{}).Where("following_id = ?", alice.ID).Count(&followCount)
	assert.Zero(t, postCount)
	assert.Zero(t, walletCount)
	assert.Zero(t, followCount)

	var userCount int64
	env.db.Model(&models.User{}).Where("id = ?", alice.ID).Count(&userCount)
	assert.Zero(t, userCount)
}

func TestDeleteUserRemovesCommunitiesAndConversations(t *testing.T) {
	env := newTestEnv(t)
	alice := env.seedUser(t, "alice", "alice@example.com", "pw123456")
	bob := env.seedUser(t, "bob", "bob@example.com", "pw123456")

	community := &models.Community{Name: "book club", Description: "books", CreatedBy: alice.ID}
	require.NoError(t, env.db.Create(community).Error)
	require.NoError(t, env.db.Create(&models.CommunityMember{UserID: bob.ID, CommunityID: community.ID}).Error)
	require.NoError(t, env.db.Create(&models.CommunityMessage{CommunityID: community.ID, UserID: bob.ID, Content: "hi all"}).Error)

	conversation := &models.Conversation{SenderID: alice.ID, ReceiverID: bob.ID}
	require.NoError(t, env.db.Create(conversation).Error)
	require.NoError(t, env.db.Create(&models.Message{ConversationID: conversation.ID, UserID: alice.ID, Content: "hello"}).Error)
	require.NoError(t, env.db.Create(&models.Message{ConversationID: conversation.ID, UserID: bob.ID, Content: "hey"}).Error)

	require.NoError(t, env.db.Create(&models.PasswordResetToken{
		UserID: alice.ID, Token: "123456", ExpiresAt: time.Now().Add(5 * time.Minute),
	}).Error)

	rec := env.do(t, http.MethodDelete, "/users/1", alice.ID, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var communities, memberships, communityMessages int64
	env.db.Model(&models.Community{}).Where("created_by = ?", alice.ID).Count(&communities)
	env.db.Model(&models.CommunityMember{}).Where("community_id = ?", community.ID).Count(&memberships)
	env.db.Model(&models.CommunityMessage{}).Where("community_id = ?", community.ID).Count(&communityMessages)
	assert.Zero(t, communities)
	assert.Zero(t, memberships)
	assert.Zero(t, communityMessages)

	var conversations, messages int64
	env.db.Model(&models.Conversation{}).
		Where("sender_id = ? OR receiver_id = ?", alice.ID, alice.ID).Count(&conversations)
	env.db.Model(&models.Message{}).Where("conversation_id = ?", conversation.ID).Count(&messages)
	assert.Zero(t, conversations)
	assert.Zero(t, messages)

	var tokens int64
	env.db.Model(&models.PasswordResetToken{}).Where("user_id = ?", alice.ID).Count(&tokens)
	assert.Zero(t, tokens)
}

func TestPasswordResetFlow(t *testing.T) {
	env := newTestEnv(t)
	alice := env.seedUser(t, "alice", "alice@example.com", "pw123456")

	require.NoError(t, env.db.Create(&models.PasswordResetToken{
		UserID:    alice.ID,
		Token:     "123456",
		ExpiresAt: time.Now().Add(5 * time.Minute),
	}).Error)

	rec := env.do(t, http.MethodPost, "/verify-reset-token", 0, map[string]string{
		"email": "alice@example.com",
		"token": "123456",
	})
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = env.do(t, http.MethodPost, "/reset-password/1/confirm", 0, map[string]string{
		"token":    "123456",
		"password": "newpass99",
	})
	require.Equal(t, http.StatusOK, rec.Code)

	var stored models.User
	require.NoError(t, env.db.First(&stored, alice.ID).Error)
	assert.NoError(t, bcrypt.CompareHashAndPassword([]byte(stored.PasswordHash), []byte("newpass99")))

	// tokens are single use
	rec = env.do(t, http.MethodPost, "/reset-password/1/confirm", 0, map[string]string{
		"token":    "123456",
		"password": "another99",
	})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestExpiredResetTokenRejected(t *testing.T) {
	env := newTestEnv(t)
	alice := env.seedUser(t, "alice", "alice@example.com", "pw123456")

	require.NoError(t, env.db.Create(&models.PasswordResetToken{
		UserID:    alice.ID,
		Token:     "654321",
		ExpiresAt: time.Now().Add(-time.Minute),
	}).Error)

	rec := env.do(t, http.MethodPost, "/reset-password/1/confirm", 0, map[string]string{
		"token":    "654321",
		"password": "newpass99",
	})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}
