package messaging

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

	require.NoError(t, db.AutoMigrate(&models.User{}, &models.Conversation{}, &models.Message{}))

	users := []models.User{
		{Username: "alice", Email: "alice@example.com", PasswordHash: "x"},
		{Username: "bob", Email: "bob@example.com", PasswordHash: "x"},
		{Username: "carol", Email: "carol@example.com", PasswordHash: "x"},
	}
	require.NoError(t, db.Create(&users).Error)

	router := mux.NewRouter()
	NewMessagingHandler(db).RegisterRoutes(router)

	return &testEnv{db: db, router: router}
}

func (e *testEnv) do(t *testing.T, method, target string, userID uint, body interface{}) *httptest.ResponseRecorder {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}

	req := httptest.NewRequest(method, target, &buf)
	req.Header.Set("Content-Type", "application/json")
	token, err := utils.GenerateJWT(userID, time.Hour)
	require.NoError(t, err)
	req.Header.Set("Authorization", "Bearer "+token)

	rec := httptest.NewRecorder()
	e.router.ServeHTTP(rec, req)
	return rec
}

func TestConversationPairIsSymmetric(t *testing.T) {
	env := newTestEnv(t)

	first, err := GetOrCreateConversation(env.db, 1, 2)
	require.NoError(t, err)

	reversed, err := GetOrCreateConversation(env.db, 2, 1)
	require.NoError(t, err)

	assert.Equal(t, first.ID, reversed.ID)

	var count int64
	require.NoError(t, env.db.Model(&models.Conversation{}).Count(&count).Error)
	assert.EqualValues(t, 1, count)
}

func TestCreateConversationEndpointReusesExisting(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodPost, "/conversations/create", 1,
		map[string]uint{"sender_id": 1, "receiver_id": 2})
	require.Equal(t, http.StatusOK, rec.Code)

	var created models.Conversation
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &created))

	rec = env.do(t, http.MethodPost, "/conversations/create", 2,
		map[string]uint{"sender_id": 2, "receiver_id": 1})
	require.Equal(t, http.StatusOK, rec.Code)

	var again models.Conversation
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &again))
	assert.Equal(t, created.ID, again.ID)
}

func TestSendAndListMessages(t *testing.T) {
	env := newTestEnv(t)

	conversation, err := GetOrCreateConversation(env.db, 1, 2)
	require.NoError(t, err)

	rec := env.do(t, http.MethodPost, "/messages", 1,
		map[string]interface{}{"conversation_id": conversation.ID, "content": "hey bob"})
	require.Equal(t, http.StatusCreated, rec.Code)

	rec = env.do(t, http.MethodPost, "/messages", 2,
		map[string]interface{}{"conversation_id": conversation.ID, "content": "hey alice"})
	require.Equal(t, http.StatusCreated, rec.Code)

	rec = env.do(t, http.MethodGet, "/messages/1", 1, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		Messages []models.Message   `json:"messages"`
		User     models.UserSummary `json:"user"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))

	require.Len(t, resp.Messages, 2)
	assert.Equal(t, "hey bob", resp.Messages[0].Content)
	assert.Equal(t, "hey alice", resp.Messages[1].Content)
	assert.Equal(t, "bob", resp.User.Username)
}

func TestSendMessageRejectsOutsider(t *testing.T) {
	env := newTestEnv(t)

	conversation, err := GetOrCreateConversation(env.db, 1, 2)
	require.NoError(t, err)

	rec := env.do(t, http.MethodPost, "/messages", 3,
		map[string]interface{}{"conversation_id": conversation.ID, "content": "let me in"})
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestUnreadCountExcludesOwnMessages(t *testing.T) {
	env := newTestEnv(t)

	conversation, err := GetOrCreateConversation(env.db, 1, 2)
	require.NoError(t, err)

	messages := []models.Message{
		{ConversationID: conversation.ID, UserID: 2, Content: "one"},
		{ConversationID: conversation.ID, UserID: 2, Content: "two"},
		{ConversationID: conversation.ID, UserID: 1, Content: "mine"},
	}
	require.NoError(t, env.db.Create(&messages).Error)

	rec := env.do(t, http.MethodGet, "/conversations/unread/1", 1, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp map[string]int64
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.EqualValues(t, 2, resp["unreadCount"])

	rec = env.do(t, http.MethodPut, "/messages/1/read", 1, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = env.do(t, http.MethodGet, "/conversations/unread/1", 1, nil)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.EqualValues(t, 1, resp["unreadCount"])
}

func TestMarkMessageReadOnlyByRecipient(t *testing.T) {
	env := newTestEnv(t)

	conversation, err := GetOrCreateConversation(env.db, 1, 2)
	require.NoError(t, err)
	require.NoError(t, env.db.Create(&models.Message{
		ConversationID: conversation.ID, UserID: 2, Content: "for alice",
	}).Error)

	// Neither an outsider nor the sender can flip the read flag.
	rec := env.do(t, http.MethodPut, "/messages/1/read", 3, nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = env.do(t, http.MethodPut, "/messages/1/read", 2, nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	var stored models.Message
	require.NoError(t, env.db.First(&stored, 1).Error)
	assert.False(t, stored.Read)

	rec = env.do(t, http.MethodPut, "/messages/1/read", 1, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	require.NoError(t, env.db.First(&stored, 1).Error)
	assert.True(t, stored.Read)
}

func TestConversationListShowsOtherUserAndLastMessage(t *testing.T) {
	env := newTestEnv(t)

	conversation, err := GetOrCreateConversation(env.db, 1, 2)
	require.NoError(t, err)
	require.NoError(t, env.db.Create(&models.Message{
		ConversationID: conversation.ID, UserID: 2, Content: "latest",
	}).Error)

	rec := env.do(t, http.MethodGet, "/conversations/1", 1, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var summaries []conversationSummary
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &summaries))
	require.Len(t, summaries, 1)
	assert.Equal(t, "bob", summaries[0].Username)
	assert.Equal(t, "latest", summaries[0].LastMessage)
}
