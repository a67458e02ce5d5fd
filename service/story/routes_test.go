package story

import (
	"bytes"
	"encoding/json"
	"mime/multipart"
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

	require.NoError(t, db.AutoMigrate(&models.User{}, &models.Story{}))

	users := []models.User{
		{Username: "alice", Email: "alice@example.com", PasswordHash: "x"},
		{Username: "bob", Email: "bob@example.com", PasswordHash: "x"},
	}
	require.NoError(t, db.Create(&users).Error)

	router := mux.NewRouter()
	NewStoryHandler(db).RegisterRoutes(router)

	return &testEnv{db: db, router: router}
}

func (e *testEnv) postStory(t *testing.T, userID uint, content string) *httptest.ResponseRecorder {
	t.Helper()

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	if content != "" {
		require.NoError(t, mw.WriteField("content", content))
	}
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, "/stories", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	token, err := utils.GenerateJWT(userID, time.Hour)
	require.NoError(t, err)
	req.Header.Set("Authorization", "Bearer "+token)

	rec := httptest.NewRecorder()
	e.router.ServeHTTP(rec, req)
	return rec
}

func TestCreateStoryExtractsMentions(t *testing.T) {
	env := newTestEnv(t)

	rec := env.postStory(t, 1, "gm @bob and @carol")
	require.Equal(t, http.StatusCreated, rec.Code)

	var story models.Story
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &story))
	assert.Equal(t, "@bob, @carol", story.Mentions)
}

func TestCreateStoryRequiresContentOrMedia(t *testing.T) {
	env := newTestEnv(t)

	rec := env.postStory(t, 1, "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestGetUserStoriesHidesExpired(t *testing.T) {
	env := newTestEnv(t)

	fresh := models.Story{UserID: 1, Content: "fresh"}
	require.NoError(t, env.db.Create(&fresh).Error)

	old := models.Story{UserID: 1, Content: "stale"}
	require.NoError(t, env.db.Create(&old).Error)
	require.NoError(t, env.db.Model(&old).
		Update("created_at", time.Now().Add(-25*time.Hour)).Error)

	req := httptest.NewRequest(http.MethodGet, "/stories/1", nil)
	rec := httptest.NewRecorder()
	env.router.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	var stories []models.Story
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &stories))
	require.Len(t, stories, 1)
	assert.Equal(t, "fresh", stories[0].Content)
	require.NotNil(t, stories[0].User)
	assert.Equal(t, "alice", stories[0].User.Username)
}

func TestExpireStoriesDeletesOnlyOldRows(t *testing.T) {
	env := newTestEnv(t)

	fresh := models.Story{UserID: 1, Content: "fresh"}
	require.NoError(t, env.db.Create(&fresh).Error)

	old := models.Story{UserID: 2, Content: "stale"}
	require.NoError(t, env.db.Create(&old).Error)
	require.NoError(t, env.db.Model(&old).
		Update("created_at", time.Now().Add(-25*time.Hour)).Error)

	removed, err := ExpireStories(env.db)
	require.NoError(t, err)
	assert.EqualValues(t, 1, removed)

	var count int64
	env.db.Model(&models.Story{}).Count(&count)
	assert.EqualValues(t, 1, count)
}
