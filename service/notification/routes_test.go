package notification

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
	"github.com/stretchr/testify/require"
)

func newTestRouter(t *testing.T) (*mux.Router, *Dispatcher) {
	t.Helper()
	t.Setenv("SECRET_KEY", "test-secret")

	d := newTestDispatcher(t)
	router := mux.NewRouter()
	NewNotificationHandler(d.db, d).RegisterRoutes(router)
	return router, d
}

func doJSON(t *testing.T, router *mux.Router, method, target string, userID uint, body interface{}) *httptest.ResponseRecorder {
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
	router.ServeHTTP(rec, req)
	return rec
}

func TestRegisterDeviceIgnoresClientSuppliedID(t *testing.T) {
	router, d := newTestRouter(t)

	rec := doJSON(t, router, http.MethodPost, "/devices", 1, map[string]interface{}{
		"ID":          999,
		"CreatedAt":   "2001-01-01T00:00:00Z",
		"token":       "ExponentPushToken[xxxxxxxxxxxxxxxxxxxxxx]",
		"user_id":     1,
		"device_type": "ios",
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var stored models.Device
	require.NoError(t, d.db.Where("user_id = ?", 1).First(&stored).Error)
	require.EqualValues(t, 1, stored.ID)
	require.True(t, stored.CreatedAt.After(time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC)))
}

func TestRegisterDeviceUpdatesExisting(t *testing.T) {
	router, d := newTestRouter(t)

	body := map[string]interface{}{
		"token":       "ExponentPushToken[xxxxxxxxxxxxxxxxxxxxxx]",
		"user_id":     1,
		"device_type": "ios",
	}
	rec := doJSON(t, router, http.MethodPost, "/devices", 1, body)
	require.Equal(t, http.StatusOK, rec.Code)

	body["device_type"] = "android"
	rec = doJSON(t, router, http.MethodPost, "/devices", 1, body)
	require.Equal(t, http.StatusOK, rec.Code)

	var count int64
	require.NoError(t, d.db.Model(&models.Device{}).Where("user_id = ?", 1).Count(&count).Error)
	require.EqualValues(t, 1, count)

	var stored models.Device
	require.NoError(t, d.db.Where("user_id = ?", 1).First(&stored).Error)
	require.Equal(t, "android", stored.DeviceType)
}

func TestRegisterDeviceRejectsBadToken(t *testing.T) {
	router, _ := newTestRouter(t)

	rec := doJSON(t, router, http.MethodPost, "/devices", 1, map[string]interface{}{
		"token":   "not-a-push-token",
		"user_id": 1,
	})
	require.Equal(t, http.StatusBadRequest, rec.Code)
}
