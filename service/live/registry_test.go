package live

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/mux"
	"github.com/onvm-app/onvm-server/cmd/utils"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegistryStartIsIdempotent(t *testing.T) {
	r := NewRegistry()

	assert.True(t, r.Start(LiveUser{UserID: 1, Username: "alice"}))
	assert.False(t, r.Start(LiveUser{UserID: 1, Username: "alice"}))

	active := r.Active()
	require.Len(t, active, 1)
	assert.Equal(t, "alice", active[0].Username)
}

func TestRegistryStopRemovesUser(t *testing.T) {
	r := NewRegistry()
	r.Start(LiveUser{UserID: 1, Username: "alice"})
	r.Start(LiveUser{UserID: 2, Username: "bob"})

	r.Stop(1)
	r.Stop(99) // not live, no-op

	active := r.Active()
	require.Len(t, active, 1)
	assert.EqualValues(t, 2, active[0].UserID)

	_, ok := r.Get(1)
	assert.False(t, ok)
}

func TestRegistryPreservesStartOrder(t *testing.T) {
	r := NewRegistry()
	r.Start(LiveUser{UserID: 3, Username: "carol"})
	r.Start(LiveUser{UserID: 1, Username: "alice"})
	r.Start(LiveUser{UserID: 2, Username: "bob"})

	active := r.Active()
	require.Len(t, active, 3)
	assert.EqualValues(t, 3, active[0].UserID)
	assert.EqualValues(t, 1, active[1].UserID)
	assert.EqualValues(t, 2, active[2].UserID)
}

func TestRegistryConcurrentAccess(t *testing.T) {
	r := NewRegistry()

	var wg sync.WaitGroup
	for i := 1; i <= 50; i++ {
		wg.Add(1)
		go func(id uint) {
			defer wg.Done()
			r.Start(LiveUser{UserID: id, Username: "user"})
			r.Active()
			if id%2 == 0 {
				r.Stop(id)
			}
		}(uint(i))
	}
	wg.Wait()

	assert.Len(t, r.Active(), 25)
}

type recordingBroadcaster struct {
	mu     sync.Mutex
	events []string
}

func (b *recordingBroadcaster) Broadcast(event string, data interface{}) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.events = append(b.events, event)
}

func newTestHandler() (*LiveHandler, *recordingBroadcaster) {
	b := &recordingBroadcaster{}
	h := NewLiveHandler()
	h.broadcaster = b
	return h, b
}

func do(t *testing.T, router *mux.Router, method, target string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}

	req := httptest.NewRequest(method, target, &buf)
	req.Header.Set("Content-Type", "application/json")
	token, err := utils.GenerateJWT(1, time.Hour)
	require.NoError(t, err)
	req.Header.Set("Authorization", "Bearer "+token)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func TestStartStopBroadcastsEvents(t *testing.T) {
	t.Setenv("SECRET_KEY", "test-secret")

	h, b := newTestHandler()
	router := mux.NewRouter()
	h.RegisterRoutes(router)

	rec := do(t, router, http.MethodPost, "/live/start",
		map[string]interface{}{"userId": 1, "username": "alice"})
	require.Equal(t, http.StatusOK, rec.Code)

	// starting twice does not re-announce
	rec = do(t, router, http.MethodPost, "/live/start",
		map[string]interface{}{"userId": 1, "username": "alice"})
	require.Equal(t, http.StatusOK, rec.Code)

	rec = do(t, router, http.MethodPost, "/live/join",
		map[string]interface{}{"liveId": 1, "username": "bob"})
	require.Equal(t, http.StatusOK, rec.Code)

	rec = do(t, router, http.MethodPost, "/live/join",
		map[string]interface{}{"liveId": 42, "username": "bob"})
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = do(t, router, http.MethodPost, "/live/stop",
		map[string]interface{}{"userId": 1})
	require.Equal(t, http.StatusOK, rec.Code)

	assert.Equal(t, []string{"notify-live", "user-joined", "end-live"}, b.events)
}

func TestGetActiveListsLiveUsers(t *testing.T) {
	t.Setenv("SECRET_KEY", "test-secret")

	h, _ := newTestHandler()
	router := mux.NewRouter()
	h.RegisterRoutes(router)

	do(t, router, http.MethodPost, "/live/start",
		map[string]interface{}{"userId": 1, "username": "alice"})

	req := httptest.NewRequest(http.MethodGet, "/live/active", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		ActiveLiveUsers []LiveUser `json:"activeLiveUsers"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Len(t, resp.ActiveLiveUsers, 1)
	assert.Equal(t, "alice", resp.ActiveLiveUsers[0].Username)
}
