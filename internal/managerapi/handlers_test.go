package managerapi_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xjtu-graphics/judgerd/internal/domain"
	"github.com/xjtu-graphics/judgerd/internal/managerapi"
	"github.com/xjtu-graphics/judgerd/internal/store"
	"github.com/xjtu-graphics/judgerd/internal/webclient"
)

func testPool(t *testing.T) *pgxpool.Pool {
	t.Helper()
	url := os.Getenv("DATABASE_URL")
	if url == "" {
		t.Skip("DATABASE_URL not set, skipping integration test")
	}
	ctx := context.Background()
	pool, err := store.NewPool(ctx, url)
	require.NoError(t, err)
	t.Cleanup(pool.Close)
	require.NoError(t, store.Migrate(ctx, pool))
	return pool
}

func newServer(t *testing.T, webBackendURL string) *managerapi.Server {
	pool := testPool(t)
	var client *webclient.Client
	if webBackendURL != "" {
		client = webclient.NewClient(webBackendURL, "acct", "pw", webclient.NewTokenCache(t.TempDir(), "manager"))
	}
	return &managerapi.Server{Store: store.New(pool), WebClient: client}
}

func TestHandleJudgeSubmission_CreatesTask(t *testing.T) {
	srv := newServer(t, "")
	r := managerapi.NewRouter(srv)

	req := httptest.NewRequest(http.MethodPost, "/api/judge/42", nil)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusAccepted, rec.Code)
}

func TestHandleJudgeSubmission_InvalidID(t *testing.T) {
	srv := newServer(t, "")
	r := managerapi.NewRouter(srv)

	req := httptest.NewRequest(http.MethodPost, "/api/judge/not-a-number", nil)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHandleExecutorHeartbeat_UpsertsAndRejectsBadJSON(t *testing.T) {
	srv := newServer(t, "")
	r := managerapi.NewRouter(srv)

	req := httptest.NewRequest(http.MethodPost, "/api/judge/executors", strings.NewReader(`{"hostname":"h1","is_alive":true}`))
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)

	req2 := httptest.NewRequest(http.MethodPost, "/api/judge/executors", strings.NewReader(`not json`))
	rec2 := httptest.NewRecorder()
	r.ServeHTTP(rec2, req2)
	assert.Equal(t, http.StatusBadRequest, rec2.Code)
}

func TestHandleJudgeResult_UnknownExecutorReturns404(t *testing.T) {
	srv := newServer(t, "")
	r := managerapi.NewRouter(srv)

	req := httptest.NewRequest(http.MethodPost, "/api/judge/1/result", strings.NewReader(`{"result":"passed","log":""}`))
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestHandleJudgeResult_MarksIdleAndForwards(t *testing.T) {
	mux := http.NewServeMux()
	var forwardedResult string
	mux.HandleFunc("/login", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(webclient.Tokens{AccessToken: "tok", RefreshToken: "refresh"})
	})
	mux.HandleFunc("/api/judgments/7/result", func(w http.ResponseWriter, r *http.Request) {
		var body map[string]string
		json.NewDecoder(r.Body).Decode(&body)
		forwardedResult = body["result"]
		w.WriteHeader(http.StatusOK)
	})
	webBackend := httptest.NewServer(mux)
	defer webBackend.Close()

	srv := newServer(t, webBackend.URL)
	r := managerapi.NewRouter(srv)
	ctx := context.Background()
	require.NoError(t, srv.Store.UpsertHeartbeat(ctx, "192.0.2.1", domain.HeartbeatPayload{IsAlive: true}))

	req := httptest.NewRequest(http.MethodPost, "/api/judge/7/result", strings.NewReader(`{"result":"passed","log":"ok"}`))
	req.RemoteAddr = "192.0.2.1:54321"
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)

	exec, err := srv.Store.GetExecutorByIP(ctx, "192.0.2.1")
	require.NoError(t, err)
	assert.True(t, exec.Idle)

	// forwardResult runs synchronously in the handler, so by the time
	// ServeHTTP returns the POST to the web backend has already completed.
	assert.Equal(t, "passed", forwardedResult)
}
