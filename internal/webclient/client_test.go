package webclient_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xjtu-graphics/judgerd/internal/webclient"
)

func newCache(t *testing.T) *webclient.TokenCache {
	t.Helper()
	return webclient.NewTokenCache(t.TempDir(), "executor")
}

func TestClient_LoginOnFirstRequest(t *testing.T) {
	var loginCalls int32

	mux := http.NewServeMux()
	mux.HandleFunc("/login", func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&loginCalls, 1)
		json.NewEncoder(w).Encode(webclient.Tokens{AccessToken: "tok-1", RefreshToken: "ref-1"})
	})
	mux.HandleFunc("/api/judgments/42", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer tok-1", r.Header.Get("Authorization"))
		json.NewEncoder(w).Encode(map[string]any{"id": 42, "submission_id": 7})
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	c := webclient.NewClient(srv.URL, "acct", "pw", newCache(t))
	j, err := c.GetJudgment(context.Background(), 42)
	require.NoError(t, err)
	assert.Equal(t, int64(7), j.SubmissionID)
	assert.Equal(t, int32(1), atomic.LoadInt32(&loginCalls))
}

func TestClient_RefreshesOn401AndRetriesOnce(t *testing.T) {
	var requestCount int32

	mux := http.NewServeMux()
	mux.HandleFunc("/login", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(webclient.Tokens{AccessToken: "stale", RefreshToken: "ref-1"})
	})
	mux.HandleFunc("/refresh", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer ref-1", r.Header.Get("Authorization"))
		json.NewEncoder(w).Encode(webclient.Tokens{AccessToken: "fresh", RefreshToken: "ref-2"})
	})
	mux.HandleFunc("/api/judgments/1", func(w http.ResponseWriter, r *http.Request) {
		n := atomic.AddInt32(&requestCount, 1)
		if n == 1 {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		assert.Equal(t, "Bearer fresh", r.Header.Get("Authorization"))
		json.NewEncoder(w).Encode(map[string]any{"id": 1, "submission_id": 2})
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	cache := newCache(t)
	require.NoError(t, cache.Save(webclient.Tokens{AccessToken: "stale", RefreshToken: "ref-1"}))

	c := webclient.NewClient(srv.URL, "acct", "pw", cache)
	j, err := c.GetJudgment(context.Background(), 1)
	require.NoError(t, err)
	assert.Equal(t, int64(2), j.SubmissionID)
	assert.Equal(t, int32(2), atomic.LoadInt32(&requestCount))
}

func TestClient_PostJudgmentResult(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/login", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(webclient.Tokens{AccessToken: "tok", RefreshToken: "ref"})
	})
	mux.HandleFunc("/api/judgments/5/result", func(w http.ResponseWriter, r *http.Request) {
		var body map[string]string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "passed", body["result"])
		w.WriteHeader(http.StatusOK)
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	c := webclient.NewClient(srv.URL, "acct", "pw", newCache(t))
	require.NoError(t, c.PostJudgmentResult(context.Background(), 5, "passed", ""))
}
