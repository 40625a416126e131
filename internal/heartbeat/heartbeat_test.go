package heartbeat_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xjtu-graphics/judgerd/internal/domain"
	"github.com/xjtu-graphics/judgerd/internal/heartbeat"
)

func TestReporter_ReportsIsAliveFalseWhenLocalProbeFails(t *testing.T) {
	var got domain.HeartbeatPayload
	received := make(chan struct{}, 1)

	manager := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.WriteHeader(http.StatusOK)
		received <- struct{}{}
	}))
	defer manager.Close()

	host, portStr, err := splitHostPort(manager.URL)
	require.NoError(t, err)
	port, err := strconv.Atoi(portStr)
	require.NoError(t, err)

	// executorPort 1 has nothing listening on loopback, so the self-probe
	// must fail and is_alive must come back false.
	r := heartbeat.New(host, port, 1, 20*time.Millisecond)
	r.Start(context.Background())
	defer r.Stop()

	select {
	case <-received:
	case <-time.After(2 * time.Second):
		t.Fatal("manager never received a heartbeat report")
	}

	assert.False(t, got.IsAlive)
}

func TestReporter_ReportsIsAliveTrueWhenLocalProbeSucceeds(t *testing.T) {
	var got domain.HeartbeatPayload
	received := make(chan struct{}, 1)

	manager := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewDecoder(r.Body).Decode(&got)
		w.WriteHeader(http.StatusOK)
		received <- struct{}{}
	}))
	defer manager.Close()

	executor := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer executor.Close()

	mHost, mPortStr, err := splitHostPort(manager.URL)
	require.NoError(t, err)
	mPort, err := strconv.Atoi(mPortStr)
	require.NoError(t, err)

	_, ePortStr, err := splitHostPort(executor.URL)
	require.NoError(t, err)
	ePort, err := strconv.Atoi(ePortStr)
	require.NoError(t, err)

	r := heartbeat.New(mHost, mPort, ePort, 20*time.Millisecond)
	r.Start(context.Background())
	defer r.Stop()

	select {
	case <-received:
	case <-time.After(2 * time.Second):
		t.Fatal("manager never received a heartbeat report")
	}

	assert.True(t, got.IsAlive)
}

func splitHostPort(rawURL string) (string, string, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", "", err
	}
	return u.Hostname(), u.Port(), nil
}
