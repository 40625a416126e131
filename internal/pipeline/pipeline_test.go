package pipeline

import (
	"context"
	"encoding/json"
	"net"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xjtu-graphics/judgerd/internal/domain"
)

func TestRunCommand_CapturesCombinedOutputAndExitStatus(t *testing.T) {
	out, ok, err := runCommand(context.Background(), "sh", "-c", "echo hello; echo world 1>&2; exit 0")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Contains(t, out, "hello")
	assert.Contains(t, out, "world")
}

func TestRunCommand_NonZeroExitIsNotAnError(t *testing.T) {
	out, ok, err := runCommand(context.Background(), "sh", "-c", "echo boom; exit 1")
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Contains(t, out, "boom")
}

func TestRunCommand_MissingBinaryIsAnError(t *testing.T) {
	_, _, err := runCommand(context.Background(), "judgerd-definitely-not-a-real-binary")
	assert.Error(t, err)
}

func TestCleanup_RemovesWorkingDir(t *testing.T) {
	dir := t.TempDir()
	sub := filepath.Join(dir, "sub")
	require.NoError(t, os.MkdirAll(sub, 0o755))

	cleanup(dir)

	_, err := os.Stat(dir)
	assert.True(t, os.IsNotExist(err))
}

func TestReport_PostsVerdictToManager(t *testing.T) {
	var got domain.JudgmentResultReport
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/judge/42/result", r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	host, port := splitHostPort(t, srv.URL)
	report(context.Background(), host, port, 42, domain.ResultPassed, "all tests passed", []string{"int add(int a, int b) { return a + b; }"})

	assert.Equal(t, domain.ResultPassed, got.Result)
	assert.Equal(t, "all tests passed", got.Log)
	assert.Len(t, got.FunctionImpls, 1)
}

func splitHostPort(t *testing.T, rawURL string) (string, int) {
	t.Helper()
	u, err := url.Parse(rawURL)
	require.NoError(t, err)
	host, portStr, err := net.SplitHostPort(u.Host)
	require.NoError(t, err)
	port, err := strconv.Atoi(portStr)
	require.NoError(t, err)
	return host, port
}
