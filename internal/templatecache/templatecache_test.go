package templatecache_test

import (
	"archive/zip"
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xjtu-graphics/judgerd/internal/templatecache"
	"github.com/xjtu-graphics/judgerd/internal/webclient"
)

func buildZip(t *testing.T, dirName string, files map[string]string) []byte {
	t.Helper()
	var buf bytes.Buffer
	w := zip.NewWriter(&buf)
	for name, content := range files {
		f, err := w.Create(dirName + "/" + name)
		require.NoError(t, err)
		_, err = f.Write([]byte(content))
		require.NoError(t, err)
	}
	require.NoError(t, w.Close())
	return buf.Bytes()
}

func newTestClient(t *testing.T, mux *http.ServeMux) (*webclient.Client, func()) {
	t.Helper()
	mux.HandleFunc("/login", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(webclient.Tokens{AccessToken: "tok"})
	})
	srv := httptest.NewServer(mux)
	client := webclient.NewClient(srv.URL, "acct", "pw", webclient.NewTokenCache(t.TempDir(), "executor"))
	return client, srv.Close
}

func TestCache_DownloadsAndUnpacksOnFirstFetch(t *testing.T) {
	zipBytes := buildZip(t, "myproj", map[string]string{"CMakeLists.txt": "# root"})

	mux := http.NewServeMux()
	mux.HandleFunc("/api/templates/1", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]string{"updated_at": "2026-01-01T00:00:00"})
	})
	mux.HandleFunc("/api/templates/1/download", func(w http.ResponseWriter, r *http.Request) {
		w.Write(zipBytes)
	})
	client, closeSrv := newTestClient(t, mux)
	defer closeSrv()

	cache, err := templatecache.New(client, t.TempDir())
	require.NoError(t, err)

	entry, err := cache.Get(context.Background(), 1)
	require.NoError(t, err)
	assert.Equal(t, "myproj", entry.DirName)
	assert.Equal(t, "2026-01-01T00:00:00", entry.UpdatedAt)
}

func TestCache_SkipsDownloadWhenCacheIsFresh(t *testing.T) {
	zipBytes := buildZip(t, "myproj", map[string]string{"CMakeLists.txt": "# root"})
	downloads := 0

	mux := http.NewServeMux()
	mux.HandleFunc("/api/templates/2", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]string{"updated_at": "2026-01-01T00:00:00"})
	})
	mux.HandleFunc("/api/templates/2/download", func(w http.ResponseWriter, r *http.Request) {
		downloads++
		w.Write(zipBytes)
	})
	client, closeSrv := newTestClient(t, mux)
	defer closeSrv()

	cache, err := templatecache.New(client, t.TempDir())
	require.NoError(t, err)

	_, err = cache.Get(context.Background(), 2)
	require.NoError(t, err)
	_, err = cache.Get(context.Background(), 2)
	require.NoError(t, err)

	assert.Equal(t, 1, downloads)
}

func TestCache_RedownloadsWhenRemoteIsNewer(t *testing.T) {
	updatedAt := "2026-01-01T00:00:00"
	downloads := 0

	mux := http.NewServeMux()
	mux.HandleFunc("/api/templates/3", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]string{"updated_at": updatedAt})
	})
	mux.HandleFunc("/api/templates/3/download", func(w http.ResponseWriter, r *http.Request) {
		downloads++
		w.Write(buildZip(t, "myproj", map[string]string{"v": "1"}))
	})
	client, closeSrv := newTestClient(t, mux)
	defer closeSrv()

	cache, err := templatecache.New(client, t.TempDir())
	require.NoError(t, err)

	_, err = cache.Get(context.Background(), 3)
	require.NoError(t, err)

	updatedAt = "2026-06-01T00:00:00"
	_, err = cache.Get(context.Background(), 3)
	require.NoError(t, err)

	assert.Equal(t, 2, downloads)
}

func TestCache_MalformedArchiveRejected(t *testing.T) {
	var buf bytes.Buffer
	w := zip.NewWriter(&buf)
	f1, _ := w.Create("dirA/file.txt")
	f1.Write([]byte("a"))
	f2, _ := w.Create("dirB/file.txt")
	f2.Write([]byte("b"))
	require.NoError(t, w.Close())

	mux := http.NewServeMux()
	mux.HandleFunc("/api/templates/4", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]string{"updated_at": "2026-01-01T00:00:00"})
	})
	mux.HandleFunc("/api/templates/4/download", func(w http.ResponseWriter, r *http.Request) {
		w.Write(buf.Bytes())
	})
	client, closeSrv := newTestClient(t, mux)
	defer closeSrv()

	cache, err := templatecache.New(client, t.TempDir())
	require.NoError(t, err)

	_, err = cache.Get(context.Background(), 4)
	require.Error(t, err)
	var malformed *templatecache.ErrMalformedTemplate
	assert.ErrorAs(t, err, &malformed)
}
