package config_test

import (
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xjtu-graphics/judgerd/internal/config"
)

func clearEnv(t *testing.T) {
	t.Helper()
	for _, k := range []string{
		"MANAGER_IP", "MANAGER_PORT", "EXECUTOR_PORT", "WEB_SERVER_IP",
		"WEB_SERVER_PORT", "WEB_ACCOUNT", "WEB_PASSWORD", "TMP_DIR", "LOG_DIR",
		"KEEP_ALIVE_INTERVAL", "PARALLEL_BUILD", "SQLALCHEMY_DATABASE_URI",
		"JUDGERD_CONFIG",
	} {
		t.Setenv(k, "")
	}
}

func TestLoadManager_Defaults(t *testing.T) {
	clearEnv(t)
	t.Setenv("SQLALCHEMY_DATABASE_URI", "postgres://localhost/judger")
	t.Setenv("MANAGER_IP", "127.0.0.1")

	cfg, err := config.LoadManager("")
	require.NoError(t, err)
	assert.Equal(t, 10010, cfg.ManagerPort)
	assert.Equal(t, 10011, cfg.ExecutorPort)
	assert.Equal(t, "/tmp", cfg.TmpDir)
	assert.Equal(t, "postgres://localhost/judger", cfg.DatabaseURL)
}

func TestLoadManager_MissingDatabaseURL(t *testing.T) {
	clearEnv(t)
	_, err := config.LoadManager("")
	require.Error(t, err)
}

func TestLoadExecutor_RequiresManagerIP(t *testing.T) {
	clearEnv(t)
	_, err := config.LoadExecutor("")
	require.Error(t, err)
}

func TestLoadExecutor_Defaults(t *testing.T) {
	clearEnv(t)
	t.Setenv("MANAGER_IP", "10.0.0.1")
	t.Setenv("KEEP_ALIVE_INTERVAL", "2")

	cfg, err := config.LoadExecutor("")
	require.NoError(t, err)
	assert.Equal(t, "10.0.0.1:10010", cfg.ManagerAddr())
	assert.Equal(t, 2*60, int(cfg.KeepAliveInterval.Seconds()))
}

func TestResolvePath(t *testing.T) {
	clearEnv(t)
	assert.Equal(t, "", config.ResolvePath())

	t.Setenv("JUDGERD_CONFIG", "/tmp/does-not-matter.yaml")
	assert.Equal(t, "/tmp/does-not-matter.yaml", config.ResolvePath())
}

func TestLoadManager_InvalidTmpDir(t *testing.T) {
	clearEnv(t)
	t.Setenv("SQLALCHEMY_DATABASE_URI", "postgres://localhost/judger")
	t.Setenv("TMP_DIR", "/does/not/exist/at/all")
	_, err := config.LoadManager("")
	require.Error(t, err)
}

func TestLoadManager_FileOverlay(t *testing.T) {
	clearEnv(t)
	t.Setenv("SQLALCHEMY_DATABASE_URI", "postgres://localhost/judger")

	dir := t.TempDir()
	path := dir + "/judgerd.yaml"
	require.NoError(t, os.WriteFile(path, []byte("manager_ip: 192.168.1.1\nmanager_port: 20010\n"), 0o644))

	cfg, err := config.LoadManager(path)
	require.NoError(t, err)
	assert.Equal(t, "192.168.1.1", cfg.ManagerIP)
	assert.Equal(t, 20010, cfg.ManagerPort)
}
