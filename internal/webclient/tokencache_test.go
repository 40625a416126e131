package webclient_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xjtu-graphics/judgerd/internal/webclient"
)

func TestTokenCache_LoadMissingReturnsNil(t *testing.T) {
	c := webclient.NewTokenCache(t.TempDir(), "manager")
	toks, err := c.Load()
	require.NoError(t, err)
	assert.Nil(t, toks)
}

func TestTokenCache_SaveThenLoad(t *testing.T) {
	c := webclient.NewTokenCache(t.TempDir(), "manager")
	require.NoError(t, c.Save(webclient.Tokens{AccessToken: "a", RefreshToken: "r"}))

	toks, err := c.Load()
	require.NoError(t, err)
	require.NotNil(t, toks)
	assert.Equal(t, "a", toks.AccessToken)
	assert.Equal(t, "r", toks.RefreshToken)
}

func TestTokenCache_ScopedPerRole(t *testing.T) {
	dir := t.TempDir()
	mgr := webclient.NewTokenCache(dir, "manager")
	exe := webclient.NewTokenCache(dir, "executor")

	require.NoError(t, mgr.Save(webclient.Tokens{AccessToken: "mgr"}))
	toks, err := exe.Load()
	require.NoError(t, err)
	assert.Nil(t, toks)
}
