package fsutil

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGetDataDir_XDG(t *testing.T) {
	if isWindows() {
		t.Skip("XDG_DATA_HOME is not consulted on Windows")
	}
	base := t.TempDir()
	t.Setenv("XDG_DATA_HOME", base)

	dir, err := GetDataDir()
	require.NoError(t, err)
	if isDarwin() {
		assert.Equal(t, AppName, filepath.Base(dir))
		return
	}
	assert.Equal(t, filepath.Join(base, AppName), dir)
}

func TestGetConfigDir(t *testing.T) {
	dir, err := GetConfigDir()
	require.NoError(t, err)
	assert.Equal(t, AppName, filepath.Base(dir))
}

func TestResolveUnder(t *testing.T) {
	root := t.TempDir()
	abs := filepath.Join(root, "elsewhere")

	assert.Equal(t, filepath.Join(root, "plugins"), ResolveUnder(root, "plugins"))
	assert.Equal(t, filepath.Join(root, "a", "b"), ResolveUnder(root, filepath.Join("a", "b")))
	assert.Equal(t, abs, ResolveUnder("/ignored", abs))
}
