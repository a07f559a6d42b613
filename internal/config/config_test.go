package config

import (
	"io/fs"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfigMissingFile(t *testing.T) {
	cfg, err := LoadConfig(filepath.Join(t.TempDir(), "config.toml"))
	assert.ErrorIs(t, err, fs.ErrNotExist)
	assert.Equal(t, Defaults(), cfg)
}

func TestLoadConfigOverridesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	require.NoError(t, os.WriteFile(path, []byte(`
Username = "peppy"
SavePath = "/srv/osu"
Concurrency = 0
NoVideo = false
`), 0600))

	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, "peppy", cfg.Username)
	assert.Equal(t, "/srv/osu", cfg.SavePath)
	assert.False(t, cfg.NoVideo)
	assert.Equal(t, 4, cfg.Concurrency, "invalid concurrency falls back")
	assert.Equal(t, Defaults().DatabasePath, cfg.DatabasePath)
}

func TestLoadConfigInvalid(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	require.NoError(t, os.WriteFile(path, []byte("Username = "), 0600))

	_, err := LoadConfig(path)
	assert.Error(t, err)
	assert.NotErrorIs(t, err, fs.ErrNotExist)
}

func TestSaveConfigRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "config.toml")
	cfg := Defaults()
	cfg.Username = "Cookie Bacon [x]"
	cfg.Concurrency = 8

	require.NoError(t, SaveConfig(path, cfg))
	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0600), info.Mode().Perm())

	got, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, cfg, got)

	require.NoError(t, RemoveConfig(path))
	require.NoError(t, RemoveConfig(path))
	assert.NoFileExists(t, path)
}
