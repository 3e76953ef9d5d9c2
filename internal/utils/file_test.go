package utils

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/fjacquet/mediagen/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFileExists(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	assert.False(t, FileExists(path))

	require.NoError(t, os.WriteFile(path, []byte("appEnv: development\n"), 0o644))
	assert.True(t, FileExists(path))
}

func TestReadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("server:\n  port: \"9100\"\n"), 0o644))

	var cfg models.Config
	require.NoError(t, ReadFile(&cfg, path))
	assert.Equal(t, "9100", cfg.Server.Port)
}

func TestReadFileMissing(t *testing.T) {
	var cfg models.Config
	assert.Error(t, ReadFile(&cfg, filepath.Join(t.TempDir(), "absent.yaml")))
}
