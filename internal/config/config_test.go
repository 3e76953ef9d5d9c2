package config

import (
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/fjacquet/mediagen/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testConfigYAML = `
appEnv: development
server:
  host: 127.0.0.1
  port: "9000"
provider:
  model: black-forest-labs/flux-schnell
retry:
  maxRetries: 5
`

func writeConfigFile(t *testing.T, dir, content string) string {
	t.Helper()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoad(t *testing.T) {
	path := writeConfigFile(t, t.TempDir(), testConfigYAML)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, models.EnvDevelopment, cfg.AppEnv)
	assert.Equal(t, "127.0.0.1:9000", cfg.GetServerAddress())
	assert.Equal(t, 5, cfg.Retry.MaxRetries)
	assert.Equal(t, models.StorageS3, cfg.Storage.Backend, "defaults fill unset fields")
}

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.NoError(t, err)
	assert.Equal(t, models.EnvDevelopment, cfg.AppEnv)
}

func TestLoadEnvOverride(t *testing.T) {
	path := writeConfigFile(t, t.TempDir(), testConfigYAML)
	t.Setenv("MAX_RETRIES", "7")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 7, cfg.Retry.MaxRetries)
}

func TestLoadInvalidYAML(t *testing.T) {
	path := writeConfigFile(t, t.TempDir(), "appEnv: [not: closed")

	_, err := Load(path)
	assert.Error(t, err)
}

func TestWatchReloadsOnChange(t *testing.T) {
	dir := t.TempDir()
	path := writeConfigFile(t, dir, testConfigYAML)

	var (
		mu       sync.Mutex
		reloaded []models.Config
	)
	watcher, err := Watch(path, func(cfg models.Config) {
		mu.Lock()
		defer mu.Unlock()
		reloaded = append(reloaded, cfg)
	})
	require.NoError(t, err)
	defer watcher.Close()

	writeConfigFile(t, dir, testConfigYAML+"  backoffBase: 3\n")

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(reloaded) > 0
	}, 2*time.Second, 20*time.Millisecond, "watcher should observe the rewrite")

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, 3, reloaded[len(reloaded)-1].Retry.BackoffBase)
}

func TestWatchIgnoresBrokenRewrite(t *testing.T) {
	dir := t.TempDir()
	path := writeConfigFile(t, dir, testConfigYAML)

	calls := make(chan models.Config, 1)
	watcher, err := Watch(path, func(cfg models.Config) {
		calls <- cfg
	})
	require.NoError(t, err)
	defer watcher.Close()

	writeConfigFile(t, dir, "appEnv: [broken")

	select {
	case cfg := <-calls:
		t.Fatalf("reload delivered a broken configuration: %+v", cfg)
	case <-time.After(300 * time.Millisecond):
	}
}
