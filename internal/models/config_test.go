package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidateDefaults(t *testing.T) {
	var cfg Config
	require.NoError(t, cfg.Validate())

	assert.Equal(t, EnvDevelopment, cfg.AppEnv)
	assert.Equal(t, "0.0.0.0:8000", cfg.GetServerAddress())
	assert.Equal(t, "stability-ai/sdxl", cfg.Provider.Model)
	assert.Equal(t, StorageS3, cfg.Storage.Backend)
	assert.Equal(t, 3, cfg.Retry.MaxRetries)
	assert.Equal(t, 300*time.Second, cfg.GetProviderTimeout())
	assert.Equal(t, time.Hour, cfg.GetPoolRecycle())
}

func TestValidateRejectsBadValues(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"bad environment", func(c *Config) { c.AppEnv = "testing" }},
		{"bad port", func(c *Config) { c.Server.Port = "eighty" }},
		{"port out of range", func(c *Config) { c.Server.Port = "70000" }},
		{"model without owner", func(c *Config) { c.Provider.Model = "sdxl" }},
		{"unparseable timeout", func(c *Config) { c.Provider.Timeout = "soon" }},
		{"unknown storage backend", func(c *Config) { c.Storage.Backend = "ftp" }},
		{"negative retries", func(c *Config) { c.Retry.MaxRetries = -1 }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var cfg Config
			cfg.SetDefaults()
			tt.mutate(&cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}

func TestValidateProductionRequiresToken(t *testing.T) {
	var cfg Config
	cfg.SetDefaults()
	cfg.AppEnv = EnvProduction
	assert.Error(t, cfg.Validate())

	cfg.Provider.APIToken = "r8_live_token_0123456789"
	assert.NoError(t, cfg.Validate())
}

func TestApplyEnvOverrides(t *testing.T) {
	t.Setenv("APP_ENV", "staging")
	t.Setenv("BROKER_URL", "redis://broker:6379/0")
	t.Setenv("MAX_RETRIES", "5")
	t.Setenv("S3_USE_SSL", "true")
	t.Setenv("ALLOWED_ORIGINS", "https://app.example.com, https://admin.example.com")

	var cfg Config
	cfg.ApplyEnv()

	assert.Equal(t, EnvStaging, cfg.AppEnv)
	assert.Equal(t, "redis://broker:6379/0", cfg.Broker.URL)
	assert.Equal(t, 5, cfg.Retry.MaxRetries)
	assert.True(t, cfg.Storage.S3UseSSL)
	assert.Equal(t, []string{"https://app.example.com", "https://admin.example.com"}, cfg.AllowedOrigins)
}

func TestMaskAPIToken(t *testing.T) {
	var cfg Config
	cfg.Provider.APIToken = "short"
	assert.Equal(t, "****", cfg.MaskAPIToken())

	cfg.Provider.APIToken = "r8_abcdefghijklmnop"
	masked := cfg.MaskAPIToken()
	assert.Equal(t, "r8_a****mnop", masked)
	assert.NotContains(t, masked, "bcdefghijkl")
}

func TestSplitModel(t *testing.T) {
	var cfg Config
	cfg.Provider.Model = "black-forest-labs/flux-schnell"
	name, version := cfg.SplitModel()
	assert.Equal(t, "black-forest-labs/flux-schnell", name)
	assert.Empty(t, version)

	cfg.Provider.Model = "stability-ai/sdxl:39ed52f2"
	name, version = cfg.SplitModel()
	assert.Equal(t, "stability-ai/sdxl", name)
	assert.Equal(t, "39ed52f2", version)
}
