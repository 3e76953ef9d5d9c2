// Package config loads the service configuration and supports live reload
// through SIGHUP and file watching.
package config

import (
	"github.com/fjacquet/mediagen/internal/models"
	"github.com/fjacquet/mediagen/internal/utils"
)

// Load reads the YAML file at path (when it exists), layers the environment
// overrides on top and validates the result. A missing file is not an
// error: a fully env-driven deployment carries no config file at all.
func Load(path string) (models.Config, error) {
	var cfg models.Config

	if path != "" && utils.FileExists(path) {
		if err := utils.ReadFile(&cfg, path); err != nil {
			return cfg, err
		}
	}

	cfg.ApplyEnv()
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}
