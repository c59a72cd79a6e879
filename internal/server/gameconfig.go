package server

import (
	"errors"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/verte-zerg/balance/internal/leveling"
	"github.com/verte-zerg/balance/internal/model"
)

// LoadGameConfig reads a YAML game configuration. Fields missing from the file keep
// their built-in defaults; a file with a levels section replaces the default levels.
// An empty path or a missing file yields the built-in configuration.
func LoadGameConfig(path string) (model.GameConfig, error) {
	cfg := leveling.DefaultConfig()
	if path == "" {
		return cfg, nil
	}
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return cfg, nil
	}
	if err != nil {
		return model.GameConfig{}, fmt.Errorf("read game config: %w", err)
	}

	defaultLevels := cfg.Levels
	cfg.Levels = nil
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return model.GameConfig{}, fmt.Errorf("parse game config %s: %w", path, err)
	}
	if len(cfg.Levels) == 0 {
		cfg.Levels = defaultLevels
	}
	if err := leveling.ValidateConfig(cfg); err != nil {
		return model.GameConfig{}, fmt.Errorf("invalid game config %s: %w", path, err)
	}
	return cfg, nil
}
