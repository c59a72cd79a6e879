package config

import (
	"fmt"

	"github.com/caarlos0/env/v11"
)

// EnvConfig holds overrides read from BALANCE_* environment variables. Empty values
// mean unset.
type EnvConfig struct {
	ServerURL  string `env:"BALANCE_SERVER_URL"`
	UserID     string `env:"BALANCE_USER_ID"`
	Role       string `env:"BALANCE_ROLE"`
	Name       string `env:"BALANCE_NAME"`
	Store      string `env:"BALANCE_STORE"`
	DB         string `env:"BALANCE_DB"`
	RedisAddr  string `env:"BALANCE_REDIS_ADDR"`
	LogLevel   string `env:"BALANCE_LOG_LEVEL"`
	ServerAddr string `env:"BALANCE_SERVER_ADDR"`
	GameConfig string `env:"BALANCE_GAME_CONFIG"`
}

// ParseEnv loads configuration from environment variables.
func ParseEnv(target any) error {
	if err := env.Parse(target); err != nil {
		return fmt.Errorf("parse env: %w", err)
	}
	return nil
}

// LoadEnv reads the BALANCE_* overrides.
func LoadEnv() (EnvConfig, error) {
	var cfg EnvConfig
	if err := ParseEnv(&cfg); err != nil {
		return EnvConfig{}, err
	}
	return cfg, nil
}

// Overlay returns fc with every set environment value taking precedence over the file.
func (e EnvConfig) Overlay(fc FileConfig) FileConfig {
	set := func(dst **string, v string) {
		if v != "" {
			*dst = &v
		}
	}
	set(&fc.Client.ServerURL, e.ServerURL)
	set(&fc.Client.UserID, e.UserID)
	set(&fc.Client.Role, e.Role)
	set(&fc.Client.Name, e.Name)
	set(&fc.Client.Store, e.Store)
	set(&fc.Client.DB, e.DB)
	set(&fc.Client.RedisAddr, e.RedisAddr)
	set(&fc.Client.LogLevel, e.LogLevel)
	set(&fc.Server.LogLevel, e.LogLevel)
	set(&fc.Server.Addr, e.ServerAddr)
	set(&fc.Server.GameConfig, e.GameConfig)
	return fc
}
