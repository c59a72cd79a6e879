// Package config provides configuration helpers and TOML parsing.
package config

import (
	"fmt"
	"os"

	"github.com/BurntSushi/toml"
)

// FileConfig represents the TOML configuration file.
type FileConfig struct {
	Client ClientConfig `toml:"client"`
	Server ServerConfig `toml:"server"`
}

// ClientConfig maps settings of play, sync and status.
type ClientConfig struct {
	ServerURL      *string `toml:"server-url"`
	UserID         *string `toml:"user-id"`
	Role           *string `toml:"role"`
	Name           *string `toml:"name"`
	Store          *string `toml:"store"`
	DB             *string `toml:"db"`
	RedisAddr      *string `toml:"redis-addr"`
	ProbeInterval  *string `toml:"probe-interval"`
	RequestTimeout *string `toml:"request-timeout"`
	LogLevel       *string `toml:"log-level"`
}

// ServerConfig maps settings of the development backend.
type ServerConfig struct {
	Addr       *string `toml:"addr"`
	DB         *string `toml:"db"`
	GameConfig *string `toml:"game-config"`
	LogLevel   *string `toml:"log-level"`
}

// LoadConfig reads a TOML config from the given path. Missing file is not an error.
func LoadConfig(path string) (FileConfig, error) {
	if path == "" {
		return FileConfig{}, fmt.Errorf("config path is empty")
	}
	if _, err := os.Stat(path); err != nil {
		if os.IsNotExist(err) {
			return FileConfig{}, nil
		}
		return FileConfig{}, fmt.Errorf("failed to stat config: %w", err)
	}
	var cfg FileConfig
	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return FileConfig{}, fmt.Errorf("failed to decode config: %w", err)
	}
	return cfg, nil
}
