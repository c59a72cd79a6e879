package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfigMissingFile(t *testing.T) {
	cfg, err := LoadConfig(filepath.Join(t.TempDir(), "nope.toml"))
	require.NoError(t, err)
	assert.Nil(t, cfg.Client.ServerURL)

	_, err = LoadConfig("")
	assert.Error(t, err)
}

func TestLoadConfigSections(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	require.NoError(t, os.WriteFile(path, []byte(`
[client]
server-url = "http://localhost:9000"
role = "student"
probe-interval = "2s"

[server]
addr = ":9000"
`), 0o644))

	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	require.NotNil(t, cfg.Client.ServerURL)
	assert.Equal(t, "http://localhost:9000", *cfg.Client.ServerURL)
	assert.Equal(t, "student", *cfg.Client.Role)
	assert.Equal(t, "2s", *cfg.Client.ProbeInterval)
	assert.Nil(t, cfg.Client.UserID)
	assert.Equal(t, ":9000", *cfg.Server.Addr)
}

func TestLoadConfigRejectsBadTOML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	require.NoError(t, os.WriteFile(path, []byte("[client\nrole = 1"), 0o644))
	_, err := LoadConfig(path)
	assert.Error(t, err)
}

func TestEnvOverridesFile(t *testing.T) {
	t.Setenv("BALANCE_SERVER_URL", "https://game.example")
	t.Setenv("BALANCE_LOG_LEVEL", "debug")
	t.Setenv("BALANCE_USER_ID", "")

	fileURL := "http://localhost:8080"
	fileUser := "s1"
	fc := FileConfig{Client: ClientConfig{ServerURL: &fileURL, UserID: &fileUser}}

	env, err := LoadEnv()
	require.NoError(t, err)
	merged := env.Overlay(fc)

	assert.Equal(t, "https://game.example", *merged.Client.ServerURL)
	assert.Equal(t, "s1", *merged.Client.UserID)
	assert.Equal(t, "debug", *merged.Client.LogLevel)
	assert.Equal(t, "debug", *merged.Server.LogLevel)
	assert.Nil(t, merged.Server.Addr)
	assert.Equal(t, "http://localhost:8080", fileURL)
}

func TestXDGPaths(t *testing.T) {
	t.Setenv("XDG_CONFIG_HOME", "/tmp/cfg")
	t.Setenv("XDG_DATA_HOME", "/tmp/data")
	assert.Equal(t, filepath.Join("/tmp/cfg", "balance", "config.toml"), DefaultConfigPath())
	assert.Equal(t, filepath.Join("/tmp/data", "balance", "balance.db"), DefaultDBPath())
	assert.Equal(t, filepath.Join("/tmp/data", "balance", "server.db"), DefaultServerDBPath())
	assert.Equal(t, filepath.Join("/tmp/data", "balance", "balance.log"), DefaultLogPath())
}
