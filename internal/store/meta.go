package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/verte-zerg/balance/internal/model"
)

const (
	deviceIDKey       = "device_id"
	gameConfigKey     = "game_config"
	userProgressKeyNS = "user_progress:"
)

// DeviceID returns the persistent identifier of this installation, creating it on
// first use. Anonymous players sync under it.
func (s *Store) DeviceID(ctx context.Context) (string, error) {
	var id string
	err := s.db.QueryRowContext(ctx, `SELECT value FROM meta WHERE key = ?`, deviceIDKey).Scan(&id)
	if err == nil {
		return id, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return "", err
	}
	id = "anon-" + uuid.NewString()
	// Another process may have raced us; keep whichever value landed first.
	if _, err := s.db.ExecContext(ctx,
		`INSERT INTO meta (key, value) VALUES (?, ?) ON CONFLICT(key) DO NOTHING`, deviceIDKey, id); err != nil {
		return "", err
	}
	if err := s.db.QueryRowContext(ctx, `SELECT value FROM meta WHERE key = ?`, deviceIDKey).Scan(&id); err != nil {
		return "", err
	}
	return id, nil
}

// SaveGameConfig caches the last configuration fetched from the server.
func (s *Store) SaveGameConfig(ctx context.Context, cfg model.GameConfig) error {
	payload, err := json.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("encode game config: %w", err)
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO meta (key, value) VALUES (?, ?) ON CONFLICT(key) DO UPDATE SET value = excluded.value`,
		gameConfigKey, string(payload))
	return err
}

// LoadGameConfig returns the cached configuration, if any.
func (s *Store) LoadGameConfig(ctx context.Context) (model.GameConfig, bool, error) {
	var payload string
	err := s.db.QueryRowContext(ctx, `SELECT value FROM meta WHERE key = ?`, gameConfigKey).Scan(&payload)
	if errors.Is(err, sql.ErrNoRows) {
		return model.GameConfig{}, false, nil
	}
	if err != nil {
		return model.GameConfig{}, false, err
	}
	var cfg model.GameConfig
	if err := json.Unmarshal([]byte(payload), &cfg); err != nil {
		return model.GameConfig{}, false, fmt.Errorf("decode game config: %w", err)
	}
	return cfg, true, nil
}

// SaveUserProgress remembers the last progress the server confirmed for userID.
// Sessions that start offline continue from it.
func (s *Store) SaveUserProgress(ctx context.Context, userID string, up model.UserProgress) error {
	payload, err := json.Marshal(up)
	if err != nil {
		return fmt.Errorf("encode user progress: %w", err)
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO meta (key, value) VALUES (?, ?) ON CONFLICT(key) DO UPDATE SET value = excluded.value`,
		userProgressKeyNS+userID, string(payload))
	return err
}

// LoadUserProgress returns the last confirmed progress of userID, if any.
func (s *Store) LoadUserProgress(ctx context.Context, userID string) (model.UserProgress, bool, error) {
	var payload string
	err := s.db.QueryRowContext(ctx, `SELECT value FROM meta WHERE key = ?`, userProgressKeyNS+userID).Scan(&payload)
	if errors.Is(err, sql.ErrNoRows) {
		return model.UserProgress{}, false, nil
	}
	if err != nil {
		return model.UserProgress{}, false, err
	}
	var up model.UserProgress
	if err := json.Unmarshal([]byte(payload), &up); err != nil {
		return model.UserProgress{}, false, fmt.Errorf("decode user progress: %w", err)
	}
	return up, true, nil
}
