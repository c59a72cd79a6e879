// Package store handles SQLite persistence.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/verte-zerg/balance/internal/model"
	"github.com/verte-zerg/balance/internal/progress"

	_ "modernc.org/sqlite" // SQLite driver.
)

// Store wraps SQLite access for the pending progress slot, sync history and, on the
// development server, user progress.
type Store struct {
	db *sql.DB
}

var _ progress.Store = (*Store)(nil)

// Open opens or creates the SQLite database and applies migrations.
func Open(path string) (*Store, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, progress.Unavailable("create db dir", err)
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, progress.Unavailable("open db", err)
	}
	// A single connection keeps pragmas in effect and serializes writers.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	store := &Store{db: db}
	if err := store.migrate(); err != nil {
		if cerr := db.Close(); cerr != nil {
			// Best-effort close on migration failure.
			_ = cerr
		}
		return nil, progress.Unavailable("migrate db", err)
	}
	return store, nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) migrate() error {
	stmts := []string{
		`PRAGMA busy_timeout = 5000;`,
		`PRAGMA journal_mode = WAL;`,
		`PRAGMA synchronous = FULL;`,
		`CREATE TABLE IF NOT EXISTS pending_progress (
			slot TEXT PRIMARY KEY,
			payload TEXT NOT NULL,
			saved_at TEXT NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS sync_attempts (
			id INTEGER PRIMARY KEY,
			attempted_at TEXT NOT NULL,
			ok INTEGER NOT NULL,
			error TEXT NOT NULL,
			level INTEGER NOT NULL,
			xp INTEGER NOT NULL,
			questions_correct INTEGER NOT NULL,
			questions_attempted INTEGER NOT NULL,
			snapshot_at TEXT NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS meta (
			key TEXT PRIMARY KEY,
			value TEXT NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS user_progress (
			user_id TEXT PRIMARY KEY,
			current_level INTEGER NOT NULL,
			current_score INTEGER NOT NULL,
			streak INTEGER NOT NULL,
			total_problems INTEGER NOT NULL,
			questions_correct INTEGER NOT NULL,
			last_snapshot_at TEXT NOT NULL
		);`,
		`CREATE INDEX IF NOT EXISTS idx_sync_attempts_attempted_at ON sync_attempts(attempted_at);`,
	}
	for _, stmt := range stmts {
		if _, err := s.db.Exec(stmt); err != nil {
			return err
		}
	}
	return nil
}

// Save overwrites the pending progress record.
func (s *Store) Save(ctx context.Context, p model.LocalProgress) error {
	payload, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("encode progress: %w", err)
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO pending_progress (slot, payload, saved_at) VALUES (?, ?, ?)
		 ON CONFLICT(slot) DO UPDATE SET payload = excluded.payload, saved_at = excluded.saved_at`,
		progress.StorageKey, string(payload), time.Now().UTC().Format(time.RFC3339Nano))
	if err != nil {
		return progress.Unavailable("save progress", err)
	}
	return nil
}

// Load returns the pending progress record, if any.
func (s *Store) Load(ctx context.Context) (model.LocalProgress, bool, error) {
	var payload string
	err := s.db.QueryRowContext(ctx,
		`SELECT payload FROM pending_progress WHERE slot = ?`, progress.StorageKey).Scan(&payload)
	if errors.Is(err, sql.ErrNoRows) {
		return model.LocalProgress{}, false, nil
	}
	if err != nil {
		return model.LocalProgress{}, false, progress.Unavailable("load progress", err)
	}
	var p model.LocalProgress
	if err := json.Unmarshal([]byte(payload), &p); err != nil {
		return model.LocalProgress{}, false, fmt.Errorf("decode progress: %w", err)
	}
	return p, true, nil
}

// Clear removes the pending progress record. Clearing an empty slot is a no-op.
func (s *Store) Clear(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM pending_progress WHERE slot = ?`, progress.StorageKey); err != nil {
		return progress.Unavailable("clear progress", err)
	}
	return nil
}

// ClearIfMatch removes the pending record only when it still equals p.
func (s *Store) ClearIfMatch(ctx context.Context, p model.LocalProgress) (bool, error) {
	payload, err := json.Marshal(p)
	if err != nil {
		return false, fmt.Errorf("encode progress: %w", err)
	}
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM pending_progress WHERE slot = ? AND payload = ?`, progress.StorageKey, string(payload))
	if err != nil {
		return false, progress.Unavailable("clear progress", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, progress.Unavailable("clear progress", err)
	}
	return n > 0, nil
}
