package store

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/verte-zerg/balance/internal/model"
)

// RecordSyncAttempt stores the outcome of one reconciliation attempt.
func (s *Store) RecordSyncAttempt(ctx context.Context, attempt model.SyncAttempt) (int64, error) {
	ok := 0
	if attempt.OK {
		ok = 1
	}
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO sync_attempts (attempted_at, ok, error, level, xp, questions_correct, questions_attempted, snapshot_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		attempt.AttemptedAt.UTC().Format(time.RFC3339Nano),
		ok,
		attempt.Error,
		attempt.Progress.Level,
		attempt.Progress.XP,
		attempt.Progress.QuestionsCorrect,
		attempt.Progress.QuestionsAttempted,
		attempt.Progress.Timestamp.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

// ListSyncAttempts returns the most recent attempts, oldest first. limit <= 0 returns all.
func (s *Store) ListSyncAttempts(ctx context.Context, limit int) ([]model.SyncAttempt, error) {
	if limit <= 0 {
		limit = -1
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, attempted_at, ok, error, level, xp, questions_correct, questions_attempted, snapshot_at
		 FROM (SELECT * FROM sync_attempts ORDER BY attempted_at DESC, id DESC LIMIT ?)
		 ORDER BY attempted_at ASC, id ASC`, limit)
	if err != nil {
		return nil, err
	}
	defer func() {
		if cerr := rows.Close(); cerr != nil {
			// Best-effort rows close.
			_ = cerr
		}
	}()

	var attempts []model.SyncAttempt
	for rows.Next() {
		var a model.SyncAttempt
		var attemptedAt, snapshotAt string
		var ok int
		if err := rows.Scan(&a.ID, &attemptedAt, &ok, &a.Error, &a.Progress.Level, &a.Progress.XP,
			&a.Progress.QuestionsCorrect, &a.Progress.QuestionsAttempted, &snapshotAt); err != nil {
			return nil, err
		}
		a.OK = ok == 1
		if a.AttemptedAt, err = time.Parse(time.RFC3339Nano, attemptedAt); err != nil {
			return nil, err
		}
		if a.Progress.Timestamp, err = time.Parse(time.RFC3339Nano, snapshotAt); err != nil {
			return nil, err
		}
		attempts = append(attempts, a)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return attempts, nil
}

// LastSyncTime returns the time of the most recent successful sync.
func (s *Store) LastSyncTime(ctx context.Context) (time.Time, bool, error) {
	var attemptedAt string
	err := s.db.QueryRowContext(ctx,
		`SELECT attempted_at FROM sync_attempts WHERE ok = 1 ORDER BY attempted_at DESC, id DESC LIMIT 1`).Scan(&attemptedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return time.Time{}, false, nil
	}
	if err != nil {
		return time.Time{}, false, err
	}
	t, err := time.Parse(time.RFC3339Nano, attemptedAt)
	if err != nil {
		return time.Time{}, false, err
	}
	return t, true, nil
}
