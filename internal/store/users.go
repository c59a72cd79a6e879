package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/verte-zerg/balance/internal/model"
)

// UserRow is the server-side record behind a user's authoritative progress.
type UserRow struct {
	Progress model.UserProgress
	// LastSnapshotAt is the timestamp of the newest client snapshot merged so far.
	LastSnapshotAt time.Time
}

// NewUserRow is the starting record of a user the server has not seen before.
func NewUserRow() UserRow {
	return UserRow{Progress: model.UserProgress{CurrentLevel: 1}}
}

// GetUser returns the stored row for userID.
func (s *Store) GetUser(ctx context.Context, userID string) (UserRow, bool, error) {
	return getUser(ctx, s.db, userID)
}

// UpdateUser loads the row for userID (NewUserRow when absent), applies fn and writes
// the result back in one transaction.
func (s *Store) UpdateUser(ctx context.Context, userID string, fn func(UserRow) (UserRow, error)) (row UserRow, err error) {
	if userID == "" {
		return UserRow{}, fmt.Errorf("user id is empty")
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return UserRow{}, err
	}
	defer func() {
		if err != nil {
			if rerr := tx.Rollback(); rerr != nil {
				// Best-effort rollback.
				_ = rerr
			}
		}
	}()

	current, ok, err := getUser(ctx, tx, userID)
	if err != nil {
		return UserRow{}, err
	}
	if !ok {
		current = NewUserRow()
	}
	row, err = fn(current)
	if err != nil {
		return UserRow{}, err
	}
	_, err = tx.ExecContext(ctx,
		`INSERT INTO user_progress (user_id, current_level, current_score, streak, total_problems, questions_correct, last_snapshot_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(user_id) DO UPDATE SET
			current_level = excluded.current_level,
			current_score = excluded.current_score,
			streak = excluded.streak,
			total_problems = excluded.total_problems,
			questions_correct = excluded.questions_correct,
			last_snapshot_at = excluded.last_snapshot_at`,
		userID,
		row.Progress.CurrentLevel,
		row.Progress.CurrentScore,
		row.Progress.Streak,
		row.Progress.TotalProblems,
		row.Progress.QuestionsCorrect,
		row.LastSnapshotAt.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return UserRow{}, err
	}
	if err = tx.Commit(); err != nil {
		return UserRow{}, err
	}
	return row, nil
}

type queryRower interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func getUser(ctx context.Context, q queryRower, userID string) (UserRow, bool, error) {
	var row UserRow
	var lastSnapshotAt string
	err := q.QueryRowContext(ctx,
		`SELECT current_level, current_score, streak, total_problems, questions_correct, last_snapshot_at
		 FROM user_progress WHERE user_id = ?`, userID).Scan(
		&row.Progress.CurrentLevel,
		&row.Progress.CurrentScore,
		&row.Progress.Streak,
		&row.Progress.TotalProblems,
		&row.Progress.QuestionsCorrect,
		&lastSnapshotAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return UserRow{}, false, nil
	}
	if err != nil {
		return UserRow{}, false, err
	}
	if row.LastSnapshotAt, err = time.Parse(time.RFC3339Nano, lastSnapshotAt); err != nil {
		return UserRow{}, false, err
	}
	return row, true, nil
}
