package server

import (
	"fmt"

	"github.com/verte-zerg/balance/internal/leveling"
	"github.com/verte-zerg/balance/internal/model"
	"github.com/verte-zerg/balance/internal/store"
)

// validateSnapshot rejects snapshots no client could have produced.
func validateSnapshot(p model.LocalProgress) error {
	switch {
	case p.Level < 1:
		return fmt.Errorf("level must be >= 1, got %d", p.Level)
	case p.XP < 0:
		return fmt.Errorf("xp must be >= 0, got %d", p.XP)
	case p.QuestionsCorrect < 0 || p.QuestionsAttempted < 0:
		return fmt.Errorf("question counts must be >= 0")
	case p.QuestionsCorrect > p.QuestionsAttempted:
		return fmt.Errorf("questionsCorrect %d exceeds questionsAttempted %d", p.QuestionsCorrect, p.QuestionsAttempted)
	case p.Timestamp.IsZero():
		return fmt.Errorf("timestamp is required")
	}
	return nil
}

// mergeSnapshot folds a client snapshot into the stored row. Snapshots carry absolute
// totals, so every field takes the larger value; a snapshot not newer than the last
// merged one changes nothing. Merging the same snapshot twice is a no-op.
func mergeSnapshot(row store.UserRow, p model.LocalProgress, levels map[int]model.LevelConfig) (store.UserRow, bool) {
	if !p.Timestamp.After(row.LastSnapshotAt) {
		return row, false
	}
	up := row.Progress
	up.CurrentScore = max(up.CurrentScore, p.XP)
	up.CurrentLevel = max(up.CurrentLevel, p.Level)
	up.CurrentLevel = leveling.NextLevel(up.CurrentScore, up.CurrentLevel, levels)
	up.TotalProblems = max(up.TotalProblems, p.QuestionsAttempted)
	up.QuestionsCorrect = max(up.QuestionsCorrect, p.QuestionsCorrect)

	row.Progress = up
	row.LastSnapshotAt = p.Timestamp
	return row, true
}
