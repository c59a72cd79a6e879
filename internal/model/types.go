// Package model defines shared data structures.
package model

import (
	"encoding/json"
	"time"
)

// LocalProgress is the single unsynchronized progress snapshot kept on the device.
// Counters are absolute totals, not deltas.
type LocalProgress struct {
	Level              int
	XP                 int
	QuestionsCorrect   int
	QuestionsAttempted int
	Timestamp          time.Time
}

type localProgressJSON struct {
	Level              int   `json:"level"`
	XP                 int   `json:"xp"`
	QuestionsCorrect   int   `json:"questionsCorrect"`
	QuestionsAttempted int   `json:"questionsAttempted"`
	Timestamp          int64 `json:"timestamp"`
}

// MarshalJSON encodes the timestamp as unix milliseconds.
func (p LocalProgress) MarshalJSON() ([]byte, error) {
	return json.Marshal(localProgressJSON{
		Level:              p.Level,
		XP:                 p.XP,
		QuestionsCorrect:   p.QuestionsCorrect,
		QuestionsAttempted: p.QuestionsAttempted,
		Timestamp:          p.Timestamp.UnixMilli(),
	})
}

// UnmarshalJSON decodes the wire form produced by MarshalJSON.
func (p *LocalProgress) UnmarshalJSON(data []byte) error {
	var raw localProgressJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	*p = LocalProgress{
		Level:              raw.Level,
		XP:                 raw.XP,
		QuestionsCorrect:   raw.QuestionsCorrect,
		QuestionsAttempted: raw.QuestionsAttempted,
		Timestamp:          time.UnixMilli(raw.Timestamp).UTC(),
	}
	return nil
}

// Equal reports whether two snapshots carry the same values.
func (p LocalProgress) Equal(other LocalProgress) bool {
	return p.Level == other.Level &&
		p.XP == other.XP &&
		p.QuestionsCorrect == other.QuestionsCorrect &&
		p.QuestionsAttempted == other.QuestionsAttempted &&
		p.Timestamp.UnixMilli() == other.Timestamp.UnixMilli()
}

// LevelConfig holds the threshold and number range of one level.
type LevelConfig struct {
	RequiredScore int    `json:"requiredScore" yaml:"required-score"`
	TargetRange   [2]int `json:"targetRange" yaml:"target-range"`
}

// GameConfig defines the rules of a play session. It is fetched once per session.
type GameConfig struct {
	MinValue                  int                 `json:"minValue" yaml:"min-value"`
	MaxValue                  int                 `json:"maxValue" yaml:"max-value"`
	NumOptions                int                 `json:"numOptions" yaml:"num-options"`
	TimeLimitSeconds          float64             `json:"timeLimit" yaml:"time-limit"`
	VisualFeedbackSensitivity float64             `json:"visualFeedbackSensitivity" yaml:"visual-feedback-sensitivity"`
	Levels                    map[int]LevelConfig `json:"levels" yaml:"levels"`
}

// TimeLimit returns the per-problem time limit.
func (c GameConfig) TimeLimit() time.Duration {
	return time.Duration(c.TimeLimitSeconds * float64(time.Second))
}

// Problem is one arithmetic task: pick options that add up to TargetNumber.
type Problem struct {
	ID           string `json:"id"`
	TargetNumber int    `json:"targetNumber"`
	Options      []int  `json:"options"`
	// Local is set for problems generated on the device; the server never saw them.
	Local bool `json:"-"`
}

// SubmitRequest is the body of POST /game/submit.
type SubmitRequest struct {
	UserID          string `json:"userId"`
	ProblemID       string `json:"problemId"`
	SelectedOptions []int  `json:"selectedOptions"`
}

// SubmitResult is produced once per answer.
type SubmitResult struct {
	Correct   bool    `json:"correct"`
	Feedback  string  `json:"feedback"`
	TiltAngle float64 `json:"tiltAngle"`
	NewStreak int     `json:"newStreak"`
	NewScore  int     `json:"newScore"`
	NewLevel  int     `json:"newLevel"`
}

// UserProgress is the server-authoritative progress of a user.
type UserProgress struct {
	CurrentLevel     int `json:"currentLevel"`
	CurrentScore     int `json:"currentScore"`
	Streak           int `json:"streak"`
	TotalProblems    int `json:"totalProblems"`
	QuestionsCorrect int `json:"questionsCorrect"`
}

// SyncAttempt records one reconciliation attempt.
type SyncAttempt struct {
	ID          int64
	AttemptedAt time.Time
	OK          bool
	Error       string
	Progress    LocalProgress
}
