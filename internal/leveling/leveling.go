// Package leveling computes score, streak and level transitions for one answer.
//
// Everything here is a pure function of its arguments: no clock, no randomness and no
// I/O. The client and the development server share it, so an answer evaluated offline
// produces the same result the server would have returned.
package leveling

import (
	"fmt"
	"math"
	"sort"

	"github.com/verte-zerg/balance/internal/model"
)

const (
	// BaseIncrement is the score awarded for a correct answer at streak 1.
	BaseIncrement = 10
	// StreakBonus is added per consecutive correct answer after the first.
	StreakBonus = 2
	// MaxBonusSteps caps the streak bonus.
	MaxBonusSteps = 5

	tiltDegreesPerUnit = 6.0
	// MaxTilt bounds the tilt angle in degrees, in both directions.
	MaxTilt = 45.0
	// FarOffDistance is the distance from the target at which feedback stops hinting a direction.
	FarOffDistance = 5
)

// Feedback messages.
const (
	FeedbackLevelUp = "Level up! Great balancing!"
	FeedbackCorrect = "Correct! Keep up the good work!"
	FeedbackTooHigh = "Oops! Too much!"
	FeedbackTooLow  = "Not enough!"
	FeedbackFarOff  = "Try again!"
)

// State is the player's standing before an answer.
type State struct {
	Score  int
	Streak int
	Level  int
}

// Evaluate applies one answer to state. Correctness is decided by the caller.
// The config is assumed valid (see ValidateConfig).
func Evaluate(correct bool, selected []int, target int, state State, cfg model.GameConfig) model.SubmitResult {
	newStreak := 0
	newScore := state.Score
	if correct {
		newStreak = state.Streak + 1
		newScore = state.Score + ScoreIncrement(newStreak)
	}
	newLevel := NextLevel(newScore, state.Level, cfg.Levels)
	diff := Sum(selected) - target

	return model.SubmitResult{
		Correct:   correct,
		Feedback:  Feedback(correct, diff, newLevel > state.Level),
		TiltAngle: TiltAngle(diff, cfg.VisualFeedbackSensitivity),
		NewStreak: newStreak,
		NewScore:  newScore,
		NewLevel:  newLevel,
	}
}

// ScoreIncrement returns the points for a correct answer ending a streak of the given
// length. It is positive and non-decreasing in streak.
func ScoreIncrement(streak int) int {
	steps := streak - 1
	if steps < 0 {
		steps = 0
	}
	if steps > MaxBonusSteps {
		steps = MaxBonusSteps
	}
	return BaseIncrement + StreakBonus*steps
}

// NextLevel returns the highest level above current whose required score is reached,
// or current when there is none. Levels never go down.
func NextLevel(score, current int, levels map[int]model.LevelConfig) int {
	next := current
	for lvl, lc := range levels {
		if lvl > next && lc.RequiredScore <= score {
			next = lvl
		}
	}
	return next
}

// TiltAngle maps the signed difference between the selected sum and the target to a
// gauge angle in degrees. Positive means too much.
func TiltAngle(diff int, sensitivity float64) float64 {
	angle := float64(diff) * sensitivity * tiltDegreesPerUnit
	return math.Max(-MaxTilt, math.Min(MaxTilt, angle))
}

// Feedback picks the message for an answer.
func Feedback(correct bool, diff int, leveledUp bool) string {
	switch {
	case correct && leveledUp:
		return FeedbackLevelUp
	case correct:
		return FeedbackCorrect
	case diff >= FarOffDistance || diff <= -FarOffDistance:
		return FeedbackFarOff
	case diff > 0:
		return FeedbackTooHigh
	default:
		return FeedbackTooLow
	}
}

// Sum adds the selected values.
func Sum(values []int) int {
	total := 0
	for _, v := range values {
		total += v
	}
	return total
}

// ValidateConfig checks the invariants Evaluate relies on.
func ValidateConfig(cfg model.GameConfig) error {
	if len(cfg.Levels) == 0 {
		return fmt.Errorf("game config has no levels")
	}
	if cfg.NumOptions < 2 {
		return fmt.Errorf("numOptions must be >= 2, got %d", cfg.NumOptions)
	}
	if cfg.MinValue > cfg.MaxValue {
		return fmt.Errorf("minValue %d is greater than maxValue %d", cfg.MinValue, cfg.MaxValue)
	}
	if cfg.VisualFeedbackSensitivity < 0 {
		return fmt.Errorf("visualFeedbackSensitivity must be >= 0")
	}
	levels := LevelNumbers(cfg.Levels)
	if levels[0] < 1 {
		return fmt.Errorf("level numbers start at 1, got %d", levels[0])
	}
	prev := math.MinInt
	for _, lvl := range levels {
		lc := cfg.Levels[lvl]
		if lc.RequiredScore < prev {
			return fmt.Errorf("level %d requires %d, less than the level below it", lvl, lc.RequiredScore)
		}
		prev = lc.RequiredScore
		if lc.TargetRange[0] >= lc.TargetRange[1] {
			return fmt.Errorf("level %d target range [%d, %d] is empty", lvl, lc.TargetRange[0], lc.TargetRange[1])
		}
	}
	return nil
}

// LevelNumbers returns the configured level numbers in ascending order.
func LevelNumbers(levels map[int]model.LevelConfig) []int {
	out := make([]int, 0, len(levels))
	for lvl := range levels {
		out = append(out, lvl)
	}
	sort.Ints(out)
	return out
}

// LevelFor returns the configuration governing problems at level, falling back to the
// closest configured level below it, then to the lowest one.
func LevelFor(levels map[int]model.LevelConfig, level int) model.LevelConfig {
	if lc, ok := levels[level]; ok {
		return lc
	}
	nums := LevelNumbers(levels)
	if len(nums) == 0 {
		return model.LevelConfig{}
	}
	best := nums[0]
	for _, n := range nums {
		if n <= level {
			best = n
		}
	}
	return levels[best]
}
