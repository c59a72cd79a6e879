package leveling

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/verte-zerg/balance/internal/model"
)

func testConfig() model.GameConfig {
	return model.GameConfig{
		MinValue:                  1,
		MaxValue:                  30,
		NumOptions:                5,
		TimeLimitSeconds:          20,
		VisualFeedbackSensitivity: 0.5,
		Levels: map[int]model.LevelConfig{
			1: {RequiredScore: 0, TargetRange: [2]int{1, 10}},
			2: {RequiredScore: 10, TargetRange: [2]int{5, 20}},
			3: {RequiredScore: 40, TargetRange: [2]int{10, 30}},
		},
	}
}

func TestEvaluateFirstCorrectAnswerLevelsUp(t *testing.T) {
	res := Evaluate(true, []int{4, 6}, 10, State{Score: 0, Streak: 0, Level: 1}, testConfig())

	assert.True(t, res.Correct)
	assert.Equal(t, 10, res.NewScore)
	assert.Equal(t, 1, res.NewStreak)
	assert.Equal(t, 2, res.NewLevel)
	assert.Equal(t, FeedbackLevelUp, res.Feedback)
	assert.Zero(t, res.TiltAngle)
}

func TestEvaluateWrongAnswerResetsStreakAndKeepsScore(t *testing.T) {
	for _, streak := range []int{0, 1, 5, 40} {
		res := Evaluate(false, []int{9, 9}, 10, State{Score: 33, Streak: streak, Level: 2}, testConfig())
		assert.Equal(t, 0, res.NewStreak, "streak %d", streak)
		assert.Equal(t, 33, res.NewScore, "streak %d", streak)
		assert.Equal(t, 2, res.NewLevel, "streak %d", streak)
	}
}

func TestEvaluateSkipsToHighestReachedLevel(t *testing.T) {
	res := Evaluate(true, []int{5, 5}, 10, State{Score: 35, Streak: 3, Level: 1}, testConfig())
	require.Equal(t, 35+ScoreIncrement(4), res.NewScore)
	assert.Equal(t, 3, res.NewLevel)
}

func TestEvaluateNeverDowngradesLevel(t *testing.T) {
	// Level 3 while below its threshold, e.g. after a server-side correction.
	res := Evaluate(false, []int{1}, 10, State{Score: 0, Streak: 0, Level: 3}, testConfig())
	assert.Equal(t, 3, res.NewLevel)
}

func TestEvaluateInvariantsOverRandomSequences(t *testing.T) {
	cfg := testConfig()
	rnd := rand.New(rand.NewSource(7))
	state := State{Level: 1}
	for i := 0; i < 2000; i++ {
		correct := rnd.Intn(3) > 0
		selected := []int{rnd.Intn(20), rnd.Intn(20)}
		target := rnd.Intn(30)
		res := Evaluate(correct, selected, target, state, cfg)

		require.GreaterOrEqual(t, res.NewScore, state.Score)
		require.GreaterOrEqual(t, res.NewLevel, state.Level)
		if !correct {
			require.Equal(t, 0, res.NewStreak)
		} else {
			require.Equal(t, state.Streak+1, res.NewStreak)
		}
		require.LessOrEqual(t, res.TiltAngle, MaxTilt)
		require.GreaterOrEqual(t, res.TiltAngle, -MaxTilt)

		again := Evaluate(correct, selected, target, state, cfg)
		require.Equal(t, res, again)

		state = State{Score: res.NewScore, Streak: res.NewStreak, Level: res.NewLevel}
	}
}

func TestScoreIncrementIsPositiveAndNonDecreasing(t *testing.T) {
	assert.Greater(t, ScoreIncrement(1), 0)
	assert.Equal(t, BaseIncrement, ScoreIncrement(1))
	prev := ScoreIncrement(1)
	for streak := 2; streak < 50; streak++ {
		cur := ScoreIncrement(streak)
		assert.GreaterOrEqual(t, cur, prev, "streak %d", streak)
		prev = cur
	}
	assert.Equal(t, BaseIncrement+StreakBonus*MaxBonusSteps, ScoreIncrement(1000))
}

func TestTiltAngleDirectionAndClamp(t *testing.T) {
	assert.Zero(t, TiltAngle(0, 0.7))
	assert.Greater(t, TiltAngle(2, 0.7), 0.0)
	assert.Less(t, TiltAngle(-2, 0.7), 0.0)
	assert.Equal(t, TiltAngle(3, 0.7), -TiltAngle(-3, 0.7))
	assert.Equal(t, MaxTilt, TiltAngle(1000, 1))
	assert.Equal(t, -MaxTilt, TiltAngle(-1000, 1))
	assert.Zero(t, TiltAngle(5, 0))
}

func TestFeedback(t *testing.T) {
	cases := []struct {
		name      string
		correct   bool
		diff      int
		leveledUp bool
		want      string
	}{
		{"level up", true, 0, true, FeedbackLevelUp},
		{"correct", true, 0, false, FeedbackCorrect},
		{"slightly high", false, 2, false, FeedbackTooHigh},
		{"slightly low", false, -1, false, FeedbackTooLow},
		{"far high", false, FarOffDistance, false, FeedbackFarOff},
		{"far low", false, -FarOffDistance - 3, false, FeedbackFarOff},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, Feedback(tc.correct, tc.diff, tc.leveledUp))
		})
	}
}

func TestValidateConfig(t *testing.T) {
	require.NoError(t, ValidateConfig(testConfig()))
	require.NoError(t, ValidateConfig(DefaultConfig()))

	empty := testConfig()
	empty.Levels = nil
	assert.Error(t, ValidateConfig(empty))

	fewOptions := testConfig()
	fewOptions.NumOptions = 1
	assert.Error(t, ValidateConfig(fewOptions))

	decreasing := testConfig()
	decreasing.Levels[3] = model.LevelConfig{RequiredScore: 5, TargetRange: [2]int{1, 2}}
	assert.Error(t, ValidateConfig(decreasing))

	badRange := testConfig()
	badRange.Levels[2] = model.LevelConfig{RequiredScore: 10, TargetRange: [2]int{8, 8}}
	assert.Error(t, ValidateConfig(badRange))
}

func TestLevelFor(t *testing.T) {
	levels := testConfig().Levels
	assert.Equal(t, levels[2], LevelFor(levels, 2))
	assert.Equal(t, levels[3], LevelFor(levels, 9))
	assert.Equal(t, levels[1], LevelFor(levels, 0))
}
