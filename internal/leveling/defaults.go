package leveling

import "github.com/verte-zerg/balance/internal/model"

// DefaultConfig is the built-in game configuration used when none is provided.
func DefaultConfig() model.GameConfig {
	return model.GameConfig{
		MinValue:                  1,
		MaxValue:                  50,
		NumOptions:                5,
		TimeLimitSeconds:          30,
		VisualFeedbackSensitivity: 0.7,
		Levels: map[int]model.LevelConfig{
			1: {RequiredScore: 0, TargetRange: [2]int{1, 10}},
			2: {RequiredScore: 50, TargetRange: [2]int{5, 20}},
			3: {RequiredScore: 150, TargetRange: [2]int{10, 30}},
			4: {RequiredScore: 300, TargetRange: [2]int{20, 50}},
		},
	}
}
