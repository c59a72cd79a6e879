// Package generator builds arithmetic problems and checks answers to them.
package generator

import (
	"math/rand"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/verte-zerg/balance/internal/model"
)

const maxTargetAttempts = 10

// Generator produces randomized problems. It is safe for concurrent use.
type Generator struct {
	mu  sync.Mutex
	rnd *rand.Rand
}

// New returns a Generator seeded with the current time.
func New() *Generator {
	return NewSeeded(time.Now().UnixNano())
}

// NewSeeded returns a Generator with a fixed seed.
func NewSeeded(seed int64) *Generator {
	return &Generator{rnd: rand.New(rand.NewSource(seed))}
}

// Generate builds a problem whose target lies in level.TargetRange. The options hold
// two different pairs adding up to the target when the range allows it, one pair
// otherwise, padded with distractors up to numOptions.
func (g *Generator) Generate(level model.LevelConfig, numOptions int) model.Problem {
	g.mu.Lock()
	defer g.mu.Unlock()

	lo, hi := level.TargetRange[0], level.TargetRange[1]
	if lo < 1 {
		lo = 1
	}
	if hi < lo+1 {
		hi = lo + 1
	}
	if numOptions < 2 {
		numOptions = 2
	}

	target := lo + g.rnd.Intn(hi-lo+1)
	pairs := validPairs(target, 1, hi)
	for attempt := 0; len(pairs) < 2 && attempt < maxTargetAttempts; attempt++ {
		target = lo + g.rnd.Intn(hi-lo+1)
		pairs = validPairs(target, 1, hi)
	}

	var options []int
	g.rnd.Shuffle(len(pairs), func(i, j int) { pairs[i], pairs[j] = pairs[j], pairs[i] })
	for _, p := range pairs {
		if len(options)+2 > numOptions || len(options) >= 4 {
			break
		}
		options = append(options, p[0], p[1])
	}
	if len(options) == 0 {
		// Targets below 3 have no pair of distinct positive addends.
		options = append(options, target)
	}

	used := make(map[int]bool, numOptions)
	for _, o := range options {
		used[o] = true
	}
	for tries := 0; len(options) < numOptions && tries < 1000; tries++ {
		n := 1 + g.rnd.Intn(hi)
		if used[n] || used[target-n] || n == target {
			continue
		}
		used[n] = true
		options = append(options, n)
	}
	g.rnd.Shuffle(len(options), func(i, j int) { options[i], options[j] = options[j], options[i] })

	return model.Problem{
		ID:           uuid.NewString(),
		TargetNumber: target,
		Options:      options,
	}
}

// validPairs lists pairs (a, b) with a < b, a+b == target and both within [lo, hi].
func validPairs(target, lo, hi int) [][2]int {
	var pairs [][2]int
	for a := lo; a <= hi; a++ {
		b := target - a
		if b <= a {
			break
		}
		if b <= hi {
			pairs = append(pairs, [2]int{a, b})
		}
	}
	return pairs
}

// Check reports whether selected is a valid answer to p: a non-empty pick of the
// problem's options (each option used at most as often as it appears) adding up to the
// target.
func Check(p model.Problem, selected []int) bool {
	if len(selected) == 0 {
		return false
	}
	available := make(map[int]int, len(p.Options))
	for _, o := range p.Options {
		available[o]++
	}
	sum := 0
	for _, s := range selected {
		if available[s] == 0 {
			return false
		}
		available[s]--
		sum += s
	}
	return sum == p.TargetNumber
}
