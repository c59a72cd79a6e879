// Package game runs a play session: it fetches problems, evaluates answers and keeps
// the pending progress record current so the sync coordinator can reconcile it later.
package game

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/verte-zerg/balance/internal/generator"
	"github.com/verte-zerg/balance/internal/leveling"
	"github.com/verte-zerg/balance/internal/model"
	"github.com/verte-zerg/balance/internal/progress"
)

// ErrConfigUnavailable reports that no usable game configuration could be obtained.
var ErrConfigUnavailable = errors.New("game config unavailable")

// Backend is the subset of the HTTP API a session uses.
type Backend interface {
	GetConfig(ctx context.Context) (model.GameConfig, error)
	GetProblem(ctx context.Context, level int) (model.Problem, error)
	Submit(ctx context.Context, req model.SubmitRequest) (model.SubmitResult, error)
	UserProgress(ctx context.Context, userID string) (model.UserProgress, error)
}

// Connectivity reports whether the backend is reachable.
type Connectivity interface {
	Online() bool
}

// Syncer starts a background reconciliation without blocking.
type Syncer interface {
	Trigger(ctx context.Context)
}

// ConfigCache keeps the last configuration fetched from the server so play can start
// while offline.
type ConfigCache interface {
	SaveGameConfig(ctx context.Context, cfg model.GameConfig) error
	LoadGameConfig(ctx context.Context) (model.GameConfig, bool, error)
}

// ProgressCache keeps the last progress the server confirmed for a user.
type ProgressCache interface {
	SaveUserProgress(ctx context.Context, userID string, up model.UserProgress) error
	LoadUserProgress(ctx context.Context, userID string) (model.UserProgress, bool, error)
}

// Options wires a session. Backend, Store and Connectivity are required.
type Options struct {
	User         model.User
	Backend      Backend
	Store        progress.Store
	Connectivity Connectivity
	Syncer       Syncer
	ConfigCache  ConfigCache
	Progress     ProgressCache
	Generator    *generator.Generator
	Logger       *slog.Logger
	Now          func() time.Time
}

// Snapshot is the player's standing in the session.
type Snapshot struct {
	Level              int
	Score              int
	Streak             int
	QuestionsCorrect   int
	QuestionsAttempted int
	// Pending is set once an answer was saved locally and cleared by MarkSynced.
	Pending bool
}

// Session is one play session. It is safe for use by one player goroutine plus the
// background sync.
type Session struct {
	user    model.User
	backend Backend
	store   progress.Store
	conn    Connectivity
	syncer  Syncer
	cache   ProgressCache
	gen     *generator.Generator
	logger  *slog.Logger
	now     func() time.Time

	cfg model.GameConfig

	mu        sync.Mutex
	state     leveling.State
	correct   int
	attempted int
	pending   bool
	closed    bool
}

// Start fetches the configuration and seeds the counters: from the pending local
// record when one exists, otherwise from the server when online, otherwise from the
// last progress the server confirmed, otherwise from the lowest level.
func Start(ctx context.Context, opts Options) (*Session, error) {
	if opts.Backend == nil || opts.Store == nil || opts.Connectivity == nil {
		return nil, fmt.Errorf("game: backend, store and connectivity are required")
	}
	if opts.User == nil || opts.User.UserID() == "" {
		return nil, fmt.Errorf("game: user id is required")
	}
	s := &Session{
		user:    opts.User,
		backend: opts.Backend,
		store:   opts.Store,
		conn:    opts.Connectivity,
		syncer:  opts.Syncer,
		cache:   opts.Progress,
		gen:     opts.Generator,
		logger:  opts.Logger,
		now:     opts.Now,
	}
	if s.gen == nil {
		s.gen = generator.New()
	}
	if s.logger == nil {
		s.logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	if s.now == nil {
		s.now = time.Now
	}

	cfg, err := loadConfig(ctx, opts.Backend, opts.ConfigCache, s.logger)
	if err != nil {
		return nil, err
	}
	s.cfg = cfg

	if err := s.seed(ctx); err != nil {
		return nil, err
	}
	s.logger.Info("session started", "user", s.user.UserID(), "role", s.user.Role(),
		"level", s.state.Level, "score", s.state.Score, "online", s.conn.Online())
	return s, nil
}

func loadConfig(ctx context.Context, backend Backend, cache ConfigCache, logger *slog.Logger) (model.GameConfig, error) {
	cfg, fetchErr := backend.GetConfig(ctx)
	if fetchErr == nil {
		if err := leveling.ValidateConfig(cfg); err != nil {
			return model.GameConfig{}, fmt.Errorf("%w: %w", ErrConfigUnavailable, err)
		}
		if cache != nil {
			if err := cache.SaveGameConfig(ctx, cfg); err != nil {
				logger.Warn("failed to cache game config", "error", err)
			}
		}
		return cfg, nil
	}
	if cache == nil {
		return model.GameConfig{}, fmt.Errorf("%w: %w", ErrConfigUnavailable, fetchErr)
	}
	cached, ok, err := cache.LoadGameConfig(ctx)
	if err != nil || !ok {
		return model.GameConfig{}, fmt.Errorf("%w: %w", ErrConfigUnavailable, fetchErr)
	}
	if err := leveling.ValidateConfig(cached); err != nil {
		return model.GameConfig{}, fmt.Errorf("%w: cached config: %w", ErrConfigUnavailable, err)
	}
	logger.Warn("using cached game config", "error", fetchErr)
	return cached, nil
}

func (s *Session) seed(ctx context.Context) error {
	lowest := leveling.LevelNumbers(s.cfg.Levels)[0]
	s.state = leveling.State{Level: lowest}

	local, ok, err := s.store.Load(ctx)
	if err != nil {
		return fmt.Errorf("load pending progress: %w", err)
	}
	if ok {
		s.state = leveling.State{Score: local.XP, Level: local.Level}
		s.correct = local.QuestionsCorrect
		s.attempted = local.QuestionsAttempted
		s.pending = true
	} else if up, ok := s.baseline(ctx); ok {
		s.state = leveling.State{Score: up.CurrentScore, Streak: up.Streak, Level: up.CurrentLevel}
		s.correct = up.QuestionsCorrect
		s.attempted = up.TotalProblems
	}
	if s.state.Level < lowest {
		s.state.Level = lowest
	}
	return nil
}

// baseline returns the progress to continue from when nothing is pending: the
// server's when reachable, otherwise the last one it confirmed.
func (s *Session) baseline(ctx context.Context) (model.UserProgress, bool) {
	userID := s.user.UserID()
	if s.conn.Online() {
		up, err := s.backend.UserProgress(ctx, userID)
		if err == nil {
			s.remember(ctx, up)
			return up, true
		}
		s.logger.Warn("failed to fetch user progress", "error", err)
	}
	if s.cache == nil {
		return model.UserProgress{}, false
	}
	up, ok, err := s.cache.LoadUserProgress(ctx, userID)
	if err != nil {
		s.logger.Warn("failed to load cached user progress", "error", err)
		return model.UserProgress{}, false
	}
	if ok {
		s.logger.Info("continuing from last confirmed progress", "level", up.CurrentLevel, "score", up.CurrentScore)
	}
	return up, ok
}

func (s *Session) remember(ctx context.Context, up model.UserProgress) {
	if s.cache == nil {
		return
	}
	if err := s.cache.SaveUserProgress(ctx, s.user.UserID(), up); err != nil {
		s.logger.Warn("failed to cache user progress", "error", err)
	}
}

// Config returns the active game configuration.
func (s *Session) Config() model.GameConfig {
	return s.cfg
}

// User returns the player.
func (s *Session) User() model.User {
	return s.user
}

// Snapshot returns the current standing.
func (s *Session) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Snapshot{
		Level:              s.state.Level,
		Score:              s.state.Score,
		Streak:             s.state.Streak,
		QuestionsCorrect:   s.correct,
		QuestionsAttempted: s.attempted,
		Pending:            s.pending,
	}
}

// NextProblem returns a problem for the current level: from the server when online,
// otherwise generated locally.
func (s *Session) NextProblem(ctx context.Context) (model.Problem, error) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return model.Problem{}, fmt.Errorf("session closed")
	}
	level := s.state.Level
	s.mu.Unlock()

	if s.conn.Online() {
		p, err := s.backend.GetProblem(ctx, level)
		if err == nil && len(p.Options) > 0 {
			return p, nil
		}
		if err == nil {
			err = fmt.Errorf("problem %q has no options", p.ID)
		}
		s.logger.Warn("server problem unavailable; generating locally", "error", err)
	}
	p := s.gen.Generate(leveling.LevelFor(s.cfg.Levels, level), s.cfg.NumOptions)
	p.Local = true
	return p, nil
}

// Answer evaluates selected against p and returns the result.
//
// Server problems answered while online with nothing pending go to the server, whose
// response is authoritative. Everything else is evaluated locally, saved as the
// pending record and handed to the syncer. When saving fails the result is still
// valid and returned together with an error wrapping progress.ErrStorageUnavailable.
func (s *Session) Answer(ctx context.Context, p model.Problem, selected []int) (model.SubmitResult, error) {
	s.mu.Lock()
	closed := s.closed
	s.mu.Unlock()
	if closed {
		return model.SubmitResult{}, fmt.Errorf("session closed")
	}

	if !p.Local && s.conn.Online() {
		if _, ok, err := s.store.Load(ctx); err == nil && !ok {
			res, err := s.backend.Submit(ctx, model.SubmitRequest{
				UserID:          s.user.UserID(),
				ProblemID:       p.ID,
				SelectedOptions: selected,
			})
			if err == nil {
				s.remember(ctx, s.adopt(res))
				return res, nil
			}
			s.logger.Warn("submit failed; evaluating locally", "problem", p.ID, "error", err)
		}
	}
	return s.answerLocally(ctx, p, selected)
}

// adopt applies a server-evaluated result and returns the progress the server now holds.
func (s *Session) adopt(res model.SubmitResult) model.UserProgress {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state = leveling.State{Score: res.NewScore, Streak: res.NewStreak, Level: res.NewLevel}
	s.attempted++
	if res.Correct {
		s.correct++
	}
	return model.UserProgress{
		CurrentLevel:     s.state.Level,
		CurrentScore:     s.state.Score,
		Streak:           s.state.Streak,
		TotalProblems:    s.attempted,
		QuestionsCorrect: s.correct,
	}
}

func (s *Session) answerLocally(ctx context.Context, p model.Problem, selected []int) (model.SubmitResult, error) {
	correct := generator.Check(p, selected)

	s.mu.Lock()
	res := leveling.Evaluate(correct, selected, p.TargetNumber, s.state, s.cfg)
	s.state = leveling.State{Score: res.NewScore, Streak: res.NewStreak, Level: res.NewLevel}
	s.attempted++
	if res.Correct {
		s.correct++
	}
	snap := model.LocalProgress{
		Level:              s.state.Level,
		XP:                 s.state.Score,
		QuestionsCorrect:   s.correct,
		QuestionsAttempted: s.attempted,
		Timestamp:          s.now().UTC(),
	}
	s.pending = true
	s.mu.Unlock()

	if err := s.store.Save(ctx, snap); err != nil {
		s.logger.Error("failed to save progress", "error", err)
		return res, fmt.Errorf("save progress: %w", err)
	}
	if s.syncer != nil && s.conn.Online() {
		s.syncer.Trigger(ctx)
	}
	return res, nil
}

// MarkSynced tells the session its pending record has been confirmed by the server,
// so later answers to server problems may go straight to the server again.
func (s *Session) MarkSynced() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pending = false
}

// Close ends the session. Further calls fail.
func (s *Session) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.closed {
		s.closed = true
		s.logger.Info("session closed", "level", s.state.Level, "score", s.state.Score,
			"attempted", s.attempted)
	}
}
