// Package syncer reconciles the pending local progress record with the backend.
//
// The Coordinator is a two-state machine (Idle, Syncing). A sync starts from an
// online edge or a manual request, pushes the pending record and removes it only after
// the server confirmed it. At most one sync is in flight; triggers arriving meanwhile
// are dropped, and the next trigger re-reads the store from scratch.
package syncer

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/verte-zerg/balance/internal/model"
	"github.com/verte-zerg/balance/internal/progress"
)

// ErrSyncFailed wraps network errors and server rejections of a push.
var ErrSyncFailed = errors.New("sync failed")

// State of the coordinator.
type State int32

const (
	Idle State = iota
	Syncing
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Syncing:
		return "syncing"
	default:
		return "unknown"
	}
}

// Outcome describes what a sync request did.
type Outcome int

const (
	// Synced means the record was pushed and confirmed.
	Synced Outcome = iota
	// NothingPending means the store held no record; no request was made.
	NothingPending
	// Offline means the backend is unreachable; no request was made.
	Offline
	// InFlight means another sync was running; this request was dropped.
	InFlight
	// Failed means the push failed; the record is kept.
	Failed
)

func (o Outcome) String() string {
	switch o {
	case Synced:
		return "synced"
	case NothingPending:
		return "nothing pending"
	case Offline:
		return "offline"
	case InFlight:
		return "already syncing"
	case Failed:
		return "failed"
	default:
		return "unknown"
	}
}

// Pusher sends a snapshot to the backend.
type Pusher interface {
	Sync(ctx context.Context, userID string, p model.LocalProgress) (model.UserProgress, error)
}

// Connectivity reports whether the backend is reachable.
type Connectivity interface {
	Online() bool
}

// History records sync attempts. It is optional.
type History interface {
	RecordSyncAttempt(ctx context.Context, attempt model.SyncAttempt) (int64, error)
}

// ProgressCache keeps the last progress the server confirmed. It is optional.
type ProgressCache interface {
	SaveUserProgress(ctx context.Context, userID string, up model.UserProgress) error
}

// Result is delivered to the result handler after every attempt that reached the
// network.
type Result struct {
	Outcome  Outcome
	Pushed   model.LocalProgress
	Server   model.UserProgress
	Err      error
	Finished time.Time
}

// Options configures a Coordinator.
type Options struct {
	UserID       string
	Store        progress.Store
	Pusher       Pusher
	Connectivity Connectivity
	History      History
	Cache        ProgressCache
	Logger       *slog.Logger
	// OnResult is called after each push attempt. It must not block.
	OnResult func(Result)
	Now      func() time.Time
}

// Coordinator drives reconciliation of the pending record.
type Coordinator struct {
	userID   string
	store    progress.Store
	pusher   Pusher
	conn     Connectivity
	history  History
	cache    ProgressCache
	logger   *slog.Logger
	onResult func(Result)
	now      func() time.Time

	state    atomic.Int32
	lastSync atomic.Pointer[time.Time]

	wg sync.WaitGroup
}

// New builds a coordinator. Store, Pusher and Connectivity are required.
func New(opts Options) (*Coordinator, error) {
	if opts.Store == nil || opts.Pusher == nil || opts.Connectivity == nil {
		return nil, fmt.Errorf("syncer: store, pusher and connectivity are required")
	}
	if opts.UserID == "" {
		return nil, fmt.Errorf("syncer: user id is required")
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	return &Coordinator{
		userID:   opts.UserID,
		store:    opts.Store,
		pusher:   opts.Pusher,
		conn:     opts.Connectivity,
		history:  opts.History,
		cache:    opts.Cache,
		logger:   logger,
		onResult: opts.OnResult,
		now:      now,
	}, nil
}

// State returns the current state.
func (c *Coordinator) State() State {
	return State(c.state.Load())
}

// LastSyncTime returns when the last successful sync finished in this process.
func (c *Coordinator) LastSyncTime() (time.Time, bool) {
	t := c.lastSync.Load()
	if t == nil {
		return time.Time{}, false
	}
	return *t, true
}

// SetLastSyncTime seeds the last successful sync time, e.g. from persisted history.
func (c *Coordinator) SetLastSyncTime(t time.Time) {
	c.lastSync.Store(&t)
}

// Trigger starts a sync in the background and returns immediately. It is safe to
// register as an online-edge handler.
func (c *Coordinator) Trigger(ctx context.Context) {
	if !c.conn.Online() || c.State() == Syncing {
		return
	}
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		if _, err := c.SyncNow(ctx); err != nil {
			c.logger.Warn("background sync failed", "error", err)
		}
	}()
}

// EdgeNotifier delivers offline→online transitions.
type EdgeNotifier interface {
	OnOnline(fn func()) func()
}

// Attach starts a background sync on every online edge of n. The returned function
// detaches the handler.
func (c *Coordinator) Attach(ctx context.Context, n EdgeNotifier) func() {
	return n.OnOnline(func() { c.Trigger(ctx) })
}

// Wait blocks until background syncs started by Trigger have finished.
func (c *Coordinator) Wait() {
	c.wg.Wait()
}

// SyncNow runs one reconciliation on the calling goroutine.
//
// Offline, InFlight and NothingPending are reported without error. A failed push
// returns Failed with an error wrapping ErrSyncFailed; a store failure returns an
// error wrapping progress.ErrStorageUnavailable. In neither case is the record removed.
func (c *Coordinator) SyncNow(ctx context.Context) (Outcome, error) {
	if !c.conn.Online() {
		return Offline, nil
	}
	if !c.state.CompareAndSwap(int32(Idle), int32(Syncing)) {
		return InFlight, nil
	}
	defer c.state.Store(int32(Idle))

	pending, ok, err := c.store.Load(ctx)
	if err != nil {
		return Failed, fmt.Errorf("load pending progress: %w", err)
	}
	if !ok {
		return NothingPending, nil
	}

	c.logger.Info("sync started", "level", pending.Level, "xp", pending.XP,
		"attempted", pending.QuestionsAttempted)
	server, err := c.pusher.Sync(ctx, c.userID, pending)
	if err != nil {
		err = fmt.Errorf("%w: %w", ErrSyncFailed, err)
		c.finish(ctx, Result{Outcome: Failed, Pushed: pending, Err: err})
		return Failed, err
	}

	// A save that landed during the push is newer than what the server has; keep it.
	cleared, err := c.store.ClearIfMatch(ctx, pending)
	if err != nil {
		err = fmt.Errorf("clear synced progress: %w", err)
		c.finish(ctx, Result{Outcome: Synced, Pushed: pending, Server: server, Err: err})
		return Synced, err
	}
	if !cleared {
		c.logger.Info("newer progress saved during sync; keeping it for the next sync")
	}
	c.finish(ctx, Result{Outcome: Synced, Pushed: pending, Server: server})
	return Synced, nil
}

func (c *Coordinator) finish(ctx context.Context, res Result) {
	res.Finished = c.now()
	if res.Outcome == Synced {
		t := res.Finished
		c.lastSync.Store(&t)
		c.logger.Info("sync finished", "level", res.Server.CurrentLevel, "score", res.Server.CurrentScore)
		if c.cache != nil {
			if err := c.cache.SaveUserProgress(ctx, c.userID, res.Server); err != nil {
				c.logger.Warn("failed to cache server progress", "error", err)
			}
		}
	} else {
		c.logger.Warn("sync failed; local progress kept", "error", res.Err)
	}

	if c.history != nil {
		attempt := model.SyncAttempt{
			AttemptedAt: res.Finished,
			OK:          res.Outcome == Synced,
			Progress:    res.Pushed,
		}
		if res.Err != nil {
			attempt.Error = res.Err.Error()
		}
		if _, err := c.history.RecordSyncAttempt(ctx, attempt); err != nil {
			c.logger.Warn("failed to record sync attempt", "error", err)
		}
	}
	if c.onResult != nil {
		c.onResult(res)
	}
}
