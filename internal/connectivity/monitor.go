// Package connectivity tracks backend reachability and turns raw reachability reports
// into online/offline edges.
package connectivity

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
)

// Source reports raw reachability observations. A source may report the same state
// many times in a row; the Monitor collapses repeats into a single edge.
type Source interface {
	Run(ctx context.Context, observe func(online bool)) error
}

// Monitor exposes the current reachability and notifies handlers on transitions.
// Handlers run on the goroutine that delivered the observation and must not block.
type Monitor struct {
	online atomic.Bool

	mu        sync.Mutex
	nextID    int
	onOnline  map[int]func()
	onOffline map[int]func()

	logger *slog.Logger
}

// NewMonitor returns a monitor starting in the given state. A nil logger discards output.
func NewMonitor(initial bool, logger *slog.Logger) *Monitor {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	m := &Monitor{
		onOnline:  map[int]func(){},
		onOffline: map[int]func(){},
		logger:    logger,
	}
	m.online.Store(initial)
	return m
}

// Online reports the current reachability.
func (m *Monitor) Online() bool {
	return m.online.Load()
}

// OnOnline registers fn for offline→online edges and returns a function removing it.
func (m *Monitor) OnOnline(fn func()) func() {
	return m.register(m.onOnline, fn)
}

// OnOffline registers fn for online→offline edges and returns a function removing it.
func (m *Monitor) OnOffline(fn func()) func() {
	return m.register(m.onOffline, fn)
}

func (m *Monitor) register(set map[int]func(), fn func()) func() {
	m.mu.Lock()
	id := m.nextID
	m.nextID++
	set[id] = fn
	m.mu.Unlock()
	return func() {
		m.mu.Lock()
		delete(set, id)
		m.mu.Unlock()
	}
}

// Observe feeds one raw observation. Only a change of state fires handlers.
func (m *Monitor) Observe(online bool) {
	m.mu.Lock()
	if m.online.Load() == online {
		m.mu.Unlock()
		return
	}
	m.online.Store(online)
	set := m.onOffline
	if online {
		set = m.onOnline
	}
	handlers := make([]func(), 0, len(set))
	for _, fn := range set {
		handlers = append(handlers, fn)
	}
	m.mu.Unlock()

	if online {
		m.logger.Info("connectivity changed", "online", true)
	} else {
		m.logger.Warn("connectivity changed", "online", false)
	}
	for _, fn := range handlers {
		fn()
	}
}

// Watch runs src until ctx is done, feeding its observations into the monitor.
func (m *Monitor) Watch(ctx context.Context, src Source) error {
	return src.Run(ctx, m.Observe)
}

// ChanSource adapts a channel of observations into a Source. Run returns when the
// channel is closed or ctx is done.
type ChanSource <-chan bool

// Run implements Source.
func (c ChanSource) Run(ctx context.Context, observe func(online bool)) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case online, ok := <-c:
			if !ok {
				return nil
			}
			observe(online)
		}
	}
}
