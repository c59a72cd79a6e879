// Package progress defines the pending-progress slot and its non-SQL backends.
//
// A Store holds at most one LocalProgress record. Save overwrites it, Load returns it
// with ok=false when nothing is pending, and Clear removes it. Failures of the
// underlying medium are reported wrapped in ErrStorageUnavailable.
package progress

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/verte-zerg/balance/internal/model"
)

// StorageKey is the fixed key under which the pending record is stored.
const StorageKey = "balance_game_progress"

// ErrStorageUnavailable reports that the storage medium could not be used.
var ErrStorageUnavailable = errors.New("progress storage unavailable")

// Store is the single-record pending progress slot.
type Store interface {
	Save(ctx context.Context, p model.LocalProgress) error
	Load(ctx context.Context) (model.LocalProgress, bool, error)
	Clear(ctx context.Context) error
	// ClearIfMatch removes the record only when it still equals p. It reports whether
	// a record was removed.
	ClearIfMatch(ctx context.Context, p model.LocalProgress) (bool, error)
}

// Unavailable wraps err so that errors.Is(err, ErrStorageUnavailable) holds.
func Unavailable(op string, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w: %w", op, ErrStorageUnavailable, err)
}

// Memory keeps the record in process memory. It is used when no durable medium is
// available and in tests.
type Memory struct {
	mu      sync.Mutex
	record  model.LocalProgress
	present bool
}

// NewMemory returns an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{}
}

// Save implements Store.
func (m *Memory) Save(_ context.Context, p model.LocalProgress) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.record = p
	m.present = true
	return nil
}

// Load implements Store.
func (m *Memory) Load(_ context.Context) (model.LocalProgress, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.record, m.present, nil
}

// Clear implements Store.
func (m *Memory) Clear(_ context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.record = model.LocalProgress{}
	m.present = false
	return nil
}

// ClearIfMatch implements Store.
func (m *Memory) ClearIfMatch(_ context.Context, p model.LocalProgress) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.present || !m.record.Equal(p) {
		return false, nil
	}
	m.record = model.LocalProgress{}
	m.present = false
	return true, nil
}
