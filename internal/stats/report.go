package stats

import (
	"context"
	"time"

	"github.com/verte-zerg/balance/internal/model"
)

// Source provides the data shown by status.
type Source interface {
	Load(ctx context.Context) (model.LocalProgress, bool, error)
	ListSyncAttempts(ctx context.Context, limit int) ([]model.SyncAttempt, error)
	LastSyncTime(ctx context.Context) (time.Time, bool, error)
}

// Report contains precomputed data for status rendering.
type Report struct {
	Pending *model.LocalProgress
	// Server is the authoritative progress; nil when unreachable or unknown.
	Server   *model.UserProgress
	Online   bool
	History  []model.SyncAttempt
	LastSync time.Time
}

// BuildReport loads the pending record and the last limit sync attempts.
func BuildReport(ctx context.Context, src Source, limit int) (Report, error) {
	var r Report
	pending, ok, err := src.Load(ctx)
	if err != nil {
		return Report{}, err
	}
	if ok {
		r.Pending = &pending
	}
	if r.History, err = src.ListSyncAttempts(ctx, limit); err != nil {
		return Report{}, err
	}
	if last, ok, err := src.LastSyncTime(ctx); err != nil {
		return Report{}, err
	} else if ok {
		r.LastSync = last
	}
	return r, nil
}
