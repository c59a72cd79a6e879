package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"github.com/spf13/cobra"

	"github.com/verte-zerg/balance/internal/api"
	"github.com/verte-zerg/balance/internal/config"
	"github.com/verte-zerg/balance/internal/connectivity"
	"github.com/verte-zerg/balance/internal/model"
	"github.com/verte-zerg/balance/internal/progress"
	"github.com/verte-zerg/balance/internal/store"
	"github.com/verte-zerg/balance/internal/syncer"
)

const probeFailuresBeforeOffline = 2

// clientEnv holds everything play, sync and status share.
type clientEnv struct {
	logger  *slog.Logger
	db      *store.Store
	pending progress.Store
	user    model.User
	client  *api.Client
	monitor *connectivity.Monitor
	probe   *connectivity.Probe
	coord   *syncer.Coordinator

	// onSynced runs after a successful push. Set it before the first sync starts.
	onSynced func()

	closers []func() error
}

// openClientEnv resolves configuration (flags > env > file > defaults) and wires the
// client components. Logs go to logOut.
func openClientEnv(cmd *cobra.Command, logOut io.Writer) (*clientEnv, error) {
	fileCfg, err := loadFileConfig()
	if err != nil {
		return nil, err
	}
	if err := applyClientConfig(cmd, fileCfg); err != nil {
		return nil, err
	}
	if err := validateClientConfig(); err != nil {
		return nil, err
	}
	logger, err := setupLogger(logOut, clientLogLevel, clientLogFormat)
	if err != nil {
		return nil, err
	}
	ctx := cmd.Context()

	dbPath := clientDB
	if dbPath == "" {
		dbPath = config.DefaultDBPath()
	}
	db, err := store.Open(dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open db: %w", err)
	}
	env := &clientEnv{logger: logger, db: db}
	env.closers = append(env.closers, db.Close)

	if err := env.wire(ctx); err != nil {
		env.Close()
		return nil, err
	}
	return env, nil
}

func (e *clientEnv) wire(ctx context.Context) error {
	deviceID, err := e.db.DeviceID(ctx)
	if err != nil {
		return fmt.Errorf("failed to load device id: %w", err)
	}
	e.user, err = model.NewUser(clientRole, clientUserID, clientName, deviceID)
	if err != nil {
		return err
	}

	switch clientStore {
	case "redis":
		r, err := progress.OpenRedis(ctx, progress.RedisConfig{
			Addr:        clientRedisAddr,
			DialTimeout: clientRequestTimeout,
			Namespace:   e.user.UserID(),
		})
		if err != nil {
			return fmt.Errorf("failed to open redis store: %w", err)
		}
		e.closers = append(e.closers, r.Close)
		e.pending = r
	case "memory":
		e.pending = progress.NewMemory()
	default:
		e.pending = e.db
	}

	e.client, err = api.New(clientServerURL, &http.Client{Timeout: clientRequestTimeout})
	if err != nil {
		return err
	}
	e.monitor = connectivity.NewMonitor(false, e.logger)
	e.probe = &connectivity.Probe{
		URL:                   e.client.HealthURL(),
		Interval:              clientProbeInterval,
		Timeout:               clientRequestTimeout,
		FailuresBeforeOffline: probeFailuresBeforeOffline,
	}

	e.coord, err = syncer.New(syncer.Options{
		UserID:       e.user.UserID(),
		Store:        e.pending,
		Pusher:       e.client,
		Connectivity: e.monitor,
		History:      e.db,
		Cache:        e.db,
		Logger:       e.logger,
		OnResult: func(r syncer.Result) {
			if r.Outcome == syncer.Synced && e.onSynced != nil {
				e.onSynced()
			}
		},
	})
	if err != nil {
		return err
	}
	last, ok, err := e.db.LastSyncTime(ctx)
	if err != nil {
		return fmt.Errorf("failed to load sync history: %w", err)
	}
	if ok {
		e.coord.SetLastSyncTime(last)
	}
	return nil
}

// Close waits for background syncs and releases resources in reverse order.
func (e *clientEnv) Close() {
	if e.coord != nil {
		e.coord.Wait()
	}
	for i := len(e.closers) - 1; i >= 0; i-- {
		if err := e.closers[i](); err != nil {
			logErrf("failed to close: %v\n", err)
		}
	}
}
