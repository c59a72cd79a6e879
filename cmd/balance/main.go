// Package main provides the CLI entrypoint for balance.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/exec"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"

	"github.com/verte-zerg/balance/internal/api"
	"github.com/verte-zerg/balance/internal/config"
	"github.com/verte-zerg/balance/internal/model"
	"github.com/verte-zerg/balance/internal/progress"
	"github.com/verte-zerg/balance/internal/server"
	"github.com/verte-zerg/balance/internal/stats"
	"github.com/verte-zerg/balance/internal/store"
	"github.com/verte-zerg/balance/internal/syncer"
)

const (
	defaultServerURL      = "http://localhost:8080"
	defaultStore          = "sqlite"
	defaultProbeInterval  = 5 * time.Second
	defaultRequestTimeout = 10 * time.Second
	defaultLogLevel       = "info"
	defaultLogFormat      = "text"
	defaultServeAddr      = ":8080"
	defaultHistoryLimit   = 10
)

var (
	clientServerURL      string
	clientUserID         string
	clientRole           string
	clientName           string
	clientStore          string
	clientDB             string
	clientRedisAddr      string
	clientProbeInterval  time.Duration
	clientRequestTimeout time.Duration
	clientLogLevel       string
	clientLogFormat      string

	statusLast int

	serveAddr       string
	serveDB         string
	serveGameConfig string
)

func main() {
	rootCmd := newRootCmd()
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		stop()
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:           "balance",
		Short:         "Offline-first arithmetic balance game",
		SilenceUsage:  true,
		SilenceErrors: false,
		RunE:          runPlayCmd,
	}

	flags := rootCmd.PersistentFlags()
	flags.StringVar(&clientServerURL, "server", defaultServerURL, "backend base URL")
	flags.StringVar(&clientUserID, "user", "", "user id (students and teachers)")
	flags.StringVar(&clientRole, "role", model.RoleAnonymous, "anonymous, student or teacher")
	flags.StringVar(&clientName, "name", "", "display name")
	flags.StringVar(&clientStore, "store", defaultStore, "pending progress store: sqlite, redis or memory")
	flags.StringVar(&clientDB, "db", "", "SQLite database path (default: XDG data dir)")
	flags.StringVar(&clientRedisAddr, "redis-addr", "", "Redis address for --store redis")
	flags.DurationVar(&clientProbeInterval, "probe-interval", defaultProbeInterval, "health probe interval")
	flags.DurationVar(&clientRequestTimeout, "request-timeout", defaultRequestTimeout, "HTTP request timeout")
	flags.StringVar(&clientLogLevel, "log-level", defaultLogLevel, "debug, info, warn or error")
	flags.StringVar(&clientLogFormat, "log-format", defaultLogFormat, "text or json")

	rootCmd.AddCommand(newPlayCmd())
	rootCmd.AddCommand(newSyncCmd())
	rootCmd.AddCommand(newStatusCmd())
	rootCmd.AddCommand(newServeCmd())
	rootCmd.AddCommand(newConfigCmd())

	return rootCmd
}

func newPlayCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "play",
		Short: "Play the game (default command)",
		Args:  cobra.NoArgs,
		RunE:  runPlayCmd,
	}
}

func newSyncCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "sync",
		Short: "Push pending progress to the server now",
		Args:  cobra.NoArgs,
		RunE:  runSyncCmd,
	}
}

func runSyncCmd(cmd *cobra.Command, _ []string) error {
	env, err := openClientEnv(cmd, os.Stderr)
	if err != nil {
		return err
	}
	defer env.Close()

	ctx := cmd.Context()
	env.monitor.Observe(env.probe.Check(ctx))
	outcome, err := env.coord.SyncNow(ctx)
	if err != nil {
		return err
	}
	if _, err := fmt.Fprintf(cmd.OutOrStdout(), "Sync: %s\n", outcome); err != nil {
		return fmt.Errorf("failed to write output: %w", err)
	}
	if outcome == syncer.Offline {
		return fmt.Errorf("server %s is unreachable; progress stays pending", clientServerURL)
	}
	return nil
}

func newStatusCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show pending progress and sync history",
		Args:  cobra.NoArgs,
		RunE:  runStatusCmd,
	}
	cmd.Flags().IntVar(&statusLast, "last", defaultHistoryLimit, "number of sync attempts to show (0 = all)")
	return cmd
}

func runStatusCmd(cmd *cobra.Command, _ []string) error {
	if statusLast < 0 {
		return fmt.Errorf("--last must be >= 0")
	}
	env, err := openClientEnv(cmd, os.Stderr)
	if err != nil {
		return err
	}
	defer env.Close()

	ctx := cmd.Context()
	report, err := stats.BuildReport(ctx, statusSource{pending: env.pending, Store: env.db}, statusLast)
	if err != nil {
		return fmt.Errorf("failed to build report: %w", err)
	}
	report.Online = env.probe.Check(ctx)
	if report.Online {
		up, err := env.client.UserProgress(ctx, env.user.UserID())
		var statusErr *api.StatusError
		switch {
		case err == nil:
			report.Server = &up
		case errors.As(err, &statusErr) && statusErr.Code == http.StatusNotFound:
			// Nothing synced for this user yet.
		default:
			env.logger.Warn("failed to fetch server progress", "error", err)
		}
	}

	out := cmd.OutOrStdout()
	header := lipgloss.NewStyle().Bold(true)
	if _, err := fmt.Fprintf(out, "%s\n", header.Render(fmt.Sprintf("balance: %s (%s)", env.user.UserID(), env.user.Role()))); err != nil {
		return fmt.Errorf("failed to write output: %w", err)
	}
	if err := stats.RenderReport(out, report); err != nil {
		return fmt.Errorf("failed to write output: %w", err)
	}
	return nil
}

// statusSource reads the pending record from the configured store and history from SQLite.
type statusSource struct {
	pending progress.Store
	*store.Store
}

func (s statusSource) Load(ctx context.Context) (model.LocalProgress, bool, error) {
	return s.pending.Load(ctx)
}

func newServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the development backend",
		Args:  cobra.NoArgs,
		RunE:  runServeCmd,
	}
	cmd.Flags().StringVar(&serveAddr, "addr", defaultServeAddr, "listen address")
	cmd.Flags().StringVar(&serveDB, "server-db", "", "server SQLite database path (default: XDG data dir)")
	cmd.Flags().StringVar(&serveGameConfig, "game-config", "", "YAML game configuration file")
	return cmd
}

func runServeCmd(cmd *cobra.Command, _ []string) error {
	fileCfg, err := loadFileConfig()
	if err != nil {
		return err
	}
	applyStringConfig(cmd, "addr", &serveAddr, fileCfg.Server.Addr)
	applyStringConfig(cmd, "server-db", &serveDB, fileCfg.Server.DB)
	applyStringConfig(cmd, "game-config", &serveGameConfig, fileCfg.Server.GameConfig)
	applyStringConfig(cmd, "log-level", &clientLogLevel, fileCfg.Server.LogLevel)
	if serveDB == "" {
		serveDB = config.DefaultServerDBPath()
	}

	logger, err := setupLogger(os.Stderr, clientLogLevel, clientLogFormat)
	if err != nil {
		return err
	}
	gameCfg, err := server.LoadGameConfig(serveGameConfig)
	if err != nil {
		return err
	}
	st, err := store.Open(serveDB)
	if err != nil {
		return fmt.Errorf("failed to open db: %w", err)
	}
	defer func() {
		if cerr := st.Close(); cerr != nil {
			logErrf("failed to close db: %v\n", cerr)
		}
	}()

	srv, err := server.New(server.Options{Config: gameCfg, Users: st, Logger: logger})
	if err != nil {
		return err
	}
	return srv.Serve(cmd.Context(), serveAddr)
}

func newConfigCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "config",
		Short: "Create/open config file",
		Args:  cobra.NoArgs,
		RunE:  runConfigCmd,
	}
}

func runConfigCmd(_ *cobra.Command, _ []string) error {
	path := config.DefaultConfigPath()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}
	if _, err := os.Stat(path); err != nil {
		if !os.IsNotExist(err) {
			return fmt.Errorf("failed to stat config: %w", err)
		}
		if err := os.WriteFile(path, []byte(defaultConfigTemplate()), 0o644); err != nil {
			return fmt.Errorf("failed to write config: %w", err)
		}
	}

	editor := strings.TrimSpace(os.Getenv("EDITOR"))
	if editor == "" {
		editor = "vi"
	}
	parts := strings.Fields(editor)
	if len(parts) == 0 {
		return fmt.Errorf("editor command is empty")
	}
	cmd := exec.Command(parts[0], append(parts[1:], path)...)
	cmd.Stdin = os.Stdin
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	if err := cmd.Run(); err != nil {
		return fmt.Errorf("failed to open editor: %w", err)
	}
	return nil
}

// loadFileConfig reads the TOML file and lays BALANCE_* variables over it.
func loadFileConfig() (config.FileConfig, error) {
	fileCfg, err := config.LoadConfig(config.DefaultConfigPath())
	if err != nil {
		return config.FileConfig{}, fmt.Errorf("failed to load config: %w", err)
	}
	envCfg, err := config.LoadEnv()
	if err != nil {
		return config.FileConfig{}, err
	}
	return envCfg.Overlay(fileCfg), nil
}

func applyClientConfig(cmd *cobra.Command, fileCfg config.FileConfig) error {
	c := fileCfg.Client
	applyStringConfig(cmd, "server", &clientServerURL, c.ServerURL)
	applyStringConfig(cmd, "user", &clientUserID, c.UserID)
	applyStringConfig(cmd, "role", &clientRole, c.Role)
	applyStringConfig(cmd, "name", &clientName, c.Name)
	applyStringConfig(cmd, "store", &clientStore, c.Store)
	applyStringConfig(cmd, "db", &clientDB, c.DB)
	applyStringConfig(cmd, "redis-addr", &clientRedisAddr, c.RedisAddr)
	applyStringConfig(cmd, "log-level", &clientLogLevel, c.LogLevel)
	if err := applyDurationConfig(cmd, "probe-interval", &clientProbeInterval, c.ProbeInterval); err != nil {
		return err
	}
	return applyDurationConfig(cmd, "request-timeout", &clientRequestTimeout, c.RequestTimeout)
}

func validateClientConfig() error {
	if strings.TrimSpace(clientServerURL) == "" {
		return fmt.Errorf("--server must not be empty")
	}
	switch clientStore {
	case "sqlite", "memory":
	case "redis":
		if clientRedisAddr == "" {
			return fmt.Errorf("--redis-addr is required with --store redis")
		}
	default:
		return fmt.Errorf("--store must be sqlite, redis or memory")
	}
	switch strings.ToLower(clientRole) {
	case model.RoleAnonymous, model.RoleStudent, model.RoleTeacher:
	default:
		return fmt.Errorf("--role must be anonymous, student or teacher")
	}
	if clientProbeInterval <= 0 {
		return fmt.Errorf("--probe-interval must be > 0")
	}
	if clientRequestTimeout <= 0 {
		return fmt.Errorf("--request-timeout must be > 0")
	}
	if _, err := parseLevel(clientLogLevel); err != nil {
		return err
	}
	if clientLogFormat != "text" && clientLogFormat != "json" {
		return fmt.Errorf("--log-format must be text or json")
	}
	return nil
}

func applyStringConfig(cmd *cobra.Command, name string, target, value *string) {
	if value == nil {
		return
	}
	if cmd.Flags().Changed(name) {
		return
	}
	*target = *value
}

func applyDurationConfig(cmd *cobra.Command, name string, target *time.Duration, value *string) error {
	if value == nil {
		return nil
	}
	if cmd.Flags().Changed(name) {
		return nil
	}
	d, err := time.ParseDuration(*value)
	if err != nil {
		return fmt.Errorf("invalid %s in config: %w", name, err)
	}
	*target = d
	return nil
}

func parseLevel(name string) (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(name)); err != nil {
		return 0, fmt.Errorf("--log-level must be debug, info, warn or error")
	}
	return level, nil
}

func setupLogger(w io.Writer, levelName, format string) (*slog.Logger, error) {
	level, err := parseLevel(levelName)
	if err != nil {
		return nil, err
	}
	opts := &slog.HandlerOptions{Level: level}
	var handler slog.Handler
	if format == "json" {
		handler = slog.NewJSONHandler(w, opts)
	} else {
		handler = slog.NewTextHandler(w, opts)
	}
	return slog.New(handler), nil
}

func defaultConfigTemplate() string {
	return fmt.Sprintf(`# balance configuration
# Uncomment a value to enable it. CLI flags and BALANCE_* variables override config values.

[client]
# server-url = %q     # Backend base URL
# user-id = ""        # Required for students and teachers
# role = %q           # anonymous, student or teacher
# name = ""           # Display name
# store = %q          # Pending progress store: sqlite, redis or memory
# db = ""             # SQLite path (default: XDG data dir)
# redis-addr = ""     # Redis address for store = "redis"
# probe-interval = %q # Health probe interval
# request-timeout = %q
# log-level = %q

[server]
# addr = %q
# db = ""             # Server SQLite path (default: XDG data dir)
# game-config = ""    # YAML game configuration
# log-level = %q
`,
		defaultServerURL,
		model.RoleAnonymous,
		defaultStore,
		defaultProbeInterval.String(),
		defaultRequestTimeout.String(),
		defaultLogLevel,
		defaultServeAddr,
		defaultLogLevel,
	)
}

func logErrf(format string, args ...any) {
	if _, err := fmt.Fprintf(os.Stderr, format, args...); err != nil {
		// Best-effort logging to stderr.
		_ = err
	}
}

func logErrln(args ...any) {
	if _, err := fmt.Fprintln(os.Stderr, args...); err != nil {
		// Best-effort logging to stderr.
		_ = err
	}
}
