// Package server is the development backend: it serves game configuration and
// problems, evaluates submitted answers and merges client progress snapshots.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/verte-zerg/balance/internal/api"
	"github.com/verte-zerg/balance/internal/generator"
	"github.com/verte-zerg/balance/internal/leveling"
	"github.com/verte-zerg/balance/internal/model"
	"github.com/verte-zerg/balance/internal/store"
)

const (
	maxBodyBytes    = 64 << 10
	shutdownTimeout = 10 * time.Second
)

var errUnknownUser = errors.New("user not found")

// Users persists authoritative per-user progress.
type Users interface {
	GetUser(ctx context.Context, userID string) (store.UserRow, bool, error)
	UpdateUser(ctx context.Context, userID string, fn func(store.UserRow) (store.UserRow, error)) (store.UserRow, error)
}

// Options configures a Server.
type Options struct {
	Config          model.GameConfig
	Users           Users
	Generator       *generator.Generator
	Logger          *slog.Logger
	ProblemCapacity int
}

// Server implements the backend HTTP API.
type Server struct {
	cfg      model.GameConfig
	users    Users
	gen      *generator.Generator
	problems *problemCache
	logger   *slog.Logger
}

// New validates the configuration and builds a server.
func New(opts Options) (*Server, error) {
	if opts.Users == nil {
		return nil, fmt.Errorf("server: users store is required")
	}
	if err := leveling.ValidateConfig(opts.Config); err != nil {
		return nil, fmt.Errorf("server: %w", err)
	}
	s := &Server{
		cfg:      opts.Config,
		users:    opts.Users,
		gen:      opts.Generator,
		problems: newProblemCache(opts.ProblemCapacity),
		logger:   opts.Logger,
	}
	if s.gen == nil {
		s.gen = generator.New()
	}
	if s.logger == nil {
		s.logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return s, nil
}

// RegisterRoutes adds the API routes to mux.
func (s *Server) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /health", s.handleHealth)
	mux.HandleFunc("GET /game/config", s.handleConfig)
	mux.HandleFunc("GET /game/problem", s.handleProblem)
	mux.HandleFunc("POST /game/submit", s.handleSubmit)
	mux.HandleFunc("POST /api/game/sync", s.handleSync)
	mux.HandleFunc("GET /user/{userId}/progress", s.handleUserProgress)
}

// Handler returns the API with request logging.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	s.RegisterRoutes(mux)
	return s.logRequests(mux)
}

// Serve listens on addr and serves until ctx ends.
func (s *Server) Serve(ctx context.Context, addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", addr, err)
	}
	return s.ServeListener(ctx, ln)
}

// ServeListener serves on ln until ctx ends, then shuts down gracefully.
func (s *Server) ServeListener(ctx context.Context, ln net.Listener) error {
	httpServer := &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	s.logger.Info("server listening", "addr", ln.Addr().String())

	serveErr := make(chan error, 1)
	go func() {
		serveErr <- httpServer.Serve(ln)
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("shutdown: %w", err)
		}
		<-serveErr
		return nil
	case err := <-serveErr:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("serve HTTP: %w", err)
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleConfig(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.cfg)
}

func (s *Server) handleProblem(w http.ResponseWriter, r *http.Request) {
	level := leveling.LevelNumbers(s.cfg.Levels)[0]
	if raw := r.URL.Query().Get("level"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			writeJSONError(w, http.StatusBadRequest, "level must be a positive integer")
			return
		}
		level = n
	}
	p := s.gen.Generate(leveling.LevelFor(s.cfg.Levels, level), s.cfg.NumOptions)
	s.problems.put(p)
	writeJSON(w, http.StatusOK, p)
}

func (s *Server) handleSubmit(w http.ResponseWriter, r *http.Request) {
	var req model.SubmitRequest
	if err := decodeJSON(r, &req); err != nil {
		writeJSONError(w, http.StatusBadRequest, err.Error())
		return
	}
	if strings.TrimSpace(req.UserID) == "" {
		writeJSONError(w, http.StatusBadRequest, "userId is required")
		return
	}
	p, ok := s.problems.take(req.ProblemID)
	if !ok {
		writeJSONError(w, http.StatusNotFound, "unknown or already answered problem")
		return
	}

	correct := generator.Check(p, req.SelectedOptions)
	var res model.SubmitResult
	_, err := s.users.UpdateUser(r.Context(), req.UserID, func(row store.UserRow) (store.UserRow, error) {
		state := leveling.State{
			Score:  row.Progress.CurrentScore,
			Streak: row.Progress.Streak,
			Level:  row.Progress.CurrentLevel,
		}
		res = leveling.Evaluate(correct, req.SelectedOptions, p.TargetNumber, state, s.cfg)
		row.Progress = model.UserProgress{
			CurrentLevel:     res.NewLevel,
			CurrentScore:     res.NewScore,
			Streak:           res.NewStreak,
			TotalProblems:    row.Progress.TotalProblems + 1,
			QuestionsCorrect: row.Progress.QuestionsCorrect,
		}
		if correct {
			row.Progress.QuestionsCorrect++
		}
		return row, nil
	})
	if err != nil {
		s.logger.Error("submit failed", "user", req.UserID, "error", err)
		writeJSONError(w, http.StatusInternalServerError, "could not record answer")
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) handleSync(w http.ResponseWriter, r *http.Request) {
	userID := strings.TrimSpace(r.Header.Get(api.UserHeader))
	if userID == "" {
		writeJSONError(w, http.StatusBadRequest, api.UserHeader+" header is required")
		return
	}
	var snap model.LocalProgress
	if err := decodeJSON(r, &snap); err != nil {
		writeJSONError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := validateSnapshot(snap); err != nil {
		writeJSONError(w, http.StatusUnprocessableEntity, err.Error())
		return
	}

	applied := false
	row, err := s.users.UpdateUser(r.Context(), userID, func(row store.UserRow) (store.UserRow, error) {
		row, applied = mergeSnapshot(row, snap, s.cfg.Levels)
		return row, nil
	})
	if err != nil {
		s.logger.Error("sync failed", "user", userID, "error", err)
		writeJSONError(w, http.StatusInternalServerError, "could not merge progress")
		return
	}
	s.logger.Info("snapshot merged", "user", userID, "applied", applied,
		"level", row.Progress.CurrentLevel, "score", row.Progress.CurrentScore)
	writeJSON(w, http.StatusOK, row.Progress)
}

func (s *Server) handleUserProgress(w http.ResponseWriter, r *http.Request) {
	userID := r.PathValue("userId")
	row, ok, err := s.users.GetUser(r.Context(), userID)
	if err != nil {
		s.logger.Error("load user failed", "user", userID, "error", err)
		writeJSONError(w, http.StatusInternalServerError, "could not load progress")
		return
	}
	if !ok {
		writeJSONError(w, http.StatusNotFound, errUnknownUser.Error())
		return
	}
	writeJSON(w, http.StatusOK, row.Progress)
}

type errorResponse struct {
	Error string `json:"error"`
}

func decodeJSON(r *http.Request, out any) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	if err := dec.Decode(out); err != nil {
		return fmt.Errorf("invalid JSON body: %w", err)
	}
	return nil
}

func writeJSONError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, errorResponse{Error: message})
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		s.logger.Debug("request", "method", r.Method, "path", r.URL.Path,
			"status", rec.status, "duration", time.Since(start))
	})
}
