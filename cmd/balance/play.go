package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/verte-zerg/balance/internal/config"
	"github.com/verte-zerg/balance/internal/connectivity"
	"github.com/verte-zerg/balance/internal/game"
	"github.com/verte-zerg/balance/internal/leveling"
	"github.com/verte-zerg/balance/internal/model"
	"github.com/verte-zerg/balance/internal/progress"
)

const (
	terminalWidthBackup = 80
	minGaugeWidth       = 11
	maxGaugeWidth       = 61
)

var (
	problemStyle   = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#C89A3A"))
	correctStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("#52C41A"))
	incorrectStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#FF4D4F"))
	footerStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("#6E6E6E"))
)

var errQuit = errors.New("quit")

func runPlayCmd(cmd *cobra.Command, _ []string) error {
	logFile, err := openLogFile(config.DefaultLogPath())
	if err != nil {
		return err
	}
	defer func() {
		if cerr := logFile.Close(); cerr != nil {
			logErrf("failed to close log: %v\n", cerr)
		}
	}()

	env, err := openClientEnv(cmd, logFile)
	if err != nil {
		return err
	}
	defer env.Close()

	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	env.monitor.Observe(env.probe.Check(ctx))
	stopWatch := watchConnectivity(ctx, env.monitor, env.probe, env.logger)
	defer stopWatch()

	session, err := game.Start(ctx, game.Options{
		User:         env.user,
		Backend:      env.client,
		Store:        env.pending,
		Connectivity: env.monitor,
		Syncer:       env.coord,
		ConfigCache:  env.db,
		Progress:     env.db,
		Logger:       env.logger,
	})
	if err != nil {
		if errors.Is(err, game.ErrConfigUnavailable) {
			return fmt.Errorf("cannot start: server %s is unreachable and no cached game config exists", clientServerURL)
		}
		return err
	}
	defer session.Close()

	env.onSynced = session.MarkSynced
	detach := env.coord.Attach(ctx, env.monitor)
	defer detach()
	env.coord.Trigger(ctx)

	p := &player{
		session:     session,
		online:      env.monitor.Online,
		out:         cmd.OutOrStdout(),
		lines:       readLines(ctx, cmd.InOrStdin()),
		width:       terminalWidth(),
		interactive: term.IsTerminal(int(os.Stdin.Fd())),
	}
	if err := p.loop(ctx); err != nil && !errors.Is(err, errQuit) && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

// watchConnectivity feeds src into m in the background. The returned function stops
// the watcher and waits for it to exit.
func watchConnectivity(ctx context.Context, m *connectivity.Monitor, src connectivity.Source, logger *slog.Logger) func() {
	ctx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	go func() {
		defer close(done)
		if err := m.Watch(ctx, src); err != nil && !errors.Is(err, context.Canceled) {
			logger.Warn("connectivity watch stopped", "error", err)
		}
	}()
	return func() {
		cancel()
		<-done
	}
}

type player struct {
	session     *game.Session
	online      func() bool
	out         io.Writer
	lines       <-chan string
	width       int
	interactive bool
}

func (p *player) loop(ctx context.Context) error {
	if p.interactive {
		p.printf("%s\n", footerStyle.Render("Pick options that add up to the target, e.g. \"1 3\". Type q to quit."))
	}
	for {
		problem, err := p.session.NextProblem(ctx)
		if err != nil {
			return err
		}
		if err := p.round(ctx, problem); err != nil {
			return err
		}
	}
}

func (p *player) round(ctx context.Context, problem model.Problem) error {
	limit := p.session.Config().TimeLimit()
	p.printf("\n%s\n", problemStyle.Render(fmt.Sprintf("Target: %d", problem.TargetNumber)))
	p.printf("%s\n", formatOptions(problem.Options))

	var timeout <-chan time.Time
	if limit > 0 {
		timer := time.NewTimer(limit)
		defer timer.Stop()
		timeout = timer.C
	}

	var selected []int
	for answered := false; !answered; {
		p.printf("> ")
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-timeout:
			p.printf("\n%s\n", incorrectStyle.Render("Time's up!"))
			answered = true
		case line, ok := <-p.lines:
			if !ok {
				return errQuit
			}
			line = strings.TrimSpace(line)
			if strings.EqualFold(line, "q") {
				return errQuit
			}
			sel, err := parseSelection(line, problem.Options)
			if err != nil {
				p.printf("%s\n", footerStyle.Render(err.Error()))
				continue
			}
			selected = sel
			answered = true
		}
	}

	res, err := p.session.Answer(ctx, problem, selected)
	if err != nil {
		if !errors.Is(err, progress.ErrStorageUnavailable) {
			return err
		}
		p.printf("%s\n", incorrectStyle.Render("Warning: progress could not be saved on this device."))
	}
	p.printResult(res)
	return nil
}

func (p *player) printResult(res model.SubmitResult) {
	style := incorrectStyle
	if res.Correct {
		style = correctStyle
	}
	p.printf("%s\n", style.Render(res.Feedback))
	p.printf("%s\n", renderTilt(res.TiltAngle, gaugeWidth(p.width)))
	p.printf("%s\n", footerStyle.Render(statusLine(p.session.Snapshot(), p.online())))
}

func (p *player) printf(format string, args ...any) {
	if _, err := fmt.Fprintf(p.out, format, args...); err != nil {
		// Best-effort output; the next read fails if stdout is gone.
		_ = err
	}
}

// readLines forwards input lines until EOF or ctx ends.
func readLines(ctx context.Context, r io.Reader) <-chan string {
	lines := make(chan string)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(r)
		for scanner.Scan() {
			select {
			case lines <- scanner.Text():
			case <-ctx.Done():
				return
			}
		}
	}()
	return lines
}

// parseSelection turns 1-based option indices separated by spaces or commas into the
// selected option values.
func parseSelection(input string, options []int) ([]int, error) {
	fields := strings.FieldsFunc(input, func(r rune) bool {
		return r == ' ' || r == ',' || r == '\t'
	})
	if len(fields) == 0 {
		return nil, fmt.Errorf("pick at least one option (1-%d)", len(options))
	}
	seen := make(map[int]bool, len(fields))
	selected := make([]int, 0, len(fields))
	for _, f := range fields {
		idx, err := strconv.Atoi(f)
		if err != nil || idx < 1 || idx > len(options) {
			return nil, fmt.Errorf("%q is not an option number (1-%d)", f, len(options))
		}
		if seen[idx] {
			return nil, fmt.Errorf("option %d picked twice", idx)
		}
		seen[idx] = true
		selected = append(selected, options[idx-1])
	}
	return selected, nil
}

func formatOptions(options []int) string {
	parts := make([]string, len(options))
	for i, v := range options {
		parts[i] = fmt.Sprintf("[%d] %d", i+1, v)
	}
	return strings.Join(parts, "   ")
}

// renderTilt draws the balance beam as a bar with a marker. Negative angles lean left.
func renderTilt(angle float64, width int) string {
	if width < minGaugeWidth {
		width = minGaugeWidth
	}
	if width%2 == 0 {
		width--
	}
	half := width / 2
	angle = math.Max(-leveling.MaxTilt, math.Min(leveling.MaxTilt, angle))
	pos := half + int(math.Round(angle/leveling.MaxTilt*float64(half)))

	bar := []rune(strings.Repeat("-", width))
	bar[half] = '|'
	bar[pos] = 'o'
	return fmt.Sprintf("[%s] %+.0f°", string(bar), angle)
}

func gaugeWidth(termWidth int) int {
	w := termWidth - 12
	if w > maxGaugeWidth {
		w = maxGaugeWidth
	}
	if w < minGaugeWidth {
		w = minGaugeWidth
	}
	return w
}

func statusLine(s game.Snapshot, online bool) string {
	conn := "offline"
	if online {
		conn = "online"
	}
	line := fmt.Sprintf("Level %d  Score %d  Streak %d  %d/%d correct  %s",
		s.Level, s.Score, s.Streak, s.QuestionsCorrect, s.QuestionsAttempted, conn)
	if s.Pending {
		line += "  (progress pending sync)"
	}
	return line
}

func terminalWidth() int {
	width, _, err := term.GetSize(int(os.Stdout.Fd()))
	if err != nil || width <= 0 {
		return terminalWidthBackup
	}
	return width
}

func openLogFile(path string) (*os.File, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create log directory: %w", err)
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("failed to open log: %w", err)
	}
	return f, nil
}
