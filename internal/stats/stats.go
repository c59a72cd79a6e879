// Package stats renders progress and sync history for the status command.
package stats

import (
	"fmt"
	"io"
	"math"
	"strings"
	"time"

	"github.com/verte-zerg/balance/internal/model"
)

const (
	sparkChars    = " .:-=+*#%@"
	timeLayout    = "2006-01-02 15:04:05"
	maxErrorWidth = 40
)

// Accuracy returns correct/attempted in [0, 1], or 0 when nothing was attempted.
func Accuracy(correct, attempted int) float64 {
	if attempted <= 0 {
		return 0
	}
	return float64(correct) / float64(attempted)
}

// MovingAverage computes a rolling mean over the provided window size.
func MovingAverage(values []float64, window int) []float64 {
	if window <= 1 || len(values) == 0 {
		out := make([]float64, len(values))
		copy(out, values)
		return out
	}
	out := make([]float64, len(values))
	var sum float64
	for i := 0; i < len(values); i++ {
		sum += values[i]
		if i >= window {
			sum -= values[i-window]
		}
		den := float64(i + 1)
		if i >= window {
			den = float64(window)
		}
		out[i] = sum / den
	}
	return out
}

// Sparkline renders a single-line ASCII sparkline for the values.
func Sparkline(values []float64) string {
	if len(values) == 0 {
		return ""
	}
	minVal, maxVal := values[0], values[0]
	for _, v := range values[1:] {
		minVal = math.Min(minVal, v)
		maxVal = math.Max(maxVal, v)
	}
	if math.Abs(maxVal-minVal) < 1e-9 {
		return strings.Repeat(string(sparkChars[len(sparkChars)/2]), len(values))
	}
	var b strings.Builder
	for _, v := range values {
		pos := (v - minVal) / (maxVal - minVal)
		idx := int(math.Round(pos * float64(len(sparkChars)-1)))
		idx = max(0, min(idx, len(sparkChars)-1))
		b.WriteByte(sparkChars[idx])
	}
	return b.String()
}

// RenderPending prints the pending local record, if any.
func RenderPending(w io.Writer, p *model.LocalProgress) error {
	if p == nil {
		_, err := fmt.Fprintln(w, "Pending: nothing to sync")
		return err
	}
	_, err := fmt.Fprintf(w, "Pending: level %d, %d xp, %d/%d correct (%.0f%%), saved %s\n",
		p.Level, p.XP, p.QuestionsCorrect, p.QuestionsAttempted,
		Accuracy(p.QuestionsCorrect, p.QuestionsAttempted)*100,
		p.Timestamp.Local().Format(timeLayout))
	return err
}

// RenderServerProgress prints the authoritative progress.
func RenderServerProgress(w io.Writer, up model.UserProgress) error {
	_, err := fmt.Fprintf(w, "Server: level %d, score %d, streak %d, %d/%d correct (%.1f%%)\n",
		up.CurrentLevel, up.CurrentScore, up.Streak, up.QuestionsCorrect, up.TotalProblems,
		Accuracy(up.QuestionsCorrect, up.TotalProblems)*100)
	return err
}

// RenderHistory prints the sync attempt table followed by an xp sparkline of the
// pushed snapshots.
func RenderHistory(w io.Writer, attempts []model.SyncAttempt, lastSync time.Time) error {
	if lastSync.IsZero() {
		if _, err := fmt.Fprintln(w, "Last sync: never"); err != nil {
			return err
		}
	} else if _, err := fmt.Fprintf(w, "Last sync: %s\n", lastSync.Local().Format(timeLayout)); err != nil {
		return err
	}
	if len(attempts) == 0 {
		_, err := fmt.Fprintln(w, "No sync attempts recorded.")
		return err
	}

	if _, err := fmt.Fprintln(w, ""); err != nil {
		return err
	}
	headers := []string{"When", "Result", "Level", "XP", "Accuracy", "Error"}
	rows := make([][]string, 0, len(attempts))
	xp := make([]float64, 0, len(attempts))
	ok := 0
	for _, a := range attempts {
		result := "failed"
		if a.OK {
			result = "ok"
			ok++
		}
		rows = append(rows, []string{
			a.AttemptedAt.Local().Format(timeLayout),
			result,
			fmt.Sprintf("%d", a.Progress.Level),
			fmt.Sprintf("%d", a.Progress.XP),
			fmt.Sprintf("%.1f%%", Accuracy(a.Progress.QuestionsCorrect, a.Progress.QuestionsAttempted)*100),
			truncate(a.Error, maxErrorWidth),
		})
		xp = append(xp, float64(a.Progress.XP))
	}
	rightAlign := map[int]bool{2: true, 3: true, 4: true}
	for _, line := range formatTable(headers, rows, rightAlign) {
		if _, err := fmt.Fprintln(w, line); err != nil {
			return err
		}
	}
	if _, err := fmt.Fprintf(w, "\nAttempts: %d, succeeded: %d\n", len(attempts), ok); err != nil {
		return err
	}
	if len(xp) > 1 {
		if _, err := fmt.Fprintf(w, "XP trend: [%s]\n", Sparkline(xp)); err != nil {
			return err
		}
	}
	return nil
}

// RenderReport prints everything in r.
func RenderReport(w io.Writer, r Report) error {
	if err := RenderPending(w, r.Pending); err != nil {
		return err
	}
	switch {
	case r.Server != nil:
		if err := RenderServerProgress(w, *r.Server); err != nil {
			return err
		}
	case r.Online:
		if _, err := fmt.Fprintln(w, "Server: no progress recorded yet"); err != nil {
			return err
		}
	default:
		if _, err := fmt.Fprintln(w, "Server: unreachable"); err != nil {
			return err
		}
	}
	return RenderHistory(w, r.History, r.LastSync)
}
