package stats

import (
	"bytes"
	"context"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/verte-zerg/balance/internal/model"
	"github.com/verte-zerg/balance/internal/store"
)

func TestBuildReport(t *testing.T) {
	dir := t.TempDir()
	st, err := store.Open(filepath.Join(dir, "balance.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() {
		_ = st.Close()
	})

	ctx := context.Background()
	for i := 0; i < 3; i++ {
		attempt := model.SyncAttempt{
			AttemptedAt: time.Unix(1_700_000_000, 0).Add(time.Duration(i) * time.Minute),
			OK:          i != 1,
			Progress: model.LocalProgress{
				Level:              1,
				XP:                 10 * (i + 1),
				QuestionsCorrect:   i + 1,
				QuestionsAttempted: i + 2,
				Timestamp:          time.Unix(1_700_000_000, 0),
			},
		}
		if !attempt.OK {
			attempt.Error = "sync failed: connection refused"
		}
		if _, err := st.RecordSyncAttempt(ctx, attempt); err != nil {
			t.Fatalf("record attempt: %v", err)
		}
	}
	pending := model.LocalProgress{Level: 1, XP: 40, QuestionsCorrect: 4, QuestionsAttempted: 5, Timestamp: time.Now()}
	if err := st.Save(ctx, pending); err != nil {
		t.Fatalf("save pending: %v", err)
	}

	report, err := BuildReport(ctx, st, 2)
	if err != nil {
		t.Fatalf("build report: %v", err)
	}
	if report.Pending == nil || report.Pending.XP != 40 {
		t.Fatalf("unexpected pending: %+v", report.Pending)
	}
	if len(report.History) != 2 {
		t.Fatalf("expected 2 attempts, got %d", len(report.History))
	}
	if report.History[0].Progress.XP != 20 || report.History[1].Progress.XP != 30 {
		t.Fatalf("unexpected history order: %+v", report.History)
	}
	if !report.LastSync.Equal(time.Unix(1_700_000_000, 0).Add(2 * time.Minute)) {
		t.Fatalf("unexpected last sync: %v", report.LastSync)
	}

	var buf bytes.Buffer
	if err := RenderReport(&buf, report); err != nil {
		t.Fatalf("render: %v", err)
	}
	out := buf.String()
	for _, want := range []string{"Pending: level 1, 40 xp", "Server: unreachable", "connection refused", "Attempts: 2, succeeded: 1", "XP trend:"} {
		if !strings.Contains(out, want) {
			t.Fatalf("expected %q in output:\n%s", want, out)
		}
	}
}

func TestRenderHistoryEmpty(t *testing.T) {
	var buf bytes.Buffer
	if err := RenderHistory(&buf, nil, time.Time{}); err != nil {
		t.Fatalf("render: %v", err)
	}
	if got := buf.String(); got != "Last sync: never\nNo sync attempts recorded.\n" {
		t.Fatalf("unexpected output: %q", got)
	}
}

func TestSparkline(t *testing.T) {
	if got := Sparkline([]float64{1, 2, 3}); got != " +@" {
		t.Fatalf("unexpected sparkline: %q", got)
	}
	if got := Sparkline([]float64{5, 5}); got != "++" {
		t.Fatalf("unexpected flat sparkline: %q", got)
	}
	if got := Sparkline(nil); got != "" {
		t.Fatalf("expected empty sparkline, got %q", got)
	}
}

func TestAccuracyAndMovingAverage(t *testing.T) {
	if Accuracy(3, 4) != 0.75 || Accuracy(0, 0) != 0 {
		t.Fatalf("unexpected accuracy")
	}
	got := MovingAverage([]float64{2, 4, 6, 8}, 2)
	want := []float64{2, 3, 5, 7}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("moving average[%d] = %v, want %v", i, got[i], want[i])
		}
	}
}
