package store

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/verte-zerg/balance/internal/model"
	"github.com/verte-zerg/balance/internal/progress"
)

func openTestStore(t *testing.T) (*Store, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "balance.db")
	st, err := Open(path)
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() {
		_ = st.Close()
	})
	return st, path
}

func snapshot(xp int) model.LocalProgress {
	return model.LocalProgress{
		Level:              1 + xp/50,
		XP:                 xp,
		QuestionsCorrect:   xp / 10,
		QuestionsAttempted: xp/10 + 2,
		Timestamp:          time.Unix(1_700_000_000, 0).Add(time.Duration(xp) * time.Second).UTC(),
	}
}

func TestPendingProgressRoundTrip(t *testing.T) {
	st, _ := openTestStore(t)
	ctx := context.Background()

	if _, ok, err := st.Load(ctx); err != nil || ok {
		t.Fatalf("expected empty slot, got ok=%v err=%v", ok, err)
	}
	want := snapshot(30)
	if err := st.Save(ctx, want); err != nil {
		t.Fatalf("save: %v", err)
	}
	got, ok, err := st.Load(ctx)
	if err != nil || !ok {
		t.Fatalf("load: ok=%v err=%v", ok, err)
	}
	if !got.Equal(want) {
		t.Fatalf("round trip mismatch: got %+v want %+v", got, want)
	}
}

func TestSecondSaveOverwritesFirst(t *testing.T) {
	st, _ := openTestStore(t)
	ctx := context.Background()

	if err := st.Save(ctx, snapshot(10)); err != nil {
		t.Fatalf("save first: %v", err)
	}
	second := snapshot(20)
	if err := st.Save(ctx, second); err != nil {
		t.Fatalf("save second: %v", err)
	}
	got, ok, err := st.Load(ctx)
	if err != nil || !ok {
		t.Fatalf("load: ok=%v err=%v", ok, err)
	}
	if !got.Equal(second) {
		t.Fatalf("expected second snapshot, got %+v", got)
	}
	var count int
	if err := st.db.QueryRow(`SELECT COUNT(*) FROM pending_progress`).Scan(&count); err != nil {
		t.Fatalf("count: %v", err)
	}
	if count != 1 {
		t.Fatalf("expected exactly one stored record, got %d", count)
	}
}

func TestClearIsIdempotent(t *testing.T) {
	st, _ := openTestStore(t)
	ctx := context.Background()

	if err := st.Clear(ctx); err != nil {
		t.Fatalf("clear empty: %v", err)
	}
	if err := st.Save(ctx, snapshot(10)); err != nil {
		t.Fatalf("save: %v", err)
	}
	for i := 0; i < 2; i++ {
		if err := st.Clear(ctx); err != nil {
			t.Fatalf("clear %d: %v", i, err)
		}
	}
	if _, ok, err := st.Load(ctx); err != nil || ok {
		t.Fatalf("expected empty slot after clear, got ok=%v err=%v", ok, err)
	}
}

func TestClearIfMatchKeepsNewerRecord(t *testing.T) {
	st, _ := openTestStore(t)
	ctx := context.Background()

	pushed := snapshot(10)
	if err := st.Save(ctx, pushed); err != nil {
		t.Fatalf("save: %v", err)
	}
	newer := snapshot(20)
	if err := st.Save(ctx, newer); err != nil {
		t.Fatalf("save newer: %v", err)
	}
	removed, err := st.ClearIfMatch(ctx, pushed)
	if err != nil {
		t.Fatalf("clear if match: %v", err)
	}
	if removed {
		t.Fatalf("newer record must survive")
	}
	removed, err = st.ClearIfMatch(ctx, newer)
	if err != nil || !removed {
		t.Fatalf("expected newer record removed, removed=%v err=%v", removed, err)
	}
}

func TestPendingProgressSurvivesReopen(t *testing.T) {
	st, path := openTestStore(t)
	ctx := context.Background()
	want := snapshot(40)
	if err := st.Save(ctx, want); err != nil {
		t.Fatalf("save: %v", err)
	}
	if err := st.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	reopened, err := Open(path)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer reopened.Close()
	got, ok, err := reopened.Load(ctx)
	if err != nil || !ok || !got.Equal(want) {
		t.Fatalf("expected %+v after reopen, got %+v ok=%v err=%v", want, got, ok, err)
	}
}

func TestOpenUnwritablePathIsStorageUnavailable(t *testing.T) {
	dir := t.TempDir()
	blocker := filepath.Join(dir, "file")
	if err := os.WriteFile(blocker, []byte("x"), 0o644); err != nil {
		t.Fatalf("write blocker: %v", err)
	}
	_, err := Open(filepath.Join(blocker, "nested", "balance.db"))
	if err == nil {
		t.Fatalf("expected error opening db below a regular file")
	}
	if !errors.Is(err, progress.ErrStorageUnavailable) {
		t.Fatalf("expected ErrStorageUnavailable, got %v", err)
	}
}

func TestClosedStoreReportsStorageUnavailable(t *testing.T) {
	st, _ := openTestStore(t)
	if err := st.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	err := st.Save(context.Background(), snapshot(10))
	if !errors.Is(err, progress.ErrStorageUnavailable) {
		t.Fatalf("expected ErrStorageUnavailable, got %v", err)
	}
}

func TestSyncHistory(t *testing.T) {
	st, _ := openTestStore(t)
	ctx := context.Background()

	if _, ok, err := st.LastSyncTime(ctx); err != nil || ok {
		t.Fatalf("expected no last sync, ok=%v err=%v", ok, err)
	}
	base := time.Unix(1_700_000_000, 0).UTC()
	for i, ok := range []bool{false, true, false} {
		attempt := model.SyncAttempt{
			AttemptedAt: base.Add(time.Duration(i) * time.Minute),
			OK:          ok,
			Progress:    snapshot(10 * (i + 1)),
		}
		if !ok {
			attempt.Error = "connection refused"
		}
		if _, err := st.RecordSyncAttempt(ctx, attempt); err != nil {
			t.Fatalf("record attempt %d: %v", i, err)
		}
	}

	last, ok, err := st.LastSyncTime(ctx)
	if err != nil || !ok {
		t.Fatalf("last sync: ok=%v err=%v", ok, err)
	}
	if !last.Equal(base.Add(time.Minute)) {
		t.Fatalf("unexpected last sync time %v", last)
	}

	attempts, err := st.ListSyncAttempts(ctx, 2)
	if err != nil {
		t.Fatalf("list attempts: %v", err)
	}
	if len(attempts) != 2 {
		t.Fatalf("expected 2 attempts, got %d", len(attempts))
	}
	if !attempts[0].OK || attempts[1].OK {
		t.Fatalf("unexpected order: %+v", attempts)
	}
	if attempts[1].Error != "connection refused" || attempts[1].Progress.XP != 30 {
		t.Fatalf("unexpected last attempt: %+v", attempts[1])
	}
	all, err := st.ListSyncAttempts(ctx, 0)
	if err != nil || len(all) != 3 {
		t.Fatalf("expected all 3 attempts, got %d err=%v", len(all), err)
	}
}

func TestDeviceIDIsStable(t *testing.T) {
	st, _ := openTestStore(t)
	ctx := context.Background()
	first, err := st.DeviceID(ctx)
	if err != nil {
		t.Fatalf("device id: %v", err)
	}
	if !strings.HasPrefix(first, "anon-") {
		t.Fatalf("unexpected device id %q", first)
	}
	second, err := st.DeviceID(ctx)
	if err != nil {
		t.Fatalf("device id again: %v", err)
	}
	if first != second {
		t.Fatalf("device id changed: %q -> %q", first, second)
	}
}

func TestGameConfigCache(t *testing.T) {
	st, _ := openTestStore(t)
	ctx := context.Background()
	if _, ok, err := st.LoadGameConfig(ctx); err != nil || ok {
		t.Fatalf("expected empty cache, ok=%v err=%v", ok, err)
	}
	cfg := model.GameConfig{
		MinValue:   1,
		MaxValue:   20,
		NumOptions: 4,
		Levels: map[int]model.LevelConfig{
			1: {RequiredScore: 0, TargetRange: [2]int{1, 10}},
			2: {RequiredScore: 40, TargetRange: [2]int{5, 20}},
		},
	}
	if err := st.SaveGameConfig(ctx, cfg); err != nil {
		t.Fatalf("save config: %v", err)
	}
	got, ok, err := st.LoadGameConfig(ctx)
	if err != nil || !ok {
		t.Fatalf("load config: ok=%v err=%v", ok, err)
	}
	if got.NumOptions != 4 || got.Levels[2].RequiredScore != 40 || got.Levels[2].TargetRange != [2]int{5, 20} {
		t.Fatalf("unexpected config: %+v", got)
	}
}

func TestUserProgressCachePerUser(t *testing.T) {
	st, path := openTestStore(t)
	ctx := context.Background()
	if _, ok, err := st.LoadUserProgress(ctx, "s1"); err != nil || ok {
		t.Fatalf("expected empty cache, ok=%v err=%v", ok, err)
	}

	first := model.UserProgress{CurrentLevel: 2, CurrentScore: 100, Streak: 1, TotalProblems: 10, QuestionsCorrect: 8}
	if err := st.SaveUserProgress(ctx, "s1", first); err != nil {
		t.Fatalf("save progress: %v", err)
	}
	newer := first
	newer.CurrentScore = 136
	newer.TotalProblems = 13
	if err := st.SaveUserProgress(ctx, "s1", newer); err != nil {
		t.Fatalf("save progress again: %v", err)
	}
	if err := st.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	reopened, err := Open(path)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	t.Cleanup(func() { _ = reopened.Close() })
	got, ok, err := reopened.LoadUserProgress(ctx, "s1")
	if err != nil || !ok {
		t.Fatalf("load progress: ok=%v err=%v", ok, err)
	}
	if got != newer {
		t.Fatalf("expected %+v, got %+v", newer, got)
	}
	if _, ok, err := reopened.LoadUserProgress(ctx, "s2"); err != nil || ok {
		t.Fatalf("other user must not see s1 progress, ok=%v err=%v", ok, err)
	}
}

func TestUpdateUser(t *testing.T) {
	st, _ := openTestStore(t)
	ctx := context.Background()

	if _, ok, err := st.GetUser(ctx, "u1"); err != nil || ok {
		t.Fatalf("expected unknown user, ok=%v err=%v", ok, err)
	}
	row, err := st.UpdateUser(ctx, "u1", func(r UserRow) (UserRow, error) {
		if r.Progress.CurrentLevel != 1 {
			t.Fatalf("new user should start at level 1, got %d", r.Progress.CurrentLevel)
		}
		r.Progress.CurrentScore = 12
		r.Progress.TotalProblems = 1
		return r, nil
	})
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if row.Progress.CurrentScore != 12 {
		t.Fatalf("unexpected row %+v", row)
	}

	_, err = st.UpdateUser(ctx, "u1", func(r UserRow) (UserRow, error) {
		r.Progress.CurrentScore = 999
		return r, errors.New("rejected")
	})
	if err == nil {
		t.Fatalf("expected error from update func")
	}
	got, ok, err := st.GetUser(ctx, "u1")
	if err != nil || !ok {
		t.Fatalf("get user: ok=%v err=%v", ok, err)
	}
	if got.Progress.CurrentScore != 12 {
		t.Fatalf("failed update must roll back, got score %d", got.Progress.CurrentScore)
	}
}
