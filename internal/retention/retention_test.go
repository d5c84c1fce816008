package retention

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"parley/pkg/config"
	"parley/pkg/models"
	"parley/pkg/store"
)

func openStore(t *testing.T) {
	t.Helper()
	if err := store.Open(filepath.Join(t.TempDir(), "store")); err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
}

func TestParsePeriod(t *testing.T) {
	cases := []struct {
		raw string
		ok  bool
	}{
		{"720h", true},
		{"24h", true},
		{"", false},
		{"banana", false},
		{"-1h", false},
		{"0s", false},
	}
	for _, c := range cases {
		_, err := parsePeriod(c.raw)
		if c.ok && err != nil {
			t.Fatalf("period %q rejected: %v", c.raw, err)
		}
		if !c.ok && err == nil {
			t.Fatalf("period %q accepted", c.raw)
		}
	}
}

func TestRunOncePrunesAgedMessages(t *testing.T) {
	openStore(t)

	now := time.Now().UnixMilli()
	msgs := []models.Message{
		{AuthoritativeID: "old", CreatedServerMs: now - int64(48*time.Hour/time.Millisecond)},
		{AuthoritativeID: "new", CreatedServerMs: now},
	}
	if err := store.SaveSnapshot("general", msgs); err != nil {
		t.Fatalf("seed: %v", err)
	}

	removed, err := RunOnce(config.RetentionConfig{Enabled: true, Period: "24h"})
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if removed != 1 {
		t.Fatalf("removed = %d, want 1", removed)
	}
	left, _ := store.LoadSnapshot("general")
	if len(left) != 1 || left[0].AuthoritativeID != "new" {
		t.Fatalf("cache after prune: %+v", left)
	}
}

func TestRunOnceDryRun(t *testing.T) {
	openStore(t)

	old := time.Now().Add(-48 * time.Hour).UnixMilli()
	if err := store.SaveSnapshot("general", []models.Message{{AuthoritativeID: "old", CreatedServerMs: old}}); err != nil {
		t.Fatalf("seed: %v", err)
	}
	removed, err := RunOnce(config.RetentionConfig{Enabled: true, Period: "24h", DryRun: true})
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if removed != 1 {
		t.Fatalf("dry run counted %d", removed)
	}
	left, _ := store.LoadSnapshot("general")
	if len(left) != 1 {
		t.Fatalf("dry run deleted records: %+v", left)
	}
}

func TestRunOnceRequiresPeriod(t *testing.T) {
	openStore(t)
	if _, err := RunOnce(config.RetentionConfig{Enabled: true}); err == nil {
		t.Fatalf("missing period accepted")
	}
}

func TestStartDisabledIsNoop(t *testing.T) {
	cancel, err := Start(context.Background(), config.RetentionConfig{})
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	cancel()
}

func TestStartRejectsInvalidCron(t *testing.T) {
	if _, err := Start(context.Background(), config.RetentionConfig{
		Enabled: true,
		Period:  "24h",
		Cron:    "not a cron",
	}); err == nil {
		t.Fatalf("invalid cron accepted")
	}
}

func TestStartValidSchedule(t *testing.T) {
	openStore(t)
	cancel, err := Start(context.Background(), config.RetentionConfig{
		Enabled: true,
		Period:  "24h",
		Cron:    "*/5 * * * *",
	})
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	cancel()
}
