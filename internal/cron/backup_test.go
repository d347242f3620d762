package cron

import (
	"context"
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/flemzord/autoreply/internal/cron/crontest"
	"github.com/flemzord/autoreply/internal/settings"
)

func TestBackupJob_Defaults(t *testing.T) {
	t.Parallel()

	j := &BackupJob{}
	if j.Name() != "settings.backup" {
		t.Errorf("name = %q", j.Name())
	}
	if j.Schedule() != "@daily" {
		t.Errorf("schedule = %q, want @daily", j.Schedule())
	}
	j.ScheduleExpr = "0 3 * * *"
	if j.Schedule() != "0 3 * * *" {
		t.Errorf("schedule = %q", j.Schedule())
	}
}

func TestBackupJob_WritesDocument(t *testing.T) {
	t.Parallel()

	dir := filepath.Join(t.TempDir(), "backups")
	snap := crontest.StaticSnapshot{
		"-100": {Enabled: true, DelaySeconds: 1.5, AutoReplies: []string{"brb"}, PrivilegedIDs: []settings.Identity{1001}},
	}
	at := time.Date(2026, 3, 1, 12, 30, 0, 0, time.UTC)
	j := &BackupJob{Store: snap, Dir: dir, Logger: slog.Default(), Now: func() time.Time { return at }}

	if err := j.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}

	path := filepath.Join(dir, "data-20260301T123000Z.json")
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("backup file: %v", err)
	}
	var doc map[string]map[string]any
	if err := json.Unmarshal(data, &doc); err != nil {
		t.Fatalf("backup is not a JSON document: %v", err)
	}
	if doc["-100"]["enabled"] != true || doc["-100"]["delay_seconds"] != 1.5 {
		t.Errorf("record = %v", doc["-100"])
	}

	info, err := os.Stat(path)
	if err != nil {
		t.Fatal(err)
	}
	if perm := info.Mode().Perm(); perm != 0o600 {
		t.Errorf("perm = %o, want 600", perm)
	}
}

func TestBackupJob_Retention(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("keep me"), 0o600); err != nil {
		t.Fatal(err)
	}

	at := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	j := &BackupJob{
		Store: crontest.StaticSnapshot{},
		Dir:   dir,
		Keep:  2,
		Now: func() time.Time {
			at = at.Add(time.Hour)
			return at
		},
	}
	for range 4 {
		if err := j.Run(context.Background()); err != nil {
			t.Fatalf("Run: %v", err)
		}
	}

	names, err := j.Backups()
	if err != nil {
		t.Fatal(err)
	}
	want := []string{"data-20260101T030000Z.json", "data-20260101T040000Z.json"}
	if len(names) != len(want) || names[0] != want[0] || names[1] != want[1] {
		t.Errorf("backups = %v, want %v", names, want)
	}
	if _, err := os.Stat(filepath.Join(dir, "notes.txt")); err != nil {
		t.Errorf("unrelated file removed: %v", err)
	}
}

func TestBackupJob_CancelledContext(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	j := &BackupJob{Store: crontest.StaticSnapshot{}, Dir: dir}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := j.Run(ctx); err == nil {
		t.Fatal("expected error for cancelled context")
	}
	if names, _ := j.Backups(); len(names) != 0 {
		t.Errorf("backups written after cancel: %v", names)
	}
}

func TestBackupJob_MissingDirListsNothing(t *testing.T) {
	t.Parallel()

	j := &BackupJob{Dir: filepath.Join(t.TempDir(), "absent")}
	names, err := j.Backups()
	if err != nil || len(names) != 0 {
		t.Errorf("Backups() = %v, %v", names, err)
	}
}
