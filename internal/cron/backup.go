package cron

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/flemzord/autoreply/internal/settings"
)

// Backup file naming.
const (
	BackupPrefix = "data-"
	BackupSuffix = ".json"
	backupLayout = "20060102T150405Z"
)

// DefaultBackupKeep is the retention used when BackupJob.Keep is zero.
const DefaultBackupKeep = 7

// Snapshotter is the part of settings.Store the backup job reads.
type Snapshotter interface {
	Snapshot(ctx context.Context) map[settings.ScopeKey]settings.Record
}

// BackupJob writes the settings document to a timestamped JSON file and
// prunes old snapshots beyond Keep.
type BackupJob struct {
	Store        Snapshotter
	Dir          string
	Keep         int
	ScheduleExpr string // empty = "@daily"
	Logger       *slog.Logger
	Now          func() time.Time
}

var _ Job = (*BackupJob)(nil)

// Name implements Job.
func (j *BackupJob) Name() string { return "settings.backup" }

// Schedule implements Job.
func (j *BackupJob) Schedule() string {
	if j.ScheduleExpr != "" {
		return j.ScheduleExpr
	}
	return "@daily"
}

// Run writes one snapshot then applies retention.
func (j *BackupJob) Run(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("cron: backup cancelled: %w", err)
	}

	data, err := settings.EncodeDocument(j.Store.Snapshot(ctx))
	if err != nil {
		return fmt.Errorf("cron: backup: %w", err)
	}
	if err := os.MkdirAll(j.Dir, 0o700); err != nil {
		return fmt.Errorf("cron: backup dir: %w", err)
	}

	now := time.Now
	if j.Now != nil {
		now = j.Now
	}
	name := BackupPrefix + now().UTC().Format(backupLayout) + BackupSuffix
	path := filepath.Join(j.Dir, name)

	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return fmt.Errorf("cron: backup write: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("cron: backup rename: %w", err)
	}

	removed, err := j.prune()
	if err != nil {
		return err
	}
	j.logger().Info("cron: settings backed up", "file", name, "bytes", len(data), "pruned", removed)
	return nil
}

// Backups lists snapshot files in Dir, oldest first.
func (j *BackupJob) Backups() ([]string, error) {
	entries, err := os.ReadDir(j.Dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("cron: list backups: %w", err)
	}
	var names []string
	for _, e := range entries {
		n := e.Name()
		if e.Type().IsRegular() && strings.HasPrefix(n, BackupPrefix) && strings.HasSuffix(n, BackupSuffix) {
			names = append(names, n)
		}
	}
	// The timestamp layout sorts lexically.
	slices.Sort(names)
	return names, nil
}

func (j *BackupJob) prune() (int, error) {
	keep := j.Keep
	if keep <= 0 {
		keep = DefaultBackupKeep
	}
	names, err := j.Backups()
	if err != nil {
		return 0, err
	}
	if len(names) <= keep {
		return 0, nil
	}
	stale := names[:len(names)-keep]
	for _, n := range stale {
		if err := os.Remove(filepath.Join(j.Dir, n)); err != nil {
			return 0, fmt.Errorf("cron: prune backup: %w", err)
		}
	}
	return len(stale), nil
}

func (j *BackupJob) logger() *slog.Logger {
	if j.Logger != nil {
		return j.Logger
	}
	return slog.Default()
}
