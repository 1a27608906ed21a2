package operations

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"time"

	"github.com/kebairia/zipbackup/internal/backup"
	"github.com/kebairia/zipbackup/internal/command"
	"github.com/kebairia/zipbackup/internal/config"
	"github.com/kebairia/zipbackup/internal/scheduler"
)

const statsTimeLayout = "2006-01-02 15:04:05"

func (op *Operator) listBackups(_ context.Context, src command.Source, args command.Args) error {
	// Only listall shows everything.
	return op.replyList(src, max(args.Int("amount", defaultListAmount), 0))
}

func (op *Operator) listAllBackups(_ context.Context, src command.Source, _ command.Args) error {
	return op.replyList(src, backup.ListAll)
}

func (op *Operator) replyList(src command.Source, limit int) error {
	lines, err := op.List(limit)
	if err != nil {
		src.Reply("Error listing backups: " + err.Error())
		return err
	}
	for _, line := range lines {
		src.Reply(line)
	}
	return nil
}

// List returns the inventory report: the total, then up to limit archives
// newest first. backup.ListAll lists every archive.
func (op *Operator) List(limit int) ([]string, error) {
	total, archives, err := backup.List(op.store.Get().BackupPath, limit)
	if err != nil {
		return nil, err
	}
	lines := make([]string, 0, len(archives)+1)
	lines = append(lines, fmt.Sprintf("%d backups in total", total))
	for i, a := range archives {
		lines = append(lines, fmt.Sprintf("%d. %s %.1fMB", i+1, a.Name, a.SizeMiB()))
	}
	return lines, nil
}

func (op *Operator) showStats(_ context.Context, src command.Source, _ command.Args) error {
	for _, line := range op.Stats() {
		src.Reply(line)
	}
	return nil
}

// Stats describes the schedule, the compression tier and the last run.
func (op *Operator) Stats() []string {
	cfg := op.store.Get()

	enabled := "disabled"
	if cfg.AutoBackupEnabled {
		enabled = "enabled"
	}
	lines := []string{
		"Auto backup: " + enabled,
		fmt.Sprintf("Mode: %s", cfg.AutoBackupMode),
		"Backup path: " + cfg.BackupPath,
	}

	if cfg.AutoBackupMode == config.ModeInterval {
		lines = append(lines, fmt.Sprintf("Interval: %d%s", cfg.AutoBackupInterval, cfg.AutoBackupUnit))
	} else {
		lines = append(lines, "Schedule: "+cfg.AutoBackupDateType.Describe())
	}

	if next, ok := op.scheduler.NextRun(); ok {
		lines = append(lines, "Next backup: "+next.Format(statsTimeLayout))
	} else if cfg.AutoBackupEnabled {
		// Enabled in the file but not running, e.g. when offline.
		if trigger, err := scheduler.TriggerFor(cfg); err == nil {
			lines = append(lines, "Next backup: "+trigger.Schedule.Next(time.Now()).Format(statsTimeLayout))
		}
	}

	lines = append(lines, "Compression level: "+cfg.CompressionLevel.Describe())
	lines = append(lines, op.lastRun(cfg.BackupPath)...)
	return lines
}

func (op *Operator) lastRun(dir string) []string {
	var lines []string
	if op.backups.Busy() {
		lines = append(lines, "A backup is running")
	}
	meta, err := backup.LoadMetadata(dir)
	if err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			op.log.Warn("failed to read last backup record", "error", err.Error())
		}
		return lines
	}
	last := fmt.Sprintf("Last backup: %s %s (%s)", meta.Archive, meta.Status, meta.CompletedAt.Format(statsTimeLayout))
	if meta.Comment != "" {
		last += ", comment: " + meta.Comment
	}
	return append(lines, last)
}
