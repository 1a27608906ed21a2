package operations

import (
	"context"
	"fmt"

	"github.com/kebairia/zipbackup/internal/backup"
	"github.com/kebairia/zipbackup/internal/command"
)

const (
	msgAutoBackup       = "Auto backup in progress"
	msgAutoBackupFailed = "Auto backup failed: %v"
)

// makeBackup starts a backup in the background for src.
func (op *Operator) makeBackup(ctx context.Context, src command.Source, args command.Args) error {
	return op.backups.Start(ctx, src, args.String("comment"))
}

// autoBackup is fired by the scheduler.
func (op *Operator) autoBackup(ctx context.Context) error {
	op.broadcast(msgAutoBackup)
	if err := op.backups.Start(ctx, op.system, ""); err != nil {
		op.broadcast(fmt.Sprintf(msgAutoBackupFailed, err))
		return fmt.Errorf("auto backup: %w", err)
	}
	return nil
}

// RunBackup takes a backup on the calling goroutine. Used by the CLI when
// no server is attached.
func (op *Operator) RunBackup(ctx context.Context, comment string) (backup.Metadata, error) {
	return op.backups.Run(ctx, op.console, comment)
}

// broadcast tells every player and logs the message.
func (op *Operator) broadcast(msg string) {
	op.system.Reply(msg)
	if op.messenger != nil {
		op.messenger.Broadcast(msg)
	}
}
