package backup

import (
	"context"
	"errors"
	"time"

	"github.com/kebairia/zipbackup/internal/config"
)

var (
	// ErrBackupInProgress is returned when a backup is requested while another one runs.
	ErrBackupInProgress = errors.New("backup already in progress")
	// ErrCancelled is returned when a backup is abandoned because the host is unloading.
	ErrCancelled = errors.New("backup cancelled")
)

// Requester is whoever asked for a backup.
type Requester interface {
	Name() string
	IsPlayer() bool
	Reply(msg string)
}

// Console sends directives to the running game server.
type Console interface {
	Execute(ctx context.Context, command string) error
}

// Broadcaster delivers a message to every connected player.
type Broadcaster interface {
	Broadcast(msg string)
}

// ConfigSource returns the current configuration snapshot.
type ConfigSource interface {
	Get() config.Config
}

// Outcome labels used for run records and metrics.
const (
	OutcomeSuccess   = "success"
	OutcomeFailed    = "failed"
	OutcomeCancelled = "cancelled"
	OutcomeRejected  = "rejected"
)

// Recorder observes backup runs. The metrics package implements it.
type Recorder interface {
	BackupStarted()
	BackupFinished(outcome string, elapsed time.Duration, bytes int64, skipped int)
	BackupRejected()
}

type nopRecorder struct{}

func (nopRecorder) BackupStarted()                                    {}
func (nopRecorder) BackupFinished(string, time.Duration, int64, int) {}
func (nopRecorder) BackupRejected()                                   {}
