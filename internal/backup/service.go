// Package backup serializes backup runs and coordinates them with the live server.
package backup

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"math"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/semaphore"

	"github.com/kebairia/zipbackup/internal/archive"
	"github.com/kebairia/zipbackup/internal/config"
	"github.com/kebairia/zipbackup/internal/logger"
)

// DefaultShutdownTimeout bounds how long Shutdown waits for a running backup.
const DefaultShutdownTimeout = 300 * time.Second

const defaultPollInterval = 10 * time.Millisecond

// Messages sent to requesters and players.
const (
	msgInProgress  = "A backup is already running, please do not repeat the command"
	msgStarting    = "Backing up, please wait"
	msgCreating    = "Creating archive %s"
	msgDone        = "Backup done in %.1fs"
	msgDoneSkipped = "Backup done in %.1fs, %d files skipped"
	msgPartial     = "%d files were partially archived: %s"
	msgPermission  = "Permission error: cannot write the backup file, check the directory permissions: %v"
	msgFailed      = "Backup failed: %v"
	msgUnloading   = "Plugin unloading, backup interrupted"
)

type Option func(*Service)

func WithLogger(log logger.Logger) Option {
	return func(s *Service) {
		s.log = log
	}
}

func WithRecorder(r Recorder) Option {
	return func(s *Service) {
		s.metrics = r
	}
}

func WithBroadcaster(b Broadcaster) Option {
	return func(s *Service) {
		s.broadcast = b
	}
}

// WithConsole enables the save handshake against a running server. Without
// it archives are written straight away, which is only safe for a stopped server.
func WithConsole(c Console) Option {
	return func(s *Service) {
		s.console = c
	}
}

func WithPollInterval(d time.Duration) Option {
	return func(s *Service) {
		s.pollInterval = d
	}
}

func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		s.now = now
	}
}

// Service runs at most one backup at a time.
type Service struct {
	cfg       ConfigSource
	console   Console
	broadcast Broadcaster
	log       logger.Logger
	metrics   Recorder

	sem       *semaphore.Weighted
	saved     atomic.Bool
	unloading atomic.Bool
	running   atomic.Bool
	wg        sync.WaitGroup

	pollInterval time.Duration
	now          func() time.Time
}

// NewService creates a Service reading its settings from cfg on every run.
func NewService(cfg ConfigSource, opts ...Option) *Service {
	s := &Service{
		cfg:          cfg,
		log:          logger.Nop(),
		metrics:      nopRecorder{},
		sem:          semaphore.NewWeighted(1),
		pollInterval: defaultPollInterval,
		now:          time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Start launches a backup in the background. It fails fast with
// ErrBackupInProgress when another backup holds the lock.
func (s *Service) Start(ctx context.Context, src Requester, comment string) error {
	if err := s.acquire(src); err != nil {
		return err
	}
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer s.release()
		_, _ = s.run(context.WithoutCancel(ctx), src, comment)
	}()
	return nil
}

// Run performs a backup on the calling goroutine.
func (s *Service) Run(ctx context.Context, src Requester, comment string) (Metadata, error) {
	if err := s.acquire(src); err != nil {
		return Metadata{}, err
	}
	defer s.release()
	return s.run(ctx, src, comment)
}

// Busy reports whether a backup is running.
func (s *Service) Busy() bool {
	return s.running.Load()
}

// Unload marks the service as shutting down. A backup waiting for the save
// handshake gives up; new requests are refused.
func (s *Service) Unload() {
	s.unloading.Store(true)
}

// Shutdown unloads the service and waits up to timeout for a running backup
// to finish. It reports whether the service is idle on return.
func (s *Service) Shutdown(timeout time.Duration) bool {
	s.Unload()
	if s.sem.TryAcquire(1) {
		s.sem.Release(1)
		return true
	}

	s.log.Info("waiting for backup to complete", "timeout", timeout.String())
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	if err := s.sem.Acquire(ctx, 1); err != nil {
		s.log.Warn("backup did not finish before shutdown", "timeout", timeout.String())
		return false
	}
	s.sem.Release(1)
	s.wg.Wait()
	return true
}

// Wait blocks until every backup started with Start has returned.
func (s *Service) Wait() {
	s.wg.Wait()
}

func (s *Service) acquire(src Requester) error {
	if s.unloading.Load() {
		src.Reply(msgUnloading)
		return ErrCancelled
	}
	if !s.sem.TryAcquire(1) {
		src.Reply(msgInProgress)
		s.metrics.BackupRejected()
		return ErrBackupInProgress
	}
	s.running.Store(true)
	return nil
}

func (s *Service) release() {
	s.running.Store(false)
	s.sem.Release(1)
}

// run must be called with the semaphore held.
func (s *Service) run(ctx context.Context, src Requester, comment string) (Metadata, error) {
	cfg := s.cfg.Get()
	start := s.now()
	record := Metadata{
		ID:        uuid.NewString(),
		Requester: src.Name(),
		Comment:   comment,
		StartedAt: start,
	}
	log := s.log.With("backup_id", record.ID, "requester", src.Name())

	s.metrics.BackupStarted()
	s.announce(src, msgStarting)

	restore, err := s.quiesce(ctx, cfg)
	defer restore()
	if err != nil {
		return s.finish(cfg, src, log, record, archive.Result{}, err)
	}

	name := ArchiveName(start)
	record.Archive = name
	s.announce(src, fmt.Sprintf(msgCreating, name))

	var exclude []string
	if cfg.IgnoreSessionLock {
		exclude = []string{archive.SessionLock}
	}
	res, err := archive.Write(ctx, archive.Options{
		Root:     cfg.ServerPath,
		Dirs:     cfg.WorldNames,
		Dest:     filepath.Join(cfg.BackupPath, name),
		Tier:     cfg.CompressionLevel,
		Comment:  comment,
		Exclude:  exclude,
		Progress: archive.LogProgress(log, name),
		Logger:   log,
	})
	return s.finish(cfg, src, log, record, res, err)
}

// finish reports the outcome of a run and stores its record.
func (s *Service) finish(
	cfg config.Config,
	src Requester,
	log logger.Logger,
	record Metadata,
	res archive.Result,
	err error,
) (Metadata, error) {
	record.CompletedAt = s.now()
	elapsed := record.CompletedAt.Sub(record.StartedAt)
	record.DurationMs = elapsed.Milliseconds()
	record.SizeBytes = res.Bytes
	record.Files = res.Files
	record.Skipped = res.Skipped
	record.Partial = res.Partial
	seconds := math.Round(elapsed.Seconds()*10) / 10

	switch {
	case err == nil:
		record.Status = OutcomeSuccess
		if res.Skipped > 0 {
			s.announce(src, fmt.Sprintf(msgDoneSkipped, seconds, res.Skipped))
		} else {
			s.announce(src, fmt.Sprintf(msgDone, seconds))
		}
		if len(res.Partial) > 0 {
			s.announce(src, fmt.Sprintf(msgPartial, len(res.Partial), strings.Join(res.Partial, ", ")))
		}
		log.Info("backup completed",
			"archive", res.Path,
			"files", res.Files,
			"bytes", res.Bytes,
			"skipped", res.Skipped,
			"partial", len(res.Partial),
			"duration", elapsed.String(),
		)
	case errors.Is(err, ErrCancelled) || errors.Is(err, context.Canceled):
		record.Status = OutcomeCancelled
		record.Error = err.Error()
		if !errors.Is(err, ErrCancelled) {
			err = fmt.Errorf("%w: %v", ErrCancelled, err)
		}
		s.announce(src, msgUnloading)
		log.Warn("backup interrupted", "error", record.Error)
	case errors.Is(err, fs.ErrPermission):
		record.Status = OutcomeFailed
		record.Error = err.Error()
		s.announce(src, fmt.Sprintf(msgPermission, err))
		log.Error("backup failed: permission error", "error", record.Error)
	default:
		record.Status = OutcomeFailed
		record.Error = err.Error()
		s.announce(src, fmt.Sprintf(msgFailed, err))
		log.Error("backup failed", "error", record.Error)
	}

	s.metrics.BackupFinished(record.Status, elapsed, record.SizeBytes, record.Skipped)
	if werr := record.Write(cfg.BackupPath); werr != nil {
		log.Warn("failed to write backup metadata", "error", werr.Error())
	}
	return record, err
}

// announce broadcasts msg to every player and echoes it to a non-player requester.
func (s *Service) announce(src Requester, msg string) {
	if s.broadcast != nil {
		s.broadcast.Broadcast(msg)
		if src.IsPlayer() {
			return
		}
	}
	src.Reply(msg)
}
