// Package scheduler runs the automatic backup job on an interval or calendar trigger.
package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/robfig/cron/v3"

	"github.com/kebairia/zipbackup/internal/config"
	"github.com/kebairia/zipbackup/internal/logger"
)

const defaultStopTimeout = 5 * time.Second

// FireFunc runs one automatic backup.
type FireFunc func(ctx context.Context) error

// Recorder counts trigger firings. The metrics package implements it.
type Recorder interface {
	SchedulerFired()
}

type nopRecorder struct{}

func (nopRecorder) SchedulerFired() {}

type Option func(*Scheduler)

func WithLogger(log logger.Logger) Option {
	return func(s *Scheduler) {
		s.log = log
	}
}

func WithRecorder(r Recorder) Option {
	return func(s *Scheduler) {
		s.metrics = r
	}
}

func WithStopTimeout(d time.Duration) Option {
	return func(s *Scheduler) {
		s.stopTimeout = d
	}
}

// Job is the installed automatic backup.
type Job struct {
	ID          string
	Trigger     Trigger
	InstalledAt time.Time
	entry       cron.EntryID
}

// Scheduler holds at most one job. It is disabled until Enable is called.
type Scheduler struct {
	fire        FireFunc
	log         logger.Logger
	metrics     Recorder
	stopTimeout time.Duration

	mu   sync.Mutex
	cron *cron.Cron
	job  *Job
}

func New(fire FireFunc, opts ...Option) *Scheduler {
	s := &Scheduler{
		fire:        fire,
		log:         logger.Nop(),
		metrics:     nopRecorder{},
		stopTimeout: defaultStopTimeout,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Enable starts the scheduler if needed and installs the job for cfg.
func (s *Scheduler) Enable(cfg config.Config) error {
	trigger, err := TriggerFor(cfg)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cron == nil {
		cl := cronLogger{log: s.log}
		s.cron = cron.New(
			cron.WithLogger(cl),
			cron.WithChain(cron.Recover(cl)),
		)
		s.cron.Start()
		s.log.Info("scheduler started")
	}
	s.install(trigger)
	return nil
}

// Disable stops the scheduler and drops the job.
func (s *Scheduler) Disable() {
	s.mu.Lock()
	c := s.cron
	s.cron, s.job = nil, nil
	s.mu.Unlock()

	if c == nil {
		return
	}
	ctx := c.Stop()
	select {
	case <-ctx.Done():
	case <-time.After(s.stopTimeout):
		s.log.Warn("scheduled job still running after stop", "timeout", s.stopTimeout.String())
	}
	s.log.Info("scheduler stopped")
}

// Reconfigure replaces the job with one built from cfg. It does nothing
// while the scheduler is disabled.
func (s *Scheduler) Reconfigure(cfg config.Config) error {
	trigger, err := TriggerFor(cfg)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cron == nil {
		return nil
	}
	s.install(trigger)
	return nil
}

// install must be called with mu held and cron set.
func (s *Scheduler) install(trigger Trigger) {
	for _, e := range s.cron.Entries() {
		s.cron.Remove(e.ID)
	}

	job := &Job{
		ID:          uuid.NewString(),
		Trigger:     trigger,
		InstalledAt: time.Now(),
	}
	job.entry = s.cron.Schedule(trigger.Schedule, cron.FuncJob(func() { s.run(job.ID) }))
	s.job = job

	s.log.Info("backup job scheduled",
		"job_id", job.ID,
		"mode", string(trigger.Mode),
		"trigger", trigger.Describe(),
	)
}

func (s *Scheduler) run(jobID string) {
	s.metrics.SchedulerFired()
	s.log.Info("scheduled backup firing", "job_id", jobID)
	if err := s.fire(context.Background()); err != nil {
		s.log.Error("scheduled backup failed", "job_id", jobID, "error", err.Error())
	}
}

// Enabled reports whether the scheduler is running.
func (s *Scheduler) Enabled() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cron != nil
}

// Active returns the installed job.
func (s *Scheduler) Active() (Job, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.job == nil {
		return Job{}, false
	}
	return *s.job, true
}

// NextRun returns when the installed job fires next.
func (s *Scheduler) NextRun() (time.Time, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cron == nil || s.job == nil {
		return time.Time{}, false
	}
	next := s.cron.Entry(s.job.entry).Next
	if next.IsZero() {
		next = s.job.Trigger.Schedule.Next(time.Now())
	}
	return next, true
}

// entryCount returns how many cron entries are installed.
func (s *Scheduler) entryCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cron == nil {
		return 0
	}
	return len(s.cron.Entries())
}

// cronLogger routes cron's own logging through our logger.
type cronLogger struct {
	log logger.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.log.Debug("cron: "+msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.log.Error("cron: "+msg, append(keysAndValues, "error", fmt.Sprint(err))...)
}
