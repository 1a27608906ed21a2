// Package metrics exposes Prometheus collectors for backup runs and the scheduler.
package metrics

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/kebairia/zipbackup/internal/backup"
	"github.com/kebairia/zipbackup/internal/logger"
)

var (
	// BackupsTotal counts backup requests by outcome.
	BackupsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "zipbackup_backups_total",
			Help: "Total number of backup requests by result",
		},
		[]string{"result"},
	)

	// BackupDuration tracks how long finished backups took.
	BackupDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name: "zipbackup_backup_duration_seconds",
			Help: "Duration of backup runs in seconds",
			// World saves range from seconds to tens of minutes.
			Buckets: []float64{1, 5, 15, 30, 60, 120, 300, 600, 1200, 1800},
		},
	)

	// BackupBytes is the uncompressed size of the last backup.
	BackupBytes = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "zipbackup_backup_bytes",
			Help: "Uncompressed bytes archived by the most recent backup",
		},
	)

	// SkippedFilesTotal counts files left out of archives because they could not be read.
	SkippedFilesTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "zipbackup_backup_skipped_files_total",
			Help: "Total number of files skipped while archiving",
		},
	)

	// SchedulerFiresTotal counts automatic backup triggers.
	SchedulerFiresTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "zipbackup_scheduler_fires_total",
			Help: "Total number of times the auto backup trigger fired",
		},
	)

	// BackupInProgress is 1 while a backup runs.
	BackupInProgress = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "zipbackup_backup_in_progress",
			Help: "Whether a backup is currently running",
		},
	)
)

// Recorder feeds backup and scheduler events into the collectors.
type Recorder struct{}

func (Recorder) BackupStarted() {
	BackupInProgress.Set(1)
}

func (Recorder) BackupFinished(outcome string, elapsed time.Duration, bytes int64, skipped int) {
	BackupInProgress.Set(0)
	BackupsTotal.WithLabelValues(outcome).Inc()
	SkippedFilesTotal.Add(float64(skipped))
	if outcome == backup.OutcomeSuccess {
		BackupDuration.Observe(elapsed.Seconds())
		BackupBytes.Set(float64(bytes))
	}
}

func (Recorder) BackupRejected() {
	BackupsTotal.WithLabelValues(backup.OutcomeRejected).Inc()
}

func (Recorder) SchedulerFired() {
	SchedulerFiresTotal.Inc()
}

// Serve exposes /metrics on addr until ctx is done.
func Serve(ctx context.Context, addr string, log logger.Logger) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errc := make(chan error, 1)
	go func() {
		log.Info("metrics listening", "address", addr)
		errc <- srv.ListenAndServe()
	}()

	select {
	case err := <-errc:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("metrics server: %w", err)
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}
