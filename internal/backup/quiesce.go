package backup

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/kebairia/zipbackup/internal/config"
	"github.com/kebairia/zipbackup/internal/server"
)

// Console directives used around a backup.
const (
	cmdSaveOff   = "save-off"
	cmdSaveOn    = "save-on"
	cmdSaveFlush = "save-all flush"
)

// savedMessage is what the server prints once save-all has reached disk.
const savedMessage = "Saved the game"

// ObserveInfo inspects a server console line and records save completion.
func (s *Service) ObserveInfo(info server.Info) {
	if !info.IsUser() && info.Content == savedMessage {
		s.saved.Store(true)
	}
}

// quiesce flushes the world to disk and waits for the server to confirm it.
// The returned restore func re-enables auto-save when it was disabled here; it
// is safe to call more than once and must be called on every path.
func (s *Service) quiesce(ctx context.Context, cfg config.Config) (func(), error) {
	restore := func() {}
	if s.console == nil {
		return restore, nil
	}

	if cfg.TurnOffAutoSave {
		if err := s.console.Execute(ctx, cmdSaveOff); err != nil {
			return restore, fmt.Errorf("disable auto save: %w", err)
		}
		var once sync.Once
		restore = func() {
			once.Do(func() {
				if err := s.console.Execute(context.WithoutCancel(ctx), cmdSaveOn); err != nil {
					s.log.Error("failed to re-enable auto save", "error", err.Error())
				}
			})
		}
	}

	s.saved.Store(false)
	if err := s.console.Execute(ctx, cmdSaveFlush); err != nil {
		return restore, fmt.Errorf("flush world: %w", err)
	}

	ticker := time.NewTicker(s.pollInterval)
	defer ticker.Stop()
	for {
		if s.saved.Load() {
			return restore, nil
		}
		if s.unloading.Load() {
			return restore, ErrCancelled
		}
		select {
		case <-ctx.Done():
			return restore, ErrCancelled
		case <-ticker.C:
		}
	}
}
