package operations

import (
	"context"
	"fmt"

	"github.com/kebairia/zipbackup/internal/command"
	"github.com/kebairia/zipbackup/internal/config"
)

func (op *Operator) enableAutoBackup(_ context.Context, src command.Source, _ command.Args) error {
	cfg, err := op.update(src, func(c *config.Config) error {
		c.AutoBackupEnabled = true
		return nil
	})
	if err != nil {
		return err
	}
	if err := op.scheduler.Enable(cfg); err != nil {
		src.Reply("Failed to start auto backup: " + err.Error())
		return err
	}
	src.Reply("Auto backup enabled")
	return nil
}

func (op *Operator) disableAutoBackup(_ context.Context, src command.Source, _ command.Args) error {
	if _, err := op.update(src, func(c *config.Config) error {
		c.AutoBackupEnabled = false
		return nil
	}); err != nil {
		return err
	}
	op.scheduler.Disable()
	src.Reply("Auto backup disabled")
	return nil
}

func (op *Operator) setInterval(ctx context.Context, src command.Source, args command.Args) error {
	unit, err := config.ParseUnit(args.String("unit"))
	if err != nil {
		src.Reply("Invalid time unit, valid values: s (seconds), m (minutes), h (hours), d (days)")
		return err
	}
	interval := args.Int("interval", 0)
	if interval <= 0 {
		src.Reply("The interval must be a positive number")
		return fmt.Errorf("%w %d", config.ErrInvalidInterval, interval)
	}
	if limit := unit.MaxInterval(); int64(interval) > limit {
		src.Reply(fmt.Sprintf("The interval is too long, at most %d%s", limit, unit))
		return fmt.Errorf("%w %d%s", config.ErrInvalidInterval, interval, unit)
	}

	cfg, err := op.update(src, func(c *config.Config) error {
		c.AutoBackupInterval = interval
		c.AutoBackupUnit = unit
		c.AutoBackupMode = config.ModeInterval
		return nil
	})
	if err != nil {
		return err
	}
	op.reschedule(cfg)
	src.Reply(fmt.Sprintf("Auto backup interval set to %d%s", interval, unit))
	return op.showStats(ctx, src, args)
}

func (op *Operator) setDate(ctx context.Context, src command.Source, args command.Args) error {
	cadence, err := config.ParseCadence(args.String("type"))
	if err != nil {
		src.Reply("Invalid date type, valid values: monthly, weekly, daily")
		return err
	}

	cfg, err := op.update(src, func(c *config.Config) error {
		c.AutoBackupDateType = cadence
		c.AutoBackupMode = config.ModeDate
		return nil
	})
	if err != nil {
		return err
	}
	op.reschedule(cfg)
	src.Reply("Auto backup set to run " + cadence.Describe())
	return op.showStats(ctx, src, args)
}

func (op *Operator) changeMode(ctx context.Context, src command.Source, args command.Args) error {
	mode, err := config.ParseMode(args.String("mode"))
	if err != nil {
		src.Reply("Invalid backup mode, valid values: interval, date")
		return err
	}
	if op.store.Get().AutoBackupMode == mode {
		src.Reply(fmt.Sprintf("Already in %s mode", mode))
		return nil
	}

	cfg, err := op.update(src, func(c *config.Config) error {
		c.AutoBackupMode = mode
		return nil
	})
	if err != nil {
		return err
	}
	op.reschedule(cfg)
	src.Reply(fmt.Sprintf("Switched to %s mode", mode))
	return op.showStats(ctx, src, args)
}

// update persists a configuration change and reports a failure to src.
func (op *Operator) update(src command.Source, fn func(*config.Config) error) (config.Config, error) {
	cfg, err := op.store.Update(fn)
	if err != nil {
		src.Reply("Failed to save configuration: " + err.Error())
		return cfg, err
	}
	return cfg, nil
}

// reschedule swaps the job for one matching cfg when auto backup is running.
func (op *Operator) reschedule(cfg config.Config) {
	if !cfg.AutoBackupEnabled {
		return
	}
	if err := op.scheduler.Reconfigure(cfg); err != nil {
		op.log.Error("failed to reschedule auto backup", "error", err.Error())
	}
}
