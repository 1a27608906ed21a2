package scheduler

import (
	"fmt"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/kebairia/zipbackup/internal/config"
)

// Calendar triggers fire at 01:00.
var cadenceSpecs = map[config.Cadence]string{
	config.CadenceDaily:   "0 1 * * *",
	config.CadenceWeekly:  "0 1 * * 1",
	config.CadenceMonthly: "0 1 1 * *",
}

var specParser = cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)

// Trigger decides when the auto backup fires.
type Trigger struct {
	Mode config.Mode
	// Interval is set in interval mode.
	Interval time.Duration
	// Cadence and Spec are set in date mode.
	Cadence  config.Cadence
	Spec     string
	Schedule cron.Schedule
}

// TriggerFor builds the trigger selected by cfg.AutoBackupMode.
func TriggerFor(cfg config.Config) (Trigger, error) {
	switch cfg.AutoBackupMode {
	case config.ModeInterval:
		if _, err := config.ParseUnit(string(cfg.AutoBackupUnit)); err != nil {
			return Trigger{}, err
		}
		d := cfg.Interval()
		if d < time.Second {
			return Trigger{}, fmt.Errorf("%w %s, must be at least one second", config.ErrInvalidInterval, d)
		}
		return Trigger{
			Mode:     config.ModeInterval,
			Interval: d,
			Schedule: cron.Every(d),
		}, nil

	case config.ModeDate:
		spec, ok := cadenceSpecs[cfg.AutoBackupDateType]
		if !ok {
			return Trigger{}, fmt.Errorf("%w %q", config.ErrInvalidCadence, cfg.AutoBackupDateType)
		}
		loc, err := cfg.Location()
		if err != nil {
			return Trigger{}, err
		}
		sched, err := specParser.Parse(spec)
		if err != nil {
			return Trigger{}, fmt.Errorf("parse schedule %q: %w", spec, err)
		}
		if s, ok := sched.(*cron.SpecSchedule); ok {
			s.Location = loc
		}
		return Trigger{
			Mode:     config.ModeDate,
			Cadence:  cfg.AutoBackupDateType,
			Spec:     spec,
			Schedule: sched,
		}, nil
	}
	return Trigger{}, fmt.Errorf("%w %q", config.ErrInvalidMode, cfg.AutoBackupMode)
}

// Describe returns a short human readable form of the trigger.
func (t Trigger) Describe() string {
	if t.Mode == config.ModeInterval {
		return "every " + t.Interval.String()
	}
	return t.Cadence.Describe()
}
