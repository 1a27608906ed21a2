// Package operations is the zip backup plugin: it owns the configuration,
// the backup service and the scheduler, and implements every !!zb command.
package operations

import (
	"context"
	"io"
	"os"
	"strings"
	"time"

	"github.com/kebairia/zipbackup/internal/backup"
	"github.com/kebairia/zipbackup/internal/command"
	"github.com/kebairia/zipbackup/internal/config"
	"github.com/kebairia/zipbackup/internal/logger"
	"github.com/kebairia/zipbackup/internal/scheduler"
	"github.com/kebairia/zipbackup/internal/server"
)

// Recorder receives backup and scheduler events.
type Recorder interface {
	backup.Recorder
	scheduler.Recorder
}

type Option func(*options)

type options struct {
	log          logger.Logger
	recorder     Recorder
	out          io.Writer
	pollInterval time.Duration
}

func WithLogger(log logger.Logger) Option {
	return func(o *options) {
		o.log = log
	}
}

func WithRecorder(r Recorder) Option {
	return func(o *options) {
		o.recorder = r
	}
}

// WithOutput sets where replies to the operator console are written.
func WithOutput(w io.Writer) Option {
	return func(o *options) {
		o.out = w
	}
}

// WithPollInterval sets how often the save handshake is checked.
func WithPollInterval(d time.Duration) Option {
	return func(o *options) {
		o.pollInterval = d
	}
}

// Operator is the plugin. It is safe for concurrent use.
type Operator struct {
	store      *config.Store
	ctrl       server.Controller
	messenger  *server.Messenger
	backups    *backup.Service
	scheduler  *scheduler.Scheduler
	dispatcher *command.Dispatcher
	console    *command.Console
	system     *command.System
	log        logger.Logger
}

// NewOperator wires the plugin around store. ctrl may be nil, in which case
// backups skip the save handshake and nothing is sent to players.
func NewOperator(store *config.Store, ctrl server.Controller, opts ...Option) *Operator {
	o := options{
		log: logger.Global(),
		out: os.Stdout,
	}
	for _, opt := range opts {
		opt(&o)
	}

	op := &Operator{
		store:   store,
		ctrl:    ctrl,
		console: command.NewConsole(o.out),
		system:  command.NewSystem("scheduler", o.log),
		log:     o.log,
	}

	backupOpts := []backup.Option{backup.WithLogger(o.log)}
	schedOpts := []scheduler.Option{scheduler.WithLogger(o.log)}
	if ctrl != nil {
		op.messenger = server.NewMessenger(ctrl, o.log)
		backupOpts = append(backupOpts, backup.WithConsole(ctrl), backup.WithBroadcaster(op.messenger))
	}
	if o.recorder != nil {
		backupOpts = append(backupOpts, backup.WithRecorder(o.recorder))
		schedOpts = append(schedOpts, scheduler.WithRecorder(o.recorder))
	}
	if o.pollInterval > 0 {
		backupOpts = append(backupOpts, backup.WithPollInterval(o.pollInterval))
	}

	op.backups = backup.NewService(store, backupOpts...)
	op.scheduler = scheduler.New(op.autoBackup, schedOpts...)
	op.dispatcher = command.NewDispatcher(store, helpMessage, o.log, op.commands()...)
	return op
}

// Load starts the scheduler when auto backup is enabled.
func (op *Operator) Load() error {
	cfg := op.store.Get()
	op.log.Info("zip backup loaded",
		"config", op.store.Path(),
		"backup_path", cfg.BackupPath,
		"auto_backup", cfg.AutoBackupEnabled,
	)
	if !cfg.AutoBackupEnabled {
		return nil
	}
	return op.scheduler.Enable(cfg)
}

// Unload stops the scheduler and interrupts a backup still waiting for the server to save.
func (op *Operator) Unload() {
	op.backups.Unload()
	op.scheduler.Disable()
}

// Stop waits up to timeout for a running backup. It reports whether the
// backup finished in time.
func (op *Operator) Stop(timeout time.Duration) bool {
	return op.backups.Shutdown(timeout)
}

// HandleLine processes one line of server console output.
func (op *Operator) HandleLine(ctx context.Context, line string) {
	info := server.ParseInfo(line)
	op.backups.ObserveInfo(info)
	// Players can only be answered through a server.
	if op.messenger == nil || !info.IsUser() || !command.IsCommand(info.Content) {
		return
	}
	src := command.NewPlayer(info.Player, op.playerLevel(info.Player), op.messenger)
	_ = op.dispatcher.Dispatch(ctx, src, info.Content)
}

// HandleConsole processes one line typed by the operator. Anything that is
// not a !!zb command is passed to the server.
func (op *Operator) HandleConsole(ctx context.Context, line string) {
	line = strings.TrimSpace(line)
	if line == "" {
		return
	}
	if command.IsCommand(line) {
		_ = op.dispatcher.Dispatch(ctx, op.console, line)
		return
	}
	if op.ctrl == nil {
		op.console.Reply("No server attached, only " + command.Prefix + " commands are available")
		return
	}
	if err := op.ctrl.Execute(ctx, line); err != nil {
		op.console.Reply("Failed to send command to server: " + err.Error())
	}
}

// Dispatch runs a !!zb command on behalf of the operator console.
func (op *Operator) Dispatch(ctx context.Context, line string) error {
	return op.dispatcher.Dispatch(ctx, op.console, line)
}

func (op *Operator) playerLevel(name string) int {
	if lvl, ok := op.store.Get().Permissions[strings.ToLower(name)]; ok {
		return lvl
	}
	return command.PlayerDefaultLevel
}
