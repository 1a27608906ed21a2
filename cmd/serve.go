package cmd

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/kebairia/zipbackup/internal/backup"
	"github.com/kebairia/zipbackup/internal/config"
	"github.com/kebairia/zipbackup/internal/logger"
	"github.com/kebairia/zipbackup/internal/metrics"
	"github.com/kebairia/zipbackup/internal/operations"
	"github.com/kebairia/zipbackup/internal/server"
	"github.com/kebairia/zipbackup/internal/vault"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the server with zip backups attached",
	Long: `serve starts the server (or attaches to a running one over RCON), watches its
console for !!zb commands and runs the auto backup schedule. Lines typed on
stdin are sent to the server console; !!zb commands are handled locally.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return serve(cmd.Context(), cmd.InOrStdin(), cmd.OutOrStdout())
	},
}

func serve(parent context.Context, in io.Reader, out io.Writer) error {
	log := logger.Global()

	store, err := config.Open(ConfigFile)
	if err != nil {
		return err
	}
	cfg := store.Get()

	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer stop()

	ctrl, err := newController(ctx, cfg, out, log)
	if err != nil {
		return err
	}
	defer ctrl.Close()

	op := operations.NewOperator(store, ctrl,
		operations.WithLogger(log),
		operations.WithRecorder(metrics.Recorder{}),
		operations.WithOutput(out),
	)
	if err := op.Load(); err != nil {
		return fmt.Errorf("start auto backup: %w", err)
	}

	// The server outlives the signal so a running backup can finish first.
	serverCtx, stopServer := context.WithCancel(context.WithoutCancel(ctx))
	defer stopServer()
	g, gctx := errgroup.WithContext(serverCtx)

	serverDone := make(chan struct{})
	g.Go(func() error {
		defer close(serverDone)
		err := ctrl.Run(gctx, func(line string) {
			op.HandleLine(gctx, line)
		})
		if err != nil && gctx.Err() == nil {
			return fmt.Errorf("server: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		select {
		case <-ctx.Done():
			log.Info("shutdown requested")
		case <-serverDone:
			log.Info("server stopped")
		case <-gctx.Done():
		}
		op.Unload()
		if !op.Stop(backup.DefaultShutdownTimeout) {
			log.Warn("stopping server with a backup still running")
		}
		stopServer()
		return nil
	})

	if cfg.MetricsListen != "" {
		g.Go(func() error {
			return metrics.Serve(gctx, cfg.MetricsListen, log)
		})
	}

	// Reads on stdin cannot be interrupted, so the reader is not waited for.
	go readConsole(gctx, in, op)

	return g.Wait()
}

func newController(ctx context.Context, cfg config.Config, out io.Writer, log logger.Logger) (server.Controller, error) {
	sc := cfg.Server
	switch sc.Mode {
	case config.ServerModeRCON:
		password, err := vault.RCONPassword(ctx, sc)
		if err != nil {
			return nil, fmt.Errorf("rcon password: %w", err)
		}
		logFile := sc.LogFile
		if !filepath.IsAbs(logFile) {
			logFile = filepath.Join(cfg.ServerPath, logFile)
		}
		log.Info("attaching to server", "rcon", sc.RCONAddress, "log", logFile)
		return server.NewRemote(
			server.NewRCON(sc.RCONAddress, password, server.WithRCONLogger(log)),
			server.NewLogTail(logFile, server.WithTailLogger(log)),
		), nil
	default:
		log.Info("starting server", "command", sc.Command, "dir", cfg.ServerPath)
		return server.NewProcess(sc.Command, cfg.ServerPath,
			server.WithEcho(out),
			server.WithProcessLogger(log),
		)
	}
}

func readConsole(ctx context.Context, in io.Reader, op *operations.Operator) {
	scanner := bufio.NewScanner(in)
	for scanner.Scan() {
		if ctx.Err() != nil {
			return
		}
		op.HandleConsole(ctx, scanner.Text())
	}
}
