package server

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"sync"
	"time"

	"github.com/kebairia/zipbackup/internal/logger"
)

// defaultStopTimeout is how long the server gets to stop before it is killed.
const defaultStopTimeout = 60 * time.Second

type ProcessOption func(*Process)

// WithEcho copies every console line to w.
func WithEcho(w io.Writer) ProcessOption {
	return func(p *Process) {
		p.echo = w
	}
}

func WithStopTimeout(d time.Duration) ProcessOption {
	return func(p *Process) {
		p.stopTimeout = d
	}
}

func WithProcessLogger(log logger.Logger) ProcessOption {
	return func(p *Process) {
		p.log = log
	}
}

// Process runs the game server as a child and owns its console.
type Process struct {
	argv        []string
	dir         string
	echo        io.Writer
	stopTimeout time.Duration
	log         logger.Logger

	mu    sync.Mutex
	stdin io.WriteCloser
}

var _ Controller = (*Process)(nil)

// NewProcess prepares argv to be started in dir by Run.
func NewProcess(argv []string, dir string, opts ...ProcessOption) (*Process, error) {
	if len(argv) == 0 {
		return nil, errors.New("server command is empty")
	}
	p := &Process{
		argv:        argv,
		dir:         dir,
		echo:        os.Stdout,
		stopTimeout: defaultStopTimeout,
		log:         logger.Nop(),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p, nil
}

// Execute writes command to the server's standard input.
func (p *Process) Execute(_ context.Context, command string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.stdin == nil {
		return ErrNotRunning
	}
	if _, err := io.WriteString(p.stdin, command+"\n"); err != nil {
		return fmt.Errorf("write %q to server console: %w", command, err)
	}
	return nil
}

// Run starts the server and pumps its output until it exits. Cancelling ctx
// asks the server to stop and kills it if it has not exited within the stop timeout.
func (p *Process) Run(ctx context.Context, handle LineHandler) error {
	cmd := exec.CommandContext(ctx, p.argv[0], p.argv[1:]...)
	cmd.Dir = p.dir
	cmd.Stderr = os.Stderr

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return fmt.Errorf("server stdin: %w", err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return fmt.Errorf("server stdout: %w", err)
	}
	cmd.Cancel = func() error {
		p.log.Info("stopping server")
		return p.Execute(context.Background(), "stop")
	}
	cmd.WaitDelay = p.stopTimeout

	if err := cmd.Start(); err != nil {
		return fmt.Errorf("start server %q: %w", p.argv[0], err)
	}
	p.log.Info("server started", "pid", cmd.Process.Pid, "dir", p.dir)

	p.mu.Lock()
	p.stdin = stdin
	p.mu.Unlock()

	scanner := bufio.NewScanner(stdout)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := scanner.Text()
		if p.echo != nil {
			fmt.Fprintln(p.echo, line)
		}
		if handle != nil {
			handle(line)
		}
	}
	if err := scanner.Err(); err != nil {
		p.log.Warn("server output ended unexpectedly", "error", err.Error())
	}

	p.mu.Lock()
	p.stdin = nil
	p.mu.Unlock()

	err = cmd.Wait()
	if ctx.Err() != nil {
		// Stopped on request; the exit status of a stopped server is not interesting.
		return nil
	}
	if err != nil {
		return fmt.Errorf("server exited: %w", err)
	}
	p.log.Info("server exited")
	return nil
}

// Close closes the server's standard input.
func (p *Process) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.stdin == nil {
		return nil
	}
	err := p.stdin.Close()
	p.stdin = nil
	return err
}
