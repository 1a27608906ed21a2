package server

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/gorcon/rcon"

	"github.com/kebairia/zipbackup/internal/logger"
)

const defaultRCONTimeout = 10 * time.Second

var ErrRCONAuth = errors.New("rcon authentication failed")

type RCONOption func(*RCON)

func WithRCONTimeout(d time.Duration) RCONOption {
	return func(c *RCON) {
		c.timeout = d
	}
}

func WithRCONLogger(log logger.Logger) RCONOption {
	return func(c *RCON) {
		c.log = log
	}
}

// RCON sends console commands to the game server over RCON.
// A broken connection is re-established on the next command.
type RCON struct {
	addr     string
	password string
	timeout  time.Duration
	log      logger.Logger

	mu   sync.Mutex
	conn *rcon.Conn
}

// NewRCON returns a client for addr. No connection is made until Connect or
// the first command.
func NewRCON(addr, password string, opts ...RCONOption) *RCON {
	c := &RCON{
		addr:     addr,
		password: password,
		timeout:  defaultRCONTimeout,
		log:      logger.Nop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Connect dials and authenticates.
func (c *RCON) Connect(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.connect(ctx)
}

func (c *RCON) connect(ctx context.Context) error {
	if c.conn != nil {
		return nil
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	conn, err := rcon.Dial(c.addr, c.password,
		rcon.SetDialTimeout(c.timeout),
		rcon.SetDeadline(c.timeout),
	)
	if err != nil {
		if errors.Is(err, rcon.ErrAuthFailed) {
			return fmt.Errorf("%w: %s", ErrRCONAuth, c.addr)
		}
		return fmt.Errorf("dial rcon %s: %w", c.addr, err)
	}
	c.conn = conn
	c.log.Info("rcon connected", "address", c.addr)
	return nil
}

// Command runs command and returns the server's reply.
func (c *RCON) Command(ctx context.Context, command string) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.connect(ctx); err != nil {
		return "", err
	}
	reply, err := c.conn.Execute(command)
	if err != nil {
		c.reset()
		return "", fmt.Errorf("rcon %q: %w", command, err)
	}
	return reply, nil
}

// Execute runs command and discards the reply.
func (c *RCON) Execute(ctx context.Context, command string) error {
	_, err := c.Command(ctx, command)
	return err
}

// Close drops the connection.
func (c *RCON) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn == nil {
		return nil
	}
	err := c.conn.Close()
	c.conn = nil
	return err
}

func (c *RCON) reset() {
	if c.conn != nil {
		_ = c.conn.Close()
	}
	c.conn = nil
}
