// Package server talks to the game server console, either by owning the
// server process or over RCON.
package server

import (
	"context"
	"errors"
)

// ErrNotRunning is returned when a directive is sent before the server is up.
var ErrNotRunning = errors.New("server is not running")

// LineHandler receives each console line the server prints.
type LineHandler func(line string)

// Controller sends directives to the server and streams its console output.
type Controller interface {
	// Execute sends one console command.
	Execute(ctx context.Context, command string) error
	// Run feeds console lines to handle until ctx is done or the server stops.
	Run(ctx context.Context, handle LineHandler) error
	Close() error
}
