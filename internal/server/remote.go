package server

import "context"

// Remote controls an already running server: directives go over RCON and
// console output is read back from the server log.
type Remote struct {
	rcon *RCON
	tail *LogTail
}

var _ Controller = (*Remote)(nil)

func NewRemote(rcon *RCON, tail *LogTail) *Remote {
	return &Remote{rcon: rcon, tail: tail}
}

func (r *Remote) Execute(ctx context.Context, command string) error {
	return r.rcon.Execute(ctx, command)
}

// Run connects to RCON and follows the log until ctx is done.
func (r *Remote) Run(ctx context.Context, handle LineHandler) error {
	if err := r.rcon.Connect(ctx); err != nil {
		return err
	}
	return r.tail.Run(ctx, handle)
}

func (r *Remote) Close() error {
	return r.rcon.Close()
}
