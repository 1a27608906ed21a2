package command

import (
	"fmt"
	"io"
	"sync"

	"github.com/kebairia/zipbackup/internal/logger"
)

// Permission levels of the built-in sources.
const (
	PlayerDefaultLevel = 1
	ConsoleLevel       = 4
)

const replyPrefix = "[zip_backup] "

// Teller delivers a private message to one player.
type Teller interface {
	Tell(player, msg string)
}

// Player is a command typed in game chat.
type Player struct {
	name   string
	level  int
	teller Teller
}

func NewPlayer(name string, level int, teller Teller) *Player {
	return &Player{name: name, level: level, teller: teller}
}

func (p *Player) Name() string         { return p.name }
func (p *Player) IsPlayer() bool       { return true }
func (p *Player) PermissionLevel() int { return p.level }
func (p *Player) Reply(msg string)     { p.teller.Tell(p.name, msg) }

// Console is the operator terminal.
type Console struct {
	mu  sync.Mutex
	out io.Writer
}

func NewConsole(out io.Writer) *Console {
	return &Console{out: out}
}

func (c *Console) Name() string         { return "console" }
func (c *Console) IsPlayer() bool       { return false }
func (c *Console) PermissionLevel() int { return ConsoleLevel }

func (c *Console) Reply(msg string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	fmt.Fprintln(c.out, replyPrefix+msg)
}

// System is an internal requester such as the scheduler. Replies go to the log.
type System struct {
	name string
	log  logger.Logger
}

func NewSystem(name string, log logger.Logger) *System {
	return &System{name: name, log: log}
}

func (s *System) Name() string         { return s.name }
func (s *System) IsPlayer() bool       { return false }
func (s *System) PermissionLevel() int { return ConsoleLevel }
func (s *System) Reply(msg string)     { s.log.Info(msg, "source", s.name) }
