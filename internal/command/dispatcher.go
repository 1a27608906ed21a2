// Package command routes "!!zb" chat and console commands to their handlers.
package command

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/kebairia/zipbackup/internal/config"
	"github.com/kebairia/zipbackup/internal/logger"
)

// Prefix starts every command.
const Prefix = "!!zb"

var (
	ErrNotCommand       = errors.New("not a command")
	ErrPermissionDenied = errors.New("permission denied")
	ErrUnknownCommand   = errors.New("unknown command")
	ErrBadArguments     = errors.New("invalid arguments")
)

// Source is the originator of a command.
type Source interface {
	Name() string
	IsPlayer() bool
	PermissionLevel() int
	Reply(msg string)
}

// ArgKind is how an argument token is parsed.
type ArgKind int

const (
	// Integer is a base-10 integer.
	Integer ArgKind = iota
	// Word is a single token.
	Word
	// GreedyText takes every remaining token.
	GreedyText
)

type Arg struct {
	Name     string
	Kind     ArgKind
	Optional bool
}

// Args holds the parsed arguments of one invocation.
type Args struct {
	words map[string]string
	ints  map[string]int
}

func (a Args) Has(name string) bool {
	_, okw := a.words[name]
	_, oki := a.ints[name]
	return okw || oki
}

// String returns the named Word or GreedyText argument, or "".
func (a Args) String(name string) string {
	return a.words[name]
}

// Int returns the named Integer argument, or def when it was not given.
func (a Args) Int(name string, def int) int {
	if v, ok := a.ints[name]; ok {
		return v
	}
	return def
}

// Handler runs a matched command.
type Handler func(ctx context.Context, src Source, args Args) error

// Command is one entry of the command table.
type Command struct {
	// Path is the literal words after the prefix, such as {"time", "interval"}.
	Path []string
	// Perm is the key looked up in minimum_permission_level.
	Perm string
	Args []Arg
	Run  Handler
}

// Usage renders the command the way it is typed.
func (c Command) Usage() string {
	parts := append([]string{Prefix}, c.Path...)
	for _, a := range c.Args {
		name := "<" + a.Name + ">"
		if a.Kind == GreedyText {
			name = "<" + a.Name + "...>"
		}
		if a.Optional {
			name = "[" + name + "]"
		}
		parts = append(parts, name)
	}
	return strings.Join(parts, " ")
}

// ConfigSource returns the current configuration snapshot.
type ConfigSource interface {
	Get() config.Config
}

// Dispatcher matches input against a command table and enforces permissions.
type Dispatcher struct {
	commands []Command
	cfg      ConfigSource
	help     []string
	log      logger.Logger
}

func NewDispatcher(cfg ConfigSource, help []string, log logger.Logger, commands ...Command) *Dispatcher {
	return &Dispatcher{
		commands: commands,
		cfg:      cfg,
		help:     help,
		log:      log,
	}
}

// IsCommand reports whether text is addressed to this dispatcher.
func IsCommand(text string) bool {
	fields := strings.Fields(text)
	return len(fields) > 0 && fields[0] == Prefix
}

// Dispatch parses text and runs the matching command on behalf of src. Every
// outcome, including errors, is reported to src; the returned error is for
// logging and tests.
func (d *Dispatcher) Dispatch(ctx context.Context, src Source, text string) error {
	fields := strings.Fields(text)
	if len(fields) == 0 || fields[0] != Prefix {
		return ErrNotCommand
	}
	rest := fields[1:]
	if len(rest) == 0 {
		for _, line := range d.help {
			src.Reply(line)
		}
		return nil
	}

	cmd, ok := d.match(rest)
	if !ok {
		src.Reply("Unknown command, see " + Prefix)
		return fmt.Errorf("%w: %s", ErrUnknownCommand, strings.Join(rest, " "))
	}

	required := d.cfg.Get().RequiredLevel(cmd.Perm)
	if src.PermissionLevel() < required {
		src.Reply("Permission denied")
		d.log.Info("command denied",
			"source", src.Name(),
			"command", cmd.Perm,
			"level", src.PermissionLevel(),
			"required", required,
		)
		return ErrPermissionDenied
	}

	args, err := parseArgs(cmd.Args, rest[len(cmd.Path):])
	if err != nil {
		src.Reply(err.Error() + ", usage: " + cmd.Usage())
		return err
	}

	d.log.Debug("running command", "source", src.Name(), "command", cmd.Perm)
	if err := cmd.Run(ctx, src, args); err != nil {
		d.log.Warn("command failed", "source", src.Name(), "command", cmd.Perm, "error", err.Error())
		return err
	}
	return nil
}

// match returns the command with the longest literal path prefixing tokens.
func (d *Dispatcher) match(tokens []string) (Command, bool) {
	var (
		best  Command
		found bool
	)
	for _, c := range d.commands {
		if len(c.Path) > len(tokens) || (found && len(c.Path) <= len(best.Path)) {
			continue
		}
		matched := true
		for i, word := range c.Path {
			if tokens[i] != word {
				matched = false
				break
			}
		}
		if matched {
			best, found = c, true
		}
	}
	return best, found
}

func parseArgs(schema []Arg, tokens []string) (Args, error) {
	args := Args{words: map[string]string{}, ints: map[string]int{}}
	i := 0
	for _, a := range schema {
		if i >= len(tokens) {
			if a.Optional {
				continue
			}
			return args, fmt.Errorf("%w: missing <%s>", ErrBadArguments, a.Name)
		}
		switch a.Kind {
		case Integer:
			n, err := strconv.Atoi(tokens[i])
			if err != nil {
				return args, fmt.Errorf("%w: <%s> must be an integer, got %q", ErrBadArguments, a.Name, tokens[i])
			}
			args.ints[a.Name] = n
			i++
		case Word:
			args.words[a.Name] = tokens[i]
			i++
		case GreedyText:
			args.words[a.Name] = strings.Join(tokens[i:], " ")
			i = len(tokens)
		}
	}
	if i < len(tokens) {
		return args, fmt.Errorf("%w: unexpected %q", ErrBadArguments, strings.Join(tokens[i:], " "))
	}
	return args, nil
}
