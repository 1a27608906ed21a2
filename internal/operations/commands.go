package operations

import "github.com/kebairia/zipbackup/internal/command"

// defaultListAmount is how many archives "list" shows without an argument.
const defaultListAmount = 10

var helpMessage = []string{
	"---------------- zip backup ----------------",
	command.Prefix + " make [<comment>] Make a backup",
	command.Prefix + " list [<amount>] List the newest backups, 10 by default",
	command.Prefix + " listall List every backup",
	command.Prefix + " stats Show the auto backup status",
	command.Prefix + " ziplevel <level> Set the compression level: speed (fastest), best (smallest)",
	command.Prefix + " time enable Enable auto backup",
	command.Prefix + " time disable Disable auto backup",
	command.Prefix + " time interval <interval> <unit> Set the auto backup interval, unit is s, m, h or d",
	command.Prefix + " time date <type> Back up monthly, weekly or daily at 01:00",
	command.Prefix + " time change <mode> Switch the auto backup mode: interval or date",
}

func (op *Operator) commands() []command.Command {
	return []command.Command{
		{
			Path: []string{"make"},
			Perm: "make",
			Args: []command.Arg{{Name: "comment", Kind: command.GreedyText, Optional: true}},
			Run:  op.makeBackup,
		},
		{
			Path: []string{"list"},
			Perm: "list",
			Args: []command.Arg{{Name: "amount", Kind: command.Integer, Optional: true}},
			Run:  op.listBackups,
		},
		{
			Path: []string{"listall"},
			Perm: "listall",
			Run:  op.listAllBackups,
		},
		{
			Path: []string{"stats"},
			Perm: "stats",
			Run:  op.showStats,
		},
		{
			Path: []string{"ziplevel"},
			Perm: "ziplevel",
			Args: []command.Arg{{Name: "level", Kind: command.Word}},
			Run:  op.setCompressionLevel,
		},
		{
			Path: []string{"time", "enable"},
			Perm: "time.enable",
			Run:  op.enableAutoBackup,
		},
		{
			Path: []string{"time", "disable"},
			Perm: "time.disable",
			Run:  op.disableAutoBackup,
		},
		{
			Path: []string{"time", "interval"},
			Perm: "time.interval",
			Args: []command.Arg{
				{Name: "interval", Kind: command.Integer},
				{Name: "unit", Kind: command.Word},
			},
			Run: op.setInterval,
		},
		{
			Path: []string{"time", "date"},
			Perm: "time.date",
			Args: []command.Arg{{Name: "type", Kind: command.Word}},
			Run:  op.setDate,
		},
		{
			Path: []string{"time", "change"},
			Perm: "time.change",
			Args: []command.Arg{{Name: "mode", Kind: command.Word}},
			Run:  op.changeMode,
		},
	}
}
