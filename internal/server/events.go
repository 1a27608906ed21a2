package server

import (
	"regexp"
	"strings"
)

// Info is one parsed line of server console output.
type Info struct {
	// Time is the HH:MM:SS stamp printed by the server.
	Time   string
	Thread string
	Level  string
	// Player is set for chat lines and names the speaker.
	Player  string
	Content string
	Raw     string
}

// IsUser reports whether the line was typed by a player.
func (i Info) IsUser() bool {
	return i.Player != ""
}

var (
	consoleLine = regexp.MustCompile(`^\[(\d{2}:\d{2}:\d{2})\] \[([^\]]+)/([A-Z]+)\]: (.*)$`)
	chatLine    = regexp.MustCompile(`^(?:\[Not Secure\] )?<([A-Za-z0-9_]{1,16})> (.*)$`)
)

// ParseInfo parses a vanilla console line of the form
// "[HH:MM:SS] [Thread/LEVEL]: content". Lines in any other format are
// returned with only Raw and Content set.
func ParseInfo(line string) Info {
	line = strings.TrimRight(line, "\r\n")
	info := Info{Raw: line, Content: line}

	m := consoleLine.FindStringSubmatch(line)
	if m == nil {
		return info
	}
	info.Time, info.Thread, info.Level, info.Content = m[1], m[2], m[3], m[4]

	if info.Level == "INFO" {
		if chat := chatLine.FindStringSubmatch(info.Content); chat != nil {
			info.Player = chat[1]
			info.Content = chat[2]
		}
	}
	return info
}
