package server

import (
	"context"

	"github.com/goccy/go-json"

	"github.com/kebairia/zipbackup/internal/logger"
)

// ReplyPrefix starts every message sent to players.
const ReplyPrefix = "[zip_backup] "

// AllPlayers is the tellraw selector for every online player.
const AllPlayers = "@a"

type textComponent struct {
	Text string `json:"text"`
}

// Tellraw builds the console command that shows msg to target.
func Tellraw(target, msg string) string {
	// A struct with a single string field cannot fail to marshal.
	payload, _ := json.Marshal(textComponent{Text: ReplyPrefix + msg})
	return "tellraw " + target + " " + string(payload)
}

// Messenger sends chat messages through a Controller.
type Messenger struct {
	ctrl Controller
	log  logger.Logger
}

func NewMessenger(ctrl Controller, log logger.Logger) *Messenger {
	return &Messenger{ctrl: ctrl, log: log}
}

// Tell shows msg to a single player.
func (m *Messenger) Tell(player, msg string) {
	m.send(player, msg)
}

// Broadcast shows msg to every online player.
func (m *Messenger) Broadcast(msg string) {
	m.send(AllPlayers, msg)
}

func (m *Messenger) send(target, msg string) {
	if err := m.ctrl.Execute(context.Background(), Tellraw(target, msg)); err != nil {
		m.log.Warn("failed to send message", "target", target, "error", err.Error())
	}
}
