// Package help renders the embedded FAQ document and the command table
// shown by the CLI's `help` and `faq` commands (spec §6).
package help

import (
	_ "embed"
	"strings"
)

//go:embed faq.md
var faqSource []byte

// FAQ renders the embedded FAQ markdown into terminal-friendly plain text.
func FAQ() (string, error) {
	return RenderPlain(faqSource)
}

// Command is one line of the command table printed by `help`.
type Command struct {
	Name string
	Desc string
}

// TopLevelCommands are available before a room is created or joined.
var TopLevelCommands = []Command{
	{"make room", "host a new listening room"},
	{"join room <host:port>", "join an existing room"},
	{"list rooms", "ask the tracker for known rooms (if configured)"},
	{"find room <name>", "look up one room by name via the tracker"},
	{"help", "show this command list"},
	{"faq", "show the FAQ"},
	{"exit", "quit the program"},
}

// SessionCommands are available once inside a room, host or participant.
var SessionCommands = []Command{
	{"add song", "request a queue slot and send a file"},
	{"mute", "silence local output"},
	{"unmute", "restore local output"},
	{"clients", "list who else is in the room"},
	{"chat <text>", "send a line of text to the room"},
	{"history", "show recent chat scrollback"},
	{"help", "show this command list"},
	{"faq", "show the FAQ"},
	{"exit / quit", "leave the room"},
}

// Render formats a command table for terminal display.
func Render(cmds []Command) string {
	width := 0
	for _, c := range cmds {
		if len(c.Name) > width {
			width = len(c.Name)
		}
	}
	var b strings.Builder
	for _, c := range cmds {
		b.WriteString(c.Name)
		b.WriteString(strings.Repeat(" ", width-len(c.Name)+2))
		b.WriteString(c.Desc)
		b.WriteString("\n")
	}
	return strings.TrimRight(b.String(), "\n")
}
