package commands

import (
	tele "gopkg.in/telebot.v4"
)

// Command represents a bot command with its handler, description, and metadata.
type Command struct {
	Handler     tele.HandlerFunc
	Description string
	// OperatorOnly restricts the command to the configured operator set.
	OperatorOnly bool
	Hidden       bool
	Aliases      []string
}
