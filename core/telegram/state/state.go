// Package state keeps per-user conversation sessions for multi-step bot flows,
// such as entering a contact list message by message.
package state

import tele "gopkg.in/telebot.v4"

// State identifies a finite-state-machine step used in conversations.
type State string

const (
	// StateIdle indicates there is no active conversation with the user.
	StateIdle State = "idle"
)

// Session stores conversation state and temporary data for a user.
type Session struct {
	State    State
	TempData map[string]interface{}
}

// Handler reacts to a text update for a given conversation state.
type Handler func(c tele.Context, s *Session) error

// Manager orchestrates user sessions and FSM state transitions.
type Manager interface {
	Set(userID int64, state State)
	GetState(userID int64) State
	HasState(userID int64) bool
	Clear(userID int64)

	SetTemp(userID int64, key string, value interface{})
	GetTemp(userID int64, key string) (interface{}, bool)
	ClearTemp(userID int64, key string)

	// RegisterHandler binds a conversation step to its text handler.
	RegisterHandler(st State, h Handler)

	InProgress(userID int64) bool
	ManagerHandler(c tele.Context) error
}
