package state

import (
	"sync"

	"github.com/promolabs/promobot/core/logger"
	tghelpers "github.com/promolabs/promobot/core/telegram/helpers"
	"log/slog"

	tele "gopkg.in/telebot.v4"
)

type memoryManager struct {
	mu       sync.RWMutex
	sessions map[int64]*Session
	handlers map[State]Handler
}

// NewMemoryManager constructs an in-memory Manager implementation.
func NewMemoryManager() Manager {
	return &memoryManager{
		sessions: make(map[int64]*Session),
		handlers: make(map[State]Handler),
	}
}

func (m *memoryManager) session(userID int64) *Session {
	s, ok := m.sessions[userID]
	if !ok {
		s = &Session{State: StateIdle, TempData: make(map[string]interface{})}
		m.sessions[userID] = s
	}
	return s
}

// Set updates the state for a user, creating a new session if necessary.
func (m *memoryManager) Set(userID int64, state State) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.session(userID).State = state
}

// GetState returns the FSM state for a user, StateIdle when absent.
func (m *memoryManager) GetState(userID int64) State {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if s, ok := m.sessions[userID]; ok {
		return s.State
	}
	return StateIdle
}

// HasState reports whether the user has a non-idle conversation state.
func (m *memoryManager) HasState(userID int64) bool {
	return m.GetState(userID) != StateIdle
}

// Clear removes the entire session for a user.
func (m *memoryManager) Clear(userID int64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.sessions, userID)
}

// SetTemp stores a temporary key/value pair for the given user session.
func (m *memoryManager) SetTemp(userID int64, key string, value interface{}) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.session(userID).TempData[key] = value
}

// GetTemp retrieves a temporary value by key for the given user session.
func (m *memoryManager) GetTemp(userID int64, key string) (interface{}, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.sessions[userID]
	if !ok {
		return nil, false
	}
	v, ok := s.TempData[key]
	return v, ok
}

// ClearTemp removes a temporary key/value pair for the given user session.
func (m *memoryManager) ClearTemp(userID int64, key string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if s, ok := m.sessions[userID]; ok {
		delete(s.TempData, key)
	}
}

// RegisterHandler binds a conversation step to its text handler.
func (m *memoryManager) RegisterHandler(st State, h Handler) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.handlers[st] = h
}

// InProgress reports whether the user currently has an active conversation.
func (m *memoryManager) InProgress(userID int64) bool {
	return m.HasState(userID)
}

// ManagerHandler dispatches a text update to the handler of the user's current state.
func (m *memoryManager) ManagerHandler(c tele.Context) error {
	userID := c.Sender().ID

	m.mu.RLock()
	s, ok := m.sessions[userID]
	var h Handler
	if ok {
		h = m.handlers[s.State]
	}
	m.mu.RUnlock()

	if !ok || h == nil {
		ctx := tghelpers.BuildContext(c)
		logger.Warn(ctx, "tg", "fsm.no_handler",
			slog.Int64("user_id", userID),
		)
		return nil
	}
	return h(c, s)
}
