// Package session implements SessionManager and StateManager from base
// spec §4.4. The CRUD/clone-on-read discipline follows
// runtime/agent/session/inmem/store.go; the state-transition and
// emit-on-change semantics follow the original implementation's
// state_manager.rs (see DESIGN.md for the can_start_new_turn grounding).
package session

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/goadesign/agentic-core/agentic/core"
	"github.com/goadesign/agentic-core/agentic/events"
)

// ErrSessionNotFound is returned by operations on an unknown session.
var ErrSessionNotFound = errors.New("session: not found")

// ErrCannotStartTurn is returned (as coordinator.ErrCannotStartTurn) by
// Coordinator.StartDialogTurn when the session's current
// state forbids starting a new turn (base spec §4.4).
var ErrCannotStartTurn = errors.New("session: cannot start a new turn from the current state")

// Router is the narrow subset of events.Router that StateManager needs
// to emit SessionStateChanged.
type Router interface {
	Route(ctx context.Context, event events.Event)
}

// Manager owns CRUD over Session records and delegates all state-machine
// concerns to its embedded StateManager. It is safe for concurrent use.
type Manager struct {
	mu       sync.RWMutex
	sessions map[string]core.Session

	states *StateManager
}

// NewManager constructs a Manager. router may be nil (events are then
// dropped, useful for tests that don't care about the event stream).
func NewManager(router Router) *Manager {
	return &Manager{
		sessions: make(map[string]core.Session),
		states:   NewStateManager(router),
	}
}

// States returns the embedded StateManager.
func (m *Manager) States() *StateManager { return m.states }

// CreateSession creates a new Session with the given config and a freshly
// generated uuid as its id.
func (m *Manager) CreateSession(agentType string, cfg core.SessionConfig) core.Session {
	now := time.Now()
	s := core.Session{
		ID:        uuid.NewString(),
		AgentType: agentType,
		Config:    cfg,
		CreatedAt: now,
		UpdatedAt: now,
	}
	m.mu.Lock()
	m.sessions[s.ID] = s
	m.mu.Unlock()
	m.states.setInitial(s.ID)
	return cloneSession(s)
}

// LoadSession returns a copy of the session with the given id.
func (m *Manager) LoadSession(sessionID string) (core.Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.sessions[sessionID]
	if !ok {
		return core.Session{}, ErrSessionNotFound
	}
	return cloneSession(s), nil
}

// AppendTurn records turnID as the session's newest DialogTurn.
func (m *Manager) AppendTurn(sessionID, turnID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[sessionID]
	if !ok {
		return ErrSessionNotFound
	}
	s.DialogTurnIDs = append(s.DialogTurnIDs, turnID)
	s.UpdatedAt = time.Now()
	m.sessions[sessionID] = s
	return nil
}

// RecordCompression stamps the session's CompressionState after a
// successful CompressionManager.Compress call.
func (m *Manager) RecordCompression(sessionID string, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[sessionID]
	if !ok {
		return ErrSessionNotFound
	}
	s.Compression.Count++
	s.Compression.LastAt = at
	s.UpdatedAt = time.Now()
	m.sessions[sessionID] = s
	return nil
}

// EndSession removes sessionID and its state. Removal is explicit per
// base spec §4.4.
func (m *Manager) EndSession(sessionID string) {
	m.mu.Lock()
	delete(m.sessions, sessionID)
	m.mu.Unlock()
	m.states.remove(sessionID)
}

func cloneSession(in core.Session) core.Session {
	out := in
	if len(in.DialogTurnIDs) > 0 {
		out.DialogTurnIDs = append([]string(nil), in.DialogTurnIDs...)
	}
	return out
}
