package session

import (
	"context"
	"sync"

	"github.com/goadesign/agentic-core/agentic/core"
	"github.com/goadesign/agentic-core/agentic/events"
)

// StateManager holds a concurrent map session_id -> SessionState.
// UpdateState is the only mutator; it also emits SessionStateChanged,
// matching base spec §4.4 exactly.
type StateManager struct {
	router Router

	mu     sync.RWMutex
	states map[string]core.SessionState
}

// NewStateManager constructs a StateManager. router may be nil.
func NewStateManager(router Router) *StateManager {
	return &StateManager{router: router, states: make(map[string]core.SessionState)}
}

func (sm *StateManager) setInitial(sessionID string) {
	sm.mu.Lock()
	sm.states[sessionID] = core.Idle()
	sm.mu.Unlock()
}

func (sm *StateManager) remove(sessionID string) {
	sm.mu.Lock()
	delete(sm.states, sessionID)
	sm.mu.Unlock()
}

// Get returns the current SessionState for sessionID. A session with no
// recorded state is considered Idle.
func (sm *StateManager) Get(sessionID string) core.SessionState {
	sm.mu.RLock()
	defer sm.mu.RUnlock()
	st, ok := sm.states[sessionID]
	if !ok {
		return core.Idle()
	}
	return st
}

// CanStartNewTurn reports whether sessionID may start a new DialogTurn:
// true iff current state is Idle or Error{recoverable:true}. Resolves base
// spec §9 Open Question 1 — see DESIGN.md.
func (sm *StateManager) CanStartNewTurn(sessionID string) bool {
	return sm.Get(sessionID).CanStartNewTurn()
}

// IsProcessing mirrors CanStartNewTurn for UI consumers that want to know
// whether a turn is currently in flight.
func (sm *StateManager) IsProcessing(sessionID string) bool {
	return sm.Get(sessionID).IsProcessing()
}

// UpdateState is the only mutator of a session's state. It commits the new
// state and emits a SessionStateChanged event through the router.
func (sm *StateManager) UpdateState(ctx context.Context, sessionID, turnID string, state core.SessionState) {
	sm.mu.Lock()
	sm.states[sessionID] = state
	sm.mu.Unlock()

	if sm.router != nil {
		sm.router.Route(ctx, events.NewSessionStateChangedEvent(sessionID, turnID, state))
	}
}
