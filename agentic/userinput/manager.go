// Package userinput implements UserInputManager from base spec §4.7: a
// concurrent map tool_id -> one-shot answer channel, letting a running tool
// (or the confirmation protocol) block until a human answers or the caller
// gives up waiting.
//
// Grounded on the original implementation's user_input_manager.rs
// (UserInputManager backed by a DashMap<String, oneshot::Sender>), but
// deliberately NOT exposed as a process-wide global singleton the way the
// original's USER_INPUT_MANAGER/get_user_input_manager() is: every
// ToolPipeline owns its own Manager instance, constructed and injected like
// the teacher's interrupt.Controller (runtime/agent/interrupt/controller.go).
package userinput

import (
	"errors"
	"sync"
)

// ErrAlreadyPending is returned by Register when tool_id already has a
// slot installed.
var ErrAlreadyPending = errors.New("userinput: a channel is already registered for this tool id")

// ErrNoSuchPending is returned by Answer when tool_id has no
// registered slot.
var ErrNoSuchPending = errors.New("userinput: no waiting channel for this tool id")

// Answer is the payload delivered back to a waiting tool.
type Answer struct {
	Payload map[string]any
}

// Manager is a concurrent map tool_id -> one-shot answer channel. Every
// slot is consumed at most once, by either Answer or Cancel. It is safe
// for concurrent use.
type Manager struct {
	mu       sync.Mutex
	channels map[string]chan Answer
}

// NewManager constructs an empty Manager.
func NewManager() *Manager {
	return &Manager{channels: make(map[string]chan Answer)}
}

// Register installs a waiting slot for toolID and returns the channel the
// caller should receive on. The channel is buffered (capacity 1) so Answer
// never blocks on a slow or absent receiver.
func (m *Manager) Register(toolID string) (<-chan Answer, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.channels[toolID]; ok {
		return nil, ErrAlreadyPending
	}
	ch := make(chan Answer, 1)
	m.channels[toolID] = ch
	return ch, nil
}

// Answer delivers payload to the slot registered for toolID and removes
// it. Returns ErrNoSuchPending if no slot is registered (already answered,
// cancelled, or never registered).
func (m *Manager) Answer(toolID string, payload map[string]any) error {
	m.mu.Lock()
	ch, ok := m.channels[toolID]
	if ok {
		delete(m.channels, toolID)
	}
	m.mu.Unlock()
	if !ok {
		return ErrNoSuchPending
	}
	ch <- Answer{Payload: payload}
	return nil
}

// Cancel drops the slot registered for toolID, if any, without delivering
// an answer. It never errors: cancelling an already-resolved or unknown
// slot is a no-op.
func (m *Manager) Cancel(toolID string) {
	m.mu.Lock()
	delete(m.channels, toolID)
	m.mu.Unlock()
}

// HasPending reports whether toolID currently has a registered slot.
func (m *Manager) HasPending(toolID string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.channels[toolID]
	return ok
}

// PendingToolIDs returns every tool id with a currently registered slot.
// Order is unspecified.
func (m *Manager) PendingToolIDs() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	ids := make([]string, 0, len(m.channels))
	for id := range m.channels {
		ids = append(ids, id)
	}
	return ids
}
