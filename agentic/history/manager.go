// Package history implements the per-session append-only message log from
// base spec §4.2. Its concurrency discipline (sync.RWMutex plus
// clone-on-read) follows runtime/agent/session/inmem/store.go; its
// append-only, replace-for-compression shape follows the ordering
// discipline of runtime/agent/transcript/ledger.go, simplified to the base
// spec's flat core.Message instead of the teacher's Part-polymorphic
// provider-precise ledger (out of scope here — see DESIGN.md).
package history

import (
	"context"
	"errors"
	"sync"

	"github.com/goadesign/agentic-core/agentic/core"
)

// ErrSessionNotFound is returned by operations on a session with no
// recorded history.
var ErrSessionNotFound = errors.New("history: session not found")

// Persistence is the optional durable backing for a session's history.
// When a session is not configured for persistence, Manager keeps history
// in memory only (base spec §4.2).
type Persistence interface {
	SaveMessages(ctx context.Context, sessionID string, messages []core.Message) error
	LoadMessages(ctx context.Context, sessionID string) ([]core.Message, error)
}

// Manager is the in-process HistoryManager. It is safe for concurrent use.
type Manager struct {
	mu       sync.RWMutex
	sessions map[string][]core.Message
	persist  map[string]bool

	backing Persistence
}

// NewManager constructs an empty Manager. backing may be nil, in which
// case no session is ever persisted regardless of EnablePersistence.
func NewManager(backing Persistence) *Manager {
	return &Manager{
		sessions: make(map[string][]core.Message),
		persist:  make(map[string]bool),
		backing:  backing,
	}
}

// EnablePersistence marks sessionID for durable backing on every append.
// Has no effect if Manager was constructed without a Persistence backend.
func (m *Manager) EnablePersistence(sessionID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.persist[sessionID] = m.backing != nil
}

// Append adds msg to sessionID's history, persisting it if enabled.
// Appends are serialized by the write lock so no partial write is ever
// visible to a concurrent read, per base spec §4.2's invariant.
func (m *Manager) Append(ctx context.Context, sessionID string, msg core.Message) error {
	m.mu.Lock()
	m.sessions[sessionID] = append(m.sessions[sessionID], msg)
	shouldPersist := m.persist[sessionID]
	snapshot := cloneMessages(m.sessions[sessionID])
	m.mu.Unlock()

	if shouldPersist && m.backing != nil {
		return m.backing.SaveMessages(ctx, sessionID, snapshot)
	}
	return nil
}

// Read returns messages for sessionID starting at fromIndex (0-based),
// bounded by limit (0 means unbounded). The result is a copy; mutating it
// never affects the manager's state.
func (m *Manager) Read(sessionID string, fromIndex, limit int) ([]core.Message, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	all, ok := m.sessions[sessionID]
	if !ok {
		return nil, ErrSessionNotFound
	}
	if fromIndex < 0 {
		fromIndex = 0
	}
	if fromIndex >= len(all) {
		return nil, nil
	}
	end := len(all)
	if limit > 0 && fromIndex+limit < end {
		end = fromIndex + limit
	}
	return cloneMessages(all[fromIndex:end]), nil
}

// Snapshot returns the full current history for sessionID. The returned
// slice is the exact input context a RoundExecutor hands to the model for
// one round and must not change after the round starts; callers own their
// copy (base spec §4.2).
func (m *Manager) Snapshot(sessionID string) []core.Message {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return cloneMessages(m.sessions[sessionID])
}

// Replace atomically swaps sessionID's entire history, used by
// CompressionManager after a successful summarization.
func (m *Manager) Replace(ctx context.Context, sessionID string, newMessages []core.Message) error {
	m.mu.Lock()
	m.sessions[sessionID] = cloneMessages(newMessages)
	shouldPersist := m.persist[sessionID]
	snapshot := cloneMessages(m.sessions[sessionID])
	m.mu.Unlock()

	if shouldPersist && m.backing != nil {
		return m.backing.SaveMessages(ctx, sessionID, snapshot)
	}
	return nil
}

func cloneMessages(in []core.Message) []core.Message {
	if len(in) == 0 {
		return nil
	}
	out := make([]core.Message, len(in))
	copy(out, in)
	return out
}
