// Package events implements the tagged-union Event type, the priority
// EventQueue, and the error-isolated EventRouter described in base spec
// §4.1/§4.11. The tagged-union shape follows the teacher's
// runtime/agent/hooks/events.go pattern (a common interface implemented by
// concrete structs via an embedded baseEvent, with NewXxxEvent
// constructors); the error-isolated fan-out is a deliberate departure from
// the teacher's fail-fast hooks.Bus, grounded on the original
// implementation's agentic/events/router.rs — see DESIGN.md.
package events

import "time"

// Type enumerates the session-lifecycle event kinds from base spec §3.
type Type string

const (
	SessionStateChanged     Type = "session_state_changed"
	TurnStarted             Type = "turn_started"
	TurnCompleted           Type = "turn_completed"
	TurnCancelled           Type = "turn_cancelled"
	RoundStarted            Type = "round_started"
	TextChunk               Type = "text_chunk"
	ReasoningChunk          Type = "reasoning_chunk"
	ToolCallDetected        Type = "tool_call_detected"
	ToolCallComplete        Type = "tool_call_complete"
	ToolExecutionStarted    Type = "tool_execution_started"
	ToolProgress            Type = "tool_progress"
	ToolAwaitingConfirmation Type = "tool_awaiting_confirmation"
	ToolAwaitingUserInput   Type = "tool_awaiting_user_input"
	ToolCompleted           Type = "tool_completed"
	ToolFailed              Type = "tool_failed"
	ErrorEventType          Type = "error"
)

// Priority is the EventQueue's dispatch priority (base spec §4.1).
type Priority int

const (
	PriorityLow Priority = iota
	PriorityNormal
	PriorityHigh
)

// DefaultPriority returns the priority a producer should use for t when it
// has no more specific preference. SessionStateChanged and
// ToolAwaitingConfirmation default to High because UIs block on them; this
// default table is a supplemented feature (SPEC_FULL.md §3), absent from
// the base spec's contract.
func DefaultPriority(t Type) Priority {
	switch t {
	case SessionStateChanged, ToolAwaitingConfirmation:
		return PriorityHigh
	default:
		return PriorityNormal
	}
}

// Event is the interface every concrete event type implements. Subscribers
// use a type switch on the concrete type to read event-specific fields.
type Event interface {
	Type() Type
	SessionID() string
	TurnID() string
	// Seq is the monotone per-session sequence number assigned by the
	// EventQueue at enqueue time (base spec §8: "strictly increasing per
	// session").
	Seq() int64
	Timestamp() time.Time
}

// seqSetter is implemented by baseEvent; the EventQueue uses it to stamp
// the sequence number at enqueue time.
type seqSetter interface {
	setSeq(int64)
}

// baseEvent holds the fields common to every event, embedded anonymously
// in each concrete event struct — mirrors the teacher's hooks.baseEvent.
type baseEvent struct {
	sessionID string
	turnID    string
	seq       int64
	timestamp time.Time
}

func newBaseEvent(sessionID, turnID string) baseEvent {
	return baseEvent{sessionID: sessionID, turnID: turnID, timestamp: time.Now()}
}

func (e baseEvent) SessionID() string    { return e.sessionID }
func (e baseEvent) TurnID() string       { return e.turnID }
func (e baseEvent) Seq() int64           { return e.seq }
func (e baseEvent) Timestamp() time.Time { return e.timestamp }
func (e *baseEvent) setSeq(seq int64)    { e.seq = seq }
