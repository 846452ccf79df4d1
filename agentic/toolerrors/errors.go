// Package toolerrors provides the structured, typed error kinds that flow
// through the agentic runtime's failure paths (base spec §7). Every kind
// carries session/turn/tool identity so it can be surfaced either as a log
// line or as a synthetic tool result, and supports errors.Is/As like the
// teacher's tool_error.go.
package toolerrors

import (
	"errors"
	"fmt"
)

// Kind classifies a failure for retry and propagation decisions per the
// base spec's error handling design.
type Kind string

const (
	KindTransport           Kind = "transport"
	KindParse               Kind = "parse"
	KindTool                Kind = "tool"
	KindToolTimeout         Kind = "tool_timeout"
	KindToolCancelled       Kind = "tool_cancelled"
	KindConfirmationTimeout Kind = "confirmation_timeout"
	KindState               Kind = "state"
	KindCompression         Kind = "compression"
	KindPersistence         Kind = "persistence"
	KindUserDenied          Kind = "user_denied"
	// KindDependencyCycle marks a ToolPipeline batch rejected before
	// execution because its calls' DependsOn edges form a cycle. Always
	// ends the round: no partial writes from a rejected batch.
	KindDependencyCycle Kind = "dependency_cycle"
)

// Error is the structured failure type used throughout the runtime. It
// preserves message and causal context while implementing the standard
// error interface, mirroring the teacher's ToolError chain.
type Error struct {
	Kind Kind

	SessionID string
	TurnID    string
	ToolID    string

	Message string
	Cause   *Error

	// Retryable only applies to Kind == KindTool.
	Retryable bool
	// Recoverable only applies to Kind == KindParse: whether this was a
	// single bad delta (skip and continue) rather than malformed
	// assistant text that must end the round.
	Recoverable bool
	// CancelReason only applies to Kind == KindToolCancelled.
	CancelReason string
}

// New constructs an Error of the given kind with the provided message.
func New(kind Kind, message string) *Error {
	if message == "" {
		message = string(kind) + " error"
	}
	return &Error{Kind: kind, Message: message}
}

// Newf formats according to a format specifier and returns the result as
// an *Error of the given kind.
func Newf(kind Kind, format string, args ...any) *Error {
	return New(kind, fmt.Sprintf(format, args...))
}

// WithCause wraps an underlying error, converting it into an Error chain
// so metadata survives serialization while still supporting errors.Is/As
// through Unwrap.
func WithCause(kind Kind, message string, cause error) *Error {
	if message == "" && cause != nil {
		message = cause.Error()
	}
	return &Error{Kind: kind, Message: message, Cause: FromError(cause)}
}

// FromError converts an arbitrary error into an Error chain, tagging it
// KindTool if it carries no existing kind.
func FromError(err error) *Error {
	if err == nil {
		return nil
	}
	var e *Error
	if errors.As(err, &e) {
		return e
	}
	return &Error{Kind: KindTool, Message: err.Error(), Cause: FromError(errors.Unwrap(err))}
}

// WithSession attaches session/turn/tool identity, returning e for chaining.
func (e *Error) WithSession(sessionID, turnID, toolID string) *Error {
	e.SessionID = sessionID
	e.TurnID = turnID
	e.ToolID = toolID
	return e
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	return e.Message
}

// Unwrap returns the underlying error to support errors.Is/As.
func (e *Error) Unwrap() error {
	if e == nil || e.Cause == nil {
		return nil
	}
	return e.Cause
}

// SurfacesAsToolResult reports whether this error should be turned into a
// synthetic tool result rather than failing the round outright, per the
// base spec's propagation policy table.
func (e *Error) SurfacesAsToolResult() bool {
	switch e.Kind {
	case KindToolTimeout, KindToolCancelled, KindUserDenied:
		return true
	case KindTool:
		return !e.Retryable
	default:
		return false
	}
}

// EndsRound reports whether this error should terminate the current
// ModelRound rather than being recovered locally.
func (e *Error) EndsRound() bool {
	switch e.Kind {
	case KindTransport, KindDependencyCycle:
		return true
	case KindParse:
		return !e.Recoverable
	default:
		return false
	}
}
