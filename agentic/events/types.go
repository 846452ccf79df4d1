package events

import (
	"github.com/goadesign/agentic-core/agentic/core"
	"github.com/goadesign/agentic-core/agentic/toolerrors"
)

type (
	// SessionStateChangedEvent fires whenever StateManager.UpdateState commits
	// a new SessionState.
	SessionStateChangedEvent struct {
		baseEvent
		State core.SessionState
	}

	// TurnStartedEvent fires when a DialogTurn begins.
	TurnStartedEvent struct {
		baseEvent
		UserInput string
	}

	// TurnCompletedEvent fires when a DialogTurn reaches its terminal
	// Completed state.
	TurnCompletedEvent struct {
		baseEvent
		FinalResponse string
		TotalRounds   int
		Truncated     bool
	}

	// TurnCancelledEvent fires when a DialogTurn is cancelled mid-flight.
	TurnCancelledEvent struct {
		baseEvent
		Reason string
	}

	// RoundStartedEvent fires when a ModelRound begins.
	RoundStartedEvent struct {
		baseEvent
		RoundIndex int
	}

	// TextChunkEvent carries one streamed fragment of assistant text.
	TextChunkEvent struct {
		baseEvent
		RoundIndex int
		Text       string
	}

	// ReasoningChunkEvent carries one streamed fragment of reasoning/thinking
	// content.
	ReasoningChunkEvent struct {
		baseEvent
		RoundIndex int
		Text       string
	}

	// ToolCallDetectedEvent fires as soon as a tool call's id/name is known,
	// before its arguments finish streaming.
	ToolCallDetectedEvent struct {
		baseEvent
		RoundIndex int
		ToolCallID string
		ToolName   string
	}

	// ToolCallCompleteEvent fires once a tool call's arguments have parsed as
	// a complete JSON object.
	ToolCallCompleteEvent struct {
		baseEvent
		RoundIndex int
		ToolCall   core.ToolCall
	}

	// ToolExecutionStartedEvent fires when the ToolPipeline begins running a
	// ToolTask.
	ToolExecutionStartedEvent struct {
		baseEvent
		ToolCallID string
		ToolName   string
	}

	// ToolProgressEvent reports an intermediate progress update from a
	// streaming tool.
	ToolProgressEvent struct {
		baseEvent
		ToolCallID     string
		ToolName       string
		Progress       string
		ChunksReceived int
	}

	// ToolAwaitingConfirmationEvent fires when a tool call is paused pending
	// explicit operator confirmation.
	ToolAwaitingConfirmationEvent struct {
		baseEvent
		ToolCallID string
		ToolName   string
		Title      string
		Prompt     string
		Params     map[string]any
	}

	// ToolAwaitingUserInputEvent fires when a tool call is paused pending a
	// free-form answer from the user (clarification).
	ToolAwaitingUserInputEvent struct {
		baseEvent
		ToolCallID string
		ToolName   string
		Question   string
	}

	// ToolCompletedEvent fires when a ToolTask finishes successfully.
	ToolCompletedEvent struct {
		baseEvent
		ToolCallID    string
		ToolName      string
		ResultPreview string
		DurationMs    int64
	}

	// ToolFailedEvent fires when a ToolTask finishes with an error.
	ToolFailedEvent struct {
		baseEvent
		ToolCallID   string
		ToolName     string
		ErrorKind    toolerrors.Kind
		ErrorMessage string
		Retryable    bool
	}

	// FailureEvent is the generic Error variant from base spec §3, used for
	// failures not already covered by a ToolFailedEvent.
	FailureEvent struct {
		baseEvent
		Kind    toolerrors.Kind
		Message string
		ToolID  string
	}
)

func (e *SessionStateChangedEvent) Type() Type      { return SessionStateChanged }
func (e *TurnStartedEvent) Type() Type              { return TurnStarted }
func (e *TurnCompletedEvent) Type() Type            { return TurnCompleted }
func (e *TurnCancelledEvent) Type() Type            { return TurnCancelled }
func (e *RoundStartedEvent) Type() Type             { return RoundStarted }
func (e *TextChunkEvent) Type() Type                { return TextChunk }
func (e *ReasoningChunkEvent) Type() Type           { return ReasoningChunk }
func (e *ToolCallDetectedEvent) Type() Type         { return ToolCallDetected }
func (e *ToolCallCompleteEvent) Type() Type         { return ToolCallComplete }
func (e *ToolExecutionStartedEvent) Type() Type     { return ToolExecutionStarted }
func (e *ToolProgressEvent) Type() Type             { return ToolProgress }
func (e *ToolAwaitingConfirmationEvent) Type() Type { return ToolAwaitingConfirmation }
func (e *ToolAwaitingUserInputEvent) Type() Type    { return ToolAwaitingUserInput }
func (e *ToolCompletedEvent) Type() Type            { return ToolCompleted }
func (e *ToolFailedEvent) Type() Type               { return ToolFailed }
func (e *FailureEvent) Type() Type                  { return ErrorEventType }

// NewSessionStateChangedEvent constructs a SessionStateChangedEvent.
func NewSessionStateChangedEvent(sessionID, turnID string, state core.SessionState) *SessionStateChangedEvent {
	return &SessionStateChangedEvent{baseEvent: newBaseEvent(sessionID, turnID), State: state}
}

// NewTurnStartedEvent constructs a TurnStartedEvent.
func NewTurnStartedEvent(sessionID, turnID, userInput string) *TurnStartedEvent {
	return &TurnStartedEvent{baseEvent: newBaseEvent(sessionID, turnID), UserInput: userInput}
}

// NewTurnCompletedEvent constructs a TurnCompletedEvent.
func NewTurnCompletedEvent(sessionID, turnID, finalResponse string, totalRounds int, truncated bool) *TurnCompletedEvent {
	return &TurnCompletedEvent{
		baseEvent:     newBaseEvent(sessionID, turnID),
		FinalResponse: finalResponse,
		TotalRounds:   totalRounds,
		Truncated:     truncated,
	}
}

// NewTurnCancelledEvent constructs a TurnCancelledEvent.
func NewTurnCancelledEvent(sessionID, turnID, reason string) *TurnCancelledEvent {
	return &TurnCancelledEvent{baseEvent: newBaseEvent(sessionID, turnID), Reason: reason}
}

// NewRoundStartedEvent constructs a RoundStartedEvent.
func NewRoundStartedEvent(sessionID, turnID string, roundIndex int) *RoundStartedEvent {
	return &RoundStartedEvent{baseEvent: newBaseEvent(sessionID, turnID), RoundIndex: roundIndex}
}

// NewTextChunkEvent constructs a TextChunkEvent.
func NewTextChunkEvent(sessionID, turnID string, roundIndex int, text string) *TextChunkEvent {
	return &TextChunkEvent{baseEvent: newBaseEvent(sessionID, turnID), RoundIndex: roundIndex, Text: text}
}

// NewReasoningChunkEvent constructs a ReasoningChunkEvent.
func NewReasoningChunkEvent(sessionID, turnID string, roundIndex int, text string) *ReasoningChunkEvent {
	return &ReasoningChunkEvent{baseEvent: newBaseEvent(sessionID, turnID), RoundIndex: roundIndex, Text: text}
}

// NewToolCallDetectedEvent constructs a ToolCallDetectedEvent.
func NewToolCallDetectedEvent(sessionID, turnID string, roundIndex int, toolCallID, toolName string) *ToolCallDetectedEvent {
	return &ToolCallDetectedEvent{
		baseEvent:  newBaseEvent(sessionID, turnID),
		RoundIndex: roundIndex,
		ToolCallID: toolCallID,
		ToolName:   toolName,
	}
}

// NewToolCallCompleteEvent constructs a ToolCallCompleteEvent.
func NewToolCallCompleteEvent(sessionID, turnID string, roundIndex int, call core.ToolCall) *ToolCallCompleteEvent {
	return &ToolCallCompleteEvent{baseEvent: newBaseEvent(sessionID, turnID), RoundIndex: roundIndex, ToolCall: call}
}

// NewToolExecutionStartedEvent constructs a ToolExecutionStartedEvent.
func NewToolExecutionStartedEvent(sessionID, turnID, toolCallID, toolName string) *ToolExecutionStartedEvent {
	return &ToolExecutionStartedEvent{baseEvent: newBaseEvent(sessionID, turnID), ToolCallID: toolCallID, ToolName: toolName}
}

// NewToolProgressEvent constructs a ToolProgressEvent.
func NewToolProgressEvent(sessionID, turnID, toolCallID, toolName, progress string, chunksReceived int) *ToolProgressEvent {
	return &ToolProgressEvent{
		baseEvent:      newBaseEvent(sessionID, turnID),
		ToolCallID:     toolCallID,
		ToolName:       toolName,
		Progress:       progress,
		ChunksReceived: chunksReceived,
	}
}

// NewToolAwaitingConfirmationEvent constructs a ToolAwaitingConfirmationEvent.
func NewToolAwaitingConfirmationEvent(sessionID, turnID, toolCallID, toolName, title, prompt string, params map[string]any) *ToolAwaitingConfirmationEvent {
	return &ToolAwaitingConfirmationEvent{
		baseEvent:  newBaseEvent(sessionID, turnID),
		ToolCallID: toolCallID,
		ToolName:   toolName,
		Title:      title,
		Prompt:     prompt,
		Params:     params,
	}
}

// NewToolAwaitingUserInputEvent constructs a ToolAwaitingUserInputEvent.
func NewToolAwaitingUserInputEvent(sessionID, turnID, toolCallID, toolName, question string) *ToolAwaitingUserInputEvent {
	return &ToolAwaitingUserInputEvent{
		baseEvent:  newBaseEvent(sessionID, turnID),
		ToolCallID: toolCallID,
		ToolName:   toolName,
		Question:   question,
	}
}

// NewToolCompletedEvent constructs a ToolCompletedEvent. resultPreview
// should already be truncated by the caller (SPEC_FULL.md §3).
func NewToolCompletedEvent(sessionID, turnID, toolCallID, toolName, resultPreview string, durationMs int64) *ToolCompletedEvent {
	return &ToolCompletedEvent{
		baseEvent:     newBaseEvent(sessionID, turnID),
		ToolCallID:    toolCallID,
		ToolName:      toolName,
		ResultPreview: resultPreview,
		DurationMs:    durationMs,
	}
}

// NewToolFailedEvent constructs a ToolFailedEvent from a toolerrors.Error.
func NewToolFailedEvent(sessionID, turnID, toolCallID, toolName string, err *toolerrors.Error) *ToolFailedEvent {
	return &ToolFailedEvent{
		baseEvent:    newBaseEvent(sessionID, turnID),
		ToolCallID:   toolCallID,
		ToolName:     toolName,
		ErrorKind:    err.Kind,
		ErrorMessage: err.Message,
		Retryable:    err.Retryable,
	}
}

// NewFailureEvent constructs a generic FailureEvent.
func NewFailureEvent(sessionID, turnID string, err *toolerrors.Error) *FailureEvent {
	return &FailureEvent{
		baseEvent: newBaseEvent(sessionID, turnID),
		Kind:      err.Kind,
		Message:   err.Message,
		ToolID:    err.ToolID,
	}
}
