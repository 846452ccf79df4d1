package toolpipeline

import (
	"context"
	"sync"
	"time"

	"github.com/goadesign/agentic-core/agentic/core"
	"github.com/goadesign/agentic-core/agentic/events"
	"github.com/goadesign/agentic-core/agentic/toolerrors"
)

// Queue is the narrow subset of events.Queue that ToolStateManager needs.
type Queue interface {
	Enqueue(event events.Event, priority events.Priority)
}

// StateManager is a concurrent map tool_call_id -> ToolTaskState. Every
// transition is committed here. SetQueued and SetWaiting commit without
// emitting an event; every other transition is also fanned out as an
// event at the priority base spec §4.6 assigns it (Normal, High for
// AwaitingConfirmation).
type StateManager struct {
	queue Queue

	mu     sync.RWMutex
	states map[string]core.ToolTaskState
	names  map[string]string
}

// NewStateManager constructs a StateManager. queue may be nil (events are
// then dropped, useful in tests).
func NewStateManager(queue Queue) *StateManager {
	return &StateManager{
		queue:  queue,
		states: make(map[string]core.ToolTaskState),
		names:  make(map[string]string),
	}
}

// Get returns the current ToolTaskState for toolCallID.
func (sm *StateManager) Get(toolCallID string) (core.ToolTaskState, bool) {
	sm.mu.RLock()
	defer sm.mu.RUnlock()
	st, ok := sm.states[toolCallID]
	return st, ok
}

func (sm *StateManager) commit(toolCallID, toolName string, state core.ToolTaskState) {
	sm.mu.Lock()
	sm.states[toolCallID] = state
	sm.names[toolCallID] = toolName
	sm.mu.Unlock()
}

func (sm *StateManager) enqueue(event events.Event, priority events.Priority) {
	if sm.queue != nil {
		sm.queue.Enqueue(event, priority)
	}
}

// SetQueued commits the initial Queued{position} state.
func (sm *StateManager) SetQueued(sessionID, turnID, toolCallID, toolName string, position int) {
	sm.commit(toolCallID, toolName, core.ToolTaskState{Kind: core.ToolTaskQueued, QueuePosition: position})
}

// SetWaiting commits Waiting{waitingOn}: the task is blocked on dependency
// ids within the same batch.
func (sm *StateManager) SetWaiting(sessionID, turnID, toolCallID, toolName string, waitingOn []string) {
	sm.commit(toolCallID, toolName, core.ToolTaskState{Kind: core.ToolTaskWaiting, WaitingOn: waitingOn})
}

// SetRunning commits Running{startedAt} and emits ToolExecutionStarted.
func (sm *StateManager) SetRunning(ctx context.Context, sessionID, turnID, toolCallID, toolName string) {
	sm.commit(toolCallID, toolName, core.ToolTaskState{Kind: core.ToolTaskRunning, StartedAt: time.Now()})
	sm.enqueue(events.NewToolExecutionStartedEvent(sessionID, turnID, toolCallID, toolName), events.PriorityNormal)
}

// SetProgress commits Streaming{progress} and emits ToolProgress.
func (sm *StateManager) SetProgress(ctx context.Context, sessionID, turnID, toolCallID, toolName, progress string) {
	sm.mu.Lock()
	chunks := sm.states[toolCallID].ChunksReceived + 1
	sm.states[toolCallID] = core.ToolTaskState{Kind: core.ToolTaskStreaming, Progress: progress, ChunksReceived: chunks}
	sm.mu.Unlock()
	sm.enqueue(events.NewToolProgressEvent(sessionID, turnID, toolCallID, toolName, progress, chunks), events.PriorityNormal)
}

// SetAwaitingConfirmation commits AwaitingConfirmation and emits the event
// at High priority, per base spec §4.6.
func (sm *StateManager) SetAwaitingConfirmation(ctx context.Context, sessionID, turnID, toolCallID, toolName, title, prompt string, params map[string]any, timeout time.Time) {
	sm.commit(toolCallID, toolName, core.ToolTaskState{Kind: core.ToolTaskAwaitingConfirmation, ConfirmParams: params, ConfirmTimeout: timeout})
	sm.enqueue(events.NewToolAwaitingConfirmationEvent(sessionID, turnID, toolCallID, toolName, title, prompt, params), events.PriorityHigh)
}

// SetCompleted commits Completed{result} and emits ToolCompleted.
func (sm *StateManager) SetCompleted(ctx context.Context, sessionID, turnID, toolCallID, toolName string, result core.ToolResult, durationMs int64, preview string) {
	sm.commit(toolCallID, toolName, core.ToolTaskState{Kind: core.ToolTaskCompleted, Result: &result, DurationMs: durationMs})
	sm.enqueue(events.NewToolCompletedEvent(sessionID, turnID, toolCallID, toolName, preview, durationMs), events.PriorityNormal)
}

// SetFailed commits Failed{error, retryable} and emits ToolFailed.
func (sm *StateManager) SetFailed(ctx context.Context, sessionID, turnID, toolCallID, toolName string, err *toolerrors.Error) {
	sm.commit(toolCallID, toolName, core.ToolTaskState{Kind: core.ToolTaskFailed, Error: err.Message, Retryable: err.Retryable})
	sm.enqueue(events.NewToolFailedEvent(sessionID, turnID, toolCallID, toolName, err), events.PriorityNormal)
}

// SetCancelled commits Cancelled{reason} and emits ToolFailed (no
// dedicated event type exists for cancellation in base spec §3's event
// list; ToolFailed with the given Kind covers it for observability).
func (sm *StateManager) SetCancelled(ctx context.Context, sessionID, turnID, toolCallID, toolName, reason string, kind toolerrors.Kind) {
	sm.commit(toolCallID, toolName, core.ToolTaskState{Kind: core.ToolTaskCancelled, CancelReason: reason})
	sm.enqueue(events.NewToolFailedEvent(sessionID, turnID, toolCallID, toolName, toolerrors.New(kind, reason)), events.PriorityNormal)
}
