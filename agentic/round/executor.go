// Package round implements RoundExecutor from base spec §4.8: one LLM
// call plus the tool executions it triggers. The step ordering (snapshot
// history → emit RoundStarted → invoke transport → drive StreamProcessor,
// tracking phase transitions → dispatch tool calls → append results to
// history) is grounded on the teacher's workflow_turn.go/workflow_loop.go
// control flow, generalized away from their Temporal-workflow/planner
// machinery down to this module's plain core.Message/ModelRound model.
package round

import (
	"context"
	"time"

	"github.com/goadesign/agentic-core/agentic/core"
	"github.com/goadesign/agentic-core/agentic/events"
	"github.com/goadesign/agentic-core/agentic/history"
	"github.com/goadesign/agentic-core/agentic/session"
	"github.com/goadesign/agentic-core/agentic/stream"
	"github.com/goadesign/agentic-core/agentic/telemetry"
	"github.com/goadesign/agentic-core/agentic/toolerrors"
	"github.com/goadesign/agentic-core/agentic/toolpipeline"
)

// Transport is the narrow LLM boundary RoundExecutor needs: given the
// current message history (and opaque tool schemas), start a delta
// stream for the next assistant turn.
type Transport interface {
	Stream(ctx context.Context, messages []core.Message, toolSchemas []byte) (stream.Source, error)
}

// Router is the narrow subset of events.Router RoundExecutor needs
// directly (StreamProcessor and StateManager get their own narrower
// views internally).
type Router interface {
	Route(ctx context.Context, event events.Event)
}

// Result is what RoundExecutor.Run returns for one ModelRound, per base
// spec §4.8 step 7.
type Result struct {
	AIText       string
	Reasoning    string
	ToolCalls    []core.ToolCall
	ToolResults  []core.ToolResult
	FinishReason string
	Usage        core.TokenUsage
}

// Executor runs a single ModelRound to completion.
type Executor struct {
	transport   Transport
	history     *history.Manager
	states      *session.StateManager
	router      Router
	pipeline    *toolpipeline.Pipeline
	log         telemetry.Logger
	idleTimeout time.Duration
	toolSchemas []byte
}

// New constructs an Executor. log may be nil.
func New(transport Transport, hist *history.Manager, states *session.StateManager, router Router, pipeline *toolpipeline.Pipeline, toolSchemas []byte, idleTimeout time.Duration, log telemetry.Logger) *Executor {
	if log == nil {
		log = telemetry.NewNoopLogger()
	}
	return &Executor{
		transport:   transport,
		history:     hist,
		states:      states,
		router:      router,
		pipeline:    pipeline,
		log:         log,
		idleTimeout: idleTimeout,
		toolSchemas: toolSchemas,
	}
}

// Run executes one ModelRound for sessionID/turnID, per base spec §4.8.
func (e *Executor) Run(ctx context.Context, sessionID, turnID string, roundIndex int, execCtx core.ToolExecutionContext, opts core.ToolExecutionOptions) (Result, error) {
	inputMessages := e.history.Snapshot(sessionID)

	e.route(ctx, events.NewRoundStartedEvent(sessionID, turnID, roundIndex))
	e.states.UpdateState(ctx, sessionID, turnID, core.Processing(turnID, core.PhaseThinking))

	source, err := e.transport.Stream(ctx, inputMessages, e.toolSchemas)
	if err != nil {
		e.states.UpdateState(ctx, sessionID, turnID, core.ErrorState(err.Error(), true))
		return Result{}, toolerrors.WithCause(toolerrors.KindTransport, "starting LLM stream failed", err).WithSession(sessionID, turnID, "")
	}

	processor := stream.NewProcessor(&phaseTrackingRouter{inner: e.router, states: e.states, sessionID: sessionID, turnID: turnID}, e.log, e.idleTimeout)
	roundResult, err := processor.Drain(ctx, source, sessionID, turnID, roundIndex)
	if err != nil {
		e.states.UpdateState(ctx, sessionID, turnID, core.ErrorState(err.Error(), true))
		return Result{}, toolerrors.WithCause(toolerrors.KindTransport, "stream drain failed", err).WithSession(sessionID, turnID, "")
	}

	result := Result{
		AIText:       roundResult.AIText,
		Reasoning:    roundResult.Reasoning,
		ToolCalls:    roundResult.ToolCalls,
		FinishReason: roundResult.FinishReason,
		Usage:        roundResult.Usage,
	}

	for _, incomplete := range roundResult.Incomplete {
		e.route(ctx, events.NewToolFailedEvent(sessionID, turnID, incomplete.ID, incomplete.Name,
			toolerrors.New(toolerrors.KindParse, "malformed arguments: tool call never closed into valid JSON")))
		result.ToolResults = append(result.ToolResults, core.ToolResult{
			ToolCallID: incomplete.ID,
			ToolName:   incomplete.Name,
			IsError:    true,
			ErrorText:  "malformed arguments: tool call never closed into valid JSON",
			Retryable:  false,
		})
	}

	if len(roundResult.ToolCalls) > 0 {
		e.states.UpdateState(ctx, sessionID, turnID, core.Processing(turnID, core.PhaseToolCalling))
		resultsChan, err := e.pipeline.ExecuteBatch(ctx, sessionID, turnID, roundResult.ToolCalls, execCtx, opts)
		if err != nil {
			e.states.UpdateState(ctx, sessionID, turnID, core.ErrorState(err.Error(), true))
			return Result{}, toolerrors.WithCause(toolerrors.KindDependencyCycle, "tool batch rejected", err).WithSession(sessionID, turnID, "")
		}
		byID := make(map[string]core.ToolResult, len(roundResult.ToolCalls))
		for tr := range resultsChan {
			byID[tr.ToolCallID] = tr.Result
		}
		// Re-emit in call-issue order: resultsChan delivers in completion
		// order, but the LLM must see tool results in the order it issued
		// the calls, per base spec §5.
		for _, call := range roundResult.ToolCalls {
			if tr, ok := byID[call.ID]; ok {
				result.ToolResults = append(result.ToolResults, tr)
			}
		}
	}

	assistantMsg := core.Message{
		Role:             core.RoleAssistant,
		Content:          result.AIText,
		ReasoningContent: result.Reasoning,
		ToolCalls:        result.ToolCalls,
	}
	if err := e.history.Append(ctx, sessionID, assistantMsg); err != nil {
		e.log.Warn(ctx, "failed to append assistant message to history", "session_id", sessionID, "error", err.Error())
	}
	for _, tr := range result.ToolResults {
		toolMsg := core.Message{
			Role:       core.RoleTool,
			Content:    toolResultContent(tr),
			ToolCallID: tr.ToolCallID,
			Name:       tr.ToolName,
		}
		if err := e.history.Append(ctx, sessionID, toolMsg); err != nil {
			e.log.Warn(ctx, "failed to append tool result to history", "session_id", sessionID, "error", err.Error())
		}
	}

	return result, nil
}

func toolResultContent(tr core.ToolResult) string {
	if tr.IsError {
		return tr.ErrorText
	}
	if s, ok := tr.Result.(string); ok {
		return s
	}
	return ""
}

func (e *Executor) route(ctx context.Context, event events.Event) {
	if e.router != nil {
		e.router.Route(ctx, event)
	}
}

// phaseTrackingRouter wraps Router, transitioning SessionState's
// ProcessingPhase from Thinking to Streaming on the first text/reasoning
// chunk and to ToolCalling on the first ToolCallDetected, per base spec
// §4.8 step 4, before forwarding every event unchanged.
type phaseTrackingRouter struct {
	inner     Router
	states    *session.StateManager
	sessionID string
	turnID    string

	streamingSeen bool
	toolSeen      bool
}

func (r *phaseTrackingRouter) Route(ctx context.Context, event events.Event) {
	switch event.Type() {
	case events.TextChunk, events.ReasoningChunk:
		if !r.streamingSeen {
			r.streamingSeen = true
			r.states.UpdateState(ctx, r.sessionID, r.turnID, core.Processing(r.turnID, core.PhaseStreaming))
		}
	case events.ToolCallDetected:
		if !r.toolSeen {
			r.toolSeen = true
			r.states.UpdateState(ctx, r.sessionID, r.turnID, core.Processing(r.turnID, core.PhaseToolCalling))
		}
	}
	if r.inner != nil {
		r.inner.Route(ctx, event)
	}
}
