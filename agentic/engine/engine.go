// Package engine implements ExecutionEngine from base spec §4.9: the loop
// of ModelRounds making up one DialogTurn, terminating on natural stop,
// max_turns, cancellation, or unrecoverable error. The loop shape (a small
// per-run state struct driving a for{} that checks cancellation, deadlines
// and the prior round's outcome before deciding what to do next) is
// grounded on the teacher's workflowLoop.run (runtime/agent/runtime/workflow_loop.go),
// generalized away from its Temporal workflow-time/interrupt-controller/
// parent-tracker machinery down to this module's plain cancellation
// context and CompressionManager/RoundExecutor collaborators.
package engine

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/goadesign/agentic-core/agentic/core"
	"github.com/goadesign/agentic-core/agentic/events"
	"github.com/goadesign/agentic-core/agentic/history"
	"github.com/goadesign/agentic-core/agentic/round"
	"github.com/goadesign/agentic-core/agentic/session"
	"github.com/goadesign/agentic-core/agentic/telemetry"
	"github.com/goadesign/agentic-core/agentic/toolerrors"
)

// Compressor is the narrow CompressionManager view ExecutionEngine needs:
// check the threshold, and if crossed, replace history with a compacted
// version.
type Compressor interface {
	ShouldCompress(cfg core.SessionConfig, messages []core.Message) bool
	Compress(ctx context.Context, sessionID string, cfg core.SessionConfig, messages []core.Message) []core.Message
}

// RoundRunner is the narrow RoundExecutor view ExecutionEngine needs.
type RoundRunner interface {
	Run(ctx context.Context, sessionID, turnID string, roundIndex int, execCtx core.ToolExecutionContext, opts core.ToolExecutionOptions) (round.Result, error)
}

// Router is the narrow events.Router view ExecutionEngine emits
// turn-lifecycle events through directly (RoundExecutor and its
// collaborators get their own views).
type Router interface {
	Route(ctx context.Context, event events.Event)
}

// TurnOutcome is ExecutionEngine.RunTurn's return value: the terminal
// DialogTurn state plus the rounds that produced it.
type TurnOutcome struct {
	TurnID        string
	State         core.DialogTurnState
	Rounds        []round.Result
	TotalTokens   core.TokenUsage
}

// Engine implements ExecutionEngine.
type Engine struct {
	sessions    *session.Manager
	history     *history.Manager
	compression Compressor
	rounds      RoundRunner
	router      Router
	log         telemetry.Logger
}

// New constructs an Engine. compression and log may be nil; a nil
// compression disables compression entirely regardless of session config.
func New(sessions *session.Manager, hist *history.Manager, compression Compressor, rounds RoundRunner, router Router, log telemetry.Logger) *Engine {
	if log == nil {
		log = telemetry.NewNoopLogger()
	}
	return &Engine{
		sessions:    sessions,
		history:     hist,
		compression: compression,
		rounds:      rounds,
		router:      router,
		log:         log,
	}
}

// RunTurn drives turn to completion, per base spec §4.9. It loops
// RoundRunner.Run until one of: the round's finish reason signals natural
// stop with no pending tool calls, round_index reaches sess.Config.MaxTurns
// (forced completion), ctx is cancelled, or an unrecoverable error occurs.
// Every state transition goes through the session's StateManager; the
// session is left Idle on normal exit, or Error{recoverable:true} if
// cancellation ended the turn.
func (e *Engine) RunTurn(ctx context.Context, sess core.Session, turn core.DialogTurn, execCtx core.ToolExecutionContext, opts core.ToolExecutionOptions) TurnOutcome {
	states := e.sessions.States()
	turn.State = core.DialogTurnState{Kind: core.TurnActive, RoundIndex: 0}
	turn.StartedAt = time.Now()

	e.route(ctx, events.NewTurnStartedEvent(sess.ID, turn.ID, turn.UserInput))

	var rounds []round.Result
	var usage core.TokenUsage

	for roundIndex := 0; ; roundIndex++ {
		if err := ctx.Err(); err != nil {
			return e.finishCancelled(ctx, sess, turn, rounds, usage, "cancelled")
		}

		if sess.Config.MaxTurns > 0 && roundIndex >= sess.Config.MaxTurns {
			return e.finishForced(ctx, sess, turn, rounds, usage)
		}

		if e.compression != nil {
			snapshot := e.history.Snapshot(sess.ID)
			if e.compression.ShouldCompress(sess.Config, snapshot) {
				compacted := e.compression.Compress(ctx, sess.ID, sess.Config, snapshot)
				if err := e.history.Replace(ctx, sess.ID, compacted); err != nil {
					e.log.Warn(ctx, "failed to replace history after compression", "session_id", sess.ID, "error", err.Error())
				} else if err := e.sessions.RecordCompression(sess.ID, time.Now()); err != nil {
					e.log.Warn(ctx, "failed to record compression state", "session_id", sess.ID, "error", err.Error())
				}
			}
		}

		turn.State.RoundIndex = roundIndex
		result, err := e.rounds.Run(ctx, sess.ID, turn.ID, roundIndex, execCtx, opts)
		if err != nil {
			return e.finishFailed(ctx, sess, turn, rounds, usage, err)
		}

		rounds = append(rounds, result)
		usage = usage.Add(result.Usage)

		if ctx.Err() != nil {
			return e.finishCancelled(ctx, sess, turn, rounds, usage, "cancelled")
		}

		if result.FinishReason == "length" {
			return e.finishCompleted(ctx, sess, turn, rounds, usage, true)
		}
		if naturalStop(result.FinishReason) && len(result.ToolCalls) == 0 {
			return e.finishCompleted(ctx, sess, turn, rounds, usage, false)
		}
	}
}

func naturalStop(finishReason string) bool {
	switch finishReason {
	case "stop", "end_turn":
		return true
	default:
		return false
	}
}

func (e *Engine) finishCompleted(ctx context.Context, sess core.Session, turn core.DialogTurn, rounds []round.Result, usage core.TokenUsage, truncated bool) TurnOutcome {
	turn.CompletedAt = time.Now()
	finalResponse := ""
	if len(rounds) > 0 {
		finalResponse = rounds[len(rounds)-1].AIText
	}
	turn.State = core.DialogTurnState{
		Kind:          core.TurnCompleted,
		FinalResponse: finalResponse,
		TotalRounds:   len(rounds),
		Truncated:     truncated,
	}
	e.route(ctx, events.NewTurnCompletedEvent(sess.ID, turn.ID, finalResponse, len(rounds), truncated))
	e.sessions.States().UpdateState(ctx, sess.ID, turn.ID, core.Idle())
	return TurnOutcome{TurnID: turn.ID, State: turn.State, Rounds: rounds, TotalTokens: usage}
}

func (e *Engine) finishForced(ctx context.Context, sess core.Session, turn core.DialogTurn, rounds []round.Result, usage core.TokenUsage) TurnOutcome {
	return e.finishCompleted(ctx, sess, turn, rounds, usage, true)
}

func (e *Engine) finishCancelled(ctx context.Context, sess core.Session, turn core.DialogTurn, rounds []round.Result, usage core.TokenUsage, reason string) TurnOutcome {
	turn.CompletedAt = time.Now()
	turn.State = core.DialogTurnState{Kind: core.TurnCancelled}
	e.route(ctx, events.NewTurnCancelledEvent(sess.ID, turn.ID, reason))
	// Use context.Background: ctx is already cancelled and state updates
	// must still commit and emit (base spec §4.11 Cancellation row).
	e.sessions.States().UpdateState(context.Background(), sess.ID, turn.ID, core.ErrorState(reason, true))
	return TurnOutcome{TurnID: turn.ID, State: turn.State, Rounds: rounds, TotalTokens: usage}
}

func (e *Engine) finishFailed(ctx context.Context, sess core.Session, turn core.DialogTurn, rounds []round.Result, usage core.TokenUsage, err error) TurnOutcome {
	turn.CompletedAt = time.Now()
	turn.State = core.DialogTurnState{Kind: core.TurnFailed, Error: err.Error()}
	if te, ok := err.(*toolerrors.Error); ok {
		e.route(ctx, events.NewFailureEvent(sess.ID, turn.ID, te))
	}
	e.sessions.States().UpdateState(ctx, sess.ID, turn.ID, core.ErrorState(err.Error(), true))
	return TurnOutcome{TurnID: turn.ID, State: turn.State, Rounds: rounds, TotalTokens: usage}
}

func (e *Engine) route(ctx context.Context, event events.Event) {
	if e.router != nil {
		e.router.Route(ctx, event)
	}
}

// NewTurnID generates a server-assigned turn id, used by callers that
// don't already have a client-supplied one.
func NewTurnID() string { return uuid.NewString() }
