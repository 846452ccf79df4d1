// Package coordinator implements ConversationCoordinator from base spec
// §4.10: a thin façade holding references to every other component,
// exposing start/cancel operations and an optional process-wide binding
// for embedding hosts that want one without threading a reference through
// their own call stack. It is grounded on the teacher's Runtime's
// StartRun/PauseRun façade (runtime/agent/runtime/runtime.go), simplified
// to this module's single-process, non-durable execution model: StartRun's
// workflow-engine dispatch becomes a plain goroutine running
// ExecutionEngine.RunTurn, and PauseRun's workflow signal becomes a stored
// context.CancelFunc.
package coordinator

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/goadesign/agentic-core/agentic/core"
	"github.com/goadesign/agentic-core/agentic/engine"
	"github.com/goadesign/agentic-core/agentic/events"
	"github.com/goadesign/agentic-core/agentic/history"
	"github.com/goadesign/agentic-core/agentic/session"
	"github.com/goadesign/agentic-core/agentic/telemetry"
)

// ErrCannotStartTurn mirrors session.ErrCannotStartTurn at the façade
// boundary so callers don't need to import the session package directly.
var ErrCannotStartTurn = session.ErrCannotStartTurn

// ErrUnknownTurn is returned by CancelDialogTurn for a turn_id that is not
// (or is no longer) in flight.
var ErrUnknownTurn = errors.New("coordinator: unknown or already-finished turn")

// Runner is the narrow ExecutionEngine view Coordinator needs.
type Runner interface {
	RunTurn(ctx context.Context, sess core.Session, turn core.DialogTurn, execCtx core.ToolExecutionContext, opts core.ToolExecutionOptions) engine.TurnOutcome
}

// StartTurnRequest carries start_dialog_turn's parameters (base spec
// §4.10). TurnID is optional: a server-assigned uuid is used when empty.
type StartTurnRequest struct {
	SessionID string
	UserInput string
	TurnID    string
	AgentType string

	ExecutionContext core.ToolExecutionContext
	ExecutionOptions core.ToolExecutionOptions

	// Subscriber, if non-nil, is registered on the event router before the
	// turn is spawned so no early event is missed.
	Subscriber events.Subscriber
}

// SubscriptionHandle is start_dialog_turn's return value: the turn id
// plus the subscription registered for its event stream, if any.
type SubscriptionHandle struct {
	TurnID       string
	Subscription events.Subscription
}

// Coordinator implements ConversationCoordinator.
type Coordinator struct {
	sessions *session.Manager
	history  *history.Manager
	engine   Runner
	router   *events.Router
	log      telemetry.Logger

	mu      sync.Mutex
	cancels map[string]context.CancelFunc // turn_id -> cancel
}

// New constructs a Coordinator. log may be nil.
func New(sessions *session.Manager, hist *history.Manager, eng Runner, router *events.Router, log telemetry.Logger) *Coordinator {
	if log == nil {
		log = telemetry.NewNoopLogger()
	}
	return &Coordinator{
		sessions: sessions,
		history:  hist,
		engine:   eng,
		router:   router,
		log:      log,
		cancels:  make(map[string]context.CancelFunc),
	}
}

// StartDialogTurn validates the session can accept a new turn, appends the
// user message to history, and spawns ExecutionEngine.RunTurn in the
// background, per base spec §4.10. The returned handle's turn id can be
// used to correlate events and to call CancelDialogTurn.
func (c *Coordinator) StartDialogTurn(ctx context.Context, req StartTurnRequest) (SubscriptionHandle, error) {
	sess, err := c.sessions.LoadSession(req.SessionID)
	if err != nil {
		return SubscriptionHandle{}, err
	}
	if !c.sessions.States().CanStartNewTurn(req.SessionID) {
		return SubscriptionHandle{}, ErrCannotStartTurn
	}

	turnID := req.TurnID
	if turnID == "" {
		turnID = uuid.NewString()
	}

	var sub events.Subscription
	if req.Subscriber != nil && c.router != nil {
		sub = c.router.Register(req.Subscriber)
	}

	if err := c.history.Append(ctx, req.SessionID, core.Message{Role: core.RoleUser, Content: req.UserInput}); err != nil {
		c.log.Warn(ctx, "failed to append user message to history", "session_id", req.SessionID, "error", err.Error())
	}
	if err := c.sessions.AppendTurn(req.SessionID, turnID); err != nil {
		c.log.Warn(ctx, "failed to record turn on session", "session_id", req.SessionID, "turn_id", turnID, "error", err.Error())
	}

	turnCtx, cancel := context.WithCancel(context.Background())
	c.mu.Lock()
	c.cancels[turnID] = cancel
	c.mu.Unlock()

	turn := core.DialogTurn{
		ID:        turnID,
		SessionID: req.SessionID,
		UserInput: req.UserInput,
		StartedAt: time.Now(),
	}
	agentType := req.AgentType
	if agentType == "" {
		agentType = sess.AgentType
	}
	execCtx := req.ExecutionContext
	execCtx.SessionID = req.SessionID
	execCtx.TurnID = turnID
	execCtx.AgentType = agentType

	go func() {
		defer func() {
			c.mu.Lock()
			delete(c.cancels, turnID)
			c.mu.Unlock()
		}()
		c.engine.RunTurn(turnCtx, sess, turn, execCtx, req.ExecutionOptions)
	}()

	return SubscriptionHandle{TurnID: turnID, Subscription: sub}, nil
}

// CancelDialogTurn fires the cancellation token for turnID, if it is still
// in flight. Base spec §4.10/§4.11: in-flight tools collapse to Cancelled,
// the turn to Cancelled, and the session to Error{recoverable:true} — all
// handled by ExecutionEngine observing ctx.Err() at its next check point.
func (c *Coordinator) CancelDialogTurn(sessionID, turnID string) error {
	c.mu.Lock()
	cancel, ok := c.cancels[turnID]
	c.mu.Unlock()
	if !ok {
		return ErrUnknownTurn
	}
	cancel()
	return nil
}

var (
	globalMu   sync.RWMutex
	globalInst *Coordinator
)

// SetGlobal binds c as the process-wide Coordinator, a non-essential
// convenience for embedding hosts that prefer a package-level accessor
// over threading a reference through their own call stack (base spec
// §4.10).
func SetGlobal(c *Coordinator) {
	globalMu.Lock()
	globalInst = c
	globalMu.Unlock()
}

// GetGlobal returns the process-wide Coordinator bound by SetGlobal, or
// nil if none has been set.
func GetGlobal() *Coordinator {
	globalMu.RLock()
	defer globalMu.RUnlock()
	return globalInst
}
