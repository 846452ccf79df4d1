package stream

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"strings"
	"time"

	"github.com/goadesign/agentic-core/agentic/core"
	"github.com/goadesign/agentic-core/agentic/events"
	"github.com/goadesign/agentic-core/agentic/jsoncheck"
	"github.com/goadesign/agentic-core/agentic/telemetry"
)

// ErrIdleTimeout is returned when no delta arrives within the configured
// idle window (base spec §4.5 "Idle timeout"). The caller is expected to
// surface this as turn Error{recoverable:true}.
var ErrIdleTimeout = errors.New("stream: idle timeout waiting for next delta")

// ErrStreamClosedWithoutFinish is returned when the source closes (io.EOF)
// without ever delivering a finish_reason. Recoverable per base spec §4.5
// Termination.
var ErrStreamClosedWithoutFinish = errors.New("stream: closed without a finish reason")

// Source is the lazy delta sequence a model.Transport yields for one
// ModelRound. Recv returns io.EOF when the stream is exhausted.
type Source interface {
	Recv(ctx context.Context) (UnifiedDelta, error)
	Close() error
}

// Router is the narrow subset of events.Router that StreamProcessor needs.
type Router interface {
	Route(ctx context.Context, event events.Event)
}

// IncompleteToolCall describes a tool call whose arguments never closed
// into valid JSON before the stream ended.
type IncompleteToolCall struct {
	ID   string
	Name string
}

// toolAccum is the sparse per-index accumulator described in base spec
// §4.5 "Tool-call assembly".
type toolAccum struct {
	id       string
	name     string
	argBuf   strings.Builder
	checker  *jsoncheck.Checker
	detected bool
	complete bool
}

// Processor implements StreamProcessor. One Processor drains exactly one
// round's delta sequence; it is not reused across rounds.
type Processor struct {
	router      Router
	log         telemetry.Logger
	idleTimeout time.Duration
}

// NewProcessor constructs a Processor. router and log may be nil.
func NewProcessor(router Router, log telemetry.Logger, idleTimeout time.Duration) *Processor {
	if log == nil {
		log = telemetry.NewNoopLogger()
	}
	if idleTimeout <= 0 {
		idleTimeout = 600 * time.Second
	}
	return &Processor{router: router, log: log, idleTimeout: idleTimeout}
}

// Drain consumes source until it terminates (a terminal finish_reason, a
// clean EOF, an idle timeout, or a context cancellation), emitting events
// for (sessionID, turnID, roundIndex) as it goes.
func (p *Processor) Drain(ctx context.Context, source Source, sessionID, turnID string, roundIndex int) (RoundResult, error) {
	var result RoundResult
	defer func() { _ = source.Close() }()

	accum := make(map[int]*toolAccum)
	order := make([]int, 0, 4)

	for {
		delta, err := p.recvWithTimeout(ctx, source)
		if err != nil {
			if errors.Is(err, io.EOF) {
				if result.FinishReason == "" {
					return result, ErrStreamClosedWithoutFinish
				}
				p.finalizeIncomplete(&result, accum, order)
				return result, nil
			}
			return result, err
		}

		if delta.Text != "" {
			result.AIText += delta.Text
			p.route(ctx, events.NewTextChunkEvent(sessionID, turnID, roundIndex, delta.Text))
		}
		if delta.Reasoning != "" {
			result.Reasoning += delta.Reasoning
			p.route(ctx, events.NewReasoningChunkEvent(sessionID, turnID, roundIndex, delta.Reasoning))
		}
		if delta.Usage != nil {
			result.Usage = result.Usage.Add(*delta.Usage)
		}
		if delta.ToolCallFragment != nil {
			p.applyFragment(ctx, sessionID, turnID, roundIndex, delta.ToolCallFragment, accum, &order, &result)
		}
		if delta.FinishReason != "" {
			result.FinishReason = delta.FinishReason
			if terminalFinishReasons[delta.FinishReason] {
				p.finalizeIncomplete(&result, accum, order)
				return result, nil
			}
		}

		select {
		case <-ctx.Done():
			return result, ctx.Err()
		default:
		}
	}
}

func (p *Processor) applyFragment(ctx context.Context, sessionID, turnID string, roundIndex int, frag *ToolCallFragment, accum map[int]*toolAccum, order *[]int, result *RoundResult) {
	acc, ok := accum[frag.Index]
	if !ok {
		acc = &toolAccum{checker: jsoncheck.New()}
		accum[frag.Index] = acc
		*order = append(*order, frag.Index)
	}
	if frag.ID != "" {
		acc.id = frag.ID
	}
	if frag.Name != "" {
		acc.name = frag.Name
	}
	if !acc.detected && acc.id != "" && acc.name != "" {
		acc.detected = true
		p.route(ctx, events.NewToolCallDetectedEvent(sessionID, turnID, roundIndex, acc.id, acc.name))
	}
	if frag.ArgumentsPartial != "" {
		acc.checker.Append(frag.ArgumentsPartial)
		acc.argBuf.WriteString(frag.ArgumentsPartial)
	}
	if acc.complete || !acc.checker.IsValid() {
		return
	}
	var args map[string]any
	if err := json.Unmarshal([]byte(acc.checker.Buffer()), &args); err != nil {
		// Balanced braces but not parseable (e.g. an unclosed array
		// inside the object, or trailing bytes after its closing
		// brace). Wait for more fragments.
		return
	}
	acc.complete = true
	call := core.ToolCall{ID: acc.id, Name: acc.name, Arguments: args}
	result.ToolCalls = append(result.ToolCalls, call)
	p.route(ctx, events.NewToolCallCompleteEvent(sessionID, turnID, roundIndex, call))
}

// finalizeIncomplete records every tool_accum entry that never reached a
// valid JSON object as an IncompleteToolCall, per base spec §4.5 "Tool args
// never become valid JSON before stream end".
func (p *Processor) finalizeIncomplete(result *RoundResult, accum map[int]*toolAccum, order []int) {
	for _, idx := range order {
		acc := accum[idx]
		if acc.complete {
			continue
		}
		result.Incomplete = append(result.Incomplete, IncompleteToolCall{ID: acc.id, Name: acc.name})
	}
}

func (p *Processor) recvWithTimeout(ctx context.Context, source Source) (UnifiedDelta, error) {
	type recvOutcome struct {
		delta UnifiedDelta
		err   error
	}
	ch := make(chan recvOutcome, 1)
	go func() {
		d, err := source.Recv(ctx)
		ch <- recvOutcome{delta: d, err: err}
	}()

	select {
	case out := <-ch:
		return out.delta, out.err
	case <-ctx.Done():
		return UnifiedDelta{}, ctx.Err()
	case <-time.After(p.idleTimeout):
		return UnifiedDelta{}, ErrIdleTimeout
	}
}

func (p *Processor) route(ctx context.Context, event events.Event) {
	if p.router != nil {
		p.router.Route(ctx, event)
	}
}
