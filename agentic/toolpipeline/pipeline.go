package toolpipeline

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/goadesign/agentic-core/agentic/core"
	"github.com/goadesign/agentic-core/agentic/telemetry"
	"github.com/goadesign/agentic-core/agentic/toolerrors"
	"github.com/goadesign/agentic-core/agentic/userinput"
)

const defaultMaxConcurrency = 4

// TaskResult pairs a completed ToolTask's id with its outcome, delivered
// on ExecuteBatch's result stream in completion order.
type TaskResult struct {
	ToolCallID string
	Result     core.ToolResult
}

// Pipeline implements ToolPipeline from base spec §4.6: admission,
// dependency scheduling, confirmation, execution, retries, and state
// fan-out for one batch of ToolTasks.
type Pipeline struct {
	registry  *Registry
	states    *StateManager
	userinput *userinput.Manager
	log       telemetry.Logger

	maxConcurrency int

	confirmationTimeout time.Duration
	autoApprove         map[string]bool
}

// Option configures a Pipeline at construction time.
type Option func(*Pipeline)

// WithMaxConcurrency overrides the default concurrency cap (4).
func WithMaxConcurrency(n int) Option {
	return func(p *Pipeline) {
		if n > 0 {
			p.maxConcurrency = n
		}
	}
}

// WithConfirmationTimeout sets how long ExecuteBatch waits for a
// confirmation answer before treating it as a timeout. Zero means wait
// indefinitely.
func WithConfirmationTimeout(d time.Duration) Option {
	return func(p *Pipeline) { p.confirmationTimeout = d }
}

// WithAutoApprove marks tool names that never pause for confirmation
// regardless of ToolExecutionOptions.ConfirmBeforeRun.
func WithAutoApprove(names ...string) Option {
	return func(p *Pipeline) {
		for _, n := range names {
			p.autoApprove[n] = true
		}
	}
}

// NewPipeline constructs a Pipeline. log may be nil.
func NewPipeline(registry *Registry, states *StateManager, ui *userinput.Manager, log telemetry.Logger, opts ...Option) *Pipeline {
	if log == nil {
		log = telemetry.NewNoopLogger()
	}
	p := &Pipeline{
		registry:       registry,
		states:         states,
		userinput:      ui,
		log:            log,
		maxConcurrency: defaultMaxConcurrency,
		autoApprove:    make(map[string]bool),
	}
	for _, o := range opts {
		o(p)
	}
	return p
}

// ErrDependencyCycle is returned by ExecuteBatch when tasks declare a
// circular dependency.
var ErrDependencyCycle = fmt.Errorf("toolpipeline: dependency cycle detected in batch")

// ExecuteBatch runs calls against execCtx, returning a channel of
// TaskResult in completion order. The channel is closed once every call
// has reached a terminal state (Completed, Failed, or Cancelled). Calls
// filtered by execCtx's whitelist or unknown to the registry produce an
// immediate synthetic failed result rather than being silently dropped.
//
// A non-nil error means the batch itself was rejected before any call ran
// (currently: a dependency cycle among calls, ErrDependencyCycle). The
// returned channel is nil and no call in the batch produces a TaskResult,
// per base spec §4.6 ("batch fails; no partial writes").
// The caller (RoundExecutor) is expected to end the round on this error
// rather than read from a channel.
func (p *Pipeline) ExecuteBatch(ctx context.Context, sessionID, turnID string, calls []core.ToolCall, execCtx core.ToolExecutionContext, opts core.ToolExecutionOptions) (<-chan TaskResult, error) {
	out := make(chan TaskResult, len(calls))

	admitted := make([]core.ToolCall, 0, len(calls))
	for _, call := range calls {
		if !execCtx.Allows(call.Name) {
			out <- p.syntheticFailure(call, toolerrors.New(toolerrors.KindTool, fmt.Sprintf("tool %q is not in the allowed_tools whitelist", call.Name)))
			continue
		}
		if _, ok := p.registry.Lookup(call.Name); !ok {
			out <- p.syntheticFailure(call, toolerrors.New(toolerrors.KindTool, fmt.Sprintf("unknown tool %q", call.Name)))
			continue
		}
		if err := p.registry.Validate(call.Name, call.Arguments); err != nil {
			out <- p.syntheticFailure(call, toolerrors.WithCause(toolerrors.KindTool, "arguments failed schema validation", err))
			continue
		}
		admitted = append(admitted, call)
	}

	if len(admitted) == 0 {
		close(out)
		return out, nil
	}

	deps, err := p.buildDependencyGraph(admitted)
	if err != nil {
		close(out)
		return nil, err
	}

	go p.run(ctx, sessionID, turnID, admitted, execCtx, opts, deps, out)
	return out, nil
}

func (p *Pipeline) syntheticFailure(call core.ToolCall, err *toolerrors.Error) TaskResult {
	return TaskResult{
		ToolCallID: call.ID,
		Result: core.ToolResult{
			ToolCallID: call.ID,
			ToolName:   call.Name,
			IsError:    true,
			ErrorText:  err.Message,
			Retryable:  false,
		},
	}
}

// buildDependencyGraph returns, for each call index, the indices of calls
// in the same batch it must wait on, per base spec §4.6 Scheduling.
func (p *Pipeline) buildDependencyGraph(calls []core.ToolCall) (map[int][]int, error) {
	deps := make(map[int][]int, len(calls))
	for i, candidate := range calls {
		tool, _ := p.registry.Lookup(candidate.Name)
		aware, ok := tool.(DependencyAware)
		if !ok {
			continue
		}
		for j, other := range calls {
			if aware.DependsOn(candidate, other) {
				deps[i] = append(deps[i], j)
			}
		}
	}
	if hasCycle(deps, len(calls)) {
		return nil, ErrDependencyCycle
	}
	return deps, nil
}

func hasCycle(deps map[int][]int, n int) bool {
	const (
		white = 0
		gray  = 1
		black = 2
	)
	color := make([]int, n)
	var visit func(i int) bool
	visit = func(i int) bool {
		color[i] = gray
		for _, j := range deps[i] {
			if color[j] == gray {
				return true
			}
			if color[j] == white && visit(j) {
				return true
			}
		}
		color[i] = black
		return false
	}
	for i := 0; i < n; i++ {
		if color[i] == white && visit(i) {
			return true
		}
	}
	return false
}

// run drives the batch to completion. It is the single goroutine that
// owns scheduling state for this batch; individual task execution runs in
// its own goroutine, gated by a concurrency semaphore.
func (p *Pipeline) run(ctx context.Context, sessionID, turnID string, calls []core.ToolCall, execCtx core.ToolExecutionContext, opts core.ToolExecutionOptions, deps map[int][]int, out chan<- TaskResult) {
	defer close(out)

	sem := make(chan struct{}, p.maxConcurrency)
	var wg sync.WaitGroup
	done := make(map[int]bool, len(calls))
	var mu sync.Mutex

	ready := func() []int {
		mu.Lock()
		defer mu.Unlock()
		var idxs []int
		for i := range calls {
			if done[i] {
				continue
			}
			blocked := false
			for _, d := range deps[i] {
				if !done[d] {
					blocked = true
					break
				}
			}
			if !blocked {
				idxs = append(idxs, i)
			}
		}
		sort.Ints(idxs)
		return idxs
	}

	remaining := len(calls)
	for remaining > 0 {
		batch := ready()
		if len(batch) == 0 {
			// Everything left is blocked on something not yet done; wait
			// for in-flight tasks to progress before re-checking.
			wg.Wait()
			batch = ready()
			if len(batch) == 0 {
				break
			}
		}
		for _, idx := range batch {
			idx := idx
			call := calls[idx]
			waitingOn := make([]string, 0, len(deps[idx]))
			for _, d := range deps[idx] {
				waitingOn = append(waitingOn, calls[d].ID)
			}
			if len(waitingOn) > 0 {
				p.states.SetWaiting(sessionID, turnID, call.ID, call.Name, waitingOn)
			} else {
				p.states.SetQueued(sessionID, turnID, call.ID, call.Name, idx)
			}

			mu.Lock()
			done[idx] = false
			mu.Unlock()

			wg.Add(1)
			sem <- struct{}{}
			go func() {
				defer wg.Done()
				defer func() { <-sem }()
				result := p.runOne(ctx, sessionID, turnID, call, execCtx, opts)
				out <- TaskResult{ToolCallID: call.ID, Result: result}
				mu.Lock()
				done[idx] = true
				remaining--
				mu.Unlock()
			}()
		}
		wg.Wait()
	}
}

// runOne executes a single ToolCall through confirmation and the retry
// loop, returning its terminal ToolResult.
func (p *Pipeline) runOne(ctx context.Context, sessionID, turnID string, call core.ToolCall, execCtx core.ToolExecutionContext, opts core.ToolExecutionOptions) core.ToolResult {
	tool, _ := p.registry.Lookup(call.Name)

	if p.requiresConfirmation(tool, opts) {
		result, ok := p.confirm(ctx, sessionID, turnID, call, tool, opts)
		if !ok {
			return result
		}
	}

	var last core.ToolResult
	attempts := opts.MaxRetries + 1
	for attempt := 0; attempt < attempts; attempt++ {
		last = p.execute(ctx, sessionID, turnID, call, tool, execCtx, opts)
		if !last.IsError || !last.Retryable {
			return last
		}
		p.states.SetQueued(sessionID, turnID, call.ID, call.Name, 0)
	}
	return last
}

func (p *Pipeline) requiresConfirmation(tool Tool, opts core.ToolExecutionOptions) bool {
	if !opts.ConfirmBeforeRun {
		return false
	}
	if aa, ok := tool.(AutoApproved); ok && aa.AutoApprove() {
		return false
	}
	return !p.autoApprove[tool.Name()]
}

// confirm runs the confirmation protocol (base spec §4.6). ok is false
// when the caller should treat result as the task's terminal outcome
// (timeout or denial) without proceeding to execute.
func (p *Pipeline) confirm(ctx context.Context, sessionID, turnID string, call core.ToolCall, tool Tool, opts core.ToolExecutionOptions) (core.ToolResult, bool) {
	title, prompt := fmt.Sprintf("Run %s?", call.Name), fmt.Sprintf("Allow tool %q to run with the given arguments?", call.Name)
	if cp, ok := tool.(ConfirmationPolicy); ok {
		title, prompt = cp.ConfirmationPrompt(call.Arguments)
	}

	timeout := time.Time{}
	if opts.ConfirmationTimeoutSecs > 0 {
		timeout = time.Now().Add(time.Duration(opts.ConfirmationTimeoutSecs) * time.Second)
	}
	p.states.SetAwaitingConfirmation(ctx, sessionID, turnID, call.ID, call.Name, title, prompt, call.Arguments, timeout)

	ch, err := p.userinput.Register(call.ID)
	if err != nil {
		return p.cancelled(ctx, sessionID, turnID, call, "confirmation slot already pending", toolerrors.KindConfirmationTimeout), false
	}

	var waitCh <-chan time.Time
	if opts.ConfirmationTimeoutSecs > 0 {
		timer := time.NewTimer(time.Duration(opts.ConfirmationTimeoutSecs) * time.Second)
		defer timer.Stop()
		waitCh = timer.C
	}

	select {
	case <-ctx.Done():
		p.userinput.Cancel(call.ID)
		return p.cancelled(ctx, sessionID, turnID, call, "context cancelled while awaiting confirmation", toolerrors.KindToolCancelled), false
	case <-waitCh:
		p.userinput.Cancel(call.ID)
		return p.cancelled(ctx, sessionID, turnID, call, "confirmation timeout", toolerrors.KindConfirmationTimeout), false
	case answer := <-ch:
		approved, _ := answer.Payload["approved"].(bool)
		if !approved {
			deniedResult := core.ToolResult{
				ToolCallID: call.ID,
				ToolName:   call.Name,
				IsError:    true,
				ErrorText:  "user denied",
			}
			p.states.SetCancelled(ctx, sessionID, turnID, call.ID, call.Name, "user denied", toolerrors.KindUserDenied)
			return deniedResult, false
		}
		return core.ToolResult{}, true
	}
}

func (p *Pipeline) cancelled(ctx context.Context, sessionID, turnID string, call core.ToolCall, reason string, kind toolerrors.Kind) core.ToolResult {
	p.states.SetCancelled(ctx, sessionID, turnID, call.ID, call.Name, reason, kind)
	return core.ToolResult{ToolCallID: call.ID, ToolName: call.Name, IsError: true, ErrorText: reason}
}

func (p *Pipeline) execute(ctx context.Context, sessionID, turnID string, call core.ToolCall, tool Tool, execCtx core.ToolExecutionContext, opts core.ToolExecutionOptions) core.ToolResult {
	p.states.SetRunning(ctx, sessionID, turnID, call.ID, call.Name)

	runCtx := ctx
	var cancel context.CancelFunc
	if opts.TimeoutSecs > 0 {
		runCtx, cancel = context.WithTimeout(ctx, time.Duration(opts.TimeoutSecs)*time.Second)
		defer cancel()
	}

	var progressMu sync.Mutex
	finished := false
	progress := func(text string) {
		progressMu.Lock()
		defer progressMu.Unlock()
		if finished {
			return
		}
		p.states.SetProgress(ctx, sessionID, turnID, call.ID, call.Name, text)
	}

	start := time.Now()
	value, err := tool.Execute(runCtx, call.Arguments, execCtx, progress)
	progressMu.Lock()
	finished = true
	progressMu.Unlock()
	duration := time.Since(start).Milliseconds()

	if err != nil {
		te := toolerrors.FromError(err).WithSession(sessionID, turnID, call.ID)
		if re, ok := err.(RetryableError); ok {
			te.Retryable = re.Retryable()
		}
		if runCtx.Err() != nil {
			te = toolerrors.New(toolerrors.KindToolTimeout, "tool execution deadline exceeded").WithSession(sessionID, turnID, call.ID)
		}
		p.states.SetFailed(ctx, sessionID, turnID, call.ID, call.Name, te)
		return core.ToolResult{
			ToolCallID:      call.ID,
			ToolName:        call.Name,
			IsError:         true,
			ErrorText:       te.Message,
			Retryable:       te.Retryable,
			ExecutionTimeMs: duration,
		}
	}

	result := core.ToolResult{ToolCallID: call.ID, ToolName: call.Name, Result: value, ExecutionTimeMs: duration}
	p.states.SetCompleted(ctx, sessionID, turnID, call.ID, call.Name, result, duration, previewOf(value))
	return result
}

func previewOf(v any) string {
	s := fmt.Sprintf("%v", v)
	const maxPreview = 200
	if len(s) > maxPreview {
		return s[:maxPreview] + "..."
	}
	return s
}

// SubmitUserAnswer resolves a pending AwaitingConfirmation/AwaitingUserInput
// slot for toolID.
func (p *Pipeline) SubmitUserAnswer(toolID string, answer map[string]any) error {
	return p.userinput.Answer(toolID, answer)
}

// Cancel transitions toolID to Cancelled with the given reason and drops
// any pending confirmation slot (best-effort interrupt, per base spec
// §4.6).
func (p *Pipeline) Cancel(ctx context.Context, sessionID, turnID, toolID, toolName, reason string) {
	p.userinput.Cancel(toolID)
	p.states.SetCancelled(ctx, sessionID, turnID, toolID, toolName, reason, toolerrors.KindToolCancelled)
}
