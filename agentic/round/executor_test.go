package round_test

import (
	"context"
	"io"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/goadesign/agentic-core/agentic/core"
	"github.com/goadesign/agentic-core/agentic/events"
	"github.com/goadesign/agentic-core/agentic/history"
	"github.com/goadesign/agentic-core/agentic/round"
	"github.com/goadesign/agentic-core/agentic/session"
	"github.com/goadesign/agentic-core/agentic/stream"
	"github.com/goadesign/agentic-core/agentic/toolpipeline"
	"github.com/goadesign/agentic-core/agentic/userinput"
)

type fakeTransport struct {
	deltas []stream.UnifiedDelta
	err    error
}

type fakeSource struct {
	deltas []stream.UnifiedDelta
	idx    int
}

func (f *fakeSource) Recv(ctx context.Context) (stream.UnifiedDelta, error) {
	if f.idx >= len(f.deltas) {
		return stream.UnifiedDelta{}, io.EOF
	}
	d := f.deltas[f.idx]
	f.idx++
	return d, nil
}
func (f *fakeSource) Close() error { return nil }

func (f *fakeTransport) Stream(ctx context.Context, messages []core.Message, toolSchemas []byte) (stream.Source, error) {
	if f.err != nil {
		return nil, f.err
	}
	return &fakeSource{deltas: f.deltas}, nil
}

func TestRunProducesTextOnlyResult(t *testing.T) {
	hist := history.NewManager(nil)
	router := events.NewRouter(nil)
	states := session.NewStateManager(router)
	reg := toolpipeline.NewRegistry()
	pipeline := toolpipeline.NewPipeline(reg, toolpipeline.NewStateManager(nil), userinput.NewManager(), nil)
	transport := &fakeTransport{deltas: []stream.UnifiedDelta{
		{Text: "hi there", FinishReason: "stop"},
	}}

	exec := round.New(transport, hist, states, router, pipeline, nil, time.Second, nil)
	result, err := exec.Run(context.Background(), "s1", "t1", 0, core.ToolExecutionContext{}, core.ToolExecutionOptions{})
	require.NoError(t, err)
	assert.Equal(t, "hi there", result.AIText)
	assert.Equal(t, "stop", result.FinishReason)

	msgs := hist.Snapshot("s1")
	require.Len(t, msgs, 1)
	assert.Equal(t, core.RoleAssistant, msgs[0].Role)
}

func TestRunExecutesToolCallsAndAppendsResults(t *testing.T) {
	hist := history.NewManager(nil)
	router := events.NewRouter(nil)
	states := session.NewStateManager(router)
	reg := toolpipeline.NewRegistry()
	require.NoError(t, reg.Register(&echoTool{}))
	pipeline := toolpipeline.NewPipeline(reg, toolpipeline.NewStateManager(nil), userinput.NewManager(), nil)
	transport := &fakeTransport{deltas: []stream.UnifiedDelta{
		{ToolCallFragment: &stream.ToolCallFragment{Index: 0, ID: "c1", Name: "echo"}},
		{ToolCallFragment: &stream.ToolCallFragment{Index: 0, ArgumentsPartial: `{}`}, FinishReason: "tool_calls"},
	}}

	exec := round.New(transport, hist, states, router, pipeline, nil, time.Second, nil)
	result, err := exec.Run(context.Background(), "s1", "t1", 0, core.ToolExecutionContext{}, core.ToolExecutionOptions{ConfirmBeforeRun: false})
	require.NoError(t, err)
	require.Len(t, result.ToolResults, 1)

	msgs := hist.Snapshot("s1")
	require.Len(t, msgs, 2)
	assert.Equal(t, core.RoleTool, msgs[1].Role)
	assert.Equal(t, "c1", msgs[1].ToolCallID)
}

func TestRunAppendsToolResultsInCallIssueOrder(t *testing.T) {
	hist := history.NewManager(nil)
	router := events.NewRouter(nil)
	states := session.NewStateManager(router)
	reg := toolpipeline.NewRegistry()
	require.NoError(t, reg.Register(&delayTool{name: "slow", delay: 20 * time.Millisecond}))
	require.NoError(t, reg.Register(&delayTool{name: "fast", delay: 0}))
	pipeline := toolpipeline.NewPipeline(reg, toolpipeline.NewStateManager(nil), userinput.NewManager(), nil)
	transport := &fakeTransport{deltas: []stream.UnifiedDelta{
		{ToolCallFragment: &stream.ToolCallFragment{Index: 0, ID: "c-slow", Name: "slow"}},
		{ToolCallFragment: &stream.ToolCallFragment{Index: 0, ArgumentsPartial: `{}`}},
		{ToolCallFragment: &stream.ToolCallFragment{Index: 1, ID: "c-fast", Name: "fast"}},
		{ToolCallFragment: &stream.ToolCallFragment{Index: 1, ArgumentsPartial: `{}`}, FinishReason: "tool_calls"},
	}}

	exec := round.New(transport, hist, states, router, pipeline, nil, time.Second, nil)
	result, err := exec.Run(context.Background(), "s1", "t1", 0, core.ToolExecutionContext{}, core.ToolExecutionOptions{})
	require.NoError(t, err)
	require.Len(t, result.ToolResults, 2)

	// "slow" was dispatched first and finishes last, but must still come
	// first in the result slice and in history: call-issue order, not
	// completion order.
	assert.Equal(t, "c-slow", result.ToolResults[0].ToolCallID)
	assert.Equal(t, "c-fast", result.ToolResults[1].ToolCallID)

	msgs := hist.Snapshot("s1")
	require.Len(t, msgs, 3)
	assert.Equal(t, "c-slow", msgs[1].ToolCallID)
	assert.Equal(t, "c-fast", msgs[2].ToolCallID)
}

func TestRunEndsRoundOnDependencyCycle(t *testing.T) {
	hist := history.NewManager(nil)
	router := events.NewRouter(nil)
	states := session.NewStateManager(router)
	reg := toolpipeline.NewRegistry()
	require.NoError(t, reg.Register(&mutualTool{}))
	pipeline := toolpipeline.NewPipeline(reg, toolpipeline.NewStateManager(nil), userinput.NewManager(), nil)
	transport := &fakeTransport{deltas: []stream.UnifiedDelta{
		{ToolCallFragment: &stream.ToolCallFragment{Index: 0, ID: "a", Name: "mutual"}},
		{ToolCallFragment: &stream.ToolCallFragment{Index: 0, ArgumentsPartial: `{}`}},
		{ToolCallFragment: &stream.ToolCallFragment{Index: 1, ID: "b", Name: "mutual"}},
		{ToolCallFragment: &stream.ToolCallFragment{Index: 1, ArgumentsPartial: `{}`}, FinishReason: "tool_calls"},
	}}

	exec := round.New(transport, hist, states, router, pipeline, nil, time.Second, nil)
	result, err := exec.Run(context.Background(), "s1", "t1", 0, core.ToolExecutionContext{}, core.ToolExecutionOptions{})
	require.Error(t, err)
	assert.Equal(t, round.Result{}, result)

	// No partial writes: a rejected batch must not touch history.
	assert.Empty(t, hist.Snapshot("s1"))
}

type delayTool struct {
	name  string
	delay time.Duration
}

func (t *delayTool) Name() string   { return t.name }
func (t *delayTool) Schema() []byte { return nil }
func (t *delayTool) Execute(ctx context.Context, args map[string]any, execCtx core.ToolExecutionContext, progress toolpipeline.ProgressFunc) (any, error) {
	if t.delay > 0 {
		time.Sleep(t.delay)
	}
	return "ok", nil
}

// mutualTool declares every call dependent on every other call against it,
// so two or more calls always form a cycle.
type mutualTool struct{}

func (t *mutualTool) Name() string   { return "mutual" }
func (t *mutualTool) Schema() []byte { return nil }
func (t *mutualTool) Execute(ctx context.Context, args map[string]any, execCtx core.ToolExecutionContext, progress toolpipeline.ProgressFunc) (any, error) {
	return "ok", nil
}
func (t *mutualTool) DependsOn(candidate, other core.ToolCall) bool {
	return candidate.ID != other.ID
}

func TestRunReturnsTransportError(t *testing.T) {
	hist := history.NewManager(nil)
	router := events.NewRouter(nil)
	states := session.NewStateManager(router)
	pipeline := toolpipeline.NewPipeline(toolpipeline.NewRegistry(), toolpipeline.NewStateManager(nil), userinput.NewManager(), nil)
	transport := &fakeTransport{err: assertErr{}}

	exec := round.New(transport, hist, states, router, pipeline, nil, time.Second, nil)
	_, err := exec.Run(context.Background(), "s1", "t1", 0, core.ToolExecutionContext{}, core.ToolExecutionOptions{})
	assert.Error(t, err)
}

type assertErr struct{}

func (assertErr) Error() string { return "boom" }

type echoTool struct{}

func (echoTool) Name() string   { return "echo" }
func (echoTool) Schema() []byte { return nil }
func (echoTool) Execute(ctx context.Context, args map[string]any, execCtx core.ToolExecutionContext, progress toolpipeline.ProgressFunc) (any, error) {
	return "ok", nil
}
