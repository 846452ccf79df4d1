package toolerrors_test

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/goadesign/agentic-core/agentic/toolerrors"
)

func TestFromErrorPreservesExistingKind(t *testing.T) {
	original := toolerrors.New(toolerrors.KindToolTimeout, "deadline exceeded")
	wrapped := toolerrors.FromError(original)
	assert.Same(t, original, wrapped)
	assert.Equal(t, toolerrors.KindToolTimeout, wrapped.Kind)
}

func TestFromErrorWrapsPlainError(t *testing.T) {
	plain := errors.New("boom")
	wrapped := toolerrors.FromError(plain)
	assert.Equal(t, toolerrors.KindTool, wrapped.Kind)
	assert.Equal(t, "boom", wrapped.Message)
}

func TestUnwrapChain(t *testing.T) {
	cause := toolerrors.New(toolerrors.KindTool, "disk full")
	outer := toolerrors.WithCause(toolerrors.KindTool, "write failed", cause)
	assert.True(t, errors.Is(outer, cause))
}

func TestSurfacesAsToolResult(t *testing.T) {
	cases := []struct {
		err  *toolerrors.Error
		want bool
	}{
		{toolerrors.New(toolerrors.KindToolTimeout, ""), true},
		{toolerrors.New(toolerrors.KindToolCancelled, ""), true},
		{toolerrors.New(toolerrors.KindUserDenied, ""), true},
		{&toolerrors.Error{Kind: toolerrors.KindTool, Retryable: false}, true},
		{&toolerrors.Error{Kind: toolerrors.KindTool, Retryable: true}, false},
		{toolerrors.New(toolerrors.KindTransport, ""), false},
	}
	for _, c := range cases {
		assert.Equal(t, c.want, c.err.SurfacesAsToolResult(), "kind %s", c.err.Kind)
	}
}

func TestEndsRound(t *testing.T) {
	assert.True(t, toolerrors.New(toolerrors.KindTransport, "").EndsRound())
	assert.False(t, (&toolerrors.Error{Kind: toolerrors.KindParse, Recoverable: true}).EndsRound())
	assert.True(t, (&toolerrors.Error{Kind: toolerrors.KindParse, Recoverable: false}).EndsRound())
}

func TestWithSessionAttachesIdentity(t *testing.T) {
	e := toolerrors.New(toolerrors.KindState, "wrong state").WithSession("sess-1", "turn-1", "tool-1")
	assert.Equal(t, "sess-1", e.SessionID)
	assert.Equal(t, "turn-1", e.TurnID)
	assert.Equal(t, "tool-1", e.ToolID)
}
