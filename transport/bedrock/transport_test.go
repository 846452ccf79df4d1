package bedrock

import (
	"context"
	"testing"

	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/goadesign/agentic-core/agentic/core"
)

func TestEncodeMessagesSeparatesSystemFromConversation(t *testing.T) {
	msgs := []core.Message{
		{Role: core.RoleSystem, Content: "be nice"},
		{Role: core.RoleUser, Content: "hello"},
	}
	conversation, system, err := encodeMessages(msgs)
	require.NoError(t, err)
	assert.Len(t, system, 1)
	assert.Len(t, conversation, 1)
}

func TestEncodeMessagesCollapsesConsecutiveToolResults(t *testing.T) {
	msgs := []core.Message{
		{Role: core.RoleUser, Content: "run both"},
		{Role: core.RoleAssistant, ToolCalls: []core.ToolCall{{ID: "a", Name: "x"}, {ID: "b", Name: "y"}}},
		{Role: core.RoleTool, ToolCallID: "a", Content: "result a"},
		{Role: core.RoleTool, ToolCallID: "b", Content: "result b"},
		{Role: core.RoleUser, Content: "thanks"},
	}
	conversation, _, err := encodeMessages(msgs)
	require.NoError(t, err)
	assert.Len(t, conversation, 4)
}

func TestEncodeMessagesRejectsEmptyInput(t *testing.T) {
	_, _, err := encodeMessages(nil)
	assert.Error(t, err)
}

func TestSanitizeToolNameReplacesInvalidCharacters(t *testing.T) {
	assert.Equal(t, "a_b_c", sanitizeToolName("a.b/c"))
}

func TestSanitizeToolNameTruncatesToSixtyFourChars(t *testing.T) {
	long := ""
	for i := 0; i < 100; i++ {
		long += "a"
	}
	assert.Len(t, sanitizeToolName(long), 64)
}

func TestMapStopReasonTranslatesBedrockReasons(t *testing.T) {
	assert.Equal(t, "tool_calls", mapStopReason("tool_use"))
	assert.Equal(t, "length", mapStopReason("max_tokens"))
	assert.Equal(t, "end_turn", mapStopReason("end_turn"))
	assert.Equal(t, "stop", mapStopReason("stop_sequence"))
}

func TestNewRejectsMissingModel(t *testing.T) {
	_, err := New(&stubRuntime{}, Options{})
	assert.Error(t, err)
}

func TestPrepareRequestRejectsEmptyMessages(t *testing.T) {
	c := &Client{model: "anthropic.claude"}
	_, _, err := c.prepareRequest(nil, nil)
	assert.Error(t, err)
}

func TestAdaptiveRateLimiterBacksOffOnThrottling(t *testing.T) {
	l := NewAdaptiveRateLimiter(1000, 2000)
	before := l.currentTPM
	l.Observe(true)
	assert.Less(t, l.currentTPM, before)
}

func TestAdaptiveRateLimiterProbesUpwardOnSuccess(t *testing.T) {
	l := NewAdaptiveRateLimiter(1000, 2000)
	l.Observe(true)
	after := l.currentTPM
	l.Observe(false)
	assert.Greater(t, l.currentTPM, after)
}

func TestAdaptiveRateLimiterClampsToBounds(t *testing.T) {
	l := NewAdaptiveRateLimiter(1000, 1100)
	for i := 0; i < 50; i++ {
		l.Observe(false)
	}
	assert.LessOrEqual(t, l.currentTPM, l.maxTPM)
}

type stubRuntime struct{}

func (s *stubRuntime) ConverseStream(ctx context.Context, params *bedrockruntime.ConverseStreamInput, optFns ...func(*bedrockruntime.Options)) (*bedrockruntime.ConverseStreamOutput, error) {
	return nil, nil
}
