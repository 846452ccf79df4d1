package mongo

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/goadesign/agentic-core/agentic/core"
)

func TestEncodeDecodeMessagesRoundTrips(t *testing.T) {
	msgs := []core.Message{
		{Role: core.RoleUser, Content: "hello"},
		{
			Role: core.RoleAssistant,
			ToolCalls: []core.ToolCall{
				{ID: "t1", Name: "fs_read", Arguments: map[string]any{"path": "/tmp/a"}},
			},
		},
		{Role: core.RoleTool, ToolCallID: "t1", Content: "result"},
	}
	stored := encodeMessages(msgs)
	decoded := decodeMessages(stored)
	assert.Equal(t, msgs, decoded)
}

func TestEncodeDecodeEmptyMessages(t *testing.T) {
	assert.Empty(t, decodeMessages(encodeMessages(nil)))
}
