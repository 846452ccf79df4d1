package fsread

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/goadesign/agentic-core/agentic/core"
)

func TestExecuteReadsFileContent(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "hello.txt")
	require.NoError(t, os.WriteFile(path, []byte("hello world"), 0o644))

	tool := New(0)
	result, err := tool.Execute(context.Background(), map[string]any{"path": path}, core.ToolExecutionContext{}, nil)
	require.NoError(t, err)
	out := result.(map[string]any)
	assert.Equal(t, "hello world", out["content"])
	assert.Equal(t, false, out["truncated"])
}

func TestExecuteRejectsMissingPath(t *testing.T) {
	tool := New(0)
	_, err := tool.Execute(context.Background(), map[string]any{}, core.ToolExecutionContext{}, nil)
	require.Error(t, err)
	var nonRetryable interface{ Retryable() bool }
	require.ErrorAs(t, err, &nonRetryable)
	assert.False(t, nonRetryable.Retryable())
}

func TestExecuteRejectsDirectory(t *testing.T) {
	dir := t.TempDir()
	tool := New(0)
	_, err := tool.Execute(context.Background(), map[string]any{"path": dir}, core.ToolExecutionContext{}, nil)
	assert.Error(t, err)
}

func TestExecuteTruncatesAtMaxBytes(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "big.txt")
	require.NoError(t, os.WriteFile(path, []byte("0123456789"), 0o644))

	tool := New(4)
	result, err := tool.Execute(context.Background(), map[string]any{"path": path}, core.ToolExecutionContext{}, nil)
	require.NoError(t, err)
	out := result.(map[string]any)
	assert.Equal(t, "0123", out["content"])
	assert.Equal(t, true, out["truncated"])
}

func TestNameAndSchema(t *testing.T) {
	tool := New(0)
	assert.Equal(t, "fs_read", tool.Name())
	assert.NotEmpty(t, tool.Schema())
}
