package fswrite

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/goadesign/agentic-core/agentic/core"
)

func TestExecuteWritesFileCreatingParentDirs(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "nested", "out.txt")
	tool := New()

	var progressed []string
	result, err := tool.Execute(context.Background(), map[string]any{"path": path, "content": "hi there"}, core.ToolExecutionContext{}, func(p string) {
		progressed = append(progressed, p)
	})
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"bytes_written": 8}, result)
	assert.NotEmpty(t, progressed)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "hi there", string(data))
}

func TestExecuteRejectsMissingArgs(t *testing.T) {
	tool := New()
	_, err := tool.Execute(context.Background(), map[string]any{"path": "x"}, core.ToolExecutionContext{}, nil)
	assert.Error(t, err)
}

func TestConfirmationPromptMentionsPath(t *testing.T) {
	tool := New()
	_, prompt := tool.ConfirmationPrompt(map[string]any{"path": "/tmp/a.txt"})
	assert.Contains(t, prompt, "/tmp/a.txt")
}
