// Package fswrite provides an illustrative toolpipeline.Tool writing a
// file to disk. It has no teacher equivalent (the teacher's tools are
// code-generated); grounded on the Tool/ConfirmationPolicy interface
// contracts in base spec §4.6/§6 only.
package fswrite

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/goadesign/agentic-core/agentic/core"
	"github.com/goadesign/agentic-core/agentic/toolpipeline"
)

const schema = `{
	"type": "object",
	"properties": {
		"path": {"type": "string"},
		"content": {"type": "string"}
	},
	"required": ["path", "content"]
}`

// Tool writes its "content" argument to the file named by "path",
// creating parent directories as needed. When the pipeline asks for
// confirmation (ToolExecutionOptions.ConfirmBeforeRun set and the tool not
// allowlisted), ConfirmationPrompt implements toolpipeline.ConfirmationPolicy
// so the pipeline surfaces a path-specific prompt instead of a generic one.
type Tool struct{}

// New constructs a fswrite.Tool.
func New() *Tool { return &Tool{} }

func (t *Tool) Name() string   { return "fs_write" }
func (t *Tool) Schema() []byte { return []byte(schema) }

func (t *Tool) ConfirmationPrompt(args map[string]any) (title, prompt string) {
	path, _ := args["path"].(string)
	return "Write file", fmt.Sprintf("Write to %q?", path)
}

func (t *Tool) Execute(ctx context.Context, args map[string]any, execCtx core.ToolExecutionContext, progress toolpipeline.ProgressFunc) (any, error) {
	path, ok := args["path"].(string)
	if !ok || path == "" {
		return nil, &argError{msg: "path is required"}
	}
	content, ok := args["content"].(string)
	if !ok {
		return nil, &argError{msg: "content is required"}
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("fs_write: mkdir %q: %w", dir, err)
		}
	}
	if progress != nil {
		progress(fmt.Sprintf("writing %d bytes to %s", len(content), path))
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		return nil, fmt.Errorf("fs_write: write %q: %w", path, err)
	}
	return map[string]any{"bytes_written": len(content)}, nil
}

type argError struct{ msg string }

func (e *argError) Error() string   { return e.msg }
func (e *argError) Retryable() bool { return false }
