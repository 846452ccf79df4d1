// Package fsread provides an illustrative toolpipeline.Tool reading a
// file from disk. It has no teacher equivalent (the teacher's tools are
// code-generated from ToolSpec definitions rather than hand-written); it
// is grounded on the Tool interface contract in base spec §4.6/§6 only.
package fsread

import (
	"context"
	"fmt"
	"os"

	"github.com/goadesign/agentic-core/agentic/core"
	"github.com/goadesign/agentic-core/agentic/toolpipeline"
)

const schema = `{
	"type": "object",
	"properties": {
		"path": {"type": "string"}
	},
	"required": ["path"]
}`

// Tool reads the file named by its "path" argument and returns its
// contents as a string. Reads are capped at maxBytes to keep a single
// tool result from blowing out the conversation's token budget.
type Tool struct {
	maxBytes int64
}

// New constructs a fsread.Tool. maxBytes <= 0 defaults to 1 MiB.
func New(maxBytes int64) *Tool {
	if maxBytes <= 0 {
		maxBytes = 1 << 20
	}
	return &Tool{maxBytes: maxBytes}
}

func (t *Tool) Name() string   { return "fs_read" }
func (t *Tool) Schema() []byte { return []byte(schema) }

func (t *Tool) Execute(ctx context.Context, args map[string]any, execCtx core.ToolExecutionContext, progress toolpipeline.ProgressFunc) (any, error) {
	path, ok := args["path"].(string)
	if !ok || path == "" {
		return nil, &argError{msg: "path is required"}
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("fs_read: open %q: %w", path, err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return nil, fmt.Errorf("fs_read: stat %q: %w", path, err)
	}
	if info.IsDir() {
		return nil, &argError{msg: fmt.Sprintf("fs_read: %q is a directory", path)}
	}

	buf := make([]byte, t.maxBytes)
	n, err := f.Read(buf)
	if err != nil && n == 0 {
		return nil, fmt.Errorf("fs_read: read %q: %w", path, err)
	}
	truncated := info.Size() > int64(n)
	return map[string]any{
		"content":   string(buf[:n]),
		"truncated": truncated,
	}, nil
}

// argError marks malformed arguments as a non-retryable failure.
type argError struct{ msg string }

func (e *argError) Error() string   { return e.msg }
func (e *argError) Retryable() bool { return false }
