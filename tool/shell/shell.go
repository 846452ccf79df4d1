// Package shell provides an illustrative toolpipeline.Tool running a
// shell command. It has no teacher equivalent (the teacher's tools are
// code-generated); grounded on the Tool/AutoApproved interface contracts
// in base spec §4.6/§6 only.
package shell

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"time"

	"github.com/goadesign/agentic-core/agentic/core"
	"github.com/goadesign/agentic-core/agentic/toolpipeline"
)

const schema = `{
	"type": "object",
	"properties": {
		"command": {"type": "string"}
	},
	"required": ["command"]
}`

// Tool runs its "command" argument through /bin/sh -c, capped at timeout.
// It never auto-approves itself: AutoApprove always returns false, so when
// ToolExecutionOptions.ConfirmBeforeRun is set the pipeline pauses for
// confirmation unless its WithAutoApprove allowlist names shell_exec.
type Tool struct {
	timeout time.Duration
}

// New constructs a shell.Tool. timeout <= 0 defaults to 30s.
func New(timeout time.Duration) *Tool {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Tool{timeout: timeout}
}

func (t *Tool) Name() string      { return "shell_exec" }
func (t *Tool) Schema() []byte    { return []byte(schema) }
func (t *Tool) AutoApprove() bool { return false }

func (t *Tool) Execute(ctx context.Context, args map[string]any, execCtx core.ToolExecutionContext, progress toolpipeline.ProgressFunc) (any, error) {
	command, ok := args["command"].(string)
	if !ok || command == "" {
		return nil, &argError{msg: "command is required"}
	}

	runCtx, cancel := context.WithTimeout(ctx, t.timeout)
	defer cancel()

	cmd := exec.CommandContext(runCtx, "/bin/sh", "-c", command)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if progress != nil {
		progress(fmt.Sprintf("running: %s", command))
	}

	err := cmd.Run()
	if runCtx.Err() != nil {
		return nil, fmt.Errorf("shell_exec: %w", runCtx.Err())
	}
	exitCode := 0
	if err != nil {
		if exitErr, ok := err.(*exec.ExitError); ok {
			exitCode = exitErr.ExitCode()
		} else {
			return nil, &retryableError{msg: fmt.Sprintf("shell_exec: %v", err)}
		}
	}
	return map[string]any{
		"stdout":    stdout.String(),
		"stderr":    stderr.String(),
		"exit_code": exitCode,
	}, nil
}

type argError struct{ msg string }

func (e *argError) Error() string   { return e.msg }
func (e *argError) Retryable() bool { return false }

// retryableError marks process-launch failures (missing shell, resource
// exhaustion) as transient, unlike a non-zero exit code which is a normal
// tool result rather than an error.
type retryableError struct{ msg string }

func (e *retryableError) Error() string   { return e.msg }
func (e *retryableError) Retryable() bool { return true }
