// Package toolpipeline implements ToolPipeline and ToolStateManager from
// base spec §4.6: admission control, dependency scheduling, confirmation,
// execution, retries and state fan-out for a batch of ToolTasks.
//
// The tool registration shape (name, JSON schema, confirmation policy) is
// grounded on the teacher's tools.ToolSpec (runtime/agent/tools/spec.go),
// simplified to what this module's flat core.ToolCall model needs: the
// teacher's TypeSpec.Schema []byte field goes from decorative (render-time
// documentation) to load-bearing, since ToolPipeline now actually validates
// arguments against it before dispatch. Dispatch/retry/dependency-DAG
// scheduling is grounded on the original implementation's
// agentic/tools/pipeline/types.rs (ToolTask/ToolExecutionOptions, already
// ported verbatim into agentic/core) plus the teacher's
// toolregistry/executor.Executor for the request/response shape of a
// single tool call, adapted from Pulse-stream result delivery to a direct
// in-process Tool.Execute call.
package toolpipeline

import (
	"bytes"
	"context"
	"fmt"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v6"

	"github.com/goadesign/agentic-core/agentic/core"
)

// ProgressFunc lets a running Tool publish intermediate progress text.
type ProgressFunc func(progress string)

// Tool is a single registered capability a ToolPipeline can dispatch a
// ToolCall to.
type Tool interface {
	// Name is the globally unique tool identifier, matching ToolCall.Name.
	Name() string
	// Schema returns the tool's JSON Schema for its arguments, used for
	// admission-time validation. A nil/empty Schema skips validation.
	Schema() []byte
	// Execute runs the tool. progress may be called any number of times
	// before returning; it is a no-op once Execute returns.
	Execute(ctx context.Context, args map[string]any, execCtx core.ToolExecutionContext, progress ProgressFunc) (any, error)
}

// DependencyAware is implemented by tools whose scheduling must wait on
// another task in the same batch (base spec §4.6 Scheduling, e.g. "a write
// must wait for a prior read on the same path"). Tools that don't need
// this needn't implement it.
type DependencyAware interface {
	// DependsOn reports whether candidate must wait for other to finish,
	// given their respective arguments.
	DependsOn(candidate, other core.ToolCall) bool
}

// ConfirmationPolicy is implemented by tools that need to describe their
// own confirmation prompt (base spec §4.6 "Confirmation protocol"). Tools
// that don't implement this get a generic prompt when confirmation is
// required by ToolExecutionOptions.ConfirmBeforeRun.
type ConfirmationPolicy interface {
	ConfirmationPrompt(args map[string]any) (title, prompt string)
}

// RetryableError is implemented by a Tool.Execute error to mark itself
// retryable, letting the Pipeline distinguish transient failures (retried
// up to ToolExecutionOptions.MaxRetries) from terminal ones.
type RetryableError interface {
	Retryable() bool
}

// AutoApproved is implemented by tools that should never pause for
// confirmation even when the caller asks for it (an explicit auto-approve
// allowlist per base spec §4.6).
type AutoApproved interface {
	AutoApprove() bool
}

// Registry holds every Tool known to a process, keyed by name, with
// compiled JSON Schemas cached for fast repeated validation.
type Registry struct {
	mu       sync.RWMutex
	tools    map[string]Tool
	compiled map[string]*jsonschema.Schema
}

// NewRegistry constructs an empty Registry.
func NewRegistry() *Registry {
	return &Registry{tools: make(map[string]Tool), compiled: make(map[string]*jsonschema.Schema)}
}

// Register adds tool to the registry, compiling its schema (if any) up
// front so admission-time validation never pays compilation cost.
func (r *Registry) Register(tool Tool) error {
	if tool == nil || tool.Name() == "" {
		return fmt.Errorf("toolpipeline: tool must have a non-empty name")
	}
	var compiled *jsonschema.Schema
	if schema := tool.Schema(); len(schema) > 0 {
		doc, err := jsonschema.UnmarshalJSON(bytes.NewReader(schema))
		if err != nil {
			return fmt.Errorf("toolpipeline: decode schema for %q: %w", tool.Name(), err)
		}
		c := jsonschema.NewCompiler()
		resourceURL := "mem://" + tool.Name() + ".json"
		if err := c.AddResource(resourceURL, doc); err != nil {
			return fmt.Errorf("toolpipeline: compile schema for %q: %w", tool.Name(), err)
		}
		sch, err := c.Compile(resourceURL)
		if err != nil {
			return fmt.Errorf("toolpipeline: compile schema for %q: %w", tool.Name(), err)
		}
		compiled = sch
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.tools[tool.Name()] = tool
	if compiled != nil {
		r.compiled[tool.Name()] = compiled
	}
	return nil
}

// Lookup returns the Tool registered under name, if any.
func (r *Registry) Lookup(name string) (Tool, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.tools[name]
	return t, ok
}

// Validate checks args against the compiled schema for name, if one was
// registered. A tool with no schema always validates.
func (r *Registry) Validate(name string, args map[string]any) error {
	r.mu.RLock()
	schema, ok := r.compiled[name]
	r.mu.RUnlock()
	if !ok {
		return nil
	}
	return schema.Validate(args)
}

// Names returns every registered tool name. Order is unspecified.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.tools))
	for name := range r.tools {
		out = append(out, name)
	}
	return out
}
