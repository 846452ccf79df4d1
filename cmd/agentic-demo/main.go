// Command agentic-demo wires every Agentic Core component into a single
// process and drives one dialog turn per stdin line, printing to stdout,
// grounded on
// the teacher's cmd/demo/main.go: a minimal main that registers an agent
// and runs it end to end, generalized here from goa-ai's
// Runtime/AgentRegistration/WorkflowDefinition wiring down to this
// module's plain constructor-and-goroutine Coordinator.
package main

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/goadesign/agentic-core/agentic/compression"
	"github.com/goadesign/agentic-core/agentic/core"
	"github.com/goadesign/agentic-core/agentic/coordinator"
	"github.com/goadesign/agentic-core/agentic/engine"
	"github.com/goadesign/agentic-core/agentic/events"
	"github.com/goadesign/agentic-core/agentic/history"
	"github.com/goadesign/agentic-core/agentic/round"
	"github.com/goadesign/agentic-core/agentic/session"
	"github.com/goadesign/agentic-core/agentic/telemetry"
	"github.com/goadesign/agentic-core/agentic/toolpipeline"
	"github.com/goadesign/agentic-core/agentic/userinput"
	"github.com/goadesign/agentic-core/transport/anthropic"

	"github.com/goadesign/agentic-core/tool/fsread"
	"github.com/goadesign/agentic-core/tool/fswrite"
	"github.com/goadesign/agentic-core/tool/shell"
)

func main() {
	ctx := context.Background()
	log := telemetry.NewOtelLogger()

	var transport round.Transport = stubTransport{}
	if apiKey := os.Getenv("ANTHROPIC_API_KEY"); apiKey != "" {
		model := os.Getenv("ANTHROPIC_MODEL")
		if model == "" {
			model = "claude-sonnet-4-5"
		}
		live, err := anthropic.NewFromAPIKey(apiKey, model)
		if err != nil {
			fmt.Fprintln(os.Stderr, "agentic-demo:", err)
			os.Exit(1)
		}
		transport = live
	}

	router := events.NewRouter(log)
	queue := events.NewQueue(router)
	go queue.Run(ctx)

	sessions := session.NewManager(router)
	hist := history.NewManager(nil)

	registry := toolpipeline.NewRegistry()
	for _, t := range []toolpipeline.Tool{fsread.New(0), fswrite.New(), shell.New(0)} {
		if err := registry.Register(t); err != nil {
			fmt.Fprintln(os.Stderr, "agentic-demo: register tool:", err)
			os.Exit(1)
		}
	}
	toolStates := toolpipeline.NewStateManager(queue)
	ui := userinput.NewManager()
	pipeline := toolpipeline.NewPipeline(registry, toolStates, ui, log)

	schemas, err := toolSchemas(registry)
	if err != nil {
		fmt.Fprintln(os.Stderr, "agentic-demo:", err)
		os.Exit(1)
	}
	executor := round.New(transport, hist, sessions.States(), router, pipeline, schemas, 60*time.Second, log)
	noCompression := compression.NewManager(nil, log)
	eng := engine.New(sessions, hist, noCompression, executor, router, log)
	coord := coordinator.New(sessions, hist, eng, router, log)

	sess := sessions.CreateSession("demo.agent", core.DefaultSessionConfig())
	hist.EnablePersistence(sess.ID)

	fmt.Println("agentic-demo ready. Type a message and press enter (Ctrl-D to quit).")
	scanner := bufio.NewScanner(os.Stdin)
	for scanner.Scan() {
		line := scanner.Text()
		if line == "" {
			continue
		}

		// One subscriber per turn: simpler than threading a shared,
		// mutex-guarded event log through a polling loop, and the demo
		// never runs two turns on this session concurrently.
		done := make(chan struct{}, 1)
		sub := events.SubscriberFunc(func(ctx context.Context, event events.Event) error {
			printEvent(event)
			if isTerminalEvent(event) {
				select {
				case done <- struct{}{}:
				default:
				}
			}
			return nil
		})

		handle, err := coord.StartDialogTurn(ctx, coordinator.StartTurnRequest{
			SessionID:        sess.ID,
			UserInput:        line,
			ExecutionOptions: core.DefaultToolExecutionOptions(),
			Subscriber:       sub,
		})
		if err != nil {
			if errors.Is(err, coordinator.ErrCannotStartTurn) {
				fmt.Fprintln(os.Stderr, "agentic-demo: a turn is already in progress")
				continue
			}
			fmt.Fprintln(os.Stderr, "agentic-demo:", err)
			continue
		}

		select {
		case <-done:
		case <-time.After(2 * time.Minute):
			fmt.Fprintln(os.Stderr, "agentic-demo: turn timed out waiting for completion")
		}
		if handle.Subscription != nil {
			handle.Subscription.Close()
		}
	}
}

func isTerminalEvent(event events.Event) bool {
	switch event.(type) {
	case *events.TurnCompletedEvent, *events.TurnCancelledEvent, *events.FailureEvent:
		return true
	}
	return false
}

func printEvent(event events.Event) {
	switch e := event.(type) {
	case *events.TextChunkEvent:
		fmt.Print(e.Text)
	case *events.TurnCompletedEvent:
		fmt.Println()
	}
}

// toolSchemas encodes registry's tools into the wire shape every
// transport adapter's decodeTools expects: a JSON array of
// {name, description, schema}.
func toolSchemas(registry *toolpipeline.Registry) ([]byte, error) {
	type toolDef struct {
		Name        string          `json:"name"`
		Description string          `json:"description"`
		Schema      json.RawMessage `json:"schema"`
	}
	var defs []toolDef
	for _, name := range registry.Names() {
		tool, ok := registry.Lookup(name)
		if !ok {
			continue
		}
		defs = append(defs, toolDef{Name: tool.Name(), Schema: tool.Schema()})
	}
	return json.Marshal(defs)
}
