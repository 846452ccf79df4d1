// Package stream implements StreamProcessor from base spec §4.5: it drains
// a lazy sequence of UnifiedDelta values from an LLM transport, emitting
// TextChunk/ReasoningChunk/ToolCallDetected/ToolCallComplete events as it
// goes, and returns an aggregated RoundResult. The drain loop is grounded on
// the teacher's planner.ConsumeStream (runtime/agent/planner/stream.go),
// which switches on a chunk-type enum and forwards to a narrow
// PlannerEvents sink; StreamProcessor keeps that shape but switches on
// UnifiedDelta's populated fields instead of a discriminated chunk type,
// and routes through events.Router instead of a planner-specific sink.
package stream

import (
	"github.com/goadesign/agentic-core/agentic/core"
)

// ToolCallFragment is one index-addressed slice of a tool call as it
// streams in: the id/name may arrive once, up front, while
// ArgumentsPartial arrives incrementally across many deltas.
type ToolCallFragment struct {
	Index            int
	ID               string
	Name             string
	ArgumentsPartial string
}

// UnifiedDelta is one item of the lazy delta sequence a Transport yields
// for a single ModelRound, per base spec §4.5.
type UnifiedDelta struct {
	Text             string
	Reasoning        string
	ToolCallFragment *ToolCallFragment
	Usage            *core.TokenUsage
	FinishReason     string
}

// RoundResult is StreamProcessor's return value: everything accumulated
// over the course of one round's delta stream.
type RoundResult struct {
	AIText       string
	Reasoning    string
	ToolCalls    []core.ToolCall
	Usage        core.TokenUsage
	FinishReason string

	// Incomplete lists tool calls whose arguments never closed into valid
	// JSON before the stream ended (base spec §4.5). RoundExecutor turns
	// each into a non-retryable ToolFailed.
	Incomplete []IncompleteToolCall
}

// terminalFinishReasons are the finish_reason values that end a round
// normally (base spec §4.5 Termination).
var terminalFinishReasons = map[string]bool{
	"stop":       true,
	"end_turn":   true,
	"tool_calls": true,
	"length":     true,
}
