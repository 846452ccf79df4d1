// Package tokencount implements the fast heuristic token estimator used by
// CompressionManager to decide when a session's history is approaching its
// configured budget. No tokenizer library (tiktoken,
// sentencepiece, etc.) appears anywhere in the reference corpus, so this
// is a deliberately simple stdlib heuristic rather than an exact count —
// see DESIGN.md.
package tokencount

import "github.com/goadesign/agentic-core/agentic/core"

// charsPerToken approximates English-text tokenization density for
// mainstream LLM tokenizers (roughly 4 characters per token).
const charsPerToken = 4

// perMessageOverhead accounts for role/name/tool-call-id framing that
// providers add around each message when assembling the wire prompt.
const perMessageOverhead = 4

// Counter estimates token usage for messages and tool schemas.
type Counter struct{}

// New returns a Counter.
func New() *Counter { return &Counter{} }

// EstimateMessage estimates the token cost of a single message.
func (c *Counter) EstimateMessage(m core.Message) int {
	n := perMessageOverhead
	n += estimateText(m.Content)
	n += estimateText(m.ReasoningContent)
	for _, tc := range m.ToolCalls {
		n += estimateText(tc.Name)
		n += estimateArguments(tc.Arguments)
	}
	return n
}

// EstimateMessages estimates the total token cost of a message history.
func (c *Counter) EstimateMessages(msgs []core.Message) int {
	total := 0
	for _, m := range msgs {
		total += c.EstimateMessage(m)
	}
	return total
}

// EstimateSchema estimates the token cost of a tool's JSON schema, counted
// once per distinct tool offered to the model in a round.
func (c *Counter) EstimateSchema(schema []byte) int {
	return len(schema) / charsPerToken
}

func estimateText(s string) int {
	if s == "" {
		return 0
	}
	n := len(s) / charsPerToken
	if n == 0 {
		n = 1
	}
	return n
}

func estimateArguments(args map[string]any) int {
	if len(args) == 0 {
		return 0
	}
	total := 0
	for k, v := range args {
		total += estimateText(k)
		switch val := v.(type) {
		case string:
			total += estimateText(val)
		default:
			total += 2
		}
	}
	return total
}
