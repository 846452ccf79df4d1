// Package compression implements the fails-soft, between-rounds history
// compaction described in base spec §4.3. It is grounded on the teacher's
// reminder.Engine only for its general shape (a small, mutex-guarded
// per-session/run state map with a narrow public surface); the
// summarize-and-replace algorithm itself has no direct teacher equivalent
// and is built from the base spec's own algorithm description — see
// DESIGN.md.
package compression

import (
	"context"
	"sync"
	"time"

	"github.com/goadesign/agentic-core/agentic/core"
	"github.com/goadesign/agentic-core/agentic/telemetry"
	"github.com/goadesign/agentic-core/agentic/tokencount"
)

// preservedBudgetFraction bounds how much of the token budget the
// preserved (verbatim) tail may consume, per base spec §4.3 step (a).
const preservedBudgetFraction = 0.4

// Summarizer asks an LLM to compress a run of messages into one summary
// message. CompressionManager depends only on this narrow interface, not
// on a full model.Transport, so it stays testable without a real provider.
type Summarizer interface {
	Summarize(ctx context.Context, messages []core.Message) (string, error)
}

// Manager implements CompressionManager. It is safe for concurrent use.
type Manager struct {
	counter    *tokencount.Counter
	summarizer Summarizer
	log        telemetry.Logger

	mu    sync.Mutex
	state map[string]core.CompressionState
}

// NewManager constructs a Manager. log may be nil (defaults to NoopLogger).
func NewManager(summarizer Summarizer, log telemetry.Logger) *Manager {
	if log == nil {
		log = telemetry.NewNoopLogger()
	}
	return &Manager{
		counter:    tokencount.New(),
		summarizer: summarizer,
		log:        log,
		state:      make(map[string]core.CompressionState),
	}
}

// ShouldCompress reports whether messages should be compressed given cfg,
// per base spec §4.3's trigger condition.
func (m *Manager) ShouldCompress(cfg core.SessionConfig, messages []core.Message) bool {
	if !cfg.EnableCompression || cfg.MaxContextTokens <= 0 {
		return false
	}
	estimated := m.counter.EstimateMessages(messages)
	return float64(estimated)/float64(cfg.MaxContextTokens) >= cfg.CompressionThreshold
}

// Compress runs the compaction algorithm for sessionID: it preserves the
// system prompt and the most recent verbatim messages within the
// preserved-budget fraction, asks the Summarizer to compress everything
// else into one message, and returns the new history. On any failure it
// returns the original messages unchanged and logs a warning — compression
// never fails the calling turn (base spec §4.3 tie-break).
func (m *Manager) Compress(ctx context.Context, sessionID string, cfg core.SessionConfig, messages []core.Message) []core.Message {
	if len(messages) == 0 {
		return messages
	}

	preserved, toSummarize := m.splitForPreservation(cfg, messages)
	if len(toSummarize) == 0 {
		return messages
	}

	summary, err := m.summarizer.Summarize(ctx, toSummarize)
	if err != nil {
		m.log.Warn(ctx, "compression failed, leaving history untouched",
			"session_id", sessionID, "error", err.Error())
		return messages
	}

	out := make([]core.Message, 0, len(preserved)+1)
	if len(messages) > 0 && messages[0].Role == core.RoleSystem {
		out = append(out, messages[0])
	}
	out = append(out, core.Message{Role: core.RoleAssistant, Content: summary})
	out = append(out, preserved...)

	m.mu.Lock()
	st := m.state[sessionID]
	st.Count++
	st.LastAt = time.Now()
	m.state[sessionID] = st
	m.mu.Unlock()

	return out
}

// State returns the current CompressionState for sessionID.
func (m *Manager) State(sessionID string) core.CompressionState {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state[sessionID]
}

// splitForPreservation returns (preserved, toSummarize): preserved holds
// the most recent messages whose combined estimated size stays at or under
// preservedBudgetFraction of cfg.MaxContextTokens, except that the newest
// non-system message is always preserved even when it alone exceeds that
// budget; toSummarize holds everything else, oldest first. The system
// prompt (if any) is in neither slice; Compress re-adds it separately.
func (m *Manager) splitForPreservation(cfg core.SessionConfig, messages []core.Message) (preserved, toSummarize []core.Message) {
	budget := float64(cfg.MaxContextTokens) * preservedBudgetFraction
	start := len(messages)
	running := 0
	for start > 0 {
		idx := start - 1
		if messages[idx].Role == core.RoleSystem {
			break
		}
		cost := m.counter.EstimateMessage(messages[idx])
		if float64(running+cost) > budget && start != len(messages) {
			break
		}
		running += cost
		start = idx
	}
	hasSystem := len(messages) > 0 && messages[0].Role == core.RoleSystem
	begin := 0
	if hasSystem {
		begin = 1
	}
	if start < begin {
		start = begin
	}
	return messages[start:], messages[begin:start]
}
