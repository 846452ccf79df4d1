package core

import "time"

// SessionConfig holds the per-session tunables from SPEC_FULL.md §1
// (Configuration table), applied at session creation and inherited by
// every turn within it.
type SessionConfig struct {
	MaxContextTokens     int
	MaxTurns             int
	EnableCompression    bool
	CompressionThreshold float64
	EnableTools          bool
}

// DefaultSessionConfig mirrors the base spec's documented defaults.
func DefaultSessionConfig() SessionConfig {
	return SessionConfig{
		MaxContextTokens:     0, // 0 = unbounded; caller should set explicitly
		MaxTurns:             32,
		EnableCompression:    true,
		CompressionThreshold: 0.8,
		EnableTools:          true,
	}
}

// CompressionState tracks how many times a session's history has been
// compressed and when.
type CompressionState struct {
	Count  int
	LastAt time.Time
}

// Session is the top-level conversational container. SessionManager owns
// the canonical copy; everything else works off snapshots.
type Session struct {
	ID      string
	AgentType string
	Config  SessionConfig

	// DialogTurnIDs is append-only: entries are never removed or reordered.
	DialogTurnIDs []string

	Compression CompressionState

	CreatedAt time.Time
	UpdatedAt time.Time
}

// ProcessingPhase is the sub-state of SessionState when Processing.
// Grounded on the original implementation's explicit ProcessingPhase enum
// (SPEC_FULL.md §3 supplemented features).
type ProcessingPhase string

const (
	PhaseStarting       ProcessingPhase = "starting"
	PhaseThinking       ProcessingPhase = "thinking"
	PhaseStreaming      ProcessingPhase = "streaming"
	PhaseToolCalling    ProcessingPhase = "tool_calling"
	PhaseToolConfirming ProcessingPhase = "tool_confirming"
)

// SessionStateKind enumerates the three top-level SessionState variants.
type SessionStateKind int

const (
	SessionIdle SessionStateKind = iota
	SessionProcessing
	SessionError
)

// SessionState is the single source of truth for a session's current
// activity, per base spec §3/§4.4.
type SessionState struct {
	Kind SessionStateKind

	// Meaningful when Kind == SessionProcessing.
	CurrentTurnID string
	Phase         ProcessingPhase

	// Meaningful when Kind == SessionError.
	ErrorMessage string
	Recoverable  bool
}

// Idle constructs the Idle state.
func Idle() SessionState { return SessionState{Kind: SessionIdle} }

// Processing constructs a Processing state for the given turn and phase.
func Processing(turnID string, phase ProcessingPhase) SessionState {
	return SessionState{Kind: SessionProcessing, CurrentTurnID: turnID, Phase: phase}
}

// ErrorState constructs an Error state.
func ErrorState(message string, recoverable bool) SessionState {
	return SessionState{Kind: SessionError, ErrorMessage: message, Recoverable: recoverable}
}

// CanStartNewTurn reports whether a new dialog turn may begin from this
// state. Resolves base spec §9 Open Question 1: Error{recoverable:true}
// permits a new turn directly, with no forced transition through Idle.
// Grounded on the original SessionStateManager.can_start_new_turn.
func (s SessionState) CanStartNewTurn() bool {
	switch s.Kind {
	case SessionIdle:
		return true
	case SessionError:
		return s.Recoverable
	default:
		return false
	}
}

// IsProcessing reports whether the session currently has a turn in flight.
func (s SessionState) IsProcessing() bool { return s.Kind == SessionProcessing }

func (k SessionStateKind) String() string {
	switch k {
	case SessionIdle:
		return "idle"
	case SessionProcessing:
		return "processing"
	case SessionError:
		return "error"
	default:
		return "unknown"
	}
}

// DialogTurnStateKind enumerates DialogTurn.State variants.
type DialogTurnStateKind int

const (
	TurnActive DialogTurnStateKind = iota
	TurnCompleted
	TurnCancelled
	TurnFailed
)

// DialogTurnState is the tagged state of a DialogTurn.
type DialogTurnState struct {
	Kind DialogTurnStateKind

	// Meaningful when Kind == TurnActive.
	RoundIndex   int
	PendingTools []string

	// Meaningful when Kind == TurnCompleted.
	FinalResponse string
	TotalRounds   int
	Truncated     bool

	// Meaningful when Kind == TurnFailed.
	Error string
}

// IsTerminal reports whether the state is sticky (Completed/Cancelled/Failed).
func (s DialogTurnState) IsTerminal() bool { return s.Kind != TurnActive }

// DialogTurn is one user message and everything the system does to answer
// it: one or more ModelRounds.
type DialogTurn struct {
	ID        string
	SessionID string
	TurnIndex int

	UserInput string

	// ModelRoundIDs is ordered and bounded by Session.Config.MaxTurns.
	ModelRoundIDs []string

	State DialogTurnState

	StartedAt   time.Time
	CompletedAt time.Time
}

// ModelRoundStateKind enumerates ModelRound.State variants.
type ModelRoundStateKind int

const (
	RoundThinking ModelRoundStateKind = iota
	RoundStreaming
	RoundToolsExecuting
	RoundCompleted
)

// TokenUsage mirrors the usage fields carried on LLM deltas and rounds.
type TokenUsage struct {
	PromptTokens     int
	CompletionTokens int
	TotalTokens      int
	CachedTokens     int
}

// Add returns the element-wise sum of u and other.
func (u TokenUsage) Add(other TokenUsage) TokenUsage {
	return TokenUsage{
		PromptTokens:     u.PromptTokens + other.PromptTokens,
		CompletionTokens: u.CompletionTokens + other.CompletionTokens,
		TotalTokens:      u.TotalTokens + other.TotalTokens,
		CachedTokens:     u.CachedTokens + other.CachedTokens,
	}
}

// ModelRound is one LLM call plus the tool executions it triggers.
type ModelRound struct {
	ID          string
	DialogTurnID string
	RoundIndex  int

	// InputMessages is the exact snapshot handed to the LLM transport at
	// the start of this round; it must not change after the round starts.
	InputMessages []Message

	AIText      string
	ToolCalls   []ToolCall
	ToolResults []ToolResult

	State ModelRoundStateKind

	Usage      TokenUsage
	DurationMs int64
}
