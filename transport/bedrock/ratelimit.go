package bedrock

import (
	"context"
	"sync"

	"golang.org/x/time/rate"

	"github.com/goadesign/agentic-core/agentic/core"
)

// AdaptiveRateLimiter applies an AIMD-style adaptive token bucket in front
// of a round.Transport: it estimates the token cost of a request, blocks
// the caller until capacity is available, and adjusts its effective
// tokens-per-minute budget in response to observed throttling, grounded on
// the teacher's AdaptiveRateLimiter
// (features/model/middleware/ratelimit.go), with the Pulse-backed
// cluster-coordination variant dropped (see DESIGN.md) in favor of a
// process-local limiter, the only mode this module has any infrastructure
// to exercise.
type AdaptiveRateLimiter struct {
	mu sync.Mutex

	limiter *rate.Limiter

	currentTPM float64
	minTPM     float64
	maxTPM     float64

	recoveryRate float64
}

// NewAdaptiveRateLimiter constructs a limiter with an initial and maximum
// tokens-per-minute budget. maxTPM is clamped up to initialTPM when lower.
func NewAdaptiveRateLimiter(initialTPM, maxTPM float64) *AdaptiveRateLimiter {
	if initialTPM <= 0 {
		initialTPM = 60000
	}
	if maxTPM <= 0 || maxTPM < initialTPM {
		maxTPM = initialTPM
	}
	minTPM := initialTPM * 0.1
	if minTPM < 1 {
		minTPM = 1
	}
	recoveryRate := initialTPM * 0.05
	if recoveryRate < 1 {
		recoveryRate = 1
	}
	return &AdaptiveRateLimiter{
		limiter:      rate.NewLimiter(rate.Limit(initialTPM/60.0), int(initialTPM)),
		currentTPM:   initialTPM,
		minTPM:       minTPM,
		maxTPM:       maxTPM,
		recoveryRate: recoveryRate,
	}
}

// Wait blocks until the limiter has capacity for the estimated token cost
// of messages.
func (l *AdaptiveRateLimiter) Wait(ctx context.Context, messages []core.Message) error {
	return l.limiter.WaitN(ctx, estimateTokens(messages))
}

// Observe adjusts the effective budget based on the outcome of a request:
// a throttling error halves the budget (down to minTPM), any other outcome
// probes upward toward maxTPM by recoveryRate.
func (l *AdaptiveRateLimiter) Observe(throttled bool) {
	if throttled {
		l.adjust(func(tpm float64) float64 { return tpm * 0.5 })
		return
	}
	l.adjust(func(tpm float64) float64 { return tpm + l.recoveryRate })
}

func (l *AdaptiveRateLimiter) adjust(next func(float64) float64) {
	l.mu.Lock()
	defer l.mu.Unlock()

	newTPM := next(l.currentTPM)
	if newTPM < l.minTPM {
		newTPM = l.minTPM
	}
	if newTPM > l.maxTPM {
		newTPM = l.maxTPM
	}
	if newTPM == l.currentTPM {
		return
	}
	l.currentTPM = newTPM
	l.limiter.SetLimit(rate.Limit(newTPM / 60.0))
	l.limiter.SetBurst(int(newTPM))
}

// estimateTokens is a cheap character-count heuristic, grounded on the
// teacher's estimateTokens in the same ratelimit file.
func estimateTokens(messages []core.Message) int {
	chars := 0
	for _, m := range messages {
		chars += len(m.Content)
	}
	if chars <= 0 {
		return 500
	}
	tokens := chars / 3
	if tokens < 1 {
		tokens = 1
	}
	return tokens + 500
}
