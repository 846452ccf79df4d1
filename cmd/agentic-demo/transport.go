package main

import (
	"context"
	"io"
	"sync"

	"github.com/goadesign/agentic-core/agentic/core"
	"github.com/goadesign/agentic-core/agentic/stream"
)

// stubTransport is an in-memory round.Transport that echoes the latest
// user message back as a canned assistant reply, grounded on the
// teacher's cmd/demo stubPlanner: a zero-network stand-in so the demo
// runs end to end without a provider API key. Swap it for
// transport/anthropic.NewFromAPIKey (or the openai/bedrock equivalents)
// to drive a real model.
type stubTransport struct{}

func (stubTransport) Stream(ctx context.Context, messages []core.Message, toolSchemas []byte) (stream.Source, error) {
	reply := "hello from the stub transport"
	for i := len(messages) - 1; i >= 0; i-- {
		if messages[i].Role == core.RoleUser {
			reply = "you said: " + messages[i].Content
			break
		}
	}
	return &stubSource{reply: reply}, nil
}

// stubSource yields the canned reply as one text delta followed by a
// terminal delta, mirroring the shape every real transport source emits.
type stubSource struct {
	mu    sync.Mutex
	reply string
	step  int
}

func (s *stubSource) Recv(ctx context.Context) (stream.UnifiedDelta, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	switch s.step {
	case 0:
		s.step++
		return stream.UnifiedDelta{Text: s.reply}, nil
	case 1:
		s.step++
		return stream.UnifiedDelta{
			FinishReason: "end_turn",
			Usage:        &core.TokenUsage{PromptTokens: len(s.reply) / 4, CompletionTokens: len(s.reply) / 4},
		}, nil
	default:
		return stream.UnifiedDelta{}, io.EOF
	}
}

func (s *stubSource) Close() error { return nil }
