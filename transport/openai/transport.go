// Package openai adapts the OpenAI Chat Completions streaming API to
// round.Transport. The client-interface-for-testability and
// message/tool-encoding shape are grounded on the teacher's
// features/model/openai/client.go, generalized from its Complete-only
// (non-streaming) adapter to a streaming one, since RoundExecutor needs a
// delta stream rather than a single response. The streaming event surface
// itself (ChatCompletionChunk deltas) has no teacher equivalent in this
// corpus (the teacher's OpenAI adapter reports Stream as unsupported) and
// is built from this module's own best understanding of
// github.com/openai/openai-go's streaming API — see DESIGN.md for the
// confidence caveat on this one file.
package openai

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/packages/ssestream"

	"github.com/goadesign/agentic-core/agentic/core"
	"github.com/goadesign/agentic-core/agentic/stream"
)

// ToolDef is the wire shape round.Transport's opaque toolSchemas argument
// is expected to decode into: a JSON array of these.
type ToolDef struct {
	Name        string          `json:"name"`
	Description string          `json:"description"`
	Schema      json.RawMessage `json:"schema"`
}

// ChatClient captures the subset of the openai-go client this adapter
// uses, satisfied by either a real client or a mock in tests.
type ChatClient interface {
	NewStreaming(ctx context.Context, params openai.ChatCompletionNewParams, opts ...option.RequestOption) *ssestream.Stream[openai.ChatCompletionChunk]
}

// Options configures a Client's default model parameters.
type Options struct {
	DefaultModel string
	MaxTokens    int
	Temperature  float64
}

// Client implements round.Transport on top of OpenAI Chat Completions.
type Client struct {
	chat  ChatClient
	model string
	maxTok int
	temp  float64
}

// New builds a Client from an openai-go chat-completions client and
// options.
func New(chat ChatClient, opts Options) (*Client, error) {
	if chat == nil {
		return nil, errors.New("openai: chat client is required")
	}
	modelID := strings.TrimSpace(opts.DefaultModel)
	if modelID == "" {
		return nil, errors.New("openai: default model is required")
	}
	return &Client{chat: chat, model: modelID, maxTok: opts.MaxTokens, temp: opts.Temperature}, nil
}

// NewFromAPIKey constructs a Client using the default openai-go HTTP
// client, reading OPENAI_API_KEY and related defaults from env.
func NewFromAPIKey(apiKey, defaultModel string) (*Client, error) {
	if strings.TrimSpace(apiKey) == "" {
		return nil, errors.New("openai: api key is required")
	}
	cli := openai.NewClient(option.WithAPIKey(apiKey))
	return New(&cli.Chat.Completions, Options{DefaultModel: defaultModel})
}

// Stream implements round.Transport: it issues a streaming chat completion
// request and returns a stream.Source draining the resulting chunks.
func (c *Client) Stream(ctx context.Context, messages []core.Message, toolSchemas []byte) (stream.Source, error) {
	params, err := c.prepareRequest(messages, toolSchemas)
	if err != nil {
		return nil, err
	}
	sse := c.chat.NewStreaming(ctx, *params)
	if err := sse.Err(); err != nil {
		return nil, fmt.Errorf("openai: chat completions stream: %w", err)
	}
	return newSource(ctx, sse), nil
}

func (c *Client) prepareRequest(messages []core.Message, toolSchemas []byte) (*openai.ChatCompletionNewParams, error) {
	if len(messages) == 0 {
		return nil, errors.New("openai: messages are required")
	}
	encoded, err := encodeMessages(messages)
	if err != nil {
		return nil, err
	}
	params := &openai.ChatCompletionNewParams{
		Model:    c.model,
		Messages: encoded,
	}
	if c.maxTok > 0 {
		params.MaxTokens = openai.Int(int64(c.maxTok))
	}
	if c.temp > 0 {
		params.Temperature = openai.Float(c.temp)
	}
	if len(toolSchemas) > 0 {
		tools, err := decodeTools(toolSchemas)
		if err != nil {
			return nil, err
		}
		params.Tools = tools
	}
	return params, nil
}

func encodeMessages(messages []core.Message) ([]openai.ChatCompletionMessageParamUnion, error) {
	out := make([]openai.ChatCompletionMessageParamUnion, 0, len(messages))
	for _, m := range messages {
		switch m.Role {
		case core.RoleSystem:
			out = append(out, openai.SystemMessage(m.Content))
		case core.RoleUser:
			out = append(out, openai.UserMessage(m.Content))
		case core.RoleAssistant:
			if len(m.ToolCalls) == 0 {
				out = append(out, openai.AssistantMessage(m.Content))
				continue
			}
			calls := make([]openai.ChatCompletionMessageToolCallParam, 0, len(m.ToolCalls))
			for _, tc := range m.ToolCalls {
				args, _ := json.Marshal(tc.Arguments)
				calls = append(calls, openai.ChatCompletionMessageToolCallParam{
					ID: tc.ID,
					Function: openai.ChatCompletionMessageToolCallFunctionParam{
						Name:      tc.Name,
						Arguments: string(args),
					},
				})
			}
			asst := openai.ChatCompletionAssistantMessageParam{ToolCalls: calls}
			if m.Content != "" {
				asst.Content.OfString = openai.String(m.Content)
			}
			out = append(out, openai.ChatCompletionMessageParamUnion{OfAssistant: &asst})
		case core.RoleTool:
			out = append(out, openai.ToolMessage(m.Content, m.ToolCallID))
		default:
			return nil, fmt.Errorf("openai: unsupported message role %q", m.Role)
		}
	}
	if len(out) == 0 {
		return nil, errors.New("openai: at least one message is required")
	}
	return out, nil
}

func decodeTools(raw []byte) ([]openai.ChatCompletionToolParam, error) {
	var defs []ToolDef
	if err := json.Unmarshal(raw, &defs); err != nil {
		return nil, fmt.Errorf("openai: decode tool schemas: %w", err)
	}
	out := make([]openai.ChatCompletionToolParam, 0, len(defs))
	for _, def := range defs {
		var schema map[string]any
		if len(def.Schema) > 0 {
			if err := json.Unmarshal(def.Schema, &schema); err != nil {
				return nil, fmt.Errorf("openai: tool %q schema: %w", def.Name, err)
			}
		}
		out = append(out, openai.ChatCompletionToolParam{
			Function: openai.FunctionDefinitionParam{
				Name:        def.Name,
				Description: openai.String(def.Description),
				Parameters:  schema,
			},
		})
	}
	return out, nil
}

// source adapts an OpenAI chat-completions SSE stream to stream.Source.
type source struct {
	ctx    context.Context
	cancel context.CancelFunc
	sse    *ssestream.Stream[openai.ChatCompletionChunk]
	deltas chan stream.UnifiedDelta
}

func newSource(ctx context.Context, sse *ssestream.Stream[openai.ChatCompletionChunk]) *source {
	cctx, cancel := context.WithCancel(ctx)
	s := &source{ctx: cctx, cancel: cancel, sse: sse, deltas: make(chan stream.UnifiedDelta, 16)}
	go s.run()
	return s
}

func (s *source) Recv(ctx context.Context) (stream.UnifiedDelta, error) {
	select {
	case d, ok := <-s.deltas:
		if ok {
			return d, nil
		}
		if err := s.sse.Err(); err != nil {
			return stream.UnifiedDelta{}, err
		}
		return stream.UnifiedDelta{}, io.EOF
	case <-ctx.Done():
		return stream.UnifiedDelta{}, ctx.Err()
	}
}

func (s *source) Close() error {
	s.cancel()
	return s.sse.Close()
}

func (s *source) emit(d stream.UnifiedDelta) bool {
	select {
	case s.deltas <- d:
		return true
	case <-s.ctx.Done():
		return false
	}
}

func (s *source) run() {
	defer close(s.deltas)
	for s.sse.Next() {
		chunk := s.sse.Current()
		if len(chunk.Choices) == 0 {
			continue
		}
		choice := chunk.Choices[0]
		if choice.Delta.Content != "" {
			if !s.emit(stream.UnifiedDelta{Text: choice.Delta.Content}) {
				return
			}
		}
		for _, tc := range choice.Delta.ToolCalls {
			frag := &stream.ToolCallFragment{Index: int(tc.Index)}
			if tc.ID != "" {
				frag.ID = tc.ID
			}
			if tc.Function.Name != "" {
				frag.Name = tc.Function.Name
			}
			if tc.Function.Arguments != "" {
				frag.ArgumentsPartial = tc.Function.Arguments
			}
			if !s.emit(stream.UnifiedDelta{ToolCallFragment: frag}) {
				return
			}
		}
		if choice.FinishReason != "" {
			usage := core.TokenUsage{
				PromptTokens:     int(chunk.Usage.PromptTokens),
				CompletionTokens: int(chunk.Usage.CompletionTokens),
				TotalTokens:      int(chunk.Usage.TotalTokens),
			}
			if !s.emit(stream.UnifiedDelta{Usage: &usage, FinishReason: mapFinishReason(choice.FinishReason)}) {
				return
			}
			return
		}
	}
}

func mapFinishReason(reason string) string {
	switch reason {
	case "tool_calls":
		return "tool_calls"
	case "length":
		return "length"
	case "stop":
		return "stop"
	default:
		return "stop"
	}
}
