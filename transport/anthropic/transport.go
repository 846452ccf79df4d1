// Package anthropic adapts the Anthropic Claude Messages streaming API to
// round.Transport, the narrow LLM boundary Agentic Core's RoundExecutor
// consumes. Request construction (message/tool encoding) and the SSE event
// switch (ContentBlockStart/Delta/Stop, MessageDelta, MessageStop) are
// grounded on the teacher's features/model/anthropic/{client.go,stream.go},
// simplified from goa-ai's provider-agnostic model.Chunk/model.Message
// shape down directly to agentic/stream.UnifiedDelta — this module has no
// intermediate provider-agnostic wire type of its own, so the adapter
// targets UnifiedDelta's fields directly instead of routing through one.
package anthropic

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sync"

	sdk "github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/anthropics/anthropic-sdk-go/packages/ssestream"

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

// MessagesClient captures the subset of the Anthropic SDK client this
// adapter uses, satisfied by either a real *sdk.MessageService or a mock.
type MessagesClient interface {
	NewStreaming(ctx context.Context, body sdk.MessageNewParams, opts ...option.RequestOption) *ssestream.Stream[sdk.MessageStreamEventUnion]
}

// Options configures a Client's default model parameters.
type Options struct {
	DefaultModel string
	MaxTokens    int
	Temperature  float64
}

// Client implements round.Transport on top of Anthropic Claude Messages.
type Client struct {
	msg   MessagesClient
	model string
	maxTok int
	temp  float64
}

// New builds a Client from an Anthropic Messages client and options.
func New(msg MessagesClient, opts Options) (*Client, error) {
	if msg == nil {
		return nil, errors.New("anthropic: messages client is required")
	}
	if opts.DefaultModel == "" {
		return nil, errors.New("anthropic: default model is required")
	}
	return &Client{msg: msg, model: opts.DefaultModel, maxTok: opts.MaxTokens, temp: opts.Temperature}, nil
}

// NewFromAPIKey constructs a Client using the default Anthropic HTTP
// client, reading ANTHROPIC_API_KEY and related defaults from env.
func NewFromAPIKey(apiKey, defaultModel string) (*Client, error) {
	if apiKey == "" {
		return nil, errors.New("anthropic: api key is required")
	}
	ac := sdk.NewClient(option.WithAPIKey(apiKey))
	return New(&ac.Messages, Options{DefaultModel: defaultModel})
}

// Stream implements round.Transport: it issues a Messages.NewStreaming
// call and returns a stream.Source draining the resulting SSE events.
func (c *Client) Stream(ctx context.Context, messages []core.Message, toolSchemas []byte) (stream.Source, error) {
	params, err := c.prepareRequest(messages, toolSchemas)
	if err != nil {
		return nil, err
	}
	sseStream := c.msg.NewStreaming(ctx, *params)
	if err := sseStream.Err(); err != nil {
		return nil, fmt.Errorf("anthropic: messages.new stream: %w", err)
	}
	return newSource(ctx, sseStream), nil
}

func (c *Client) prepareRequest(messages []core.Message, toolSchemas []byte) (*sdk.MessageNewParams, error) {
	if len(messages) == 0 {
		return nil, errors.New("anthropic: messages are required")
	}
	maxTokens := c.maxTok
	if maxTokens <= 0 {
		return nil, errors.New("anthropic: max_tokens must be positive")
	}
	msgs, system, err := encodeMessages(messages)
	if err != nil {
		return nil, err
	}
	params := sdk.MessageNewParams{
		MaxTokens: int64(maxTokens),
		Messages:  msgs,
		Model:     sdk.Model(c.model),
	}
	if len(system) > 0 {
		params.System = system
	}
	if c.temp > 0 {
		params.Temperature = sdk.Float(c.temp)
	}
	if len(toolSchemas) > 0 {
		tools, err := decodeTools(toolSchemas)
		if err != nil {
			return nil, err
		}
		params.Tools = tools
	}
	return &params, nil
}

func encodeMessages(messages []core.Message) ([]sdk.MessageParam, []sdk.TextBlockParam, error) {
	conversation := make([]sdk.MessageParam, 0, len(messages))
	system := make([]sdk.TextBlockParam, 0, 1)

	// pendingToolResults buffers tool-role messages so consecutive ones
	// collapse into a single user message of tool_result blocks, matching
	// Anthropic's one-tool-result-message-per-turn expectation.
	var pendingToolResults []sdk.ContentBlockParamUnion
	flushToolResults := func() {
		if len(pendingToolResults) == 0 {
			return
		}
		conversation = append(conversation, sdk.NewUserMessage(pendingToolResults...))
		pendingToolResults = nil
	}

	for _, m := range messages {
		switch m.Role {
		case core.RoleSystem:
			if m.Content != "" {
				system = append(system, sdk.TextBlockParam{Text: m.Content})
			}
		case core.RoleTool:
			pendingToolResults = append(pendingToolResults, sdk.NewToolResultBlock(m.ToolCallID, m.Content, false))
		case core.RoleUser:
			flushToolResults()
			if m.Content != "" {
				conversation = append(conversation, sdk.NewUserMessage(sdk.NewTextBlock(m.Content)))
			}
		case core.RoleAssistant:
			flushToolResults()
			blocks := make([]sdk.ContentBlockParamUnion, 0, 1+len(m.ToolCalls))
			if m.Content != "" {
				blocks = append(blocks, sdk.NewTextBlock(m.Content))
			}
			for _, tc := range m.ToolCalls {
				blocks = append(blocks, sdk.NewToolUseBlock(tc.ID, tc.Arguments, tc.Name))
			}
			if len(blocks) > 0 {
				conversation = append(conversation, sdk.NewAssistantMessage(blocks...))
			}
		default:
			return nil, nil, fmt.Errorf("anthropic: unsupported message role %q", m.Role)
		}
	}
	flushToolResults()
	if len(conversation) == 0 {
		return nil, nil, errors.New("anthropic: at least one user/assistant message is required")
	}
	return conversation, system, nil
}

func decodeTools(raw []byte) ([]sdk.ToolUnionParam, error) {
	var defs []ToolDef
	if err := json.Unmarshal(raw, &defs); err != nil {
		return nil, fmt.Errorf("anthropic: decode tool schemas: %w", err)
	}
	out := make([]sdk.ToolUnionParam, 0, len(defs))
	for _, def := range defs {
		var schemaDoc map[string]any
		if len(def.Schema) > 0 {
			if err := json.Unmarshal(def.Schema, &schemaDoc); err != nil {
				return nil, fmt.Errorf("anthropic: tool %q schema: %w", def.Name, err)
			}
		}
		u := sdk.ToolUnionParamOfTool(schemaToInputSchema(schemaDoc), def.Name)
		if u.OfTool != nil {
			u.OfTool.Description = sdk.String(def.Description)
		}
		out = append(out, u)
	}
	return out, nil
}

func schemaToInputSchema(doc map[string]any) sdk.ToolInputSchemaParam {
	props, _ := doc["properties"].(map[string]any)
	var required []string
	if r, ok := doc["required"].([]any); ok {
		for _, v := range r {
			if s, ok := v.(string); ok {
				required = append(required, s)
			}
		}
	}
	return sdk.ToolInputSchemaParam{Properties: props, Required: required}
}

// source adapts an Anthropic Messages SSE stream to stream.Source: a
// background goroutine pumps sseStream.Next()/Current() into a channel of
// stream.UnifiedDelta, converting ContentBlockStart/Delta/Stop and
// MessageDelta/MessageStop events, grounded on anthropicStreamer.run and
// anthropicChunkProcessor.Handle (features/model/anthropic/stream.go).
type source struct {
	ctx    context.Context
	cancel context.CancelFunc
	sse    *ssestream.Stream[sdk.MessageStreamEventUnion]

	deltas chan stream.UnifiedDelta

	errMu sync.Mutex
	err   error
}

func newSource(ctx context.Context, sse *ssestream.Stream[sdk.MessageStreamEventUnion]) *source {
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
		s.errMu.Lock()
		err := s.err
		s.errMu.Unlock()
		if err != nil {
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

func (s *source) setErr(err error) {
	s.errMu.Lock()
	if s.err == nil {
		s.err = err
	}
	s.errMu.Unlock()
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

	toolIndex := make(map[int64]string) // content block index -> tool call id
	var stopReason string

	for s.sse.Next() {
		switch ev := s.sse.Current().AsAny().(type) {
		case sdk.ContentBlockStartEvent:
			if toolUse, ok := ev.ContentBlock.AsAny().(sdk.ToolUseBlock); ok {
				toolIndex[ev.Index] = toolUse.ID
				if !s.emit(stream.UnifiedDelta{ToolCallFragment: &stream.ToolCallFragment{
					Index: int(ev.Index), ID: toolUse.ID, Name: toolUse.Name,
				}}) {
					return
				}
			}
		case sdk.ContentBlockDeltaEvent:
			switch d := ev.Delta.AsAny().(type) {
			case sdk.TextDelta:
				if d.Text != "" && !s.emit(stream.UnifiedDelta{Text: d.Text}) {
					return
				}
			case sdk.ThinkingDelta:
				if d.Thinking != "" && !s.emit(stream.UnifiedDelta{Reasoning: d.Thinking}) {
					return
				}
			case sdk.InputJSONDelta:
				if d.PartialJSON != "" {
					if !s.emit(stream.UnifiedDelta{ToolCallFragment: &stream.ToolCallFragment{
						Index: int(ev.Index), ArgumentsPartial: d.PartialJSON,
					}}) {
						return
					}
				}
			}
		case sdk.MessageDeltaEvent:
			stopReason = string(ev.Delta.StopReason)
			usage := core.TokenUsage{
				PromptTokens:     int(ev.Usage.InputTokens),
				CompletionTokens: int(ev.Usage.OutputTokens),
				TotalTokens:      int(ev.Usage.InputTokens + ev.Usage.OutputTokens),
				CachedTokens:     int(ev.Usage.CacheReadInputTokens),
			}
			if !s.emit(stream.UnifiedDelta{Usage: &usage}) {
				return
			}
		case sdk.MessageStopEvent:
			finish := mapStopReason(stopReason)
			s.emit(stream.UnifiedDelta{FinishReason: finish})
			return
		}
	}
	if err := s.sse.Err(); err != nil {
		s.setErr(err)
	}
}

func mapStopReason(anthropicReason string) string {
	switch anthropicReason {
	case "end_turn":
		return "end_turn"
	case "tool_use":
		return "tool_calls"
	case "max_tokens":
		return "length"
	case "stop_sequence":
		return "stop"
	default:
		return "stop"
	}
}
