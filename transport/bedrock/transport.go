// Package bedrock adapts the AWS Bedrock Converse streaming API to
// round.Transport. Request construction (system/conversation split, tool
// schema encoding) and the streaming event switch
// (ContentBlockStart/Delta/Stop, MessageStop, Metadata usage) are grounded
// on the teacher's features/model/bedrock/{client.go,stream.go}, dropping
// the ledgerSource/Temporal-ledger integration (this module has no
// workflow engine to re-verify a transcript against, see DESIGN.md) and
// the citation machinery (no equivalent concept in base spec §4.5's
// UnifiedDelta; reasoning text is forwarded as UnifiedDelta.Reasoning)
// while keeping the tool-name canonicalization map,
// since Bedrock's Converse API imposes its own naming restrictions on
// tool identifiers distinct from the ones this module uses internally.
package bedrock

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"regexp"
	"strings"
	"sync"

	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime/document"
	brtypes "github.com/aws/aws-sdk-go-v2/service/bedrockruntime/types"

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

// RuntimeClient captures the subset of the Bedrock runtime client this
// adapter uses, satisfied by either *bedrockruntime.Client or a mock.
type RuntimeClient interface {
	ConverseStream(ctx context.Context, params *bedrockruntime.ConverseStreamInput, optFns ...func(*bedrockruntime.Options)) (*bedrockruntime.ConverseStreamOutput, error)
}

// Options configures a Client's default model parameters.
type Options struct {
	DefaultModel string
	MaxTokens    int
	Temperature  float32

	// Limiter, when non-nil, throttles every Stream call.
	Limiter *AdaptiveRateLimiter
}

// Client implements round.Transport on top of AWS Bedrock Converse.
type Client struct {
	runtime RuntimeClient
	model   string
	maxTok  int
	temp    float32
	limiter *AdaptiveRateLimiter
}

// New builds a Client from a Bedrock runtime client and options.
func New(runtime RuntimeClient, opts Options) (*Client, error) {
	if runtime == nil {
		return nil, errors.New("bedrock: runtime client is required")
	}
	if opts.DefaultModel == "" {
		return nil, errors.New("bedrock: default model is required")
	}
	return &Client{runtime: runtime, model: opts.DefaultModel, maxTok: opts.MaxTokens, temp: opts.Temperature, limiter: opts.Limiter}, nil
}

// Stream implements round.Transport: it issues a ConverseStream call and
// returns a stream.Source draining the resulting events. toolSchemas not
// a canonical-to-provider tool name map is derived here because Bedrock
// requires tool names matching ^[a-zA-Z0-9_-]{1,64}$; names outside that
// pattern are sanitized before being sent and mapped back on receipt.
func (c *Client) Stream(ctx context.Context, messages []core.Message, toolSchemas []byte) (stream.Source, error) {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx, messages); err != nil {
			return nil, err
		}
	}
	input, nameMap, err := c.prepareRequest(messages, toolSchemas)
	if err != nil {
		return nil, err
	}
	output, err := c.runtime.ConverseStream(ctx, input)
	if err != nil {
		if c.limiter != nil {
			c.limiter.Observe(isThrottling(err))
		}
		return nil, fmt.Errorf("bedrock: converse_stream: %w", err)
	}
	if c.limiter != nil {
		c.limiter.Observe(false)
	}
	return newSource(ctx, output.GetStream(), nameMap), nil
}

func (c *Client) prepareRequest(messages []core.Message, toolSchemas []byte) (*bedrockruntime.ConverseStreamInput, map[string]string, error) {
	if len(messages) == 0 {
		return nil, nil, errors.New("bedrock: messages are required")
	}
	convMessages, system, err := encodeMessages(messages)
	if err != nil {
		return nil, nil, err
	}
	input := &bedrockruntime.ConverseStreamInput{
		ModelId:  &c.model,
		Messages: convMessages,
		System:   system,
	}
	cfg := &brtypes.InferenceConfiguration{}
	hasCfg := false
	if c.maxTok > 0 {
		v := int32(c.maxTok)
		cfg.MaxTokens = &v
		hasCfg = true
	}
	if c.temp > 0 {
		v := c.temp
		cfg.Temperature = &v
		hasCfg = true
	}
	if hasCfg {
		input.InferenceConfig = cfg
	}
	var nameMap map[string]string
	if len(toolSchemas) > 0 {
		toolConfig, m, err := decodeTools(toolSchemas)
		if err != nil {
			return nil, nil, err
		}
		input.ToolConfig = toolConfig
		nameMap = m
	}
	return input, nameMap, nil
}

func encodeMessages(messages []core.Message) ([]brtypes.Message, []brtypes.SystemContentBlock, error) {
	conversation := make([]brtypes.Message, 0, len(messages))
	system := make([]brtypes.SystemContentBlock, 0, 1)

	var pendingToolResults []brtypes.ContentBlock
	flush := func() {
		if len(pendingToolResults) == 0 {
			return
		}
		conversation = append(conversation, brtypes.Message{Role: brtypes.ConversationRoleUser, Content: pendingToolResults})
		pendingToolResults = nil
	}

	for _, m := range messages {
		switch m.Role {
		case core.RoleSystem:
			if m.Content != "" {
				system = append(system, &brtypes.SystemContentBlockMemberText{Value: m.Content})
			}
		case core.RoleTool:
			pendingToolResults = append(pendingToolResults, &brtypes.ContentBlockMemberToolResult{
				Value: brtypes.ToolResultBlock{
					ToolUseId: &m.ToolCallID,
					Content:   []brtypes.ToolResultContentBlock{&brtypes.ToolResultContentBlockMemberText{Value: m.Content}},
				},
			})
		case core.RoleUser:
			flush()
			if m.Content != "" {
				conversation = append(conversation, brtypes.Message{
					Role:    brtypes.ConversationRoleUser,
					Content: []brtypes.ContentBlock{&brtypes.ContentBlockMemberText{Value: m.Content}},
				})
			}
		case core.RoleAssistant:
			flush()
			blocks := make([]brtypes.ContentBlock, 0, 1+len(m.ToolCalls))
			if m.Content != "" {
				blocks = append(blocks, &brtypes.ContentBlockMemberText{Value: m.Content})
			}
			for _, tc := range m.ToolCalls {
				doc, err := argumentsToDocument(tc.Arguments)
				if err != nil {
					return nil, nil, err
				}
				name := sanitizeToolName(tc.Name)
				blocks = append(blocks, &brtypes.ContentBlockMemberToolUse{
					Value: brtypes.ToolUseBlock{ToolUseId: &tc.ID, Name: &name, Input: doc},
				})
			}
			if len(blocks) > 0 {
				conversation = append(conversation, brtypes.Message{Role: brtypes.ConversationRoleAssistant, Content: blocks})
			}
		default:
			return nil, nil, fmt.Errorf("bedrock: unsupported message role %q", m.Role)
		}
	}
	flush()
	if len(conversation) == 0 {
		return nil, nil, errors.New("bedrock: at least one user/assistant message is required")
	}
	return conversation, system, nil
}

func decodeTools(raw []byte) (*brtypes.ToolConfiguration, map[string]string, error) {
	var defs []ToolDef
	if err := json.Unmarshal(raw, &defs); err != nil {
		return nil, nil, fmt.Errorf("bedrock: decode tool schemas: %w", err)
	}
	tools := make([]brtypes.Tool, 0, len(defs))
	nameMap := make(map[string]string, len(defs))
	for _, def := range defs {
		var schema map[string]any
		if len(def.Schema) > 0 {
			if err := json.Unmarshal(def.Schema, &schema); err != nil {
				return nil, nil, fmt.Errorf("bedrock: tool %q schema: %w", def.Name, err)
			}
		}
		provName := sanitizeToolName(def.Name)
		nameMap[provName] = def.Name
		name := provName
		desc := def.Description
		tools = append(tools, &brtypes.ToolMemberToolSpec{
			Value: brtypes.ToolSpecification{
				Name:        &name,
				Description: &desc,
				InputSchema: &brtypes.ToolInputSchemaMemberJson{Value: document.NewLazyDocument(schema)},
			},
		})
	}
	return &brtypes.ToolConfiguration{Tools: tools}, nameMap, nil
}

var invalidToolNameChar = regexp.MustCompile(`[^a-zA-Z0-9_-]`)

func sanitizeToolName(name string) string {
	sanitized := invalidToolNameChar.ReplaceAllString(name, "_")
	if len(sanitized) > 64 {
		sanitized = sanitized[:64]
	}
	return sanitized
}

func argumentsToDocument(args map[string]any) (document.Interface, error) {
	if args == nil {
		args = map[string]any{}
	}
	return document.NewLazyDocument(args), nil
}

func isThrottling(err error) bool {
	var throttled *brtypes.ThrottlingException
	return errors.As(err, &throttled)
}

// source adapts a Bedrock ConverseStream event stream to stream.Source.
type source struct {
	ctx    context.Context
	cancel context.CancelFunc
	stream *bedrockruntime.ConverseStreamEventStream

	deltas chan stream.UnifiedDelta

	errMu sync.Mutex
	err   error

	nameMap map[string]string
}

func newSource(ctx context.Context, es *bedrockruntime.ConverseStreamEventStream, nameMap map[string]string) *source {
	cctx, cancel := context.WithCancel(ctx)
	s := &source{ctx: cctx, cancel: cancel, stream: es, deltas: make(chan stream.UnifiedDelta, 16), nameMap: nameMap}
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
	return s.stream.Close()
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

type toolBuffer struct {
	id, name  string
	fragments []string
}

func (s *source) run() {
	defer close(s.deltas)
	defer s.stream.Close()

	toolBlocks := make(map[int32]*toolBuffer)
	events := s.stream.Events()

	for {
		select {
		case <-s.ctx.Done():
			s.setErr(s.ctx.Err())
			return
		case ev, ok := <-events:
			if !ok {
				if err := s.stream.Err(); err != nil {
					s.setErr(err)
				}
				return
			}
			if !s.handle(ev, toolBlocks) {
				return
			}
		}
	}
}

func (s *source) handle(event brtypes.ConverseStreamOutput, toolBlocks map[int32]*toolBuffer) bool {
	switch ev := event.(type) {
	case *brtypes.ConverseStreamOutputMemberContentBlockStart:
		idx := int32Value(ev.Value.ContentBlockIndex)
		if start, ok := ev.Value.Start.(*brtypes.ContentBlockStartMemberToolUse); ok {
			tb := &toolBuffer{id: stringValue(start.Value.ToolUseId)}
			provName := stringValue(start.Value.Name)
			name := provName
			if canonical, ok := s.nameMap[provName]; ok {
				name = canonical
			}
			tb.name = name
			toolBlocks[idx] = tb
			return s.emit(stream.UnifiedDelta{ToolCallFragment: &stream.ToolCallFragment{Index: int(idx), ID: tb.id, Name: tb.name}})
		}
		return true
	case *brtypes.ConverseStreamOutputMemberContentBlockDelta:
		idx := int32Value(ev.Value.ContentBlockIndex)
		switch d := ev.Value.Delta.(type) {
		case *brtypes.ContentBlockDeltaMemberText:
			if d.Value == "" {
				return true
			}
			return s.emit(stream.UnifiedDelta{Text: d.Value})
		case *brtypes.ContentBlockDeltaMemberReasoningContent:
			if rc, ok := d.Value.(*brtypes.ReasoningContentBlockDeltaMemberText); ok && rc.Value != "" {
				return s.emit(stream.UnifiedDelta{Reasoning: rc.Value})
			}
			return true
		case *brtypes.ContentBlockDeltaMemberToolUse:
			if tb := toolBlocks[idx]; tb != nil && d.Value.Input != nil {
				return s.emit(stream.UnifiedDelta{ToolCallFragment: &stream.ToolCallFragment{Index: int(idx), ArgumentsPartial: *d.Value.Input}})
			}
			return true
		}
		return true
	case *brtypes.ConverseStreamOutputMemberContentBlockStop:
		idx := int32Value(ev.Value.ContentBlockIndex)
		delete(toolBlocks, idx)
		return true
	case *brtypes.ConverseStreamOutputMemberMessageStop:
		finish := mapStopReason(string(ev.Value.StopReason))
		s.emit(stream.UnifiedDelta{FinishReason: finish})
		return false
	case *brtypes.ConverseStreamOutputMemberMetadata:
		if ev.Value.Usage == nil {
			return true
		}
		usage := core.TokenUsage{
			PromptTokens:     int32PtrValue(ev.Value.Usage.InputTokens),
			CompletionTokens: int32PtrValue(ev.Value.Usage.OutputTokens),
			TotalTokens:      int32PtrValue(ev.Value.Usage.TotalTokens),
			CachedTokens:     int32PtrValue(ev.Value.Usage.CacheReadInputTokens),
		}
		return s.emit(stream.UnifiedDelta{Usage: &usage})
	default:
		return true
	}
}

func int32Value(ptr *int32) int32 {
	if ptr == nil {
		return 0
	}
	return *ptr
}

func int32PtrValue(ptr *int32) int {
	if ptr == nil {
		return 0
	}
	return int(*ptr)
}

func stringValue(ptr *string) string {
	if ptr == nil {
		return ""
	}
	return *ptr
}

func mapStopReason(reason string) string {
	switch strings.ToLower(reason) {
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
