package engine

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
)

// anthropicAdapter is the content-block backend. It is the only backend
// with ephemeral prompt caching, so cache_control annotations on messages
// and tools are materialized here and ignored elsewhere.
type anthropicAdapter struct {
	cfg    Config
	client *anthropic.Client
	log    *slog.Logger
	ready  bool
}

func newAnthropicAdapter(cfg Config) *anthropicAdapter {
	return &anthropicAdapter{cfg: cfg, log: slog.Default()}
}

func (a *anthropicAdapter) Backend() Backend { return BackendAnthropic }
func (a *anthropicAdapter) Ready() bool      { return a.ready }

func (a *anthropicAdapter) Initialize(ctx context.Context) error {
	if a.cfg.AnthropicAPIKey == "" {
		return &AuthError{Backend: BackendAnthropic, Reason: "missing API key"}
	}
	opts := []option.RequestOption{option.WithAPIKey(a.cfg.AnthropicAPIKey)}
	if a.cfg.AnthropicBaseURL != "" {
		opts = append(opts, option.WithBaseURL(a.cfg.AnthropicBaseURL))
	}
	if a.cfg.HTTPClient != nil {
		opts = append(opts, option.WithHTTPClient(a.cfg.HTTPClient))
	}
	client := anthropic.NewClient(opts...)

	if _, err := client.Models.List(ctx, anthropic.ModelListParams{Limit: anthropic.Int(1)}); err != nil {
		return &BackendError{Backend: BackendAnthropic, Op: "connectivity probe", Err: err}
	}
	a.client = &client
	a.ready = true
	return nil
}

func (a *anthropicAdapter) SendMessage(ctx context.Context, msgs []Message) (*FunctionCallResponse, error) {
	return a.send(ctx, msgs, nil)
}

func (a *anthropicAdapter) SendMessageWithTools(ctx context.Context, msgs []Message, tools []ToolSchema) (*FunctionCallResponse, error) {
	return a.send(ctx, msgs, tools)
}

func (a *anthropicAdapter) StreamMessage(ctx context.Context, msgs []Message, onChunk ChunkFunc) (*FunctionCallResponse, error) {
	return a.stream(ctx, msgs, nil, onChunk)
}

func (a *anthropicAdapter) StreamMessageWithTools(ctx context.Context, msgs []Message, tools []ToolSchema, onChunk ChunkFunc) (*FunctionCallResponse, error) {
	return a.stream(ctx, msgs, tools, onChunk)
}

func (a *anthropicAdapter) send(ctx context.Context, msgs []Message, tools []ToolSchema) (*FunctionCallResponse, error) {
	params, err := a.buildParams(msgs, tools)
	if err != nil {
		return nil, err
	}
	resp, err := a.client.Messages.New(ctx, params)
	if err != nil {
		return nil, &BackendError{Backend: BackendAnthropic, Op: "messages", Err: err}
	}
	return fromAnthropicMessage(resp), nil
}

func (a *anthropicAdapter) buildParams(msgs []Message, tools []ToolSchema) (anthropic.MessageNewParams, error) {
	system, rest := splitSystem(msgs)
	wire, err := toAnthropicMessages(rest)
	if err != nil {
		return anthropic.MessageNewParams{}, err
	}

	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(a.cfg.Model),
		Messages:  wire,
		MaxTokens: int64(a.cfg.maxTokens()),
	}
	if a.cfg.Temperature != nil {
		params.Temperature = anthropic.Float(float64(*a.cfg.Temperature))
	}
	// No first-class system role: the system message travels in its own
	// top-level field, never inline among the turns.
	if system != nil {
		block := anthropic.TextBlockParam{Text: system.Content}
		if system.CacheControl != nil {
			block.CacheControl = anthropic.CacheControlEphemeralParam{
				TTL: anthropic.CacheControlEphemeralTTL(system.CacheControl.TTL),
			}
		}
		params.System = []anthropic.TextBlockParam{block}
	}
	if len(tools) > 0 {
		params.Tools = ToAnthropicTools(tools)
	}
	return params, nil
}

// toAnthropicMessages converts canonical messages to content-block params.
// Tool results become user messages wrapping a tool_result block keyed by
// the call id; assistant tool calls become tool_use blocks.
func toAnthropicMessages(msgs []Message) ([]anthropic.MessageParam, error) {
	if err := validateToolCallIDs(msgs); err != nil {
		return nil, err
	}
	out := make([]anthropic.MessageParam, 0, len(msgs))
	for _, m := range msgs {
		switch m.Role {
		case RoleUser:
			block := anthropic.NewTextBlock(m.Content)
			if m.CacheControl != nil {
				block.OfText.CacheControl = anthropic.CacheControlEphemeralParam{
					TTL: anthropic.CacheControlEphemeralTTL(m.CacheControl.TTL),
				}
			}
			out = append(out, anthropic.NewUserMessage(block))
		case RoleTool:
			out = append(out, anthropic.NewUserMessage(
				anthropic.NewToolResultBlock(m.ToolCallID, m.Content, false),
			))
		case RoleAssistant:
			blocks := make([]anthropic.ContentBlockParamUnion, 0, 1+len(m.ToolCalls))
			if m.Content != "" {
				blocks = append(blocks, anthropic.NewTextBlock(m.Content))
			}
			for _, tc := range m.ToolCalls {
				input := json.RawMessage(tc.Arguments)
				if tc.Arguments == "" {
					input = json.RawMessage("{}")
				}
				blocks = append(blocks, anthropic.ContentBlockParamUnion{
					OfToolUse: &anthropic.ToolUseBlockParam{
						ID:    tc.ID,
						Name:  tc.Name,
						Input: input,
					},
				})
			}
			out = append(out, anthropic.NewAssistantMessage(blocks...))
		}
	}
	return out, nil
}

func fromAnthropicMessage(resp *anthropic.Message) *FunctionCallResponse {
	out := &FunctionCallResponse{
		FinishReason: normalizeAnthropicStop(resp.StopReason),
		Usage:        fromAnthropicUsage(resp.Usage),
	}
	for _, block := range resp.Content {
		switch block.Type {
		case "text":
			if out.Content != "" {
				out.Content += "\n"
			}
			out.Content += block.AsText().Text
		case "tool_use":
			tu := block.AsToolUse()
			out.ToolCalls = append(out.ToolCalls, ToolCall{
				ID:        tu.ID,
				Name:      tu.Name,
				Arguments: string(tu.Input),
			})
		}
	}
	return out
}

func fromAnthropicUsage(u anthropic.Usage) *Usage {
	out := &Usage{
		PromptTokens:     int(u.InputTokens),
		CompletionTokens: int(u.OutputTokens),
		TotalTokens:      int(u.InputTokens + u.OutputTokens),
	}
	if u.CacheCreationInputTokens > 0 {
		n := int(u.CacheCreationInputTokens)
		out.CacheCreationTokens = &n
	}
	if u.CacheReadInputTokens > 0 {
		n := int(u.CacheReadInputTokens)
		out.CacheReadTokens = &n
	}
	return out
}

func normalizeAnthropicStop(reason anthropic.StopReason) string {
	switch reason {
	case anthropic.StopReasonToolUse:
		return FinishToolCalls
	case anthropic.StopReasonMaxTokens:
		return FinishLength
	default:
		return FinishStop
	}
}
