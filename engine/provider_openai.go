package engine

import (
	"context"
	"log/slog"
	"strings"

	openai "github.com/sashabaranov/go-openai"
)

// openAIAdapter is the structured, delta-streaming backend.
type openAIAdapter struct {
	cfg    Config
	client *openai.Client
	log    *slog.Logger
	ready  bool
}

func newOpenAIAdapter(cfg Config) *openAIAdapter {
	return &openAIAdapter{cfg: cfg, log: slog.Default()}
}

func (a *openAIAdapter) Backend() Backend { return BackendOpenAI }
func (a *openAIAdapter) Ready() bool      { return a.ready }

// Initialize validates the credential and performs one low-cost
// connectivity probe. On any failure the adapter stays Uninitialized.
func (a *openAIAdapter) Initialize(ctx context.Context) error {
	if a.cfg.OpenAIAPIKey == "" {
		return &AuthError{Backend: BackendOpenAI, Reason: "missing API key"}
	}
	cc := openai.DefaultConfig(a.cfg.OpenAIAPIKey)
	if a.cfg.OpenAIBaseURL != "" {
		cc.BaseURL = a.cfg.OpenAIBaseURL
	}
	if a.cfg.HTTPClient != nil {
		cc.HTTPClient = a.cfg.HTTPClient
	}
	client := openai.NewClientWithConfig(cc)

	if _, err := client.ListModels(ctx); err != nil {
		return &BackendError{Backend: BackendOpenAI, Op: "connectivity probe", Err: err}
	}
	a.client = client
	a.ready = true
	return nil
}

func (a *openAIAdapter) SendMessage(ctx context.Context, msgs []Message) (*FunctionCallResponse, error) {
	return a.send(ctx, msgs, nil)
}

func (a *openAIAdapter) SendMessageWithTools(ctx context.Context, msgs []Message, tools []ToolSchema) (*FunctionCallResponse, error) {
	return a.send(ctx, msgs, tools)
}

func (a *openAIAdapter) StreamMessage(ctx context.Context, msgs []Message, onChunk ChunkFunc) (*FunctionCallResponse, error) {
	return a.stream(ctx, msgs, nil, onChunk)
}

func (a *openAIAdapter) StreamMessageWithTools(ctx context.Context, msgs []Message, tools []ToolSchema, onChunk ChunkFunc) (*FunctionCallResponse, error) {
	return a.stream(ctx, msgs, tools, onChunk)
}

func (a *openAIAdapter) send(ctx context.Context, msgs []Message, tools []ToolSchema) (*FunctionCallResponse, error) {
	req, err := a.buildRequest(msgs, tools, false)
	if err != nil {
		return nil, err
	}

	// Reasoning-eligible models get the alternate request mode first; on
	// any failure we log and fall through to standard chat for the same
	// logical request. Streaming applies the same attempt order. This
	// fallback is the engine's only automatic retry, and only the mode
	// that completes contributes usage and tool calls.
	if isReasoningModel(a.cfg.Model) {
		resp, err := a.client.CreateChatCompletion(ctx, a.reasoningVariant(req))
		if err == nil {
			return fromOpenAIResponse(resp)
		}
		a.log.Warn("reasoning mode failed, falling back to chat",
			"backend", BackendOpenAI, "model", a.cfg.Model, "error", err)
	}

	resp, err := a.client.CreateChatCompletion(ctx, req)
	if err != nil {
		return nil, &BackendError{Backend: BackendOpenAI, Op: "chat completion", Err: err}
	}
	return fromOpenAIResponse(resp)
}

func (a *openAIAdapter) buildRequest(msgs []Message, tools []ToolSchema, stream bool) (openai.ChatCompletionRequest, error) {
	wire, err := toOpenAIMessages(msgs)
	if err != nil {
		return openai.ChatCompletionRequest{}, err
	}
	req := openai.ChatCompletionRequest{
		Model:    a.cfg.Model,
		Messages: wire,
		Stream:   stream,
	}
	if a.cfg.Temperature != nil {
		req.Temperature = *a.cfg.Temperature
	}
	if a.cfg.MaxTokens > 0 {
		req.MaxCompletionTokens = a.cfg.MaxTokens
	}
	if len(tools) > 0 {
		req.Tools = ToOpenAITools(tools)
	}
	if stream {
		req.StreamOptions = &openai.StreamOptions{IncludeUsage: true}
	}
	return req, nil
}

// reasoningVariant shapes the same logical request for the
// reasoning-optimized mode: effort knob on, sampling knobs off.
func (a *openAIAdapter) reasoningVariant(req openai.ChatCompletionRequest) openai.ChatCompletionRequest {
	req.Temperature = 0
	effort := a.cfg.ReasoningEffort
	if effort == "" {
		effort = "medium"
	}
	req.ReasoningEffort = effort
	return req
}

// isReasoningModel reports whether the model is eligible for the alternate
// reasoning request mode.
func isReasoningModel(model string) bool {
	norm := strings.ToLower(model)
	for _, p := range []string{"o1", "o3", "o4", "gpt-5"} {
		if strings.HasPrefix(norm, p) {
			return true
		}
	}
	return false
}

// toOpenAIMessages converts canonical messages to the wire chat format.
// OpenAI has a first-class system role and a tool role keyed by call id,
// so the mapping is direct.
func toOpenAIMessages(msgs []Message) ([]openai.ChatCompletionMessage, error) {
	if err := validateToolCallIDs(msgs); err != nil {
		return nil, err
	}
	out := make([]openai.ChatCompletionMessage, 0, len(msgs))
	for _, m := range msgs {
		wire := openai.ChatCompletionMessage{
			Role:    string(m.Role),
			Content: m.Content,
		}
		switch m.Role {
		case RoleAssistant:
			for _, tc := range m.ToolCalls {
				wire.ToolCalls = append(wire.ToolCalls, openai.ToolCall{
					ID:   tc.ID,
					Type: openai.ToolTypeFunction,
					Function: openai.FunctionCall{
						Name:      tc.Name,
						Arguments: tc.Arguments,
					},
				})
			}
		case RoleTool:
			wire.ToolCallID = m.ToolCallID
		}
		out = append(out, wire)
	}
	return out, nil
}

func fromOpenAIResponse(resp openai.ChatCompletionResponse) (*FunctionCallResponse, error) {
	if len(resp.Choices) == 0 {
		return nil, &BackendError{Backend: BackendOpenAI, Op: "chat completion", Err: errNoChoices}
	}
	choice := resp.Choices[0]
	out := &FunctionCallResponse{
		Content:      choice.Message.Content,
		FinishReason: normalizeOpenAIFinish(string(choice.FinishReason)),
		Usage:        fromOpenAIUsage(resp.Usage),
	}
	for _, tc := range choice.Message.ToolCalls {
		out.ToolCalls = append(out.ToolCalls, ToolCall{
			ID:        tc.ID,
			Name:      tc.Function.Name,
			Arguments: tc.Function.Arguments,
		})
	}
	return out, nil
}

func fromOpenAIUsage(u openai.Usage) *Usage {
	out := &Usage{
		PromptTokens:     u.PromptTokens,
		CompletionTokens: u.CompletionTokens,
		TotalTokens:      u.TotalTokens,
	}
	if u.PromptTokensDetails != nil && u.PromptTokensDetails.CachedTokens > 0 {
		cached := u.PromptTokensDetails.CachedTokens
		out.CacheReadTokens = &cached
	}
	return out
}

func normalizeOpenAIFinish(reason string) string {
	switch reason {
	case "tool_calls", "function_call":
		return FinishToolCalls
	case "length":
		return FinishLength
	default:
		return FinishStop
	}
}
