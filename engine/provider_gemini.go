package engine

import (
	"context"
	"encoding/json"
	"log/slog"
	"strconv"
	"strings"

	"google.golang.org/genai"
)

// geminiAdapter serves Gemini-family models and the hosted open-weight
// models that signal tool calls with trailing bracket text instead of
// structured function calls.
type geminiAdapter struct {
	cfg    Config
	client *genai.Client
	log    *slog.Logger
	ready  bool
}

func newGeminiAdapter(cfg Config) *geminiAdapter {
	return &geminiAdapter{cfg: cfg, log: slog.Default()}
}

func (a *geminiAdapter) Backend() Backend { return BackendGemini }
func (a *geminiAdapter) Ready() bool      { return a.ready }

func (a *geminiAdapter) Initialize(ctx context.Context) error {
	if a.cfg.GoogleAPIKey == "" {
		return &AuthError{Backend: BackendGemini, Reason: "missing API key"}
	}
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:     a.cfg.GoogleAPIKey,
		HTTPClient: a.cfg.HTTPClient,
		HTTPOptions: genai.HTTPOptions{
			BaseURL: a.cfg.GoogleBaseURL,
		},
	})
	if err != nil {
		return &AuthError{Backend: BackendGemini, Reason: err.Error()}
	}
	// Low-cost connectivity probe; a broken setup fails here, not mid-turn.
	probe := []*genai.Content{{Parts: []*genai.Part{{Text: "ping"}}}}
	if _, err := client.Models.CountTokens(ctx, a.cfg.Model, probe, nil); err != nil {
		return &BackendError{Backend: BackendGemini, Op: "connectivity probe", Err: err}
	}
	a.client = client
	a.ready = true
	return nil
}

// usesFreeTextToolCalls reports whether the model may emit bracket-syntax
// tool calls; the orchestrator runs the free-text parser on such
// responses before concluding there were no tool calls.
func (a *geminiAdapter) usesFreeTextToolCalls(model string) bool {
	norm := strings.ToLower(model)
	return strings.Contains(norm, "llama") || strings.Contains(norm, "gemma")
}

func (a *geminiAdapter) SendMessage(ctx context.Context, msgs []Message) (*FunctionCallResponse, error) {
	return a.send(ctx, msgs, nil)
}

func (a *geminiAdapter) SendMessageWithTools(ctx context.Context, msgs []Message, tools []ToolSchema) (*FunctionCallResponse, error) {
	return a.send(ctx, msgs, tools)
}

func (a *geminiAdapter) StreamMessage(ctx context.Context, msgs []Message, onChunk ChunkFunc) (*FunctionCallResponse, error) {
	return a.stream(ctx, msgs, nil, onChunk)
}

func (a *geminiAdapter) StreamMessageWithTools(ctx context.Context, msgs []Message, tools []ToolSchema, onChunk ChunkFunc) (*FunctionCallResponse, error) {
	return a.stream(ctx, msgs, tools, onChunk)
}

func (a *geminiAdapter) send(ctx context.Context, msgs []Message, tools []ToolSchema) (*FunctionCallResponse, error) {
	contents, cfg, err := a.buildRequest(msgs, tools)
	if err != nil {
		return nil, err
	}
	res, err := a.client.Models.GenerateContent(ctx, a.cfg.Model, contents, cfg)
	if err != nil {
		return nil, &BackendError{Backend: BackendGemini, Op: "generate content", Err: err}
	}
	return fromGeminiResponse(res), nil
}

func (a *geminiAdapter) buildRequest(msgs []Message, tools []ToolSchema) ([]*genai.Content, *genai.GenerateContentConfig, error) {
	system, rest := splitSystem(msgs)
	contents, err := toGeminiContents(rest)
	if err != nil {
		return nil, nil, err
	}

	cfg := &genai.GenerateContentConfig{}
	if system != nil && strings.TrimSpace(system.Content) != "" {
		cfg.SystemInstruction = &genai.Content{
			Parts: []*genai.Part{{Text: system.Content}},
		}
	}
	if a.cfg.Temperature != nil {
		cfg.Temperature = genai.Ptr(*a.cfg.Temperature)
	}
	if a.cfg.MaxTokens > 0 {
		cfg.MaxOutputTokens = int32(a.cfg.MaxTokens)
	}
	if len(tools) > 0 {
		if a.usesFreeTextToolCalls(a.cfg.Model) {
			// No native function calling: the declarations ride inside the
			// system instruction and the model answers in bracket syntax.
			prompt := bracketToolPrompt(tools)
			if cfg.SystemInstruction == nil {
				cfg.SystemInstruction = &genai.Content{Parts: []*genai.Part{{Text: prompt}}}
			} else {
				cfg.SystemInstruction.Parts = append(cfg.SystemInstruction.Parts, &genai.Part{Text: prompt})
			}
		} else {
			cfg.Tools = ToGeminiDeclarations(tools)
			cfg.ToolConfig = &genai.ToolConfig{
				FunctionCallingConfig: &genai.FunctionCallingConfig{
					Mode: genai.FunctionCallingConfigModeAuto,
				},
			}
		}
	}
	return contents, cfg, nil
}

// toGeminiContents converts canonical messages to genai contents. The wire
// format wants the function *name*, not the call id, on a function
// response, so tool results resolve their name by scanning backward
// through prior assistant tool calls for the matching id.
func toGeminiContents(msgs []Message) ([]*genai.Content, error) {
	if err := validateToolCallIDs(msgs); err != nil {
		return nil, err
	}
	out := make([]*genai.Content, 0, len(msgs))
	for i, m := range msgs {
		switch m.Role {
		case RoleUser:
			out = append(out, &genai.Content{
				Role:  genai.RoleUser,
				Parts: []*genai.Part{{Text: m.Content}},
			})
		case RoleAssistant:
			parts := make([]*genai.Part, 0, 1+len(m.ToolCalls))
			if m.Content != "" {
				parts = append(parts, &genai.Part{Text: m.Content})
			}
			for _, tc := range m.ToolCalls {
				args, ok := tc.Args()
				if !ok {
					args = map[string]any{"raw": tc.Arguments}
				}
				parts = append(parts, &genai.Part{
					FunctionCall: &genai.FunctionCall{ID: tc.ID, Name: tc.Name, Args: args},
				})
			}
			out = append(out, &genai.Content{Role: genai.RoleModel, Parts: parts})
		case RoleTool:
			name := toolCallName(msgs[:i], m.ToolCallID)
			out = append(out, &genai.Content{
				Role: genai.RoleUser,
				Parts: []*genai.Part{{
					FunctionResponse: &genai.FunctionResponse{
						ID:       m.ToolCallID,
						Name:     name,
						Response: map[string]any{"output": m.Content},
					},
				}},
			})
		}
	}
	return out, nil
}

// toolCallName scans backward through prior assistant messages for the
// ToolCall whose id matches.
func toolCallName(prior []Message, id string) string {
	for i := len(prior) - 1; i >= 0; i-- {
		if prior[i].Role != RoleAssistant {
			continue
		}
		for _, tc := range prior[i].ToolCalls {
			if tc.ID == id {
				return tc.Name
			}
		}
	}
	return ""
}

func fromGeminiResponse(res *genai.GenerateContentResponse) *FunctionCallResponse {
	out := &FunctionCallResponse{FinishReason: FinishStop}
	if res == nil || len(res.Candidates) == 0 || res.Candidates[0].Content == nil {
		return out
	}
	for _, p := range res.Candidates[0].Content.Parts {
		if p.Text != "" {
			if out.Content != "" {
				out.Content += "\n"
			}
			out.Content += p.Text
		}
		if p.FunctionCall != nil {
			raw, _ := json.Marshal(p.FunctionCall.Args)
			out.ToolCalls = append(out.ToolCalls, ToolCall{
				ID:        functionCallID(p.FunctionCall, len(out.ToolCalls)),
				Name:      p.FunctionCall.Name,
				Arguments: string(raw),
			})
		}
	}
	if len(out.ToolCalls) > 0 {
		out.FinishReason = FinishToolCalls
	}
	if res.UsageMetadata != nil {
		out.Usage = fromGeminiUsage(res.UsageMetadata)
	}
	return out
}

// functionCallID keeps the backend id when present and synthesizes a
// stable positional one otherwise; the wire format does not guarantee ids.
func functionCallID(fc *genai.FunctionCall, position int) string {
	if fc.ID != "" {
		return fc.ID
	}
	return "call_" + fc.Name + "_" + strconv.Itoa(position)
}

func fromGeminiUsage(u *genai.GenerateContentResponseUsageMetadata) *Usage {
	out := &Usage{
		PromptTokens:     int(u.PromptTokenCount),
		CompletionTokens: int(u.CandidatesTokenCount),
		TotalTokens:      int(u.TotalTokenCount),
	}
	if u.CachedContentTokenCount > 0 {
		n := int(u.CachedContentTokenCount)
		out.CacheReadTokens = &n
	}
	return out
}

// bracketToolPrompt renders tool declarations as prompt instructions for
// models without structured function calling.
func bracketToolPrompt(tools []ToolSchema) string {
	var b strings.Builder
	b.WriteString("You can call the following functions. To call functions, reply with ")
	b.WriteString("a single bracket block as the last line of your answer, e.g. ")
	b.WriteString("[func_a(arg=\"value\"), func_b(x=1)].\n\nAvailable functions:\n")
	for _, t := range tools {
		b.WriteString("- ")
		b.WriteString(t.Name)
		b.WriteString("(")
		first := true
		for name := range t.InputSchema.Properties {
			if !first {
				b.WriteString(", ")
			}
			b.WriteString(name)
			first = false
		}
		b.WriteString("): ")
		b.WriteString(t.Description)
		b.WriteString("\n")
	}
	return b.String()
}
