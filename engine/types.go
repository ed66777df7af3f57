package engine

import (
	"context"
	"encoding/json"
)

// Backend identifies which provider a model request is routed to.
type Backend string

const (
	BackendOpenAI    Backend = "openai"
	BackendAnthropic Backend = "anthropic"
	BackendGemini    Backend = "gemini"
)

// Role is a canonical chat role.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleTool      Role = "tool"
)

// CacheControl marks a message or tool block for backend-side prefix caching.
// Only "ephemeral" is understood today (Anthropic). TTL is the provider's
// cache lifetime tag, e.g. "5m" or "1h".
type CacheControl struct {
	Type string `json:"type"`
	TTL  string `json:"ttl,omitempty"`
}

// Message is a provider-agnostic chat message.
//
// ToolCalls is set only on assistant messages. ToolCallID is required on
// tool-role messages and must reference a ToolCall emitted by a prior
// assistant message in the same conversation.
type Message struct {
	Role         Role          `json:"role"`
	Content      string        `json:"content,omitempty"`
	ToolCalls    []ToolCall    `json:"tool_calls,omitempty"`
	ToolCallID   string        `json:"tool_call_id,omitempty"`
	CacheControl *CacheControl `json:"cache_control,omitempty"`
}

// ToolCall is a structured tool invocation requested by the model.
// Arguments holds the raw argument blob exactly as the backend produced it;
// use Args to attempt a structured parse.
type ToolCall struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Arguments string `json:"arguments"`
}

// Args parses the raw argument blob into a map. When the blob is not valid
// JSON the raw string is retained on the ToolCall and ok is false; callers
// degrade rather than discard.
func (tc ToolCall) Args() (map[string]any, bool) {
	if tc.Arguments == "" {
		return map[string]any{}, true
	}
	var m map[string]any
	if err := json.Unmarshal([]byte(tc.Arguments), &m); err != nil {
		return nil, false
	}
	if m == nil {
		m = map[string]any{}
	}
	return m, true
}

// RawTool is a tool definition as supplied by a caller, before
// normalization. Either InputSchema or the legacy Parameters key may be
// populated; NormalizeTool folds whichever is present into InputSchema.
type RawTool struct {
	Name        string         `json:"name" yaml:"name"`
	Description string         `json:"description" yaml:"description"`
	InputSchema map[string]any `json:"input_schema,omitempty" yaml:"input_schema,omitempty"`
	Parameters  map[string]any `json:"parameters,omitempty" yaml:"parameters,omitempty"`
}

// InputSchema is a JSON-Schema object subset describing tool parameters.
type InputSchema struct {
	Type                 string                    `json:"type"`
	Properties           map[string]map[string]any `json:"properties"`
	Required             []string                  `json:"required,omitempty"`
	AdditionalProperties *bool                     `json:"additionalProperties,omitempty"`
}

// ToolSchema is the canonical tool definition every adapter consumes.
// Adapters never see the legacy parameters alias.
type ToolSchema struct {
	Name         string        `json:"name"`
	Description  string        `json:"description"`
	InputSchema  InputSchema   `json:"input_schema"`
	CacheControl *CacheControl `json:"cache_control,omitempty"`
}

// Usage is read-only token telemetry produced by one send.
type Usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`

	// Cache token counts, when the backend reports them.
	CacheCreationTokens *int `json:"cache_creation_tokens,omitempty"`
	CacheReadTokens     *int `json:"cache_read_tokens,omitempty"`
}

// Finish reasons normalized across backends.
const (
	FinishStop      = "stop"
	FinishToolCalls = "tool_calls"
	FinishLength    = "length"
	FinishCancelled = "cancelled"
)

// FunctionCallResponse is the canonical result of one backend call.
type FunctionCallResponse struct {
	Content      string     `json:"content"`
	ToolCalls    []ToolCall `json:"tool_calls,omitempty"`
	FinishReason string     `json:"finish_reason"`
	Usage        *Usage     `json:"usage,omitempty"`

	// Continuation is a backend-assigned token allowing a later request to
	// continue server-side state. Carried opaquely; empty for backends
	// without server-side multi-turn state.
	Continuation string `json:"-"`
}

// ToolResult is the outcome of executing one tool call.
type ToolResult struct {
	Success bool   `json:"success"`
	Output  string `json:"output,omitempty"`
	Error   string `json:"error,omitempty"`
}

// Text returns the content to feed back to the model: the output on
// success, the error text otherwise. Tool failures are conversation
// content, not engine errors.
func (r ToolResult) Text() string {
	if r.Success {
		return r.Output
	}
	if r.Error != "" {
		return "error: " + r.Error
	}
	return "error: tool execution failed"
}

// ToolRegistry is the external tool-execution collaborator. The engine only
// ever executes tools by name through this contract.
type ToolRegistry interface {
	List() []ToolSchema
	Execute(ctx context.Context, name string, args map[string]any) ToolResult
}

// validateToolCallIDs enforces the id-matching invariant: every tool-role
// message must reference a ToolCall emitted by an earlier assistant
// message. Adapters call this before any wire conversion.
func validateToolCallIDs(msgs []Message) error {
	seen := make(map[string]bool)
	for _, m := range msgs {
		switch m.Role {
		case RoleAssistant:
			for _, tc := range m.ToolCalls {
				seen[tc.ID] = true
			}
		case RoleTool:
			if m.ToolCallID == "" || !seen[m.ToolCallID] {
				return &ToolCallIDMismatchError{ToolCallID: m.ToolCallID}
			}
		}
	}
	return nil
}

// splitSystem extracts the system message (if any) from a canonical message
// list. Backends without a first-class system role pass it through a
// separate top-level field.
func splitSystem(msgs []Message) (system *Message, rest []Message) {
	rest = make([]Message, 0, len(msgs))
	for i := range msgs {
		if msgs[i].Role == RoleSystem && system == nil {
			system = &msgs[i]
			continue
		}
		rest = append(rest, msgs[i])
	}
	return system, rest
}
