package engine

import (
	"context"
	"fmt"
)

// ChunkFunc receives one streamed text fragment. Adapters invoke it
// synchronously, in arrival order, as each fragment comes off the wire.
type ChunkFunc func(text string)

// ProviderAdapter is the uniform contract every backend implements.
//
// Lifecycle: an adapter starts Uninitialized and becomes Ready via
// Initialize, which validates the credential and performs one low-cost
// connectivity probe. Any failure leaves the adapter Uninitialized and is
// returned, not panicked, so the caller can try an alternate backend.
//
// Once Ready every call is independent: adapters hold no mutable
// conversation state. Only ConversationState (inside the orchestrator)
// carries history. Cancellation mid-stream returns the partial accumulated
// result with FinishCancelled rather than an error.
type ProviderAdapter interface {
	Backend() Backend
	Initialize(ctx context.Context) error
	Ready() bool

	SendMessage(ctx context.Context, msgs []Message) (*FunctionCallResponse, error)
	StreamMessage(ctx context.Context, msgs []Message, onChunk ChunkFunc) (*FunctionCallResponse, error)

	SendMessageWithTools(ctx context.Context, msgs []Message, tools []ToolSchema) (*FunctionCallResponse, error)
	StreamMessageWithTools(ctx context.Context, msgs []Message, tools []ToolSchema, onChunk ChunkFunc) (*FunctionCallResponse, error)
}

// freeTextToolCaller is implemented by adapters whose backend may emit
// bracket-syntax tool calls as plain text instead of structured calls.
type freeTextToolCaller interface {
	usesFreeTextToolCalls(model string) bool
}

// NewAdapter constructs the adapter owning the configured backend. The
// adapter is returned Uninitialized; call Initialize before use.
func NewAdapter(cfg Config) (ProviderAdapter, error) {
	if cfg.DetectEnv {
		cfg = cfg.WithEnv()
	}
	switch cfg.Provider {
	case BackendOpenAI:
		return newOpenAIAdapter(cfg), nil
	case BackendAnthropic:
		return newAnthropicAdapter(cfg), nil
	case BackendGemini:
		return newGeminiAdapter(cfg), nil
	default:
		return nil, fmt.Errorf("engine: unknown provider %q", cfg.Provider)
	}
}

// ResolveAdapter resolves an informal model name, derives its backend, and
// constructs the matching adapter. Runs once per conversation. When the
// alias table has no answer the raw input is kept as the canonical id.
func ResolveAdapter(cfg Config, modelInput string) (ProviderAdapter, string, error) {
	canonical := MatchModelName(modelInput)
	if canonical == "" {
		canonical = modelInput
	}
	cfg.Provider = ProviderForModel(canonical)
	cfg.Model = canonical
	adapter, err := NewAdapter(cfg)
	if err != nil {
		return nil, "", err
	}
	return adapter, canonical, nil
}
