package engine

import (
	"context"
	"log/slog"

	"golang.org/x/sync/errgroup"
)

// Caps on tool-call rounds within a single turn. A backend that keeps
// requesting tools without converging is cut off rather than looping
// forever; the count starts fresh on every Run or Continue, so long
// multi-turn conversations are never capped.
const (
	maxIterations        = 10
	maxIterationsVerbose = 25
)

// Orchestrator owns the canonical message list for one conversation and
// drives the turn loop: ask the backend for a next step, execute any tool
// calls it requests, append the results, repeat until a final answer.
//
// One conversation is one sequential control flow; the orchestrator never
// issues two backend calls concurrently for the same conversation.
// Independent Orchestrator instances share no mutable state and may run
// concurrently.
type Orchestrator struct {
	cfg      Config
	adapter  ProviderAdapter
	registry ToolRegistry
	shaper   *PromptCacheShaper
	log      *slog.Logger

	// Parallel executes independent tool calls within a turn concurrently.
	// Off by default: sequential execution in backend emission order is a
	// deliberate simplification, and this switch is the enhancement path.
	Parallel bool

	msgs         []Message
	continuation string
}

// NewOrchestrator creates an orchestrator for one conversation. logger may
// be nil, in which case slog's default logger receives the call/result
// events.
func NewOrchestrator(cfg Config, adapter ProviderAdapter, registry ToolRegistry, logger *slog.Logger) *Orchestrator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Orchestrator{
		cfg:      cfg,
		adapter:  adapter,
		registry: registry,
		shaper:   NewPromptCacheShaper(cfg),
		log:      logger,
	}
}

// Messages returns a copy of the conversation history.
func (o *Orchestrator) Messages() []Message {
	out := make([]Message, len(o.msgs))
	copy(out, o.msgs)
	return out
}

// Continuation returns the backend-assigned continuation token, if the
// backend issued one. Carried opaquely, never interpreted here.
func (o *Orchestrator) Continuation() string { return o.continuation }

// Run starts the turn loop from a system+user message pair and returns the
// final answer. onChunk may be nil; when supplied the adapter streams and
// invokes it per text fragment.
func (o *Orchestrator) Run(ctx context.Context, system, userInput string, onChunk ChunkFunc) (string, error) {
	if system != "" {
		o.msgs = append(o.msgs, Message{Role: RoleSystem, Content: system})
	}
	o.msgs = append(o.msgs, Message{Role: RoleUser, Content: userInput})
	return o.loop(ctx, onChunk)
}

// Continue appends a follow-up user message to an existing conversation
// and resumes the loop.
func (o *Orchestrator) Continue(ctx context.Context, userInput string, onChunk ChunkFunc) (string, error) {
	o.msgs = append(o.msgs, Message{Role: RoleUser, Content: userInput})
	return o.loop(ctx, onChunk)
}

func (o *Orchestrator) loop(ctx context.Context, onChunk ChunkFunc) (string, error) {
	tools := o.registry.List()
	limit := maxIterations
	if o.cfg.Verbose {
		limit = maxIterationsVerbose
	}

	var lastContent string
	for iter := 1; ; iter++ {
		if iter > limit {
			return "", &IterationLimitError{Limit: limit, Partial: lastContent}
		}

		resp, err := o.sendTurn(ctx, tools, onChunk)
		if err != nil {
			return "", err
		}
		if resp.Continuation != "" {
			o.continuation = resp.Continuation
		}
		lastContent = resp.Content

		calls := resp.ToolCalls
		// Bracket-call backends may answer with tool calls hidden in plain
		// text; recover them before concluding the turn is final.
		if len(calls) == 0 {
			calls = o.freeTextCalls(resp.Content, tools)
		}

		if len(calls) == 0 {
			o.msgs = append(o.msgs, Message{Role: RoleAssistant, Content: resp.Content})
			return resp.Content, nil
		}

		o.msgs = append(o.msgs, Message{
			Role:      RoleAssistant,
			Content:   resp.Content,
			ToolCalls: calls,
		})
		results, err := o.executeCalls(ctx, calls)
		if err != nil {
			return "", err
		}
		o.msgs = append(o.msgs, results...)
	}
}

func (o *Orchestrator) sendTurn(ctx context.Context, tools []ToolSchema, onChunk ChunkFunc) (*FunctionCallResponse, error) {
	msgs, sendTools := o.msgs, tools
	var bps []CacheBreakpoint
	if o.adapter.Backend() == BackendAnthropic {
		msgs, sendTools, bps = o.shaper.Apply(o.msgs, tools, o.cfg.Model)
	}

	var resp *FunctionCallResponse
	var err error
	if onChunk != nil {
		resp, err = o.adapter.StreamMessageWithTools(ctx, msgs, sendTools, onChunk)
	} else {
		resp, err = o.adapter.SendMessageWithTools(ctx, msgs, sendTools)
	}
	if err != nil {
		return nil, err
	}

	if u := resp.Usage; u != nil {
		o.log.Debug("turn complete",
			"backend", o.adapter.Backend(), "model", o.cfg.Model,
			"prompt_tokens", u.PromptTokens, "completion_tokens", u.CompletionTokens,
			"tool_calls", len(resp.ToolCalls))
	}

	// Strict mode: a request that marked cacheable content must show cache
	// activity, otherwise we are paying full price for a prompt we asked
	// the backend to cache. Abort rather than spend.
	if o.cfg.Caching.Strict && len(bps) > 0 && ExtractCacheUsage(resp.Usage) == nil {
		return nil, &CacheValidationError{Model: o.cfg.Model}
	}
	return resp, nil
}

// freeTextCalls runs the bracket parser when the adapter declares the
// model may emit free-text tool calls.
func (o *Orchestrator) freeTextCalls(content string, tools []ToolSchema) []ToolCall {
	ft, ok := o.adapter.(freeTextToolCaller)
	if !ok || !ft.usesFreeTextToolCalls(o.cfg.Model) || len(tools) == 0 {
		return nil
	}
	parsed := ParseBracketCalls(content)
	if len(parsed) == 0 {
		return nil
	}
	calls := SynthesizeToolCalls(parsed)
	o.log.Debug("recovered free-text tool calls", "count", len(calls))
	return calls
}

// executeCalls dispatches tool calls and returns the tool-role result
// messages, one per call, in emission order. Execution failures become
// normal tool-result content, never engine errors.
func (o *Orchestrator) executeCalls(ctx context.Context, calls []ToolCall) ([]Message, error) {
	results := make([]Message, len(calls))

	run := func(ctx context.Context, i int, tc ToolCall) {
		args, ok := tc.Args()
		if !ok {
			// Keep the raw blob and degrade; the tool sees it under "raw".
			o.log.Warn("tool arguments failed to parse",
				"error", &ParseError{Tool: tc.Name, Raw: tc.Arguments})
			args = map[string]any{"raw": tc.Arguments}
		}

		o.log.Info("tool call", "tool", tc.Name, "id", tc.ID)
		res := o.registry.Execute(ctx, tc.Name, args)
		o.log.Info("tool result", "tool", tc.Name, "id", tc.ID, "success", res.Success)

		results[i] = Message{
			Role:       RoleTool,
			ToolCallID: tc.ID,
			Content:    res.Text(),
		}
	}

	if o.Parallel && len(calls) > 1 {
		g, gctx := errgroup.WithContext(ctx)
		for i, tc := range calls {
			g.Go(func() error {
				run(gctx, i, tc)
				return gctx.Err()
			})
		}
		if err := g.Wait(); err != nil {
			return nil, err
		}
		return results, nil
	}

	for i, tc := range calls {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		run(ctx, i, tc)
	}
	return results, nil
}
