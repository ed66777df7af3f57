package engine

import (
	"context"
	"errors"
	"io"
	"sort"
	"strings"

	openai "github.com/sashabaranov/go-openai"
)

// stream drives one streamed request. Text fragments are forwarded to
// onChunk synchronously in arrival order; tool-call argument deltas are
// accumulated per positional index and materialized only once the stream
// signals completion, so a ToolCall is never surfaced with truncated
// arguments.
func (a *openAIAdapter) stream(ctx context.Context, msgs []Message, tools []ToolSchema, onChunk ChunkFunc) (*FunctionCallResponse, error) {
	req, err := a.buildRequest(msgs, tools, true)
	if err != nil {
		return nil, err
	}

	// Reasoning-eligible models attempt the alternate mode first, same as
	// the non-streaming path. The fallback triggers only when opening the
	// stream fails; an error mid-stream is not retried.
	var stream *openai.ChatCompletionStream
	if isReasoningModel(a.cfg.Model) {
		s, rerr := a.client.CreateChatCompletionStream(ctx, a.reasoningVariant(req))
		if rerr == nil {
			stream = s
		} else {
			a.log.Warn("reasoning mode failed, falling back to chat",
				"backend", BackendOpenAI, "model", a.cfg.Model, "error", rerr)
		}
	}
	if stream == nil {
		s, err := a.client.CreateChatCompletionStream(ctx, req)
		if err != nil {
			return nil, &BackendError{Backend: BackendOpenAI, Op: "chat completion stream", Err: err}
		}
		stream = s
	}
	defer stream.Close()

	var content strings.Builder
	pending := make(map[int]*openai.ToolCall)
	finish := FinishStop
	var usage *Usage

	for {
		resp, err := stream.Recv()
		if err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			// A cancelled stream returns the partial accumulated result so
			// the caller can decide whether to treat it as final.
			if ctx.Err() != nil {
				return &FunctionCallResponse{
					Content:      content.String(),
					FinishReason: FinishCancelled,
					Usage:        usage,
				}, nil
			}
			return nil, &BackendError{Backend: BackendOpenAI, Op: "stream recv", Err: err}
		}

		if resp.Usage != nil {
			usage = fromOpenAIUsage(*resp.Usage)
		}
		if len(resp.Choices) == 0 {
			continue
		}
		choice := resp.Choices[0]

		if choice.Delta.Content != "" {
			content.WriteString(choice.Delta.Content)
			if onChunk != nil {
				onChunk(choice.Delta.Content)
			}
		}

		for _, tc := range choice.Delta.ToolCalls {
			if tc.Index == nil {
				continue
			}
			idx := *tc.Index
			acc, ok := pending[idx]
			if !ok {
				acc = &openai.ToolCall{Index: tc.Index, ID: tc.ID, Type: tc.Type}
				acc.Function.Name = tc.Function.Name
				acc.Function.Arguments = tc.Function.Arguments
				pending[idx] = acc
				continue
			}
			// Later deltas carry argument fragments only.
			if tc.ID != "" {
				acc.ID = tc.ID
			}
			if tc.Function.Name != "" {
				acc.Function.Name += tc.Function.Name
			}
			acc.Function.Arguments += tc.Function.Arguments
		}

		if choice.FinishReason != "" {
			finish = normalizeOpenAIFinish(string(choice.FinishReason))
		}
	}

	out := &FunctionCallResponse{
		Content:      content.String(),
		FinishReason: finish,
		Usage:        usage,
	}
	for _, idx := range sortedIndexes(pending) {
		acc := pending[idx]
		out.ToolCalls = append(out.ToolCalls, ToolCall{
			ID:        acc.ID,
			Name:      acc.Function.Name,
			Arguments: acc.Function.Arguments,
		})
	}
	if len(out.ToolCalls) > 0 {
		out.FinishReason = FinishToolCalls
	}
	return out, nil
}

func sortedIndexes(pending map[int]*openai.ToolCall) []int {
	idxs := make([]int, 0, len(pending))
	for idx := range pending {
		idxs = append(idxs, idx)
	}
	sort.Ints(idxs)
	return idxs
}
