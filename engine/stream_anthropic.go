package engine

import (
	"context"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
)

// partialToolUse accumulates input_json deltas for one content block.
// The ToolCall materializes only at content_block_stop; a partially
// accumulated call is never surfaced.
type partialToolUse struct {
	id   string
	name string
	args strings.Builder
	done bool
}

func (a *anthropicAdapter) stream(ctx context.Context, msgs []Message, tools []ToolSchema, onChunk ChunkFunc) (*FunctionCallResponse, error) {
	params, err := a.buildParams(msgs, tools)
	if err != nil {
		return nil, err
	}

	stream := a.client.Messages.NewStreaming(ctx, params)
	msg := anthropic.Message{}
	var content strings.Builder
	pending := map[int64]*partialToolUse{}
	order := []int64{}

	for stream.Next() {
		event := stream.Current()
		if err := msg.Accumulate(event); err != nil {
			return nil, &BackendError{Backend: BackendAnthropic, Op: "stream accumulate", Err: err}
		}

		switch variant := event.AsAny().(type) {
		case anthropic.ContentBlockStartEvent:
			if variant.ContentBlock.Type != "tool_use" {
				continue
			}
			pending[variant.Index] = &partialToolUse{
				id:   variant.ContentBlock.ID,
				name: variant.ContentBlock.Name,
			}
			order = append(order, variant.Index)

		case anthropic.ContentBlockDeltaEvent:
			switch delta := variant.Delta.AsAny().(type) {
			case anthropic.TextDelta:
				if delta.Text == "" {
					continue
				}
				content.WriteString(delta.Text)
				if onChunk != nil {
					onChunk(delta.Text)
				}
			case anthropic.InputJSONDelta:
				if pc := pending[variant.Index]; pc != nil {
					pc.args.WriteString(delta.PartialJSON)
				}
			}

		case anthropic.ContentBlockStopEvent:
			if pc := pending[variant.Index]; pc != nil {
				pc.done = true
			}
		}
	}
	if err := stream.Err(); err != nil {
		if ctx.Err() != nil {
			return &FunctionCallResponse{
				Content:      content.String(),
				FinishReason: FinishCancelled,
			}, nil
		}
		return nil, &BackendError{Backend: BackendAnthropic, Op: "messages stream", Err: err}
	}

	out := &FunctionCallResponse{
		Content:      content.String(),
		FinishReason: normalizeAnthropicStop(msg.StopReason),
		Usage:        fromAnthropicUsage(msg.Usage),
	}
	for _, idx := range order {
		pc := pending[idx]
		if pc == nil || !pc.done {
			continue
		}
		args := pc.args.String()
		if args == "" {
			args = "{}"
		}
		out.ToolCalls = append(out.ToolCalls, ToolCall{
			ID:        pc.id,
			Name:      pc.name,
			Arguments: args,
		})
	}
	if len(out.ToolCalls) > 0 {
		out.FinishReason = FinishToolCalls
	}
	return out, nil
}
