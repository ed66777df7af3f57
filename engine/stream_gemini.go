package engine

import (
	"context"
	"encoding/json"
)

func (a *geminiAdapter) stream(ctx context.Context, msgs []Message, tools []ToolSchema, onChunk ChunkFunc) (*FunctionCallResponse, error) {
	contents, cfg, err := a.buildRequest(msgs, tools)
	if err != nil {
		return nil, err
	}

	out := &FunctionCallResponse{FinishReason: FinishStop}
	for res, err := range a.client.Models.GenerateContentStream(ctx, a.cfg.Model, contents, cfg) {
		if err != nil {
			if ctx.Err() != nil {
				out.FinishReason = FinishCancelled
				return out, nil
			}
			return nil, &BackendError{Backend: BackendGemini, Op: "generate content stream", Err: err}
		}
		if text := res.Text(); text != "" {
			out.Content += text
			if onChunk != nil {
				onChunk(text)
			}
		}
		// Function calls arrive complete per chunk, never as partial
		// argument deltas, so they can be appended directly.
		for _, fc := range res.FunctionCalls() {
			raw, _ := json.Marshal(fc.Args)
			out.ToolCalls = append(out.ToolCalls, ToolCall{
				ID:        functionCallID(fc, len(out.ToolCalls)),
				Name:      fc.Name,
				Arguments: string(raw),
			})
		}
		if res.UsageMetadata != nil {
			out.Usage = fromGeminiUsage(res.UsageMetadata)
		}
	}
	if len(out.ToolCalls) > 0 {
		out.FinishReason = FinishToolCalls
	}
	return out, nil
}
