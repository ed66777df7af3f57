package engine

import (
	"context"
	"math"
	"time"
)

// RetryConfig configures retry behavior for local tool execution. Backend
// calls are never retried through this mechanism.
type RetryConfig struct {
	MaxAttempts       int
	InitialBackoff    time.Duration
	MaxBackoff        time.Duration
	BackoffMultiplier float64
}

// DefaultRetryConfig bounds retries at three attempts with exponential
// backoff.
var DefaultRetryConfig = RetryConfig{
	MaxAttempts:       3,
	InitialBackoff:    100 * time.Millisecond,
	MaxBackoff:        10 * time.Second,
	BackoffMultiplier: 2.0,
}

// RetryingRegistry wraps a ToolRegistry and re-executes failed tool calls
// with backoff. The final failure is returned as-is: it still becomes
// normal tool-result content upstream.
type RetryingRegistry struct {
	inner ToolRegistry
	cfg   RetryConfig
}

// WithRetry decorates a registry with retry-on-failure semantics.
func WithRetry(inner ToolRegistry, cfg RetryConfig) *RetryingRegistry {
	if cfg.MaxAttempts <= 0 {
		cfg = DefaultRetryConfig
	}
	return &RetryingRegistry{inner: inner, cfg: cfg}
}

// List passes through to the wrapped registry.
func (r *RetryingRegistry) List() []ToolSchema { return r.inner.List() }

// Execute retries failed executions up to MaxAttempts, honoring context
// cancellation between attempts.
func (r *RetryingRegistry) Execute(ctx context.Context, name string, args map[string]any) ToolResult {
	var last ToolResult
	for attempt := 0; attempt < r.cfg.MaxAttempts; attempt++ {
		last = r.inner.Execute(ctx, name, args)
		if last.Success {
			return last
		}
		if attempt < r.cfg.MaxAttempts-1 {
			select {
			case <-ctx.Done():
				return ToolResult{Error: ctx.Err().Error()}
			case <-time.After(r.backoff(attempt)):
			}
		}
	}
	return last
}

func (r *RetryingRegistry) backoff(attempt int) time.Duration {
	backoff := float64(r.cfg.InitialBackoff) * math.Pow(r.cfg.BackoffMultiplier, float64(attempt))
	if backoff > float64(r.cfg.MaxBackoff) {
		backoff = float64(r.cfg.MaxBackoff)
	}
	return time.Duration(backoff)
}
