package engine

import (
	"context"
	"fmt"
	"testing"
	"time"
)

// countingRegistry counts executions per tool and answers from a script of
// results keyed by tool name.
type countingRegistry struct {
	tools   []ToolSchema
	counts  map[string]int
	results map[string]ToolResult
}

func newCountingRegistry() *countingRegistry {
	return &countingRegistry{
		counts:  make(map[string]int),
		results: make(map[string]ToolResult),
	}
}

func (c *countingRegistry) List() []ToolSchema { return c.tools }

func (c *countingRegistry) Execute(ctx context.Context, name string, args map[string]any) ToolResult {
	c.counts[name]++
	if r, ok := c.results[name]; ok {
		return r
	}
	return ToolResult{Success: true, Output: fmt.Sprintf("%s #%d", name, c.counts[name])}
}

func TestCachingRegistry_RepeatCallServedFromCache(t *testing.T) {
	inner := newCountingRegistry()
	c := WithCache(inner, time.Minute, 10)

	args := map[string]any{"path": "."}
	first := c.Execute(context.Background(), "ls", args)
	second := c.Execute(context.Background(), "ls", args)

	if inner.counts["ls"] != 1 {
		t.Errorf("inner executed %d times, want 1", inner.counts["ls"])
	}
	if first.Output != second.Output {
		t.Errorf("cached result differs: %q vs %q", first.Output, second.Output)
	}
	hits, misses := c.Stats()
	if hits != 1 || misses != 1 {
		t.Errorf("stats = %d hits / %d misses", hits, misses)
	}
}

func TestCachingRegistry_DistinctArgsMiss(t *testing.T) {
	inner := newCountingRegistry()
	c := WithCache(inner, time.Minute, 10)

	c.Execute(context.Background(), "ls", map[string]any{"path": "a"})
	c.Execute(context.Background(), "ls", map[string]any{"path": "b"})

	if inner.counts["ls"] != 2 {
		t.Errorf("distinct args must not share cache entries")
	}
}

func TestCachingRegistry_FailuresNotCached(t *testing.T) {
	inner := newCountingRegistry()
	inner.results["flaky"] = ToolResult{Success: false, Error: "boom"}
	c := WithCache(inner, time.Minute, 10)

	c.Execute(context.Background(), "flaky", nil)
	c.Execute(context.Background(), "flaky", nil)

	if inner.counts["flaky"] != 2 {
		t.Errorf("failed results must re-execute, got %d runs", inner.counts["flaky"])
	}
}

func TestCachingRegistry_TTLExpiry(t *testing.T) {
	inner := newCountingRegistry()
	c := WithCache(inner, time.Nanosecond, 10)

	c.Execute(context.Background(), "ls", nil)
	time.Sleep(time.Millisecond)
	c.Execute(context.Background(), "ls", nil)

	if inner.counts["ls"] != 2 {
		t.Errorf("stale entry must re-execute, got %d runs", inner.counts["ls"])
	}
}

func TestCachingRegistry_EvictionBound(t *testing.T) {
	inner := newCountingRegistry()
	c := WithCache(inner, time.Minute, 2)

	for i := 0; i < 5; i++ {
		c.Execute(context.Background(), "ls", map[string]any{"n": float64(i)})
	}
	if len(c.cache) > 2 {
		t.Errorf("cache grew past maxSize: %d entries", len(c.cache))
	}
}

func TestCachingRegistry_Clear(t *testing.T) {
	inner := newCountingRegistry()
	c := WithCache(inner, time.Minute, 10)

	c.Execute(context.Background(), "ls", nil)
	c.Clear()
	c.Execute(context.Background(), "ls", nil)

	if inner.counts["ls"] != 2 {
		t.Errorf("cleared cache must re-execute")
	}
	hits, misses := c.Stats()
	if hits != 0 || misses != 1 {
		t.Errorf("stats after clear = %d hits / %d misses", hits, misses)
	}
}
