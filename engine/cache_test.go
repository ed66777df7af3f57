package engine

import (
	"strings"
	"testing"
)

func aggressiveConfig() Config {
	return Config{
		Model: "claude-sonnet-4-5",
		Caching: CacheConfig{
			Enabled:  true,
			Strategy: CacheAggressive,
		},
	}
}

// bigText clears the default 1024-token gate at the fixed 4 chars/token
// estimate.
func bigText(multiple int) string {
	return strings.Repeat("x", defaultMinCacheTokens*estimatedCharsPerToken*multiple)
}

func TestApply_BelowGateNeverMarked(t *testing.T) {
	shaper := NewPromptCacheShaper(aggressiveConfig())
	msgs := []Message{
		{Role: RoleSystem, Content: "short system prompt"},
		{Role: RoleUser, Content: "hi"},
	}
	out, _, bps := shaper.Apply(msgs, nil, "claude-sonnet-4-5")
	if out[0].CacheControl != nil {
		t.Errorf("system below gate must not be marked")
	}
	for _, bp := range bps {
		if bp.Type == BreakpointSystem {
			t.Errorf("unexpected system breakpoint: %+v", bps)
		}
	}
}

func TestApply_AggressiveMarksSystemAtFiveTimesGate(t *testing.T) {
	shaper := NewPromptCacheShaper(aggressiveConfig())
	msgs := []Message{
		{Role: RoleSystem, Content: bigText(5)},
		{Role: RoleUser, Content: "hi"},
	}
	out, _, bps := shaper.Apply(msgs, nil, "claude-sonnet-4-5")
	if out[0].CacheControl == nil || out[0].CacheControl.Type != "ephemeral" {
		t.Fatalf("system at 5x gate must carry an ephemeral marker")
	}
	foundSystem := false
	for _, bp := range bps {
		if bp.Type == BreakpointSystem {
			foundSystem = true
		}
	}
	if !foundSystem {
		t.Errorf("expected a system breakpoint, got %+v", bps)
	}
}

func TestApply_AggressiveMarksLastConversationMessage(t *testing.T) {
	shaper := NewPromptCacheShaper(aggressiveConfig())
	msgs := []Message{
		{Role: RoleSystem, Content: "sys"},
		{Role: RoleUser, Content: "first"},
		{Role: RoleAssistant, Content: "answer"},
		{Role: RoleUser, Content: "second"},
	}
	out, _, bps := shaper.Apply(msgs, nil, "claude-sonnet-4-5")
	if out[3].CacheControl == nil {
		t.Errorf("last conversation message must be marked")
	}
	found := false
	for _, bp := range bps {
		if bp.Type == BreakpointConversation && bp.Position == 3 {
			found = true
		}
	}
	if !found {
		t.Errorf("expected conversation breakpoint at index 3, got %+v", bps)
	}
}

func TestApply_ConservativeMarksSystemOnly(t *testing.T) {
	cfg := aggressiveConfig()
	cfg.Caching.Strategy = CacheConservative
	shaper := NewPromptCacheShaper(cfg)
	msgs := []Message{
		{Role: RoleSystem, Content: bigText(2)},
		{Role: RoleUser, Content: "hi"},
	}
	out, _, bps := shaper.Apply(msgs, nil, "claude-sonnet-4-5")
	if out[0].CacheControl == nil {
		t.Errorf("conservative must still mark a large system block")
	}
	if out[1].CacheControl != nil {
		t.Errorf("conservative must not mark conversation messages")
	}
	if len(bps) != 1 || bps[0].Type != BreakpointSystem {
		t.Errorf("expected exactly one system breakpoint, got %+v", bps)
	}
}

func TestApply_CustomAppliesNothing(t *testing.T) {
	cfg := aggressiveConfig()
	cfg.Caching.Strategy = CacheCustom
	shaper := NewPromptCacheShaper(cfg)
	msgs := []Message{{Role: RoleSystem, Content: bigText(5)}}
	out, _, bps := shaper.Apply(msgs, nil, "claude-sonnet-4-5")
	if out[0].CacheControl != nil || bps != nil {
		t.Errorf("custom strategy must not place automatic breakpoints")
	}
}

func TestApply_DisabledIsIdentity(t *testing.T) {
	cfg := aggressiveConfig()
	cfg.Caching.Enabled = false
	shaper := NewPromptCacheShaper(cfg)
	msgs := []Message{{Role: RoleSystem, Content: bigText(5)}}
	out, _, bps := shaper.Apply(msgs, nil, "claude-sonnet-4-5")
	if out[0].CacheControl != nil || bps != nil {
		t.Errorf("disabled caching must be a no-op")
	}
}

func TestApply_DoesNotMutateInput(t *testing.T) {
	shaper := NewPromptCacheShaper(aggressiveConfig())
	msgs := []Message{
		{Role: RoleSystem, Content: bigText(5)},
		{Role: RoleUser, Content: "hi"},
	}
	shaper.Apply(msgs, nil, "claude-sonnet-4-5")
	for i, m := range msgs {
		if m.CacheControl != nil {
			t.Errorf("input message %d was mutated", i)
		}
	}
}

func TestMinCacheTokens_SmallModelGate(t *testing.T) {
	if got := minCacheTokens("claude-sonnet-4-5"); got != defaultMinCacheTokens {
		t.Errorf("expected default gate, got %d", got)
	}
	if got := minCacheTokens("claude-3-5-haiku-latest"); got != smallModelMinCacheTokens {
		t.Errorf("expected small-model gate for haiku, got %d", got)
	}
}

func TestExtractCacheUsage(t *testing.T) {
	if got := ExtractCacheUsage(&Usage{PromptTokens: 10}); got != nil {
		t.Errorf("expected nil without cache fields, got %+v", got)
	}
	if got := ExtractCacheUsage(nil); got != nil {
		t.Errorf("expected nil for nil usage")
	}
	creation, read := 100, 900
	got := ExtractCacheUsage(&Usage{CacheCreationTokens: &creation, CacheReadTokens: &read})
	if got == nil || got.CreationTokens != 100 || got.ReadTokens != 900 {
		t.Fatalf("unexpected cache usage: %+v", got)
	}
}

func TestCalculateCacheEfficiency(t *testing.T) {
	creation, read := 100, 900
	eff := CalculateCacheEfficiency(&Usage{CacheCreationTokens: &creation, CacheReadTokens: &read})
	if eff == nil {
		t.Fatalf("expected efficiency metrics")
	}
	if eff.HitRatio != 0.9 {
		t.Errorf("expected hit ratio 0.9, got %v", eff.HitRatio)
	}
	if eff.EstimatedCostSaving <= 0 || eff.EstimatedSpeedup <= 1 {
		t.Errorf("savings estimates should be positive: %+v", eff)
	}
	if CalculateCacheEfficiency(&Usage{}) != nil {
		t.Errorf("expected nil without cache telemetry")
	}
}
