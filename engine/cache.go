package engine

import "strings"

// BreakpointType identifies which section of the outbound composite a
// cache breakpoint was attached to.
type BreakpointType string

const (
	BreakpointSystem       BreakpointType = "system"
	BreakpointTools        BreakpointType = "tools"
	BreakpointConversation BreakpointType = "conversation"
	BreakpointCustom       BreakpointType = "custom"
)

// CacheBreakpoint records one marker placed on an outbound request.
// Breakpoints are recomputed per request and never persisted. Position is
// an index into the conversation for conversation breakpoints and -1 for
// the system and tool blocks.
type CacheBreakpoint struct {
	Position int            `json:"position"`
	Type     BreakpointType `json:"type"`
}

// estimatedCharsPerToken is a fixed character-to-token ratio. The estimate
// is approximate; callers must not treat it as exact.
const estimatedCharsPerToken = 4

// Minimum cacheable sizes per Anthropic's documented rules. Content below
// the gate would not qualify for a cache discount and can trigger
// backend-side errors, so it is never marked.
const (
	defaultMinCacheTokens    = 1024
	smallModelMinCacheTokens = 2048
)

// smallCacheModels is the named subset of models with the higher gate.
var smallCacheModels = []string{"haiku", "gemma", "mini"}

// EstimateTokens approximates the token count of a text.
func EstimateTokens(text string) int {
	return len(text) / estimatedCharsPerToken
}

// minCacheTokens returns the minimum-token gate for a model.
func minCacheTokens(model string) int {
	norm := strings.ToLower(model)
	for _, m := range smallCacheModels {
		if strings.Contains(norm, m) {
			return smallModelMinCacheTokens
		}
	}
	return defaultMinCacheTokens
}

// PromptCacheShaper decides where cache-breakpoint markers are attached on
// outbound requests. It applies only when the active backend supports
// ephemeral caching and caching is enabled in configuration.
type PromptCacheShaper struct {
	cfg CacheConfig
	ttl string
}

// NewPromptCacheShaper builds a shaper from the caching section of a
// config snapshot. An aggressive strategy with no section flags set means
// all sections; flags only narrow it.
func NewPromptCacheShaper(cfg Config) *PromptCacheShaper {
	cc := cfg.Caching
	if cc.Strategy == "" {
		cc.Strategy = CacheConservative
	}
	if cc.Strategy == CacheAggressive && !cc.System && !cc.Tools && !cc.Conversation {
		cc.System, cc.Tools, cc.Conversation = true, true, true
	}
	return &PromptCacheShaper{cfg: cc, ttl: cfg.cacheTTL()}
}

// Apply annotates copies of the messages and tools with cache_control
// markers per the configured strategy and returns the breakpoints chosen.
// The inputs are never mutated. The breakpoint list exists for telemetry
// and tests, never for replay.
func (s *PromptCacheShaper) Apply(msgs []Message, tools []ToolSchema, model string) ([]Message, []ToolSchema, []CacheBreakpoint) {
	if s == nil || !s.cfg.Enabled || s.cfg.Strategy == CacheCustom {
		return msgs, tools, nil
	}

	out := make([]Message, len(msgs))
	copy(out, msgs)
	outTools := make([]ToolSchema, len(tools))
	copy(outTools, tools)

	gate := minCacheTokens(model)
	marker := &CacheControl{Type: "ephemeral", TTL: s.ttl}
	var bps []CacheBreakpoint

	// System block: both strategies mark it when it clears the gate.
	if s.cfg.Strategy == CacheConservative || s.cfg.System {
		for i := range out {
			if out[i].Role != RoleSystem {
				continue
			}
			if EstimateTokens(out[i].Content) >= gate {
				out[i].CacheControl = marker
				bps = append(bps, CacheBreakpoint{Position: -1, Type: BreakpointSystem})
			}
			break
		}
	}

	if s.cfg.Strategy == CacheConservative {
		return out, outTools, bps
	}

	// Tool-declaration block: marked on the last declaration when the
	// whole block clears the gate.
	if s.cfg.Tools && len(outTools) > 0 {
		total := 0
		for _, t := range outTools {
			total += EstimateTokens(t.Name + t.Description)
			for _, p := range t.InputSchema.Properties {
				if d, ok := p["description"].(string); ok {
					total += EstimateTokens(d)
				}
			}
		}
		if total >= gate {
			outTools[len(outTools)-1].CacheControl = marker
			bps = append(bps, CacheBreakpoint{Position: -1, Type: BreakpointTools})
		}
	}

	// Last conversation message, regardless of size: the prefix it closes
	// over is what gets cached.
	for i := len(out) - 1; i >= 0; i-- {
		if out[i].Role == RoleSystem {
			continue
		}
		if s.cfg.Conversation {
			out[i].CacheControl = marker
			bps = append(bps, CacheBreakpoint{Position: i, Type: BreakpointConversation})
		}
		break
	}

	return out, outTools, bps
}

// CacheUsage is backend-reported cache telemetry for one response.
type CacheUsage struct {
	CreationTokens int
	ReadTokens     int
}

// ExtractCacheUsage reads cache-creation/cache-read token counts from a
// response usage block. Returns nil when neither field is present.
func ExtractCacheUsage(u *Usage) *CacheUsage {
	if u == nil || (u.CacheCreationTokens == nil && u.CacheReadTokens == nil) {
		return nil
	}
	out := &CacheUsage{}
	if u.CacheCreationTokens != nil {
		out.CreationTokens = *u.CacheCreationTokens
	}
	if u.CacheReadTokens != nil {
		out.ReadTokens = *u.CacheReadTokens
	}
	return out
}

// Fixed factors for the illustrative efficiency estimates: cached reads
// are billed at a tenth of the base input rate and arrive roughly four
// times faster.
const (
	cacheReadDiscount = 0.9
	cacheReadSpeedup  = 4.0
)

// CacheEfficiency summarizes how well prompt caching worked for a
// response. The savings figures are informational metrics only; they never
// alter request behavior.
type CacheEfficiency struct {
	HitRatio            float64
	EstimatedCostSaving float64 // fraction of input cost avoided
	EstimatedSpeedup    float64
}

// CalculateCacheEfficiency derives hit ratio and savings estimates from a
// usage block. Returns nil when the usage carries no cache telemetry.
func CalculateCacheEfficiency(u *Usage) *CacheEfficiency {
	cu := ExtractCacheUsage(u)
	if cu == nil {
		return nil
	}
	total := cu.ReadTokens + cu.CreationTokens
	if total == 0 {
		return &CacheEfficiency{}
	}
	ratio := float64(cu.ReadTokens) / float64(total)
	return &CacheEfficiency{
		HitRatio:            ratio,
		EstimatedCostSaving: ratio * cacheReadDiscount,
		EstimatedSpeedup:    1 + ratio*(cacheReadSpeedup-1),
	}
}
