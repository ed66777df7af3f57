package engine

import "strings"

// modelAlias maps a canonical model id to the informal names users type.
// Order matters: ties in fuzzy matching keep the first entry found.
var modelAliases = []struct {
	canonical string
	aliases   []string
}{
	{"claude-opus-4-1", []string{"opus", "claude-opus"}},
	{"claude-sonnet-4-5", []string{"sonnet", "claude-sonnet"}},
	{"claude-3-5-haiku-latest", []string{"haiku", "claude-haiku"}},
	{"gpt-4o", []string{"gpt4", "gpt-4", "4o"}},
	{"gpt-4o-mini", []string{"gpt4-mini", "4o-mini", "mini"}},
	{"o3-mini", []string{"o3mini"}},
	{"gemini-2.5-pro", []string{"gemini", "gemini-pro"}},
	{"gemini-2.5-flash", []string{"flash", "gemini-flash"}},
	{"llama-3.3-70b", []string{"llama", "llama3"}},
}

const defaultFuzzyThreshold = 0.4

// MatchModelName resolves an informal model name to a canonical id using
// the default fuzzy threshold. Returns "" when nothing matches; callers
// then treat the raw input as the canonical id.
func MatchModelName(input string) string {
	return MatchModelNameThreshold(input, defaultFuzzyThreshold)
}

// MatchModelNameThreshold resolves in three passes over normalized forms:
// exact alias match, substring match (input length > 1), then fuzzy
// edit-distance scored as distance/max(len); the lowest score under the
// threshold wins and ties keep the first found.
func MatchModelNameThreshold(input string, threshold float64) string {
	norm := normalizeModelName(input)
	if norm == "" {
		return ""
	}

	// Pass 1: exact.
	for _, entry := range modelAliases {
		if normalizeModelName(entry.canonical) == norm {
			return entry.canonical
		}
		for _, a := range entry.aliases {
			if normalizeModelName(a) == norm {
				return entry.canonical
			}
		}
	}

	// Pass 2: substring. A single character would match pathologically.
	if len(norm) > 1 {
		for _, entry := range modelAliases {
			for _, a := range entry.aliases {
				if strings.Contains(normalizeModelName(a), norm) {
					return entry.canonical
				}
			}
		}
	}

	// Pass 3: fuzzy.
	best := ""
	bestScore := threshold
	for _, entry := range modelAliases {
		for _, a := range entry.aliases {
			na := normalizeModelName(a)
			d := editDistance(norm, na)
			max := len(norm)
			if len(na) > max {
				max = len(na)
			}
			if max == 0 {
				continue
			}
			score := float64(d) / float64(max)
			if score < bestScore {
				bestScore = score
				best = entry.canonical
			}
		}
	}
	return best
}

// ProviderForModel derives the owning backend from a canonical model id.
// Unmatched ids default to the primary backend.
func ProviderForModel(id string) Backend {
	norm := strings.ToLower(id)
	switch {
	case strings.Contains(norm, "claude"):
		return BackendAnthropic
	case strings.Contains(norm, "gemini"), strings.Contains(norm, "gemma"), strings.Contains(norm, "llama"):
		return BackendGemini
	default:
		return BackendOpenAI
	}
}

// normalizeModelName lower-cases and strips non-alphanumeric characters so
// "GPT-4o" and "gpt4o" compare equal.
func normalizeModelName(s string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(s) {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// editDistance is the Levenshtein distance with two rolling rows.
func editDistance(a, b string) int {
	if a == b {
		return 0
	}
	if len(a) == 0 {
		return len(b)
	}
	if len(b) == 0 {
		return len(a)
	}

	prev := make([]int, len(b)+1)
	curr := make([]int, len(b)+1)
	for j := range prev {
		prev[j] = j
	}
	for i := 1; i <= len(a); i++ {
		curr[0] = i
		for j := 1; j <= len(b); j++ {
			cost := 1
			if a[i-1] == b[j-1] {
				cost = 0
			}
			curr[j] = min3(prev[j]+1, curr[j-1]+1, prev[j-1]+cost)
		}
		prev, curr = curr, prev
	}
	return prev[len(b)]
}

func min3(a, b, c int) int {
	if b < a {
		a = b
	}
	if c < a {
		a = c
	}
	return a
}
