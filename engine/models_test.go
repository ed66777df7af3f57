package engine

import "testing"

func TestMatchModelName_Exact(t *testing.T) {
	if got := MatchModelName("opus"); got != "claude-opus-4-1" {
		t.Errorf("opus resolved to %q", got)
	}
	if got := MatchModelName("gpt4"); got != "gpt-4o" {
		t.Errorf("gpt4 resolved to %q", got)
	}
	// Normalization makes case and punctuation irrelevant.
	if got := MatchModelName("GPT-4"); got != "gpt-4o" {
		t.Errorf("GPT-4 resolved to %q", got)
	}
}

func TestMatchModelName_CanonicalPassesThrough(t *testing.T) {
	if got := MatchModelName("claude-sonnet-4-5"); got != "claude-sonnet-4-5" {
		t.Errorf("canonical id resolved to %q", got)
	}
}

func TestMatchModelName_Substring(t *testing.T) {
	// "sonn" is contained in the normalized "sonnet" alias.
	if got := MatchModelName("sonn"); got != "claude-sonnet-4-5" {
		t.Errorf("sonn resolved to %q", got)
	}
}

func TestMatchModelName_Fuzzy(t *testing.T) {
	// One transposition away from "sonnet".
	if got := MatchModelName("sonnte"); got != "claude-sonnet-4-5" {
		t.Errorf("sonnte resolved to %q", got)
	}
}

func TestMatchModelName_Unknown(t *testing.T) {
	if got := MatchModelName("totally-unknown-xyz"); got != "" {
		t.Errorf("expected no match, got %q", got)
	}
	if got := MatchModelName(""); got != "" {
		t.Errorf("expected no match for empty input, got %q", got)
	}
	// Single characters never substring-match.
	if got := MatchModelName("o"); got != "" {
		t.Errorf("expected no match for single char, got %q", got)
	}
}

func TestProviderForModel(t *testing.T) {
	cases := []struct {
		id   string
		want Backend
	}{
		{"claude-opus-4-1", BackendAnthropic},
		{"gpt-4o", BackendOpenAI},
		{"o3-mini", BackendOpenAI},
		{"gemini-2.5-pro", BackendGemini},
		{"llama-3.3-70b", BackendGemini},
		{"some-unknown-model", BackendOpenAI}, // primary backend default
	}
	for _, tc := range cases {
		if got := ProviderForModel(tc.id); got != tc.want {
			t.Errorf("ProviderForModel(%q) = %q, want %q", tc.id, got, tc.want)
		}
	}
}

func TestEditDistance(t *testing.T) {
	cases := []struct {
		a, b string
		want int
	}{
		{"", "", 0},
		{"abc", "", 3},
		{"kitten", "sitting", 3},
		{"sonnet", "sonnet", 0},
		{"sonnet", "sonnte", 2},
	}
	for _, tc := range cases {
		if got := editDistance(tc.a, tc.b); got != tc.want {
			t.Errorf("editDistance(%q, %q) = %d, want %d", tc.a, tc.b, got, tc.want)
		}
	}
}
