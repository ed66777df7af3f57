package engine

import (
	"encoding/json"
	"strings"

	"github.com/google/uuid"
)

// ParsedCall is one tool invocation recovered from free-form text.
type ParsedCall struct {
	Name string
	Args map[string]any
}

// ParseBracketCalls recovers structured tool calls from the bracket-syntax
// convention used by backends that do not emit structured calls natively:
//
//	[name(arg=value, other="quoted"), second(x=1)]
//
// Only the last [...] block in the text is inspected; earlier blocks are
// treated as prose. A malformed call unit (unbalanced parens, missing =)
// is skipped rather than failing the whole response.
func ParseBracketCalls(text string) []ParsedCall {
	block, ok := lastBracketBlock(text)
	if !ok {
		return nil
	}

	var calls []ParsedCall
	for _, unit := range splitTopLevel(block, ',') {
		if c, ok := parseCallUnit(unit); ok {
			calls = append(calls, c)
		}
	}
	return calls
}

// SynthesizeToolCalls converts parsed bracket calls into canonical
// ToolCalls with generated ids, ready for the normal tool-dispatch path.
func SynthesizeToolCalls(calls []ParsedCall) []ToolCall {
	out := make([]ToolCall, len(calls))
	for i, c := range calls {
		raw, _ := json.Marshal(c.Args)
		out[i] = ToolCall{
			ID:        "call_" + uuid.NewString(),
			Name:      c.Name,
			Arguments: string(raw),
		}
	}
	return out
}

// lastBracketBlock returns the content of the last complete top-level
// [...] block, honoring quoted strings so a bracket inside a string
// argument does not terminate the block.
func lastBracketBlock(text string) (string, bool) {
	start, depth := -1, 0
	var block string
	found := false
	var quote byte
	for i := 0; i < len(text); i++ {
		c := text[i]
		if quote != 0 {
			if c == '\\' {
				i++
			} else if c == quote {
				quote = 0
			}
			continue
		}
		switch c {
		case '"', '\'':
			if depth > 0 {
				quote = c
			}
		case '[':
			if depth == 0 {
				start = i
			}
			depth++
		case ']':
			if depth > 0 {
				depth--
				if depth == 0 && start >= 0 {
					block = text[start+1 : i]
					found = true
					start = -1
				}
			}
		}
	}
	return block, found
}

// splitTopLevel splits s on sep at paren/bracket depth zero, respecting
// quoted strings.
func splitTopLevel(s string, sep byte) []string {
	var parts []string
	depth := 0
	var quote byte
	last := 0
	for i := 0; i < len(s); i++ {
		c := s[i]
		if quote != 0 {
			if c == '\\' {
				i++
			} else if c == quote {
				quote = 0
			}
			continue
		}
		switch c {
		case '"', '\'':
			quote = c
		case '(', '[', '{':
			depth++
		case ')', ']', '}':
			depth--
		case sep:
			if depth == 0 {
				parts = append(parts, s[last:i])
				last = i + 1
			}
		}
	}
	parts = append(parts, s[last:])
	return parts
}

// parseCallUnit parses one name(arg=value, ...) unit.
func parseCallUnit(unit string) (ParsedCall, bool) {
	unit = strings.TrimSpace(unit)
	open := strings.IndexByte(unit, '(')
	if open <= 0 || !strings.HasSuffix(unit, ")") {
		return ParsedCall{}, false
	}
	name := strings.TrimSpace(unit[:open])
	if !isIdentifier(name) {
		return ParsedCall{}, false
	}

	argsText := unit[open+1 : len(unit)-1]
	args := map[string]any{}
	if strings.TrimSpace(argsText) != "" {
		for _, pair := range splitTopLevel(argsText, ',') {
			pair = strings.TrimSpace(pair)
			if pair == "" {
				continue
			}
			eq := indexTopLevel(pair, '=')
			if eq <= 0 {
				// Positional or malformed argument: the whole unit is
				// unusable, skip it.
				return ParsedCall{}, false
			}
			key := strings.TrimSpace(pair[:eq])
			if !isIdentifier(key) {
				return ParsedCall{}, false
			}
			args[key] = parseArgValue(strings.TrimSpace(pair[eq+1:]))
		}
	}
	return ParsedCall{Name: name, Args: args}, true
}

// indexTopLevel finds the first sep outside quotes and nesting.
func indexTopLevel(s string, sep byte) int {
	depth := 0
	var quote byte
	for i := 0; i < len(s); i++ {
		c := s[i]
		if quote != 0 {
			if c == '\\' {
				i++
			} else if c == quote {
				quote = 0
			}
			continue
		}
		switch c {
		case '"', '\'':
			quote = c
		case '(', '[', '{':
			depth++
		case ')', ']', '}':
			depth--
		case sep:
			if depth == 0 {
				return i
			}
		}
	}
	return -1
}

// parseArgValue strips quotes from string literals; bare tokens are tried
// as JSON scalars so numbers and booleans come through typed, and fall
// back to the literal text.
func parseArgValue(v string) any {
	if len(v) >= 2 {
		if (v[0] == '"' && v[len(v)-1] == '"') || (v[0] == '\'' && v[len(v)-1] == '\'') {
			inner := v[1 : len(v)-1]
			inner = strings.ReplaceAll(inner, `\`+string(v[0]), string(v[0]))
			return inner
		}
	}
	var parsed any
	if err := json.Unmarshal([]byte(v), &parsed); err == nil {
		return parsed
	}
	return v
}

func isIdentifier(s string) bool {
	if s == "" {
		return false
	}
	for i, r := range s {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r == '_':
		case r >= '0' && r <= '9':
			if i == 0 {
				return false
			}
		default:
			return false
		}
	}
	return true
}
