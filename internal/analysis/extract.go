// internal/analysis/extract.go
package analysis

import (
	"strings"

	"github.com/tidwall/gjson"
)

// ExtractJSON isolates the JSON object in a model reply. Providers ignore the
// "JSON only" instruction often enough that fences, prose around the object
// and trailing commas are all expected.
func ExtractJSON(text string) (string, error) {
	const op = "analysis.ExtractJSON"

	cleaned := stripFences(strings.TrimSpace(text))

	start := strings.Index(cleaned, "{")
	end := strings.LastIndex(cleaned, "}")
	if start == -1 || end == -1 || end <= start {
		e := newError(KindMalformed, op, "no JSON object in response")
		e.Snippet = truncate(text, snippetLimit)
		return "", e
	}

	candidate := removeTrailingCommas(cleaned[start : end+1])
	if !gjson.Valid(candidate) {
		e := newError(KindMalformed, op, "response is not valid JSON after repair")
		e.Snippet = truncate(text, snippetLimit)
		return "", e
	}
	return candidate, nil
}

// stripFences drops markdown fence lines such as ``` and ```json.
func stripFences(s string) string {
	if !strings.Contains(s, "```") {
		return s
	}
	lines := strings.Split(s, "\n")
	kept := lines[:0]
	for _, line := range lines {
		trimmed := strings.TrimSpace(line)
		if strings.HasPrefix(trimmed, "```") {
			// A fence can share its line with the payload: ```json{"a":1}```
			rest := strings.TrimPrefix(trimmed, "```")
			rest = strings.TrimPrefix(rest, "json")
			rest = strings.TrimSuffix(rest, "```")
			if strings.TrimSpace(rest) == "" {
				continue
			}
			line = rest
		} else if strings.HasSuffix(trimmed, "```") {
			line = strings.TrimSuffix(trimmed, "```")
		}
		kept = append(kept, line)
	}
	return strings.Join(kept, "\n")
}

// removeTrailingCommas deletes commas that directly precede a closing brace
// or bracket, leaving string contents untouched.
func removeTrailingCommas(s string) string {
	var b strings.Builder
	b.Grow(len(s))

	inString := false
	escaped := false
	for i := 0; i < len(s); i++ {
		c := s[i]
		if inString {
			b.WriteByte(c)
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			continue
		}

		switch c {
		case '"':
			inString = true
		case ',':
			j := i + 1
			for j < len(s) && isJSONSpace(s[j]) {
				j++
			}
			if j < len(s) && (s[j] == '}' || s[j] == ']') {
				continue
			}
		}
		b.WriteByte(c)
	}
	return b.String()
}

func isJSONSpace(c byte) bool {
	return c == ' ' || c == '\n' || c == '\r' || c == '\t'
}
