package expressions

import (
	"encoding/json"
	"strings"

	"github.com/formflow/formflow/internal/conditions"
)

// Interpolate resolves {{variableName}} tokens in a value against the run's
// context data. A string that is exactly one token returns the referenced
// value with its original type; tokens embedded in a longer string are
// stringified in place. Unresolvable tokens resolve to an empty value rather
// than failing. Non-string values pass through unchanged.
func Interpolate(v any, data map[string]any) any {
	s, ok := v.(string)
	if !ok || !strings.Contains(s, "{{") {
		return v
	}

	// Whole-token reference keeps the value's type.
	trimmed := strings.TrimSpace(s)
	if strings.HasPrefix(trimmed, "{{") && strings.HasSuffix(trimmed, "}}") {
		inner := strings.TrimSpace(trimmed[2 : len(trimmed)-2])
		if inner != "" && !strings.Contains(inner, "{{") && !strings.Contains(inner, "}}") {
			return conditions.ResolvePath(data, inner)
		}
	}

	var out strings.Builder
	out.Grow(len(s))
	for {
		idx := strings.Index(s, "{{")
		if idx == -1 {
			out.WriteString(s)
			break
		}
		out.WriteString(s[:idx])
		rest := s[idx+2:]
		end := strings.Index(rest, "}}")
		if end == -1 {
			// Unclosed token: emit as-is.
			out.WriteString(s[idx:])
			break
		}
		name := strings.TrimSpace(rest[:end])
		out.WriteString(stringifyValue(conditions.ResolvePath(data, name)))
		s = rest[end+2:]
	}
	return out.String()
}

func stringifyValue(v any) string {
	switch val := v.(type) {
	case nil:
		return ""
	case string:
		return val
	default:
		b, err := json.Marshal(val)
		if err != nil {
			return ""
		}
		return strings.Trim(string(b), `"`)
	}
}

// HasToken reports whether a string value contains a {{...}} reference.
func HasToken(v any) bool {
	s, ok := v.(string)
	return ok && strings.Contains(s, "{{")
}
