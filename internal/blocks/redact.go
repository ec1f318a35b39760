package blocks

import "strings"

// sensitiveKeywords is the deny-list matched as a case-insensitive substring
// of key names. Best-effort defense in depth for audit logging, not a
// complete PII boundary.
var sensitiveKeywords = []string{
	"password", "token", "secret", "ssn",
	"email", "phone", "address", "dob",
	"apikey", "api_key", "credential",
}

const redactedPlaceholder = "[REDACTED]"

// Redact deep-clones a value, replacing the values of keys whose names match
// the sensitive-keyword list. Applied before any audit logging of block
// inputs; the original is never modified.
func Redact(v any) any {
	switch val := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(val))
		for k, item := range val {
			if sensitiveKey(k) {
				out[k] = redactedPlaceholder
				continue
			}
			out[k] = Redact(item)
		}
		return out
	case []any:
		out := make([]any, len(val))
		for i, item := range val {
			out[i] = Redact(item)
		}
		return out
	default:
		return v
	}
}

func sensitiveKey(key string) bool {
	lower := strings.ToLower(key)
	for _, kw := range sensitiveKeywords {
		if strings.Contains(lower, kw) {
			return true
		}
	}
	return false
}
