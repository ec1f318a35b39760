// Package conditions implements the comparison DSL evaluated against a run's
// flat key-value data bag. Evaluation is pure: no I/O, no mutation, and it
// never panics or errors — malformed operands fail closed to false.
package conditions

import (
	"encoding/json"
	"reflect"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/formflow/formflow/pkg/schema"
)

// maxRegexPattern caps assertion regex length as a ReDoS mitigation.
// Longer patterns evaluate to false, never to an error.
const maxRegexPattern = 100

// Evaluate applies a single condition to the data bag.
func Evaluate(cond schema.Condition, data map[string]any) bool {
	actual := ResolvePath(data, cond.Key)
	return compare(cond.Op, actual, cond.Value)
}

// EvaluateAssert applies an assertion. Assertions support every comparison
// operator plus regex. The CEL expression variant is handled by the validate
// runner, not here.
func EvaluateAssert(a schema.AssertExpression, data map[string]any) bool {
	if a.Op == schema.OpRegex {
		return matchRegex(ResolvePath(data, a.Key), a.Value)
	}
	return Evaluate(schema.Condition{Key: a.Key, Op: a.Op, Value: a.Value}, data)
}

// ResolvePath traverses a dot-separated path into nested maps. A direct key
// hit wins (keys may legitimately contain dots); any nil or non-map
// intermediate short-circuits to nil.
func ResolvePath(data map[string]any, path string) any {
	if data == nil || path == "" {
		return nil
	}
	if v, ok := data[path]; ok {
		return v
	}
	segments := strings.Split(path, ".")
	var current any = data
	for _, seg := range segments {
		m, ok := current.(map[string]any)
		if !ok {
			return nil
		}
		current, ok = m[seg]
		if !ok {
			return nil
		}
	}
	return current
}

func compare(op schema.ComparisonOperator, actual, expected any) bool {
	switch op {
	case schema.OpEquals:
		return looseEquals(actual, expected)
	case schema.OpNotEquals:
		return !looseEquals(actual, expected)
	case schema.OpContains:
		return contains(actual, expected)
	case schema.OpGreaterThan:
		a, aok := toFloat(actual)
		b, bok := toFloat(expected)
		return aok && bok && a > b
	case schema.OpLessThan:
		a, aok := toFloat(actual)
		b, bok := toFloat(expected)
		return aok && bok && a < b
	case schema.OpIsEmpty:
		return isEmpty(actual)
	case schema.OpIsNotEmpty:
		return !isEmpty(actual)
	default:
		return false
	}
}

// looseEquals implements the DSL's equality semantics: arrays compare as
// order-independent sorted-JSON sets (multi-select answers), strings compare
// case-insensitively, booleans coerce both sides to truthiness, everything
// else compares as normalized deep equality.
func looseEquals(a, b any) bool {
	aArr, aIsArr := toAnySlice(a)
	bArr, bIsArr := toAnySlice(b)
	if aIsArr && bIsArr {
		return sortedJSON(aArr) == sortedJSON(bArr)
	}
	if aIsArr != bIsArr {
		return false
	}

	aStr, aIsStr := a.(string)
	bStr, bIsStr := b.(string)
	if aIsStr && bIsStr {
		return strings.EqualFold(aStr, bStr)
	}

	if _, ok := a.(bool); ok {
		return truthy(a) == truthy(b)
	}
	if _, ok := b.(bool); ok {
		return truthy(a) == truthy(b)
	}

	return reflect.DeepEqual(normalize(a), normalize(b))
}

func contains(haystack, needle any) bool {
	if arr, ok := toAnySlice(haystack); ok {
		for _, item := range arr {
			if looseEquals(item, needle) {
				return true
			}
		}
		return false
	}
	if s, ok := haystack.(string); ok {
		return strings.Contains(strings.ToLower(s), strings.ToLower(stringify(needle)))
	}
	return false
}

func isEmpty(v any) bool {
	switch val := v.(type) {
	case nil:
		return true
	case string:
		return strings.TrimSpace(val) == ""
	case []any:
		return len(val) == 0
	case []map[string]any:
		return len(val) == 0
	case []string:
		return len(val) == 0
	case map[string]any:
		return len(val) == 0
	default:
		return false
	}
}

func matchRegex(actual, pattern any) bool {
	p, ok := pattern.(string)
	if !ok || len(p) > maxRegexPattern {
		return false
	}
	re, err := regexp.Compile(p)
	if err != nil {
		return false
	}
	return re.MatchString(stringify(actual))
}

// toFloat parses any operand as a float. Non-numeric operands report false,
// making greater_than/less_than fail closed rather than error.
func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(n), 64)
		return f, err == nil
	default:
		return 0, false
	}
}

func truthy(v any) bool {
	switch val := v.(type) {
	case nil:
		return false
	case bool:
		return val
	case string:
		return val != ""
	case float64:
		return val != 0
	case int:
		return val != 0
	default:
		return true
	}
}

func toAnySlice(v any) ([]any, bool) {
	switch arr := v.(type) {
	case []any:
		return arr, true
	case []string:
		out := make([]any, len(arr))
		for i, s := range arr {
			out[i] = s
		}
		return out, true
	default:
		return nil, false
	}
}

// sortedJSON renders an array as its sorted element-wise JSON encoding so
// equality is order-independent.
func sortedJSON(arr []any) string {
	parts := make([]string, 0, len(arr))
	for _, item := range arr {
		b, err := json.Marshal(normalize(item))
		if err != nil {
			parts = append(parts, stringify(item))
			continue
		}
		parts = append(parts, string(b))
	}
	sort.Strings(parts)
	return strings.Join(parts, ",")
}

// normalize converts Go numeric types to float64 so DeepEqual works across
// JSON boundaries, recursing into containers.
func normalize(v any) any {
	switch val := v.(type) {
	case int:
		return float64(val)
	case int32:
		return float64(val)
	case int64:
		return float64(val)
	case float32:
		return float64(val)
	case json.Number:
		if f, err := val.Float64(); err == nil {
			return f
		}
		return v
	case map[string]any:
		out := make(map[string]any, len(val))
		for k, item := range val {
			out[k] = normalize(item)
		}
		return out
	case []any:
		out := make([]any, len(val))
		for i, item := range val {
			out[i] = normalize(item)
		}
		return out
	default:
		return v
	}
}

func stringify(v any) string {
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
