package conditions

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/formflow/formflow/pkg/schema"
)

func TestEvaluate_Equals(t *testing.T) {
	data := map[string]any{
		"name":   "Alice",
		"age":    float64(30),
		"tags":   []any{"b", "a"},
		"active": true,
	}

	tests := []struct {
		name string
		cond schema.Condition
		want bool
	}{
		{"string case-insensitive", schema.Condition{Key: "name", Op: schema.OpEquals, Value: "ALICE"}, true},
		{"string mismatch", schema.Condition{Key: "name", Op: schema.OpEquals, Value: "Bob"}, false},
		{"number", schema.Condition{Key: "age", Op: schema.OpEquals, Value: float64(30)}, true},
		{"int vs float normalized", schema.Condition{Key: "age", Op: schema.OpEquals, Value: 30}, true},
		{"array order-independent", schema.Condition{Key: "tags", Op: schema.OpEquals, Value: []any{"a", "b"}}, true},
		{"array mismatch", schema.Condition{Key: "tags", Op: schema.OpEquals, Value: []any{"a"}}, false},
		{"array vs scalar", schema.Condition{Key: "tags", Op: schema.OpEquals, Value: "a"}, false},
		{"bool coercion true", schema.Condition{Key: "active", Op: schema.OpEquals, Value: "yes"}, true},
		{"bool coercion false side", schema.Condition{Key: "name", Op: schema.OpEquals, Value: true}, true},
		{"not_equals", schema.Condition{Key: "name", Op: schema.OpNotEquals, Value: "Bob"}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Evaluate(tt.cond, data))
		})
	}
}

func TestEvaluate_Contains(t *testing.T) {
	data := map[string]any{
		"roles": []any{"admin", "editor"},
		"bio":   "Works on Billing",
	}

	assert.True(t, Evaluate(schema.Condition{Key: "roles", Op: schema.OpContains, Value: "ADMIN"}, data))
	assert.False(t, Evaluate(schema.Condition{Key: "roles", Op: schema.OpContains, Value: "viewer"}, data))
	assert.True(t, Evaluate(schema.Condition{Key: "bio", Op: schema.OpContains, Value: "billing"}, data))
	assert.False(t, Evaluate(schema.Condition{Key: "missing", Op: schema.OpContains, Value: "x"}, data))
}

func TestEvaluate_NumericComparisons(t *testing.T) {
	data := map[string]any{
		"age":     "17",
		"balance": float64(100.5),
		"junk":    "abc",
	}

	assert.True(t, Evaluate(schema.Condition{Key: "balance", Op: schema.OpGreaterThan, Value: 100}, data))
	assert.True(t, Evaluate(schema.Condition{Key: "age", Op: schema.OpLessThan, Value: "18"}, data))

	// Non-numeric operands are defined as false, never an error.
	assert.False(t, Evaluate(schema.Condition{Key: "junk", Op: schema.OpGreaterThan, Value: "18"}, data))
	assert.False(t, Evaluate(schema.Condition{Key: "junk", Op: schema.OpLessThan, Value: "18"}, data))
	assert.False(t, Evaluate(schema.Condition{Key: "age", Op: schema.OpGreaterThan, Value: "not-a-number"}, data))
	assert.False(t, Evaluate(schema.Condition{Key: "missing", Op: schema.OpGreaterThan, Value: 1}, data))
}

func TestEvaluate_Emptiness(t *testing.T) {
	data := map[string]any{
		"blank":  "   ",
		"filled": "x",
		"none":   nil,
		"list":   []any{},
		"obj":    map[string]any{},
		"zero":   float64(0),
	}

	assert.True(t, Evaluate(schema.Condition{Key: "blank", Op: schema.OpIsEmpty}, data))
	assert.True(t, Evaluate(schema.Condition{Key: "none", Op: schema.OpIsEmpty}, data))
	assert.True(t, Evaluate(schema.Condition{Key: "list", Op: schema.OpIsEmpty}, data))
	assert.True(t, Evaluate(schema.Condition{Key: "obj", Op: schema.OpIsEmpty}, data))
	assert.True(t, Evaluate(schema.Condition{Key: "absent", Op: schema.OpIsEmpty}, data))
	assert.False(t, Evaluate(schema.Condition{Key: "filled", Op: schema.OpIsEmpty}, data))
	// Numbers are never empty, including zero.
	assert.False(t, Evaluate(schema.Condition{Key: "zero", Op: schema.OpIsEmpty}, data))
	assert.True(t, Evaluate(schema.Condition{Key: "filled", Op: schema.OpIsNotEmpty}, data))
}

func TestResolvePath(t *testing.T) {
	data := map[string]any{
		"user": map[string]any{
			"address": map[string]any{"city": "Lyon"},
		},
		"dotted.key": "direct",
	}

	assert.Equal(t, "Lyon", ResolvePath(data, "user.address.city"))
	assert.Equal(t, "direct", ResolvePath(data, "dotted.key"))
	assert.Nil(t, ResolvePath(data, "user.missing.city"))
	assert.Nil(t, ResolvePath(data, "user.address.city.deeper"))
	assert.Nil(t, ResolvePath(nil, "x"))
}

func TestEvaluateAssert_Regex(t *testing.T) {
	data := map[string]any{"email": "a@b.co", "count": float64(42)}

	assert.True(t, EvaluateAssert(schema.AssertExpression{
		Key: "email", Op: schema.OpRegex, Value: `^[^@]+@[^@]+$`,
	}, data))
	assert.False(t, EvaluateAssert(schema.AssertExpression{
		Key: "email", Op: schema.OpRegex, Value: `^\d+$`,
	}, data))
	// Non-string values are stringified before matching.
	assert.True(t, EvaluateAssert(schema.AssertExpression{
		Key: "count", Op: schema.OpRegex, Value: `^\d+$`,
	}, data))
}

func TestEvaluateAssert_RegexFailClosed(t *testing.T) {
	data := map[string]any{"v": "anything"}

	// Invalid pattern syntax never throws.
	assert.False(t, EvaluateAssert(schema.AssertExpression{
		Key: "v", Op: schema.OpRegex, Value: `([`,
	}, data))

	// Patterns over the length cap are rejected outright.
	long := strings.Repeat("a", maxRegexPattern+1)
	assert.False(t, EvaluateAssert(schema.AssertExpression{
		Key: "v", Op: schema.OpRegex, Value: long,
	}, data))

	// Non-string pattern.
	assert.False(t, EvaluateAssert(schema.AssertExpression{
		Key: "v", Op: schema.OpRegex, Value: 12,
	}, data))
}

func TestEvaluate_UnknownOperator(t *testing.T) {
	assert.False(t, Evaluate(schema.Condition{Key: "x", Op: "between", Value: 1}, map[string]any{"x": 1}))
}

func TestEvaluate_Deterministic(t *testing.T) {
	data := map[string]any{"tags": []any{"x", "y", "z"}}
	cond := schema.Condition{Key: "tags", Op: schema.OpEquals, Value: []any{"z", "y", "x"}}
	for i := 0; i < 10; i++ {
		assert.True(t, Evaluate(cond, data))
	}
	// Evaluation must not mutate the input bag.
	assert.Equal(t, []any{"x", "y", "z"}, data["tags"])
}
