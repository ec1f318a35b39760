package expressions

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGoJQEngine_SingleOutput(t *testing.T) {
	engine := NewGoJQEngine()

	out, err := engine.Evaluate(context.Background(), `.body.id`, map[string]any{
		"body": map[string]any{"id": "abc-1"},
	})
	require.NoError(t, err)
	assert.Equal(t, "abc-1", out)
}

func TestGoJQEngine_MultipleOutputs(t *testing.T) {
	engine := NewGoJQEngine()

	out, err := engine.Evaluate(context.Background(), `.items[].name`, map[string]any{
		"items": []any{
			map[string]any{"name": "a"},
			map[string]any{"name": "b"},
		},
	})
	require.NoError(t, err)
	assert.Equal(t, []any{"a", "b"}, out)
}

func TestGoJQEngine_NoOutput(t *testing.T) {
	engine := NewGoJQEngine()

	out, err := engine.Evaluate(context.Background(), `.items[]?`, map[string]any{})
	require.NoError(t, err)
	assert.Nil(t, out)
}

func TestGoJQEngine_ParseError(t *testing.T) {
	engine := NewGoJQEngine()

	_, err := engine.Evaluate(context.Background(), `.[unbalanced`, map[string]any{})
	require.Error(t, err)
}

func TestGoJQEngine_NormalizesIntegers(t *testing.T) {
	engine := NewGoJQEngine()

	out, err := engine.Evaluate(context.Background(), `.n + 1`, map[string]any{"n": 41})
	require.NoError(t, err)
	assert.EqualValues(t, 42, out)
}
