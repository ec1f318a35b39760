package blocks

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/formflow/formflow/pkg/schema"
)

func branchBlock() *schema.Block {
	return testBlock(schema.BlockTypeBranch, schema.BranchConfig{
		Branches: []schema.BranchRule{
			{When: schema.Condition{Key: "age", Op: schema.OpGreaterThan, Value: "18"}, GotoSectionID: "adult"},
		},
		FallbackSectionID: "minor",
	})
}

func TestBranch_FirstMatchWins(t *testing.T) {
	r := NewBranchRunner()
	block := testBlock(schema.BlockTypeBranch, schema.BranchConfig{
		Branches: []schema.BranchRule{
			{When: schema.Condition{Key: "tier", Op: schema.OpEquals, Value: "gold"}, GotoSectionID: "vip"},
			{When: schema.Condition{Key: "tier", Op: schema.OpIsNotEmpty}, GotoSectionID: "member"},
		},
		FallbackSectionID: "guest",
	})

	result := r.Execute(context.Background(), liveContext(map[string]any{"tier": "gold"}), block)
	require.True(t, result.Success)
	assert.Equal(t, "vip", result.NextSectionID)

	result = r.Execute(context.Background(), liveContext(map[string]any{"tier": "silver"}), block)
	assert.Equal(t, "member", result.NextSectionID)
}

func TestBranch_Totality(t *testing.T) {
	r := NewBranchRunner()

	// With a fallback configured, every input yields a next section.
	inputs := []map[string]any{
		{"age": "25"},
		{"age": "17"},
		{"age": "abc"}, // NaN comparison is false, falls to fallback
		{},
		nil,
	}
	for _, data := range inputs {
		result := r.Execute(context.Background(), liveContext(data), branchBlock())
		require.True(t, result.Success)
		assert.NotEmpty(t, result.NextSectionID)
	}
}

func TestBranch_NaNFallsToFallback(t *testing.T) {
	r := NewBranchRunner()

	result := r.Execute(context.Background(), liveContext(map[string]any{"age": "17"}), branchBlock())
	assert.Equal(t, "minor", result.NextSectionID)

	result = r.Execute(context.Background(), liveContext(map[string]any{"age": "abc"}), branchBlock())
	assert.Equal(t, "minor", result.NextSectionID)

	result = r.Execute(context.Background(), liveContext(map[string]any{"age": "19"}), branchBlock())
	assert.Equal(t, "adult", result.NextSectionID)
}

func TestBranch_NoFallbackDefaultsAdvancement(t *testing.T) {
	r := NewBranchRunner()
	block := testBlock(schema.BlockTypeBranch, schema.BranchConfig{
		Branches: []schema.BranchRule{
			{When: schema.Condition{Key: "flag", Op: schema.OpEquals, Value: true}, GotoSectionID: "special"},
		},
	})

	result := r.Execute(context.Background(), liveContext(nil), block)
	require.True(t, result.Success)
	assert.Empty(t, result.NextSectionID)
}
