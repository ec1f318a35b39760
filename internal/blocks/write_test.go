package blocks

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/formflow/formflow/internal/store"
	"github.com/formflow/formflow/pkg/schema"
)

func TestWrite_MapsFieldsAndWrites(t *testing.T) {
	tables := newFakeTables()
	r := NewWriteRunner(testBase(), tables)
	bc := liveContext(map[string]any{"fullName": "Ada Lovelace", "planChoice": "pro"})
	bc.AliasMap = map[string]string{"name": "fullName"}
	block := testBlock(schema.BlockTypeWrite, schema.WriteConfig{
		TableID:  "tbl1",
		FieldMap: map[string]string{"customer_name": "name", "plan": "planChoice"},
	})

	result := r.Execute(context.Background(), bc, block)
	require.True(t, result.Success)
	require.Len(t, tables.writes, 1)
	call := tables.writes[0]
	assert.Equal(t, "tenant-a", call.TenantID)
	assert.Equal(t, "insert", call.Operation)
	assert.Equal(t, "Ada Lovelace", call.Values["customer_name"])
	assert.Equal(t, "pro", call.Values["plan"])

	written, ok := result.Output.(*store.WriteResult)
	require.True(t, ok)
	assert.NotEmpty(t, written.RowID)
}

func TestWrite_RunConditionSkipsWrite(t *testing.T) {
	tables := newFakeTables()
	r := NewWriteRunner(testBase(), tables)
	bc := liveContext(map[string]any{"save": false})
	block := testBlock(schema.BlockTypeWrite, schema.WriteConfig{
		TableID:      "tbl1",
		FieldMap:     map[string]string{"a": "a"},
		RunCondition: &schema.Condition{Key: "save", Op: schema.OpEquals, Value: true},
	})

	result := r.Execute(context.Background(), bc, block)
	require.True(t, result.Success)
	assert.Empty(t, tables.writes)
}

func TestWrite_PreviewDoesNotWrite(t *testing.T) {
	tables := newFakeTables()
	r := NewWriteRunner(testBase(), tables)
	bc := liveContext(map[string]any{"v": "x"})
	bc.Mode = ModePreview
	block := testBlock(schema.BlockTypeWrite, schema.WriteConfig{
		TableID:  "tbl1",
		FieldMap: map[string]string{"col": "v"},
	})

	result := r.Execute(context.Background(), bc, block)
	require.True(t, result.Success)
	assert.Empty(t, tables.writes)

	preview, ok := result.Output.(*store.WriteResult)
	require.True(t, ok)
	assert.Equal(t, "x", preview.Written["col"])
}

func TestWrite_RetrySameTokenWritesOnce(t *testing.T) {
	tables := newFakeTables()
	r := NewWriteRunner(testBase(), tables)
	block := testBlock(schema.BlockTypeWrite, schema.WriteConfig{
		TableID:  "tbl1",
		FieldMap: map[string]string{"col": "v"},
	})

	// The same (run, block, phase) re-derives the same token on retry.
	first := r.Execute(context.Background(), liveContext(map[string]any{"v": "x"}), block)
	second := r.Execute(context.Background(), liveContext(map[string]any{"v": "x"}), block)
	require.True(t, first.Success)
	require.True(t, second.Success)
	assert.Len(t, tables.writes, 1)
	assert.Equal(t, first.Output.(*store.WriteResult).RowID, second.Output.(*store.WriteResult).RowID)
}

func TestWrite_TenantFailClosed(t *testing.T) {
	tables := newFakeTables()
	b := testBase()
	b.tenants = unresolvableTenants()
	r := NewWriteRunner(b, tables)
	bc := liveContext(map[string]any{"v": "x"})
	bc.TenantID = ""
	block := testBlock(schema.BlockTypeWrite, schema.WriteConfig{
		TableID:  "tbl1",
		FieldMap: map[string]string{"col": "v"},
	})

	result := r.Execute(context.Background(), bc, block)
	require.False(t, result.Success)
	require.NotEmpty(t, result.Errors)
	assert.Contains(t, result.Errors[0], "tenant")
	// Zero writes performed.
	assert.Empty(t, tables.writes)
}

func TestWrite_MissingConfig(t *testing.T) {
	r := NewWriteRunner(testBase(), newFakeTables())

	noTable := testBlock(schema.BlockTypeWrite, schema.WriteConfig{FieldMap: map[string]string{"a": "a"}})
	assert.False(t, r.Execute(context.Background(), liveContext(nil), noTable).Success)

	noFields := testBlock(schema.BlockTypeWrite, schema.WriteConfig{TableID: "tbl1"})
	assert.False(t, r.Execute(context.Background(), liveContext(nil), noFields).Success)
}
