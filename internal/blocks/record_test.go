package blocks

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/formflow/formflow/pkg/schema"
)

func TestCreateRecord_MapsAliasesToSlugs(t *testing.T) {
	records := newFakeRecords()
	r := NewRecordRunner(testBase(), schema.BlockTypeCreateRecord, records)
	bc := liveContext(map[string]any{"step_42": "Ada"})
	bc.AliasMap = map[string]string{"name": "step_42"}
	block := testBlock(schema.BlockTypeCreateRecord, schema.RecordConfig{
		CollectionID: "contacts",
		FieldMap:     map[string]string{"full_name": "name"},
		OutputKey:    "contactId",
	})

	result := r.Execute(context.Background(), bc, block)
	require.True(t, result.Success)
	require.Equal(t, 1, records.creates)
	recordID, ok := result.Data["contactId"].(string)
	require.True(t, ok)
	assert.Equal(t, "Ada", records.docs[recordID].Fields["full_name"])
}

func TestCreateRecord_RetrySameTokenCreatesOnce(t *testing.T) {
	records := newFakeRecords()
	r := NewRecordRunner(testBase(), schema.BlockTypeCreateRecord, records)
	block := testBlock(schema.BlockTypeCreateRecord, schema.RecordConfig{
		CollectionID: "contacts",
		FieldMap:     map[string]string{"name": "name"},
	})

	first := r.Execute(context.Background(), liveContext(map[string]any{"name": "Ada"}), block)
	second := r.Execute(context.Background(), liveContext(map[string]any{"name": "Ada"}), block)
	require.True(t, first.Success)
	require.True(t, second.Success)
	assert.Equal(t, 1, records.creates)
}

func TestCreateRecord_PreviewCreatesNothing(t *testing.T) {
	records := newFakeRecords()
	r := NewRecordRunner(testBase(), schema.BlockTypeCreateRecord, records)
	bc := liveContext(map[string]any{"name": "Ada"})
	bc.Mode = ModePreview
	block := testBlock(schema.BlockTypeCreateRecord, schema.RecordConfig{
		CollectionID: "contacts",
		FieldMap:     map[string]string{"name": "name"},
	})

	result := r.Execute(context.Background(), bc, block)
	require.True(t, result.Success)
	assert.Equal(t, 0, records.creates)
}

func TestUpdateRecord(t *testing.T) {
	records := newFakeRecords()
	doc, err := records.CreateRecord(context.Background(), "tenant-a", "contacts", map[string]any{"name": "Ada"}, "")
	require.NoError(t, err)

	r := NewRecordRunner(testBase(), schema.BlockTypeUpdateRecord, records)
	bc := liveContext(map[string]any{"cityStep": "Paris", "contactId": doc.ID})
	block := testBlock(schema.BlockTypeUpdateRecord, schema.RecordConfig{
		CollectionID: "contacts",
		RecordID:     "contactId", // resolved through the data bag
		FieldMap:     map[string]string{"city": "cityStep"},
	})

	result := r.Execute(context.Background(), bc, block)
	require.True(t, result.Success)
	assert.Equal(t, "Paris", records.docs[doc.ID].Fields["city"])
}

func TestFindRecord_LimitOneObjectOrNil(t *testing.T) {
	records := newFakeRecords()
	_, err := records.CreateRecord(context.Background(), "tenant-a", "contacts", map[string]any{"name": "Ada"}, "")
	require.NoError(t, err)

	r := NewRecordRunner(testBase(), schema.BlockTypeFindRecord, records)

	hit := testBlock(schema.BlockTypeFindRecord, schema.RecordConfig{
		CollectionID: "contacts",
		Filters:      []schema.FilterSpec{{ColumnID: "name", Operator: schema.OpEquals, Value: "Ada"}},
		Limit:        1,
		OutputKey:    "contact",
	})
	result := r.Execute(context.Background(), liveContext(nil), hit)
	require.True(t, result.Success)
	contact, ok := result.Data["contact"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "Ada", contact["name"])

	miss := testBlock(schema.BlockTypeFindRecord, schema.RecordConfig{
		CollectionID: "contacts",
		Filters:      []schema.FilterSpec{{ColumnID: "name", Operator: schema.OpEquals, Value: "Grace"}},
		Limit:        1,
		OutputKey:    "contact",
	})
	result = r.Execute(context.Background(), liveContext(nil), miss)
	require.True(t, result.Success)
	assert.Nil(t, result.Data["contact"])
}

func TestFindRecord_LimitAboveOneReturnsArray(t *testing.T) {
	records := newFakeRecords()
	for _, name := range []string{"Ada", "Grace"} {
		_, err := records.CreateRecord(context.Background(), "tenant-a", "contacts", map[string]any{"name": name}, "")
		require.NoError(t, err)
	}

	r := NewRecordRunner(testBase(), schema.BlockTypeFindRecord, records)
	block := testBlock(schema.BlockTypeFindRecord, schema.RecordConfig{
		CollectionID: "contacts",
		Limit:        5,
		OutputKey:    "contacts",
	})

	result := r.Execute(context.Background(), liveContext(nil), block)
	require.True(t, result.Success)
	list, ok := result.Data["contacts"].([]any)
	require.True(t, ok)
	assert.Len(t, list, 2)
}

func TestFindRecord_FailIfNotFound(t *testing.T) {
	r := NewRecordRunner(testBase(), schema.BlockTypeFindRecord, newFakeRecords())
	block := testBlock(schema.BlockTypeFindRecord, schema.RecordConfig{
		CollectionID:   "contacts",
		Limit:          1,
		FailIfNotFound: true,
	})

	result := r.Execute(context.Background(), liveContext(nil), block)
	require.False(t, result.Success)
	assert.Contains(t, result.Errors[0], "no records found")
}

func TestDeleteRecord(t *testing.T) {
	records := newFakeRecords()
	doc, err := records.CreateRecord(context.Background(), "tenant-a", "contacts", map[string]any{"name": "Ada"}, "")
	require.NoError(t, err)

	r := NewRecordRunner(testBase(), schema.BlockTypeDeleteRecord, records)
	block := testBlock(schema.BlockTypeDeleteRecord, schema.RecordConfig{
		CollectionID: "contacts",
		RecordID:     doc.ID,
	})

	result := r.Execute(context.Background(), liveContext(nil), block)
	require.True(t, result.Success)
	assert.Empty(t, records.docs)

	// Deleting again is quiet without failIfNotFound.
	result = r.Execute(context.Background(), liveContext(nil), block)
	assert.True(t, result.Success)

	strict := testBlock(schema.BlockTypeDeleteRecord, schema.RecordConfig{
		CollectionID:   "contacts",
		RecordID:       doc.ID,
		FailIfNotFound: true,
	})
	result = r.Execute(context.Background(), liveContext(nil), strict)
	assert.False(t, result.Success)
}

func TestRecord_TenantFailClosed(t *testing.T) {
	records := newFakeRecords()
	b := testBase()
	b.tenants = unresolvableTenants()

	for _, op := range []schema.BlockType{
		schema.BlockTypeCreateRecord, schema.BlockTypeUpdateRecord,
		schema.BlockTypeFindRecord, schema.BlockTypeDeleteRecord,
	} {
		r := NewRecordRunner(b, op, records)
		bc := liveContext(map[string]any{"name": "Ada"})
		bc.TenantID = ""
		block := testBlock(op, schema.RecordConfig{
			CollectionID: "contacts",
			RecordID:     "rec-1",
			FieldMap:     map[string]string{"name": "name"},
		})

		result := r.Execute(context.Background(), bc, block)
		require.False(t, result.Success, "op %s", op)
	}
	assert.Equal(t, 0, records.creates)
}
