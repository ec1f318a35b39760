package blocks

import (
	"context"
	"fmt"

	"github.com/formflow/formflow/internal/store"
	"github.com/formflow/formflow/pkg/schema"
)

// RecordRunner covers the collection CRUD block family. One instance per
// type tag; the operation is fixed at construction. Field maps translate
// step aliases into record field slugs.
type RecordRunner struct {
	base
	op      schema.BlockType
	records store.RecordService
}

// NewRecordRunner creates a runner for one of create_record, update_record,
// find_record, or delete_record.
func NewRecordRunner(b base, op schema.BlockType, records store.RecordService) *RecordRunner {
	return &RecordRunner{base: b, op: op, records: records}
}

func (r *RecordRunner) Type() schema.BlockType { return r.op }

func (r *RecordRunner) Execute(ctx context.Context, bc *Context, block *schema.Block) *schema.BlockResult {
	cfg := &schema.RecordConfig{}
	if err := decode(block, cfg); err != nil {
		return schema.FailErr(err)
	}
	if !shouldRun(cfg.RunCondition, bc.Data) {
		return skipped()
	}
	if cfg.CollectionID == "" {
		return schema.Fail(fmt.Sprintf("%s block requires a collectionId", r.op))
	}

	tenantID, err := r.resolveTenant(ctx, bc)
	if err != nil {
		return schema.FailErr(err)
	}

	switch r.op {
	case schema.BlockTypeCreateRecord:
		return r.create(ctx, bc, block, cfg, tenantID)
	case schema.BlockTypeUpdateRecord:
		return r.update(ctx, bc, cfg, tenantID)
	case schema.BlockTypeFindRecord:
		return r.find(ctx, bc, cfg, tenantID)
	case schema.BlockTypeDeleteRecord:
		return r.delete(ctx, bc, cfg, tenantID)
	default:
		return schema.Fail(fmt.Sprintf("Unknown block type: %s", r.op))
	}
}

func (r *RecordRunner) create(ctx context.Context, bc *Context, block *schema.Block, cfg *schema.RecordConfig, tenantID string) *schema.BlockResult {
	fields := r.mapFields(bc, cfg)
	if len(fields) == 0 {
		return schema.Fail("create_record block requires a fieldMap")
	}

	if bc.Preview() {
		result := schema.OK(nil)
		result.Output = map[string]any{"collectionId": cfg.CollectionID, "fields": fields}
		return result
	}

	doc, err := r.records.CreateRecord(ctx, tenantID, cfg.CollectionID, fields,
		idempotencyToken(bc.RunID, block.ID, bc.Phase))
	if err != nil {
		return schema.FailErr(err)
	}

	delta := map[string]any{}
	if cfg.OutputKey != "" {
		delta[cfg.OutputKey] = doc.ID
	}
	result := schema.OK(delta)
	result.Output = doc.ID
	return result
}

func (r *RecordRunner) update(ctx context.Context, bc *Context, cfg *schema.RecordConfig, tenantID string) *schema.BlockResult {
	recordID := r.recordID(bc, cfg)
	if recordID == "" {
		return schema.Fail("update_record block requires a recordId")
	}
	fields := r.mapFields(bc, cfg)
	if len(fields) == 0 {
		return schema.Fail("update_record block requires a fieldMap")
	}

	if bc.Preview() {
		result := schema.OK(nil)
		result.Output = map[string]any{"recordId": recordID, "fields": fields}
		return result
	}

	doc, err := r.records.UpdateRecord(ctx, tenantID, cfg.CollectionID, recordID, fields)
	if err != nil {
		return schema.FailErr(err)
	}

	delta := map[string]any{}
	if cfg.OutputKey != "" {
		delta[cfg.OutputKey] = doc.ID
	}
	result := schema.OK(delta)
	result.Output = doc.ID
	return result
}

func (r *RecordRunner) find(ctx context.Context, bc *Context, cfg *schema.RecordConfig, tenantID string) *schema.BlockResult {
	limit := cfg.Limit
	if limit <= 0 {
		limit = 1
	}

	docs, err := r.records.FindRecords(ctx, tenantID, cfg.CollectionID, resolveFilters(cfg.Filters, bc.Data), limit)
	if err != nil {
		return schema.FailErr(err)
	}
	if len(docs) == 0 && cfg.FailIfNotFound {
		return schema.Fail(fmt.Sprintf("no records found in collection %s", cfg.CollectionID))
	}

	// limit 1 yields a single object or nil; larger limits yield an array.
	var output any
	if limit == 1 {
		if len(docs) > 0 {
			output = recordView(docs[0])
		}
	} else {
		views := make([]any, len(docs))
		for i, doc := range docs {
			views[i] = recordView(doc)
		}
		output = views
	}

	delta := map[string]any{}
	if cfg.OutputKey != "" {
		delta[cfg.OutputKey] = output
	}
	result := schema.OK(delta)
	result.Output = output
	return result
}

func (r *RecordRunner) delete(ctx context.Context, bc *Context, cfg *schema.RecordConfig, tenantID string) *schema.BlockResult {
	recordID := r.recordID(bc, cfg)
	if recordID == "" {
		return schema.Fail("delete_record block requires a recordId")
	}

	if bc.Preview() {
		return schema.OK(nil)
	}

	if err := r.records.DeleteRecord(ctx, tenantID, cfg.CollectionID, recordID); err != nil {
		if fe, ok := err.(*schema.FlowError); ok && fe.Code == schema.ErrCodeNotFound && !cfg.FailIfNotFound {
			return schema.OK(nil)
		}
		return schema.FailErr(err)
	}
	return schema.OK(nil)
}

// mapFields translates the alias-keyed field map into slug-keyed values.
func (r *RecordRunner) mapFields(bc *Context, cfg *schema.RecordConfig) map[string]any {
	fields := make(map[string]any, len(cfg.FieldMap))
	for slug, ref := range cfg.FieldMap {
		fields[slug] = bc.Resolve(ref)
	}
	return fields
}

// recordID resolves the configured record id, which may be a literal id, an
// alias, or a {{token}}.
func (r *RecordRunner) recordID(bc *Context, cfg *schema.RecordConfig) string {
	if cfg.RecordID == "" {
		return ""
	}
	if resolved := asString(bc.Resolve(cfg.RecordID)); resolved != "" {
		return resolved
	}
	return cfg.RecordID
}

func recordView(doc *store.RecordDoc) map[string]any {
	view := map[string]any{"id": doc.ID}
	for k, v := range doc.Fields {
		view[k] = v
	}
	return view
}
