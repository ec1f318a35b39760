package blocks

import (
	"context"

	"github.com/formflow/formflow/internal/store"
	"github.com/formflow/formflow/pkg/schema"
)

// WriteRunner writes alias-mapped values to a tenant table. Preview runs
// compute the would-be write without touching the store. Live writes carry a
// deterministic idempotency token so whole-phase retries do not double-write.
type WriteRunner struct {
	base
	tables store.TableService
}

// NewWriteRunner creates a write runner.
func NewWriteRunner(b base, tables store.TableService) *WriteRunner {
	return &WriteRunner{base: b, tables: tables}
}

func (r *WriteRunner) Type() schema.BlockType { return schema.BlockTypeWrite }

func (r *WriteRunner) Execute(ctx context.Context, bc *Context, block *schema.Block) *schema.BlockResult {
	cfg := &schema.WriteConfig{}
	if err := decode(block, cfg); err != nil {
		return schema.FailErr(err)
	}
	if !shouldRun(cfg.RunCondition, bc.Data) {
		return skipped()
	}
	if cfg.TableID == "" {
		return schema.Fail("write block requires a tableId")
	}
	if len(cfg.FieldMap) == 0 {
		return schema.Fail("write block requires a fieldMap")
	}

	tenantID, err := r.resolveTenant(ctx, bc)
	if err != nil {
		return schema.FailErr(err)
	}

	operation := cfg.Operation
	if operation == "" {
		operation = "insert"
	}

	values := make(map[string]any, len(cfg.FieldMap))
	for column, ref := range cfg.FieldMap {
		values[column] = bc.Resolve(ref)
	}

	rowID := cfg.RowID
	if ref := asString(bc.Resolve(rowID)); rowID != "" && ref != "" {
		rowID = ref
	}

	if bc.Preview() {
		preview := &store.WriteResult{RowID: rowID, TableID: cfg.TableID, Operation: operation, Written: values}
		result := schema.OK(nil)
		result.Output = preview
		return result
	}

	r.logger.Info("table write",
		"run_id", bc.RunID,
		"block_id", block.ID,
		"table_id", cfg.TableID,
		"operation", operation,
		"tenant_id", tenantID,
		"values", Redact(values))

	written, err := r.tables.WriteTable(ctx, tenantID, cfg.TableID, operation, rowID, values,
		idempotencyToken(bc.RunID, block.ID, bc.Phase))
	if err != nil {
		return schema.FailErr(err)
	}

	result := schema.OK(nil)
	result.Output = written
	return result
}

func asString(v any) string {
	s, _ := v.(string)
	return s
}
