package blocks

import (
	"context"

	"github.com/formflow/formflow/internal/store"
	"github.com/formflow/formflow/pkg/schema"
)

// ReadTableRunner reads rows from a tenant table into a ListVariable. The
// column-identifier guard lives in the table service; filters with hostile
// identifiers are dropped there, never interpolated.
type ReadTableRunner struct {
	base
	tables store.TableService
}

// NewReadTableRunner creates a read_table runner.
func NewReadTableRunner(b base, tables store.TableService) *ReadTableRunner {
	return &ReadTableRunner{base: b, tables: tables}
}

func (r *ReadTableRunner) Type() schema.BlockType { return schema.BlockTypeReadTable }

func (r *ReadTableRunner) Execute(ctx context.Context, bc *Context, block *schema.Block) *schema.BlockResult {
	cfg := &schema.ReadTableConfig{}
	if err := decode(block, cfg); err != nil {
		return schema.FailErr(err)
	}
	if !shouldRun(cfg.RunCondition, bc.Data) {
		return skipped()
	}
	if cfg.TableID == "" {
		return schema.Fail("read_table block requires a tableId")
	}
	if cfg.OutputKey == "" {
		return schema.Fail("read_table block requires an outputKey")
	}

	tenantID, err := r.resolveTenant(ctx, bc)
	if err != nil {
		return schema.FailErr(err)
	}

	list, err := r.tables.ReadTable(ctx, tenantID, cfg.TableID, cfg.Columns, resolveFilters(cfg.Filters, bc.Data), cfg.Sort, cfg.Limit)
	if err != nil {
		return schema.FailErr(err)
	}

	result := schema.OK(map[string]any{cfg.OutputKey: list})
	result.Output = list
	return result
}
