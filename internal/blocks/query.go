package blocks

import (
	"context"

	"github.com/formflow/formflow/internal/store"
	"github.com/formflow/formflow/pkg/schema"
)

// QueryRunner executes a saved named query, or an ad-hoc table read when no
// query id is configured. Output is a ListVariable stored under outputKey;
// tenant resolution failure is a hard stop.
type QueryRunner struct {
	base
	queries store.QueryService
	tables  store.TableService
}

// NewQueryRunner creates a query runner.
func NewQueryRunner(b base, queries store.QueryService, tables store.TableService) *QueryRunner {
	return &QueryRunner{base: b, queries: queries, tables: tables}
}

func (r *QueryRunner) Type() schema.BlockType { return schema.BlockTypeQuery }

func (r *QueryRunner) Execute(ctx context.Context, bc *Context, block *schema.Block) *schema.BlockResult {
	cfg := &schema.QueryConfig{}
	if err := decode(block, cfg); err != nil {
		return schema.FailErr(err)
	}
	if !shouldRun(cfg.RunCondition, bc.Data) {
		return skipped()
	}
	if cfg.OutputKey == "" {
		return schema.Fail("query block requires an outputKey")
	}

	tenantID, err := r.resolveTenant(ctx, bc)
	if err != nil {
		return schema.FailErr(err)
	}

	tableID := cfg.TableID
	filters := cfg.Filters
	sortSpec := cfg.Sort
	limit := cfg.Limit

	if cfg.QueryID != "" {
		query, err := r.queries.GetQuery(ctx, tenantID, cfg.QueryID)
		if err != nil {
			return schema.FailErr(err)
		}
		tableID = query.TableID
		// The saved definition is the base; block-level settings refine it.
		filters = append(append([]schema.FilterSpec{}, query.Filters...), cfg.Filters...)
		if sortSpec == nil {
			sortSpec = query.Sort
		}
		if limit == 0 {
			limit = query.Limit
		}
	}
	if tableID == "" {
		return schema.Fail("query block requires a queryId or tableId")
	}

	list, err := r.tables.ReadTable(ctx, tenantID, tableID, nil, resolveFilters(filters, bc.Data), sortSpec, limit)
	if err != nil {
		return schema.FailErr(err)
	}
	list.Metadata.Source = "query"

	result := schema.OK(map[string]any{cfg.OutputKey: list})
	result.Output = list
	return result
}
