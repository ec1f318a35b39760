package blocks

import (
	"context"

	"github.com/formflow/formflow/internal/listops"
	"github.com/formflow/formflow/pkg/schema"
)

// ListToolsRunner transforms an existing list variable through the pipeline
// and derives scalar outputs alongside it. Pure: no store or network access,
// and the source list is never modified in place.
type ListToolsRunner struct{}

// NewListToolsRunner creates a list_tools runner.
func NewListToolsRunner() *ListToolsRunner { return &ListToolsRunner{} }

func (r *ListToolsRunner) Type() schema.BlockType { return schema.BlockTypeListTools }

func (r *ListToolsRunner) Execute(ctx context.Context, bc *Context, block *schema.Block) *schema.BlockResult {
	cfg := &schema.ListToolsConfig{}
	if err := decode(block, cfg); err != nil {
		return schema.FailErr(err)
	}
	if !shouldRun(cfg.RunCondition, bc.Data) {
		return skipped()
	}
	if cfg.SourceListVar == "" {
		return schema.Fail("list_tools block requires a sourceListVar")
	}

	// A missing or plain-array source coerces into the canonical list shape;
	// absence is an empty list, not an error.
	source := schema.NormalizeList(bc.Resolve(cfg.SourceListVar), cfg.SourceListVar)

	out := listops.TransformList(source, schema.ListOps{
		Filters:   cfg.Filters,
		DedupeKey: cfg.DedupeKey,
		Sort:      cfg.Sort,
		Limit:     cfg.Limit,
		Offset:    cfg.Offset,
		Select:    cfg.Select,
	}, bc.Data)

	outputVar := cfg.OutputListVar
	if outputVar == "" {
		outputVar = cfg.SourceListVar
	}

	delta := map[string]any{outputVar: out}
	if cfg.CountVar != "" {
		delta[cfg.CountVar] = out.Count
	}
	if cfg.FirstVar != "" {
		delta[cfg.FirstVar] = anyOrNil(listops.First(out))
	}

	result := schema.OK(delta)
	result.Output = out
	return result
}

// anyOrNil keeps a typed-nil map from leaking into the bag as a non-nil any.
func anyOrNil(row map[string]any) any {
	if row == nil {
		return nil
	}
	return row
}
