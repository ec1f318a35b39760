package blocks

import (
	"context"

	"github.com/formflow/formflow/internal/conditions"
	"github.com/formflow/formflow/pkg/schema"
)

// BranchRunner routes section navigation: the first rule whose condition
// matches wins, otherwise the fallback applies. With a fallback configured
// the result always carries a next section.
type BranchRunner struct{}

// NewBranchRunner creates a branch runner.
func NewBranchRunner() *BranchRunner { return &BranchRunner{} }

func (r *BranchRunner) Type() schema.BlockType { return schema.BlockTypeBranch }

func (r *BranchRunner) Execute(ctx context.Context, bc *Context, block *schema.Block) *schema.BlockResult {
	cfg := &schema.BranchConfig{}
	if err := decode(block, cfg); err != nil {
		return schema.FailErr(err)
	}

	for _, rule := range cfg.Branches {
		if conditions.Evaluate(rule.When, bc.Data) {
			return &schema.BlockResult{Success: true, NextSectionID: rule.GotoSectionID}
		}
	}
	// No match: the fallback, or default section advancement when unset.
	return &schema.BlockResult{Success: true, NextSectionID: cfg.FallbackSectionID}
}
