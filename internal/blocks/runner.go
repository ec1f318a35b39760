// Package blocks implements the per-type block runners and their registry.
// Runners never return Go errors: every failure mode, configuration errors
// included, is carried inside the BlockResult so a single bad block cannot
// abort a phase.
package blocks

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/google/uuid"

	"github.com/formflow/formflow/internal/conditions"
	"github.com/formflow/formflow/internal/expressions"
	"github.com/formflow/formflow/internal/tenant"
	"github.com/formflow/formflow/pkg/schema"
)

// Runner executes one block type.
type Runner interface {
	Type() schema.BlockType
	Execute(ctx context.Context, bc *Context, block *schema.Block) *schema.BlockResult
}

// decode unmarshals a block's raw config into the typed variant. An empty
// config leaves the zero value in place.
func decode(block *schema.Block, v any) error {
	if len(block.Config) == 0 {
		return nil
	}
	if err := json.Unmarshal(block.Config, v); err != nil {
		return schema.NewErrorf(schema.ErrCodeValidation,
			"invalid %s config: %s", block.Type, err.Error()).WithCause(err).WithBlock(block.ID)
	}
	return nil
}

// shouldRun gates execution on an optional run condition evaluated against
// the data bag. A nil condition always runs.
func shouldRun(cond *schema.Condition, data map[string]any) bool {
	if cond == nil {
		return true
	}
	return conditions.Evaluate(*cond, data)
}

// skipped is the uniform result of a runCondition gate: a success with no
// delta, so the phase continues undisturbed.
func skipped() *schema.BlockResult {
	return schema.OK(nil)
}

// idempotencyToken derives the deterministic dedupe token attached to
// table writes and record creations. Whole-phase retries re-derive the same
// token, so the write services can recognize and skip the repeat.
func idempotencyToken(runID, blockID string, phase schema.Phase) string {
	return uuid.NewSHA1(uuid.NameSpaceOID, []byte(runID+"/"+blockID+"/"+string(phase))).String()
}

// base carries the dependencies shared by the side-effecting runners.
type base struct {
	tenants *tenant.Resolver
	logger  *slog.Logger
}

// resolveTenant returns the tenant scoping this invocation's side effects.
// A pre-resolved tenant on the context wins; otherwise the ownership chain
// is walked. Failure here is a hard stop for the calling runner.
func (b *base) resolveTenant(ctx context.Context, bc *Context) (string, error) {
	if bc.TenantID != "" {
		return bc.TenantID, nil
	}
	if b.tenants == nil {
		return "", schema.NewError(schema.ErrCodeTenantUnresolved, "no tenant resolver configured")
	}
	return b.tenants.Resolve(ctx, bc.WorkflowID)
}

// resolveFilters interpolates {{token}} filter values against the data bag
// before they reach a read service.
func resolveFilters(filters []schema.FilterSpec, data map[string]any) []schema.FilterSpec {
	if len(filters) == 0 {
		return nil
	}
	out := make([]schema.FilterSpec, len(filters))
	for i, f := range filters {
		if expressions.HasToken(f.Value) {
			f.Value = expressions.Interpolate(f.Value, data)
		}
		out[i] = f
	}
	return out
}
