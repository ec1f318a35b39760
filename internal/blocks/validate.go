package blocks

import (
	"context"
	"fmt"

	"github.com/formflow/formflow/internal/conditions"
	"github.com/formflow/formflow/internal/expressions"
	"github.com/formflow/formflow/pkg/schema"
)

// ValidateRunner evaluates a list of assertions against the data bag. All
// assertions run even after a failure: the result carries one error string
// per failed assertion, not just the first.
type ValidateRunner struct {
	cel *expressions.CELEngine
}

// NewValidateRunner creates a validate runner. The CEL engine backs the
// expression assertion variant; nil disables it (expressions then fail).
func NewValidateRunner(cel *expressions.CELEngine) *ValidateRunner {
	return &ValidateRunner{cel: cel}
}

func (r *ValidateRunner) Type() schema.BlockType { return schema.BlockTypeValidate }

func (r *ValidateRunner) Execute(ctx context.Context, bc *Context, block *schema.Block) *schema.BlockResult {
	cfg := &schema.ValidateConfig{}
	if err := decode(block, cfg); err != nil {
		return schema.FailErr(err)
	}

	var failures []string
	for _, assertion := range cfg.Assertions {
		if r.passes(ctx, assertion, bc.Data) {
			continue
		}
		failures = append(failures, failureMessage(assertion))
	}

	if len(failures) > 0 {
		return schema.Fail(failures...)
	}
	return schema.OK(nil)
}

// passes evaluates one assertion. Expression assertions go through CEL with
// the same fail-closed policy as the rest of the DSL; everything else is the
// condition evaluator's assertion variant.
func (r *ValidateRunner) passes(ctx context.Context, a schema.AssertExpression, data map[string]any) bool {
	if a.Expression != "" {
		if r.cel == nil {
			return false
		}
		return r.cel.EvaluateBool(ctx, a.Expression, data)
	}
	return conditions.EvaluateAssert(a, data)
}

func failureMessage(a schema.AssertExpression) string {
	if a.Message != "" {
		return a.Message
	}
	if a.Expression != "" {
		return fmt.Sprintf("assertion failed: %s", a.Expression)
	}
	return fmt.Sprintf("assertion failed: %s %s", a.Key, a.Op)
}
