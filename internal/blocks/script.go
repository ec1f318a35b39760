package blocks

import (
	"context"
	"time"

	"github.com/formflow/formflow/internal/expressions"
	"github.com/formflow/formflow/pkg/schema"
)

// ScriptRunner evaluates an expression against the data bag under the hard
// script time bound. The bound holds even when runs interleave: evaluation is
// raced against its own deadline, never trusted to finish.
type ScriptRunner struct {
	engine *expressions.ExprEngine
}

// NewScriptRunner creates a script runner.
func NewScriptRunner(engine *expressions.ExprEngine) *ScriptRunner {
	return &ScriptRunner{engine: engine}
}

func (r *ScriptRunner) Type() schema.BlockType { return schema.BlockTypeScript }

func (r *ScriptRunner) Execute(ctx context.Context, bc *Context, block *schema.Block) *schema.BlockResult {
	cfg := &schema.ScriptConfig{}
	if err := decode(block, cfg); err != nil {
		return schema.FailErr(err)
	}
	if !shouldRun(cfg.RunCondition, bc.Data) {
		return skipped()
	}
	if cfg.Expression == "" {
		return schema.Fail("script block requires an expression")
	}
	if cfg.OutputKey == "" {
		return schema.Fail("script block requires an outputKey")
	}
	if r.engine == nil {
		return schema.Fail("no script engine configured")
	}

	out, err := r.engine.EvaluateBounded(ctx, cfg.Expression, bc.Data,
		time.Duration(cfg.TimeoutMs)*time.Millisecond)
	if err != nil {
		return schema.FailErr(err)
	}

	return schema.OK(map[string]any{cfg.OutputKey: out})
}
