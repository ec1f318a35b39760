package blocks

import (
	"context"

	"github.com/formflow/formflow/internal/expressions"
	"github.com/formflow/formflow/pkg/schema"
)

// PrefillRunner seeds the data bag from static values or incoming query
// parameters. Existing answers are never clobbered unless the config opts in.
type PrefillRunner struct{}

// NewPrefillRunner creates a prefill runner.
func NewPrefillRunner() *PrefillRunner { return &PrefillRunner{} }

func (r *PrefillRunner) Type() schema.BlockType { return schema.BlockTypePrefill }

func (r *PrefillRunner) Execute(ctx context.Context, bc *Context, block *schema.Block) *schema.BlockResult {
	cfg := &schema.PrefillConfig{}
	if err := decode(block, cfg); err != nil {
		return schema.FailErr(err)
	}

	delta := map[string]any{}

	for key, value := range cfg.Values {
		if !cfg.Overwrite {
			if _, exists := bc.Data[key]; exists {
				continue
			}
		}
		if expressions.HasToken(value) {
			value = expressions.Interpolate(value, bc.Data)
		}
		delta[key] = value
	}

	for _, name := range cfg.FromQuery {
		value, ok := bc.QueryParams[name]
		if !ok {
			continue
		}
		if !cfg.Overwrite {
			if _, exists := bc.Data[name]; exists {
				continue
			}
		}
		delta[name] = value
	}

	return schema.OK(delta)
}
