// Package expressions hosts the expression engines the block runners lean on:
// CEL for advanced assertions, Expr for script blocks, and jq for extracting
// fields from external responses. All engines cache compiled programs and are
// safe for concurrent use.
package expressions

import "context"

// Engine is the common contract of all expression engines.
type Engine interface {
	Name() string
	Evaluate(ctx context.Context, expression string, data map[string]any) (any, error)
}
