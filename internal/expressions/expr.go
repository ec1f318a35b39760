package expressions

import (
	"context"
	"sync"
	"time"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"

	"github.com/formflow/formflow/pkg/schema"
)

// Script blocks get a configurable evaluation bound; anything outside this
// window is clamped. The bound is a hard requirement even when runs interleave.
const (
	MinScriptTimeout = 100 * time.Millisecond
	MaxScriptTimeout = 3 * time.Second
)

// ExprEngine evaluates script-block expressions using expr-lang/expr. It
// supports array operations (filter, map, count, any, all, sum), string
// operations, nil coalescing (??), and optional chaining (?.).
// Thread-safe: compiled *vm.Program objects are cached and reused.
type ExprEngine struct {
	mu    sync.RWMutex
	cache map[string]*vm.Program
}

// NewExprEngine creates a new Expr engine.
func NewExprEngine() *ExprEngine {
	return &ExprEngine{cache: make(map[string]*vm.Program)}
}

// Name returns the engine identifier.
func (e *ExprEngine) Name() string { return "expr" }

// Evaluate compiles (or retrieves from cache) an expression and evaluates it
// with the data map as the environment, making all keys available as
// top-level variables.
func (e *ExprEngine) Evaluate(ctx context.Context, expression string, data map[string]any) (any, error) {
	if expression == "" {
		return nil, schema.NewError(schema.ErrCodeValidation, "empty expr expression")
	}

	prg, err := e.getOrCompile(expression, data)
	if err != nil {
		return nil, err
	}

	env := data
	if env == nil {
		env = map[string]any{}
	}

	out, err := vm.Run(prg, env)
	if err != nil {
		return nil, schema.NewErrorf(schema.ErrCodeExecution,
			"expr evaluation failed for %q: %s", expression, err.Error()).
			WithCause(err).
			WithDetails(map[string]any{"expression": expression})
	}
	return out, nil
}

// EvaluateBounded evaluates an expression under the script time bound.
// The timeout is clamped to [MinScriptTimeout, MaxScriptTimeout]; a zero
// timeout means the maximum. Evaluation runs in its own goroutine so a
// runaway expression cannot stall the run past the bound.
func (e *ExprEngine) EvaluateBounded(ctx context.Context, expression string, data map[string]any, timeout time.Duration) (any, error) {
	if timeout <= 0 {
		timeout = MaxScriptTimeout
	}
	if timeout < MinScriptTimeout {
		timeout = MinScriptTimeout
	}
	if timeout > MaxScriptTimeout {
		timeout = MaxScriptTimeout
	}

	boundCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	type evalResult struct {
		out any
		err error
	}
	done := make(chan evalResult, 1)
	go func() {
		out, err := e.Evaluate(boundCtx, expression, data)
		done <- evalResult{out: out, err: err}
	}()

	select {
	case res := <-done:
		return res.out, res.err
	case <-boundCtx.Done():
		return nil, schema.NewErrorf(schema.ErrCodeTimeout,
			"script evaluation exceeded %s bound", timeout).
			WithDetails(map[string]any{"expression": expression})
	}
}

func (e *ExprEngine) getOrCompile(expression string, data map[string]any) (*vm.Program, error) {
	e.mu.RLock()
	if prg, ok := e.cache[expression]; ok {
		e.mu.RUnlock()
		return prg, nil
	}
	e.mu.RUnlock()

	e.mu.Lock()
	defer e.mu.Unlock()

	if prg, ok := e.cache[expression]; ok {
		return prg, nil
	}

	env := data
	if env == nil {
		env = map[string]any{}
	}

	prg, err := expr.Compile(expression,
		expr.Env(env),
		expr.AllowUndefinedVariables(),
	)
	if err != nil {
		return nil, schema.NewErrorf(schema.ErrCodeValidation,
			"expr compile error in %q: %s", expression, err.Error()).
			WithCause(err).
			WithDetails(map[string]any{"expression": expression})
	}

	e.cache[expression] = prg
	return prg, nil
}

var _ Engine = (*ExprEngine)(nil)
