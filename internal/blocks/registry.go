package blocks

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"github.com/formflow/formflow/internal/expressions"
	"github.com/formflow/formflow/internal/outbound"
	"github.com/formflow/formflow/internal/store"
	"github.com/formflow/formflow/internal/tenant"
	"github.com/formflow/formflow/pkg/schema"
)

// ConfigValidator checks a block's persisted config against its declared
// shape before the runner sees it.
type ConfigValidator interface {
	ValidateConfig(blockType schema.BlockType, raw json.RawMessage) error
}

// Registry is the thread-safe type-to-runner dispatch table. Unknown block
// types produce a failed result, never a panic or error.
type Registry struct {
	mu        sync.RWMutex
	runners   map[schema.BlockType]Runner
	validator ConfigValidator
	logger    *slog.Logger
}

// NewRegistry creates an empty registry.
func NewRegistry(logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{
		runners: make(map[schema.BlockType]Runner),
		logger:  logger,
	}
}

// SetValidator installs boundary validation of block configs.
func (r *Registry) SetValidator(v ConfigValidator) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.validator = v
}

// Register adds a runner. Duplicate types are a conflict.
func (r *Registry) Register(runner Runner) error {
	if runner == nil {
		return schema.NewError(schema.ErrCodeValidation, "runner is nil")
	}
	blockType := runner.Type()
	if blockType == "" {
		return schema.NewError(schema.ErrCodeValidation, "runner type is empty")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.runners[blockType]; exists {
		return schema.NewErrorf(schema.ErrCodeConflict, "runner %q already registered", blockType)
	}
	r.runners[blockType] = runner
	return nil
}

// Get retrieves the runner for a block type.
func (r *Registry) Get(blockType schema.BlockType) (Runner, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	runner, ok := r.runners[blockType]
	return runner, ok
}

// Types lists all registered block types, sorted.
func (r *Registry) Types() []schema.BlockType {
	r.mu.RLock()
	defer r.mu.RUnlock()
	types := make([]schema.BlockType, 0, len(r.runners))
	for t := range r.runners {
		types = append(types, t)
	}
	sort.Slice(types, func(i, j int) bool { return types[i] < types[j] })
	return types
}

// Execute dispatches a block to its runner. Config validation failures and
// unknown types come back as failed results; the phase carries on.
func (r *Registry) Execute(ctx context.Context, bc *Context, block *schema.Block) *schema.BlockResult {
	runner, ok := r.Get(block.Type)
	if !ok {
		r.logger.Warn("unknown block type", "block_id", block.ID, "type", string(block.Type))
		return schema.Fail(fmt.Sprintf("Unknown block type: %s", block.Type))
	}

	r.mu.RLock()
	validator := r.validator
	r.mu.RUnlock()
	if validator != nil {
		if err := validator.ValidateConfig(block.Type, block.Config); err != nil {
			return schema.FailErr(err)
		}
	}

	r.logger.Debug("executing block",
		"block_id", block.ID,
		"type", string(block.Type),
		"phase", string(block.Phase),
		"input", Redact(bc.Data))

	return runner.Execute(ctx, bc, block)
}

// Deps bundles everything the default runner set needs.
type Deps struct {
	Tables     store.TableService
	Records    store.RecordService
	Queries    store.QueryService
	Tenants    *tenant.Resolver
	Dispatcher outbound.Dispatcher
	CEL        *expressions.CELEngine
	Expr       *expressions.ExprEngine
	JQ         *expressions.GoJQEngine
	Logger     *slog.Logger
}

// NewDefaultRegistry wires the full closed set of block runners.
func NewDefaultRegistry(deps Deps) (*Registry, error) {
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	b := base{tenants: deps.Tenants, logger: deps.Logger}

	registry := NewRegistry(deps.Logger)
	runners := []Runner{
		NewPrefillRunner(),
		NewValidateRunner(deps.CEL),
		NewBranchRunner(),
		NewQueryRunner(b, deps.Queries, deps.Tables),
		NewReadTableRunner(b, deps.Tables),
		NewListToolsRunner(),
		NewWriteRunner(b, deps.Tables),
		NewExternalSendRunner(b, deps.Dispatcher, deps.JQ),
		NewRecordRunner(b, schema.BlockTypeCreateRecord, deps.Records),
		NewRecordRunner(b, schema.BlockTypeUpdateRecord, deps.Records),
		NewRecordRunner(b, schema.BlockTypeFindRecord, deps.Records),
		NewRecordRunner(b, schema.BlockTypeDeleteRecord, deps.Records),
		NewScriptRunner(deps.Expr),
	}
	for _, runner := range runners {
		if err := registry.Register(runner); err != nil {
			return nil, err
		}
	}
	return registry, nil
}
