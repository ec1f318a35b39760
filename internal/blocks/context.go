package blocks

import (
	"github.com/formflow/formflow/internal/conditions"
	"github.com/formflow/formflow/internal/expressions"
	"github.com/formflow/formflow/pkg/schema"
)

// Mode selects between real execution and a dry pass.
type Mode string

const (
	// ModeLive executes side effects for real.
	ModeLive Mode = "live"
	// ModePreview computes the would-be delta without touching the store
	// or the network.
	ModePreview Mode = "preview"
)

// Context is the per-invocation execution context handed to every runner.
// It is constructed fresh for each phase firing and never persisted. Data is
// the run's accumulated key-value bag; runners read it but return deltas
// instead of mutating it.
type Context struct {
	WorkflowID  string
	RunID       string
	TenantID    string // pre-resolved tenant, empty until first resolution
	Mode        Mode
	Phase       schema.Phase
	SectionID   string
	Data        map[string]any
	AliasMap    map[string]string // alias -> data key
	QueryParams map[string]string
}

// Preview reports whether this invocation must avoid persisted-state and
// network side effects.
func (c *Context) Preview() bool { return c.Mode == ModePreview }

// ResolveKey maps a config reference onto a data-bag key: aliases translate
// through the alias map, anything else is used as the key itself.
func (c *Context) ResolveKey(ref string) string {
	if key, ok := c.AliasMap[ref]; ok {
		return key
	}
	return ref
}

// Resolve returns the data-bag value a config reference points at.
// References holding {{token}} syntax interpolate against the bag; plain
// references resolve through the alias map and then as a dot-path.
func (c *Context) Resolve(ref string) any {
	if expressions.HasToken(ref) {
		return expressions.Interpolate(ref, c.Data)
	}
	return conditions.ResolvePath(c.Data, c.ResolveKey(ref))
}
