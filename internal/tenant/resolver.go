// Package tenant resolves the tenant that scopes a workflow's side effects.
// Resolution is fail-closed: when no tenant can be derived, callers get a
// TENANT_UNRESOLVED error and must not fall back to any shared scope.
package tenant

import (
	"context"
	"time"

	gocache "github.com/patrickmn/go-cache"

	"github.com/formflow/formflow/internal/store"
	"github.com/formflow/formflow/pkg/schema"
)

const (
	defaultTTL     = 5 * time.Minute
	cleanupEvery   = 10 * time.Minute
)

// Resolver derives a workflow's tenant through the ownership chain:
// the workflow's project first, then the workflow's creator. Results are
// cached per workflow id; tenant reassignment shows up after the TTL.
type Resolver struct {
	ws    store.WorkflowStore
	cache *gocache.Cache
}

// NewResolver creates a resolver with the default cache TTL.
func NewResolver(ws store.WorkflowStore) *Resolver {
	return NewResolverTTL(ws, defaultTTL)
}

// NewResolverTTL creates a resolver with an explicit cache TTL.
func NewResolverTTL(ws store.WorkflowStore, ttl time.Duration) *Resolver {
	return &Resolver{
		ws:    ws,
		cache: gocache.New(ttl, cleanupEvery),
	}
}

// Resolve returns the tenant id owning the workflow. A workflow filed under a
// project takes the project's tenant; an unfiled workflow takes its creator's
// tenant. Anything else is unresolved.
func (r *Resolver) Resolve(ctx context.Context, workflowID string) (string, error) {
	if cached, ok := r.cache.Get(workflowID); ok {
		return cached.(string), nil
	}

	wf, err := r.ws.GetWorkflow(ctx, workflowID)
	if err != nil {
		return "", err
	}

	tenantID, err := r.resolveChain(ctx, wf)
	if err != nil {
		return "", err
	}
	if tenantID == "" {
		return "", schema.NewErrorf(schema.ErrCodeTenantUnresolved,
			"no tenant resolvable for workflow %q", workflowID).
			WithDetails(map[string]any{"workflowId": workflowID})
	}

	r.cache.SetDefault(workflowID, tenantID)
	return tenantID, nil
}

func (r *Resolver) resolveChain(ctx context.Context, wf *store.WorkflowRow) (string, error) {
	if wf.ProjectID != nil && *wf.ProjectID != "" {
		project, err := r.ws.GetProject(ctx, *wf.ProjectID)
		if err != nil {
			return "", err
		}
		if project.TenantID != "" {
			return project.TenantID, nil
		}
	}
	if wf.CreatedBy != "" {
		user, err := r.ws.GetUser(ctx, wf.CreatedBy)
		if err != nil {
			// A dangling creator reference leaves the workflow unresolved
			// rather than erroring the whole run setup.
			if fe, ok := err.(*schema.FlowError); ok && fe.Code == schema.ErrCodeNotFound {
				return "", nil
			}
			return "", err
		}
		return user.TenantID, nil
	}
	return "", nil
}

// Invalidate drops the cached tenant for a workflow.
func (r *Resolver) Invalidate(workflowID string) {
	r.cache.Delete(workflowID)
}
