package store

import (
	"encoding/json"
	"time"

	"github.com/formflow/formflow/pkg/schema"
)

// WorkflowRow is the persisted workflow header. ProjectID is nil for
// "unfiled" workflows; tenant resolution then falls back to the creator.
type WorkflowRow struct {
	ID        string    `json:"id"`
	Name      string    `json:"name,omitempty"`
	ProjectID *string   `json:"projectId,omitempty"`
	CreatedBy string    `json:"createdBy,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// Project links workflows to their owning tenant.
type Project struct {
	ID       string `json:"id"`
	TenantID string `json:"tenantId"`
	Name     string `json:"name,omitempty"`
}

// User is the minimal creator record used for tenant fallback.
type User struct {
	ID       string `json:"id"`
	TenantID string `json:"tenantId,omitempty"`
}

// Run is one end-to-end execution instance of a workflow.
type Run struct {
	ID         string    `json:"id"`
	WorkflowID string    `json:"workflowId"`
	Mode       string    `json:"mode"` // live | preview
	Status     string    `json:"status"`
	CreatedAt  time.Time `json:"createdAt"`
	UpdatedAt  time.Time `json:"updatedAt"`
}

// StepValue is one persisted answer, keyed by (runId, stepId). Virtual step
// outputs are stored through the same table and read back the same way.
type StepValue struct {
	RunID     string          `json:"runId"`
	StepID    string          `json:"stepId"`
	Value     json.RawMessage `json:"value"`
	UpdatedAt time.Time       `json:"updatedAt"`
}

// TableDef is the metadata of a tenant data table.
type TableDef struct {
	ID       string              `json:"id"`
	TenantID string              `json:"tenantId"`
	Name     string              `json:"name"`
	Columns  []schema.ListColumn `json:"columns,omitempty"`
}

// WriteResult describes a completed table write; persisted to the block's
// virtual step on success.
type WriteResult struct {
	RowID     string         `json:"rowId"`
	TableID   string         `json:"tableId"`
	Operation string         `json:"operation"`
	Written   map[string]any `json:"written"`
}

// RecordDoc is one collection record with slug-keyed fields.
type RecordDoc struct {
	ID           string         `json:"id"`
	CollectionID string         `json:"collectionId"`
	Fields       map[string]any `json:"fields"`
	CreatedAt    time.Time      `json:"createdAt"`
	UpdatedAt    time.Time      `json:"updatedAt"`
}

// QueryDef is a persisted, named query definition: a saved table read.
type QueryDef struct {
	ID         string             `json:"id"`
	TenantID   string             `json:"tenantId"`
	Name       string             `json:"name"`
	TableID    string             `json:"tableId"`
	Filters    []schema.FilterSpec `json:"filters,omitempty"`
	Sort       *schema.SortSpec   `json:"sort,omitempty"`
	Limit      int                `json:"limit,omitempty"`
}

// ScheduledRun is a cron-triggered workflow start.
type ScheduledRun struct {
	ID             string     `json:"id"`
	WorkflowID     string     `json:"workflowId"`
	CronExpression string     `json:"cronExpression"`
	Params         json.RawMessage `json:"params,omitempty"`
	Enabled        bool       `json:"enabled"`
	LastRunAt      *time.Time `json:"lastRunAt,omitempty"`
	NextRunAt      *time.Time `json:"nextRunAt,omitempty"`
	CreatedAt      time.Time  `json:"createdAt"`
}
