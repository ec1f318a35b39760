package store

import (
	"context"
	"time"

	"github.com/formflow/formflow/pkg/schema"
)

// WorkflowStore is the read surface the engine consumes: workflow headers,
// sections, steps, and blocks, plus the linkage rows tenant resolution needs.
// All implementations must be safe for concurrent use.
type WorkflowStore interface {
	GetWorkflow(ctx context.Context, id string) (*WorkflowRow, error)
	GetProject(ctx context.Context, id string) (*Project, error)
	GetUser(ctx context.Context, id string) (*User, error)

	ListSections(ctx context.Context, workflowID string) ([]*schema.Section, error)
	// ListSteps returns a section's steps ordered by `order` ascending.
	// Virtual steps are excluded unless includeVirtual is set.
	ListSteps(ctx context.Context, sectionID string, includeVirtual bool) ([]*schema.Step, error)
	GetStep(ctx context.Context, id string) (*schema.Step, error)
	CreateVirtualStep(ctx context.Context, step *schema.Step) error

	// ListBlocks returns all blocks of a workflow ordered by `order` ascending.
	ListBlocks(ctx context.Context, workflowID string) ([]*schema.Block, error)
}

// RunStore persists runs and step values. UpsertStepValue is idempotent
// last-write-wins per (runId, stepId).
type RunStore interface {
	CreateRun(ctx context.Context, run *Run) error
	GetRun(ctx context.Context, id string) (*Run, error)
	UpdateRunStatus(ctx context.Context, id, status string) error

	UpsertStepValue(ctx context.Context, sv *StepValue) error
	GetStepValue(ctx context.Context, runID, stepID string) (*StepValue, error)
	ListStepValues(ctx context.Context, runID string) ([]*StepValue, error)
}

// TableService is the tenant-scoped table read/write surface. Callers pass a
// resolved tenantID; the service never re-derives it.
type TableService interface {
	GetTable(ctx context.Context, tenantID, tableID string) (*TableDef, error)
	// ReadTable executes a guarded read. Filter and sort column identifiers
	// that fail the SQL identifier check are dropped with a warning, never
	// interpolated into the query.
	ReadTable(ctx context.Context, tenantID, tableID string, columns []string, filters []schema.FilterSpec, sort *schema.SortSpec, limit int) (*schema.ListVariable, error)
	// WriteTable inserts or updates one row. The idempotency key dedupes
	// re-invocations from whole-phase retries: a repeated key returns the
	// original result without writing again.
	WriteTable(ctx context.Context, tenantID, tableID, operation, rowID string, values map[string]any, idempotencyKey string) (*WriteResult, error)
}

// RecordService is the tenant-scoped collection CRUD surface.
type RecordService interface {
	CreateRecord(ctx context.Context, tenantID, collectionID string, fields map[string]any, idempotencyKey string) (*RecordDoc, error)
	UpdateRecord(ctx context.Context, tenantID, collectionID, recordID string, fields map[string]any) (*RecordDoc, error)
	FindRecords(ctx context.Context, tenantID, collectionID string, filters []schema.FilterSpec, limit int) ([]*RecordDoc, error)
	DeleteRecord(ctx context.Context, tenantID, collectionID, recordID string) error
}

// QueryService resolves named query definitions.
type QueryService interface {
	GetQuery(ctx context.Context, tenantID, queryID string) (*QueryDef, error)
}

// SchedulerStore persists cron-triggered run definitions.
type SchedulerStore interface {
	ListScheduledRuns(ctx context.Context, enabledOnly bool) ([]*ScheduledRun, error)
	UpdateScheduledRun(ctx context.Context, id string, lastRunAt, nextRunAt *time.Time) error
}

// Store is the full persistence contract implemented by LibSQLStore.
type Store interface {
	WorkflowStore
	RunStore
	TableService
	RecordService
	QueryService
	SchedulerStore

	Migrate(ctx context.Context) error
	Close() error
}
