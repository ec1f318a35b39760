package blocks

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/formflow/formflow/internal/listops"
	"github.com/formflow/formflow/internal/outbound"
	"github.com/formflow/formflow/internal/store"
	"github.com/formflow/formflow/internal/tenant"
	"github.com/formflow/formflow/pkg/schema"
)

// In-memory service fakes shared by the runner tests.

type writeCall struct {
	TenantID  string
	TableID   string
	Operation string
	RowID     string
	Values    map[string]any
	Key       string
}

type fakeTables struct {
	lists  map[string]*schema.ListVariable // tableID -> canned rows
	writes []writeCall
	byKey  map[string]*store.WriteResult
	err    error
}

func newFakeTables() *fakeTables {
	return &fakeTables{
		lists: map[string]*schema.ListVariable{},
		byKey: map[string]*store.WriteResult{},
	}
}

func (f *fakeTables) GetTable(ctx context.Context, tenantID, tableID string) (*store.TableDef, error) {
	if _, ok := f.lists[tableID]; !ok {
		return nil, schema.NewErrorf(schema.ErrCodeNotFound, "table %q not found", tableID)
	}
	return &store.TableDef{ID: tableID, TenantID: tenantID}, nil
}

func (f *fakeTables) ReadTable(ctx context.Context, tenantID, tableID string, columns []string, filters []schema.FilterSpec, sort *schema.SortSpec, limit int) (*schema.ListVariable, error) {
	if f.err != nil {
		return nil, f.err
	}
	list, ok := f.lists[tableID]
	if !ok {
		return nil, schema.NewErrorf(schema.ErrCodeNotFound, "table %q not found", tableID)
	}
	return listops.TransformList(list, schema.ListOps{
		Filters: filters, Sort: sort, Limit: limit, Select: columns,
	}, nil), nil
}

func (f *fakeTables) WriteTable(ctx context.Context, tenantID, tableID, operation, rowID string, values map[string]any, idempotencyKey string) (*store.WriteResult, error) {
	if f.err != nil {
		return nil, f.err
	}
	if idempotencyKey != "" {
		if prior, ok := f.byKey[idempotencyKey]; ok {
			return prior, nil
		}
	}
	if rowID == "" {
		rowID = "row-1"
	}
	f.writes = append(f.writes, writeCall{tenantID, tableID, operation, rowID, values, idempotencyKey})
	res := &store.WriteResult{RowID: rowID, TableID: tableID, Operation: operation, Written: values}
	if idempotencyKey != "" {
		f.byKey[idempotencyKey] = res
	}
	return res, nil
}

type fakeRecords struct {
	docs    map[string]*store.RecordDoc
	byKey   map[string]*store.RecordDoc
	creates int
	nextID  int
}

func newFakeRecords() *fakeRecords {
	return &fakeRecords{docs: map[string]*store.RecordDoc{}, byKey: map[string]*store.RecordDoc{}}
}

func (f *fakeRecords) CreateRecord(ctx context.Context, tenantID, collectionID string, fields map[string]any, idempotencyKey string) (*store.RecordDoc, error) {
	if idempotencyKey != "" {
		if prior, ok := f.byKey[idempotencyKey]; ok {
			return prior, nil
		}
	}
	f.creates++
	f.nextID++
	doc := &store.RecordDoc{ID: fmt.Sprintf("rec-%d", f.nextID), CollectionID: collectionID, Fields: fields}
	f.docs[doc.ID] = doc
	if idempotencyKey != "" {
		f.byKey[idempotencyKey] = doc
	}
	return doc, nil
}

func (f *fakeRecords) UpdateRecord(ctx context.Context, tenantID, collectionID, recordID string, fields map[string]any) (*store.RecordDoc, error) {
	doc, ok := f.docs[recordID]
	if !ok {
		return nil, schema.NewErrorf(schema.ErrCodeNotFound, "record %q not found", recordID)
	}
	for k, v := range fields {
		doc.Fields[k] = v
	}
	return doc, nil
}

func (f *fakeRecords) FindRecords(ctx context.Context, tenantID, collectionID string, filters []schema.FilterSpec, limit int) ([]*store.RecordDoc, error) {
	var out []*store.RecordDoc
	for _, doc := range f.docs {
		if doc.CollectionID != collectionID {
			continue
		}
		match := true
		for _, flt := range filters {
			cond := schema.Condition{Key: flt.ColumnID, Op: flt.Operator, Value: flt.Value}
			if !matchesRecord(cond, doc.Fields) {
				match = false
				break
			}
		}
		if match {
			out = append(out, doc)
		}
		if limit > 0 && len(out) >= limit {
			break
		}
	}
	return out, nil
}

func matchesRecord(cond schema.Condition, fields map[string]any) bool {
	return fields[cond.Key] == cond.Value
}

func (f *fakeRecords) DeleteRecord(ctx context.Context, tenantID, collectionID, recordID string) error {
	if _, ok := f.docs[recordID]; !ok {
		return schema.NewErrorf(schema.ErrCodeNotFound, "record %q not found", recordID)
	}
	delete(f.docs, recordID)
	return nil
}

type fakeQueries struct {
	queries map[string]*store.QueryDef
}

func (f *fakeQueries) GetQuery(ctx context.Context, tenantID, queryID string) (*store.QueryDef, error) {
	q, ok := f.queries[queryID]
	if !ok {
		return nil, schema.NewErrorf(schema.ErrCodeNotFound, "query %q not found", queryID)
	}
	return q, nil
}

type fakeDispatcher struct {
	calls []*outbound.Request
	resp  *outbound.Response
	err   error
}

func (f *fakeDispatcher) Send(ctx context.Context, req *outbound.Request) (*outbound.Response, error) {
	f.calls = append(f.calls, req)
	if f.err != nil {
		return nil, f.err
	}
	return f.resp, nil
}

// unresolvableTenants builds a resolver whose workflow lookups always leave
// the tenant unresolved.
type bareWorkflowStore struct {
	store.WorkflowStore
}

func (bareWorkflowStore) GetWorkflow(context.Context, string) (*store.WorkflowRow, error) {
	return &store.WorkflowRow{ID: "wf1"}, nil
}

func unresolvableTenants() *tenant.Resolver {
	return tenant.NewResolver(bareWorkflowStore{})
}

func testBase() base {
	return base{logger: slog.Default()}
}

func liveContext(data map[string]any) *Context {
	if data == nil {
		data = map[string]any{}
	}
	return &Context{
		WorkflowID: "wf1",
		RunID:      "run1",
		TenantID:   "tenant-a",
		Mode:       ModeLive,
		Phase:      schema.PhaseSectionEnter,
		Data:       data,
	}
}

func rawConfig(v any) json.RawMessage {
	b, err := json.Marshal(v)
	if err != nil {
		panic(err)
	}
	return b
}

func testBlock(blockType schema.BlockType, cfg any) *schema.Block {
	return &schema.Block{
		ID:         "blk1",
		WorkflowID: "wf1",
		Type:       blockType,
		Phase:      schema.PhaseSectionEnter,
		Enabled:    true,
		Config:     rawConfig(cfg),
	}
}
