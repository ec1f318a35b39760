package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "github.com/tursodatabase/go-libsql"

	"github.com/formflow/formflow/pkg/schema"
)

// identifierRe is the guard applied to every column identifier before it is
// spliced into a json_extract path. Anything outside this set is dropped,
// never quoted or escaped.
var identifierRe = regexp.MustCompile(`^[a-zA-Z0-9_-]+$`)

// ValidIdentifier reports whether s is safe to use as a column identifier
// inside a generated query.
func ValidIdentifier(s string) bool {
	return s != "" && identifierRe.MatchString(s)
}

// LibSQLStore implements the Store interface using libSQL (embedded SQLite fork).
type LibSQLStore struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewLibSQLStore opens a libSQL database at the given path and returns a Store.
// The path should be a file URI, e.g. "file:/path/to/db.db".
func NewLibSQLStore(dbPath string) (*LibSQLStore, error) {
	db, err := sql.Open("libsql", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open libsql: %w", err)
	}
	db.SetMaxOpenConns(1)

	// Apply connection-level PRAGMAs. Some PRAGMAs return rows so we use QueryRow.
	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA cache_size=-20000",
		"PRAGMA foreign_keys=ON",
		"PRAGMA temp_store=MEMORY",
	}
	for _, p := range pragmas {
		var result string
		_ = db.QueryRow(p).Scan(&result)
	}

	return &LibSQLStore{db: db, logger: slog.Default()}, nil
}

// DB returns the underlying *sql.DB for advanced usage.
func (s *LibSQLStore) DB() *sql.DB { return s.db }

// Close closes the database.
func (s *LibSQLStore) Close() error { return s.db.Close() }

// Migrate runs all pending database migrations.
func (s *LibSQLStore) Migrate(ctx context.Context) error {
	return runMigrations(ctx, s.db)
}

// Vacuum runs VACUUM on the database.
func (s *LibSQLStore) Vacuum(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, "VACUUM")
	return err
}

// --- Workflows ---

func (s *LibSQLStore) GetWorkflow(ctx context.Context, id string) (*WorkflowRow, error) {
	wf := &WorkflowRow{}
	var name, projectID, createdBy sql.NullString
	err := s.db.QueryRowContext(ctx,
		`SELECT id, name, project_id, created_by, created_at, updated_at FROM workflows WHERE id = ?`, id,
	).Scan(&wf.ID, &name, &projectID, &createdBy, &wf.CreatedAt, &wf.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, storeNotFound("workflow", id)
	}
	if err != nil {
		return nil, err
	}
	wf.Name = name.String
	wf.CreatedBy = createdBy.String
	if projectID.Valid {
		wf.ProjectID = &projectID.String
	}
	return wf, nil
}

func (s *LibSQLStore) GetProject(ctx context.Context, id string) (*Project, error) {
	p := &Project{}
	var name sql.NullString
	err := s.db.QueryRowContext(ctx,
		`SELECT id, tenant_id, name FROM projects WHERE id = ?`, id,
	).Scan(&p.ID, &p.TenantID, &name)
	if err == sql.ErrNoRows {
		return nil, storeNotFound("project", id)
	}
	if err != nil {
		return nil, err
	}
	p.Name = name.String
	return p, nil
}

func (s *LibSQLStore) GetUser(ctx context.Context, id string) (*User, error) {
	u := &User{}
	var tenantID sql.NullString
	err := s.db.QueryRowContext(ctx,
		`SELECT id, tenant_id FROM users WHERE id = ?`, id,
	).Scan(&u.ID, &tenantID)
	if err == sql.ErrNoRows {
		return nil, storeNotFound("user", id)
	}
	if err != nil {
		return nil, err
	}
	u.TenantID = tenantID.String
	return u, nil
}

// --- Sections and steps ---

func (s *LibSQLStore) ListSections(ctx context.Context, workflowID string) ([]*schema.Section, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, title, sort_order FROM sections WHERE workflow_id = ? ORDER BY sort_order ASC`, workflowID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var sections []*schema.Section
	for rows.Next() {
		sec := &schema.Section{}
		var title sql.NullString
		if err := rows.Scan(&sec.ID, &title, &sec.Order); err != nil {
			return nil, err
		}
		sec.Title = title.String
		sections = append(sections, sec)
	}
	return sections, rows.Err()
}

func (s *LibSQLStore) ListSteps(ctx context.Context, sectionID string, includeVirtual bool) ([]*schema.Step, error) {
	query := `SELECT id, section_id, alias, label, step_type, sort_order, is_virtual FROM steps WHERE section_id = ?`
	if !includeVirtual {
		query += ` AND is_virtual = 0`
	}
	query += ` ORDER BY sort_order ASC`

	rows, err := s.db.QueryContext(ctx, query, sectionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var steps []*schema.Step
	for rows.Next() {
		st, err := scanStep(rows.Scan)
		if err != nil {
			return nil, err
		}
		steps = append(steps, st)
	}
	return steps, rows.Err()
}

func (s *LibSQLStore) GetStep(ctx context.Context, id string) (*schema.Step, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, section_id, alias, label, step_type, sort_order, is_virtual FROM steps WHERE id = ?`, id,
	)
	st, err := scanStep(row.Scan)
	if err == sql.ErrNoRows {
		return nil, storeNotFound("step", id)
	}
	if err != nil {
		return nil, err
	}
	return st, nil
}

func scanStep(scan func(...any) error) (*schema.Step, error) {
	st := &schema.Step{}
	var alias, label, stepType sql.NullString
	var isVirtual int
	if err := scan(&st.ID, &st.SectionID, &alias, &label, &stepType, &st.Order, &isVirtual); err != nil {
		return nil, err
	}
	st.Alias = alias.String
	st.Label = label.String
	st.Type = stepType.String
	st.IsVirtual = isVirtual != 0
	return st, nil
}

func (s *LibSQLStore) CreateVirtualStep(ctx context.Context, step *schema.Step) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO steps (id, section_id, alias, label, step_type, sort_order, is_virtual)
		 VALUES (?, ?, ?, ?, ?, ?, 1)
		 ON CONFLICT(id) DO UPDATE SET alias=excluded.alias, label=excluded.label`,
		step.ID, step.SectionID, nullStr(step.Alias), nullStr(step.Label), nullStr(step.Type), step.Order,
	)
	return err
}

// --- Blocks ---

func (s *LibSQLStore) ListBlocks(ctx context.Context, workflowID string) ([]*schema.Block, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, workflow_id, block_type, phase, section_id, enabled, sort_order, config, virtual_step_id
		 FROM blocks WHERE workflow_id = ? ORDER BY sort_order ASC`, workflowID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var blocks []*schema.Block
	for rows.Next() {
		b := &schema.Block{}
		var blockType, phase string
		var sectionID, virtualStepID sql.NullString
		var enabled int
		var config string
		if err := rows.Scan(&b.ID, &b.WorkflowID, &blockType, &phase, &sectionID, &enabled, &b.Order, &config, &virtualStepID); err != nil {
			return nil, err
		}
		b.Type = schema.BlockType(blockType)
		b.Phase = schema.Phase(phase)
		b.Enabled = enabled != 0
		b.Config = json.RawMessage(config)
		if sectionID.Valid {
			b.SectionID = &sectionID.String
		}
		if virtualStepID.Valid {
			b.VirtualStepID = &virtualStepID.String
		}
		blocks = append(blocks, b)
	}
	return blocks, rows.Err()
}

// --- Runs ---

func (s *LibSQLStore) CreateRun(ctx context.Context, run *Run) error {
	mode := run.Mode
	if mode == "" {
		mode = "live"
	}
	status := run.Status
	if status == "" {
		status = "active"
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO runs (id, workflow_id, mode, status, created_at, updated_at) VALUES (?, ?, ?, ?, ?, ?)`,
		run.ID, run.WorkflowID, mode, status, timeOrNow(run.CreatedAt), timeOrNow(run.UpdatedAt),
	)
	return err
}

func (s *LibSQLStore) GetRun(ctx context.Context, id string) (*Run, error) {
	r := &Run{}
	err := s.db.QueryRowContext(ctx,
		`SELECT id, workflow_id, mode, status, created_at, updated_at FROM runs WHERE id = ?`, id,
	).Scan(&r.ID, &r.WorkflowID, &r.Mode, &r.Status, &r.CreatedAt, &r.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, storeNotFound("run", id)
	}
	if err != nil {
		return nil, err
	}
	return r, nil
}

func (s *LibSQLStore) UpdateRunStatus(ctx context.Context, id, status string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE runs SET status = ?, updated_at = CURRENT_TIMESTAMP WHERE id = ?`, status, id,
	)
	if err != nil {
		return err
	}
	return checkRowsAffected(res, "run", id)
}

// --- Step values ---

func (s *LibSQLStore) UpsertStepValue(ctx context.Context, sv *StepValue) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO step_values (run_id, step_id, value, updated_at) VALUES (?, ?, ?, CURRENT_TIMESTAMP)
		 ON CONFLICT(run_id, step_id) DO UPDATE SET value=excluded.value, updated_at=CURRENT_TIMESTAMP`,
		sv.RunID, sv.StepID, nullRaw(sv.Value),
	)
	return err
}

func (s *LibSQLStore) GetStepValue(ctx context.Context, runID, stepID string) (*StepValue, error) {
	sv := &StepValue{}
	var value sql.NullString
	err := s.db.QueryRowContext(ctx,
		`SELECT run_id, step_id, value, updated_at FROM step_values WHERE run_id = ? AND step_id = ?`,
		runID, stepID,
	).Scan(&sv.RunID, &sv.StepID, &value, &sv.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, storeNotFound("step value", runID+"/"+stepID)
	}
	if err != nil {
		return nil, err
	}
	sv.Value = rawOrNil(value)
	return sv, nil
}

func (s *LibSQLStore) ListStepValues(ctx context.Context, runID string) ([]*StepValue, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT run_id, step_id, value, updated_at FROM step_values WHERE run_id = ? ORDER BY step_id ASC`, runID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var values []*StepValue
	for rows.Next() {
		sv := &StepValue{}
		var value sql.NullString
		if err := rows.Scan(&sv.RunID, &sv.StepID, &value, &sv.UpdatedAt); err != nil {
			return nil, err
		}
		sv.Value = rawOrNil(value)
		values = append(values, sv)
	}
	return values, rows.Err()
}

// --- Tables ---

func (s *LibSQLStore) GetTable(ctx context.Context, tenantID, tableID string) (*TableDef, error) {
	t := &TableDef{}
	var columns string
	err := s.db.QueryRowContext(ctx,
		`SELECT id, tenant_id, name, columns FROM data_tables WHERE id = ? AND tenant_id = ?`,
		tableID, tenantID,
	).Scan(&t.ID, &t.TenantID, &t.Name, &columns)
	if err == sql.ErrNoRows {
		return nil, storeNotFound("table", tableID)
	}
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(columns), &t.Columns); err != nil {
		return nil, fmt.Errorf("unmarshal table columns: %w", err)
	}
	return t, nil
}

func (s *LibSQLStore) ReadTable(ctx context.Context, tenantID, tableID string, columns []string, filters []schema.FilterSpec, sortSpec *schema.SortSpec, limit int) (*schema.ListVariable, error) {
	table, err := s.GetTable(ctx, tenantID, tableID)
	if err != nil {
		return nil, err
	}

	query := `SELECT id, data FROM table_rows WHERE tenant_id = ? AND table_id = ?`
	args := []any{tenantID, tableID}

	for _, f := range filters {
		clause, clauseArgs, ok := s.filterClause("data", f)
		if !ok {
			continue
		}
		query += " AND " + clause
		args = append(args, clauseArgs...)
	}

	if sortSpec != nil && sortSpec.ColumnID != "" {
		if !ValidIdentifier(sortSpec.ColumnID) {
			s.logger.Warn("dropping sort with invalid column identifier", "columnId", sortSpec.ColumnID, "tableId", tableID)
		} else {
			query += fmt.Sprintf(" ORDER BY json_extract(data, '$.%s')", sortSpec.ColumnID)
			if strings.EqualFold(sortSpec.Direction, "desc") {
				query += " DESC"
			}
		}
	}
	if limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := schema.EmptyList("table")
	out.Metadata.SourceID = tableID
	out.Metadata.TableName = table.Name
	if sortSpec != nil {
		out.Metadata.SortedBy = sortSpec.ColumnID
	}

	for rows.Next() {
		var id, data string
		if err := rows.Scan(&id, &data); err != nil {
			return nil, err
		}
		row := map[string]any{}
		if err := json.Unmarshal([]byte(data), &row); err != nil {
			return nil, fmt.Errorf("unmarshal row %s: %w", id, err)
		}
		row["id"] = id
		if len(columns) > 0 {
			row = projectRow(row, columns)
		}
		out.Rows = append(out.Rows, row)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	out.Count = len(out.Rows)
	out.Columns = table.Columns
	if len(columns) > 0 {
		out.Columns = projectColumnMeta(table.Columns, columns)
	}
	return out, nil
}

// filterClause translates one filter into a parameterized json_extract
// predicate. Filters with invalid identifiers, or operators that cannot be
// expressed in SQL, are dropped with a warning; they never loosen into a
// broader match.
func (s *LibSQLStore) filterClause(jsonCol string, f schema.FilterSpec) (string, []any, bool) {
	if !ValidIdentifier(f.ColumnID) {
		s.logger.Warn("dropping filter with invalid column identifier", "columnId", f.ColumnID)
		return "", nil, false
	}
	path := fmt.Sprintf("json_extract(%s, '$.%s')", jsonCol, f.ColumnID)

	switch f.Operator {
	case schema.OpEquals:
		return path + " = ?", []any{sqlValue(f.Value)}, true
	case schema.OpNotEquals:
		return path + " IS NOT ?", []any{sqlValue(f.Value)}, true
	case schema.OpGreaterThan:
		return path + " > ?", []any{sqlValue(f.Value)}, true
	case schema.OpLessThan:
		return path + " < ?", []any{sqlValue(f.Value)}, true
	case schema.OpContains:
		str, ok := f.Value.(string)
		if !ok {
			s.logger.Warn("dropping contains filter with non-string value", "columnId", f.ColumnID)
			return "", nil, false
		}
		return path + " LIKE ?", []any{"%" + str + "%"}, true
	case schema.OpIsEmpty:
		return "(" + path + " IS NULL OR " + path + " = '')", nil, true
	case schema.OpIsNotEmpty:
		return "(" + path + " IS NOT NULL AND " + path + " != '')", nil, true
	default:
		s.logger.Warn("dropping filter with unsupported operator", "columnId", f.ColumnID, "operator", string(f.Operator))
		return "", nil, false
	}
}

func (s *LibSQLStore) WriteTable(ctx context.Context, tenantID, tableID, operation, rowID string, values map[string]any, idempotencyKey string) (*WriteResult, error) {
	if idempotencyKey != "" {
		if prior, err := s.lookupWrite(ctx, idempotencyKey); err != nil {
			return nil, err
		} else if prior != nil {
			return prior, nil
		}
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	switch operation {
	case "insert":
		if rowID == "" {
			rowID = uuid.New().String()
		}
		data, err := json.Marshal(values)
		if err != nil {
			return nil, fmt.Errorf("marshal row: %w", err)
		}
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO table_rows (id, table_id, tenant_id, data) VALUES (?, ?, ?, ?)`,
			rowID, tableID, tenantID, string(data),
		); err != nil {
			return nil, err
		}
	case "update":
		var existing string
		err := tx.QueryRowContext(ctx,
			`SELECT data FROM table_rows WHERE id = ? AND table_id = ? AND tenant_id = ?`,
			rowID, tableID, tenantID,
		).Scan(&existing)
		if err == sql.ErrNoRows {
			return nil, storeNotFound("row", rowID)
		}
		if err != nil {
			return nil, err
		}
		merged := map[string]any{}
		if err := json.Unmarshal([]byte(existing), &merged); err != nil {
			return nil, fmt.Errorf("unmarshal row %s: %w", rowID, err)
		}
		for k, v := range values {
			merged[k] = v
		}
		data, err := json.Marshal(merged)
		if err != nil {
			return nil, fmt.Errorf("marshal row: %w", err)
		}
		if _, err := tx.ExecContext(ctx,
			`UPDATE table_rows SET data = ?, updated_at = CURRENT_TIMESTAMP WHERE id = ? AND table_id = ? AND tenant_id = ?`,
			string(data), rowID, tableID, tenantID,
		); err != nil {
			return nil, err
		}
	default:
		return nil, schema.NewErrorf(schema.ErrCodeValidation, "unknown write operation %q", operation)
	}

	result := &WriteResult{RowID: rowID, TableID: tableID, Operation: operation, Written: values}
	if idempotencyKey != "" {
		written, err := json.Marshal(values)
		if err != nil {
			return nil, fmt.Errorf("marshal written: %w", err)
		}
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO write_log (idempotency_key, row_id, table_id, operation, written) VALUES (?, ?, ?, ?, ?)`,
			idempotencyKey, rowID, tableID, operation, string(written),
		); err != nil {
			return nil, err
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit write: %w", err)
	}
	return result, nil
}

func (s *LibSQLStore) lookupWrite(ctx context.Context, key string) (*WriteResult, error) {
	res := &WriteResult{}
	var written string
	err := s.db.QueryRowContext(ctx,
		`SELECT row_id, table_id, operation, written FROM write_log WHERE idempotency_key = ?`, key,
	).Scan(&res.RowID, &res.TableID, &res.Operation, &written)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(written), &res.Written); err != nil {
		return nil, fmt.Errorf("unmarshal write log: %w", err)
	}
	return res, nil
}

// --- Records ---

func (s *LibSQLStore) CreateRecord(ctx context.Context, tenantID, collectionID string, fields map[string]any, idempotencyKey string) (*RecordDoc, error) {
	if idempotencyKey != "" {
		prior, err := s.recordByKey(ctx, tenantID, idempotencyKey)
		if err != nil {
			return nil, err
		}
		if prior != nil {
			return prior, nil
		}
	}

	data, err := json.Marshal(fields)
	if err != nil {
		return nil, fmt.Errorf("marshal fields: %w", err)
	}
	id := uuid.New().String()
	now := time.Now().UTC()
	if _, err := s.db.ExecContext(ctx,
		`INSERT INTO records (id, collection_id, tenant_id, fields, idempotency_key, created_at, updated_at) VALUES (?, ?, ?, ?, ?, ?, ?)`,
		id, collectionID, tenantID, string(data), nullStr(idempotencyKey), now, now,
	); err != nil {
		return nil, err
	}
	return &RecordDoc{ID: id, CollectionID: collectionID, Fields: fields, CreatedAt: now, UpdatedAt: now}, nil
}

func (s *LibSQLStore) recordByKey(ctx context.Context, tenantID, key string) (*RecordDoc, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, collection_id, fields, created_at, updated_at FROM records WHERE tenant_id = ? AND idempotency_key = ?`,
		tenantID, key,
	)
	doc, err := scanRecord(row.Scan)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return doc, err
}

func (s *LibSQLStore) UpdateRecord(ctx context.Context, tenantID, collectionID, recordID string, fields map[string]any) (*RecordDoc, error) {
	var existing string
	err := s.db.QueryRowContext(ctx,
		`SELECT fields FROM records WHERE id = ? AND collection_id = ? AND tenant_id = ?`,
		recordID, collectionID, tenantID,
	).Scan(&existing)
	if err == sql.ErrNoRows {
		return nil, storeNotFound("record", recordID)
	}
	if err != nil {
		return nil, err
	}

	merged := map[string]any{}
	if err := json.Unmarshal([]byte(existing), &merged); err != nil {
		return nil, fmt.Errorf("unmarshal record %s: %w", recordID, err)
	}
	for k, v := range fields {
		merged[k] = v
	}
	data, err := json.Marshal(merged)
	if err != nil {
		return nil, fmt.Errorf("marshal fields: %w", err)
	}

	if _, err := s.db.ExecContext(ctx,
		`UPDATE records SET fields = ?, updated_at = CURRENT_TIMESTAMP WHERE id = ? AND collection_id = ? AND tenant_id = ?`,
		string(data), recordID, collectionID, tenantID,
	); err != nil {
		return nil, err
	}

	row := s.db.QueryRowContext(ctx,
		`SELECT id, collection_id, fields, created_at, updated_at FROM records WHERE id = ?`, recordID,
	)
	return scanRecord(row.Scan)
}

func (s *LibSQLStore) FindRecords(ctx context.Context, tenantID, collectionID string, filters []schema.FilterSpec, limit int) ([]*RecordDoc, error) {
	query := `SELECT id, collection_id, fields, created_at, updated_at FROM records WHERE tenant_id = ? AND collection_id = ?`
	args := []any{tenantID, collectionID}

	for _, f := range filters {
		clause, clauseArgs, ok := s.filterClause("fields", f)
		if !ok {
			continue
		}
		query += " AND " + clause
		args = append(args, clauseArgs...)
	}
	query += " ORDER BY created_at ASC"
	if limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var docs []*RecordDoc
	for rows.Next() {
		doc, err := scanRecord(rows.Scan)
		if err != nil {
			return nil, err
		}
		docs = append(docs, doc)
	}
	return docs, rows.Err()
}

func (s *LibSQLStore) DeleteRecord(ctx context.Context, tenantID, collectionID, recordID string) error {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM records WHERE id = ? AND collection_id = ? AND tenant_id = ?`,
		recordID, collectionID, tenantID,
	)
	if err != nil {
		return err
	}
	return checkRowsAffected(res, "record", recordID)
}

func scanRecord(scan func(...any) error) (*RecordDoc, error) {
	doc := &RecordDoc{}
	var fields string
	if err := scan(&doc.ID, &doc.CollectionID, &fields, &doc.CreatedAt, &doc.UpdatedAt); err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(fields), &doc.Fields); err != nil {
		return nil, fmt.Errorf("unmarshal record fields: %w", err)
	}
	return doc, nil
}

// --- Queries ---

func (s *LibSQLStore) GetQuery(ctx context.Context, tenantID, queryID string) (*QueryDef, error) {
	q := &QueryDef{}
	var definition string
	err := s.db.QueryRowContext(ctx,
		`SELECT id, tenant_id, name, definition FROM queries WHERE id = ? AND tenant_id = ?`,
		queryID, tenantID,
	).Scan(&q.ID, &q.TenantID, &q.Name, &definition)
	if err == sql.ErrNoRows {
		return nil, storeNotFound("query", queryID)
	}
	if err != nil {
		return nil, err
	}

	var def struct {
		TableID string              `json:"tableId"`
		Filters []schema.FilterSpec `json:"filters"`
		Sort    *schema.SortSpec    `json:"sort"`
		Limit   int                 `json:"limit"`
	}
	if err := json.Unmarshal([]byte(definition), &def); err != nil {
		return nil, fmt.Errorf("unmarshal query definition: %w", err)
	}
	q.TableID = def.TableID
	q.Filters = def.Filters
	q.Sort = def.Sort
	q.Limit = def.Limit
	return q, nil
}

// --- Scheduled runs ---

func (s *LibSQLStore) ListScheduledRuns(ctx context.Context, enabledOnly bool) ([]*ScheduledRun, error) {
	query := `SELECT id, workflow_id, cron_expression, params, enabled, last_run_at, next_run_at, created_at FROM scheduled_runs`
	if enabledOnly {
		query += ` WHERE enabled = 1`
	}
	query += ` ORDER BY created_at ASC`

	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var scheduled []*ScheduledRun
	for rows.Next() {
		sr := &ScheduledRun{}
		var params sql.NullString
		var enabled int
		var lastRun, nextRun sql.NullTime
		if err := rows.Scan(&sr.ID, &sr.WorkflowID, &sr.CronExpression, &params, &enabled, &lastRun, &nextRun, &sr.CreatedAt); err != nil {
			return nil, err
		}
		sr.Params = rawOrNil(params)
		sr.Enabled = enabled != 0
		if lastRun.Valid {
			sr.LastRunAt = &lastRun.Time
		}
		if nextRun.Valid {
			sr.NextRunAt = &nextRun.Time
		}
		scheduled = append(scheduled, sr)
	}
	return scheduled, rows.Err()
}

func (s *LibSQLStore) UpdateScheduledRun(ctx context.Context, id string, lastRunAt, nextRunAt *time.Time) error {
	var sets []string
	var args []any
	if lastRunAt != nil {
		sets = append(sets, "last_run_at = ?")
		args = append(args, *lastRunAt)
	}
	if nextRunAt != nil {
		sets = append(sets, "next_run_at = ?")
		args = append(args, *nextRunAt)
	}
	if len(sets) == 0 {
		return nil
	}
	args = append(args, id)

	query := fmt.Sprintf("UPDATE scheduled_runs SET %s WHERE id = ?", strings.Join(sets, ", "))
	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return err
	}
	return checkRowsAffected(res, "scheduled run", id)
}

// --- Helpers ---

func projectRow(row map[string]any, cols []string) map[string]any {
	projected := map[string]any{"id": row["id"]}
	for _, col := range cols {
		if v, ok := row[col]; ok {
			projected[col] = v
		}
	}
	return projected
}

func projectColumnMeta(columns []schema.ListColumn, cols []string) []schema.ListColumn {
	keep := make(map[string]struct{}, len(cols))
	for _, c := range cols {
		keep[c] = struct{}{}
	}
	out := make([]schema.ListColumn, 0, len(cols))
	for _, col := range columns {
		if _, ok := keep[col.ID]; ok {
			out = append(out, col)
		}
	}
	return out
}

// sqlValue normalizes a filter value for binding. Booleans map onto the 0/1
// representation json_extract yields for JSON booleans.
func sqlValue(v any) any {
	switch val := v.(type) {
	case bool:
		if val {
			return 1
		}
		return 0
	case nil:
		return nil
	default:
		return v
	}
}

func storeNotFound(resource, id string) *schema.FlowError {
	return schema.NewErrorf(schema.ErrCodeNotFound, "%s %q not found", resource, id)
}

func checkRowsAffected(res sql.Result, resource, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return storeNotFound(resource, id)
	}
	return nil
}

func timeOrNow(t time.Time) time.Time {
	if t.IsZero() {
		return time.Now().UTC()
	}
	return t
}

func nullStr(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func nullRaw(r json.RawMessage) any {
	if len(r) == 0 {
		return nil
	}
	return string(r)
}

func rawOrNil(ns sql.NullString) json.RawMessage {
	if !ns.Valid || ns.String == "" {
		return nil
	}
	return json.RawMessage(ns.String)
}
