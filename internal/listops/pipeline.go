// Package listops implements the list transformation pipeline applied by
// list_tools blocks and ad-hoc reads. Stages run in a fixed order — filter,
// dedupe, sort, offset/limit, select — so pagination always operates on the
// already-reduced row set. The Count invariant (Count == len(Rows)) is
// re-established after every stage.
package listops

import (
	"encoding/json"
	"sort"
	"strconv"
	"strings"

	"github.com/formflow/formflow/internal/conditions"
	"github.com/formflow/formflow/internal/expressions"
	"github.com/formflow/formflow/pkg/schema"
)

// TransformList applies the operation set to a list. Filter values may carry
// {{variableName}} tokens resolved against contextData; row filtering itself
// evaluates against row fields, not the workflow context. Missing input
// normalizes to an empty list rather than failing.
func TransformList(list *schema.ListVariable, ops schema.ListOps, contextData map[string]any) *schema.ListVariable {
	if list == nil {
		return schema.EmptyList("transform")
	}

	out := cloneList(list)

	if len(ops.Filters) > 0 {
		out.Rows = filterRows(out.Rows, ops.Filters, contextData)
		out.Count = len(out.Rows)
		out.Metadata.FilteredBy = filterSummary(ops.Filters)
	}

	if ops.DedupeKey != "" {
		out.Rows = dedupeRows(out.Rows, ops.DedupeKey)
		out.Count = len(out.Rows)
	}

	if ops.Sort != nil && ops.Sort.ColumnID != "" {
		sortRows(out.Rows, *ops.Sort)
		out.Metadata.SortedBy = ops.Sort.ColumnID
	}

	if ops.Offset > 0 {
		if ops.Offset >= len(out.Rows) {
			out.Rows = []map[string]any{}
		} else {
			out.Rows = out.Rows[ops.Offset:]
		}
		out.Count = len(out.Rows)
	}
	if ops.Limit > 0 && ops.Limit < len(out.Rows) {
		out.Rows = out.Rows[:ops.Limit]
		out.Count = len(out.Rows)
	}

	if len(ops.Select) > 0 {
		out.Rows = selectColumns(out.Rows, ops.Select)
		out.Columns = selectColumnMeta(out.Columns, ops.Select)
		out.Count = len(out.Rows)
	}

	out.Count = len(out.Rows)
	return out
}

// First returns the first row of a list, or nil when empty.
func First(list *schema.ListVariable) map[string]any {
	if list == nil || len(list.Rows) == 0 {
		return nil
	}
	return list.Rows[0]
}

func filterRows(rows []map[string]any, filters []schema.FilterSpec, contextData map[string]any) []map[string]any {
	kept := make([]map[string]any, 0, len(rows))
	for _, row := range rows {
		if matchesAll(row, filters, contextData) {
			kept = append(kept, row)
		}
	}
	return kept
}

func matchesAll(row map[string]any, filters []schema.FilterSpec, contextData map[string]any) bool {
	for _, f := range filters {
		value := f.Value
		if expressions.HasToken(value) {
			value = expressions.Interpolate(value, contextData)
		}
		cond := schema.Condition{Key: f.ColumnID, Op: f.Operator, Value: value}
		if !conditions.Evaluate(cond, row) {
			return false
		}
	}
	return true
}

// dedupeRows keeps the first occurrence per the key's stringified value.
// Rows missing the key collapse onto the empty-string bucket together.
func dedupeRows(rows []map[string]any, key string) []map[string]any {
	seen := make(map[string]struct{}, len(rows))
	kept := make([]map[string]any, 0, len(rows))
	for _, row := range rows {
		k := stringifyCell(row[key])
		if _, dup := seen[k]; dup {
			continue
		}
		seen[k] = struct{}{}
		kept = append(kept, row)
	}
	return kept
}

func sortRows(rows []map[string]any, spec schema.SortSpec) {
	desc := strings.EqualFold(spec.Direction, "desc")
	sort.SliceStable(rows, func(i, j int) bool {
		less := cellLess(rows[i][spec.ColumnID], rows[j][spec.ColumnID])
		if desc {
			return cellLess(rows[j][spec.ColumnID], rows[i][spec.ColumnID])
		}
		return less
	})
}

// cellLess orders numerically when both cells parse as floats, otherwise
// case-insensitively as strings. Nil sorts first.
func cellLess(a, b any) bool {
	if a == nil {
		return b != nil
	}
	if b == nil {
		return false
	}
	af, aok := parseFloat(a)
	bf, bok := parseFloat(b)
	if aok && bok {
		return af < bf
	}
	return strings.ToLower(stringifyCell(a)) < strings.ToLower(stringifyCell(b))
}

func selectColumns(rows []map[string]any, cols []string) []map[string]any {
	out := make([]map[string]any, len(rows))
	for i, row := range rows {
		// The id key always survives column selection.
		projected := map[string]any{"id": row["id"]}
		for _, col := range cols {
			if v, ok := row[col]; ok {
				projected[col] = v
			}
		}
		out[i] = projected
	}
	return out
}

func selectColumnMeta(columns []schema.ListColumn, cols []string) []schema.ListColumn {
	if len(columns) == 0 {
		return columns
	}
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

func filterSummary(filters []schema.FilterSpec) string {
	parts := make([]string, len(filters))
	for i, f := range filters {
		parts[i] = f.ColumnID + ":" + string(f.Operator)
	}
	return strings.Join(parts, ",")
}

func parseFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(n), 64)
		return f, err == nil
	default:
		return 0, false
	}
}

func stringifyCell(v any) string {
	switch val := v.(type) {
	case nil:
		return ""
	case string:
		return val
	default:
		b, err := json.Marshal(val)
		if err != nil {
			return ""
		}
		return strings.Trim(string(b), `"`)
	}
}

// cloneList copies the container and row slice so pipeline stages never
// mutate the caller's list. Row maps are shallow-copied only when a stage
// rewrites them (selectColumns builds fresh maps).
func cloneList(list *schema.ListVariable) *schema.ListVariable {
	rows := make([]map[string]any, len(list.Rows))
	copy(rows, list.Rows)
	cols := make([]schema.ListColumn, len(list.Columns))
	copy(cols, list.Columns)
	return &schema.ListVariable{
		Metadata: list.Metadata,
		Rows:     rows,
		Count:    len(rows),
		Columns:  cols,
	}
}
