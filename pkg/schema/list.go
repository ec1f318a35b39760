package schema

import "fmt"

// ListColumn describes one column of a ListVariable.
type ListColumn struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	Type string `json:"type,omitempty"`
}

// ListMetadata records where a ListVariable came from and what has been done
// to it. Purely informational; never drives pipeline behavior.
type ListMetadata struct {
	Source      string         `json:"source"`
	SourceID    string         `json:"sourceId,omitempty"`
	TableName   string         `json:"tableName,omitempty"`
	QueryParams map[string]any `json:"queryParams,omitempty"`
	FilteredBy  string         `json:"filteredBy,omitempty"`
	SortedBy    string         `json:"sortedBy,omitempty"`
}

// ListVariable is the canonical normalized shape for tabular data threaded
// between read and transform blocks. Invariant: Count == len(Rows) and every
// row carries an "id" key.
type ListVariable struct {
	Metadata ListMetadata     `json:"metadata"`
	Rows     []map[string]any `json:"rows"`
	Count    int              `json:"count"`
	Columns  []ListColumn     `json:"columns,omitempty"`
}

// EmptyList returns a normalized empty ListVariable with the given source tag.
func EmptyList(source string) *ListVariable {
	return &ListVariable{
		Metadata: ListMetadata{Source: source},
		Rows:     []map[string]any{},
		Count:    0,
	}
}

// NormalizeList coerces an arbitrary value into a ListVariable. It accepts an
// existing ListVariable (as a struct or its map form) or a plain array of row
// objects; anything else normalizes to an empty list rather than failing.
func NormalizeList(v any, source string) *ListVariable {
	switch val := v.(type) {
	case nil:
		return EmptyList(source)
	case *ListVariable:
		if val == nil {
			return EmptyList(source)
		}
		val.Count = len(val.Rows)
		return val
	case ListVariable:
		val.Count = len(val.Rows)
		return &val
	case []map[string]any:
		return fromRows(val, source)
	case []any:
		rows := make([]map[string]any, 0, len(val))
		for i, item := range val {
			if m, ok := item.(map[string]any); ok {
				rows = append(rows, m)
				continue
			}
			// Scalar array elements become single-value rows.
			rows = append(rows, map[string]any{"id": fmt.Sprintf("%d", i), "value": item})
		}
		return fromRows(rows, source)
	case map[string]any:
		// Map form of a ListVariable (round-tripped through JSON).
		rawRows, ok := val["rows"].([]any)
		if !ok {
			return EmptyList(source)
		}
		rows := make([]map[string]any, 0, len(rawRows))
		for _, item := range rawRows {
			if m, ok := item.(map[string]any); ok {
				rows = append(rows, m)
			}
		}
		lv := fromRows(rows, source)
		if meta, ok := val["metadata"].(map[string]any); ok {
			if s, ok := meta["source"].(string); ok && s != "" {
				lv.Metadata.Source = s
			}
			if tn, ok := meta["tableName"].(string); ok {
				lv.Metadata.TableName = tn
			}
		}
		if cols, ok := val["columns"].([]any); ok {
			for _, c := range cols {
				cm, ok := c.(map[string]any)
				if !ok {
					continue
				}
				col := ListColumn{}
				col.ID, _ = cm["id"].(string)
				col.Name, _ = cm["name"].(string)
				col.Type, _ = cm["type"].(string)
				lv.Columns = append(lv.Columns, col)
			}
		}
		return lv
	default:
		return EmptyList(source)
	}
}

func fromRows(rows []map[string]any, source string) *ListVariable {
	for i, row := range rows {
		if _, ok := row["id"]; !ok {
			row["id"] = fmt.Sprintf("%d", i)
		}
	}
	return &ListVariable{
		Metadata: ListMetadata{Source: source},
		Rows:     rows,
		Count:    len(rows),
	}
}

// FilterSpec is one per-row filter clause of a list operation.
type FilterSpec struct {
	ColumnID string             `json:"columnId"`
	Operator ComparisonOperator `json:"operator"`
	Value    any                `json:"value,omitempty"`
}

// SortSpec orders rows by one column.
type SortSpec struct {
	ColumnID  string `json:"columnId"`
	Direction string `json:"direction,omitempty"` // asc | desc (default asc)
}

// ListOps is the transformation set applied by the list pipeline, in fixed
// stage order: filter, dedupe, sort, offset/limit, select.
type ListOps struct {
	Filters   []FilterSpec `json:"filters,omitempty"`
	DedupeKey string       `json:"dedupeKey,omitempty"`
	Sort      *SortSpec    `json:"sort,omitempty"`
	Limit     int          `json:"limit,omitempty"`
	Offset    int          `json:"offset,omitempty"`
	Select    []string     `json:"select,omitempty"`
}
