package schema

import "encoding/json"

// Typed config structs — one per block type. Persisted as JSON by the
// builder UI; field names are part of the wire format and must not change.

// PrefillConfig seeds the data bag from a static map or query parameters.
type PrefillConfig struct {
	Values    map[string]any `json:"values,omitempty"`
	FromQuery []string       `json:"fromQuery,omitempty"`
	Overwrite bool           `json:"overwrite,omitempty"`
}

// ValidateConfig evaluates a list of assertions against the data bag.
type ValidateConfig struct {
	Assertions []AssertExpression `json:"assertions"`
}

// BranchRule is one ordered when/goto pair of a branch block.
type BranchRule struct {
	When          Condition `json:"when"`
	GotoSectionID string    `json:"gotoSectionId"`
}

// BranchConfig routes to the first matching rule, else the fallback.
type BranchConfig struct {
	Branches          []BranchRule `json:"branches"`
	FallbackSectionID string       `json:"fallbackSectionId,omitempty"`
}

// QueryConfig executes a named query definition or an ad-hoc table read.
type QueryConfig struct {
	QueryID      string       `json:"queryId,omitempty"`
	TableID      string       `json:"tableId,omitempty"`
	Filters      []FilterSpec `json:"filters,omitempty"`
	Sort         *SortSpec    `json:"sort,omitempty"`
	Limit        int          `json:"limit,omitempty"`
	OutputKey    string       `json:"outputKey"`
	RunCondition *Condition   `json:"runCondition,omitempty"`
}

// ReadTableConfig reads rows from a tenant table into a ListVariable.
type ReadTableConfig struct {
	TableID      string       `json:"tableId"`
	Columns      []string     `json:"columns,omitempty"`
	Filters      []FilterSpec `json:"filters,omitempty"`
	Sort         *SortSpec    `json:"sort,omitempty"`
	Limit        int          `json:"limit,omitempty"`
	OutputKey    string       `json:"outputKey"`
	RunCondition *Condition   `json:"runCondition,omitempty"`
}

// ListToolsConfig transforms an existing ListVariable and derives scalars.
type ListToolsConfig struct {
	SourceListVar string       `json:"sourceListVar"`
	Filters       []FilterSpec `json:"filters,omitempty"`
	DedupeKey     string       `json:"dedupeKey,omitempty"`
	Sort          *SortSpec    `json:"sort,omitempty"`
	Limit         int          `json:"limit,omitempty"`
	Offset        int          `json:"offset,omitempty"`
	Select        []string     `json:"select,omitempty"`
	OutputListVar string       `json:"outputListVar,omitempty"`
	CountVar      string       `json:"countVar,omitempty"`
	FirstVar      string       `json:"firstVar,omitempty"`
	RunCondition  *Condition   `json:"runCondition,omitempty"`
}

// WriteConfig writes alias-mapped values to a tenant table.
type WriteConfig struct {
	TableID      string            `json:"tableId"`
	Operation    string            `json:"operation,omitempty"` // insert | update (default insert)
	RowID        string            `json:"rowId,omitempty"`
	FieldMap     map[string]string `json:"fieldMap"` // column id -> data key or alias
	RunCondition *Condition        `json:"runCondition,omitempty"`
}

// ExternalSendConfig dispatches an HTTP request to an external endpoint.
type ExternalSendConfig struct {
	URL          string            `json:"url"`
	Method       string            `json:"method,omitempty"`
	Headers      map[string]string `json:"headers,omitempty"`
	BodyMap      map[string]string `json:"bodyMap,omitempty"` // body field -> data key or alias
	ResponseMap  map[string]string `json:"responseMap,omitempty"` // data key -> jq expression over response
	OutputKey    string            `json:"outputKey,omitempty"`
	RunCondition *Condition        `json:"runCondition,omitempty"`
}

// RecordConfig covers the collection CRUD block family
// (create_record, update_record, find_record, delete_record).
type RecordConfig struct {
	CollectionID  string            `json:"collectionId"`
	FieldMap      map[string]string `json:"fieldMap,omitempty"` // record slug -> data key or alias
	Filters       []FilterSpec      `json:"filters,omitempty"`
	RecordID      string            `json:"recordId,omitempty"`
	Limit         int               `json:"limit,omitempty"`
	FailIfNotFound bool             `json:"failIfNotFound,omitempty"`
	OutputKey     string            `json:"outputKey,omitempty"`
	RunCondition  *Condition        `json:"runCondition,omitempty"`
}

// ScriptConfig evaluates an expression against the data bag under a hard
// millisecond bound (clamped to 100–3000ms).
type ScriptConfig struct {
	Expression   string     `json:"expression"`
	TimeoutMs    int        `json:"timeoutMs,omitempty"`
	OutputKey    string     `json:"outputKey"`
	RunCondition *Condition `json:"runCondition,omitempty"`
}

// DecodeConfig unmarshals a block's raw config into its typed variant.
// Unknown block types return an error; runners receive only configs that
// decoded cleanly.
func DecodeConfig(blockType BlockType, raw json.RawMessage) (any, error) {
	var (
		cfg any
		err error
	)
	decode := func(v any) error {
		if len(raw) == 0 {
			return nil
		}
		return json.Unmarshal(raw, v)
	}

	switch blockType {
	case BlockTypePrefill:
		c := &PrefillConfig{}
		err, cfg = decode(c), c
	case BlockTypeValidate:
		c := &ValidateConfig{}
		err, cfg = decode(c), c
	case BlockTypeBranch:
		c := &BranchConfig{}
		err, cfg = decode(c), c
	case BlockTypeQuery:
		c := &QueryConfig{}
		err, cfg = decode(c), c
	case BlockTypeReadTable:
		c := &ReadTableConfig{}
		err, cfg = decode(c), c
	case BlockTypeListTools:
		c := &ListToolsConfig{}
		err, cfg = decode(c), c
	case BlockTypeWrite:
		c := &WriteConfig{}
		err, cfg = decode(c), c
	case BlockTypeExternalSend:
		c := &ExternalSendConfig{}
		err, cfg = decode(c), c
	case BlockTypeCreateRecord, BlockTypeUpdateRecord, BlockTypeFindRecord, BlockTypeDeleteRecord:
		c := &RecordConfig{}
		err, cfg = decode(c), c
	case BlockTypeScript:
		c := &ScriptConfig{}
		err, cfg = decode(c), c
	default:
		return nil, NewErrorf(ErrCodeUnknownBlock, "unknown block type %q", blockType)
	}

	if err != nil {
		return nil, NewErrorf(ErrCodeValidation, "invalid %s config: %s", blockType, err.Error()).WithCause(err)
	}
	return cfg, nil
}
