// Package validation checks block configs and whole workflow definitions
// before the engine runs them. Structural checks use JSON Schema Draft
// 2020-12; reference checks (section targets, duplicate ids) live in
// WorkflowValidator.
package validation

import (
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	jsonschema "github.com/santhosh-tekuri/jsonschema/v6"

	"github.com/formflow/formflow/pkg/schema"
)

// blockSchemasJSON declares one schema per block type under $defs, sharing
// the condition/filter/sort building blocks. Field names are the persisted
// wire format.
const blockSchemasJSON = `{
  "$schema": "https://json-schema.org/draft/2020-12/schema",
  "$id": "https://formflow.dev/schemas/blocks.json",
  "$defs": {
    "condition": {
      "type": "object",
      "required": ["key", "op"],
      "properties": {
        "key": { "type": "string", "minLength": 1 },
        "op": {
          "type": "string",
          "enum": ["equals", "not_equals", "contains", "greater_than", "less_than", "is_empty", "is_not_empty"]
        },
        "value": {}
      },
      "additionalProperties": false
    },
    "assertion": {
      "type": "object",
      "properties": {
        "key": { "type": "string" },
        "op": {
          "type": "string",
          "enum": ["equals", "not_equals", "contains", "greater_than", "less_than", "is_empty", "is_not_empty", "regex"]
        },
        "value": {},
        "expression": { "type": "string" },
        "message": { "type": "string" }
      },
      "additionalProperties": false
    },
    "filter": {
      "type": "object",
      "required": ["columnId", "operator"],
      "properties": {
        "columnId": { "type": "string", "minLength": 1 },
        "operator": {
          "type": "string",
          "enum": ["equals", "not_equals", "contains", "greater_than", "less_than", "is_empty", "is_not_empty"]
        },
        "value": {}
      },
      "additionalProperties": false
    },
    "sort": {
      "type": "object",
      "required": ["columnId"],
      "properties": {
        "columnId": { "type": "string", "minLength": 1 },
        "direction": { "type": "string", "enum": ["asc", "desc"] }
      },
      "additionalProperties": false
    },
    "stringMap": {
      "type": "object",
      "additionalProperties": { "type": "string" }
    },
    "prefill": {
      "type": "object",
      "properties": {
        "values": { "type": "object" },
        "fromQuery": { "type": "array", "items": { "type": "string" } },
        "overwrite": { "type": "boolean" }
      },
      "additionalProperties": false
    },
    "validate": {
      "type": "object",
      "required": ["assertions"],
      "properties": {
        "assertions": {
          "type": "array",
          "minItems": 1,
          "items": { "$ref": "#/$defs/assertion" }
        }
      },
      "additionalProperties": false
    },
    "branch": {
      "type": "object",
      "properties": {
        "branches": {
          "type": "array",
          "items": {
            "type": "object",
            "required": ["when", "gotoSectionId"],
            "properties": {
              "when": { "$ref": "#/$defs/condition" },
              "gotoSectionId": { "type": "string", "minLength": 1 }
            },
            "additionalProperties": false
          }
        },
        "fallbackSectionId": { "type": "string" }
      },
      "additionalProperties": false
    },
    "query": {
      "type": "object",
      "required": ["outputKey"],
      "properties": {
        "queryId": { "type": "string" },
        "tableId": { "type": "string" },
        "filters": { "type": "array", "items": { "$ref": "#/$defs/filter" } },
        "sort": { "$ref": "#/$defs/sort" },
        "limit": { "type": "integer", "minimum": 0 },
        "outputKey": { "type": "string", "minLength": 1 },
        "runCondition": { "$ref": "#/$defs/condition" }
      },
      "additionalProperties": false
    },
    "read_table": {
      "type": "object",
      "required": ["tableId", "outputKey"],
      "properties": {
        "tableId": { "type": "string", "minLength": 1 },
        "columns": { "type": "array", "items": { "type": "string" } },
        "filters": { "type": "array", "items": { "$ref": "#/$defs/filter" } },
        "sort": { "$ref": "#/$defs/sort" },
        "limit": { "type": "integer", "minimum": 0 },
        "outputKey": { "type": "string", "minLength": 1 },
        "runCondition": { "$ref": "#/$defs/condition" }
      },
      "additionalProperties": false
    },
    "list_tools": {
      "type": "object",
      "required": ["sourceListVar"],
      "properties": {
        "sourceListVar": { "type": "string", "minLength": 1 },
        "filters": { "type": "array", "items": { "$ref": "#/$defs/filter" } },
        "dedupeKey": { "type": "string" },
        "sort": { "$ref": "#/$defs/sort" },
        "limit": { "type": "integer", "minimum": 0 },
        "offset": { "type": "integer", "minimum": 0 },
        "select": { "type": "array", "items": { "type": "string" } },
        "outputListVar": { "type": "string" },
        "countVar": { "type": "string" },
        "firstVar": { "type": "string" },
        "runCondition": { "$ref": "#/$defs/condition" }
      },
      "additionalProperties": false
    },
    "write": {
      "type": "object",
      "required": ["tableId", "fieldMap"],
      "properties": {
        "tableId": { "type": "string", "minLength": 1 },
        "operation": { "type": "string", "enum": ["insert", "update"] },
        "rowId": { "type": "string" },
        "fieldMap": {
          "allOf": [{ "$ref": "#/$defs/stringMap" }],
          "minProperties": 1
        },
        "runCondition": { "$ref": "#/$defs/condition" }
      },
      "additionalProperties": false
    },
    "external_send": {
      "type": "object",
      "required": ["url"],
      "properties": {
        "url": { "type": "string", "minLength": 1 },
        "method": { "type": "string", "enum": ["GET", "POST", "PUT", "PATCH", "DELETE"] },
        "headers": { "$ref": "#/$defs/stringMap" },
        "bodyMap": { "$ref": "#/$defs/stringMap" },
        "responseMap": { "$ref": "#/$defs/stringMap" },
        "outputKey": { "type": "string" },
        "runCondition": { "$ref": "#/$defs/condition" }
      },
      "additionalProperties": false
    },
    "record": {
      "type": "object",
      "required": ["collectionId"],
      "properties": {
        "collectionId": { "type": "string", "minLength": 1 },
        "fieldMap": { "$ref": "#/$defs/stringMap" },
        "filters": { "type": "array", "items": { "$ref": "#/$defs/filter" } },
        "recordId": { "type": "string" },
        "limit": { "type": "integer", "minimum": 0 },
        "failIfNotFound": { "type": "boolean" },
        "outputKey": { "type": "string" },
        "runCondition": { "$ref": "#/$defs/condition" }
      },
      "additionalProperties": false
    },
    "script": {
      "type": "object",
      "required": ["expression", "outputKey"],
      "properties": {
        "expression": { "type": "string", "minLength": 1 },
        "timeoutMs": { "type": "integer", "minimum": 0 },
        "outputKey": { "type": "string", "minLength": 1 },
        "runCondition": { "$ref": "#/$defs/condition" }
      },
      "additionalProperties": false
    }
  }
}`

// schemaDefFor maps block types to their $defs entry. The four record CRUD
// types share one config shape.
func schemaDefFor(blockType schema.BlockType) string {
	switch blockType {
	case schema.BlockTypeCreateRecord, schema.BlockTypeUpdateRecord,
		schema.BlockTypeFindRecord, schema.BlockTypeDeleteRecord:
		return "record"
	default:
		return string(blockType)
	}
}

// ConfigSchemaValidator validates persisted block configs against their
// per-type JSON Schema. Safe for concurrent use; compiled schemas are cached.
type ConfigSchemaValidator struct {
	mu       sync.RWMutex
	compiler *jsonschema.Compiler
	cache    map[string]*jsonschema.Schema
}

// NewConfigSchemaValidator creates a validator with the block schema document
// loaded. Per-type fragments compile lazily on first use.
func NewConfigSchemaValidator() (*ConfigSchemaValidator, error) {
	c := jsonschema.NewCompiler()
	c.AssertFormat()

	doc, err := jsonschema.UnmarshalJSON(strings.NewReader(blockSchemasJSON))
	if err != nil {
		return nil, fmt.Errorf("unmarshal block schemas: %w", err)
	}
	if err := c.AddResource("https://formflow.dev/schemas/blocks.json", doc); err != nil {
		return nil, fmt.Errorf("add block schema resource: %w", err)
	}

	return &ConfigSchemaValidator{
		compiler: c,
		cache:    make(map[string]*jsonschema.Schema),
	}, nil
}

// ValidateConfig checks a raw block config against its type's schema. Unknown
// block types are an error; an empty config validates only if the type has no
// required fields.
func (v *ConfigSchemaValidator) ValidateConfig(blockType schema.BlockType, raw json.RawMessage) error {
	compiled, err := v.schemaFor(blockType)
	if err != nil {
		return err
	}

	if len(raw) == 0 {
		raw = json.RawMessage(`{}`)
	}
	doc, err := jsonschema.UnmarshalJSON(strings.NewReader(string(raw)))
	if err != nil {
		return schema.NewErrorf(schema.ErrCodeValidation, "%s config is not valid JSON", blockType).WithCause(err)
	}

	if err := compiled.Validate(doc); err != nil {
		return toFlowError(blockType, err)
	}
	return nil
}

func (v *ConfigSchemaValidator) schemaFor(blockType schema.BlockType) (*jsonschema.Schema, error) {
	known := false
	for _, t := range schema.BlockTypes {
		if t == blockType {
			known = true
			break
		}
	}
	if !known {
		return nil, schema.NewErrorf(schema.ErrCodeUnknownBlock, "unknown block type %q", blockType)
	}

	def := schemaDefFor(blockType)

	v.mu.RLock()
	if cached, ok := v.cache[def]; ok {
		v.mu.RUnlock()
		return cached, nil
	}
	v.mu.RUnlock()

	v.mu.Lock()
	defer v.mu.Unlock()
	if cached, ok := v.cache[def]; ok {
		return cached, nil
	}

	compiled, err := v.compiler.Compile("https://formflow.dev/schemas/blocks.json#/$defs/" + def)
	if err != nil {
		return nil, fmt.Errorf("compile %s schema: %w", def, err)
	}
	v.cache[def] = compiled
	return compiled, nil
}

// toFlowError converts a jsonschema.ValidationError into a FlowError with
// leaf violations collected into details.
func toFlowError(blockType schema.BlockType, err error) *schema.FlowError {
	verr, ok := err.(*jsonschema.ValidationError)
	if !ok {
		return schema.NewErrorf(schema.ErrCodeValidation, "invalid %s config: %s", blockType, err.Error())
	}

	violations := collectViolations(verr)
	if len(violations) == 0 {
		return schema.NewErrorf(schema.ErrCodeValidation, "invalid %s config: %s", blockType, verr.Error())
	}

	msg := violations[0]
	if len(violations) > 1 {
		msg = fmt.Sprintf("%d violations", len(violations))
	}
	return schema.NewErrorf(schema.ErrCodeValidation, "invalid %s config: %s", blockType, msg).
		WithDetails(map[string]any{"violations": violations})
}

// collectViolations walks a ValidationError tree and collects leaf messages
// with their instance locations.
func collectViolations(verr *jsonschema.ValidationError) []string {
	if len(verr.Causes) == 0 {
		loc := "/"
		if len(verr.InstanceLocation) > 0 {
			loc = "/" + strings.Join(verr.InstanceLocation, "/")
		}
		return []string{fmt.Sprintf("%s: %s", loc, verr.Error())}
	}

	var violations []string
	for _, cause := range verr.Causes {
		violations = append(violations, collectViolations(cause)...)
	}
	return violations
}
