package schema

import (
	"encoding/json"
	"time"
)

// WorkflowDefinition is a fully loaded workflow: its ordered sections and the
// blocks attached to lifecycle phases. The builder UI owns creation and
// editing; the engine only reads it.
type WorkflowDefinition struct {
	ID        string     `json:"id"`
	Name      string     `json:"name,omitempty"`
	ProjectID string     `json:"projectId,omitempty"`
	CreatedBy string     `json:"createdBy,omitempty"`
	Sections  []*Section `json:"sections"`
	Blocks    []*Block   `json:"blocks,omitempty"`
	CreatedAt time.Time  `json:"createdAt,omitempty"`
	UpdatedAt time.Time  `json:"updatedAt,omitempty"`
}

// Section is an ordered group of user-facing steps. Blocks may be scoped to a
// section (fire on that section's phase events) or to the whole workflow.
type Section struct {
	ID    string  `json:"id"`
	Title string  `json:"title,omitempty"`
	Order int     `json:"order"`
	Steps []*Step `json:"steps,omitempty"`
}

// Step is a single user-facing question, or a virtual step synthesized to
// hold a block's computed output. Virtual steps are excluded from normal
// listings by default.
type Step struct {
	ID        string `json:"id"`
	SectionID string `json:"sectionId"`
	Alias     string `json:"alias,omitempty"`
	Label     string `json:"label,omitempty"`
	Type      string `json:"type,omitempty"`
	Order     int    `json:"order"`
	IsVirtual bool   `json:"isVirtual,omitempty"`
}

// Phase is one of the five fixed lifecycle hook points in a run.
type Phase string

const (
	PhaseRunStart      Phase = "onRunStart"
	PhaseSectionEnter  Phase = "onSectionEnter"
	PhaseSectionSubmit Phase = "onSectionSubmit"
	PhaseNext          Phase = "onNext"
	PhaseRunComplete   Phase = "onRunComplete"
)

// Phases lists all valid phases in firing order.
var Phases = []Phase{
	PhaseRunStart,
	PhaseSectionEnter,
	PhaseSectionSubmit,
	PhaseNext,
	PhaseRunComplete,
}

// ValidPhase reports whether p is one of the five lifecycle hook points.
func ValidPhase(p Phase) bool {
	for _, known := range Phases {
		if p == known {
			return true
		}
	}
	return false
}

// BlockType tags the closed set of runner kinds.
type BlockType string

const (
	BlockTypePrefill      BlockType = "prefill"
	BlockTypeValidate     BlockType = "validate"
	BlockTypeBranch       BlockType = "branch"
	BlockTypeQuery        BlockType = "query"
	BlockTypeWrite        BlockType = "write"
	BlockTypeExternalSend BlockType = "external_send"
	BlockTypeReadTable    BlockType = "read_table"
	BlockTypeListTools    BlockType = "list_tools"
	BlockTypeCreateRecord BlockType = "create_record"
	BlockTypeUpdateRecord BlockType = "update_record"
	BlockTypeFindRecord   BlockType = "find_record"
	BlockTypeDeleteRecord BlockType = "delete_record"
	BlockTypeScript       BlockType = "script"
)

// BlockTypes lists every registered block type tag.
var BlockTypes = []BlockType{
	BlockTypePrefill, BlockTypeValidate, BlockTypeBranch,
	BlockTypeQuery, BlockTypeWrite, BlockTypeExternalSend,
	BlockTypeReadTable, BlockTypeListTools,
	BlockTypeCreateRecord, BlockTypeUpdateRecord,
	BlockTypeFindRecord, BlockTypeDeleteRecord,
	BlockTypeScript,
}

// Block is a configured unit of workflow-time logic attached to a phase.
// A nil SectionID means workflow-scoped: the block fires regardless of which
// section is active. Config is the persisted, type-specific JSON object.
type Block struct {
	ID            string          `json:"id"`
	WorkflowID    string          `json:"workflowId"`
	Type          BlockType       `json:"type"`
	Phase         Phase           `json:"phase"`
	SectionID     *string         `json:"sectionId,omitempty"`
	Enabled       bool            `json:"enabled"`
	Order         int             `json:"order"`
	Config        json.RawMessage `json:"config"`
	VirtualStepID *string         `json:"virtualStepId,omitempty"`
}

// ScopedTo reports whether the block applies when the given section is
// active: workflow-scoped blocks always apply, section-scoped blocks only
// when the section matches.
func (b *Block) ScopedTo(sectionID string) bool {
	if b.SectionID == nil {
		return true
	}
	return *b.SectionID == sectionID
}
