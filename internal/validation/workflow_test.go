package validation

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/formflow/formflow/pkg/schema"
)

func strptr(s string) *string { return &s }

func validDefinition() *schema.WorkflowDefinition {
	return &schema.WorkflowDefinition{
		ID: "wf1",
		Sections: []*schema.Section{
			{ID: "s1", Order: 0, Steps: []*schema.Step{
				{ID: "step-name", SectionID: "s1", Alias: "name"},
				{ID: "step-email", SectionID: "s1", Alias: "email"},
			}},
			{ID: "s2", Order: 1},
		},
		Blocks: []*schema.Block{
			{
				ID: "b1", WorkflowID: "wf1", Type: schema.BlockTypeValidate,
				Phase: schema.PhaseSectionSubmit, SectionID: strptr("s1"), Enabled: true,
				Config: json.RawMessage(`{"assertions": [{"key": "email", "op": "is_not_empty"}]}`),
			},
			{
				ID: "b2", WorkflowID: "wf1", Type: schema.BlockTypeBranch,
				Phase: schema.PhaseNext, SectionID: strptr("s1"), Enabled: true,
				Config: json.RawMessage(`{"fallbackSectionId": "s2"}`),
			},
		},
	}
}

func newWorkflowValidator(t *testing.T) *WorkflowValidator {
	t.Helper()
	wv, err := NewWorkflowValidator()
	require.NoError(t, err)
	return wv
}

func TestValidate_AcceptsWellFormedDefinition(t *testing.T) {
	wv := newWorkflowValidator(t)
	result := wv.Validate(validDefinition())
	assert.True(t, result.Valid(), "errors: %v", result.Errors)
	assert.Empty(t, result.Warnings)
}

func TestValidate_NilDefinition(t *testing.T) {
	wv := newWorkflowValidator(t)
	result := wv.Validate(nil)
	require.Len(t, result.Errors, 1)
}

func TestValidate_DuplicateSectionID(t *testing.T) {
	wv := newWorkflowValidator(t)
	def := validDefinition()
	def.Sections = append(def.Sections, &schema.Section{ID: "s1", Order: 2})

	result := wv.Validate(def)
	require.Len(t, result.Errors, 1)
	assert.Contains(t, result.Errors[0].Message, `duplicate section id "s1"`)
}

func TestValidate_DuplicateAlias(t *testing.T) {
	wv := newWorkflowValidator(t)
	def := validDefinition()
	def.Sections[1].Steps = []*schema.Step{{ID: "step-other", SectionID: "s2", Alias: "email"}}

	result := wv.Validate(def)
	require.Len(t, result.Errors, 1)
	assert.Contains(t, result.Errors[0].Message, `alias "email" already used`)
}

func TestValidate_InvalidPhase(t *testing.T) {
	wv := newWorkflowValidator(t)
	def := validDefinition()
	def.Blocks[0].Phase = "onTeardown"

	result := wv.Validate(def)
	require.False(t, result.Valid())
	assert.Equal(t, "blocks[0].phase", result.Errors[0].Path)
}

func TestValidate_BlockReferencesMissingSection(t *testing.T) {
	wv := newWorkflowValidator(t)
	def := validDefinition()
	def.Blocks[0].SectionID = strptr("ghost")

	result := wv.Validate(def)
	require.False(t, result.Valid())
	assert.Contains(t, result.Errors[0].Message, `non-existent section "ghost"`)
}

func TestValidate_BadConfigSkipsReferenceChecks(t *testing.T) {
	wv := newWorkflowValidator(t)
	def := validDefinition()
	// Structurally broken branch config: rule without target. The dangling
	// section reference inside must not produce a second error.
	def.Blocks[1].Config = json.RawMessage(`{"branches": [{"when": {"key": "x", "op": "equals"}}]}`)

	result := wv.Validate(def)
	require.Len(t, result.Errors, 1)
	assert.Equal(t, "blocks[1].config", result.Errors[0].Path)
}

func TestValidate_BranchTargetsMustExist(t *testing.T) {
	wv := newWorkflowValidator(t)
	def := validDefinition()
	def.Blocks[1].Config = json.RawMessage(
		`{"branches": [{"when": {"key": "plan", "op": "equals", "value": "pro"}, "gotoSectionId": "ghost"}], "fallbackSectionId": "nowhere"}`)

	result := wv.Validate(def)
	require.Len(t, result.Errors, 2)
	assert.Contains(t, result.Errors[0].Message, `"ghost"`)
	assert.Contains(t, result.Errors[1].Message, `"nowhere"`)
}

func TestValidate_EmptyBranchIsWarningOnly(t *testing.T) {
	wv := newWorkflowValidator(t)
	def := validDefinition()
	def.Blocks[1].Config = json.RawMessage(`{}`)

	result := wv.Validate(def)
	assert.True(t, result.Valid())
	require.Len(t, result.Warnings, 1)
}

func TestValidate_DuplicateBlockID(t *testing.T) {
	wv := newWorkflowValidator(t)
	def := validDefinition()
	def.Blocks[1].ID = "b1"

	result := wv.Validate(def)
	require.False(t, result.Valid())
	assert.Contains(t, result.Errors[0].Message, `duplicate block id "b1"`)
}

func TestValidationResult_ToError(t *testing.T) {
	r := &schema.ValidationResult{}
	assert.NoError(t, r.ToError())

	r.AddError("blocks[0]", schema.ErrCodeValidation, "boom")
	err := r.ToError()
	require.Error(t, err)
	var flowErr *schema.FlowError
	require.ErrorAs(t, err, &flowErr)
	assert.Equal(t, "boom", flowErr.Message)
}
