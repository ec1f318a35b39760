package diagram

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/formflow/formflow/pkg/schema"
)

func strptr(s string) *string { return &s }

func sampleDefinition() *schema.WorkflowDefinition {
	return &schema.WorkflowDefinition{
		ID:   "wf1",
		Name: "Onboarding",
		Sections: []*schema.Section{
			{ID: "s1", Title: "Account", Order: 0},
			{ID: "s2", Title: "Billing", Order: 1},
			{ID: "s3", Title: "Done", Order: 2},
		},
		Blocks: []*schema.Block{
			{
				ID: "seed", WorkflowID: "wf1", Type: schema.BlockTypePrefill,
				Phase: schema.PhaseRunStart, Enabled: true,
				Config: json.RawMessage(`{"values": {"channel": "web"}}`),
			},
			{
				ID: "route", WorkflowID: "wf1", Type: schema.BlockTypeBranch,
				Phase: schema.PhaseNext, SectionID: strptr("s1"), Enabled: true,
				Config: json.RawMessage(`{"branches": [{"when": {"key": "plan", "op": "equals", "value": "free"}, "gotoSectionId": "s3"}], "fallbackSectionId": "s2"}`),
			},
			{
				ID: "ghost", WorkflowID: "wf1", Type: schema.BlockTypeScript,
				Phase: schema.PhaseSectionEnter, SectionID: strptr("s2"), Enabled: false,
				Config: json.RawMessage(`{"expression": "1", "outputKey": "x"}`),
			},
		},
	}
}

func TestBuildModel(t *testing.T) {
	model := BuildModel(sampleDefinition())

	assert.Equal(t, "Onboarding", model.Title)
	require.Len(t, model.Sections, 3)
	assert.Equal(t, "Account", model.Sections[0].Label)

	// Workflow-scoped prefill lands in Global; disabled block is dropped.
	require.Len(t, model.Global, 1)
	assert.Equal(t, "seed", model.Global[0].ID)
	assert.Empty(t, model.Sections[1].Blocks)

	// Branch block sits inside its section.
	require.Len(t, model.Sections[0].Blocks, 1)
	assert.Equal(t, NodeKindBranch, model.Sections[0].Blocks[0].Kind)

	// Branch edges first, then the advancement chain start→s1→s2→s3→end.
	require.Len(t, model.Edges, 6)
	assert.Equal(t, Edge{From: "s1", To: "s3", Label: "plan equals free"}, model.Edges[0])
	assert.Equal(t, Edge{From: "s1", To: "s2", Label: "else"}, model.Edges[1])
	assert.Equal(t, Edge{From: "start", To: "s1"}, model.Edges[2])
	assert.Equal(t, Edge{From: "s3", To: "end"}, model.Edges[5])
}

func TestBuildModel_EmptyWorkflow(t *testing.T) {
	model := BuildModel(&schema.WorkflowDefinition{ID: "wf-empty"})
	assert.Equal(t, "wf-empty", model.Title)
	require.Len(t, model.Edges, 1)
	assert.Equal(t, Edge{From: "start", To: "end"}, model.Edges[0])
}

func TestRenderMermaid(t *testing.T) {
	out := RenderMermaid(BuildModel(sampleDefinition()))

	assert.Contains(t, out, "graph TD")
	assert.Contains(t, out, "%% Onboarding")
	assert.Contains(t, out, `subgraph s1["Account"]`)
	assert.Contains(t, out, `route{"branch @ onNext"}`)
	assert.Contains(t, out, `s1 -->|"plan equals free"| s3`)
	assert.Contains(t, out, "s3 --> end_")
	// The "end" keyword never appears as a bare node id.
	assert.NotContains(t, out, "--> end\n")
}

func TestMermaidSafeID(t *testing.T) {
	assert.Equal(t, "end_", mermaidSafeID("end"))
	assert.Equal(t, "my_block_1", mermaidSafeID("my-block.1"))
}
