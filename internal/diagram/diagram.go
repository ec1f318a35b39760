// Package diagram renders workflow definitions as Mermaid flowcharts:
// sections in declared order, their phase blocks grouped inside, and branch
// routes as labeled edges alongside the default advancement.
package diagram

import (
	"fmt"

	"github.com/formflow/formflow/pkg/schema"
)

// NodeKind classifies a diagram node for shape selection.
type NodeKind string

const (
	NodeKindStart  NodeKind = "start"
	NodeKindEnd    NodeKind = "end"
	NodeKindBlock  NodeKind = "block"
	NodeKindBranch NodeKind = "branch"
)

// Node is a single diagram node.
type Node struct {
	ID    string
	Label string
	Kind  NodeKind
}

// Edge connects two nodes; Label annotates branch conditions.
type Edge struct {
	From  string
	To    string
	Label string
}

// SectionGroup renders as one subgraph: the section and its scoped blocks.
type SectionGroup struct {
	ID     string
	Label  string
	Blocks []*Node
}

// Model is the intermediate representation consumed by RenderMermaid.
type Model struct {
	Title    string
	Sections []*SectionGroup
	Global   []*Node // workflow-scoped blocks (onRunStart / onRunComplete)
	Edges    []Edge
}

// BuildModel translates a workflow definition into a diagram model. Default
// advancement runs start → sections in order → end; branch blocks contribute
// labeled override edges on top.
func BuildModel(def *schema.WorkflowDefinition) *Model {
	model := &Model{Title: def.Name}
	if model.Title == "" {
		model.Title = def.ID
	}

	for _, sec := range def.Sections {
		group := &SectionGroup{ID: sec.ID, Label: sec.Title}
		if group.Label == "" {
			group.Label = sec.ID
		}
		model.Sections = append(model.Sections, group)
	}

	for _, block := range def.Blocks {
		if !block.Enabled {
			continue
		}
		node := &Node{
			ID:    block.ID,
			Label: fmt.Sprintf("%s @ %s", block.Type, block.Phase),
			Kind:  blockKind(block.Type),
		}
		if block.SectionID == nil {
			model.Global = append(model.Global, node)
		} else if group := model.section(*block.SectionID); group != nil {
			group.Blocks = append(group.Blocks, node)
		}

		if block.Type == schema.BlockTypeBranch {
			model.Edges = append(model.Edges, branchEdges(block)...)
		}
	}

	// Default advancement chain.
	prev := "start"
	for _, group := range model.Sections {
		model.Edges = append(model.Edges, Edge{From: prev, To: group.ID})
		prev = group.ID
	}
	model.Edges = append(model.Edges, Edge{From: prev, To: "end"})

	return model
}

func (m *Model) section(id string) *SectionGroup {
	for _, group := range m.Sections {
		if group.ID == id {
			return group
		}
	}
	return nil
}

// branchEdges turns a branch block's rules into labeled override edges from
// its scoped section. Undecodable configs contribute nothing.
func branchEdges(block *schema.Block) []Edge {
	if block.SectionID == nil {
		return nil
	}
	decoded, err := schema.DecodeConfig(block.Type, block.Config)
	if err != nil {
		return nil
	}
	cfg, ok := decoded.(*schema.BranchConfig)
	if !ok {
		return nil
	}

	var edges []Edge
	for _, rule := range cfg.Branches {
		edges = append(edges, Edge{
			From:  *block.SectionID,
			To:    rule.GotoSectionID,
			Label: conditionSummary(rule.When),
		})
	}
	if cfg.FallbackSectionID != "" {
		edges = append(edges, Edge{From: *block.SectionID, To: cfg.FallbackSectionID, Label: "else"})
	}
	return edges
}

func conditionSummary(c schema.Condition) string {
	switch c.Op {
	case schema.OpIsEmpty, schema.OpIsNotEmpty:
		return fmt.Sprintf("%s %s", c.Key, c.Op)
	default:
		return fmt.Sprintf("%s %s %v", c.Key, c.Op, c.Value)
	}
}

func blockKind(blockType schema.BlockType) NodeKind {
	if blockType == schema.BlockTypeBranch {
		return NodeKindBranch
	}
	return NodeKindBlock
}
