package diagram

import (
	"fmt"
	"strings"
)

// RenderMermaid renders a Model as a Mermaid flowchart string.
func RenderMermaid(model *Model) string {
	var b strings.Builder

	b.WriteString("graph TD\n")
	if model.Title != "" {
		b.WriteString(fmt.Sprintf("    %%%% %s\n", model.Title))
	}

	b.WriteString(fmt.Sprintf("    start((%q))\n", "Start"))
	b.WriteString(fmt.Sprintf("    end_((%q))\n", "End"))

	for _, node := range model.Global {
		b.WriteString(fmt.Sprintf("    %s\n", mermaidNodeDef(node)))
	}

	for _, group := range model.Sections {
		b.WriteString(fmt.Sprintf("    subgraph %s[%q]\n", mermaidSafeID(group.ID), group.Label))
		for _, node := range group.Blocks {
			b.WriteString(fmt.Sprintf("        %s\n", mermaidNodeDef(node)))
		}
		b.WriteString("    end\n")
	}

	for _, edge := range model.Edges {
		label := ""
		if edge.Label != "" {
			label = fmt.Sprintf("|%q|", edge.Label)
		}
		b.WriteString(fmt.Sprintf("    %s -->%s %s\n",
			mermaidSafeID(edge.From), label, mermaidSafeID(edge.To)))
	}

	return b.String()
}

// mermaidNodeDef returns a node definition with the shape for its kind.
func mermaidNodeDef(node *Node) string {
	id := mermaidSafeID(node.ID)
	switch node.Kind {
	case NodeKindBranch:
		return fmt.Sprintf("%s{%q}", id, node.Label)
	case NodeKindStart, NodeKindEnd:
		return fmt.Sprintf("%s((%q))", id, node.Label)
	default:
		return fmt.Sprintf("%s[%q]", id, node.Label)
	}
}

// mermaidSafeID converts an ID to a Mermaid-safe identifier. "end" is a
// Mermaid keyword, so the end node renders as end_.
func mermaidSafeID(id string) string {
	if id == "end" {
		return "end_"
	}
	r := strings.NewReplacer(".", "_", "-", "_", " ", "_")
	return r.Replace(id)
}
