package graph

import (
	"fmt"
	"strings"

	"github.com/aretw0/agentgraph/pkg/domain"
	core "github.com/aretw0/agentgraph/pkg/graph"
)

const (
	startID = "__start__"
	endID   = "__end__"
)

// GraphOverlay contains dynamic state data to visualize on the graph.
type GraphOverlay struct {
	VisitedNodes []string
	CurrentNode  string
}

// OverlayFromHistory marks every node recorded in a thread's checkpoints as visited
// and the pending node of the latest one as current.
func OverlayFromHistory(history []*domain.Checkpoint) *GraphOverlay {
	o := &GraphOverlay{}
	for _, cp := range history {
		if cp.Node != "" {
			o.VisitedNodes = append(o.VisitedNodes, cp.Node)
		}
	}
	if n := len(history); n > 0 && history[n-1].Next != domain.End {
		o.CurrentNode = history[n-1].Next
	}
	return o
}

type nested interface {
	Graph() *core.Graph
}

// GenerateMermaid produces a Mermaid flowchart for g.
// It applies semantic styling:
// - Agent: [Rectangle]
// - Tool: [[Subroutine]]
// - Router: {Rhombus}
// - Subgraph: expanded inline as a Mermaid subgraph block
// Static edges are solid, routed edges dashed.
func GenerateMermaid(g *core.Graph, overlay *GraphOverlay) string {
	var sb strings.Builder
	sb.WriteString("graph TD\n")
	fmt.Fprintf(&sb, "    %s((start))\n", startID)
	fmt.Fprintf(&sb, "    %s((end))\n", endID)
	fmt.Fprintf(&sb, "    %s --> %s\n", startID, sanitizeMermaidID(g.Entry()))
	writeGraph(&sb, g, "", endID, "    ")

	if overlay != nil {
		sb.WriteString("\n    %% Overlay Styles\n")
		// Force black text (color:#000) for high-contrast on light backgrounds, regardless of theme (Light/Dark)
		sb.WriteString("    classDef visited fill:#e1f5fe,stroke:#01579b,stroke-width:2px,color:#000;\n")
		sb.WriteString("    classDef current fill:#ffeb3b,stroke:#fbc02d,stroke-width:4px,color:#000;\n")

		visitedSet := make(map[string]bool)
		for _, id := range overlay.VisitedNodes {
			safeID := sanitizeMermaidID(id)
			if !visitedSet[safeID] && safeID != "" {
				visitedSet[safeID] = true
				fmt.Fprintf(&sb, "    class %s visited;\n", safeID)
			}
		}
		if overlay.CurrentNode != "" {
			fmt.Fprintf(&sb, "    class %s current;\n", sanitizeMermaidID(overlay.CurrentNode))
		}
	}
	return sb.String()
}

// writeGraph emits nodes and edges of g. prefix scopes node ids of nested graphs and
// exit is where End leads.
func writeGraph(sb *strings.Builder, g *core.Graph, prefix, exit, indent string) {
	for _, d := range g.Nodes() {
		id := sanitizeMermaidID(prefix + d.Name)
		node, _ := g.Node(d.Name)

		if inner, ok := node.(nested); ok {
			ig := inner.Graph()
			innerPrefix := prefix + d.Name + "/"
			fmt.Fprintf(sb, "%ssubgraph %s[\"%s\"]\n", indent, id, d.Name)
			fmt.Fprintf(sb, "%s    %s_start((start)) --> %s\n", indent, id, sanitizeMermaidID(innerPrefix+ig.Entry()))
			fmt.Fprintf(sb, "%s    %s_exit((done))\n", indent, id)
			writeGraph(sb, ig, innerPrefix, id+"_exit", indent+"    ")
			fmt.Fprintf(sb, "%send\n", indent)
		} else {
			opener, closer := "[", "]"
			switch d.Kind {
			case domain.KindTool:
				opener, closer = "[[", "]]"
			case domain.KindRouter:
				opener, closer = "{", "}"
			}
			label := d.Name
			if d.Capability != "" && d.Kind != domain.KindRouter {
				label = fmt.Sprintf("%s <br/> %s", d.Name, strings.ReplaceAll(d.Capability, "\"", "'"))
			}
			fmt.Fprintf(sb, "%s%s%s\"%s\"%s\n", indent, id, opener, label, closer)
		}

	}

	for _, d := range g.Nodes() {
		from := sanitizeMermaidID(prefix + d.Name)
		node, _ := g.Node(d.Name)
		if _, ok := node.(nested); ok {
			from = sanitizeMermaidID(prefix+d.Name) + "_exit"
		}
		edge, hasEdge := g.Edge(d.Name)
		for _, t := range d.Targets {
			to := exit
			if t != domain.End {
				to = sanitizeMermaidID(prefix + t)
			}
			arrow := "-.->"
			if hasEdge && !edge.Dynamic() && edge.To == t {
				arrow = "-->"
			}
			fmt.Fprintf(sb, "%s%s %s %s\n", indent, from, arrow, to)
		}
	}
}

func sanitizeMermaidID(id string) string {
	s := strings.ReplaceAll(id, ".", "_")
	s = strings.ReplaceAll(s, "-", "_")
	s = strings.ReplaceAll(s, "/", "_")
	s = strings.ReplaceAll(s, "\\", "_")
	s = strings.ReplaceAll(s, " ", "_")
	return s
}
