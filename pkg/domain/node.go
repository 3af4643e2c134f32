package domain

// End is the terminal sentinel: routing to it ends a run.
const End = "__end__"

// Finish is the option a router decision uses to signal that work is done.
// Routers translate it to End.
const Finish = "FINISH"

// NodeKind classifies a node for validation, rendering and metrics.
type NodeKind string

const (
	KindAgent    NodeKind = "agent"
	KindTool     NodeKind = "tool"
	KindRouter   NodeKind = "router"
	KindSubgraph NodeKind = "subgraph"
	KindFunc     NodeKind = "func"
)

// NodeDescriptor is the static description of a node inside a graph.
type NodeDescriptor struct {
	Name       string   `json:"name"`
	Kind       NodeKind `json:"kind"`
	Capability string   `json:"capability,omitempty"` // What the node delegates to (model, tool set, inner graph)
	Targets    []string `json:"targets,omitempty"`    // Declared outgoing edge targets
}
