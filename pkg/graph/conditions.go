package graph

import "github.com/aretw0/agentgraph/pkg/domain"

// RouteFunc maps the post-step state to the next node name.
type RouteFunc func(state domain.State) string

// HasPendingToolCalls reports whether the last message requests tool invocations.
func HasPendingToolCalls(state domain.State) bool {
	last, ok := state.LastMessage()
	return ok && last.HasToolCalls()
}

// ToolsCondition routes to toolsNode while the last message has pending tool calls,
// and to End otherwise.
func ToolsCondition(toolsNode string) RouteFunc {
	return func(state domain.State) string {
		if HasPendingToolCalls(state) {
			return toolsNode
		}
		return domain.End
	}
}

// RouteOn routes to the string stored in field. Finish and missing values map to End.
func RouteOn(field string) RouteFunc {
	return func(state domain.State) string {
		next, _ := state[field].(string)
		if next == "" || next == domain.Finish {
			return domain.End
		}
		return next
	}
}
