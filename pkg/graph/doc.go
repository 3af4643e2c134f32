/*
Package graph defines nodes, edges and the immutable Graph the executor walks.

A graph is assembled with a Builder and validated by Compile: every edge target,
every router directive and the entry node must name a declared node or End.

	g, err := graph.NewBuilder("agent").
	    AddNode("agent", graph.NewAgentNode(model, graph.WithTools(tools.Specs()))).
	    AddNode("tools", graph.NewToolNode(tools)).
	    SetEntry("agent").
	    AddConditionalEdges("agent", graph.ToolsCondition("tools"), "tools", domain.End).
	    AddEdge("tools", "agent").
	    Compile()

Built-in node kinds:

  - AgentNode: invokes a language model with the conversation and appends its reply.
  - ToolNode: runs the tool calls of the last message concurrently and appends one result per call.
  - RouterNode: asks a Decider for the next member and fails closed to End on unknown answers.
  - Func: any function of the state.

Subgraph composition lives in the runtime, which owns the execution loop.
*/
package graph
