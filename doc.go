/*
Package agentgraph executes graphs of agent, tool, router and subgraph nodes over a
shared conversation state, checkpointing every step so threads can be resumed.

# Concept

A graph is a set of nodes joined by static or state-dependent edges. Every node
returns a partial state update that is merged through per-field reducers (replace or
append). Router nodes return an explicit next-node directive and fail closed to the
terminal sentinel when their decider answers outside the declared options.

A thread is a durable conversation identity. Each completed step appends a
checkpoint to the thread; re-running a suspended thread without new input continues
from the step after the latest checkpoint.

# Usage

	eng := agentgraph.New(agentgraph.WithCheckpointer(store))

	g, err := prebuilt.ReactAgent("assistant", model, tools)
	if err != nil {
		log.Fatal(err)
	}
	if err := eng.Register(g); err != nil {
		log.Fatal(err)
	}

	out, err := eng.Run(ctx, "assistant", "thread-1", agentgraph.Input(domain.Human("hi")))

Stream yields one event per step, including the steps of nested subgraphs:

	for ev, err := range eng.Stream(ctx, "assistant", "thread-1", nil) {
		if err != nil {
			return err
		}
		fmt.Println(ev.Step, ev.Node)
	}
*/
package agentgraph
