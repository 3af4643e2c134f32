package cli

import (
	"fmt"
	"time"

	"github.com/aretw0/agentgraph"
	"github.com/aretw0/agentgraph/pkg/domain"
	"github.com/aretw0/agentgraph/pkg/graph"
	"github.com/aretw0/agentgraph/pkg/guardrail"
	"github.com/aretw0/agentgraph/pkg/prebuilt"
)

// Names of the graphs registered by RegisterGraphs.
const (
	GraphHello        = "hello"
	GraphAssistantV1  = "assistant-v1"
	GraphAssistantV2  = "assistant-v2"
	GraphResearchTeam = "research-team"
	GraphGuarded      = "guarded-assistant"
)

// Assistant system prompts. Both versions share tools and checkpointer.
const (
	AssistantV1Prompt = "You are a helpful assistant. Use the available tools when they help answer the request."
	AssistantV2Prompt = "You are a concise assistant. Answer in at most three sentences and prefer tools over guessing."
)

// GraphOptions tunes the tool nodes of the demo graphs.
type GraphOptions struct {
	ToolTimeout     time.Duration
	ToolConcurrency int
}

func (o GraphOptions) react(prompt string) []prebuilt.ReactOption {
	opts := []prebuilt.ReactOption{prebuilt.WithPrompt(prompt)}
	if o.ToolTimeout > 0 {
		opts = append(opts, prebuilt.WithToolTimeout(o.ToolTimeout))
	}
	if o.ToolConcurrency > 0 {
		opts = append(opts, prebuilt.WithToolConcurrency(o.ToolConcurrency))
	}
	return opts
}

// RegisterGraphs compiles the demo graphs and registers them with eng.
func RegisterGraphs(eng *agentgraph.Engine, model Model, tools *Toolbox, opts GraphOptions) error {
	builders := []func() (*graph.Graph, error){
		func() (*graph.Graph, error) {
			return prebuilt.ReactAgent(GraphHello, model, nil)
		},
		func() (*graph.Graph, error) {
			return prebuilt.ReactAgent(GraphAssistantV1, model, tools.All, opts.react(AssistantV1Prompt)...)
		},
		func() (*graph.Graph, error) {
			return prebuilt.ReactAgent(GraphAssistantV2, model, tools.All, opts.react(AssistantV2Prompt)...)
		},
		func() (*graph.Graph, error) {
			return researchTeam(eng, model, tools, opts)
		},
		func() (*graph.Graph, error) {
			return guarded(eng, model, tools, opts)
		},
	}

	for _, build := range builders {
		g, err := build()
		if err != nil {
			return err
		}
		if err := eng.Register(g); err != nil {
			return err
		}
	}
	return nil
}

// researchTeam supervises a researcher with web access and a writer bound to the workdir.
func researchTeam(eng *agentgraph.Engine, model Model, tools *Toolbox, opts GraphOptions) (*graph.Graph, error) {
	researcher, err := prebuilt.ReactAgent("researcher", model, tools.Research,
		opts.react("You are a research assistant who can scrape specified urls for more detailed information.")...)
	if err != nil {
		return nil, fmt.Errorf("researcher: %w", err)
	}
	writer, err := prebuilt.ReactAgent("writer", model, tools.Writing,
		opts.react("You can read, write and edit documents based on the note-taker's outlines.")...)
	if err != nil {
		return nil, fmt.Errorf("writer: %w", err)
	}

	return prebuilt.Team(GraphResearchTeam, prebuilt.NewStructuredDecider(model), []prebuilt.Member{
		{Name: "researcher", Node: eng.Subgraph(researcher)},
		{Name: "writer", Node: eng.Subgraph(writer)},
	})
}

// guarded screens the request before the assistant sees it.
func guarded(eng *agentgraph.Engine, model Model, tools *Toolbox, opts GraphOptions) (*graph.Graph, error) {
	assistant, err := prebuilt.ReactAgent("assistant", model, tools.All, opts.react(AssistantV1Prompt)...)
	if err != nil {
		return nil, err
	}

	check := guardrail.New(model, []guardrail.Criterion{
		{Name: "safe", Description: "The request does not ask for harmful or illegal content."},
		{Name: "on_topic", Description: "The request is something a general assistant can help with."},
	}, "assistant", domain.End,
		guardrail.WithRule(guardrail.TripOnAny),
		guardrail.WithTripMessage("Sorry, I can't help with that request."),
	)

	return graph.NewBuilder(GraphGuarded).
		AddNode("input_guard", check).
		AddNode("assistant", eng.Subgraph(assistant)).
		AddEdge("assistant", domain.End).
		SetEntry("input_guard").
		Compile()
}
