package prebuilt

import (
	"time"

	"github.com/aretw0/agentgraph/pkg/domain"
	"github.com/aretw0/agentgraph/pkg/graph"
	"github.com/aretw0/agentgraph/pkg/ports"
)

// Node names used by ReactAgent.
const (
	AgentNode = "agent"
	ToolsNode = "tools"
)

type reactConfig struct {
	prompt      string
	attribution string
	timeout     time.Duration
	concurrency int
}

// ReactOption configures ReactAgent.
type ReactOption func(*reactConfig)

// WithPrompt sets the agent's system prompt.
func WithPrompt(prompt string) ReactOption {
	return func(c *reactConfig) { c.prompt = prompt }
}

// WithAttribution names the agent's replies.
func WithAttribution(name string) ReactOption {
	return func(c *reactConfig) { c.attribution = name }
}

// WithToolTimeout bounds every tool invocation.
func WithToolTimeout(d time.Duration) ReactOption {
	return func(c *reactConfig) { c.timeout = d }
}

// WithToolConcurrency caps concurrent tool invocations per step.
func WithToolConcurrency(n int) ReactOption {
	return func(c *reactConfig) { c.concurrency = n }
}

// ReactAgent builds the agent/tool loop: the agent runs, and while its last reply
// requests tools the tools node runs and hands back to the agent. Without tools
// the graph is a single agent step.
func ReactAgent(name string, model ports.LanguageModel, tools ports.ToolInvoker, opts ...ReactOption) (*graph.Graph, error) {
	cfg := &reactConfig{}
	for _, opt := range opts {
		opt(cfg)
	}

	agentOpts := []graph.AgentOption{graph.WithModelLabel("model")}
	if cfg.prompt != "" {
		agentOpts = append(agentOpts, graph.WithSystemPrompt(cfg.prompt))
	}
	if cfg.attribution != "" {
		agentOpts = append(agentOpts, graph.WithAttribution(cfg.attribution))
	}

	b := graph.NewBuilder(name).SetEntry(AgentNode)
	if tools == nil || len(tools.Specs()) == 0 {
		return b.AddNode(AgentNode, graph.NewAgentNode(model, agentOpts...)).
			AddEdge(AgentNode, domain.End).
			Compile()
	}

	agentOpts = append(agentOpts, graph.WithTools(tools.Specs()))
	var toolOpts []graph.ToolOption
	if cfg.timeout > 0 {
		toolOpts = append(toolOpts, graph.WithToolTimeout(cfg.timeout))
	}
	if cfg.concurrency > 0 {
		toolOpts = append(toolOpts, graph.WithConcurrency(cfg.concurrency))
	}

	return b.AddNode(AgentNode, graph.NewAgentNode(model, agentOpts...)).
		AddNode(ToolsNode, graph.NewToolNode(tools, toolOpts...)).
		AddConditionalEdges(AgentNode, graph.ToolsCondition(ToolsNode), ToolsNode, domain.End).
		AddEdge(ToolsNode, AgentNode).
		Compile()
}
