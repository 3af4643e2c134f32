// Package mcp exposes an agentgraph engine as a Model Context Protocol server.
package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"iter"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/aretw0/agentgraph/internal/logging"
	presentation "github.com/aretw0/agentgraph/internal/presentation/graph"
	"github.com/aretw0/agentgraph/pkg/domain"
	"github.com/aretw0/agentgraph/pkg/graph"
	"github.com/aretw0/agentgraph/pkg/runner"
)

const (
	GraphsURI        = "agentgraph://graphs"
	mermaidURIPrefix = "agentgraph://graphs/"
	mermaidURISuffix = "/mermaid"
)

// Engine defines the interface required by the MCP server.
type Engine interface {
	Graph(name string) (*graph.Graph, error)
	Graphs() []*graph.Graph
	Stream(ctx context.Context, graphName, threadID string, input domain.State) iter.Seq2[domain.StepEvent, error]
	ListThreads(ctx context.Context) ([]string, error)
	GetThreadState(ctx context.Context, threadID string) (*domain.Checkpoint, error)
	ListCheckpoints(ctx context.Context, threadID string) ([]*domain.Checkpoint, error)
}

// RunResponse is the structured result of run_graph.
type RunResponse struct {
	ThreadID string           `json:"thread_id" jsonschema_description:"Thread the run executed on"`
	Status   domain.RunStatus `json:"status" jsonschema_description:"Thread status after the run"`
	Step     int              `json:"step" jsonschema_description:"Last persisted step"`
	Reply    string           `json:"reply,omitempty" jsonschema_description:"Content of the last assistant message"`
	Events   int              `json:"events" jsonschema_description:"Number of steps executed by this run"`
}

// RunArgs are the arguments of run_graph.
type RunArgs struct {
	Graph    string `json:"graph"`
	Input    string `json:"input"`
	ThreadID string `json:"thread_id,omitempty"`
}

// ThreadArgs are the arguments of get_thread_state.
type ThreadArgs struct {
	ThreadID string `json:"thread_id"`
}

// Server wraps the engine and exposes it as an MCP Server.
type Server struct {
	engine    Engine
	logger    *slog.Logger
	mcpServer *server.MCPServer
}

// Option configures a Server.
type Option func(*Server)

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Server) { s.logger = l }
}

// NewServer creates a new MCP Server instance.
func NewServer(engine Engine, version string, opts ...Option) *Server {
	s := &Server{
		engine:    engine,
		logger:    logging.NewNop(),
		mcpServer: server.NewMCPServer("agentgraph-mcp", strings.TrimSpace(version)),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.registerTools()
	s.registerResources()
	return s
}

// MCPServer returns the underlying server.
func (s *Server) MCPServer() *server.MCPServer { return s.mcpServer }

// ServeStdio starts the server on Stdin/Stdout.
func (s *Server) ServeStdio() error {
	return server.ServeStdio(s.mcpServer)
}

// ServeSSE serves the SSE transport on addr until ctx is done.
func (s *Server) ServeSSE(ctx context.Context, addr, baseURL string) error {
	sseServer := server.NewSSEServer(s.mcpServer, server.WithBaseURL(baseURL))

	mux := http.NewServeMux()
	mux.Handle("/sse", sseServer.SSEHandler())
	mux.Handle("/message", sseServer.MessageHandler())

	httpServer := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	serverErrors := make(chan error, 1)
	go func() {
		s.logger.Info("MCP server listening (SSE)", "address", addr)
		serverErrors <- httpServer.ListenAndServe()
	}()

	select {
	case err := <-serverErrors:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("could not stop server gracefully: %w", err)
		}
		return nil
	}
}

func (s *Server) registerTools() {
	s.mcpServer.AddTool(mcp.NewTool("run_graph",
		mcp.WithDescription("Send a message to a registered graph and run it until it ends. Reusing a thread_id continues the conversation."),
		mcp.WithString("graph", mcp.Required(), mcp.Description("Name of the graph to run")),
		mcp.WithString("input", mcp.Required(), mcp.Description("User message")),
		mcp.WithString("thread_id", mcp.Description("Conversation thread; a new one is created when omitted")),
		mcp.WithOutputSchema[RunResponse](),
	), mcp.NewStructuredToolHandler(s.handleRun))

	s.mcpServer.AddTool(mcp.NewTool("list_graphs",
		mcp.WithDescription("List the registered graphs with their nodes."),
	), func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		return jsonResult(s.graphViews())
	})

	s.mcpServer.AddTool(mcp.NewTool("list_threads",
		mcp.WithDescription("List conversation threads that have checkpoints."),
	), func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		ids, err := s.engine.ListThreads(ctx)
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("list threads failed: %v", err)), nil
		}
		if ids == nil {
			ids = []string{}
		}
		return jsonResult(ids)
	})

	s.mcpServer.AddTool(mcp.NewTool("get_thread_state",
		mcp.WithDescription("Get the latest checkpoint of a thread."),
		mcp.WithString("thread_id", mcp.Required(), mcp.Description("Thread to inspect")),
	), mcp.NewTypedToolHandler(s.handleThreadState))
}

func (s *Server) handleRun(ctx context.Context, request mcp.CallToolRequest, args RunArgs) (RunResponse, error) {
	clean, err := runner.SanitizeInput(args.Input)
	if err != nil {
		s.logger.Warn("run_graph: input rejected", "err", err, "size", len(args.Input))
		return RunResponse{}, fmt.Errorf("input rejected: %w", err)
	}

	resp := RunResponse{ThreadID: args.ThreadID}
	input := domain.State{domain.MessagesKey: []domain.Message{domain.Human(clean)}}
	for ev, err := range s.engine.Stream(ctx, args.Graph, args.ThreadID, input) {
		if err != nil {
			return RunResponse{}, fmt.Errorf("run failed: %w", err)
		}
		resp.ThreadID = ev.ThreadID
		resp.Events++
	}
	if resp.ThreadID == "" {
		return resp, nil
	}

	cp, err := s.engine.GetThreadState(ctx, resp.ThreadID)
	if err != nil {
		return RunResponse{}, fmt.Errorf("read thread: %w", err)
	}
	resp.Status = cp.Status()
	resp.Step = cp.Step
	msgs := cp.State.Messages()
	for i := len(msgs) - 1; i >= 0; i-- {
		if msgs[i].Role == domain.RoleAssistant && msgs[i].Content != "" {
			resp.Reply = msgs[i].Content
			break
		}
	}
	return resp, nil
}

func (s *Server) handleThreadState(ctx context.Context, request mcp.CallToolRequest, args ThreadArgs) (*mcp.CallToolResult, error) {
	cp, err := s.engine.GetThreadState(ctx, args.ThreadID)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("get thread failed: %v", err)), nil
	}
	return jsonResult(cp)
}

type graphView struct {
	Name  string                  `json:"name"`
	Entry string                  `json:"entry"`
	Nodes []domain.NodeDescriptor `json:"nodes"`
}

func (s *Server) graphViews() []graphView {
	graphs := s.engine.Graphs()
	out := make([]graphView, 0, len(graphs))
	for _, g := range graphs {
		out = append(out, graphView{Name: g.Name(), Entry: g.Entry(), Nodes: g.Nodes()})
	}
	return out
}

func jsonResult(v any) (*mcp.CallToolResult, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	return mcp.NewToolResultText(string(data)), nil
}

func (s *Server) registerResources() {
	s.mcpServer.AddResource(mcp.NewResource(GraphsURI, "Registered graphs",
		mcp.WithMIMEType("application/json"),
	), s.readGraphs)

	s.mcpServer.AddResourceTemplate(mcp.NewResourceTemplate(
		mermaidURIPrefix+"{name}"+mermaidURISuffix, "Graph diagram",
		mcp.WithTemplateDescription("Mermaid flowchart of a registered graph"),
		mcp.WithTemplateMIMEType("text/plain"),
	), s.readMermaid)
}

func (s *Server) readGraphs(ctx context.Context, request mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
	data, err := json.Marshal(s.graphViews())
	if err != nil {
		return nil, err
	}
	return []mcp.ResourceContents{
		mcp.TextResourceContents{URI: GraphsURI, MIMEType: "application/json", Text: string(data)},
	}, nil
}

func (s *Server) readMermaid(ctx context.Context, request mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
	uri := request.Params.URI
	name := strings.TrimSuffix(strings.TrimPrefix(uri, mermaidURIPrefix), mermaidURISuffix)
	g, err := s.engine.Graph(name)
	if err != nil {
		return nil, err
	}
	return []mcp.ResourceContents{
		mcp.TextResourceContents{URI: uri, MIMEType: "text/plain", Text: presentation.GenerateMermaid(g, nil)},
	}, nil
}
