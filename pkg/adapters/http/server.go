// Package http exposes an agentgraph engine over HTTP.
package http

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"iter"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/oapi-codegen/runtime"

	"github.com/aretw0/agentgraph"
	presentation "github.com/aretw0/agentgraph/internal/presentation/graph"
	"github.com/aretw0/agentgraph/internal/logging"
	"github.com/aretw0/agentgraph/pkg/domain"
	"github.com/aretw0/agentgraph/pkg/graph"
	"github.com/aretw0/agentgraph/pkg/runner"
)

// Engine is the part of the agentgraph facade served over HTTP.
type Engine interface {
	Graph(name string) (*graph.Graph, error)
	Graphs() []*graph.Graph
	Run(ctx context.Context, graphName, threadID string, input domain.State) (*agentgraph.Outcome, error)
	Stream(ctx context.Context, graphName, threadID string, input domain.State) iter.Seq2[domain.StepEvent, error]
	ListThreads(ctx context.Context) ([]string, error)
	GetThreadState(ctx context.Context, threadID string) (*domain.Checkpoint, error)
	ListCheckpoints(ctx context.Context, threadID string) ([]*domain.Checkpoint, error)
	DeleteThread(ctx context.Context, threadID string) error
}

// Server serves the engine API.
type Server struct {
	Engine  Engine
	Streams *StreamManager
	logger  *slog.Logger
	version string
	mounts  map[string]http.Handler
}

// Option configures a Server.
type Option func(*Server)

// WithLogger sets the request logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Server) { s.logger = l }
}

// WithVersion sets the version reported by /info.
func WithVersion(v string) Option {
	return func(s *Server) { s.version = v }
}

// WithMount serves h under pattern, e.g. a metrics handler on /metrics.
func WithMount(pattern string, h http.Handler) Option {
	return func(s *Server) { s.mounts[pattern] = h }
}

// NewHandler creates a new HTTP handler for the engine.
func NewHandler(engine Engine, opts ...Option) http.Handler {
	s := &Server{
		Engine:  engine,
		Streams: NewStreamManager(),
		logger:  logging.NewNop(),
		version: "dev",
		mounts:  map[string]http.Handler{},
	}
	for _, opt := range opts {
		opt(s)
	}

	spec, err := specRouter()
	if err != nil {
		// The document is embedded; failing to load it is a build defect.
		panic(err)
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(enableCORS)
	r.Use(s.validateRequests(spec))

	r.Get("/health", s.GetHealth)
	r.Get("/info", s.GetInfo)
	r.Get("/openapi.yaml", s.GetSpec)

	r.Route("/graphs", func(r chi.Router) {
		r.Get("/", s.ListGraphs)
		r.Route("/{graph}", func(r chi.Router) {
			r.Get("/", s.GetGraph)
			r.Get("/mermaid", s.GetMermaid)
			r.Post("/runs", s.Run)
			r.Post("/runs/stream", s.StreamRun)
		})
	})

	r.Route("/threads", func(r chi.Router) {
		r.Get("/", s.ListThreads)
		r.Route("/{thread}", func(r chi.Router) {
			r.Get("/", s.GetThread)
			r.Delete("/", s.DeleteThread)
			r.Get("/checkpoints", s.ListCheckpoints)
			r.Get("/events", s.SubscribeEvents)
		})
	})

	for pattern, h := range s.mounts {
		r.Handle(pattern, h)
	}
	return r
}

func enableCORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusOK)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// RunRequest is the body of run endpoints. Input is a convenience for a single
// human message; Messages and State are merged as given.
type RunRequest struct {
	ThreadID string           `json:"thread_id,omitempty"`
	Input    string           `json:"input,omitempty"`
	Messages []domain.Message `json:"messages,omitempty"`
	State    map[string]any   `json:"state,omitempty"`
}

// RunResponse is the result of a completed run.
type RunResponse struct {
	ThreadID string           `json:"thread_id"`
	Status   domain.RunStatus `json:"status"`
	Step     int              `json:"step"`
	Steps    int              `json:"steps"`
	Next     string           `json:"next"`
	State    domain.State     `json:"state"`
}

// ErrorResponse is the body of every failed request.
type ErrorResponse struct {
	Error string           `json:"error"`
	Kind  domain.ErrorKind `json:"kind,omitempty"`
	Step  int              `json:"step,omitempty"`
	Node  string           `json:"node,omitempty"`
}

// GetHealth handles the GET /health request.
func (s *Server) GetHealth(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// GetInfo handles the GET /info request.
func (s *Server) GetInfo(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]string{
		"app":     "agentgraph-http",
		"version": s.version,
	})
}

type graphView struct {
	Name  string                  `json:"name"`
	Entry string                  `json:"entry"`
	Nodes []domain.NodeDescriptor `json:"nodes"`
}

func viewOf(g *graph.Graph) graphView {
	return graphView{Name: g.Name(), Entry: g.Entry(), Nodes: g.Nodes()}
}

// ListGraphs handles GET /graphs.
func (s *Server) ListGraphs(w http.ResponseWriter, r *http.Request) {
	graphs := s.Engine.Graphs()
	out := make([]graphView, 0, len(graphs))
	for _, g := range graphs {
		out = append(out, viewOf(g))
	}
	s.writeJSON(w, http.StatusOK, out)
}

// GetGraph handles GET /graphs/{graph}.
func (s *Server) GetGraph(w http.ResponseWriter, r *http.Request) {
	name, ok := s.pathParam(w, r, "graph")
	if !ok {
		return
	}
	g, err := s.Engine.Graph(name)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, viewOf(g))
}

// GetMermaid handles GET /graphs/{graph}/mermaid. A thread query parameter overlays
// the thread's visited and current nodes.
func (s *Server) GetMermaid(w http.ResponseWriter, r *http.Request) {
	name, ok := s.pathParam(w, r, "graph")
	if !ok {
		return
	}
	var id string
	if err := runtime.BindQueryParameter("form", true, false, "thread", r.URL.Query(), &id); err != nil {
		s.writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: fmt.Sprintf("invalid format for parameter thread: %v", err)})
		return
	}
	g, err := s.Engine.Graph(name)
	if err != nil {
		s.writeError(w, err)
		return
	}
	var overlay *presentation.GraphOverlay
	if id != "" {
		history, err := s.Engine.ListCheckpoints(r.Context(), id)
		if err != nil {
			s.writeError(w, err)
			return
		}
		overlay = presentation.OverlayFromHistory(history)
	}
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	fmt.Fprint(w, presentation.GenerateMermaid(g, overlay))
}

func (s *Server) decodeRun(w http.ResponseWriter, r *http.Request) (RunRequest, domain.State, bool) {
	var body RunRequest
	r.Body = http.MaxBytesReader(w, r.Body, int64(runner.MaxInputSize())*4)
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		s.writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: "invalid request body"})
		s.logger.Warn("run: invalid request body", "err", err)
		return body, nil, false
	}

	input := domain.State{}
	for k, v := range body.State {
		input[k] = v
	}
	msgs := body.Messages
	if body.Input != "" {
		msgs = append(msgs, domain.Human(body.Input))
	}
	for i, m := range msgs {
		clean, err := runner.SanitizeInput(m.Content)
		if err != nil {
			s.writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: fmt.Sprintf("invalid input: %v", err)})
			s.logger.Warn("run: input rejected", "err", err, "size", len(m.Content))
			return body, nil, false
		}
		msgs[i].Content = clean
	}
	if len(msgs) > 0 {
		input[domain.MessagesKey] = msgs
	}
	return body, input, true
}

// Run handles POST /graphs/{graph}/runs and answers once the run ends.
func (s *Server) Run(w http.ResponseWriter, r *http.Request) {
	name, ok := s.pathParam(w, r, "graph")
	if !ok {
		return
	}
	body, input, ok := s.decodeRun(w, r)
	if !ok {
		return
	}
	out, err := s.Engine.Run(r.Context(), name, body.ThreadID, input)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, responseOf(out))
}

func responseOf(o *agentgraph.Outcome) RunResponse {
	return RunResponse{
		ThreadID: o.ThreadID,
		Status:   o.Status,
		Step:     o.Step,
		Steps:    o.Steps,
		Next:     o.Next,
		State:    o.State,
	}
}

// StreamRun handles POST /graphs/{graph}/runs/stream. The response is NDJSON: one
// StepEvent per line, then a final {"error": ...} line if the run failed.
// Disconnecting stops the run after the current step.
func (s *Server) StreamRun(w http.ResponseWriter, r *http.Request) {
	name, ok := s.pathParam(w, r, "graph")
	if !ok {
		return
	}
	body, input, ok := s.decodeRun(w, r)
	if !ok {
		return
	}
	flusher, _ := w.(http.Flusher)

	w.Header().Set("Content-Type", "application/x-ndjson")
	w.Header().Set("Cache-Control", "no-cache")
	w.WriteHeader(http.StatusOK)

	enc := json.NewEncoder(w)
	for ev, err := range s.Engine.Stream(r.Context(), name, body.ThreadID, input) {
		if err != nil {
			_ = enc.Encode(errorOf(err))
			s.logger.Error("stream run failed", "err", err)
			return
		}
		s.broadcast(ev)
		if err := enc.Encode(ev); err != nil {
			s.logger.Warn("stream client gone", "err", err)
			return
		}
		if flusher != nil {
			flusher.Flush()
		}
	}
}

// ListThreads handles GET /threads.
func (s *Server) ListThreads(w http.ResponseWriter, r *http.Request) {
	ids, err := s.Engine.ListThreads(r.Context())
	if err != nil {
		s.writeError(w, err)
		return
	}
	if ids == nil {
		ids = []string{}
	}
	s.writeJSON(w, http.StatusOK, ids)
}

// GetThread handles GET /threads/{thread} and returns the latest checkpoint.
func (s *Server) GetThread(w http.ResponseWriter, r *http.Request) {
	id, ok := s.pathParam(w, r, "thread")
	if !ok {
		return
	}
	cp, err := s.Engine.GetThreadState(r.Context(), id)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, cp)
}

// ListCheckpoints handles GET /threads/{thread}/checkpoints.
func (s *Server) ListCheckpoints(w http.ResponseWriter, r *http.Request) {
	id, ok := s.pathParam(w, r, "thread")
	if !ok {
		return
	}
	history, err := s.Engine.ListCheckpoints(r.Context(), id)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, history)
}

// DeleteThread handles DELETE /threads/{thread}.
func (s *Server) DeleteThread(w http.ResponseWriter, r *http.Request) {
	id, ok := s.pathParam(w, r, "thread")
	if !ok {
		return
	}
	if err := s.Engine.DeleteThread(r.Context(), id); err != nil {
		s.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// SubscribeEvents handles GET /threads/{thread}/events (SSE). Step events of streamed
// runs served by this handler are pushed as they happen.
func (s *Server) SubscribeEvents(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "Streaming not supported", http.StatusInternalServerError)
		return
	}
	threadID, ok := s.pathParam(w, r, "thread")
	if !ok {
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	ch, cancel := s.Streams.Subscribe(threadID)
	defer cancel()

	fmt.Fprintf(w, "event: ping\ndata: connected\n\n")
	flusher.Flush()

	for {
		select {
		case <-r.Context().Done():
			return
		case msg, ok := <-ch:
			if !ok {
				return
			}
			fmt.Fprintf(w, "event: step\ndata: %s\n\n", msg)
			flusher.Flush()
		}
	}
}

func (s *Server) broadcast(ev domain.StepEvent) {
	data, err := json.Marshal(ev)
	if err != nil {
		s.logger.Warn("event encode failed", "err", err)
		return
	}
	s.Streams.Broadcast(ev.ThreadID, string(data))
}

// pathParam binds a required simple-style path parameter.
func (s *Server) pathParam(w http.ResponseWriter, r *http.Request, name string) (string, bool) {
	var v string
	err := runtime.BindStyledParameterWithOptions("simple", name, chi.URLParam(r, name), &v,
		runtime.BindStyledParameterOptions{ParamLocation: runtime.ParamLocationPath, Explode: false, Required: true})
	if err != nil {
		s.writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: fmt.Sprintf("invalid format for parameter %s: %v", name, err)})
		return "", false
	}
	return v, true
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Error("response encode failed", "err", err)
	}
}

func (s *Server) writeError(w http.ResponseWriter, err error) {
	status := statusOf(err)
	if status >= 500 {
		s.logger.Error("request failed", "err", err)
	}
	s.writeJSON(w, status, errorOf(err))
}

func errorOf(err error) ErrorResponse {
	resp := ErrorResponse{Error: err.Error()}
	var runErr *domain.RunError
	if errors.As(err, &runErr) {
		resp.Kind = runErr.Kind
		resp.Step = runErr.Step
		resp.Node = runErr.Node
	}
	return resp
}

func statusOf(err error) int {
	var runErr *domain.RunError
	switch {
	case errors.Is(err, domain.ErrGraphNotFound), errors.Is(err, domain.ErrThreadNotFound):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrCheckpointConflict):
		return http.StatusConflict
	case errors.As(err, &runErr):
		switch runErr.Kind {
		case domain.KindCancelled:
			return 499
		case domain.KindSchema:
			return http.StatusBadRequest
		case domain.KindStepBudgetExceeded:
			return http.StatusUnprocessableEntity
		}
		return http.StatusBadGateway
	}
	return http.StatusInternalServerError
}
