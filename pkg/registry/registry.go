package registry

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/aretw0/agentgraph/pkg/domain"
	"github.com/aretw0/agentgraph/pkg/schema"
)

// ToolFunction is the implementation of a tool.
type ToolFunction func(ctx context.Context, args map[string]any) (any, error)

// Tool couples an implementation with the spec advertised to models.
type Tool struct {
	domain.ToolSpec
	Fn ToolFunction
}

// Registry manages the available tools. It implements ports.ToolInvoker.
type Registry struct {
	mu    sync.RWMutex
	tools map[string]Tool
}

// NewRegistry creates a registry holding tools.
func NewRegistry(tools ...Tool) *Registry {
	r := &Registry{tools: make(map[string]Tool)}
	for _, t := range tools {
		r.Add(t)
	}
	return r
}

// Register adds a tool by name. An existing tool with the same name is replaced.
func (r *Registry) Register(name, description string, params schema.Schema, fn ToolFunction) {
	r.Add(Tool{
		ToolSpec: domain.ToolSpec{Name: name, Description: description, Parameters: params},
		Fn:       fn,
	})
}

// Add registers t.
func (r *Registry) Add(t Tool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.tools[t.Name] = t
}

// Has reports whether name is registered.
func (r *Registry) Has(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.tools[name]
	return ok
}

// Invoke validates args against the tool's parameters and runs it.
// Unregistered names fail with *domain.UnknownToolError.
func (r *Registry) Invoke(ctx context.Context, name string, args map[string]any) (any, error) {
	r.mu.RLock()
	tool, ok := r.tools[name]
	r.mu.RUnlock()

	if !ok {
		return nil, &domain.UnknownToolError{Name: name}
	}
	if err := schema.Validate(tool.Parameters, args); err != nil {
		return nil, fmt.Errorf("invalid arguments for %s: %w", name, err)
	}
	return tool.Fn(ctx, args)
}

// Specs returns the registered tool specs sorted by name.
func (r *Registry) Specs() []domain.ToolSpec {
	r.mu.RLock()
	defer r.mu.RUnlock()
	specs := make([]domain.ToolSpec, 0, len(r.tools))
	for _, t := range r.tools {
		specs = append(specs, t.ToolSpec)
	}
	sort.Slice(specs, func(i, j int) bool { return specs[i].Name < specs[j].Name })
	return specs
}

// Subset returns a registry holding only the named tools.
// Unknown names are reported as *domain.UnknownToolError.
func (r *Registry) Subset(names ...string) (*Registry, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	sub := &Registry{tools: make(map[string]Tool, len(names))}
	for _, name := range names {
		t, ok := r.tools[name]
		if !ok {
			return nil, &domain.UnknownToolError{Name: name}
		}
		sub.tools[name] = t
	}
	return sub, nil
}
