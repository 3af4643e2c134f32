// Package process exposes allow-listed local commands as tools.
package process

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os/exec"
	"sort"
	"strings"
	"time"

	"github.com/aretw0/agentgraph/internal/logging"
	"github.com/aretw0/agentgraph/pkg/domain"
	"github.com/aretw0/agentgraph/pkg/registry"
	"github.com/aretw0/agentgraph/pkg/schema"
)

// ArgEnvPrefix prefixes the environment variables carrying tool arguments.
const ArgEnvPrefix = "AGENTGRAPH_ARG_"

// DefaultGracePeriod is how long a cancelled process may take to exit before it is killed.
const DefaultGracePeriod = 5 * time.Second

// Runner executes registered local processes.
// Only registered commands run; arguments never become command-line flags.
type Runner struct {
	registry map[string]ProcessConfig
	baseDir  string
	grace    time.Duration
	logger   *slog.Logger
}

// RunnerOption configures the runner.
type RunnerOption func(*Runner)

// WithRegistry populates the allow-list from a loaded config.
func WithRegistry(tools map[string]ProcessConfig) RunnerOption {
	return func(r *Runner) {
		for name, tool := range tools {
			tool.Name = name
			r.registry[name] = tool
		}
	}
}

// WithBaseDir sets the working directory for executed processes.
func WithBaseDir(dir string) RunnerOption {
	return func(r *Runner) {
		r.baseDir = dir
	}
}

// WithGracePeriod sets how long a cancelled process may take to exit.
func WithGracePeriod(d time.Duration) RunnerOption {
	return func(r *Runner) {
		r.grace = d
	}
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) RunnerOption {
	return func(r *Runner) {
		r.logger = l
	}
}

// NewRunner creates a new Process Runner.
func NewRunner(opts ...RunnerOption) *Runner {
	r := &Runner{
		registry: make(map[string]ProcessConfig),
		grace:    DefaultGracePeriod,
		logger:   logging.NewNop(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Register adds a trusted command to the allow-list.
func (r *Runner) Register(cfg ProcessConfig) {
	r.registry[cfg.Name] = cfg
}

// Tools returns one registry tool per registered process, sorted by name.
func (r *Runner) Tools() ([]registry.Tool, error) {
	names := make([]string, 0, len(r.registry))
	for name := range r.registry {
		names = append(names, name)
	}
	sort.Strings(names)

	out := make([]registry.Tool, 0, len(names))
	for _, name := range names {
		cfg := r.registry[name]
		params, err := schema.ParseTypeMap(cfg.Params)
		if err != nil {
			return nil, fmt.Errorf("tool %s: %w", name, err)
		}
		desc := cfg.Description
		if desc == "" {
			desc = "Runs " + cfg.Command
		}
		out = append(out, registry.Tool{
			ToolSpec: domain.ToolSpec{Name: name, Description: desc, Parameters: params},
			Fn: func(ctx context.Context, args map[string]any) (any, error) {
				return r.Execute(ctx, name, args)
			},
		})
	}
	return out, nil
}

// Attach registers every process tool in reg.
func (r *Runner) Attach(reg *registry.Registry) error {
	tools, err := r.Tools()
	if err != nil {
		return err
	}
	for _, t := range tools {
		reg.Add(t)
	}
	return nil
}

// Execute runs the named process. Arguments are passed as AGENTGRAPH_ARG_<NAME>
// environment variables; stdout is the result, parsed when it is JSON.
func (r *Runner) Execute(ctx context.Context, name string, args map[string]any) (any, error) {
	proc, ok := r.registry[name]
	if !ok {
		return nil, &domain.UnknownToolError{Name: name}
	}

	if proc.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, proc.Timeout)
		defer cancel()
	}

	cmd := exec.CommandContext(ctx, proc.Command, proc.Args...)
	cmd.Dir = r.baseDir
	cmd.WaitDelay = r.grace

	env := cmd.Environ()
	for k, v := range proc.Environment {
		env = append(env, k+"="+v)
	}
	for k, v := range args {
		env = append(env, ArgEnvPrefix+strings.ToUpper(k)+"="+envValue(v))
	}
	cmd.Env = env

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	start := time.Now()
	err := cmd.Run()
	r.logger.Debug("process tool finished", "tool", name, "duration", time.Since(start), "err", err)
	if err != nil {
		if ctx.Err() != nil {
			return nil, fmt.Errorf("process %s: %w", name, ctx.Err())
		}
		return nil, fmt.Errorf("execution failed: %v. Stderr: %s", err, strings.TrimSpace(stderr.String()))
	}

	trimmed := strings.TrimSpace(stdout.String())
	if (strings.HasPrefix(trimmed, "{") && strings.HasSuffix(trimmed, "}")) ||
		(strings.HasPrefix(trimmed, "[") && strings.HasSuffix(trimmed, "]")) {
		var parsed any
		if json.Unmarshal([]byte(trimmed), &parsed) == nil {
			return parsed, nil
		}
	}
	return trimmed, nil
}

// envValue renders primitives as text and everything else as JSON.
func envValue(v any) string {
	switch v.(type) {
	case string, int, int64, float64, bool:
		return fmt.Sprintf("%v", v)
	case nil:
		return ""
	}
	if data, err := json.Marshal(v); err == nil {
		return string(data)
	}
	return fmt.Sprintf("%v", v)
}
