package cli

import (
	"fmt"
	"log/slog"

	"github.com/aretw0/agentgraph/internal/config"
	"github.com/aretw0/agentgraph/pkg/adapters/process"
	"github.com/aretw0/agentgraph/pkg/registry"
	"github.com/aretw0/agentgraph/pkg/tools/docs"
	"github.com/aretw0/agentgraph/pkg/tools/web"
)

// Toolbox groups the tool registries handed to the demo graphs.
type Toolbox struct {
	// All holds every configured tool.
	All *registry.Registry
	// Research holds the web tools; empty when web access is disabled.
	Research *registry.Registry
	// Writing holds the document tools.
	Writing *registry.Registry
}

// NewToolbox builds the document workspace, the optional web scraper and the
// allow-listed process tools.
func NewToolbox(cfg config.ToolsConfig, logger *slog.Logger) (*Toolbox, error) {
	ws, err := docs.New(cfg.Workdir)
	if err != nil {
		return nil, fmt.Errorf("failed to prepare workdir: %w", err)
	}

	tb := &Toolbox{
		All:      registry.NewRegistry(),
		Research: registry.NewRegistry(),
		Writing:  registry.NewRegistry(ws.Tools()...),
	}
	ws.Register(tb.All)

	if cfg.Web {
		scraper := web.New(web.WithLogger(logger))
		scraper.Register(tb.Research)
		scraper.Register(tb.All)
	}

	if cfg.ProcessFile != "" {
		procs, err := process.LoadTools(cfg.ProcessFile)
		if err != nil {
			return nil, fmt.Errorf("failed to load process tools: %w", err)
		}
		runner := process.NewRunner(
			process.WithRegistry(procs),
			process.WithBaseDir(ws.Root()),
			process.WithLogger(logger),
		)
		if err := runner.Attach(tb.All); err != nil {
			return nil, err
		}
		logger.Debug("process tools attached", "count", len(procs), "file", cfg.ProcessFile)
	}
	return tb, nil
}
