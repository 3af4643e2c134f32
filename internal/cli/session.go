package cli

import (
	"context"
	"io"
	"os"

	"github.com/aretw0/agentgraph/internal/presentation/tui"
	"github.com/aretw0/agentgraph/pkg/runner"
)

// ChatOptions configures an interactive conversation.
type ChatOptions struct {
	Graph    string
	ThreadID string
	JSON     bool
	Verbose  bool
	// Fresh deletes the thread before the first turn.
	Fresh bool
}

// RunChat holds a multi-turn conversation on one thread until EOF or "exit".
func RunChat(ctx context.Context, app *App, opts ChatOptions, in io.Reader, out io.Writer) error {
	if _, err := app.Engine.Graph(opts.Graph); err != nil {
		return err
	}
	if opts.Fresh && opts.ThreadID != "" {
		if err := app.Engine.DeleteThread(ctx, opts.ThreadID); err != nil {
			return err
		}
	}

	var handler runner.IOHandler
	if opts.JSON {
		handler = runner.NewJSONHandler(in, out)
	} else {
		textOpts := []runner.TextHandlerOption{runner.WithVerbose(opts.Verbose)}
		if f, ok := out.(*os.File); ok && tui.IsTerminal(f) {
			tui.PrintBanner(out)
			if render, err := tui.NewRenderer(); err == nil {
				textOpts = append(textOpts, runner.WithTextHandlerRenderer(render))
			} else {
				app.Logger.Warn("markdown rendering disabled", "err", err)
			}
		}
		handler = runner.NewTextHandler(in, out, textOpts...)
	}

	runOpts := []runner.Option{
		runner.WithHandler(handler),
		runner.WithLogger(app.Logger),
	}
	if opts.ThreadID != "" {
		runOpts = append(runOpts, runner.WithThreadID(opts.ThreadID))
	}
	r := runner.New(app.Engine, opts.Graph, runOpts...)

	if !opts.JSON {
		if cp, err := app.Engine.GetThreadState(ctx, r.ThreadID()); err == nil {
			printSystemMessage(out, "Resuming thread '%s' at step %d.", r.ThreadID(), cp.Step)
		} else {
			printSystemMessage(out, "Thread '%s' active. Type 'exit' to quit.", r.ThreadID())
		}
	}

	return handleExecutionError(r.Run(ctx))
}
