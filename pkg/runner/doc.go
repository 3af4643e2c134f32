/*
Package runner implements the interactive conversation loop over an agentgraph engine.

A Runner reads one line of user input per turn through an IOHandler, sanitizes it,
streams the resulting graph run and hands every step event back to the handler.
Interrupting a turn (Ctrl+C) cancels only the run in flight; the thread stays
resumable from its last checkpoint.

# Usage

	r := runner.New(eng, "assistant",
		runner.WithThreadID("user-1"),
		runner.WithHandler(runner.NewTextHandler(os.Stdin, os.Stdout)),
	)

	if err := r.Run(ctx); err != nil {
		log.Fatal(err)
	}
*/
package runner
