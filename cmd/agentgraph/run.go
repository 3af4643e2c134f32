package main

import (
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/aretw0/agentgraph/internal/cli"
)

var runCmd = &cobra.Command{
	Use:   "run <graph> [input]",
	Short: "Run a graph once",
	Long: `Runs the named graph on a thread with an optional human message and prints
the final reply. Running again with the same --thread continues the conversation.`,
	Args: cobra.RangeArgs(1, 2),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		app, err := loadApp(cmd)
		if err != nil {
			return err
		}
		defer app.Close()

		opts := cli.RunOptions{Graph: args[0]}
		if len(args) > 1 {
			opts.Input = args[1]
		}
		opts.ThreadID, _ = cmd.Flags().GetString("thread")
		opts.State, _ = cmd.Flags().GetString("state")
		opts.JSON, _ = cmd.Flags().GetBool("json")
		opts.Stream, _ = cmd.Flags().GetBool("stream")

		return cli.Execute(ctx, app.Engine, opts, cmd.OutOrStdout())
	},
}

func init() {
	rootCmd.AddCommand(runCmd)

	runCmd.Flags().StringP("thread", "t", "", "Thread id (a new one is generated when empty)")
	runCmd.Flags().String("state", "", "Extra input state as a JSON object")
	runCmd.Flags().Bool("json", false, "Print the outcome as JSON")
	runCmd.Flags().Bool("stream", false, "Print each step as NDJSON while the run progresses")
}
