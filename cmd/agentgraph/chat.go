package main

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/aretw0/agentgraph/internal/cli"
)

var chatCmd = &cobra.Command{
	Use:   "chat [graph]",
	Short: "Hold an interactive conversation with a graph",
	Long: `Starts a multi-turn conversation on one thread. Ctrl+C interrupts the current
turn; the thread continues from its last checkpoint. Type 'exit' to quit.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		app, err := loadApp(cmd)
		if err != nil {
			return err
		}
		defer app.Close()

		opts := cli.ChatOptions{Graph: cli.GraphAssistantV1}
		if len(args) > 0 {
			opts.Graph = args[0]
		}
		opts.ThreadID, _ = cmd.Flags().GetString("thread")
		opts.JSON, _ = cmd.Flags().GetBool("json")
		opts.Verbose, _ = cmd.Flags().GetBool("verbose")
		opts.Fresh, _ = cmd.Flags().GetBool("fresh")

		// The runner owns interrupts per turn; the session itself ends on EOF or exit.
		return cli.RunChat(context.WithoutCancel(cmd.Context()), app, opts, cmd.InOrStdin(), cmd.OutOrStdout())
	},
}

func init() {
	rootCmd.AddCommand(chatCmd)

	chatCmd.Flags().StringP("thread", "t", "", "Thread id to resume (a new one is generated when empty)")
	chatCmd.Flags().Bool("json", false, "NDJSON input/output")
	chatCmd.Flags().BoolP("verbose", "v", false, "Show tool calls and tool results")
	chatCmd.Flags().Bool("fresh", false, "Delete the thread before starting")
}
