package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/aretw0/agentgraph/internal/presentation/graph"
)

var graphCmd = &cobra.Command{
	Use:   "graph",
	Short: "Inspect registered graphs",
}

var graphLsCmd = &cobra.Command{
	Use:   "ls",
	Short: "List registered graphs",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		app, err := loadApp(cmd)
		if err != nil {
			return err
		}
		defer app.Close()

		tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
		fmt.Fprintln(tw, "NAME\tENTRY\tNODES")
		for _, g := range app.Engine.Graphs() {
			fmt.Fprintf(tw, "%s\t%s\t%d\n", g.Name(), g.Entry(), len(g.Nodes()))
		}
		return tw.Flush()
	},
}

var graphShowCmd = &cobra.Command{
	Use:   "show <graph>",
	Short: "Export a graph as a Mermaid diagram",
	Long: `Outputs a Mermaid diagram (graph TD) of the named graph. With --thread the
nodes visited by that thread are highlighted.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		app, err := loadApp(cmd)
		if err != nil {
			return err
		}
		defer app.Close()

		g, err := app.Engine.Graph(args[0])
		if err != nil {
			return err
		}

		var overlay *graph.GraphOverlay
		if threadID, _ := cmd.Flags().GetString("thread"); threadID != "" {
			history, err := app.Engine.ListCheckpoints(cmd.Context(), threadID)
			if err != nil {
				return fmt.Errorf("error loading thread '%s': %w", threadID, err)
			}
			overlay = graph.OverlayFromHistory(history)
		}

		fmt.Fprint(cmd.OutOrStdout(), graph.GenerateMermaid(g, overlay))
		return nil
	},
}

func init() {
	rootCmd.AddCommand(graphCmd)
	graphCmd.AddCommand(graphLsCmd, graphShowCmd)

	graphShowCmd.Flags().StringP("thread", "t", "", "Highlight the path taken by this thread")
}
