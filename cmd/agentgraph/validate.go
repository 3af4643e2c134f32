package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
)

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Check the configuration and every registered graph",
	Long: `Loads the configuration, builds the engine (which compiles every graph and
rejects dangling edges) and reports nodes that cannot be reached from the entry.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		app, err := loadApp(cmd)
		if err != nil {
			return fmt.Errorf("validation failed: %w", err)
		}
		defer app.Close()

		out := cmd.OutOrStdout()
		warnings := 0
		for _, g := range app.Engine.Graphs() {
			if unreachable := g.Unreachable(); len(unreachable) > 0 {
				fmt.Fprintf(out, "%s: unreachable nodes: %s\n", g.Name(), strings.Join(unreachable, ", "))
				warnings++
			}
		}
		if strict, _ := cmd.Flags().GetBool("strict"); strict && warnings > 0 {
			return fmt.Errorf("validation failed: %d graph(s) with unreachable nodes", warnings)
		}
		fmt.Fprintf(out, "Configuration and %d graph(s) are valid.\n", len(app.Engine.Graphs()))
		return nil
	},
}

func init() {
	rootCmd.AddCommand(validateCmd)
	validateCmd.Flags().Bool("strict", false, "Treat unreachable nodes as errors")
}
