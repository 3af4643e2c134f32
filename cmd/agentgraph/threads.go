package main

import (
	"encoding/json"
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

var threadsCmd = &cobra.Command{
	Use:   "threads",
	Short: "Manage persisted conversation threads",
	Long:  `List, inspect and remove threads stored by the configured checkpointer.`,
}

var threadsLsCmd = &cobra.Command{
	Use:   "ls",
	Short: "List all threads",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		app, err := loadApp(cmd)
		if err != nil {
			return err
		}
		defer app.Close()

		threads, err := app.Engine.ListThreads(cmd.Context())
		if err != nil {
			return fmt.Errorf("error listing threads: %w", err)
		}

		out := cmd.OutOrStdout()
		if len(threads) == 0 {
			fmt.Fprintln(out, "No threads found.")
			return nil
		}
		fmt.Fprintln(out, "Threads:")
		for _, t := range threads {
			fmt.Fprintln(out, "- "+t)
		}
		return nil
	},
}

var threadsInspectCmd = &cobra.Command{
	Use:   "inspect <thread-id>",
	Short: "Print the latest checkpoint of a thread",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		app, err := loadApp(cmd)
		if err != nil {
			return err
		}
		defer app.Close()

		cp, err := app.Engine.GetThreadState(cmd.Context(), args[0])
		if err != nil {
			return fmt.Errorf("error loading thread '%s': %w", args[0], err)
		}

		data, err := json.MarshalIndent(cp, "", "  ")
		if err != nil {
			return fmt.Errorf("error marshaling checkpoint: %w", err)
		}
		fmt.Fprintln(cmd.OutOrStdout(), string(data))
		return nil
	},
}

var threadsHistoryCmd = &cobra.Command{
	Use:   "history <thread-id>",
	Short: "List the checkpoints of a thread, oldest first",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		app, err := loadApp(cmd)
		if err != nil {
			return err
		}
		defer app.Close()

		history, err := app.Engine.ListCheckpoints(cmd.Context(), args[0])
		if err != nil {
			return fmt.Errorf("error loading thread '%s': %w", args[0], err)
		}

		tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
		fmt.Fprintln(tw, "STEP\tSOURCE\tNODE\tNEXT\tMESSAGES\tTIME")
		for _, cp := range history {
			fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t%d\t%s\n",
				cp.Step, cp.Source, cp.Node, cp.Next, len(cp.State.Messages()), cp.Timestamp.Format("15:04:05"))
		}
		return tw.Flush()
	},
}

var threadsRmCmd = &cobra.Command{
	Use:   "rm <thread-id>...",
	Short: "Remove one or more threads",
	Args: func(cmd *cobra.Command, args []string) error {
		if all, _ := cmd.Flags().GetBool("all"); all {
			return cobra.NoArgs(cmd, args)
		}
		return cobra.MinimumNArgs(1)(cmd, args)
	},
	RunE: func(cmd *cobra.Command, args []string) error {
		app, err := loadApp(cmd)
		if err != nil {
			return err
		}
		defer app.Close()

		if all, _ := cmd.Flags().GetBool("all"); all {
			if args, err = app.Engine.ListThreads(cmd.Context()); err != nil {
				return fmt.Errorf("error listing threads: %w", err)
			}
		}

		failed := 0
		for _, threadID := range args {
			if err := app.Engine.DeleteThread(cmd.Context(), threadID); err != nil {
				fmt.Fprintf(cmd.ErrOrStderr(), "Error removing '%s': %v\n", threadID, err)
				failed++
				continue
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Removed thread '%s'\n", threadID)
		}
		if failed > 0 {
			return fmt.Errorf("%d thread(s) could not be removed", failed)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(threadsCmd)
	threadsCmd.AddCommand(threadsLsCmd, threadsInspectCmd, threadsHistoryCmd, threadsRmCmd)

	threadsRmCmd.Flags().Bool("all", false, "Remove every thread")
}
