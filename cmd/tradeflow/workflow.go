package main

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/aretw0/tradeflow/internal/cli"
	"github.com/aretw0/tradeflow/internal/config"
	"github.com/aretw0/tradeflow/internal/presentation/graph"
	"github.com/aretw0/tradeflow/internal/presentation/tui"
	"github.com/aretw0/tradeflow/pkg/workflow"
	"github.com/spf13/cobra"
)

var workflowCmd = &cobra.Command{
	Use:   "workflow",
	Short: "Inspect and remove stored workflow records",
	Long: `Reads the configured store directly (TRADEFLOW_STORE), without a running server.
The memory store holds nothing between processes.`,
}

var workflowLsCmd = &cobra.Command{
	Use:   "ls",
	Short: "List stored workflows",
	RunE: func(cmd *cobra.Command, args []string) error {
		stores, err := openStores(cmd)
		if err != nil {
			return err
		}
		defer stores.Close(cmd.Context())

		ids, err := stores.Workflows.List(cmd.Context())
		if err != nil {
			return fmt.Errorf("list workflows: %w", err)
		}
		out := cmd.OutOrStdout()
		if len(ids) == 0 {
			fmt.Fprintln(out, "No workflows found.")
			return nil
		}
		for _, id := range ids {
			rec, err := stores.Workflows.Load(cmd.Context(), id)
			if err != nil {
				fmt.Fprintf(out, "- %s (unreadable: %v)\n", id, err)
				continue
			}
			fmt.Fprintf(out, "- %s  %-8s  %d/%d steps\n", id, rec.Status, rec.Cursor, len(workflow.Steps()))
		}
		return nil
	},
}

var workflowInspectCmd = &cobra.Command{
	Use:   "inspect <workflow-id>",
	Short: "Show a workflow record with its step checkpoints",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		stores, err := openStores(cmd)
		if err != nil {
			return err
		}
		defer stores.Close(cmd.Context())

		rec, err := stores.Workflows.Load(cmd.Context(), args[0])
		if err != nil {
			return fmt.Errorf("load workflow '%s': %w", args[0], err)
		}

		flags := cmd.Flags()
		if asJSON, _ := flags.GetBool("json"); asJSON {
			data, err := json.MarshalIndent(rec, "", "  ")
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), string(data))
			return nil
		}
		if asGraph, _ := flags.GetBool("graph"); asGraph {
			steps := pipelineSteps()
			fmt.Fprint(cmd.OutOrStdout(), graph.GenerateMermaid(steps, graph.OverlayFor(rec, steps)))
			return nil
		}
		return printMarkdown(cmd, tui.RecordMarkdown(rec, workflow.Steps()))
	},
}

var workflowRmCmd = &cobra.Command{
	Use:   "rm <workflow-id>...",
	Short: "Remove one or more workflow records",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		stores, err := openStores(cmd)
		if err != nil {
			return err
		}
		defer stores.Close(cmd.Context())

		var errs []error
		for _, id := range args {
			if err := stores.Workflows.Delete(cmd.Context(), id); err != nil {
				errs = append(errs, fmt.Errorf("remove '%s': %w", id, err))
				continue
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Removed workflow '%s'\n", id)
		}
		return errors.Join(errs...)
	},
}

func init() {
	rootCmd.AddCommand(workflowCmd)
	workflowCmd.AddCommand(workflowLsCmd, workflowInspectCmd, workflowRmCmd)

	workflowInspectCmd.Flags().Bool("json", false, "Print the raw record")
	workflowInspectCmd.Flags().Bool("graph", false, "Print the pipeline as a Mermaid graph with progress")
}

func openStores(cmd *cobra.Command) (*cli.Stores, error) {
	cfg, logger, err := loadConfig(cmd)
	if err != nil {
		return nil, err
	}
	if cfg.Store == config.StoreMemory {
		logger.Warn("TRADEFLOW_STORE is memory; no records survive between processes")
	}
	return cli.OpenStores(cmd.Context(), cfg)
}

func pipelineSteps() []graph.Step {
	names := workflow.Steps()
	steps := make([]graph.Step, len(names))
	for i, name := range names {
		steps[i] = graph.Step{Name: name, BestEffort: workflow.IsBestEffort(name)}
	}
	return steps
}
