package main

import (
	"context"
	"fmt"
	"time"

	"github.com/aretw0/tradeflow/internal/presentation/tui"
	"github.com/aretw0/tradeflow/pkg/client"
	"github.com/aretw0/tradeflow/pkg/domain"
	"github.com/spf13/cobra"
)

var tradeCmd = &cobra.Command{
	Use:   "trade",
	Short: "Submit trade evaluations and check their status",
}

var tradeEvaluateCmd = &cobra.Command{
	Use:   "evaluate",
	Short: "Submit a trade proposal for evaluation",
	Long: `Submits a proposal and prints the queued workflow. With --wait the command
listens on the result stream and falls back to polling if the stream drops.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		flags := cmd.Flags()
		req := client.EvaluateRequest{}
		req.ID, _ = flags.GetString("id")
		req.Persona, _ = flags.GetString("persona")
		req.Proposal.LeagueID, _ = flags.GetString("league")
		req.Proposal.FromTeamID, _ = flags.GetString("from")
		req.Proposal.ToTeamID, _ = flags.GetString("to")
		req.Proposal.Give, _ = flags.GetStringSlice("give")
		req.Proposal.Get, _ = flags.GetStringSlice("get")

		c := newClient(cmd)
		snap, err := c.Evaluate(cmd.Context(), req)
		if err != nil {
			return err
		}

		if wait, _ := flags.GetBool("wait"); wait {
			timeout, _ := flags.GetDuration("timeout")
			ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
			defer cancel()
			id := snap.ID
			if snap, err = c.Await(ctx, id); err != nil {
				return fmt.Errorf("await %s: %w", id, err)
			}
		}
		return printMarkdown(cmd, tui.SnapshotMarkdown(snap))
	},
}

var tradeStatusCmd = &cobra.Command{
	Use:   "status <workflow-id>",
	Short: "Print the current status of a trade evaluation",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		snap, err := newClient(cmd).Status(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		return printMarkdown(cmd, tui.SnapshotMarkdown(snap))
	},
}

func init() {
	rootCmd.AddCommand(tradeCmd)
	tradeCmd.AddCommand(tradeEvaluateCmd, tradeStatusCmd)

	f := tradeEvaluateCmd.Flags()
	f.String("id", "", "Workflow id (generated when empty)")
	f.String("league", "", "League id")
	f.String("from", "", "Proposing team id")
	f.String("to", "", "Counterparty team id")
	f.StringSlice("give", nil, "Player ids leaving the proposing team")
	f.StringSlice("get", nil, "Player ids leaving the counterparty")
	f.String("persona", domain.DefaultPersona, "Persona used for the writeup")
	f.Bool("wait", false, "Wait for the evaluation to finish")
	f.Duration("timeout", 2*time.Minute, "How long --wait blocks")
	_ = tradeEvaluateCmd.MarkFlagRequired("league")
	_ = tradeEvaluateCmd.MarkFlagRequired("from")
	_ = tradeEvaluateCmd.MarkFlagRequired("to")
}
