package main

import (
	"encoding/json"
	"fmt"

	"github.com/aretw0/tradeflow/internal/cli"
	"github.com/aretw0/tradeflow/internal/presentation/tui"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

var leagueCmd = &cobra.Command{
	Use:   "league",
	Short: "Manage league state on a running server",
}

var leagueInitCmd = &cobra.Command{
	Use:   "init <file>",
	Short: "Upload a league from a YAML or JSON file, replacing its state",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, _ := cmd.Flags().GetString("id")
		league, err := cli.LoadLeagueFile(args[0], id)
		if err != nil {
			return err
		}
		if err := newClient(cmd).InitLeague(cmd.Context(), league); err != nil {
			return fmt.Errorf("init league %s: %w", league.LeagueID, err)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "League '%s' initialized (%d teams, %d players)\n",
			league.LeagueID, len(league.Teams), len(league.Players))
		return nil
	},
}

var leagueGetCmd = &cobra.Command{
	Use:   "get <league-id>",
	Short: "Print the stored league",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		league, err := newClient(cmd).League(cmd.Context(), args[0])
		if err != nil {
			return err
		}

		format, _ := cmd.Flags().GetString("output")
		var data []byte
		switch format {
		case "yaml":
			data, err = yaml.Marshal(league)
		case "json":
			data, err = json.MarshalIndent(league, "", "  ")
			data = append(data, '\n')
		default:
			return fmt.Errorf("unknown output format %q", format)
		}
		if err != nil {
			return err
		}
		_, err = cmd.OutOrStdout().Write(data)
		return err
	},
}

var leagueMemoryCmd = &cobra.Command{
	Use:   "memory <league-id>",
	Short: "Show the league's memory summary",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		mem, err := newClient(cmd).Memory(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		return printMarkdown(cmd, tui.MemoryMarkdown(args[0], mem))
	},
}

func init() {
	rootCmd.AddCommand(leagueCmd)
	leagueCmd.AddCommand(leagueInitCmd, leagueGetCmd, leagueMemoryCmd)

	leagueInitCmd.Flags().String("id", "", "League id, overriding the one in the file")
	leagueGetCmd.Flags().StringP("output", "o", "yaml", "Output format: yaml or json")
}
