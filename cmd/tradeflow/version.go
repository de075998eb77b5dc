package main

import (
	"fmt"

	"github.com/aretw0/tradeflow"
	"github.com/spf13/cobra"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version number of tradeflow",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintf(cmd.OutOrStdout(), "tradeflow version %s\n", tradeflow.Version)
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
}
