package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/aretw0/tradeflow/internal/cli"
	"github.com/aretw0/tradeflow/internal/config"
	"github.com/aretw0/tradeflow/internal/presentation/tui"
	"github.com/aretw0/tradeflow/pkg/client"
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "tradeflow",
	Short: "Tradeflow evaluates fantasy league trades asynchronously",
	Long: `Tradeflow keeps per-league state behind a single-writer actor, runs trade
evaluations as checkpointed workflows, and delivers each result once over a
stream, with status polling as the fallback path.`,
	SilenceUsage: true,
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().String("env-file", ".env", "Optional dotenv file read before the environment")
	rootCmd.PersistentFlags().String("server", envOr("TRADEFLOW_SERVER", "http://localhost:8080"), "Base URL of a running tradeflow server")
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func loadConfig(cmd *cobra.Command) (config.Config, *slog.Logger, error) {
	envFile, _ := cmd.Flags().GetString("env-file")
	cfg, err := config.Load(envFile)
	if err != nil {
		return config.Config{}, nil, err
	}
	logger, err := cli.NewLogger(cfg)
	if err != nil {
		return config.Config{}, nil, err
	}
	return cfg, logger, nil
}

func newClient(cmd *cobra.Command) *client.Client {
	server, _ := cmd.Flags().GetString("server")
	return client.New(server)
}

func printMarkdown(cmd *cobra.Command, md string) error {
	out := cmd.OutOrStdout()
	rendered, err := tui.NewRenderer(out)(md)
	if err != nil {
		return err
	}
	_, err = fmt.Fprint(out, rendered)
	return err
}
