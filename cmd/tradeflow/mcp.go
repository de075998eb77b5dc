package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/aretw0/tradeflow"
	"github.com/aretw0/tradeflow/internal/cli"
	"github.com/aretw0/tradeflow/pkg/adapters/mcp"
	"github.com/spf13/cobra"
)

var mcpCmd = &cobra.Command{
	Use:   "mcp",
	Short: "Run the Model Context Protocol (MCP) server",
	Long: `Exposes league state and trade evaluation as MCP tools.

Supported Transports:
- stdio (default): Uses Standard Input/Output. Ideal for local process integration.
- sse: Uses Server-Sent Events over HTTP. Ideal for remote agents.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, logger, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		transport, _ := cmd.Flags().GetString("transport")
		addr, _ := cmd.Flags().GetString("addr")
		baseURL, _ := cmd.Flags().GetString("base-url")

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		stack, err := cli.Build(ctx, cfg, logger)
		if err != nil {
			return err
		}
		defer stack.Close(context.Background())
		if err := stack.Start(ctx); err != nil {
			return fmt.Errorf("resume workflows: %w", err)
		}

		srv := mcp.NewServer(stack.App.Leagues, stack.App.Engine,
			mcp.WithVersion(tradeflow.Version),
			mcp.WithLogger(logger),
		)

		switch transport {
		case "stdio":
			logger.Info("Starting tradeflow MCP server (stdio)")
			return srv.ServeStdio()
		case "sse":
			if baseURL == "" {
				baseURL = "http://localhost" + addr
			}
			err := srv.ServeSSE(ctx, addr, baseURL)
			logger.Info("MCP server stopped")
			return err
		}
		return fmt.Errorf("unknown transport %q, supported: stdio, sse", transport)
	},
}

func init() {
	rootCmd.AddCommand(mcpCmd)
	mcpCmd.Flags().StringP("transport", "t", "stdio", "Transport: stdio or sse")
	mcpCmd.Flags().String("addr", ":8081", "Listen address for the sse transport")
	mcpCmd.Flags().String("base-url", "", "Public base URL advertised by the sse transport")
}
