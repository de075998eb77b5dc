package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/aretw0/tradeflow/internal/cli"
	"github.com/aretw0/tradeflow/internal/presentation/tui"
	"github.com/spf13/cobra"
)

const shutdownTimeout = 10 * time.Second

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP API",
	Long: `Starts the league actors, the workflow engine and the stream hub, and exposes
them over HTTP. Workflows left pending by a previous run are resumed on start.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, logger, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		if addr, _ := cmd.Flags().GetString("addr"); cmd.Flags().Changed("addr") {
			cfg.Addr = addr
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		stack, err := cli.Build(ctx, cfg, logger)
		if err != nil {
			return err
		}
		if err := stack.Start(ctx); err != nil {
			_ = stack.Close(context.Background())
			return fmt.Errorf("resume workflows: %w", err)
		}

		srv := &http.Server{
			Addr:              cfg.Addr,
			Handler:           stack.Handler(),
			ReadHeaderTimeout: 10 * time.Second,
		}

		if quiet, _ := cmd.Flags().GetBool("quiet"); !quiet {
			tui.PrintBanner(cmd.ErrOrStderr())
		}

		serverErrors := make(chan error, 1)
		go func() {
			logger.Info("Starting tradeflow server", "address", cfg.Addr, "store", cfg.Store)
			serverErrors <- srv.ListenAndServe()
		}()

		var serveErr error
		select {
		case err := <-serverErrors:
			if !errors.Is(err, http.ErrServerClosed) {
				serveErr = fmt.Errorf("server error: %w", err)
			}
		case <-ctx.Done():
			logger.Info("Shutdown signal received")
		}

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Warn("Graceful shutdown did not complete", "timeout", shutdownTimeout, "err", err)
			_ = srv.Close()
		}
		if err := stack.Close(shutdownCtx); err != nil {
			logger.Warn("Release failed", "err", err)
		}
		logger.Info("Tradeflow server stopped")
		return serveErr
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().String("addr", ":8080", "Listen address (overrides TRADEFLOW_ADDR)")
	serveCmd.Flags().BoolP("quiet", "q", false, "Skip the startup banner")
}
