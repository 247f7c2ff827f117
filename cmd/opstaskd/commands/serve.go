package commands

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/jholhewres/opstaskd/internal/account"
	"github.com/jholhewres/opstaskd/internal/config"
	"github.com/jholhewres/opstaskd/internal/engine"
	"github.com/jholhewres/opstaskd/internal/httpapi"
	"github.com/jholhewres/opstaskd/internal/runner"
	"github.com/jholhewres/opstaskd/internal/taskstore"
)

// newServeCmd builds the `opstaskd serve` command that starts the
// engine and control plane and blocks until a shutdown signal.
func newServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the scheduler engine and HTTP control plane",
		RunE:  runServe,
	}

	cmd.Flags().String("unix-socket", "", "bind a Unix domain socket instead of TCP")
	cmd.Flags().String("db", "", "path to the SQLite task store")
	cmd.Flags().String("base-path", "", "base path prefix stripped from incoming requests")
	cmd.Flags().String("addr", "", "TCP listen address")
	cmd.Flags().Bool("enable-ipv6", false, "accept IPv6 connections on the TCP listener")

	return cmd
}

func runServe(cmd *cobra.Command, _ []string) error {
	// Best-effort: a .env file in the working directory is optional,
	// loaded before config/env resolution so SCHEDULER_* vars it sets
	// are visible to config.Load.
	_ = godotenv.Load()

	configPath, _ := cmd.Root().PersistentFlags().GetString("config")
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	cfg = applyServeFlags(cmd, cfg).Effective()

	verbose, _ := cmd.Root().PersistentFlags().GetBool("verbose")
	if verbose {
		cfg.Logging.Level = "debug"
	}
	logger := config.NewLogger(cfg.Logging)

	store, err := taskstore.Open(cfg.DBPath)
	if err != nil {
		return fmt.Errorf("opening task store: %w", err)
	}
	defer store.Close()

	accounts := account.NewDirectory()
	validator := taskstore.NewValidator(accounts)
	r := runner.New()

	eng := engine.New(store, r, logger, engine.Config{
		TaskTimeout:      cfg.Timeouts.Task,
		ConditionTimeout: cfg.Timeouts.Condition,
	})

	srv := httpapi.New(store, validator, accounts, eng, logger, httpapi.Config{
		Addr:       cfg.HTTP.Addr,
		UnixSocket: cfg.HTTP.UnixSocket,
		BasePath:   cfg.HTTP.BasePath,
		EnableIPv6: cfg.HTTP.EnableIPv6,
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := eng.Start(ctx); err != nil {
		return fmt.Errorf("starting scheduler engine: %w", err)
	}
	if err := srv.Start(ctx); err != nil {
		return fmt.Errorf("starting control plane: %w", err)
	}

	logger.Info("opstaskd running", "db", cfg.DBPath)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	logger.Info("shutdown signal received, stopping")

	done := make(chan struct{})
	go func() {
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer shutdownCancel()
		if err := srv.Stop(shutdownCtx); err != nil {
			logger.Warn("control plane shutdown error", "error", err)
		}
		if err := eng.Stop(context.Background()); err != nil {
			logger.Warn("engine shutdown error", "error", err)
		}
		close(done)
	}()

	select {
	case <-done:
		logger.Info("shutdown complete")
	case <-time.After(20 * time.Second):
		logger.Warn("shutdown timed out, forcing exit")
	}

	return nil
}

func applyServeFlags(cmd *cobra.Command, cfg config.Config) config.Config {
	if v, _ := cmd.Flags().GetString("db"); v != "" {
		cfg.DBPath = v
	}
	if v, _ := cmd.Flags().GetString("unix-socket"); v != "" {
		cfg.HTTP.UnixSocket = v
	}
	if v, _ := cmd.Flags().GetString("base-path"); v != "" {
		cfg.HTTP.BasePath = v
	}
	if v, _ := cmd.Flags().GetString("addr"); v != "" {
		cfg.HTTP.Addr = v
	}
	if v, _ := cmd.Flags().GetBool("enable-ipv6"); v {
		cfg.HTTP.EnableIPv6 = true
	}
	return cfg
}
