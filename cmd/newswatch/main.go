package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap/zapcore"

	"github.com/samvad-hq/newswatch/internal/app"
	"github.com/samvad-hq/newswatch/internal/config"
	"github.com/samvad-hq/newswatch/internal/logger"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "newswatch failed: %v\n", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "newswatch",
		Short:         "Watch news listings and announce new articles",
		Long:          "newswatch polls configured news listings on an interval, remembers what it has already seen and notifies the configured channels about new articles.",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runLoop()
		},
	}

	root.AddCommand(&cobra.Command{
		Use:   "once",
		Short: "Run a single cycle over all sources and exit",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runOnce(cmd)
		},
	})

	root.AddCommand(&cobra.Command{
		Use:   "recent <source-id>",
		Short: "Print the remembered items of one source as JSON",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return printRecent(cmd, args[0])
		},
	})

	return root
}

func setup() (*config.Config, *logger.ZapLogger, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, fmt.Errorf("load config: %w", err)
	}

	log, err := logger.Init(cfg)
	if err != nil {
		return nil, nil, fmt.Errorf("init logger: %w", err)
	}
	return cfg, log, nil
}

func runLoop() error {
	cfg, log, err := setup()
	if err != nil {
		return err
	}
	defer logger.Close()

	log.InfoObj("newswatch starting", "config", cfg)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	watcher, err := app.NewWatcher(ctx, cfg, log)
	if err != nil {
		log.ErrorObj("failed to initialize watcher", "error", err)
		return err
	}

	if err := watcher.Run(ctx); err != nil {
		return fmt.Errorf("watcher run: %w", err)
	}
	return nil
}

func runOnce(cmd *cobra.Command) error {
	cfg, log, err := setup()
	if err != nil {
		return err
	}
	defer logger.Close()

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// The status server is for the long-running loop only.
	cfg.HTTPAddr = ""
	watcher, err := app.NewWatcher(ctx, cfg, log)
	if err != nil {
		log.ErrorObj("failed to initialize watcher", "error", err)
		return err
	}

	summary, err := watcher.RunOnce(ctx)
	if err != nil {
		return fmt.Errorf("watcher run once: %w", err)
	}
	return writeJSON(cmd, summary)
}

func printRecent(cmd *cobra.Command, sourceID string) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	// Keep stdout clean for the JSON document.
	log := logger.New(cfg.LogLevel, zapcore.AddSync(os.Stderr))
	defer log.Sync()

	items, err := app.LoadRecent(cmd.Context(), cfg, sourceID, log)
	if err != nil {
		return err
	}
	return writeJSON(cmd, map[string]any{
		"source": sourceID,
		"items":  items,
	})
}

func writeJSON(cmd *cobra.Command, v any) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
