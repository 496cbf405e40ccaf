package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"pabloScope/internal/config"
	"pabloScope/internal/feed"
	"pabloScope/internal/processor"
	"pabloScope/internal/storage"
	"pabloScope/internal/storage/postgres"
)

func main() {
	root := &cobra.Command{
		Use:          "processor",
		Short:        "Pablo pool event processor",
		SilenceUsage: true,
	}

	root.PersistentFlags().String("config", "", "config file path")

	runCmd := &cobra.Command{
		Use:   "run",
		Short: "Process a decoded event feed in chain order",
		RunE:  runProcessor,
	}

	runCmd.Flags().String("in", "", "input decoded events JSONL")
	runCmd.Flags().String("store", config.StorePostgres, "store backend (postgres, memory)")
	runCmd.Flags().String("pg-dsn", "", "Postgres DSN")
	runCmd.Flags().String("checkpoint", "./data/checkpoint.json", "checkpoint file path")
	runCmd.Flags().Bool("checkpoint-enabled", true, "enable checkpointing")
	runCmd.Flags().Int("max-retries", 5, "maximum store connect attempts")
	runCmd.Flags().Duration("retry-backoff", 0, "initial store connect backoff")
	runCmd.Flags().String("log-level", "info", "log level (debug, info, warn, error)")

	root.AddCommand(runCmd)

	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

func runProcessor(cmd *cobra.Command, _ []string) error {
	cfgFile, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(cfgFile, cmd.Flags())
	if err != nil {
		return err
	}

	logger, err := newLogger(cfg.LogLevel)
	if err != nil {
		return err
	}
	defer logger.Sync()

	if cfg.Input == "" {
		return fmt.Errorf("input path is required")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var store storage.Store
	switch cfg.Store {
	case config.StoreMemory:
		store = storage.NewMemory()
	default:
		if cfg.PGDSN == "" {
			return fmt.Errorf("pg dsn is required")
		}
		var pgStore *postgres.Store
		err := feed.Retry(ctx, cfg.MaxRetries, cfg.RetryBackoff, func(ctx context.Context) error {
			var connectErr error
			pgStore, connectErr = postgres.NewStore(ctx, cfg.PGDSN)
			return connectErr
		})
		if err != nil {
			return fmt.Errorf("connect store: %w", err)
		}
		defer pgStore.Close()
		store = pgStore
	}

	runner := feed.NewRunner(feed.RunConfig{
		Input:             cfg.Input,
		CheckpointPath:    cfg.Checkpoint,
		CheckpointEnabled: cfg.CheckpointEnabled,
	}, processor.New(store, logger), logger)

	logger.Info("processor start",
		zap.String("in", cfg.Input),
		zap.String("store", cfg.Store),
		zap.Bool("checkpoint_enabled", cfg.CheckpointEnabled),
		zap.String("checkpoint", cfg.Checkpoint),
	)

	return runner.Run(ctx)
}

func newLogger(level string) (*zap.Logger, error) {
	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevel()
	if err := cfg.Level.UnmarshalText([]byte(level)); err != nil {
		return nil, err
	}

	cfg.EncoderConfig.TimeKey = "ts"
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	return cfg.Build()
}
