// Package main provides the entry point for the incident worker.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/goccy/go-json"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/Meta-project2/RAG-Complaint-2nd/internal/config"
	dbgorm "github.com/Meta-project2/RAG-Complaint-2nd/internal/db/gorm"
	"github.com/Meta-project2/RAG-Complaint-2nd/internal/worker"
)

var Version = "dev"

// shutdownTimeout bounds graceful shutdown after a signal.
const shutdownTimeout = 30 * time.Second

type options struct {
	configPath  string
	logLevel    string
	logJSON     bool
	skipMigrate bool
	bootstrap   bool
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	opts := &options{}

	root := &cobra.Command{
		Use:           "worker",
		Short:         "Complaint incident deduplication and clustering worker",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&opts.configPath, "config", config.DefaultPath, "path to the YAML config file")
	root.PersistentFlags().StringVar(&opts.logLevel, "log-level", "", "log level (overrides config)")
	root.PersistentFlags().BoolVar(&opts.logJSON, "log-json", false, "write JSON logs instead of console output")

	runCmd := &cobra.Command{
		Use:   "run",
		Short: "Run passes on an interval until interrupted",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runWorker(cmd.Context(), opts)
		},
	}
	runCmd.Flags().BoolVar(&opts.skipMigrate, "skip-migrate", false, "do not apply migrations on startup")

	onceCmd := &cobra.Command{
		Use:   "once",
		Short: "Run a single pass and print its report",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runOnce(cmd.Context(), opts)
		},
	}
	onceCmd.Flags().BoolVar(&opts.skipMigrate, "skip-migrate", false, "do not apply migrations on startup")
	onceCmd.Flags().BoolVar(&opts.bootstrap, "bootstrap", false, "cluster the whole unassigned backlog with the text level enabled")

	migrateCmd := &cobra.Command{
		Use:   "migrate",
		Short: "Apply database migrations and exit",
		RunE: func(_ *cobra.Command, _ []string) error {
			return runMigrate(opts)
		},
	}

	versionCmd := &cobra.Command{
		Use:   "version",
		Short: "Print the worker version",
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintln(cmd.OutOrStdout(), Version)
		},
	}

	root.AddCommand(runCmd, onceCmd, migrateCmd, versionCmd)
	return root
}

// setup loads and validates the config and configures the global logger.
func setup(opts *options) (*config.Config, zerolog.Logger, error) {
	cfg, err := config.Load(opts.configPath)
	if err != nil {
		return nil, log.Logger, err
	}
	if opts.logLevel != "" {
		cfg.LogLevel = opts.logLevel
	}
	if opts.bootstrap {
		cfg.Scheduler.BatchLimit = 0
		cfg.Scheduler.PassTimeout = 0
		cfg.Cluster.Text.Enabled = true
	}
	if err := cfg.Validate(); err != nil {
		return nil, log.Logger, fmt.Errorf("invalid config: %w", err)
	}

	level, _ := zerolog.ParseLevel(cfg.LogLevel)
	zerolog.SetGlobalLevel(level)
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	if !opts.logJSON {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	}
	return cfg, log.Logger, nil
}

func runWorker(ctx context.Context, opts *options) error {
	cfg, logger, err := setup(opts)
	if err != nil {
		return report(err)
	}

	logger.Info().
		Str("version", Version).
		Str("config", opts.configPath).
		Msg("Starting incident worker")

	svc, err := worker.NewService(cfg, Version, logger)
	if err != nil {
		return report(err)
	}
	if !opts.skipMigrate {
		if err := svc.Migrate(); err != nil {
			_ = svc.Shutdown(context.Background())
			return report(fmt.Errorf("migrate: %w", err))
		}
	}

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	runErr := svc.Start(ctx)
	if runErr == nil {
		logger.Info().Msg("Received shutdown signal")
	}

	// Graceful shutdown with timeout
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := svc.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("Shutdown error")
	}

	return report(runErr)
}

func runOnce(ctx context.Context, opts *options) error {
	cfg, logger, err := setup(opts)
	if err != nil {
		return report(err)
	}

	svc, err := worker.NewService(cfg, Version, logger)
	if err != nil {
		return report(err)
	}
	defer func() { _ = svc.Shutdown(context.Background()) }()

	if !opts.skipMigrate {
		if err := svc.Migrate(); err != nil {
			return report(fmt.Errorf("migrate: %w", err))
		}
	}

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pass, passErr := svc.RunOnce(ctx)
	if pass != nil {
		out, err := json.MarshalIndent(pass, "", "  ")
		if err != nil {
			return report(err)
		}
		fmt.Println(string(out))
	}
	return report(passErr)
}

func runMigrate(opts *options) error {
	cfg, logger, err := setup(opts)
	if err != nil {
		return report(err)
	}

	store, err := dbgorm.NewStore(cfg.StoreConfig())
	if err != nil {
		return report(err)
	}
	defer func() { _ = store.Close() }()

	if err := store.Migrate(); err != nil {
		return report(fmt.Errorf("migrate: %w", err))
	}
	logger.Info().Msg("Migrations applied")
	return nil
}

// report logs a command failure before it reaches cobra, which runs silenced.
func report(err error) error {
	if err != nil {
		log.Error().Err(err).Msg("Command failed")
	}
	return err
}
