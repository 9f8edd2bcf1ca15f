// Command cleanse cleans the client experiment datasets and writes the
// cleaned tables to PostgreSQL.
package main

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/David-Botos/experiment-cleaning/pkg/audit"
	"github.com/David-Botos/experiment-cleaning/pkg/cleaner"
	"github.com/David-Botos/experiment-cleaning/pkg/config"
	"github.com/David-Botos/experiment-cleaning/pkg/connector"
	"github.com/David-Botos/experiment-cleaning/pkg/pipeline"
)

type options struct {
	envFile    string
	jsonOutput bool
	verbose    bool
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	opts := &options{}

	cmd := &cobra.Command{
		Use:   "cleanse",
		Short: "Clean the client experiment datasets",
		Long: `cleanse loads the clients, web trace and experiment roster tables,
discards incomplete clients, removes duplicate trace events, labels clients
without a variation, normalizes types and writes the cleaned tables to the
target schema.

Configuration is read from the environment (and the --env-file, if present).`,
		SilenceUsage: true,
		Args:         cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd, opts)
		},
	}

	cmd.Flags().StringVar(&opts.envFile, "env-file", ".env", "environment file to load before reading configuration")
	cmd.Flags().BoolVar(&opts.jsonOutput, "json", false, "print run metrics as JSON instead of a text report")
	cmd.Flags().BoolVarP(&opts.verbose, "verbose", "v", false, "enable debug logging")

	return cmd
}

func run(cmd *cobra.Command, opts *options) error {
	if err := godotenv.Load(opts.envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("failed to load %s: %w", opts.envFile, err)
	}

	cfg, err := config.LoadConfig()
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	logger, err := newLogger(cfg.LogLevel, cfg.LogFormat, opts.verbose)
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()
	undo := zap.ReplaceGlobals(logger)
	defer undo()

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	metrics, runErr := cleanse(ctx, cfg, logger)
	if metrics != nil {
		if err := printMetrics(cmd, metrics, opts.jsonOutput); err != nil {
			logger.Warn("Failed to print run metrics", zap.Error(err))
		}
	}
	return runErr
}

func cleanse(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*pipeline.RunMetrics, error) {
	factory := connector.NewConnectorFactory(cfg, logger)
	source, target, err := factory.CreateAllConnectors(ctx)
	if err != nil {
		return nil, err
	}
	defer func() {
		if source != connector.DatabaseConnector(target) {
			source.Close()
		}
		target.Close()
	}()

	if err := source.Validate(ctx); err != nil {
		return nil, fmt.Errorf("source validation failed: %w", err)
	}
	if source != connector.DatabaseConnector(target) {
		if err := target.Validate(ctx); err != nil {
			return nil, fmt.Errorf("target validation failed: %w", err)
		}
	}

	datasetCleaner, err := cleaner.NewDatasetCleaner(cfg.Policy, logger)
	if err != nil {
		return nil, err
	}

	var recorder pipeline.Recorder
	if cfg.RecordAudit {
		rec, err := audit.NewRecorder(target.DB(), cfg.TargetSchema, logger)
		if err != nil {
			return nil, err
		}
		recorder = rec
	}

	runner, err := pipeline.NewRunner(source, target, recorder, datasetCleaner, cfg, logger)
	if err != nil {
		return nil, err
	}

	return runner.Run(ctx)
}

func printMetrics(cmd *cobra.Command, metrics *pipeline.RunMetrics, asJSON bool) error {
	out := cmd.OutOrStdout()
	if !asJSON {
		_, err := fmt.Fprint(out, metrics.GenerateReport())
		return err
	}

	data, err := metrics.ToJSON()
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(out, string(data))
	return err
}
