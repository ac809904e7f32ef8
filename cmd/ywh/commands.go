package main

import (
	"context"
	"fmt"
	"os"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/ad-tracker/watch-history-pipeline/internal/cache"
	"github.com/ad-tracker/watch-history-pipeline/internal/config"
	"github.com/ad-tracker/watch-history-pipeline/internal/export"
	"github.com/ad-tracker/watch-history-pipeline/internal/fetcher"
	"github.com/ad-tracker/watch-history-pipeline/internal/history"
	"github.com/ad-tracker/watch-history-pipeline/internal/keystore"
	"github.com/ad-tracker/watch-history-pipeline/internal/metrics"
	"github.com/ad-tracker/watch-history-pipeline/internal/pipeline"
	"github.com/ad-tracker/watch-history-pipeline/internal/youtube"
	"github.com/ad-tracker/watch-history-pipeline/pkg/logger"
)

func newRootCmd() *cobra.Command {
	var cfg *config.Config

	rootCmd := &cobra.Command{
		Use:           "ywh",
		Short:         "Enrich a YouTube watch-history export and build a cleaned table",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			loaded, err := config.Load()
			if err != nil {
				return fmt.Errorf("failed to load configuration: %w", err)
			}
			if err := logger.Init(loaded.Logging.Level, loaded.Logging.File); err != nil {
				return fmt.Errorf("failed to initialize logger: %w", err)
			}
			cfg = loaded
			return nil
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			_ = logger.Sync()
		},
	}

	var (
		year   int
		output string
		format string
	)

	runCmd := &cobra.Command{
		Use:   "run [watch-history.json]",
		Short: "Fetch metadata, merge and clean one year of watch history",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if cmd.Flags().Changed("year") {
				cfg.History.Year = year
			}
			if output != "" {
				cfg.Output.File = output
			}
			if format != "" {
				cfg.Output.Format = format
			}

			res, err := runPipeline(cmd.Context(), cfg, args[0], logger.L())
			if err != nil {
				logger.L().Error("pipeline failed", zap.Error(err))
				return err
			}

			fmt.Fprintf(cmd.OutOrStdout(), "wrote %d rows to %s\n", len(res.Rows), cfg.Output.File)
			return nil
		},
	}
	runCmd.Flags().IntVar(&year, "year", 0, "calendar year to process (default from config)")
	runCmd.Flags().StringVarP(&output, "output", "o", "", "output file (default from config)")
	runCmd.Flags().StringVar(&format, "format", "", "output format: csv or json")

	keysCmd := &cobra.Command{
		Use:   "keys",
		Short: "Show which configured API keys are usable today",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			store := keystore.Open(cfg.Storage.KeyStateFile, logger.L())
			printKeyStatus(cmd, store.Status(cfg.YouTube.APIKeys))
			return nil
		},
	}

	rootCmd.AddCommand(runCmd, keysCmd)
	return rootCmd
}

func printKeyStatus(cmd *cobra.Command, statuses []keystore.KeyStatus) {
	out := cmd.OutOrStdout()
	if len(statuses) == 0 {
		fmt.Fprintln(out, "no API keys configured")
		return
	}
	for i, st := range statuses {
		state := "usable"
		if !st.Usable {
			state = "exhausted"
		}
		last := st.LastExhausted
		if last == "" {
			last = "never"
		}
		fmt.Fprintf(out, "%d\t%s\t%s\tlast exhausted: %s\n", i+1, st.HashPrefix, state, last)
	}
}

// runPipeline wires the components for one run and writes the output and
// metrics files.
func runPipeline(ctx context.Context, cfg *config.Config, inputPath string, log *zap.Logger) (*pipeline.Result, error) {
	if err := export.ValidateFormat(cfg.Output.Format); err != nil {
		return nil, err
	}

	in, err := os.Open(inputPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open watch history: %w", err)
	}
	entries, err := history.Decode(in)
	in.Close()
	if err != nil {
		return nil, err
	}

	client, err := youtube.NewClient(ctx, youtube.Config{
		Endpoint: cfg.YouTube.Endpoint,
		Timeout:  cfg.YouTube.Timeout,
	})
	if err != nil {
		return nil, err
	}

	registry := prometheus.NewRegistry()
	m := metrics.New(registry)

	store := keystore.Open(cfg.Storage.KeyStateFile, log)
	metaCache := cache.Load(cfg.Storage.CacheFile, log)
	f := fetcher.New(client, store, cfg.YouTube.APIKeys, cfg.YouTube.BatchSize, log, m)

	opts := pipeline.DefaultOptions()
	if cfg.Cleaning.LiveThresholdSeconds > 0 {
		opts.LiveThresholdSeconds = cfg.Cleaning.LiveThresholdSeconds
	}
	if cfg.Cleaning.MaxDurationSeconds > 0 {
		opts.MaxDurationSeconds = cfg.Cleaning.MaxDurationSeconds
	}
	runner := pipeline.NewRunner(f, metaCache, cfg.History.Year, opts, log, m)

	res, runErr := runner.Run(ctx, entries)

	// Metrics are written even for a failed run so exhaustions are visible.
	if cfg.Metrics.File != "" {
		if err := prometheus.WriteToTextfile(cfg.Metrics.File, registry); err != nil {
			log.Warn("failed to write metrics file", zap.String("path", cfg.Metrics.File), zap.Error(err))
		}
	}

	if runErr != nil {
		return nil, runErr
	}

	if err := writeOutput(cfg.Output, res); err != nil {
		return nil, err
	}
	return res, nil
}

func writeOutput(cfg config.OutputConfig, res *pipeline.Result) error {
	out, err := os.Create(cfg.File)
	if err != nil {
		return fmt.Errorf("failed to create output file: %w", err)
	}
	if err := export.Write(out, res.Rows, cfg.Format); err != nil {
		out.Close()
		return err
	}
	if err := out.Close(); err != nil {
		return fmt.Errorf("failed to close output file: %w", err)
	}
	return nil
}
