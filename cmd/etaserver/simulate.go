package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/JakeFAU/progress-eta/internal/logging"
	"github.com/JakeFAU/progress-eta/internal/simulate"
)

type simulateOptions struct {
	series      int
	total       int64
	step        int64
	interval    time.Duration
	concurrency int
	precision   int
	logLevel    string
}

func newSimulateCmd() *cobra.Command {
	opts := &simulateOptions{}
	cmd := &cobra.Command{
		Use:   "simulate",
		Short: "Replay synthetic series against a fake clock and log every snapshot",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			logger, err := logging.New(logging.Options{Development: true, Level: opts.logLevel})
			if err != nil {
				return err
			}
			defer func() { _ = logger.Sync() }()

			results, err := simulate.Run(cmd.Context(), simulate.Config{
				Series:      opts.series,
				Total:       opts.total,
				Step:        opts.step,
				Interval:    opts.interval,
				Concurrency: opts.concurrency,
				Precision:   opts.precision,
			}, logger.Named("simulate"))
			if err != nil {
				return fmt.Errorf("simulate: %w", err)
			}
			out := cmd.OutOrStdout()
			for _, res := range results {
				final := res.Final()
				fmt.Fprintf(out, "%s: %d observations, %d%% complete at %s\n",
					res.Label, len(res.Snapshots), final.PercentComplete, final.CalculatedAt.Format(time.RFC3339))
			}
			logger.Debug("simulation finished", zap.Int("series", len(results)))
			return nil
		},
	}
	f := cmd.Flags()
	f.IntVar(&opts.series, "series", 3, "number of series to simulate")
	f.Int64Var(&opts.total, "total", 100, "completion count of each series")
	f.Int64Var(&opts.step, "step", 10, "count advance per observation")
	f.DurationVar(&opts.interval, "interval", time.Second, "base spacing between observations")
	f.IntVar(&opts.concurrency, "concurrency", 0, "series run at once (0 runs all)")
	f.IntVar(&opts.precision, "precision", 2, "decimals ETAs are rounded to")
	f.StringVar(&opts.logLevel, "log-level", "info", "minimum log level")
	return cmd
}
