package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/JakeFAU/progress-eta/internal/config"
)

// rootOptions holds flags shared by every subcommand.
type rootOptions struct {
	configFile string
}

// newRootCmd creates the root command and its subcommands.
func newRootCmd() *cobra.Command {
	opts := &rootOptions{}
	cmd := &cobra.Command{
		Use:   "etaserver",
		Short: "Percent-complete and time-to-complete estimates for counted processes.",
		Long: `etaserver tracks long-running counted processes. Callers start a series
with a total, report counts as work progresses, and receive the percent
complete plus instantaneous and averaged time-to-complete estimates.`,
		SilenceUsage: true,
	}
	cmd.PersistentFlags().StringVar(&opts.configFile, "config", "", "config file (env ETA_* overrides apply either way)")

	cmd.AddCommand(newServeCmd(opts))
	cmd.AddCommand(newSimulateCmd())
	return cmd
}

func (o *rootOptions) loadConfig() (config.Config, error) {
	cfg, err := config.Load(o.configFile)
	if err != nil {
		return config.Config{}, fmt.Errorf("load config: %w", err)
	}
	return cfg, nil
}
