// Package cmd defines the CLI commands of the archiver executable.
package cmd

import (
	"context"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/JakeFAU/edgar-exhibit-archiver/internal/app"
	"github.com/JakeFAU/edgar-exhibit-archiver/internal/batch"
	"github.com/JakeFAU/edgar-exhibit-archiver/internal/config"
	"github.com/JakeFAU/edgar-exhibit-archiver/internal/logging"
)

var (
	cfgFile string
	envFile string
)

// App is the part of the service container the commands use.
type App interface {
	Runner() *batch.Runner
	Close() error
}

// newApp is the application factory. Tests replace it.
var newApp = func(ctx context.Context, cfg config.Config, logger *zap.Logger) (App, error) {
	return app.New(ctx, cfg, logger)
}

// newRootCmd creates the root command and its subcommands.
func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "archiver",
		Short: "Archives annual, quarterly, and earnings filings for a list of tickers.",
		Long: `archiver reads a table of tickers, looks each one up in the public
filings registry, and publishes the latest annual report, quarterly report,
earnings slide deck, and earnings call transcript as PDFs. Every processed
ticker gets one ledger row, so an interrupted run can be resumed.`,
		SilenceUsage: true,
	}

	cmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (YAML)")
	cmd.PersistentFlags().StringVar(&envFile, "env-file", "", "dotenv file to export before reading config (default ./.env if present)")

	cmd.AddCommand(newRunCmd())
	cmd.AddCommand(newReportCmd())

	return cmd
}

// Execute is the main entry point.
func Execute() {
	logging.InitLogger()

	if err := newRootCmd().Execute(); err != nil {
		logging.L.Fatal("Command execution failed", zap.Error(err))
	}
}
