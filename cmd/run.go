package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/JakeFAU/edgar-exhibit-archiver/internal/config"
	"github.com/JakeFAU/edgar-exhibit-archiver/internal/input"
	"github.com/JakeFAU/edgar-exhibit-archiver/internal/logging"
	"github.com/JakeFAU/edgar-exhibit-archiver/internal/server"
)

// newRunCmd creates the 'run' subcommand, which processes one ticker table.
func newRunCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Archive filings for every ticker in a CSV table",
		Long: `Processes the tickers of --tickers-csv in order. Each ticker's
artifacts are written under --output-dir and published to the configured
storage, and its outcome is appended to the ledger. With --resume, tickers
already in the ledger are skipped; without it the ledger starts fresh.`,
		RunE: runArchive,
	}
	flags := cmd.Flags()
	flags.String("tickers-csv", "", "CSV with a ticker column and an optional company_name column")
	flags.String("output-dir", "output", "directory for converted artifacts and the csv ledger")
	flags.String("result-csv", "results.csv", "ledger file name inside the output directory")
	flags.Bool("resume", false, "skip tickers already recorded in the ledger")
	flags.String("metrics-addr", "", "serve /metrics, /healthz, and /progress on this address")
	return cmd
}

func runArchive(cmd *cobra.Command, _ []string) error {
	if err := config.LoadEnvFile(envFile); err != nil {
		return err
	}
	cfg, err := config.Load(cfgFile, cmd.Flags())
	if err != nil {
		return err
	}
	logger, err := logging.New(cfg.Logging.Development)
	if err != nil {
		return fmt.Errorf("logger init failed: %w", err)
	}
	logging.Replace(logger)

	if cfg.Run.TickersCSV == "" {
		return &config.ConfigurationError{Key: "run.tickers_csv", Reason: "must be set (--tickers-csv)"}
	}
	rows, err := input.ReadFile(cfg.Run.TickersCSV)
	if err != nil {
		return err
	}
	logger.Info("ticker table loaded", zap.String("path", cfg.Run.TickersCSV), zap.Int("rows", len(rows)))

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	appInstance, err := newApp(ctx, cfg, logger)
	if err != nil {
		return fmt.Errorf("failed to initialize application services: %w", err)
	}
	defer func() {
		if cerr := appInstance.Close(); cerr != nil {
			logger.Warn("Failed to close application services", zap.Error(cerr))
		}
	}()

	runner := appInstance.Runner()

	if cfg.Metrics.Addr != "" {
		srvCtx, cancel := context.WithCancel(ctx)
		done := make(chan struct{})
		go func() {
			defer close(done)
			srv := server.New(func() any { return runner.Progress() }, logger.Named("server"))
			if err := srv.Serve(srvCtx, cfg.Metrics.Addr); err != nil {
				logger.Error("status server failed", zap.Error(err))
			}
		}()
		defer func() {
			cancel()
			<-done
		}()
	}

	summary, err := runner.Run(ctx, rows)
	if err != nil && !errors.Is(err, context.Canceled) {
		return fmt.Errorf("run archive: %w", err)
	}
	fmt.Fprintf(cmd.OutOrStdout(),
		"processed=%d complete=%d partial=%d degraded=%d failed=%d skipped=%d blank=%d\n",
		summary.Processed, summary.Complete, summary.Partial, summary.Degraded,
		summary.Failed, summary.Skipped, summary.Blank)
	if err != nil {
		logger.Warn("run interrupted; rerun with --resume to continue", zap.Error(err))
	}
	return nil
}
