package cmd

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/JakeFAU/edgar-exhibit-archiver/internal/ledger"
)

// newReportCmd creates the 'report' subcommand, which prints a csv ledger.
func newReportCmd() *cobra.Command {
	var path string
	cmd := &cobra.Command{
		Use:   "report",
		Short: "Print the rows and totals of a csv ledger",
		RunE: func(cmd *cobra.Command, _ []string) error {
			rows, err := ledger.NewCSVStore(path).Results(cmd.Context())
			if err != nil {
				return err
			}
			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "TICKER\tCOMPANY\t10K\t10Q\tDECK\tTRANSCRIPT\tLINK")
			complete := 0
			for _, r := range rows {
				if r.Complete() {
					complete++
				}
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\t%s\n",
					r.Ticker, r.CompanyName, mark(r.Has10K), mark(r.Has10Q),
					mark(r.HasDeck), mark(r.HasTranscript), r.Link)
			}
			if err := w.Flush(); err != nil {
				return fmt.Errorf("write report: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%d tickers, %d complete\n", len(rows), complete)
			return nil
		},
	}
	cmd.Flags().StringVar(&path, "ledger", "output/results.csv", "path of the csv ledger")
	return cmd
}

func mark(b bool) string {
	if b {
		return "x"
	}
	return "-"
}
