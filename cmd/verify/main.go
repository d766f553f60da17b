// Command verify replays stored analysis runs against the candle store and
// reports whether each one still reproduces.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"smc-lab/internal/app"
	"smc-lab/internal/domain"
	"smc-lab/internal/verification"
)

var (
	configPath string
	runID      string
	symbol     string
	interval   string
	limit      int
	outputJSON bool
)

var rootCmd = &cobra.Command{
	Use:   "verify",
	Short: "Check that stored analysis runs reproduce from stored candles",
	Long: `Verify recomputes persisted runs from the candle store and compares the
fingerprint, trends and every result section with what was stored.

Examples:
  verify --run-id 3f0c...
  verify --symbol BTCUSDT --interval 1h --limit 20 --json`,
	SilenceUsage: true,
	RunE:         run,
}

func init() {
	fs := rootCmd.Flags()
	fs.StringVar(&configPath, "config", "", "Path to YAML config file")
	fs.StringVar(&runID, "run-id", "", "Verify a single run")
	fs.StringVar(&symbol, "symbol", "", "Verify runs of this symbol")
	fs.StringVar(&interval, "interval", "", "Interval of --symbol")
	fs.IntVar(&limit, "limit", 10, "Newest runs to verify per series (0 = all)")
	fs.BoolVar(&outputJSON, "json", false, "Output as JSON")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run(_ *cobra.Command, _ []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, logger, err := app.Bootstrap(ctx, "verify", configPath)
	if err != nil {
		return err
	}
	if runID == "" && (symbol == "" || interval == "") {
		return errors.New("--run-id or --symbol with --interval is required")
	}

	stores, closeStores, err := app.OpenStores(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer closeStores()

	v := verification.New(stores.Candles, stores.Runs, logger)

	var report *verification.Report
	if runID != "" {
		res, err := v.VerifyRun(ctx, runID)
		if err != nil {
			return err
		}
		report = &verification.Report{TotalRuns: 1, Results: []verification.Result{*res}}
		if res.Match {
			report.MatchedRuns = 1
		} else {
			report.DivergentRuns = 1
		}
	} else {
		key := domain.SeriesKey{Symbol: strings.ToUpper(symbol), Interval: interval}
		if report, err = v.VerifySeries(ctx, key, limit); err != nil {
			return err
		}
	}

	if outputJSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		if err := enc.Encode(report); err != nil {
			return err
		}
	} else {
		printReport(report)
	}

	if report.DivergentRuns > 0 {
		return fmt.Errorf("%d of %d runs diverge", report.DivergentRuns, report.TotalRuns)
	}
	return nil
}

func printReport(r *verification.Report) {
	for _, res := range r.Results {
		status := "OK"
		if !res.Match {
			status = "DIVERGED"
		}
		fmt.Printf("%-9s %s %s\n", status, res.RunID, res.Series)
		for _, d := range res.Divergences {
			fmt.Printf("  %s: stored=%v replayed=%v\n", d.Field, d.Expected, d.Actual)
		}
	}
	fmt.Printf("\nverified=%d matched=%d diverged=%d skipped=%d\n",
		r.TotalRuns, r.MatchedRuns, r.DivergentRuns, r.SkippedRuns)
}
