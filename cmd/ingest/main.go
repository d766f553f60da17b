// Command ingest backfills exchange candles into the candle store and can
// keep following the live kline stream.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"smc-lab/internal/analysis"
	"smc-lab/internal/app"
	"smc-lab/internal/candlefile"
	"smc-lab/internal/domain"
	"smc-lab/internal/ingestion"
)

var (
	configPath  string
	symbols     []string
	interval    string
	startFlag   string
	endFlag     string
	lookback    time.Duration
	follow      bool
	analyze     bool
	concurrency int
)

var rootCmd = &cobra.Command{
	Use:   "ingest",
	Short: "Backfill exchange candles into the candle store",
	Long: `Ingest fetches historical klines over REST, stores the bars newer than
what the store already holds and, with --follow, keeps appending closed
bars from the websocket stream.

Examples:
  ingest --symbols BTCUSDT,ETHUSDT --interval 1h --lookback 720h
  ingest --symbols BTCUSDT --interval 1m --follow --analyze`,
	SilenceUsage: true,
	RunE:         run,
}

func init() {
	fs := rootCmd.Flags()
	fs.StringVar(&configPath, "config", "", "Path to YAML config file")
	fs.StringSliceVar(&symbols, "symbols", nil, "Comma-separated symbols, e.g. BTCUSDT,ETHUSDT")
	fs.StringVar(&interval, "interval", "1h", "Candle interval")
	fs.StringVar(&startFlag, "start", "", "Backfill start (unix seconds, unix ms or RFC 3339)")
	fs.StringVar(&endFlag, "end", "", "Backfill end (default: now)")
	fs.DurationVar(&lookback, "lookback", 7*24*time.Hour, "Backfill length when --start is not set")
	fs.BoolVar(&follow, "follow", false, "Keep streaming closed candles after the backfill")
	fs.BoolVar(&analyze, "analyze", false, "Run an analysis after the backfill and on every followed candle")
	fs.IntVar(&concurrency, "concurrency", 4, "Series fetched or analyzed at once")
	_ = rootCmd.MarkFlagRequired("symbols")
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

	cfg, logger, err := app.Bootstrap(ctx, "ingest", configPath)
	if err != nil {
		return err
	}
	if _, ok := domain.IntervalSeconds[interval]; !ok {
		return fmt.Errorf("unsupported interval %q", interval)
	}
	keys := seriesKeys(symbols, interval)
	if len(keys) == 0 {
		return fmt.Errorf("--symbols is empty")
	}

	start, end, err := timeRange()
	if err != nil {
		return err
	}

	svc, err := app.Open(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer svc.Close()

	var hook ingestion.CandleHook
	if analyze {
		hook = analyzeHook(svc.Runner, logger)
	}
	runner := ingestion.NewRunner(ingestion.RunnerOptions{
		History: app.NewRESTClient(cfg.Feed, logger),
		Live:    app.NewStreamClient(cfg.Feed, logger),
		Store:   svc.Stores.Candles,
		OnStore: hook,
		Logger:  logger,
	})

	total, err := runner.BackfillAll(ctx, keys, start, end, concurrency)
	if err != nil {
		return err
	}
	logger.Info().Int("series", len(keys)).Int("inserted", total).Msg("backfill finished")

	if analyze {
		reqs := make([]analysis.Request, len(keys))
		for i, k := range keys {
			reqs[i] = analysis.Request{Series: k}
		}
		results, err := svc.Runner.AnalyzeBatch(ctx, reqs, concurrency)
		if err != nil {
			return err
		}
		for _, res := range results {
			logOutcome(logger, res.Series, res.Outcome, res.Err)
		}
	}

	if !follow {
		return nil
	}
	logger.Info().Strs("series", keyStrings(keys)).Msg("following live candles")
	return runner.Follow(ctx, keys)
}

func analyzeHook(r *analysis.Runner, logger zerolog.Logger) ingestion.CandleHook {
	return func(ctx context.Context, key domain.SeriesKey, _ domain.Candle) {
		out, err := r.Analyze(ctx, analysis.Request{Series: key})
		logOutcome(logger, key, out, err)
	}
}

func logOutcome(logger zerolog.Logger, key domain.SeriesKey, out *analysis.Outcome, err error) {
	if err != nil {
		logger.Error().Err(err).Str("series", key.String()).Msg("analysis failed")
		return
	}
	logger.Info().
		Str("series", key.String()).
		Str("run_id", out.Run.RunID).
		Str("swing_trend", string(out.Run.SwingTrend)).
		Int("structures", out.Run.StructureCount).
		Int("order_blocks", out.Run.OrderBlockCount).
		Bool("cached", out.Cached).
		Msg("analysis complete")
}

func timeRange() (int64, int64, error) {
	end := time.Now().Unix()
	if endFlag != "" {
		t, err := candlefile.ParseTime(endFlag)
		if err != nil {
			return 0, 0, fmt.Errorf("--end: %w", err)
		}
		end = t
	}
	start := end - int64(lookback/time.Second)
	if startFlag != "" {
		t, err := candlefile.ParseTime(startFlag)
		if err != nil {
			return 0, 0, fmt.Errorf("--start: %w", err)
		}
		start = t
	}
	if end < start {
		return 0, 0, fmt.Errorf("--end before --start")
	}
	return start, end, nil
}

func seriesKeys(symbols []string, interval string) []domain.SeriesKey {
	seen := make(map[string]bool)
	var keys []domain.SeriesKey
	for _, s := range symbols {
		s = strings.ToUpper(strings.TrimSpace(s))
		if s == "" || seen[s] {
			continue
		}
		seen[s] = true
		keys = append(keys, domain.SeriesKey{Symbol: s, Interval: interval})
	}
	return keys
}

func keyStrings(keys []domain.SeriesKey) []string {
	out := make([]string, len(keys))
	for i, k := range keys {
		out[i] = k.String()
	}
	return out
}
