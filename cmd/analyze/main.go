// Command analyze runs one SMC analysis over a candle file, the exchange
// REST feed or the candle store and prints a report.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"smc-lab/internal/analysis"
	"smc-lab/internal/app"
	"smc-lab/internal/candlefile"
	"smc-lab/internal/domain"
	"smc-lab/internal/normalization"
	"smc-lab/internal/reporting"
)

var (
	configPath string
	symbol     string
	interval   string
	inputFile  string
	source     string
	startFlag  string
	endFlag    string
	lookback   time.Duration
	format     string
	outputPath string
	resampleTo string
	engineOpts *app.EngineFlags
)

var rootCmd = &cobra.Command{
	Use:   "analyze",
	Short: "Run a Smart Money Concepts analysis over one candle series",
	Long: `Analyze detects market structure (BOS/CHoCH), order blocks, fair value
gaps, equal highs/lows and premium/discount zones in an OHLC series.

Examples:
  analyze --file btc_1h.csv --symbol BTCUSDT --interval 1h
  analyze --source rest --symbol ETHUSDT --interval 15m --lookback 72h --format json
  analyze --source store --symbol BTCUSDT --interval 1m --start 2024-01-01T00:00:00Z
  analyze --file ticks_1m.json --resample 1h --disable fvg,equal`,
	SilenceUsage: true,
	RunE:         run,
}

func init() {
	fs := rootCmd.Flags()
	fs.StringVar(&configPath, "config", "", "Path to YAML config file")
	fs.StringVar(&symbol, "symbol", "", "Instrument symbol, e.g. BTCUSDT")
	fs.StringVar(&interval, "interval", "", "Candle interval, e.g. 1m, 1h")
	fs.StringVar(&inputFile, "file", "", "CSV or JSON candle file")
	fs.StringVar(&source, "source", "", "Candle source: file, rest or store (default: file when --file is set, else rest)")
	fs.StringVar(&startFlag, "start", "", "Range start (unix seconds, unix ms or RFC 3339)")
	fs.StringVar(&endFlag, "end", "", "Range end (unix seconds, unix ms or RFC 3339)")
	fs.DurationVar(&lookback, "lookback", 24*time.Hour, "Range length when --start is not set (rest source)")
	fs.StringVar(&format, "format", "markdown", "Output format: markdown, json, csv")
	fs.StringVarP(&outputPath, "output", "o", "", "Output file (default: stdout)")
	fs.StringVar(&resampleTo, "resample", "", "Aggregate input candles to this interval before analysis")
	engineOpts = app.BindEngineFlags(fs)
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

	cfg, logger, err := app.Bootstrap(ctx, "analyze", configPath)
	if err != nil {
		return err
	}
	if err := engineOpts.Apply(&cfg.Engine); err != nil {
		return err
	}
	if symbol == "" {
		return fmt.Errorf("--symbol is required")
	}
	if source == "" {
		source = "rest"
		if inputFile != "" {
			source = "file"
		}
	}

	start, end, err := timeRange()
	if err != nil {
		return err
	}

	req := analysis.Request{Series: domain.SeriesKey{Symbol: strings.ToUpper(symbol), Interval: interval}, Start: start, End: end}
	opts := analysis.Options{Config: cfg.Engine, Logger: logger}

	switch source {
	case "file":
		if inputFile == "" {
			return fmt.Errorf("--file is required for the file source")
		}
		if req.Candles, err = candlefile.Read(inputFile); err != nil {
			return fmt.Errorf("read %s: %w", inputFile, err)
		}
	case "rest":
		if interval == "" {
			return fmt.Errorf("--interval is required for the rest source")
		}
		if start == 0 {
			start = time.Now().Add(-lookback).Unix()
		}
		client := app.NewRESTClient(cfg.Feed, logger)
		if req.Candles, err = client.Backfill(ctx, req.Series, start, end); err != nil {
			return err
		}
		logger.Info().Int("candles", len(req.Candles)).Msg("fetched candles")
	case "store":
		svc, err := app.Open(ctx, cfg, logger)
		if err != nil {
			return err
		}
		defer svc.Close()
		opts.CandleStore = svc.Stores.Candles
		opts.RunStore = svc.Stores.Runs
		opts.Cache = svc.Cache
		opts.Publisher = svc.Publisher
	default:
		return fmt.Errorf("unknown source %q", source)
	}

	if err := resample(&req); err != nil {
		return err
	}

	if opts.Cache == nil {
		resultCache, closeCache, err := app.OpenCache(ctx, cfg.Redis, logger)
		if err != nil {
			return err
		}
		defer closeCache()
		pub, err := app.OpenPublisher(cfg.NATS, logger)
		if err != nil {
			return err
		}
		defer pub.Close()
		opts.Cache = resultCache
		opts.Publisher = pub
	}

	runner, err := analysis.New(opts)
	if err != nil {
		return err
	}
	out, err := runner.Analyze(ctx, req)
	if err != nil {
		return err
	}

	w := io.Writer(os.Stdout)
	if outputPath != "" {
		f, err := os.Create(outputPath)
		if err != nil {
			return err
		}
		defer f.Close()
		w = f
	}
	return render(w, out)
}

// resample aggregates supplied candles when --resample is set. The
// request interval becomes the target interval.
func resample(req *analysis.Request) error {
	if resampleTo == "" {
		return nil
	}
	if req.Candles == nil {
		return fmt.Errorf("--resample needs file or rest input")
	}
	candles, err := normalization.ResampleTo(req.Candles, resampleTo)
	if err != nil {
		return err
	}
	req.Candles = candles
	req.Series.Interval = resampleTo
	return nil
}

func timeRange() (int64, int64, error) {
	var start, end int64
	var err error
	if startFlag != "" {
		if start, err = candlefile.ParseTime(startFlag); err != nil {
			return 0, 0, fmt.Errorf("--start: %w", err)
		}
	}
	if endFlag != "" {
		if end, err = candlefile.ParseTime(endFlag); err != nil {
			return 0, 0, fmt.Errorf("--end: %w", err)
		}
	}
	if start > 0 && end > 0 && end < start {
		return 0, 0, fmt.Errorf("--end before --start")
	}
	return start, end, nil
}

func render(w io.Writer, out *analysis.Outcome) error {
	switch strings.ToLower(format) {
	case "json":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(struct {
			RunID       string      `json:"run_id"`
			Fingerprint string      `json:"fingerprint"`
			Cached      bool        `json:"cached"`
			Results     interface{} `json:"results"`
		}{out.Run.RunID, out.Run.Fingerprint, out.Cached, out.Results})
	case "csv":
		_, err := io.WriteString(w, reporting.RenderCSV(out.Results))
		return err
	case "markdown", "md":
		_, err := io.WriteString(w, reporting.RenderMarkdown(reporting.NewGenerator(nil).FromOutcome(out)))
		return err
	default:
		return fmt.Errorf("unknown format %q", format)
	}
}
