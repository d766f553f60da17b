// Command server runs the HTTP API together with optional live ingestion
// and a periodic re-analysis of every stored series.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"smc-lab/internal/analysis"
	"smc-lab/internal/api"
	"smc-lab/internal/app"
	"smc-lab/internal/domain"
	"smc-lab/internal/ingestion"
	"smc-lab/internal/reporting"
	"smc-lab/internal/verification"
)

var (
	configPath      string
	analyzeInterval time.Duration
	concurrency     int
	follow          []string
	followInterval  string
	engineOpts      *app.EngineFlags
)

var rootCmd = &cobra.Command{
	Use:   "server",
	Short: "Serve SMC analysis over HTTP",
	Long: `Server exposes /health, /metrics, /status and the /v1 analysis API.

With --follow it streams closed candles for the given symbols into the
candle store. With --analyze-interval it re-analyzes every stored series
on that schedule.`,
	SilenceUsage: true,
	RunE:         run,
}

func init() {
	fs := rootCmd.Flags()
	fs.StringVar(&configPath, "config", "", "Path to YAML config file")
	fs.DurationVar(&analyzeInterval, "analyze-interval", 15*time.Minute, "Re-analysis interval for stored series (0 disables)")
	fs.IntVar(&concurrency, "concurrency", 4, "Series analyzed at once per scheduled pass")
	fs.StringSliceVar(&follow, "follow", nil, "Symbols to stream into the candle store")
	fs.StringVar(&followInterval, "follow-interval", "1m", "Interval of followed streams")
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

	cfg, logger, err := app.Bootstrap(ctx, "server", configPath)
	if err != nil {
		return err
	}
	if err := engineOpts.Apply(&cfg.Engine); err != nil {
		return err
	}

	svc, err := app.Open(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer svc.Close()

	server := api.NewServer(cfg.Server, svc.Runner, reporting.NewGenerator(svc.Stores.Runs), logger).
		WithVerifier(verification.New(svc.Stores.Candles, svc.Stores.Runs, logger))

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return server.Start()
	})

	g.Go(func() error {
		<-gctx.Done()
		logger.Info().Msg("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		return server.Stop(shutdownCtx)
	})

	if analyzeInterval > 0 {
		scheduler := analysis.NewScheduler(svc.Runner, analyzeInterval, concurrency, server.RecordBatch, logger)
		g.Go(func() error {
			return scheduler.Run(gctx)
		})
	}

	if len(follow) > 0 {
		if _, ok := domain.IntervalSeconds[followInterval]; !ok {
			return fmt.Errorf("unsupported interval %q", followInterval)
		}
		keys := make([]domain.SeriesKey, 0, len(follow))
		for _, s := range follow {
			if s = strings.ToUpper(strings.TrimSpace(s)); s != "" {
				keys = append(keys, domain.SeriesKey{Symbol: s, Interval: followInterval})
			}
		}
		ingest := ingestion.NewRunner(ingestion.RunnerOptions{
			Live:   app.NewStreamClient(cfg.Feed, logger),
			Store:  svc.Stores.Candles,
			Logger: logger,
		})
		g.Go(func() error {
			return ingest.Follow(gctx, keys)
		})
	}

	err = g.Wait()
	if err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	logger.Info().Msg("shutdown complete")
	return nil
}
