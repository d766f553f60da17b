// Package app wires configured backends into the services the commands run.
package app

import (
	"context"
	"fmt"
	"net/http"

	"github.com/go-redis/redis/v8"
	"github.com/rs/zerolog"

	"smc-lab/internal/analysis"
	"smc-lab/internal/cache"
	"smc-lab/internal/config"
	"smc-lab/internal/feed"
	"smc-lab/internal/messaging"
	"smc-lab/internal/storage"
	chstore "smc-lab/internal/storage/clickhouse"
	"smc-lab/internal/storage/memory"
	"smc-lab/internal/storage/migrations"
	pgstore "smc-lab/internal/storage/postgres"
)

// Stores holds the candle and run stores.
type Stores struct {
	Candles storage.CandleStore
	Runs    storage.AnalysisRunStore
}

// Services is everything a command needs. Close releases all connections.
type Services struct {
	Stores    *Stores
	Cache     cache.ResultCache
	Publisher messaging.Publisher
	Runner    *analysis.Runner

	closers []func()
}

// Close releases connections in reverse order of opening.
func (s *Services) Close() {
	for i := len(s.closers) - 1; i >= 0; i-- {
		s.closers[i]()
	}
	s.closers = nil
}

// Open connects every configured backend and builds the runner.
func Open(ctx context.Context, cfg *config.Config, logger zerolog.Logger) (*Services, error) {
	svc := &Services{}

	stores, closeStores, err := OpenStores(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}
	svc.Stores = stores
	svc.closers = append(svc.closers, closeStores)

	resultCache, closeCache, err := OpenCache(ctx, cfg.Redis, logger)
	if err != nil {
		svc.Close()
		return nil, err
	}
	svc.Cache = resultCache
	svc.closers = append(svc.closers, closeCache)

	pub, err := OpenPublisher(cfg.NATS, logger)
	if err != nil {
		svc.Close()
		return nil, err
	}
	svc.Publisher = pub
	svc.closers = append(svc.closers, func() { pub.Close() })

	runner, err := analysis.New(analysis.Options{
		CandleStore: stores.Candles,
		RunStore:    stores.Runs,
		Cache:       resultCache,
		Publisher:   pub,
		Config:      cfg.Engine,
		Logger:      logger,
	})
	if err != nil {
		svc.Close()
		return nil, err
	}
	svc.Runner = runner
	return svc, nil
}

// OpenStores returns memory stores when cfg.UseMemory is set, otherwise
// ClickHouse candles and Postgres runs with migrations applied.
func OpenStores(ctx context.Context, cfg *config.Config, logger zerolog.Logger) (*Stores, func(), error) {
	if cfg.UseMemory {
		logger.Info().Msg("using in-memory stores")
		return &Stores{
			Candles: memory.NewCandleStore(),
			Runs:    memory.NewAnalysisRunStore(),
		}, func() {}, nil
	}

	if cfg.Postgres.DSN == "" || cfg.ClickHouse.DSN == "" {
		return nil, nil, fmt.Errorf("postgres and clickhouse DSNs are required (set SMC_USE_MEMORY=true for in-memory storage)")
	}

	// PostgreSQL
	pool, err := pgstore.NewPool(ctx, cfg.Postgres.DSN, pgstore.PoolOptions{
		MaxConns:        cfg.Postgres.MaxConns,
		ConnectTimeout:  cfg.Postgres.ConnectTimeout,
		MaxConnLifetime: cfg.Postgres.MaxConnLifetime,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("connect to postgres: %w", err)
	}
	if err := migrations.RunPostgresMigrations(ctx, pool); err != nil {
		pool.Close()
		return nil, nil, fmt.Errorf("postgres migrations: %w", err)
	}

	// ClickHouse
	chConn, err := migrations.RunClickhouseMigrations(ctx, cfg.ClickHouse.DSN)
	if err != nil {
		pool.Close()
		return nil, nil, fmt.Errorf("clickhouse migrations: %w", err)
	}

	stores := &Stores{
		Candles: chstore.NewCandleStore(chConn),
		Runs:    pgstore.NewAnalysisRunStore(pool),
	}
	cleanup := func() {
		chConn.Close()
		pool.Close()
	}
	return stores, cleanup, nil
}

// OpenCache returns a Redis cache, or NopCache when no address is set.
func OpenCache(ctx context.Context, cfg config.RedisConfig, logger zerolog.Logger) (cache.ResultCache, func(), error) {
	if cfg.Addr == "" {
		return cache.NopCache{}, func() {}, nil
	}

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, nil, fmt.Errorf("connect to redis: %w", err)
	}
	logger.Info().Str("addr", cfg.Addr).Dur("ttl", cfg.TTL).Msg("result cache enabled")
	return cache.NewRedisCache(client, cfg.TTL), func() { client.Close() }, nil
}

// OpenPublisher returns a NATS publisher, or NopPublisher when no URL is set.
func OpenPublisher(cfg config.NATSConfig, logger zerolog.Logger) (messaging.Publisher, error) {
	if cfg.URL == "" {
		return messaging.NopPublisher{}, nil
	}
	pub, err := messaging.Connect(messaging.NATSOptions{
		URL:           cfg.URL,
		MaxReconnect:  cfg.MaxReconnect,
		ReconnectWait: cfg.ReconnectWait,
	}, logger)
	if err != nil {
		return nil, err
	}
	logger.Info().Str("url", cfg.URL).Msg("event publishing enabled")
	return pub, nil
}

// NewRESTClient builds the kline REST client.
func NewRESTClient(cfg config.FeedConfig, logger zerolog.Logger) *feed.RESTClient {
	return feed.NewRESTClient(feed.RESTOptions{
		BaseURL:           cfg.BaseURL,
		HTTPClient:        &http.Client{Timeout: cfg.Timeout},
		RequestsPerSecond: cfg.RequestsPerSecond,
		Burst:             cfg.Burst,
		MaxRetries:        cfg.MaxRetries,
		BreakerFailures:   cfg.BreakerFailures,
		BreakerCooldown:   cfg.BreakerCooldown,
		Logger:            logger,
	})
}

// NewStreamClient builds the kline stream client.
func NewStreamClient(cfg config.FeedConfig, logger zerolog.Logger) *feed.StreamClient {
	return feed.NewStreamClient(feed.DefaultStreamConfig(cfg.StreamURL), logger)
}
