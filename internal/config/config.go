// Package config loads service configuration from a YAML file overlaid by
// environment variables. Command-line flags are applied by the commands.
package config

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/sethvargo/go-envconfig"
	"gopkg.in/yaml.v3"

	"smc-lab/internal/logging"
	"smc-lab/internal/smc"
)

// Config is the full service configuration.
type Config struct {
	Engine     smc.Config       `yaml:"engine"`
	Logging    LoggingConfig    `yaml:"logging" env:", prefix=LOG_"`
	Server     ServerConfig     `yaml:"server" env:", prefix=SERVER_"`
	Postgres   PostgresConfig   `yaml:"postgres" env:", prefix=POSTGRES_"`
	ClickHouse ClickHouseConfig `yaml:"clickhouse" env:", prefix=CLICKHOUSE_"`
	Redis      RedisConfig      `yaml:"redis" env:", prefix=REDIS_"`
	NATS       NATSConfig       `yaml:"nats" env:", prefix=NATS_"`
	Feed       FeedConfig       `yaml:"feed" env:", prefix=FEED_"`

	// UseMemory swaps Postgres/ClickHouse for the in-memory stores.
	UseMemory bool `yaml:"use_memory" env:"SMC_USE_MEMORY, overwrite"`
}

// LoggingConfig holds logger settings.
type LoggingConfig struct {
	Level  string `yaml:"level" env:"LEVEL, overwrite"`
	Format string `yaml:"format" env:"FORMAT, overwrite"`
}

// Options converts to logger options.
func (c LoggingConfig) Options() logging.Options {
	return logging.Options{Level: c.Level, Format: logging.Format(c.Format)}
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Addr            string        `yaml:"addr" env:"ADDR, overwrite"`
	ReadTimeout     time.Duration `yaml:"read_timeout" env:"READ_TIMEOUT, overwrite"`
	WriteTimeout    time.Duration `yaml:"write_timeout" env:"WRITE_TIMEOUT, overwrite"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" env:"SHUTDOWN_TIMEOUT, overwrite"`
	AllowedOrigins  []string      `yaml:"allowed_origins" env:"ALLOWED_ORIGINS, overwrite"`
	MaxCandles      int           `yaml:"max_candles" env:"MAX_CANDLES, overwrite"`
}

// PostgresConfig holds the analysis run store connection.
type PostgresConfig struct {
	DSN             string        `yaml:"dsn" env:"DSN, overwrite"`
	MaxConns        int32         `yaml:"max_conns" env:"MAX_CONNS, overwrite"`
	ConnectTimeout  time.Duration `yaml:"connect_timeout" env:"CONNECT_TIMEOUT, overwrite"`
	MaxConnLifetime time.Duration `yaml:"max_conn_lifetime" env:"MAX_CONN_LIFETIME, overwrite"`
}

// ClickHouseConfig holds the candle store connection. Pool size, dial
// timeout and compression go in the DSN query.
type ClickHouseConfig struct {
	DSN string `yaml:"dsn" env:"DSN, overwrite"`
}

// RedisConfig holds the result cache connection. Empty Addr disables caching.
type RedisConfig struct {
	Addr     string        `yaml:"addr" env:"ADDR, overwrite"`
	Password string        `yaml:"password" env:"PASSWORD, overwrite"`
	DB       int           `yaml:"db" env:"DB, overwrite"`
	TTL      time.Duration `yaml:"ttl" env:"TTL, overwrite"`
}

// NATSConfig holds the event publisher connection. Empty URL disables publishing.
type NATSConfig struct {
	URL           string        `yaml:"url" env:"URL, overwrite"`
	MaxReconnect  int           `yaml:"max_reconnect" env:"MAX_RECONNECT, overwrite"`
	ReconnectWait time.Duration `yaml:"reconnect_wait" env:"RECONNECT_WAIT, overwrite"`
}

// FeedConfig holds exchange candle feed settings.
type FeedConfig struct {
	BaseURL           string        `yaml:"base_url" env:"BASE_URL, overwrite"`
	StreamURL         string        `yaml:"stream_url" env:"STREAM_URL, overwrite"`
	RequestsPerSecond float64       `yaml:"requests_per_second" env:"REQUESTS_PER_SECOND, overwrite"`
	Burst             int           `yaml:"burst" env:"BURST, overwrite"`
	MaxRetries        int           `yaml:"max_retries" env:"MAX_RETRIES, overwrite"`
	Timeout           time.Duration `yaml:"timeout" env:"TIMEOUT, overwrite"`
	BreakerFailures   uint32        `yaml:"breaker_failures" env:"BREAKER_FAILURES, overwrite"`
	BreakerCooldown   time.Duration `yaml:"breaker_cooldown" env:"BREAKER_COOLDOWN, overwrite"`
}

// Default returns the configuration used when nothing is set.
func Default() Config {
	return Config{
		Engine:  smc.DefaultConfig(),
		Logging: LoggingConfig{Level: "info", Format: "json"},
		Server: ServerConfig{
			Addr:            ":8080",
			ReadTimeout:     15 * time.Second,
			WriteTimeout:    30 * time.Second,
			ShutdownTimeout: 10 * time.Second,
			AllowedOrigins:  []string{"*"},
			MaxCandles:      50_000,
		},
		Postgres: PostgresConfig{MaxConns: 8, ConnectTimeout: 5 * time.Second, MaxConnLifetime: time.Hour},
		Redis:    RedisConfig{TTL: 10 * time.Minute},
		NATS:     NATSConfig{MaxReconnect: 10, ReconnectWait: 2 * time.Second},
		Feed: FeedConfig{
			BaseURL:           "https://api.binance.com",
			StreamURL:         "wss://stream.binance.com:9443/ws",
			RequestsPerSecond: 10,
			Burst:             5,
			MaxRetries:        3,
			Timeout:           10 * time.Second,
			BreakerFailures:   5,
			BreakerCooldown:   30 * time.Second,
		},
	}
}

// Load reads path (optional) over the defaults, then applies the
// environment. A nil lookuper reads the process environment.
func Load(ctx context.Context, path string, lookuper envconfig.Lookuper) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
		if err := decodeYAML(data, &cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	}

	if lookuper == nil {
		lookuper = envconfig.OsLookuper()
	}
	if err := envconfig.ProcessWith(ctx, &envconfig.Config{
		Target:   &cfg,
		Lookuper: lookuper,
	}); err != nil {
		return nil, fmt.Errorf("process environment: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func decodeYAML(data []byte, cfg *Config) error {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	return nil
}

// Validate checks the engine parameters and the logger settings.
func (c *Config) Validate() error {
	if err := c.Engine.Validate(); err != nil {
		return err
	}
	if _, err := logging.New(logging.Options{Level: c.Logging.Level, Format: logging.Format(c.Logging.Format), Output: io.Discard}); err != nil {
		return fmt.Errorf("logging: %w", err)
	}
	if c.Server.MaxCandles <= 0 {
		return fmt.Errorf("server.max_candles must be positive, got %d", c.Server.MaxCandles)
	}
	return nil
}
