package feed

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"smc-lab/internal/domain"
	"smc-lab/internal/logging"
	"smc-lab/internal/observability"
)

// StreamConfig configures StreamClient.
type StreamConfig struct {
	// URL is the websocket base, e.g. wss://stream.binance.com:9443/ws.
	URL string
	// ReconnectDelay is initial delay before reconnect attempt.
	ReconnectDelay time.Duration
	// MaxReconnectDelay is maximum delay between reconnect attempts.
	MaxReconnectDelay time.Duration
	// ReadTimeout is timeout for reading messages.
	ReadTimeout time.Duration
	// HandshakeTimeout bounds the websocket dial.
	HandshakeTimeout time.Duration
}

// minReconnectDelay floors the backoff so a zero delay cannot spin.
const minReconnectDelay = 10 * time.Millisecond

// DefaultStreamConfig returns default stream configuration.
func DefaultStreamConfig(url string) StreamConfig {
	return StreamConfig{
		URL:               url,
		ReconnectDelay:    1 * time.Second,
		MaxReconnectDelay: 30 * time.Second,
		ReadTimeout:       60 * time.Second,
		HandshakeTimeout:  10 * time.Second,
	}
}

// StreamClient follows the kline stream of one series and delivers
// closed candles. Reconnects with exponential backoff.
type StreamClient struct {
	config StreamConfig
	logger zerolog.Logger
}

// NewStreamClient creates a stream client.
func NewStreamClient(config StreamConfig, logger zerolog.Logger) *StreamClient {
	return &StreamClient{
		config: config,
		logger: logging.Component(logger, "feed_stream"),
	}
}

// StreamURL returns the kline stream endpoint of key.
func (c *StreamClient) StreamURL(key domain.SeriesKey) string {
	return strings.TrimRight(c.config.URL, "/") + "/" + strings.ToLower(key.Symbol) + "@kline_" + key.Interval
}

// Run streams closed candles of key into out until ctx is done.
// Candles at or before the last delivered time are dropped, so a
// reconnect never repeats a bar. Returns ctx.Err().
func (c *StreamClient) Run(ctx context.Context, key domain.SeriesKey, out chan<- domain.Candle) error {
	endpoint := c.StreamURL(key)
	delay := max(c.config.ReconnectDelay, minReconnectDelay)
	var last int64

	for {
		delivered, err := c.session(ctx, endpoint, &last, out)
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if delivered {
			delay = max(c.config.ReconnectDelay, minReconnectDelay)
		}

		observability.RecordStreamReconnect()
		c.logger.Warn().Err(err).Str("series", key.String()).Dur("delay", delay).Msg("stream disconnected, reconnecting")

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}

		delay = nextDelay(delay, c.config.MaxReconnectDelay)
	}
}

// nextDelay doubles delay, capped at limit when limit is set and floored at
// minReconnectDelay.
func nextDelay(delay, limit time.Duration) time.Duration {
	delay *= 2
	if limit > 0 {
		delay = min(delay, limit)
	}
	return max(delay, minReconnectDelay)
}

// session runs one connection. delivered reports whether any candle was sent.
func (c *StreamClient) session(ctx context.Context, endpoint string, last *int64, out chan<- domain.Candle) (bool, error) {
	dialer := websocket.Dialer{HandshakeTimeout: c.config.HandshakeTimeout}
	conn, _, err := dialer.DialContext(ctx, endpoint, nil)
	if err != nil {
		return false, fmt.Errorf("websocket dial: %w", err)
	}
	defer conn.Close()

	// unblock ReadMessage on cancellation
	stop := make(chan struct{})
	defer close(stop)
	go func() {
		select {
		case <-ctx.Done():
			conn.Close()
		case <-stop:
		}
	}()

	c.logger.Info().Str("endpoint", endpoint).Msg("stream connected")

	delivered := false
	for {
		if c.config.ReadTimeout > 0 {
			conn.SetReadDeadline(time.Now().Add(c.config.ReadTimeout))
		}
		_, msg, err := conn.ReadMessage()
		if err != nil {
			return delivered, fmt.Errorf("read: %w", err)
		}

		k, ok, err := parseStreamKline(msg)
		if err != nil {
			c.logger.Debug().Err(err).Msg("skipping malformed stream message")
			continue
		}
		if !ok || !k.closed || k.candle.Time <= *last {
			continue
		}

		select {
		case out <- k.candle:
			*last = k.candle.Time
			delivered = true
		case <-ctx.Done():
			return delivered, ctx.Err()
		}
	}
}
