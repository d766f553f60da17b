package feed

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/rs/zerolog"
	"github.com/sony/gobreaker"
	"github.com/tidwall/gjson"
	"golang.org/x/time/rate"

	"smc-lab/internal/domain"
	"smc-lab/internal/logging"
	"smc-lab/internal/observability"
)

// Default configuration values.
const (
	DefaultTimeout     = 10 * time.Second
	DefaultMaxRetries  = 3
	DefaultRetryDelay  = 500 * time.Millisecond
	DefaultMaxDelay    = 10 * time.Second
	DefaultBackoffMult = 2.0
	MaxKlinesPerPage   = 1000
)

// RESTOptions configures RESTClient. Zero values take the defaults.
type RESTOptions struct {
	BaseURL           string
	HTTPClient        *http.Client
	RequestsPerSecond float64
	Burst             int
	MaxRetries        int
	RetryDelay        time.Duration
	MaxDelay          time.Duration
	BreakerFailures   uint32
	BreakerCooldown   time.Duration
	Logger            zerolog.Logger
}

// RESTClient fetches klines from a Binance-compatible REST API.
type RESTClient struct {
	baseURL    string
	client     *http.Client
	limiter    *rate.Limiter
	breaker    *gobreaker.CircuitBreaker
	maxRetries int
	retryDelay time.Duration
	maxDelay   time.Duration
	logger     zerolog.Logger
}

// NewRESTClient creates a client.
func NewRESTClient(opts RESTOptions) *RESTClient {
	if opts.HTTPClient == nil {
		opts.HTTPClient = &http.Client{Timeout: DefaultTimeout}
	}
	if opts.RequestsPerSecond <= 0 {
		opts.RequestsPerSecond = 10
	}
	if opts.Burst <= 0 {
		opts.Burst = 1
	}
	if opts.MaxRetries < 0 {
		opts.MaxRetries = 0
	}
	if opts.RetryDelay <= 0 {
		opts.RetryDelay = DefaultRetryDelay
	}
	if opts.MaxDelay <= 0 {
		opts.MaxDelay = DefaultMaxDelay
	}
	if opts.BreakerFailures == 0 {
		opts.BreakerFailures = 5
	}
	if opts.BreakerCooldown <= 0 {
		opts.BreakerCooldown = 30 * time.Second
	}

	logger := logging.Component(opts.Logger, "feed_rest")
	failures := opts.BreakerFailures

	return &RESTClient{
		baseURL: opts.BaseURL,
		client:  opts.HTTPClient,
		limiter: rate.NewLimiter(rate.Limit(opts.RequestsPerSecond), opts.Burst),
		breaker: gobreaker.NewCircuitBreaker(gobreaker.Settings{
			Name:        "klines",
			MaxRequests: 1,
			Timeout:     opts.BreakerCooldown,
			ReadyToTrip: func(counts gobreaker.Counts) bool {
				return counts.ConsecutiveFailures >= failures
			},
			IsSuccessful: func(err error) bool {
				// a rejected request says nothing about exchange health
				return err == nil || errors.Is(err, ErrRequestRejected)
			},
			OnStateChange: func(name string, from, to gobreaker.State) {
				logger.Warn().Str("breaker", name).Str("from", from.String()).Str("to", to.String()).Msg("circuit breaker state change")
			},
		}),
		maxRetries: opts.MaxRetries,
		retryDelay: opts.RetryDelay,
		maxDelay:   opts.MaxDelay,
		logger:     logger,
	}
}

// Klines fetches up to limit candles of key. start and end are unix
// seconds; zero leaves the bound open.
func (c *RESTClient) Klines(ctx context.Context, key domain.SeriesKey, start, end int64, limit int) ([]domain.Candle, error) {
	if _, ok := domain.IntervalSeconds[key.Interval]; !ok {
		return nil, fmt.Errorf("%w: unsupported interval %q", ErrRequestRejected, key.Interval)
	}

	q := url.Values{}
	q.Set("symbol", key.Symbol)
	q.Set("interval", key.Interval)
	if start > 0 {
		q.Set("startTime", strconv.FormatInt(start*1000, 10))
	}
	if end > 0 {
		q.Set("endTime", strconv.FormatInt(end*1000, 10))
	}
	if limit > 0 {
		q.Set("limit", strconv.Itoa(min(limit, MaxKlinesPerPage)))
	}

	body, err := c.get(ctx, "/api/v3/klines?"+q.Encode())
	if err != nil {
		return nil, err
	}
	return parseKlines(body)
}

// Backfill pages through [start, end] and returns every candle in order.
func (c *RESTClient) Backfill(ctx context.Context, key domain.SeriesKey, start, end int64) ([]domain.Candle, error) {
	step, ok := domain.IntervalSeconds[key.Interval]
	if !ok {
		return nil, fmt.Errorf("%w: unsupported interval %q", ErrRequestRejected, key.Interval)
	}

	var all []domain.Candle
	for from := start; end == 0 || from <= end; {
		page, err := c.Klines(ctx, key, from, end, MaxKlinesPerPage)
		if err != nil {
			return nil, fmt.Errorf("backfill %s from %d: %w", key, from, err)
		}
		if len(page) == 0 {
			break
		}
		all = append(all, page...)

		next := page[len(page)-1].Time + step
		if len(page) < MaxKlinesPerPage || next <= from {
			break
		}
		from = next
	}

	c.logger.Debug().Str("series", key.String()).Int("candles", len(all)).Msg("backfill complete")
	return all, nil
}

// get performs a GET with rate limiting, circuit breaking, retries and
// exponential backoff.
func (c *RESTClient) get(ctx context.Context, path string) ([]byte, error) {
	delay := c.retryDelay
	var lastErr error

	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(delay):
			}
			delay = min(time.Duration(float64(delay)*DefaultBackoffMult), c.maxDelay)
		}

		if err := c.limiter.Wait(ctx); err != nil {
			return nil, err
		}

		started := time.Now()
		out, err := c.breaker.Execute(func() (interface{}, error) {
			return c.do(ctx, path)
		})
		observability.RecordFeedRequest("rest", outcome(err), time.Since(started).Seconds())

		switch {
		case err == nil:
			return out.([]byte), nil
		case errors.Is(err, gobreaker.ErrOpenState), errors.Is(err, gobreaker.ErrTooManyRequests):
			return nil, fmt.Errorf("%w: %v", ErrCircuitOpen, err)
		case errors.Is(err, ErrRequestRejected), ctx.Err() != nil:
			return nil, err
		}

		lastErr = err
		c.logger.Debug().Err(err).Int("attempt", attempt+1).Str("path", path).Msg("klines request failed")
	}

	return nil, fmt.Errorf("max retries exceeded: %w", lastErr)
}

func (c *RESTClient) do(ctx context.Context, path string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: create request: %v", ErrRequestRejected, err)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("http request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	switch {
	case resp.StatusCode == http.StatusOK:
		return body, nil
	case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode == http.StatusTeapot:
		return nil, fmt.Errorf("rate limited (%d)", resp.StatusCode)
	case resp.StatusCode >= 400 && resp.StatusCode < 500:
		msg := gjson.GetBytes(body, "msg").String()
		if msg == "" {
			msg = string(body)
		}
		return nil, fmt.Errorf("%w: status %d: %s", ErrRequestRejected, resp.StatusCode, msg)
	default:
		return nil, fmt.Errorf("unexpected status %d", resp.StatusCode)
	}
}

func outcome(err error) string {
	switch {
	case err == nil:
		return "success"
	case errors.Is(err, gobreaker.ErrOpenState), errors.Is(err, gobreaker.ErrTooManyRequests):
		return "circuit_open"
	case errors.Is(err, ErrRequestRejected):
		return "rejected"
	default:
		return "error"
	}
}
