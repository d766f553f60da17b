// Package messaging publishes analysis output to NATS.
package messaging

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog"

	"smc-lab/internal/domain"
	"smc-lab/internal/logging"
)

// Summary is published once per analysis run.
type Summary struct {
	RunID          string       `json:"run_id"`
	Symbol         string       `json:"symbol"`
	Interval       string       `json:"interval"`
	CandleCount    int          `json:"candle_count"`
	SwingTrend     domain.Trend `json:"swing_trend"`
	InternalTrend  domain.Trend `json:"internal_trend"`
	StructureCount int          `json:"structure_count"`
	ActiveBlocks   int          `json:"active_order_blocks"`
	OpenGaps       int          `json:"open_fair_value_gaps"`
	Zone           domain.Zone  `json:"zone,omitempty"`
	Cached         bool         `json:"cached"`
}

// StructureMessage wraps one structure event with its series.
type StructureMessage struct {
	RunID    string                `json:"run_id"`
	Symbol   string                `json:"symbol"`
	Interval string                `json:"interval"`
	Event    domain.StructureEvent `json:"event"`
}

// Publisher emits analysis output.
type Publisher interface {
	PublishStructures(ctx context.Context, runID string, key domain.SeriesKey, events []domain.StructureEvent) error
	PublishSummary(ctx context.Context, key domain.SeriesKey, s Summary) error
	Close() error
}

// StructureSubject returns smc.<symbol>.<interval>.structure.
func StructureSubject(key domain.SeriesKey) string {
	return subject(key, "structure")
}

// SummarySubject returns smc.<symbol>.<interval>.summary.
func SummarySubject(key domain.SeriesKey) string {
	return subject(key, "summary")
}

// subject tokens may not contain '.', '*', '>' or whitespace.
func subject(key domain.SeriesKey, kind string) string {
	clean := strings.NewReplacer(".", "_", "*", "_", ">", "_", " ", "_")
	return fmt.Sprintf("smc.%s.%s.%s", clean.Replace(key.Symbol), clean.Replace(key.Interval), kind)
}

// conn is the part of *nats.Conn the publisher needs.
type conn interface {
	Publish(subj string, data []byte) error
	FlushWithContext(ctx context.Context) error
	Drain() error
}

// NATSPublisher publishes JSON messages on core NATS subjects.
type NATSPublisher struct {
	nc     conn
	logger zerolog.Logger
}

// NATSOptions configures Connect.
type NATSOptions struct {
	URL           string
	MaxReconnect  int
	ReconnectWait time.Duration
}

// Connect dials NATS and returns a publisher.
func Connect(opts NATSOptions, logger zerolog.Logger) (*NATSPublisher, error) {
	logger = logging.Component(logger, "nats")

	nc, err := nats.Connect(opts.URL,
		nats.Name("smc-lab"),
		nats.MaxReconnects(opts.MaxReconnect),
		nats.ReconnectWait(opts.ReconnectWait),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			logger.Warn().Err(err).Msg("nats disconnected")
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			logger.Info().Str("url", nc.ConnectedUrl()).Msg("nats reconnected")
		}),
		nats.ClosedHandler(func(*nats.Conn) {
			logger.Info().Msg("nats connection closed")
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("connect to nats: %w", err)
	}

	return &NATSPublisher{nc: nc, logger: logger}, nil
}

// PublishStructures publishes one message per event in order, then flushes.
func (p *NATSPublisher) PublishStructures(ctx context.Context, runID string, key domain.SeriesKey, events []domain.StructureEvent) error {
	if len(events) == 0 {
		return nil
	}

	subj := StructureSubject(key)
	for _, ev := range events {
		data, err := json.Marshal(StructureMessage{RunID: runID, Symbol: key.Symbol, Interval: key.Interval, Event: ev})
		if err != nil {
			return fmt.Errorf("encode structure event: %w", err)
		}
		if err := p.nc.Publish(subj, data); err != nil {
			return fmt.Errorf("publish %s: %w", subj, err)
		}
	}

	if err := p.nc.FlushWithContext(ctx); err != nil {
		return fmt.Errorf("flush %s: %w", subj, err)
	}
	p.logger.Debug().Str("subject", subj).Int("events", len(events)).Msg("published structure events")
	return nil
}

// PublishSummary publishes the run summary.
func (p *NATSPublisher) PublishSummary(ctx context.Context, key domain.SeriesKey, s Summary) error {
	data, err := json.Marshal(s)
	if err != nil {
		return fmt.Errorf("encode summary: %w", err)
	}

	subj := SummarySubject(key)
	if err := p.nc.Publish(subj, data); err != nil {
		return fmt.Errorf("publish %s: %w", subj, err)
	}
	if err := p.nc.FlushWithContext(ctx); err != nil {
		return fmt.Errorf("flush %s: %w", subj, err)
	}
	return nil
}

// Close drains pending messages and closes the connection.
func (p *NATSPublisher) Close() error {
	return p.nc.Drain()
}

// NopPublisher discards everything.
type NopPublisher struct{}

func (NopPublisher) PublishStructures(context.Context, string, domain.SeriesKey, []domain.StructureEvent) error {
	return nil
}
func (NopPublisher) PublishSummary(context.Context, domain.SeriesKey, Summary) error { return nil }
func (NopPublisher) Close() error                                                    { return nil }

var (
	_ Publisher = (*NATSPublisher)(nil)
	_ Publisher = NopPublisher{}
)
