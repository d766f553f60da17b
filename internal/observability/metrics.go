// Package observability provides Prometheus metrics for monitoring.
package observability

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics for the application.
type Metrics struct {
	// Analysis metrics
	AnalysisRunsTotal *prometheus.CounterVec
	AnalysisDuration  prometheus.Histogram
	CandlesProcessed  prometheus.Counter
	EventsEmitted     *prometheus.CounterVec

	// Cache metrics
	CacheHits   prometheus.Counter
	CacheMisses prometheus.Counter

	// Feed metrics
	FeedRequests       *prometheus.CounterVec
	FeedRequestLatency *prometheus.HistogramVec
	StreamReconnects   prometheus.Counter
	CandlesIngested    *prometheus.CounterVec
	PublishErrors      prometheus.Counter
	LastSuccessfulRun  prometheus.Gauge
	LastIngestedCandle *prometheus.GaugeVec
}

// NewMetrics creates a Metrics instance registered on reg.
// A nil reg uses the default registerer.
func NewMetrics(namespace string, reg prometheus.Registerer) *Metrics {
	if namespace == "" {
		namespace = "smc_lab"
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	f := promauto.With(reg)

	return &Metrics{
		AnalysisRunsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "analysis",
			Name:      "runs_total",
			Help:      "Total number of analysis runs by status",
		}, []string{"status"}),
		AnalysisDuration: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "analysis",
			Name:      "duration_seconds",
			Help:      "Engine run duration in seconds",
			Buckets:   []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5},
		}),
		CandlesProcessed: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "analysis",
			Name:      "candles_processed_total",
			Help:      "Total number of candles fed through the engine",
		}),
		EventsEmitted: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "analysis",
			Name:      "events_emitted_total",
			Help:      "Total number of engine outputs by kind",
		}, []string{"kind"}),

		CacheHits: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "cache",
			Name:      "hits_total",
			Help:      "Total number of result cache hits",
		}),
		CacheMisses: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "cache",
			Name:      "misses_total",
			Help:      "Total number of result cache misses",
		}),

		FeedRequests: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "feed",
			Name:      "requests_total",
			Help:      "Total number of feed requests by source and outcome",
		}, []string{"source", "outcome"}),
		FeedRequestLatency: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "feed",
			Name:      "request_latency_seconds",
			Help:      "Feed request latency in seconds",
			Buckets:   prometheus.DefBuckets,
		}, []string{"source"}),
		StreamReconnects: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "feed",
			Name:      "stream_reconnects_total",
			Help:      "Total number of websocket reconnect attempts",
		}),
		CandlesIngested: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "feed",
			Name:      "candles_ingested_total",
			Help:      "Total number of candles written to the store by series",
		}, []string{"series"}),
		PublishErrors: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "messaging",
			Name:      "publish_errors_total",
			Help:      "Total number of failed event publishes",
		}),

		LastSuccessfulRun: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "health",
			Name:      "last_successful_run_timestamp",
			Help:      "Unix timestamp of last successful analysis run",
		}),
		LastIngestedCandle: f.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "health",
			Name:      "last_ingested_candle_timestamp",
			Help:      "Open time of the newest ingested candle by series",
		}, []string{"series"}),
	}
}

// Handler returns an HTTP handler for the /metrics endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}

// DefaultMetrics is the default metrics instance.
var DefaultMetrics = NewMetrics("", nil)

// RecordAnalysisRun records a finished run. status is success, cached or error.
func RecordAnalysisRun(status string, seconds float64, candles int) {
	DefaultMetrics.AnalysisRunsTotal.WithLabelValues(status).Inc()
	if status == "error" {
		return
	}
	DefaultMetrics.CandlesProcessed.Add(float64(candles))
	if status == "success" {
		DefaultMetrics.AnalysisDuration.Observe(seconds)
	}
}

// RecordEvents adds n engine outputs of kind (structure, order_block, fvg, equal_level, swing_point).
func RecordEvents(kind string, n int) {
	if n > 0 {
		DefaultMetrics.EventsEmitted.WithLabelValues(kind).Add(float64(n))
	}
}

// RecordCacheLookup records a cache hit or miss.
func RecordCacheLookup(hit bool) {
	if hit {
		DefaultMetrics.CacheHits.Inc()
		return
	}
	DefaultMetrics.CacheMisses.Inc()
}

// RecordFeedRequest records one feed request.
func RecordFeedRequest(source, outcome string, seconds float64) {
	DefaultMetrics.FeedRequests.WithLabelValues(source, outcome).Inc()
	DefaultMetrics.FeedRequestLatency.WithLabelValues(source).Observe(seconds)
}

// RecordStreamReconnect increments the reconnect counter.
func RecordStreamReconnect() {
	DefaultMetrics.StreamReconnects.Inc()
}

// RecordIngested records candles written for series and the newest open time.
func RecordIngested(series string, n int, latest int64) {
	DefaultMetrics.CandlesIngested.WithLabelValues(series).Add(float64(n))
	if latest > 0 {
		DefaultMetrics.LastIngestedCandle.WithLabelValues(series).Set(float64(latest))
	}
}

// RecordPublishError increments the publish error counter.
func RecordPublishError() {
	DefaultMetrics.PublishErrors.Inc()
}

// MarkRunSucceeded sets the last successful run gauge.
func MarkRunSucceeded(unix int64) {
	DefaultMetrics.LastSuccessfulRun.Set(float64(unix))
}
