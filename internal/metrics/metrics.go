// Package metrics records per-request outcomes into a bounded history
// and aggregates them into totals, percentile response times, and
// per-host/per-status/per-error breakdowns. Spec §4.12. Generalized
// from internal/observability/metrics.go's atomic-counter design: the
// counters stay (and still back the Prometheus exposition endpoint),
// but alongside them a bounded, time-retained history of individual
// requests now supports percentile and breakdown queries the
// counter-only design could not answer.
package metrics

import (
	"net/http"
	"sync"
	"time"

	"github.com/montanaflynn/stats"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Record is one completed request, mirroring the tuple the spec names:
// (url, method, status, response_time, size, error?).
type Record struct {
	URL          string
	Method       string
	Host         string
	Status       int
	ResponseTime time.Duration
	Size         int64
	Err          error
	Timestamp    time.Time
}

// Config configures a Collector. The zero value is not usable; start
// from DefaultConfig.
type Config struct {
	HistorySize    int
	RetentionHours float64
}

// DefaultConfig mirrors web_fetch's metrics defaults: 10,000-entry
// bounded history, no time-based retention.
func DefaultConfig() Config {
	return Config{HistorySize: 10000, RetentionHours: 0}
}

// Percentiles holds response-time percentiles computed over the
// current (bounded) history sample.
type Percentiles struct {
	P50 time.Duration
	P90 time.Duration
	P95 time.Duration
	P99 time.Duration
}

// Aggregate is a point-in-time summary of the recorded history.
type Aggregate struct {
	Total             int64
	Succeeded         int64
	SuccessRate       float64
	Percentiles       Percentiles
	PerHost           map[string]int64
	PerStatus         map[int]int64
	PerError          map[string]int64
	RequestsPerSecond float64
}

// Collector records Records into a bounded, age-evicted history and
// exposes aggregate views plus a Prometheus text endpoint.
type Collector struct {
	cfg Config

	mu      sync.Mutex
	history []Record

	registry        *prometheus.Registry
	requestsTotal   *prometheus.CounterVec
	responseLatency prometheus.Histogram
	bytesTotal      prometheus.Counter
}

// New constructs a Collector with its own Prometheus registry.
func New(cfg Config) *Collector {
	if cfg.HistorySize <= 0 {
		cfg.HistorySize = DefaultConfig().HistorySize
	}

	registry := prometheus.NewRegistry()
	c := &Collector{
		cfg:      cfg,
		registry: registry,
		requestsTotal: promauto.With(registry).NewCounterVec(prometheus.CounterOpts{
			Name: "fetchkit_requests_total",
			Help: "Total requests made, labeled by host and status class.",
		}, []string{"host", "status_class"}),
		responseLatency: promauto.With(registry).NewHistogram(prometheus.HistogramOpts{
			Name:    "fetchkit_response_latency_seconds",
			Help:    "Response latency in seconds.",
			Buckets: prometheus.DefBuckets,
		}),
		bytesTotal: promauto.With(registry).NewCounter(prometheus.CounterOpts{
			Name: "fetchkit_bytes_downloaded_total",
			Help: "Total response bytes downloaded.",
		}),
	}
	return c
}

// Record appends rec to the history, evicting the oldest entry past
// HistorySize and any entry older than RetentionHours, and updates the
// Prometheus counters.
func (c *Collector) Record(rec Record) {
	if rec.Timestamp.IsZero() {
		rec.Timestamp = time.Now()
	}

	c.mu.Lock()
	c.history = append(c.history, rec)
	if len(c.history) > c.cfg.HistorySize {
		c.history = c.history[len(c.history)-c.cfg.HistorySize:]
	}
	if c.cfg.RetentionHours > 0 {
		cutoff := time.Now().Add(-time.Duration(c.cfg.RetentionHours * float64(time.Hour)))
		c.history = evictOlderThan(c.history, cutoff)
	}
	c.mu.Unlock()

	c.requestsTotal.WithLabelValues(rec.Host, statusClass(rec.Status)).Inc()
	c.responseLatency.Observe(rec.ResponseTime.Seconds())
	if rec.Size > 0 {
		c.bytesTotal.Add(float64(rec.Size))
	}
}

func evictOlderThan(history []Record, cutoff time.Time) []Record {
	kept := history[:0:0]
	for _, r := range history {
		if r.Timestamp.After(cutoff) {
			kept = append(kept, r)
		}
	}
	return kept
}

func statusClass(status int) string {
	switch {
	case status == 0:
		return "error"
	case status < 300:
		return "2xx"
	case status < 400:
		return "3xx"
	case status < 500:
		return "4xx"
	default:
		return "5xx"
	}
}

// Snapshot computes an Aggregate over the current history.
func (c *Collector) Snapshot() Aggregate {
	c.mu.Lock()
	history := make([]Record, len(c.history))
	copy(history, c.history)
	c.mu.Unlock()

	agg := Aggregate{
		Total:     int64(len(history)),
		PerHost:   make(map[string]int64),
		PerStatus: make(map[int]int64),
		PerError:  make(map[string]int64),
	}
	if len(history) == 0 {
		return agg
	}

	latencies := make([]float64, 0, len(history))
	var oldest, newest time.Time

	for i, r := range history {
		if r.Err == nil && r.Status > 0 && r.Status < 400 {
			agg.Succeeded++
		}
		if r.Host != "" {
			agg.PerHost[r.Host]++
		}
		if r.Status > 0 {
			agg.PerStatus[r.Status]++
		}
		if r.Err != nil {
			agg.PerError[r.Err.Error()]++
		}
		latencies = append(latencies, r.ResponseTime.Seconds())

		if i == 0 || r.Timestamp.Before(oldest) {
			oldest = r.Timestamp
		}
		if i == 0 || r.Timestamp.After(newest) {
			newest = r.Timestamp
		}
	}

	agg.SuccessRate = float64(agg.Succeeded) / float64(agg.Total)
	agg.Percentiles = computePercentiles(latencies)

	if span := newest.Sub(oldest).Seconds(); span > 0 {
		agg.RequestsPerSecond = float64(agg.Total) / span
	}

	return agg
}

func computePercentiles(latenciesSeconds []float64) Percentiles {
	p := func(pct float64) time.Duration {
		v, err := stats.Percentile(latenciesSeconds, pct)
		if err != nil {
			return 0
		}
		return time.Duration(v * float64(time.Second))
	}
	return Percentiles{
		P50: p(50),
		P90: p(90),
		P95: p(95),
		P99: p(99),
	}
}

// Handler returns an http.Handler serving Prometheus text exposition
// format for this Collector's registry.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{})
}
