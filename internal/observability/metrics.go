// Package observability provides Prometheus metrics for the router.
package observability

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "npi_router"

// Metrics holds every series the router exports. A nil *Metrics is valid
// and records nothing.
type Metrics struct {
	// Venue metrics
	VenueQuotes  *prometheus.CounterVec
	VenueLatency *prometheus.HistogramVec
	VenueSkipped *prometheus.CounterVec

	// Oracle metrics
	OracleOutcomes *prometheus.CounterVec

	// Decision metrics
	Decisions        *prometheus.CounterVec
	ImprovementBps   prometheus.Histogram
	DecisionDuration prometheus.Histogram

	// Telemetry metrics
	TelemetryDropped *prometheus.CounterVec
	TelemetryErrors  *prometheus.CounterVec

	gatherer prometheus.Gatherer
}

// NewMetrics registers all series on reg. Passing a fresh
// prometheus.NewRegistry keeps tests isolated from the global registry.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)

	m := &Metrics{
		VenueQuotes: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "venue",
			Name:      "quotes_total",
			Help:      "Venue quote attempts by outcome (ok or failure reason)",
		}, []string{"venue", "outcome"}),
		VenueLatency: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "venue",
			Name:      "quote_latency_seconds",
			Help:      "Venue quote latency in seconds",
			Buckets:   []float64{0.025, 0.05, 0.1, 0.25, 0.5, 1, 2, 5},
		}, []string{"venue"}),
		VenueSkipped: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "venue",
			Name:      "skipped_total",
			Help:      "Venues skipped before quoting by reason",
		}, []string{"venue", "reason"}),

		OracleOutcomes: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "oracle",
			Name:      "outcomes_total",
			Help:      "Reference price outcomes (primary, fallback, single_source, divergence, unavailable)",
		}, []string{"outcome"}),

		Decisions: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "decision",
			Name:      "total",
			Help:      "Routing decisions by outcome",
		}, []string{"outcome"}),
		ImprovementBps: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "decision",
			Name:      "improvement_bps",
			Help:      "Net price improvement over baseline in basis points",
			Buckets:   []float64{0, 1, 5, 10, 25, 50, 100, 250, 500},
		}),
		DecisionDuration: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "decision",
			Name:      "duration_seconds",
			Help:      "End-to-end quote decision duration in seconds",
			Buckets:   prometheus.DefBuckets,
		}),

		TelemetryDropped: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "telemetry",
			Name:      "dropped_total",
			Help:      "Telemetry records dropped because the queue was full",
		}, []string{"kind"}),
		TelemetryErrors: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "telemetry",
			Name:      "sink_errors_total",
			Help:      "Telemetry sink write failures",
		}, []string{"sink"}),
	}
	if g, ok := reg.(prometheus.Gatherer); ok {
		m.gatherer = g
	}
	return m
}

// Handler serves the registry the metrics were registered on, or the
// default gatherer when that registry cannot be gathered.
func (m *Metrics) Handler() http.Handler {
	if m == nil || m.gatherer == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(m.gatherer, promhttp.HandlerOpts{})
}

func (m *Metrics) ObserveVenue(venue, outcome string, latency time.Duration) {
	if m == nil {
		return
	}
	m.VenueQuotes.WithLabelValues(venue, outcome).Inc()
	m.VenueLatency.WithLabelValues(venue).Observe(latency.Seconds())
}

func (m *Metrics) VenueSkip(venue, reason string) {
	if m == nil {
		return
	}
	m.VenueSkipped.WithLabelValues(venue, reason).Inc()
}

func (m *Metrics) ObserveOracle(outcome string) {
	if m == nil {
		return
	}
	m.OracleOutcomes.WithLabelValues(outcome).Inc()
}

func (m *Metrics) ObserveDecision(outcome string, improvementBps uint64, took time.Duration) {
	if m == nil {
		return
	}
	m.Decisions.WithLabelValues(outcome).Inc()
	m.DecisionDuration.Observe(took.Seconds())
	if outcome == "ok" {
		m.ImprovementBps.Observe(float64(improvementBps))
	}
}

func (m *Metrics) TelemetryDrop(kind string) {
	if m == nil {
		return
	}
	m.TelemetryDropped.WithLabelValues(kind).Inc()
}

func (m *Metrics) TelemetryError(sink string) {
	if m == nil {
		return
	}
	m.TelemetryErrors.WithLabelValues(sink).Inc()
}
