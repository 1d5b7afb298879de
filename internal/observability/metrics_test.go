package observability

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetrics_Record(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetrics(reg)

	m.ObserveVenue("orca", "ok", 120*time.Millisecond)
	m.ObserveVenue("orca", "timeout", 2*time.Second)
	m.VenueSkip("book", "breaker")
	m.ObserveOracle("fallback")
	m.ObserveDecision("ok", 100, 300*time.Millisecond)
	m.ObserveDecision("no_route", 0, time.Second)
	m.TelemetryDrop("decision")

	assert.Equal(t, 1.0, counterValue(t, m.VenueQuotes.WithLabelValues("orca", "ok")))
	assert.Equal(t, 1.0, counterValue(t, m.VenueQuotes.WithLabelValues("orca", "timeout")))
	assert.Equal(t, 1.0, counterValue(t, m.VenueSkipped.WithLabelValues("book", "breaker")))
	assert.Equal(t, 1.0, counterValue(t, m.OracleOutcomes.WithLabelValues("fallback")))
	assert.Equal(t, 1.0, counterValue(t, m.Decisions.WithLabelValues("no_route")))
	assert.Equal(t, 1.0, counterValue(t, m.TelemetryDropped.WithLabelValues("decision")))

	var h dto.Metric
	require.NoError(t, m.ImprovementBps.Write(&h))
	assert.Equal(t, uint64(1), h.GetHistogram().GetSampleCount())
	assert.Equal(t, 100.0, h.GetHistogram().GetSampleSum())
}

func counterValue(t *testing.T, c prometheus.Counter) float64 {
	t.Helper()
	var m dto.Metric
	require.NoError(t, c.Write(&m))
	return m.GetCounter().GetValue()
}

func TestMetrics_NilSafe(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.ObserveVenue("v", "ok", time.Millisecond)
		m.VenueSkip("v", "switch")
		m.ObserveOracle("primary")
		m.ObserveDecision("ok", 1, time.Millisecond)
		m.TelemetryDrop("sample")
		m.TelemetryError("clickhouse")
	})
}

func TestMetrics_Handler(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetrics(reg)
	m.ObserveDecision("ok", 12, time.Millisecond)

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "npi_router_decision_total")
}
