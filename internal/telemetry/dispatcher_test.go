package telemetry

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aman-zulfiqar/solana-npi-router/internal/models"
	"github.com/aman-zulfiqar/solana-npi-router/internal/observability"
)

type memorySink struct {
	mu      sync.Mutex
	batches []Batch
	err     error
}

func (m *memorySink) Name() string { return "memory" }

func (m *memorySink) Write(_ context.Context, b Batch) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.batches = append(m.batches, b)
	return m.err
}

func (m *memorySink) totals() (samples, oracle, decisions int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, b := range m.batches {
		samples += len(b.Samples)
		oracle += len(b.Oracle)
		decisions += len(b.Decisions)
	}
	return
}

func TestDispatcher_FlushOnClose(t *testing.T) {
	sink := &memorySink{}
	d := NewDispatcher(DispatcherConfig{FlushInterval: time.Hour, Sinks: []Sink{sink}})
	d.Start(context.Background())

	d.RecordReliabilitySample(models.ReliabilitySample{VenueID: "a", OK: true})
	d.RecordOracleSample(models.OracleSample{ProviderID: "pyth"})
	d.PublishDecision(models.DecisionEvent{DecisionID: "x"})
	d.Close()

	s, o, dec := sink.totals()
	assert.Equal(t, 1, s)
	assert.Equal(t, 1, o)
	assert.Equal(t, 1, dec)
	assert.Zero(t, d.Dropped())
}

func TestDispatcher_FlushOnBatchSize(t *testing.T) {
	sink := &memorySink{}
	d := NewDispatcher(DispatcherConfig{BatchSize: 5, FlushInterval: time.Hour, Sinks: []Sink{sink}})
	d.Start(context.Background())
	defer d.Close()

	for i := 0; i < 5; i++ {
		d.RecordReliabilitySample(models.ReliabilitySample{VenueID: "a"})
	}
	require.Eventually(t, func() bool {
		s, _, _ := sink.totals()
		return s == 5
	}, time.Second, 5*time.Millisecond)
}

func TestDispatcher_FlushOnInterval(t *testing.T) {
	sink := &memorySink{}
	d := NewDispatcher(DispatcherConfig{FlushInterval: 10 * time.Millisecond, Sinks: []Sink{sink}})
	d.Start(context.Background())
	defer d.Close()

	d.PublishDecision(models.DecisionEvent{DecisionID: "x"})
	require.Eventually(t, func() bool {
		_, _, dec := sink.totals()
		return dec == 1
	}, time.Second, 5*time.Millisecond)
}

func TestDispatcher_DropsWhenFull(t *testing.T) {
	reg := prometheus.NewRegistry()
	metrics := observability.NewMetrics(reg)
	d := NewDispatcher(DispatcherConfig{QueueSize: 2, Metrics: metrics})

	// not started, so nothing drains the queue
	done := make(chan struct{})
	go func() {
		for i := 0; i < 5; i++ {
			d.RecordReliabilitySample(models.ReliabilitySample{VenueID: "a"})
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("producer blocked on a full queue")
	}
	assert.Equal(t, uint64(3), d.Dropped())
	d.Close()
}

func TestDispatcher_SinkErrorDoesNotStopOthers(t *testing.T) {
	bad := &memorySink{err: errors.New("down")}
	good := &memorySink{}
	d := NewDispatcher(DispatcherConfig{FlushInterval: time.Hour, Sinks: []Sink{bad, good}})
	d.Start(context.Background())

	d.PublishDecision(models.DecisionEvent{DecisionID: "x"})
	d.Close()

	_, _, dec := good.totals()
	assert.Equal(t, 1, dec)
}
