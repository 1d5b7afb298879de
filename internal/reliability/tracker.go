// Package reliability keeps a bounded, per-venue window of call outcomes
// and grades venues from it.
package reliability

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/aman-zulfiqar/solana-npi-router/internal/models"
)

// Thresholds map a window onto a grade.
type Thresholds struct {
	A             float64
	B             float64
	C             float64
	LatencyBudget time.Duration
}

func DefaultThresholds() Thresholds {
	return Thresholds{A: 0.99, B: 0.95, C: 0.80, LatencyBudget: 800 * time.Millisecond}
}

// Sink receives every recorded sample. Implementations must not block.
type Sink interface {
	RecordReliabilitySample(models.ReliabilitySample)
}

// Loader reads historical samples for warm start, oldest first.
type Loader interface {
	LoadReliabilitySamples(ctx context.Context, since time.Time, perVenue int) ([]models.ReliabilitySample, error)
}

type Config struct {
	Capacity     int
	Thresholds   Thresholds
	TopEndpoints int
	Sink         Sink
	Logger       *logrus.Logger
	Now          func() time.Time
}

// Tracker is safe for concurrent use. Each venue has its own ring and
// lock, so appends for unrelated venues never contend.
type Tracker struct {
	venues       sync.Map // venue id -> *ring
	capacity     int
	thresholds   Thresholds
	topEndpoints int
	sink         Sink
	logger       *logrus.Logger
	now          func() time.Time
}

func NewTracker(cfg Config) *Tracker {
	if cfg.Capacity <= 0 {
		cfg.Capacity = 256
	}
	if cfg.Thresholds == (Thresholds{}) {
		cfg.Thresholds = DefaultThresholds()
	}
	if cfg.TopEndpoints <= 0 {
		cfg.TopEndpoints = 3
	}
	if cfg.Logger == nil {
		cfg.Logger = logrus.New()
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Tracker{
		capacity:     cfg.Capacity,
		thresholds:   cfg.Thresholds,
		topEndpoints: cfg.TopEndpoints,
		sink:         cfg.Sink,
		logger:       cfg.Logger,
		now:          cfg.Now,
	}
}

type ring struct {
	mu   sync.Mutex
	buf  []models.ReliabilitySample
	next int
	full bool
}

func (r *ring) push(s models.ReliabilitySample) {
	r.mu.Lock()
	r.buf[r.next] = s
	r.next = (r.next + 1) % len(r.buf)
	if r.next == 0 {
		r.full = true
	}
	r.mu.Unlock()
}

// snapshot copies the window oldest first.
func (r *ring) snapshot() []models.ReliabilitySample {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.full {
		out := make([]models.ReliabilitySample, r.next)
		copy(out, r.buf[:r.next])
		return out
	}
	out := make([]models.ReliabilitySample, 0, len(r.buf))
	out = append(out, r.buf[r.next:]...)
	return append(out, r.buf[:r.next]...)
}

func (t *Tracker) ring(venueID string) *ring {
	if r, ok := t.venues.Load(venueID); ok {
		return r.(*ring)
	}
	r, _ := t.venues.LoadOrStore(venueID, &ring{buf: make([]models.ReliabilitySample, t.capacity)})
	return r.(*ring)
}

// Record appends a sample, evicting the oldest once the ring is full, and
// forwards it to the sink.
func (t *Tracker) Record(s models.ReliabilitySample) {
	if s.VenueID == "" {
		return
	}
	if s.Timestamp.IsZero() {
		s.Timestamp = t.now().UTC()
	}
	t.ring(s.VenueID).push(s)
	if t.sink != nil {
		t.sink.RecordReliabilitySample(s)
	}
}

// Warm seeds the rings from historical telemetry. On failure the tracker
// keeps whatever it already has.
func (t *Tracker) Warm(ctx context.Context, loader Loader, since time.Duration) (int, error) {
	samples, err := loader.LoadReliabilitySamples(ctx, t.now().Add(-since), t.capacity)
	if err != nil {
		t.logger.WithError(err).Warn("reliability warm start failed, starting cold")
		return 0, fmt.Errorf("warm start: %w", err)
	}
	sort.SliceStable(samples, func(i, j int) bool {
		return samples[i].Timestamp.Before(samples[j].Timestamp)
	})
	for _, s := range samples {
		if s.VenueID == "" {
			continue
		}
		t.ring(s.VenueID).push(s)
	}
	t.logger.WithField("samples", len(samples)).Info("reliability warm start complete")
	return len(samples), nil
}

// Venues lists every venue with at least one sample, sorted.
func (t *Tracker) Venues() []string {
	var ids []string
	t.venues.Range(func(k, _ interface{}) bool {
		ids = append(ids, k.(string))
		return true
	})
	sort.Strings(ids)
	return ids
}

// Summary derives the scorecard for one venue over the trailing window.
// A non-positive window covers the whole ring. A venue without samples
// gets a neutral grade B.
func (t *Tracker) Summary(venueID string, window time.Duration) models.ReliabilitySummary {
	var samples []models.ReliabilitySample
	if r, ok := t.venues.Load(venueID); ok {
		samples = r.(*ring).snapshot()
	}
	if window > 0 {
		cutoff := t.now().Add(-window)
		kept := samples[:0]
		for _, s := range samples {
			if !s.Timestamp.Before(cutoff) {
				kept = append(kept, s)
			}
		}
		samples = kept
	}
	return t.summarize(venueID, samples)
}

// Summaries returns a summary per known venue, sorted by venue id.
func (t *Tracker) Summaries(window time.Duration) []models.ReliabilitySummary {
	ids := t.Venues()
	out := make([]models.ReliabilitySummary, 0, len(ids))
	for _, id := range ids {
		out = append(out, t.Summary(id, window))
	}
	return out
}

func (t *Tracker) summarize(venueID string, samples []models.ReliabilitySample) models.ReliabilitySummary {
	sum := models.ReliabilitySummary{
		VenueID:      venueID,
		OverallScore: models.GradeB,
		TopEndpoints: []models.EndpointStat{},
	}
	n := len(samples)
	if n == 0 {
		return sum
	}

	var ok, fast int
	var latencies []int64
	var total int64
	budget := t.thresholds.LatencyBudget.Milliseconds()
	for i := range samples {
		s := &samples[i]
		if !s.OK {
			continue
		}
		ok++
		latencies = append(latencies, s.LatencyMs)
		total += s.LatencyMs
		if s.LatencyMs < budget {
			fast++
		}
		ts := s.Timestamp
		sum.LastSuccessAt = &ts
	}
	last := samples[n-1].Timestamp
	sum.LastSampleAt = &last

	sum.SampleSize = n
	sum.SuccessRate = float64(ok) / float64(n)
	if ok > 0 {
		sort.Slice(latencies, func(i, j int) bool { return latencies[i] < latencies[j] })
		sum.AvgLatencyMs = float64(total) / float64(ok)
		sum.P95LatencyMs = latencies[nearestRank(95, ok)-1]
	}

	// p95 over the whole window with failures ranked slowest: at least
	// ceil(0.95n) samples must be successful and under budget.
	latencyOK := fast >= nearestRank(95, n)
	sum.OverallScore = t.grade(sum.SuccessRate, latencyOK)
	sum.TopEndpoints = t.endpoints(samples)
	return sum
}

func (t *Tracker) grade(successRate float64, latencyOK bool) models.Grade {
	th := t.thresholds
	switch {
	case successRate >= th.A && latencyOK:
		return models.GradeA
	case successRate >= th.B:
		return models.GradeB
	case successRate >= th.C:
		return models.GradeC
	default:
		return models.GradeD
	}
}

func (t *Tracker) endpoints(samples []models.ReliabilitySample) []models.EndpointStat {
	type acc struct{ n, ok int }
	by := map[string]*acc{}
	for _, s := range samples {
		a, found := by[s.Endpoint]
		if !found {
			a = &acc{}
			by[s.Endpoint] = a
		}
		a.n++
		if s.OK {
			a.ok++
		}
	}

	out := make([]models.EndpointStat, 0, len(by))
	for ep, a := range by {
		out = append(out, models.EndpointStat{
			Endpoint:    ep,
			Samples:     a.n,
			SuccessRate: float64(a.ok) / float64(a.n),
		})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Samples != out[j].Samples {
			return out[i].Samples > out[j].Samples
		}
		return out[i].Endpoint < out[j].Endpoint
	})
	if len(out) > t.topEndpoints {
		out = out[:t.topEndpoints]
	}
	return out
}

// nearestRank is the 1-based nearest-rank index of the pct-th percentile
// in n items.
func nearestRank(pct, n int) int {
	r := (pct*n + 99) / 100
	if r < 1 {
		return 1
	}
	if r > n {
		return n
	}
	return r
}
