package router

import (
	"context"
	"sort"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/aman-zulfiqar/solana-npi-router/internal/models"
	"github.com/aman-zulfiqar/solana-npi-router/internal/venue"
)

// eligible drops venues that are switched off or held open by the circuit
// breaker. Switch lookups that fail leave the venue enabled.
func (r *Router) eligible(ctx context.Context) ([]venue.Adapter, []VenueSkip) {
	out := make([]venue.Adapter, 0, len(r.cfg.Adapters))
	skipped := []VenueSkip{}

	for _, a := range r.cfg.Adapters {
		if r.cfg.Switches != nil {
			disabled, err := r.cfg.Switches.IsDisabled(ctx, a.ID())
			if err != nil {
				r.logger.WithError(err).WithField("venue", a.ID()).Warn("switch lookup failed, treating venue as enabled")
			}
			if disabled {
				skipped = append(skipped, VenueSkip{VenueID: a.ID(), Reason: SkipSwitch})
				r.cfg.Metrics.VenueSkip(a.ID(), SkipSwitch)
				continue
			}
		}
		if !r.breakerAllows(a.ID()) {
			skipped = append(skipped, VenueSkip{VenueID: a.ID(), Reason: SkipBreaker})
			r.cfg.Metrics.VenueSkip(a.ID(), SkipBreaker)
			continue
		}
		out = append(out, a)
	}
	return out, skipped
}

// breakerAllows opens the breaker for a venue graded D over at least
// BreakerMinSamples samples. An open breaker lets one trial request through per
// BreakerCooldown so the venue can recover.
func (r *Router) breakerAllows(venueID string) bool {
	if r.cfg.BreakerMinSamples <= 0 {
		return true
	}
	s := r.cfg.Tracker.Summary(venueID, r.cfg.ReliabilityWindow)
	if s.OverallScore != models.GradeD || s.SampleSize < r.cfg.BreakerMinSamples {
		return true
	}

	now := r.cfg.Now()
	r.trialMu.Lock()
	defer r.trialMu.Unlock()
	if last, ok := r.lastTrial[venueID]; ok && now.Sub(last) < r.cfg.BreakerCooldown {
		return false
	}
	r.lastTrial[venueID] = now
	r.logger.WithField("venue", venueID).Info("circuit breaker trial request")
	return true
}

type outcome struct {
	adapter venue.Adapter
	quote   *models.VenueQuote
	err     error
	latency time.Duration
}

// collect queries every adapter concurrently, each under its own timeout
// nested in the request deadline. It returns once every adapter answered
// or the deadline passed; adapters still running are abandoned and their
// late results discarded. Exactly one reliability sample is recorded per
// adapter.
func (r *Router) collect(ctx context.Context, adapters []venue.Adapter, req Request) ([]models.VenueQuote, []VenueFailure) {
	results := make(chan outcome, len(adapters))
	started := make(map[string]time.Time, len(adapters))

	for _, a := range adapters {
		started[a.ID()] = time.Now()
		go func(a venue.Adapter) {
			vctx, cancel := context.WithTimeout(ctx, r.cfg.VenueTimeout)
			defer cancel()

			t0 := time.Now()
			q, err := a.Quote(vctx, req.Pair, req.AmountIn)
			results <- outcome{adapter: a, quote: q, err: err, latency: time.Since(t0)}
		}(a)
	}

	quotes := make([]models.VenueQuote, 0, len(adapters))
	failures := []VenueFailure{}
	pending := make(map[string]venue.Adapter, len(adapters))
	for _, a := range adapters {
		pending[a.ID()] = a
	}

	for len(pending) > 0 {
		select {
		case o := <-results:
			delete(pending, o.adapter.ID())
			if o.err == nil && o.quote == nil {
				o.err = venue.Unavailable(o.adapter.ID(), venue.ReasonMalformed, nil)
			}
			r.sample(o.adapter, o.err, o.latency)
			if o.err != nil {
				failures = append(failures, VenueFailure{
					VenueID:   o.adapter.ID(),
					Reason:    venue.ReasonOf(o.err),
					Error:     o.err.Error(),
					LatencyMs: o.latency.Milliseconds(),
				})
				continue
			}
			quotes = append(quotes, *o.quote)

		case <-ctx.Done():
			for id, a := range pending {
				latency := time.Since(started[id])
				err := venue.Unavailable(id, venue.ReasonTimeout, ctx.Err())
				r.sample(a, err, latency)
				failures = append(failures, VenueFailure{
					VenueID:   id,
					Reason:    venue.ReasonTimeout,
					Error:     err.Error(),
					LatencyMs: latency.Milliseconds(),
				})
			}
			pending = nil
		}
	}

	// arrival order is not part of the snapshot
	sort.Slice(quotes, func(i, j int) bool { return quotes[i].VenueID < quotes[j].VenueID })
	sort.Slice(failures, func(i, j int) bool { return failures[i].VenueID < failures[j].VenueID })
	return quotes, failures
}

func (r *Router) sample(a venue.Adapter, err error, latency time.Duration) {
	s := models.ReliabilitySample{
		VenueID:   a.ID(),
		Endpoint:  a.Endpoint(),
		OK:        err == nil,
		LatencyMs: latency.Milliseconds(),
		Timestamp: r.cfg.Now().UTC(),
	}
	outcome := "ok"
	if err != nil {
		s.Error = err.Error()
		outcome = venue.ReasonOf(err)
		r.logger.WithError(err).WithFields(logrus.Fields{
			"venue":      a.ID(),
			"latency_ms": s.LatencyMs,
		}).Debug("venue quote failed")
	}
	r.cfg.Tracker.Record(s)
	r.cfg.Metrics.ObserveVenue(a.ID(), outcome, latency)
}
