// Package router orchestrates one quote decision: it fans out to every
// eligible venue, the oracle validator and the baseline provider under a
// single deadline, then hands the frozen snapshot to the NPI engine and the
// plan builder.
package router

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/aman-zulfiqar/solana-npi-router/internal/baseline"
	"github.com/aman-zulfiqar/solana-npi-router/internal/constants"
	"github.com/aman-zulfiqar/solana-npi-router/internal/models"
	"github.com/aman-zulfiqar/solana-npi-router/internal/npi"
	"github.com/aman-zulfiqar/solana-npi-router/internal/observability"
	"github.com/aman-zulfiqar/solana-npi-router/internal/plan"
	"github.com/aman-zulfiqar/solana-npi-router/internal/reliability"
	"github.com/aman-zulfiqar/solana-npi-router/internal/venue"
)

// ReferenceSource yields a validated oracle price.
type ReferenceSource interface {
	GetReferencePrice(ctx context.Context, pair models.Pair) (*models.ReferencePrice, error)
}

// SwitchChecker reports operator kill-switches.
type SwitchChecker interface {
	IsDisabled(ctx context.Context, venueID string) (bool, error)
}

// EventSink receives decision events. It must not block.
type EventSink interface {
	PublishDecision(models.DecisionEvent)
}

// Skip reasons.
const (
	SkipSwitch  = "switch"
	SkipBreaker = "breaker"
)

type Config struct {
	Adapters []venue.Adapter
	Tracker  *reliability.Tracker
	Engine   *npi.Engine

	// Oracle is optional. Without it, or when it is unavailable and
	// OracleRequired is false, the divergence filter is skipped.
	Oracle         ReferenceSource
	OracleRequired bool
	Baseline       baseline.Provider
	Switches       SwitchChecker
	Events         EventSink
	Metrics        *observability.Metrics
	Logger         *logrus.Logger

	Deadline           time.Duration
	VenueTimeout       time.Duration
	DefaultSlippageBps uint32
	MaxSlippageBps     uint32
	ReliabilityWindow  time.Duration
	BreakerMinSamples  int
	BreakerCooldown    time.Duration

	Now func() time.Time
}

type Router struct {
	cfg    Config
	logger *logrus.Logger

	trialMu   sync.Mutex
	lastTrial map[string]time.Time
}

func New(cfg Config) (*Router, error) {
	if cfg.Tracker == nil {
		return nil, fmt.Errorf("reliability tracker is required")
	}
	if cfg.Engine == nil {
		return nil, fmt.Errorf("npi engine is required")
	}
	if cfg.OracleRequired && cfg.Oracle == nil {
		return nil, fmt.Errorf("oracle is required but not configured")
	}
	seen := map[string]bool{}
	for _, a := range cfg.Adapters {
		if seen[a.ID()] {
			return nil, fmt.Errorf("duplicate venue id %q", a.ID())
		}
		seen[a.ID()] = true
	}

	if cfg.Deadline <= 0 {
		cfg.Deadline = constants.DefaultDeadline
	}
	if cfg.VenueTimeout <= 0 || cfg.VenueTimeout > cfg.Deadline {
		cfg.VenueTimeout = cfg.Deadline
	}
	if cfg.DefaultSlippageBps == 0 {
		cfg.DefaultSlippageBps = constants.DefaultSlippageBps
	}
	if cfg.MaxSlippageBps == 0 {
		cfg.MaxSlippageBps = constants.MaxSlippageBps
	}
	if cfg.Logger == nil {
		cfg.Logger = logrus.New()
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Router{cfg: cfg, logger: cfg.Logger, lastTrial: map[string]time.Time{}}, nil
}

// Request is one exact-in quote request.
type Request struct {
	Pair     models.Pair
	AmountIn uint64
	// SlippageBps falls back to the configured default when nil.
	SlippageBps *uint32
}

// VenueFailure describes a venue that was attempted and did not quote.
type VenueFailure struct {
	VenueID   string `json:"venue_id"`
	Reason    string `json:"reason"`
	Error     string `json:"error"`
	LatencyMs int64  `json:"latency_ms"`
}

// VenueSkip describes a venue that was not attempted.
type VenueSkip struct {
	VenueID string `json:"venue_id"`
	Reason  string `json:"reason"`
}

// QuoteResult is a complete decision. Either a QuoteResult or a single
// typed error is returned, never both.
type QuoteResult struct {
	DecisionID string                 `json:"decision_id"`
	Plan       *models.SwapPlan       `json:"plan"`
	Decision   *npi.Decision          `json:"decision"`
	Reference  *models.ReferencePrice `json:"reference,omitempty"`
	Baseline   *models.VenueQuote     `json:"baseline,omitempty"`
	Quotes     []models.VenueQuote    `json:"quotes"`
	Failures   []VenueFailure         `json:"failures"`
	Skipped    []VenueSkip            `json:"skipped"`
	DecidedAt  time.Time              `json:"decided_at"`
}

// RequestError rejects a malformed request. It matches
// models.ErrInvalidRequest.
type RequestError struct {
	Reason string
}

func (e *RequestError) Error() string { return "invalid request: " + e.Reason }

func (e *RequestError) Unwrap() error { return models.ErrInvalidRequest }

// VenueInfo describes a configured adapter.
type VenueInfo struct {
	ID       string `json:"id"`
	Kind     string `json:"kind"`
	Endpoint string `json:"endpoint"`
}

func (r *Router) Venues() []VenueInfo {
	out := make([]VenueInfo, 0, len(r.cfg.Adapters))
	for _, a := range r.cfg.Adapters {
		out = append(out, VenueInfo{ID: a.ID(), Kind: a.Kind(), Endpoint: a.Endpoint()})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (r *Router) Tracker() *reliability.Tracker { return r.cfg.Tracker }

func (r *Router) ReliabilityWindow() time.Duration { return r.cfg.ReliabilityWindow }

func (r *Router) validate(req Request) (uint32, error) {
	if req.Pair.InputMint == "" || req.Pair.OutputMint == "" {
		return 0, &RequestError{Reason: "input and output mint are required"}
	}
	if req.Pair.InputMint == req.Pair.OutputMint {
		return 0, &RequestError{Reason: "input and output mint must differ"}
	}
	if req.AmountIn == 0 {
		return 0, &RequestError{Reason: "amount must be > 0"}
	}
	slippage := r.cfg.DefaultSlippageBps
	if req.SlippageBps != nil {
		slippage = *req.SlippageBps
	}
	if slippage > r.cfg.MaxSlippageBps {
		return 0, &RequestError{Reason: fmt.Sprintf("slippage %d bps exceeds max %d bps", slippage, r.cfg.MaxSlippageBps)}
	}
	return slippage, nil
}

// Quote runs one decision.
func (r *Router) Quote(ctx context.Context, req Request) (*QuoteResult, error) {
	started := r.cfg.Now()
	slippage, err := r.validate(req)
	if err != nil {
		r.cfg.Metrics.ObserveDecision("invalid", 0, 0)
		return nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, r.cfg.Deadline)
	defer cancel()

	log := r.logger.WithFields(logrus.Fields{
		"pair":      req.Pair.String(),
		"amount_in": req.AmountIn,
	})

	eligible, skipped := r.eligible(ctx)

	// oracle and baseline run beside the venue fan-out
	var (
		ref      *models.ReferencePrice
		refErr   error
		base     *models.VenueQuote
		baseErr  error
		sideLoad errgroup.Group
	)
	if r.cfg.Oracle != nil {
		sideLoad.Go(func() error {
			ref, refErr = r.cfg.Oracle.GetReferencePrice(ctx, req.Pair)
			return nil
		})
	}
	if r.cfg.Baseline != nil {
		sideLoad.Go(func() error {
			base, baseErr = r.cfg.Baseline.GetBaseline(ctx, req.Pair, req.AmountIn)
			return nil
		})
	}

	quotes, failures := r.collect(ctx, eligible, req)
	_ = sideLoad.Wait()

	result := &QuoteResult{
		Quotes:   quotes,
		Failures: failures,
		Skipped:  skipped,
	}

	if err := r.checkReference(ref, refErr, log); err != nil {
		r.cfg.Metrics.ObserveDecision(outcomeOf(err), 0, r.cfg.Now().Sub(started))
		return nil, err
	}
	if refErr == nil {
		result.Reference = ref
	}

	if baseErr != nil || base == nil {
		if baseErr != nil {
			log.WithError(baseErr).Warn("baseline unavailable, no improvement claim")
		}
		base = nil
	}
	result.Baseline = base

	grades := make(map[string]models.Grade, len(quotes))
	for _, q := range quotes {
		grades[q.VenueID] = r.cfg.Tracker.Summary(q.VenueID, r.cfg.ReliabilityWindow).OverallScore
	}

	decision, err := r.cfg.Engine.Decide(npi.Input{
		Pair:      req.Pair,
		AmountIn:  req.AmountIn,
		Quotes:    quotes,
		Reference: result.Reference,
		Baseline:  base,
		Grades:    grades,
	})
	if err != nil {
		log.WithError(err).WithFields(logrus.Fields{
			"attempted": len(eligible),
			"failed":    len(failures),
		}).Warn("no route available")
		r.cfg.Metrics.ObserveDecision(outcomeOf(err), 0, r.cfg.Now().Sub(started))
		return nil, err
	}
	result.Decision = decision

	decidedAt := r.cfg.Now().UTC()
	result.DecidedAt = decidedAt
	result.DecisionID = DecisionID(snapshot{
		Pair:        req.Pair,
		AmountIn:    req.AmountIn,
		SlippageBps: slippage,
		Quotes:      quotes,
		Reference:   result.Reference,
		Baseline:    base,
		Selected:    decision.Selected,
		DecidedAt:   decidedAt,
	})

	swapPlan, err := plan.Build(req.Pair, req.AmountIn, decision.Selected, decision.Opportunity, slippage, result.DecisionID)
	if err != nil {
		log.WithError(err).Warn("plan rejected")
		r.cfg.Metrics.ObserveDecision(outcomeOf(err), 0, r.cfg.Now().Sub(started))
		return nil, err
	}
	result.Plan = swapPlan

	if r.cfg.Events != nil {
		r.cfg.Events.PublishDecision(r.event(result, req))
	}
	r.cfg.Metrics.ObserveDecision("ok", decision.Opportunity.ImprovementBps, r.cfg.Now().Sub(started))

	log.WithFields(logrus.Fields{
		"decision_id":     result.DecisionID,
		"venue":           decision.Selected.Venues[0],
		"expected_output": decision.Selected.ExpectedOutput,
		"improvement_bps": decision.Opportunity.ImprovementBps,
		"available":       decision.Opportunity.Available,
	}).Info("route selected")
	return result, nil
}

// checkReference applies the oracle propagation policy: divergence is
// always fatal, other oracle failures only when the oracle is required.
func (r *Router) checkReference(ref *models.ReferencePrice, err error, log *logrus.Entry) error {
	if r.cfg.Oracle == nil {
		return nil
	}
	if err == nil {
		switch {
		case ref.FallbackUsed:
			r.cfg.Metrics.ObserveOracle("fallback")
		case ref.SingleSourceWarning:
			r.cfg.Metrics.ObserveOracle("single_source")
		default:
			r.cfg.Metrics.ObserveOracle("primary")
		}
		return nil
	}

	if errors.Is(err, models.ErrPriceDivergence) {
		r.cfg.Metrics.ObserveOracle("divergence")
		log.WithError(err).Warn("oracle divergence, refusing to quote")
		return err
	}
	r.cfg.Metrics.ObserveOracle("unavailable")
	if r.cfg.OracleRequired {
		log.WithError(err).Warn("oracle unavailable")
		return err
	}
	log.WithError(err).Warn("oracle unavailable, skipping divergence filter")
	return nil
}

func outcomeOf(err error) string {
	switch {
	case errors.Is(err, models.ErrPriceDivergence):
		return "divergence"
	case errors.Is(err, models.ErrNoRouteAvailable):
		return "no_route"
	case errors.Is(err, models.ErrOracleUnavailable), errors.Is(err, models.ErrStaleOracle):
		return "oracle_unavailable"
	case errors.Is(err, models.ErrInvalidPlan):
		return "invalid_plan"
	case errors.Is(err, models.ErrInvalidRequest):
		return "invalid"
	default:
		return "error"
	}
}

func (r *Router) event(res *QuoteResult, req Request) models.DecisionEvent {
	d := res.Decision
	ev := models.DecisionEvent{
		Version:        models.DecisionEventVersion,
		DecisionID:     res.DecisionID,
		PlanID:         res.Plan.ID,
		Pair:           req.Pair,
		AmountIn:       req.AmountIn,
		SelectedVenue:  d.Selected.Venues[0],
		ExpectedOutput: d.Selected.ExpectedOutput,
		MinAmountOut:   res.Plan.MinAmountOut,
		SlippageBps:    res.Plan.SlippageBps,
		VenuesQueried:  len(res.Quotes) + len(res.Failures),
		VenuesFailed:   len(res.Failures),
		VenuesExcluded: len(d.Excluded),
		Npi:            d.Opportunity,
		DecidedAt:      res.DecidedAt,
	}
	if res.Reference != nil {
		ev.ReferencePrice = res.Reference.Price.String()
		ev.OracleProvider = res.Reference.ProviderID
		ev.FallbackUsed = res.Reference.FallbackUsed
	}

	notes := make([]models.CandidateNote, 0, len(d.Candidates)+len(d.Excluded)+len(res.Failures))
	for _, c := range d.Candidates {
		notes = append(notes, models.CandidateNote{VenueID: c.Venues[0], OutputAmount: c.ExpectedOutput, Grade: c.Grade})
	}
	for _, x := range d.Excluded {
		notes = append(notes, models.CandidateNote{VenueID: x.VenueID, OutputAmount: x.OutputAmount, Excluded: x.Reason})
	}
	for _, f := range res.Failures {
		notes = append(notes, models.CandidateNote{VenueID: f.VenueID, Excluded: "failed:" + f.Reason})
	}
	ev.Candidates = notes
	return ev
}
