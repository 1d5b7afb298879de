package oracle

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/aman-zulfiqar/solana-npi-router/internal/models"
)

// Policy bounds which oracle samples are usable.
type Policy struct {
	MaxAge           time.Duration
	MaxConfidenceBps uint32
	MaxDivergenceBps uint32
	// SingleSourceMultiplier widens the confidence band when only one
	// provider contributed to the reference.
	SingleSourceMultiplier uint32
}

// DefaultPolicy mirrors the configuration defaults.
func DefaultPolicy() Policy {
	return Policy{
		MaxAge:                 60 * time.Second,
		MaxConfidenceBps:       200,
		MaxDivergenceBps:       150,
		SingleSourceMultiplier: 2,
	}
}

// SampleRecorder receives every oracle sample, valid or not.
type SampleRecorder interface {
	RecordOracleSample(models.OracleSample)
}

// DivergenceError reports two valid oracles that disagree beyond policy.
type DivergenceError struct {
	Primary       models.OracleSample
	Fallback      models.OracleSample
	DivergenceBps uint32
	MaxBps        uint32
}

func (e *DivergenceError) Error() string {
	return fmt.Sprintf("oracles %s (%s) and %s (%s) diverge by %d bps (max %d)",
		e.Primary.ProviderID, e.Primary.Price, e.Fallback.ProviderID, e.Fallback.Price, e.DivergenceBps, e.MaxBps)
}

func (e *DivergenceError) Unwrap() error { return models.ErrPriceDivergence }

// StaleError reports a sample whose publish time is older than MaxAge.
type StaleError struct {
	ProviderID string
	Age        time.Duration
	MaxAge     time.Duration
}

func (e *StaleError) Error() string {
	return fmt.Sprintf("oracle %s stale: age %s exceeds %s", e.ProviderID, e.Age.Round(time.Millisecond), e.MaxAge)
}

func (e *StaleError) Unwrap() error { return models.ErrStaleOracle }

// UnavailableError means no provider produced a usable sample.
type UnavailableError struct {
	Causes []error
}

func (e *UnavailableError) Error() string {
	return fmt.Sprintf("%v: %v", models.ErrOracleUnavailable, errors.Join(e.Causes...))
}

func (e *UnavailableError) Unwrap() []error {
	return append([]error{models.ErrOracleUnavailable}, e.Causes...)
}

// Validator produces a cross-checked reference price from a primary and an
// optional fallback provider.
type Validator struct {
	primary  Provider
	fallback Provider
	policy   Policy
	recorder SampleRecorder
	logger   *logrus.Logger
	now      func() time.Time
}

// ValidatorConfig wires a Validator. Fallback and Recorder are optional.
type ValidatorConfig struct {
	Primary  Provider
	Fallback Provider
	Policy   Policy
	Recorder SampleRecorder
	Logger   *logrus.Logger
	Now      func() time.Time
}

func NewValidator(cfg ValidatorConfig) (*Validator, error) {
	if cfg.Primary == nil && cfg.Fallback == nil {
		return nil, fmt.Errorf("at least one oracle provider is required")
	}
	if cfg.Primary == nil {
		cfg.Primary, cfg.Fallback = cfg.Fallback, nil
	}
	if cfg.Logger == nil {
		cfg.Logger = logrus.New()
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.Policy.SingleSourceMultiplier == 0 {
		cfg.Policy.SingleSourceMultiplier = 1
	}
	return &Validator{
		primary:  cfg.Primary,
		fallback: cfg.Fallback,
		policy:   cfg.Policy,
		recorder: cfg.Recorder,
		logger:   cfg.Logger,
		now:      cfg.Now,
	}, nil
}

type outcome struct {
	sample *models.OracleSample
	err    error
}

// GetReferencePrice queries all providers concurrently and applies the
// policy:
//   - a provider is usable if it answered, is fresh, and its confidence is
//     within bounds;
//   - two usable providers that diverge beyond MaxDivergenceBps fail the
//     request with a DivergenceError, they are never averaged;
//   - otherwise the primary wins, the fallback is used only when the
//     primary is unusable;
//   - a single usable provider is flagged and its confidence widened.
func (v *Validator) GetReferencePrice(ctx context.Context, pair models.Pair) (*models.ReferencePrice, error) {
	var primary, fallback outcome

	var g errgroup.Group
	g.Go(func() error {
		primary = v.query(ctx, v.primary, pair, false)
		return nil
	})
	if v.fallback != nil {
		g.Go(func() error {
			fallback = v.query(ctx, v.fallback, pair, true)
			return nil
		})
	}
	_ = g.Wait()

	samples := make([]models.OracleSample, 0, 2)
	for _, o := range []outcome{primary, fallback} {
		if o.sample != nil {
			samples = append(samples, *o.sample)
		}
	}

	switch {
	case primary.err == nil && v.fallback != nil && fallback.err == nil:
		div := DivergenceBps(primary.sample.Price, fallback.sample.Price)
		if div > v.policy.MaxDivergenceBps {
			v.logger.WithFields(logrus.Fields{
				"pair":           pair.String(),
				"primary":        primary.sample.Price.String(),
				"fallback":       fallback.sample.Price.String(),
				"divergence_bps": div,
			}).Warn("oracle divergence")
			return nil, &DivergenceError{
				Primary:       *primary.sample,
				Fallback:      *fallback.sample,
				DivergenceBps: div,
				MaxBps:        v.policy.MaxDivergenceBps,
			}
		}
		return &models.ReferencePrice{
			Price:         primary.sample.Price,
			ConfidenceBps: primary.sample.ConfidenceBps,
			ProviderID:    primary.sample.ProviderID,
			DivergenceBps: div,
			Samples:       samples,
		}, nil

	case primary.err == nil:
		return v.singleSource(primary.sample, false, samples), nil

	case v.fallback != nil && fallback.err == nil:
		v.logger.WithFields(logrus.Fields{
			"pair":     pair.String(),
			"primary":  v.primary.ID(),
			"fallback": v.fallback.ID(),
		}).WithError(primary.err).Warn("primary oracle unusable, using fallback")
		return v.singleSource(fallback.sample, true, samples), nil
	}

	causes := []error{primary.err}
	if v.fallback != nil {
		causes = append(causes, fallback.err)
	}
	return nil, &UnavailableError{Causes: causes}
}

func (v *Validator) singleSource(s *models.OracleSample, fallbackUsed bool, samples []models.OracleSample) *models.ReferencePrice {
	return &models.ReferencePrice{
		Price:               s.Price,
		ConfidenceBps:       s.ConfidenceBps * v.policy.SingleSourceMultiplier,
		ProviderID:          s.ProviderID,
		FallbackUsed:        fallbackUsed,
		SingleSourceWarning: true,
		Samples:             samples,
	}
}

// query fetches and gates one provider. The returned sample is set even
// when it is rejected, so that it still reaches telemetry.
func (v *Validator) query(ctx context.Context, p Provider, pair models.Pair, isFallback bool) outcome {
	s, err := p.Price(ctx, pair)
	if err != nil {
		v.record(models.OracleSample{
			ProviderID:   p.ID(),
			Pair:         pair.String(),
			FetchedAt:    v.now().UTC(),
			FallbackUsed: isFallback,
			Err:          err.Error(),
		})
		return outcome{err: fmt.Errorf("oracle %s: %w", p.ID(), err)}
	}
	s.FallbackUsed = isFallback

	if err = v.gate(s); err != nil {
		s.Err = err.Error()
	}
	v.record(*s)
	return outcome{sample: s, err: err}
}

func (v *Validator) gate(s *models.OracleSample) error {
	if age := v.now().Sub(s.PublishTime); v.policy.MaxAge > 0 && age > v.policy.MaxAge {
		return &StaleError{ProviderID: s.ProviderID, Age: age, MaxAge: v.policy.MaxAge}
	}
	if v.policy.MaxConfidenceBps > 0 && s.ConfidenceBps > v.policy.MaxConfidenceBps {
		return fmt.Errorf("oracle %s confidence %d bps exceeds %d", s.ProviderID, s.ConfidenceBps, v.policy.MaxConfidenceBps)
	}
	return nil
}

func (v *Validator) record(s models.OracleSample) {
	if v.recorder != nil {
		v.recorder.RecordOracleSample(s)
	}
}

// DivergenceBps is |a-b| / a in whole bps, rounded up so that a threshold
// is never crossed by truncation.
func DivergenceBps(a, b decimal.Decimal) uint32 {
	if !a.IsPositive() {
		return ^uint32(0)
	}
	d := a.Sub(b).Abs().Div(a).Mul(decimal.NewFromInt(10000)).Ceil()
	if !d.IsPositive() {
		return 0
	}
	if d.GreaterThan(decimal.NewFromInt(int64(^uint32(0)))) {
		return ^uint32(0)
	}
	return uint32(d.IntPart())
}
