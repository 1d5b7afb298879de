// Package npi selects a route from a frozen set of venue quotes and prices
// its improvement over the baseline.
package npi

import (
	"fmt"
	"math"
	"sort"

	"github.com/aman-zulfiqar/solana-npi-router/internal/constants"
	"github.com/aman-zulfiqar/solana-npi-router/internal/models"
	"github.com/aman-zulfiqar/solana-npi-router/internal/oracle"
)

// Exclusion reasons.
const (
	ExcludedDivergence = "price_divergence"
	ExcludedImpact     = "price_impact"
	ExcludedAmount     = "amount_mismatch"
	ExcludedZeroOutput = "zero_output"
)

const explainNoBaseline = "baseline unavailable"

// Policy holds the tunable numbers of a decision.
type Policy struct {
	ShareBps              uint32
	TreasuryBps           uint32
	MaxVenueDivergenceBps uint32
	MaxPriceImpactBps     uint32
	MevMediumImpactBps    uint32
	MevHighImpactBps      uint32
}

func DefaultPolicy() Policy {
	return Policy{
		ShareBps:              7000,
		TreasuryBps:           2000,
		MaxVenueDivergenceBps: 300,
		MaxPriceImpactBps:     500,
		MevMediumImpactBps:    30,
		MevHighImpactBps:      100,
	}
}

func (p Policy) Validate() error {
	if uint64(p.ShareBps)+uint64(p.TreasuryBps) > constants.BpsDenominator {
		return fmt.Errorf("share_bps + treasury_bps must not exceed %d", constants.BpsDenominator)
	}
	if p.MevHighImpactBps < p.MevMediumImpactBps {
		return fmt.Errorf("mev high impact threshold below medium threshold")
	}
	return nil
}

// Input is the frozen snapshot a decision is made from.
type Input struct {
	Pair     models.Pair
	AmountIn uint64
	Quotes   []models.VenueQuote
	// Reference may be nil when the oracle is optional; the divergence
	// filter is then skipped.
	Reference *models.ReferencePrice
	// Baseline is nil when the baseline provider failed.
	Baseline *models.VenueQuote
	Grades   map[string]models.Grade
}

// Exclusion records a quote that did not survive the sanity filter.
type Exclusion struct {
	VenueID       string `json:"venue_id"`
	Reason        string `json:"reason"`
	OutputAmount  uint64 `json:"output_amount"`
	DivergenceBps uint32 `json:"divergence_bps,omitempty"`
}

// Decision is the engine's output. Callers treat it as read-only.
type Decision struct {
	Selected    models.RouteCandidate   `json:"selected"`
	Candidates  []models.RouteCandidate `json:"candidates"`
	Excluded    []Exclusion             `json:"excluded"`
	Opportunity models.NpiOpportunity   `json:"npi"`
}

// NoRouteError reports that no quote survived. It matches
// models.ErrNoRouteAvailable.
type NoRouteError struct {
	Quoted   int
	Excluded []Exclusion
}

func (e *NoRouteError) Error() string {
	if e.Quoted == 0 {
		return "no route available: no venue returned a quote"
	}
	return fmt.Sprintf("no route available: all %d quotes excluded", e.Quoted)
}

func (e *NoRouteError) Unwrap() error { return models.ErrNoRouteAvailable }

type Engine struct {
	policy Policy
}

func NewEngine(policy Policy) (*Engine, error) {
	if err := policy.Validate(); err != nil {
		return nil, err
	}
	return &Engine{policy: policy}, nil
}

func (e *Engine) Policy() Policy { return e.policy }

// Decide filters, ranks and prices the quotes in the snapshot. It is a pure
// function of its input.
func (e *Engine) Decide(in Input) (*Decision, error) {
	survivors, excluded := e.filter(in)
	if len(survivors) == 0 {
		return nil, &NoRouteError{Quoted: len(in.Quotes), Excluded: excluded}
	}

	candidates := make([]models.RouteCandidate, 0, len(survivors))
	for _, q := range survivors {
		candidates = append(candidates, e.candidate(in, q))
	}
	rank(candidates)

	selected := candidates[0]
	return &Decision{
		Selected:    selected,
		Candidates:  candidates,
		Excluded:    excluded,
		Opportunity: e.opportunity(selected, in.Baseline),
	}, nil
}

func (e *Engine) filter(in Input) ([]models.VenueQuote, []Exclusion) {
	survivors := make([]models.VenueQuote, 0, len(in.Quotes))
	excluded := []Exclusion{}

	for _, q := range in.Quotes {
		switch {
		case q.OutputAmount == 0:
			excluded = append(excluded, Exclusion{VenueID: q.VenueID, Reason: ExcludedZeroOutput})
			continue
		case q.InputAmount != in.AmountIn:
			excluded = append(excluded, Exclusion{VenueID: q.VenueID, Reason: ExcludedAmount, OutputAmount: q.OutputAmount})
			continue
		case e.policy.MaxPriceImpactBps > 0 && q.PriceImpactBps > e.policy.MaxPriceImpactBps:
			excluded = append(excluded, Exclusion{VenueID: q.VenueID, Reason: ExcludedImpact, OutputAmount: q.OutputAmount})
			continue
		}

		if in.Reference != nil {
			div := oracle.DivergenceBps(in.Reference.Price, q.ImpliedPrice(in.Pair))
			if div > e.policy.MaxVenueDivergenceBps {
				excluded = append(excluded, Exclusion{
					VenueID:       q.VenueID,
					Reason:        ExcludedDivergence,
					OutputAmount:  q.OutputAmount,
					DivergenceBps: div,
				})
				continue
			}
		}
		survivors = append(survivors, q)
	}

	sort.SliceStable(excluded, func(i, j int) bool { return excluded[i].VenueID < excluded[j].VenueID })
	return survivors, excluded
}

func (e *Engine) candidate(in Input, q models.VenueQuote) models.RouteCandidate {
	grade, ok := in.Grades[q.VenueID]
	if !ok {
		grade = models.GradeB
	}
	var confBps uint32
	if in.Reference != nil {
		confBps = in.Reference.ConfidenceBps
	}
	return models.RouteCandidate{
		Venues:         []string{q.VenueID},
		Hops:           1,
		ExpectedOutput: q.OutputAmount,
		EffectiveRate:  q.ImpliedPrice(in.Pair),
		RiskScore:      e.riskScore(grade, q.PriceImpactBps, confBps),
		MevRisk:        e.mevRisk(q.PriceImpactBps),
		Grade:          grade,
		PriceImpactBps: q.PriceImpactBps,
		LatencyMs:      q.LatencyMs,
	}
}

// rank orders by output, then grade, then latency, then venue id, so the
// order is total and never depends on arrival order.
func rank(c []models.RouteCandidate) {
	sort.SliceStable(c, func(i, j int) bool {
		a, b := c[i], c[j]
		if a.ExpectedOutput != b.ExpectedOutput {
			return a.ExpectedOutput > b.ExpectedOutput
		}
		if a.Grade.Rank() != b.Grade.Rank() {
			return a.Grade.Rank() < b.Grade.Rank()
		}
		if a.LatencyMs != b.LatencyMs {
			return a.LatencyMs < b.LatencyMs
		}
		return a.Venues[0] < b.Venues[0]
	})
}

func (e *Engine) mevRisk(impactBps uint32) models.MevRisk {
	switch {
	case impactBps >= e.policy.MevHighImpactBps:
		return models.MevRiskHigh
	case impactBps >= e.policy.MevMediumImpactBps:
		return models.MevRiskMedium
	default:
		return models.MevRiskLow
	}
}

// riskScore is in [0,1], higher is riskier. Grade weighs 0.5, price impact
// relative to the ceiling 0.3, and oracle confidence (saturating at 100
// bps) 0.2.
func (e *Engine) riskScore(grade models.Grade, impactBps, confBps uint32) float64 {
	gradeTerm := float64(grade.Rank()) / 3

	ceiling := float64(e.policy.MaxPriceImpactBps)
	if ceiling == 0 {
		ceiling = constants.BpsDenominator
	}
	impactTerm := math.Min(float64(impactBps)/ceiling, 1)
	confTerm := math.Min(float64(confBps)/100, 1)

	score := 0.5*gradeTerm + 0.3*impactTerm + 0.2*confTerm
	return math.Round(score*10000) / 10000
}

func (e *Engine) opportunity(selected models.RouteCandidate, baseline *models.VenueQuote) models.NpiOpportunity {
	opp := models.NpiOpportunity{
		ImprovedOutAmount: selected.ExpectedOutput,
		ShareBps:          e.policy.ShareBps,
	}
	if baseline == nil || baseline.OutputAmount == 0 {
		opp.BaseOutAmount = selected.ExpectedOutput
		opp.Explanation = explainNoBaseline
		return opp
	}

	opp.BaseOutAmount = baseline.OutputAmount
	delta := opp.Delta()
	if delta == 0 {
		opp.Explanation = fmt.Sprintf("%s does not beat baseline (%d <= %d)",
			selected.Venues[0], opp.ImprovedOutAmount, opp.BaseOutAmount)
		return opp
	}

	opp.ImprovementBps = ImprovementBps(opp.BaseOutAmount, opp.ImprovedOutAmount)
	opp.ShareTokens, opp.TreasuryTokens, opp.BurnTokens = Split(delta, e.policy.ShareBps, e.policy.TreasuryBps)
	opp.Available = true
	opp.Explanation = fmt.Sprintf("%s beats baseline by %d bps (%d units)",
		selected.Venues[0], opp.ImprovementBps, delta)
	return opp
}
