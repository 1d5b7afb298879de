// Package plan turns a selected route into the venue-agnostic swap plan
// handed to the external submitter.
package plan

import (
	"fmt"

	"github.com/google/uuid"

	"github.com/aman-zulfiqar/solana-npi-router/internal/constants"
	"github.com/aman-zulfiqar/solana-npi-router/internal/models"
)

// planNamespace scopes plan ids derived from decision ids.
var planNamespace = uuid.MustParse("6f1c2b0e-5f43-4c8e-9a55-2d7e4b1a9c30")

// InvalidError rejects a plan that would not protect the caller. It
// matches models.ErrInvalidPlan.
type InvalidError struct {
	Reason string
}

func (e *InvalidError) Error() string { return "invalid swap plan: " + e.Reason }

func (e *InvalidError) Unwrap() error { return models.ErrInvalidPlan }

// MinAmountOut is floor(expected * (10000 - slippageBps) / 10000).
func MinAmountOut(expected uint64, slippageBps uint32) uint64 {
	if uint64(slippageBps) >= constants.BpsDenominator {
		return 0
	}
	return models.MulDiv(expected, constants.BpsDenominator-uint64(slippageBps), constants.BpsDenominator)
}

// Build is pure: the same inputs always produce the same plan, id included.
func Build(pair models.Pair, amountIn uint64, candidate models.RouteCandidate, npi models.NpiOpportunity, slippageBps uint32, decisionID string) (*models.SwapPlan, error) {
	if amountIn == 0 {
		return nil, &InvalidError{Reason: "amount in is zero"}
	}
	if len(candidate.Venues) == 0 {
		return nil, &InvalidError{Reason: "candidate has no venues"}
	}
	if uint64(slippageBps) >= constants.BpsDenominator {
		return nil, &InvalidError{Reason: fmt.Sprintf("slippage %d bps leaves no minimum output", slippageBps)}
	}

	minOut := MinAmountOut(candidate.ExpectedOutput, slippageBps)
	if minOut < 1 {
		return nil, &InvalidError{Reason: fmt.Sprintf("minimum out is zero for expected output %d at %d bps", candidate.ExpectedOutput, slippageBps)}
	}

	// Single-venue candidates carry the whole expected output on their
	// only hop. Multi-venue candidates are chained, so intermediate
	// outputs are unknown here and only the last hop is bound.
	hops := make([]models.PlanHop, 0, len(candidate.Venues))
	for i, v := range candidate.Venues {
		hop := models.PlanHop{VenueID: v}
		if i == len(candidate.Venues)-1 {
			hop.ExpectedOut = candidate.ExpectedOutput
		}
		hops = append(hops, hop)
	}

	return &models.SwapPlan{
		ID:                uuid.NewSHA1(planNamespace, []byte(decisionID)).String(),
		DecisionID:        decisionID,
		InputMint:         pair.InputMint,
		OutputMint:        pair.OutputMint,
		AmountIn:          amountIn,
		MinAmountOut:      minOut,
		Hops:              hops,
		SlippageBps:       slippageBps,
		PrivateSubmission: candidate.MevRisk == models.MevRiskHigh,
		Npi:               npi,
	}, nil
}
