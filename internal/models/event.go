package models

import "time"

// DecisionEventVersion is bumped whenever DecisionEvent changes shape.
const DecisionEventVersion = 1

// DecisionEvent is the structured, versioned audit record of one routing
// decision. It is emitted when the decision is made; nothing downstream
// reconstructs economics from log text.
type DecisionEvent struct {
	Version        int             `json:"version"`
	DecisionID     string          `json:"decision_id"`
	PlanID         string          `json:"plan_id"`
	Pair           Pair            `json:"pair"`
	AmountIn       uint64          `json:"amount_in"`
	SelectedVenue  string          `json:"selected_venue"`
	ExpectedOutput uint64          `json:"expected_output"`
	MinAmountOut   uint64          `json:"min_amount_out"`
	SlippageBps    uint32          `json:"slippage_bps"`
	ReferencePrice string          `json:"reference_price,omitempty"`
	OracleProvider string          `json:"oracle_provider,omitempty"`
	FallbackUsed   bool            `json:"fallback_used"`
	VenuesQueried  int             `json:"venues_queried"`
	VenuesFailed   int             `json:"venues_failed"`
	VenuesExcluded int             `json:"venues_excluded"`
	Npi            NpiOpportunity  `json:"npi"`
	DecidedAt      time.Time       `json:"decided_at"`
	Candidates     []CandidateNote `json:"candidates"`
}

// CandidateNote records one venue's standing in a decision.
type CandidateNote struct {
	VenueID      string `json:"venue_id"`
	OutputAmount uint64 `json:"output_amount"`
	Grade        Grade  `json:"grade"`
	Excluded     string `json:"excluded,omitempty"`
}
