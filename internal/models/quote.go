package models

import (
	"encoding/json"
	"fmt"
	"math/big"
	"time"

	"github.com/shopspring/decimal"
)

// Pair identifies the asset pair of a swap request. Decimals are carried so
// raw amounts can be compared against human-unit oracle prices.
type Pair struct {
	InputMint      string `json:"input_mint"`
	OutputMint     string `json:"output_mint"`
	InputSymbol    string `json:"input_symbol,omitempty"`
	OutputSymbol   string `json:"output_symbol,omitempty"`
	InputDecimals  uint8  `json:"input_decimals"`
	OutputDecimals uint8  `json:"output_decimals"`
}

// String renders the pair as IN/OUT, preferring symbols.
func (p Pair) String() string {
	in, out := p.InputSymbol, p.OutputSymbol
	if in == "" {
		in = p.InputMint
	}
	if out == "" {
		out = p.OutputMint
	}
	return fmt.Sprintf("%s/%s", in, out)
}

// Reverse swaps the input and output side.
func (p Pair) Reverse() Pair {
	return Pair{
		InputMint:      p.OutputMint,
		OutputMint:     p.InputMint,
		InputSymbol:    p.OutputSymbol,
		OutputSymbol:   p.InputSymbol,
		InputDecimals:  p.OutputDecimals,
		OutputDecimals: p.InputDecimals,
	}
}

// VenueQuote is one venue's normalized answer for one request.
type VenueQuote struct {
	VenueID        string          `json:"venue_id"`
	InputAmount    uint64          `json:"input_amount"`
	OutputAmount   uint64          `json:"output_amount"`
	PriceImpactBps uint32          `json:"price_impact_bps"`
	FeeBps         uint32          `json:"fee_bps"`
	LatencyMs      int64           `json:"latency_ms"`
	FetchedAt      time.Time       `json:"fetched_at"`
	Raw            json.RawMessage `json:"raw,omitempty"`
}

// ImpliedPrice returns output per input in human units.
func (q VenueQuote) ImpliedPrice(p Pair) decimal.Decimal {
	if q.InputAmount == 0 {
		return decimal.Zero
	}
	in := RawToDecimal(q.InputAmount, p.InputDecimals)
	out := RawToDecimal(q.OutputAmount, p.OutputDecimals)
	return out.Div(in)
}

// RawToDecimal converts a smallest-unit amount to human units.
func RawToDecimal(raw uint64, decimals uint8) decimal.Decimal {
	return decimal.NewFromBigInt(new(big.Int).SetUint64(raw), -int32(decimals))
}

// DecimalToRaw converts human units to a smallest-unit amount, truncating
// any fraction below one unit. ok is false for negative or overflowing values.
func DecimalToRaw(v decimal.Decimal, decimals uint8) (uint64, bool) {
	if v.IsNegative() {
		return 0, false
	}
	bi := v.Shift(int32(decimals)).Truncate(0).BigInt()
	if !bi.IsUint64() {
		return 0, false
	}
	return bi.Uint64(), true
}

// MevRisk classifies how attractive a route is to sandwiching.
type MevRisk string

const (
	MevRiskLow    MevRisk = "low"
	MevRiskMedium MevRisk = "medium"
	MevRiskHigh   MevRisk = "high"
)

// RouteCandidate is a ranked execution option derived from venue quotes.
type RouteCandidate struct {
	Venues         []string        `json:"venues"`
	Hops           int             `json:"hops"`
	ExpectedOutput uint64          `json:"expected_output"`
	EffectiveRate  decimal.Decimal `json:"effective_rate"`
	RiskScore      float64         `json:"risk_score"`
	MevRisk        MevRisk         `json:"mev_risk"`
	Grade          Grade           `json:"grade"`
	PriceImpactBps uint32          `json:"price_impact_bps"`
	LatencyMs      int64           `json:"latency_ms"`
}

// NpiOpportunity is the economic outcome of a decision: the improvement of
// the selected route over the baseline and its user/treasury/burn split.
type NpiOpportunity struct {
	BaseOutAmount     uint64 `json:"base_out_amount"`
	ImprovedOutAmount uint64 `json:"improved_out_amount"`
	ImprovementBps    uint64 `json:"improvement_bps"`
	ShareBps          uint32 `json:"share_bps"`
	ShareTokens       uint64 `json:"share_tokens"`
	TreasuryTokens    uint64 `json:"treasury_tokens"`
	BurnTokens        uint64 `json:"burn_tokens"`
	Explanation       string `json:"explanation"`
	Available         bool   `json:"available"`
}

// Delta is max(improved - base, 0).
func (o NpiOpportunity) Delta() uint64 {
	if o.ImprovedOutAmount <= o.BaseOutAmount {
		return 0
	}
	return o.ImprovedOutAmount - o.BaseOutAmount
}

// PlanHop is one ordered step of a swap plan.
type PlanHop struct {
	VenueID     string `json:"venue_id"`
	ExpectedOut uint64 `json:"expected_out"`
}

// SwapPlan is the venue-agnostic exit contract handed to the external
// submitter. It is never mutated after Build.
type SwapPlan struct {
	ID                string         `json:"id"`
	DecisionID        string         `json:"decision_id"`
	InputMint         string         `json:"input_mint"`
	OutputMint        string         `json:"output_mint"`
	AmountIn          uint64         `json:"amount_in"`
	MinAmountOut      uint64         `json:"min_amount_out"`
	Hops              []PlanHop      `json:"hops"`
	SlippageBps       uint32         `json:"slippage_bps"`
	PrivateSubmission bool           `json:"private_submission"`
	Npi               NpiOpportunity `json:"npi"`
}
