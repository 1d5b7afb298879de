package jupiter

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"
)

type QuoteRequest struct {
	InputMint  string
	OutputMint string
	Amount     string // raw integer as string (uint64)

	SlippageBps *uint16
	SwapMode    string // ExactIn | ExactOut

	Dexes        []string
	ExcludeDexes []string

	OnlyDirectRoutes           *bool
	RestrictIntermediateTokens *bool
	MaxAccounts                *uint64
}

type QuoteResponse struct {
	InputMint            string          `json:"inputMint"`
	OutputMint           string          `json:"outputMint"`
	InAmount             string          `json:"inAmount"`
	OutAmount            string          `json:"outAmount"`
	OtherAmountThreshold string          `json:"otherAmountThreshold"`
	SwapMode             string          `json:"swapMode"`
	SlippageBps          uint16          `json:"slippageBps"`
	PriceImpactPct       string          `json:"priceImpactPct"`
	RoutePlan            []RoutePlanStep `json:"routePlan"`

	ContextSlot uint64  `json:"contextSlot,omitempty"`
	TimeTaken   float64 `json:"timeTaken,omitempty"`

	// Raw is the undecoded response body, kept for audit.
	Raw json.RawMessage `json:"-"`
}

type RoutePlanStep struct {
	SwapInfo SwapInfo `json:"swapInfo"`
	Percent  *uint8   `json:"percent,omitempty"`
	Bps      uint16   `json:"bps"`
}

type SwapInfo struct {
	AmmKey     string `json:"ammKey"`
	Label      string `json:"label,omitempty"`
	InputMint  string `json:"inputMint"`
	OutputMint string `json:"outputMint"`
	InAmount   string `json:"inAmount"`
	OutAmount  string `json:"outAmount"`

	FeeAmount *string `json:"feeAmount,omitempty"`
	FeeMint   *string `json:"feeMint,omitempty"`
}

// OutAmountRaw parses outAmount as a base-unit integer.
func (q *QuoteResponse) OutAmountRaw() (uint64, error) {
	v, err := strconv.ParseUint(strings.TrimSpace(q.OutAmount), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid outAmount %q: %w", q.OutAmount, err)
	}
	return v, nil
}

// PriceImpactBps converts priceImpactPct (a fraction, "0.0012" = 12 bps)
// into whole basis points, rounding up and saturating at MaxUint32.
func (q *QuoteResponse) PriceImpactBps() (uint32, error) {
	d, err := decimal.NewFromString(strings.TrimSpace(q.PriceImpactPct))
	if err != nil {
		return 0, fmt.Errorf("invalid priceImpactPct %q: %w", q.PriceImpactPct, err)
	}
	return toBps(d.Abs().Mul(decimal.NewFromInt(10000))), nil
}

// Labels lists the AMM labels along the route in order.
func (q *QuoteResponse) Labels() []string {
	out := make([]string, 0, len(q.RoutePlan))
	for _, step := range q.RoutePlan {
		label := step.SwapInfo.Label
		if label == "" {
			label = step.SwapInfo.AmmKey
		}
		out = append(out, label)
	}
	return out
}

// FeeBps approximates route fees against the quoted input. Only fees
// charged in the input mint are counted.
func (q *QuoteResponse) FeeBps() (uint32, error) {
	in, err := decimal.NewFromString(strings.TrimSpace(q.InAmount))
	if err != nil {
		return 0, fmt.Errorf("invalid inAmount %q: %w", q.InAmount, err)
	}
	if !in.IsPositive() {
		return 0, fmt.Errorf("non-positive inAmount %q", q.InAmount)
	}
	total := decimal.Zero
	for i, step := range q.RoutePlan {
		if step.SwapInfo.FeeAmount == nil || step.SwapInfo.FeeMint == nil {
			continue
		}
		if *step.SwapInfo.FeeMint != q.InputMint {
			continue
		}
		fee, err := decimal.NewFromString(strings.TrimSpace(*step.SwapInfo.FeeAmount))
		if err != nil {
			return 0, fmt.Errorf("invalid feeAmount %q in route step %d: %w", *step.SwapInfo.FeeAmount, i, err)
		}
		total = total.Add(fee.Abs())
	}
	return toBps(total.Mul(decimal.NewFromInt(10000)).Div(in)), nil
}

var maxBps = decimal.NewFromInt(math.MaxUint32)

// toBps rounds a non-negative bps value up, saturating at MaxUint32.
func toBps(d decimal.Decimal) uint32 {
	d = d.Ceil()
	if d.GreaterThan(maxBps) {
		return math.MaxUint32
	}
	return uint32(d.IntPart())
}
