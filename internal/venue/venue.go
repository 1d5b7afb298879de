// Package venue normalizes heterogeneous liquidity venues into a single
// quote contract. Adapters never retry; the router owns retry policy and
// records exactly one reliability sample per call.
package venue

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/aman-zulfiqar/solana-npi-router/internal/models"
)

// Adapter quotes an exact-in swap on one venue.
type Adapter interface {
	ID() string
	Kind() string
	// Endpoint identifies the upstream the adapter talks to, used to
	// break reliability statistics down per endpoint.
	Endpoint() string
	Quote(ctx context.Context, pair models.Pair, amountIn uint64) (*models.VenueQuote, error)
}

// Reasons attached to UnavailableError.
const (
	ReasonTransport       = "transport"
	ReasonTimeout         = "timeout"
	ReasonHTTPStatus      = "http_status"
	ReasonMalformed       = "malformed"
	ReasonNoLiquidity     = "no_liquidity"
	ReasonZeroOutput      = "zero_output"
	ReasonUnsupportedPair = "unsupported_pair"
)

// UnavailableError is the only error an adapter returns. It matches
// models.ErrVenueUnavailable under errors.Is.
type UnavailableError struct {
	VenueID string
	Reason  string
	Err     error
}

func (e *UnavailableError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("venue %s unavailable: %s", e.VenueID, e.Reason)
	}
	return fmt.Sprintf("venue %s unavailable: %s: %v", e.VenueID, e.Reason, e.Err)
}

func (e *UnavailableError) Unwrap() []error {
	if e.Err == nil {
		return []error{models.ErrVenueUnavailable}
	}
	return []error{models.ErrVenueUnavailable, e.Err}
}

// Unavailable builds an UnavailableError, classifying context errors as
// timeouts.
func Unavailable(venueID, reason string, err error) error {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		reason = ReasonTimeout
	}
	return &UnavailableError{VenueID: venueID, Reason: reason, Err: err}
}

// ReasonOf extracts the failure reason of an adapter error.
func ReasonOf(err error) string {
	var ue *UnavailableError
	if errors.As(err, &ue) {
		return ue.Reason
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return ReasonTimeout
	}
	return ReasonTransport
}

// result validates a computed quote. A zero output is never returned as a
// quote.
func result(venueID string, amountIn, amountOut uint64, impactBps, feeBps uint32, start time.Time, raw []byte) (*models.VenueQuote, error) {
	if amountOut == 0 {
		return nil, Unavailable(venueID, ReasonZeroOutput, nil)
	}
	now := time.Now()
	return &models.VenueQuote{
		VenueID:        venueID,
		InputAmount:    amountIn,
		OutputAmount:   amountOut,
		PriceImpactBps: impactBps,
		FeeBps:         feeBps,
		LatencyMs:      now.Sub(start).Milliseconds(),
		FetchedAt:      now.UTC(),
		Raw:            raw,
	}, nil
}
