// Package baseline fetches the reference quote that net price improvement
// is measured against. The baseline is never an execution target.
package baseline

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/aman-zulfiqar/solana-npi-router/internal/constants"
	"github.com/aman-zulfiqar/solana-npi-router/internal/jupiter"
	"github.com/aman-zulfiqar/solana-npi-router/internal/models"
)

// Provider returns the baseline quote for a pair and amount.
type Provider interface {
	GetBaseline(ctx context.Context, pair models.Pair, amountIn uint64) (*models.VenueQuote, error)
}

// Error wraps a baseline failure. It matches models.ErrBaselineUnavailable.
type Error struct {
	Err error
}

func (e *Error) Error() string {
	return fmt.Sprintf("baseline unavailable: %v", e.Err)
}

func (e *Error) Unwrap() []error {
	return []error{models.ErrBaselineUnavailable, e.Err}
}

// Jupiter asks an unrestricted Jupiter quote for the best route it knows.
type Jupiter struct {
	client *jupiter.Client
}

func NewJupiter(client *jupiter.Client) *Jupiter {
	return &Jupiter{client: client}
}

func (j *Jupiter) GetBaseline(ctx context.Context, pair models.Pair, amountIn uint64) (*models.VenueQuote, error) {
	start := time.Now()
	resp, err := j.client.Quote(ctx, jupiter.QuoteRequest{
		InputMint:  pair.InputMint,
		OutputMint: pair.OutputMint,
		Amount:     strconv.FormatUint(amountIn, 10),
		SwapMode:   "ExactIn",
	})
	if err != nil {
		return nil, &Error{Err: err}
	}

	out, err := resp.OutAmountRaw()
	if err != nil {
		return nil, &Error{Err: err}
	}
	if out == 0 {
		return nil, &Error{Err: errors.New("zero output")}
	}

	impact, err := resp.PriceImpactBps()
	if err != nil {
		return nil, &Error{Err: err}
	}
	fee, err := resp.FeeBps()
	if err != nil {
		return nil, &Error{Err: err}
	}

	now := time.Now()
	return &models.VenueQuote{
		VenueID:        constants.BaselineVenueID,
		InputAmount:    amountIn,
		OutputAmount:   out,
		PriceImpactBps: impact,
		FeeBps:         fee,
		LatencyMs:      now.Sub(start).Milliseconds(),
		FetchedAt:      now.UTC(),
		Raw:            resp.Raw,
	}, nil
}
