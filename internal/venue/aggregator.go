package venue

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

// Aggregator quotes through a Jupiter-shaped API restricted to a set of
// DEX labels, so that each configured label set behaves as one venue.
type Aggregator struct {
	id     string
	client *jupiter.Client
	dexes  []string
}

func NewAggregator(id string, client *jupiter.Client, dexes []string) *Aggregator {
	return &Aggregator{id: id, client: client, dexes: dexes}
}

func (a *Aggregator) ID() string       { return a.id }
func (a *Aggregator) Kind() string     { return constants.VenueKindAggregator }
func (a *Aggregator) Endpoint() string { return a.client.BaseURL }

func (a *Aggregator) Quote(ctx context.Context, pair models.Pair, amountIn uint64) (*models.VenueQuote, error) {
	start := time.Now()
	direct := true
	resp, err := a.client.Quote(ctx, jupiter.QuoteRequest{
		InputMint:        pair.InputMint,
		OutputMint:       pair.OutputMint,
		Amount:           strconv.FormatUint(amountIn, 10),
		SwapMode:         "ExactIn",
		Dexes:            a.dexes,
		OnlyDirectRoutes: &direct,
	})
	if err != nil {
		var he *jupiter.HTTPError
		if errors.As(err, &he) {
			return nil, Unavailable(a.id, ReasonHTTPStatus, err)
		}
		return nil, Unavailable(a.id, ReasonTransport, err)
	}

	out, err := resp.OutAmountRaw()
	if err != nil {
		return nil, Unavailable(a.id, ReasonMalformed, err)
	}
	if len(resp.RoutePlan) == 0 {
		return nil, Unavailable(a.id, ReasonNoLiquidity, nil)
	}
	impact, err := resp.PriceImpactBps()
	if err != nil {
		return nil, Unavailable(a.id, ReasonMalformed, err)
	}
	fee, err := resp.FeeBps()
	if err != nil {
		return nil, Unavailable(a.id, ReasonMalformed, err)
	}
	if impact > constants.BpsDenominator || fee > constants.BpsDenominator {
		return nil, Unavailable(a.id, ReasonMalformed, fmt.Errorf("impact %d bps, fee %d bps out of range", impact, fee))
	}
	return result(a.id, amountIn, out, impact, fee, start, resp.Raw)
}
