package venue

import (
	"context"
	"encoding/json"
	"time"

	"github.com/gagliardetto/solana-go"

	"github.com/aman-zulfiqar/solana-npi-router/internal/constants"
	"github.com/aman-zulfiqar/solana-npi-router/internal/models"
	"github.com/aman-zulfiqar/solana-npi-router/internal/orca"
)

// CPMM quotes constant-product pools from live vault balances.
type CPMM struct {
	id       string
	client   *orca.Client
	registry *orca.PoolRegistry
}

func NewCPMM(id string, client *orca.Client, registry *orca.PoolRegistry) *CPMM {
	return &CPMM{id: id, client: client, registry: registry}
}

func (c *CPMM) ID() string       { return c.id }
func (c *CPMM) Kind() string     { return constants.VenueKindCPMM }
func (c *CPMM) Endpoint() string { return c.client.Endpoint() }

func (c *CPMM) Quote(ctx context.Context, pair models.Pair, amountIn uint64) (*models.VenueQuote, error) {
	start := time.Now()

	inMint, outMint, err := pairKeys(pair)
	if err != nil {
		return nil, Unavailable(c.id, ReasonUnsupportedPair, err)
	}
	pool, err := c.registry.FindPoolByMints(inMint, outMint)
	if err != nil {
		return nil, Unavailable(c.id, ReasonUnsupportedPair, err)
	}

	state, err := orca.RefreshPoolState(ctx, c.client, pool)
	if err != nil {
		return nil, Unavailable(c.id, ReasonTransport, err)
	}
	if state.ReserveA == 0 || state.ReserveB == 0 {
		return nil, Unavailable(c.id, ReasonNoLiquidity, nil)
	}

	q, err := orca.QuoteExactIn(state, inMint, amountIn)
	if err != nil {
		return nil, Unavailable(c.id, ReasonNoLiquidity, err)
	}

	raw, _ := json.Marshal(map[string]interface{}{
		"pool":        pool.SwapAccount.String(),
		"reserve_in":  q.ReserveIn,
		"reserve_out": q.ReserveOut,
	})
	return result(c.id, amountIn, q.AmountOut, q.PriceImpactBps, q.FeeBps, start, raw)
}

func pairKeys(pair models.Pair) (in, out solana.PublicKey, err error) {
	in, err = solana.PublicKeyFromBase58(pair.InputMint)
	if err != nil {
		return in, out, err
	}
	out, err = solana.PublicKeyFromBase58(pair.OutputMint)
	return in, out, err
}
