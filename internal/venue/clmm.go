package venue

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/gagliardetto/solana-go"

	"github.com/aman-zulfiqar/solana-npi-router/internal/constants"
	"github.com/aman-zulfiqar/solana-npi-router/internal/models"
	"github.com/aman-zulfiqar/solana-npi-router/internal/rpc"
	"github.com/aman-zulfiqar/solana-npi-router/internal/whirlpool"
)

// PoolRef ties a pool or market address to the two mints it trades.
type PoolRef struct {
	Address string
	MintA   string
	MintB   string
}

func (p PoolRef) trades(pair models.Pair) bool {
	return (p.MintA == pair.InputMint && p.MintB == pair.OutputMint) ||
		(p.MintB == pair.InputMint && p.MintA == pair.OutputMint)
}

func findPool(pools []PoolRef, pair models.Pair) (PoolRef, bool) {
	for _, p := range pools {
		if p.trades(pair) {
			return p, true
		}
	}
	return PoolRef{}, false
}

// CLMM quotes Whirlpool concentrated-liquidity pools from account state.
type CLMM struct {
	id    string
	rpc   *rpc.Client
	pools []PoolRef
}

func NewCLMM(id string, rpcClient *rpc.Client, pools []PoolRef) *CLMM {
	return &CLMM{id: id, rpc: rpcClient, pools: pools}
}

func (c *CLMM) ID() string       { return c.id }
func (c *CLMM) Kind() string     { return constants.VenueKindCLMM }
func (c *CLMM) Endpoint() string { return c.rpc.Endpoint() }

func (c *CLMM) Quote(ctx context.Context, pair models.Pair, amountIn uint64) (*models.VenueQuote, error) {
	start := time.Now()

	ref, ok := findPool(c.pools, pair)
	if !ok {
		return nil, Unavailable(c.id, ReasonUnsupportedPair, fmt.Errorf("no pool for %s", pair))
	}
	address, err := solana.PublicKeyFromBase58(ref.Address)
	if err != nil {
		return nil, Unavailable(c.id, ReasonUnsupportedPair, err)
	}
	inMint, err := solana.PublicKeyFromBase58(pair.InputMint)
	if err != nil {
		return nil, Unavailable(c.id, ReasonUnsupportedPair, err)
	}

	data, err := c.rpc.GetAccountInfo(ctx, ref.Address)
	if err != nil {
		return nil, Unavailable(c.id, ReasonTransport, err)
	}
	pool, err := whirlpool.Decode(address, data)
	if err != nil {
		return nil, Unavailable(c.id, ReasonMalformed, err)
	}
	if pool.Liquidity.IsZero() {
		return nil, Unavailable(c.id, ReasonNoLiquidity, nil)
	}

	q, err := pool.QuoteExactIn(inMint, amountIn)
	if err != nil {
		return nil, Unavailable(c.id, ReasonNoLiquidity, err)
	}

	raw, _ := json.Marshal(map[string]interface{}{
		"pool":       ref.Address,
		"sqrt_price": pool.SqrtPrice.String(),
		"liquidity":  pool.Liquidity.String(),
		"tick":       pool.TickCurrentIndex,
	})
	return result(c.id, amountIn, q.AmountOut, q.PriceImpactBps, q.FeeBps, start, raw)
}
