package whirlpool

import (
	"fmt"
	"math/big"

	cosmath "cosmossdk.io/math"
	"github.com/gagliardetto/solana-go"
)

var q64 = cosmath.NewIntFromBigInt(new(big.Int).Lsh(big.NewInt(1), 64))

// Quote is the result of pricing an exact-in swap against a pool.
type Quote struct {
	AmountOut      uint64
	FeeBps         uint32
	PriceImpactBps uint32
	AToB           bool
}

// QuoteExactIn prices amountIn within the current tick range only. The
// pool is treated as a constant-product curve over its virtual reserves
// x = L/sqrtP and y = L*sqrtP, which holds until a tick boundary is crossed.
func (p *Pool) QuoteExactIn(inputMint solana.PublicKey, amountIn uint64) (*Quote, error) {
	if amountIn == 0 {
		return nil, fmt.Errorf("amount must be > 0")
	}

	var aToB bool
	switch {
	case p.TokenMintA.Equals(inputMint):
		aToB = true
	case p.TokenMintB.Equals(inputMint):
		aToB = false
	default:
		return nil, fmt.Errorf("input mint %s does not match pool %s", inputMint, p.Address)
	}

	liquidity := cosmath.NewIntFromBigInt(p.Liquidity.Big())
	sqrtPrice := cosmath.NewIntFromBigInt(p.SqrtPrice.Big())
	if liquidity.IsZero() {
		return nil, fmt.Errorf("pool has zero liquidity")
	}
	if sqrtPrice.IsZero() {
		return nil, fmt.Errorf("sqrt price is zero")
	}

	in := cosmath.NewIntFromUint64(amountIn)
	fee := in.Mul(cosmath.NewInt(int64(p.FeeRate))).Quo(cosmath.NewInt(FeeRateDenominator))
	inAfterFee := in.Sub(fee)
	if !inAfterFee.IsPositive() {
		return nil, fmt.Errorf("input too small after fee")
	}

	// virtual reserves in base units
	reserveA := liquidity.Mul(q64).Quo(sqrtPrice)
	reserveB := liquidity.Mul(sqrtPrice).Quo(q64)

	reserveIn, reserveOut := reserveA, reserveB
	if !aToB {
		reserveIn, reserveOut = reserveB, reserveA
	}
	if reserveIn.IsZero() || reserveOut.IsZero() {
		return nil, fmt.Errorf("pool has no usable depth")
	}

	denom := reserveIn.Add(inAfterFee)
	out := inAfterFee.Mul(reserveOut).Quo(denom)
	if !out.IsUint64() {
		return nil, fmt.Errorf("output amount overflow")
	}

	// against spot, a constant-product fill loses inAfterFee/(reserveIn+inAfterFee)
	impact := inAfterFee.Mul(cosmath.NewInt(10000)).Quo(denom)

	return &Quote{
		AmountOut:      out.Uint64(),
		FeeBps:         p.FeeBps(),
		PriceImpactBps: uint32(impact.Uint64()),
		AToB:           aToB,
	}, nil
}
