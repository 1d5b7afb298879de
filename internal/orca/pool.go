package orca

import (
	"context"
	"fmt"
	"time"

	"github.com/gagliardetto/solana-go"
)

// RefreshPoolState fetches current vault balances for a pool
func RefreshPoolState(
	ctx context.Context,
	client *Client,
	pool *LegacyPool,
) (*PoolState, error) {

	reserveA, reserveB, err := client.FetchVaultBalances(ctx, pool.VaultA, pool.VaultB)
	if err != nil {
		return nil, err
	}

	return &PoolState{
		Pool:      pool,
		ReserveA:  reserveA,
		ReserveB:  reserveB,
		Timestamp: time.Now().Unix(),
	}, nil
}

// GetReserves returns reserves in the correct order for a swap direction
func (ps *PoolState) GetReserves(aToB bool) (reserveIn, reserveOut uint64) {
	if aToB {
		return ps.ReserveA, ps.ReserveB
	}
	return ps.ReserveB, ps.ReserveA
}

// DetermineSwapDirection determines if swap is A->B based on input mint
func DetermineSwapDirection(pool *LegacyPool, inputMint solana.PublicKey) (bool, error) {
	if pool.TokenMintA.Equals(inputMint) {
		return true, nil
	}
	if pool.TokenMintB.Equals(inputMint) {
		return false, nil
	}
	return false, fmt.Errorf("input mint %s does not match pool mints", inputMint)
}

// QuoteExactIn prices amountIn against a fresh snapshot of the pool.
func QuoteExactIn(state *PoolState, inputMint solana.PublicKey, amountIn uint64) (*SwapQuote, error) {
	pool := state.Pool
	aToB, err := DetermineSwapDirection(pool, inputMint)
	if err != nil {
		return nil, err
	}

	reserveIn, reserveOut := state.GetReserves(aToB)
	out, impact, err := CalculateLegacySwapOutput(amountIn, reserveIn, reserveOut, pool.FeeNumerator, pool.FeeDenominator)
	if err != nil {
		return nil, fmt.Errorf("pool %s: %w", pool.Name, err)
	}

	outputMint := pool.TokenMintB
	if !aToB {
		outputMint = pool.TokenMintA
	}

	return &SwapQuote{
		PoolName:       pool.Name,
		InputMint:      inputMint,
		OutputMint:     outputMint,
		AmountIn:       amountIn,
		AmountOut:      out,
		FeeBps:         CalculateFeeBps(pool.FeeNumerator, pool.FeeDenominator),
		PriceImpactBps: impact,
		ReserveIn:      reserveIn,
		ReserveOut:     reserveOut,
	}, nil
}
