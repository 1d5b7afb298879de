package orca

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/gagliardetto/solana-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCalculateLegacySwapOutput(t *testing.T) {
	// 1_000 in, 1_000_000/1_000_000 reserves, 30 bps fee.
	out, impact, err := CalculateLegacySwapOutput(1_000, 1_000_000, 1_000_000, 30, 10_000)
	require.NoError(t, err)
	// inAfterFee = 997; out = 997*1e6/(1e6+997) = 996
	assert.Equal(t, uint64(996), out)
	assert.LessOrEqual(t, impact, uint32(10))

	_, bigImpact, err := CalculateLegacySwapOutput(100_000, 1_000_000, 1_000_000, 30, 10_000)
	require.NoError(t, err)
	assert.Greater(t, bigImpact, impact)
}

func TestCalculateLegacySwapOutput_Invalid(t *testing.T) {
	_, _, err := CalculateLegacySwapOutput(0, 1, 1, 0, 1)
	assert.Error(t, err)
	_, _, err = CalculateLegacySwapOutput(1, 1, 1, 0, 0)
	assert.Error(t, err)
	_, _, err = CalculateLegacySwapOutput(1, 1, 1, 5, 5)
	assert.Error(t, err)
}

func TestQuoteExactIn_Direction(t *testing.T) {
	mintA := solana.MustPublicKeyFromBase58("So11111111111111111111111111111111111111112")
	mintB := solana.MustPublicKeyFromBase58("EPjFWdd5AufqSSqeM2qN1xzybapC8G4wEGGkZwyTDt1v")
	pool := &LegacyPool{Name: "SOL/USDC", TokenMintA: mintA, TokenMintB: mintB, FeeNumerator: 30, FeeDenominator: 10_000}
	state := &PoolState{Pool: pool, ReserveA: 1_000_000_000_000, ReserveB: 150_000_000_000}

	q, err := QuoteExactIn(state, mintA, 1_000_000_000)
	require.NoError(t, err)
	assert.Equal(t, mintB, q.OutputMint)
	assert.Equal(t, uint32(30), q.FeeBps)
	assert.InDelta(t, 149_400_000, float64(q.AmountOut), 200_000)

	back, err := QuoteExactIn(state, mintB, 150_000_000)
	require.NoError(t, err)
	assert.Equal(t, mintA, back.OutputMint)

	_, err = QuoteExactIn(state, solana.SystemProgramID, 1)
	assert.Error(t, err)
}

func TestLoadLegacyPoolsFromJSON(t *testing.T) {
	path := filepath.Join(t.TempDir(), "pools.json")
	body := `[{
	  "name": "SOL/USDC",
	  "swap_account": "whirLbMiicVdio4qvUfM5KAg6Ct8VwpYzGff3uctyCc",
	  "token_mint_a": "So11111111111111111111111111111111111111112",
	  "token_mint_b": "EPjFWdd5AufqSSqeM2qN1xzybapC8G4wEGGkZwyTDt1v",
	  "vault_a": "TokenkegQfeZyiNwAJbNbGKPFXCWuBvf9Ss623VQ5DA",
	  "vault_b": "ATokenGPvbdGVxr1b2hvZbsiqW5xWH25efTNsLJA8knL",
	  "fee_numerator": 30,
	  "fee_denominator": 10000
	}]`
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))

	reg, err := NewPoolRegistry(path)
	require.NoError(t, err)
	assert.Equal(t, 1, reg.PoolCount())

	pool, err := reg.FindPoolByMints(
		solana.MustPublicKeyFromBase58("EPjFWdd5AufqSSqeM2qN1xzybapC8G4wEGGkZwyTDt1v"),
		solana.MustPublicKeyFromBase58("So11111111111111111111111111111111111111112"),
	)
	require.NoError(t, err)
	assert.Equal(t, LegacyProgramID, pool.ProgramID.String())
}

func TestLoadLegacyPoolsFromJSON_BadKey(t *testing.T) {
	path := filepath.Join(t.TempDir(), "pools.json")
	require.NoError(t, os.WriteFile(path, []byte(`[{"name":"x","swap_account":"nope","fee_denominator":10000}]`), 0o600))

	_, err := LoadLegacyPoolsFromJSON(path)
	assert.ErrorContains(t, err, "swap_account")
}
