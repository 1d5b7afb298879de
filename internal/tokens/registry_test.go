package tokens

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aman-zulfiqar/solana-npi-router/internal/constants"
	"github.com/aman-zulfiqar/solana-npi-router/internal/models"
)

func TestRegistry_PairBySymbolAndMint(t *testing.T) {
	r, err := NewRegistry(nil)
	require.NoError(t, err)

	p, err := r.Pair("sol", "EPjFWdd5AufqSSqeM2qN1xzybapC8G4wEGGkZwyTDt1v")
	require.NoError(t, err)
	assert.Equal(t, "So11111111111111111111111111111111111111112", p.InputMint)
	assert.Equal(t, uint8(9), p.InputDecimals)
	assert.Equal(t, uint8(6), p.OutputDecimals)
	assert.Equal(t, "SOL/USDC", p.String())
}

func TestRegistry_Rejects(t *testing.T) {
	r, err := NewRegistry(nil)
	require.NoError(t, err)

	_, err = r.Pair("SOL", "SOL")
	assert.ErrorIs(t, err, models.ErrInvalidRequest)

	_, err = r.Pair("SOL", "NOPE")
	assert.ErrorIs(t, err, models.ErrInvalidRequest)

	_, err = NewRegistry([]constants.Token{{Symbol: "BAD", Mint: "not-a-mint", Decimals: 6}})
	assert.Error(t, err)
}
