package whirlpool

import (
	"encoding/binary"
	"math/big"
	"testing"

	"github.com/gagliardetto/solana-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"lukechampine.com/uint128"
)

var (
	solMint  = solana.MustPublicKeyFromBase58("So11111111111111111111111111111111111111112")
	usdcMint = solana.MustPublicKeyFromBase58("EPjFWdd5AufqSSqeM2qN1xzybapC8G4wEGGkZwyTDt1v")
)

func putU128(dst []byte, v *big.Int) {
	u := uint128.FromBig(v)
	binary.LittleEndian.PutUint64(dst[0:8], u.Lo)
	binary.LittleEndian.PutUint64(dst[8:16], u.Hi)
}

// sqrtPriceX64 for a human price of 150 USDC/SOL: raw price is
// 150 * 1e6 / 1e9 = 0.15, sqrt ~ 0.3873.
func encodePool(t *testing.T, liquidity *big.Int, sqrtPrice *big.Int, feeRate uint16) []byte {
	t.Helper()
	data := make([]byte, AccountSize)
	binary.LittleEndian.PutUint16(data[41:43], 4)
	binary.LittleEndian.PutUint16(data[45:47], feeRate)
	putU128(data[49:65], liquidity)
	putU128(data[65:81], sqrtPrice)
	tick := int32(-18970)
	binary.LittleEndian.PutUint32(data[81:85], uint32(tick))
	copy(data[101:133], solMint.Bytes())
	copy(data[181:213], usdcMint.Bytes())
	return data
}

func sqrtPriceFor(rawPrice float64) *big.Int {
	f := new(big.Float).SetFloat64(rawPrice)
	f.Sqrt(f)
	f.Mul(f, new(big.Float).SetInt(new(big.Int).Lsh(big.NewInt(1), 64)))
	out, _ := f.Int(nil)
	return out
}

func TestDecode(t *testing.T) {
	liq := big.NewInt(5_000_000_000_000)
	sp := sqrtPriceFor(0.15)
	p, err := Decode(solMint, encodePool(t, liq, sp, 400))
	require.NoError(t, err)

	assert.Equal(t, uint16(4), p.TickSpacing)
	assert.Equal(t, uint16(400), p.FeeRate)
	assert.Equal(t, uint32(4), p.FeeBps())
	assert.Equal(t, int32(-18970), p.TickCurrentIndex)
	assert.Equal(t, 0, p.Liquidity.Big().Cmp(liq))
	assert.Equal(t, 0, p.SqrtPrice.Big().Cmp(sp))
	assert.True(t, p.TokenMintA.Equals(solMint))
	assert.True(t, p.Trades(usdcMint, solMint))
}

func TestDecode_Short(t *testing.T) {
	_, err := Decode(solMint, make([]byte, 100))
	assert.Error(t, err)
}

func TestQuoteExactIn(t *testing.T) {
	p, err := Decode(solMint, encodePool(t, big.NewInt(5_000_000_000_000), sqrtPriceFor(0.15), 400))
	require.NoError(t, err)

	// 1 SOL -> ~150 USDC less 4 bps fee and a sliver of impact
	q, err := p.QuoteExactIn(solMint, 1_000_000_000)
	require.NoError(t, err)
	assert.True(t, q.AToB)
	assert.InDelta(t, 149_900_000, float64(q.AmountOut), 150_000)
	assert.Less(t, q.PriceImpactBps, uint32(100))

	// 150 USDC -> ~1 SOL
	back, err := p.QuoteExactIn(usdcMint, 150_000_000)
	require.NoError(t, err)
	assert.False(t, back.AToB)
	assert.InDelta(t, 1_000_000_000, float64(back.AmountOut), 5_000_000)

	big1, err := p.QuoteExactIn(solMint, 1_000_000_000_000)
	require.NoError(t, err)
	assert.Greater(t, big1.PriceImpactBps, q.PriceImpactBps)
}

func TestQuoteExactIn_Errors(t *testing.T) {
	p, err := Decode(solMint, encodePool(t, big.NewInt(0), sqrtPriceFor(0.15), 400))
	require.NoError(t, err)
	_, err = p.QuoteExactIn(solMint, 1)
	assert.Error(t, err)

	p.Liquidity = uint128.From64(1_000_000)
	_, err = p.QuoteExactIn(solana.SystemProgramID, 1)
	assert.Error(t, err)
	_, err = p.QuoteExactIn(solMint, 0)
	assert.Error(t, err)
}
