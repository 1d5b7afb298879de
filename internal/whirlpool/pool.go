package whirlpool

import (
	"fmt"

	bin "github.com/gagliardetto/binary"
	"github.com/gagliardetto/solana-go"
	"lukechampine.com/uint128"
)

// ProgramID is the Orca Whirlpool CLMM program.
var ProgramID = solana.MustPublicKeyFromBase58("whirLbMiicVdio4qvUfM5KAg6Ct8VwpYzGff3uctyCc")

// AccountSize is the minimum length of a Whirlpool account.
const AccountSize = 653

// FeeRateDenominator is the unit of FeeRate (hundredths of a basis point).
const FeeRateDenominator = 1_000_000

// Pool is the subset of Whirlpool account state needed for quoting.
type Pool struct {
	Address          solana.PublicKey
	TickSpacing      uint16
	FeeRate          uint16
	Liquidity        uint128.Uint128
	SqrtPrice        uint128.Uint128
	TickCurrentIndex int32
	TokenMintA       solana.PublicKey
	TokenVaultA      solana.PublicKey
	TokenMintB       solana.PublicKey
	TokenVaultB      solana.PublicKey
}

// Decode parses raw account data laid out per the Whirlpool program.
func Decode(address solana.PublicKey, data []byte) (*Pool, error) {
	if len(data) < AccountSize {
		return nil, fmt.Errorf("insufficient data: expected %d bytes, got %d", AccountSize, len(data))
	}

	p := &Pool{Address: address}
	fields := []struct {
		name     string
		from, to int
		dst      interface{}
	}{
		{"tick_spacing", 41, 43, &p.TickSpacing},
		{"fee_rate", 45, 47, &p.FeeRate},
		{"liquidity", 49, 65, &p.Liquidity},
		{"sqrt_price", 65, 81, &p.SqrtPrice},
		{"tick_current_index", 81, 85, &p.TickCurrentIndex},
	}
	for _, f := range fields {
		if err := bin.NewBinDecoder(data[f.from:f.to]).Decode(f.dst); err != nil {
			return nil, fmt.Errorf("decode %s: %w", f.name, err)
		}
	}

	p.TokenMintA = solana.PublicKeyFromBytes(data[101:133])
	p.TokenVaultA = solana.PublicKeyFromBytes(data[133:165])
	p.TokenMintB = solana.PublicKeyFromBytes(data[181:213])
	p.TokenVaultB = solana.PublicKeyFromBytes(data[213:245])
	return p, nil
}

// FeeBps rounds the pool fee up to whole basis points.
func (p *Pool) FeeBps() uint32 {
	return (uint32(p.FeeRate) + 99) / 100
}

// Trades reports whether the pool swaps between the two mints.
func (p *Pool) Trades(mintA, mintB solana.PublicKey) bool {
	return (p.TokenMintA.Equals(mintA) && p.TokenMintB.Equals(mintB)) ||
		(p.TokenMintA.Equals(mintB) && p.TokenMintB.Equals(mintA))
}
