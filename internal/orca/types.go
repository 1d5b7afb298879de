package orca

import (
	"github.com/gagliardetto/solana-go"
)

// Legacy Orca constant-product pool program ID
const (
	LegacyProgramID = "9W959DqEETiGZocYWCQPaJ6sBmUzgfxXfqGeTEdp3aQP"
)

// SwapQuote contains quote details for a swap
type SwapQuote struct {
	PoolName       string
	InputMint      solana.PublicKey
	OutputMint     solana.PublicKey
	AmountIn       uint64
	AmountOut      uint64
	FeeBps         uint32
	PriceImpactBps uint32
	ReserveIn      uint64
	ReserveOut     uint64
}

// PoolState represents current on-chain state (reserves)
type PoolState struct {
	Pool      *LegacyPool
	ReserveA  uint64
	ReserveB  uint64
	Timestamp int64
}
