package constants

import "time"

// Redis keys
const (
	RedisKeySwitchIndex  = "switches:index"
	RedisKeySwitchPrefix = "switches:venue:"
)

// Redis Pub/Sub channels
const (
	PubSubChannelDecisions       = "npi:decisions"
	PubSubChannelDecisionsByPair = "npi:decisions:pair:"
)

// ClickHouse tables
const (
	TableReliabilitySamples = "reliability_samples"
	TableOracleSamples      = "oracle_samples"
	TableDecisions          = "npi_decisions"
)

// Basis points
const (
	BpsDenominator = 10_000
)

// Routing defaults
const (
	DefaultDeadline       = 2500 * time.Millisecond
	DefaultVenueTimeout   = 2 * time.Second
	DefaultSlippageBps    = 50
	MaxSlippageBps        = 5_000
	DefaultTelemetryQueue = 4096
)

// Venue kinds
const (
	VenueKindAggregator = "aggregator"
	VenueKindCPMM       = "cpmm"
	VenueKindCLMM       = "clmm"
	VenueKindOrderBook  = "orderbook"
	VenueKindOracleAMM  = "oracleamm"
)

// Baseline venue id, never an execution target.
const BaselineVenueID = "baseline:jupiter"

// DEX program addresses
var ProgramAddresses = map[string]string{
	"Jupiter": "JUP6LkbZbjS1jKKwapdHNy74zcZ3tLUZoi5QNyVTaV4",
	// Orca legacy constant-product swap program
	"Orca": "9W959DqEETiGZocYWCQPaJ6sBmUzgfxXfqGeTEdp3aQP",
	// Orca Whirlpool program
	"OrcaWhirlpool": "whirLbMiicVdio4qvUfM5KAg6Ct8VwpYzGff3uctyCc",
}

// Token is a registry entry for a tradable mint.
type Token struct {
	Symbol   string `mapstructure:"symbol" json:"symbol"`
	Mint     string `mapstructure:"mint" json:"mint"`
	Decimals uint8  `mapstructure:"decimals" json:"decimals"`
}

// DefaultTokens seeds the token registry when configuration has none.
var DefaultTokens = []Token{
	{Symbol: "SOL", Mint: "So11111111111111111111111111111111111111112", Decimals: 9},
	{Symbol: "USDC", Mint: "EPjFWdd5AufqSSqeM2qN1xzybapC8G4wEGGkZwyTDt1v", Decimals: 6},
	{Symbol: "USDT", Mint: "Es9vMFrzaCERmJfrF4H2FYD4KCoNkY11McCe8BenwNYB", Decimals: 6},
	{Symbol: "mSOL", Mint: "mSoLzYCxHdYgdzU16g5QSh3i5K3z3KZK7ytfqcJm7So", Decimals: 9},
	{Symbol: "JUP", Mint: "JUPyiwrYJFskUPiHa7hkeR8VUtAeFoSYbKedZNsDvCN", Decimals: 6},
	{Symbol: "BONK", Mint: "DezXAZ8z7PnrnRJjz3wXBoRgixCa6xjnB7YaB1pPB263", Decimals: 5},
	{Symbol: "RAY", Mint: "4k3Dyjzvzp8eMZWUXbBCjEvwSkkk59S5iCNLY3QrkX6R", Decimals: 6},
}
