package orca

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/gagliardetto/solana-go"
)

// LegacyPoolConfig represents a pool entry in the JSON config
type LegacyPoolConfig struct {
	Name           string `json:"name"`
	ProgramID      string `json:"program_id"`
	SwapAccount    string `json:"swap_account"`
	TokenMintA     string `json:"token_mint_a"`
	TokenMintB     string `json:"token_mint_b"`
	VaultA         string `json:"vault_a"`
	VaultB         string `json:"vault_b"`
	FeeNumerator   uint64 `json:"fee_numerator"`
	FeeDenominator uint64 `json:"fee_denominator"`
}

// LegacyPool represents a parsed, ready-to-use pool configuration
type LegacyPool struct {
	Name           string
	ProgramID      solana.PublicKey
	SwapAccount    solana.PublicKey
	TokenMintA     solana.PublicKey
	TokenMintB     solana.PublicKey
	VaultA         solana.PublicKey
	VaultB         solana.PublicKey
	FeeNumerator   uint64
	FeeDenominator uint64
}

// PoolRegistry holds all configured pools
type PoolRegistry struct {
	pools []LegacyPool
}

// NewPoolRegistryFromPools builds a registry from already-parsed pools.
func NewPoolRegistryFromPools(pools []LegacyPool) *PoolRegistry {
	return &PoolRegistry{pools: pools}
}

// NewPoolRegistry loads pools from a JSON file
func NewPoolRegistry(configPath string) (*PoolRegistry, error) {
	pools, err := LoadLegacyPoolsFromJSON(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load pools: %w", err)
	}

	return &PoolRegistry{
		pools: pools,
	}, nil
}

// LoadLegacyPoolsFromJSON reads and parses pool configurations
func LoadLegacyPoolsFromJSON(path string) ([]LegacyPool, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var configs []LegacyPoolConfig
	if err := json.Unmarshal(data, &configs); err != nil {
		return nil, fmt.Errorf("failed to parse JSON: %w", err)
	}

	pools := make([]LegacyPool, 0, len(configs))
	for i, cfg := range configs {
		pool, err := parsePoolConfig(cfg)
		if err != nil {
			return nil, fmt.Errorf("pool %d (%s): %w", i, cfg.Name, err)
		}
		pools = append(pools, pool)
	}

	return pools, nil
}

// parsePoolConfig converts a config struct to a LegacyPool with validation
func parsePoolConfig(cfg LegacyPoolConfig) (LegacyPool, error) {
	if cfg.FeeDenominator == 0 {
		return LegacyPool{}, fmt.Errorf("fee_denominator must be > 0")
	}
	if cfg.FeeNumerator >= cfg.FeeDenominator {
		return LegacyPool{}, fmt.Errorf("fee_numerator must be below fee_denominator")
	}
	if cfg.ProgramID == "" {
		cfg.ProgramID = LegacyProgramID
	}

	pool := LegacyPool{
		Name:           cfg.Name,
		FeeNumerator:   cfg.FeeNumerator,
		FeeDenominator: cfg.FeeDenominator,
	}

	var err error
	parse := func(field, value string) solana.PublicKey {
		if err != nil {
			return solana.PublicKey{}
		}
		pk, perr := solana.PublicKeyFromBase58(value)
		if perr != nil {
			err = fmt.Errorf("%s: %w", field, perr)
		}
		return pk
	}

	pool.ProgramID = parse("program_id", cfg.ProgramID)
	pool.SwapAccount = parse("swap_account", cfg.SwapAccount)
	pool.TokenMintA = parse("token_mint_a", cfg.TokenMintA)
	pool.TokenMintB = parse("token_mint_b", cfg.TokenMintB)
	pool.VaultA = parse("vault_a", cfg.VaultA)
	pool.VaultB = parse("vault_b", cfg.VaultB)
	if err != nil {
		return LegacyPool{}, err
	}

	return pool, nil
}

// FindPoolByMints searches for a pool matching the given token pair
func (r *PoolRegistry) FindPoolByMints(
	mintA, mintB solana.PublicKey,
) (*LegacyPool, error) {

	for i := range r.pools {
		pool := &r.pools[i]

		// Check both directions: A->B and B->A
		if (pool.TokenMintA.Equals(mintA) && pool.TokenMintB.Equals(mintB)) ||
			(pool.TokenMintA.Equals(mintB) && pool.TokenMintB.Equals(mintA)) {
			return pool, nil
		}
	}

	return nil, fmt.Errorf("no pool found for mints %s / %s", mintA, mintB)
}

// PoolCount returns the number of registered pools
func (r *PoolRegistry) PoolCount() int {
	return len(r.pools)
}
