package tokens

import (
	"fmt"
	"strings"

	"github.com/gagliardetto/solana-go"

	"github.com/aman-zulfiqar/solana-npi-router/internal/constants"
	"github.com/aman-zulfiqar/solana-npi-router/internal/models"
)

// Registry resolves symbols and mints to token metadata.
type Registry struct {
	bySymbol map[string]constants.Token
	byMint   map[string]constants.Token
}

// NewRegistry validates every mint and indexes the tokens.
func NewRegistry(tokens []constants.Token) (*Registry, error) {
	if len(tokens) == 0 {
		tokens = constants.DefaultTokens
	}
	r := &Registry{
		bySymbol: make(map[string]constants.Token, len(tokens)),
		byMint:   make(map[string]constants.Token, len(tokens)),
	}
	for _, t := range tokens {
		if _, err := solana.PublicKeyFromBase58(t.Mint); err != nil {
			return nil, fmt.Errorf("token %s: invalid mint %q: %w", t.Symbol, t.Mint, err)
		}
		sym := strings.ToUpper(strings.TrimSpace(t.Symbol))
		if sym == "" {
			return nil, fmt.Errorf("token with mint %s has no symbol", t.Mint)
		}
		if _, dup := r.bySymbol[sym]; dup {
			return nil, fmt.Errorf("duplicate token symbol %s", sym)
		}
		r.bySymbol[sym] = t
		r.byMint[t.Mint] = t
	}
	return r, nil
}

// Resolve accepts either a symbol (case-insensitive) or a mint address.
func (r *Registry) Resolve(ref string) (constants.Token, error) {
	ref = strings.TrimSpace(ref)
	if t, ok := r.byMint[ref]; ok {
		return t, nil
	}
	if t, ok := r.bySymbol[strings.ToUpper(ref)]; ok {
		return t, nil
	}
	return constants.Token{}, fmt.Errorf("%w: unknown token %q", models.ErrInvalidRequest, ref)
}

// Pair builds a validated pair from two token references.
func (r *Registry) Pair(input, output string) (models.Pair, error) {
	in, err := r.Resolve(input)
	if err != nil {
		return models.Pair{}, err
	}
	out, err := r.Resolve(output)
	if err != nil {
		return models.Pair{}, err
	}
	if in.Mint == out.Mint {
		return models.Pair{}, fmt.Errorf("%w: input and output token must differ", models.ErrInvalidRequest)
	}
	return models.Pair{
		InputMint:      in.Mint,
		OutputMint:     out.Mint,
		InputSymbol:    in.Symbol,
		OutputSymbol:   out.Symbol,
		InputDecimals:  in.Decimals,
		OutputDecimals: out.Decimals,
	}, nil
}

// All returns the registered tokens.
func (r *Registry) All() []constants.Token {
	out := make([]constants.Token, 0, len(r.byMint))
	for _, t := range r.byMint {
		out = append(out, t)
	}
	return out
}
