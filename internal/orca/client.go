package orca

import (
	"context"
	"fmt"
	"strconv"

	"github.com/gagliardetto/solana-go"

	"github.com/aman-zulfiqar/solana-npi-router/internal/rpc"
)

// Client fetches Orca pool vault balances over RPC.
type Client struct {
	rpcClient *rpc.Client
}

// NewClient wraps an existing RPC client.
func NewClient(rpcClient *rpc.Client) *Client {
	return &Client{rpcClient: rpcClient}
}

// Endpoint is the RPC URL backing this client.
func (c *Client) Endpoint() string {
	return c.rpcClient.Endpoint()
}

// FetchVaultBalances fetches token account balances for pool vaults.
func (c *Client) FetchVaultBalances(
	ctx context.Context,
	vaultA, vaultB solana.PublicKey,
) (balanceA, balanceB uint64, err error) {

	balA, err := c.getTokenAccountBalance(ctx, vaultA)
	if err != nil {
		return 0, 0, fmt.Errorf("failed to fetch vault A balance: %w", err)
	}

	balB, err := c.getTokenAccountBalance(ctx, vaultB)
	if err != nil {
		return 0, 0, fmt.Errorf("failed to fetch vault B balance: %w", err)
	}

	return balA, balB, nil
}

func (c *Client) getTokenAccountBalance(ctx context.Context, account solana.PublicKey) (uint64, error) {
	bal, err := c.rpcClient.GetTokenAccountBalance(ctx, account.String())
	if err != nil {
		return 0, err
	}

	amount, err := strconv.ParseUint(bal.Amount, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid amount format: %w", err)
	}
	return amount, nil
}
