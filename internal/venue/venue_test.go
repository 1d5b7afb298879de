package venue

import (
	"context"
	"encoding/base64"
	"encoding/binary"
	"encoding/json"
	"errors"
	"math/big"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aman-zulfiqar/solana-npi-router/internal/jupiter"
	"github.com/aman-zulfiqar/solana-npi-router/internal/models"
	"github.com/aman-zulfiqar/solana-npi-router/internal/orca"
	"github.com/aman-zulfiqar/solana-npi-router/internal/rpc"
	"github.com/aman-zulfiqar/solana-npi-router/internal/whirlpool"
)

const (
	solMint  = "So11111111111111111111111111111111111111112"
	usdcMint = "EPjFWdd5AufqSSqeM2qN1xzybapC8G4wEGGkZwyTDt1v"
	vaultA   = "TokenkegQfeZyiNwAJbNbGKPFXCWuBvf9Ss623VQ5DA"
	vaultB   = "ATokenGPvbdGVxr1b2hvZbsiqW5xWH25efTNsLJA8knL"
	poolAddr = "whirLbMiicVdio4qvUfM5KAg6Ct8VwpYzGff3uctyCc"
)

var solUSDC = models.Pair{
	InputMint: solMint, OutputMint: usdcMint,
	InputSymbol: "SOL", OutputSymbol: "USDC",
	InputDecimals: 9, OutputDecimals: 6,
}

func jsonServer(t *testing.T, path string, status int, body string) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if path != "" {
			assert.Equal(t, path, r.URL.Path)
		}
		w.WriteHeader(status)
		_, _ = w.Write([]byte(body))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func assertUnavailable(t *testing.T, err error, reason string) {
	t.Helper()
	require.Error(t, err)
	assert.True(t, errors.Is(err, models.ErrVenueUnavailable), "error %v should be venue unavailable", err)
	assert.Equal(t, reason, ReasonOf(err))
}

func TestOrderBook_SellIntoBids(t *testing.T) {
	srv := jsonServer(t, "/markets/SOL-USDC/book", 200,
		`{"market":"SOL-USDC","bids":[["150","1"],["149","2"]],"asks":[["151","1"],["152","5"]],"takerFeeBps":10}`)
	ob := NewOrderBook("book", srv.URL, "", srv.Client(), []PoolRef{{Address: "SOL-USDC", MintA: solMint, MintB: usdcMint}})

	q, err := ob.Quote(context.Background(), solUSDC, 2_000_000_000)
	require.NoError(t, err)
	// 150 + 149 = 299 USDC gross, less 10 bps
	assert.Equal(t, uint64(298_701_000), q.OutputAmount)
	assert.Equal(t, uint32(10), q.FeeBps)
	assert.Equal(t, uint32(34), q.PriceImpactBps)
	assert.Equal(t, "book", q.VenueID)
	assert.NotEmpty(t, q.Raw)
}

func TestOrderBook_BuyFromAsks(t *testing.T) {
	srv := jsonServer(t, "", 200,
		`{"bids":[["150","1"]],"asks":[["151","1"],["152","5"]],"takerFeeBps":10}`)
	ob := NewOrderBook("book", srv.URL, "", srv.Client(), []PoolRef{{Address: "SOL-USDC", MintA: solMint, MintB: usdcMint}})

	q, err := ob.Quote(context.Background(), solUSDC.Reverse(), 300_000_000)
	require.NoError(t, err)
	// 1 SOL at 151 then 149/152 SOL, less 10 bps
	assert.InDelta(t, 1_978_282_894, float64(q.OutputAmount), 10)
}

func TestOrderBook_InsufficientDepth(t *testing.T) {
	srv := jsonServer(t, "", 200, `{"bids":[["150","1"]],"asks":[],"takerFeeBps":10}`)
	ob := NewOrderBook("book", srv.URL, "", srv.Client(), []PoolRef{{Address: "m", MintA: solMint, MintB: usdcMint}})

	_, err := ob.Quote(context.Background(), solUSDC, 10_000_000_000)
	assertUnavailable(t, err, ReasonNoLiquidity)
}

func TestOrderBook_Failures(t *testing.T) {
	markets := []PoolRef{{Address: "m", MintA: solMint, MintB: usdcMint}}

	t.Run("non-2xx", func(t *testing.T) {
		srv := jsonServer(t, "", 503, `overloaded`)
		_, err := NewOrderBook("book", srv.URL, "", srv.Client(), markets).Quote(context.Background(), solUSDC, 1)
		assertUnavailable(t, err, ReasonHTTPStatus)
		var se *StatusError
		require.ErrorAs(t, err, &se)
		assert.Equal(t, 503, se.StatusCode)
	})

	t.Run("malformed", func(t *testing.T) {
		srv := jsonServer(t, "", 200, `{"bids": "nope"`)
		_, err := NewOrderBook("book", srv.URL, "", srv.Client(), markets).Quote(context.Background(), solUSDC, 1)
		assertUnavailable(t, err, ReasonMalformed)
	})

	for name, body := range map[string]string{
		"zero ask price":   `{"bids":[["150","1"]],"asks":[["0","1"],["152","5"]],"takerFeeBps":10}`,
		"negative bid":     `{"bids":[["-150","1"]],"asks":[["152","5"]],"takerFeeBps":10}`,
		"zero size":        `{"bids":[["150","0"]],"asks":[["152","5"]],"takerFeeBps":10}`,
		"unsorted asks":    `{"bids":[["150","1"]],"asks":[["152","5"],["151","1"]],"takerFeeBps":10}`,
		"unsorted bids":    `{"bids":[["149","1"],["150","2"]],"asks":[["152","5"]],"takerFeeBps":10}`,
		"non-numeric size": `{"bids":[["150","lots"]],"asks":[["152","5"]],"takerFeeBps":10}`,
		"fee of 100%":      `{"bids":[["150","1"]],"asks":[["152","5"]],"takerFeeBps":10000}`,
	} {
		t.Run(name, func(t *testing.T) {
			srv := jsonServer(t, "", 200, body)
			ob := NewOrderBook("book", srv.URL, "", srv.Client(), markets)
			for _, p := range []models.Pair{solUSDC, solUSDC.Reverse()} {
				q, err := ob.Quote(context.Background(), p, 300_000_000)
				assert.Nil(t, q)
				assertUnavailable(t, err, ReasonMalformed)
			}
		})
	}

	t.Run("unknown pair", func(t *testing.T) {
		_, err := NewOrderBook("book", "http://unused", "", http.DefaultClient, nil).Quote(context.Background(), solUSDC, 1)
		assertUnavailable(t, err, ReasonUnsupportedPair)
	})

	t.Run("deadline", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			select {
			case <-r.Context().Done():
			case <-time.After(time.Second):
			}
		}))
		defer srv.Close()

		ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
		defer cancel()
		_, err := NewOrderBook("book", srv.URL, "", srv.Client(), markets).Quote(ctx, solUSDC, 1)
		assertUnavailable(t, err, ReasonTimeout)
	})
}

func TestOracleAMM(t *testing.T) {
	srv := jsonServer(t, "/pools/pool1/state", 200,
		`{"pool":"pool1","oraclePrice":"150","feeBps":5,"reserveA":"10000000000","reserveB":"1000000000"}`)
	amm := NewOracleAMM("oamm", srv.URL, srv.Client(), []PoolRef{{Address: "pool1", MintA: solMint, MintB: usdcMint}})

	q, err := amm.Quote(context.Background(), solUSDC, 1_000_000_000)
	require.NoError(t, err)
	assert.Equal(t, uint64(149_925_000), q.OutputAmount)
	assert.Equal(t, uint32(1499), q.PriceImpactBps)

	back, err := amm.Quote(context.Background(), solUSDC.Reverse(), 150_000_000)
	require.NoError(t, err)
	assert.Equal(t, uint64(999_500_000), back.OutputAmount)

	_, err = amm.Quote(context.Background(), solUSDC, 10_000_000_000)
	assertUnavailable(t, err, ReasonNoLiquidity)
}

func TestOracleAMM_Malformed(t *testing.T) {
	pools := []PoolRef{{Address: "p", MintA: solMint, MintB: usdcMint}}
	for name, body := range map[string]string{
		"non-numeric reserveB": `{"oraclePrice":"150","feeBps":5,"reserveA":"1","reserveB":"plenty"}`,
		"negative reserveA":    `{"oraclePrice":"150","feeBps":5,"reserveA":"-1","reserveB":"1000000000"}`,
		"zero oracle price":    `{"oraclePrice":"0","feeBps":5,"reserveA":"1","reserveB":"1000000000"}`,
		"fee of 100%":          `{"oraclePrice":"150","feeBps":10000,"reserveA":"1","reserveB":"1000000000"}`,
	} {
		t.Run(name, func(t *testing.T) {
			srv := jsonServer(t, "", 200, body)
			amm := NewOracleAMM("oamm", srv.URL, srv.Client(), pools)
			pair := solUSDC
			if name == "negative reserveA" {
				pair = solUSDC.Reverse()
			}
			q, err := amm.Quote(context.Background(), pair, 1_000_000)
			assert.Nil(t, q)
			assertUnavailable(t, err, ReasonMalformed)
		})
	}
}

func TestOracleAMM_ZeroReserve(t *testing.T) {
	srv := jsonServer(t, "", 200, `{"oraclePrice":"150","feeBps":5,"reserveA":"1","reserveB":"0"}`)
	amm := NewOracleAMM("oamm", srv.URL, srv.Client(), []PoolRef{{Address: "p", MintA: solMint, MintB: usdcMint}})

	_, err := amm.Quote(context.Background(), solUSDC, 1_000_000_000)
	assertUnavailable(t, err, ReasonNoLiquidity)
}

func TestAggregator(t *testing.T) {
	quote := func(out string, plan string) string {
		return `{"inputMint":"` + solMint + `","outputMint":"` + usdcMint + `","inAmount":"1000000000","outAmount":"` + out +
			`","priceImpactPct":"0.0005","routePlan":` + plan + `}`
	}
	plan := `[{"swapInfo":{"ammKey":"k","label":"Raydium","inAmount":"1000000000","outAmount":"150000000"},"bps":10000}]`

	t.Run("ok", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, "Raydium", r.URL.Query().Get("dexes"))
			assert.Equal(t, "true", r.URL.Query().Get("onlyDirectRoutes"))
			_, _ = w.Write([]byte(quote("150000000", plan)))
		}))
		defer srv.Close()

		agg := NewAggregator("raydium", jupiter.NewClient(srv.URL, ""), []string{"Raydium"})
		q, err := agg.Quote(context.Background(), solUSDC, 1_000_000_000)
		require.NoError(t, err)
		assert.Equal(t, uint64(150_000_000), q.OutputAmount)
		assert.Equal(t, uint32(5), q.PriceImpactBps)
	})

	t.Run("zero output", func(t *testing.T) {
		srv := jsonServer(t, "", 200, quote("0", plan))
		_, err := NewAggregator("raydium", jupiter.NewClient(srv.URL, ""), nil).Quote(context.Background(), solUSDC, 1)
		assertUnavailable(t, err, ReasonZeroOutput)
	})

	t.Run("no route", func(t *testing.T) {
		srv := jsonServer(t, "", 200, quote("5", `[]`))
		_, err := NewAggregator("raydium", jupiter.NewClient(srv.URL, ""), nil).Quote(context.Background(), solUSDC, 1)
		assertUnavailable(t, err, ReasonNoLiquidity)
	})

	t.Run("malformed numbers", func(t *testing.T) {
		withImpact := func(pct string) string {
			return `{"inputMint":"` + solMint + `","outputMint":"` + usdcMint + `","inAmount":"1000000000","outAmount":"150000000","priceImpactPct":"` +
				pct + `","routePlan":` + plan + `}`
		}
		feePlan := `[{"swapInfo":{"ammKey":"k","label":"Raydium","inAmount":"1000000000","outAmount":"150000000","feeAmount":"lots","feeMint":"` +
			solMint + `"},"bps":10000}]`

		for name, body := range map[string]string{
			"unparseable impact": withImpact("garbage"),
			"impact above 100%":  withImpact("1.5"),
			"impact overflow":    withImpact("429496.7297"),
			"unparseable fee":    quote("150000000", feePlan),
		} {
			t.Run(name, func(t *testing.T) {
				srv := jsonServer(t, "", 200, body)
				q, err := NewAggregator("raydium", jupiter.NewClient(srv.URL, ""), nil).Quote(context.Background(), solUSDC, 1_000_000_000)
				assert.Nil(t, q)
				assertUnavailable(t, err, ReasonMalformed)
			})
		}
	})

	t.Run("http error", func(t *testing.T) {
		srv := jsonServer(t, "", 400, `{"error":"no routes found"}`)
		_, err := NewAggregator("raydium", jupiter.NewClient(srv.URL, ""), nil).Quote(context.Background(), solUSDC, 1)
		assertUnavailable(t, err, ReasonHTTPStatus)
	})
}

// rpcStub answers getTokenAccountBalance and getAccountInfo.
func rpcStub(t *testing.T, balances map[string]string, accounts map[string][]byte) *rpc.Client {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Method string            `json:"method"`
			Params []json.RawMessage `json:"params"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		var addr string
		require.NoError(t, json.Unmarshal(req.Params[0], &addr))

		switch req.Method {
		case "getTokenAccountBalance":
			_, _ = w.Write([]byte(`{"result":{"value":{"amount":"` + balances[addr] + `","decimals":6}}}`))
		case "getAccountInfo":
			data, ok := accounts[addr]
			if !ok {
				_, _ = w.Write([]byte(`{"result":{"value":null}}`))
				return
			}
			enc := base64.StdEncoding.EncodeToString(data)
			_, _ = w.Write([]byte(`{"result":{"value":{"data":["` + enc + `","base64"]}}}`))
		default:
			w.WriteHeader(400)
		}
	}))
	t.Cleanup(srv.Close)
	return rpc.NewClient(rpc.ClientConfig{BaseURL: srv.URL})
}

func TestCPMM(t *testing.T) {
	path := filepath.Join(t.TempDir(), "pools.json")
	require.NoError(t, os.WriteFile(path, []byte(`[{
	  "name":"SOL/USDC","swap_account":"`+poolAddr+`",
	  "token_mint_a":"`+solMint+`","token_mint_b":"`+usdcMint+`",
	  "vault_a":"`+vaultA+`","vault_b":"`+vaultB+`",
	  "fee_numerator":30,"fee_denominator":10000}]`), 0o600))
	registry, err := orca.NewPoolRegistry(path)
	require.NoError(t, err)

	rc := rpcStub(t, map[string]string{vaultA: "1000000000000", vaultB: "150000000000"}, nil)
	c := NewCPMM("orca-legacy", orca.NewClient(rc), registry)

	q, err := c.Quote(context.Background(), solUSDC, 1_000_000_000)
	require.NoError(t, err)
	assert.InDelta(t, 149_400_000, float64(q.OutputAmount), 200_000)
	assert.Equal(t, uint32(30), q.FeeBps)

	empty := NewCPMM("orca-legacy", orca.NewClient(rpcStub(t, map[string]string{vaultA: "0", vaultB: "1"}, nil)), registry)
	_, err = empty.Quote(context.Background(), solUSDC, 1_000_000_000)
	assertUnavailable(t, err, ReasonNoLiquidity)

	_, err = c.Quote(context.Background(), models.Pair{InputMint: solMint, OutputMint: vaultA}, 1)
	assertUnavailable(t, err, ReasonUnsupportedPair)
}

func whirlpoolAccount(liquidity uint64, rawPrice float64) []byte {
	data := make([]byte, whirlpool.AccountSize)
	binary.LittleEndian.PutUint16(data[45:47], 400)
	binary.LittleEndian.PutUint64(data[49:57], liquidity)

	f := new(big.Float).SetFloat64(rawPrice)
	f.Sqrt(f)
	f.Mul(f, new(big.Float).SetInt(new(big.Int).Lsh(big.NewInt(1), 64)))
	sp, _ := f.Int(nil)
	lo := new(big.Int).And(sp, new(big.Int).SetUint64(^uint64(0)))
	hi := new(big.Int).Rsh(sp, 64)
	binary.LittleEndian.PutUint64(data[65:73], lo.Uint64())
	binary.LittleEndian.PutUint64(data[73:81], hi.Uint64())

	copy(data[101:133], solana.MustPublicKeyFromBase58(solMint).Bytes())
	copy(data[181:213], solana.MustPublicKeyFromBase58(usdcMint).Bytes())
	return data
}

func TestCLMM(t *testing.T) {
	pools := []PoolRef{{Address: poolAddr, MintA: solMint, MintB: usdcMint}}
	rc := rpcStub(t, nil, map[string][]byte{poolAddr: whirlpoolAccount(5_000_000_000_000, 0.15)})

	q, err := NewCLMM("whirlpool", rc, pools).Quote(context.Background(), solUSDC, 1_000_000_000)
	require.NoError(t, err)
	assert.InDelta(t, 149_900_000, float64(q.OutputAmount), 150_000)
	assert.Equal(t, uint32(4), q.FeeBps)

	dry := rpcStub(t, nil, map[string][]byte{poolAddr: whirlpoolAccount(0, 0.15)})
	_, err = NewCLMM("whirlpool", dry, pools).Quote(context.Background(), solUSDC, 1_000_000_000)
	assertUnavailable(t, err, ReasonNoLiquidity)

	short := rpcStub(t, nil, map[string][]byte{poolAddr: make([]byte, 10)})
	_, err = NewCLMM("whirlpool", short, pools).Quote(context.Background(), solUSDC, 1_000_000_000)
	assertUnavailable(t, err, ReasonMalformed)

	missing := rpcStub(t, nil, nil)
	_, err = NewCLMM("whirlpool", missing, pools).Quote(context.Background(), solUSDC, 1_000_000_000)
	assertUnavailable(t, err, ReasonTransport)
}
