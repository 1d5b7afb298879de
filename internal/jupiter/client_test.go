package jupiter

import (
	"context"
	"math"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleQuote = `{
  "inputMint": "So11111111111111111111111111111111111111112",
  "outputMint": "EPjFWdd5AufqSSqeM2qN1xzybapC8G4wEGGkZwyTDt1v",
  "inAmount": "1000000000",
  "outAmount": "150250000",
  "otherAmountThreshold": "149498750",
  "swapMode": "ExactIn",
  "slippageBps": 50,
  "priceImpactPct": "0.0012",
  "routePlan": [
    {"swapInfo": {"ammKey": "amm1", "label": "Whirlpool", "inputMint": "So11111111111111111111111111111111111111112",
      "outputMint": "EPjFWdd5AufqSSqeM2qN1xzybapC8G4wEGGkZwyTDt1v", "inAmount": "1000000000", "outAmount": "150250000",
      "feeAmount": "3000000", "feeMint": "So11111111111111111111111111111111111111112"}, "bps": 10000}
  ]
}`

func TestQuote(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/quote", r.URL.Path)
		assert.Equal(t, "1000000000", r.URL.Query().Get("amount"))
		assert.Equal(t, "Whirlpool,Raydium", r.URL.Query().Get("dexes"))
		assert.Equal(t, "secret", r.Header.Get("x-api-key"))
		_, _ = w.Write([]byte(sampleQuote))
	}))
	defer srv.Close()

	c := NewClient(srv.URL+"/", "secret").WithRateLimit(100, 1)
	q, err := c.Quote(context.Background(), QuoteRequest{
		InputMint:  "So11111111111111111111111111111111111111112",
		OutputMint: "EPjFWdd5AufqSSqeM2qN1xzybapC8G4wEGGkZwyTDt1v",
		Amount:     "1000000000",
		Dexes:      []string{"Whirlpool", "Raydium"},
	})
	require.NoError(t, err)

	out, err := q.OutAmountRaw()
	require.NoError(t, err)
	assert.Equal(t, uint64(150250000), out)
	impact, err := q.PriceImpactBps()
	require.NoError(t, err)
	assert.Equal(t, uint32(12), impact)
	fee, err := q.FeeBps()
	require.NoError(t, err)
	assert.Equal(t, uint32(30), fee)
	assert.Equal(t, []string{"Whirlpool"}, q.Labels())
	assert.NotEmpty(t, q.Raw)
}

func TestQuote_HTTPError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"error":"no route"}`))
	}))
	defer srv.Close()

	_, err := NewClient(srv.URL, "").Quote(context.Background(), QuoteRequest{
		InputMint: "a", OutputMint: "b", Amount: "1",
	})
	var he *HTTPError
	require.ErrorAs(t, err, &he)
	assert.Equal(t, http.StatusBadRequest, he.StatusCode)
	assert.Contains(t, he.Error(), "no route")
}

func TestQuote_Validation(t *testing.T) {
	_, err := NewClient("", "").Quote(context.Background(), QuoteRequest{OutputMint: "b", Amount: "1"})
	assert.Error(t, err)
}

func TestQuoteResponse_PriceImpactBps(t *testing.T) {
	cases := []struct {
		pct     string
		want    uint32
		wantErr bool
	}{
		{pct: "0.0012", want: 12},
		{pct: "-0.0012", want: 12},
		{pct: "0", want: 0},
		{pct: "429496.7297", want: math.MaxUint32},
		{pct: "garbage", wantErr: true},
		{pct: "", wantErr: true},
	}
	for _, tc := range cases {
		q := QuoteResponse{PriceImpactPct: tc.pct}
		got, err := q.PriceImpactBps()
		if tc.wantErr {
			assert.Error(t, err, tc.pct)
			continue
		}
		require.NoError(t, err, tc.pct)
		assert.Equal(t, tc.want, got, tc.pct)
	}
}

func TestQuoteResponse_FeeBps(t *testing.T) {
	sol := "So11111111111111111111111111111111111111112"
	fee := func(amount string) RoutePlanStep {
		return RoutePlanStep{SwapInfo: SwapInfo{FeeAmount: &amount, FeeMint: &sol}}
	}

	q := QuoteResponse{InputMint: sol, InAmount: "1000000000", RoutePlan: []RoutePlanStep{fee("3000000")}}
	got, err := q.FeeBps()
	require.NoError(t, err)
	assert.Equal(t, uint32(30), got)

	q.RoutePlan = []RoutePlanStep{fee("oops")}
	_, err = q.FeeBps()
	assert.Error(t, err)

	q = QuoteResponse{InputMint: sol, InAmount: "1", RoutePlan: []RoutePlanStep{fee("1000000000000")}}
	got, err = q.FeeBps()
	require.NoError(t, err)
	assert.Equal(t, uint32(math.MaxUint32), got)

	q = QuoteResponse{InputMint: sol, InAmount: "x"}
	_, err = q.FeeBps()
	assert.Error(t, err)
}
