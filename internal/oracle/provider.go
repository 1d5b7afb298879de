package oracle

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/aman-zulfiqar/solana-npi-router/internal/models"
)

// Provider returns one price sample for a pair, as output per input in
// human units.
type Provider interface {
	ID() string
	Price(ctx context.Context, pair models.Pair) (*models.OracleSample, error)
}

// HTTPError is a non-2xx oracle response.
type HTTPError struct {
	Provider   string
	StatusCode int
	Body       string
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("oracle %s http %d: %s", e.Provider, e.StatusCode, e.Body)
}

func fetch(ctx context.Context, hc *http.Client, provider, url string, headers map[string]string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("accept", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	res, err := hc.Do(req)
	if err != nil {
		return nil, err
	}
	defer res.Body.Close()

	body, err := io.ReadAll(io.LimitReader(res.Body, 1<<20))
	if err != nil {
		return nil, err
	}
	if res.StatusCode < 200 || res.StatusCode >= 300 {
		return nil, &HTTPError{Provider: provider, StatusCode: res.StatusCode, Body: strings.TrimSpace(string(body))}
	}
	return body, nil
}

// scaled turns an integer mantissa and base-10 exponent into a decimal.
func scaled(mantissa string, expo int32) (decimal.Decimal, error) {
	m, err := decimal.NewFromString(strings.TrimSpace(mantissa))
	if err != nil {
		return decimal.Zero, fmt.Errorf("invalid mantissa %q: %w", mantissa, err)
	}
	return m.Shift(expo), nil
}

// confidenceBps expresses conf relative to price in whole bps, rounded up.
func confidenceBps(conf, price decimal.Decimal) uint32 {
	if !price.IsPositive() {
		return 0
	}
	return uint32(conf.Abs().Div(price).Mul(decimal.NewFromInt(10000)).Ceil().IntPart())
}

func unixTime(sec int64) time.Time {
	return time.Unix(sec, 0).UTC()
}
