package oracle

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/aman-zulfiqar/solana-npi-router/internal/models"
)

// Feed reads a pair price directly from a generic price-feed service:
// GET {base}/price?input=<mint>&output=<mint>.
type Feed struct {
	id      string
	baseURL string
	apiKey  string
	http    *http.Client
}

func NewFeed(id, baseURL, apiKey string, hc *http.Client) *Feed {
	return &Feed{id: id, baseURL: strings.TrimRight(baseURL, "/"), apiKey: apiKey, http: hc}
}

func (f *Feed) ID() string { return f.id }

type feedResponse struct {
	Price       string `json:"price"`
	Expo        int32  `json:"expo"`
	Conf        string `json:"conf"`
	PublishTime int64  `json:"publishTime"`
}

func (f *Feed) Price(ctx context.Context, pair models.Pair) (*models.OracleSample, error) {
	q := url.Values{}
	q.Set("input", pair.InputMint)
	q.Set("output", pair.OutputMint)

	var headers map[string]string
	if f.apiKey != "" {
		headers = map[string]string{"x-api-key": f.apiKey}
	}
	body, err := fetch(ctx, f.http, f.id, f.baseURL+"/price?"+q.Encode(), headers)
	if err != nil {
		return nil, err
	}

	var resp feedResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("feed %s: decode: %w", f.id, err)
	}
	price, err := scaled(resp.Price, resp.Expo)
	if err != nil {
		return nil, fmt.Errorf("feed %s: %w", f.id, err)
	}
	if !price.IsPositive() {
		return nil, fmt.Errorf("feed %s: non-positive price %s", f.id, price)
	}
	conf := decimal.Zero
	if resp.Conf != "" {
		if conf, err = scaled(resp.Conf, resp.Expo); err != nil {
			return nil, fmt.Errorf("feed %s: %w", f.id, err)
		}
	}

	return &models.OracleSample{
		ProviderID:    f.id,
		Pair:          pair.String(),
		Price:         price,
		ConfidenceBps: confidenceBps(conf, price),
		PublishTime:   unixTime(resp.PublishTime),
		FetchedAt:     time.Now().UTC(),
	}, nil
}
