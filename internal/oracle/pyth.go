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

const DefaultHermesURL = "https://hermes.pyth.network"

// Pyth reads USD feeds from a Hermes endpoint and crosses them into a pair
// price: USD(input) / USD(output).
type Pyth struct {
	id      string
	baseURL string
	http    *http.Client
	feeds   map[string]string // mint -> feed id (hex, no 0x)
}

// NewPyth builds a Hermes provider. feeds maps mint addresses to feed ids.
func NewPyth(id, baseURL string, hc *http.Client, feeds map[string]string) *Pyth {
	if baseURL == "" {
		baseURL = DefaultHermesURL
	}
	norm := make(map[string]string, len(feeds))
	for mint, feed := range feeds {
		norm[mint] = normalizeFeedID(feed)
	}
	return &Pyth{id: id, baseURL: strings.TrimRight(baseURL, "/"), http: hc, feeds: norm}
}

func normalizeFeedID(id string) string {
	return strings.ToLower(strings.TrimPrefix(strings.TrimSpace(id), "0x"))
}

func (p *Pyth) ID() string { return p.id }

type hermesPrice struct {
	Price       string `json:"price"`
	Conf        string `json:"conf"`
	Expo        int32  `json:"expo"`
	PublishTime int64  `json:"publish_time"`
}

type hermesResponse struct {
	Parsed []struct {
		ID    string      `json:"id"`
		Price hermesPrice `json:"price"`
	} `json:"parsed"`
}

func (p *Pyth) Price(ctx context.Context, pair models.Pair) (*models.OracleSample, error) {
	inFeed, ok := p.feeds[pair.InputMint]
	if !ok {
		return nil, fmt.Errorf("pyth: no feed for %s", pair.InputMint)
	}
	outFeed, ok := p.feeds[pair.OutputMint]
	if !ok {
		return nil, fmt.Errorf("pyth: no feed for %s", pair.OutputMint)
	}

	q := url.Values{}
	q.Add("ids[]", inFeed)
	q.Add("ids[]", outFeed)
	q.Set("parsed", "true")

	body, err := fetch(ctx, p.http, p.id, p.baseURL+"/v2/updates/price/latest?"+q.Encode(), nil)
	if err != nil {
		return nil, err
	}

	var resp hermesResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("pyth: decode: %w", err)
	}

	byID := make(map[string]hermesPrice, len(resp.Parsed))
	for _, e := range resp.Parsed {
		byID[normalizeFeedID(e.ID)] = e.Price
	}

	inPx, inConf, inTime, err := usd(byID, inFeed)
	if err != nil {
		return nil, err
	}
	outPx, outConf, outTime, err := usd(byID, outFeed)
	if err != nil {
		return nil, err
	}

	// relative confidence of a ratio is the sum of the relative confidences
	conf := confidenceBps(inConf, inPx) + confidenceBps(outConf, outPx)
	published := inTime
	if outTime.Before(published) {
		published = outTime
	}

	return &models.OracleSample{
		ProviderID:    p.id,
		Pair:          pair.String(),
		Price:         inPx.Div(outPx),
		ConfidenceBps: conf,
		PublishTime:   published,
		FetchedAt:     time.Now().UTC(),
	}, nil
}

func usd(byID map[string]hermesPrice, feed string) (price, conf decimal.Decimal, published time.Time, err error) {
	hp, ok := byID[feed]
	if !ok {
		return price, conf, published, fmt.Errorf("pyth: feed %s missing from response", feed)
	}
	price, err = scaled(hp.Price, hp.Expo)
	if err != nil {
		return price, conf, published, err
	}
	if !price.IsPositive() {
		return price, conf, published, fmt.Errorf("pyth: non-positive price for feed %s", feed)
	}
	conf, err = scaled(hp.Conf, hp.Expo)
	if err != nil {
		return price, conf, published, err
	}
	return price, conf, unixTime(hp.PublishTime), nil
}
