package venue

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/aman-zulfiqar/solana-npi-router/internal/constants"
	"github.com/aman-zulfiqar/solana-npi-router/internal/models"
)

// BookLevel is one price level, both values in human units.
type BookLevel [2]decimal.Decimal

func (l BookLevel) Price() decimal.Decimal { return l[0] }
func (l BookLevel) Size() decimal.Decimal  { return l[1] }

// BookSnapshot is the REST order book payload. Prices are quote per base,
// where base is MintA of the market.
type BookSnapshot struct {
	Market      string      `json:"market"`
	Bids        []BookLevel `json:"bids"`
	Asks        []BookLevel `json:"asks"`
	TakerFeeBps uint32      `json:"takerFeeBps"`
}

// OrderBook quotes an exact-in taker fill by walking book levels.
type OrderBook struct {
	id      string
	baseURL string
	apiKey  string
	http    *http.Client
	markets []PoolRef
}

func NewOrderBook(id, baseURL, apiKey string, hc *http.Client, markets []PoolRef) *OrderBook {
	return &OrderBook{
		id:      id,
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		http:    hc,
		markets: markets,
	}
}

func (o *OrderBook) ID() string       { return o.id }
func (o *OrderBook) Kind() string     { return constants.VenueKindOrderBook }
func (o *OrderBook) Endpoint() string { return o.baseURL }

func (o *OrderBook) Quote(ctx context.Context, pair models.Pair, amountIn uint64) (*models.VenueQuote, error) {
	start := time.Now()

	market, ok := findPool(o.markets, pair)
	if !ok {
		return nil, Unavailable(o.id, ReasonUnsupportedPair, fmt.Errorf("no market for %s", pair))
	}

	var book BookSnapshot
	headers := map[string]string{}
	if o.apiKey != "" {
		headers["x-api-key"] = o.apiKey
	}
	raw, err := getJSON(ctx, o.http, o.id, o.baseURL+"/markets/"+url.PathEscape(market.Address)+"/book", headers, &book)
	if err != nil {
		return nil, err
	}

	if book.TakerFeeBps >= constants.BpsDenominator {
		return nil, Unavailable(o.id, ReasonMalformed, fmt.Errorf("taker fee %d bps", book.TakerFeeBps))
	}

	if err := book.validate(); err != nil {
		return nil, Unavailable(o.id, ReasonMalformed, err)
	}

	sellBase := market.MintA == pair.InputMint
	in := models.RawToDecimal(amountIn, pair.InputDecimals)

	var gross decimal.Decimal
	var levels []BookLevel
	if sellBase {
		levels = book.Bids
		gross, err = sellIntoBids(in, levels)
	} else {
		levels = book.Asks
		gross, err = buyFromAsks(in, levels)
	}
	if err != nil {
		return nil, Unavailable(o.id, ReasonNoLiquidity, err)
	}

	net := gross.Mul(decimal.New(int64(constants.BpsDenominator-book.TakerFeeBps), 0)).
		Div(decimal.New(constants.BpsDenominator, 0))
	out, ok := models.DecimalToRaw(net, pair.OutputDecimals)
	if !ok {
		return nil, Unavailable(o.id, ReasonMalformed, fmt.Errorf("fill %s out of range", net))
	}

	return result(o.id, amountIn, out, impactAgainstTop(in, gross, levels, sellBase), book.TakerFeeBps, start, raw)
}

// validate requires positive levels, bids descending and asks ascending.
func (b *BookSnapshot) validate() error {
	if err := checkLevels("bid", b.Bids, func(prev, cur decimal.Decimal) bool { return cur.LessThanOrEqual(prev) }); err != nil {
		return err
	}
	return checkLevels("ask", b.Asks, func(prev, cur decimal.Decimal) bool { return cur.GreaterThanOrEqual(prev) })
}

func checkLevels(side string, levels []BookLevel, ordered func(prev, cur decimal.Decimal) bool) error {
	for i, lvl := range levels {
		if !lvl.Price().IsPositive() || !lvl.Size().IsPositive() {
			return fmt.Errorf("%s level %d: non-positive price %s or size %s", side, i, lvl.Price(), lvl.Size())
		}
		if i > 0 && !ordered(levels[i-1].Price(), lvl.Price()) {
			return fmt.Errorf("%s level %d: price %s out of order after %s", side, i, lvl.Price(), levels[i-1].Price())
		}
	}
	return nil
}

// sellIntoBids sells base into descending bids and returns quote received.
func sellIntoBids(base decimal.Decimal, bids []BookLevel) (decimal.Decimal, error) {
	remaining := base
	got := decimal.Zero
	for _, lvl := range bids {
		take := decimal.Min(remaining, lvl.Size())
		got = got.Add(take.Mul(lvl.Price()))
		remaining = remaining.Sub(take)
		if remaining.IsZero() {
			return got, nil
		}
	}
	return decimal.Zero, fmt.Errorf("insufficient bid depth: %s unfilled", remaining)
}

// buyFromAsks spends quote against ascending asks and returns base received.
func buyFromAsks(quote decimal.Decimal, asks []BookLevel) (decimal.Decimal, error) {
	remaining := quote
	got := decimal.Zero
	for _, lvl := range asks {
		levelCost := lvl.Size().Mul(lvl.Price())
		if remaining.LessThanOrEqual(levelCost) {
			return got.Add(remaining.Div(lvl.Price())), nil
		}
		got = got.Add(lvl.Size())
		remaining = remaining.Sub(levelCost)
	}
	return decimal.Zero, fmt.Errorf("insufficient ask depth: %s unspent", remaining)
}

// impactAgainstTop compares the pre-fee average fill with the top of book.
// levels must have passed validate.
func impactAgainstTop(in, fill decimal.Decimal, levels []BookLevel, sellBase bool) uint32 {
	if len(levels) == 0 || in.IsZero() || fill.IsZero() {
		return 0
	}
	top := levels[0].Price()
	if !top.IsPositive() {
		return 0
	}
	var ideal decimal.Decimal
	if sellBase {
		ideal = in.Mul(top)
	} else {
		ideal = in.Div(top)
	}
	if !ideal.IsPositive() || fill.GreaterThanOrEqual(ideal) {
		return 0
	}
	bps := ideal.Sub(fill).Div(ideal).Mul(decimal.NewFromInt(constants.BpsDenominator))
	return uint32(bps.Ceil().IntPart())
}
