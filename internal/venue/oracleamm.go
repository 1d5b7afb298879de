package venue

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/aman-zulfiqar/solana-npi-router/internal/constants"
	"github.com/aman-zulfiqar/solana-npi-router/internal/models"
)

// OracleAMMState is the pool state payload. OraclePrice is MintB per MintA
// in human units; reserves are raw base units.
type OracleAMMState struct {
	Pool        string          `json:"pool"`
	OraclePrice decimal.Decimal `json:"oraclePrice"`
	FeeBps      uint32          `json:"feeBps"`
	ReserveA    string          `json:"reserveA"`
	ReserveB    string          `json:"reserveB"`
}

// OracleAMM quotes oracle-priced pools: the fill happens at the oracle
// price less the pool fee, capped by the output reserve.
type OracleAMM struct {
	id      string
	baseURL string
	http    *http.Client
	pools   []PoolRef
}

func NewOracleAMM(id, baseURL string, hc *http.Client, pools []PoolRef) *OracleAMM {
	return &OracleAMM{id: id, baseURL: strings.TrimRight(baseURL, "/"), http: hc, pools: pools}
}

func (o *OracleAMM) ID() string       { return o.id }
func (o *OracleAMM) Kind() string     { return constants.VenueKindOracleAMM }
func (o *OracleAMM) Endpoint() string { return o.baseURL }

func (o *OracleAMM) Quote(ctx context.Context, pair models.Pair, amountIn uint64) (*models.VenueQuote, error) {
	start := time.Now()

	ref, ok := findPool(o.pools, pair)
	if !ok {
		return nil, Unavailable(o.id, ReasonUnsupportedPair, fmt.Errorf("no pool for %s", pair))
	}

	var st OracleAMMState
	raw, err := getJSON(ctx, o.http, o.id, o.baseURL+"/pools/"+url.PathEscape(ref.Address)+"/state", nil, &st)
	if err != nil {
		return nil, err
	}
	if !st.OraclePrice.IsPositive() {
		return nil, Unavailable(o.id, ReasonMalformed, fmt.Errorf("non-positive oracle price %s", st.OraclePrice))
	}
	if st.FeeBps >= constants.BpsDenominator {
		return nil, Unavailable(o.id, ReasonMalformed, fmt.Errorf("fee %d bps", st.FeeBps))
	}

	aToB := ref.MintA == pair.InputMint
	reserveStr := st.ReserveB
	if !aToB {
		reserveStr = st.ReserveA
	}
	reserveOut, err := strconv.ParseUint(reserveStr, 10, 64)
	if err != nil {
		return nil, Unavailable(o.id, ReasonMalformed, fmt.Errorf("reserve: %w", err))
	}
	if reserveOut == 0 {
		return nil, Unavailable(o.id, ReasonNoLiquidity, nil)
	}

	in := models.RawToDecimal(amountIn, pair.InputDecimals)
	var gross decimal.Decimal
	if aToB {
		gross = in.Mul(st.OraclePrice)
	} else {
		gross = in.Div(st.OraclePrice)
	}
	net := gross.Mul(decimal.New(int64(constants.BpsDenominator-st.FeeBps), 0)).Div(decimal.New(constants.BpsDenominator, 0))

	out, ok := models.DecimalToRaw(net, pair.OutputDecimals)
	if !ok {
		return nil, Unavailable(o.id, ReasonMalformed, fmt.Errorf("output %s out of range", net))
	}
	if out > reserveOut {
		return nil, Unavailable(o.id, ReasonNoLiquidity, fmt.Errorf("output %d exceeds reserve %d", out, reserveOut))
	}

	// share of the reserve consumed stands in for impact
	impact := models.RawToDecimal(out, 0).
		Mul(decimal.New(constants.BpsDenominator, 0)).
		Div(models.RawToDecimal(reserveOut, 0)).
		Floor()
	return result(o.id, amountIn, out, uint32(impact.IntPart()), st.FeeBps, start, raw)
}
