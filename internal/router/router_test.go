package router

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aman-zulfiqar/solana-npi-router/internal/constants"
	"github.com/aman-zulfiqar/solana-npi-router/internal/models"
	"github.com/aman-zulfiqar/solana-npi-router/internal/npi"
	"github.com/aman-zulfiqar/solana-npi-router/internal/oracle"
	"github.com/aman-zulfiqar/solana-npi-router/internal/reliability"
	"github.com/aman-zulfiqar/solana-npi-router/internal/venue"
)

var pair = models.Pair{
	InputMint: "in-mint", OutputMint: "out-mint",
	InputSymbol: "IN", OutputSymbol: "OUT",
	InputDecimals: 6, OutputDecimals: 6,
}

type fakeVenue struct {
	id    string
	out   uint64
	delay time.Duration
	// hang ignores cancellation, like a venue stuck in a read
	hang  bool
	err   error
	calls atomic.Int32
}

func (f *fakeVenue) ID() string       { return f.id }
func (f *fakeVenue) Kind() string     { return constants.VenueKindCPMM }
func (f *fakeVenue) Endpoint() string { return "fake://" + f.id }

func (f *fakeVenue) Quote(ctx context.Context, _ models.Pair, amountIn uint64) (*models.VenueQuote, error) {
	f.calls.Add(1)
	if f.hang {
		time.Sleep(f.delay)
	} else if f.delay > 0 {
		select {
		case <-time.After(f.delay):
		case <-ctx.Done():
			return nil, venue.Unavailable(f.id, venue.ReasonTransport, ctx.Err())
		}
	}
	if f.err != nil {
		return nil, venue.Unavailable(f.id, venue.ReasonHTTPStatus, f.err)
	}
	return &models.VenueQuote{VenueID: f.id, InputAmount: amountIn, OutputAmount: f.out, LatencyMs: 1, FetchedAt: time.Now()}, nil
}

type fakeOracle struct {
	ref *models.ReferencePrice
	err error
}

func (f *fakeOracle) GetReferencePrice(context.Context, models.Pair) (*models.ReferencePrice, error) {
	return f.ref, f.err
}

type fakeBaseline struct {
	out uint64
	err error
}

func (f *fakeBaseline) GetBaseline(_ context.Context, _ models.Pair, amountIn uint64) (*models.VenueQuote, error) {
	if f.err != nil {
		return nil, f.err
	}
	return &models.VenueQuote{VenueID: constants.BaselineVenueID, InputAmount: amountIn, OutputAmount: f.out}, nil
}

type fakeSwitches struct {
	disabled map[string]bool
	err      error
}

func (f *fakeSwitches) IsDisabled(_ context.Context, id string) (bool, error) {
	return f.disabled[id], f.err
}

type eventLog struct {
	mu     sync.Mutex
	events []models.DecisionEvent
}

func (e *eventLog) PublishDecision(ev models.DecisionEvent) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.events = append(e.events, ev)
}

func (e *eventLog) len() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.events)
}

func quietLogger() *logrus.Logger {
	l := logrus.New()
	l.SetLevel(logrus.PanicLevel)
	return l
}

func priceOne() *fakeOracle {
	return &fakeOracle{ref: &models.ReferencePrice{Price: decimal.NewFromInt(1), ConfidenceBps: 10, ProviderID: "pyth"}}
}

func newRouter(t *testing.T, cfg Config) (*Router, *eventLog) {
	t.Helper()
	if cfg.Tracker == nil {
		cfg.Tracker = reliability.NewTracker(reliability.Config{Logger: quietLogger()})
	}
	if cfg.Engine == nil {
		e, err := npi.NewEngine(npi.DefaultPolicy())
		require.NoError(t, err)
		cfg.Engine = e
	}
	events := &eventLog{}
	if cfg.Events == nil {
		cfg.Events = events
	}
	if cfg.Deadline == 0 {
		cfg.Deadline = time.Second
	}
	cfg.Logger = quietLogger()
	r, err := New(cfg)
	require.NoError(t, err)
	return r, events
}

func threeVenues() []venue.Adapter {
	return []venue.Adapter{
		&fakeVenue{id: "cpmm", out: 980},
		&fakeVenue{id: "clmm", out: 1005},
		&fakeVenue{id: "book", out: 990},
	}
}

func TestQuote_CleanAggregation(t *testing.T) {
	r, events := newRouter(t, Config{
		Adapters: threeVenues(),
		Oracle:   priceOne(),
		Baseline: &fakeBaseline{out: 995},
	})

	res, err := r.Quote(context.Background(), Request{Pair: pair, AmountIn: 1000})
	require.NoError(t, err)

	assert.Equal(t, []string{"clmm"}, res.Decision.Selected.Venues)
	opp := res.Plan.Npi
	assert.True(t, opp.Available)
	assert.Equal(t, uint64(100), opp.ImprovementBps)
	assert.Equal(t, uint64(7), opp.ShareTokens)
	assert.Equal(t, uint64(3), opp.TreasuryTokens+opp.BurnTokens)

	assert.Equal(t, uint64(999), res.Plan.MinAmountOut)
	assert.Equal(t, uint32(constants.DefaultSlippageBps), res.Plan.SlippageBps)
	assert.Equal(t, res.DecisionID, res.Plan.DecisionID)
	assert.NotEmpty(t, res.DecisionID)
	assert.Empty(t, res.Failures)

	require.Equal(t, 1, events.len())
	ev := events.events[0]
	assert.Equal(t, models.DecisionEventVersion, ev.Version)
	assert.Equal(t, res.DecisionID, ev.DecisionID)
	assert.Equal(t, "clmm", ev.SelectedVenue)
	assert.Equal(t, 3, ev.VenuesQueried)
	assert.Equal(t, "1", ev.ReferencePrice)

	for _, id := range []string{"cpmm", "clmm", "book"} {
		s := r.Tracker().Summary(id, 0)
		assert.Equal(t, 1, s.SampleSize, id)
		assert.Equal(t, 1.0, s.SuccessRate, id)
	}
}

func TestQuote_SingleVenueTimeout(t *testing.T) {
	slow := &fakeVenue{id: "slow", out: 2000, delay: time.Second}
	r, _ := newRouter(t, Config{
		Adapters:     []venue.Adapter{&fakeVenue{id: "a", out: 1001}, slow, &fakeVenue{id: "b", out: 1003}},
		Deadline:     500 * time.Millisecond,
		VenueTimeout: 50 * time.Millisecond,
	})

	res, err := r.Quote(context.Background(), Request{Pair: pair, AmountIn: 1000})
	require.NoError(t, err)
	assert.Equal(t, []string{"b"}, res.Decision.Selected.Venues)

	require.Len(t, res.Failures, 1)
	assert.Equal(t, "slow", res.Failures[0].VenueID)
	assert.Equal(t, venue.ReasonTimeout, res.Failures[0].Reason)

	s := r.Tracker().Summary("slow", 0)
	assert.Equal(t, 1, s.SampleSize)
	assert.Equal(t, 0.0, s.SuccessRate)
}

func TestQuote_HungVenueAbandonedAtDeadline(t *testing.T) {
	hung := &fakeVenue{id: "hung", out: 5000, delay: 2 * time.Second, hang: true}
	r, _ := newRouter(t, Config{
		Adapters: []venue.Adapter{&fakeVenue{id: "ok", out: 1000}, hung},
		Deadline: 100 * time.Millisecond,
	})

	start := time.Now()
	res, err := r.Quote(context.Background(), Request{Pair: pair, AmountIn: 1000})
	require.NoError(t, err)
	assert.Less(t, time.Since(start), time.Second)
	assert.Equal(t, []string{"ok"}, res.Decision.Selected.Venues)

	s := r.Tracker().Summary("hung", 0)
	assert.Equal(t, 1, s.SampleSize)
	assert.Equal(t, 0.0, s.SuccessRate)
}

func TestQuote_AllVenuesFail(t *testing.T) {
	boom := errors.New("503")
	r, events := newRouter(t, Config{
		Adapters: []venue.Adapter{
			&fakeVenue{id: "a", err: boom},
			&fakeVenue{id: "b", err: boom},
		},
		Baseline: &fakeBaseline{out: 995},
	})

	res, err := r.Quote(context.Background(), Request{Pair: pair, AmountIn: 1000})
	assert.Nil(t, res)
	assert.ErrorIs(t, err, models.ErrNoRouteAvailable)
	assert.Zero(t, events.len())
	assert.Equal(t, 1, r.Tracker().Summary("a", 0).SampleSize)
}

func TestQuote_OracleDivergence(t *testing.T) {
	r, events := newRouter(t, Config{
		Adapters: threeVenues(),
		Oracle:   &fakeOracle{err: &oracle.DivergenceError{DivergenceBps: 500, MaxBps: 150}},
		Baseline: &fakeBaseline{out: 995},
	})

	res, err := r.Quote(context.Background(), Request{Pair: pair, AmountIn: 1000})
	assert.Nil(t, res)
	assert.ErrorIs(t, err, models.ErrPriceDivergence)
	assert.Zero(t, events.len())
}

func TestQuote_OracleUnavailable(t *testing.T) {
	down := &fakeOracle{err: &oracle.UnavailableError{}}

	r, _ := newRouter(t, Config{Adapters: threeVenues(), Oracle: down, OracleRequired: true})
	_, err := r.Quote(context.Background(), Request{Pair: pair, AmountIn: 1000})
	assert.ErrorIs(t, err, models.ErrOracleUnavailable)

	r, _ = newRouter(t, Config{Adapters: threeVenues(), Oracle: down})
	res, err := r.Quote(context.Background(), Request{Pair: pair, AmountIn: 1000})
	require.NoError(t, err)
	assert.Nil(t, res.Reference)
}

func TestQuote_BaselineFailureIsNotFatal(t *testing.T) {
	r, _ := newRouter(t, Config{
		Adapters: threeVenues(),
		Baseline: &fakeBaseline{err: errors.New("jupiter down")},
	})

	res, err := r.Quote(context.Background(), Request{Pair: pair, AmountIn: 1000})
	require.NoError(t, err)
	assert.False(t, res.Plan.Npi.Available)
	assert.Equal(t, "baseline unavailable", res.Plan.Npi.Explanation)
	assert.Nil(t, res.Baseline)
}

func TestQuote_ColdStartVenueSelected(t *testing.T) {
	tracker := reliability.NewTracker(reliability.Config{Logger: quietLogger()})
	for i := 0; i < 50; i++ {
		tracker.Record(models.ReliabilitySample{VenueID: "veteran", OK: true, LatencyMs: 10})
	}

	r, _ := newRouter(t, Config{
		Adapters: []venue.Adapter{&fakeVenue{id: "veteran", out: 1000}, &fakeVenue{id: "newcomer", out: 1002}},
		Tracker:  tracker,
	})

	res, err := r.Quote(context.Background(), Request{Pair: pair, AmountIn: 1000})
	require.NoError(t, err)
	assert.Equal(t, []string{"newcomer"}, res.Decision.Selected.Venues)
	assert.Equal(t, models.GradeB, res.Decision.Selected.Grade)
}

func TestQuote_Switches(t *testing.T) {
	off := &fakeVenue{id: "clmm", out: 1005}
	r, _ := newRouter(t, Config{
		Adapters: []venue.Adapter{&fakeVenue{id: "cpmm", out: 980}, off},
		Switches: &fakeSwitches{disabled: map[string]bool{"clmm": true}},
	})

	res, err := r.Quote(context.Background(), Request{Pair: pair, AmountIn: 1000})
	require.NoError(t, err)
	assert.Equal(t, []string{"cpmm"}, res.Decision.Selected.Venues)
	assert.Equal(t, []VenueSkip{{VenueID: "clmm", Reason: SkipSwitch}}, res.Skipped)
	assert.Zero(t, off.calls.Load())

	// a failing switch store never takes venues offline
	r, _ = newRouter(t, Config{
		Adapters: []venue.Adapter{&fakeVenue{id: "clmm", out: 1005}},
		Switches: &fakeSwitches{err: errors.New("redis down")},
	})
	res, err = r.Quote(context.Background(), Request{Pair: pair, AmountIn: 1000})
	require.NoError(t, err)
	assert.Equal(t, []string{"clmm"}, res.Decision.Selected.Venues)
}

func TestQuote_CircuitBreaker(t *testing.T) {
	tracker := reliability.NewTracker(reliability.Config{Logger: quietLogger()})
	for i := 0; i < 20; i++ {
		tracker.Record(models.ReliabilitySample{VenueID: "flaky", OK: false})
	}

	now := time.Now()
	flaky := &fakeVenue{id: "flaky", out: 1010}
	r, _ := newRouter(t, Config{
		Adapters:          []venue.Adapter{flaky, &fakeVenue{id: "steady", out: 1000}},
		Tracker:           tracker,
		BreakerMinSamples: 20,
		BreakerCooldown:   time.Minute,
		Now:               func() time.Time { return now },
	})

	// first request is the trial through the open breaker
	_, err := r.Quote(context.Background(), Request{Pair: pair, AmountIn: 1000})
	require.NoError(t, err)
	assert.Equal(t, int32(1), flaky.calls.Load())

	// within the cooldown the venue is skipped
	res, err := r.Quote(context.Background(), Request{Pair: pair, AmountIn: 1000})
	require.NoError(t, err)
	assert.Equal(t, int32(1), flaky.calls.Load())
	assert.Equal(t, []VenueSkip{{VenueID: "flaky", Reason: SkipBreaker}}, res.Skipped)
	assert.Equal(t, []string{"steady"}, res.Decision.Selected.Venues)

	now = now.Add(2 * time.Minute)
	_, err = r.Quote(context.Background(), Request{Pair: pair, AmountIn: 1000})
	require.NoError(t, err)
	assert.Equal(t, int32(2), flaky.calls.Load())
}

func TestQuote_InvalidRequest(t *testing.T) {
	r, _ := newRouter(t, Config{Adapters: threeVenues()})
	big := uint32(9000)

	cases := map[string]Request{
		"zero amount":    {Pair: pair, AmountIn: 0},
		"same mint":      {Pair: models.Pair{InputMint: "a", OutputMint: "a"}, AmountIn: 1},
		"missing mint":   {Pair: models.Pair{InputMint: "a"}, AmountIn: 1},
		"slippage > max": {Pair: pair, AmountIn: 1000, SlippageBps: &big},
	}
	for name, req := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := r.Quote(context.Background(), req)
			assert.ErrorIs(t, err, models.ErrInvalidRequest)
		})
	}
}

func TestQuote_InvalidPlan(t *testing.T) {
	r, events := newRouter(t, Config{Adapters: []venue.Adapter{&fakeVenue{id: "dust", out: 1}}})
	slip := uint32(100)

	_, err := r.Quote(context.Background(), Request{Pair: pair, AmountIn: 1, SlippageBps: &slip})
	assert.ErrorIs(t, err, models.ErrInvalidPlan)
	assert.Zero(t, events.len())
}

func TestNew_Validation(t *testing.T) {
	e, err := npi.NewEngine(npi.DefaultPolicy())
	require.NoError(t, err)
	tracker := reliability.NewTracker(reliability.Config{})

	_, err = New(Config{Engine: e})
	assert.Error(t, err)
	_, err = New(Config{Tracker: tracker})
	assert.Error(t, err)
	_, err = New(Config{Tracker: tracker, Engine: e, OracleRequired: true})
	assert.Error(t, err)
	_, err = New(Config{Tracker: tracker, Engine: e, Adapters: []venue.Adapter{&fakeVenue{id: "a"}, &fakeVenue{id: "a"}}})
	assert.Error(t, err)
}

func TestDecisionID_Deterministic(t *testing.T) {
	at := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	s := snapshot{
		Pair: pair, AmountIn: 1000, SlippageBps: 50,
		Quotes:    []models.VenueQuote{{VenueID: "a", InputAmount: 1000, OutputAmount: 1001, Raw: []byte(`{"x":1}`)}},
		Selected:  models.RouteCandidate{Venues: []string{"a"}, ExpectedOutput: 1001},
		DecidedAt: at,
	}
	id := DecisionID(s)
	assert.Equal(t, id, DecisionID(s))

	s.Quotes[0].Raw = []byte(`{"x":2}`)
	assert.Equal(t, id, DecisionID(s), "raw payloads do not affect the id")

	s.AmountIn = 1001
	assert.NotEqual(t, id, DecisionID(s))
}
