// Package app assembles the router and its optional backends from
// configuration. Binaries share it so that the API server and the CLI make
// identical decisions.
package app

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"github.com/aman-zulfiqar/solana-npi-router/internal/baseline"
	"github.com/aman-zulfiqar/solana-npi-router/internal/config"
	"github.com/aman-zulfiqar/solana-npi-router/internal/jupiter"
	"github.com/aman-zulfiqar/solana-npi-router/internal/ledger"
	"github.com/aman-zulfiqar/solana-npi-router/internal/npi"
	"github.com/aman-zulfiqar/solana-npi-router/internal/observability"
	"github.com/aman-zulfiqar/solana-npi-router/internal/oracle"
	"github.com/aman-zulfiqar/solana-npi-router/internal/reliability"
	"github.com/aman-zulfiqar/solana-npi-router/internal/router"
	"github.com/aman-zulfiqar/solana-npi-router/internal/switches"
	"github.com/aman-zulfiqar/solana-npi-router/internal/telemetry"
	"github.com/aman-zulfiqar/solana-npi-router/internal/tokens"
	"github.com/aman-zulfiqar/solana-npi-router/internal/venue"
)

// Options trims what New connects to. The CLI runs without storage.
type Options struct {
	SkipStorage bool
}

// App owns every long-lived component. Redis, ClickHouse and Postgres
// are connected only when configured; the matching fields stay nil
// otherwise.
type App struct {
	Config   *config.Config
	Logger   *logrus.Logger
	Registry *prometheus.Registry
	Metrics  *observability.Metrics

	Tokens     *tokens.Registry
	Tracker    *reliability.Tracker
	Router     *router.Router
	Dispatcher *telemetry.Dispatcher

	Redis      *redis.Client
	Switches   *switches.Store
	ClickHouse *telemetry.ClickHouse
	Ledger     *ledger.Repository

	closers []func() error
}

func New(ctx context.Context, cfg *config.Config, logger *logrus.Logger, opts Options) (*App, error) {
	if logger == nil {
		logger = config.NewLogger(cfg.Logging)
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	a := &App{
		Config:   cfg,
		Logger:   logger,
		Registry: reg,
		Metrics:  observability.NewMetrics(reg),
	}

	var err error
	if a.Tokens, err = tokens.NewRegistry(cfg.Tokens); err != nil {
		return nil, fmt.Errorf("token registry: %w", err)
	}

	var sinks []telemetry.Sink
	if !opts.SkipStorage {
		if sinks, err = a.connectStorage(ctx); err != nil {
			_ = a.Close()
			return nil, err
		}
	}

	a.Dispatcher = telemetry.NewDispatcher(telemetry.DispatcherConfig{
		QueueSize:     cfg.Telemetry.QueueSize,
		BatchSize:     cfg.Telemetry.BatchSize,
		FlushInterval: cfg.Telemetry.FlushInterval,
		Sinks:         sinks,
		Metrics:       a.Metrics,
		Logger:        logger,
	})

	a.Tracker = reliability.NewTracker(reliability.Config{
		Capacity: cfg.Reliability.Capacity,
		Thresholds: reliability.Thresholds{
			A:             cfg.Reliability.GradeA,
			B:             cfg.Reliability.GradeB,
			C:             cfg.Reliability.GradeC,
			LatencyBudget: cfg.Reliability.LatencyBudget,
		},
		TopEndpoints: cfg.Reliability.TopEndpoints,
		Sink:         a.Dispatcher,
		Logger:       logger,
	})
	if cfg.Reliability.WarmStart && a.ClickHouse != nil {
		// a failed warm start leaves the tracker cold
		_, _ = a.Tracker.Warm(ctx, a.ClickHouse, cfg.Reliability.WarmStartSince)
	}

	if a.Router, err = a.buildRouter(); err != nil {
		_ = a.Close()
		return nil, err
	}
	return a, nil
}

func (a *App) connectStorage(ctx context.Context) ([]telemetry.Sink, error) {
	cfg := a.Config
	var sinks []telemetry.Sink

	if cfg.Redis.Addr != "" {
		client := redis.NewClient(&redis.Options{Addr: cfg.Redis.Addr, DB: cfg.Redis.DB})
		if err := client.Ping(ctx).Err(); err != nil {
			_ = client.Close()
			return nil, fmt.Errorf("failed to connect to Redis: %w", err)
		}
		a.Redis = client
		a.closers = append(a.closers, client.Close)

		store, err := switches.NewStore(client)
		if err != nil {
			return nil, err
		}
		a.Switches = store
		sinks = append(sinks, telemetry.NewPubSub(client))
		a.Logger.WithField("addr", cfg.Redis.Addr).Info("redis connected")
	}

	if cfg.ClickHouse.Addr != "" {
		ch, err := telemetry.NewClickHouse(ctx, cfg.ClickHouse)
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, ch.Close)
		if err := ch.EnsureSchema(ctx); err != nil {
			return nil, err
		}
		a.ClickHouse = ch
		sinks = append(sinks, ch)
		a.Logger.WithField("addr", cfg.ClickHouse.Addr).Info("clickhouse connected")
	}

	if cfg.Postgres.DSN != "" {
		pool, err := ledger.NewPool(ctx, cfg.Postgres.DSN)
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, func() error { pool.Close(); return nil })
		if err := ledger.Migrate(ctx, pool); err != nil {
			return nil, err
		}
		a.Ledger = ledger.NewRepository(pool)
		sinks = append(sinks, a.Ledger)
		a.Logger.Info("postgres ledger connected")
	}
	return sinks, nil
}

func (a *App) buildRouter() (*router.Router, error) {
	cfg := a.Config
	hc := &http.Client{Transport: http.DefaultTransport}

	adapters, err := venue.Build(cfg.Venues, venue.Deps{HTTP: hc, RPC: cfg.RPC, Logger: a.Logger})
	if err != nil {
		return nil, err
	}
	if len(adapters) == 0 {
		a.Logger.Warn("no venues configured, every quote will fail with no route")
	}

	engine, err := npi.NewEngine(npi.Policy{
		ShareBps:              cfg.NPI.ShareBps,
		TreasuryBps:           cfg.NPI.TreasuryBps,
		MaxVenueDivergenceBps: cfg.NPI.MaxVenueDivergenceBps,
		MaxPriceImpactBps:     cfg.NPI.MaxPriceImpactBps,
		MevMediumImpactBps:    cfg.NPI.MevMediumImpactBps,
		MevHighImpactBps:      cfg.NPI.MevHighImpactBps,
	})
	if err != nil {
		return nil, fmt.Errorf("npi policy: %w", err)
	}

	rcfg := router.Config{
		Adapters:           adapters,
		Tracker:            a.Tracker,
		Engine:             engine,
		OracleRequired:     cfg.Oracle.Required,
		Events:             a.Dispatcher,
		Metrics:            a.Metrics,
		Logger:             a.Logger,
		Deadline:           cfg.Routing.Deadline,
		VenueTimeout:       cfg.Routing.VenueTimeout,
		DefaultSlippageBps: cfg.Routing.DefaultSlippageBps,
		MaxSlippageBps:     cfg.Routing.MaxSlippageBps,
		ReliabilityWindow:  cfg.Routing.ReliabilityWindow,
		BreakerMinSamples:  cfg.Routing.BreakerMinSamples,
		BreakerCooldown:    cfg.Routing.BreakerCooldown,
	}

	validator, err := a.buildOracle()
	if err != nil {
		return nil, err
	}
	if validator != nil {
		rcfg.Oracle = validator
	}
	if cfg.Baseline.Enabled {
		rcfg.Baseline = baseline.NewJupiter(jupiter.NewClient(cfg.Baseline.BaseURL, cfg.Baseline.APIKey))
	}
	if a.Switches != nil {
		rcfg.Switches = a.Switches
	}
	return router.New(rcfg)
}

// buildOracle returns nil when no provider is configured.
func (a *App) buildOracle() (*oracle.Validator, error) {
	cfg := a.Config.Oracle
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 2 * time.Second
	}
	hc := &http.Client{Timeout: timeout}

	primary, err := oracleProvider(cfg.Primary, hc)
	if err != nil {
		return nil, err
	}
	fallback, err := oracleProvider(cfg.Fallback, hc)
	if err != nil {
		return nil, err
	}
	if primary == nil && fallback == nil {
		return nil, nil
	}

	return oracle.NewValidator(oracle.ValidatorConfig{
		Primary:  primary,
		Fallback: fallback,
		Policy: oracle.Policy{
			MaxAge:                 cfg.MaxAge,
			MaxConfidenceBps:       cfg.MaxConfidenceBps,
			MaxDivergenceBps:       cfg.MaxDivergenceBps,
			SingleSourceMultiplier: cfg.SingleSourceConfidenceX,
		},
		Recorder: a.Dispatcher,
		Logger:   a.Logger,
	})
}

func oracleProvider(pc config.ProviderConfig, hc *http.Client) (oracle.Provider, error) {
	switch pc.Kind {
	case "":
		return nil, nil
	case "pyth":
		feeds := make(map[string]string, len(pc.Feeds))
		for _, f := range pc.Feeds {
			feeds[f.Mint] = f.FeedID
		}
		return oracle.NewPyth(pc.ID, pc.BaseURL, hc, feeds), nil
	case "feed":
		if pc.BaseURL == "" {
			return nil, fmt.Errorf("oracle %s: base_url is required", pc.ID)
		}
		return oracle.NewFeed(pc.ID, pc.BaseURL, pc.APIKey, hc), nil
	default:
		return nil, fmt.Errorf("oracle %s: unknown kind %q", pc.ID, pc.Kind)
	}
}

// Start begins draining telemetry in the background.
func (a *App) Start(ctx context.Context) {
	a.Dispatcher.Start(ctx)
}

// Close flushes telemetry and releases connections in reverse order.
func (a *App) Close() error {
	if a.Dispatcher != nil {
		a.Dispatcher.Close()
	}
	var first error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil && first == nil {
			first = err
		}
	}
	a.closers = nil
	return first
}
