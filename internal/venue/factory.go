package venue

import (
	"fmt"
	"net/http"

	"github.com/sirupsen/logrus"

	"github.com/aman-zulfiqar/solana-npi-router/internal/config"
	"github.com/aman-zulfiqar/solana-npi-router/internal/constants"
	"github.com/aman-zulfiqar/solana-npi-router/internal/jupiter"
	"github.com/aman-zulfiqar/solana-npi-router/internal/orca"
	"github.com/aman-zulfiqar/solana-npi-router/internal/rpc"
)

// Deps are the shared clients adapters are built from.
type Deps struct {
	HTTP   *http.Client
	RPC    config.RPCConfig
	Logger *logrus.Logger
}

// Build constructs one adapter per enabled venue definition.
func Build(defs []config.VenueConfig, deps Deps) ([]Adapter, error) {
	if deps.HTTP == nil {
		deps.HTTP = http.DefaultClient
	}
	if deps.Logger == nil {
		deps.Logger = logrus.New()
	}

	out := make([]Adapter, 0, len(defs))
	for _, def := range defs {
		if def.Disabled {
			deps.Logger.WithField("venue", def.ID).Info("venue disabled by configuration")
			continue
		}
		a, err := New(def, deps)
		if err != nil {
			return nil, fmt.Errorf("venue %s: %w", def.ID, err)
		}
		deps.Logger.WithFields(logrus.Fields{
			"venue":    a.ID(),
			"kind":     a.Kind(),
			"endpoint": a.Endpoint(),
		}).Info("venue adapter ready")
		out = append(out, a)
	}
	return out, nil
}

// New constructs the adapter for a single venue definition.
func New(def config.VenueConfig, deps Deps) (Adapter, error) {
	rpcClient := func() *rpc.Client {
		url := def.RPCURL
		if url == "" {
			url = deps.RPC.URL
		}
		return rpc.NewClient(rpc.ClientConfig{BaseURL: url, Timeout: deps.RPC.Timeout, Logger: deps.Logger})
	}

	pools := make([]PoolRef, 0, len(def.Pools))
	for _, p := range def.Pools {
		pools = append(pools, PoolRef{Address: p.ID, MintA: p.MintA, MintB: p.MintB})
	}

	switch def.Kind {
	case constants.VenueKindAggregator:
		client := jupiter.NewClient(def.BaseURL, def.APIKey).WithRateLimit(def.RateLimit, def.Burst)
		client.HTTP = deps.HTTP
		return NewAggregator(def.ID, client, def.Dexes), nil

	case constants.VenueKindCPMM:
		if def.PoolConfigPath == "" {
			return nil, fmt.Errorf("pool_config_path is required for %s venues", def.Kind)
		}
		registry, err := orca.NewPoolRegistry(def.PoolConfigPath)
		if err != nil {
			return nil, err
		}
		return NewCPMM(def.ID, orca.NewClient(rpcClient()), registry), nil

	case constants.VenueKindCLMM:
		if len(pools) == 0 {
			return nil, fmt.Errorf("at least one pool is required for %s venues", def.Kind)
		}
		return NewCLMM(def.ID, rpcClient(), pools), nil

	case constants.VenueKindOrderBook:
		if def.BaseURL == "" || len(pools) == 0 {
			return nil, fmt.Errorf("base_url and pools are required for %s venues", def.Kind)
		}
		return NewOrderBook(def.ID, def.BaseURL, def.APIKey, deps.HTTP, pools), nil

	case constants.VenueKindOracleAMM:
		if def.BaseURL == "" || len(pools) == 0 {
			return nil, fmt.Errorf("base_url and pools are required for %s venues", def.Kind)
		}
		return NewOracleAMM(def.ID, def.BaseURL, deps.HTTP, pools), nil
	}
	return nil, fmt.Errorf("unknown venue kind %q", def.Kind)
}
