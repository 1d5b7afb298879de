package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-viper/mapstructure/v2"
	"github.com/spf13/viper"

	"github.com/aman-zulfiqar/solana-npi-router/internal/constants"
)

// Config is the full runtime configuration of the router and its binaries.
type Config struct {
	App         AppConfig         `mapstructure:"app"`
	Logging     LoggingConfig     `mapstructure:"logging"`
	API         APIConfig         `mapstructure:"api"`
	Routing     RoutingConfig     `mapstructure:"routing"`
	NPI         NPIConfig         `mapstructure:"npi"`
	Oracle      OracleConfig      `mapstructure:"oracle"`
	Reliability ReliabilityConfig `mapstructure:"reliability"`
	Baseline    BaselineConfig    `mapstructure:"baseline"`
	RPC         RPCConfig         `mapstructure:"rpc"`
	Venues      []VenueConfig     `mapstructure:"venues"`
	Tokens      []constants.Token `mapstructure:"tokens"`
	Telemetry   TelemetryConfig   `mapstructure:"telemetry"`
	Redis       RedisConfig       `mapstructure:"redis"`
	ClickHouse  ClickHouseConfig  `mapstructure:"clickhouse"`
	Postgres    PostgresConfig    `mapstructure:"postgres"`
	AI          AIConfig          `mapstructure:"ai"`
}

type AppConfig struct {
	Name        string `mapstructure:"name"`
	Environment string `mapstructure:"environment"`
}

type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"` // text | json
}

type APIConfig struct {
	Addr    string `mapstructure:"addr"`
	APIKey  string `mapstructure:"api_key"`
	DevMode bool   `mapstructure:"dev_mode"`
}

// RoutingConfig governs the fan-out of one quote request.
type RoutingConfig struct {
	Deadline           time.Duration `mapstructure:"deadline"`
	VenueTimeout       time.Duration `mapstructure:"venue_timeout"`
	DefaultSlippageBps uint32        `mapstructure:"default_slippage_bps"`
	MaxSlippageBps     uint32        `mapstructure:"max_slippage_bps"`
	BreakerMinSamples  int           `mapstructure:"breaker_min_samples"`
	BreakerCooldown    time.Duration `mapstructure:"breaker_cooldown"`
	ReliabilityWindow  time.Duration `mapstructure:"reliability_window"`
}

// NPIConfig is the declared economic and sanity policy.
type NPIConfig struct {
	ShareBps              uint32 `mapstructure:"share_bps"`
	TreasuryBps           uint32 `mapstructure:"treasury_bps"`
	MaxVenueDivergenceBps uint32 `mapstructure:"max_venue_divergence_bps"`
	MaxPriceImpactBps     uint32 `mapstructure:"max_price_impact_bps"`
	MevMediumImpactBps    uint32 `mapstructure:"mev_medium_impact_bps"`
	MevHighImpactBps      uint32 `mapstructure:"mev_high_impact_bps"`
}

// BurnBps is whatever the user and treasury shares leave over.
func (n NPIConfig) BurnBps() uint32 {
	return constants.BpsDenominator - n.ShareBps - n.TreasuryBps
}

type OracleConfig struct {
	Primary                 ProviderConfig `mapstructure:"primary"`
	Fallback                ProviderConfig `mapstructure:"fallback"`
	MaxAge                  time.Duration  `mapstructure:"max_age"`
	MaxConfidenceBps        uint32         `mapstructure:"max_confidence_bps"`
	MaxDivergenceBps        uint32         `mapstructure:"max_divergence_bps"`
	SingleSourceConfidenceX uint32         `mapstructure:"single_source_confidence_multiplier"`
	Required                bool           `mapstructure:"required"`
	Timeout                 time.Duration  `mapstructure:"timeout"`
}

// ProviderConfig describes one oracle provider. An empty Kind means the
// slot is not configured.
type ProviderConfig struct {
	ID      string    `mapstructure:"id"`
	Kind    string    `mapstructure:"kind"` // pyth | feed
	BaseURL string    `mapstructure:"base_url"`
	APIKey  string    `mapstructure:"api_key"`
	Feeds   []FeedRef `mapstructure:"feeds"`
}

// FeedRef maps a mint to the provider's feed identifier.
type FeedRef struct {
	Mint   string `mapstructure:"mint"`
	FeedID string `mapstructure:"feed_id"`
}

type ReliabilityConfig struct {
	Capacity       int           `mapstructure:"capacity"`
	GradeA         float64       `mapstructure:"grade_a"`
	GradeB         float64       `mapstructure:"grade_b"`
	GradeC         float64       `mapstructure:"grade_c"`
	LatencyBudget  time.Duration `mapstructure:"latency_budget"`
	TopEndpoints   int           `mapstructure:"top_endpoints"`
	WarmStart      bool          `mapstructure:"warm_start"`
	WarmStartSince time.Duration `mapstructure:"warm_start_since"`
}

type BaselineConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	BaseURL string `mapstructure:"base_url"`
	APIKey  string `mapstructure:"api_key"`
}

type RPCConfig struct {
	URL     string        `mapstructure:"url"`
	Timeout time.Duration `mapstructure:"timeout"`
}

// VenueConfig defines one liquidity venue. Fields are interpreted by kind.
type VenueConfig struct {
	ID             string    `mapstructure:"id"`
	Kind           string    `mapstructure:"kind"`
	Disabled       bool      `mapstructure:"disabled"`
	BaseURL        string    `mapstructure:"base_url"`
	APIKey         string    `mapstructure:"api_key"`
	RPCURL         string    `mapstructure:"rpc_url"`
	Dexes          []string  `mapstructure:"dexes"`
	FeeBps         uint32    `mapstructure:"fee_bps"`
	PoolConfigPath string    `mapstructure:"pool_config_path"`
	Pools          []PoolRef `mapstructure:"pools"`
	RateLimit      float64   `mapstructure:"rate_limit"`
	Burst          int       `mapstructure:"burst"`
}

// PoolRef names a pool or market and the two mints it trades.
type PoolRef struct {
	ID    string `mapstructure:"id"`
	MintA string `mapstructure:"mint_a"`
	MintB string `mapstructure:"mint_b"`
}

type TelemetryConfig struct {
	QueueSize     int           `mapstructure:"queue_size"`
	BatchSize     int           `mapstructure:"batch_size"`
	FlushInterval time.Duration `mapstructure:"flush_interval"`
}

type RedisConfig struct {
	Addr string `mapstructure:"addr"`
	DB   int    `mapstructure:"db"`
}

type ClickHouseConfig struct {
	Addr     string `mapstructure:"addr"`
	Database string `mapstructure:"database"`
	Username string `mapstructure:"username"`
	Password string `mapstructure:"password"`
}

type PostgresConfig struct {
	DSN string `mapstructure:"dsn"`
}

type AIConfig struct {
	OpenRouterAPIKey string `mapstructure:"openrouter_api_key"`
	Model            string `mapstructure:"model"`
}

// Load builds configuration from defaults, an optional file, and NPI_*
// environment variables, in increasing order of precedence.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetEnvPrefix("NPI")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)
	bindLegacyEnv(v)

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
	}

	if err := readConfig(v); err != nil {
		return nil, err
	}

	var cfg Config
	if err := v.Unmarshal(&cfg, decodeHook()); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	if len(cfg.Tokens) == 0 {
		cfg.Tokens = constants.DefaultTokens
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func readConfig(v *viper.Viper) error {
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if errors.As(err, &notFound) {
			return nil
		}
		return fmt.Errorf("read config: %w", err)
	}
	return nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("app.name", "solana-npi-router")
	v.SetDefault("app.environment", "development")

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "text")

	v.SetDefault("api.addr", ":8090")
	v.SetDefault("api.api_key", "")
	v.SetDefault("api.dev_mode", false)

	v.SetDefault("routing.deadline", constants.DefaultDeadline.String())
	v.SetDefault("routing.venue_timeout", constants.DefaultVenueTimeout.String())
	v.SetDefault("routing.default_slippage_bps", constants.DefaultSlippageBps)
	v.SetDefault("routing.max_slippage_bps", constants.MaxSlippageBps)
	v.SetDefault("routing.breaker_min_samples", 20)
	v.SetDefault("routing.breaker_cooldown", "30s")
	v.SetDefault("routing.reliability_window", "15m")

	v.SetDefault("npi.share_bps", 7000)
	v.SetDefault("npi.treasury_bps", 2000)
	v.SetDefault("npi.max_venue_divergence_bps", 300)
	v.SetDefault("npi.max_price_impact_bps", 500)
	v.SetDefault("npi.mev_medium_impact_bps", 30)
	v.SetDefault("npi.mev_high_impact_bps", 100)

	v.SetDefault("oracle.primary.id", "pyth")
	v.SetDefault("oracle.primary.kind", "pyth")
	v.SetDefault("oracle.primary.base_url", "https://hermes.pyth.network")
	v.SetDefault("oracle.fallback.id", "")
	v.SetDefault("oracle.fallback.kind", "")
	v.SetDefault("oracle.fallback.base_url", "")
	v.SetDefault("oracle.max_age", "60s")
	v.SetDefault("oracle.max_confidence_bps", 200)
	v.SetDefault("oracle.max_divergence_bps", 150)
	v.SetDefault("oracle.single_source_confidence_multiplier", 2)
	v.SetDefault("oracle.required", true)
	v.SetDefault("oracle.timeout", "2s")

	v.SetDefault("reliability.capacity", 256)
	v.SetDefault("reliability.grade_a", 0.99)
	v.SetDefault("reliability.grade_b", 0.95)
	v.SetDefault("reliability.grade_c", 0.80)
	v.SetDefault("reliability.latency_budget", "800ms")
	v.SetDefault("reliability.top_endpoints", 3)
	v.SetDefault("reliability.warm_start", false)
	v.SetDefault("reliability.warm_start_since", "1h")

	v.SetDefault("baseline.enabled", true)
	v.SetDefault("baseline.base_url", "https://api.jup.ag/swap/v1")
	v.SetDefault("baseline.api_key", "")

	v.SetDefault("rpc.url", "https://api.mainnet-beta.solana.com")
	v.SetDefault("rpc.timeout", "5s")

	v.SetDefault("telemetry.queue_size", constants.DefaultTelemetryQueue)
	v.SetDefault("telemetry.batch_size", 200)
	v.SetDefault("telemetry.flush_interval", "2s")

	v.SetDefault("redis.addr", "")
	v.SetDefault("redis.db", 0)

	v.SetDefault("clickhouse.addr", "")
	v.SetDefault("clickhouse.database", "solana")
	v.SetDefault("clickhouse.username", "default")
	v.SetDefault("clickhouse.password", "")

	v.SetDefault("postgres.dsn", "")

	v.SetDefault("ai.openrouter_api_key", "")
	v.SetDefault("ai.model", "openai/gpt-4.1-mini")
}

// bindLegacyEnv keeps the unprefixed variable names used by existing
// deployments working alongside NPI_*.
func bindLegacyEnv(v *viper.Viper) {
	_ = v.BindEnv("rpc.url", "NPI_RPC_URL", "SOLANA_RPC_URL")
	_ = v.BindEnv("redis.addr", "NPI_REDIS_ADDR", "REDIS_ADDR")
	_ = v.BindEnv("clickhouse.addr", "NPI_CLICKHOUSE_ADDR", "CLICKHOUSE_ADDR")
	_ = v.BindEnv("clickhouse.database", "NPI_CLICKHOUSE_DATABASE", "CLICKHOUSE_DATABASE")
	_ = v.BindEnv("clickhouse.username", "NPI_CLICKHOUSE_USERNAME", "CLICKHOUSE_USERNAME")
	_ = v.BindEnv("clickhouse.password", "NPI_CLICKHOUSE_PASSWORD", "CLICKHOUSE_PASSWORD")
	_ = v.BindEnv("postgres.dsn", "NPI_POSTGRES_DSN", "DATABASE_URL")
	_ = v.BindEnv("ai.openrouter_api_key", "NPI_AI_OPENROUTER_API_KEY", "OPENROUTER_API_KEY")
	_ = v.BindEnv("baseline.base_url", "NPI_BASELINE_BASE_URL", "JUPITER_BASE_URL")
	_ = v.BindEnv("baseline.api_key", "NPI_BASELINE_API_KEY", "JUPITER_API_KEY")
	_ = v.BindEnv("api.addr", "NPI_API_ADDR", "API_ADDR")
	_ = v.BindEnv("api.api_key", "NPI_API_API_KEY", "API_KEY")
}

func decodeHook() viper.DecoderConfigOption {
	return func(dc *mapstructure.DecoderConfig) {
		dc.TagName = "mapstructure"
		dc.DecodeHook = mapstructure.ComposeDecodeHookFunc(
			mapstructure.StringToTimeDurationHookFunc(),
			mapstructure.StringToSliceHookFunc(","),
		)
	}
}

var knownVenueKinds = map[string]bool{
	constants.VenueKindAggregator: true,
	constants.VenueKindCPMM:       true,
	constants.VenueKindCLMM:       true,
	constants.VenueKindOrderBook:  true,
	constants.VenueKindOracleAMM:  true,
}

// Validate performs sanity checks on the configuration values.
func (c *Config) Validate() error {
	if c.Routing.Deadline <= 0 {
		return fmt.Errorf("routing.deadline must be greater than zero")
	}
	if c.Routing.VenueTimeout <= 0 {
		return fmt.Errorf("routing.venue_timeout must be greater than zero")
	}
	if c.Routing.MaxSlippageBps >= constants.BpsDenominator {
		return fmt.Errorf("routing.max_slippage_bps must be below %d", constants.BpsDenominator)
	}
	if c.Routing.DefaultSlippageBps > c.Routing.MaxSlippageBps {
		return fmt.Errorf("routing.default_slippage_bps exceeds routing.max_slippage_bps")
	}
	if c.NPI.ShareBps+c.NPI.TreasuryBps > constants.BpsDenominator {
		return fmt.Errorf("npi.share_bps + npi.treasury_bps must not exceed %d", constants.BpsDenominator)
	}
	if c.NPI.MevHighImpactBps < c.NPI.MevMediumImpactBps {
		return fmt.Errorf("npi.mev_high_impact_bps must be >= npi.mev_medium_impact_bps")
	}
	if c.Oracle.MaxAge <= 0 {
		return fmt.Errorf("oracle.max_age must be greater than zero")
	}
	if c.Oracle.Required && c.Oracle.Primary.Kind == "" {
		return fmt.Errorf("oracle.primary must be configured when oracle.required is set")
	}
	r := c.Reliability
	if r.Capacity <= 0 {
		return fmt.Errorf("reliability.capacity must be greater than zero")
	}
	if !(r.GradeA <= 1 && r.GradeA >= r.GradeB && r.GradeB >= r.GradeC && r.GradeC >= 0) {
		return fmt.Errorf("reliability grade thresholds must satisfy 1 >= a >= b >= c >= 0")
	}
	if c.Telemetry.QueueSize <= 0 {
		return fmt.Errorf("telemetry.queue_size must be greater than zero")
	}

	seen := make(map[string]bool, len(c.Venues))
	for i, vc := range c.Venues {
		if vc.ID == "" {
			return fmt.Errorf("venues[%d]: id is required", i)
		}
		if seen[vc.ID] {
			return fmt.Errorf("venues[%d]: duplicate id %q", i, vc.ID)
		}
		seen[vc.ID] = true
		if !knownVenueKinds[vc.Kind] {
			return fmt.Errorf("venues[%d] (%s): unknown kind %q", i, vc.ID, vc.Kind)
		}
	}
	return nil
}
