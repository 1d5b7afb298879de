package telemetry

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/ClickHouse/clickhouse-go/v2"
	"github.com/ClickHouse/clickhouse-go/v2/lib/driver"

	"github.com/aman-zulfiqar/solana-npi-router/internal/config"
	"github.com/aman-zulfiqar/solana-npi-router/internal/constants"
	"github.com/aman-zulfiqar/solana-npi-router/internal/models"
)

var clickHouseSchema = []string{
	`CREATE TABLE IF NOT EXISTS ` + constants.TableReliabilitySamples + ` (
		venue_id   LowCardinality(String),
		endpoint   String,
		ok         Bool,
		latency_ms Int64,
		error      String,
		timestamp  DateTime64(3, 'UTC')
	) ENGINE = MergeTree ORDER BY (venue_id, timestamp)`,
	`CREATE TABLE IF NOT EXISTS ` + constants.TableOracleSamples + ` (
		provider_id    LowCardinality(String),
		pair           String,
		price          String,
		confidence_bps UInt32,
		publish_time   DateTime64(3, 'UTC'),
		fetched_at     DateTime64(3, 'UTC'),
		fallback_used  Bool,
		error          String
	) ENGINE = MergeTree ORDER BY (pair, fetched_at)`,
	`CREATE TABLE IF NOT EXISTS ` + constants.TableDecisions + ` (
		decision_id         String,
		plan_id             String,
		pair                String,
		input_mint          String,
		output_mint         String,
		amount_in           UInt64,
		selected_venue      LowCardinality(String),
		expected_output     UInt64,
		min_amount_out      UInt64,
		slippage_bps        UInt32,
		reference_price     String,
		oracle_provider     String,
		fallback_used       Bool,
		venues_queried      UInt32,
		venues_failed       UInt32,
		venues_excluded     UInt32,
		base_out_amount     UInt64,
		improved_out_amount UInt64,
		improvement_bps     UInt64,
		share_tokens        UInt64,
		treasury_tokens     UInt64,
		burn_tokens         UInt64,
		available           Bool,
		candidates          String,
		decided_at          DateTime64(3, 'UTC')
	) ENGINE = ReplacingMergeTree ORDER BY (decision_id)`,
}

// ClickHouse writes telemetry into analytic tables and reads reliability
// history back for warm start.
type ClickHouse struct {
	conn driver.Conn
}

func NewClickHouse(ctx context.Context, cfg config.ClickHouseConfig) (*ClickHouse, error) {
	conn, err := clickhouse.Open(&clickhouse.Options{
		Addr: []string{cfg.Addr},
		Auth: clickhouse.Auth{
			Database: cfg.Database,
			Username: cfg.Username,
			Password: cfg.Password,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to ClickHouse: %w", err)
	}

	if err := conn.Ping(ctx); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("failed to ping ClickHouse: %w", err)
	}
	return &ClickHouse{conn: conn}, nil
}

func (c *ClickHouse) Name() string { return "clickhouse" }

func (c *ClickHouse) Conn() driver.Conn { return c.conn }

func (c *ClickHouse) Close() error { return c.conn.Close() }

// EnsureSchema creates the telemetry tables if they are missing.
func (c *ClickHouse) EnsureSchema(ctx context.Context) error {
	for _, ddl := range clickHouseSchema {
		if err := c.conn.Exec(ctx, ddl); err != nil {
			return fmt.Errorf("create telemetry table: %w", err)
		}
	}
	return nil
}

func (c *ClickHouse) Write(ctx context.Context, b Batch) error {
	if err := c.writeSamples(ctx, b.Samples); err != nil {
		return err
	}
	if err := c.writeOracle(ctx, b.Oracle); err != nil {
		return err
	}
	return c.writeDecisions(ctx, b.Decisions)
}

func (c *ClickHouse) writeSamples(ctx context.Context, samples []models.ReliabilitySample) error {
	if len(samples) == 0 {
		return nil
	}
	batch, err := c.conn.PrepareBatch(ctx, `INSERT INTO `+constants.TableReliabilitySamples+
		` (venue_id, endpoint, ok, latency_ms, error, timestamp)`)
	if err != nil {
		return fmt.Errorf("prepare reliability batch: %w", err)
	}
	for _, s := range samples {
		if err := batch.Append(s.VenueID, s.Endpoint, s.OK, s.LatencyMs, s.Error, s.Timestamp); err != nil {
			return fmt.Errorf("append reliability sample: %w", err)
		}
	}
	if err := batch.Send(); err != nil {
		return fmt.Errorf("send reliability batch: %w", err)
	}
	return nil
}

func (c *ClickHouse) writeOracle(ctx context.Context, samples []models.OracleSample) error {
	if len(samples) == 0 {
		return nil
	}
	batch, err := c.conn.PrepareBatch(ctx, `INSERT INTO `+constants.TableOracleSamples+
		` (provider_id, pair, price, confidence_bps, publish_time, fetched_at, fallback_used, error)`)
	if err != nil {
		return fmt.Errorf("prepare oracle batch: %w", err)
	}
	for _, s := range samples {
		if err := batch.Append(s.ProviderID, s.Pair, s.Price.String(), s.ConfidenceBps,
			s.PublishTime, s.FetchedAt, s.FallbackUsed, s.Err); err != nil {
			return fmt.Errorf("append oracle sample: %w", err)
		}
	}
	if err := batch.Send(); err != nil {
		return fmt.Errorf("send oracle batch: %w", err)
	}
	return nil
}

func (c *ClickHouse) writeDecisions(ctx context.Context, events []models.DecisionEvent) error {
	if len(events) == 0 {
		return nil
	}
	batch, err := c.conn.PrepareBatch(ctx, `INSERT INTO `+constants.TableDecisions+` (
		decision_id, plan_id, pair, input_mint, output_mint, amount_in, selected_venue,
		expected_output, min_amount_out, slippage_bps, reference_price, oracle_provider,
		fallback_used, venues_queried, venues_failed, venues_excluded, base_out_amount,
		improved_out_amount, improvement_bps, share_tokens, treasury_tokens, burn_tokens,
		available, candidates, decided_at)`)
	if err != nil {
		return fmt.Errorf("prepare decision batch: %w", err)
	}
	for _, ev := range events {
		candidates, err := json.Marshal(ev.Candidates)
		if err != nil {
			return fmt.Errorf("marshal candidates: %w", err)
		}
		if err := batch.Append(
			ev.DecisionID, ev.PlanID, ev.Pair.String(), ev.Pair.InputMint, ev.Pair.OutputMint,
			ev.AmountIn, ev.SelectedVenue, ev.ExpectedOutput, ev.MinAmountOut, ev.SlippageBps,
			ev.ReferencePrice, ev.OracleProvider, ev.FallbackUsed,
			uint32(ev.VenuesQueried), uint32(ev.VenuesFailed), uint32(ev.VenuesExcluded),
			ev.Npi.BaseOutAmount, ev.Npi.ImprovedOutAmount, ev.Npi.ImprovementBps,
			ev.Npi.ShareTokens, ev.Npi.TreasuryTokens, ev.Npi.BurnTokens, ev.Npi.Available,
			string(candidates), ev.DecidedAt,
		); err != nil {
			return fmt.Errorf("append decision: %w", err)
		}
	}
	if err := batch.Send(); err != nil {
		return fmt.Errorf("send decision batch: %w", err)
	}
	return nil
}

// LoadReliabilitySamples returns up to perVenue of the newest samples per
// venue since the given time, oldest first.
func (c *ClickHouse) LoadReliabilitySamples(ctx context.Context, since time.Time, perVenue int) ([]models.ReliabilitySample, error) {
	rows, err := c.conn.Query(ctx, `
		SELECT venue_id, endpoint, ok, latency_ms, error, timestamp
		FROM (
			SELECT venue_id, endpoint, ok, latency_ms, error, timestamp
			FROM `+constants.TableReliabilitySamples+`
			WHERE timestamp >= ?
			ORDER BY timestamp DESC
			LIMIT ? BY venue_id
		)
		ORDER BY timestamp ASC
	`, since, perVenue)
	if err != nil {
		return nil, fmt.Errorf("query reliability samples: %w", err)
	}
	defer rows.Close()

	var out []models.ReliabilitySample
	for rows.Next() {
		var s models.ReliabilitySample
		if err := rows.Scan(&s.VenueID, &s.Endpoint, &s.OK, &s.LatencyMs, &s.Error, &s.Timestamp); err != nil {
			return nil, fmt.Errorf("scan reliability sample: %w", err)
		}
		out = append(out, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate reliability samples: %w", err)
	}
	return out, nil
}
