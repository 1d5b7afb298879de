package ledger

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/aman-zulfiqar/solana-npi-router/internal/models"
	"github.com/aman-zulfiqar/solana-npi-router/internal/telemetry"
)

// Repository stores decision events in Postgres. Inserts are idempotent on
// decision_id so replays from telemetry never double count.
type Repository struct {
	pool *Pool
}

func NewRepository(pool *Pool) *Repository {
	return &Repository{pool: pool}
}

var _ telemetry.Sink = (*Repository)(nil)

const insertDecision = `
	INSERT INTO npi_decisions (
		decision_id, plan_id, event_version, input_mint, output_mint, amount_in,
		selected_venue, expected_output, min_amount_out, slippage_bps,
		reference_price, oracle_provider, fallback_used,
		base_out_amount, improved_out_amount, improvement_bps, share_bps,
		share_tokens, treasury_tokens, burn_tokens, available, explanation,
		event, decided_at
	) VALUES (
		$1, $2, $3, $4, $5, $6,
		$7, $8, $9, $10,
		$11, $12, $13,
		$14, $15, $16, $17,
		$18, $19, $20, $21, $22,
		$23, $24
	)
	ON CONFLICT (decision_id) DO NOTHING
`

func decisionArgs(ev models.DecisionEvent) ([]any, error) {
	body, err := json.Marshal(ev)
	if err != nil {
		return nil, fmt.Errorf("marshal decision: %w", err)
	}
	n := ev.Npi
	return []any{
		ev.DecisionID, ev.PlanID, ev.Version, ev.Pair.InputMint, ev.Pair.OutputMint, u(ev.AmountIn),
		ev.SelectedVenue, u(ev.ExpectedOutput), u(ev.MinAmountOut), int32(ev.SlippageBps),
		ev.ReferencePrice, ev.OracleProvider, ev.FallbackUsed,
		u(n.BaseOutAmount), u(n.ImprovedOutAmount), u(n.ImprovementBps), int32(n.ShareBps),
		u(n.ShareTokens), u(n.TreasuryTokens), u(n.BurnTokens), n.Available, n.Explanation,
		body, ev.DecidedAt,
	}, nil
}

// u renders a uint64 for a NUMERIC(20,0) column; pgx sends strings as
// text, which Postgres parses losslessly.
func u(v uint64) string { return strconv.FormatUint(v, 10) }

// Record inserts one decision. inserted is false when the decision was
// already present.
func (r *Repository) Record(ctx context.Context, ev models.DecisionEvent) (bool, error) {
	args, err := decisionArgs(ev)
	if err != nil {
		return false, err
	}
	tag, err := r.pool.Exec(ctx, insertDecision, args...)
	if err != nil {
		return false, fmt.Errorf("insert decision: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

func (r *Repository) Name() string { return "postgres-ledger" }

// Write stores the decisions of a batch in one round trip.
func (r *Repository) Write(ctx context.Context, b telemetry.Batch) error {
	if len(b.Decisions) == 0 {
		return nil
	}

	batch := &pgx.Batch{}
	for _, ev := range b.Decisions {
		args, err := decisionArgs(ev)
		if err != nil {
			return err
		}
		batch.Queue(insertDecision, args...)
	}

	res := r.pool.SendBatch(ctx, batch)
	defer res.Close()
	for range b.Decisions {
		if _, err := res.Exec(); err != nil {
			return fmt.Errorf("insert decision batch: %w", err)
		}
	}
	return nil
}

func (r *Repository) Get(ctx context.Context, decisionID string) (*models.DecisionEvent, error) {
	var body []byte
	err := r.pool.QueryRow(ctx, `SELECT event FROM npi_decisions WHERE decision_id = $1`, decisionID).Scan(&body)
	if err != nil {
		if isNotFound(err) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get decision: %w", err)
	}

	var ev models.DecisionEvent
	if err := json.Unmarshal(body, &ev); err != nil {
		return nil, fmt.Errorf("unmarshal decision: %w", err)
	}
	return &ev, nil
}

// Recent returns the newest decisions first.
func (r *Repository) Recent(ctx context.Context, limit int) ([]models.DecisionEvent, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := r.pool.Query(ctx, `SELECT event FROM npi_decisions ORDER BY decided_at DESC, decision_id LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("query decisions: %w", err)
	}
	defer rows.Close()

	out := []models.DecisionEvent{}
	for rows.Next() {
		var body []byte
		if err := rows.Scan(&body); err != nil {
			return nil, fmt.Errorf("scan decision: %w", err)
		}
		var ev models.DecisionEvent
		if err := json.Unmarshal(body, &ev); err != nil {
			return nil, fmt.Errorf("unmarshal decision: %w", err)
		}
		out = append(out, ev)
	}
	return out, rows.Err()
}

// SplitTotal aggregates the economic split for one output token.
type SplitTotal struct {
	OutputMint     string `json:"output_mint"`
	Decisions      int64  `json:"decisions"`
	Available      int64  `json:"available"`
	ShareTokens    uint64 `json:"share_tokens"`
	TreasuryTokens uint64 `json:"treasury_tokens"`
	BurnTokens     uint64 `json:"burn_tokens"`
}

// Totals sums the split per output mint for decisions since the given time.
func (r *Repository) Totals(ctx context.Context, since time.Time) ([]SplitTotal, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT output_mint,
		       COUNT(*),
		       COUNT(*) FILTER (WHERE available),
		       COALESCE(SUM(share_tokens), 0)::text,
		       COALESCE(SUM(treasury_tokens), 0)::text,
		       COALESCE(SUM(burn_tokens), 0)::text
		FROM npi_decisions
		WHERE decided_at >= $1
		GROUP BY output_mint
		ORDER BY output_mint
	`, since)
	if err != nil {
		return nil, fmt.Errorf("query totals: %w", err)
	}
	defer rows.Close()

	out := []SplitTotal{}
	for rows.Next() {
		var t SplitTotal
		var share, treasury, burn string
		if err := rows.Scan(&t.OutputMint, &t.Decisions, &t.Available, &share, &treasury, &burn); err != nil {
			return nil, fmt.Errorf("scan totals: %w", err)
		}
		if t.ShareTokens, err = strconv.ParseUint(share, 10, 64); err != nil {
			return nil, fmt.Errorf("parse share total: %w", err)
		}
		if t.TreasuryTokens, err = strconv.ParseUint(treasury, 10, 64); err != nil {
			return nil, fmt.Errorf("parse treasury total: %w", err)
		}
		if t.BurnTokens, err = strconv.ParseUint(burn, 10, 64); err != nil {
			return nil, fmt.Errorf("parse burn total: %w", err)
		}
		out = append(out, t)
	}
	return out, rows.Err()
}
