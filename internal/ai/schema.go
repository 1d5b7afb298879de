package ai

import "github.com/aman-zulfiqar/solana-npi-router/internal/constants"

// allowedTables are the only tables generated SQL may read.
var allowedTables = []string{
	constants.TableReliabilitySamples,
	constants.TableOracleSamples,
	constants.TableDecisions,
}

// telemetrySchemaDescription mirrors the DDL in internal/telemetry/clickhouse.go.
const telemetrySchemaDescription = `
Table: ` + constants.TableReliabilitySamples + `  -- one row per venue quote attempt
  - venue_id   String       -- venue identifier, e.g. "jupiter", "orca-whirlpool"
  - endpoint   String       -- upstream URL the venue adapter called
  - ok         Bool         -- true when the venue returned a usable quote
  - latency_ms Int64        -- wall time of the attempt
  - error      String       -- failure text, empty on success
  - timestamp  DateTime64   -- when the attempt finished (UTC)

Table: ` + constants.TableOracleSamples + `  -- one row per oracle provider fetch
  - provider_id    String
  - pair           String       -- "IN/OUT" symbols
  - price          String       -- decimal price of output per input
  - confidence_bps UInt32
  - publish_time   DateTime64
  - fetched_at     DateTime64
  - fallback_used  Bool
  - error          String

Table: ` + constants.TableDecisions + `  -- one row per routing decision
  - decision_id, plan_id   String
  - pair                   String
  - input_mint, output_mint String
  - amount_in              UInt64   -- raw input units
  - selected_venue         String
  - expected_output        UInt64
  - min_amount_out         UInt64
  - slippage_bps           UInt32
  - reference_price        String
  - oracle_provider        String
  - fallback_used          Bool
  - venues_queried, venues_failed, venues_excluded UInt32
  - base_out_amount        UInt64   -- baseline aggregator output
  - improved_out_amount    UInt64   -- selected route output
  - improvement_bps        UInt64
  - share_tokens, treasury_tokens, burn_tokens UInt64 -- split of the improvement
  - available              Bool     -- true when the route beat the baseline
  - candidates             String   -- JSON array of per-venue notes
  - decided_at             DateTime64

Notes:
  - Success rate per venue: avg(ok) grouped by venue_id.
  - Time filters use timestamp, fetched_at or decided_at, e.g. decided_at >= now() - INTERVAL 24 HOUR.
  - Amounts are raw integer units of the token, not UI amounts.
`
