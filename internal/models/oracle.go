package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// OracleSample is one provider's price for a pair (output per input).
type OracleSample struct {
	ProviderID    string          `json:"provider_id"`
	Pair          string          `json:"pair"`
	Price         decimal.Decimal `json:"price"`
	ConfidenceBps uint32          `json:"confidence_bps"`
	PublishTime   time.Time       `json:"publish_time"`
	FetchedAt     time.Time       `json:"fetched_at"`
	FallbackUsed  bool            `json:"fallback_used"`
	Err           string          `json:"error,omitempty"`
}

// ReferencePrice is the validated oracle price used by the sanity filter.
type ReferencePrice struct {
	Price               decimal.Decimal `json:"price"`
	ConfidenceBps       uint32          `json:"confidence_bps"`
	ProviderID          string          `json:"provider_id"`
	FallbackUsed        bool            `json:"fallback_used"`
	SingleSourceWarning bool            `json:"single_source_warning"`
	DivergenceBps       uint32          `json:"divergence_bps"`
	Samples             []OracleSample  `json:"samples"`
}
