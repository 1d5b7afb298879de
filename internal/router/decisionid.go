package router

import (
	"crypto/sha256"
	"encoding/json"
	"time"

	"github.com/mr-tron/base58"

	"github.com/aman-zulfiqar/solana-npi-router/internal/models"
)

// snapshot is everything a decision was made from.
type snapshot struct {
	Pair        models.Pair            `json:"pair"`
	AmountIn    uint64                 `json:"amount_in"`
	SlippageBps uint32                 `json:"slippage_bps"`
	Quotes      []models.VenueQuote    `json:"quotes"`
	Reference   *models.ReferencePrice `json:"reference"`
	Baseline    *models.VenueQuote     `json:"baseline"`
	Selected    models.RouteCandidate  `json:"selected"`
	DecidedAt   time.Time              `json:"decided_at"`
}

// DecisionID is the base58 SHA-256 of the snapshot. Raw venue payloads are
// left out so the id depends only on normalized values.
func DecisionID(s snapshot) string {
	s.Quotes = stripRaw(s.Quotes)
	if s.Baseline != nil {
		b := *s.Baseline
		b.Raw = nil
		s.Baseline = &b
	}
	if s.Reference != nil {
		ref := *s.Reference
		ref.Samples = nil
		s.Reference = &ref
	}

	// every field is a plain value, so Marshal cannot fail
	body, _ := json.Marshal(s)
	sum := sha256.Sum256(body)
	return base58.Encode(sum[:])
}

func stripRaw(quotes []models.VenueQuote) []models.VenueQuote {
	out := make([]models.VenueQuote, len(quotes))
	for i, q := range quotes {
		q.Raw = nil
		out[i] = q
	}
	return out
}
