package models

import "time"

// Grade is the A-D reliability classification of a venue.
type Grade string

const (
	GradeA Grade = "A"
	GradeB Grade = "B"
	GradeC Grade = "C"
	GradeD Grade = "D"
)

// Rank orders grades so that a lower rank is better. Unknown grades rank
// with B, the neutral default.
func (g Grade) Rank() int {
	switch g {
	case GradeA:
		return 0
	case GradeC:
		return 2
	case GradeD:
		return 3
	default:
		return 1
	}
}

// ReliabilitySample is the outcome of exactly one venue call.
type ReliabilitySample struct {
	VenueID   string    `json:"venue_id"`
	Endpoint  string    `json:"endpoint"`
	OK        bool      `json:"ok"`
	LatencyMs int64     `json:"latency_ms"`
	Timestamp time.Time `json:"timestamp"`
	Error     string    `json:"error,omitempty"`
}

// EndpointStat summarizes one endpoint of a venue.
type EndpointStat struct {
	Endpoint    string  `json:"endpoint"`
	Samples     int     `json:"samples"`
	SuccessRate float64 `json:"success_rate"`
}

// ReliabilitySummary is derived from a venue's window on every read.
type ReliabilitySummary struct {
	VenueID       string         `json:"venue_id"`
	SuccessRate   float64        `json:"success_rate"`
	AvgLatencyMs  float64        `json:"avg_latency_ms"`
	P95LatencyMs  int64          `json:"p95_latency_ms"`
	SampleSize    int            `json:"sample_size"`
	OverallScore  Grade          `json:"overall_score"`
	TopEndpoints  []EndpointStat `json:"top_endpoints"`
	LastSampleAt  *time.Time     `json:"last_sample_at,omitempty"`
	LastSuccessAt *time.Time     `json:"last_success_at,omitempty"`
}
