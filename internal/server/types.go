package server

import (
	"github.com/aman-zulfiqar/solana-npi-router/internal/models"
	"github.com/aman-zulfiqar/solana-npi-router/internal/router"
)

// ErrorResponse represents a standardized error response format
type ErrorResponse struct {
	Error   string `json:"error"`             // Human-readable error message
	Code    int    `json:"code"`              // HTTP status code
	Kind    string `json:"kind,omitempty"`    // Machine-readable error class
	Details any    `json:"details,omitempty"` // Additional error details (dev mode only)
}

type HealthResponse struct {
	OK     bool `json:"ok"`
	Venues int  `json:"venues"`
}

// VenueStatus is a configured venue with its switch state and current grade.
type VenueStatus struct {
	router.VenueInfo
	Disabled   bool         `json:"disabled"`
	Grade      models.Grade `json:"grade"`
	SampleSize int          `json:"sample_size"`
}

type ReliabilityResponse struct {
	Window string                      `json:"window"`
	Items  []models.ReliabilitySummary `json:"items"`
}

// SwitchRequest disables a venue. The reason is kept for operators.
type SwitchRequest struct {
	Reason string `json:"reason"`
}

// AIAskRequest represents a natural language query request
type AIAskRequest struct {
	Question string `json:"question"`
	Model    string `json:"model"` // Optional AI model override
}

type AIAskResponse struct {
	SQL    string `json:"sql"`
	Answer string `json:"answer"`
	Rows   int    `json:"rows"`
	TookMs int64  `json:"took_ms"`
}
