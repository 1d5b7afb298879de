package models

import "errors"

// Error taxonomy shared by every stage of a quote decision. Package-level
// typed errors unwrap to one of these.
var (
	ErrVenueUnavailable    = errors.New("venue unavailable")
	ErrPriceDivergence     = errors.New("oracle price divergence")
	ErrNoRouteAvailable    = errors.New("no route available")
	ErrBaselineUnavailable = errors.New("baseline unavailable")
	ErrStaleOracle         = errors.New("stale oracle")
	ErrOracleUnavailable   = errors.New("oracle unavailable")
	ErrInvalidPlan         = errors.New("invalid swap plan")
	ErrInvalidRequest      = errors.New("invalid request")
)
