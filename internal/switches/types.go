package switches

import (
	"errors"
	"time"
)

var ErrNotFound = errors.New("switch not found")

// Switch is an operator kill-switch for one venue. A venue without a
// switch is enabled.
type Switch struct {
	VenueID   string    `json:"venue_id"`
	Disabled  bool      `json:"disabled"`
	Reason    string    `json:"reason,omitempty"`
	UpdatedAt time.Time `json:"updated_at"`
}
