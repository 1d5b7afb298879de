package npi

import (
	"github.com/aman-zulfiqar/solana-npi-router/internal/constants"
	"github.com/aman-zulfiqar/solana-npi-router/internal/models"
)

// Split divides delta into user, treasury and burn amounts. User and
// treasury shares truncate; the burn bucket takes everything else so the
// three always sum to delta. Shares above 10000 bps in total are clamped,
// user first.
func Split(delta uint64, shareBps, treasuryBps uint32) (user, treasury, burn uint64) {
	user = min(models.MulDiv(delta, uint64(shareBps), constants.BpsDenominator), delta)
	treasury = min(models.MulDiv(delta, uint64(treasuryBps), constants.BpsDenominator), delta-user)
	burn = delta - user - treasury
	return user, treasury, burn
}

// ImprovementBps is floor((improved-base)*10000/base), zero when improved
// does not beat base or base is zero.
func ImprovementBps(base, improved uint64) uint64 {
	if base == 0 || improved <= base {
		return 0
	}
	return models.MulDiv(improved-base, constants.BpsDenominator, base)
}
