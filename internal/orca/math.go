package orca

import (
	"fmt"
	"math/big"
)

// CalculateLegacySwapOutput computes output for a constant-product pool
// with the fee taken from the input. Price impact is measured against the
// post-fee input, so the fee itself is not counted as impact.
func CalculateLegacySwapOutput(
	amountIn uint64,
	reserveIn uint64,
	reserveOut uint64,
	feeNumerator uint64,
	feeDenominator uint64,
) (amountOut uint64, priceImpactBps uint32, err error) {

	if amountIn == 0 || reserveIn == 0 || reserveOut == 0 {
		return 0, 0, fmt.Errorf("invalid inputs: amounts must be > 0")
	}
	if feeDenominator == 0 {
		return 0, 0, fmt.Errorf("feeDenominator cannot be 0")
	}
	if feeNumerator >= feeDenominator {
		return 0, 0, fmt.Errorf("fee %d/%d consumes the whole input", feeNumerator, feeDenominator)
	}

	// amountInAfterFee = amountIn * (feeDenominator - feeNumerator) / feeDenominator
	amountInAfterFee := new(big.Int).Mul(
		new(big.Int).SetUint64(amountIn),
		new(big.Int).SetUint64(feeDenominator-feeNumerator),
	)
	amountInAfterFee.Div(amountInAfterFee, new(big.Int).SetUint64(feeDenominator))
	if amountInAfterFee.Sign() == 0 {
		return 0, 0, fmt.Errorf("input too small after fee")
	}

	// out = (amountInAfterFee * reserveOut) / (reserveIn + amountInAfterFee)
	rIn := new(big.Int).SetUint64(reserveIn)
	rOut := new(big.Int).SetUint64(reserveOut)

	numerator := new(big.Int).Mul(amountInAfterFee, rOut)
	denominator := new(big.Int).Add(rIn, amountInAfterFee)
	out := new(big.Int).Div(numerator, denominator)
	if !out.IsUint64() {
		return 0, 0, fmt.Errorf("output amount overflow")
	}

	// impact = 1 - (out / inAfterFee) / (reserveOut / reserveIn)
	//        = (inAfterFee*reserveOut - out*reserveIn) / (inAfterFee*reserveOut)
	ideal := new(big.Int).Mul(amountInAfterFee, rOut)
	actual := new(big.Int).Mul(out, rIn)
	gap := new(big.Int).Sub(ideal, actual)
	if gap.Sign() > 0 {
		gap.Mul(gap, big.NewInt(10000))
		gap.Div(gap, ideal)
		priceImpactBps = uint32(gap.Uint64())
	}

	return out.Uint64(), priceImpactBps, nil
}

// CalculateFeeBps converts fee numerator/denominator to basis points
func CalculateFeeBps(feeNumerator, feeDenominator uint64) uint32 {
	if feeDenominator == 0 {
		return 0
	}
	return uint32((feeNumerator * 10000) / feeDenominator)
}
