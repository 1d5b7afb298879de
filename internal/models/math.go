package models

import "math/big"

// MulDiv returns floor(a*b/c) without intermediate overflow, saturating at
// the largest uint64. c must be non-zero.
func MulDiv(a, b, c uint64) uint64 {
	x := new(big.Int).SetUint64(a)
	x.Mul(x, new(big.Int).SetUint64(b))
	x.Quo(x, new(big.Int).SetUint64(c))
	if !x.IsUint64() {
		return ^uint64(0)
	}
	return x.Uint64()
}
