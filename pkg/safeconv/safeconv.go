// Package safeconv provides safe integer type conversion functions that panic on overflow.
package safeconv

import "math"

// MustIntToInt32 converts int to int32, panics on bounds violation.
// Use only when bounds violations are logically impossible.
func MustIntToInt32(v int) int32 {
	if v < math.MinInt32 || v > math.MaxInt32 {
		panic("safeconv: int to int32 out of bounds")
	}

	return int32(v)
}

// MustIntToUint8 converts int to uint8, panics on bounds violation.
// Use only when bounds violations are logically impossible.
func MustIntToUint8(v int) uint8 {
	if v < 0 || v > math.MaxUint8 {
		panic("safeconv: int to uint8 out of bounds")
	}

	return uint8(v)
}

// MustInt64ToInt converts int64 to int, panics on bounds violation on
// 32-bit platforms. Use only when bounds violations are logically impossible.
func MustInt64ToInt(v int64) int {
	if v < int64(math.MinInt) || v > int64(math.MaxInt) {
		panic("safeconv: int64 to int out of bounds")
	}

	return int(v)
}
