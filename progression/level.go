package progression

import "math"

// XPPerLevelUnit is the divisor in the level curve
const XPPerLevelUnit = 100

// LevelForXP returns floor(sqrt(xp/100)) + 1. Negative xp is treated as zero.
//
// floor(sqrt(y)) == floor(sqrt(floor(y))) for any y >= 0, so the division can be
// done on integers without changing the result.
func LevelForXP(xp int64) int {
	if xp <= 0 {
		return 1
	}
	return int(isqrt(xp/XPPerLevelUnit)) + 1
}

func isqrt(n int64) int64 {
	if n <= 0 {
		return 0
	}
	r := int64(math.Sqrt(float64(n)))
	// float rounding can be off by one for large n
	for r*r > n {
		r--
	}
	for (r+1)*(r+1) <= n {
		r++
	}
	return r
}
