package safe

import (
	"math"
	"time"
)

// Uint64ToInt64 safely converts an uint64 value to int64, clamping to math.MaxInt64 if overflow
// would occur.
// Returns the converted value and a boolean indicating whether clamping occurred.
func Uint64ToInt64(val uint64) (int64, bool) {
	if val > math.MaxInt64 {
		return math.MaxInt64, true
	}
	return int64(val), false
}

// TicksToDuration converts a kernel clock tick count at hz ticks per second to a
// duration, clamping to the largest representable duration.
// A non-positive hz yields zero.
func TicksToDuration(ticks uint64, hz int64) time.Duration {
	if hz <= 0 {
		return 0
	}
	secs := ticks / uint64(hz)
	rem := ticks % uint64(hz)
	if secs > uint64(math.MaxInt64/int64(time.Second)) {
		return time.Duration(math.MaxInt64)
	}
	return time.Duration(secs)*time.Second + time.Duration(rem)*time.Second/time.Duration(hz)
}

// Fraction returns part/whole clamped to [0, 1]. A non-positive whole yields zero.
func Fraction(part, whole time.Duration) float64 {
	if whole <= 0 || part <= 0 {
		return 0
	}
	f := float64(part) / float64(whole)
	if f > 1 {
		return 1
	}
	return f
}

// ClampInt restricts v to [lo, hi].
func ClampInt(v, lo, hi int) int {
	return min(max(v, lo), hi)
}
