package queue

import (
	"math/rand/v2"
	"time"
)

// ComputeBackoff returns the delay before attempt n+1, given that attempt n
// (1-based) just failed. Exponential starting at initial, doubled per
// attempt, with up to 20% jitter to avoid synchronized retry storms across
// subscribers sharing a backoff schedule.
func ComputeBackoff(attempt int, initial time.Duration) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	base := initial * time.Duration(1<<uint(attempt-1))
	jitterRange := int64(base) / 5
	if jitterRange <= 0 {
		return base
	}
	jitter := time.Duration(rand.Int64N(jitterRange)) //nolint:gosec // non-cryptographic jitter
	return base + jitter
}
