// Package backoff computes escalating cooldowns for repeat offenders of an
// exhausted bucket. It is pure: the tracker owns all state.
package backoff

import (
	"math"
	"time"
)

// Duration returns the cooldown for the given violation count:
// base * multiplier^(violations-1), capped at ceiling. A violation count of
// zero means "no violation yet" and returns the base window unmodified.
func Duration(violations int, base time.Duration, multiplier float64, ceiling time.Duration) time.Duration {
	if violations <= 0 {
		return base
	}
	scaled := float64(base) * math.Pow(multiplier, float64(violations-1))
	// Inf and overflow land here too: Inf >= ceiling for any finite ceiling.
	if math.IsNaN(scaled) || scaled >= float64(ceiling) {
		return ceiling
	}
	return time.Duration(scaled)
}

// Violations derives the violation count from a bucket's post-increment
// attempts: floor(attempts / maxAttempts) once attempts exceed the ceiling,
// zero while the bucket still has quota. The first violation (count 1) keeps
// the original window; escalation starts on the second.
func Violations(attempts, maxAttempts int) int {
	if maxAttempts <= 0 || attempts <= maxAttempts {
		return 0
	}
	return attempts / maxAttempts
}
