package utils

import (
	"math"
	"math/rand"
	"time"
)

// maxBackoffExponent caps the exponent fed to math.Pow so the intermediate
// value cannot overflow before the cap is applied.
const maxBackoffExponent = 30

// Backoff returns the exponential retry delay min(base^attempt, max) in
// seconds, expressed as a time.Duration. attempt is zero-based: the first
// retry of a job waits base^0 = 1 second.
func Backoff(base, attempt, maxSeconds int) time.Duration {
	if base < 1 {
		base = 2
	}
	if attempt < 0 {
		attempt = 0
	}
	if attempt > maxBackoffExponent {
		attempt = maxBackoffExponent
	}
	secs := math.Pow(float64(base), float64(attempt))
	if maxSeconds > 0 && secs > float64(maxSeconds) {
		secs = float64(maxSeconds)
	}
	return time.Duration(secs * float64(time.Second))
}

// BackoffWithJitter returns Backoff(base, attempt, maxSeconds) with up to one
// second of uniform jitter added, so retries from concurrent workers do not
// synchronize.
func BackoffWithJitter(base, attempt, maxSeconds int) time.Duration {
	return Backoff(base, attempt, maxSeconds) + time.Duration(rand.Int63n(int64(time.Second)))
}
