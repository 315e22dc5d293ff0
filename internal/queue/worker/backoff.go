package worker

import (
	"math"
	"math/rand"
	"time"
)

// ExponentialBackoff returns base * 2^attempt capped at maxDelay, plus up to
// 250ms of jitter so several workers do not reconnect in lockstep.
func ExponentialBackoff(attempt int, base, maxDelay time.Duration) time.Duration {
	if attempt < 0 {
		attempt = 0
	}

	delay := maxDelay
	if f := float64(base) * math.Pow(2, float64(attempt)); f < float64(maxDelay) {
		delay = time.Duration(f)
	}

	delay += time.Duration(rand.Intn(250)) * time.Millisecond
	return delay
}
