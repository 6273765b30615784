package retry

import (
	"math"
	"math/rand"
	"time"
)

const (
	DefaultMaxRetries = 3
	MaxRetriesLimit   = 10

	jitterFactor = 0.1 // ±10%
)

// Policy configures backoff and failure classification for the executor.
// Immutable once built; safe to share across calls and goroutines.
type Policy struct {
	MaxRetries      int
	BaseDelay       time.Duration
	MaxDelay        time.Duration
	ExponentialBase float64
	Jitter          bool

	// Retryable and NonRetryable are matched with errors.Is. NonRetryable
	// wins when an error matches both.
	Retryable    []error
	NonRetryable []error
}

// Delay computes the wait before retrying after the given zero-based
// attempt. A server-provided retryAfter overrides the exponential baseline
// but still gets jitter and the max-delay clamp applied on top. The result
// is never negative and saturates at MaxDelay for arbitrarily large
// attempts.
func (p Policy) Delay(attempt int, retryAfter time.Duration) time.Duration {
	var base float64
	if retryAfter > 0 {
		base = retryAfter.Seconds()
	} else {
		base = p.BaseDelay.Seconds() * math.Pow(p.ExponentialBase, float64(attempt))
	}

	if p.Jitter {
		base += base * jitterFactor * (2*rand.Float64() - 1)
	}

	maxSec := p.MaxDelay.Seconds()
	if base > maxSec || math.IsInf(base, 1) || math.IsNaN(base) {
		base = maxSec
	}
	if base < 0 {
		base = 0
	}
	return time.Duration(base * float64(time.Second))
}
