// Package retrypolicy provides the single retry/backoff primitive used
// by every component that must retry a transient failure: exponential
// backoff from a base delay, capped, with uniform jitter applied.
package retrypolicy

import (
	"context"
	"math/rand"
	"time"
)

// Policy parametrizes one retry schedule. Delay for attempt k (0-based)
// is min(BaseDelay * 2^k, Cap) * uniform(JitterRange[0], JitterRange[1]).
type Policy struct {
	MaxAttempts int
	BaseDelay   time.Duration
	Cap         time.Duration
	JitterRange [2]float64
}

// IngestPolicy matches the per-message retry schedule: 3 attempts,
// base 2s, capped at 30s, jitter in [0.9, 1.1].
func IngestPolicy() Policy {
	return Policy{
		MaxAttempts: 3,
		BaseDelay:   2 * time.Second,
		Cap:         30 * time.Second,
		JitterRange: [2]float64{0.9, 1.1},
	}
}

// ReconnectPolicy matches the stream supervisor's reconnect schedule:
// up to 5 attempts, base 2s exponent 2^k (~2s, 4s, 8s, ...), jitter in
// [0.5, 1.5].
func ReconnectPolicy() Policy {
	return Policy{
		MaxAttempts: 5,
		BaseDelay:   2 * time.Second,
		Cap:         16 * time.Second,
		JitterRange: [2]float64{0.5, 1.5},
	}
}

// Delay returns the backoff duration for the given 0-based attempt
// number, with jitter applied.
func (p Policy) Delay(attempt int) time.Duration {
	backoff := p.BaseDelay
	for i := 0; i < attempt; i++ {
		backoff *= 2
		if backoff > p.Cap {
			backoff = p.Cap
			break
		}
	}
	if backoff > p.Cap {
		backoff = p.Cap
	}

	jitter := p.JitterRange[0] + rand.Float64()*(p.JitterRange[1]-p.JitterRange[0])
	return time.Duration(float64(backoff) * jitter)
}

// Run invokes fn, retrying on error up to MaxAttempts times with the
// policy's backoff between attempts. It stops early if ctx is done.
func (p Policy) Run(ctx context.Context, fn func(attempt int) error) error {
	var lastErr error
	for attempt := 0; attempt < p.MaxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}

		lastErr = fn(attempt)
		if lastErr == nil {
			return nil
		}

		if attempt == p.MaxAttempts-1 {
			break
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(p.Delay(attempt)):
		}
	}
	return lastErr
}
