package client

import (
	"context"
	"math"
	"math/rand/v2"
	"time"
)

// BackoffPolicy computes retry delays as a pure function of the attempt
// number: min(Initial * Factor^attempt, Max), then jittered into
// [0.5*delay, delay) so synchronized callers do not retry in lockstep.
type BackoffPolicy struct {
	Initial    time.Duration
	Max        time.Duration
	Factor     float64
	MaxRetries int

	// Rand returns a uniform float in [0, 1). Defaults to math/rand/v2;
	// tests pin it.
	Rand func() float64
}

// DefaultBackoff mirrors the retry posture used against the marketplace:
// five attempts, half-second initial delay, doubling, capped at 30s.
func DefaultBackoff() BackoffPolicy {
	return BackoffPolicy{
		Initial:    500 * time.Millisecond,
		Max:        30 * time.Second,
		Factor:     2.0,
		MaxRetries: 5,
	}
}

// Delay returns the un-jittered delay for the given zero-based attempt.
func (p BackoffPolicy) Delay(attempt int) time.Duration {
	if p.Initial <= 0 {
		return 0
	}
	if attempt < 0 {
		attempt = 0
	}

	factor := p.Factor
	if factor < 1 {
		factor = 2.0
	}

	delay := float64(p.Initial) * math.Pow(factor, float64(attempt))
	if p.Max > 0 && delay > float64(p.Max) {
		return p.Max
	}
	// With no cap configured, an overflowing product clamps to the largest
	// representable delay rather than collapsing to zero.
	if delay > float64(math.MaxInt64) {
		return time.Duration(math.MaxInt64)
	}
	return time.Duration(delay)
}

// Jittered applies the [0.5, 1.0) multiplier to a computed delay.
func (p BackoffPolicy) Jittered(delay time.Duration) time.Duration {
	if delay <= 0 {
		return 0
	}

	random := p.Rand
	if random == nil {
		random = rand.Float64
	}

	factor := 0.5 + random()/2
	return time.Duration(float64(delay) * factor)
}

// retries returns the effective attempt ceiling.
func (p BackoffPolicy) retries() int {
	if p.MaxRetries < 1 {
		return 1
	}
	return p.MaxRetries
}

// sleep waits for the duration or until the context is cancelled.
func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}

	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
