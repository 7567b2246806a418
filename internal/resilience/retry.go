package resilience

import (
	"context"
	"math"
	"math/rand/v2"
	"time"

	"go.uber.org/zap"
)

// Policy describes how an operation is retried. Delays grow from Base by
// Multiplier per attempt and are clamped to [MinBackoff, MaxBackoff]. A fixed
// policy sets all three durations to the same value.
type Policy struct {
	// MaxAttempts is the total number of attempts, including the first.
	MaxAttempts int

	Base       time.Duration
	MinBackoff time.Duration
	MaxBackoff time.Duration
	Multiplier float64

	// Jitter adds ±Jitter×delay of random noise. Zero disables it.
	Jitter float64

	// ShouldRetry decides which errors are retried. Defaults to IsTransient.
	ShouldRetry func(err error) bool

	// OnRetry runs before each backoff sleep.
	OnRetry func(attempt int, err error, wait time.Duration)
}

// FixedBackoff waits the same delay between every attempt.
func FixedBackoff(attempts int, delay time.Duration) Policy {
	return Policy{
		MaxAttempts: attempts,
		Base:        delay,
		MinBackoff:  delay,
		MaxBackoff:  delay,
		Multiplier:  1,
	}
}

// ExponentialBackoff doubles the wait after every attempt starting from base,
// never waiting less than minWait or more than maxWait.
func ExponentialBackoff(attempts int, base, minWait, maxWait time.Duration) Policy {
	return Policy{
		MaxAttempts: attempts,
		Base:        base,
		MinBackoff:  minWait,
		MaxBackoff:  maxWait,
		Multiplier:  2,
	}
}

// DefaultPolicy is used for calls with no task-specific policy.
func DefaultPolicy() Policy {
	p := ExponentialBackoff(3, time.Second, time.Second, 10*time.Second)
	p.Jitter = 0.2
	return p
}

// WithRetryIf returns a copy of p that retries errors matching fn.
func (p Policy) WithRetryIf(fn func(error) bool) Policy {
	p.ShouldRetry = fn
	return p
}

// WithLogger returns a copy of p that logs each retry under the given name.
func (p Policy) WithLogger(operation string, fields ...zap.Field) Policy {
	p.OnRetry = RetryLogger(operation, fields...)
	return p
}

// Delay returns the wait before retry number attempt+1 (attempt is 0-based).
func (p Policy) Delay(attempt int) time.Duration {
	p = p.normalized()
	d := float64(p.Base) * math.Pow(p.Multiplier, float64(attempt))
	if p.Jitter > 0 {
		d += (rand.Float64()*2 - 1) * d * p.Jitter
	}
	if d < float64(p.MinBackoff) {
		d = float64(p.MinBackoff)
	}
	if p.MaxBackoff > 0 && d > float64(p.MaxBackoff) {
		d = float64(p.MaxBackoff)
	}
	if d < 0 {
		d = 0
	}
	return time.Duration(d)
}

func (p Policy) normalized() Policy {
	if p.MaxAttempts <= 0 {
		p.MaxAttempts = 1
	}
	if p.Multiplier <= 0 {
		p.Multiplier = 1
	}
	if p.Base < 0 {
		p.Base = 0
	}
	if p.MinBackoff < 0 {
		p.MinBackoff = 0
	}
	if p.Jitter < 0 {
		p.Jitter = 0
	}
	if p.ShouldRetry == nil {
		p.ShouldRetry = IsTransient
	}
	return p
}

// Do runs fn until it succeeds, returns a non-retryable error, exhausts the
// policy or ctx is done. The last error is returned on failure.
func Do(ctx context.Context, p Policy, fn func(ctx context.Context) error) error {
	_, err := DoVal(ctx, p, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, fn(ctx)
	})
	return err
}

// DoVal is Do for operations that produce a value.
func DoVal[T any](ctx context.Context, p Policy, fn func(ctx context.Context) (T, error)) (T, error) {
	p = p.normalized()

	var zero T
	var lastErr error
	for attempt := 0; attempt < p.MaxAttempts; attempt++ {
		v, err := fn(ctx)
		if err == nil {
			return v, nil
		}
		lastErr = err

		if ctx.Err() != nil || !p.ShouldRetry(err) || attempt == p.MaxAttempts-1 {
			break
		}

		wait := p.Delay(attempt)
		if p.OnRetry != nil {
			p.OnRetry(attempt+1, err, wait)
		}
		if !sleep(ctx, wait) {
			break
		}
	}
	return zero, lastErr
}

// DoValOr is DoVal with a fallback: when every attempt fails it returns
// fallback and degraded=true together with the last error.
func DoValOr[T any](ctx context.Context, p Policy, fallback T, fn func(ctx context.Context) (T, error)) (val T, degraded bool, err error) {
	v, err := DoVal(ctx, p, fn)
	if err != nil {
		return fallback, true, err
	}
	return v, false, nil
}

func sleep(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}

// RetryLogger returns an OnRetry callback that logs each retry at warn level.
func RetryLogger(operation string, fields ...zap.Field) func(int, error, time.Duration) {
	return func(attempt int, err error, wait time.Duration) {
		zap.L().Warn("retrying operation",
			append([]zap.Field{
				zap.String("operation", operation),
				zap.Int("attempt", attempt),
				zap.Duration("wait", wait),
				zap.Error(err),
			}, fields...)...,
		)
	}
}
