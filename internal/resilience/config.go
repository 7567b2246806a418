package resilience

import (
	"time"
)

// FromSettings builds a Policy from configuration values. kind "fixed" waits
// minMs between attempts; anything else is exponential between minMs and
// maxMs. Non-positive values fall back to fallback's.
func FromSettings(fallback Policy, kind string, attempts, minMs, maxMs int) Policy {
	p := fallback
	if attempts > 0 {
		p.MaxAttempts = attempts
	}
	minWait, maxWait := p.MinBackoff, p.MaxBackoff
	if minMs > 0 {
		minWait = time.Duration(minMs) * time.Millisecond
	}
	if maxMs > 0 {
		maxWait = time.Duration(maxMs) * time.Millisecond
	}

	switch kind {
	case "fixed":
		f := FixedBackoff(p.MaxAttempts, minWait)
		f.ShouldRetry, f.OnRetry = p.ShouldRetry, p.OnRetry
		return f
	case "exponential":
		e := ExponentialBackoff(p.MaxAttempts, minWait, minWait, maxWait)
		e.ShouldRetry, e.OnRetry = p.ShouldRetry, p.OnRetry
		return e
	default:
		p.MinBackoff, p.MaxBackoff = minWait, maxWait
		return p
	}
}
