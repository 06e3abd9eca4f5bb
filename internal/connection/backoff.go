package connection

import (
	"math"
	"time"
)

// Backoff computes reconnect delays: Base * Factor^(attempt-1), capped at
// Max.
type Backoff struct {
	Base   time.Duration
	Factor float64
	Max    time.Duration
}

// DefaultBackoff returns a 2s base growing by 1.5x up to 30s.
func DefaultBackoff() Backoff {
	return Backoff{
		Base:   2 * time.Second,
		Factor: 1.5,
		Max:    30 * time.Second,
	}
}

// Delay returns the wait before reconnect attempt n. Attempts below 1 are
// treated as 1. The result is non-decreasing in n and never exceeds Max.
func (b Backoff) Delay(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	factor := b.Factor
	if factor < 1 {
		factor = 1
	}

	d := float64(b.Base) * math.Pow(factor, float64(attempt-1))
	if b.Max > 0 && (math.IsInf(d, 0) || d > float64(b.Max)) {
		return b.Max
	}
	if d > math.MaxInt64 {
		return time.Duration(math.MaxInt64)
	}
	return time.Duration(d)
}
