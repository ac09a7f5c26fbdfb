package client

import (
	"time"
)

// Backoff decides how long to wait before the next reconnect attempt after
// an abrupt close. A nil Backoff on the session disables automatic
// reconnection entirely; the caller re-invokes Connect itself.
type Backoff interface {
	Next(retries int) time.Duration
}

// FixedBackoff retries on a constant delay.
type FixedBackoff struct {
	Delay time.Duration
}

func (f *FixedBackoff) Next(retries int) time.Duration {
	return f.Delay
}

// ExponentialBackoff doubles the delay on each consecutive failure up to Max.
type ExponentialBackoff struct {
	Initial time.Duration
	Max     time.Duration
}

func (e *ExponentialBackoff) Next(retries int) time.Duration {
	d := e.Initial
	for i := 0; i < retries; i++ {
		d *= 2
		if d >= e.Max {
			return e.Max
		}
	}

	if d > e.Max {
		return e.Max
	}
	return d
}

func DefaultBackoff() *ExponentialBackoff {
	return &ExponentialBackoff{
		Initial: time.Second,
		Max:     30 * time.Second,
	}
}
