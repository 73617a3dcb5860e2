// ABOUTME: Exponential backoff policy for reconnect scheduling.
// ABOUTME: Delay doubles per consecutive failure, capped, reset on success.

package gateway

import "time"

// Reconnection defaults.
const (
	DefaultBackoffInitial    = time.Second
	DefaultBackoffMax        = 30 * time.Second
	DefaultBackoffMultiplier = 2.0
)

// BackoffPolicy computes reconnect delays. There is no retry limit:
// gateways are expected to come back, so attempts continue until an
// explicit disconnect.
type BackoffPolicy struct {
	Initial    time.Duration
	Max        time.Duration
	Multiplier float64
}

// DefaultBackoff returns the standard 1s → 30s doubling policy.
func DefaultBackoff() BackoffPolicy {
	return BackoffPolicy{
		Initial:    DefaultBackoffInitial,
		Max:        DefaultBackoffMax,
		Multiplier: DefaultBackoffMultiplier,
	}
}

// Delay returns the wait before the given consecutive-failure attempt,
// counted from zero: initial, initial*mult, initial*mult², … capped at Max.
func (p BackoffPolicy) Delay(attempt int) time.Duration {
	initial := p.Initial
	if initial <= 0 {
		initial = DefaultBackoffInitial
	}
	max := p.Max
	if max <= 0 {
		max = DefaultBackoffMax
	}
	mult := p.Multiplier
	if mult <= 1 {
		mult = DefaultBackoffMultiplier
	}

	delay := float64(initial)
	for i := 0; i < attempt; i++ {
		delay *= mult
		if delay >= float64(max) {
			return max
		}
	}
	if delay >= float64(max) {
		return max
	}
	return time.Duration(delay)
}
