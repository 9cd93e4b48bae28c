package streams

import "time"

// backoff computes the delay between resubscribe attempts: exponential
// growth up to a ceiling, reset on a healthy subscription.
type backoff struct {
	initial time.Duration
	max     time.Duration
	current time.Duration
}

func newBackoff(initial, max time.Duration) *backoff {
	return &backoff{initial: initial, max: max, current: initial}
}

// Next returns the delay to wait before the next attempt and grows the
// interval for the one after.
func (b *backoff) Next() time.Duration {
	delay := b.current
	b.current *= 2
	if b.current > b.max {
		b.current = b.max
	}
	return delay
}

// Reset restores the initial interval after a successful subscription.
func (b *backoff) Reset() {
	b.current = b.initial
}
