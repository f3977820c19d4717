package live

import "time"

const (
	DefaultBackoffBase  = time.Second
	DefaultBackoffMax   = 30 * time.Second
	DefaultBackoffDecay = 1.5
)

// Backoff computes reconnect delays that grow geometrically up to a ceiling.
// It is not safe for concurrent use; the Manager guards it.
type Backoff struct {
	base    time.Duration
	max     time.Duration
	decay   float64
	current time.Duration
}

func NewBackoff(base, ceiling time.Duration, decay float64) *Backoff {
	if base <= 0 {
		base = DefaultBackoffBase
	}
	if ceiling < base {
		ceiling = max(DefaultBackoffMax, base)
	}
	if decay < 1 {
		decay = DefaultBackoffDecay
	}
	return &Backoff{
		base:    base,
		max:     ceiling,
		decay:   decay,
		current: base,
	}
}

// Delay is the wait before the next attempt.
func (b *Backoff) Delay() time.Duration {
	return min(b.current, b.max)
}

// Advance grows the delay after an attempt has fired.
func (b *Backoff) Advance() {
	next := time.Duration(float64(b.current) * b.decay)
	b.current = min(next, b.max)
}

func (b *Backoff) Reset() {
	b.current = b.base
}
