// Package throttle enforces the cooldown between forced wisdom refreshes.
// Routine loads never consult it; only user-forced regenerations do.
package throttle

import (
	"sync"
	"time"
)

// DefaultCooldown is the minimum interval between forced refreshes.
const DefaultCooldown = 30 * time.Second

// Option configures the throttle.
type Option func(*Throttle)

// WithCooldown overrides the cooldown interval.
func WithCooldown(d time.Duration) Option {
	return func(t *Throttle) {
		t.cooldown = d
	}
}

// WithClock overrides the time source (for testing).
func WithClock(now func() time.Time) Option {
	return func(t *Throttle) {
		t.now = now
	}
}

// Throttle is a single-slot cooldown gate. One consumption arms the window;
// further attempts fail until it elapses. Safe for concurrent use.
type Throttle struct {
	mu       sync.Mutex
	cooldown time.Duration
	now      func() time.Time
	lastAt   time.Time
}

// New creates a throttle with an unarmed window, so the first attempt always
// succeeds.
func New(opts ...Option) *Throttle {
	t := &Throttle{
		cooldown: DefaultCooldown,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// TryConsume claims a forced refresh. It returns true and re-arms the window
// when the cooldown has elapsed; otherwise it returns false and leaves the
// window untouched.
func (t *Throttle) TryConsume() bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	now := t.now()
	if !t.lastAt.IsZero() && now.Sub(t.lastAt) < t.cooldown {
		return false
	}
	t.lastAt = now
	return true
}

// Remaining reports how long until the next forced refresh is allowed. Zero
// means an attempt would succeed now.
func (t *Throttle) Remaining() time.Duration {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.lastAt.IsZero() {
		return 0
	}
	left := t.cooldown - t.now().Sub(t.lastAt)
	if left < 0 {
		return 0
	}
	return left
}

// Reset disarms the window so the next attempt succeeds immediately.
func (t *Throttle) Reset() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.lastAt = time.Time{}
}
