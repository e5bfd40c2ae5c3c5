package throttle

import (
	"testing"
	"time"
)

type fakeClock struct {
	now time.Time
}

func (f *fakeClock) Now() time.Time { return f.now }

func (f *fakeClock) Advance(d time.Duration) { f.now = f.now.Add(d) }

func newTestThrottle(opts ...Option) (*Throttle, *fakeClock) {
	clock := &fakeClock{now: time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)}
	opts = append([]Option{WithClock(clock.Now)}, opts...)
	return New(opts...), clock
}

func TestThrottle_FirstAttemptAllowed(t *testing.T) {
	th, _ := newTestThrottle()

	if got := th.Remaining(); got != 0 {
		t.Errorf("Remaining() before any consume = %v, want 0", got)
	}
	if !th.TryConsume() {
		t.Error("TryConsume() on fresh throttle = false, want true")
	}
}

func TestThrottle_CooldownWindow(t *testing.T) {
	th, clock := newTestThrottle()

	if !th.TryConsume() {
		t.Fatal("First TryConsume() = false, want true")
	}

	// 10 seconds later: still inside the window
	clock.Advance(10 * time.Second)
	if th.TryConsume() {
		t.Error("TryConsume() 10s after consume = true, want false")
	}
	if got := th.Remaining(); got != 20*time.Second {
		t.Errorf("Remaining() = %v, want 20s", got)
	}

	// A rejected attempt must not extend the window
	clock.Advance(19 * time.Second)
	if th.TryConsume() {
		t.Error("TryConsume() at 29s = true, want false")
	}

	clock.Advance(2 * time.Second)
	if got := th.Remaining(); got != 0 {
		t.Errorf("Remaining() at 31s = %v, want 0", got)
	}
	if !th.TryConsume() {
		t.Error("TryConsume() at 31s = false, want true")
	}
}

func TestThrottle_Reset(t *testing.T) {
	th, _ := newTestThrottle()

	if !th.TryConsume() {
		t.Fatal("First TryConsume() = false, want true")
	}
	th.Reset()
	if !th.TryConsume() {
		t.Error("TryConsume() after Reset = false, want true")
	}
}

func TestThrottle_CustomCooldown(t *testing.T) {
	th, clock := newTestThrottle(WithCooldown(5 * time.Second))

	if !th.TryConsume() {
		t.Fatal("First TryConsume() = false, want true")
	}
	clock.Advance(6 * time.Second)
	if !th.TryConsume() {
		t.Error("TryConsume() after custom cooldown = false, want true")
	}
}
