package cache

import (
	"context"
	"testing"
	"time"

	"github.com/prodyapp/bodhi/internal/domain"
)

// fakeClock steps time manually so TTL windows can be crossed in tests.
type fakeClock struct {
	now time.Time
}

func (f *fakeClock) Now() time.Time { return f.now }

func (f *fakeClock) Advance(d time.Duration) { f.now = f.now.Add(d) }

func newTestCache(t *testing.T) (*Memory, *fakeClock) {
	t.Helper()
	clock := &fakeClock{now: time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)}
	return NewMemory(24*time.Hour, WithClock(clock.Now)), clock
}

func TestMemory_GetPut(t *testing.T) {
	ctx := context.Background()
	c, clock := newTestCache(t)
	slot := domain.KindDailyThought.SlotKey()

	if _, ok := c.Get(ctx, slot); ok {
		t.Fatalf("Get() on empty cache = hit, want miss")
	}

	res := domain.WisdomResult{Text: "Begin again.", Generated: true}
	if err := c.Put(ctx, slot, res); err != nil {
		t.Fatalf("Put() error = %v", err)
	}

	// Fresh an hour later
	clock.Advance(time.Hour)
	entry, ok := c.Get(ctx, slot)
	if !ok {
		t.Fatalf("Get() one hour after Put = miss, want hit")
	}
	if entry.Result.Text != res.Text {
		t.Errorf("Result.Text = %q, want %q", entry.Result.Text, res.Text)
	}
	if !entry.Result.Generated {
		t.Errorf("Result.Generated = false, want true (flag must survive caching)")
	}
	if entry.SlotKey != slot {
		t.Errorf("SlotKey = %q, want %q", entry.SlotKey, slot)
	}
}

func TestMemory_RollingExpiry(t *testing.T) {
	ctx := context.Background()
	c, clock := newTestCache(t)
	slot := domain.KindDailyThought.SlotKey()

	if err := c.Put(ctx, slot, domain.WisdomResult{Text: "Old wisdom"}); err != nil {
		t.Fatalf("Put() error = %v", err)
	}

	// Just inside the window
	clock.Advance(24*time.Hour - time.Minute)
	if _, ok := c.Get(ctx, slot); !ok {
		t.Fatalf("Get() at TTL-1m = miss, want hit")
	}

	// Past the window
	clock.Advance(2 * time.Minute)
	if _, ok := c.Get(ctx, slot); ok {
		t.Fatalf("Get() past TTL = hit, want miss")
	}

	// Expired read removed the entry
	if got := c.Len(); got != 0 {
		t.Errorf("Len() after expired read = %d, want 0", got)
	}
}

func TestMemory_LastWriteWins(t *testing.T) {
	ctx := context.Background()
	c, clock := newTestCache(t)
	slot := domain.KindDailyThought.SlotKey()

	if err := c.Put(ctx, slot, domain.WisdomResult{Text: "first"}); err != nil {
		t.Fatalf("Put() error = %v", err)
	}
	clock.Advance(time.Minute)
	if err := c.Put(ctx, slot, domain.WisdomResult{Text: "second"}); err != nil {
		t.Fatalf("Put() error = %v", err)
	}

	entry, ok := c.Get(ctx, slot)
	if !ok {
		t.Fatalf("Get() = miss, want hit")
	}
	if entry.Result.Text != "second" {
		t.Errorf("Result.Text = %q, want %q", entry.Result.Text, "second")
	}
	if got := c.Len(); got != 1 {
		t.Errorf("Len() = %d, want 1 (one entry per slot)", got)
	}

	// Overwrite refreshed the production time, so validity restarts
	clock.Advance(24*time.Hour - 30*time.Second)
	if _, ok := c.Get(ctx, slot); !ok {
		t.Errorf("Get() within refreshed window = miss, want hit")
	}
}

func TestMemory_Sweep(t *testing.T) {
	ctx := context.Background()
	c, clock := newTestCache(t)

	if err := c.Put(ctx, domain.KindDailyThought.SlotKey(), domain.WisdomResult{Text: "a"}); err != nil {
		t.Fatalf("Put() error = %v", err)
	}
	clock.Advance(23 * time.Hour)
	if err := c.Put(ctx, domain.KindJournalPrompt.SlotKey(), domain.WisdomResult{Text: "b"}); err != nil {
		t.Fatalf("Put() error = %v", err)
	}

	clock.Advance(2 * time.Hour)

	if removed := c.Sweep(ctx); removed != 1 {
		t.Errorf("Sweep() = %d, want 1", removed)
	}
	if _, ok := c.Get(ctx, domain.KindJournalPrompt.SlotKey()); !ok {
		t.Errorf("Get() fresh slot after sweep = miss, want hit")
	}
}

func TestMemory_Clear(t *testing.T) {
	ctx := context.Background()
	c, _ := newTestCache(t)

	for _, kind := range domain.Kinds() {
		if err := c.Put(ctx, kind.SlotKey(), domain.WisdomResult{Text: string(kind)}); err != nil {
			t.Fatalf("Put(%s) error = %v", kind, err)
		}
	}

	if err := c.Clear(ctx); err != nil {
		t.Fatalf("Clear() error = %v", err)
	}
	if got := c.Len(); got != 0 {
		t.Errorf("Len() after Clear = %d, want 0", got)
	}
}
