package cache

import (
	"context"
	"sync"
	"time"

	"github.com/prodyapp/bodhi/internal/domain"
)

// Memory is the in-process cache backend. Expired entries are dropped on
// read and by Sweep.
type Memory struct {
	mu      sync.Mutex
	entries map[string]Entry
	ttl     time.Duration
	now     func() time.Time
}

var _ Cache = (*Memory)(nil)

// MemoryOption configures a Memory cache.
type MemoryOption func(*Memory)

// WithClock substitutes the time source. Used by tests to step through TTL
// windows.
func WithClock(now func() time.Time) MemoryOption {
	return func(m *Memory) {
		m.now = now
	}
}

// NewMemory creates an in-process cache with the given rolling TTL.
func NewMemory(ttl time.Duration, opts ...MemoryOption) *Memory {
	m := &Memory{
		entries: make(map[string]Entry),
		ttl:     ttl,
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

func (m *Memory) Get(ctx context.Context, slot string) (*Entry, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	entry, exists := m.entries[slot]
	if !exists {
		return nil, false
	}

	if entry.Expired(m.ttl, m.now()) {
		delete(m.entries, slot)
		return nil, false
	}

	return &entry, true
}

func (m *Memory) Put(ctx context.Context, slot string, result domain.WisdomResult) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.entries[slot] = Entry{
		Result:     result,
		ProducedAt: m.now(),
		SlotKey:    slot,
	}
	return nil
}

func (m *Memory) Clear(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.entries = make(map[string]Entry)
	return nil
}

func (m *Memory) Sweep(ctx context.Context) int {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	removed := 0
	for slot, entry := range m.entries {
		if entry.Expired(m.ttl, now) {
			delete(m.entries, slot)
			removed++
		}
	}
	return removed
}

func (m *Memory) Close() error {
	return nil
}

// Len reports how many entries are stored, including any expired ones not
// yet swept.
func (m *Memory) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.entries)
}
