// Package cache stores the most recent wisdom per slot with a rolling TTL.
// One entry per slot, last write wins; fallback results are never stored
// (the pipeline enforces that, the cache just holds what it is given).
package cache

import (
	"context"
	"time"

	"github.com/prodyapp/bodhi/internal/domain"
)

// Entry is a cached wisdom result with its production time. Validity is
// rolling: an entry is fresh while now - ProducedAt < ttl.
type Entry struct {
	Result     domain.WisdomResult `json:"result"`
	ProducedAt time.Time           `json:"produced_at"`
	SlotKey    string              `json:"slot_key"`
}

// Expired reports whether the entry is stale under ttl at the given instant.
func (e Entry) Expired(ttl time.Duration, now time.Time) bool {
	return now.Sub(e.ProducedAt) >= ttl
}

// Cache is the slot-keyed wisdom store. Implementations are safe for
// concurrent use. Get never returns an expired entry.
type Cache interface {
	// Get returns the fresh entry for slot, or false on a miss.
	Get(ctx context.Context, slot string) (*Entry, bool)
	// Put overwrites the slot with a new entry produced now.
	Put(ctx context.Context, slot string, result domain.WisdomResult) error
	// Clear drops all entries.
	Clear(ctx context.Context) error
	// Sweep removes expired entries and reports how many were dropped.
	Sweep(ctx context.Context) int
	// Close releases backend resources.
	Close() error
}
