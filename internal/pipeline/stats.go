package pipeline

import (
	"sync"
	"time"

	"github.com/prodyapp/bodhi/internal/domain"
)

// UsageStats is a snapshot of the pipeline's bookkeeping. Counters span the
// process lifetime unless explicitly reset; clearing the cache never touches
// them. LastError holds a redacted error string, never credential material.
type UsageStats struct {
	CacheHits         int64     `json:"cache_hits"`
	CacheMisses       int64     `json:"cache_misses"`
	TotalAPICalls     int64     `json:"total_api_calls"`
	RateLimitHits     int64     `json:"rate_limit_hits"`
	LastProvider      string    `json:"last_provider,omitempty"`
	LastPromptType    string    `json:"last_prompt_type,omitempty"`
	LastLatencyMs     int64     `json:"last_latency_ms"`
	LastCallTimestamp time.Time `json:"last_call_timestamp"`
	LastError         string    `json:"last_error,omitempty"`
}

// CacheHitRate returns hits / lookups, zero before any lookup.
func (s UsageStats) CacheHitRate() float64 {
	total := s.CacheHits + s.CacheMisses
	if total == 0 {
		return 0
	}
	return float64(s.CacheHits) / float64(total)
}

// StatsView is the read-only projection served by the debug surface.
type StatsView struct {
	UsageStats
	CacheHitRate float64 `json:"cache_hit_rate"`
}

// View builds the debug projection.
func (s UsageStats) View() StatsView {
	return StatsView{UsageStats: s, CacheHitRate: s.CacheHitRate()}
}

// Stats tracks usage counters under a lock. The pipeline is the only writer;
// Snapshot hands callers a copy so reads are never torn.
type Stats struct {
	mu sync.Mutex
	s  UsageStats
}

// NewStats creates an empty tracker.
func NewStats() *Stats {
	return &Stats{}
}

// RecordCacheHit counts a cache hit.
func (t *Stats) RecordCacheHit() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.s.CacheHits++
}

// RecordCacheMiss counts a cache miss. Forced refreshes count here too, since
// they bypass the cache consult.
func (t *Stats) RecordCacheMiss() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.s.CacheMisses++
}

// RecordCall records one provider invocation, whatever its outcome.
func (t *Stats) RecordCall(provider string, kind domain.PromptKind, latency time.Duration, at time.Time) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.s.TotalAPICalls++
	t.s.LastProvider = provider
	t.s.LastPromptType = string(kind)
	t.s.LastLatencyMs = latency.Milliseconds()
	t.s.LastCallTimestamp = at
}

// RecordRateLimit counts a rate-limited call.
func (t *Stats) RecordRateLimit() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.s.RateLimitHits++
}

// RecordError stores the most recent failure message.
func (t *Stats) RecordError(message string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.s.LastError = message
}

// Snapshot returns a copy of the current counters.
func (t *Stats) Snapshot() UsageStats {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.s
}

// Reset zeroes all counters.
func (t *Stats) Reset() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.s = UsageStats{}
}
