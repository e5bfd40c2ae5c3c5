// Package pipeline resolves wisdom requests through three tiers: the slot
// cache, a live generation call, and the pre-authored corpus.
//
// # Resolution
//
// A request for a kind resolves in order:
//   - Cache: unless the refresh is forced, a fresh cache entry wins and no
//     provider is contacted.
//   - Generation: with a configured provider, one bounded call is made. A
//     usable response is cached under the kind's slot and returned.
//   - Corpus: every failure (no credential, rate limit, network, provider,
//     timeout, unusable response) resolves to a corpus pick tagged with the
//     failure reason. Corpus picks are never written to the cache, so the
//     next request still attempts generation.
//
// Callers never receive an error from resolution; they always get an Outcome
// carrying some wisdom text.
//
// # Bookkeeping
//
// The pipeline owns the usage counters the debug surface reads: cache
// hits/misses, call totals, rate-limit count, and the provider, prompt kind,
// latency, timestamp, and redacted error of the most recent call. Snapshots
// are copies; clearing the cache leaves the counters alone.
package pipeline
