// Package aggregator combines the independently-updating home-screen
// sources (journaling activity, the wisdom pipeline's latest outcome,
// and the refresh cooldown) into a single immutable snapshot stream.
//
// # Lifecycle
//
// The combining loop is lazy: the first subscriber starts it (kicking
// off a passive wisdom load), and when the last subscriber leaves it is
// torn down after a short grace period, cancelling any in-flight fetch.
// A snapshot is recomputed from the latest value of every source on
// each change and published whole; observers never see a partially
// updated state.
//
// # Latest wins
//
// Wisdom fetches run outside the loop and are numbered. A new trigger
// cancels the previous fetch's context and bumps the number, and a
// result carrying a stale number is discarded, so a slow early fetch
// can never overwrite a fresher one.
package aggregator
