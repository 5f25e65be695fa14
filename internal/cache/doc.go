// Package cache provides the process-wide read-through cache that sits between
// the resource service and the REST backend.
//
// The cache maps a canonical resource key (see Key) to the last successfully
// fetched value plus TTL metadata. Key features:
//   - Read-through Get with per-key request coalescing (one fetch in flight per key)
//   - Per-category TTL policy (reports live longer than frequently-changing lists)
//   - Segment-prefix invalidation after mutations ("farm" drops "farm:1", "farm:list")
//   - Optional persistence to a storage.Store so entries survive process restarts
//   - Periodic cleanup of expired entries
//
// A Manager is constructed once at startup and passed to every consumer.
// Clear is the explicit teardown used on logout.
package cache
