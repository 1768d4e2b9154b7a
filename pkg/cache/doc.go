// Package cache provides the shared GitPulse response cache with
// stale-while-revalidate semantics over pluggable storage backends.
//
// The manager computes staleness on every Get from (now, FetchedAt, TTL);
// there are no background timers. A stale hit returns the old value
// together with StatusStale so the loader can serve it immediately and
// refresh in the background. Entries older than TTL plus the grace window
// are deleted lazily on the next Get.
//
// # Basic Usage
//
//	store := cache.NewMemoryStore()
//	manager := cache.NewManager(store, cache.DefaultGrace)
//
//	key := cache.Key{Resource: "repos", Owner: "octocat"}
//	entry, status := manager.Get(ctx, key)
//	switch status {
//	case cache.StatusHit:
//		// fresh, use entry.Payload
//	case cache.StatusStale:
//		// use entry.Payload, then refresh in the background
//	case cache.StatusMiss:
//		// fetch from the provider
//	}
//
// # Backends
//
// Three Store implementations ship with the package:
//
//   - MemoryStore: in-process map, last-write-wins
//   - RedisStore: shared across instances, TTL enforced by Redis
//   - SQLiteStore: persistent single-node cache surviving restarts
//
// A corrupt or unreadable stored value is always treated as a cache miss,
// never surfaced as an error: a broken cache degrades to "always fetch".
//
// # Concurrency
//
// The cache is process-wide shared state mutated by any number of loader
// instances. Concurrent Set calls for the same key race last-write-wins
// with no partial merge; staleness windows are already tolerated, so no
// stronger discipline is applied.
//
// # Metrics
//
//   - gitpulse_cache_hits_total{status="fresh"|"stale"} - cache hits
//   - gitpulse_cache_misses_total - cache misses
//   - gitpulse_cache_errors_total{operation} - store operation errors
package cache
