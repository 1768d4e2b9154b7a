package cache

import (
	"context"
	"encoding/json"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// DefaultGrace is how long a stale entry is still served for revalidation
// before it counts as a miss.
const DefaultGrace = 30 * time.Minute

// Status describes the outcome of a cache lookup.
type Status int

const (
	// StatusMiss means no usable entry exists; the caller must fetch.
	StatusMiss Status = iota

	// StatusHit means the entry is within its TTL.
	StatusHit

	// StatusStale means the entry is past its TTL but within the grace
	// window: serve it, then revalidate in the background.
	StatusStale
)

// String returns the lookup status name.
func (s Status) String() string {
	switch s {
	case StatusHit:
		return "hit"
	case StatusStale:
		return "stale"
	default:
		return "miss"
	}
}

// Manager implements the GitPulse caching policy over a Store. It never
// propagates storage failures: a broken store degrades to "always fetch".
type Manager struct {
	store  Store
	grace  time.Duration
	logger zerolog.Logger
	now    func() time.Time
}

// NewManager creates a cache manager. A grace of 0 uses DefaultGrace.
func NewManager(store Store, grace time.Duration) *Manager {
	if store == nil {
		panic("cache store cannot be nil")
	}
	if grace <= 0 {
		grace = DefaultGrace
	}
	return &Manager{
		store:  store,
		grace:  grace,
		logger: log.With().Str("component", "cache").Logger(),
		now:    time.Now,
	}
}

// Get retrieves the entry for key. The returned status is StatusHit for a
// fresh entry, StatusStale for an entry past TTL but within the grace
// window (entry is still returned), and StatusMiss otherwise (entry is
// nil). Corrupt or unreadable values count as misses.
func (m *Manager) Get(ctx context.Context, key Key) (*Entry, Status) {
	cacheKey := key.String()

	value, found, err := m.store.Get(ctx, cacheKey)
	if err != nil {
		CacheErrors.WithLabelValues("get").Inc()
		m.logger.Warn().Err(err).Str("key", cacheKey).Msg("Cache store get failed, treating as miss")
		CacheMisses.Inc()
		return nil, StatusMiss
	}
	if !found {
		CacheMisses.Inc()
		return nil, StatusMiss
	}

	var entry Entry
	if err := json.Unmarshal([]byte(value), &entry); err != nil {
		// Corrupt entry: drop it and fall through to a fetch.
		m.logger.Warn().Str("key", cacheKey).Msg("Corrupt cache entry, discarding")
		if err := m.store.Remove(ctx, cacheKey); err != nil {
			CacheErrors.WithLabelValues("invalidate").Inc()
		}
		CacheMisses.Inc()
		return nil, StatusMiss
	}

	now := m.now()

	if entry.expiredBeyond(m.grace, now) {
		// Lazy TTL-based collection; no background sweeper.
		if err := m.store.Remove(ctx, cacheKey); err != nil {
			CacheErrors.WithLabelValues("invalidate").Inc()
		}
		CacheMisses.Inc()
		return nil, StatusMiss
	}

	if entry.IsStale(now) {
		CacheHits.WithLabelValues("stale").Inc()
		m.logger.Debug().
			Str("key", cacheKey).
			Dur("age", entry.Age(now)).
			Dur("ttl", entry.TTL).
			Msg("Stale cache hit")
		return &entry, StatusStale
	}

	CacheHits.WithLabelValues("fresh").Inc()
	return &entry, StatusHit
}

// Set stores payload under key with the given TTL, replacing any previous
// entry wholesale. Concurrent sets for the same key are last-write-wins.
// Storage failures are logged, not returned: the entry is simply not
// cached and the next Get fetches again.
func (m *Manager) Set(ctx context.Context, key Key, payload []byte, ttl time.Duration) {
	cacheKey := key.String()

	entry := Entry{
		Payload:   payload,
		FetchedAt: m.now(),
		TTL:       ttl,
	}

	data, err := json.Marshal(entry)
	if err != nil {
		CacheErrors.WithLabelValues("set").Inc()
		m.logger.Warn().Err(err).Str("key", cacheKey).Msg("Marshal cache entry failed")
		return
	}

	// The store keeps the entry through the grace window so stale reads
	// can still serve it.
	if err := m.store.Set(ctx, cacheKey, string(data), ttl+m.grace); err != nil {
		CacheErrors.WithLabelValues("set").Inc()
		m.logger.Warn().Err(err).Str("key", cacheKey).Msg("Cache store set failed")
		return
	}

	m.logger.Debug().
		Str("key", cacheKey).
		Dur("ttl", ttl).
		Int("bytes", len(data)).
		Msg("Cached entry")
}

// Invalidate removes the entry for key immediately.
func (m *Manager) Invalidate(ctx context.Context, key Key) {
	cacheKey := key.String()
	if err := m.store.Remove(ctx, cacheKey); err != nil {
		CacheErrors.WithLabelValues("invalidate").Inc()
		m.logger.Warn().Err(err).Str("key", cacheKey).Msg("Cache invalidate failed")
	}
}

// SetClock overrides the manager's time source (for testing).
func (m *Manager) SetClock(now func() time.Time) {
	m.now = now
}
