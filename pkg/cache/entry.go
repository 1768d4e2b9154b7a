package cache

import (
	"encoding/json"
	"time"
)

// Entry wraps a cached payload with the metadata staleness is computed
// from. Entries are created on a successful fetch, replaced wholesale on
// refresh, and removed on invalidation or lazy expiry.
type Entry struct {
	// Payload is the serialized internal records for this key.
	Payload json.RawMessage `json:"payload"`

	// FetchedAt is when the payload was fetched from the provider.
	FetchedAt time.Time `json:"fetched_at"`

	// TTL is how long the payload is considered fresh.
	TTL time.Duration `json:"ttl"`
}

// IsStale reports whether the entry has outlived its TTL at the given
// time. Staleness is a pure function of (now, FetchedAt, TTL); nothing
// mutates it in the background.
func (e *Entry) IsStale(now time.Time) bool {
	return now.Sub(e.FetchedAt) > e.TTL
}

// Age returns how old the entry is at the given time.
func (e *Entry) Age(now time.Time) time.Duration {
	return now.Sub(e.FetchedAt)
}

// expiredBeyond reports whether the entry is past TTL plus the grace
// window and should be collected rather than served stale.
func (e *Entry) expiredBeyond(grace time.Duration, now time.Time) bool {
	return now.Sub(e.FetchedAt) > e.TTL+grace
}
