package loader

import (
	"github.com/gitpulse/gitpulse/pkg/fetch"
	"github.com/gitpulse/gitpulse/pkg/provider"
)

// Phase is the progressive loader's condition for one query key.
type Phase int

const (
	// PhaseIdle means no load has been requested yet.
	PhaseIdle Phase = iota

	// PhaseLoading means a fetch is in flight. Records from earlier pages
	// remain visible while loading more.
	PhaseLoading

	// PhaseSuccess means the last fetch succeeded.
	PhaseSuccess

	// PhasePartialError means a fetch failed after at least one page had
	// been merged; Records holds the data loaded so far and Err the
	// failure.
	PhasePartialError

	// PhaseFatal means the first fetch failed; there is no data.
	PhaseFatal
)

// String returns the phase name.
func (p Phase) String() string {
	switch p {
	case PhaseLoading:
		return "loading"
	case PhaseSuccess:
		return "success"
	case PhasePartialError:
		return "partial_error"
	case PhaseFatal:
		return "fatal"
	default:
		return "idle"
	}
}

// Terminal reports whether the phase ends a load cycle.
func (p Phase) Terminal() bool {
	switch p {
	case PhaseSuccess, PhasePartialError, PhaseFatal:
		return true
	default:
		return false
	}
}

// State is the snapshot handed to subscribers. Exactly one State is
// current per query key; transitions are serialized by the loader.
type State[T provider.Keyed] struct {
	Phase Phase

	// Records is the merged, deduplicated data loaded so far. Never
	// discarded by a later failure.
	Records []T

	// HasMore is true when the provider signaled another page.
	HasMore bool

	// Err is set in PhasePartialError and PhaseFatal.
	Err *fetch.Error

	// Generation identifies the load cycle this state belongs to.
	Generation uint64

	// FromCache is true while Records were served from the cache rather
	// than a live fetch in this generation.
	FromCache bool
}
