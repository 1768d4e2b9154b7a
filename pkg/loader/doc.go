// Package loader drives progressive, cancellable loading of paginated
// provider data into subscriber-visible state.
//
// One state machine exists per query key:
//
//	Idle → Loading → {Success, PartialError, Fatal}
//	Success, PartialError → Loading   (LoadMore / Refresh)
//
// A failure on the first page is Fatal; a failure after at least one page
// has been merged is PartialError, and every record loaded so far stays
// visible next to the error. Pages are merged in provider order and
// deduplicated by record key, keeping the first-seen occurrence, since
// overlapping pages can repeat records under concurrent provider writes.
//
// Every fetch carries the generation current at the time it started. A
// Refresh bumps the generation, so a late response from a superseded fetch
// is dropped on arrival instead of overwriting fresher state. In-flight
// HTTP calls are not aborted; only their results are discarded.
//
// When a cache manager is configured, a fresh entry serves immediately, a
// stale entry serves immediately AND triggers exactly one background
// revalidation, and a miss goes to the provider. No goroutine runs unless
// a subscriber asked for data.
package loader
