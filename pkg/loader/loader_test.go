package loader

import (
	"context"
	"encoding/json"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gitpulse/gitpulse/pkg/cache"
	"github.com/gitpulse/gitpulse/pkg/fetch"
	"github.com/gitpulse/gitpulse/pkg/provider"
)

// pagedSource returns a Source serving the given pages in order, keyed by
// cursor. The cursor for page N is "page:N"; the last page returns "".
func pagedSource(calls *atomic.Int32, pages ...[]provider.Repository) Source[provider.Repository] {
	return func(_ context.Context, _ string, cursor string) ([]provider.Repository, string, error) {
		calls.Add(1)
		index := 0
		if cursor != "" {
			for i := range pages {
				if cursor == pageCursor(i) {
					index = i
					break
				}
			}
		}
		next := ""
		if index+1 < len(pages) {
			next = pageCursor(index + 1)
		}
		return pages[index], next, nil
	}
}

func pageCursor(i int) string {
	return "page:" + string(rune('0'+i))
}

func failingSource(kind fetch.Kind) Source[provider.Repository] {
	return func(context.Context, string, string) ([]provider.Repository, string, error) {
		return nil, "", &fetch.Error{Kind: kind, StatusCode: 500, Message: "boom"}
	}
}

// waitFor polls cond until it holds or the deadline passes.
func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func TestNew_Validation(t *testing.T) {
	if _, err := New(Config[provider.Repository]{}); err == nil {
		t.Error("New() without a source should fail")
	}

	var calls atomic.Int32
	cfg := Config[provider.Repository]{
		Source: pagedSource(&calls, repos("alpha")),
		Cache:  cache.NewManager(cache.NewMemoryStore(), 0),
	}
	if _, err := New(cfg); err == nil {
		t.Error("New() with cache but no resource name should fail")
	}

	cfg.Resource = "repos"
	if _, err := New(cfg); err != nil {
		t.Errorf("New() with valid config: %v", err)
	}
}

func TestLoad_SinglePageSuccess(t *testing.T) {
	var calls atomic.Int32
	l, err := New(Config[provider.Repository]{
		Source: pagedSource(&calls, repos("alpha", "beta")),
	})
	if err != nil {
		t.Fatalf("New() error: %v", err)
	}

	state, err := l.Load(context.Background(), "octocat")
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}

	if state.Phase != PhaseSuccess {
		t.Errorf("Phase = %s, want success", state.Phase)
	}
	if len(state.Records) != 2 {
		t.Errorf("Records = %d, want 2", len(state.Records))
	}
	if state.HasMore {
		t.Error("HasMore = true for a single page")
	}
	if state.Err != nil {
		t.Errorf("Err = %v, want nil", state.Err)
	}
	if calls.Load() != 1 {
		t.Errorf("source called %d times, want 1", calls.Load())
	}
}

func TestLoad_FirstPageFailureIsFatal(t *testing.T) {
	l, err := New(Config[provider.Repository]{
		Source: failingSource(fetch.KindAuth),
	})
	if err != nil {
		t.Fatalf("New() error: %v", err)
	}

	state, err := l.Load(context.Background(), "octocat")
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}

	if state.Phase != PhaseFatal {
		t.Errorf("Phase = %s, want fatal", state.Phase)
	}
	if len(state.Records) != 0 {
		t.Errorf("Records = %d, want 0", len(state.Records))
	}
	if state.Err == nil || state.Err.Kind != fetch.KindAuth {
		t.Errorf("Err = %v, want kind auth", state.Err)
	}
}

func TestLoadMore_AppendsAndDeduplicates(t *testing.T) {
	var calls atomic.Int32
	l, err := New(Config[provider.Repository]{
		Source: pagedSource(&calls,
			repos("alpha", "beta"),
			repos("beta", "gamma"), // beta repeats across the page boundary
		),
	})
	if err != nil {
		t.Fatalf("New() error: %v", err)
	}

	state, err := l.Load(context.Background(), "octocat")
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if !state.HasMore {
		t.Fatal("HasMore = false after the first of two pages")
	}

	l.LoadMore("octocat")
	waitFor(t, "second page merged", func() bool {
		st := l.Snapshot("octocat")
		return st.Phase == PhaseSuccess && len(st.Records) == 3
	})

	st := l.Snapshot("octocat")
	got := fullNames(st.Records)
	want := []string{"alpha", "beta", "gamma"}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("Records = %v, want %v", got, want)
		}
	}
	if st.HasMore {
		t.Error("HasMore = true after the last page")
	}
}

// A failure past the first page preserves what was already merged.
func TestLoadMore_FailureKeepsLoadedPages(t *testing.T) {
	var calls atomic.Int32
	source := func(ctx context.Context, key, cursor string) ([]provider.Repository, string, error) {
		calls.Add(1)
		switch cursor {
		case "":
			return repos("alpha", "beta"), "page:1", nil
		case "page:1":
			return repos("gamma"), "page:2", nil
		default:
			return nil, "", &fetch.Error{Kind: fetch.KindNetwork, StatusCode: 502, Message: "bad gateway"}
		}
	}
	l, err := New(Config[provider.Repository]{Source: source})
	if err != nil {
		t.Fatalf("New() error: %v", err)
	}

	if _, err := l.Load(context.Background(), "octocat"); err != nil {
		t.Fatalf("Load() error: %v", err)
	}

	l.LoadMore("octocat")
	waitFor(t, "second page", func() bool {
		return len(l.Snapshot("octocat").Records) == 3
	})

	l.LoadMore("octocat")
	waitFor(t, "partial error", func() bool {
		return l.Snapshot("octocat").Phase == PhasePartialError
	})

	st := l.Snapshot("octocat")
	if len(st.Records) != 3 {
		t.Errorf("Records = %d after failure, want the 3 already loaded", len(st.Records))
	}
	if st.Err == nil || st.Err.Kind != fetch.KindNetwork {
		t.Errorf("Err = %v, want kind network", st.Err)
	}

	// LoadMore after a PartialError retries the failed page.
	before := calls.Load()
	l.LoadMore("octocat")
	waitFor(t, "retry attempt", func() bool {
		return calls.Load() > before
	})
}

func TestLoadMore_NoSessionIsNoop(t *testing.T) {
	var calls atomic.Int32
	l, err := New(Config[provider.Repository]{
		Source: pagedSource(&calls, repos("alpha")),
	})
	if err != nil {
		t.Fatalf("New() error: %v", err)
	}

	l.LoadMore("never-loaded")

	if calls.Load() != 0 {
		t.Errorf("source called %d times for an unknown key, want 0", calls.Load())
	}
	if st := l.Snapshot("never-loaded"); st.Phase != PhaseIdle {
		t.Errorf("Snapshot() phase = %s, want idle", st.Phase)
	}
}

// A result from a superseded load cycle must never overwrite the state of
// the cycle that replaced it.
func TestRefresh_DropsSupersededResults(t *testing.T) {
	release := make(chan struct{})
	started := make(chan struct{}, 2)
	var calls atomic.Int32
	source := func(ctx context.Context, key, cursor string) ([]provider.Repository, string, error) {
		n := calls.Add(1)
		started <- struct{}{}
		if n == 1 {
			// First load cycle hangs until released after the refresh.
			<-release
			return repos("outdated"), "", nil
		}
		return repos("current"), "", nil
	}
	l, err := New(Config[provider.Repository]{Source: source})
	if err != nil {
		t.Fatalf("New() error: %v", err)
	}

	cancel := l.Subscribe("octocat", func(State[provider.Repository]) {})
	defer cancel()
	<-started // first fetch in flight

	l.Refresh("octocat")
	<-started
	waitFor(t, "refreshed state", func() bool {
		st := l.Snapshot("octocat")
		return st.Phase == PhaseSuccess && len(st.Records) == 1
	})
	refreshed := l.Snapshot("octocat")

	// Let the superseded fetch complete; its result must be dropped.
	close(release)
	time.Sleep(50 * time.Millisecond)

	st := l.Snapshot("octocat")
	if st.Generation != refreshed.Generation {
		t.Errorf("Generation = %d, want %d", st.Generation, refreshed.Generation)
	}
	if len(st.Records) != 1 || st.Records[0].Name != "current" {
		t.Errorf("Records = %v, want the refreshed data", fullNames(st.Records))
	}
}

func TestRefresh_KeepsRecordsWhileLoading(t *testing.T) {
	release := make(chan struct{})
	var calls atomic.Int32
	source := func(ctx context.Context, key, cursor string) ([]provider.Repository, string, error) {
		if calls.Add(1) > 1 {
			<-release
		}
		return repos("alpha", "beta"), "", nil
	}
	l, err := New(Config[provider.Repository]{Source: source})
	if err != nil {
		t.Fatalf("New() error: %v", err)
	}

	if _, err := l.Load(context.Background(), "octocat"); err != nil {
		t.Fatalf("Load() error: %v", err)
	}

	l.Refresh("octocat")

	st := l.Snapshot("octocat")
	if st.Phase != PhaseLoading {
		t.Errorf("Phase = %s during refresh, want loading", st.Phase)
	}
	if len(st.Records) != 2 {
		t.Errorf("Records = %d during refresh, want the 2 still on screen", len(st.Records))
	}

	close(release)
	waitFor(t, "refresh completion", func() bool {
		return l.Snapshot("octocat").Phase == PhaseSuccess
	})
}

func TestSubscribe_ImmediateDeliveryAndUnsubscribe(t *testing.T) {
	var calls atomic.Int32
	l, err := New(Config[provider.Repository]{
		Source: pagedSource(&calls, repos("alpha")),
	})
	if err != nil {
		t.Fatalf("New() error: %v", err)
	}

	states := make(chan State[provider.Repository], 16)
	cancel := l.Subscribe("octocat", func(st State[provider.Repository]) {
		states <- st
	})

	first := <-states
	if first.Phase != PhaseLoading {
		t.Errorf("first delivered phase = %s, want loading", first.Phase)
	}

	waitFor(t, "success", func() bool {
		return l.Snapshot("octocat").Phase == PhaseSuccess
	})

	cancel()

	// After unsubscribing no further deliveries arrive.
	drained := len(states)
	l.Refresh("octocat")
	waitFor(t, "refresh after unsubscribe", func() bool {
		return l.Snapshot("octocat").Phase == PhaseSuccess
	})
	if len(states) > drained+1 {
		// One delivery may already have been in flight during cancel.
		t.Errorf("received %d deliveries after unsubscribe", len(states)-drained)
	}
}

func TestLoad_ContextCancelled(t *testing.T) {
	source := func(ctx context.Context, key, cursor string) ([]provider.Repository, string, error) {
		time.Sleep(5 * time.Second)
		return nil, "", nil
	}
	l, err := New(Config[provider.Repository]{Source: source})
	if err != nil {
		t.Fatalf("New() error: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	if _, err := l.Load(ctx, "octocat"); err == nil {
		t.Error("Load() with expired context should return an error")
	}
}

func newCachedLoader(t *testing.T, source Source[provider.Repository], clock func() time.Time) (*Loader[provider.Repository], *cache.Manager) {
	t.Helper()
	manager := cache.NewManager(cache.NewMemoryStore(), time.Hour)
	if clock != nil {
		manager.SetClock(clock)
	}
	l, err := New(Config[provider.Repository]{
		Source:   source,
		Cache:    manager,
		TTL:      5 * time.Minute,
		Resource: "repos",
	})
	if err != nil {
		t.Fatalf("New() error: %v", err)
	}
	return l, manager
}

func seedCache(t *testing.T, manager *cache.Manager, key string, records []provider.Repository, next string) {
	t.Helper()
	payload, err := json.Marshal(cachedResult[provider.Repository]{Records: records, NextCursor: next})
	if err != nil {
		t.Fatalf("marshal cached result: %v", err)
	}
	manager.Set(context.Background(), cache.Key{Resource: "repos", Owner: key}, payload, 5*time.Minute)
}

func TestLoad_FreshCacheHitSkipsFetch(t *testing.T) {
	var calls atomic.Int32
	l, manager := newCachedLoader(t, pagedSource(&calls, repos("live")), nil)
	seedCache(t, manager, "octocat", repos("cached-alpha", "cached-beta"), "")

	state, err := l.Load(context.Background(), "octocat")
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}

	if state.Phase != PhaseSuccess {
		t.Errorf("Phase = %s, want success", state.Phase)
	}
	if !state.FromCache {
		t.Error("FromCache = false for a fresh cache hit")
	}
	if len(state.Records) != 2 || state.Records[0].Name != "cached-alpha" {
		t.Errorf("Records = %v, want the cached data", fullNames(state.Records))
	}
	if calls.Load() != 0 {
		t.Errorf("source called %d times on a fresh hit, want 0", calls.Load())
	}
}

// A stale entry serves immediately, then exactly one background fetch
// replaces it with live data.
func TestLoad_StaleServesThenRevalidates(t *testing.T) {
	var calls atomic.Int32
	now := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	var clock atomic.Pointer[time.Time]
	clock.Store(&now)

	l, manager := newCachedLoader(t, pagedSource(&calls, repos("live")), func() time.Time {
		return *clock.Load()
	})
	seedCache(t, manager, "octocat", repos("cached"), "")

	// Advance past the TTL but stay inside the grace window.
	later := now.Add(10 * time.Minute)
	clock.Store(&later)

	state, err := l.Load(context.Background(), "octocat")
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}

	if !state.FromCache {
		t.Error("stale hit should serve the cached data first")
	}
	if len(state.Records) != 1 || state.Records[0].Name != "cached" {
		t.Errorf("Records = %v, want the cached data", fullNames(state.Records))
	}

	waitFor(t, "revalidation", func() bool {
		st := l.Snapshot("octocat")
		return st.Phase == PhaseSuccess && !st.FromCache
	})

	st := l.Snapshot("octocat")
	if len(st.Records) != 1 || st.Records[0].Name != "live" {
		t.Errorf("Records = %v after revalidation, want the live data", fullNames(st.Records))
	}
	if calls.Load() != 1 {
		t.Errorf("source called %d times, want exactly 1 revalidation", calls.Load())
	}
}

func TestLoad_UndecodableCachedPayloadFallsThrough(t *testing.T) {
	var calls atomic.Int32
	l, manager := newCachedLoader(t, pagedSource(&calls, repos("live")), nil)

	// A payload that is valid JSON for the entry but not for the result.
	manager.Set(context.Background(), cache.Key{Resource: "repos", Owner: "octocat"},
		[]byte(`"just a string"`), 5*time.Minute)

	state, err := l.Load(context.Background(), "octocat")
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}

	if state.Phase != PhaseSuccess {
		t.Errorf("Phase = %s, want success", state.Phase)
	}
	if state.FromCache {
		t.Error("FromCache = true, want live fetch after dropping the bad payload")
	}
	if calls.Load() != 1 {
		t.Errorf("source called %d times, want 1", calls.Load())
	}
}

func TestLoad_SuccessIsCached(t *testing.T) {
	var calls atomic.Int32
	l, manager := newCachedLoader(t, pagedSource(&calls, repos("alpha")), nil)

	if _, err := l.Load(context.Background(), "octocat"); err != nil {
		t.Fatalf("Load() error: %v", err)
	}

	entry, status := manager.Get(context.Background(), cache.Key{Resource: "repos", Owner: "octocat"})
	if status != cache.StatusHit {
		t.Fatalf("cache status = %s after a successful load, want hit", status)
	}

	var cached cachedResult[provider.Repository]
	if err := json.Unmarshal(entry.Payload, &cached); err != nil {
		t.Fatalf("unmarshal cached payload: %v", err)
	}
	if len(cached.Records) != 1 || cached.Records[0].Name != "alpha" {
		t.Errorf("cached records = %v", fullNames(cached.Records))
	}
}

func TestPhase_String(t *testing.T) {
	tests := []struct {
		phase Phase
		want  string
	}{
		{PhaseIdle, "idle"},
		{PhaseLoading, "loading"},
		{PhaseSuccess, "success"},
		{PhasePartialError, "partial_error"},
		{PhaseFatal, "fatal"},
	}

	for _, tt := range tests {
		if got := tt.phase.String(); got != tt.want {
			t.Errorf("String() = %q, want %q", got, tt.want)
		}
	}
}

func TestPhase_Terminal(t *testing.T) {
	terminal := map[Phase]bool{
		PhaseIdle:         false,
		PhaseLoading:      false,
		PhaseSuccess:      true,
		PhasePartialError: true,
		PhaseFatal:        true,
	}

	for phase, want := range terminal {
		if got := phase.Terminal(); got != want {
			t.Errorf("%s.Terminal() = %v, want %v", phase, got, want)
		}
	}
}
