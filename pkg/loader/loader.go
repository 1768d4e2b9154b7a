package loader

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/gitpulse/gitpulse/pkg/cache"
	"github.com/gitpulse/gitpulse/pkg/fetch"
	"github.com/gitpulse/gitpulse/pkg/provider"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Prometheus metrics for loader state machines.
var (
	loaderTransitionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "gitpulse_loader_transitions_total",
		Help: "Total loader state transitions by resulting phase",
	}, []string{"phase"})

	loaderPagesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "gitpulse_loader_pages_total",
		Help: "Total pages merged across all query keys",
	})

	loaderRevalidationsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "gitpulse_loader_revalidations_total",
		Help: "Total background revalidations triggered by stale cache hits",
	})

	loaderDroppedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "gitpulse_loader_dropped_results_total",
		Help: "Total fetch results dropped because their generation was superseded",
	})
)

// DefaultTTL is the cache TTL applied when the config does not set one.
const DefaultTTL = 5 * time.Minute

// Source fetches one page for a query key. cursor is "" for the first
// page and otherwise the continuation returned by the previous call.
// Implementations wrap a fetch.Adapter plus the matching transformer, so
// errors returned here are normalized already.
type Source[T provider.Keyed] func(ctx context.Context, key, cursor string) (records []T, next string, err error)

// Config holds the loader configuration for one record type.
type Config[T provider.Keyed] struct {
	// Source fetches and transforms one page. Required.
	Source Source[T]

	// Cache is the shared cache manager; nil disables caching.
	Cache *cache.Manager

	// TTL is how long cached results stay fresh. 0 uses DefaultTTL.
	TTL time.Duration

	// Resource names this loader's data in cache keys, e.g. "repos".
	Resource string
}

// cachedResult is the payload format stored in the cache: the merged
// records plus the continuation needed to resume LoadMore after a restart.
type cachedResult[T provider.Keyed] struct {
	Records    []T    `json:"records"`
	NextCursor string `json:"next_cursor"`
}

// session is the state machine for a single query key. All transitions
// happen under mu; deliveries to subscribers are serialized by notifyMu.
type session[T provider.Keyed] struct {
	key string

	mu           sync.Mutex
	state        State[T]
	cursor       string
	seen         map[string]struct{}
	subscribers  map[string]func(State[T])
	revalidating bool

	notifyMu sync.Mutex
}

// Loader manages one progressive-loading state machine per query key.
type Loader[T provider.Keyed] struct {
	config Config[T]
	logger zerolog.Logger

	mu       sync.Mutex
	sessions map[string]*session[T]
}

// New creates a loader.
func New[T provider.Keyed](cfg Config[T]) (*Loader[T], error) {
	if cfg.Source == nil {
		return nil, fmt.Errorf("source is required")
	}
	if cfg.Cache != nil && cfg.Resource == "" {
		return nil, fmt.Errorf("resource name is required when caching is enabled")
	}
	if cfg.TTL <= 0 {
		cfg.TTL = DefaultTTL
	}

	return &Loader[T]{
		config:   cfg,
		logger:   log.With().Str("component", "loader").Str("resource", cfg.Resource).Logger(),
		sessions: make(map[string]*session[T]),
	}, nil
}

// Subscribe registers fn for state changes of key and returns an
// unsubscribe function. The current state is delivered immediately; if no
// load has started for the key yet, one is kicked off.
func (l *Loader[T]) Subscribe(key string, fn func(State[T])) func() {
	sess := l.session(key)
	id := uuid.NewString()

	sess.mu.Lock()
	sess.subscribers[id] = fn

	start := sess.state.Phase == PhaseIdle
	if start {
		sess.state = State[T]{
			Phase:      PhaseLoading,
			Generation: sess.state.Generation + 1,
		}
	}
	snapshot := sess.state
	gen := sess.state.Generation
	sess.mu.Unlock()

	sess.notifyMu.Lock()
	fn(snapshot)
	sess.notifyMu.Unlock()

	if start {
		loaderTransitionsTotal.WithLabelValues(PhaseLoading.String()).Inc()
		go l.loadFirst(sess, gen)
	}

	return func() {
		sess.mu.Lock()
		delete(sess.subscribers, id)
		sess.mu.Unlock()
	}
}

// LoadMore continues pagination for key. It is a no-op while a fetch is
// in flight, when the key has no session, or when there is nothing more
// to load. After a PartialError it retries the failed page.
func (l *Loader[T]) LoadMore(key string) {
	sess := l.lookup(key)
	if sess == nil {
		return
	}

	sess.mu.Lock()
	phase := sess.state.Phase
	if phase != PhaseSuccess && phase != PhasePartialError {
		sess.mu.Unlock()
		return
	}
	if phase == PhaseSuccess && !sess.state.HasMore {
		sess.mu.Unlock()
		return
	}

	gen := sess.state.Generation
	cursor := sess.cursor
	sess.state.Phase = PhaseLoading
	sess.state.Err = nil
	snapshot := sess.state
	sess.mu.Unlock()

	loaderTransitionsTotal.WithLabelValues(PhaseLoading.String()).Inc()
	l.notify(sess, snapshot)

	// A PartialError with no continuation came from a failed refresh or
	// revalidation; retry from the first page within the same generation.
	go l.fetchPage(sess, gen, cursor, cursor == "")
}

// Refresh discards the cache validity for key and fetches from scratch
// under a new generation. Data already on screen stays visible while the
// refresh runs; responses of older fetches are dropped on arrival.
func (l *Loader[T]) Refresh(key string) {
	sess := l.session(key)

	sess.mu.Lock()
	sess.state = State[T]{
		Phase:      PhaseLoading,
		Records:    sess.state.Records,
		HasMore:    sess.state.HasMore,
		Generation: sess.state.Generation + 1,
		FromCache:  sess.state.FromCache,
	}
	gen := sess.state.Generation
	snapshot := sess.state
	sess.mu.Unlock()

	loaderTransitionsTotal.WithLabelValues(PhaseLoading.String()).Inc()
	l.notify(sess, snapshot)

	go l.fetchPage(sess, gen, "", true)
}

// Snapshot returns the current state for key without subscribing.
func (l *Loader[T]) Snapshot(key string) State[T] {
	sess := l.lookup(key)
	if sess == nil {
		return State[T]{Phase: PhaseIdle}
	}
	sess.mu.Lock()
	defer sess.mu.Unlock()
	return sess.state
}

// Load subscribes to key and blocks until the load cycle reaches a
// terminal phase or ctx is done. Convenience for request/response callers
// like HTTP handlers.
func (l *Loader[T]) Load(ctx context.Context, key string) (State[T], error) {
	states := make(chan State[T], 16)
	cancel := l.Subscribe(key, func(st State[T]) {
		select {
		case states <- st:
		default:
		}
	})
	defer cancel()

	for {
		select {
		case <-ctx.Done():
			return State[T]{}, ctx.Err()
		case st := <-states:
			if st.Phase.Terminal() {
				return st, nil
			}
		}
	}
}

// session returns the state machine for key, creating it if needed.
func (l *Loader[T]) session(key string) *session[T] {
	l.mu.Lock()
	defer l.mu.Unlock()

	sess, ok := l.sessions[key]
	if !ok {
		sess = &session[T]{
			key:         key,
			seen:        make(map[string]struct{}),
			subscribers: make(map[string]func(State[T])),
		}
		l.sessions[key] = sess
	}
	return sess
}

// lookup returns the session for key or nil.
func (l *Loader[T]) lookup(key string) *session[T] {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.sessions[key]
}

// loadFirst serves the first load of a generation: cache when possible,
// provider otherwise. A stale cache hit serves immediately and triggers
// exactly one background revalidation.
func (l *Loader[T]) loadFirst(sess *session[T], gen uint64) {
	ctx := context.Background()

	if l.config.Cache != nil {
		if entry, status := l.config.Cache.Get(ctx, l.cacheKey(sess.key)); status != cache.StatusMiss {
			var cached cachedResult[T]
			if err := json.Unmarshal(entry.Payload, &cached); err != nil {
				// Payload written by an incompatible version; drop it.
				l.logger.Warn().Str("key", sess.key).Msg("Undecodable cached result, invalidating")
				l.config.Cache.Invalidate(ctx, l.cacheKey(sess.key))
			} else {
				if l.applyCached(sess, gen, cached, status) {
					return
				}
			}
		}
	}

	l.fetchPage(sess, gen, "", true)
}

// applyCached installs a cached result as the session state. Returns false
// when the generation moved on, in which case nothing was applied.
func (l *Loader[T]) applyCached(sess *session[T], gen uint64, cached cachedResult[T], status cache.Status) bool {
	sess.mu.Lock()
	if sess.state.Generation != gen {
		sess.mu.Unlock()
		loaderDroppedTotal.Inc()
		return false
	}

	sess.seen = indexKeys(cached.Records)
	sess.cursor = cached.NextCursor
	sess.state = State[T]{
		Phase:      PhaseSuccess,
		Records:    cached.Records,
		HasMore:    cached.NextCursor != "",
		Generation: gen,
		FromCache:  true,
	}

	revalidate := status == cache.StatusStale && !sess.revalidating
	if revalidate {
		sess.revalidating = true
	}
	snapshot := sess.state
	sess.mu.Unlock()

	loaderTransitionsTotal.WithLabelValues(PhaseSuccess.String()).Inc()
	l.logger.Debug().
		Str("key", sess.key).
		Int("records", len(cached.Records)).
		Str("cache_status", status.String()).
		Msg("Served from cache")
	l.notify(sess, snapshot)

	if revalidate {
		loaderRevalidationsTotal.Inc()
		go l.revalidate(sess, gen)
	}
	return true
}

// revalidate refreshes a stale cache serve in the background. It runs
// within the generation that served stale data, so a Refresh issued
// meanwhile supersedes it.
func (l *Loader[T]) revalidate(sess *session[T], gen uint64) {
	defer func() {
		sess.mu.Lock()
		sess.revalidating = false
		sess.mu.Unlock()
	}()

	l.logger.Debug().Str("key", sess.key).Msg("Revalidating stale cache entry")
	l.fetchPage(sess, gen, "", true)
}

// fetchPage performs one provider fetch and applies the result if the
// session is still on generation gen. first indicates a fetch from the
// top: on success the merged set restarts from this page.
func (l *Loader[T]) fetchPage(sess *session[T], gen uint64, cursor string, first bool) {
	ctx := context.Background()
	records, next, err := l.config.Source(ctx, sess.key, cursor)

	sess.mu.Lock()
	if sess.state.Generation != gen {
		sess.mu.Unlock()
		loaderDroppedTotal.Inc()
		l.logger.Debug().
			Str("key", sess.key).
			Uint64("generation", gen).
			Msg("Dropping superseded fetch result")
		return
	}

	if err != nil {
		perr := fetch.AsError(err)
		phase := PhaseFatal
		if len(sess.state.Records) > 0 {
			// Data already merged this session survives the failure.
			phase = PhasePartialError
		}
		sess.state = State[T]{
			Phase:      phase,
			Records:    sess.state.Records,
			HasMore:    sess.state.HasMore,
			Err:        perr,
			Generation: gen,
			FromCache:  sess.state.FromCache,
		}
		snapshot := sess.state
		sess.mu.Unlock()

		loaderTransitionsTotal.WithLabelValues(phase.String()).Inc()
		l.logger.Warn().
			Str("key", sess.key).
			Str("phase", phase.String()).
			Str("kind", string(perr.Kind)).
			Msg("Page fetch failed")
		l.notify(sess, snapshot)
		return
	}

	if first {
		sess.seen = make(map[string]struct{})
		sess.state.Records = nil
	}
	merged := mergePage(sess.state.Records, sess.seen, records)
	sess.cursor = next
	sess.state = State[T]{
		Phase:      PhaseSuccess,
		Records:    merged,
		HasMore:    next != "",
		Generation: gen,
	}
	snapshot := sess.state
	sess.mu.Unlock()

	loaderPagesTotal.Inc()
	loaderTransitionsTotal.WithLabelValues(PhaseSuccess.String()).Inc()
	l.logger.Debug().
		Str("key", sess.key).
		Int("page_records", len(records)).
		Int("total_records", len(merged)).
		Bool("has_more", next != "").
		Msg("Page merged")

	l.storeCached(ctx, sess.key, cachedResult[T]{Records: merged, NextCursor: next})
	l.notify(sess, snapshot)
}

// storeCached persists the merged result. Cache failures only log; the
// loader state is already updated.
func (l *Loader[T]) storeCached(ctx context.Context, key string, result cachedResult[T]) {
	if l.config.Cache == nil {
		return
	}

	payload, err := json.Marshal(result)
	if err != nil {
		l.logger.Warn().Err(err).Str("key", key).Msg("Marshal cached result failed")
		return
	}
	l.config.Cache.Set(ctx, l.cacheKey(key), payload, l.config.TTL)
}

// notify delivers a state snapshot to all current subscribers. Deliveries
// are serialized per session; callbacks that need to call back into the
// loader should do so from a goroutine.
func (l *Loader[T]) notify(sess *session[T], snapshot State[T]) {
	sess.mu.Lock()
	fns := make([]func(State[T]), 0, len(sess.subscribers))
	for _, fn := range sess.subscribers {
		fns = append(fns, fn)
	}
	sess.mu.Unlock()

	sess.notifyMu.Lock()
	defer sess.notifyMu.Unlock()
	for _, fn := range fns {
		fn(snapshot)
	}
}

// cacheKey maps a query key onto the shared cache keyspace.
func (l *Loader[T]) cacheKey(key string) cache.Key {
	return cache.Key{Resource: l.config.Resource, Owner: key}
}
