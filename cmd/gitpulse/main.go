// Command gitpulse serves repository and commit activity snapshots over
// HTTP, backed by the progressive loader and the shared cache.
package main

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/gitpulse/gitpulse/internal/config"
	"github.com/gitpulse/gitpulse/pkg/cache"
	"github.com/gitpulse/gitpulse/pkg/fetch"
	"github.com/gitpulse/gitpulse/pkg/loader"
	"github.com/gitpulse/gitpulse/pkg/logging"
	"github.com/gitpulse/gitpulse/pkg/provider"
	"github.com/gitpulse/gitpulse/pkg/ratelimit"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		logging.Setup(logging.DefaultConfig())
		fallback := logging.NewLogger("main")
		fallback.Fatal().Err(err).Msg("Failed to load configuration")
	}

	logging.Setup(logging.Config{
		Level:  logging.LogLevel(cfg.LogLevel),
		Pretty: cfg.LogPretty,
	})
	logger := logging.NewLogger("main")

	store, redisClient, err := buildStore(cfg, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to initialize cache store")
	}

	manager := cache.NewManager(store, cfg.CacheGrace)

	adapterCfg := fetch.DefaultConfig(cfg.ProviderBaseURL, cfg.UserAgent)
	adapterCfg.Tokens = fetch.StaticToken(cfg.ProviderToken)
	if redisClient != nil {
		adapterCfg.Limiter = ratelimit.NewTracker(redisClient, logging.NewLogger("ratelimit"))
	}

	adapter, err := fetch.New(adapterCfg)
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to create provider adapter")
	}

	repoLoader, err := loader.New(loader.Config[provider.Repository]{
		Source:   loader.RepositorySource(adapter, cfg.PerPage),
		Cache:    manager,
		TTL:      cfg.CacheTTL,
		Resource: "repos",
	})
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to create repository loader")
	}

	commitLoader, err := loader.New(loader.Config[provider.Commit]{
		Source:   loader.CommitSource(adapter, cfg.PerPage),
		Cache:    manager,
		TTL:      cfg.CacheTTL,
		Resource: "commits",
	})
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to create commit loader")
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", healthHandler)
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/api/repos/", repoHandler(repoLoader))
	mux.HandleFunc("/api/commits/", commitHandler(commitLoader))

	logger.Info().
		Str("addr", cfg.Addr).
		Str("provider", cfg.ProviderBaseURL).
		Str("cache_backend", cfg.CacheBackend).
		Msg("Starting GitPulse server")

	if err := http.ListenAndServe(cfg.Addr, mux); err != nil {
		logger.Fatal().Err(err).Msg("Server failed")
	}
}

// buildStore selects the cache backend. The Redis client is also returned
// when available so the rate-limit tracker can share it.
func buildStore(cfg *config.Config, logger zerolog.Logger) (cache.Store, *redis.Client, error) {
	switch cfg.CacheBackend {
	case "redis":
		client := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		if err := client.Ping(context.Background()).Err(); err != nil {
			return nil, nil, err
		}
		logger.Info().Str("addr", cfg.RedisAddr).Msg("Connected to Redis")
		return cache.NewRedisStore(client), client, nil

	case "sqlite":
		store, err := cache.NewSQLiteStore(cfg.SQLitePath)
		if err != nil {
			return nil, nil, err
		}
		logger.Info().Str("path", cfg.SQLitePath).Msg("Opened SQLite cache")
		return store, nil, nil

	default:
		return cache.NewMemoryStore(), nil, nil
	}
}

func healthHandler(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("OK"))
}

// stateResponse is the JSON shape shared by both data endpoints.
type stateResponse struct {
	Phase     string `json:"phase"`
	Records   any    `json:"records"`
	HasMore   bool   `json:"has_more"`
	FromCache bool   `json:"from_cache"`
	Error     *struct {
		Kind    string `json:"kind"`
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

func writeState[T provider.Keyed](w http.ResponseWriter, st loader.State[T]) {
	resp := stateResponse{
		Phase:     st.Phase.String(),
		Records:   st.Records,
		HasMore:   st.HasMore,
		FromCache: st.FromCache,
	}
	if st.Err != nil {
		resp.Error = &struct {
			Kind    string `json:"kind"`
			Message string `json:"message"`
		}{Kind: string(st.Err.Kind), Message: st.Err.Message}
	}

	status := http.StatusOK
	switch st.Phase {
	case loader.PhaseFatal:
		if st.Err != nil && st.Err.Kind == fetch.KindAuth {
			// Distinct status so the UI can prompt for re-authentication
			// instead of showing a generic failure.
			status = http.StatusUnauthorized
		} else {
			status = http.StatusBadGateway
		}
	case loader.PhasePartialError:
		// Data plus a non-blocking error indicator still renders.
		status = http.StatusOK
	}

	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(resp)
}

// repoHandler serves GET /api/repos/{owner}. ?refresh=1 forces a fetch,
// ?more=1 continues pagination.
func repoHandler(l *loader.Loader[provider.Repository]) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		key := strings.Trim(strings.TrimPrefix(r.URL.Path, "/api/repos/"), "/")
		if key == "" {
			http.Error(w, "owner is required", http.StatusBadRequest)
			return
		}
		serveLoad(w, r, l, key)
	}
}

// commitHandler serves GET /api/commits/{owner}/{repo}[@branch].
func commitHandler(l *loader.Loader[provider.Commit]) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		key := strings.Trim(strings.TrimPrefix(r.URL.Path, "/api/commits/"), "/")
		if !strings.Contains(key, "/") {
			http.Error(w, "owner/repo is required", http.StatusBadRequest)
			return
		}
		serveLoad(w, r, l, key)
	}
}

func serveLoad[T provider.Keyed](w http.ResponseWriter, r *http.Request, l *loader.Loader[T], key string) {
	ctx, cancel := context.WithTimeout(r.Context(), 30*time.Second)
	defer cancel()

	switch {
	case r.URL.Query().Get("refresh") == "1":
		l.Refresh(key)
	case r.URL.Query().Get("more") == "1":
		l.LoadMore(key)
	}

	st, err := l.Load(ctx, key)
	if err != nil {
		http.Error(w, "load timed out", http.StatusGatewayTimeout)
		return
	}
	writeState(w, st)
}
