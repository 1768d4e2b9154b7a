package cache

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// CacheHits tracks hits by status (fresh or stale).
	CacheHits = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gitpulse_cache_hits_total",
			Help: "Total number of cache hits",
		},
		[]string{"status"}, // "fresh", "stale"
	)

	// CacheMisses tracks cache misses, including corrupt entries and
	// entries past the grace window.
	CacheMisses = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "gitpulse_cache_misses_total",
			Help: "Total number of cache misses",
		},
	)

	// CacheErrors tracks store operation errors.
	CacheErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gitpulse_cache_errors_total",
			Help: "Total number of cache store operation errors",
		},
		[]string{"operation"}, // "get", "set", "invalidate"
	)
)
