// Package metrics documents the Prometheus metrics exported by GitPulse.
// All metrics are defined in their respective packages (fetch, cache,
// loader, ratelimit) to maintain modularity and avoid circular
// dependencies.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Registry is the default Prometheus registry used by GitPulse.
// All metrics are automatically registered via promauto in their
// respective packages.
var Registry = prometheus.DefaultRegisterer

// Metrics Documentation
//
// Request Metrics (pkg/fetch):
//   - gitpulse_provider_requests_total{endpoint, status} (Counter): Requests by endpoint and HTTP status
//   - gitpulse_provider_request_duration_seconds{endpoint} (Histogram): Request duration by endpoint
//   - gitpulse_provider_errors_total{kind} (Counter): Normalized errors by kind
//
// Retry Metrics (pkg/fetch):
//   - gitpulse_retries_total{kind} (Counter): Retry attempts by error kind
//   - gitpulse_retry_backoff_seconds{kind} (Histogram): Backoff duration by error kind
//   - gitpulse_retry_exhausted_total{kind} (Counter): Requests that exhausted max retries
//
// Cache Metrics (pkg/cache):
//   - gitpulse_cache_hits_total{status="fresh"|"stale"} (Counter): Cache hits
//   - gitpulse_cache_misses_total (Counter): Cache misses
//   - gitpulse_cache_errors_total{operation} (Counter): Store operation errors
//
// Loader Metrics (pkg/loader):
//   - gitpulse_loader_transitions_total{phase} (Counter): State transitions by resulting phase
//   - gitpulse_loader_pages_total (Counter): Pages merged
//   - gitpulse_loader_revalidations_total (Counter): Background revalidations after stale hits
//   - gitpulse_loader_dropped_results_total (Counter): Superseded fetch results dropped
//
// Rate Limit Metrics (pkg/ratelimit):
//   - gitpulse_rate_limit_remaining (Gauge): Requests remaining in the provider window
//   - gitpulse_rate_limit_blocks_total (Counter): Requests blocked on critical budget
//   - gitpulse_rate_limit_throttles_total (Counter): Requests throttled on low budget
//
// Example Prometheus Queries:
//
//	# Cache hit rate
//	sum(rate(gitpulse_cache_hits_total[5m])) /
//	(sum(rate(gitpulse_cache_hits_total[5m])) + sum(rate(gitpulse_cache_misses_total[5m])))
//
//	# Stale serve share
//	rate(gitpulse_cache_hits_total{status="stale"}[5m]) / rate(gitpulse_cache_hits_total[5m])
//
//	# Error rate by kind
//	rate(gitpulse_provider_errors_total[5m])
//
//	# P95 request latency
//	histogram_quantile(0.95, rate(gitpulse_provider_request_duration_seconds_bucket[5m]))
