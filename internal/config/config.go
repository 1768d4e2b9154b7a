// Package config holds the GitPulse service configuration and its layered
// loader.
package config

import "time"

// Config is the full service configuration.
type Config struct {
	// Addr is the HTTP listen address of the dashboard API.
	Addr string `koanf:"addr"`

	// ProviderBaseURL is the source-hosting API root.
	ProviderBaseURL string `koanf:"provider_base_url"`

	// ProviderToken is the bearer credential; empty means anonymous.
	ProviderToken string `koanf:"provider_token"`

	// UserAgent is sent with every provider request.
	UserAgent string `koanf:"user_agent"`

	// CacheBackend selects the store: "memory", "redis", or "sqlite".
	CacheBackend string `koanf:"cache_backend"`

	// RedisAddr is the Redis address for the redis backend and the shared
	// rate-limit budget state.
	RedisAddr string `koanf:"redis_addr"`

	// SQLitePath is the database path for the sqlite backend.
	SQLitePath string `koanf:"sqlite_path"`

	// CacheTTL is how long cached results stay fresh.
	CacheTTL time.Duration `koanf:"cache_ttl"`

	// CacheGrace is how long past TTL stale results are still served
	// while revalidating.
	CacheGrace time.Duration `koanf:"cache_grace"`

	// PerPage is the provider page size.
	PerPage int `koanf:"per_page"`

	// LogLevel is the minimum log level (debug, info, warn, error).
	LogLevel string `koanf:"log_level"`

	// LogPretty enables human-readable console logs.
	LogPretty bool `koanf:"log_pretty"`
}

// New returns the default configuration.
func New() *Config {
	return &Config{
		Addr:            ":8080",
		ProviderBaseURL: "https://api.github.com",
		UserAgent:       "gitpulse/0.1.0",
		CacheBackend:    "memory",
		RedisAddr:       "localhost:6379",
		SQLitePath:      "gitpulse-cache.db",
		CacheTTL:        5 * time.Minute,
		CacheGrace:      30 * time.Minute,
		PerPage:         50,
		LogLevel:        "info",
		LogPretty:       false,
	}
}
