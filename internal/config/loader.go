package config

import (
	"errors"
	"os"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

// Load builds a Config by layering defaults, optional file, and env vars.
// Order of precedence (low -> high):
//  1. defaults (New())
//  2. file (YAML) if GITPULSE_CONFIG is set
//  3. env (prefix GITPULSE_)
func Load() (*Config, error) {
	base := New()

	k := koanf.New(".")

	// Load from file if provided.
	if path := os.Getenv("GITPULSE_CONFIG"); path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, err
		}
	}

	// Environment variables: GITPULSE_ADDR, GITPULSE_CACHE_TTL, ...
	// Map env keys like GITPULSE_CACHE_BACKEND -> cache_backend (flat keys),
	// preserving underscores to match the koanf tags on the struct.
	envProvider := env.Provider("GITPULSE_", ".", func(s string) string {
		s = strings.ToLower(s)
		s = strings.TrimPrefix(s, "gitpulse_")
		return s
	})
	if err := k.Load(envProvider, nil); err != nil {
		return nil, err
	}

	// Unmarshal into a copy.
	cfg := *base
	if err := k.UnmarshalWithConf("", &cfg, koanf.UnmarshalConf{Tag: "koanf"}); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks the configuration for inconsistencies.
func (c *Config) Validate() error {
	if c.Addr == "" {
		return errors.New("addr must not be empty")
	}
	if c.ProviderBaseURL == "" {
		return errors.New("provider_base_url must not be empty")
	}
	if c.UserAgent == "" {
		return errors.New("user_agent must not be empty")
	}

	switch c.CacheBackend {
	case "memory", "redis", "sqlite":
	default:
		return errors.New("cache_backend must be one of: memory, redis, sqlite")
	}

	if c.CacheBackend == "redis" && c.RedisAddr == "" {
		return errors.New("redis_addr must not be empty for the redis backend")
	}
	if c.CacheBackend == "sqlite" && c.SQLitePath == "" {
		return errors.New("sqlite_path must not be empty for the sqlite backend")
	}

	if c.CacheTTL <= 0 {
		return errors.New("cache_ttl must be positive")
	}
	if c.PerPage <= 0 || c.PerPage > 100 {
		return errors.New("per_page must be between 1 and 100")
	}

	return nil
}
