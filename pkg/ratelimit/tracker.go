package ratelimit

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// Prometheus metrics for budget tracking.
var (
	budgetRemaining = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "gitpulse_rate_limit_remaining",
		Help: "Requests remaining in the current provider rate limit window",
	})

	budgetBlocksTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "gitpulse_rate_limit_blocks_total",
		Help: "Total number of requests blocked due to critical budget",
	})

	budgetThrottlesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "gitpulse_rate_limit_throttles_total",
		Help: "Total number of requests throttled due to low budget",
	})
)

// Tracker monitors the provider rate-limit budget and gates requests.
type Tracker struct {
	redis  *redis.Client
	logger zerolog.Logger
}

// NewTracker creates a new budget tracker.
func NewTracker(redisClient *redis.Client, logger zerolog.Logger) *Tracker {
	return &Tracker{
		redis:  redisClient,
		logger: logger,
	}
}

// GetState retrieves the current budget state from Redis.
// Returns a default healthy state if no data exists yet.
func (t *Tracker) GetState(ctx context.Context) (*BudgetState, error) {
	remaining, err := t.redis.Get(ctx, RedisKeyRemaining).Int()
	if err != nil && err != redis.Nil {
		return nil, fmt.Errorf("get remaining: %w", err)
	}

	limit, err := t.redis.Get(ctx, RedisKeyLimit).Int()
	if err != nil && err != redis.Nil {
		return nil, fmt.Errorf("get limit: %w", err)
	}

	resetEpoch, err := t.redis.Get(ctx, RedisKeyResetEpoch).Int64()
	if err != nil && err != redis.Nil {
		return nil, fmt.Errorf("get reset epoch: %w", err)
	}

	lastUpdateStr, err := t.redis.Get(ctx, RedisKeyLastUpdate).Result()
	if err != nil && err != redis.Nil {
		return nil, fmt.Errorf("get last update: %w", err)
	}

	// No state yet: assume a full window until real headers arrive.
	if err == redis.Nil {
		t.logger.Debug().Msg("No rate limit state in Redis, returning default healthy state")
		return &BudgetState{
			Remaining:  5000,
			Limit:      5000,
			ResetAt:    time.Now().Add(time.Hour),
			LastUpdate: time.Now(),
			IsHealthy:  true,
		}, nil
	}

	var lastUpdate time.Time
	if lastUpdateStr != "" {
		if err := json.Unmarshal([]byte(lastUpdateStr), &lastUpdate); err != nil {
			return nil, fmt.Errorf("parse last update: %w", err)
		}
	}

	state := &BudgetState{
		Remaining:  remaining,
		Limit:      limit,
		ResetAt:    time.Unix(resetEpoch, 0),
		LastUpdate: lastUpdate,
	}
	state.UpdateHealth()

	return state, nil
}

// UpdateFromHeaders parses the provider's rate-limit headers and updates
// the shared Redis state. Responses without the headers are ignored.
func (t *Tracker) UpdateFromHeaders(ctx context.Context, headers http.Header) error {
	remainStr := headers.Get("X-RateLimit-Remaining")
	if remainStr == "" {
		// Header not present - fine for endpoints outside the budget.
		return nil
	}

	remain, err := strconv.Atoi(remainStr)
	if err != nil {
		return fmt.Errorf("parse X-RateLimit-Remaining header: %w", err)
	}

	limit := 0
	if limitStr := headers.Get("X-RateLimit-Limit"); limitStr != "" {
		if limit, err = strconv.Atoi(limitStr); err != nil {
			return fmt.Errorf("parse X-RateLimit-Limit header: %w", err)
		}
	}

	resetStr := headers.Get("X-RateLimit-Reset")
	if resetStr == "" {
		return fmt.Errorf("X-RateLimit-Reset header missing")
	}

	resetEpoch, err := strconv.ParseInt(resetStr, 10, 64)
	if err != nil {
		return fmt.Errorf("parse X-RateLimit-Reset header: %w", err)
	}

	now := time.Now()
	state := &BudgetState{
		Remaining:  remain,
		Limit:      limit,
		ResetAt:    time.Unix(resetEpoch, 0),
		LastUpdate: now,
	}
	state.UpdateHealth()

	// Store in Redis atomically.
	pipe := t.redis.Pipeline()
	pipe.Set(ctx, RedisKeyRemaining, remain, 0)
	pipe.Set(ctx, RedisKeyLimit, limit, 0)
	pipe.Set(ctx, RedisKeyResetEpoch, resetEpoch, 0)

	lastUpdateJSON, err := json.Marshal(state.LastUpdate)
	if err != nil {
		return fmt.Errorf("marshal last update: %w", err)
	}
	pipe.Set(ctx, RedisKeyLastUpdate, lastUpdateJSON, 0)

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("store rate limit state in redis: %w", err)
	}

	budgetRemaining.Set(float64(remain))

	logEvent := t.logger.Debug().
		Int("remaining", remain).
		Int("limit", limit).
		Time("reset_at", state.ResetAt).
		Bool("is_healthy", state.IsHealthy)

	if state.NeedsCriticalBlock() {
		logEvent = t.logger.Error().Int("remaining", remain)
		logEvent.Msg("Provider budget CRITICAL - requests will be blocked")
	} else if state.NeedsThrottling() {
		logEvent = t.logger.Warn().Int("remaining", remain)
		logEvent.Msg("Provider budget low - requests will be throttled")
	} else {
		logEvent.Msg("Provider budget state updated")
	}

	return nil
}

// ShouldAllowRequest checks if a request should be allowed under the
// current budget. Returns false when the remaining budget is critical and
// the window has not reset yet.
func (t *Tracker) ShouldAllowRequest(ctx context.Context) (bool, error) {
	state, err := t.GetState(ctx)
	if err != nil {
		return false, fmt.Errorf("get budget state: %w", err)
	}

	if state.NeedsCriticalBlock() {
		budgetBlocksTotal.Inc()
		t.logger.Warn().
			Int("remaining", state.Remaining).
			Dur("until_reset", state.TimeUntilReset()).
			Msg("Request blocked: budget critical")
		return false, nil
	}

	if state.NeedsThrottling() {
		budgetThrottlesTotal.Inc()
		t.logger.Debug().
			Int("remaining", state.Remaining).
			Msg("Budget low, request allowed with throttle flag")
	}

	return true, nil
}
