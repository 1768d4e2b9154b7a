// Package ratelimit tracks the provider's request budget and gates
// outbound requests. It monitors the X-RateLimit-Remaining and
// X-RateLimit-Reset headers so that concurrent GitPulse instances sharing
// one credential do not burn the whole budget and start failing with 429s.
package ratelimit

import (
	"time"
)

// Redis keys for shared budget state.
const (
	RedisKeyRemaining  = "gitpulse:rate_limit:remaining"
	RedisKeyLimit      = "gitpulse:rate_limit:limit"
	RedisKeyResetEpoch = "gitpulse:rate_limit:reset_epoch"
	RedisKeyLastUpdate = "gitpulse:rate_limit:last_update"
)

// Thresholds for budget decisions.
const (
	// ThresholdCritical blocks all requests when the remaining budget
	// falls below this value, leaving headroom for demand-driven refresh.
	ThresholdCritical = 10

	// ThresholdWarning marks the state as throttled when the remaining
	// budget falls below this value.
	ThresholdWarning = 100

	// ThresholdHealthy indicates normal operation.
	ThresholdHealthy = 500
)

// BudgetState is the current provider rate-limit budget. The state is
// shared across instances via Redis.
type BudgetState struct {
	// Remaining is the number of requests left in the current window,
	// from the X-RateLimit-Remaining header.
	Remaining int `json:"remaining"`

	// Limit is the window's total budget, from X-RateLimit-Limit.
	Limit int `json:"limit"`

	// ResetAt is when the window resets, from X-RateLimit-Reset
	// (epoch seconds).
	ResetAt time.Time `json:"reset_at"`

	// LastUpdate is when this state was last refreshed from headers.
	LastUpdate time.Time `json:"last_update"`

	// IsHealthy is true when Remaining >= ThresholdHealthy.
	IsHealthy bool `json:"is_healthy"`
}

// IsStale returns true if the state is older than maxAge and should be
// refreshed from Redis or from response headers.
func (s *BudgetState) IsStale(maxAge time.Duration) bool {
	return time.Since(s.LastUpdate) > maxAge
}

// NeedsCriticalBlock returns true if requests should be blocked.
// A reset window that has already passed lifts the block even if the last
// observed remaining count was critical.
func (s *BudgetState) NeedsCriticalBlock() bool {
	if s.TimeUntilReset() == 0 {
		return false
	}
	return s.Remaining < ThresholdCritical
}

// NeedsThrottling returns true if requests should be slowed down.
func (s *BudgetState) NeedsThrottling() bool {
	return s.Remaining < ThresholdWarning && !s.NeedsCriticalBlock()
}

// TimeUntilReset returns the duration until the budget window resets.
// Returns 0 if the reset time has already passed.
func (s *BudgetState) TimeUntilReset() time.Duration {
	duration := time.Until(s.ResetAt)
	if duration < 0 {
		return 0
	}
	return duration
}

// UpdateHealth updates the IsHealthy field from the current Remaining.
func (s *BudgetState) UpdateHealth() {
	s.IsHealthy = s.Remaining >= ThresholdHealthy
}
