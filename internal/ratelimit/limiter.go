// Package ratelimit implements per-tier request rate limiting backed by
// Redis, shared across all server instances.
package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/replyguy/backend/internal/cache"
	"github.com/replyguy/backend/internal/models"
)

// Limit defines rate limits for a tier
type Limit struct {
	RequestsPerMinute int `json:"requests_per_minute"`
	RequestsPerDay    int `json:"requests_per_day"` // -1 means unlimited
}

// DefaultLimits defines the default rate limits per tier
var DefaultLimits = map[string]Limit{
	models.TierFree:      {RequestsPerMinute: 10, RequestsPerDay: 500},
	models.TierBasic:     {RequestsPerMinute: 30, RequestsPerDay: 3000},
	models.TierPro:       {RequestsPerMinute: 60, RequestsPerDay: 10000},
	models.TierBusiness:  {RequestsPerMinute: 300, RequestsPerDay: -1},
	models.TierAnonymous: {RequestsPerMinute: 5, RequestsPerDay: 100},
}

// RateLimitInfo contains rate limit information for a response
type RateLimitInfo struct {
	Limit     int   `json:"limit"`
	Remaining int   `json:"remaining"`
	Reset     int64 `json:"reset"` // Unix timestamp
}

// RateLimiter handles rate limiting using Redis
type RateLimiter struct {
	cache  *cache.Redis
	limits map[string]Limit
}

// NewRateLimiter creates a new rate limiter
func NewRateLimiter(cache *cache.Redis) *RateLimiter {
	return &RateLimiter{
		cache:  cache,
		limits: DefaultLimits,
	}
}

// Allow checks if a request should be allowed based on rate limits
func (r *RateLimiter) Allow(ctx context.Context, identifier string, tier string) (bool, error) {
	limit := r.GetLimitForTier(tier)

	minuteKey := fmt.Sprintf("ratelimit:minute:%s", identifier)
	allowed, _, err := r.checkSlidingWindowLimit(ctx, minuteKey, limit.RequestsPerMinute, time.Minute)
	if err != nil {
		return false, err
	}
	if !allowed {
		return false, nil
	}

	if limit.RequestsPerDay > 0 {
		dayKey := fmt.Sprintf("ratelimit:day:%s", identifier)
		allowed, _, err = r.checkSlidingWindowLimit(ctx, dayKey, limit.RequestsPerDay, 24*time.Hour)
		if err != nil {
			return false, err
		}
		if !allowed {
			return false, nil
		}
	}

	return true, nil
}

// GetRemaining returns the remaining requests for an identifier
func (r *RateLimiter) GetRemaining(ctx context.Context, identifier string, tier string) (*RateLimitInfo, error) {
	limit := r.GetLimitForTier(tier)

	minuteKey := fmt.Sprintf("ratelimit:minute:%s", identifier)
	_, minuteRemaining, err := r.getSlidingWindowRemaining(ctx, minuteKey, limit.RequestsPerMinute, time.Minute)
	if err != nil {
		return nil, err
	}

	remaining := minuteRemaining
	if limit.RequestsPerDay > 0 {
		dayKey := fmt.Sprintf("ratelimit:day:%s", identifier)
		_, dayRemaining, err := r.getSlidingWindowRemaining(ctx, dayKey, limit.RequestsPerDay, 24*time.Hour)
		if err != nil {
			return nil, err
		}
		if dayRemaining < remaining {
			remaining = dayRemaining
		}
	}

	now := time.Now()
	reset := now.Truncate(time.Minute).Add(time.Minute).Unix()

	return &RateLimitInfo{
		Limit:     limit.RequestsPerMinute,
		Remaining: remaining,
		Reset:     reset,
	}, nil
}

// GetLimitForTier returns the limits for a tier, defaulting to anonymous
func (r *RateLimiter) GetLimitForTier(tier string) Limit {
	if limit, ok := r.limits[tier]; ok {
		return limit
	}
	return r.limits[models.TierAnonymous]
}

// GetLimits returns all configured tier limits
func (r *RateLimiter) GetLimits() map[string]Limit {
	return r.limits
}
