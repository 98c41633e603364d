package service

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"time"

	"github.com/replyguy/backend/internal/bucket"
	"github.com/replyguy/backend/internal/cache"
	"github.com/replyguy/backend/internal/database"
	"github.com/replyguy/backend/internal/metrics"
	"github.com/replyguy/backend/internal/models"
	"github.com/replyguy/backend/internal/webhook"
)

var (
	// ErrInvalidUsageType is returned for usage types the ledger does not track
	ErrInvalidUsageType = errors.New("invalid usage type")
	// ErrInvalidCount is returned for non-positive increment counts
	ErrInvalidCount = errors.New("count must be positive")
	// ErrInvalidDate is returned for dates not in YYYY-MM-DD form
	ErrInvalidDate = errors.New("invalid date, expected YYYY-MM-DD")
	// ErrLimitExceeded is returned when an action would pass the billing-period cap
	ErrLimitExceeded = errors.New("usage limit reached for current billing period")
)

const (
	maxAttempts    = 3
	retryBaseDelay = 100 * time.Millisecond
	maxHistoryDays = 90
)

// UsageStore is the ledger storage interface
type UsageStore interface {
	Increment(ctx context.Context, userID, date, usageType string, count int) (*models.DailyUsage, error)
	GetDaily(ctx context.Context, userID, date string) (*models.DailyUsage, error)
	SumRange(ctx context.Context, userID, from, to string) (*models.UsageTotals, error)
	ListRecent(ctx context.Context, userID string, limit int) ([]models.DailyUsage, error)
}

// UserGetter reads user identity, timezone and subscription fields
type UserGetter interface {
	GetByID(ctx context.Context, id string) (*models.User, error)
}

// Notifier delivers best-effort events to the webhook sink
type Notifier interface {
	Notify(event string, data map[string]interface{})
}

// UsageService implements the usage ledger on top of atomic storage
// operations. Mutations retry on transient storage errors; limit checks
// fail closed when usage data is unreadable.
type UsageService struct {
	users    UserGetter
	usage    UsageStore
	cache    *cache.Redis
	notifier Notifier
	cacheTTL time.Duration
	now      func() time.Time
}

// NewUsageService creates a new usage service
func NewUsageService(users UserGetter, usage UsageStore, redisCache *cache.Redis, notifier Notifier, cacheTTL time.Duration) *UsageService {
	return &UsageService{
		users:    users,
		usage:    usage,
		cache:    redisCache,
		notifier: notifier,
		cacheTTL: cacheTTL,
		now:      time.Now,
	}
}

// PeriodUsage bundles billing-period totals with the resolved boundaries.
type PeriodUsage struct {
	Totals      *models.UsageTotals `json:"totals"`
	PeriodStart string              `json:"period_start"`
	PeriodEnd   string              `json:"period_end"`
}

// UsageSummary is the combined daily + billing-period view for a user.
type UsageSummary struct {
	Daily     *models.DailyUsage   `json:"daily"`
	Period    *PeriodUsage         `json:"period"`
	Limits    models.MonthlyLimits `json:"limits"`
	DailyGoal int                  `json:"daily_goal"`
}

// Track increments the counter for the user's current local date. The
// billing-period cap for the user's tier is checked first; if usage data
// cannot be read the action is denied rather than allowed unmetered.
func (s *UsageService) Track(ctx context.Context, userID, usageType string, count int) (*models.DailyUsage, error) {
	if !models.IsValidUsageType(usageType) {
		return nil, ErrInvalidUsageType
	}
	if count <= 0 {
		return nil, ErrInvalidCount
	}

	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		return nil, err
	}

	limits := models.LimitsForTier(user.Tier)
	if cap := limits.Limit(usageType); cap >= 0 {
		period, err := s.periodUsage(ctx, user)
		if err != nil {
			// Fail closed: unreadable usage data denies the action
			return nil, err
		}
		if period.Totals.Count(usageType)+count > cap {
			metrics.LimitDenials.WithLabelValues(user.Tier).Inc()
			s.notify(webhook.EventUsageLimitReached, map[string]interface{}{
				"user_id":    userID,
				"usage_type": usageType,
				"tier":       user.Tier,
				"limit":      cap,
			})
			return nil, ErrLimitExceeded
		}
	}

	date, fellBack := bucket.Date(user.Timezone, s.now())
	if fellBack {
		log.Printf("[usage] Unknown timezone %q for user %s, bucketing in UTC", user.Timezone, userID)
	}

	var record *models.DailyUsage
	err = s.withRetry(ctx, func() error {
		var incErr error
		record, incErr = s.usage.Increment(ctx, userID, date, usageType, count)
		return incErr
	})
	if err != nil {
		return nil, err
	}

	metrics.UsageIncrements.WithLabelValues(usageType).Add(float64(count))
	s.invalidatePeriodCache(ctx, userID)

	return record, nil
}

// Daily returns the usage record for a given date, or for the user's
// current local date when date is empty. Absent records come back zeroed.
func (s *UsageService) Daily(ctx context.Context, userID, date string) (*models.DailyUsage, error) {
	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		return nil, err
	}

	if date == "" {
		date, _ = bucket.Date(user.Timezone, s.now())
	} else if _, err := time.Parse(bucket.DateFormat, date); err != nil {
		return nil, ErrInvalidDate
	}

	return s.usage.GetDaily(ctx, userID, date)
}

// PeriodTotal returns the user's usage summed over the current billing period.
func (s *UsageService) PeriodTotal(ctx context.Context, userID string) (*PeriodUsage, error) {
	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		return nil, err
	}
	return s.periodUsage(ctx, user)
}

// Summary returns the combined daily and billing-period view.
func (s *UsageService) Summary(ctx context.Context, userID string) (*UsageSummary, error) {
	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		return nil, err
	}

	date, fellBack := bucket.Date(user.Timezone, s.now())
	if fellBack {
		log.Printf("[usage] Unknown timezone %q for user %s, bucketing in UTC", user.Timezone, userID)
	}

	daily, err := s.usage.GetDaily(ctx, userID, date)
	if err != nil {
		return nil, err
	}

	period, err := s.periodUsage(ctx, user)
	if err != nil {
		return nil, err
	}

	return &UsageSummary{
		Daily:     daily,
		Period:    period,
		Limits:    models.LimitsForTier(user.Tier),
		DailyGoal: user.DailyGoal,
	}, nil
}

// History returns the last n days of usage records, newest first.
func (s *UsageService) History(ctx context.Context, userID string, days int) ([]models.DailyUsage, error) {
	if days < 1 {
		days = 7
	}
	if days > maxHistoryDays {
		days = maxHistoryDays
	}
	return s.usage.ListRecent(ctx, userID, days)
}

// periodUsage resolves the billing period from the user's anchor day and
// sums daily rows in range. Totals are cached briefly; the cache is dropped
// on every increment so reads never lag by more than one in-flight write.
func (s *UsageService) periodUsage(ctx context.Context, user *models.User) (*PeriodUsage, error) {
	key := cache.UsagePeriodKey(user.ID)
	if s.cache != nil {
		if cached, err := s.cache.Get(ctx, key); err == nil && cached != "" {
			var period PeriodUsage
			if err := json.Unmarshal([]byte(cached), &period); err == nil {
				return &period, nil
			}
		}
	}

	start, end := bucket.PeriodDates(user.BillingAnchorDay, s.now())
	totals, err := s.usage.SumRange(ctx, user.ID, start, end)
	if err != nil {
		return nil, err
	}

	period := &PeriodUsage{
		Totals:      totals,
		PeriodStart: start,
		PeriodEnd:   end,
	}

	if s.cache != nil && s.cacheTTL > 0 {
		if data, err := json.Marshal(period); err == nil {
			if err := s.cache.Set(ctx, key, data, s.cacheTTL); err != nil {
				log.Printf("[usage] Failed to cache period totals for %s: %v", user.ID, err)
			}
		}
	}

	return period, nil
}

func (s *UsageService) invalidatePeriodCache(ctx context.Context, userID string) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Delete(ctx, cache.UsagePeriodKey(userID)); err != nil {
		log.Printf("[usage] Failed to invalidate period cache for %s: %v", userID, err)
	}
}

func (s *UsageService) notify(event string, data map[string]interface{}) {
	if s.notifier != nil {
		s.notifier.Notify(event, data)
	}
}

// withRetry re-attempts fn for transient storage errors only, with a short
// backoff between attempts. Logical failures surface immediately.
func (s *UsageService) withRetry(ctx context.Context, fn func() error) error {
	var err error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		err = fn()
		if err == nil || !database.IsTransient(err) {
			return err
		}
		if attempt == maxAttempts {
			break
		}

		delay := retryBaseDelay << (attempt - 1)
		log.Printf("[usage] Transient storage error (attempt %d/%d), retrying in %v: %v", attempt, maxAttempts, delay, err)
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return err
}
