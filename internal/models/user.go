package models

import (
	"time"
)

// User represents a user in the system. Identity and subscription state
// are written by the auth and billing flows; the usage ledger only reads
// timezone, tier and billing anchor day.
type User struct {
	ID               string    `json:"id" db:"id"`
	Email            string    `json:"email" db:"email"`
	PasswordHash     string    `json:"-" db:"password_hash"`
	Tier             string    `json:"tier" db:"tier"`
	Timezone         string    `json:"timezone" db:"timezone"`
	DailyGoal        int       `json:"daily_goal" db:"daily_goal"`
	BillingAnchorDay int       `json:"billing_anchor_day" db:"billing_anchor_day"`
	ReferralCode     string    `json:"referral_code,omitempty" db:"referral_code"`
	CreatedAt        time.Time `json:"created_at" db:"created_at"`
	UpdatedAt        time.Time `json:"updated_at" db:"updated_at"`
}

// APIKey represents an API key for a user
type APIKey struct {
	ID        string     `json:"id" db:"id"`
	UserID    string     `json:"user_id" db:"user_id"`
	KeyHash   string     `json:"-" db:"key_hash"`
	KeyPrefix string     `json:"key_prefix" db:"key_prefix"`
	Name      string     `json:"name" db:"name"`
	IsActive  bool       `json:"is_active" db:"is_active"`
	LastUsed  *time.Time `json:"last_used,omitempty" db:"last_used_at"`
	CreatedAt time.Time  `json:"created_at" db:"created_at"`
}

// UserTier constants
const (
	TierFree      = "free"
	TierBasic     = "basic"
	TierPro       = "pro"
	TierBusiness  = "business"
	TierAnonymous = "anonymous"
)

// IsValidTier checks if a tier is valid
func IsValidTier(tier string) bool {
	switch tier {
	case TierFree, TierBasic, TierPro, TierBusiness:
		return true
	default:
		return false
	}
}

// IsPaidTier reports whether a tier is a paying subscription.
// An empty tier is treated as free.
func IsPaidTier(tier string) bool {
	switch tier {
	case TierBasic, TierPro, TierBusiness:
		return true
	default:
		return false
	}
}

// TierHierarchy returns the hierarchy level of a tier (higher = more privileges)
func TierHierarchy(tier string) int {
	switch tier {
	case TierBusiness:
		return 4
	case TierPro:
		return 3
	case TierBasic:
		return 2
	case TierFree:
		return 1
	default:
		return 0
	}
}

// MonthlyLimits defines per-billing-period caps for each usage type.
// -1 means unlimited.
type MonthlyLimits struct {
	Replies     int `json:"replies"`
	Suggestions int `json:"suggestions"`
	Memes       int `json:"memes"`
}

var tierLimits = map[string]MonthlyLimits{
	TierFree:     {Replies: 10, Suggestions: 50, Memes: 5},
	TierBasic:    {Replies: 300, Suggestions: 500, Memes: 50},
	TierPro:      {Replies: 1000, Suggestions: 2000, Memes: 200},
	TierBusiness: {Replies: -1, Suggestions: -1, Memes: -1},
}

// LimitsForTier returns the billing-period caps for a tier.
// Unknown or empty tiers get the free limits.
func LimitsForTier(tier string) MonthlyLimits {
	if limits, ok := tierLimits[tier]; ok {
		return limits
	}
	return tierLimits[TierFree]
}

// Limit returns the cap for a single usage type, or -1 for unlimited.
func (m MonthlyLimits) Limit(usageType string) int {
	switch usageType {
	case UsageTypeReply:
		return m.Replies
	case UsageTypeSuggestion:
		return m.Suggestions
	case UsageTypeMeme:
		return m.Memes
	default:
		return 0
	}
}
