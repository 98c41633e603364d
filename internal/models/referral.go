package models

import (
	"time"
)

// Referral records that a new user signed up through another user's code.
// A referred user appears at most once.
type Referral struct {
	ID         string    `json:"id" db:"id"`
	ReferrerID string    `json:"referrer_id" db:"referrer_id"`
	ReferredID string    `json:"referred_id" db:"referred_id"`
	Code       string    `json:"code" db:"code"`
	CreatedAt  time.Time `json:"created_at" db:"created_at"`
}

// ReferralStats summarizes a user's referral activity.
type ReferralStats struct {
	ReferralCode  string `json:"referral_code"`
	ReferralURL   string `json:"referral_url"`
	TotalReferred int    `json:"total_referred"`
	IsFreeTier    bool   `json:"is_free_tier"`
	IsPaidTier    bool   `json:"is_paid_tier"`
}
