package models

import (
	"time"
)

// TrialOfferToken is a single-use credential that unlocks a trial offer.
// A user may hold several tokens; only the most recently created unexpired,
// unused one is considered active.
type TrialOfferToken struct {
	ID        string     `json:"id" db:"id"`
	UserID    string     `json:"user_id" db:"user_id"`
	Token     string     `json:"token" db:"token"`
	Source    string     `json:"source" db:"source"`
	ExpiresAt time.Time  `json:"expires_at" db:"expires_at"`
	UsedAt    *time.Time `json:"used_at,omitempty" db:"used_at"`
	CreatedAt time.Time  `json:"created_at" db:"created_at"`
}

// IsUsed reports whether the token has already been redeemed.
func (t *TrialOfferToken) IsUsed() bool {
	return t.UsedAt != nil
}

// IsExpired reports whether the token has passed its expiry.
func (t *TrialOfferToken) IsExpired(now time.Time) bool {
	return !now.Before(t.ExpiresAt)
}

// IsActive reports whether the token can still be redeemed.
func (t *TrialOfferToken) IsActive(now time.Time) bool {
	return !t.IsUsed() && !t.IsExpired(now)
}
