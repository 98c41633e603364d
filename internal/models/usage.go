package models

import (
	"time"
)

// Usage type constants. These name the counters tracked per day.
const (
	UsageTypeReply      = "reply"
	UsageTypeSuggestion = "suggestion"
	UsageTypeMeme       = "meme"
)

// IsValidUsageType checks if a usage type is one we track
func IsValidUsageType(usageType string) bool {
	switch usageType {
	case UsageTypeReply, UsageTypeSuggestion, UsageTypeMeme:
		return true
	default:
		return false
	}
}

// DailyUsage is the per-user, per-local-date usage record.
// At most one row exists per (user_id, date); counters only grow within a day.
type DailyUsage struct {
	UserID      string    `json:"user_id" db:"user_id"`
	Date        string    `json:"date" db:"date"` // YYYY-MM-DD in the user's timezone
	Replies     int       `json:"replies" db:"replies"`
	Suggestions int       `json:"suggestions" db:"suggestions"`
	Memes       int       `json:"memes" db:"memes"`
	CreatedAt   time.Time `json:"created_at" db:"created_at"`
	UpdatedAt   time.Time `json:"updated_at" db:"updated_at"`
}

// Count returns the counter for a single usage type.
func (d *DailyUsage) Count(usageType string) int {
	switch usageType {
	case UsageTypeReply:
		return d.Replies
	case UsageTypeSuggestion:
		return d.Suggestions
	case UsageTypeMeme:
		return d.Memes
	default:
		return 0
	}
}

// UsageTotals holds per-type sums over a range of daily records.
type UsageTotals struct {
	Replies     int `json:"replies"`
	Suggestions int `json:"suggestions"`
	Memes       int `json:"memes"`
}

// Count returns the total for a single usage type.
func (t *UsageTotals) Count(usageType string) int {
	switch usageType {
	case UsageTypeReply:
		return t.Replies
	case UsageTypeSuggestion:
		return t.Suggestions
	case UsageTypeMeme:
		return t.Memes
	default:
		return 0
	}
}
