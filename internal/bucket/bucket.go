// Package bucket resolves user-local calendar dates and billing periods.
// All functions are pure: a function of (timezone, instant) with no side
// effects, so the day boundary logic is trivially testable.
package bucket

import (
	"time"
)

// DateFormat is the canonical YYYY-MM-DD layout used as the daily usage key.
const DateFormat = "2006-01-02"

// maxAnchorDay caps the billing anchor so every month contains it.
const maxAnchorDay = 28

// Date returns the calendar date for the given instant in the user's IANA
// timezone. An empty timezone means UTC. An unrecognized timezone falls back
// to UTC and reports it via the second return value; callers log the
// fallback, it is never a hard error.
func Date(timezone string, at time.Time) (string, bool) {
	if timezone == "" {
		return at.UTC().Format(DateFormat), false
	}

	loc, err := time.LoadLocation(timezone)
	if err != nil {
		return at.UTC().Format(DateFormat), true
	}

	return at.In(loc).Format(DateFormat), false
}

// Period returns the current billing period [start, end) for a subscription
// anchored to anchorDay, evaluated at now (UTC). Anchor days are clamped to
// 1..28 so every month contains the anchor. An anchor of 0 (no subscription)
// means the calendar month.
func Period(anchorDay int, now time.Time) (time.Time, time.Time) {
	anchor := ClampAnchorDay(anchorDay)

	now = now.UTC()
	year, month, day := now.Date()

	var start time.Time
	if day >= anchor {
		start = time.Date(year, month, anchor, 0, 0, 0, 0, time.UTC)
	} else {
		// time.Date normalizes month-1 across year boundaries
		start = time.Date(year, month-1, anchor, 0, 0, 0, 0, time.UTC)
	}
	end := start.AddDate(0, 1, 0)

	return start, end
}

// PeriodDates returns the current billing period as YYYY-MM-DD strings,
// suitable for range queries against daily usage rows.
func PeriodDates(anchorDay int, now time.Time) (string, string) {
	start, end := Period(anchorDay, now)
	return start.Format(DateFormat), end.Format(DateFormat)
}

// ClampAnchorDay normalizes a billing anchor day to 1..28.
func ClampAnchorDay(day int) int {
	if day < 1 {
		return 1
	}
	if day > maxAnchorDay {
		return maxAnchorDay
	}
	return day
}
