package cache

import (
	"fmt"
)

// UsagePeriodKey is the cache key for a user's billing-period totals.
func UsagePeriodKey(userID string) string {
	return fmt.Sprintf("usage:period:%s", userID)
}
