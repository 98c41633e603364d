package middleware

import (
	"context"
	"net/http"
	"time"
)

const timingKey contextKey = "request_start_time"

// Timing records the request start time in the context so handlers and
// downstream middleware can compute response times.
func Timing(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := context.WithValue(r.Context(), timingKey, time.Now())
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// GetRequestStartTime retrieves the request start time from context
func GetRequestStartTime(ctx context.Context) (time.Time, bool) {
	start, ok := ctx.Value(timingKey).(time.Time)
	return start, ok
}

// GetResponseTimeMs returns the elapsed request time in milliseconds
func GetResponseTimeMs(ctx context.Context) int64 {
	start, ok := GetRequestStartTime(ctx)
	if !ok {
		return 0
	}
	return time.Since(start).Milliseconds()
}
