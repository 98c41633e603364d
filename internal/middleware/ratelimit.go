package middleware

import (
	"fmt"
	"log"
	"net"
	"net/http"
	"strings"

	"github.com/replyguy/backend/internal/api/response"
	"github.com/replyguy/backend/internal/auth"
	"github.com/replyguy/backend/internal/models"
	"github.com/replyguy/backend/internal/ratelimit"
)

// RateLimit enforces per-tier request rate limits. Authenticated requests
// are limited by user ID, anonymous ones by client IP.
func RateLimit(limiter *ratelimit.RateLimiter) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			identifier, tier := requestIdentity(r)

			allowed, err := limiter.Allow(r.Context(), identifier, tier)
			if err != nil {
				// Redis trouble should not take the API down
				log.Printf("[ratelimit] check failed for %s: %v", identifier, err)
				next.ServeHTTP(w, r)
				return
			}

			if info, err := limiter.GetRemaining(r.Context(), identifier, tier); err == nil {
				w.Header().Set("X-RateLimit-Limit", fmt.Sprintf("%d", info.Limit))
				w.Header().Set("X-RateLimit-Remaining", fmt.Sprintf("%d", info.Remaining))
				w.Header().Set("X-RateLimit-Reset", fmt.Sprintf("%d", info.Reset))
			}

			if !allowed {
				response.TooManyRequests(w, "Rate limit exceeded")
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

func requestIdentity(r *http.Request) (string, string) {
	if user := auth.GetUser(r.Context()); user != nil {
		return "user:" + user.ID, user.Tier
	}
	return "ip:" + clientIP(r), models.TierAnonymous
}

func clientIP(r *http.Request) string {
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		parts := strings.Split(fwd, ",")
		return strings.TrimSpace(parts[0])
	}
	if real := r.Header.Get("X-Real-IP"); real != "" {
		return real
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
