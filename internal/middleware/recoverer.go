package middleware

import (
	"log"
	"net/http"
	"runtime/debug"

	"github.com/replyguy/backend/internal/api/response"
)

// Recoverer recovers from panics in handlers and returns a 500
func Recoverer(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				log.Printf("[http] panic recovered: %v\n%s", rec, debug.Stack())
				response.InternalError(w, "Internal server error")
			}
		}()

		next.ServeHTTP(w, r)
	})
}
