package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"regexp"

	"github.com/replyguy/backend/internal/database"
	"github.com/replyguy/backend/internal/repository"
	"github.com/replyguy/backend/internal/service"
)

var emailRegex = regexp.MustCompile(`^[a-zA-Z0-9._%+-]+@[a-zA-Z0-9.-]+\.[a-zA-Z]{2,}$`)

// isValidEmail validates an email address format
func isValidEmail(email string) bool {
	return emailRegex.MatchString(email)
}

// writeJSON writes a JSON response
func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

// writeError writes an error response
func writeError(w http.ResponseWriter, status int, code string, message string) {
	writeJSON(w, status, map[string]interface{}{
		"error":   code,
		"message": message,
	})
}

// writeServiceError maps well-known service and repository errors to HTTP
// statuses. Unrecognized errors become a 500, transient storage errors a 503
// so clients know to retry.
func writeServiceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, service.ErrInvalidUsageType),
		errors.Is(err, service.ErrInvalidCount),
		errors.Is(err, service.ErrInvalidDate),
		errors.Is(err, service.ErrMissingToken):
		writeError(w, http.StatusBadRequest, "invalid_request", err.Error())
	case errors.Is(err, service.ErrLimitExceeded):
		writeError(w, http.StatusForbidden, "limit_reached", err.Error())
	case errors.Is(err, service.ErrSelfReferral):
		writeError(w, http.StatusBadRequest, "self_referral", err.Error())
	case errors.Is(err, service.ErrNotEligible),
		errors.Is(err, service.ErrOfferWindowClosed):
		writeError(w, http.StatusForbidden, "not_eligible", err.Error())
	case errors.Is(err, repository.ErrUserNotFound):
		writeError(w, http.StatusNotFound, "not_found", "User not found")
	case errors.Is(err, repository.ErrTokenNotFound):
		writeError(w, http.StatusNotFound, "not_found", "Token not found")
	case errors.Is(err, repository.ErrTokenUsed):
		writeError(w, http.StatusConflict, "token_used", "Token has already been redeemed")
	case errors.Is(err, repository.ErrTokenExpired):
		writeError(w, http.StatusGone, "token_expired", "Token has expired")
	case errors.Is(err, repository.ErrAlreadyReferred):
		writeError(w, http.StatusConflict, "already_referred", "Account already has a referrer")
	case database.IsTransient(err):
		writeError(w, http.StatusServiceUnavailable, "unavailable", "Service temporarily unavailable, please retry")
	default:
		writeError(w, http.StatusInternalServerError, "server_error", "Internal server error")
	}
}
