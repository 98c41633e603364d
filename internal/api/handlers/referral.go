package handlers

import (
	"log"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/replyguy/backend/internal/auth"
	"github.com/replyguy/backend/internal/service"
)

// ReferralHandler handles referral code endpoints
type ReferralHandler struct {
	referralService *service.ReferralService
}

// NewReferralHandler creates a new referral handler
func NewReferralHandler(referralService *service.ReferralService) *ReferralHandler {
	return &ReferralHandler{referralService: referralService}
}

// GenerateCode returns the user's referral code, creating one on first call
// POST /api/v1/referral/code
func (h *ReferralHandler) GenerateCode(w http.ResponseWriter, r *http.Request) {
	user := auth.GetUser(r.Context())
	if user == nil {
		writeError(w, http.StatusUnauthorized, "unauthorized", "Authentication required")
		return
	}

	result, err := h.referralService.GenerateOrGet(r.Context(), user.ID)
	if err != nil {
		log.Printf("[referral] code generation failed for user %s: %v", user.ID, err)
		writeServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, result)
}

// ValidateCode checks whether a referral code exists. Public endpoint used
// by the signup page; an unknown code is a valid response, not an error.
// GET /api/v1/referral/validate/{code}
func (h *ReferralHandler) ValidateCode(w http.ResponseWriter, r *http.Request) {
	code := chi.URLParam(r, "code")
	if code == "" {
		writeError(w, http.StatusBadRequest, "invalid_request", "Referral code is required")
		return
	}

	result, err := h.referralService.Validate(r.Context(), code)
	if err != nil {
		log.Printf("[referral] validate failed: %v", err)
		writeServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, result)
}

// GetStats returns referral statistics for the authenticated user
// GET /api/v1/referral/stats
func (h *ReferralHandler) GetStats(w http.ResponseWriter, r *http.Request) {
	user := auth.GetUser(r.Context())
	if user == nil {
		writeError(w, http.StatusUnauthorized, "unauthorized", "Authentication required")
		return
	}

	stats, err := h.referralService.Stats(r.Context(), user.ID)
	if err != nil {
		log.Printf("[referral] stats failed for user %s: %v", user.ID, err)
		writeServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, stats)
}
