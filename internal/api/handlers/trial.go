package handlers

import (
	"encoding/json"
	"log"
	"net/http"

	"github.com/replyguy/backend/internal/auth"
	"github.com/replyguy/backend/internal/models"
	"github.com/replyguy/backend/internal/repository"
	"github.com/replyguy/backend/internal/service"
)

// TrialHandler handles trial offer token endpoints
type TrialHandler struct {
	trialService *service.TrialService
	userRepo     *repository.UserRepository
}

// NewTrialHandler creates a new trial handler
func NewTrialHandler(trialService *service.TrialService, userRepo *repository.UserRepository) *TrialHandler {
	return &TrialHandler{
		trialService: trialService,
		userRepo:     userRepo,
	}
}

// IssueTokenRequest represents a trial token issuance request
type IssueTokenRequest struct {
	Source string `json:"source,omitempty"`
}

// RedeemTokenRequest represents a trial token redemption request
type RedeemTokenRequest struct {
	Token string `json:"token"`
}

// IssueToken issues a single-use trial offer token for the user
// POST /api/v1/trial-offer/token
func (h *TrialHandler) IssueToken(w http.ResponseWriter, r *http.Request) {
	user := auth.GetUser(r.Context())
	if user == nil {
		writeError(w, http.StatusUnauthorized, "unauthorized", "Authentication required")
		return
	}

	var req IssueTokenRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		// Empty body is fine, source defaults
		req.Source = ""
	}

	token, err := h.trialService.Issue(r.Context(), user.ID, req.Source)
	if err != nil {
		log.Printf("[trial] issue failed for user %s: %v", user.ID, err)
		writeServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, map[string]interface{}{
		"token":      token.Token,
		"source":     token.Source,
		"expires_at": token.ExpiresAt,
		"offer_url":  h.trialService.OfferURL(token.Token),
	})
}

// GetActiveToken returns the user's currently redeemable token, if any
// GET /api/v1/trial-offer/token
func (h *TrialHandler) GetActiveToken(w http.ResponseWriter, r *http.Request) {
	user := auth.GetUser(r.Context())
	if user == nil {
		writeError(w, http.StatusUnauthorized, "unauthorized", "Authentication required")
		return
	}

	token, err := h.trialService.Active(r.Context(), user.ID)
	if err != nil {
		log.Printf("[trial] active lookup failed for user %s: %v", user.ID, err)
		writeServiceError(w, err)
		return
	}

	if token == nil {
		writeJSON(w, http.StatusOK, map[string]interface{}{
			"token": nil,
		})
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"token":      token.Token,
		"source":     token.Source,
		"expires_at": token.ExpiresAt,
		"offer_url":  h.trialService.OfferURL(token.Token),
	})
}

// RedeemToken consumes a trial offer token and starts the trial by
// upgrading the token owner to the pro tier. Public endpoint, the token
// itself is the credential.
// POST /api/v1/trial-offer/redeem
func (h *TrialHandler) RedeemToken(w http.ResponseWriter, r *http.Request) {
	var req RedeemTokenRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "Invalid request body")
		return
	}
	if req.Token == "" {
		req.Token = r.URL.Query().Get("token")
	}

	redeemed, err := h.trialService.Redeem(r.Context(), req.Token)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	if err := h.userRepo.UpdateTier(r.Context(), redeemed.UserID, models.TierPro); err != nil {
		// The token is consumed, so surface the failure rather than
		// leaving the user without the trial they redeemed for.
		log.Printf("[trial] tier upgrade failed for user %s: %v", redeemed.UserID, err)
		writeError(w, http.StatusInternalServerError, "server_error", "Failed to activate trial")
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"message": "Trial activated",
		"user_id": redeemed.UserID,
		"tier":    models.TierPro,
	})
}
