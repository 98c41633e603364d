package handlers

import (
	"encoding/json"
	"log"
	"net/http"

	"github.com/replyguy/backend/internal/api/request"
	"github.com/replyguy/backend/internal/auth"
	"github.com/replyguy/backend/internal/service"
)

// UsageHandler handles usage tracking and reporting endpoints
type UsageHandler struct {
	usageService *service.UsageService
}

// NewUsageHandler creates a new usage handler
func NewUsageHandler(usageService *service.UsageService) *UsageHandler {
	return &UsageHandler{usageService: usageService}
}

// TrackUsageRequest represents a usage tracking request
type TrackUsageRequest struct {
	Type  string `json:"type"`
	Count int    `json:"count,omitempty"`
}

// TrackUsage records usage for the authenticated user
// POST /api/v1/user/usage
func (h *UsageHandler) TrackUsage(w http.ResponseWriter, r *http.Request) {
	user := auth.GetUser(r.Context())
	if user == nil {
		writeError(w, http.StatusUnauthorized, "unauthorized", "Authentication required")
		return
	}

	var req TrackUsageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "Invalid request body")
		return
	}
	if req.Count == 0 {
		req.Count = 1
	}

	daily, err := h.usageService.Track(r.Context(), user.ID, req.Type, req.Count)
	if err != nil {
		log.Printf("[usage] track failed for user %s: %v", user.ID, err)
		writeServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"usage": daily,
	})
}

// GetUsage returns the usage summary for the current billing period
// GET /api/v1/user/usage
func (h *UsageHandler) GetUsage(w http.ResponseWriter, r *http.Request) {
	user := auth.GetUser(r.Context())
	if user == nil {
		writeError(w, http.StatusUnauthorized, "unauthorized", "Authentication required")
		return
	}

	summary, err := h.usageService.Summary(r.Context(), user.ID)
	if err != nil {
		log.Printf("[usage] summary failed for user %s: %v", user.ID, err)
		writeServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, summary)
}

// GetDailyUsage returns usage for a single day
// GET /api/v1/user/usage/daily?date=YYYY-MM-DD
func (h *UsageHandler) GetDailyUsage(w http.ResponseWriter, r *http.Request) {
	user := auth.GetUser(r.Context())
	if user == nil {
		writeError(w, http.StatusUnauthorized, "unauthorized", "Authentication required")
		return
	}

	date := request.GetQueryString(r, "date", "")

	daily, err := h.usageService.Daily(r.Context(), user.ID, date)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"usage": daily,
	})
}

// GetHistory returns recent daily usage rows, newest first
// GET /api/v1/user/usage/history?days=N
func (h *UsageHandler) GetHistory(w http.ResponseWriter, r *http.Request) {
	user := auth.GetUser(r.Context())
	if user == nil {
		writeError(w, http.StatusUnauthorized, "unauthorized", "Authentication required")
		return
	}

	days := request.GetQueryIntWithRange(r, "days", 7, 1, 90)

	history, err := h.usageService.History(r.Context(), user.ID, days)
	if err != nil {
		log.Printf("[usage] history failed for user %s: %v", user.ID, err)
		writeServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"days":    days,
		"history": history,
	})
}
