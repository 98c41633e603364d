package handlers

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/replyguy/backend/internal/auth"
	"github.com/replyguy/backend/internal/models"
	"github.com/replyguy/backend/internal/repository"
	"github.com/replyguy/backend/internal/service"
)

// AuthHandler handles authentication endpoints
type AuthHandler struct {
	userRepo        *repository.UserRepository
	jwtService      *auth.JWTService
	apiKeyService   *auth.APIKeyService
	referralService *service.ReferralService
}

// NewAuthHandler creates a new auth handler
func NewAuthHandler(
	userRepo *repository.UserRepository,
	jwtService *auth.JWTService,
	apiKeyService *auth.APIKeyService,
	referralService *service.ReferralService,
) *AuthHandler {
	return &AuthHandler{
		userRepo:        userRepo,
		jwtService:      jwtService,
		apiKeyService:   apiKeyService,
		referralService: referralService,
	}
}

// RegisterRequest represents a registration request
type RegisterRequest struct {
	Email        string `json:"email"`
	Password     string `json:"password"`
	Timezone     string `json:"timezone,omitempty"`
	ReferralCode string `json:"referral_code,omitempty"`
}

// LoginRequest represents a login request
type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// AuthResponse represents an authentication response
type AuthResponse struct {
	Token     string        `json:"token"`
	ExpiresIn int64         `json:"expires_in"`
	User      *UserResponse `json:"user"`
}

// UserResponse represents a user in API responses
type UserResponse struct {
	ID               string    `json:"id"`
	Email            string    `json:"email"`
	Tier             string    `json:"tier"`
	Timezone         string    `json:"timezone"`
	DailyGoal        int       `json:"daily_goal"`
	BillingAnchorDay int       `json:"billing_anchor_day"`
	ReferralCode     string    `json:"referral_code,omitempty"`
	CreatedAt        time.Time `json:"created_at"`
}

// CreateAPIKeyRequest represents a request to create an API key
type CreateAPIKeyRequest struct {
	Name string `json:"name"`
}

// APIKeyResponse represents an API key in API responses
type APIKeyResponse struct {
	ID        string     `json:"id"`
	KeyPrefix string     `json:"key_prefix"`
	Name      string     `json:"name"`
	IsActive  bool       `json:"is_active"`
	LastUsed  *time.Time `json:"last_used,omitempty"`
	CreatedAt time.Time  `json:"created_at"`
}

// CreateAPIKeyResponse includes the full key (only shown once)
type CreateAPIKeyResponse struct {
	Key     string          `json:"key"`
	KeyInfo *APIKeyResponse `json:"key_info"`
}

// UpdateSettingsRequest represents a settings update
type UpdateSettingsRequest struct {
	Timezone  *string `json:"timezone,omitempty"`
	DailyGoal *int    `json:"daily_goal,omitempty"`
}

func newUserResponse(u *models.User) *UserResponse {
	return &UserResponse{
		ID:               u.ID,
		Email:            u.Email,
		Tier:             u.Tier,
		Timezone:         u.Timezone,
		DailyGoal:        u.DailyGoal,
		BillingAnchorDay: u.BillingAnchorDay,
		ReferralCode:     u.ReferralCode,
		CreatedAt:        u.CreatedAt,
	}
}

// Register handles user registration
// POST /api/v1/auth/register
func (h *AuthHandler) Register(w http.ResponseWriter, r *http.Request) {
	var req RegisterRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "Invalid request body")
		return
	}

	if !isValidEmail(req.Email) {
		writeError(w, http.StatusBadRequest, "invalid_email", "Invalid email address")
		return
	}

	if err := auth.ValidatePasswordStrength(req.Password); err != nil {
		writeError(w, http.StatusBadRequest, "weak_password", err.Error())
		return
	}

	if req.Timezone != "" {
		if _, err := time.LoadLocation(req.Timezone); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_timezone", "Unknown timezone")
			return
		}
	}

	passwordHash, err := auth.HashPassword(req.Password)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "server_error", "Failed to process registration")
		return
	}

	user := &models.User{
		Email:        strings.ToLower(strings.TrimSpace(req.Email)),
		PasswordHash: passwordHash,
		Tier:         models.TierFree,
		Timezone:     req.Timezone,
	}

	if err := h.userRepo.Create(r.Context(), user); err != nil {
		if errors.Is(err, repository.ErrUserExists) {
			writeError(w, http.StatusConflict, "user_exists", "An account with this email already exists")
			return
		}
		log.Printf("[auth] Register error: %v", err)
		writeError(w, http.StatusInternalServerError, "server_error", "Failed to create account")
		return
	}

	// A referral code can arrive in the body or as ?ref= on the signup
	// link. Redemption failures never block registration.
	refCode := req.ReferralCode
	if refCode == "" {
		refCode = r.URL.Query().Get("ref")
	}
	if refCode != "" && h.referralService != nil {
		if err := h.referralService.Redeem(r.Context(), refCode, user.ID); err != nil {
			log.Printf("[auth] referral redemption failed for user %s: %v", user.ID, err)
		}
	}

	token, err := h.jwtService.Generate(user)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "server_error", "Failed to generate token")
		return
	}

	writeJSON(w, http.StatusCreated, AuthResponse{
		Token:     token,
		ExpiresIn: int64(h.jwtService.GetExpiration().Seconds()),
		User:      newUserResponse(user),
	})
}

// Login handles user login
// POST /api/v1/auth/login
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "Invalid request body")
		return
	}

	email := strings.ToLower(strings.TrimSpace(req.Email))

	user, err := h.userRepo.GetByEmail(r.Context(), email)
	if err != nil {
		// Don't reveal whether the email exists
		writeError(w, http.StatusUnauthorized, "invalid_credentials", "Invalid email or password")
		return
	}

	if !auth.CheckPassword(req.Password, user.PasswordHash) {
		writeError(w, http.StatusUnauthorized, "invalid_credentials", "Invalid email or password")
		return
	}

	token, err := h.jwtService.Generate(user)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "server_error", "Failed to generate token")
		return
	}

	writeJSON(w, http.StatusOK, AuthResponse{
		Token:     token,
		ExpiresIn: int64(h.jwtService.GetExpiration().Seconds()),
		User:      newUserResponse(user),
	})
}

// RefreshToken refreshes a JWT token
// POST /api/v1/auth/refresh
func (h *AuthHandler) RefreshToken(w http.ResponseWriter, r *http.Request) {
	authHeader := r.Header.Get("Authorization")
	if authHeader == "" {
		writeError(w, http.StatusUnauthorized, "missing_token", "Authorization header required")
		return
	}

	parts := strings.SplitN(authHeader, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") {
		writeError(w, http.StatusUnauthorized, "invalid_token", "Invalid authorization header format")
		return
	}

	newToken, err := h.jwtService.Refresh(parts[1])
	if err != nil {
		switch {
		case errors.Is(err, auth.ErrExpiredToken):
			writeError(w, http.StatusUnauthorized, "token_expired", "Token has expired and cannot be refreshed")
		default:
			writeError(w, http.StatusUnauthorized, "invalid_token", "Invalid token")
		}
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"token":      newToken,
		"expires_in": int64(h.jwtService.GetExpiration().Seconds()),
	})
}

// GetCurrentUser returns the current authenticated user
// GET /api/v1/user/me
func (h *AuthHandler) GetCurrentUser(w http.ResponseWriter, r *http.Request) {
	user := auth.GetUser(r.Context())
	if user == nil {
		writeError(w, http.StatusUnauthorized, "unauthorized", "Authentication required")
		return
	}

	fullUser, err := h.userRepo.GetByID(r.Context(), user.ID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "server_error", "Failed to fetch user data")
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"user": newUserResponse(fullUser),
	})
}

// UpdateSettings updates the user's timezone and daily goal
// PATCH /api/v1/user/settings
func (h *AuthHandler) UpdateSettings(w http.ResponseWriter, r *http.Request) {
	user := auth.GetUser(r.Context())
	if user == nil {
		writeError(w, http.StatusUnauthorized, "unauthorized", "Authentication required")
		return
	}

	var req UpdateSettingsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "Invalid request body")
		return
	}

	// JWT-authenticated context users only carry identity fields, so load
	// the stored record before filling in unchanged settings.
	current, err := h.userRepo.GetByID(r.Context(), user.ID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "server_error", "Failed to fetch user data")
		return
	}

	timezone := current.Timezone
	if req.Timezone != nil {
		if *req.Timezone != "" {
			if _, err := time.LoadLocation(*req.Timezone); err != nil {
				writeError(w, http.StatusBadRequest, "invalid_timezone", "Unknown timezone")
				return
			}
		}
		timezone = *req.Timezone
	}

	dailyGoal := current.DailyGoal
	if req.DailyGoal != nil {
		if *req.DailyGoal < 0 {
			writeError(w, http.StatusBadRequest, "invalid_request", "Daily goal must not be negative")
			return
		}
		dailyGoal = *req.DailyGoal
	}

	if err := h.userRepo.UpdateSettings(r.Context(), user.ID, timezone, dailyGoal); err != nil {
		log.Printf("[auth] UpdateSettings error: %v", err)
		writeServiceError(w, err)
		return
	}

	updated, err := h.userRepo.GetByID(r.Context(), user.ID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "server_error", "Failed to fetch user data")
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"user": newUserResponse(updated),
	})
}

// CreateAPIKey creates a new API key for the user
// POST /api/v1/user/api-keys
func (h *AuthHandler) CreateAPIKey(w http.ResponseWriter, r *http.Request) {
	user := auth.GetUser(r.Context())
	if user == nil {
		writeError(w, http.StatusUnauthorized, "unauthorized", "Authentication required")
		return
	}

	var req CreateAPIKeyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		// Allow empty body, use default name
		req.Name = "API Key"
	}
	if req.Name == "" {
		req.Name = "API Key"
	}

	generated, err := h.apiKeyService.Generate(r.Context(), user.ID, req.Name)
	if err != nil {
		if errors.Is(err, auth.ErrAPIKeyLimit) {
			writeError(w, http.StatusBadRequest, "limit_reached", "Maximum API key limit reached")
			return
		}
		log.Printf("[auth] CreateAPIKey error: %v", err)
		writeError(w, http.StatusInternalServerError, "server_error", "Failed to create API key")
		return
	}

	writeJSON(w, http.StatusCreated, CreateAPIKeyResponse{
		Key:     generated.PlainTextKey,
		KeyInfo: newAPIKeyResponse(generated.KeyInfo),
	})
}

// ListAPIKeys lists all API keys for the user
// GET /api/v1/user/api-keys
func (h *AuthHandler) ListAPIKeys(w http.ResponseWriter, r *http.Request) {
	user := auth.GetUser(r.Context())
	if user == nil {
		writeError(w, http.StatusUnauthorized, "unauthorized", "Authentication required")
		return
	}

	keys, err := h.apiKeyService.List(r.Context(), user.ID)
	if err != nil {
		log.Printf("[auth] ListAPIKeys error: %v", err)
		writeError(w, http.StatusInternalServerError, "server_error", "Failed to list API keys")
		return
	}

	out := make([]APIKeyResponse, len(keys))
	for i := range keys {
		out[i] = *newAPIKeyResponse(&keys[i])
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"api_keys": out,
	})
}

// RevokeAPIKey revokes an API key
// DELETE /api/v1/user/api-keys/{keyID}
func (h *AuthHandler) RevokeAPIKey(w http.ResponseWriter, r *http.Request) {
	user := auth.GetUser(r.Context())
	if user == nil {
		writeError(w, http.StatusUnauthorized, "unauthorized", "Authentication required")
		return
	}

	keyID := chi.URLParam(r, "keyID")
	if keyID == "" {
		writeError(w, http.StatusBadRequest, "invalid_request", "Key ID is required")
		return
	}

	if err := h.apiKeyService.Revoke(r.Context(), keyID, user.ID); err != nil {
		if errors.Is(err, auth.ErrAPIKeyNotFound) {
			writeError(w, http.StatusNotFound, "not_found", "API key not found")
			return
		}
		writeError(w, http.StatusInternalServerError, "server_error", "Failed to revoke API key")
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"message": "API key revoked successfully",
	})
}

func newAPIKeyResponse(key *models.APIKey) *APIKeyResponse {
	return &APIKeyResponse{
		ID:        key.ID,
		KeyPrefix: key.KeyPrefix,
		Name:      key.Name,
		IsActive:  key.IsActive,
		LastUsed:  key.LastUsed,
		CreatedAt: key.CreatedAt,
	}
}
