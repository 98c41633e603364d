package service

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/replyguy/backend/internal/metrics"
	"github.com/replyguy/backend/internal/models"
	"github.com/replyguy/backend/internal/repository"
	"github.com/replyguy/backend/internal/webhook"
)

var (
	// ErrNotEligible is returned when a paying user requests a trial token
	ErrNotEligible = errors.New("user is not eligible for a trial offer")
	// ErrOfferWindowClosed is returned when the signup window for trial offers has passed
	ErrOfferWindowClosed = errors.New("trial offer period has expired")
	// ErrMissingToken is returned for empty token input
	ErrMissingToken = errors.New("missing token")
)

// trialTokenBytes is the random length of a trial token before hex encoding
const trialTokenBytes = 24

// TrialStore persists trial offer tokens
type TrialStore interface {
	Create(ctx context.Context, token *models.TrialOfferToken) error
	Redeem(ctx context.Context, token string, now time.Time) (*models.TrialOfferToken, error)
	GetActive(ctx context.Context, userID string, now time.Time) (*models.TrialOfferToken, error)
}

// TrialService issues and redeems single-use trial offer tokens.
type TrialService struct {
	users       UserGetter
	tokens      TrialStore
	notifier    Notifier
	tokenTTL    time.Duration
	offerWindow time.Duration
	appURL      string
	now         func() time.Time
}

// NewTrialService creates a new trial service
func NewTrialService(users UserGetter, tokens TrialStore, notifier Notifier, tokenTTL, offerWindow time.Duration, appURL string) *TrialService {
	return &TrialService{
		users:       users,
		tokens:      tokens,
		notifier:    notifier,
		tokenTTL:    tokenTTL,
		offerWindow: offerWindow,
		appURL:      appURL,
		now:         time.Now,
	}
}

// Issue creates a new trial token for a user. Only free-tier users within
// the offer window after signup are eligible. Several tokens may coexist;
// redemption consumes exactly one.
func (s *TrialService) Issue(ctx context.Context, userID, source string) (*models.TrialOfferToken, error) {
	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		return nil, err
	}

	if models.IsPaidTier(user.Tier) {
		return nil, ErrNotEligible
	}

	now := s.now()
	if s.offerWindow > 0 && now.Sub(user.CreatedAt) > s.offerWindow {
		return nil, ErrOfferWindowClosed
	}

	if source == "" {
		source = "email"
	}

	raw, err := newTrialToken()
	if err != nil {
		return nil, err
	}

	token := &models.TrialOfferToken{
		UserID:    userID,
		Token:     raw,
		Source:    source,
		ExpiresAt: now.Add(s.tokenTTL),
		CreatedAt: now,
	}
	if err := s.tokens.Create(ctx, token); err != nil {
		return nil, err
	}

	s.notifyEvent(webhook.EventTrialIssued, map[string]interface{}{
		"user_id":    userID,
		"source":     source,
		"expires_at": token.ExpiresAt.UTC().Format(time.RFC3339),
	})

	return token, nil
}

// Redeem atomically consumes a token. A token redeems successfully exactly
// once; repeat attempts fail with the used reason, expired unredeemed
// tokens with the expired reason.
func (s *TrialService) Redeem(ctx context.Context, token string) (*models.TrialOfferToken, error) {
	if strings.TrimSpace(token) == "" {
		return nil, ErrMissingToken
	}

	redeemed, err := s.tokens.Redeem(ctx, token, s.now())
	if err != nil {
		switch {
		case errors.Is(err, repository.ErrTokenUsed):
			metrics.TokenRedemptions.WithLabelValues("used").Inc()
		case errors.Is(err, repository.ErrTokenExpired):
			metrics.TokenRedemptions.WithLabelValues("expired").Inc()
		case errors.Is(err, repository.ErrTokenNotFound):
			metrics.TokenRedemptions.WithLabelValues("unknown").Inc()
		}
		return nil, err
	}

	metrics.TokenRedemptions.WithLabelValues("ok").Inc()
	s.notifyEvent(webhook.EventTrialRedeemed, map[string]interface{}{
		"user_id": redeemed.UserID,
		"source":  redeemed.Source,
	})

	return redeemed, nil
}

// Active returns the user's currently redeemable token, or nil when none
// exists. Absence is a normal condition, not an error.
func (s *TrialService) Active(ctx context.Context, userID string) (*models.TrialOfferToken, error) {
	token, err := s.tokens.GetActive(ctx, userID, s.now())
	if err != nil {
		if errors.Is(err, repository.ErrTokenNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return token, nil
}

// OfferURL builds the link a user follows to accept the trial offer.
func (s *TrialService) OfferURL(token string) string {
	return fmt.Sprintf("%s/auth/trial-offer?token=%s", strings.TrimRight(s.appURL, "/"), token)
}

func (s *TrialService) notifyEvent(event string, data map[string]interface{}) {
	if s.notifier != nil {
		s.notifier.Notify(event, data)
	}
}

func newTrialToken() (string, error) {
	buf := make([]byte, trialTokenBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("failed to generate trial token: %w", err)
	}
	return hex.EncodeToString(buf), nil
}
