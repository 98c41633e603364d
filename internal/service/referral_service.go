package service

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/replyguy/backend/internal/metrics"
	"github.com/replyguy/backend/internal/models"
	"github.com/replyguy/backend/internal/repository"
	"github.com/replyguy/backend/internal/webhook"
)

var (
	// ErrSelfReferral is returned when a user redeems their own code
	ErrSelfReferral = errors.New("cannot redeem own referral code")
	// ErrCodeGeneration is returned when no unique code could be generated
	ErrCodeGeneration = errors.New("failed to generate unique referral code")
)

const (
	codeLength      = 8
	maxCodeAttempts = 5
)

// codeCharset excludes easily confused characters (0/O, 1/I/L)
const codeCharset = "ABCDEFGHJKMNPQRSTUVWXYZ23456789"

// ReferralStore persists referral codes and referral edges
type ReferralStore interface {
	SetCodeIfEmpty(ctx context.Context, userID, code string) (bool, error)
	CreateReferral(ctx context.Context, ref *models.Referral) error
	CountReferred(ctx context.Context, referrerID string) (int, error)
}

// ReferralUserStore reads users by id and by code
type ReferralUserStore interface {
	GetByID(ctx context.Context, id string) (*models.User, error)
	GetByReferralCode(ctx context.Context, code string) (*models.User, error)
}

// CodeResult is the outcome of GenerateOrGet.
type CodeResult struct {
	Code       string `json:"referral_code"`
	URL        string `json:"referral_url"`
	IsFreeTier bool   `json:"is_free_tier"`
	IsPaidTier bool   `json:"is_paid_tier"`
}

// ValidationResult is the outcome of validating a referral code. Unknown
// codes produce Valid=false, never an error: validation runs on
// attacker-controlled input during signup.
type ValidationResult struct {
	Valid      bool   `json:"valid"`
	ReferrerID string `json:"referrer_id,omitempty"`
	IsFreeTier bool   `json:"is_free_tier,omitempty"`
	IsPaidTier bool   `json:"is_paid_tier,omitempty"`
	Message    string `json:"message"`
}

// ReferralService issues and validates referral codes.
type ReferralService struct {
	users    ReferralUserStore
	repo     ReferralStore
	notifier Notifier
	appURL   string
}

// NewReferralService creates a new referral service
func NewReferralService(users ReferralUserStore, repo ReferralStore, notifier Notifier, appURL string) *ReferralService {
	return &ReferralService{
		users:    users,
		repo:     repo,
		notifier: notifier,
		appURL:   appURL,
	}
}

// GenerateOrGet returns the user's referral code, generating one on first
// request. Generation is idempotent under concurrency: the conditional
// assignment in storage picks a single winner, losers re-read the winner's
// code.
func (s *ReferralService) GenerateOrGet(ctx context.Context, userID string) (*CodeResult, error) {
	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		return nil, err
	}

	code := user.ReferralCode
	if code == "" {
		code, err = s.assignCode(ctx, userID)
		if err != nil {
			return nil, err
		}
	}

	return &CodeResult{
		Code:       code,
		URL:        s.referralURL(code),
		IsFreeTier: !models.IsPaidTier(user.Tier),
		IsPaidTier: models.IsPaidTier(user.Tier),
	}, nil
}

// Validate checks a referral code and reports the referrer's identity and
// tier standing. Codes are normalized to uppercase before lookup.
func (s *ReferralService) Validate(ctx context.Context, code string) (*ValidationResult, error) {
	normalized := NormalizeCode(code)
	if normalized == "" {
		return &ValidationResult{Valid: false, Message: "Invalid referral code"}, nil
	}

	referrer, err := s.users.GetByReferralCode(ctx, normalized)
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			return &ValidationResult{Valid: false, Message: "Invalid referral code"}, nil
		}
		return nil, err
	}

	return &ValidationResult{
		Valid:      true,
		ReferrerID: referrer.ID,
		IsFreeTier: !models.IsPaidTier(referrer.Tier),
		IsPaidTier: models.IsPaidTier(referrer.Tier),
		Message:    "Valid referral code",
	}, nil
}

// Redeem records that newUserID signed up through the given code.
func (s *ReferralService) Redeem(ctx context.Context, code, newUserID string) error {
	normalized := NormalizeCode(code)
	if normalized == "" {
		return repository.ErrUserNotFound
	}

	referrer, err := s.users.GetByReferralCode(ctx, normalized)
	if err != nil {
		return err
	}
	if referrer.ID == newUserID {
		return ErrSelfReferral
	}

	ref := &models.Referral{
		ID:         uuid.New().String(),
		ReferrerID: referrer.ID,
		ReferredID: newUserID,
		Code:       normalized,
		CreatedAt:  time.Now(),
	}
	if err := s.repo.CreateReferral(ctx, ref); err != nil {
		return err
	}

	s.notifyEvent(webhook.EventReferralRedeemed, map[string]interface{}{
		"referrer_id": referrer.ID,
		"referred_id": newUserID,
		"code":        normalized,
	})

	return nil
}

// Stats summarizes a user's referral activity.
func (s *ReferralService) Stats(ctx context.Context, userID string) (*models.ReferralStats, error) {
	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		return nil, err
	}

	count, err := s.repo.CountReferred(ctx, userID)
	if err != nil {
		return nil, err
	}

	stats := &models.ReferralStats{
		ReferralCode:  user.ReferralCode,
		TotalReferred: count,
		IsFreeTier:    !models.IsPaidTier(user.Tier),
		IsPaidTier:    models.IsPaidTier(user.Tier),
	}
	if user.ReferralCode != "" {
		stats.ReferralURL = s.referralURL(user.ReferralCode)
	}

	return stats, nil
}

// NormalizeCode uppercases and trims a referral code for comparison.
func NormalizeCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

func (s *ReferralService) assignCode(ctx context.Context, userID string) (string, error) {
	for attempt := 0; attempt < maxCodeAttempts; attempt++ {
		candidate, err := newCode()
		if err != nil {
			return "", err
		}

		set, err := s.repo.SetCodeIfEmpty(ctx, userID, candidate)
		if err != nil {
			if errors.Is(err, repository.ErrCodeTaken) {
				continue // collision with another user's code
			}
			return "", err
		}
		if set {
			metrics.ReferralCodes.Inc()
			s.notifyEvent(webhook.EventReferralCodeCreated, map[string]interface{}{
				"user_id": userID,
				"code":    candidate,
			})
			return candidate, nil
		}

		// A concurrent request won the assignment; use its code.
		user, err := s.users.GetByID(ctx, userID)
		if err != nil {
			return "", err
		}
		if user.ReferralCode != "" {
			return user.ReferralCode, nil
		}
	}

	return "", ErrCodeGeneration
}

func (s *ReferralService) referralURL(code string) string {
	return fmt.Sprintf("%s/auth/signup?ref=%s", strings.TrimRight(s.appURL, "/"), code)
}

func (s *ReferralService) notifyEvent(event string, data map[string]interface{}) {
	if s.notifier != nil {
		s.notifier.Notify(event, data)
	}
}

func newCode() (string, error) {
	buf := make([]byte, codeLength)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("failed to generate referral code: %w", err)
	}
	for i, b := range buf {
		buf[i] = codeCharset[int(b)%len(codeCharset)]
	}
	return string(buf), nil
}
