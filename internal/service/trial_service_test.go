package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/replyguy/backend/internal/models"
	"github.com/replyguy/backend/internal/repository"
)

// fakeTrialStore mirrors the conditional-update semantics of the SQL store:
// redemption succeeds exactly once, and a consumed token reports used even
// after its expiry passes.
type fakeTrialStore struct {
	mu     sync.Mutex
	tokens map[string]*models.TrialOfferToken
}

func newFakeTrialStore() *fakeTrialStore {
	return &fakeTrialStore{tokens: make(map[string]*models.TrialOfferToken)}
}

func (s *fakeTrialStore) Create(ctx context.Context, token *models.TrialOfferToken) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *token
	s.tokens[token.Token] = &cp
	return nil
}

func (s *fakeTrialStore) Redeem(ctx context.Context, token string, now time.Time) (*models.TrialOfferToken, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	row, ok := s.tokens[token]
	if !ok {
		return nil, repository.ErrTokenNotFound
	}
	if row.UsedAt != nil {
		return nil, repository.ErrTokenUsed
	}
	if !row.ExpiresAt.After(now) {
		return nil, repository.ErrTokenExpired
	}
	used := now
	row.UsedAt = &used
	cp := *row
	return &cp, nil
}

func (s *fakeTrialStore) GetActive(ctx context.Context, userID string, now time.Time) (*models.TrialOfferToken, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var newest *models.TrialOfferToken
	for _, row := range s.tokens {
		if row.UserID != userID || row.UsedAt != nil || !row.ExpiresAt.After(now) {
			continue
		}
		if newest == nil || row.CreatedAt.After(newest.CreatedAt) {
			newest = row
		}
	}
	if newest == nil {
		return nil, repository.ErrTokenNotFound
	}
	cp := *newest
	return &cp, nil
}

func newTestTrialService(users *fakeUserStore, tokenTTL time.Duration) (*TrialService, *fakeTrialStore) {
	store := newFakeTrialStore()
	svc := NewTrialService(users, store, nil, tokenTTL, 7*24*time.Hour, "https://replyguy.app")
	return svc, store
}

func TestIssueToken(t *testing.T) {
	users := newFakeUserStore(testUser(models.TierFree))
	svc, _ := newTestTrialService(users, 48*time.Hour)

	token, err := svc.Issue(context.Background(), "u1", "")
	if err != nil {
		t.Fatalf("Issue failed: %v", err)
	}
	if token.Token == "" {
		t.Error("expected non-empty token value")
	}
	if token.Source != "email" {
		t.Errorf("expected default source email, got %q", token.Source)
	}
	if got := time.Until(token.ExpiresAt); got < 47*time.Hour || got > 48*time.Hour {
		t.Errorf("expected ~48h expiry, got %v", got)
	}
}

func TestIssueEligibility(t *testing.T) {
	paid := testUser(models.TierPro)
	paid.ID = "paid"

	stale := testUser(models.TierFree)
	stale.ID = "stale"
	stale.CreatedAt = time.Now().Add(-30 * 24 * time.Hour)

	users := newFakeUserStore(testUser(models.TierFree), paid, stale)
	svc, _ := newTestTrialService(users, 48*time.Hour)

	tests := []struct {
		name    string
		userID  string
		wantErr error
	}{
		{"free recent user is eligible", "u1", nil},
		{"paying user is not eligible", "paid", ErrNotEligible},
		{"signup window passed", "stale", ErrOfferWindowClosed},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.Issue(context.Background(), tt.userID, "email")
			if tt.wantErr == nil {
				if err != nil {
					t.Errorf("expected success, got %v", err)
				}
			} else if !errors.Is(err, tt.wantErr) {
				t.Errorf("expected %v, got %v", tt.wantErr, err)
			}
		})
	}
}

func TestRedeemExactlyOnce(t *testing.T) {
	users := newFakeUserStore(testUser(models.TierFree))
	svc, _ := newTestTrialService(users, 48*time.Hour)

	issued, err := svc.Issue(context.Background(), "u1", "email")
	if err != nil {
		t.Fatalf("Issue failed: %v", err)
	}

	redeemed, err := svc.Redeem(context.Background(), issued.Token)
	if err != nil {
		t.Fatalf("first Redeem failed: %v", err)
	}
	if redeemed.UserID != "u1" {
		t.Errorf("expected token owner u1, got %s", redeemed.UserID)
	}

	_, err = svc.Redeem(context.Background(), issued.Token)
	if !errors.Is(err, repository.ErrTokenUsed) {
		t.Fatalf("expected ErrTokenUsed on second redeem, got %v", err)
	}
}

func TestRedeemConcurrentSingleWinner(t *testing.T) {
	users := newFakeUserStore(testUser(models.TierFree))
	svc, _ := newTestTrialService(users, 48*time.Hour)

	issued, err := svc.Issue(context.Background(), "u1", "email")
	if err != nil {
		t.Fatalf("Issue failed: %v", err)
	}

	const workers = 10
	var wg sync.WaitGroup
	var mu sync.Mutex
	successes := 0
	wg.Add(workers)
	for i := 0; i < workers; i++ {
		go func() {
			defer wg.Done()
			if _, err := svc.Redeem(context.Background(), issued.Token); err == nil {
				mu.Lock()
				successes++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	if successes != 1 {
		t.Errorf("expected exactly one successful redemption, got %d", successes)
	}
}

func TestRedeemExpiredToken(t *testing.T) {
	users := newFakeUserStore(testUser(models.TierFree))
	svc, _ := newTestTrialService(users, 0)

	issued, err := svc.Issue(context.Background(), "u1", "email")
	if err != nil {
		t.Fatalf("Issue failed: %v", err)
	}

	_, err = svc.Redeem(context.Background(), issued.Token)
	if !errors.Is(err, repository.ErrTokenExpired) {
		t.Fatalf("expected ErrTokenExpired for zero-lifetime token, got %v", err)
	}
}

func TestRedeemInputValidation(t *testing.T) {
	users := newFakeUserStore(testUser(models.TierFree))
	svc, _ := newTestTrialService(users, 48*time.Hour)

	if _, err := svc.Redeem(context.Background(), "   "); !errors.Is(err, ErrMissingToken) {
		t.Errorf("expected ErrMissingToken for blank input, got %v", err)
	}
	if _, err := svc.Redeem(context.Background(), "nonexistent"); !errors.Is(err, repository.ErrTokenNotFound) {
		t.Errorf("expected ErrTokenNotFound for unknown token, got %v", err)
	}
}

func TestActiveToken(t *testing.T) {
	users := newFakeUserStore(testUser(models.TierFree))
	svc, _ := newTestTrialService(users, 48*time.Hour)

	token, err := svc.Active(context.Background(), "u1")
	if err != nil {
		t.Fatalf("Active failed: %v", err)
	}
	if token != nil {
		t.Fatalf("expected no active token, got %+v", token)
	}

	issued, err := svc.Issue(context.Background(), "u1", "email")
	if err != nil {
		t.Fatalf("Issue failed: %v", err)
	}

	token, err = svc.Active(context.Background(), "u1")
	if err != nil {
		t.Fatalf("Active failed: %v", err)
	}
	if token == nil || token.Token != issued.Token {
		t.Errorf("expected active token %q, got %+v", issued.Token, token)
	}

	if _, err := svc.Redeem(context.Background(), issued.Token); err != nil {
		t.Fatalf("Redeem failed: %v", err)
	}

	token, err = svc.Active(context.Background(), "u1")
	if err != nil {
		t.Fatalf("Active failed: %v", err)
	}
	if token != nil {
		t.Errorf("expected no active token after redemption, got %+v", token)
	}
}

func TestOfferURL(t *testing.T) {
	users := newFakeUserStore(testUser(models.TierFree))
	svc, _ := newTestTrialService(users, 48*time.Hour)

	got := svc.OfferURL("abc123")
	want := "https://replyguy.app/auth/trial-offer?token=abc123"
	if got != want {
		t.Errorf("expected %q, got %q", want, got)
	}
}
