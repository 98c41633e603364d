package service

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/replyguy/backend/internal/models"
	"github.com/replyguy/backend/internal/repository"
)

// fakeReferralStore mirrors the conditional-assignment semantics of the SQL
// store: a code is only set when the column is still empty, and codes are
// globally unique.
type fakeReferralStore struct {
	mu        sync.Mutex
	users     *fakeUserStore
	referrals map[string]*models.Referral // keyed by referred user
}

func newFakeReferralStore(users *fakeUserStore) *fakeReferralStore {
	return &fakeReferralStore{
		users:     users,
		referrals: make(map[string]*models.Referral),
	}
}

func (s *fakeReferralStore) SetCodeIfEmpty(ctx context.Context, userID, code string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.users.mu.Lock()
	defer s.users.mu.Unlock()

	for id, u := range s.users.users {
		if id != userID && u.ReferralCode == code {
			return false, repository.ErrCodeTaken
		}
	}

	u, ok := s.users.users[userID]
	if !ok {
		return false, repository.ErrUserNotFound
	}
	if u.ReferralCode != "" {
		return false, nil
	}
	u.ReferralCode = code
	return true, nil
}

func (s *fakeReferralStore) CreateReferral(ctx context.Context, ref *models.Referral) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.referrals[ref.ReferredID]; exists {
		return repository.ErrAlreadyReferred
	}
	s.referrals[ref.ReferredID] = ref
	return nil
}

func (s *fakeReferralStore) CountReferred(ctx context.Context, referrerID string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	count := 0
	for _, ref := range s.referrals {
		if ref.ReferrerID == referrerID {
			count++
		}
	}
	return count, nil
}

func newTestReferralService(users *fakeUserStore) (*ReferralService, *fakeReferralStore) {
	store := newFakeReferralStore(users)
	return NewReferralService(users, store, nil, "https://replyguy.app"), store
}

func TestGenerateOrGetIsIdempotent(t *testing.T) {
	users := newFakeUserStore(testUser(models.TierFree))
	svc, _ := newTestReferralService(users)

	first, err := svc.GenerateOrGet(context.Background(), "u1")
	if err != nil {
		t.Fatalf("GenerateOrGet failed: %v", err)
	}
	if len(first.Code) != 8 {
		t.Errorf("expected 8 character code, got %q", first.Code)
	}
	if first.Code != strings.ToUpper(first.Code) {
		t.Errorf("expected uppercase code, got %q", first.Code)
	}
	if !strings.HasSuffix(first.URL, "/auth/signup?ref="+first.Code) {
		t.Errorf("unexpected referral URL %q", first.URL)
	}

	second, err := svc.GenerateOrGet(context.Background(), "u1")
	if err != nil {
		t.Fatalf("second GenerateOrGet failed: %v", err)
	}
	if second.Code != first.Code {
		t.Errorf("expected stable code, got %q then %q", first.Code, second.Code)
	}
}

func TestGenerateOrGetConcurrent(t *testing.T) {
	users := newFakeUserStore(testUser(models.TierFree))
	svc, _ := newTestReferralService(users)

	const workers = 10
	codes := make([]string, workers)
	var wg sync.WaitGroup
	wg.Add(workers)
	for i := 0; i < workers; i++ {
		go func(i int) {
			defer wg.Done()
			result, err := svc.GenerateOrGet(context.Background(), "u1")
			if err != nil {
				t.Errorf("GenerateOrGet failed: %v", err)
				return
			}
			codes[i] = result.Code
		}(i)
	}
	wg.Wait()

	for i := 1; i < workers; i++ {
		if codes[i] != codes[0] {
			t.Fatalf("concurrent callers observed different codes: %q vs %q", codes[0], codes[i])
		}
	}
}

func TestValidateCode(t *testing.T) {
	referrer := testUser(models.TierPro)
	referrer.ReferralCode = "ABCD2345"
	users := newFakeUserStore(referrer)
	svc, _ := newTestReferralService(users)

	tests := []struct {
		name      string
		code      string
		wantValid bool
	}{
		{"exact match", "ABCD2345", true},
		{"lowercase input", "abcd2345", true},
		{"padded input", "  ABCD2345 ", true},
		{"unknown code", "ZZZZ9999", false},
		{"empty code", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, err := svc.Validate(context.Background(), tt.code)
			if err != nil {
				t.Fatalf("Validate returned error: %v", err)
			}
			if result.Valid != tt.wantValid {
				t.Errorf("expected valid=%v, got %v", tt.wantValid, result.Valid)
			}
			if tt.wantValid && result.ReferrerID != referrer.ID {
				t.Errorf("expected referrer %s, got %s", referrer.ID, result.ReferrerID)
			}
		})
	}
}

func TestRedeemRejectsSelfReferral(t *testing.T) {
	referrer := testUser(models.TierFree)
	referrer.ReferralCode = "ABCD2345"
	users := newFakeUserStore(referrer)
	svc, _ := newTestReferralService(users)

	err := svc.Redeem(context.Background(), "ABCD2345", referrer.ID)
	if !errors.Is(err, ErrSelfReferral) {
		t.Fatalf("expected ErrSelfReferral, got %v", err)
	}
}

func TestRedeemRecordsReferralOnce(t *testing.T) {
	referrer := testUser(models.TierFree)
	referrer.ReferralCode = "ABCD2345"
	users := newFakeUserStore(referrer)
	svc, store := newTestReferralService(users)

	if err := svc.Redeem(context.Background(), "abcd2345", "u2"); err != nil {
		t.Fatalf("Redeem failed: %v", err)
	}

	err := svc.Redeem(context.Background(), "ABCD2345", "u2")
	if !errors.Is(err, repository.ErrAlreadyReferred) {
		t.Fatalf("expected ErrAlreadyReferred on second redeem, got %v", err)
	}

	if ref := store.referrals["u2"]; ref == nil || ref.ReferrerID != referrer.ID {
		t.Errorf("referral edge not recorded correctly: %+v", store.referrals["u2"])
	}
}

func TestStats(t *testing.T) {
	referrer := testUser(models.TierFree)
	referrer.ReferralCode = "ABCD2345"
	users := newFakeUserStore(referrer)
	svc, _ := newTestReferralService(users)

	for _, referred := range []string{"u2", "u3", "u4"} {
		if err := svc.Redeem(context.Background(), "ABCD2345", referred); err != nil {
			t.Fatalf("Redeem for %s failed: %v", referred, err)
		}
	}

	stats, err := svc.Stats(context.Background(), referrer.ID)
	if err != nil {
		t.Fatalf("Stats failed: %v", err)
	}
	if stats.TotalReferred != 3 {
		t.Errorf("expected 3 referred users, got %d", stats.TotalReferred)
	}
	if !stats.IsFreeTier || stats.IsPaidTier {
		t.Errorf("expected free tier stats, got %+v", stats)
	}
}
