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

type fakeUserStore struct {
	mu    sync.Mutex
	users map[string]*models.User
	err   error
}

func newFakeUserStore(users ...*models.User) *fakeUserStore {
	s := &fakeUserStore{users: make(map[string]*models.User)}
	for _, u := range users {
		s.users[u.ID] = u
	}
	return s
}

func (s *fakeUserStore) GetByID(ctx context.Context, id string) (*models.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return nil, s.err
	}
	u, ok := s.users[id]
	if !ok {
		return nil, errors.New("user not found")
	}
	cp := *u
	return &cp, nil
}

func (s *fakeUserStore) GetByReferralCode(ctx context.Context, code string) (*models.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, u := range s.users {
		if u.ReferralCode == code {
			cp := *u
			return &cp, nil
		}
	}
	return nil, repository.ErrUserNotFound
}

type usageKey struct {
	userID string
	date   string
}

// fakeUsageStore mimics the atomic upsert semantics of the SQL ledger.
type fakeUsageStore struct {
	mu      sync.Mutex
	rows    map[usageKey]*models.DailyUsage
	incErrs []error // consumed one per Increment call
	sumErr  error
}

func newFakeUsageStore() *fakeUsageStore {
	return &fakeUsageStore{rows: make(map[usageKey]*models.DailyUsage)}
}

func (s *fakeUsageStore) Increment(ctx context.Context, userID, date, usageType string, count int) (*models.DailyUsage, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.incErrs) > 0 {
		err := s.incErrs[0]
		s.incErrs = s.incErrs[1:]
		if err != nil {
			return nil, err
		}
	}
	key := usageKey{userID, date}
	row, ok := s.rows[key]
	if !ok {
		row = &models.DailyUsage{UserID: userID, Date: date}
		s.rows[key] = row
	}
	switch usageType {
	case models.UsageTypeReply:
		row.Replies += count
	case models.UsageTypeSuggestion:
		row.Suggestions += count
	case models.UsageTypeMeme:
		row.Memes += count
	}
	cp := *row
	return &cp, nil
}

func (s *fakeUsageStore) GetDaily(ctx context.Context, userID, date string) (*models.DailyUsage, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if row, ok := s.rows[usageKey{userID, date}]; ok {
		cp := *row
		return &cp, nil
	}
	return &models.DailyUsage{UserID: userID, Date: date}, nil
}

func (s *fakeUsageStore) SumRange(ctx context.Context, userID, from, to string) (*models.UsageTotals, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.sumErr != nil {
		return nil, s.sumErr
	}
	totals := &models.UsageTotals{}
	for key, row := range s.rows {
		if key.userID != userID || key.date < from || key.date >= to {
			continue
		}
		totals.Replies += row.Replies
		totals.Suggestions += row.Suggestions
		totals.Memes += row.Memes
	}
	return totals, nil
}

func (s *fakeUsageStore) ListRecent(ctx context.Context, userID string, limit int) ([]models.DailyUsage, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.DailyUsage
	for key, row := range s.rows {
		if key.userID == userID && len(out) < limit {
			out = append(out, *row)
		}
	}
	return out, nil
}

type fakeNotifier struct {
	mu     sync.Mutex
	events []string
}

func (n *fakeNotifier) Notify(event string, data map[string]interface{}) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.events = append(n.events, event)
}

func (n *fakeNotifier) has(event string) bool {
	n.mu.Lock()
	defer n.mu.Unlock()
	for _, e := range n.events {
		if e == event {
			return true
		}
	}
	return false
}

func testUser(tier string) *models.User {
	return &models.User{
		ID:               "u1",
		Email:            "u1@example.com",
		Tier:             tier,
		Timezone:         "UTC",
		DailyGoal:        10,
		BillingAnchorDay: 1,
		CreatedAt:        time.Now().Add(-time.Hour),
	}
}

func newTestUsageService(users *fakeUserStore, usage *fakeUsageStore) *UsageService {
	svc := NewUsageService(users, usage, nil, nil, 0)
	svc.now = func() time.Time { return time.Date(2025, 7, 15, 12, 0, 0, 0, time.UTC) }
	return svc
}

func TestTrackAccumulates(t *testing.T) {
	users := newFakeUserStore(testUser(models.TierPro))
	usage := newFakeUsageStore()
	svc := newTestUsageService(users, usage)

	var last *models.DailyUsage
	for i := 0; i < 5; i++ {
		var err error
		last, err = svc.Track(context.Background(), "u1", models.UsageTypeReply, 2)
		if err != nil {
			t.Fatalf("Track failed on call %d: %v", i, err)
		}
	}

	if last.Replies != 10 {
		t.Errorf("expected 10 replies after 5 increments of 2, got %d", last.Replies)
	}
	if last.Date != "2025-07-15" {
		t.Errorf("expected date 2025-07-15, got %s", last.Date)
	}
}

func TestTrackValidation(t *testing.T) {
	users := newFakeUserStore(testUser(models.TierPro))
	svc := newTestUsageService(users, newFakeUsageStore())

	tests := []struct {
		name      string
		usageType string
		count     int
		wantErr   error
	}{
		{"unknown type", "retweet", 1, ErrInvalidUsageType},
		{"zero count", models.UsageTypeReply, 0, ErrInvalidCount},
		{"negative count", models.UsageTypeReply, -3, ErrInvalidCount},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.Track(context.Background(), "u1", tt.usageType, tt.count)
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("expected %v, got %v", tt.wantErr, err)
			}
		})
	}
}

func TestTrackEnforcesPeriodLimit(t *testing.T) {
	users := newFakeUserStore(testUser(models.TierFree))
	usage := newFakeUsageStore()
	notifier := &fakeNotifier{}
	svc := newTestUsageService(users, usage)
	svc.notifier = notifier

	// Free tier allows 10 replies per billing period
	for i := 0; i < 10; i++ {
		if _, err := svc.Track(context.Background(), "u1", models.UsageTypeReply, 1); err != nil {
			t.Fatalf("Track %d failed: %v", i, err)
		}
	}

	_, err := svc.Track(context.Background(), "u1", models.UsageTypeReply, 1)
	if !errors.Is(err, ErrLimitExceeded) {
		t.Fatalf("expected ErrLimitExceeded, got %v", err)
	}
	if !notifier.has("usage.limit_reached") {
		t.Error("expected usage.limit_reached event")
	}
}

func TestTrackFailsClosedOnUnreadableUsage(t *testing.T) {
	users := newFakeUserStore(testUser(models.TierFree))
	usage := newFakeUsageStore()
	usage.sumErr = errors.New("storage down")
	svc := newTestUsageService(users, usage)

	_, err := svc.Track(context.Background(), "u1", models.UsageTypeReply, 1)
	if err == nil {
		t.Fatal("expected error when period totals are unreadable")
	}
	if len(usage.rows) != 0 {
		t.Error("no usage should be recorded when the limit check cannot run")
	}
}

func TestTrackUnlimitedTierSkipsLimitCheck(t *testing.T) {
	users := newFakeUserStore(testUser(models.TierBusiness))
	usage := newFakeUsageStore()
	usage.sumErr = errors.New("storage down")
	svc := newTestUsageService(users, usage)

	// Business tier is unlimited, so the unreadable totals never matter
	if _, err := svc.Track(context.Background(), "u1", models.UsageTypeReply, 1); err != nil {
		t.Fatalf("Track failed: %v", err)
	}
}

func TestTrackRetriesTransientErrors(t *testing.T) {
	users := newFakeUserStore(testUser(models.TierPro))
	usage := newFakeUsageStore()
	usage.incErrs = []error{
		errors.New("connection reset by peer"),
		errors.New("connection reset by peer"),
		nil,
	}
	svc := newTestUsageService(users, usage)

	record, err := svc.Track(context.Background(), "u1", models.UsageTypeReply, 1)
	if err != nil {
		t.Fatalf("expected retries to succeed, got %v", err)
	}
	if record.Replies != 1 {
		t.Errorf("expected 1 reply, got %d", record.Replies)
	}
}

func TestTrackDoesNotRetryLogicalErrors(t *testing.T) {
	users := newFakeUserStore(testUser(models.TierPro))
	usage := newFakeUsageStore()
	logical := errors.New("unknown usage type column")
	usage.incErrs = []error{logical, nil}
	svc := newTestUsageService(users, usage)

	_, err := svc.Track(context.Background(), "u1", models.UsageTypeReply, 1)
	if !errors.Is(err, logical) {
		t.Fatalf("expected logical error to surface immediately, got %v", err)
	}
}

func TestDailyDefaultsToLocalToday(t *testing.T) {
	user := testUser(models.TierPro)
	user.Timezone = "America/New_York"
	users := newFakeUserStore(user)
	usage := newFakeUsageStore()
	svc := newTestUsageService(users, usage)
	// 03:30 UTC is still the previous day in New York
	svc.now = func() time.Time { return time.Date(2025, 7, 9, 3, 30, 0, 0, time.UTC) }

	daily, err := svc.Daily(context.Background(), "u1", "")
	if err != nil {
		t.Fatalf("Daily failed: %v", err)
	}
	if daily.Date != "2025-07-08" {
		t.Errorf("expected local date 2025-07-08, got %s", daily.Date)
	}
}

func TestDailyRejectsMalformedDate(t *testing.T) {
	users := newFakeUserStore(testUser(models.TierPro))
	svc := newTestUsageService(users, newFakeUsageStore())

	for _, date := range []string{"07/15/2025", "2025-13-01", "yesterday"} {
		if _, err := svc.Daily(context.Background(), "u1", date); !errors.Is(err, ErrInvalidDate) {
			t.Errorf("date %q: expected ErrInvalidDate, got %v", date, err)
		}
	}
}

func TestSummaryCombinesDailyAndPeriod(t *testing.T) {
	users := newFakeUserStore(testUser(models.TierFree))
	usage := newFakeUsageStore()
	svc := newTestUsageService(users, usage)

	if _, err := svc.Track(context.Background(), "u1", models.UsageTypeReply, 3); err != nil {
		t.Fatalf("Track failed: %v", err)
	}
	if _, err := svc.Track(context.Background(), "u1", models.UsageTypeMeme, 1); err != nil {
		t.Fatalf("Track failed: %v", err)
	}

	summary, err := svc.Summary(context.Background(), "u1")
	if err != nil {
		t.Fatalf("Summary failed: %v", err)
	}

	if summary.Daily.Replies != 3 || summary.Daily.Memes != 1 {
		t.Errorf("unexpected daily counts: %+v", summary.Daily)
	}
	if summary.Period.Totals.Replies != 3 {
		t.Errorf("expected period total of 3 replies, got %d", summary.Period.Totals.Replies)
	}
	if summary.Period.PeriodStart != "2025-07-01" {
		t.Errorf("expected period start 2025-07-01, got %s", summary.Period.PeriodStart)
	}
	if summary.Limits.Replies != 10 {
		t.Errorf("expected free tier reply limit 10, got %d", summary.Limits.Replies)
	}
}

func TestConcurrentTracking(t *testing.T) {
	users := newFakeUserStore(testUser(models.TierBusiness))
	usage := newFakeUsageStore()
	svc := newTestUsageService(users, usage)

	const workers = 20
	var wg sync.WaitGroup
	wg.Add(workers)
	for i := 0; i < workers; i++ {
		go func() {
			defer wg.Done()
			if _, err := svc.Track(context.Background(), "u1", models.UsageTypeReply, 1); err != nil {
				t.Errorf("Track failed: %v", err)
			}
		}()
	}
	wg.Wait()

	daily, err := svc.Daily(context.Background(), "u1", "2025-07-15")
	if err != nil {
		t.Fatalf("Daily failed: %v", err)
	}
	if daily.Replies != workers {
		t.Errorf("expected %d replies, got %d", workers, daily.Replies)
	}
}
