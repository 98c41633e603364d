package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/replyguy/backend/internal/bucket"
	"github.com/replyguy/backend/internal/database"
	"github.com/replyguy/backend/internal/models"
)

var (
	// ErrUserNotFound is returned when a user is not found
	ErrUserNotFound = errors.New("user not found")
	// ErrUserExists is returned when trying to create a user that already exists
	ErrUserExists = errors.New("user already exists")
)

const userColumns = `id, email, password_hash, tier, timezone, daily_goal, billing_anchor_day, COALESCE(referral_code, ''), created_at, updated_at`

// UserRepository handles user database operations
type UserRepository struct {
	db *database.DB
}

// NewUserRepository creates a new user repository
func NewUserRepository(db *database.DB) *UserRepository {
	return &UserRepository{db: db}
}

// Create creates a new user. The billing anchor defaults to the signup day,
// clamped so every month contains it.
func (r *UserRepository) Create(ctx context.Context, user *models.User) error {
	if user.ID == "" {
		user.ID = uuid.New().String()
	}
	if user.Tier == "" {
		user.Tier = models.TierFree
	}
	if user.DailyGoal == 0 {
		user.DailyGoal = 10
	}
	now := time.Now()
	if user.BillingAnchorDay == 0 {
		user.BillingAnchorDay = bucket.ClampAnchorDay(now.UTC().Day())
	}
	user.CreatedAt = now
	user.UpdatedAt = now

	query := `
		INSERT INTO users (id, email, password_hash, tier, timezone, daily_goal, billing_anchor_day, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`
	_, err := r.db.Exec(ctx, query,
		user.ID, user.Email, user.PasswordHash, user.Tier, user.Timezone,
		user.DailyGoal, user.BillingAnchorDay, user.CreatedAt, user.UpdatedAt)
	if err != nil {
		if database.IsUniqueViolation(err) {
			return ErrUserExists
		}
		return fmt.Errorf("failed to create user: %w", err)
	}

	return nil
}

// GetByID retrieves a user by ID
func (r *UserRepository) GetByID(ctx context.Context, id string) (*models.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE id = $1`
	return r.scanOne(r.db.QueryRow(ctx, query, id), "id")
}

// GetByEmail retrieves a user by email
func (r *UserRepository) GetByEmail(ctx context.Context, email string) (*models.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE email = $1`
	return r.scanOne(r.db.QueryRow(ctx, query, email), "email")
}

// GetByAPIKey retrieves a user by API key hash
func (r *UserRepository) GetByAPIKey(ctx context.Context, keyHash string) (*models.User, error) {
	query := `
		SELECT u.id, u.email, u.password_hash, u.tier, u.timezone, u.daily_goal,
		       u.billing_anchor_day, COALESCE(u.referral_code, ''), u.created_at, u.updated_at
		FROM users u
		JOIN api_keys ak ON u.id = ak.user_id
		WHERE ak.key_hash = $1 AND ak.is_active = true
	`
	return r.scanOne(r.db.QueryRow(ctx, query, keyHash), "api key")
}

// GetByReferralCode retrieves a user owning the given (normalized) code.
func (r *UserRepository) GetByReferralCode(ctx context.Context, code string) (*models.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE referral_code = $1`
	return r.scanOne(r.db.QueryRow(ctx, query, code), "referral code")
}

// UpdateTier updates a user's subscription tier
func (r *UserRepository) UpdateTier(ctx context.Context, userID string, tier string) error {
	if !models.IsValidTier(tier) {
		return fmt.Errorf("invalid tier: %s", tier)
	}

	query := `UPDATE users SET tier = $2, updated_at = $3 WHERE id = $1`
	rowsAffected, err := r.db.Exec(ctx, query, userID, tier, time.Now())
	if err != nil {
		return fmt.Errorf("failed to update tier: %w", err)
	}

	if rowsAffected == 0 {
		return ErrUserNotFound
	}

	return nil
}

// UpdateSettings updates the user-editable settings.
func (r *UserRepository) UpdateSettings(ctx context.Context, userID, timezone string, dailyGoal int) error {
	query := `UPDATE users SET timezone = $2, daily_goal = $3, updated_at = $4 WHERE id = $1`
	rowsAffected, err := r.db.Exec(ctx, query, userID, timezone, dailyGoal, time.Now())
	if err != nil {
		return fmt.Errorf("failed to update settings: %w", err)
	}

	if rowsAffected == 0 {
		return ErrUserNotFound
	}

	return nil
}

func (r *UserRepository) scanOne(row pgx.Row, by string) (*models.User, error) {
	var user models.User
	err := row.Scan(
		&user.ID, &user.Email, &user.PasswordHash, &user.Tier, &user.Timezone,
		&user.DailyGoal, &user.BillingAnchorDay, &user.ReferralCode,
		&user.CreatedAt, &user.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("failed to get user by %s: %w", by, err)
	}
	return &user, nil
}
