package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/replyguy/backend/internal/database"
	"github.com/replyguy/backend/internal/models"
)

var (
	// ErrCodeTaken is returned when a generated code collides with another user's
	ErrCodeTaken = errors.New("referral code already taken")
	// ErrAlreadyReferred is returned when a user was already recorded as referred
	ErrAlreadyReferred = errors.New("user already referred")
)

// ReferralRepository handles referral code and referral edge operations
type ReferralRepository struct {
	db *database.DB
}

// NewReferralRepository creates a new referral repository
func NewReferralRepository(db *database.DB) *ReferralRepository {
	return &ReferralRepository{db: db}
}

// SetCodeIfEmpty assigns a referral code to a user only if they have none.
// The conditional update plus the unique index on referral_code make
// concurrent generation race-free: at most one assignment wins, a collision
// with another user's code surfaces as ErrCodeTaken.
func (r *ReferralRepository) SetCodeIfEmpty(ctx context.Context, userID, code string) (bool, error) {
	query := `UPDATE users SET referral_code = $2, updated_at = now() WHERE id = $1 AND referral_code IS NULL`
	rowsAffected, err := r.db.Exec(ctx, query, userID, code)
	if err != nil {
		if database.IsUniqueViolation(err) {
			return false, ErrCodeTaken
		}
		return false, fmt.Errorf("failed to set referral code: %w", err)
	}

	return rowsAffected > 0, nil
}

// CreateReferral records that a referred user signed up through a code.
// The unique constraint on referred_id guarantees at most one referral
// per new user.
func (r *ReferralRepository) CreateReferral(ctx context.Context, ref *models.Referral) error {
	query := `
		INSERT INTO referrals (id, referrer_id, referred_id, code, created_at)
		VALUES ($1, $2, $3, $4, $5)
	`
	_, err := r.db.Exec(ctx, query, ref.ID, ref.ReferrerID, ref.ReferredID, ref.Code, ref.CreatedAt)
	if err != nil {
		if database.IsUniqueViolation(err) {
			return ErrAlreadyReferred
		}
		return fmt.Errorf("failed to create referral: %w", err)
	}

	return nil
}

// CountReferred returns how many users signed up through the given referrer.
func (r *ReferralRepository) CountReferred(ctx context.Context, referrerID string) (int, error) {
	var count int
	err := r.db.QueryRow(ctx, `SELECT COUNT(*) FROM referrals WHERE referrer_id = $1`, referrerID).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count referrals: %w", err)
	}
	return count, nil
}
