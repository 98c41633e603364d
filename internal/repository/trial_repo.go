package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/replyguy/backend/internal/database"
	"github.com/replyguy/backend/internal/models"
)

var (
	// ErrTokenNotFound is returned when a trial token does not exist
	ErrTokenNotFound = errors.New("trial token not found")
	// ErrTokenUsed is returned when a trial token was already redeemed
	ErrTokenUsed = errors.New("trial token already used")
	// ErrTokenExpired is returned when a trial token has expired unredeemed
	ErrTokenExpired = errors.New("trial token expired")
)

// TrialTokenRepository handles trial offer token operations
type TrialTokenRepository struct {
	db *database.DB
}

// NewTrialTokenRepository creates a new trial token repository
func NewTrialTokenRepository(db *database.DB) *TrialTokenRepository {
	return &TrialTokenRepository{db: db}
}

// Create persists a new trial token
func (r *TrialTokenRepository) Create(ctx context.Context, token *models.TrialOfferToken) error {
	if token.ID == "" {
		token.ID = uuid.New().String()
	}
	if token.CreatedAt.IsZero() {
		token.CreatedAt = time.Now()
	}

	query := `
		INSERT INTO trial_offer_tokens (id, user_id, token, source, expires_at, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`
	_, err := r.db.Exec(ctx, query,
		token.ID, token.UserID, token.Token, token.Source, token.ExpiresAt, token.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to create trial token: %w", err)
	}

	return nil
}

// Redeem marks a token used iff it is unused and unexpired. The check and
// the update are one statement, so two concurrent redemptions of the same
// token cannot both succeed. On failure the reason is distinguished:
// already used wins over expired, unknown tokens are ErrTokenNotFound.
func (r *TrialTokenRepository) Redeem(ctx context.Context, token string, now time.Time) (*models.TrialOfferToken, error) {
	query := `
		UPDATE trial_offer_tokens
		SET used_at = $2
		WHERE token = $1 AND used_at IS NULL AND expires_at > $2
		RETURNING id, user_id, token, source, expires_at, used_at, created_at
	`
	redeemed, err := scanTrialToken(r.db.QueryRow(ctx, query, token, now))
	if err == nil {
		return redeemed, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("failed to redeem trial token: %w", err)
	}

	// Nothing was updated; look the token up to say why.
	existing, err := r.getByToken(ctx, token)
	if err != nil {
		return nil, err
	}
	if existing.IsUsed() {
		return nil, ErrTokenUsed
	}
	return nil, ErrTokenExpired
}

// GetActive returns the most recently created unexpired, unused token for a
// user, or ErrTokenNotFound when none exists.
func (r *TrialTokenRepository) GetActive(ctx context.Context, userID string, now time.Time) (*models.TrialOfferToken, error) {
	query := `
		SELECT id, user_id, token, source, expires_at, used_at, created_at
		FROM trial_offer_tokens
		WHERE user_id = $1 AND used_at IS NULL AND expires_at > $2
		ORDER BY created_at DESC
		LIMIT 1
	`
	token, err := scanTrialToken(r.db.QueryRow(ctx, query, userID, now))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrTokenNotFound
		}
		return nil, fmt.Errorf("failed to get active trial token: %w", err)
	}

	return token, nil
}

// PurgeExpired deletes unredeemed tokens that expired before the cutoff.
// Redeemed tokens are kept for auditing.
func (r *TrialTokenRepository) PurgeExpired(ctx context.Context, cutoff time.Time) (int64, error) {
	query := `DELETE FROM trial_offer_tokens WHERE used_at IS NULL AND expires_at < $1`
	deleted, err := r.db.Exec(ctx, query, cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to purge expired trial tokens: %w", err)
	}
	return deleted, nil
}

func (r *TrialTokenRepository) getByToken(ctx context.Context, token string) (*models.TrialOfferToken, error) {
	query := `
		SELECT id, user_id, token, source, expires_at, used_at, created_at
		FROM trial_offer_tokens
		WHERE token = $1
	`
	found, err := scanTrialToken(r.db.QueryRow(ctx, query, token))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrTokenNotFound
		}
		return nil, fmt.Errorf("failed to get trial token: %w", err)
	}
	return found, nil
}

func scanTrialToken(row pgx.Row) (*models.TrialOfferToken, error) {
	var token models.TrialOfferToken
	err := row.Scan(
		&token.ID, &token.UserID, &token.Token, &token.Source,
		&token.ExpiresAt, &token.UsedAt, &token.CreatedAt)
	if err != nil {
		return nil, err
	}
	return &token, nil
}
