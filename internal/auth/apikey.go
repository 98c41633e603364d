package auth

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/replyguy/backend/internal/database"
	"github.com/replyguy/backend/internal/models"
	"github.com/replyguy/backend/internal/repository"
)

const (
	// APIKeyPrefix is the prefix for all API keys
	APIKeyPrefix = "rg_live_"
	// APIKeyLength is the length of the random part of the API key
	APIKeyLength = 32
)

var (
	// ErrAPIKeyNotFound is returned when an API key is not found
	ErrAPIKeyNotFound = errors.New("api key not found")
	// ErrAPIKeyRevoked is returned when an API key has been revoked
	ErrAPIKeyRevoked = errors.New("api key has been revoked")
	// ErrAPIKeyInvalid is returned when an API key format is invalid
	ErrAPIKeyInvalid = errors.New("invalid api key format")
	// ErrAPIKeyLimit is returned when a user has too many active keys
	ErrAPIKeyLimit = errors.New("api key limit reached")
)

// APIKeyService handles API key operations
type APIKeyService struct {
	db         *database.DB
	userRepo   *repository.UserRepository
	maxPerUser int
}

// NewAPIKeyService creates a new API key service
func NewAPIKeyService(db *database.DB, userRepo *repository.UserRepository, maxPerUser int) *APIKeyService {
	return &APIKeyService{
		db:         db,
		userRepo:   userRepo,
		maxPerUser: maxPerUser,
	}
}

// GeneratedKey contains both the plain text key (shown once) and the stored key info
type GeneratedKey struct {
	PlainTextKey string         `json:"key"`      // Only shown once at creation
	KeyInfo      *models.APIKey `json:"key_info"` // Stored information
}

// Generate creates a new API key for a user
func (s *APIKeyService) Generate(ctx context.Context, userID string, name string) (*GeneratedKey, error) {
	if s.maxPerUser > 0 {
		var active int
		err := s.db.QueryRow(ctx,
			`SELECT COUNT(*) FROM api_keys WHERE user_id = $1 AND is_active = true`, userID).Scan(&active)
		if err != nil {
			return nil, fmt.Errorf("failed to count api keys: %w", err)
		}
		if active >= s.maxPerUser {
			return nil, ErrAPIKeyLimit
		}
	}

	plainKey, err := generateAPIKey()
	if err != nil {
		return nil, fmt.Errorf("failed to generate api key: %w", err)
	}

	// Only the hash is stored; the prefix identifies the key in listings
	keyHash := hashAPIKey(plainKey)
	keyPrefix := plainKey[:len(APIKeyPrefix)+7]

	apiKey := &models.APIKey{
		ID:        uuid.New().String(),
		UserID:    userID,
		KeyHash:   keyHash,
		KeyPrefix: keyPrefix,
		Name:      name,
		IsActive:  true,
		CreatedAt: time.Now(),
	}

	query := `
		INSERT INTO api_keys (id, user_id, key_hash, key_prefix, name, is_active, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`
	_, err = s.db.Exec(ctx, query,
		apiKey.ID, apiKey.UserID, apiKey.KeyHash, apiKey.KeyPrefix, apiKey.Name, apiKey.IsActive, apiKey.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to store api key: %w", err)
	}

	return &GeneratedKey{
		PlainTextKey: plainKey,
		KeyInfo:      apiKey,
	}, nil
}

// Validate validates an API key and returns the associated user
func (s *APIKeyService) Validate(ctx context.Context, key string) (*models.User, error) {
	if len(key) < len(APIKeyPrefix) || key[:len(APIKeyPrefix)] != APIKeyPrefix {
		return nil, ErrAPIKeyInvalid
	}

	keyHash := hashAPIKey(key)

	user, err := s.userRepo.GetByAPIKey(ctx, keyHash)
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			return nil, ErrAPIKeyNotFound
		}
		return nil, err
	}

	// Update last used timestamp, best effort
	_, _ = s.db.Exec(ctx, `UPDATE api_keys SET last_used_at = $1 WHERE key_hash = $2`, time.Now(), keyHash)

	return user, nil
}

// List returns all API keys for a user
func (s *APIKeyService) List(ctx context.Context, userID string) ([]models.APIKey, error) {
	query := `
		SELECT id, user_id, key_hash, key_prefix, name, is_active, last_used_at, created_at
		FROM api_keys
		WHERE user_id = $1
		ORDER BY created_at DESC
	`
	rows, err := s.db.Query(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list api keys: %w", err)
	}
	defer rows.Close()

	var keys []models.APIKey
	for rows.Next() {
		var key models.APIKey
		err := rows.Scan(&key.ID, &key.UserID, &key.KeyHash, &key.KeyPrefix,
			&key.Name, &key.IsActive, &key.LastUsed, &key.CreatedAt)
		if err != nil {
			return nil, fmt.Errorf("failed to scan api key: %w", err)
		}
		keys = append(keys, key)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read api keys: %w", err)
	}

	return keys, nil
}

// Revoke revokes an API key
func (s *APIKeyService) Revoke(ctx context.Context, keyID string, userID string) error {
	query := `UPDATE api_keys SET is_active = false WHERE id = $1 AND user_id = $2`
	rowsAffected, err := s.db.Exec(ctx, query, keyID, userID)
	if err != nil {
		return fmt.Errorf("failed to revoke api key: %w", err)
	}
	if rowsAffected == 0 {
		return ErrAPIKeyNotFound
	}
	return nil
}

// generateAPIKey creates a new random API key with the standard prefix
func generateAPIKey() (string, error) {
	buf := make([]byte, APIKeyLength)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return APIKeyPrefix + hex.EncodeToString(buf), nil
}

// hashAPIKey returns the SHA-256 hash of a key for storage
func hashAPIKey(key string) string {
	sum := sha256.Sum256([]byte(key))
	return hex.EncodeToString(sum[:])
}
