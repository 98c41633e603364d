package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/replyguy/backend/internal/bucket"
	"github.com/replyguy/backend/internal/database"
	"github.com/replyguy/backend/internal/models"
)

// ErrUnknownUsageType is returned for usage types the ledger does not track
var ErrUnknownUsageType = errors.New("unknown usage type")

// usageColumns maps a usage type to its counter column. Increment builds
// SQL from this map, never from caller input.
var usageColumns = map[string]string{
	models.UsageTypeReply:      "replies",
	models.UsageTypeSuggestion: "suggestions",
	models.UsageTypeMeme:       "memes",
}

// UsageRepository handles daily usage ledger operations
type UsageRepository struct {
	db *database.DB
}

// NewUsageRepository creates a new usage repository
func NewUsageRepository(db *database.DB) *UsageRepository {
	return &UsageRepository{db: db}
}

// Increment adds count to the named counter for (userID, date), creating the
// row on the first event of the day. The upsert-and-add is a single
// statement so concurrent increments for the same key never lose updates.
func (r *UsageRepository) Increment(ctx context.Context, userID, date, usageType string, count int) (*models.DailyUsage, error) {
	column, ok := usageColumns[usageType]
	if !ok {
		return nil, ErrUnknownUsageType
	}

	query := fmt.Sprintf(`
		INSERT INTO daily_usage (user_id, date, %[1]s, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $4)
		ON CONFLICT (user_id, date)
		DO UPDATE SET %[1]s = daily_usage.%[1]s + EXCLUDED.%[1]s, updated_at = $4
		RETURNING user_id, date, replies, suggestions, memes, created_at, updated_at
	`, column)

	usage, err := scanDailyUsage(r.db.QueryRow(ctx, query, userID, date, count, time.Now()))
	if err != nil {
		return nil, fmt.Errorf("failed to increment usage: %w", err)
	}

	return usage, nil
}

// GetDaily returns the usage record for (userID, date). Absence is not an
// error: a zero-valued record is returned for days with no activity.
func (r *UsageRepository) GetDaily(ctx context.Context, userID, date string) (*models.DailyUsage, error) {
	query := `
		SELECT user_id, date, replies, suggestions, memes, created_at, updated_at
		FROM daily_usage
		WHERE user_id = $1 AND date = $2
	`
	usage, err := scanDailyUsage(r.db.QueryRow(ctx, query, userID, date))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return &models.DailyUsage{UserID: userID, Date: date}, nil
		}
		return nil, fmt.Errorf("failed to get daily usage: %w", err)
	}

	return usage, nil
}

// SumRange sums the daily counters for dates in [from, to).
func (r *UsageRepository) SumRange(ctx context.Context, userID, from, to string) (*models.UsageTotals, error) {
	query := `
		SELECT COALESCE(SUM(replies), 0), COALESCE(SUM(suggestions), 0), COALESCE(SUM(memes), 0)
		FROM daily_usage
		WHERE user_id = $1 AND date >= $2 AND date < $3
	`
	var totals models.UsageTotals
	err := r.db.QueryRow(ctx, query, userID, from, to).Scan(
		&totals.Replies, &totals.Suggestions, &totals.Memes)
	if err != nil {
		return nil, fmt.Errorf("failed to sum usage range: %w", err)
	}

	return &totals, nil
}

// ListRecent returns the most recent daily records for a user, newest first.
func (r *UsageRepository) ListRecent(ctx context.Context, userID string, limit int) ([]models.DailyUsage, error) {
	query := `
		SELECT user_id, date, replies, suggestions, memes, created_at, updated_at
		FROM daily_usage
		WHERE user_id = $1
		ORDER BY date DESC
		LIMIT $2
	`
	rows, err := r.db.Query(ctx, query, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list recent usage: %w", err)
	}
	defer rows.Close()

	records := make([]models.DailyUsage, 0, limit)
	for rows.Next() {
		usage, err := scanDailyUsage(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan usage row: %w", err)
		}
		records = append(records, *usage)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read usage rows: %w", err)
	}

	return records, nil
}

// rowScanner covers pgx.Row and pgx.Rows
type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanDailyUsage(row rowScanner) (*models.DailyUsage, error) {
	var usage models.DailyUsage
	var date time.Time
	err := row.Scan(
		&usage.UserID, &date, &usage.Replies, &usage.Suggestions, &usage.Memes,
		&usage.CreatedAt, &usage.UpdatedAt)
	if err != nil {
		return nil, err
	}
	usage.Date = date.Format(bucket.DateFormat)
	return &usage, nil
}
