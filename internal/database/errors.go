package database

import (
	"context"
	"errors"
	"net"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"
)

// IsTransient reports whether an error looks like a retryable storage
// failure: connection problems, deadlocks, serialization conflicts and
// timeouts. Logical failures (constraint violations, no rows) are not
// transient and must never be retried.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		// Class 08: connection exceptions
		if strings.HasPrefix(pgErr.Code, "08") {
			return true
		}
		switch pgErr.Code {
		case "40001", "40P01": // serialization failure, deadlock detected
			return true
		case "57P03": // cannot_connect_now
			return true
		}
		return false
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}

	// pgx reports some pool/connection failures as plain errors
	msg := err.Error()
	return strings.Contains(msg, "connection") || strings.Contains(msg, "closed pool")
}

// IsUniqueViolation checks if an error is a unique constraint violation
func IsUniqueViolation(err error) bool {
	if err == nil {
		return false
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		// PostgreSQL unique violation error code is 23505
		return pgErr.Code == "23505"
	}

	return strings.Contains(err.Error(), "duplicate key")
}
