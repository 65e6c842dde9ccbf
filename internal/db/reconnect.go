package db

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/unklstewy/overhead/pkg/config"
)

// ConnectWithRetry attempts to connect to the database with exponential backoff.
// This provides resilience against a database that starts after we do.
//
// Parameters:
//   - cfg: Database configuration
//   - maxRetries: Maximum number of connection attempts (0 = until ctx is done)
//   - initialDelay: Initial wait time between retries
//
// Returns: Connected database or error if all retries exhausted
func ConnectWithRetry(ctx context.Context, cfg config.DatabaseConfig, maxRetries int, initialDelay time.Duration, logger *slog.Logger) (*DB, error) {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	delay := initialDelay

	for attempt := 1; ; attempt++ {
		db, err := Connect(ctx, cfg)
		if err == nil {
			if attempt > 1 {
				logger.Info("database connected", slog.Int("attempt", attempt))
			}
			return db, nil
		}

		// Check if we've exceeded max retries
		if maxRetries > 0 && attempt >= maxRetries {
			logger.Error("giving up on database", slog.Int("attempts", attempt), slog.Any("error", err))
			return nil, err
		}

		logger.Warn("database connection failed",
			slog.Int("attempt", attempt),
			slog.Duration("retry_in", delay),
			slog.Any("error", err))

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil, ctx.Err()
		case <-timer.C:
		}

		// Exponential backoff with cap at 60 seconds
		delay = min(delay*2, 60*time.Second)
	}
}

// HealthCheck reports whether the database answers a trivial query.
func HealthCheck(ctx context.Context, db *DB) bool {
	if db == nil {
		return false
	}

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	var result int
	if err := db.QueryRowContext(ctx, "SELECT 1").Scan(&result); err != nil {
		return false
	}
	return result == 1
}

var connErrors = []string{
	"connection refused",
	"broken pipe",
	"no connection",
	"connection reset",
	"bad connection",
	"eof",
	"timeout",
}

// IsConnError reports whether err looks like a lost connection rather than
// a problem with the statement itself.
func IsConnError(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	for _, pattern := range connErrors {
		if strings.Contains(msg, pattern) {
			return true
		}
	}
	return false
}

// WithRetry executes a database operation, retrying on connection failures.
//
// Parameters:
//   - operation: Function to execute that may fail due to connection issues
//   - maxRetries: Maximum number of retry attempts
func WithRetry(ctx context.Context, operation func() error, maxRetries int) error {
	var lastErr error

	for attempt := 0; attempt <= maxRetries; attempt++ {
		err := operation()
		if err == nil {
			return nil
		}
		lastErr = err

		if !IsConnError(err) {
			return err
		}

		if attempt < maxRetries {
			timer := time.NewTimer(time.Duration(attempt+1) * 100 * time.Millisecond)
			select {
			case <-ctx.Done():
				timer.Stop()
				return lastErr
			case <-timer.C:
			}
		}
	}

	return lastErr
}
