package database

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"hydra/internal/constants"
	apperrors "hydra/internal/errors"
)

func retryableWrite(ctx context.Context, operationName string, operation func() error) error {
	return retryableOperation(ctx, operationName, operation)
}

func retryableRead(ctx context.Context, operationName string, operation func() error) error {
	return retryableOperation(ctx, operationName, operation)
}

// retryableOperation retries transient SQLite failures with linear backoff.
func retryableOperation(ctx context.Context, operationName string, operation func() error) error {
	var lastErr error

	maxAttempts := constants.DefaultDatabaseRetryAttempts
	initialBackoff := time.Duration(constants.DefaultRetryBackoffMs) * time.Millisecond

	for attempt := 1; attempt <= maxAttempts; attempt++ {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		err := operation()
		if err == nil {
			return nil
		}
		lastErr = err

		if !isRetryableDBError(err) {
			return apperrors.Wrap(err, apperrors.CodeStorageQuery,
				fmt.Sprintf("%s failed (non-retryable)", operationName))
		}
		if attempt == maxAttempts {
			break
		}

		backoff := time.Duration(attempt) * initialBackoff
		if max := time.Duration(constants.DefaultMaxBackoffMs) * time.Millisecond; backoff > max {
			backoff = max
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(backoff):
		}
	}

	return apperrors.WrapRetryable(lastErr, apperrors.CodeStorageQuery,
		fmt.Sprintf("%s failed after %d attempts", operationName, maxAttempts))
}

func isRetryableDBError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}

	// A structured error carries its own retryability verdict.
	var appErr *apperrors.AppError
	if errors.As(err, &appErr) {
		return appErr.Retryable
	}

	msg := err.Error()

	if strings.Contains(msg, "database is locked") || strings.Contains(msg, "database table is locked") {
		return true
	}
	if strings.Contains(msg, "disk I/O error") {
		return true
	}

	// Constraint violations will not succeed on retry.
	if strings.Contains(msg, "UNIQUE constraint") || strings.Contains(msg, "FOREIGN KEY constraint") {
		return false
	}

	return false
}
