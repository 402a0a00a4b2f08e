package services

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

// errVersionConflict signals that a versioned row changed between read and write
var errVersionConflict = errors.New("row version conflict")

// RetryPolicy bounds optimistic-concurrency retries
type RetryPolicy struct {
	MaxAttempts int
	Backoff     time.Duration // linear: attempt n waits n*Backoff
}

// DefaultRetryPolicy is three attempts with a short linear backoff
var DefaultRetryPolicy = RetryPolicy{MaxAttempts: 3, Backoff: 25 * time.Millisecond}

// Run calls fn until it succeeds, fails with something other than a version
// conflict, or the attempts are exhausted (ErrConcurrentModification).
func (p RetryPolicy) Run(ctx context.Context, logger *zap.Logger, operation string, fn func() error) error {
	attempts := p.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}

	for attempt := 0; attempt < attempts; attempt++ {
		if attempt > 0 {
			wait := time.Duration(attempt) * p.Backoff
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(wait):
			}
		}

		err := fn()
		if err == nil {
			return nil
		}
		if !errors.Is(err, errVersionConflict) {
			return err
		}
		logger.Debug("version conflict, retrying",
			zap.String("operation", operation),
			zap.Int("attempt", attempt+1),
		)
	}

	logger.Warn("retries exhausted on version conflict",
		zap.String("operation", operation),
		zap.Int("attempts", attempts),
	)
	return &EngineError{
		Kind:    KindConflict,
		Code:    CodeConcurrentModification,
		Message: "the resource was modified concurrently, please try again",
		Err:     errVersionConflict,
	}
}

// inTransaction runs fn in a database transaction under the retry policy
func (p RetryPolicy) inTransaction(ctx context.Context, db *gorm.DB, logger *zap.Logger, operation string, fn func(tx *gorm.DB) error) error {
	return p.Run(ctx, logger, operation, func() error {
		return db.WithContext(ctx).Transaction(fn)
	})
}

// updateVersioned writes updates to the row only if it still carries version,
// bumping the version in the same statement. Zero affected rows is a conflict.
func updateVersioned(tx *gorm.DB, model interface{}, id uint, version int, updates map[string]interface{}) error {
	updates["version"] = version + 1
	result := tx.Model(model).Where("id = ? AND version = ?", id, version).Updates(updates)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return errVersionConflict
	}
	return nil
}
