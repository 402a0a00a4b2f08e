package services

import (
	"errors"
	"fmt"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
)

func TestEngineError_IsMatchesByCode(t *testing.T) {
	err := businessError(CodeInsufficientPoints, "cannot redeem %d points", 500)
	assert.ErrorIs(t, err, ErrInsufficientPoints)
	assert.NotErrorIs(t, err, ErrInvalidTransition)
	assert.Equal(t, "cannot redeem 500 points", err.Error())

	wrapped := fmt.Errorf("placing order: %w", err)
	assert.ErrorIs(t, wrapped, ErrInsufficientPoints)

	engineErr, ok := AsEngineError(wrapped)
	assert.True(t, ok)
	assert.Equal(t, KindBusinessRule, engineErr.Kind)
}

func TestEngineError_UnwrapsCause(t *testing.T) {
	cause := errors.New("disk full")
	err := &EngineError{Kind: KindConsistency, Code: CodeConsistency, Message: "write failed", Err: cause}
	assert.ErrorIs(t, err, cause)
	assert.Equal(t, "write failed: disk full", err.Error())

	_, ok := AsEngineError(cause)
	assert.False(t, ok)
}

func TestErrorConstructors(t *testing.T) {
	assert.Equal(t, KindValidation, validationError("bad").Kind)
	assert.Equal(t, CodeValidation, validationError("bad").Code)
	assert.Equal(t, KindNotFound, notFoundError(CodeOrderNotFound, "order %d", 1).Kind)
	assert.ErrorIs(t, notFoundError(CodeOrderNotFound, "order %d", 1), ErrOrderNotFound)
	assert.ErrorIs(t, consistencyError("broken"), ErrConsistency)
}

func TestIsUniqueViolation(t *testing.T) {
	assert.False(t, IsUniqueViolation(nil))
	assert.True(t, IsUniqueViolation(&pgconn.PgError{Code: "23505"}))
	assert.False(t, IsUniqueViolation(&pgconn.PgError{Code: "23503"}))
	assert.True(t, IsUniqueViolation(errors.New("UNIQUE constraint failed: users.email")))
	assert.True(t, IsUniqueViolation(errors.New("duplicate key value violates unique constraint")))
	assert.False(t, IsUniqueViolation(errors.New("connection refused")))
}
