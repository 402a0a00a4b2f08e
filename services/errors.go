package services

import (
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"
)

// ErrorKind groups engine failures by how the caller should react
type ErrorKind int

const (
	// KindValidation is bad input, rejected before any state change
	KindValidation ErrorKind = iota + 1
	// KindBusinessRule is an expected refusal such as an invalid transition
	KindBusinessRule
	// KindNotFound means the referenced entity does not exist
	KindNotFound
	// KindConflict is a concurrency conflict that survived the retry budget
	KindConflict
	// KindConsistency is an invariant breach caught at the write boundary
	KindConsistency
)

// Error codes surfaced to API clients
const (
	CodeValidation             = "VALIDATION_ERROR"
	CodeInvalidTransition      = "INVALID_TRANSITION"
	CodeInsufficientPoints     = "INSUFFICIENT_POINTS"
	CodePointsAlreadyAwarded   = "POINTS_ALREADY_AWARDED"
	CodeInvalidPromo           = "INVALID_PROMO"
	CodeRefundExceedsPayment   = "REFUND_EXCEEDS_PAYMENT"
	CodeOverpaymentRejected    = "OVERPAYMENT_REJECTED"
	CodePaymentNotAllowed      = "PAYMENT_NOT_ALLOWED"
	CodeInvalidPaymentState    = "INVALID_PAYMENT_STATE"
	CodeRedemptionExceeds      = "REDEMPTION_EXCEEDS_SUBTOTAL"
	CodeFocusNotAllowed        = "FOCUS_NOT_ALLOWED"
	CodeArchiveNotAllowed      = "ARCHIVE_NOT_ALLOWED"
	CodeOrderNotFound          = "ORDER_NOT_FOUND"
	CodePaymentNotFound        = "PAYMENT_NOT_FOUND"
	CodeCustomerNotFound       = "CUSTOMER_NOT_FOUND"
	CodeRuleNotFound           = "RULE_NOT_FOUND"
	CodeConcurrentModification = "CONCURRENT_MODIFICATION"
	CodeConsistency            = "CONSISTENCY_ERROR"
)

// EngineError is the typed failure returned by every engine operation
type EngineError struct {
	Kind    ErrorKind
	Code    string
	Message string
	Err     error
}

func (e *EngineError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *EngineError) Unwrap() error {
	return e.Err
}

// Is matches another EngineError by code, so errors.Is(err, ErrInsufficientPoints) works
func (e *EngineError) Is(target error) bool {
	var other *EngineError
	if !errors.As(target, &other) {
		return false
	}
	return other.Code == e.Code
}

// Sentinels for errors.Is comparisons
var (
	ErrInvalidTransition      = &EngineError{Kind: KindBusinessRule, Code: CodeInvalidTransition, Message: "invalid status transition"}
	ErrInsufficientPoints     = &EngineError{Kind: KindBusinessRule, Code: CodeInsufficientPoints, Message: "insufficient fidelity points"}
	ErrPointsAlreadyAwarded   = &EngineError{Kind: KindBusinessRule, Code: CodePointsAlreadyAwarded, Message: "points already awarded for this order"}
	ErrInvalidPromo           = &EngineError{Kind: KindBusinessRule, Code: CodeInvalidPromo, Message: "invalid promo code"}
	ErrRefundExceedsPayment   = &EngineError{Kind: KindBusinessRule, Code: CodeRefundExceedsPayment, Message: "refund exceeds refundable amount"}
	ErrOverpaymentRejected    = &EngineError{Kind: KindBusinessRule, Code: CodeOverpaymentRejected, Message: "payment would exceed the order total"}
	ErrConcurrentModification = &EngineError{Kind: KindConflict, Code: CodeConcurrentModification, Message: "concurrent modification"}
	ErrConsistency            = &EngineError{Kind: KindConsistency, Code: CodeConsistency, Message: "consistency invariant breached"}
	ErrOrderNotFound          = &EngineError{Kind: KindNotFound, Code: CodeOrderNotFound, Message: "order not found"}
	ErrPaymentNotFound        = &EngineError{Kind: KindNotFound, Code: CodePaymentNotFound, Message: "payment not found"}
)

func validationError(format string, args ...interface{}) *EngineError {
	return &EngineError{Kind: KindValidation, Code: CodeValidation, Message: fmt.Sprintf(format, args...)}
}

func businessError(code, format string, args ...interface{}) *EngineError {
	return &EngineError{Kind: KindBusinessRule, Code: code, Message: fmt.Sprintf(format, args...)}
}

func notFoundError(code, format string, args ...interface{}) *EngineError {
	return &EngineError{Kind: KindNotFound, Code: code, Message: fmt.Sprintf(format, args...)}
}

func consistencyError(format string, args ...interface{}) *EngineError {
	return &EngineError{Kind: KindConsistency, Code: CodeConsistency, Message: fmt.Sprintf(format, args...)}
}

// AsEngineError extracts an EngineError from err
func AsEngineError(err error) (*EngineError, bool) {
	var engineErr *EngineError
	if errors.As(err, &engineErr) {
		return engineErr, true
	}
	return nil, false
}

// IsUniqueViolation reports whether err is a unique constraint violation.
// PostgreSQL errors are matched by SQLSTATE, SQLite by message.
func IsUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505"
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "duplicate") || strings.Contains(msg, "unique constraint")
}
