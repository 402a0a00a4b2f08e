package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// PaymentState is the lifecycle state of a single payment attempt
type PaymentState string

const (
	PaymentPending   PaymentState = "pending"
	PaymentCompleted PaymentState = "completed"
	PaymentFailed    PaymentState = "failed"
	PaymentRefunded  PaymentState = "refunded" // fully refunded
)

// PaymentMethod is how the customer paid
type PaymentMethod string

const (
	PaymentMethodCash    PaymentMethod = "cash"
	PaymentMethodCard    PaymentMethod = "card"
	PaymentMethodOnline  PaymentMethod = "online"
	PaymentMethodVoucher PaymentMethod = "voucher"
)

// IsValid reports whether m is a known payment method
func (m PaymentMethod) IsValid() bool {
	switch m {
	case PaymentMethodCash, PaymentMethodCard, PaymentMethodOnline, PaymentMethodVoucher:
		return true
	}
	return false
}

// OrderPayment is one payment attempt against an order. Payments are never deleted.
type OrderPayment struct {
	ID                   uint            `gorm:"primaryKey" json:"id"`
	OrderID              uint            `gorm:"not null;index" json:"order_id"`
	Amount               decimal.Decimal `gorm:"type:decimal(12,2);not null" json:"amount"`
	Method               PaymentMethod   `gorm:"not null;size:16" json:"method"`
	Status               PaymentState    `gorm:"not null;size:16" json:"status"`
	TransactionReference string          `gorm:"uniqueIndex;not null;size:64" json:"transaction_reference"`
	RefundedAmount       decimal.Decimal `gorm:"type:decimal(12,2);not null;default:0" json:"refunded_amount"`
	RefundReason         *string         `json:"refund_reason,omitempty"`
	FailureReason        *string         `json:"failure_reason,omitempty"`
	CompletedAt          *time.Time      `json:"completed_at,omitempty"`
	RefundedAt           *time.Time      `json:"refunded_at,omitempty"`
	CreatedAt            time.Time       `json:"created_at"`
	UpdatedAt            time.Time       `json:"updated_at"`
}

// TableName specifies the table name for the OrderPayment model
func (OrderPayment) TableName() string {
	return "order_payments"
}

// Refundable is the amount that can still be refunded on this payment
func (p OrderPayment) Refundable() decimal.Decimal {
	return p.Amount.Sub(p.RefundedAmount)
}

// NetAmount is what this payment contributes to the order's TotalPaid
func (p OrderPayment) NetAmount() decimal.Decimal {
	if p.Status != PaymentCompleted {
		return decimal.Zero
	}
	return p.Amount.Sub(p.RefundedAmount)
}
