package services

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/kendall-kelly/bistro-api/models"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// PaymentLedger records payment attempts and refunds against orders and keeps
// the order's TotalPaid, RemainingAmount and PaymentStatus in step with them
type PaymentLedger struct {
	db     *gorm.DB
	logger *zap.Logger
	retry  RetryPolicy
	policy OverpaymentPolicy
	now    func() time.Time
}

// NewPaymentLedger creates a payment ledger with the given overpayment policy
func NewPaymentLedger(db *gorm.DB, logger *zap.Logger, retry RetryPolicy, policy OverpaymentPolicy) *PaymentLedger {
	if policy != OverpaymentReject {
		policy = OverpaymentClamp
	}
	return &PaymentLedger{db: db, logger: logger, retry: retry, policy: policy, now: time.Now}
}

// Policy returns the configured overpayment policy
func (l *PaymentLedger) Policy() OverpaymentPolicy {
	return l.policy
}

// RecordPayment registers a pending payment attempt
func (l *PaymentLedger) RecordPayment(ctx context.Context, orderID uint, amount decimal.Decimal, method models.PaymentMethod) (*models.OrderPayment, error) {
	amount = RoundCurrency(amount)
	if !amount.IsPositive() {
		return nil, validationError("payment amount must be positive")
	}
	if !method.IsValid() {
		return nil, validationError("unknown payment method %q", method)
	}

	var payment models.OrderPayment
	err := l.retry.inTransaction(ctx, l.db, l.logger, "record_payment", func(tx *gorm.DB) error {
		order, err := loadOrder(tx, orderID)
		if err != nil {
			return err
		}
		if err := paymentsAllowed(order); err != nil {
			return err
		}
		if l.policy == OverpaymentReject && amount.GreaterThan(order.RemainingAmount) {
			return &EngineError{
				Kind:    KindBusinessRule,
				Code:    CodeOverpaymentRejected,
				Message: "payment of " + amount.StringFixed(currencyPlaces) + " exceeds the remaining " + order.RemainingAmount.StringFixed(currencyPlaces),
			}
		}

		payment = models.OrderPayment{
			OrderID:              order.ID,
			Amount:               amount,
			Method:               method,
			Status:               models.PaymentPending,
			TransactionReference: uuid.NewString(),
			RefundedAmount:       decimal.Zero,
		}
		return tx.Create(&payment).Error
	})
	if err != nil {
		return nil, err
	}

	l.logger.Info("payment recorded",
		zap.Uint("order_id", orderID),
		zap.Uint("payment_id", payment.ID),
		zap.String("amount", payment.Amount.StringFixed(currencyPlaces)),
		zap.String("method", string(method)),
	)
	return &payment, nil
}

// ConfirmPayment marks a pending payment completed and reconciles the order
func (l *PaymentLedger) ConfirmPayment(ctx context.Context, paymentID uint) (*models.OrderPayment, error) {
	var payment models.OrderPayment
	var settled *models.Order
	err := l.retry.inTransaction(ctx, l.db, l.logger, "confirm_payment", func(tx *gorm.DB) error {
		var err error
		payment, err = loadPayment(tx, paymentID)
		if err != nil {
			return err
		}
		if payment.Status != models.PaymentPending {
			return businessError(CodeInvalidPaymentState, "payment %d is %s, only pending payments can be confirmed", payment.ID, payment.Status)
		}

		order, err := loadOrder(tx, payment.OrderID)
		if err != nil {
			return err
		}
		if err := paymentsAllowed(order); err != nil {
			return err
		}

		now := l.now()
		if err := updatePaymentFrom(tx, &payment, models.PaymentPending, map[string]interface{}{
			"status":       models.PaymentCompleted,
			"completed_at": now,
		}); err != nil {
			return err
		}
		payment.Status = models.PaymentCompleted
		payment.CompletedAt = &now

		settled, err = l.settle(tx, order)
		return err
	})
	if err != nil {
		return nil, err
	}

	fields := []zap.Field{
		zap.Uint("order_id", payment.OrderID),
		zap.Uint("payment_id", payment.ID),
		zap.String("payment_status", string(settled.PaymentStatus)),
	}
	if settled.IsOverpaid {
		l.logger.Warn("order overpaid", append(fields, zap.String("overpaid_amount", settled.OverpaidAmount.StringFixed(currencyPlaces)))...)
	} else {
		l.logger.Info("payment confirmed", fields...)
	}
	return &payment, nil
}

// FailPayment marks a pending payment failed. The order's totals are unaffected.
func (l *PaymentLedger) FailPayment(ctx context.Context, paymentID uint, reason string) (*models.OrderPayment, error) {
	reason = strings.TrimSpace(reason)
	if reason == "" {
		return nil, validationError("failure reason is required")
	}

	var payment models.OrderPayment
	err := l.retry.inTransaction(ctx, l.db, l.logger, "fail_payment", func(tx *gorm.DB) error {
		var err error
		payment, err = loadPayment(tx, paymentID)
		if err != nil {
			return err
		}
		if payment.Status != models.PaymentPending {
			return businessError(CodeInvalidPaymentState, "payment %d is %s, only pending payments can fail", payment.ID, payment.Status)
		}
		if err := updatePaymentFrom(tx, &payment, models.PaymentPending, map[string]interface{}{
			"status":         models.PaymentFailed,
			"failure_reason": reason,
		}); err != nil {
			return err
		}
		payment.Status = models.PaymentFailed
		payment.FailureReason = &reason
		return nil
	})
	if err != nil {
		return nil, err
	}
	l.logger.Info("payment failed", zap.Uint("payment_id", payment.ID), zap.String("reason", reason))
	return &payment, nil
}

// RefundPayment refunds part or all of a completed payment. Refunding more than
// Amount - RefundedAmount fails with ErrRefundExceedsPayment. The amount is
// rounded to cents first, like recorded payments.
func (l *PaymentLedger) RefundPayment(ctx context.Context, paymentID uint, amount decimal.Decimal, reason string) (*models.OrderPayment, error) {
	amount = RoundCurrency(amount)
	if !amount.IsPositive() {
		return nil, validationError("refund amount must be positive")
	}
	reason = strings.TrimSpace(reason)
	if reason == "" {
		return nil, validationError("refund reason is required")
	}

	var payment models.OrderPayment
	err := l.retry.inTransaction(ctx, l.db, l.logger, "refund_payment", func(tx *gorm.DB) error {
		var err error
		payment, err = loadPayment(tx, paymentID)
		if err != nil {
			return err
		}
		if payment.Status != models.PaymentCompleted {
			return businessError(CodeInvalidPaymentState, "payment %d is %s, only completed payments can be refunded", payment.ID, payment.Status)
		}
		if amount.GreaterThan(payment.Refundable()) {
			return &EngineError{
				Kind:    KindBusinessRule,
				Code:    CodeRefundExceedsPayment,
				Message: "refund of " + amount.StringFixed(currencyPlaces) + " exceeds the refundable " + payment.Refundable().StringFixed(currencyPlaces),
			}
		}

		order, err := loadOrder(tx, payment.OrderID)
		if err != nil {
			return err
		}

		refunded := payment.RefundedAmount.Add(amount)
		status := models.PaymentCompleted
		updates := map[string]interface{}{
			"refunded_amount": refunded,
			"refund_reason":   reason,
		}
		if refunded.Equal(payment.Amount) {
			status = models.PaymentRefunded
			updates["status"] = status
			updates["refunded_at"] = l.now()
		}
		if err := updatePaymentFrom(tx, &payment, models.PaymentCompleted, updates); err != nil {
			return err
		}
		payment.RefundedAmount = refunded
		payment.RefundReason = &reason
		payment.Status = status

		_, err = l.settle(tx, order)
		return err
	})
	if err != nil {
		return nil, err
	}

	l.logger.Info("payment refunded",
		zap.Uint("payment_id", payment.ID),
		zap.String("amount", amount.StringFixed(currencyPlaces)),
		zap.String("status", string(payment.Status)),
	)
	return &payment, nil
}

// ListPayments returns an order's payments in the order they were recorded
func (l *PaymentLedger) ListPayments(ctx context.Context, orderID uint) ([]models.OrderPayment, error) {
	db := l.db.WithContext(ctx)
	if _, err := loadOrder(db, orderID); err != nil {
		return nil, err
	}
	var payments []models.OrderPayment
	err := db.Where("order_id = ?", orderID).Order("id asc").Find(&payments).Error
	return payments, err
}

// settle recomputes the order's payment position from its payments and writes
// it under the order's version
func (l *PaymentLedger) settle(tx *gorm.DB, order *models.Order) (*models.Order, error) {
	var payments []models.OrderPayment
	if err := tx.Where("order_id = ?", order.ID).Find(&payments).Error; err != nil {
		return nil, err
	}

	settlement := Reconcile(order.Total, payments)
	if settlement.Overpaid.IsPositive() && l.policy == OverpaymentReject {
		return nil, &EngineError{
			Kind:    KindBusinessRule,
			Code:    CodeOverpaymentRejected,
			Message: "payments would exceed the order total by " + settlement.Overpaid.StringFixed(currencyPlaces),
		}
	}
	if !order.PaymentStatus.CanTransitionTo(settlement.PaymentStatus) {
		l.logger.Error("payment status edge not allowed",
			zap.Uint("order_id", order.ID),
			zap.String("from", string(order.PaymentStatus)),
			zap.String("to", string(settlement.PaymentStatus)),
		)
		return nil, consistencyError("payment status cannot move from %s to %s", order.PaymentStatus, settlement.PaymentStatus)
	}

	next := *order
	next.TotalPaid = settlement.TotalPaid
	next.RemainingAmount = settlement.Remaining
	next.OverpaidAmount = settlement.Overpaid
	next.IsOverpaid = settlement.Overpaid.IsPositive()
	next.PaymentStatus = settlement.PaymentStatus
	if err := checkOrderInvariants(l.logger, &next); err != nil {
		return nil, err
	}

	if err := updateVersioned(tx, &models.Order{}, order.ID, order.Version, map[string]interface{}{
		"total_paid":       next.TotalPaid,
		"remaining_amount": next.RemainingAmount,
		"overpaid_amount":  next.OverpaidAmount,
		"is_overpaid":      next.IsOverpaid,
		"payment_status":   next.PaymentStatus,
	}); err != nil {
		return nil, err
	}
	next.Version++
	return &next, nil
}

// paymentsAllowed refuses new money on cancelled or fully refunded orders
func paymentsAllowed(order *models.Order) error {
	if order.Status == models.OrderStatusCancelled {
		return businessError(CodePaymentNotAllowed, "order %s is cancelled", order.OrderNumber)
	}
	if order.PaymentStatus == models.PaymentStatusRefunded {
		return businessError(CodePaymentNotAllowed, "order %s has been refunded", order.OrderNumber)
	}
	return nil
}

func loadPayment(tx *gorm.DB, paymentID uint) (models.OrderPayment, error) {
	var payment models.OrderPayment
	if err := tx.First(&payment, paymentID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return payment, notFoundError(CodePaymentNotFound, "payment %d not found", paymentID)
		}
		return payment, err
	}
	return payment, nil
}

// updatePaymentFrom applies updates only if the payment is still in the expected state
func updatePaymentFrom(tx *gorm.DB, payment *models.OrderPayment, expected models.PaymentState, updates map[string]interface{}) error {
	result := tx.Model(&models.OrderPayment{}).
		Where("id = ? AND status = ?", payment.ID, expected).
		Updates(updates)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return errVersionConflict
	}
	return nil
}
