package services

import (
	"github.com/kendall-kelly/bistro-api/models"
	"github.com/shopspring/decimal"
)

// OverpaymentPolicy decides what happens when completed payments exceed the order total
type OverpaymentPolicy string

const (
	// OverpaymentClamp accepts the payment, clamps TotalPaid to Total and flags the excess
	OverpaymentClamp OverpaymentPolicy = "clamp"
	// OverpaymentReject refuses any confirmation that would exceed Total
	OverpaymentReject OverpaymentPolicy = "reject"
)

// Settlement is the derived payment position of an order
type Settlement struct {
	NetPaid       decimal.Decimal // sum of completed payments less refunds, unclamped
	TotalPaid     decimal.Decimal
	Remaining     decimal.Decimal
	Overpaid      decimal.Decimal
	HasRefunds    bool
	PaymentStatus models.PaymentStatus
}

// Reconcile derives TotalPaid, RemainingAmount and PaymentStatus from the payment rows.
// TotalPaid + Remaining always equals total.
func Reconcile(total decimal.Decimal, payments []models.OrderPayment) Settlement {
	net := decimal.Zero
	hasRefunds := false
	for _, p := range payments {
		net = net.Add(p.NetAmount())
		if p.RefundedAmount.IsPositive() {
			hasRefunds = true
		}
	}

	totalPaid := decimal.Min(net, total)
	overpaid := decimal.Max(net.Sub(total), decimal.Zero)
	remaining := decimal.Max(total.Sub(totalPaid), decimal.Zero)

	return Settlement{
		NetPaid:       net,
		TotalPaid:     totalPaid,
		Remaining:     remaining,
		Overpaid:      overpaid,
		HasRefunds:    hasRefunds,
		PaymentStatus: derivePaymentStatus(total, totalPaid, net, hasRefunds),
	}
}

func derivePaymentStatus(total, totalPaid, net decimal.Decimal, hasRefunds bool) models.PaymentStatus {
	if hasRefunds {
		switch {
		case !net.IsPositive():
			return models.PaymentStatusRefunded
		case totalPaid.LessThan(total):
			return models.PaymentStatusPartiallyRefunded
		default:
			return models.PaymentStatusPaid
		}
	}

	switch {
	case totalPaid.GreaterThanOrEqual(total):
		return models.PaymentStatusPaid
	case totalPaid.IsZero():
		return models.PaymentStatusUnpaid
	default:
		return models.PaymentStatusPartiallyPaid
	}
}
