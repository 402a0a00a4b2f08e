package controllers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/kendall-kelly/bistro-api/models"
	"github.com/kendall-kelly/bistro-api/services"
	"github.com/shopspring/decimal"
)

// RecordPaymentBody represents the request body for registering a payment attempt
type RecordPaymentBody struct {
	Amount decimal.Decimal      `json:"amount"`
	Method models.PaymentMethod `json:"method" binding:"required"`
}

// RefundBody represents the request body for refunding a payment
type RefundBody struct {
	Amount decimal.Decimal `json:"amount"`
	Reason string          `json:"reason" binding:"required"`
}

// FailPaymentBody represents the request body for marking a payment failed
type FailPaymentBody struct {
	Reason string `json:"reason" binding:"required"`
}

// ListOrderPayments handles GET /api/v1/orders/:id/payments
func ListOrderPayments(c *gin.Context) {
	e, ok := engine(c)
	if !ok {
		return
	}
	order, _, ok := loadVisibleOrder(c, e)
	if !ok {
		return
	}

	payments, err := e.Payments.ListPayments(c.Request.Context(), order.ID)
	if err != nil {
		respondEngineError(c, err)
		return
	}
	respondOK(c, http.StatusOK, payments)
}

// RecordPayment handles POST /api/v1/orders/:id/payments - registers a pending payment.
// Customers may pay their own orders; staff may pay any.
func RecordPayment(c *gin.Context) {
	e, ok := engine(c)
	if !ok {
		return
	}
	order, _, ok := loadVisibleOrder(c, e)
	if !ok {
		return
	}

	var body RecordPaymentBody
	if err := c.ShouldBindJSON(&body); err != nil {
		respondBindError(c, err)
		return
	}

	payment, err := e.Payments.RecordPayment(c.Request.Context(), order.ID, body.Amount, body.Method)
	if err != nil {
		respondEngineError(c, err)
		return
	}
	respondOK(c, http.StatusCreated, payment)
}

// paymentWithOrder responds with the payment and the order position it produced
func paymentWithOrder(c *gin.Context, e *services.Engine, payment *models.OrderPayment) {
	order, err := e.Orders.GetOrder(c.Request.Context(), payment.OrderID)
	if err != nil {
		respondEngineError(c, err)
		return
	}
	respondOK(c, http.StatusOK, gin.H{
		"payment": payment,
		"order":   order,
	})
}

// ConfirmPayment handles POST /api/v1/payments/:id/confirm (staff)
func ConfirmPayment(c *gin.Context) {
	e, ok := engine(c)
	if !ok {
		return
	}
	paymentID, ok := parseIDParam(c, "id")
	if !ok {
		return
	}

	payment, err := e.Payments.ConfirmPayment(c.Request.Context(), paymentID)
	if err != nil {
		respondEngineError(c, err)
		return
	}
	paymentWithOrder(c, e, payment)
}

// FailPayment handles POST /api/v1/payments/:id/fail (staff)
func FailPayment(c *gin.Context) {
	e, ok := engine(c)
	if !ok {
		return
	}
	paymentID, ok := parseIDParam(c, "id")
	if !ok {
		return
	}

	var body FailPaymentBody
	if err := c.ShouldBindJSON(&body); err != nil {
		respondBindError(c, err)
		return
	}

	payment, err := e.Payments.FailPayment(c.Request.Context(), paymentID, body.Reason)
	if err != nil {
		respondEngineError(c, err)
		return
	}
	respondOK(c, http.StatusOK, payment)
}

// RefundPayment handles POST /api/v1/payments/:id/refund (staff)
func RefundPayment(c *gin.Context) {
	e, ok := engine(c)
	if !ok {
		return
	}
	paymentID, ok := parseIDParam(c, "id")
	if !ok {
		return
	}

	var body RefundBody
	if err := c.ShouldBindJSON(&body); err != nil {
		respondBindError(c, err)
		return
	}

	payment, err := e.Payments.RefundPayment(c.Request.Context(), paymentID, body.Amount, body.Reason)
	if err != nil {
		respondEngineError(c, err)
		return
	}
	paymentWithOrder(c, e, payment)
}
