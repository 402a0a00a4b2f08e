package controllers

import (
	"fmt"
	"net/http"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/kendall-kelly/bistro-api/models"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func paymentRouter(user models.User) *gin.Engine {
	router := orderRouter(user)
	payments := router.Group("/payments", authAs(user)...)
	payments.POST("/:id/confirm", ConfirmPayment)
	payments.POST("/:id/fail", FailPayment)
	payments.POST("/:id/refund", RefundPayment)
	return router
}

// payAndConfirm records a cash payment on an order and confirms it, returning the payment ID
func payAndConfirm(t *testing.T, router *gin.Engine, order map[string]interface{}, amount string) uint {
	w := performJSON(router, http.MethodPost, orderPath(order, "/payments"), map[string]interface{}{"amount": amount, "method": "cash"})
	require.Equal(t, http.StatusCreated, w.Code, "Response body: %s", w.Body.String())
	payment := decodeResponse(t, w)["data"].(map[string]interface{})
	paymentID := uint(payment["id"].(float64))

	w = performJSON(router, http.MethodPost, fmt.Sprintf("/payments/%d/confirm", paymentID), nil)
	require.Equal(t, http.StatusOK, w.Code, "Response body: %s", w.Body.String())
	return paymentID
}

func TestRecordPayment_Validation(t *testing.T) {
	f := setupOrderFixture(t)
	order := placeOrderAs(t, f.customer, takeawayBasket())
	router := paymentRouter(f.staff)

	tests := []struct {
		name          string
		body          map[string]interface{}
		expectedCode  int
		expectedError string
	}{
		{"Zero amount", map[string]interface{}{"amount": "0", "method": "cash"}, http.StatusBadRequest, "VALIDATION_ERROR"},
		{"Negative amount", map[string]interface{}{"amount": "-5", "method": "cash"}, http.StatusBadRequest, "VALIDATION_ERROR"},
		{"Unknown method", map[string]interface{}{"amount": "10", "method": "barter"}, http.StatusBadRequest, "VALIDATION_ERROR"},
		{"Missing method", map[string]interface{}{"amount": "10"}, http.StatusBadRequest, "VALIDATION_ERROR"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := performJSON(router, http.MethodPost, orderPath(order, "/payments"), tt.body)
			assert.Equal(t, tt.expectedCode, w.Code, "Response body: %s", w.Body.String())
			assert.Equal(t, tt.expectedError, errorCode(t, w))
		})
	}
}

func TestPayments_PartialThenOverpaid(t *testing.T) {
	f := setupOrderFixture(t)
	router := paymentRouter(f.staff)

	// 92.59 plus 7.41 tax is a round 100.00
	order := placeOrderAs(t, f.staff, map[string]interface{}{
		"order_type":    "takeaway",
		"customer_name": "Walk-in",
		"items":         []map[string]interface{}{{"product_name": "Platter", "quantity": 1, "unit_price": "92.59"}},
	})
	total := decimalField(t, order, "total")
	require.True(t, total.Equal(decimal.RequireFromString("100")), "total was %s", total)

	payAndConfirm(t, router, order, "60")
	w := performJSON(router, http.MethodGet, orderPath(order, ""), nil)
	data := decodeResponse(t, w)["data"].(map[string]interface{})
	assert.Equal(t, "partially_paid", data["payment_status"])
	assert.True(t, decimalField(t, data, "remaining_amount").Equal(decimal.NewFromInt(40)))

	paymentID := payAndConfirm(t, router, order, "50")
	w = performJSON(router, http.MethodGet, orderPath(order, ""), nil)
	data = decodeResponse(t, w)["data"].(map[string]interface{})
	assert.Equal(t, "paid", data["payment_status"])
	assert.True(t, decimalField(t, data, "total_paid").Equal(decimal.NewFromInt(100)))
	assert.True(t, decimalField(t, data, "remaining_amount").IsZero())
	assert.True(t, decimalField(t, data, "overpaid_amount").Equal(decimal.NewFromInt(10)))
	assert.Equal(t, true, data["is_overpaid"])

	// Refunding the overpayment settles the flag
	w = performJSON(router, http.MethodPost, fmt.Sprintf("/payments/%d/refund", paymentID), map[string]interface{}{"amount": "10", "reason": "change"})
	require.Equal(t, http.StatusOK, w.Code, "Response body: %s", w.Body.String())
	refunded := decodeResponse(t, w)["data"].(map[string]interface{})["order"].(map[string]interface{})
	assert.Equal(t, "paid", refunded["payment_status"])
	assert.Equal(t, false, refunded["is_overpaid"])
}

func TestRefundPayment_Errors(t *testing.T) {
	f := setupOrderFixture(t)
	router := paymentRouter(f.staff)
	order := placeOrderAs(t, f.customer, takeawayBasket())
	paymentID := payAndConfirm(t, router, order, "108")

	w := performJSON(router, http.MethodPost, fmt.Sprintf("/payments/%d/refund", paymentID), map[string]interface{}{"amount": "200", "reason": "too much"})
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
	assert.Equal(t, "REFUND_EXCEEDS_PAYMENT", errorCode(t, w))

	w = performJSON(router, http.MethodPost, fmt.Sprintf("/payments/%d/refund", paymentID), map[string]interface{}{"amount": "108"})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = performJSON(router, http.MethodPost, fmt.Sprintf("/payments/%d/refund", paymentID), map[string]interface{}{"amount": "108", "reason": "cold food"})
	require.Equal(t, http.StatusOK, w.Code, "Response body: %s", w.Body.String())
	result := decodeResponse(t, w)["data"].(map[string]interface{})
	assert.Equal(t, "refunded", result["payment"].(map[string]interface{})["status"])
	assert.Equal(t, "refunded", result["order"].(map[string]interface{})["payment_status"])

	// A refunded order takes no further payments
	w = performJSON(router, http.MethodPost, orderPath(order, "/payments"), map[string]interface{}{"amount": "5", "method": "cash"})
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
	assert.Equal(t, "PAYMENT_NOT_ALLOWED", errorCode(t, w))
}

func TestFailPayment(t *testing.T) {
	f := setupOrderFixture(t)
	router := paymentRouter(f.staff)
	order := placeOrderAs(t, f.customer, takeawayBasket())

	w := performJSON(router, http.MethodPost, orderPath(order, "/payments"), map[string]interface{}{"amount": "20", "method": "card"})
	require.Equal(t, http.StatusCreated, w.Code)
	paymentID := uint(decodeResponse(t, w)["data"].(map[string]interface{})["id"].(float64))

	w = performJSON(router, http.MethodPost, fmt.Sprintf("/payments/%d/fail", paymentID), map[string]interface{}{"reason": "declined"})
	require.Equal(t, http.StatusOK, w.Code, "Response body: %s", w.Body.String())
	assert.Equal(t, "failed", decodeResponse(t, w)["data"].(map[string]interface{})["status"])

	w = performJSON(router, http.MethodPost, fmt.Sprintf("/payments/%d/confirm", paymentID), nil)
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
	assert.Equal(t, "INVALID_PAYMENT_STATE", errorCode(t, w))

	w = performJSON(router, http.MethodGet, orderPath(order, ""), nil)
	data := decodeResponse(t, w)["data"].(map[string]interface{})
	assert.Equal(t, "unpaid", data["payment_status"])
}

func TestListOrderPayments_Visibility(t *testing.T) {
	f := setupOrderFixture(t)
	order := placeOrderAs(t, f.customer, takeawayBasket())

	// Customers may pay their own orders
	w := performJSON(paymentRouter(f.customer), http.MethodPost, orderPath(order, "/payments"), map[string]interface{}{"amount": "108", "method": "online"})
	require.Equal(t, http.StatusCreated, w.Code, "Response body: %s", w.Body.String())
	payment := decodeResponse(t, w)["data"].(map[string]interface{})
	assert.NotEmpty(t, payment["transaction_reference"])
	assert.Equal(t, "pending", payment["status"])

	w = performJSON(paymentRouter(f.customer), http.MethodGet, orderPath(order, "/payments"), nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, decodeResponse(t, w)["data"].([]interface{}), 1)

	w = performJSON(paymentRouter(f.other), http.MethodGet, orderPath(order, "/payments"), nil)
	assert.Equal(t, http.StatusForbidden, w.Code)
}

func TestConfirmPayment_NotFound(t *testing.T) {
	f := setupOrderFixture(t)
	w := performJSON(paymentRouter(f.staff), http.MethodPost, "/payments/999/confirm", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, "PAYMENT_NOT_FOUND", errorCode(t, w))
}
