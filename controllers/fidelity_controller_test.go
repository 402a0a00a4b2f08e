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

func fidelityRouter(user models.User) *gin.Engine {
	router := orderRouter(user)
	fidelity := router.Group("/fidelity", authAs(user)...)
	fidelity.GET("/customers/:customerId/balance", GetFidelityBalance)
	fidelity.GET("/customers/:customerId/transactions", GetFidelityTransactions)
	fidelity.POST("/customers/:customerId/adjust", AdjustFidelityPoints)
	fidelity.GET("/rules", ListEarningRules)
	fidelity.POST("/rules", CreateEarningRule)
	return router
}

func balanceOf(t *testing.T, router *gin.Engine, customer string) map[string]interface{} {
	w := performJSON(router, http.MethodGet, "/fidelity/customers/"+customer+"/balance", nil)
	require.Equal(t, http.StatusOK, w.Code, "Response body: %s", w.Body.String())
	return decodeResponse(t, w)["data"].(map[string]interface{})
}

func TestFidelity_EarnOnConfirm(t *testing.T) {
	f := setupOrderFixture(t)
	admin := fidelityRouter(f.admin)

	w := performJSON(admin, http.MethodPost, "/fidelity/rules", map[string]interface{}{
		"name":             "Bronze",
		"min_order_amount": "0",
		"max_order_amount": "200",
		"points_awarded":   10,
	})
	require.Equal(t, http.StatusCreated, w.Code, "Response body: %s", w.Body.String())
	rule := decodeResponse(t, w)["data"].(map[string]interface{})
	assert.Equal(t, float64(100), rule["priority"])
	assert.Equal(t, true, rule["is_active"])

	// No activity yet reads as a zero balance
	data := balanceOf(t, fidelityRouter(f.customer), "me")
	assert.Equal(t, float64(0), data["balance"].(map[string]interface{})["current_points"])

	order := placeOrderAs(t, f.customer, takeawayBasket())
	confirmOrder(t, orderRouter(f.staff), order)

	data = balanceOf(t, fidelityRouter(f.customer), "me")
	balance := data["balance"].(map[string]interface{})
	assert.Equal(t, float64(10), balance["current_points"])
	assert.Equal(t, float64(10), balance["total_earned_points"])
	assert.True(t, decimalField(t, data, "points_value").Equal(decimal.NewFromInt(1)))

	w = performJSON(fidelityRouter(f.customer), http.MethodGet, "/fidelity/customers/me/transactions", nil)
	require.Equal(t, http.StatusOK, w.Code)
	entries := decodeResponse(t, w)["data"].([]interface{})
	require.Len(t, entries, 1)
	entry := entries[0].(map[string]interface{})
	assert.Equal(t, "earn", entry["type"])
	assert.Equal(t, order["id"], entry["order_id"])
}

func TestFidelity_Visibility(t *testing.T) {
	f := setupOrderFixture(t)
	otherPath := fmt.Sprint(f.other.ID)

	w := performJSON(fidelityRouter(f.customer), http.MethodGet, "/fidelity/customers/"+otherPath+"/balance", nil)
	assert.Equal(t, http.StatusForbidden, w.Code)
	assert.Equal(t, "FORBIDDEN", errorCode(t, w))

	w = performJSON(fidelityRouter(f.customer), http.MethodGet, "/fidelity/customers/"+otherPath+"/transactions", nil)
	assert.Equal(t, http.StatusForbidden, w.Code)

	data := balanceOf(t, fidelityRouter(f.staff), otherPath)
	assert.Equal(t, float64(f.other.ID), data["balance"].(map[string]interface{})["customer_id"])

	w = performJSON(fidelityRouter(f.customer), http.MethodGet, "/fidelity/customers/abc/balance", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "INVALID_ID", errorCode(t, w))
}

func TestAdjustFidelityPoints(t *testing.T) {
	f := setupOrderFixture(t)
	router := fidelityRouter(f.admin)
	path := fmt.Sprintf("/fidelity/customers/%d/adjust", f.customer.ID)

	w := performJSON(router, http.MethodPost, path, map[string]interface{}{"points": 25, "description": "welcome bonus"})
	require.Equal(t, http.StatusOK, w.Code, "Response body: %s", w.Body.String())
	assert.Equal(t, float64(25), decodeResponse(t, w)["data"].(map[string]interface{})["current_points"])

	tests := []struct {
		name          string
		body          map[string]interface{}
		expectedCode  int
		expectedError string
	}{
		{"Overdraw", map[string]interface{}{"points": -30, "description": "correction"}, http.StatusUnprocessableEntity, "INSUFFICIENT_POINTS"},
		{"Missing description", map[string]interface{}{"points": 5}, http.StatusBadRequest, "VALIDATION_ERROR"},
		{"Zero points", map[string]interface{}{"points": 0, "description": "noop"}, http.StatusBadRequest, "VALIDATION_ERROR"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := performJSON(router, http.MethodPost, path, tt.body)
			assert.Equal(t, tt.expectedCode, w.Code, "Response body: %s", w.Body.String())
			assert.Equal(t, tt.expectedError, errorCode(t, w))
		})
	}

	w = performJSON(router, http.MethodPost, path, map[string]interface{}{"points": -5, "description": "correction"})
	require.Equal(t, http.StatusOK, w.Code)

	w = performJSON(router, http.MethodGet, fmt.Sprintf("/fidelity/customers/%d/transactions", f.customer.ID), nil)
	entries := decodeResponse(t, w)["data"].([]interface{})
	require.Len(t, entries, 2)
	latest := entries[0].(map[string]interface{})
	assert.Equal(t, float64(-5), latest["points"])
	assert.Equal(t, "correction (by Admin User)", latest["description"])

	data := balanceOf(t, router, fmt.Sprint(f.customer.ID))
	assert.Equal(t, float64(20), data["balance"].(map[string]interface{})["current_points"])
}

func TestEarningRules(t *testing.T) {
	f := setupOrderFixture(t)
	router := fidelityRouter(f.admin)

	rules := []map[string]interface{}{
		{"name": "Gold", "min_order_amount": "50.01", "points_awarded": 30, "priority": 20},
		{"name": "Silver", "min_order_amount": "20.01", "max_order_amount": "50", "points_awarded": 15, "priority": 10},
	}
	for _, rule := range rules {
		w := performJSON(router, http.MethodPost, "/fidelity/rules", rule)
		require.Equal(t, http.StatusCreated, w.Code, "Response body: %s", w.Body.String())
	}

	w := performJSON(router, http.MethodGet, "/fidelity/rules", nil)
	require.Equal(t, http.StatusOK, w.Code)
	listed := decodeResponse(t, w)["data"].([]interface{})
	require.Len(t, listed, 2)
	assert.Equal(t, "Silver", listed[0].(map[string]interface{})["name"])
	assert.Nil(t, listed[1].(map[string]interface{})["max_order_amount"])

	invalid := []struct {
		name string
		body map[string]interface{}
	}{
		{"Max below min", map[string]interface{}{"name": "Broken", "min_order_amount": "50", "max_order_amount": "10", "points_awarded": 5}},
		{"No points", map[string]interface{}{"name": "Empty", "min_order_amount": "0", "points_awarded": 0}},
		{"No name", map[string]interface{}{"min_order_amount": "0", "points_awarded": 5}},
	}
	for _, tt := range invalid {
		t.Run(tt.name, func(t *testing.T) {
			w := performJSON(router, http.MethodPost, "/fidelity/rules", tt.body)
			assert.Equal(t, http.StatusBadRequest, w.Code, "Response body: %s", w.Body.String())
			assert.Equal(t, "VALIDATION_ERROR", errorCode(t, w))
		})
	}
}
