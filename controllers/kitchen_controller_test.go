package controllers

import (
	"net/http"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/kendall-kelly/bistro-api/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func kitchenRouter(user models.User) *gin.Engine {
	router := orderRouter(user)
	kitchen := router.Group("/kitchen", authAs(user)...)
	kitchen.GET("/queue", GetKitchenQueue)
	kitchen.PUT("/orders/:id/focus", FocusOrder)
	kitchen.DELETE("/orders/:id/focus", ClearOrderFocus)
	return router
}

func confirmOrder(t *testing.T, router *gin.Engine, order map[string]interface{}) {
	w := performJSON(router, http.MethodPost, orderPath(order, "/transition"), map[string]interface{}{"status": "confirmed"})
	require.Equal(t, http.StatusOK, w.Code, "Response body: %s", w.Body.String())
}

func queueIDs(t *testing.T, router *gin.Engine) []float64 {
	w := performJSON(router, http.MethodGet, "/kitchen/queue", nil)
	require.Equal(t, http.StatusOK, w.Code, "Response body: %s", w.Body.String())
	var ids []float64
	for _, raw := range decodeResponse(t, w)["data"].([]interface{}) {
		ids = append(ids, raw.(map[string]interface{})["id"].(float64))
	}
	return ids
}

func TestKitchenQueue_FocusOrdering(t *testing.T) {
	f := setupOrderFixture(t)
	router := kitchenRouter(f.staff)

	first := placeOrderAs(t, f.customer, takeawayBasket())
	second := placeOrderAs(t, f.customer, takeawayBasket())
	third := placeOrderAs(t, f.customer, takeawayBasket())
	pending := placeOrderAs(t, f.customer, takeawayBasket())
	for _, order := range []map[string]interface{}{first, second, third} {
		confirmOrder(t, router, order)
	}

	// Pending orders never reach the kitchen
	assert.Equal(t, []float64{first["id"].(float64), second["id"].(float64), third["id"].(float64)}, queueIDs(t, router))
	assert.NotContains(t, queueIDs(t, router), pending["id"].(float64))

	w := performJSON(router, http.MethodPut, "/kitchen/orders/"+idString(second)+"/focus", map[string]interface{}{"reason": "regular"})
	require.Equal(t, http.StatusOK, w.Code, "Response body: %s", w.Body.String())
	focused := decodeResponse(t, w)["data"].(map[string]interface{})
	assert.Equal(t, true, focused["is_focus_order"])
	assert.Equal(t, "Staff User", focused["focused_by"])
	assert.Equal(t, "confirmed", focused["status"])

	w = performJSON(router, http.MethodPut, "/kitchen/orders/"+idString(third)+"/focus", map[string]interface{}{"priority": 1, "reason": "VIP table"})
	require.Equal(t, http.StatusOK, w.Code, "Response body: %s", w.Body.String())

	assert.Equal(t, []float64{third["id"].(float64), second["id"].(float64), first["id"].(float64)}, queueIDs(t, router))

	w = performJSON(router, http.MethodDelete, "/kitchen/orders/"+idString(third)+"/focus", nil)
	require.Equal(t, http.StatusOK, w.Code, "Response body: %s", w.Body.String())
	cleared := decodeResponse(t, w)["data"].(map[string]interface{})
	assert.Equal(t, false, cleared["is_focus_order"])
	assert.Nil(t, cleared["priority"])

	assert.Equal(t, []float64{second["id"].(float64), first["id"].(float64), third["id"].(float64)}, queueIDs(t, router))
}

func TestFocusOrder_Errors(t *testing.T) {
	f := setupOrderFixture(t)
	router := kitchenRouter(f.staff)
	order := placeOrderAs(t, f.customer, takeawayBasket())

	tests := []struct {
		name          string
		path          string
		body          map[string]interface{}
		expectedCode  int
		expectedError string
	}{
		{"Missing reason", "/kitchen/orders/" + idString(order) + "/focus", map[string]interface{}{}, http.StatusBadRequest, "VALIDATION_ERROR"},
		{"Zero priority", "/kitchen/orders/" + idString(order) + "/focus", map[string]interface{}{"priority": 0, "reason": "x"}, http.StatusBadRequest, "VALIDATION_ERROR"},
		{"Unknown order", "/kitchen/orders/999/focus", map[string]interface{}{"reason": "x"}, http.StatusNotFound, "ORDER_NOT_FOUND"},
		{"Invalid ID", "/kitchen/orders/abc/focus", map[string]interface{}{"reason": "x"}, http.StatusBadRequest, "INVALID_ID"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := performJSON(router, http.MethodPut, tt.path, tt.body)
			assert.Equal(t, tt.expectedCode, w.Code, "Response body: %s", w.Body.String())
			assert.Equal(t, tt.expectedError, errorCode(t, w))
		})
	}

	t.Run("Cancelled order cannot be focused", func(t *testing.T) {
		w := performJSON(router, http.MethodPost, orderPath(order, "/cancel"), map[string]interface{}{"reason": "changed mind"})
		require.Equal(t, http.StatusOK, w.Code, "Response body: %s", w.Body.String())

		w = performJSON(router, http.MethodPut, "/kitchen/orders/"+idString(order)+"/focus", map[string]interface{}{"reason": "late"})
		assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
		assert.Equal(t, "FOCUS_NOT_ALLOWED", errorCode(t, w))
	})
}
