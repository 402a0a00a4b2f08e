package controllers

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// FocusBody represents the request body for focusing an order
type FocusBody struct {
	Priority *int   `json:"priority" binding:"omitempty,gte=1"`
	Reason   string `json:"reason" binding:"required"`
}

// GetKitchenQueue handles GET /api/v1/kitchen/queue - active orders in execution order
func GetKitchenQueue(c *gin.Context) {
	e, ok := engine(c)
	if !ok {
		return
	}

	orders, err := e.Orders.KitchenQueue(c.Request.Context())
	if err != nil {
		respondEngineError(c, err)
		return
	}
	respondOK(c, http.StatusOK, orders)
}

// FocusOrder handles PUT /api/v1/kitchen/orders/:id/focus
func FocusOrder(c *gin.Context) {
	e, ok := engine(c)
	if !ok {
		return
	}
	orderID, ok := parseIDParam(c, "id")
	if !ok {
		return
	}

	var body FocusBody
	if err := c.ShouldBindJSON(&body); err != nil {
		respondBindError(c, err)
		return
	}

	order, err := e.Orders.SetFocus(c.Request.Context(), orderID, body.Priority, body.Reason, actorName(c))
	if err != nil {
		respondEngineError(c, err)
		return
	}
	respondOK(c, http.StatusOK, order)
}

// ClearOrderFocus handles DELETE /api/v1/kitchen/orders/:id/focus
func ClearOrderFocus(c *gin.Context) {
	e, ok := engine(c)
	if !ok {
		return
	}
	orderID, ok := parseIDParam(c, "id")
	if !ok {
		return
	}

	order, err := e.Orders.ClearFocus(c.Request.Context(), orderID)
	if err != nil {
		respondEngineError(c, err)
		return
	}
	respondOK(c, http.StatusOK, order)
}
