package controllers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/kendall-kelly/bistro-api/middleware"
	"github.com/kendall-kelly/bistro-api/models"
	"github.com/shopspring/decimal"
)

// AdjustPointsBody represents the request body for a manual points correction
type AdjustPointsBody struct {
	Points      int    `json:"points" binding:"required"`
	Description string `json:"description" binding:"required"`
}

// EarningRuleBody represents the request body for a point earning rule
type EarningRuleBody struct {
	Name           string              `json:"name" binding:"required"`
	MinOrderAmount decimal.Decimal     `json:"min_order_amount"`
	MaxOrderAmount decimal.NullDecimal `json:"max_order_amount"`
	PointsAwarded  int                 `json:"points_awarded" binding:"required,gt=0"`
	Priority       *int                `json:"priority"`
	IsActive       *bool               `json:"is_active"`
}

// fidelityCustomerID resolves whose points are being read: "me" or, for staff, any customer ID
func fidelityCustomerID(c *gin.Context) (uint, bool) {
	user, err := middleware.GetCurrentUser(c)
	if err != nil {
		respondError(c, http.StatusUnauthorized, "UNAUTHORIZED", "Could not extract user information")
		return 0, false
	}
	if c.Param("customerId") == "me" {
		return user.ID, true
	}

	customerID, ok := parseIDParam(c, "customerId")
	if !ok {
		return 0, false
	}
	if customerID != user.ID && !user.IsStaff() {
		respondError(c, http.StatusForbidden, "FORBIDDEN", "You can only view your own fidelity points")
		return 0, false
	}
	return customerID, true
}

// GetFidelityBalance handles GET /api/v1/fidelity/customers/:customerId/balance
func GetFidelityBalance(c *gin.Context) {
	e, ok := engine(c)
	if !ok {
		return
	}
	customerID, ok := fidelityCustomerID(c)
	if !ok {
		return
	}

	balance, err := e.Fidelity.GetBalance(c.Request.Context(), customerID)
	if err != nil {
		respondEngineError(c, err)
		return
	}
	respondOK(c, http.StatusOK, gin.H{
		"balance":      balance,
		"points_value": e.Fidelity.PointsValue(balance.CurrentPoints),
	})
}

// GetFidelityTransactions handles GET /api/v1/fidelity/customers/:customerId/transactions
func GetFidelityTransactions(c *gin.Context) {
	e, ok := engine(c)
	if !ok {
		return
	}
	customerID, ok := fidelityCustomerID(c)
	if !ok {
		return
	}

	entries, err := e.Fidelity.History(c.Request.Context(), customerID)
	if err != nil {
		respondEngineError(c, err)
		return
	}
	respondOK(c, http.StatusOK, entries)
}

// AdjustFidelityPoints handles POST /api/v1/fidelity/customers/:customerId/adjust (admin)
func AdjustFidelityPoints(c *gin.Context) {
	e, ok := engine(c)
	if !ok {
		return
	}
	customerID, ok := parseIDParam(c, "customerId")
	if !ok {
		return
	}

	var body AdjustPointsBody
	if err := c.ShouldBindJSON(&body); err != nil {
		respondBindError(c, err)
		return
	}

	balance, err := e.Fidelity.AdjustPoints(c.Request.Context(), customerID, body.Points, body.Description+" (by "+actorName(c)+")")
	if err != nil {
		respondEngineError(c, err)
		return
	}
	respondOK(c, http.StatusOK, balance)
}

// ListEarningRules handles GET /api/v1/fidelity/rules
func ListEarningRules(c *gin.Context) {
	e, ok := engine(c)
	if !ok {
		return
	}

	rules, err := e.Fidelity.ListEarningRules(c.Request.Context())
	if err != nil {
		respondEngineError(c, err)
		return
	}
	respondOK(c, http.StatusOK, rules)
}

// CreateEarningRule handles POST /api/v1/fidelity/rules (admin)
func CreateEarningRule(c *gin.Context) {
	e, ok := engine(c)
	if !ok {
		return
	}

	var body EarningRuleBody
	if err := c.ShouldBindJSON(&body); err != nil {
		respondBindError(c, err)
		return
	}

	rule := models.PointEarningRule{
		Name:           body.Name,
		MinOrderAmount: body.MinOrderAmount,
		MaxOrderAmount: body.MaxOrderAmount,
		PointsAwarded:  body.PointsAwarded,
		Priority:       100,
		IsActive:       true,
	}
	if body.Priority != nil {
		rule.Priority = *body.Priority
	}
	if body.IsActive != nil {
		rule.IsActive = *body.IsActive
	}

	created, err := e.Fidelity.CreateEarningRule(c.Request.Context(), rule)
	if err != nil {
		respondEngineError(c, err)
		return
	}
	respondOK(c, http.StatusCreated, created)
}
