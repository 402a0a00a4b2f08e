package controllers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/kendall-kelly/bistro-api/models"
	"github.com/kendall-kelly/bistro-api/services"
	"github.com/shopspring/decimal"
)

// DiscountTermsBody holds the fields shared by customer rules and promo codes
type DiscountTermsBody struct {
	DiscountType      models.DiscountType `json:"discount_type" binding:"required"`
	Value             decimal.Decimal     `json:"value"`
	MinOrderAmount    decimal.NullDecimal `json:"min_order_amount"`
	MaxDiscountAmount decimal.NullDecimal `json:"max_discount_amount"`
	MaxUsageCount     *int                `json:"max_usage_count"`
	ValidFrom         *time.Time          `json:"valid_from"`
	ValidUntil        *time.Time          `json:"valid_until"`
}

// CustomerRuleBody represents the request body for a customer discount rule
type CustomerRuleBody struct {
	DiscountTermsBody
	Name           string              `json:"name" binding:"required"`
	MaxOrderAmount decimal.NullDecimal `json:"max_order_amount"`
}

// PromoCodeBody represents the request body for a promo code
type PromoCodeBody struct {
	DiscountTermsBody
	Code string `json:"code" binding:"required"`
}

// ListCustomerRules handles GET /api/v1/customers/:customerId/discount-rules (admin)
func ListCustomerRules(c *gin.Context) {
	e, ok := engine(c)
	if !ok {
		return
	}
	customerID, ok := parseIDParam(c, "customerId")
	if !ok {
		return
	}

	rules, err := e.Discounts.ListCustomerRules(c.Request.Context(), customerID)
	if err != nil {
		respondEngineError(c, err)
		return
	}
	respondOK(c, http.StatusOK, rules)
}

// CreateCustomerRule handles POST /api/v1/customers/:customerId/discount-rules (admin)
func CreateCustomerRule(c *gin.Context) {
	e, ok := engine(c)
	if !ok {
		return
	}
	customerID, ok := parseIDParam(c, "customerId")
	if !ok {
		return
	}

	var body CustomerRuleBody
	if err := c.ShouldBindJSON(&body); err != nil {
		respondBindError(c, err)
		return
	}

	rule, err := e.Discounts.CreateCustomerRule(c.Request.Context(), services.CustomerRuleInput{
		CustomerID:        customerID,
		Name:              body.Name,
		DiscountType:      body.DiscountType,
		Value:             body.Value,
		MinOrderAmount:    body.MinOrderAmount,
		MaxOrderAmount:    body.MaxOrderAmount,
		MaxDiscountAmount: body.MaxDiscountAmount,
		MaxUsageCount:     body.MaxUsageCount,
		ValidFrom:         body.ValidFrom,
		ValidUntil:        body.ValidUntil,
	})
	if err != nil {
		respondEngineError(c, err)
		return
	}
	respondOK(c, http.StatusCreated, rule)
}

// DeactivateCustomerRule handles DELETE /api/v1/discount-rules/:id (admin)
func DeactivateCustomerRule(c *gin.Context) {
	e, ok := engine(c)
	if !ok {
		return
	}
	ruleID, ok := parseIDParam(c, "id")
	if !ok {
		return
	}

	rule, err := e.Discounts.DeactivateCustomerRule(c.Request.Context(), ruleID)
	if err != nil {
		respondEngineError(c, err)
		return
	}
	respondOK(c, http.StatusOK, rule)
}

// ListPromoCodes handles GET /api/v1/promo-codes (admin)
func ListPromoCodes(c *gin.Context) {
	e, ok := engine(c)
	if !ok {
		return
	}

	promos, err := e.Discounts.ListPromoCodes(c.Request.Context())
	if err != nil {
		respondEngineError(c, err)
		return
	}
	respondOK(c, http.StatusOK, promos)
}

// CreatePromoCode handles POST /api/v1/promo-codes (admin)
func CreatePromoCode(c *gin.Context) {
	e, ok := engine(c)
	if !ok {
		return
	}

	var body PromoCodeBody
	if err := c.ShouldBindJSON(&body); err != nil {
		respondBindError(c, err)
		return
	}

	promo, err := e.Discounts.CreatePromoCode(c.Request.Context(), services.PromoCodeInput{
		Code:              body.Code,
		DiscountType:      body.DiscountType,
		Value:             body.Value,
		MinOrderAmount:    body.MinOrderAmount,
		MaxDiscountAmount: body.MaxDiscountAmount,
		MaxUsageCount:     body.MaxUsageCount,
		ValidFrom:         body.ValidFrom,
		ValidUntil:        body.ValidUntil,
	})
	if err != nil {
		respondEngineError(c, err)
		return
	}
	respondOK(c, http.StatusCreated, promo)
}

// DeactivatePromoCode handles DELETE /api/v1/promo-codes/:code (admin)
func DeactivatePromoCode(c *gin.Context) {
	e, ok := engine(c)
	if !ok {
		return
	}

	promo, err := e.Discounts.DeactivatePromoCode(c.Request.Context(), c.Param("code"))
	if err != nil {
		respondEngineError(c, err)
		return
	}
	respondOK(c, http.StatusOK, promo)
}
