package controllers

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/kendall-kelly/bistro-api/middleware"
	"github.com/kendall-kelly/bistro-api/models"
	"github.com/kendall-kelly/bistro-api/services"
	"github.com/shopspring/decimal"
)

// PlaceOrderBody represents the request body for quoting and placing an order
type PlaceOrderBody struct {
	CustomerID      *uint                 `json:"customer_id"` // staff only, customers always order for themselves
	CustomerName    string                `json:"customer_name"`
	CustomerEmail   *string               `json:"customer_email"`
	CustomerPhone   *string               `json:"customer_phone"`
	OrderType       models.OrderType      `json:"order_type" binding:"required"`
	TableNumber     *int                  `json:"table_number"`
	DeliveryAddress *string               `json:"delivery_address"`
	Notes           *string               `json:"notes"`
	Items           []services.BasketItem `json:"items" binding:"required"`
	Tip             decimal.Decimal       `json:"tip"`
	PromoCode       string                `json:"promo_code"`
	RedeemPoints    int                   `json:"redeem_points" binding:"gte=0"`
}

// TransitionBody represents the request body for a status change
type TransitionBody struct {
	Status models.OrderStatus `json:"status" binding:"required"`
	Notes  string             `json:"notes"`
}

// ReasonBody carries a free-text reason (cancellation, delay rejection)
type ReasonBody struct {
	Reason string `json:"reason" binding:"required"`
}

// DelayBody represents the request body for reporting a kitchen delay
type DelayBody struct {
	Minutes int    `json:"minutes" binding:"required,gt=0"`
	Reason  string `json:"reason" binding:"required"`
}

func (b PlaceOrderBody) toRequest(user *models.User) services.PlaceOrderRequest {
	req := services.PlaceOrderRequest{
		CustomerID:      b.CustomerID,
		CustomerName:    b.CustomerName,
		CustomerEmail:   b.CustomerEmail,
		CustomerPhone:   b.CustomerPhone,
		OrderType:       b.OrderType,
		TableNumber:     b.TableNumber,
		DeliveryAddress: b.DeliveryAddress,
		Notes:           b.Notes,
		Items:           b.Items,
		Tip:             b.Tip,
		PromoCode:       b.PromoCode,
		RedeemPoints:    b.RedeemPoints,
		PlacedBy:        user.Name,
	}
	if !user.IsStaff() {
		customerID := user.ID
		req.CustomerID = &customerID
		req.CustomerName = ""
		req.CustomerEmail = nil
		req.CustomerPhone = nil
	}
	return req
}

// QuoteOrder handles POST /api/v1/orders/quote - prices a basket without placing it
func QuoteOrder(c *gin.Context) {
	user, err := middleware.GetCurrentUser(c)
	if err != nil {
		respondError(c, http.StatusUnauthorized, "UNAUTHORIZED", "Could not extract user information")
		return
	}
	e, ok := engine(c)
	if !ok {
		return
	}

	var body PlaceOrderBody
	if err := c.ShouldBindJSON(&body); err != nil {
		respondBindError(c, err)
		return
	}

	quote, err := e.Orders.PreviewOrder(c.Request.Context(), body.toRequest(user))
	if err != nil {
		respondEngineError(c, err)
		return
	}
	respondOK(c, http.StatusOK, quote)
}

// CreateOrder handles POST /api/v1/orders - places an order.
// Customers order for themselves; staff may place walk-in orders or order on behalf of a customer.
func CreateOrder(c *gin.Context) {
	user, err := middleware.GetCurrentUser(c)
	if err != nil {
		respondError(c, http.StatusUnauthorized, "UNAUTHORIZED", "Could not extract user information")
		return
	}
	e, ok := engine(c)
	if !ok {
		return
	}

	var body PlaceOrderBody
	if err := c.ShouldBindJSON(&body); err != nil {
		respondBindError(c, err)
		return
	}

	order, err := e.Orders.PlaceOrder(c.Request.Context(), body.toRequest(user))
	if err != nil {
		respondEngineError(c, err)
		return
	}
	respondOK(c, http.StatusCreated, order)
}

// ListOrders handles GET /api/v1/orders - customers see their own orders, staff see all
// Query parameters: status, payment_status, order_type, customer_id, from, to (RFC3339), page, limit
func ListOrders(c *gin.Context) {
	user, err := middleware.GetCurrentUser(c)
	if err != nil {
		respondError(c, http.StatusUnauthorized, "UNAUTHORIZED", "Could not extract user information")
		return
	}
	e, ok := engine(c)
	if !ok {
		return
	}

	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	if page < 1 {
		page = 1
	}
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "20"))
	if limit < 1 || limit > 100 {
		limit = 20
	}

	filter := services.OrderFilter{Limit: limit, Offset: (page - 1) * limit}
	if status := c.Query("status"); status != "" {
		s := models.OrderStatus(status)
		if !s.IsValid() {
			respondError(c, http.StatusBadRequest, "VALIDATION_ERROR", "Unknown order status: "+status)
			return
		}
		filter.Status = &s
	}
	if status := c.Query("payment_status"); status != "" {
		s := models.PaymentStatus(status)
		if !s.IsValid() {
			respondError(c, http.StatusBadRequest, "VALIDATION_ERROR", "Unknown payment status: "+status)
			return
		}
		filter.PaymentStatus = &s
	}
	if orderType := c.Query("order_type"); orderType != "" {
		t := models.OrderType(orderType)
		if !t.IsValid() {
			respondError(c, http.StatusBadRequest, "VALIDATION_ERROR", "Unknown order type: "+orderType)
			return
		}
		filter.OrderType = &t
	}
	for _, bound := range []struct {
		param string
		dest  **time.Time
	}{{"from", &filter.From}, {"to", &filter.To}} {
		if raw := c.Query(bound.param); raw != "" {
			parsed, err := time.Parse(time.RFC3339, raw)
			if err != nil {
				respondError(c, http.StatusBadRequest, "VALIDATION_ERROR", "Invalid "+bound.param+" timestamp, expected RFC3339")
				return
			}
			*bound.dest = &parsed
		}
	}

	if user.IsStaff() {
		if raw := c.Query("customer_id"); raw != "" {
			id, err := strconv.ParseUint(raw, 10, 64)
			if err != nil {
				respondError(c, http.StatusBadRequest, "VALIDATION_ERROR", "Invalid customer_id")
				return
			}
			customerID := uint(id)
			filter.CustomerID = &customerID
		}
	} else {
		customerID := user.ID
		filter.CustomerID = &customerID
	}

	orders, total, err := e.Orders.ListOrders(c.Request.Context(), filter)
	if err != nil {
		respondEngineError(c, err)
		return
	}

	totalPages := int((total + int64(limit) - 1) / int64(limit))
	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"data":    orders,
		"pagination": gin.H{
			"page":        page,
			"limit":       limit,
			"total":       total,
			"total_pages": totalPages,
		},
	})
}

// loadVisibleOrder loads an order and enforces that customers only see their own
func loadVisibleOrder(c *gin.Context, e *services.Engine) (*models.Order, *models.User, bool) {
	user, err := middleware.GetCurrentUser(c)
	if err != nil {
		respondError(c, http.StatusUnauthorized, "UNAUTHORIZED", "Could not extract user information")
		return nil, nil, false
	}
	orderID, ok := parseIDParam(c, "id")
	if !ok {
		return nil, nil, false
	}

	order, err := e.Orders.GetOrder(c.Request.Context(), orderID)
	if err != nil {
		respondEngineError(c, err)
		return nil, nil, false
	}
	if !canSeeOrder(user, order) {
		respondError(c, http.StatusForbidden, "FORBIDDEN", "You do not have permission to access this order")
		return nil, nil, false
	}
	return order, user, true
}

func canSeeOrder(user *models.User, order *models.Order) bool {
	if user.IsStaff() {
		return true
	}
	return order.CustomerID != nil && *order.CustomerID == user.ID
}

// GetOrder handles GET /api/v1/orders/:id
func GetOrder(c *gin.Context) {
	e, ok := engine(c)
	if !ok {
		return
	}
	order, _, ok := loadVisibleOrder(c, e)
	if !ok {
		return
	}
	respondOK(c, http.StatusOK, order)
}

// GetOrderByNumber handles GET /api/v1/orders/number/:number
func GetOrderByNumber(c *gin.Context) {
	user, err := middleware.GetCurrentUser(c)
	if err != nil {
		respondError(c, http.StatusUnauthorized, "UNAUTHORIZED", "Could not extract user information")
		return
	}
	e, ok := engine(c)
	if !ok {
		return
	}

	order, err := e.Orders.GetOrderByNumber(c.Request.Context(), c.Param("number"))
	if err != nil {
		respondEngineError(c, err)
		return
	}
	if !canSeeOrder(user, order) {
		respondError(c, http.StatusForbidden, "FORBIDDEN", "You do not have permission to access this order")
		return
	}
	respondOK(c, http.StatusOK, order)
}

// GetOrderHistory handles GET /api/v1/orders/:id/history
func GetOrderHistory(c *gin.Context) {
	e, ok := engine(c)
	if !ok {
		return
	}
	order, _, ok := loadVisibleOrder(c, e)
	if !ok {
		return
	}

	history, err := e.Orders.History(c.Request.Context(), order.ID)
	if err != nil {
		respondEngineError(c, err)
		return
	}
	respondOK(c, http.StatusOK, history)
}

// TransitionOrder handles POST /api/v1/orders/:id/transition (staff)
func TransitionOrder(c *gin.Context) {
	e, ok := engine(c)
	if !ok {
		return
	}
	orderID, ok := parseIDParam(c, "id")
	if !ok {
		return
	}

	var body TransitionBody
	if err := c.ShouldBindJSON(&body); err != nil {
		respondBindError(c, err)
		return
	}

	result, err := e.Orders.Transition(c.Request.Context(), orderID, body.Status, actorName(c), body.Notes)
	if err != nil {
		respondEngineError(c, err)
		return
	}
	respondOK(c, http.StatusOK, result)
}

// CancelOrder handles POST /api/v1/orders/:id/cancel.
// Customers may cancel their own orders while they are still pending.
func CancelOrder(c *gin.Context) {
	e, ok := engine(c)
	if !ok {
		return
	}
	order, user, ok := loadVisibleOrder(c, e)
	if !ok {
		return
	}
	if !user.IsStaff() && order.Status != models.OrderStatusPending {
		respondError(c, http.StatusForbidden, "FORBIDDEN", "Only pending orders can be cancelled by the customer")
		return
	}

	var body ReasonBody
	if err := c.ShouldBindJSON(&body); err != nil {
		respondBindError(c, err)
		return
	}

	result, err := e.Orders.Cancel(c.Request.Context(), order.ID, body.Reason, actorName(c))
	if err != nil {
		respondEngineError(c, err)
		return
	}
	respondOK(c, http.StatusOK, result)
}

// ReportDelay handles POST /api/v1/orders/:id/delay (staff)
func ReportDelay(c *gin.Context) {
	e, ok := engine(c)
	if !ok {
		return
	}
	orderID, ok := parseIDParam(c, "id")
	if !ok {
		return
	}

	var body DelayBody
	if err := c.ShouldBindJSON(&body); err != nil {
		respondBindError(c, err)
		return
	}

	result, err := e.Orders.ReportDelay(c.Request.Context(), orderID, body.Minutes, body.Reason, actorName(c))
	if err != nil {
		respondEngineError(c, err)
		return
	}
	respondOK(c, http.StatusOK, result)
}

// ApproveDelay handles POST /api/v1/orders/:id/delay/approve - the customer accepts the new estimate
func ApproveDelay(c *gin.Context) {
	e, ok := engine(c)
	if !ok {
		return
	}
	order, _, ok := loadVisibleOrder(c, e)
	if !ok {
		return
	}

	result, err := e.Orders.ApproveDelay(c.Request.Context(), order.ID, actorName(c))
	if err != nil {
		respondEngineError(c, err)
		return
	}
	respondOK(c, http.StatusOK, result)
}

// RejectDelay handles POST /api/v1/orders/:id/delay/reject - the customer declines and the order is cancelled
func RejectDelay(c *gin.Context) {
	e, ok := engine(c)
	if !ok {
		return
	}
	order, _, ok := loadVisibleOrder(c, e)
	if !ok {
		return
	}

	var body ReasonBody
	if err := c.ShouldBindJSON(&body); err != nil {
		respondBindError(c, err)
		return
	}

	result, err := e.Orders.RejectDelay(c.Request.Context(), order.ID, actorName(c), body.Reason)
	if err != nil {
		respondEngineError(c, err)
		return
	}
	respondOK(c, http.StatusOK, result)
}

// ArchiveOrder handles DELETE /api/v1/orders/:id (admin) - soft-deletes a finished order
func ArchiveOrder(c *gin.Context) {
	e, ok := engine(c)
	if !ok {
		return
	}
	orderID, ok := parseIDParam(c, "id")
	if !ok {
		return
	}

	if err := e.Orders.ArchiveOrder(c.Request.Context(), orderID, actorName(c)); err != nil {
		respondEngineError(c, err)
		return
	}
	respondOK(c, http.StatusOK, gin.H{"id": orderID, "archived": true})
}
