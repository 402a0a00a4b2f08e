package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/kendall-kelly/bistro-api/models"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// OrderNumberGenerator hands out unique, human-readable order numbers
type OrderNumberGenerator struct {
	node *snowflake.Node
}

// NewOrderNumberGenerator creates a generator for the given snowflake node (0-1023)
func NewOrderNumberGenerator(nodeID int64) (*OrderNumberGenerator, error) {
	node, err := snowflake.NewNode(nodeID)
	if err != nil {
		return nil, fmt.Errorf("failed to create order number node: %w", err)
	}
	return &OrderNumberGenerator{node: node}, nil
}

// Next returns a new order number such as ORD-1A2B3C4D5E6F
func (g *OrderNumberGenerator) Next() string {
	return "ORD-" + strings.ToUpper(g.node.Generate().Base36())
}

// BasketItem is one line of the finalized basket handed over by the catalog.
// UnitPrice already includes customization and side-item surcharges; sub-items
// are combo components recorded for the kitchen and are not priced on their own.
type BasketItem struct {
	ProductID      *uint           `json:"product_id"`
	VariationID    *uint           `json:"variation_id"`
	ProductName    string          `json:"product_name"`
	VariationName  *string         `json:"variation_name"`
	Quantity       int             `json:"quantity"`
	UnitPrice      decimal.Decimal `json:"unit_price"`
	Customizations datatypes.JSON  `json:"customizations"`
	Notes          *string         `json:"notes"`
	SubItems       []BasketItem    `json:"sub_items"`
}

// PlaceOrderRequest is everything needed to price and create an order
type PlaceOrderRequest struct {
	CustomerID      *uint
	CustomerName    string
	CustomerEmail   *string
	CustomerPhone   *string
	OrderType       models.OrderType
	TableNumber     *int
	DeliveryAddress *string
	Notes           *string
	Items           []BasketItem
	Tip             decimal.Decimal
	PromoCode       string
	RedeemPoints    int
	PlacedBy        string
}

// Quote is a priced preview of an order. Producing one never writes.
type Quote struct {
	PriceBreakdown
	DiscountSource DiscountSource   `json:"discount_source"`
	Decision       DiscountDecision `json:"discount_decision"`
	PointsRedeemed int              `json:"points_redeemed"`
	PointsToEarn   int              `json:"points_to_earn"`
	EarningRule    *string          `json:"earning_rule,omitempty"`
	PromoWarning   *string          `json:"promo_warning,omitempty"`
}

// OrderFilter narrows ListOrders
type OrderFilter struct {
	CustomerID    *uint
	Status        *models.OrderStatus
	PaymentStatus *models.PaymentStatus
	OrderType     *models.OrderType
	From          *time.Time
	To            *time.Time
	Limit         int
	Offset        int
}

// OrderServiceOptions configures pricing and placement behavior
type OrderServiceOptions struct {
	TaxRate            decimal.Decimal
	DeliveryFee        decimal.Decimal
	TaxPolicy          TaxPolicy
	RejectInvalidPromo bool
	Retry              RetryPolicy
}

// OrderService is the order aggregate: placement, reads, status transitions and
// the kitchen focus queue all go through it
type OrderService struct {
	db         *gorm.DB
	logger     *zap.Logger
	opts       OrderServiceOptions
	calculator Calculator
	discounts  *DiscountResolver
	fidelity   *FidelityLedger
	notifier   Notifier
	numbers    *OrderNumberGenerator
	now        func() time.Time
}

// NewOrderService wires the aggregate to its collaborators
func NewOrderService(db *gorm.DB, logger *zap.Logger, opts OrderServiceOptions, discounts *DiscountResolver, fidelity *FidelityLedger, notifier Notifier, numbers *OrderNumberGenerator) *OrderService {
	if notifier == nil {
		notifier = NewLogNotifier(logger)
	}
	return &OrderService{
		db:         db,
		logger:     logger,
		opts:       opts,
		calculator: NewCalculator(opts.TaxPolicy),
		discounts:  discounts,
		fidelity:   fidelity,
		notifier:   notifier,
		numbers:    numbers,
		now:        time.Now,
	}
}

func validateBasket(items []BasketItem) error {
	if len(items) == 0 {
		return validationError("order must contain at least one item")
	}
	for i, item := range items {
		if err := validateBasketItem(item, fmt.Sprintf("item %d", i+1)); err != nil {
			return err
		}
		for j, sub := range item.SubItems {
			label := fmt.Sprintf("item %d sub-item %d", i+1, j+1)
			if err := validateBasketItem(sub, label); err != nil {
				return err
			}
			if len(sub.SubItems) > 0 {
				return validationError("%s: sub-items cannot have sub-items", label)
			}
		}
	}
	return nil
}

func validateBasketItem(item BasketItem, label string) error {
	if strings.TrimSpace(item.ProductName) == "" {
		return validationError("%s: product name is required", label)
	}
	if item.Quantity < 1 {
		return validationError("%s: quantity must be at least 1", label)
	}
	if item.UnitPrice.IsNegative() {
		return validationError("%s: unit price must not be negative", label)
	}
	return nil
}

func validatePlaceOrder(req PlaceOrderRequest) error {
	if err := validateBasket(req.Items); err != nil {
		return err
	}
	if !req.OrderType.IsValid() {
		return validationError("order type must be dine_in, takeaway or delivery")
	}
	if req.OrderType == models.OrderTypeDineIn && (req.TableNumber == nil || *req.TableNumber < 1) {
		return validationError("dine-in orders require a table number")
	}
	if req.OrderType == models.OrderTypeDelivery && (req.DeliveryAddress == nil || strings.TrimSpace(*req.DeliveryAddress) == "") {
		return validationError("delivery orders require a delivery address")
	}
	if req.Tip.IsNegative() {
		return validationError("tip must not be negative")
	}
	if req.RedeemPoints < 0 {
		return validationError("points to redeem must not be negative")
	}
	if req.RedeemPoints > 0 && req.CustomerID == nil {
		return validationError("only registered customers can redeem points")
	}
	if req.CustomerID == nil && strings.TrimSpace(req.CustomerName) == "" {
		return validationError("customer name is required")
	}
	return nil
}

func pricedLines(items []BasketItem) []PricedLine {
	lines := make([]PricedLine, 0, len(items))
	for _, item := range items {
		lines = append(lines, PricedLine{Quantity: item.Quantity, UnitPrice: item.UnitPrice})
	}
	return lines
}

// PreviewOrder prices a basket without writing anything
func (s *OrderService) PreviewOrder(ctx context.Context, req PlaceOrderRequest) (*Quote, error) {
	if err := validatePlaceOrder(req); err != nil {
		return nil, err
	}
	db := s.db.WithContext(ctx)
	if req.CustomerID != nil {
		if _, err := loadCustomer(db, *req.CustomerID); err != nil {
			return nil, err
		}
	}
	quote, err := s.quote(db, req)
	if err != nil {
		return nil, err
	}
	if req.RedeemPoints > 0 {
		totals, err := ledgerTotals(db, *req.CustomerID)
		if err != nil {
			return nil, err
		}
		if req.RedeemPoints > totals.CurrentPoints {
			return nil, &EngineError{
				Kind:    KindBusinessRule,
				Code:    CodeInsufficientPoints,
				Message: fmt.Sprintf("cannot redeem %d points, only %d available", req.RedeemPoints, totals.CurrentPoints),
			}
		}
	}
	return quote, nil
}

func (s *OrderService) quote(tx *gorm.DB, req PlaceOrderRequest) (*Quote, error) {
	lines := pricedLines(req.Items)
	subTotal := SubTotal(lines)

	decision, err := s.discounts.resolve(tx, req.CustomerID, subTotal, req.PromoCode)
	var promoWarning *string
	if err != nil {
		if !errors.Is(err, ErrInvalidPromo) || s.opts.RejectInvalidPromo {
			return nil, err
		}
		msg := err.Error()
		promoWarning = &msg
		s.logger.Info("ignoring invalid promo code", zap.String("promo_code", req.PromoCode))
	}

	pointsValue := decimal.Zero
	if req.RedeemPoints > 0 {
		pointsValue = s.fidelity.PointsValue(req.RedeemPoints)
	}
	if decision.Amount.Add(pointsValue).GreaterThan(subTotal) {
		return nil, businessError(CodeRedemptionExceeds,
			"discounts of %s exceed the subtotal of %s",
			decision.Amount.Add(pointsValue).StringFixed(currencyPlaces), subTotal.StringFixed(currencyPlaces))
	}

	in := PricingInput{
		Items:            lines,
		TaxRate:          s.opts.TaxRate,
		Tip:              req.Tip,
		FidelityDiscount: pointsValue,
		DeliveryFee:      decimal.Zero,
		Discount:         decimal.Zero,
		CustomerDiscount: decimal.Zero,
	}
	if req.OrderType == models.OrderTypeDelivery {
		in.DeliveryFee = s.opts.DeliveryFee
	}
	switch decision.Source {
	case DiscountSourceCustomerRule:
		in.CustomerDiscount = decision.Amount
	case DiscountSourcePromoCode:
		in.Discount = decision.Amount
	}
	if err := ValidatePricingInput(in); err != nil {
		return nil, err
	}

	breakdown := s.calculator.Compute(in)
	if breakdown.Floored {
		s.logger.Error("order total went negative before clamping",
			zap.String("sub_total", breakdown.SubTotal.String()),
			zap.String("discount", in.Discount.String()),
			zap.String("customer_discount", in.CustomerDiscount.String()),
			zap.String("fidelity_discount", in.FidelityDiscount.String()),
		)
		return nil, consistencyError("computed order total is negative")
	}

	quote := &Quote{
		PriceBreakdown: breakdown,
		DiscountSource: decision.Source,
		Decision:       decision,
		PointsRedeemed: req.RedeemPoints,
		PromoWarning:   promoWarning,
	}
	if req.CustomerID != nil {
		rule, err := findEarningRule(tx, breakdown.SubTotal.Add(breakdown.Tax).Add(breakdown.DeliveryFee))
		if err != nil {
			return nil, err
		}
		if rule != nil {
			quote.PointsToEarn = rule.PointsAwarded
			quote.EarningRule = &rule.Name
		}
	}
	return quote, nil
}

// PlaceOrder prices the basket, redeems points and creates the order with its
// items and first history row in one transaction
func (s *OrderService) PlaceOrder(ctx context.Context, req PlaceOrderRequest) (*models.Order, error) {
	if err := validatePlaceOrder(req); err != nil {
		return nil, err
	}
	placedBy := req.PlacedBy
	if placedBy == "" {
		placedBy = "system"
	}

	var order models.Order
	err := s.opts.Retry.inTransaction(ctx, s.db, s.logger, "place_order", func(tx *gorm.DB) error {
		contact := models.ContactInfo{Name: strings.TrimSpace(req.CustomerName), Email: req.CustomerEmail, Phone: req.CustomerPhone}
		if req.CustomerID != nil {
			customer, err := loadCustomer(tx, *req.CustomerID)
			if err != nil {
				return err
			}
			if contact.Name == "" {
				contact.Name = customer.Name
			}
			if contact.Email == nil {
				email := customer.Email
				contact.Email = &email
			}
			if contact.Phone == nil {
				contact.Phone = customer.Phone
			}
		}

		quote, err := s.quote(tx, req)
		if err != nil {
			return err
		}
		if err := s.discounts.reserveUsage(tx, quote.Decision); err != nil {
			return err
		}

		now := s.now()
		order = models.Order{
			OrderNumber:            s.numbers.Next(),
			CustomerID:             req.CustomerID,
			CustomerName:           contact.Name,
			CustomerEmail:          contact.Email,
			CustomerPhone:          contact.Phone,
			OrderType:              req.OrderType,
			TableNumber:            req.TableNumber,
			DeliveryAddress:        req.DeliveryAddress,
			Notes:                  req.Notes,
			SubTotal:               quote.SubTotal,
			TaxRate:                s.opts.TaxRate,
			Tax:                    quote.Tax,
			DeliveryFee:            quote.DeliveryFee,
			Discount:               quote.Discount,
			DiscountPercentage:     quote.Decision.Percentage,
			FidelityPointsDiscount: quote.FidelityPointsDiscount,
			CustomerDiscountAmount: quote.CustomerDiscountAmount,
			Tip:                    quote.Tip,
			Total:                  quote.Total,
			TotalPaid:              decimal.Zero,
			RemainingAmount:        quote.Total,
			OverpaidAmount:         decimal.Zero,
			DiscountSource:         string(quote.DiscountSource),
			AppliedDiscountRuleID:  quote.Decision.RuleID,
			PromoCode:              quote.Decision.PromoCode,
			FidelityPointsRedeemed: req.RedeemPoints,
			Status:                 models.OrderStatusPending,
			PaymentStatus:          Reconcile(quote.Total, nil).PaymentStatus,
			OrderDate:              now,
		}
		if err := checkOrderInvariants(s.logger, &order); err != nil {
			return err
		}
		if err := tx.Omit(clause.Associations).Create(&order).Error; err != nil {
			return err
		}

		if err := createOrderItems(tx, order.ID, req.Items); err != nil {
			return err
		}

		if req.RedeemPoints > 0 {
			if err := s.fidelity.redeemPoints(tx, *req.CustomerID, req.RedeemPoints, &order.ID); err != nil {
				return err
			}
		}

		history := models.OrderStatusHistory{
			OrderID:    order.ID,
			FromStatus: models.OrderStatusCreated,
			ToStatus:   models.OrderStatusPending,
			ChangedBy:  placedBy,
			ChangedAt:  now,
		}
		return tx.Create(&history).Error
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("order placed",
		zap.Uint("order_id", order.ID),
		zap.String("order_number", order.OrderNumber),
		zap.String("total", order.Total.StringFixed(currencyPlaces)),
		zap.String("discount_source", order.DiscountSource),
	)
	s.publish(ctx, newOrderEvent(EventOrderCreated, &order, models.OrderStatusCreated))

	return s.GetOrder(ctx, order.ID)
}

func createOrderItems(tx *gorm.DB, orderID uint, items []BasketItem) error {
	for _, item := range items {
		parent := snapshotItem(orderID, nil, item)
		if err := tx.Create(&parent).Error; err != nil {
			return err
		}
		for _, sub := range item.SubItems {
			child := snapshotItem(orderID, &parent.ID, sub)
			if err := tx.Create(&child).Error; err != nil {
				return err
			}
		}
	}
	return nil
}

func snapshotItem(orderID uint, parentID *uint, item BasketItem) models.OrderItem {
	return models.OrderItem{
		OrderID:        orderID,
		ParentItemID:   parentID,
		ProductID:      item.ProductID,
		VariationID:    item.VariationID,
		ProductName:    strings.TrimSpace(item.ProductName),
		VariationName:  item.VariationName,
		UnitPrice:      item.UnitPrice,
		Quantity:       item.Quantity,
		LineTotal:      item.UnitPrice.Mul(decimal.NewFromInt(int64(item.Quantity))),
		Customizations: item.Customizations,
		Notes:          item.Notes,
	}
}

// GetOrder loads an order with its items, payments and history
func (s *OrderService) GetOrder(ctx context.Context, orderID uint) (*models.Order, error) {
	var order models.Order
	if err := withOrderDetails(s.db.WithContext(ctx)).First(&order, orderID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, notFoundError(CodeOrderNotFound, "order %d not found", orderID)
		}
		return nil, err
	}
	return &order, nil
}

// GetOrderByNumber loads an order by its order number
func (s *OrderService) GetOrderByNumber(ctx context.Context, orderNumber string) (*models.Order, error) {
	var order models.Order
	err := withOrderDetails(s.db.WithContext(ctx)).
		Where("order_number = ?", strings.ToUpper(strings.TrimSpace(orderNumber))).
		First(&order).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, notFoundError(CodeOrderNotFound, "order %s not found", orderNumber)
		}
		return nil, err
	}
	return &order, nil
}

// ListOrders returns a page of orders, newest first, and the total match count
func (s *OrderService) ListOrders(ctx context.Context, filter OrderFilter) ([]models.Order, int64, error) {
	query := s.db.WithContext(ctx).Model(&models.Order{})
	if filter.CustomerID != nil {
		query = query.Where("customer_id = ?", *filter.CustomerID)
	}
	if filter.Status != nil {
		query = query.Where("status = ?", *filter.Status)
	}
	if filter.PaymentStatus != nil {
		query = query.Where("payment_status = ?", *filter.PaymentStatus)
	}
	if filter.OrderType != nil {
		query = query.Where("order_type = ?", *filter.OrderType)
	}
	if filter.From != nil {
		query = query.Where("order_date >= ?", *filter.From)
	}
	if filter.To != nil {
		query = query.Where("order_date <= ?", *filter.To)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	limit := filter.Limit
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	offset := filter.Offset
	if offset < 0 {
		offset = 0
	}

	var orders []models.Order
	if err := query.Preload("Items", topLevelItems).
		Order("order_date desc, id desc").
		Limit(limit).
		Offset(offset).
		Find(&orders).Error; err != nil {
		return nil, 0, err
	}
	return orders, total, nil
}

// History returns the order's status history in the order it happened
func (s *OrderService) History(ctx context.Context, orderID uint) ([]models.OrderStatusHistory, error) {
	db := s.db.WithContext(ctx)
	if _, err := loadOrder(db, orderID); err != nil {
		return nil, err
	}
	var history []models.OrderStatusHistory
	err := db.Where("order_id = ?", orderID).Order("changed_at asc, id asc").Find(&history).Error
	return history, err
}

// ArchiveOrder soft-deletes a completed or cancelled order
func (s *OrderService) ArchiveOrder(ctx context.Context, orderID uint, archivedBy string) error {
	err := s.opts.Retry.inTransaction(ctx, s.db, s.logger, "archive_order", func(tx *gorm.DB) error {
		order, err := loadOrder(tx, orderID)
		if err != nil {
			return err
		}
		if !order.Status.IsTerminal() {
			return businessError(CodeArchiveNotAllowed, "order %s is %s, only completed or cancelled orders can be archived", order.OrderNumber, order.Status)
		}
		result := tx.Where("version = ?", order.Version).Delete(&models.Order{}, order.ID)
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			return errVersionConflict
		}
		return nil
	})
	if err != nil {
		return err
	}
	s.logger.Info("order archived", zap.Uint("order_id", orderID), zap.String("archived_by", archivedBy))
	return nil
}

func topLevelItems(db *gorm.DB) *gorm.DB {
	return db.Where("parent_item_id IS NULL").Order("id asc")
}

func withOrderDetails(db *gorm.DB) *gorm.DB {
	return db.
		Preload("Items", topLevelItems).
		Preload("Items.SubItems", func(db *gorm.DB) *gorm.DB { return db.Order("id asc") }).
		Preload("Payments", func(db *gorm.DB) *gorm.DB { return db.Order("id asc") }).
		Preload("StatusHistory", func(db *gorm.DB) *gorm.DB { return db.Order("changed_at asc, id asc") })
}

func loadOrder(tx *gorm.DB, orderID uint) (*models.Order, error) {
	var order models.Order
	if err := tx.First(&order, orderID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, notFoundError(CodeOrderNotFound, "order %d not found", orderID)
		}
		return nil, err
	}
	return &order, nil
}

func loadCustomer(tx *gorm.DB, customerID uint) (*models.User, error) {
	var customer models.User
	if err := tx.First(&customer, customerID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, notFoundError(CodeCustomerNotFound, "customer %d not found", customerID)
		}
		return nil, err
	}
	return &customer, nil
}

// checkOrderInvariants verifies the monetary invariants before an order is written
func checkOrderInvariants(logger *zap.Logger, order *models.Order) error {
	expected := expectedTotal(order.SubTotal, order.Tax, order.DeliveryFee, order.Tip,
		order.Discount, order.FidelityPointsDiscount, order.CustomerDiscountAmount)
	if !order.Total.Equal(expected) {
		logger.Error("order total invariant breached",
			zap.Uint("order_id", order.ID),
			zap.String("total", order.Total.String()),
			zap.String("expected", expected.String()),
		)
		return consistencyError("order total %s does not match its components (%s)", order.Total, expected)
	}

	if order.TotalPaid.IsNegative() || order.TotalPaid.GreaterThan(order.Total) {
		logger.Error("order total paid out of range",
			zap.Uint("order_id", order.ID),
			zap.String("total", order.Total.String()),
			zap.String("total_paid", order.TotalPaid.String()),
		)
		return consistencyError("total paid %s is outside [0, %s]", order.TotalPaid, order.Total)
	}

	remaining := decimal.Max(order.Total.Sub(order.TotalPaid), decimal.Zero)
	if !order.RemainingAmount.Equal(remaining) {
		logger.Error("order remaining amount invariant breached",
			zap.Uint("order_id", order.ID),
			zap.String("remaining", order.RemainingAmount.String()),
			zap.String("expected", remaining.String()),
		)
		return consistencyError("remaining amount %s does not match total minus paid (%s)", order.RemainingAmount, remaining)
	}
	return nil
}
