package services

import (
	"context"
	"sort"
	"strings"

	"github.com/kendall-kelly/bistro-api/models"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// kitchenStatuses are the statuses that appear in the kitchen queue
var kitchenStatuses = []models.OrderStatus{
	models.OrderStatusConfirmed,
	models.OrderStatusPreparing,
	models.OrderStatusDelayed,
}

// KitchenLess orders focus orders first, then by priority (lower first, unset
// last), then oldest first, then by ID
func KitchenLess(a, b models.Order) bool {
	if a.IsFocusOrder != b.IsFocusOrder {
		return a.IsFocusOrder
	}
	switch {
	case a.Priority != nil && b.Priority == nil:
		return true
	case a.Priority == nil && b.Priority != nil:
		return false
	case a.Priority != nil && b.Priority != nil && *a.Priority != *b.Priority:
		return *a.Priority < *b.Priority
	}
	if !a.OrderDate.Equal(b.OrderDate) {
		return a.OrderDate.Before(b.OrderDate)
	}
	return a.ID < b.ID
}

// SortKitchenQueue sorts orders in place into kitchen execution order
func SortKitchenQueue(orders []models.Order) {
	sort.SliceStable(orders, func(i, j int) bool {
		return KitchenLess(orders[i], orders[j])
	})
}

// KitchenQueue returns the orders the kitchen is working on, in execution order
func (s *OrderService) KitchenQueue(ctx context.Context) ([]models.Order, error) {
	var orders []models.Order
	err := s.db.WithContext(ctx).
		Preload("Items", topLevelItems).
		Preload("Items.SubItems").
		Where("status IN ?", kitchenStatuses).
		Find(&orders).Error
	if err != nil {
		return nil, err
	}
	SortKitchenQueue(orders)
	return orders, nil
}

// SetFocus pulls an order ahead of the normal queue. Status is untouched.
func (s *OrderService) SetFocus(ctx context.Context, orderID uint, priority *int, reason, focusedBy string) (*models.Order, error) {
	reason = strings.TrimSpace(reason)
	if reason == "" {
		return nil, validationError("focus reason is required")
	}
	if priority != nil && *priority < 1 {
		return nil, validationError("priority must be at least 1")
	}
	if strings.TrimSpace(focusedBy) == "" {
		return nil, validationError("focused by is required")
	}

	err := s.opts.Retry.inTransaction(ctx, s.db, s.logger, "set_focus", func(tx *gorm.DB) error {
		order, err := loadOrder(tx, orderID)
		if err != nil {
			return err
		}
		if order.Status.IsTerminal() {
			return businessError(CodeFocusNotAllowed, "order %s is %s and cannot be focused", order.OrderNumber, order.Status)
		}
		return updateVersioned(tx, &models.Order{}, order.ID, order.Version, map[string]interface{}{
			"is_focus_order": true,
			"priority":       priority,
			"focus_reason":   reason,
			"focused_by":     focusedBy,
			"focused_at":     s.now(),
		})
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("order focused",
		zap.Uint("order_id", orderID),
		zap.String("focused_by", focusedBy),
		zap.String("reason", reason),
	)
	return s.GetOrder(ctx, orderID)
}

// ClearFocus returns an order to normal queue ordering
func (s *OrderService) ClearFocus(ctx context.Context, orderID uint) (*models.Order, error) {
	err := s.opts.Retry.inTransaction(ctx, s.db, s.logger, "clear_focus", func(tx *gorm.DB) error {
		order, err := loadOrder(tx, orderID)
		if err != nil {
			return err
		}
		return updateVersioned(tx, &models.Order{}, order.ID, order.Version, map[string]interface{}{
			"is_focus_order": false,
			"priority":       nil,
			"focus_reason":   nil,
			"focused_by":     nil,
			"focused_at":     nil,
		})
	})
	if err != nil {
		return nil, err
	}
	s.logger.Info("order focus cleared", zap.Uint("order_id", orderID))
	return s.GetOrder(ctx, orderID)
}
