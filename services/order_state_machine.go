package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/kendall-kelly/bistro-api/models"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// TransitionResult is what an accepted status transition produced
type TransitionResult struct {
	Order         *models.Order             `json:"order"`
	History       models.OrderStatusHistory `json:"history"`
	PointsAwarded int                       `json:"points_awarded"`
}

// transitionSpec carries the optional extras of a transition. guard runs inside
// the transaction against the order's current status.
type transitionSpec struct {
	to        models.OrderStatus
	changedBy string
	notes     *string
	updates   map[string]interface{}
	guard     func(from models.OrderStatus) error
}

// onlyFrom refuses the transition unless the order is currently in status
func onlyFrom(status models.OrderStatus, action string) func(models.OrderStatus) error {
	return func(from models.OrderStatus) error {
		if from != status {
			return businessError(CodeInvalidTransition, "order is %s, only %s orders can %s", from, status, action)
		}
		return nil
	}
}

// notFromDelayed keeps delayed orders waiting for the customer's answer
func notFromDelayed(from models.OrderStatus) error {
	if from == models.OrderStatusDelayed {
		return businessError(CodeInvalidTransition, "delayed orders return to confirmed only when the customer approves the delay")
	}
	return nil
}

// Transition moves an order to a new status. Cancelling requires notes, which
// become the cancellation reason; delays go through ReportDelay and are answered
// through ApproveDelay or RejectDelay.
func (s *OrderService) Transition(ctx context.Context, orderID uint, to models.OrderStatus, changedBy, notes string) (*TransitionResult, error) {
	if !to.IsValid() {
		return nil, validationError("unknown order status %q", to)
	}
	switch to {
	case models.OrderStatusCancelled:
		return s.Cancel(ctx, orderID, notes, changedBy)
	case models.OrderStatusDelayed:
		return nil, validationError("delays need minutes and a reason, report them through the delay endpoint")
	}
	spec := transitionSpec{to: to, changedBy: changedBy, notes: optionalString(notes)}
	if to == models.OrderStatusConfirmed {
		spec.guard = notFromDelayed
	}
	return s.transition(ctx, orderID, spec)
}

// Cancel cancels an order from any non-terminal state. It never refunds payments.
// Redeemed fidelity points are given back and points the order earned are taken back.
func (s *OrderService) Cancel(ctx context.Context, orderID uint, reason, changedBy string) (*TransitionResult, error) {
	reason = strings.TrimSpace(reason)
	if reason == "" {
		return nil, validationError("cancellation reason is required")
	}
	return s.transition(ctx, orderID, cancellation(reason, changedBy))
}

func cancellation(reason, changedBy string) transitionSpec {
	return transitionSpec{
		to:        models.OrderStatusCancelled,
		changedBy: changedBy,
		notes:     &reason,
		updates:   map[string]interface{}{"cancellation_reason": reason},
	}
}

// ReportDelay puts a confirmed order on hold until the customer accepts the new estimate
func (s *OrderService) ReportDelay(ctx context.Context, orderID uint, minutes int, reason, changedBy string) (*TransitionResult, error) {
	reason = strings.TrimSpace(reason)
	if minutes < 1 {
		return nil, validationError("delay must be at least one minute")
	}
	if reason == "" {
		return nil, validationError("delay reason is required")
	}
	notes := fmt.Sprintf("delayed %d minutes: %s", minutes, reason)
	return s.transition(ctx, orderID, transitionSpec{
		to:        models.OrderStatusDelayed,
		changedBy: changedBy,
		notes:     &notes,
		updates: map[string]interface{}{
			"delay_minutes":      minutes,
			"delay_reason":       reason,
			"estimated_ready_at": s.now().Add(time.Duration(minutes) * time.Minute),
		},
	})
}

// ApproveDelay records the customer's acceptance and returns the order to Confirmed
func (s *OrderService) ApproveDelay(ctx context.Context, orderID uint, changedBy string) (*TransitionResult, error) {
	notes := "delay approved by customer"
	return s.transition(ctx, orderID, transitionSpec{
		to:        models.OrderStatusConfirmed,
		changedBy: changedBy,
		notes:     &notes,
		guard:     onlyFrom(models.OrderStatusDelayed, "have their delay approved"),
	})
}

// RejectDelay cancels a delayed order on the customer's behalf
func (s *OrderService) RejectDelay(ctx context.Context, orderID uint, changedBy, reason string) (*TransitionResult, error) {
	reason = strings.TrimSpace(reason)
	if reason == "" {
		reason = "delay rejected by customer"
	}
	spec := cancellation(reason, changedBy)
	spec.guard = onlyFrom(models.OrderStatusDelayed, "have their delay rejected")
	return s.transition(ctx, orderID, spec)
}

func (s *OrderService) transition(ctx context.Context, orderID uint, spec transitionSpec) (*TransitionResult, error) {
	if strings.TrimSpace(spec.changedBy) == "" {
		spec.changedBy = "system"
	}

	var result TransitionResult
	var previous models.OrderStatus
	err := s.opts.Retry.inTransaction(ctx, s.db, s.logger, "transition_order", func(tx *gorm.DB) error {
		order, err := loadOrder(tx, orderID)
		if err != nil {
			return err
		}
		if spec.guard != nil {
			if err := spec.guard(order.Status); err != nil {
				return err
			}
		}
		if !order.Status.CanTransitionTo(spec.to) {
			return &EngineError{
				Kind:    KindBusinessRule,
				Code:    CodeInvalidTransition,
				Message: fmt.Sprintf("cannot move order from %s to %s", order.Status, spec.to),
			}
		}
		previous = order.Status

		now := s.now()
		updates := map[string]interface{}{"status": spec.to}
		for k, v := range spec.updates {
			updates[k] = v
		}

		pointsAwarded := 0
		switch spec.to {
		case models.OrderStatusConfirmed:
			if order.Status == models.OrderStatusPending {
				updates["confirmed_at"] = now
				pointsAwarded, err = s.awardOnConfirm(tx, order)
				if err != nil {
					return err
				}
			}
		case models.OrderStatusCompleted:
			updates["completed_at"] = now
			if err := s.discounts.consumeUsage(tx, order); err != nil {
				return err
			}
		case models.OrderStatusCancelled:
			updates["cancelled_at"] = now
			if err := s.fidelity.restoreRedeemedPoints(tx, order); err != nil {
				return err
			}
			if err := s.fidelity.reverseEarnedPoints(tx, order); err != nil {
				return err
			}
		}

		if err := updateVersioned(tx, &models.Order{}, order.ID, order.Version, updates); err != nil {
			return err
		}

		history := models.OrderStatusHistory{
			OrderID:    order.ID,
			FromStatus: order.Status,
			ToStatus:   spec.to,
			ChangedBy:  spec.changedBy,
			ChangedAt:  now,
			Notes:      spec.notes,
		}
		if err := tx.Create(&history).Error; err != nil {
			return err
		}

		result.History = history
		result.PointsAwarded = pointsAwarded
		return nil
	})
	if err != nil {
		return nil, err
	}

	order, err := s.GetOrder(ctx, orderID)
	if err != nil {
		return nil, err
	}
	result.Order = order

	s.logger.Info("order status changed",
		zap.Uint("order_id", order.ID),
		zap.String("order_number", order.OrderNumber),
		zap.String("from", string(previous)),
		zap.String("to", string(order.Status)),
		zap.String("changed_by", spec.changedBy),
	)
	s.publish(ctx, newOrderEvent(EventOrderStatusChanged, order, previous))
	return &result, nil
}

// awardOnConfirm credits points on the gross total. Earning is idempotent per order.
func (s *OrderService) awardOnConfirm(tx *gorm.DB, order *models.Order) (int, error) {
	if order.CustomerID == nil {
		return 0, nil
	}
	points, err := s.fidelity.awardPoints(tx, *order.CustomerID, order.ID, order.GrossTotal())
	if errors.Is(err, ErrPointsAlreadyAwarded) {
		s.logger.Warn("points already awarded for order", zap.Uint("order_id", order.ID))
		return 0, nil
	}
	return points, err
}

func optionalString(value string) *string {
	value = strings.TrimSpace(value)
	if value == "" {
		return nil
	}
	return &value
}
