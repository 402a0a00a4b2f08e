package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/kendall-kelly/bistro-api/config"
	"github.com/kendall-kelly/bistro-api/models"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// Order event types
const (
	EventOrderCreated       = "order.created"
	EventOrderStatusChanged = "order.status_changed"
)

// OrderEvent is published on order creation and on every status transition.
// Formatting and delivering customer messages is left to the consumers.
type OrderEvent struct {
	EventType       string             `json:"event_type"`
	OrderID         uint               `json:"order_id"`
	OrderNumber     string             `json:"order_number"`
	PreviousStatus  models.OrderStatus `json:"previous_status"`
	NewStatus       models.OrderStatus `json:"new_status"`
	CustomerContact models.ContactInfo `json:"customer_contact"`
	OccurredAt      time.Time          `json:"occurred_at"`
}

func newOrderEvent(eventType string, order *models.Order, previous models.OrderStatus) OrderEvent {
	return OrderEvent{
		EventType:       eventType,
		OrderID:         order.ID,
		OrderNumber:     order.OrderNumber,
		PreviousStatus:  previous,
		NewStatus:       order.Status,
		CustomerContact: order.ContactInfo(),
		OccurredAt:      time.Now().UTC(),
	}
}

// Notifier publishes order events to the notification layer
type Notifier interface {
	Publish(ctx context.Context, event OrderEvent) error
	Close() error
}

// publish sends an event after commit. Failures are logged; the committed
// change stands.
func (s *OrderService) publish(ctx context.Context, event OrderEvent) {
	if err := s.notifier.Publish(ctx, event); err != nil {
		s.logger.Error("failed to publish order event",
			zap.String("event_type", event.EventType),
			zap.String("order_number", event.OrderNumber),
			zap.Error(err),
		)
	}
}

// LogNotifier writes events to the application log
type LogNotifier struct {
	logger *zap.Logger
}

// NewLogNotifier creates a notifier that only logs
func NewLogNotifier(logger *zap.Logger) *LogNotifier {
	return &LogNotifier{logger: logger}
}

// Publish logs the event
func (n *LogNotifier) Publish(ctx context.Context, event OrderEvent) error {
	n.logger.Info("order event",
		zap.String("event_type", event.EventType),
		zap.Uint("order_id", event.OrderID),
		zap.String("order_number", event.OrderNumber),
		zap.String("previous_status", string(event.PreviousStatus)),
		zap.String("new_status", string(event.NewStatus)),
	)
	return nil
}

// Close is a no-op
func (n *LogNotifier) Close() error {
	return nil
}

// MultiNotifier fans an event out to several notifiers concurrently
type MultiNotifier struct {
	notifiers []Notifier
}

// NewMultiNotifier combines notifiers
func NewMultiNotifier(notifiers ...Notifier) *MultiNotifier {
	return &MultiNotifier{notifiers: notifiers}
}

// Publish sends the event to every notifier and returns the first failure
func (m *MultiNotifier) Publish(ctx context.Context, event OrderEvent) error {
	g, ctx := errgroup.WithContext(ctx)
	for _, n := range m.notifiers {
		n := n
		g.Go(func() error {
			return n.Publish(ctx, event)
		})
	}
	return g.Wait()
}

// Close closes every notifier
func (m *MultiNotifier) Close() error {
	var errs []error
	for _, n := range m.notifiers {
		if err := n.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// NewNotifier builds the notifier selected by configuration
func NewNotifier(cfg config.NotifierConfig, logger *zap.Logger) (Notifier, error) {
	switch cfg.Kind {
	case "", "log":
		return NewLogNotifier(logger), nil
	case "rabbitmq":
		return NewRabbitMQNotifier(cfg.RabbitMQURL, cfg.RabbitMQExchange, logger)
	case "kafka":
		return NewKafkaNotifier(cfg.KafkaBrokers, cfg.KafkaOrderTopic, logger)
	case "multi":
		rabbit, err := NewRabbitMQNotifier(cfg.RabbitMQURL, cfg.RabbitMQExchange, logger)
		if err != nil {
			return nil, err
		}
		kafka, err := NewKafkaNotifier(cfg.KafkaBrokers, cfg.KafkaOrderTopic, logger)
		if err != nil {
			_ = rabbit.Close()
			return nil, err
		}
		return NewMultiNotifier(NewLogNotifier(logger), rabbit, kafka), nil
	}
	return nil, fmt.Errorf("unknown notifier kind %q", cfg.Kind)
}
