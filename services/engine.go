package services

import (
	"time"

	"github.com/kendall-kelly/bistro-api/config"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// Engine groups the order lifecycle services that share one database and retry policy
type Engine struct {
	Orders    *OrderService
	Payments  *PaymentLedger
	Fidelity  *FidelityLedger
	Discounts *DiscountResolver
	Notifier  Notifier
}

var engineInstance *Engine

// NewEngine builds the engine from configuration
func NewEngine(db *gorm.DB, logger *zap.Logger, notifier Notifier, cfg config.EngineConfig) (*Engine, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if notifier == nil {
		notifier = NewLogNotifier(logger)
	}

	retry := RetryPolicy{
		MaxAttempts: cfg.RetryMaxAttempts,
		Backoff:     time.Duration(cfg.RetryBackoffMS) * time.Millisecond,
	}
	if retry.MaxAttempts < 1 {
		retry = DefaultRetryPolicy
	}

	numbers, err := NewOrderNumberGenerator(cfg.SnowflakeNode)
	if err != nil {
		return nil, err
	}

	discounts := NewDiscountResolver(db, logger, retry)
	fidelity := NewFidelityLedger(db, logger, retry, cfg.PointsConversionRate)
	orders := NewOrderService(db, logger, OrderServiceOptions{
		TaxRate:            cfg.TaxRate,
		DeliveryFee:        cfg.DeliveryFee,
		TaxPolicy:          TaxPolicy(cfg.TaxPolicy),
		RejectInvalidPromo: cfg.RejectInvalidPromo,
		Retry:              retry,
	}, discounts, fidelity, notifier, numbers)

	return &Engine{
		Orders:    orders,
		Payments:  NewPaymentLedger(db, logger, retry, OverpaymentPolicy(cfg.OverpaymentPolicy)),
		Fidelity:  fidelity,
		Discounts: discounts,
		Notifier:  notifier,
	}, nil
}

// InitEngine builds the engine and makes it the global instance
func InitEngine(db *gorm.DB, logger *zap.Logger, notifier Notifier, cfg config.EngineConfig) (*Engine, error) {
	engine, err := NewEngine(db, logger, notifier, cfg)
	if err != nil {
		return nil, err
	}
	engineInstance = engine
	return engine, nil
}

// GetEngine returns the initialized engine instance
func GetEngine() *Engine {
	return engineInstance
}

// SetEngine sets the engine instance (primarily for testing)
func SetEngine(engine *Engine) {
	engineInstance = engine
}
