package services

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/kendall-kelly/bistro-api/models"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// DiscountSource names where an order's discount came from
type DiscountSource string

const (
	DiscountSourceNone         DiscountSource = "none"
	DiscountSourceCustomerRule DiscountSource = "customer_rule"
	DiscountSourcePromoCode    DiscountSource = "promo_code"
)

var hundred = decimal.NewFromInt(100)

// DiscountDecision is the outcome of discount resolution. Sources never stack.
type DiscountDecision struct {
	Source     DiscountSource  `json:"source"`
	Amount     decimal.Decimal `json:"amount"`
	Percentage decimal.Decimal `json:"percentage"` // zero for fixed discounts
	RuleID     *uint           `json:"rule_id,omitempty"`
	PromoCode  *string         `json:"promo_code,omitempty"`
}

func noDiscount() DiscountDecision {
	return DiscountDecision{Source: DiscountSourceNone, Amount: decimal.Zero, Percentage: decimal.Zero}
}

// DiscountResolver picks the single discount that applies to an order and
// administers customer discount rules and promo codes
type DiscountResolver struct {
	db     *gorm.DB
	logger *zap.Logger
	retry  RetryPolicy
	now    func() time.Time
}

// NewDiscountResolver creates a discount resolver
func NewDiscountResolver(db *gorm.DB, logger *zap.Logger, retry RetryPolicy) *DiscountResolver {
	return &DiscountResolver{db: db, logger: logger, retry: retry, now: time.Now}
}

// NormalizePromoCode upper-cases and trims a code the way it is stored
func NormalizePromoCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

// Resolve evaluates customer rules first, then the promo code, then no discount.
// It never writes. An unknown promo code returns ErrInvalidPromo alongside the
// decision that applies without it, so the caller can choose to fail or ignore.
func (r *DiscountResolver) Resolve(ctx context.Context, customerID *uint, subTotal decimal.Decimal, promoCode string) (DiscountDecision, error) {
	return r.resolve(r.db.WithContext(ctx), customerID, subTotal, promoCode)
}

func (r *DiscountResolver) resolve(tx *gorm.DB, customerID *uint, subTotal decimal.Decimal, promoCode string) (DiscountDecision, error) {
	now := r.now()

	var promo *models.PromoCode
	var promoErr error
	if code := NormalizePromoCode(promoCode); code != "" {
		var found models.PromoCode
		err := tx.Where("code = ?", code).First(&found).Error
		switch {
		case errors.Is(err, gorm.ErrRecordNotFound):
			promoErr = &EngineError{
				Kind:    KindBusinessRule,
				Code:    CodeInvalidPromo,
				Message: "promo code " + code + " does not exist",
			}
		case err != nil:
			return noDiscount(), err
		default:
			promo = &found
		}
	}

	if customerID != nil {
		var rules []models.CustomerDiscountRule
		if err := tx.Where("customer_id = ? AND is_active = ?", *customerID, true).
			Order("id asc").
			Find(&rules).Error; err != nil {
			return noDiscount(), err
		}
		for _, rule := range rules {
			if !customerRuleEligible(rule, subTotal, now) {
				continue
			}
			used, err := usageWithReservations(tx, "applied_discount_rule_id", rule.ID, rule.UsageCount, rule.MaxUsageCount)
			if err != nil {
				return noDiscount(), err
			}
			if !underUsageCap(used, rule.MaxUsageCount) {
				continue
			}
			amount := discountAmount(rule.DiscountType, rule.Value, rule.MaxDiscountAmount, subTotal)
			id := rule.ID
			decision := DiscountDecision{
				Source:     DiscountSourceCustomerRule,
				Amount:     amount,
				Percentage: percentageOf(rule.DiscountType, rule.Value),
				RuleID:     &id,
			}
			return decision, promoErr
		}
	}

	if promo != nil && promoEligible(*promo, subTotal, now) {
		used, err := usageWithReservations(tx, "promo_code", promo.Code, promo.UsageCount, promo.MaxUsageCount)
		if err != nil {
			return noDiscount(), err
		}
		if !underUsageCap(used, promo.MaxUsageCount) {
			return noDiscount(), promoErr
		}
		code := promo.Code
		return DiscountDecision{
			Source:     DiscountSourcePromoCode,
			Amount:     discountAmount(promo.DiscountType, promo.Value, promo.MaxDiscountAmount, subTotal),
			Percentage: percentageOf(promo.DiscountType, promo.Value),
			PromoCode:  &code,
		}, nil
	}

	return noDiscount(), promoErr
}

func customerRuleEligible(rule models.CustomerDiscountRule, subTotal decimal.Decimal, now time.Time) bool {
	if !rule.IsActive {
		return false
	}
	if rule.MinOrderAmount.Valid && subTotal.LessThan(rule.MinOrderAmount.Decimal) {
		return false
	}
	if rule.MaxOrderAmount.Valid && subTotal.GreaterThan(rule.MaxOrderAmount.Decimal) {
		return false
	}
	return withinWindow(rule.ValidFrom, rule.ValidUntil, now)
}

func promoEligible(promo models.PromoCode, subTotal decimal.Decimal, now time.Time) bool {
	if !promo.IsActive {
		return false
	}
	if promo.MinOrderAmount.Valid && subTotal.LessThan(promo.MinOrderAmount.Decimal) {
		return false
	}
	return withinWindow(promo.ValidFrom, promo.ValidUntil, now)
}

func withinWindow(from, until *time.Time, now time.Time) bool {
	if from != nil && now.Before(*from) {
		return false
	}
	if until != nil && now.After(*until) {
		return false
	}
	return true
}

func underUsageCap(used int, maxUsage *int) bool {
	return maxUsage == nil || used < *maxUsage
}

// usageWithReservations adds the open orders holding a discount to its consumed
// count. An order keeps its slot from placement until it completes or is cancelled.
func usageWithReservations(tx *gorm.DB, column string, value interface{}, consumed int, maxUsage *int) (int, error) {
	if maxUsage == nil {
		return consumed, nil
	}
	var open int64
	err := tx.Model(&models.Order{}).
		Where(column+" = ?", value).
		Where("status NOT IN ?", []models.OrderStatus{models.OrderStatusCompleted, models.OrderStatusCancelled}).
		Count(&open).Error
	return consumed + int(open), err
}

// reserveUsage claims a slot of a capped discount for an order about to be
// placed. The discount row's version is bumped so two placements racing for
// the last slot conflict, and the retried one resolves again without it.
func (r *DiscountResolver) reserveUsage(tx *gorm.DB, decision DiscountDecision) error {
	switch decision.Source {
	case DiscountSourceCustomerRule:
		var rule models.CustomerDiscountRule
		if err := tx.First(&rule, *decision.RuleID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return errVersionConflict
			}
			return err
		}
		if rule.MaxUsageCount == nil {
			return nil
		}
		used, err := usageWithReservations(tx, "applied_discount_rule_id", rule.ID, rule.UsageCount, rule.MaxUsageCount)
		if err != nil {
			return err
		}
		if !underUsageCap(used, rule.MaxUsageCount) {
			return errVersionConflict
		}
		return updateVersioned(tx, &models.CustomerDiscountRule{}, rule.ID, rule.Version, map[string]interface{}{})
	case DiscountSourcePromoCode:
		var promo models.PromoCode
		if err := tx.Where("code = ?", *decision.PromoCode).First(&promo).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return errVersionConflict
			}
			return err
		}
		if promo.MaxUsageCount == nil {
			return nil
		}
		used, err := usageWithReservations(tx, "promo_code", promo.Code, promo.UsageCount, promo.MaxUsageCount)
		if err != nil {
			return err
		}
		if !underUsageCap(used, promo.MaxUsageCount) {
			return errVersionConflict
		}
		return updateVersioned(tx, &models.PromoCode{}, promo.ID, promo.Version, map[string]interface{}{})
	}
	return nil
}

// discountAmount applies the value to subTotal, caps it and never exceeds subTotal
func discountAmount(kind models.DiscountType, value decimal.Decimal, maxDiscount decimal.NullDecimal, subTotal decimal.Decimal) decimal.Decimal {
	amount := value
	if kind == models.DiscountPercentage {
		amount = RoundCurrency(subTotal.Mul(value).Div(hundred))
	}
	if maxDiscount.Valid && amount.GreaterThan(maxDiscount.Decimal) {
		amount = maxDiscount.Decimal
	}
	return decimal.Min(amount, subTotal)
}

func percentageOf(kind models.DiscountType, value decimal.Decimal) decimal.Decimal {
	if kind == models.DiscountPercentage {
		return value
	}
	return decimal.Zero
}

// consumeUsage increments the usage counter of whatever discount the order
// applied. Called once, when the order completes; the counter never passes the cap.
func (r *DiscountResolver) consumeUsage(tx *gorm.DB, order *models.Order) error {
	switch DiscountSource(order.DiscountSource) {
	case DiscountSourceCustomerRule:
		if order.AppliedDiscountRuleID == nil {
			return nil
		}
		var rule models.CustomerDiscountRule
		if err := tx.Unscoped().First(&rule, *order.AppliedDiscountRuleID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				r.logger.Warn("applied discount rule no longer exists", zap.Uint("rule_id", *order.AppliedDiscountRuleID))
				return nil
			}
			return err
		}
		if !underUsageCap(rule.UsageCount, rule.MaxUsageCount) {
			r.logger.Error("discount rule already at its usage cap", zap.Uint("rule_id", rule.ID), zap.Uint("order_id", order.ID))
			return nil
		}
		return updateVersioned(tx.Unscoped(), &models.CustomerDiscountRule{}, rule.ID, rule.Version, map[string]interface{}{
			"usage_count": rule.UsageCount + 1,
		})
	case DiscountSourcePromoCode:
		if order.PromoCode == nil {
			return nil
		}
		var promo models.PromoCode
		if err := tx.Where("code = ?", *order.PromoCode).First(&promo).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				r.logger.Warn("applied promo code no longer exists", zap.String("code", *order.PromoCode))
				return nil
			}
			return err
		}
		if !underUsageCap(promo.UsageCount, promo.MaxUsageCount) {
			r.logger.Error("promo code already at its usage cap", zap.String("code", promo.Code), zap.Uint("order_id", order.ID))
			return nil
		}
		return updateVersioned(tx, &models.PromoCode{}, promo.ID, promo.Version, map[string]interface{}{
			"usage_count": promo.UsageCount + 1,
		})
	}
	return nil
}

// CustomerRuleInput is the administrative payload for a customer discount rule
type CustomerRuleInput struct {
	CustomerID        uint
	Name              string
	DiscountType      models.DiscountType
	Value             decimal.Decimal
	MinOrderAmount    decimal.NullDecimal
	MaxOrderAmount    decimal.NullDecimal
	MaxDiscountAmount decimal.NullDecimal
	MaxUsageCount     *int
	ValidFrom         *time.Time
	ValidUntil        *time.Time
}

func validateDiscountTerms(kind models.DiscountType, value decimal.Decimal, maxUsage *int, from, until *time.Time) error {
	if !kind.IsValid() {
		return validationError("discount type must be percentage or fixed")
	}
	if !value.IsPositive() {
		return validationError("discount value must be positive")
	}
	if kind == models.DiscountPercentage && value.GreaterThan(hundred) {
		return validationError("percentage discount cannot exceed 100")
	}
	if maxUsage != nil && *maxUsage < 1 {
		return validationError("max usage count must be at least 1")
	}
	if from != nil && until != nil && until.Before(*from) {
		return validationError("validity window ends before it starts")
	}
	return nil
}

// CreateCustomerRule stores a new active discount rule for a customer
func (r *DiscountResolver) CreateCustomerRule(ctx context.Context, in CustomerRuleInput) (*models.CustomerDiscountRule, error) {
	if strings.TrimSpace(in.Name) == "" {
		return nil, validationError("rule name is required")
	}
	if err := validateDiscountTerms(in.DiscountType, in.Value, in.MaxUsageCount, in.ValidFrom, in.ValidUntil); err != nil {
		return nil, err
	}
	if in.MinOrderAmount.Valid && in.MaxOrderAmount.Valid && in.MaxOrderAmount.Decimal.LessThan(in.MinOrderAmount.Decimal) {
		return nil, validationError("max order amount is below min order amount")
	}

	db := r.db.WithContext(ctx)
	var customer models.User
	if err := db.First(&customer, in.CustomerID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, notFoundError(CodeCustomerNotFound, "customer %d not found", in.CustomerID)
		}
		return nil, err
	}

	rule := models.CustomerDiscountRule{
		CustomerID:        in.CustomerID,
		Name:              strings.TrimSpace(in.Name),
		DiscountType:      in.DiscountType,
		Value:             in.Value,
		MinOrderAmount:    in.MinOrderAmount,
		MaxOrderAmount:    in.MaxOrderAmount,
		MaxDiscountAmount: in.MaxDiscountAmount,
		MaxUsageCount:     in.MaxUsageCount,
		IsActive:          true,
		ValidFrom:         in.ValidFrom,
		ValidUntil:        in.ValidUntil,
	}
	if err := db.Create(&rule).Error; err != nil {
		return nil, err
	}
	return &rule, nil
}

// ListCustomerRules returns a customer's rules in evaluation order
func (r *DiscountResolver) ListCustomerRules(ctx context.Context, customerID uint) ([]models.CustomerDiscountRule, error) {
	var rules []models.CustomerDiscountRule
	err := r.db.WithContext(ctx).Where("customer_id = ?", customerID).Order("id asc").Find(&rules).Error
	return rules, err
}

// DeactivateCustomerRule switches a rule off under a version check
func (r *DiscountResolver) DeactivateCustomerRule(ctx context.Context, ruleID uint) (*models.CustomerDiscountRule, error) {
	var rule models.CustomerDiscountRule
	err := r.retry.inTransaction(ctx, r.db, r.logger, "deactivate_customer_rule", func(tx *gorm.DB) error {
		if err := tx.First(&rule, ruleID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return notFoundError(CodeRuleNotFound, "discount rule %d not found", ruleID)
			}
			return err
		}
		if err := updateVersioned(tx, &models.CustomerDiscountRule{}, rule.ID, rule.Version, map[string]interface{}{
			"is_active": false,
		}); err != nil {
			return err
		}
		rule.IsActive = false
		rule.Version++
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &rule, nil
}

// PromoCodeInput is the administrative payload for a promo code
type PromoCodeInput struct {
	Code              string
	DiscountType      models.DiscountType
	Value             decimal.Decimal
	MinOrderAmount    decimal.NullDecimal
	MaxDiscountAmount decimal.NullDecimal
	MaxUsageCount     *int
	ValidFrom         *time.Time
	ValidUntil        *time.Time
}

// CreatePromoCode stores a new active promo code
func (r *DiscountResolver) CreatePromoCode(ctx context.Context, in PromoCodeInput) (*models.PromoCode, error) {
	code := NormalizePromoCode(in.Code)
	if code == "" {
		return nil, validationError("promo code is required")
	}
	if err := validateDiscountTerms(in.DiscountType, in.Value, in.MaxUsageCount, in.ValidFrom, in.ValidUntil); err != nil {
		return nil, err
	}

	promo := models.PromoCode{
		Code:              code,
		DiscountType:      in.DiscountType,
		Value:             in.Value,
		MinOrderAmount:    in.MinOrderAmount,
		MaxDiscountAmount: in.MaxDiscountAmount,
		MaxUsageCount:     in.MaxUsageCount,
		IsActive:          true,
		ValidFrom:         in.ValidFrom,
		ValidUntil:        in.ValidUntil,
	}
	if err := r.db.WithContext(ctx).Create(&promo).Error; err != nil {
		if IsUniqueViolation(err) {
			return nil, validationError("promo code %s already exists", code)
		}
		return nil, err
	}
	return &promo, nil
}

// ListPromoCodes returns all promo codes, newest first
func (r *DiscountResolver) ListPromoCodes(ctx context.Context) ([]models.PromoCode, error) {
	var promos []models.PromoCode
	err := r.db.WithContext(ctx).Order("id desc").Find(&promos).Error
	return promos, err
}

// DeactivatePromoCode switches a promo code off under a version check
func (r *DiscountResolver) DeactivatePromoCode(ctx context.Context, code string) (*models.PromoCode, error) {
	normalized := NormalizePromoCode(code)
	var promo models.PromoCode
	err := r.retry.inTransaction(ctx, r.db, r.logger, "deactivate_promo_code", func(tx *gorm.DB) error {
		if err := tx.Where("code = ?", normalized).First(&promo).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return notFoundError(CodeRuleNotFound, "promo code %s not found", normalized)
			}
			return err
		}
		if err := updateVersioned(tx, &models.PromoCode{}, promo.ID, promo.Version, map[string]interface{}{
			"is_active": false,
		}); err != nil {
			return err
		}
		promo.IsActive = false
		promo.Version++
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &promo, nil
}
