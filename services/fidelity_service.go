package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/kendall-kelly/bistro-api/models"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// FidelityLedger owns the loyalty points ledger. Balances are projections of
// ledger sums and are rewritten under a version check after every append.
type FidelityLedger struct {
	db             *gorm.DB
	logger         *zap.Logger
	retry          RetryPolicy
	conversionRate decimal.Decimal
}

// NewFidelityLedger creates a ledger that values one point at conversionRate
func NewFidelityLedger(db *gorm.DB, logger *zap.Logger, retry RetryPolicy, conversionRate decimal.Decimal) *FidelityLedger {
	return &FidelityLedger{db: db, logger: logger, retry: retry, conversionRate: conversionRate}
}

// ConversionRate is the currency value of a single point
func (l *FidelityLedger) ConversionRate() decimal.Decimal {
	return l.conversionRate
}

// PointsValue converts points to a currency amount
func (l *FidelityLedger) PointsValue(points int) decimal.Decimal {
	return RoundCurrency(decimal.NewFromInt(int64(points)).Mul(l.conversionRate))
}

// FindEarningRule returns the active rule whose bracket contains amount, or nil.
// Overlaps resolve to the lowest Priority, then the lowest ID.
func (l *FidelityLedger) FindEarningRule(ctx context.Context, amount decimal.Decimal) (*models.PointEarningRule, error) {
	return findEarningRule(l.db.WithContext(ctx), amount)
}

func findEarningRule(tx *gorm.DB, amount decimal.Decimal) (*models.PointEarningRule, error) {
	var rules []models.PointEarningRule
	if err := tx.Where("is_active = ?", true).Order("priority asc, id asc").Find(&rules).Error; err != nil {
		return nil, err
	}
	for i := range rules {
		if rules[i].Contains(amount) {
			return &rules[i], nil
		}
	}
	return nil, nil
}

// AwardPoints credits the customer for an order. A second award for the same
// order fails with ErrPointsAlreadyAwarded. Zero is returned when no rule matches.
func (l *FidelityLedger) AwardPoints(ctx context.Context, customerID, orderID uint, orderTotal decimal.Decimal) (int, error) {
	var awarded int
	err := l.retry.inTransaction(ctx, l.db, l.logger, "award_points", func(tx *gorm.DB) error {
		var err error
		awarded, err = l.awardPoints(tx, customerID, orderID, orderTotal)
		return err
	})
	return awarded, err
}

func (l *FidelityLedger) awardPoints(tx *gorm.DB, customerID, orderID uint, orderTotal decimal.Decimal) (int, error) {
	var existing int64
	if err := tx.Model(&models.FidelityPointsTransaction{}).
		Where("order_id = ? AND type = ?", orderID, models.FidelityEarn).
		Count(&existing).Error; err != nil {
		return 0, err
	}
	if existing > 0 {
		return 0, ErrPointsAlreadyAwarded
	}

	rule, err := findEarningRule(tx, orderTotal)
	if err != nil {
		return 0, err
	}
	if rule == nil {
		l.logger.Debug("no earning rule matches order total",
			zap.Uint("order_id", orderID),
			zap.String("order_total", orderTotal.StringFixed(currencyPlaces)),
		)
		return 0, nil
	}

	balance, err := loadOrCreateBalance(tx, customerID)
	if err != nil {
		return 0, err
	}

	description := fmt.Sprintf("earned via rule %q", rule.Name)
	entry := models.FidelityPointsTransaction{
		CustomerID:  customerID,
		OrderID:     &orderID,
		Type:        models.FidelityEarn,
		Points:      rule.PointsAwarded,
		OrderTotal:  decimal.NewNullDecimal(orderTotal),
		Description: &description,
	}
	if err := tx.Create(&entry).Error; err != nil {
		return 0, err
	}
	if err := recomputeBalance(tx, balance); err != nil {
		return 0, err
	}

	l.logger.Info("fidelity points awarded",
		zap.Uint("customer_id", customerID),
		zap.Uint("order_id", orderID),
		zap.Int("points", rule.PointsAwarded),
	)
	return rule.PointsAwarded, nil
}

// RedeemPoints debits points and returns their currency value. Asking for more
// than the current balance fails with ErrInsufficientPoints and writes nothing.
func (l *FidelityLedger) RedeemPoints(ctx context.Context, customerID uint, points int) (decimal.Decimal, error) {
	err := l.retry.inTransaction(ctx, l.db, l.logger, "redeem_points", func(tx *gorm.DB) error {
		return l.redeemPoints(tx, customerID, points, nil)
	})
	if err != nil {
		return decimal.Zero, err
	}
	return l.PointsValue(points), nil
}

func (l *FidelityLedger) redeemPoints(tx *gorm.DB, customerID uint, points int, orderID *uint) error {
	if points <= 0 {
		return validationError("points to redeem must be positive")
	}

	balance, err := loadOrCreateBalance(tx, customerID)
	if err != nil {
		return err
	}
	totals, err := ledgerTotals(tx, customerID)
	if err != nil {
		return err
	}
	if points > totals.CurrentPoints {
		return &EngineError{
			Kind:    KindBusinessRule,
			Code:    CodeInsufficientPoints,
			Message: fmt.Sprintf("cannot redeem %d points, only %d available", points, totals.CurrentPoints),
		}
	}

	description := fmt.Sprintf("redeemed %d points", points)
	entry := models.FidelityPointsTransaction{
		CustomerID:  customerID,
		OrderID:     orderID,
		Type:        models.FidelityRedeem,
		Points:      -points,
		Description: &description,
	}
	if err := tx.Create(&entry).Error; err != nil {
		return err
	}
	return recomputeBalance(tx, balance)
}

// AdjustPoints appends a manual correction. The balance may not go negative.
func (l *FidelityLedger) AdjustPoints(ctx context.Context, customerID uint, delta int, description string) (*models.FidelityPointBalance, error) {
	if delta == 0 {
		return nil, validationError("adjustment must not be zero")
	}
	if strings.TrimSpace(description) == "" {
		return nil, validationError("adjustment description is required")
	}

	var balance *models.FidelityPointBalance
	err := l.retry.inTransaction(ctx, l.db, l.logger, "adjust_points", func(tx *gorm.DB) error {
		var err error
		balance, err = l.adjustPoints(tx, customerID, nil, delta, description)
		return err
	})
	if err != nil {
		return nil, err
	}
	return balance, nil
}

func (l *FidelityLedger) adjustPoints(tx *gorm.DB, customerID uint, orderID *uint, delta int, description string) (*models.FidelityPointBalance, error) {
	balance, err := loadOrCreateBalance(tx, customerID)
	if err != nil {
		return nil, err
	}
	if delta < 0 {
		totals, err := ledgerTotals(tx, customerID)
		if err != nil {
			return nil, err
		}
		if totals.CurrentPoints+delta < 0 {
			return nil, &EngineError{
				Kind:    KindBusinessRule,
				Code:    CodeInsufficientPoints,
				Message: fmt.Sprintf("adjustment of %d would leave a negative balance", delta),
			}
		}
	}

	entry := models.FidelityPointsTransaction{
		CustomerID:  customerID,
		OrderID:     orderID,
		Type:        models.FidelityAdjust,
		Points:      delta,
		Description: &description,
	}
	if err := tx.Create(&entry).Error; err != nil {
		return nil, err
	}
	if err := recomputeBalance(tx, balance); err != nil {
		return nil, err
	}
	return balance, nil
}

// restoreRedeemedPoints gives back the points an order redeemed
func (l *FidelityLedger) restoreRedeemedPoints(tx *gorm.DB, order *models.Order) error {
	if order.CustomerID == nil || order.FidelityPointsRedeemed <= 0 {
		return nil
	}
	description := fmt.Sprintf("restored from cancelled order %s", order.OrderNumber)
	_, err := l.adjustPoints(tx, *order.CustomerID, &order.ID, order.FidelityPointsRedeemed, description)
	return err
}

// reverseEarnedPoints takes back what a cancelled order earned. Points already
// spent elsewhere stay spent: the reversal stops at a zero balance.
func (l *FidelityLedger) reverseEarnedPoints(tx *gorm.DB, order *models.Order) error {
	if order.CustomerID == nil {
		return nil
	}
	var earned int
	if err := tx.Model(&models.FidelityPointsTransaction{}).
		Select("COALESCE(SUM(points), 0)").
		Where("order_id = ? AND type = ?", order.ID, models.FidelityEarn).
		Scan(&earned).Error; err != nil {
		return err
	}
	if earned <= 0 {
		return nil
	}
	totals, err := ledgerTotals(tx, *order.CustomerID)
	if err != nil {
		return err
	}
	reversed := earned
	if totals.CurrentPoints < reversed {
		reversed = totals.CurrentPoints
		l.logger.Warn("cancelled order's points were partly spent",
			zap.Uint("order_id", order.ID),
			zap.Int("earned", earned),
			zap.Int("reversed", reversed),
		)
	}
	if reversed <= 0 {
		return nil
	}
	description := fmt.Sprintf("reversed points earned by cancelled order %s", order.OrderNumber)
	_, err = l.adjustPoints(tx, *order.CustomerID, &order.ID, -reversed, description)
	return err
}

// GetBalance returns the customer's balance. Customers without ledger activity get a zero balance.
func (l *FidelityLedger) GetBalance(ctx context.Context, customerID uint) (*models.FidelityPointBalance, error) {
	var balance models.FidelityPointBalance
	err := l.db.WithContext(ctx).Where("customer_id = ?", customerID).First(&balance).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return &models.FidelityPointBalance{CustomerID: customerID}, nil
	}
	if err != nil {
		return nil, err
	}
	return &balance, nil
}

// History returns the customer's ledger, newest first
func (l *FidelityLedger) History(ctx context.Context, customerID uint) ([]models.FidelityPointsTransaction, error) {
	var entries []models.FidelityPointsTransaction
	err := l.db.WithContext(ctx).
		Where("customer_id = ?", customerID).
		Order("created_at desc, id desc").
		Find(&entries).Error
	return entries, err
}

// ListEarningRules returns all earning rules in evaluation order
func (l *FidelityLedger) ListEarningRules(ctx context.Context) ([]models.PointEarningRule, error) {
	var rules []models.PointEarningRule
	err := l.db.WithContext(ctx).Order("priority asc, id asc").Find(&rules).Error
	return rules, err
}

// CreateEarningRule validates and stores one earning rule
func (l *FidelityLedger) CreateEarningRule(ctx context.Context, rule models.PointEarningRule) (*models.PointEarningRule, error) {
	if err := validateEarningRule(rule); err != nil {
		return nil, err
	}
	rule.ID = 0
	if err := l.db.WithContext(ctx).Create(&rule).Error; err != nil {
		return nil, err
	}
	return &rule, nil
}

// ImportEarningRules stores rules in one transaction. With replace set, existing rules are deleted first.
func (l *FidelityLedger) ImportEarningRules(ctx context.Context, rules []models.PointEarningRule, replace bool) (int, error) {
	for _, rule := range rules {
		if err := validateEarningRule(rule); err != nil {
			return 0, err
		}
	}

	err := l.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if replace {
			if err := tx.Where("1 = 1").Delete(&models.PointEarningRule{}).Error; err != nil {
				return err
			}
		}
		if len(rules) == 0 {
			return nil
		}
		return tx.Create(&rules).Error
	})
	if err != nil {
		return 0, err
	}
	return len(rules), nil
}

func validateEarningRule(rule models.PointEarningRule) error {
	if strings.TrimSpace(rule.Name) == "" {
		return validationError("earning rule name is required")
	}
	if rule.PointsAwarded <= 0 {
		return validationError("earning rule %q must award a positive number of points", rule.Name)
	}
	if rule.MinOrderAmount.IsNegative() {
		return validationError("earning rule %q has a negative minimum", rule.Name)
	}
	if rule.MaxOrderAmount.Valid && rule.MaxOrderAmount.Decimal.LessThan(rule.MinOrderAmount) {
		return validationError("earning rule %q has a maximum below its minimum", rule.Name)
	}
	return nil
}

func loadOrCreateBalance(tx *gorm.DB, customerID uint) (*models.FidelityPointBalance, error) {
	var balance models.FidelityPointBalance
	err := tx.Where("customer_id = ?", customerID).First(&balance).Error
	if err == nil {
		return &balance, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}

	balance = models.FidelityPointBalance{CustomerID: customerID}
	if err := tx.Create(&balance).Error; err != nil {
		if IsUniqueViolation(err) {
			// another writer created it first
			return nil, errVersionConflict
		}
		return nil, err
	}
	return &balance, nil
}

type pointTotals struct {
	CurrentPoints  int
	EarnedPoints   int
	RedeemedPoints int
}

func ledgerTotals(tx *gorm.DB, customerID uint) (pointTotals, error) {
	var totals pointTotals
	err := tx.Model(&models.FidelityPointsTransaction{}).
		Select(
			"COALESCE(SUM(points), 0) AS current_points, "+
				"COALESCE(SUM(CASE WHEN type = ? THEN points ELSE 0 END), 0) AS earned_points, "+
				"COALESCE(SUM(CASE WHEN type = ? THEN -points ELSE 0 END), 0) AS redeemed_points",
			models.FidelityEarn, models.FidelityRedeem,
		).
		Where("customer_id = ?", customerID).
		Scan(&totals).Error
	return totals, err
}

// recomputeBalance rewrites the balance row from ledger sums under its version
func recomputeBalance(tx *gorm.DB, balance *models.FidelityPointBalance) error {
	totals, err := ledgerTotals(tx, balance.CustomerID)
	if err != nil {
		return err
	}
	if err := updateVersioned(tx, &models.FidelityPointBalance{}, balance.ID, balance.Version, map[string]interface{}{
		"current_points":        totals.CurrentPoints,
		"total_earned_points":   totals.EarnedPoints,
		"total_redeemed_points": totals.RedeemedPoints,
	}); err != nil {
		return err
	}
	balance.CurrentPoints = totals.CurrentPoints
	balance.TotalEarnedPoints = totals.EarnedPoints
	balance.TotalRedeemedPoints = totals.RedeemedPoints
	balance.Version++
	balance.UpdatedAt = time.Now()
	return nil
}
