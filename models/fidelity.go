package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// PointEarningRule awards a flat number of points to orders whose total falls in
// [MinOrderAmount, MaxOrderAmount]. On overlap the lowest Priority wins.
type PointEarningRule struct {
	ID             uint                `gorm:"primaryKey" json:"id"`
	Name           string              `gorm:"not null" json:"name"`
	MinOrderAmount decimal.Decimal     `gorm:"type:decimal(12,2);not null" json:"min_order_amount"`
	MaxOrderAmount decimal.NullDecimal `gorm:"type:decimal(12,2)" json:"max_order_amount"`
	PointsAwarded  int                 `gorm:"not null" json:"points_awarded"`
	Priority       int                 `gorm:"not null" json:"priority"`
	IsActive       bool                `gorm:"not null" json:"is_active"`
	CreatedAt      time.Time           `json:"created_at"`
	UpdatedAt      time.Time           `json:"updated_at"`
}

// TableName specifies the table name for the PointEarningRule model
func (PointEarningRule) TableName() string {
	return "point_earning_rules"
}

// Contains reports whether amount falls inside the rule's bracket
func (r PointEarningRule) Contains(amount decimal.Decimal) bool {
	if amount.LessThan(r.MinOrderAmount) {
		return false
	}
	if r.MaxOrderAmount.Valid && amount.GreaterThan(r.MaxOrderAmount.Decimal) {
		return false
	}
	return true
}

// FidelityPointBalance is the per-customer projection of the points ledger.
// It is rewritten from ledger sums and never edited directly.
type FidelityPointBalance struct {
	ID                  uint      `gorm:"primaryKey" json:"id"`
	CustomerID          uint      `gorm:"uniqueIndex;not null" json:"customer_id"`
	CurrentPoints       int       `gorm:"not null;default:0" json:"current_points"`
	TotalEarnedPoints   int       `gorm:"not null;default:0" json:"total_earned_points"`
	TotalRedeemedPoints int       `gorm:"not null;default:0" json:"total_redeemed_points"`
	Version             int       `gorm:"not null" json:"version"`
	CreatedAt           time.Time `json:"created_at"`
	UpdatedAt           time.Time `json:"updated_at"`
}

// TableName specifies the table name for the FidelityPointBalance model
func (FidelityPointBalance) TableName() string {
	return "fidelity_point_balances"
}

// FidelityTransactionType classifies ledger entries
type FidelityTransactionType string

const (
	FidelityEarn   FidelityTransactionType = "earn"
	FidelityRedeem FidelityTransactionType = "redeem"
	FidelityExpire FidelityTransactionType = "expire"
	FidelityAdjust FidelityTransactionType = "adjust"
)

// FidelityPointsTransaction is an append-only ledger entry. Points is a signed delta.
type FidelityPointsTransaction struct {
	ID          uint                    `gorm:"primaryKey" json:"id"`
	CustomerID  uint                    `gorm:"not null;index" json:"customer_id"`
	OrderID     *uint                   `gorm:"index" json:"order_id,omitempty"`
	Type        FidelityTransactionType `gorm:"not null;size:16" json:"type"`
	Points      int                     `gorm:"not null" json:"points"`
	OrderTotal  decimal.NullDecimal     `gorm:"type:decimal(12,2)" json:"order_total"`
	Description *string                 `json:"description,omitempty"`
	ExpiresAt   *time.Time              `json:"expires_at,omitempty"`
	CreatedAt   time.Time               `json:"created_at"`
}

// TableName specifies the table name for the FidelityPointsTransaction model
func (FidelityPointsTransaction) TableName() string {
	return "fidelity_points_transactions"
}
