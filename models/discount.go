package models

import (
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// DiscountType tells how a discount value is interpreted
type DiscountType string

const (
	DiscountPercentage DiscountType = "percentage" // Value is a percent, 10 means 10%
	DiscountFixed      DiscountType = "fixed"      // Value is a currency amount
)

// IsValid reports whether t is a known discount type
func (t DiscountType) IsValid() bool {
	return t == DiscountPercentage || t == DiscountFixed
}

// CustomerDiscountRule is an administratively configured discount for one customer
type CustomerDiscountRule struct {
	ID                uint                `gorm:"primaryKey" json:"id"`
	CustomerID        uint                `gorm:"not null;index" json:"customer_id"`
	Name              string              `gorm:"not null" json:"name"`
	DiscountType      DiscountType        `gorm:"not null;size:16" json:"discount_type"`
	Value             decimal.Decimal     `gorm:"type:decimal(12,2);not null" json:"value"`
	MinOrderAmount    decimal.NullDecimal `gorm:"type:decimal(12,2)" json:"min_order_amount"`
	MaxOrderAmount    decimal.NullDecimal `gorm:"type:decimal(12,2)" json:"max_order_amount"`
	MaxDiscountAmount decimal.NullDecimal `gorm:"type:decimal(12,2)" json:"max_discount_amount"`
	MaxUsageCount     *int                `json:"max_usage_count,omitempty"`
	UsageCount        int                 `gorm:"not null;default:0" json:"usage_count"`
	IsActive          bool                `gorm:"not null" json:"is_active"`
	ValidFrom         *time.Time          `json:"valid_from,omitempty"`
	ValidUntil        *time.Time          `json:"valid_until,omitempty"`
	Version           int                 `gorm:"not null" json:"version"`
	CreatedAt         time.Time           `json:"created_at"`
	UpdatedAt         time.Time           `json:"updated_at"`
	DeletedAt         gorm.DeletedAt      `gorm:"index" json:"-"`
}

// TableName specifies the table name for the CustomerDiscountRule model
func (CustomerDiscountRule) TableName() string {
	return "customer_discount_rules"
}

// PromoCode is a public discount code
type PromoCode struct {
	ID                uint                `gorm:"primaryKey" json:"id"`
	Code              string              `gorm:"uniqueIndex;not null;size:64" json:"code"`
	DiscountType      DiscountType        `gorm:"not null;size:16" json:"discount_type"`
	Value             decimal.Decimal     `gorm:"type:decimal(12,2);not null" json:"value"`
	MinOrderAmount    decimal.NullDecimal `gorm:"type:decimal(12,2)" json:"min_order_amount"`
	MaxDiscountAmount decimal.NullDecimal `gorm:"type:decimal(12,2)" json:"max_discount_amount"`
	MaxUsageCount     *int                `json:"max_usage_count,omitempty"`
	UsageCount        int                 `gorm:"not null;default:0" json:"usage_count"`
	IsActive          bool                `gorm:"not null" json:"is_active"`
	ValidFrom         *time.Time          `json:"valid_from,omitempty"`
	ValidUntil        *time.Time          `json:"valid_until,omitempty"`
	Version           int                 `gorm:"not null" json:"version"`
	CreatedAt         time.Time           `json:"created_at"`
	UpdatedAt         time.Time           `json:"updated_at"`
}

// TableName specifies the table name for the PromoCode model
func (PromoCode) TableName() string {
	return "promo_codes"
}
