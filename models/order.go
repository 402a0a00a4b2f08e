package models

import (
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// Order is the aggregate root of the order lifecycle. Totals, payments and status
// are only mutated through the engine, which bumps Version on every write.
type Order struct {
	ID          uint   `gorm:"primaryKey" json:"id"`
	OrderNumber string `gorm:"uniqueIndex;not null;size:32" json:"order_number"`
	CustomerID  *uint  `gorm:"index" json:"customer_id"` // nullable, walk-in orders have no customer
	Customer    *User  `gorm:"foreignKey:CustomerID" json:"customer,omitempty"`

	// Contact snapshot taken at order time
	CustomerName  string  `gorm:"not null" json:"customer_name"`
	CustomerEmail *string `json:"customer_email,omitempty"`
	CustomerPhone *string `json:"customer_phone,omitempty"`

	OrderType       OrderType `gorm:"not null;size:16" json:"order_type"`
	TableNumber     *int      `json:"table_number,omitempty"`
	DeliveryAddress *string   `json:"delivery_address,omitempty"`
	Notes           *string   `json:"notes,omitempty"`

	SubTotal               decimal.Decimal `gorm:"type:decimal(12,2);not null;default:0" json:"sub_total"`
	TaxRate                decimal.Decimal `gorm:"type:decimal(6,4);not null;default:0" json:"tax_rate"`
	Tax                    decimal.Decimal `gorm:"type:decimal(12,2);not null;default:0" json:"tax"`
	DeliveryFee            decimal.Decimal `gorm:"type:decimal(12,2);not null;default:0" json:"delivery_fee"`
	Discount               decimal.Decimal `gorm:"type:decimal(12,2);not null;default:0" json:"discount"`
	DiscountPercentage     decimal.Decimal `gorm:"type:decimal(6,2);not null;default:0" json:"discount_percentage"`
	FidelityPointsDiscount decimal.Decimal `gorm:"type:decimal(12,2);not null;default:0" json:"fidelity_points_discount"`
	CustomerDiscountAmount decimal.Decimal `gorm:"type:decimal(12,2);not null;default:0" json:"customer_discount_amount"`
	Tip                    decimal.Decimal `gorm:"type:decimal(12,2);not null;default:0" json:"tip"`
	Total                  decimal.Decimal `gorm:"type:decimal(12,2);not null;default:0" json:"total"`
	TotalPaid              decimal.Decimal `gorm:"type:decimal(12,2);not null;default:0" json:"total_paid"`
	RemainingAmount        decimal.Decimal `gorm:"type:decimal(12,2);not null;default:0" json:"remaining_amount"`
	OverpaidAmount         decimal.Decimal `gorm:"type:decimal(12,2);not null;default:0" json:"overpaid_amount"`
	IsOverpaid             bool            `gorm:"not null;default:false" json:"is_overpaid"`

	DiscountSource         string  `gorm:"size:16;not null;default:'none'" json:"discount_source"`
	AppliedDiscountRuleID  *uint   `gorm:"index" json:"applied_discount_rule_id,omitempty"`
	PromoCode              *string `gorm:"size:64" json:"promo_code,omitempty"`
	FidelityPointsRedeemed int     `gorm:"not null;default:0" json:"fidelity_points_redeemed"`

	Status             OrderStatus   `gorm:"not null;size:16;index" json:"status"`
	PaymentStatus      PaymentStatus `gorm:"not null;size:24" json:"payment_status"`
	CancellationReason *string       `json:"cancellation_reason,omitempty"`
	DelayMinutes       *int          `json:"delay_minutes,omitempty"`
	DelayReason        *string       `json:"delay_reason,omitempty"`
	EstimatedReadyAt   *time.Time    `json:"estimated_ready_at,omitempty"`

	IsFocusOrder bool       `gorm:"not null;default:false" json:"is_focus_order"`
	Priority     *int       `json:"priority,omitempty"`
	FocusReason  *string    `json:"focus_reason,omitempty"`
	FocusedBy    *string    `json:"focused_by,omitempty"`
	FocusedAt    *time.Time `json:"focused_at,omitempty"`

	OrderDate   time.Time  `gorm:"not null;index" json:"order_date"`
	ConfirmedAt *time.Time `json:"confirmed_at,omitempty"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
	CancelledAt *time.Time `json:"cancelled_at,omitempty"`

	Version int `gorm:"not null" json:"version"`

	Items         []OrderItem          `gorm:"foreignKey:OrderID" json:"items,omitempty"`
	Payments      []OrderPayment       `gorm:"foreignKey:OrderID" json:"payments,omitempty"`
	StatusHistory []OrderStatusHistory `gorm:"foreignKey:OrderID" json:"status_history,omitempty"`

	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"-"`
}

// TableName specifies the table name for the Order model
func (Order) TableName() string {
	return "orders"
}

// GrossTotal is the order total before any discount or redemption is applied.
// Fidelity points are earned on this amount.
func (o Order) GrossTotal() decimal.Decimal {
	return o.SubTotal.Add(o.Tax).Add(o.DeliveryFee)
}

// ContactInfo returns the snapshot of the customer's contact fields
func (o Order) ContactInfo() ContactInfo {
	return ContactInfo{Name: o.CustomerName, Email: o.CustomerEmail, Phone: o.CustomerPhone}
}

// ContactInfo is the customer contact snapshot carried on notifications
type ContactInfo struct {
	Name  string  `json:"name"`
	Email *string `json:"email,omitempty"`
	Phone *string `json:"phone,omitempty"`
}

// OrderItem is a snapshot of a basket line. Menu-combo components reference
// their parent item; the tree is never deeper than one level.
type OrderItem struct {
	ID             uint            `gorm:"primaryKey" json:"id"`
	OrderID        uint            `gorm:"not null;index" json:"order_id"`
	ParentItemID   *uint           `gorm:"index" json:"parent_item_id,omitempty"`
	ProductID      *uint           `json:"product_id,omitempty"`
	VariationID    *uint           `json:"variation_id,omitempty"`
	ProductName    string          `gorm:"not null" json:"product_name"`
	VariationName  *string         `json:"variation_name,omitempty"`
	UnitPrice      decimal.Decimal `gorm:"type:decimal(12,2);not null" json:"unit_price"`
	Quantity       int             `gorm:"not null;check:quantity > 0" json:"quantity"`
	LineTotal      decimal.Decimal `gorm:"type:decimal(12,2);not null" json:"line_total"`
	Customizations datatypes.JSON  `json:"customizations,omitempty"`
	Notes          *string         `json:"notes,omitempty"`
	SubItems       []OrderItem     `gorm:"foreignKey:ParentItemID" json:"sub_items,omitempty"`
	CreatedAt      time.Time       `json:"created_at"`
}

// TableName specifies the table name for the OrderItem model
func (OrderItem) TableName() string {
	return "order_items"
}

// OrderStatusHistory is an append-only audit row, one per accepted transition
type OrderStatusHistory struct {
	ID         uint        `gorm:"primaryKey" json:"id"`
	OrderID    uint        `gorm:"not null;index" json:"order_id"`
	FromStatus OrderStatus `gorm:"not null;size:16" json:"from_status"`
	ToStatus   OrderStatus `gorm:"not null;size:16" json:"to_status"`
	ChangedBy  string      `gorm:"not null" json:"changed_by"`
	ChangedAt  time.Time   `gorm:"not null" json:"changed_at"`
	Notes      *string     `json:"notes,omitempty"`
}

// TableName specifies the table name for the OrderStatusHistory model
func (OrderStatusHistory) TableName() string {
	return "order_status_histories"
}
