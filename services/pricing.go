package services

import (
	"github.com/shopspring/decimal"
)

// TaxPolicy decides which amount tax is levied on
type TaxPolicy string

const (
	// TaxPreDiscount levies tax on the full subtotal; discounts come off afterwards
	TaxPreDiscount TaxPolicy = "pre_discount"
	// TaxPostDiscount levies tax on the subtotal minus all discounts
	TaxPostDiscount TaxPolicy = "post_discount"
)

// currencyPlaces is the minor-unit precision of the currency
const currencyPlaces = 2

// PricedLine is one basket line as seen by the calculator. UnitPrice already
// includes customization and side-item surcharges.
type PricedLine struct {
	Quantity  int
	UnitPrice decimal.Decimal
}

// PricingInput carries everything the calculator needs
type PricingInput struct {
	Items            []PricedLine
	TaxRate          decimal.Decimal
	DeliveryFee      decimal.Decimal
	Tip              decimal.Decimal
	Discount         decimal.Decimal // promo code discount
	FidelityDiscount decimal.Decimal
	CustomerDiscount decimal.Decimal
}

// PriceBreakdown is the result of a pricing computation
type PriceBreakdown struct {
	SubTotal               decimal.Decimal `json:"sub_total"`
	Tax                    decimal.Decimal `json:"tax"`
	DeliveryFee            decimal.Decimal `json:"delivery_fee"`
	Tip                    decimal.Decimal `json:"tip"`
	Discount               decimal.Decimal `json:"discount"`
	FidelityPointsDiscount decimal.Decimal `json:"fidelity_points_discount"`
	CustomerDiscountAmount decimal.Decimal `json:"customer_discount_amount"`
	Total                  decimal.Decimal `json:"total"`
	Floored                bool            `json:"floored"` // total was negative and clamped to zero
}

// Calculator computes order totals. It trusts its inputs; run ValidatePricingInput first.
type Calculator struct {
	Policy TaxPolicy
}

// NewCalculator creates a calculator with the given tax policy, defaulting to pre-discount tax
func NewCalculator(policy TaxPolicy) Calculator {
	if policy != TaxPostDiscount {
		policy = TaxPreDiscount
	}
	return Calculator{Policy: policy}
}

// SubTotal sums quantity x unit price over all lines
func SubTotal(items []PricedLine) decimal.Decimal {
	subTotal := decimal.Zero
	for _, item := range items {
		subTotal = subTotal.Add(item.UnitPrice.Mul(decimal.NewFromInt(int64(item.Quantity))))
	}
	return subTotal
}

// RoundCurrency rounds half-up to the currency's minor unit
func RoundCurrency(amount decimal.Decimal) decimal.Decimal {
	// decimal.Round rounds half away from zero, which is half-up for the non-negative amounts used here
	return amount.Round(currencyPlaces)
}

// Compute returns subtotal, tax and total for the input
func (c Calculator) Compute(in PricingInput) PriceBreakdown {
	subTotal := SubTotal(in.Items)
	discounts := in.Discount.Add(in.FidelityDiscount).Add(in.CustomerDiscount)

	taxBase := subTotal
	if c.Policy == TaxPostDiscount {
		taxBase = decimal.Max(subTotal.Sub(discounts), decimal.Zero)
	}
	tax := RoundCurrency(taxBase.Mul(in.TaxRate))

	total := subTotal.Add(tax).Add(in.DeliveryFee).Add(in.Tip).Sub(discounts)
	floored := false
	if total.IsNegative() {
		total = decimal.Zero
		floored = true
	}

	return PriceBreakdown{
		SubTotal:               subTotal,
		Tax:                    tax,
		DeliveryFee:            in.DeliveryFee,
		Tip:                    in.Tip,
		Discount:               in.Discount,
		FidelityPointsDiscount: in.FidelityDiscount,
		CustomerDiscountAmount: in.CustomerDiscount,
		Total:                  total,
		Floored:                floored,
	}
}

// ValidatePricingInput rejects negative quantities and amounts
func ValidatePricingInput(in PricingInput) error {
	for i, item := range in.Items {
		if item.Quantity < 1 {
			return validationError("item %d: quantity must be at least 1", i+1)
		}
		if item.UnitPrice.IsNegative() {
			return validationError("item %d: unit price must not be negative", i+1)
		}
	}

	amounts := []struct {
		name  string
		value decimal.Decimal
	}{
		{"tax rate", in.TaxRate},
		{"delivery fee", in.DeliveryFee},
		{"tip", in.Tip},
		{"discount", in.Discount},
		{"fidelity discount", in.FidelityDiscount},
		{"customer discount", in.CustomerDiscount},
	}
	for _, a := range amounts {
		if a.value.IsNegative() {
			return validationError("%s must not be negative", a.name)
		}
	}
	return nil
}

// expectedTotal recomputes the Total invariant from stored order fields
func expectedTotal(subTotal, tax, deliveryFee, tip, discount, fidelity, customer decimal.Decimal) decimal.Decimal {
	total := subTotal.Add(tax).Add(deliveryFee).Add(tip).Sub(discount).Sub(fidelity).Sub(customer)
	return decimal.Max(total, decimal.Zero)
}
