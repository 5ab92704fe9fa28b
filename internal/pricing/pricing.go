// Package pricing computes cart subtotals, coupon discounts and totals.
// Every function is pure: no I/O and inputs are never modified.
package pricing

import (
	"github.com/bms-fs/order-core/internal/apperr"
	"github.com/bms-fs/order-core/internal/enum"
	"github.com/shopspring/decimal"
)

var hundred = decimal.NewFromInt(100)

// Currency describes how many decimal places the minor unit has.
type Currency struct {
	Code     string
	Exponent int32
}

// VND has no minor unit; amounts are whole dong.
var VND = Currency{Code: "VND", Exponent: 0}

// Item is the pricing view of a cart line.
type Item struct {
	UnitPrice decimal.Decimal
	Quantity  int
}

// Coupon is a named discount rule. A nil MaxDiscount means uncapped.
type Coupon struct {
	Code          string           `json:"code"`
	Type          string           `json:"type"`
	Percent       decimal.Decimal  `json:"percent"`
	Amount        decimal.Decimal  `json:"amount"`
	MaxDiscount   *decimal.Decimal `json:"max_discount,omitempty"`
	MinOrderValue decimal.Decimal  `json:"min_order_value"`
}

// Summary is the derived totals shown to the user.
type Summary struct {
	Subtotal   decimal.Decimal `json:"subtotal"`
	Discount   decimal.Decimal `json:"discount"`
	Total      decimal.Decimal `json:"total"`
	CouponCode string          `json:"coupon_code,omitempty"`
}

// Engine prices carts in a single currency.
type Engine struct {
	currency Currency
}

// New creates an Engine for the given currency.
func New(c Currency) *Engine {
	return &Engine{currency: c}
}

// Currency returns the engine's currency.
func (e *Engine) Currency() Currency { return e.currency }

// ComputeSubtotal returns Σ(unitPrice × quantity) rounded to the minor unit.
func (e *Engine) ComputeSubtotal(items []Item) decimal.Decimal {
	subtotal := decimal.Zero
	for _, it := range items {
		subtotal = subtotal.Add(it.UnitPrice.Mul(decimal.NewFromInt(int64(it.Quantity))))
	}
	return subtotal.Round(e.currency.Exponent)
}

// ApplyCoupon returns the discount the coupon grants on subtotal.
// The result never exceeds the subtotal or the coupon's MaxDiscount and is
// truncated to the minor unit so rounding can never inflate it.
func (e *Engine) ApplyCoupon(subtotal decimal.Decimal, c *Coupon) (decimal.Decimal, error) {
	if err := ValidateCoupon(c); err != nil {
		return decimal.Zero, err
	}
	if subtotal.LessThan(c.MinOrderValue) {
		return decimal.Zero, apperr.InvalidCoupon("coupon %s requires a minimum order of %s", c.Code, c.MinOrderValue.String())
	}

	var discount decimal.Decimal
	switch c.Type {
	case enum.DiscountTypeFixed:
		discount = c.Amount
	default:
		discount = subtotal.Mul(c.Percent).Div(hundred)
	}

	if c.MaxDiscount != nil && discount.GreaterThan(*c.MaxDiscount) {
		discount = *c.MaxDiscount
	}
	if discount.GreaterThan(subtotal) {
		discount = subtotal
	}
	if discount.IsNegative() {
		discount = decimal.Zero
	}
	// Truncate last so a cap finer than the minor unit cannot leak through.
	return discount.Truncate(e.currency.Exponent), nil
}

// ComputeTotal returns max(0, subtotal - discount).
func (e *Engine) ComputeTotal(subtotal, discount decimal.Decimal) decimal.Decimal {
	total := subtotal.Sub(discount)
	if total.IsNegative() {
		return decimal.Zero
	}
	return total
}

// Quote prices items with an optional coupon.
func (e *Engine) Quote(items []Item, c *Coupon) (Summary, error) {
	subtotal := e.ComputeSubtotal(items)
	discount := decimal.Zero
	code := ""
	if c != nil {
		d, err := e.ApplyCoupon(subtotal, c)
		if err != nil {
			return Summary{}, err
		}
		discount = d
		code = c.Code
	}
	return Summary{
		Subtotal:   subtotal,
		Discount:   discount,
		Total:      e.ComputeTotal(subtotal, discount),
		CouponCode: code,
	}, nil
}

// ValidateCoupon checks the coupon's own fields, independent of any cart.
func ValidateCoupon(c *Coupon) error {
	if c == nil {
		return apperr.InvalidCoupon("coupon is required")
	}
	if c.Code == "" {
		return apperr.InvalidCoupon("coupon code is required")
	}
	switch c.Type {
	case "", enum.DiscountTypePercentage:
		if c.Percent.IsNegative() || c.Percent.GreaterThan(hundred) {
			return apperr.InvalidCoupon("coupon %s: percent must be 0-100", c.Code)
		}
	case enum.DiscountTypeFixed:
		if c.Amount.IsNegative() {
			return apperr.InvalidCoupon("coupon %s: fixed discount cannot be negative", c.Code)
		}
	default:
		return apperr.InvalidCoupon("coupon %s: unknown type %q", c.Code, c.Type)
	}
	if c.MaxDiscount != nil && c.MaxDiscount.IsNegative() {
		return apperr.InvalidCoupon("coupon %s: max discount cannot be negative", c.Code)
	}
	return nil
}
