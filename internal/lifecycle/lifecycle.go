// Package lifecycle models an order's status progression, the transitions a
// client may request, and the checkout step that turns a cart into an order.
package lifecycle

import (
	"fmt"
	"slices"
	"time"

	"github.com/bms-fs/order-core/internal/apperr"
	"github.com/bms-fs/order-core/internal/cart"
	"github.com/bms-fs/order-core/internal/enum"
	"github.com/bms-fs/order-core/internal/pricing"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Order is an immutable snapshot of a cart submitted for fulfillment, plus
// its mutable status and flags.
type Order struct {
	ID          string          `json:"id"`
	CartID      string          `json:"cart_id"`
	ShopID      string          `json:"shop_id"`
	UserID      string          `json:"user_id"`
	Status      string          `json:"status"`
	Items       []cart.LineItem `json:"items"`
	Subtotal    decimal.Decimal `json:"subtotal"`
	Discount    decimal.Decimal `json:"discount"`
	TotalPrice  decimal.Decimal `json:"total_price"`
	CouponCode  string          `json:"coupon_code,omitempty"`
	CanCancel   bool            `json:"can_cancel"`
	CanFeedback bool            `json:"can_feedback"`
	IsPaid      bool            `json:"is_paid"`
	CreatedAt   time.Time       `json:"created_at"`
	UpdatedAt   time.Time       `json:"updated_at"`
	Version     int64           `json:"version"`
}

// Clone returns a deep copy.
func (o *Order) Clone() *Order {
	cp := *o
	cp.Items = slices.Clone(o.Items)
	return &cp
}

// ServerState is the authoritative status and flags reported by the backend.
type ServerState struct {
	Status      string
	CanCancel   bool
	CanFeedback bool
	IsPaid      bool
}

// allowedTransitions lists the statuses a client may request next.
// TAKENOVER -> COMPLETE only ever arrives from the server.
var allowedTransitions = map[string][]string{
	enum.OrderStatusOrdered:   {enum.OrderStatusChecking, enum.OrderStatusCancel},
	enum.OrderStatusChecking:  {enum.OrderStatusPreparing, enum.OrderStatusCancel},
	enum.OrderStatusPreparing: {enum.OrderStatusPrepared},
	enum.OrderStatusPrepared:  {enum.OrderStatusTakenOver},
}

var knownStatuses = []string{
	enum.OrderStatusOrdered,
	enum.OrderStatusChecking,
	enum.OrderStatusPreparing,
	enum.OrderStatusPrepared,
	enum.OrderStatusTakenOver,
	enum.OrderStatusComplete,
	enum.OrderStatusCancel,
}

// IsKnownStatus reports whether status is one of the order statuses.
func IsKnownStatus(status string) bool {
	return slices.Contains(knownStatuses, status)
}

// IsTerminal reports whether no further transition is possible.
func IsTerminal(status string) bool {
	return status == enum.OrderStatusComplete || status == enum.OrderStatusCancel
}

// LegalTargets returns the statuses a client may request from status.
// The result is a fresh slice and may be modified by the caller.
func LegalTargets(status string) []string {
	return slices.Clone(allowedTransitions[status])
}

// validateStatusTransition checks the client transition table only.
func validateStatusTransition(current, next string) error {
	if !slices.Contains(allowedTransitions[current], next) {
		return &apperr.TransitionError{From: current, To: next}
	}
	return nil
}

// RequestTransition returns a copy of o moved to target. The input is not
// modified. Cancelling additionally requires CanCancel and an unpaid order.
// Unknown targets are never in the table and fail the same way.
func RequestTransition(o *Order, target string) (*Order, error) {
	if err := validateStatusTransition(o.Status, target); err != nil {
		return nil, err
	}
	if target == enum.OrderStatusCancel {
		if o.IsPaid {
			return nil, apperr.Precondition("order %s is already paid", o.ID)
		}
		if !o.CanCancel {
			return nil, apperr.Precondition("order %s can no longer be cancelled", o.ID)
		}
	}

	next := o.Clone()
	next.Status = target
	switch target {
	case enum.OrderStatusCancel:
		next.CanCancel = false
		next.CanFeedback = false
	case enum.OrderStatusPreparing, enum.OrderStatusPrepared, enum.OrderStatusTakenOver:
		next.CanCancel = false
	}
	return next, nil
}

// ApplyServerStatus overwrites the local status and flags with the backend's
// view. Any known status is accepted, including backwards moves.
func ApplyServerStatus(o *Order, s ServerState) (*Order, error) {
	if !IsKnownStatus(s.Status) {
		return nil, apperr.Validation("unknown order status %q", s.Status)
	}
	next := o.Clone()
	next.Status = s.Status
	next.CanCancel = s.CanCancel
	next.CanFeedback = s.CanFeedback
	next.IsPaid = s.IsPaid
	return next, nil
}

// SubmitFeedback consumes the order's single feedback slot.
func SubmitFeedback(o *Order) (*Order, error) {
	if o.Status != enum.OrderStatusComplete {
		return nil, apperr.Precondition("order %s is %s, feedback needs %s", o.ID, o.Status, enum.OrderStatusComplete)
	}
	if !o.CanFeedback {
		return nil, apperr.Precondition("feedback for order %s was already submitted", o.ID)
	}
	next := o.Clone()
	next.CanFeedback = false
	return next, nil
}

// MarkPaid records a successful payment. A paid order cannot be cancelled.
func MarkPaid(o *Order) (*Order, error) {
	if o.IsPaid {
		return nil, apperr.Precondition("order %s is already paid", o.ID)
	}
	if o.Status == enum.OrderStatusCancel {
		return nil, apperr.Precondition("order %s is cancelled", o.ID)
	}
	next := o.Clone()
	next.IsPaid = true
	next.CanCancel = false
	return next, nil
}

// AuthorizeCheckout is the one place group-cart checkout rights are decided:
// only the cart's creator may check out.
func AuthorizeCheckout(c *cart.Cart, userID string) error {
	if !c.IsOwner(userID) {
		return fmt.Errorf("checkout of cart %s by %s: %w", c.ID, userID, apperr.ErrForbidden)
	}
	return nil
}

// Checkout snapshots c into a new ORDERED order priced by engine.
// The cart itself is not modified.
func Checkout(c *cart.Cart, userID string, engine *pricing.Engine) (*Order, error) {
	if err := AuthorizeCheckout(c, userID); err != nil {
		return nil, err
	}
	if c.IsEmpty() {
		return nil, apperr.Validation("cart %s is empty", c.ID)
	}

	sum, err := engine.Quote(c.PricingItems(), c.Coupon)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	return &Order{
		ID:         uuid.NewString(),
		CartID:     c.ID,
		ShopID:     c.ShopID,
		UserID:     userID,
		Status:     enum.OrderStatusOrdered,
		Items:      slices.Clone(c.Items),
		Subtotal:   sum.Subtotal,
		Discount:   sum.Discount,
		TotalPrice: sum.Total,
		CouponCode: sum.CouponCode,
		CanCancel:  true,
		CreatedAt:  now,
		UpdatedAt:  now,
	}, nil
}
