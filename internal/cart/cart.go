// Package cart holds the client-side mirror of a shop or group cart.
//
// A Cart is a plain value guarded by its caller; it does no I/O. Persisting
// it and syncing with the backend is the service layer's job.
package cart

import (
	"fmt"
	"slices"

	"github.com/bms-fs/order-core/internal/apperr"
	"github.com/bms-fs/order-core/internal/enum"
	"github.com/bms-fs/order-core/internal/pricing"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// LineItem is one product row in a cart.
type LineItem struct {
	ID        string          `json:"id"`
	ProductID string          `json:"product_id"`
	Name      string          `json:"name"`
	UnitPrice decimal.Decimal `json:"unit_price"`
	Quantity  int             `json:"quantity"`
	Note      string          `json:"note,omitempty"`
}

// NewItem is the input for AddItem.
type NewItem struct {
	ProductID string
	Name      string
	UnitPrice decimal.Decimal
	Quantity  int
	Note      string
}

// Cart is a shop-scoped (INDIVIDUAL) or shared (GROUP) cart.
// Items keep insertion order, which is also display order.
type Cart struct {
	ID              string          `json:"id"`
	Scope           string          `json:"scope"`
	ShopID          string          `json:"shop_id"`
	OwnerUserID     string          `json:"owner_user_id"`
	Members         []string        `json:"members,omitempty"`
	Items           []LineItem      `json:"items"`
	Coupon          *pricing.Coupon `json:"coupon,omitempty"`
	AccessTokenHash string          `json:"-"`
	Version         int64           `json:"version"`
}

// New creates an empty cart. An empty id gets a generated one.
func New(id, scope, shopID, ownerUserID string) (*Cart, error) {
	if scope != enum.CartScopeIndividual && scope != enum.CartScopeGroup {
		return nil, apperr.Validation("invalid cart scope %q", scope)
	}
	if ownerUserID == "" {
		return nil, apperr.Validation("owner user id is required")
	}
	if id == "" {
		id = uuid.NewString()
	}
	return &Cart{
		ID:          id,
		Scope:       scope,
		ShopID:      shopID,
		OwnerUserID: ownerUserID,
		Items:       []LineItem{},
	}, nil
}

// AddItem appends a line, or increments the existing line with the same
// product and note. The returned LineItem reflects the stored state.
func (c *Cart) AddItem(in NewItem) (LineItem, error) {
	if in.ProductID == "" {
		return LineItem{}, apperr.Validation("product id is required")
	}
	if in.Quantity < 1 {
		return LineItem{}, apperr.Validation("quantity must be >= 1, got %d", in.Quantity)
	}
	if in.UnitPrice.IsNegative() {
		return LineItem{}, apperr.Validation("unit price cannot be negative")
	}

	for i := range c.Items {
		if c.Items[i].ProductID == in.ProductID && c.Items[i].Note == in.Note {
			c.Items[i].Quantity += in.Quantity
			return c.Items[i], nil
		}
	}

	item := LineItem{
		ID:        uuid.NewString(),
		ProductID: in.ProductID,
		Name:      in.Name,
		UnitPrice: in.UnitPrice,
		Quantity:  in.Quantity,
		Note:      in.Note,
	}
	c.Items = append(c.Items, item)
	return item, nil
}

// SetQuantity sets a line's quantity. Values below 1 are clamped to 1;
// removal only happens through RemoveItem.
func (c *Cart) SetQuantity(lineItemID string, quantity int) (LineItem, error) {
	i := c.indexOf(lineItemID)
	if i < 0 {
		return LineItem{}, fmt.Errorf("line item %s: %w", lineItemID, apperr.ErrNotFound)
	}
	if quantity < 1 {
		quantity = 1
	}
	c.Items[i].Quantity = quantity
	return c.Items[i], nil
}

// RemoveItem deletes a line. Removing an id that is not present is a no-op
// and reports false.
func (c *Cart) RemoveItem(lineItemID string) bool {
	i := c.indexOf(lineItemID)
	if i < 0 {
		return false
	}
	c.Items = slices.Delete(c.Items, i, i+1)
	return true
}

// Clear empties the cart and drops the selected coupon.
func (c *Cart) Clear() {
	c.Items = []LineItem{}
	c.Coupon = nil
}

// SelectCoupon replaces any previously selected coupon.
func (c *Cart) SelectCoupon(cp pricing.Coupon) {
	c.Coupon = &cp
}

// ClearCoupon drops the selected coupon, if any.
func (c *Cart) ClearCoupon() {
	c.Coupon = nil
}

// Item returns the line with the given id.
func (c *Cart) Item(lineItemID string) (LineItem, bool) {
	i := c.indexOf(lineItemID)
	if i < 0 {
		return LineItem{}, false
	}
	return c.Items[i], true
}

// IsEmpty reports whether the cart has no lines.
func (c *Cart) IsEmpty() bool { return len(c.Items) == 0 }

// PricingItems projects the lines for the pricing engine.
func (c *Cart) PricingItems() []pricing.Item {
	out := make([]pricing.Item, len(c.Items))
	for i, it := range c.Items {
		out[i] = pricing.Item{UnitPrice: it.UnitPrice, Quantity: it.Quantity}
	}
	return out
}

// Clone returns a deep copy.
func (c *Cart) Clone() *Cart {
	cp := *c
	cp.Items = slices.Clone(c.Items)
	if cp.Items == nil {
		cp.Items = []LineItem{}
	}
	cp.Members = slices.Clone(c.Members)
	if c.Coupon != nil {
		coupon := *c.Coupon
		if c.Coupon.MaxDiscount != nil {
			m := *c.Coupon.MaxDiscount
			coupon.MaxDiscount = &m
		}
		cp.Coupon = &coupon
	}
	return &cp
}

// --- Group access ---

// IsOwner reports whether userID created the cart.
func (c *Cart) IsOwner(userID string) bool {
	return userID != "" && userID == c.OwnerUserID
}

// IsMember reports whether userID joined a group cart.
func (c *Cart) IsMember(userID string) bool {
	return userID != "" && slices.Contains(c.Members, userID)
}

// CanView reports whether userID may see the cart. Viewing and editing
// share the same rule.
func (c *Cart) CanView(userID string) bool { return c.CanEdit(userID) }

// CanEdit reports whether userID may view or add to the cart.
// Individual carts are owner-only; group carts admit joined members.
func (c *Cart) CanEdit(userID string) bool {
	if c.IsOwner(userID) {
		return true
	}
	return c.Scope == enum.CartScopeGroup && c.IsMember(userID)
}

// Join adds userID as a group member. Joining twice is a no-op.
func (c *Cart) Join(userID string) error {
	if c.Scope != enum.CartScopeGroup {
		return apperr.Precondition("cart %s is not a group cart", c.ID)
	}
	if userID == "" {
		return apperr.Validation("user id is required")
	}
	if c.IsOwner(userID) || c.IsMember(userID) {
		return nil
	}
	c.Members = append(c.Members, userID)
	return nil
}

func (c *Cart) indexOf(lineItemID string) int {
	return slices.IndexFunc(c.Items, func(it LineItem) bool { return it.ID == lineItemID })
}
