package lifecycle

import (
	"encoding/json"

	"github.com/bms-fs/order-core/internal/apperr"
	"github.com/bms-fs/order-core/internal/cart"
	"github.com/shopspring/decimal"
)

type serverOrder struct {
	ID          string              `json:"id"`
	CartID      string              `json:"cartId"`
	ShopID      string              `json:"shopId"`
	UserID      string              `json:"userId"`
	Status      string              `json:"status"`
	TotalPrice  decimal.Decimal     `json:"totalPrice"`
	Discount    decimal.Decimal     `json:"discount"`
	CouponCode  string              `json:"couponCode"`
	CanCancel   bool                `json:"canCancel"`
	CanFeedback bool                `json:"canFeedback"`
	IsPaid      bool                `json:"isPaid"`
	Details     []serverOrderDetail `json:"orderDetails"`
}

type serverOrderDetail struct {
	ID          string          `json:"id"`
	ProductID   string          `json:"productId"`
	ProductName string          `json:"productName"`
	Price       decimal.Decimal `json:"price"`
	Quantity    int             `json:"quantity"`
	Note        string          `json:"note"`
}

// HydrateOrder builds an Order from the backend's order JSON. The subtotal
// is derived from the detail lines.
func HydrateOrder(data []byte) (*Order, error) {
	var so serverOrder
	if err := json.Unmarshal(data, &so); err != nil {
		return nil, apperr.Validation("decode server order: %v", err)
	}
	if so.ID == "" {
		return nil, apperr.Validation("server order has no id")
	}
	if !IsKnownStatus(so.Status) {
		return nil, apperr.Validation("server order %s: unknown status %q", so.ID, so.Status)
	}

	o := &Order{
		ID:          so.ID,
		CartID:      so.CartID,
		ShopID:      so.ShopID,
		UserID:      so.UserID,
		Status:      so.Status,
		Items:       make([]cart.LineItem, 0, len(so.Details)),
		Discount:    so.Discount,
		TotalPrice:  so.TotalPrice,
		CouponCode:  so.CouponCode,
		CanCancel:   so.CanCancel,
		CanFeedback: so.CanFeedback,
		IsPaid:      so.IsPaid,
	}
	subtotal := decimal.Zero
	for i, d := range so.Details {
		if d.Quantity < 1 || d.Price.IsNegative() {
			return nil, apperr.Validation("server order %s: orderDetails[%d] has invalid price or quantity", so.ID, i)
		}
		o.Items = append(o.Items, cart.LineItem{
			ID:        d.ID,
			ProductID: d.ProductID,
			Name:      d.ProductName,
			UnitPrice: d.Price,
			Quantity:  d.Quantity,
			Note:      d.Note,
		})
		subtotal = subtotal.Add(d.Price.Mul(decimal.NewFromInt(int64(d.Quantity))))
	}
	o.Subtotal = subtotal
	return o, nil
}

// State returns the order's status and flags as a ServerState.
func (o *Order) State() ServerState {
	return ServerState{
		Status:      o.Status,
		CanCancel:   o.CanCancel,
		CanFeedback: o.CanFeedback,
		IsPaid:      o.IsPaid,
	}
}
