package remote

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"

	"github.com/bms-fs/order-core/internal/apperr"
	"github.com/bms-fs/order-core/internal/cart"
	"github.com/bms-fs/order-core/internal/enum"
	"github.com/bms-fs/order-core/internal/lifecycle"
	"github.com/bms-fs/order-core/internal/pricing"
	"github.com/shopspring/decimal"
)

// --- Wire types ---

type couponResponse struct {
	Code            string           `json:"code"`
	DiscountType    string           `json:"discountType"`
	PercentDiscount decimal.Decimal  `json:"percentDiscount"`
	FixedDiscount   decimal.Decimal  `json:"fixedDiscount"`
	MaxDiscount     *decimal.Decimal `json:"maxDiscount"`
	MinOrderValue   decimal.Decimal  `json:"minOrderValue"`
}

type orderStateResponse struct {
	Status      string `json:"status"`
	CanCancel   bool   `json:"canCancel"`
	CanFeedback bool   `json:"canFeedback"`
	IsPaid      bool   `json:"isPaid"`
}

// state rejects a successful answer that carries no known status; the
// local order cannot be reconciled against it.
func (r orderStateResponse) state(op string) (lifecycle.ServerState, error) {
	if !lifecycle.IsKnownStatus(r.Status) {
		return lifecycle.ServerState{}, &apperr.RemoteError{Op: op, Err: fmt.Errorf("response has no valid order status (got %q)", r.Status)}
	}
	return lifecycle.ServerState{
		Status:      r.Status,
		CanCancel:   r.CanCancel,
		CanFeedback: r.CanFeedback,
		IsPaid:      r.IsPaid,
	}, nil
}

type createOrderRequest struct {
	ID         string          `json:"id"`
	CartID     string          `json:"cartId"`
	ShopID     string          `json:"shopId"`
	CouponCode string          `json:"couponCode,omitempty"`
	TotalPrice decimal.Decimal `json:"totalPrice"`
}

type changeStatusRequest struct {
	Status string `json:"status"`
}

type isPaidResponse struct {
	IsPaid bool `json:"isPaid"`
}

type payRequest struct {
	Amount decimal.Decimal `json:"amount"`
	Method string          `json:"method"`
}

// Feedback is a customer's rating of a completed order.
type Feedback struct {
	Rating  int    `json:"rating"`
	Content string `json:"content"`
}

// --- Carts ---

// GetCart fetches the server's copy of a cart.
func (c *Client) GetCart(ctx context.Context, token, cartID string) (*cart.Cart, error) {
	var raw json.RawMessage
	if err := c.get(ctx, "get cart", token, "/api/carts/"+url.PathEscape(cartID), &raw); err != nil {
		return nil, err
	}
	sc, err := cart.Hydrate(raw)
	if err != nil {
		return nil, &apperr.RemoteError{Op: "get cart", Err: err}
	}
	return sc, nil
}

// SaveCart replaces the server's copy of the cart.
func (c *Client) SaveCart(ctx context.Context, token string, sc *cart.Cart) error {
	body, err := sc.ServerJSON()
	if err != nil {
		return &apperr.RemoteError{Op: "save cart", Err: err}
	}
	return c.send(ctx, "save cart", http.MethodPut, token, "/api/carts/"+url.PathEscape(sc.ID), json.RawMessage(body), nil)
}

// --- Coupons ---

// GetCoupon looks up a coupon by code.
func (c *Client) GetCoupon(ctx context.Context, token, code string) (*pricing.Coupon, error) {
	var resp couponResponse
	if err := c.get(ctx, "get coupon", token, "/api/coupons/"+url.PathEscape(code), &resp); err != nil {
		return nil, err
	}
	cp := &pricing.Coupon{
		Code:          resp.Code,
		Type:          resp.DiscountType,
		MaxDiscount:   resp.MaxDiscount,
		MinOrderValue: resp.MinOrderValue,
	}
	if cp.Code == "" {
		cp.Code = code
	}
	if cp.Type == enum.DiscountTypeFixed {
		cp.Amount = resp.FixedDiscount
	} else {
		cp.Percent = resp.PercentDiscount
	}
	return cp, nil
}

// --- Orders ---

// CreateOrder submits a checked-out order and returns the server's view of
// its status.
func (c *Client) CreateOrder(ctx context.Context, token string, o *lifecycle.Order) (lifecycle.ServerState, error) {
	req := createOrderRequest{
		ID:         o.ID,
		CartID:     o.CartID,
		ShopID:     o.ShopID,
		CouponCode: o.CouponCode,
		TotalPrice: o.TotalPrice,
	}
	var resp orderStateResponse
	if err := c.send(ctx, "create order", http.MethodPost, token, "/api/orders", req, &resp); err != nil {
		return lifecycle.ServerState{}, err
	}
	return resp.state("create order")
}

// GetOrder fetches the authoritative order.
func (c *Client) GetOrder(ctx context.Context, token, orderID string) (*lifecycle.Order, error) {
	var raw json.RawMessage
	if err := c.get(ctx, "get order", token, "/api/orders/"+url.PathEscape(orderID), &raw); err != nil {
		return nil, err
	}
	o, err := lifecycle.HydrateOrder(raw)
	if err != nil {
		return nil, &apperr.RemoteError{Op: "get order", Err: err}
	}
	return o, nil
}

// ChangeOrderStatus asks the server to move an order to status.
func (c *Client) ChangeOrderStatus(ctx context.Context, token, orderID, status string) (lifecycle.ServerState, error) {
	var resp orderStateResponse
	path := "/api/orders/" + url.PathEscape(orderID) + "/status"
	if err := c.send(ctx, "change order status", http.MethodPut, token, path, changeStatusRequest{Status: status}, &resp); err != nil {
		return lifecycle.ServerState{}, err
	}
	return resp.state("change order status")
}

// CheckOrderIsPaid reports whether the server has recorded a payment.
func (c *Client) CheckOrderIsPaid(ctx context.Context, token, orderID string) (bool, error) {
	var resp isPaidResponse
	if err := c.get(ctx, "check order is paid", token, "/api/orders/"+url.PathEscape(orderID)+"/is-paid", &resp); err != nil {
		return false, err
	}
	return resp.IsPaid, nil
}

// PayOrder records a payment of amount for the order.
func (c *Client) PayOrder(ctx context.Context, token, orderID string, amount decimal.Decimal, method string) error {
	path := "/api/orders/" + url.PathEscape(orderID) + "/payments"
	return c.send(ctx, "pay order", http.MethodPost, token, path, payRequest{Amount: amount, Method: method}, nil)
}

// SubmitFeedback posts the customer's feedback for a completed order.
func (c *Client) SubmitFeedback(ctx context.Context, token, orderID string, fb Feedback) error {
	path := "/api/orders/" + url.PathEscape(orderID) + "/feedbacks"
	return c.send(ctx, "submit feedback", http.MethodPost, token, path, fb, nil)
}
