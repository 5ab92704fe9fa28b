// Package service mirrors carts and orders locally and keeps them in step
// with the BMS backend.
//
// Cart mutations are optimistic: the new cart is saved locally, pushed to
// the backend, and restored to its previous snapshot if the push fails.
// Order mutations go to the backend first because the server owns order
// status. Every mutation holds a per-id lock for its whole duration.
package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/bms-fs/order-core/internal/apperr"
	"github.com/bms-fs/order-core/internal/cart"
	"github.com/bms-fs/order-core/internal/enum"
	"github.com/bms-fs/order-core/internal/lifecycle"
	"github.com/bms-fs/order-core/internal/pricing"
	"github.com/bms-fs/order-core/internal/remote"
	"github.com/shopspring/decimal"
)

// Remote is the subset of the BMS client the services call.
// A nil Remote runs the services offline against the local store only.
type Remote interface {
	GetCart(ctx context.Context, token, cartID string) (*cart.Cart, error)
	SaveCart(ctx context.Context, token string, c *cart.Cart) error
	GetCoupon(ctx context.Context, token, code string) (*pricing.Coupon, error)
	CreateOrder(ctx context.Context, token string, o *lifecycle.Order) (lifecycle.ServerState, error)
	GetOrder(ctx context.Context, token, orderID string) (*lifecycle.Order, error)
	ChangeOrderStatus(ctx context.Context, token, orderID, status string) (lifecycle.ServerState, error)
	CheckOrderIsPaid(ctx context.Context, token, orderID string) (bool, error)
	PayOrder(ctx context.Context, token, orderID string, amount decimal.Decimal, method string) error
	SubmitFeedback(ctx context.Context, token, orderID string, fb remote.Feedback) error
}

// Notifier pushes an event to every subscriber of topic.
type Notifier interface {
	Notify(topic, eventType string, payload any)
}

// Session is the caller's identity, taken from the verified bearer token.
// Token is forwarded to the backend as-is.
type Session struct {
	UserID string
	ShopID string
	Role   string
	Token  string
}

func (s Session) isStaffOf(shopID string) bool {
	return s.Role == enum.UserRoleStaff && s.ShopID != "" && s.ShopID == shopID
}

// OrderEvent is the payload of new-order and order-notification events.
// Clients treat it as a signal to re-fetch.
type OrderEvent struct {
	OrderID string `json:"order_id"`
	Status  string `json:"status"`
}

func cartKey(id string) string  { return "cart:" + id }
func orderKey(id string) string { return "order:" + id }

func shopTopic(shopID string) string { return enum.TopicShopPrefix + shopID }
func userTopic(userID string) string { return enum.TopicUserPrefix + userID }

// remoteFailure makes sure err matches apperr.ErrRemoteSync.
func remoteFailure(op string, err error) error {
	if errors.Is(err, apperr.ErrRemoteSync) {
		return fmt.Errorf("%s: %w", op, err)
	}
	return &apperr.RemoteError{Op: op, Err: err}
}

// rejectedByBackend reports whether err is a final business answer from
// the backend rather than a transport or server failure.
func rejectedByBackend(err error) bool {
	var re *apperr.RemoteError
	if !errors.As(err, &re) {
		return false
	}
	return re.StatusCode >= 200 && re.StatusCode < 500
}
