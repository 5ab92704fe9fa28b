package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/bms-fs/order-core/internal/apperr"
	"github.com/bms-fs/order-core/internal/enum"
	"github.com/bms-fs/order-core/internal/lifecycle"
	"github.com/bms-fs/order-core/internal/logging"
	"github.com/bms-fs/order-core/internal/pricing"
	"github.com/bms-fs/order-core/internal/remote"
	"github.com/bms-fs/order-core/internal/store"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

const maxRating = 5

// OrderService handles order business logic.
type OrderService struct {
	store    store.Store
	remote   Remote
	engine   *pricing.Engine
	locks    *KeyedLock
	notifier Notifier
	logger   *zap.Logger

	refreshes singleflight.Group
}

// NewOrderService creates a new OrderService. rm and notifier may be nil.
func NewOrderService(st store.Store, rm Remote, engine *pricing.Engine, locks *KeyedLock, notifier Notifier, logger *zap.Logger) *OrderService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &OrderService{
		store:    st,
		remote:   rm,
		engine:   engine,
		locks:    locks,
		notifier: notifier,
		logger:   logger.Named("order"),
	}
}

// Checkout turns the caller's cart into an ORDERED order. Only the cart
// owner may check out. The cart is left as is until the order is paid.
func (s *OrderService) Checkout(ctx context.Context, sess Session, cartID string) (*lifecycle.Order, error) {
	unlock, err := s.locks.Lock(ctx, cartKey(cartID))
	if err != nil {
		return nil, fmt.Errorf("checkout: %w", err)
	}
	defer unlock()

	c, err := s.store.GetCart(ctx, cartID)
	if err != nil {
		return nil, err
	}
	o, err := lifecycle.Checkout(c, sess.UserID, s.engine)
	if err != nil {
		return nil, err
	}

	if s.remote != nil {
		state, err := s.remote.CreateOrder(ctx, sess.Token, o)
		if err != nil {
			return nil, remoteFailure("create order", err)
		}
		if o, err = lifecycle.ApplyServerStatus(o, state); err != nil {
			return nil, err
		}
	}

	if err := s.store.CreateOrder(ctx, o); err != nil {
		return nil, fmt.Errorf("store order: %w", err)
	}

	s.logger.Info("order placed",
		zap.String("order_id", o.ID),
		zap.String("cart_id", cartID),
		zap.String("shop_id", o.ShopID),
		zap.String("total", o.TotalPrice.String()),
	)
	s.notify(shopTopic(o.ShopID), enum.EventNewOrder, o)
	s.notify(userTopic(o.UserID), enum.EventOrderNotification, o)
	return o, nil
}

// Get returns an order visible to the caller: its customer or staff of
// its shop.
func (s *OrderService) Get(ctx context.Context, sess Session, orderID string) (*lifecycle.Order, error) {
	o, err := s.store.GetOrder(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if err := canView(sess, o); err != nil {
		return nil, err
	}
	return o, nil
}

// List returns the caller's orders, newest first.
func (s *OrderService) List(ctx context.Context, sess Session, limit, offset int) ([]*lifecycle.Order, error) {
	return s.store.ListOrdersByUser(ctx, sess.UserID, limit, offset)
}

// ListShop returns a shop's orders for its staff, optionally filtered by
// status.
func (s *OrderService) ListShop(ctx context.Context, sess Session, shopID, status string, limit, offset int) ([]*lifecycle.Order, error) {
	if !sess.isStaffOf(shopID) {
		return nil, fmt.Errorf("list orders of shop %s: %w", shopID, apperr.ErrForbidden)
	}
	if status != "" && !lifecycle.IsKnownStatus(status) {
		return nil, apperr.Validation("unknown order status %q", status)
	}
	return s.store.ListOrdersByShop(ctx, shopID, status, limit, offset)
}

// Transition requests a status change. Shop staff drive the order
// forward; the customer may only cancel, which goes through Cancel.
func (s *OrderService) Transition(ctx context.Context, sess Session, orderID, target string) (*lifecycle.Order, error) {
	if target == enum.OrderStatusCancel {
		return s.Cancel(ctx, sess, orderID)
	}
	return s.mutate(ctx, sess, orderID, "change status", func(o *lifecycle.Order) error {
		if !sess.isStaffOf(o.ShopID) {
			return fmt.Errorf("change status of order %s: %w", o.ID, apperr.ErrForbidden)
		}
		return nil
	}, func(ctx context.Context, o *lifecycle.Order) (*lifecycle.Order, error) {
		next, err := lifecycle.RequestTransition(o, target)
		if err != nil {
			return nil, err
		}
		return s.pushStatus(ctx, sess, next)
	})
}

// Cancel cancels an order for its customer or its shop. The backend's paid
// flag is checked first so a paid order is never cancelled on stale data.
func (s *OrderService) Cancel(ctx context.Context, sess Session, orderID string) (*lifecycle.Order, error) {
	return s.mutate(ctx, sess, orderID, "cancel order", func(o *lifecycle.Order) error {
		if o.UserID != sess.UserID && !sess.isStaffOf(o.ShopID) {
			return fmt.Errorf("cancel order %s: %w", o.ID, apperr.ErrForbidden)
		}
		return nil
	}, func(ctx context.Context, o *lifecycle.Order) (*lifecycle.Order, error) {
		if s.remote != nil && !o.IsPaid {
			paid, err := s.remote.CheckOrderIsPaid(ctx, sess.Token, o.ID)
			if err != nil {
				return nil, remoteFailure("check order paid", err)
			}
			if paid {
				return nil, apperr.Precondition("order %s has been paid", o.ID)
			}
		}
		next, err := lifecycle.RequestTransition(o, enum.OrderStatusCancel)
		if err != nil {
			return nil, err
		}
		return s.pushStatus(ctx, sess, next)
	})
}

func (s *OrderService) pushStatus(ctx context.Context, sess Session, next *lifecycle.Order) (*lifecycle.Order, error) {
	if s.remote == nil {
		return next, nil
	}
	state, err := s.remote.ChangeOrderStatus(ctx, sess.Token, next.ID, next.Status)
	if err != nil {
		return nil, remoteFailure("change order status", err)
	}
	return lifecycle.ApplyServerStatus(next, state)
}

// Refresh re-reads the order from the backend and adopts its status and
// flags. Concurrent refreshes of the same order share one fetch.
func (s *OrderService) Refresh(ctx context.Context, sess Session, orderID string) (*lifecycle.Order, error) {
	if s.remote == nil {
		return s.Get(ctx, sess, orderID)
	}
	// Check access before hitting the backend.
	if _, err := s.Get(ctx, sess, orderID); err != nil {
		return nil, err
	}

	v, err, _ := s.refreshes.Do(orderID, func() (any, error) {
		return s.remote.GetOrder(context.WithoutCancel(ctx), sess.Token, orderID)
	})
	if err != nil {
		return nil, remoteFailure("get order", err)
	}
	state := v.(*lifecycle.Order).State()

	return s.mutate(ctx, sess, orderID, "refresh order", func(*lifecycle.Order) error { return nil },
		func(_ context.Context, o *lifecycle.Order) (*lifecycle.Order, error) {
			if o.State() == state {
				return nil, errUnchanged
			}
			return lifecycle.ApplyServerStatus(o, state)
		})
}

// SubmitFeedback records the customer's rating of a completed order.
// Each order accepts feedback once.
func (s *OrderService) SubmitFeedback(ctx context.Context, sess Session, orderID string, rating int, content string) (*lifecycle.Order, error) {
	if rating < 1 || rating > maxRating {
		return nil, apperr.Validation("rating must be between 1 and %d, got %d", maxRating, rating)
	}
	return s.mutate(ctx, sess, orderID, "submit feedback", s.isCustomer(sess), func(ctx context.Context, o *lifecycle.Order) (*lifecycle.Order, error) {
		next, err := lifecycle.SubmitFeedback(o)
		if err != nil {
			return nil, err
		}
		if s.remote != nil {
			fb := remote.Feedback{Rating: rating, Content: strings.TrimSpace(content)}
			if err := s.remote.SubmitFeedback(ctx, sess.Token, o.ID, fb); err != nil {
				return nil, remoteFailure("submit feedback", err)
			}
		}
		return next, nil
	})
}

// Pay settles the order's total. A paid order can no longer be cancelled
// and its source cart is emptied.
func (s *OrderService) Pay(ctx context.Context, sess Session, orderID, method string) (*lifecycle.Order, error) {
	method = strings.TrimSpace(method)
	if method == "" {
		return nil, apperr.Validation("payment method is required")
	}
	o, err := s.mutate(ctx, sess, orderID, "pay order", s.isCustomer(sess), func(ctx context.Context, o *lifecycle.Order) (*lifecycle.Order, error) {
		next, err := lifecycle.MarkPaid(o)
		if err != nil {
			return nil, err
		}
		if s.remote != nil {
			if err := s.remote.PayOrder(ctx, sess.Token, o.ID, o.TotalPrice, method); err != nil {
				return nil, remoteFailure("pay order", err)
			}
		}
		return next, nil
	})
	if err != nil {
		return nil, err
	}
	s.clearSourceCart(ctx, sess, o.CartID)
	return o, nil
}

// clearSourceCart empties the cart an order came from. Failure is logged
// and never fails the payment.
func (s *OrderService) clearSourceCart(ctx context.Context, sess Session, cartID string) {
	log := logging.FromContext(ctx, s.logger).With(zap.String("cart_id", cartID))

	unlock, err := s.locks.Lock(ctx, cartKey(cartID))
	if err != nil {
		log.Warn("clear paid cart: lock", zap.Error(err))
		return
	}
	defer unlock()

	c, err := s.store.GetCart(ctx, cartID)
	if err != nil {
		log.Warn("clear paid cart: load", zap.Error(err))
		return
	}
	if c.IsEmpty() && c.Coupon == nil {
		return
	}
	next := c.Clone()
	next.Clear()
	if err := s.store.UpdateCart(ctx, next, c.Version); err != nil {
		log.Warn("clear paid cart: save", zap.Error(err))
		return
	}
	if s.remote != nil {
		if err := s.remote.SaveCart(ctx, sess.Token, next); err != nil {
			log.Warn("clear paid cart: push", zap.Error(err))
		}
	}
}

func (s *OrderService) isCustomer(sess Session) func(*lifecycle.Order) error {
	return func(o *lifecycle.Order) error {
		if o.UserID != sess.UserID {
			return fmt.Errorf("order %s: %w", o.ID, apperr.ErrForbidden)
		}
		return nil
	}
}

func canView(sess Session, o *lifecycle.Order) error {
	if o.UserID == sess.UserID || sess.isStaffOf(o.ShopID) {
		return nil
	}
	return fmt.Errorf("view order %s: %w", o.ID, apperr.ErrForbidden)
}

// mutate loads the order under its lock, applies fn and stores the result.
// fn talks to the backend itself, so nothing is stored if it fails.
// Status changes are published to the customer and the shop.
func (s *OrderService) mutate(
	ctx context.Context,
	sess Session,
	orderID, op string,
	authorize func(*lifecycle.Order) error,
	fn func(context.Context, *lifecycle.Order) (*lifecycle.Order, error),
) (*lifecycle.Order, error) {
	unlock, err := s.locks.Lock(ctx, orderKey(orderID))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	defer unlock()

	prev, err := s.store.GetOrder(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if err := canView(sess, prev); err != nil {
		return nil, err
	}
	if err := authorize(prev); err != nil {
		return nil, err
	}

	next, err := fn(ctx, prev)
	if err != nil {
		if errors.Is(err, errUnchanged) {
			return prev, nil
		}
		return nil, err
	}

	if err := s.store.UpdateOrder(ctx, next, prev.Version); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	logging.FromContext(ctx, s.logger).Info(op,
		zap.String("order_id", next.ID),
		zap.String("from", prev.Status),
		zap.String("to", next.Status),
	)
	if next.Status != prev.Status {
		s.notify(userTopic(next.UserID), enum.EventOrderNotification, next)
		s.notify(shopTopic(next.ShopID), enum.EventOrderNotification, next)
	}
	return next, nil
}

func (s *OrderService) notify(topic, eventType string, o *lifecycle.Order) {
	if s.notifier == nil {
		return
	}
	s.notifier.Notify(topic, eventType, OrderEvent{OrderID: o.ID, Status: o.Status})
}
