package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/bms-fs/order-core/internal/apperr"
	"github.com/bms-fs/order-core/internal/auth"
	"github.com/bms-fs/order-core/internal/cart"
	"github.com/bms-fs/order-core/internal/enum"
	"github.com/bms-fs/order-core/internal/logging"
	"github.com/bms-fs/order-core/internal/pricing"
	"github.com/bms-fs/order-core/internal/store"
	"go.uber.org/zap"
)

// CartView is a cart with its current price summary. CouponError is set
// when the selected coupon no longer applies; Summary is then computed
// without it.
type CartView struct {
	Cart        *cart.Cart      `json:"cart"`
	Summary     pricing.Summary `json:"summary"`
	CouponError string          `json:"coupon_error,omitempty"`
}

// CartService handles cart business logic.
type CartService struct {
	store  store.Store
	remote Remote
	engine *pricing.Engine
	locks  *KeyedLock
	logger *zap.Logger
}

// NewCartService creates a new CartService. rm may be nil.
func NewCartService(st store.Store, rm Remote, engine *pricing.Engine, locks *KeyedLock, logger *zap.Logger) *CartService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CartService{store: st, remote: rm, engine: engine, locks: locks, logger: logger.Named("cart")}
}

// Create opens a new cart owned by the caller. For group carts the access
// token other users join with is returned once; only its hash is kept.
func (s *CartService) Create(ctx context.Context, sess Session, scope, shopID string) (*CartView, string, error) {
	if shopID == "" {
		return nil, "", apperr.Validation("shop id is required")
	}
	c, err := cart.New("", scope, shopID, sess.UserID)
	if err != nil {
		return nil, "", err
	}

	var accessToken string
	if scope == enum.CartScopeGroup {
		token, hash, err := auth.NewAccessToken()
		if err != nil {
			return nil, "", fmt.Errorf("generate access token: %w", err)
		}
		accessToken = token
		c.AccessTokenHash = hash
	}

	// Nothing is stored locally until the backend has the cart.
	if s.remote != nil {
		if err := s.remote.SaveCart(ctx, sess.Token, c); err != nil {
			return nil, "", remoteFailure("create cart", err)
		}
	}
	if err := s.store.CreateCart(ctx, c); err != nil {
		return nil, "", fmt.Errorf("store cart: %w", err)
	}

	s.logger.Info("cart created",
		zap.String("cart_id", c.ID),
		zap.String("scope", scope),
		zap.String("shop_id", shopID),
		zap.String("user_id", sess.UserID),
	)
	return s.view(c), accessToken, nil
}

// Get returns a cart the caller may view. A cart missing locally is
// fetched from the backend and mirrored.
func (s *CartService) Get(ctx context.Context, sess Session, cartID string) (*CartView, error) {
	c, err := s.store.GetCart(ctx, cartID)
	if errors.Is(err, apperr.ErrNotFound) && s.remote != nil {
		c, err = s.fetch(ctx, sess, cartID)
	}
	if err != nil {
		return nil, err
	}
	if !c.CanView(sess.UserID) {
		return nil, fmt.Errorf("view cart %s: %w", cartID, apperr.ErrForbidden)
	}
	return s.view(c), nil
}

func (s *CartService) fetch(ctx context.Context, sess Session, cartID string) (*cart.Cart, error) {
	c, err := s.remote.GetCart(ctx, sess.Token, cartID)
	if err != nil {
		if rejectedByBackend(err) {
			return nil, fmt.Errorf("cart %s: %w", cartID, apperr.ErrNotFound)
		}
		return nil, remoteFailure("get cart", err)
	}
	if err := s.store.CreateCart(ctx, c); err != nil && !errors.Is(err, apperr.ErrConflict) {
		return nil, fmt.Errorf("mirror cart: %w", err)
	}
	// Someone else may have mirrored it first.
	return s.store.GetCart(ctx, cartID)
}

// Join adds the caller to a group cart after checking its access token.
func (s *CartService) Join(ctx context.Context, sess Session, cartID, accessToken string) (*CartView, error) {
	authorize := func(c *cart.Cart) error {
		if c.CanEdit(sess.UserID) {
			return nil
		}
		if c.Scope != enum.CartScopeGroup || c.AccessTokenHash == "" {
			return fmt.Errorf("join cart %s: %w", cartID, apperr.ErrForbidden)
		}
		if !auth.CheckAccessToken(c.AccessTokenHash, accessToken) {
			return fmt.Errorf("join cart %s: bad access token: %w", cartID, apperr.ErrForbidden)
		}
		return nil
	}
	return s.mutate(ctx, sess, cartID, "join cart", authorize, func(c *cart.Cart) error {
		return c.Join(sess.UserID)
	})
}

// AddItem adds a line or merges it into an existing one.
func (s *CartService) AddItem(ctx context.Context, sess Session, cartID string, in cart.NewItem) (*CartView, error) {
	return s.mutate(ctx, sess, cartID, "add item", s.canEdit(sess), func(c *cart.Cart) error {
		_, err := c.AddItem(in)
		return err
	})
}

// SetQuantity changes a line's quantity, clamped at 1.
func (s *CartService) SetQuantity(ctx context.Context, sess Session, cartID, lineItemID string, quantity int) (*CartView, error) {
	return s.mutate(ctx, sess, cartID, "set quantity", s.canEdit(sess), func(c *cart.Cart) error {
		_, err := c.SetQuantity(lineItemID, quantity)
		return err
	})
}

// RemoveItem deletes a line. Removing a missing line succeeds without a
// write.
func (s *CartService) RemoveItem(ctx context.Context, sess Session, cartID, lineItemID string) (*CartView, error) {
	return s.mutate(ctx, sess, cartID, "remove item", s.canEdit(sess), func(c *cart.Cart) error {
		if !c.RemoveItem(lineItemID) {
			return errUnchanged
		}
		return nil
	})
}

// Clear empties the cart and drops its coupon.
func (s *CartService) Clear(ctx context.Context, sess Session, cartID string) (*CartView, error) {
	return s.mutate(ctx, sess, cartID, "clear cart", s.canEdit(sess), func(c *cart.Cart) error {
		c.Clear()
		return nil
	})
}

// ApplyCoupon looks the code up on the backend and selects it if the cart
// currently qualifies.
func (s *CartService) ApplyCoupon(ctx context.Context, sess Session, cartID, code string) (*CartView, error) {
	code = strings.TrimSpace(code)
	if code == "" {
		return nil, apperr.InvalidCoupon("coupon code is required")
	}
	if s.remote == nil {
		return nil, &apperr.RemoteError{Op: "get coupon", Err: errors.New("no backend configured")}
	}

	coupon, err := s.remote.GetCoupon(ctx, sess.Token, code)
	if err != nil {
		if rejectedByBackend(err) {
			return nil, fmt.Errorf("coupon %s: %s: %w", code, strings.Join(apperr.Messages(err), "; "), apperr.ErrInvalidCoupon)
		}
		return nil, remoteFailure("get coupon", err)
	}

	return s.mutate(ctx, sess, cartID, "apply coupon", s.canEdit(sess), func(c *cart.Cart) error {
		subtotal := s.engine.ComputeSubtotal(c.PricingItems())
		if _, err := s.engine.ApplyCoupon(subtotal, coupon); err != nil {
			return err
		}
		c.SelectCoupon(*coupon)
		return nil
	})
}

// RemoveCoupon drops the selected coupon.
func (s *CartService) RemoveCoupon(ctx context.Context, sess Session, cartID string) (*CartView, error) {
	return s.mutate(ctx, sess, cartID, "remove coupon", s.canEdit(sess), func(c *cart.Cart) error {
		if c.Coupon == nil {
			return errUnchanged
		}
		c.ClearCoupon()
		return nil
	})
}

// Quote prices the cart. Unlike Get it fails if the coupon no longer
// applies.
func (s *CartService) Quote(ctx context.Context, sess Session, cartID string) (pricing.Summary, error) {
	c, err := s.store.GetCart(ctx, cartID)
	if err != nil {
		return pricing.Summary{}, err
	}
	if !c.CanView(sess.UserID) {
		return pricing.Summary{}, fmt.Errorf("quote cart %s: %w", cartID, apperr.ErrForbidden)
	}
	return s.engine.Quote(c.PricingItems(), c.Coupon)
}

// errUnchanged tells mutate the change was a no-op.
var errUnchanged = errors.New("unchanged")

func (s *CartService) canEdit(sess Session) func(*cart.Cart) error {
	return func(c *cart.Cart) error {
		if !c.CanEdit(sess.UserID) {
			return fmt.Errorf("edit cart %s: %w", c.ID, apperr.ErrForbidden)
		}
		return nil
	}
}

// mutate runs fn against a copy of the stored cart under the cart's lock,
// saves it, and pushes it to the backend. A failed push restores the
// previous contents.
func (s *CartService) mutate(ctx context.Context, sess Session, cartID, op string, authorize, fn func(*cart.Cart) error) (*CartView, error) {
	unlock, err := s.locks.Lock(ctx, cartKey(cartID))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	defer unlock()

	prev, err := s.store.GetCart(ctx, cartID)
	if err != nil {
		return nil, err
	}
	if err := authorize(prev); err != nil {
		return nil, err
	}

	next := prev.Clone()
	if err := fn(next); err != nil {
		if errors.Is(err, errUnchanged) {
			return s.view(prev), nil
		}
		return nil, err
	}

	if err := s.store.UpdateCart(ctx, next, prev.Version); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	if s.remote != nil {
		if err := s.remote.SaveCart(ctx, sess.Token, next); err != nil {
			s.rollback(ctx, prev, next.Version, op)
			return nil, remoteFailure(op, err)
		}
	}
	return s.view(next), nil
}

func (s *CartService) rollback(ctx context.Context, prev *cart.Cart, currentVersion int64, op string) {
	restored := prev.Clone()
	log := logging.FromContext(ctx, s.logger)
	if err := s.store.UpdateCart(context.WithoutCancel(ctx), restored, currentVersion); err != nil {
		log.Error("cart rollback failed",
			zap.String("cart_id", prev.ID),
			zap.String("op", op),
			zap.Error(err),
		)
		return
	}
	log.Warn("cart change rolled back",
		zap.String("cart_id", prev.ID),
		zap.String("op", op),
	)
}

func (s *CartService) view(c *cart.Cart) *CartView {
	v := &CartView{Cart: c}
	sum, err := s.engine.Quote(c.PricingItems(), c.Coupon)
	if err != nil {
		v.CouponError = err.Error()
		sum, _ = s.engine.Quote(c.PricingItems(), nil)
	}
	v.Summary = sum
	return v
}
