package service

import (
	"context"
	"errors"
	"testing"

	"github.com/bms-fs/order-core/internal/apperr"
	"github.com/bms-fs/order-core/internal/cart"
	"github.com/bms-fs/order-core/internal/enum"
	"github.com/bms-fs/order-core/internal/pricing"
	"github.com/shopspring/decimal"
)

func TestCartCreate_Individual(t *testing.T) {
	ts := newTestServices(&mockRemote{})
	ctx := context.Background()

	view, token, err := ts.carts.Create(ctx, owner, enum.CartScopeIndividual, "shop-1")
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if token != "" {
		t.Errorf("individual cart got an access token")
	}
	if view.Cart.OwnerUserID != owner.UserID || view.Cart.Version != 1 {
		t.Errorf("unexpected cart: %+v", view.Cart)
	}
	if ts.remote.count("SaveCart") != 1 {
		t.Errorf("expected one push, got %d", ts.remote.count("SaveCart"))
	}
}

func TestCartCreate_Validation(t *testing.T) {
	ts := newTestServices(nil)
	ctx := context.Background()

	if _, _, err := ts.carts.Create(ctx, owner, enum.CartScopeIndividual, ""); !errors.Is(err, apperr.ErrValidation) {
		t.Errorf("missing shop: expected ErrValidation, got: %v", err)
	}
	if _, _, err := ts.carts.Create(ctx, owner, "FAMILY", "shop-1"); !errors.Is(err, apperr.ErrValidation) {
		t.Errorf("bad scope: expected ErrValidation, got: %v", err)
	}
}

func TestCartCreate_RemoteFailureStoresNothing(t *testing.T) {
	var pushed *cart.Cart
	rm := &mockRemote{
		saveCartFn: func(ctx context.Context, token string, c *cart.Cart) error {
			pushed = c
			return &apperr.RemoteError{Op: "save cart", StatusCode: 503}
		},
	}
	ts := newTestServices(rm)

	_, _, err := ts.carts.Create(context.Background(), owner, enum.CartScopeIndividual, "shop-1")
	if !errors.Is(err, apperr.ErrRemoteSync) {
		t.Fatalf("expected ErrRemoteSync, got: %v", err)
	}
	if pushed == nil {
		t.Fatal("cart was never pushed")
	}
	if _, err := ts.store.GetCart(context.Background(), pushed.ID); !errors.Is(err, apperr.ErrNotFound) {
		t.Errorf("cart stored despite failed push: %v", err)
	}
}

func TestCartGroup_JoinWithAccessToken(t *testing.T) {
	ts := newTestServices(nil)
	ctx := context.Background()

	view, token, err := ts.carts.Create(ctx, owner, enum.CartScopeGroup, "shop-1")
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if token == "" || view.Cart.AccessTokenHash == "" || view.Cart.AccessTokenHash == token {
		t.Fatalf("expected a token and a separate hash, got %q / %q", token, view.Cart.AccessTokenHash)
	}
	id := view.Cart.ID

	if _, err := ts.carts.AddItem(ctx, friend, id, pho(1)); !errors.Is(err, apperr.ErrForbidden) {
		t.Errorf("non-member add: expected ErrForbidden, got: %v", err)
	}
	if _, err := ts.carts.Join(ctx, friend, id, "wrong"); !errors.Is(err, apperr.ErrForbidden) {
		t.Errorf("bad token: expected ErrForbidden, got: %v", err)
	}

	joined, err := ts.carts.Join(ctx, friend, id, token)
	if err != nil {
		t.Fatalf("join: %v", err)
	}
	if !joined.Cart.IsMember(friend.UserID) {
		t.Errorf("friend not a member: %+v", joined.Cart.Members)
	}

	added, err := ts.carts.AddItem(ctx, friend, id, pho(2))
	if err != nil {
		t.Fatalf("member add: %v", err)
	}
	if !added.Summary.Total.Equal(decimal.NewFromInt(100000)) {
		t.Errorf("total: got %s, want 100000", added.Summary.Total)
	}
}

func TestCartJoin_IndividualCartRejected(t *testing.T) {
	ts := newTestServices(nil)
	ctx := context.Background()

	view, _, _ := ts.carts.Create(ctx, owner, enum.CartScopeIndividual, "shop-1")
	if _, err := ts.carts.Join(ctx, friend, view.Cart.ID, ""); !errors.Is(err, apperr.ErrForbidden) {
		t.Errorf("expected ErrForbidden, got: %v", err)
	}
}

func TestCartMutation_RollsBackOnRemoteFailure(t *testing.T) {
	fail := false
	rm := &mockRemote{
		saveCartFn: func(ctx context.Context, token string, c *cart.Cart) error {
			if fail {
				return &apperr.RemoteError{Op: "save cart", StatusCode: 500}
			}
			return nil
		},
	}
	ts := newTestServices(rm)
	ctx := context.Background()

	view, _, _ := ts.carts.Create(ctx, owner, enum.CartScopeIndividual, "shop-1")
	id := view.Cart.ID
	if _, err := ts.carts.AddItem(ctx, owner, id, pho(1)); err != nil {
		t.Fatalf("add: %v", err)
	}

	fail = true
	_, err := ts.carts.AddItem(ctx, owner, id, cart.NewItem{ProductID: "tea", UnitPrice: decimal.NewFromInt(10000), Quantity: 1})
	if !errors.Is(err, apperr.ErrRemoteSync) {
		t.Fatalf("expected ErrRemoteSync, got: %v", err)
	}

	got, _ := ts.store.GetCart(ctx, id)
	if len(got.Items) != 1 || got.Items[0].ProductID != "pho" {
		t.Errorf("rollback did not restore items: %+v", got.Items)
	}
	if got.Version != 4 {
		t.Errorf("version: got %d, want 4 (create, add, failed add, restore)", got.Version)
	}
}

func TestCartSetQuantity_ClampsAtOne(t *testing.T) {
	ts := newTestServices(nil)
	ctx := context.Background()

	view, _, _ := ts.carts.Create(ctx, owner, enum.CartScopeIndividual, "shop-1")
	view, _ = ts.carts.AddItem(ctx, owner, view.Cart.ID, pho(3))
	lineID := view.Cart.Items[0].ID

	view, err := ts.carts.SetQuantity(ctx, owner, view.Cart.ID, lineID, 0)
	if err != nil {
		t.Fatalf("set quantity: %v", err)
	}
	if view.Cart.Items[0].Quantity != 1 {
		t.Errorf("quantity: got %d, want 1", view.Cart.Items[0].Quantity)
	}

	if _, err := ts.carts.SetQuantity(ctx, owner, view.Cart.ID, "missing", 2); !errors.Is(err, apperr.ErrNotFound) {
		t.Errorf("unknown line: expected ErrNotFound, got: %v", err)
	}
}

func TestCartRemoveItem_MissingLineSkipsWrite(t *testing.T) {
	ts := newTestServices(&mockRemote{})
	ctx := context.Background()

	view, _, _ := ts.carts.Create(ctx, owner, enum.CartScopeIndividual, "shop-1")
	pushes := ts.remote.count("SaveCart")

	got, err := ts.carts.RemoveItem(ctx, owner, view.Cart.ID, "missing")
	if err != nil {
		t.Fatalf("remove: %v", err)
	}
	if got.Cart.Version != 1 {
		t.Errorf("version changed: %d", got.Cart.Version)
	}
	if ts.remote.count("SaveCart") != pushes {
		t.Errorf("no-op removal was pushed")
	}
}

func TestCartClear(t *testing.T) {
	ts := newTestServices(nil)
	ctx := context.Background()

	view, _, _ := ts.carts.Create(ctx, owner, enum.CartScopeIndividual, "shop-1")
	ts.carts.AddItem(ctx, owner, view.Cart.ID, pho(2))

	cleared, err := ts.carts.Clear(ctx, owner, view.Cart.ID)
	if err != nil {
		t.Fatalf("clear: %v", err)
	}
	if !cleared.Cart.IsEmpty() || !cleared.Summary.Total.IsZero() {
		t.Errorf("cart not cleared: %+v", cleared)
	}
}

func couponRemote(c *pricing.Coupon) *mockRemote {
	return &mockRemote{
		getCouponFn: func(ctx context.Context, token, code string) (*pricing.Coupon, error) {
			if code != c.Code {
				return nil, &apperr.RemoteError{Op: "get coupon", StatusCode: 404, Messages: []string{"coupon not found"}}
			}
			cp := *c
			return &cp, nil
		},
	}
}

func TestCartApplyCoupon(t *testing.T) {
	maxDiscount := decimal.NewFromInt(20000)
	ts := newTestServices(couponRemote(&pricing.Coupon{
		Code:          "SAVE10",
		Type:          enum.DiscountTypePercentage,
		Percent:       decimal.NewFromInt(10),
		MaxDiscount:   &maxDiscount,
		MinOrderValue: decimal.NewFromInt(100000),
	}))
	ctx := context.Background()

	view, _, _ := ts.carts.Create(ctx, owner, enum.CartScopeIndividual, "shop-1")
	id := view.Cart.ID
	ts.carts.AddItem(ctx, owner, id, pho(1))

	if _, err := ts.carts.ApplyCoupon(ctx, owner, id, "SAVE10"); !errors.Is(err, apperr.ErrInvalidCoupon) {
		t.Errorf("below minimum: expected ErrInvalidCoupon, got: %v", err)
	}
	if _, err := ts.carts.ApplyCoupon(ctx, owner, id, "NOPE"); !errors.Is(err, apperr.ErrInvalidCoupon) {
		t.Errorf("unknown code: expected ErrInvalidCoupon, got: %v", err)
	}

	ts.carts.AddItem(ctx, owner, id, pho(4))
	view, err := ts.carts.ApplyCoupon(ctx, owner, id, " SAVE10 ")
	if err != nil {
		t.Fatalf("apply: %v", err)
	}
	if !view.Summary.Discount.Equal(decimal.NewFromInt(20000)) || !view.Summary.Total.Equal(decimal.NewFromInt(230000)) {
		t.Errorf("summary: %+v", view.Summary)
	}

	// Dropping below the minimum keeps the coupon but reports it.
	lineID := view.Cart.Items[0].ID
	view, err = ts.carts.SetQuantity(ctx, owner, id, lineID, 1)
	if err != nil {
		t.Fatalf("set quantity: %v", err)
	}
	if view.CouponError == "" || !view.Summary.Discount.IsZero() {
		t.Errorf("expected coupon error and no discount, got %+v", view)
	}
	if _, err := ts.carts.Quote(ctx, owner, id); !errors.Is(err, apperr.ErrInvalidCoupon) {
		t.Errorf("quote: expected ErrInvalidCoupon, got: %v", err)
	}

	view, err = ts.carts.RemoveCoupon(ctx, owner, id)
	if err != nil {
		t.Fatalf("remove coupon: %v", err)
	}
	if view.Cart.Coupon != nil || view.CouponError != "" {
		t.Errorf("coupon not removed: %+v", view)
	}
}

func TestCartApplyCoupon_Offline(t *testing.T) {
	ts := newTestServices(nil)
	ctx := context.Background()

	view, _, _ := ts.carts.Create(ctx, owner, enum.CartScopeIndividual, "shop-1")
	if _, err := ts.carts.ApplyCoupon(ctx, owner, view.Cart.ID, "SAVE10"); !errors.Is(err, apperr.ErrRemoteSync) {
		t.Errorf("expected ErrRemoteSync, got: %v", err)
	}
	if _, err := ts.carts.ApplyCoupon(ctx, owner, view.Cart.ID, "  "); !errors.Is(err, apperr.ErrInvalidCoupon) {
		t.Errorf("blank code: expected ErrInvalidCoupon, got: %v", err)
	}
}

func TestCartGet_MirrorsRemoteCart(t *testing.T) {
	remoteCart, _ := cart.New("remote-cart", enum.CartScopeIndividual, "shop-1", owner.UserID)
	remoteCart.AddItem(pho(2))
	rm := &mockRemote{
		getCartFn: func(ctx context.Context, token, cartID string) (*cart.Cart, error) {
			if cartID != "remote-cart" {
				return nil, &apperr.RemoteError{Op: "get cart", StatusCode: 404}
			}
			return remoteCart.Clone(), nil
		},
	}
	ts := newTestServices(rm)
	ctx := context.Background()

	view, err := ts.carts.Get(ctx, owner, "remote-cart")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if len(view.Cart.Items) != 1 || view.Cart.Version != 1 {
		t.Errorf("unexpected cart: %+v", view.Cart)
	}
	if _, err := ts.store.GetCart(ctx, "remote-cart"); err != nil {
		t.Errorf("cart not mirrored: %v", err)
	}

	if _, err := ts.carts.Get(ctx, friend, "remote-cart"); !errors.Is(err, apperr.ErrForbidden) {
		t.Errorf("stranger: expected ErrForbidden, got: %v", err)
	}
	if _, err := ts.carts.Get(ctx, owner, "other"); !errors.Is(err, apperr.ErrNotFound) {
		t.Errorf("unknown: expected ErrNotFound, got: %v", err)
	}
	if n := rm.count("GetCart"); n != 2 {
		t.Errorf("expected 2 remote reads, got %d", n)
	}
}

func TestCartMutation_CancelledContext(t *testing.T) {
	ts := newTestServices(nil)
	view, _, _ := ts.carts.Create(context.Background(), owner, enum.CartScopeIndividual, "shop-1")

	unlock, _ := ts.carts.locks.Lock(context.Background(), cartKey(view.Cart.ID))
	defer unlock()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := ts.carts.AddItem(ctx, owner, view.Cart.ID, pho(1)); !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got: %v", err)
	}
}
