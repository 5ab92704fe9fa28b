package lifecycle

import (
	"errors"
	"slices"
	"testing"

	"github.com/bms-fs/order-core/internal/apperr"
	"github.com/bms-fs/order-core/internal/cart"
	"github.com/bms-fs/order-core/internal/enum"
	"github.com/bms-fs/order-core/internal/pricing"
	"github.com/shopspring/decimal"
)

func newOrder(status string) *Order {
	return &Order{ID: "o-1", Status: status, CanCancel: true}
}

func TestRequestTransition_Table(t *testing.T) {
	all := []string{
		enum.OrderStatusOrdered, enum.OrderStatusChecking, enum.OrderStatusPreparing,
		enum.OrderStatusPrepared, enum.OrderStatusTakenOver, enum.OrderStatusComplete,
		enum.OrderStatusCancel,
	}
	legal := map[[2]string]bool{
		{enum.OrderStatusOrdered, enum.OrderStatusChecking}:    true,
		{enum.OrderStatusOrdered, enum.OrderStatusCancel}:      true,
		{enum.OrderStatusChecking, enum.OrderStatusPreparing}:  true,
		{enum.OrderStatusChecking, enum.OrderStatusCancel}:     true,
		{enum.OrderStatusPreparing, enum.OrderStatusPrepared}:  true,
		{enum.OrderStatusPrepared, enum.OrderStatusTakenOver}:  true,
	}

	for _, from := range all {
		for _, to := range all {
			o := newOrder(from)
			got, err := RequestTransition(o, to)
			if legal[[2]string{from, to}] {
				if err != nil {
					t.Errorf("%s -> %s: unexpected error: %v", from, to, err)
					continue
				}
				if got.Status != to {
					t.Errorf("%s -> %s: status %s", from, to, got.Status)
				}
				continue
			}
			if !errors.Is(err, apperr.ErrIllegalTransition) {
				t.Errorf("%s -> %s: expected ErrIllegalTransition, got: %v", from, to, err)
			}
		}
	}
}

func TestRequestTransition_PreparedToCompleteFails(t *testing.T) {
	_, err := RequestTransition(newOrder(enum.OrderStatusPrepared), enum.OrderStatusComplete)
	var te *apperr.TransitionError
	if !errors.As(err, &te) {
		t.Fatalf("expected TransitionError, got: %v", err)
	}
	if te.From != enum.OrderStatusPrepared || te.To != enum.OrderStatusComplete {
		t.Errorf("unexpected transition error: %+v", te)
	}
}

func TestRequestTransition_TerminalStatesAlwaysFail(t *testing.T) {
	for _, from := range []string{enum.OrderStatusComplete, enum.OrderStatusCancel} {
		if !IsTerminal(from) {
			t.Errorf("%s should be terminal", from)
		}
		if len(LegalTargets(from)) != 0 {
			t.Errorf("%s should have no legal targets", from)
		}
		for _, to := range []string{enum.OrderStatusOrdered, enum.OrderStatusCancel, enum.OrderStatusComplete} {
			if _, err := RequestTransition(newOrder(from), to); !errors.Is(err, apperr.ErrIllegalTransition) {
				t.Errorf("%s -> %s: expected ErrIllegalTransition, got: %v", from, to, err)
			}
		}
	}
}

func TestRequestTransition_UnknownTarget(t *testing.T) {
	for _, from := range []string{enum.OrderStatusOrdered, enum.OrderStatusComplete, enum.OrderStatusCancel} {
		_, err := RequestTransition(newOrder(from), "SHIPPED")
		var te *apperr.TransitionError
		if !errors.As(err, &te) || !errors.Is(err, apperr.ErrIllegalTransition) {
			t.Errorf("%s -> SHIPPED: expected TransitionError, got: %v", from, err)
			continue
		}
		if te.From != from || te.To != "SHIPPED" {
			t.Errorf("unexpected transition error: %+v", te)
		}
	}
}

func TestRequestTransition_CancelPreconditions(t *testing.T) {
	paid := newOrder(enum.OrderStatusOrdered)
	paid.IsPaid = true
	if _, err := RequestTransition(paid, enum.OrderStatusCancel); !errors.Is(err, apperr.ErrPreconditionFailed) {
		t.Errorf("paid: expected ErrPreconditionFailed, got: %v", err)
	}

	locked := newOrder(enum.OrderStatusChecking)
	locked.CanCancel = false
	if _, err := RequestTransition(locked, enum.OrderStatusCancel); !errors.Is(err, apperr.ErrPreconditionFailed) {
		t.Errorf("can_cancel=false: expected ErrPreconditionFailed, got: %v", err)
	}

	got, err := RequestTransition(newOrder(enum.OrderStatusChecking), enum.OrderStatusCancel)
	if err != nil {
		t.Fatalf("cancel: %v", err)
	}
	if got.CanCancel || got.CanFeedback {
		t.Errorf("cancelled order keeps flags: %+v", got)
	}
}

func TestRequestTransition_DoesNotMutateInput(t *testing.T) {
	o := newOrder(enum.OrderStatusChecking)
	o.Items = []cart.LineItem{{ID: "li", Quantity: 1}}
	got, err := RequestTransition(o, enum.OrderStatusPreparing)
	if err != nil {
		t.Fatalf("transition: %v", err)
	}
	if o.Status != enum.OrderStatusChecking || !o.CanCancel {
		t.Errorf("input mutated: %+v", o)
	}
	if got.CanCancel {
		t.Error("preparing order should not be cancellable")
	}
	got.Items[0].Quantity = 5
	if o.Items[0].Quantity != 1 {
		t.Error("result shares items with input")
	}
}

func TestLegalTargets_ReturnsCopy(t *testing.T) {
	targets := LegalTargets(enum.OrderStatusOrdered)
	if !slices.Equal(targets, []string{enum.OrderStatusChecking, enum.OrderStatusCancel}) {
		t.Fatalf("unexpected targets: %v", targets)
	}
	targets[0] = "MUTATED"
	if LegalTargets(enum.OrderStatusOrdered)[0] != enum.OrderStatusChecking {
		t.Error("LegalTargets exposes the internal table")
	}
}

func TestApplyServerStatus(t *testing.T) {
	o := newOrder(enum.OrderStatusTakenOver)
	got, err := ApplyServerStatus(o, ServerState{Status: enum.OrderStatusComplete, CanFeedback: true, IsPaid: true})
	if err != nil {
		t.Fatalf("apply: %v", err)
	}
	if got.Status != enum.OrderStatusComplete || !got.CanFeedback || !got.IsPaid || got.CanCancel {
		t.Errorf("unexpected order: %+v", got)
	}

	// The server may move an order backwards; it is authoritative.
	back, err := ApplyServerStatus(got, ServerState{Status: enum.OrderStatusChecking, CanCancel: true})
	if err != nil || back.Status != enum.OrderStatusChecking {
		t.Errorf("backwards move: %+v, %v", back, err)
	}

	if _, err := ApplyServerStatus(o, ServerState{Status: "LOST"}); !errors.Is(err, apperr.ErrValidation) {
		t.Errorf("expected ErrValidation, got: %v", err)
	}
}

func TestSubmitFeedback_SingleUse(t *testing.T) {
	o := &Order{ID: "o", Status: enum.OrderStatusComplete, CanFeedback: true}
	got, err := SubmitFeedback(o)
	if err != nil {
		t.Fatalf("feedback: %v", err)
	}
	if got.CanFeedback {
		t.Error("feedback flag should flip false")
	}
	if _, err := SubmitFeedback(got); !errors.Is(err, apperr.ErrPreconditionFailed) {
		t.Errorf("second feedback: expected ErrPreconditionFailed, got: %v", err)
	}
	if _, err := SubmitFeedback(&Order{Status: enum.OrderStatusPrepared, CanFeedback: true}); !errors.Is(err, apperr.ErrPreconditionFailed) {
		t.Errorf("not complete: expected ErrPreconditionFailed, got: %v", err)
	}
}

func TestMarkPaid(t *testing.T) {
	got, err := MarkPaid(newOrder(enum.OrderStatusOrdered))
	if err != nil {
		t.Fatalf("mark paid: %v", err)
	}
	if !got.IsPaid || got.CanCancel {
		t.Errorf("unexpected flags: %+v", got)
	}
	if _, err := MarkPaid(got); !errors.Is(err, apperr.ErrPreconditionFailed) {
		t.Errorf("double pay: expected ErrPreconditionFailed, got: %v", err)
	}
	if _, err := MarkPaid(&Order{Status: enum.OrderStatusCancel}); !errors.Is(err, apperr.ErrPreconditionFailed) {
		t.Errorf("pay cancelled: expected ErrPreconditionFailed, got: %v", err)
	}
}

func groupCart(t *testing.T) *cart.Cart {
	t.Helper()
	c, err := cart.New("g-1", enum.CartScopeGroup, "shop-1", "owner")
	if err != nil {
		t.Fatalf("new cart: %v", err)
	}
	if err := c.Join("friend"); err != nil {
		t.Fatalf("join: %v", err)
	}
	if _, err := c.AddItem(cart.NewItem{ProductID: "p1", UnitPrice: decimal.NewFromInt(100000), Quantity: 2}); err != nil {
		t.Fatalf("add: %v", err)
	}
	if _, err := c.AddItem(cart.NewItem{ProductID: "p2", UnitPrice: decimal.NewFromInt(50000), Quantity: 1}); err != nil {
		t.Fatalf("add: %v", err)
	}
	return c
}

func TestCheckout(t *testing.T) {
	c := groupCart(t)
	maxDiscount := decimal.NewFromInt(20000)
	c.SelectCoupon(pricing.Coupon{Code: "SAVE10", Percent: decimal.NewFromInt(10), MaxDiscount: &maxDiscount})

	o, err := Checkout(c, "owner", pricing.New(pricing.VND))
	if err != nil {
		t.Fatalf("checkout: %v", err)
	}
	if o.Status != enum.OrderStatusOrdered || !o.CanCancel || o.CanFeedback || o.IsPaid {
		t.Errorf("unexpected status/flags: %+v", o)
	}
	if !o.Subtotal.Equal(decimal.NewFromInt(250000)) || !o.Discount.Equal(decimal.NewFromInt(20000)) ||
		!o.TotalPrice.Equal(decimal.NewFromInt(230000)) {
		t.Errorf("unexpected totals: %s - %s = %s", o.Subtotal, o.Discount, o.TotalPrice)
	}
	if o.CartID != c.ID || o.ShopID != "shop-1" || o.CouponCode != "SAVE10" {
		t.Errorf("unexpected header: %+v", o)
	}

	// The order is a snapshot; later cart edits do not leak in.
	c.Items[0].Quantity = 9
	if o.Items[0].Quantity != 2 {
		t.Error("order shares items with cart")
	}
}

func TestCheckout_OnlyOwner(t *testing.T) {
	c := groupCart(t)
	if !c.CanEdit("friend") {
		t.Fatal("member should be able to edit")
	}
	if _, err := Checkout(c, "friend", pricing.New(pricing.VND)); !errors.Is(err, apperr.ErrForbidden) {
		t.Fatalf("expected ErrForbidden, got: %v", err)
	}
	if err := AuthorizeCheckout(c, "stranger"); !errors.Is(err, apperr.ErrForbidden) {
		t.Fatalf("expected ErrForbidden, got: %v", err)
	}
}

func TestCheckout_EmptyCart(t *testing.T) {
	c, _ := cart.New("c", enum.CartScopeIndividual, "shop", "u")
	if _, err := Checkout(c, "u", pricing.New(pricing.VND)); !errors.Is(err, apperr.ErrValidation) {
		t.Fatalf("expected ErrValidation, got: %v", err)
	}
}

func TestCheckout_InvalidCoupon(t *testing.T) {
	c := groupCart(t)
	c.SelectCoupon(pricing.Coupon{Code: "BIG", Percent: decimal.NewFromInt(10), MinOrderValue: decimal.NewFromInt(1000000)})
	if _, err := Checkout(c, "owner", pricing.New(pricing.VND)); !errors.Is(err, apperr.ErrInvalidCoupon) {
		t.Fatalf("expected ErrInvalidCoupon, got: %v", err)
	}
}

func TestHydrateOrder(t *testing.T) {
	data := []byte(`{
		"id": "o-7",
		"cartId": "c-1",
		"shopId": "s-1",
		"userId": "u-1",
		"status": "PREPARING",
		"totalPrice": 95000,
		"discount": 5000,
		"canCancel": false,
		"canFeedback": false,
		"isPaid": true,
		"orderDetails": [
			{"id": "d-1", "productId": "p-1", "productName": "Pho", "price": 50000, "quantity": 2}
		]
	}`)
	o, err := HydrateOrder(data)
	if err != nil {
		t.Fatalf("hydrate: %v", err)
	}
	if o.Status != enum.OrderStatusPreparing || !o.IsPaid || o.CanCancel {
		t.Errorf("unexpected state: %+v", o.State())
	}
	if !o.Subtotal.Equal(decimal.NewFromInt(100000)) || !o.TotalPrice.Equal(decimal.NewFromInt(95000)) {
		t.Errorf("unexpected totals: %s / %s", o.Subtotal, o.TotalPrice)
	}

	if _, err := HydrateOrder([]byte(`{"id":"o","status":"SHIPPED"}`)); !errors.Is(err, apperr.ErrValidation) {
		t.Errorf("unknown status: expected ErrValidation, got: %v", err)
	}
	if _, err := HydrateOrder([]byte(`{"id":"o","status":"ORDERED","orderDetails":[{"price":1,"quantity":0}]}`)); !errors.Is(err, apperr.ErrValidation) {
		t.Errorf("bad detail: expected ErrValidation, got: %v", err)
	}
}
