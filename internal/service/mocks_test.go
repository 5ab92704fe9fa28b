package service

import (
	"context"
	"sync"

	"github.com/bms-fs/order-core/internal/cart"
	"github.com/bms-fs/order-core/internal/enum"
	"github.com/bms-fs/order-core/internal/lifecycle"
	"github.com/bms-fs/order-core/internal/pricing"
	"github.com/bms-fs/order-core/internal/remote"
	"github.com/bms-fs/order-core/internal/store"
	"github.com/shopspring/decimal"
)

// --- Mock implementations ---

// mockRemote implements Remote. A nil fn field succeeds with a zero value.
type mockRemote struct {
	getCartFn           func(ctx context.Context, token, cartID string) (*cart.Cart, error)
	saveCartFn          func(ctx context.Context, token string, c *cart.Cart) error
	getCouponFn         func(ctx context.Context, token, code string) (*pricing.Coupon, error)
	createOrderFn       func(ctx context.Context, token string, o *lifecycle.Order) (lifecycle.ServerState, error)
	getOrderFn          func(ctx context.Context, token, orderID string) (*lifecycle.Order, error)
	changeOrderStatusFn func(ctx context.Context, token, orderID, status string) (lifecycle.ServerState, error)
	checkOrderIsPaidFn  func(ctx context.Context, token, orderID string) (bool, error)
	payOrderFn          func(ctx context.Context, token, orderID string, amount decimal.Decimal, method string) error
	submitFeedbackFn    func(ctx context.Context, token, orderID string, fb remote.Feedback) error

	mu    sync.Mutex
	calls map[string]int
}

func (m *mockRemote) record(op string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.calls == nil {
		m.calls = make(map[string]int)
	}
	m.calls[op]++
}

func (m *mockRemote) count(op string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls[op]
}

func (m *mockRemote) GetCart(ctx context.Context, token, cartID string) (*cart.Cart, error) {
	m.record("GetCart")
	return m.getCartFn(ctx, token, cartID)
}

func (m *mockRemote) SaveCart(ctx context.Context, token string, c *cart.Cart) error {
	m.record("SaveCart")
	if m.saveCartFn == nil {
		return nil
	}
	return m.saveCartFn(ctx, token, c)
}

func (m *mockRemote) GetCoupon(ctx context.Context, token, code string) (*pricing.Coupon, error) {
	m.record("GetCoupon")
	return m.getCouponFn(ctx, token, code)
}

func (m *mockRemote) CreateOrder(ctx context.Context, token string, o *lifecycle.Order) (lifecycle.ServerState, error) {
	m.record("CreateOrder")
	if m.createOrderFn == nil {
		return o.State(), nil
	}
	return m.createOrderFn(ctx, token, o)
}

func (m *mockRemote) GetOrder(ctx context.Context, token, orderID string) (*lifecycle.Order, error) {
	m.record("GetOrder")
	return m.getOrderFn(ctx, token, orderID)
}

func (m *mockRemote) ChangeOrderStatus(ctx context.Context, token, orderID, status string) (lifecycle.ServerState, error) {
	m.record("ChangeOrderStatus")
	if m.changeOrderStatusFn == nil {
		return lifecycle.ServerState{Status: status, CanCancel: status == enum.OrderStatusOrdered || status == enum.OrderStatusChecking}, nil
	}
	return m.changeOrderStatusFn(ctx, token, orderID, status)
}

func (m *mockRemote) CheckOrderIsPaid(ctx context.Context, token, orderID string) (bool, error) {
	m.record("CheckOrderIsPaid")
	if m.checkOrderIsPaidFn == nil {
		return false, nil
	}
	return m.checkOrderIsPaidFn(ctx, token, orderID)
}

func (m *mockRemote) PayOrder(ctx context.Context, token, orderID string, amount decimal.Decimal, method string) error {
	m.record("PayOrder")
	if m.payOrderFn == nil {
		return nil
	}
	return m.payOrderFn(ctx, token, orderID, amount, method)
}

func (m *mockRemote) SubmitFeedback(ctx context.Context, token, orderID string, fb remote.Feedback) error {
	m.record("SubmitFeedback")
	if m.submitFeedbackFn == nil {
		return nil
	}
	return m.submitFeedbackFn(ctx, token, orderID, fb)
}

type sentEvent struct {
	topic     string
	eventType string
	payload   OrderEvent
}

// recordingNotifier implements Notifier.
type recordingNotifier struct {
	mu     sync.Mutex
	events []sentEvent
}

func (n *recordingNotifier) Notify(topic, eventType string, payload any) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.events = append(n.events, sentEvent{topic: topic, eventType: eventType, payload: payload.(OrderEvent)})
}

func (n *recordingNotifier) sent() []sentEvent {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]sentEvent(nil), n.events...)
}

// --- Test helpers ---

var (
	owner  = Session{UserID: "u-owner", Role: enum.UserRoleCustomer, Token: "tok-owner"}
	friend = Session{UserID: "u-friend", Role: enum.UserRoleCustomer, Token: "tok-friend"}
	staff  = Session{UserID: "u-staff", ShopID: "shop-1", Role: enum.UserRoleStaff, Token: "tok-staff"}
)

type testServices struct {
	store    *store.Memory
	remote   *mockRemote
	notifier *recordingNotifier
	carts    *CartService
	orders   *OrderService
}

// newTestServices wires both services to one memory store. A nil rm runs
// them offline.
func newTestServices(rm *mockRemote) *testServices {
	st := store.NewMemory()
	engine := pricing.New(pricing.VND)
	locks := NewKeyedLock()
	n := &recordingNotifier{}

	var r Remote
	if rm != nil {
		r = rm
	}
	return &testServices{
		store:    st,
		remote:   rm,
		notifier: n,
		carts:    NewCartService(st, r, engine, locks, nil),
		orders:   NewOrderService(st, r, engine, locks, n, nil),
	}
}

func pho(qty int) cart.NewItem {
	return cart.NewItem{ProductID: "pho", Name: "Pho", UnitPrice: decimal.NewFromInt(50000), Quantity: qty}
}
