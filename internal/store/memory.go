package store

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/bms-fs/order-core/internal/apperr"
	"github.com/bms-fs/order-core/internal/cart"
	"github.com/bms-fs/order-core/internal/lifecycle"
)

// Memory is an in-process Store. Values are cloned on the way in and out.
type Memory struct {
	mu     sync.RWMutex
	carts  map[string]*cart.Cart
	orders map[string]*lifecycle.Order
}

// NewMemory creates an empty Memory store.
func NewMemory() *Memory {
	return &Memory{
		carts:  make(map[string]*cart.Cart),
		orders: make(map[string]*lifecycle.Order),
	}
}

func (m *Memory) CreateCart(_ context.Context, c *cart.Cart) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.carts[c.ID]; ok {
		return fmt.Errorf("cart %s already exists: %w", c.ID, apperr.ErrConflict)
	}
	c.Version = 1
	m.carts[c.ID] = c.Clone()
	return nil
}

func (m *Memory) GetCart(_ context.Context, id string) (*cart.Cart, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	c, ok := m.carts[id]
	if !ok {
		return nil, fmt.Errorf("cart %s: %w", id, apperr.ErrNotFound)
	}
	return c.Clone(), nil
}

func (m *Memory) UpdateCart(_ context.Context, c *cart.Cart, expectedVersion int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cur, ok := m.carts[c.ID]
	if !ok {
		return fmt.Errorf("cart %s: %w", c.ID, apperr.ErrNotFound)
	}
	if cur.Version != expectedVersion {
		return fmt.Errorf("cart %s at version %d, expected %d: %w", c.ID, cur.Version, expectedVersion, apperr.ErrConflict)
	}
	c.Version = expectedVersion + 1
	m.carts[c.ID] = c.Clone()
	return nil
}

func (m *Memory) CreateOrder(_ context.Context, o *lifecycle.Order) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.orders[o.ID]; ok {
		return fmt.Errorf("order %s already exists: %w", o.ID, apperr.ErrConflict)
	}
	o.Version = 1
	m.orders[o.ID] = o.Clone()
	return nil
}

func (m *Memory) GetOrder(_ context.Context, id string) (*lifecycle.Order, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	o, ok := m.orders[id]
	if !ok {
		return nil, fmt.Errorf("order %s: %w", id, apperr.ErrNotFound)
	}
	return o.Clone(), nil
}

// ListOrdersByUser returns the user's orders, newest first.
func (m *Memory) ListOrdersByUser(_ context.Context, userID string, limit, offset int) ([]*lifecycle.Order, error) {
	return m.listOrders(func(o *lifecycle.Order) bool { return o.UserID == userID }, limit, offset), nil
}

// ListOrdersByShop returns a shop's orders, newest first. An empty status
// matches every status.
func (m *Memory) ListOrdersByShop(_ context.Context, shopID, status string, limit, offset int) ([]*lifecycle.Order, error) {
	return m.listOrders(func(o *lifecycle.Order) bool {
		return o.ShopID == shopID && (status == "" || o.Status == status)
	}, limit, offset), nil
}

func (m *Memory) listOrders(match func(*lifecycle.Order) bool, limit, offset int) []*lifecycle.Order {
	m.mu.RLock()
	var out []*lifecycle.Order
	for _, o := range m.orders {
		if match(o) {
			out = append(out, o.Clone())
		}
	}
	m.mu.RUnlock()

	slices.SortFunc(out, func(a, b *lifecycle.Order) int {
		if c := b.CreatedAt.Compare(a.CreatedAt); c != 0 {
			return c
		}
		return strings.Compare(a.ID, b.ID)
	})

	if offset >= len(out) {
		return []*lifecycle.Order{}
	}
	out = out[offset:]
	if limit > 0 && limit < len(out) {
		out = out[:limit]
	}
	return out
}

func (m *Memory) UpdateOrder(_ context.Context, o *lifecycle.Order, expectedVersion int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cur, ok := m.orders[o.ID]
	if !ok {
		return fmt.Errorf("order %s: %w", o.ID, apperr.ErrNotFound)
	}
	if cur.Version != expectedVersion {
		return fmt.Errorf("order %s at version %d, expected %d: %w", o.ID, cur.Version, expectedVersion, apperr.ErrConflict)
	}
	o.Version = expectedVersion + 1
	o.UpdatedAt = time.Now().UTC()
	m.orders[o.ID] = o.Clone()
	return nil
}
