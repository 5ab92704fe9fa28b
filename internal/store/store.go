// Package store keeps the local mirror of carts and orders.
//
// Every update is a compare-and-swap on Version: the caller passes the
// version it loaded and the write fails with apperr.ErrConflict if another
// writer got there first. On success the stored and passed-in version is
// bumped by one.
package store

import (
	"context"

	"github.com/bms-fs/order-core/internal/cart"
	"github.com/bms-fs/order-core/internal/lifecycle"
)

// Store is the persistence contract used by the services.
type Store interface {
	CreateCart(ctx context.Context, c *cart.Cart) error
	GetCart(ctx context.Context, id string) (*cart.Cart, error)
	UpdateCart(ctx context.Context, c *cart.Cart, expectedVersion int64) error

	CreateOrder(ctx context.Context, o *lifecycle.Order) error
	GetOrder(ctx context.Context, id string) (*lifecycle.Order, error)
	ListOrdersByUser(ctx context.Context, userID string, limit, offset int) ([]*lifecycle.Order, error)
	ListOrdersByShop(ctx context.Context, shopID, status string, limit, offset int) ([]*lifecycle.Order, error)
	UpdateOrder(ctx context.Context, o *lifecycle.Order, expectedVersion int64) error
}
