package cart

import (
	"encoding/json"
	"fmt"

	"github.com/bms-fs/order-core/internal/apperr"
	"github.com/bms-fs/order-core/internal/enum"
	"github.com/shopspring/decimal"
)

// serverCart is the backend's cart shape inside the response envelope.
type serverCart struct {
	ID      string       `json:"id"`
	ShopID  string       `json:"shopId"`
	UserID  string       `json:"userId"`
	IsGroup bool         `json:"isGroup"`
	Members []string     `json:"members"`
	Items   []serverItem `json:"cartItems"`
}

type serverItem struct {
	ID          string          `json:"id"`
	ProductID   string          `json:"productId"`
	ProductName string          `json:"productName"`
	Price       decimal.Decimal `json:"price"`
	Quantity    int             `json:"quantity"`
	Note        string          `json:"note"`
}

// Hydrate builds a Cart from the backend's cart JSON. The coupon and local
// version are not part of the server shape and are left zero.
func Hydrate(data []byte) (*Cart, error) {
	var sc serverCart
	if err := json.Unmarshal(data, &sc); err != nil {
		return nil, apperr.Validation("decode server cart: %v", err)
	}
	if sc.ID == "" {
		return nil, apperr.Validation("server cart has no id")
	}

	scope := enum.CartScopeIndividual
	if sc.IsGroup {
		scope = enum.CartScopeGroup
	}
	c, err := New(sc.ID, scope, sc.ShopID, sc.UserID)
	if err != nil {
		return nil, err
	}
	c.Members = sc.Members

	for i, it := range sc.Items {
		if it.ID == "" || it.ProductID == "" {
			return nil, apperr.Validation("cartItems[%d]: id and productId are required", i)
		}
		if it.Quantity < 1 {
			return nil, apperr.Validation("cartItems[%d]: quantity must be >= 1, got %d", i, it.Quantity)
		}
		if it.Price.IsNegative() {
			return nil, apperr.Validation("cartItems[%d]: price cannot be negative", i)
		}
		c.Items = append(c.Items, LineItem{
			ID:        it.ID,
			ProductID: it.ProductID,
			Name:      it.ProductName,
			UnitPrice: it.Price,
			Quantity:  it.Quantity,
			Note:      it.Note,
		})
	}
	return c, nil
}

// ServerJSON encodes the cart in the backend's shape.
func (c *Cart) ServerJSON() ([]byte, error) {
	sc := serverCart{
		ID:      c.ID,
		ShopID:  c.ShopID,
		UserID:  c.OwnerUserID,
		IsGroup: c.Scope == enum.CartScopeGroup,
		Members: c.Members,
		Items:   make([]serverItem, len(c.Items)),
	}
	for i, it := range c.Items {
		sc.Items[i] = serverItem{
			ID:          it.ID,
			ProductID:   it.ProductID,
			ProductName: it.Name,
			Price:       it.UnitPrice,
			Quantity:    it.Quantity,
			Note:        it.Note,
		}
	}
	b, err := json.Marshal(sc)
	if err != nil {
		return nil, fmt.Errorf("encode server cart: %w", err)
	}
	return b, nil
}
