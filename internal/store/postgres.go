package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/bms-fs/order-core/internal/apperr"
	"github.com/bms-fs/order-core/internal/cart"
	"github.com/bms-fs/order-core/internal/lifecycle"
	"github.com/bms-fs/order-core/internal/pricing"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/shopspring/decimal"
)

// DBTX is satisfied by *pgxpool.Pool, *pgx.Conn and pgx.Tx.
type DBTX interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Postgres is a Store backed by PostgreSQL. Line items, members and the
// selected coupon are stored as JSONB.
type Postgres struct {
	db DBTX
}

// NewPostgres creates a Postgres store on db.
func NewPostgres(db DBTX) *Postgres {
	return &Postgres{db: db}
}

// --- Carts ---

const cartColumns = `id, scope, shop_id, owner_user_id, members, items, coupon, access_token_hash, version`

func (p *Postgres) CreateCart(ctx context.Context, c *cart.Cart) error {
	members, items, coupon, err := encodeCart(c)
	if err != nil {
		return err
	}
	_, err = p.db.Exec(ctx,
		`INSERT INTO carts (`+cartColumns+`)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, 1)`,
		c.ID, c.Scope, c.ShopID, c.OwnerUserID, members, items, coupon, c.AccessTokenHash,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("cart %s already exists: %w", c.ID, apperr.ErrConflict)
		}
		return fmt.Errorf("insert cart: %w", err)
	}
	c.Version = 1
	return nil
}

func (p *Postgres) GetCart(ctx context.Context, id string) (*cart.Cart, error) {
	row := p.db.QueryRow(ctx, `SELECT `+cartColumns+` FROM carts WHERE id = $1`, id)
	c, err := scanCart(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("cart %s: %w", id, apperr.ErrNotFound)
		}
		return nil, fmt.Errorf("get cart: %w", err)
	}
	return c, nil
}

func (p *Postgres) UpdateCart(ctx context.Context, c *cart.Cart, expectedVersion int64) error {
	members, items, coupon, err := encodeCart(c)
	if err != nil {
		return err
	}
	var version int64
	err = p.db.QueryRow(ctx,
		`UPDATE carts
		 SET scope = $2, shop_id = $3, owner_user_id = $4, members = $5, items = $6,
		     coupon = $7, access_token_hash = $8, version = version + 1, updated_at = now()
		 WHERE id = $1 AND version = $9
		 RETURNING version`,
		c.ID, c.Scope, c.ShopID, c.OwnerUserID, members, items, coupon, c.AccessTokenHash, expectedVersion,
	).Scan(&version)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return p.casFailure(ctx, "carts", "cart", c.ID, expectedVersion)
		}
		return fmt.Errorf("update cart: %w", err)
	}
	c.Version = version
	return nil
}

// --- Orders ---

const orderColumns = `id, cart_id, shop_id, user_id, status, items, subtotal, discount, total_price,
	coupon_code, can_cancel, can_feedback, is_paid, version, created_at, updated_at`

func (p *Postgres) CreateOrder(ctx context.Context, o *lifecycle.Order) error {
	items, err := json.Marshal(o.Items)
	if err != nil {
		return fmt.Errorf("encode order items: %w", err)
	}
	if o.CreatedAt.IsZero() {
		o.CreatedAt = time.Now().UTC()
	}
	_, err = p.db.Exec(ctx,
		`INSERT INTO orders (`+orderColumns+`)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, 1, $14, $14)`,
		o.ID, o.CartID, o.ShopID, o.UserID, o.Status, items,
		decimalToNumeric(o.Subtotal), decimalToNumeric(o.Discount), decimalToNumeric(o.TotalPrice),
		o.CouponCode, o.CanCancel, o.CanFeedback, o.IsPaid, o.CreatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("order %s already exists: %w", o.ID, apperr.ErrConflict)
		}
		return fmt.Errorf("insert order: %w", err)
	}
	o.Version = 1
	o.UpdatedAt = o.CreatedAt
	return nil
}

func (p *Postgres) GetOrder(ctx context.Context, id string) (*lifecycle.Order, error) {
	o, err := scanOrder(p.db.QueryRow(ctx, `SELECT `+orderColumns+` FROM orders WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("order %s: %w", id, apperr.ErrNotFound)
		}
		return nil, fmt.Errorf("get order: %w", err)
	}
	return o, nil
}

// ListOrdersByUser returns the user's orders, newest first. A limit of zero
// or less means no limit.
func (p *Postgres) ListOrdersByUser(ctx context.Context, userID string, limit, offset int) ([]*lifecycle.Order, error) {
	return p.listOrders(ctx,
		`SELECT `+orderColumns+` FROM orders
		 WHERE user_id = $1
		 ORDER BY created_at DESC, id
		 LIMIT $2 OFFSET $3`,
		userID, pgtype.Int8{Int64: int64(limit), Valid: limit > 0}, offset,
	)
}

// ListOrdersByShop returns a shop's orders, newest first. An empty status
// matches every status.
func (p *Postgres) ListOrdersByShop(ctx context.Context, shopID, status string, limit, offset int) ([]*lifecycle.Order, error) {
	return p.listOrders(ctx,
		`SELECT `+orderColumns+` FROM orders
		 WHERE shop_id = $1 AND ($2 = '' OR status = $2)
		 ORDER BY created_at DESC, id
		 LIMIT $3 OFFSET $4`,
		shopID, status, pgtype.Int8{Int64: int64(limit), Valid: limit > 0}, offset,
	)
}

func (p *Postgres) listOrders(ctx context.Context, query string, args ...any) ([]*lifecycle.Order, error) {
	rows, err := p.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list orders: %w", err)
	}
	defer rows.Close()

	out := []*lifecycle.Order{}
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, fmt.Errorf("scan order: %w", err)
		}
		out = append(out, o)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list orders: %w", err)
	}
	return out, nil
}

func (p *Postgres) UpdateOrder(ctx context.Context, o *lifecycle.Order, expectedVersion int64) error {
	items, err := json.Marshal(o.Items)
	if err != nil {
		return fmt.Errorf("encode order items: %w", err)
	}
	var (
		version   int64
		updatedAt time.Time
	)
	err = p.db.QueryRow(ctx,
		`UPDATE orders
		 SET status = $2, items = $3, subtotal = $4, discount = $5, total_price = $6,
		     coupon_code = $7, can_cancel = $8, can_feedback = $9, is_paid = $10,
		     version = version + 1, updated_at = now()
		 WHERE id = $1 AND version = $11
		 RETURNING version, updated_at`,
		o.ID, o.Status, items,
		decimalToNumeric(o.Subtotal), decimalToNumeric(o.Discount), decimalToNumeric(o.TotalPrice),
		o.CouponCode, o.CanCancel, o.CanFeedback, o.IsPaid, expectedVersion,
	).Scan(&version, &updatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return p.casFailure(ctx, "orders", "order", o.ID, expectedVersion)
		}
		return fmt.Errorf("update order: %w", err)
	}
	o.Version = version
	o.UpdatedAt = updatedAt
	return nil
}

// casFailure tells a missing row apart from a stale version after an
// UPDATE ... WHERE version = $n matched nothing.
func (p *Postgres) casFailure(ctx context.Context, table, kind, id string, expectedVersion int64) error {
	var current int64
	err := p.db.QueryRow(ctx, `SELECT version FROM `+table+` WHERE id = $1`, id).Scan(&current)
	if errors.Is(err, pgx.ErrNoRows) {
		return fmt.Errorf("%s %s: %w", kind, id, apperr.ErrNotFound)
	}
	if err != nil {
		return fmt.Errorf("read %s version: %w", kind, err)
	}
	return fmt.Errorf("%s %s at version %d, expected %d: %w", kind, id, current, expectedVersion, apperr.ErrConflict)
}

// --- Row mapping ---

func encodeCart(c *cart.Cart) (members, items, coupon []byte, err error) {
	m := c.Members
	if m == nil {
		m = []string{}
	}
	if members, err = json.Marshal(m); err != nil {
		return nil, nil, nil, fmt.Errorf("encode cart members: %w", err)
	}
	if items, err = json.Marshal(c.Items); err != nil {
		return nil, nil, nil, fmt.Errorf("encode cart items: %w", err)
	}
	if c.Coupon != nil {
		if coupon, err = json.Marshal(c.Coupon); err != nil {
			return nil, nil, nil, fmt.Errorf("encode cart coupon: %w", err)
		}
	}
	return members, items, coupon, nil
}

func scanCart(row pgx.Row) (*cart.Cart, error) {
	var (
		c                      cart.Cart
		members, items, coupon []byte
	)
	if err := row.Scan(&c.ID, &c.Scope, &c.ShopID, &c.OwnerUserID, &members, &items, &coupon, &c.AccessTokenHash, &c.Version); err != nil {
		return nil, err
	}
	if err := json.Unmarshal(members, &c.Members); err != nil {
		return nil, fmt.Errorf("decode cart members: %w", err)
	}
	if err := json.Unmarshal(items, &c.Items); err != nil {
		return nil, fmt.Errorf("decode cart items: %w", err)
	}
	if c.Items == nil {
		c.Items = []cart.LineItem{}
	}
	if len(coupon) > 0 {
		var cp pricing.Coupon
		if err := json.Unmarshal(coupon, &cp); err != nil {
			return nil, fmt.Errorf("decode cart coupon: %w", err)
		}
		c.Coupon = &cp
	}
	return &c, nil
}

func scanOrder(row pgx.Row) (*lifecycle.Order, error) {
	var (
		o                         lifecycle.Order
		items                     []byte
		subtotal, discount, total pgtype.Numeric
	)
	err := row.Scan(&o.ID, &o.CartID, &o.ShopID, &o.UserID, &o.Status, &items,
		&subtotal, &discount, &total,
		&o.CouponCode, &o.CanCancel, &o.CanFeedback, &o.IsPaid, &o.Version, &o.CreatedAt, &o.UpdatedAt)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal(items, &o.Items); err != nil {
		return nil, fmt.Errorf("decode order items: %w", err)
	}
	o.Subtotal = numericToDecimal(subtotal)
	o.Discount = numericToDecimal(discount)
	o.TotalPrice = numericToDecimal(total)
	return &o, nil
}

// isUniqueViolation checks for pgconn error code 23505.
func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

func numericToDecimal(n pgtype.Numeric) decimal.Decimal {
	if !n.Valid {
		return decimal.Zero
	}
	val, err := n.Value()
	if err != nil || val == nil {
		return decimal.Zero
	}
	d, err := decimal.NewFromString(val.(string))
	if err != nil {
		return decimal.Zero
	}
	return d
}

func decimalToNumeric(d decimal.Decimal) pgtype.Numeric {
	var n pgtype.Numeric
	_ = n.Scan(d.String())
	return n
}
