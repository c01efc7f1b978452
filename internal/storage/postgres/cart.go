package postgres

import (
	"context"
	"fmt"
	"strconv"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/xenking/coupon-engine/internal/domain/cart"
	"github.com/xenking/coupon-engine/internal/domain/product"
)

const (
	getCartSQL = `SELECT id, COALESCE(customer_id, ''), coupon_id, COALESCE(coupon_code, ''), updated_at
		FROM carts WHERE id = $1`

	listCartItemsSQL = `SELECT id, product_id, variant_id, quantity
		FROM cart_items WHERE cart_id = $1 ORDER BY position, id`

	setCartCouponSQL = `UPDATE carts SET coupon_id = $2, coupon_code = NULLIF($3, ''), updated_at = now()
		WHERE id = $1`

	upsertCartSQL = `INSERT INTO carts (id, customer_id) VALUES ($1, NULLIF($2, ''))
		ON CONFLICT (id) DO UPDATE SET customer_id = EXCLUDED.customer_id, updated_at = now()`

	deleteCartItemsSQL = `DELETE FROM cart_items WHERE cart_id = $1`

	insertCartItemSQL = `INSERT INTO cart_items (cart_id, id, product_id, variant_id, quantity, position)
		VALUES ($1, $2, $3, $4, $5, $6)`
)

var _ cart.Repository = (*CartRepository)(nil)

// CartRepository implements cart.Repository backed by PostgreSQL.
type CartRepository struct {
	pool *pgxpool.Pool
}

// NewCartRepository returns a CartRepository that uses the given pool.
func NewCartRepository(pool *pgxpool.Pool) *CartRepository {
	return &CartRepository{pool: pool}
}

// Get loads a cart with its items in insertion order.
func (r *CartRepository) Get(ctx context.Context, id string) (*cart.Cart, error) {
	var c cart.Cart
	err := r.pool.QueryRow(ctx, getCartSQL, id).Scan(
		&c.ID, &c.CustomerID, &c.CouponID, &c.CouponCode, &c.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, cart.ErrNotFound
		}
		return nil, fmt.Errorf("getting cart %q: %w", id, err)
	}

	rows, err := r.pool.Query(ctx, listCartItemsSQL, id)
	if err != nil {
		return nil, fmt.Errorf("listing items of cart %q: %w", id, err)
	}
	c.Items, err = pgx.CollectRows(rows, func(row pgx.CollectableRow) (product.Line, error) {
		var l product.Line
		err := row.Scan(&l.ID, &l.ProductID, &l.VariantID, &l.Quantity)
		return l, err
	})
	if err != nil {
		return nil, fmt.Errorf("listing items of cart %q: %w", id, err)
	}
	return &c, nil
}

// SetCoupon attaches a coupon to the cart, or detaches it when couponID is
// nil.
func (r *CartRepository) SetCoupon(ctx context.Context, id string, couponID *int64, code string) error {
	tag, err := r.pool.Exec(ctx, setCartCouponSQL, id, couponID, code)
	if err != nil {
		return fmt.Errorf("setting coupon of cart %q: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return cart.ErrNotFound
	}
	return nil
}

// Put creates or replaces a cart and its items.
func (r *CartRepository) Put(ctx context.Context, c *cart.Cart) error {
	return pgx.BeginFunc(ctx, r.pool, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, upsertCartSQL, c.ID, c.CustomerID); err != nil {
			return fmt.Errorf("upserting cart %q: %w", c.ID, err)
		}
		if _, err := tx.Exec(ctx, deleteCartItemsSQL, c.ID); err != nil {
			return fmt.Errorf("clearing cart %q: %w", c.ID, err)
		}
		batch := &pgx.Batch{}
		for i, l := range c.Items {
			id := l.ID
			if id == "" {
				id = strconv.Itoa(i + 1)
			}
			batch.Queue(insertCartItemSQL, c.ID, id, l.ProductID, l.VariantID, l.Quantity, i)
		}
		if batch.Len() == 0 {
			return nil
		}
		if err := tx.SendBatch(ctx, batch).Close(); err != nil {
			return fmt.Errorf("inserting items of cart %q: %w", c.ID, err)
		}
		return nil
	})
}
