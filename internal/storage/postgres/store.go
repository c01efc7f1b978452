package postgres

import (
	"context"
	"fmt"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/xenking/coupon-engine/internal/codec"
	"github.com/xenking/coupon-engine/internal/domain/coupon"
	"github.com/xenking/coupon-engine/internal/domain/order"
)

const (
	insertUsageSQL = `INSERT INTO coupon_usages (coupon_id, customer_id, order_id, discount_amount, created_at)
		VALUES ($1, NULLIF($2, ''), $3, $4, $5)`

	createOrderSQL = `INSERT INTO orders (id, customer_id, items, subtotal, discount, total,
			coupon_codes, free_shipping, created_at)
		VALUES ($1, NULLIF($2, ''), $3, $4, $5, $6, $7, $8, $9)`

	getOrderSQL = `SELECT id, COALESCE(customer_id, ''), items, subtotal, discount, total,
			coupon_codes, free_shipping, created_at
		FROM orders WHERE id = $1`
)

// uniqueViolation is the SQLSTATE of a unique constraint violation.
const uniqueViolation = "23505"

var (
	_ order.Transactor = (*Store)(nil)
	_ order.Tx         = (*txStore)(nil)
)

// Store runs order placement transactions.
type Store struct {
	pool *pgxpool.Pool
}

// NewStore returns a Store that uses the given pool.
func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// WithinTx runs fn in a read-committed transaction. Usage limit checks are
// serialized by the row lock taken in LockCoupon, which is held until the
// transaction ends.
func (s *Store) WithinTx(ctx context.Context, fn func(ctx context.Context, tx order.Tx) error) error {
	return pgx.BeginTxFunc(ctx, s.pool, pgx.TxOptions{IsoLevel: pgx.ReadCommitted}, func(tx pgx.Tx) error {
		return fn(ctx, &txStore{q: tx})
	})
}

type txStore struct {
	q querier
}

func (t *txStore) LockCoupon(ctx context.Context, couponID int64) (*coupon.Coupon, error) {
	c, err := getCoupon(ctx, t.q, lockCouponSQL, couponID)
	if err != nil {
		return nil, fmt.Errorf("locking coupon %d: %w", couponID, err)
	}
	return c, nil
}

func (t *txStore) CountUsage(ctx context.Context, couponID int64) (int, error) {
	return countUsage(ctx, t.q, couponID)
}

func (t *txStore) CountUsageByCustomer(ctx context.Context, couponID int64, customerID string) (int, error) {
	return countUsageByCustomer(ctx, t.q, couponID, customerID)
}

// InsertUsage records a usage. A second usage of the same coupon for the same
// order violates the (coupon_id, order_id) key and is reported as
// coupon.ErrUsageLimitExceededAtCommit.
func (t *txStore) InsertUsage(ctx context.Context, u coupon.Usage) error {
	_, err := t.q.Exec(ctx, insertUsageSQL,
		u.CouponID, u.CustomerID, u.OrderID, u.DiscountAmount, u.CreatedAt,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return coupon.ErrUsageLimitExceededAtCommit
		}
		return fmt.Errorf("inserting usage of coupon %d: %w", u.CouponID, err)
	}
	return nil
}

func (t *txStore) CreateOrder(ctx context.Context, o *order.Order) error {
	_, err := t.q.Exec(ctx, createOrderSQL,
		o.ID, o.CustomerID, codec.EncodeLines(o.Items), o.Subtotal, o.Discount, o.Total,
		nonNil(o.CouponCodes), o.FreeShipping, o.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("creating order %q: %w", o.ID, err)
	}
	return nil
}

func (t *txStore) GetOrder(ctx context.Context, id string) (*order.Order, error) {
	var (
		o     order.Order
		items []byte
	)
	err := t.q.QueryRow(ctx, getOrderSQL, id).Scan(
		&o.ID, &o.CustomerID, &items, &o.Subtotal, &o.Discount, &o.Total,
		&o.CouponCodes, &o.FreeShipping, &o.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, order.ErrNotFound
		}
		return nil, fmt.Errorf("getting order %q: %w", id, err)
	}
	if o.Items, err = codec.DecodeLines(items); err != nil {
		return nil, fmt.Errorf("getting order %q: %w", id, err)
	}
	return &o, nil
}
