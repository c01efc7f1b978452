package order

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"

	"github.com/xenking/coupon-engine/internal/domain/coupon"
	"github.com/xenking/coupon-engine/internal/domain/product"
)

// ErrNotFound is returned when an order does not exist.
var ErrNotFound = errors.New("order not found")

// Order represents a placed order with pricing and discount details.
type Order struct {
	ID           string
	CustomerID   string
	Items        []product.Line
	Subtotal     decimal.Decimal
	Discount     decimal.Decimal
	Total        decimal.Decimal
	CouponCodes  []string
	FreeShipping bool
	CreatedAt    time.Time
}

// Tx is the set of writes performed while placing an order. Everything done
// through one Tx commits or rolls back together.
type Tx interface {
	coupon.UsageStore
	CreateOrder(ctx context.Context, o *Order) error
	// GetOrder reads an order inside the transaction.
	GetOrder(ctx context.Context, id string) (*Order, error)
}

// Transactor runs fn inside a database transaction. The transaction is rolled
// back when fn returns an error.
type Transactor interface {
	WithinTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error
}
