package product

import (
	"context"
	"fmt"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"

	"github.com/xenking/coupon-engine/internal/domain/coupon"
)

// ErrNotFound is returned when a requested product does not exist.
var ErrNotFound = errors.New("product not found")

// Product is the catalog view the discount engine needs: price and direct
// category assignments.
type Product struct {
	ID          string
	Name        string
	Price       decimal.Decimal
	CategoryIDs []string
}

// Repository defines read operations for the product catalog.
type Repository interface {
	GetByIDs(ctx context.Context, ids []string) ([]Product, error)
}

// NotFoundError indicates a requested product does not exist.
type NotFoundError struct {
	ProductID string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("product %s not found", e.ProductID)
}

func (e *NotFoundError) Unwrap() error { return ErrNotFound }

// Line is a product reference with a quantity, as held by carts and orders.
type Line struct {
	ID        string
	ProductID string
	VariantID string
	Quantity  int
}

// PriceLines fetches all referenced products in one batch and returns the
// priced cart lines in input order.
func PriceLines(ctx context.Context, repo Repository, lines []Line) ([]coupon.LineItem, error) {
	if len(lines) == 0 {
		return nil, nil
	}

	ids := make([]string, len(lines))
	for i, l := range lines {
		ids[i] = l.ProductID
	}

	fetched, err := repo.GetByIDs(ctx, ids)
	if err != nil {
		return nil, errors.Wrap(err, "get products")
	}

	byID := make(map[string]Product, len(fetched))
	for _, p := range fetched {
		byID[p.ID] = p
	}

	items := make([]coupon.LineItem, len(lines))
	for i, l := range lines {
		p, ok := byID[l.ProductID]
		if !ok {
			return nil, &NotFoundError{ProductID: l.ProductID}
		}
		items[i] = coupon.LineItem{
			ID:          l.ID,
			ProductID:   p.ID,
			VariantID:   l.VariantID,
			CategoryIDs: p.CategoryIDs,
			Quantity:    l.Quantity,
			UnitPrice:   p.Price,
		}
	}
	return items, nil
}
