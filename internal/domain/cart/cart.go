package cart

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"

	"github.com/xenking/coupon-engine/internal/domain/coupon"
	"github.com/xenking/coupon-engine/internal/domain/product"
)

// ErrNotFound is returned when a cart does not exist.
var ErrNotFound = errors.New("cart not found")

// Cart is a customer's shopping cart. At most one manually entered coupon is
// attached at a time; automatic discounts are evaluated on every view.
type Cart struct {
	ID         string
	CustomerID string
	Items      []product.Line
	CouponID   *int64
	CouponCode string
	UpdatedAt  time.Time
}

// Repository persists carts and their coupon reference.
type Repository interface {
	Get(ctx context.Context, id string) (*Cart, error)
	// SetCoupon attaches a coupon, or detaches it when couponID is nil.
	SetCoupon(ctx context.Context, id string, couponID *int64, code string) error
}

// Quoter combines coupons and automatic discounts for a cart snapshot.
type Quoter interface {
	Quote(ctx context.Context, req coupon.QuoteRequest) (*coupon.Quote, error)
}

// View is a cart with its totals recomputed.
type View struct {
	Cart         *Cart
	Lines        []coupon.LineItem
	Subtotal     decimal.Decimal
	Discount     decimal.Decimal
	Total        decimal.Decimal
	FreeShipping bool
	Applied      []coupon.Applied
}

// Service implements the cart-level coupon operations. None of them record
// usage; that happens only when an order is placed.
type Service struct {
	carts    Repository
	products product.Repository
	coupons  Quoter
}

// NewService creates a cart Service.
func NewService(carts Repository, products product.Repository, coupons Quoter) *Service {
	return &Service{
		carts:    carts,
		products: products,
		coupons:  coupons,
	}
}

// View returns the cart with its current totals.
func (s *Service) View(ctx context.Context, cartID string) (*View, error) {
	c, err := s.carts.Get(ctx, cartID)
	if err != nil {
		return nil, err
	}
	var codes []string
	if c.CouponCode != "" {
		codes = []string{c.CouponCode}
	}
	v, _, err := s.quote(ctx, c, codes)
	return v, err
}

// ApplyCoupon validates code against the cart, attaches it and returns the
// recomputed totals. An ineligible coupon is returned as
// *coupon.IneligibleError and leaves the cart unchanged.
func (s *Service) ApplyCoupon(ctx context.Context, cartID, code string) (*View, error) {
	code = coupon.NormalizeCode(code)
	c, err := s.carts.Get(ctx, cartID)
	if err != nil {
		return nil, err
	}

	v, q, err := s.quote(ctx, c, []string{code})
	if err != nil {
		return nil, err
	}

	if err := q.Check(code); err != nil {
		return nil, err
	}
	var applied *coupon.Coupon
	for _, a := range q.Applied {
		if !a.Coupon.IsAutomatic && a.Coupon.Code == code {
			applied = a.Coupon
		}
	}

	if err := s.carts.SetCoupon(ctx, c.ID, &applied.ID, applied.Code); err != nil {
		return nil, errors.Wrap(err, "attach coupon")
	}
	c.CouponID, c.CouponCode = &applied.ID, applied.Code
	return v, nil
}

// RemoveCoupon detaches the cart's coupon and returns the recomputed totals.
func (s *Service) RemoveCoupon(ctx context.Context, cartID string) (*View, error) {
	c, err := s.carts.Get(ctx, cartID)
	if err != nil {
		return nil, err
	}
	if err := s.carts.SetCoupon(ctx, c.ID, nil, ""); err != nil {
		return nil, errors.Wrap(err, "detach coupon")
	}
	c.CouponID, c.CouponCode = nil, ""

	v, _, err := s.quote(ctx, c, nil)
	return v, err
}

func (s *Service) quote(ctx context.Context, c *Cart, codes []string) (*View, *coupon.Quote, error) {
	lines, err := product.PriceLines(ctx, s.products, c.Items)
	if err != nil {
		return nil, nil, err
	}
	snapshot := coupon.NewCart(lines)

	q, err := s.coupons.Quote(ctx, coupon.QuoteRequest{
		Codes:      codes,
		CustomerID: c.CustomerID,
		Cart:       snapshot,
	})
	if err != nil {
		return nil, nil, err
	}

	return &View{
		Cart:         c,
		Lines:        lines,
		Subtotal:     snapshot.Subtotal.Round(2),
		Discount:     q.Total,
		Total:        q.Payable().Round(2),
		FreeShipping: q.FreeShipping,
		Applied:      q.Applied,
	}, q, nil
}
