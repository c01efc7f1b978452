package order

import (
	"context"
	"fmt"
	"slices"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/xenking/coupon-engine/internal/domain/cart"
	"github.com/xenking/coupon-engine/internal/domain/coupon"
	"github.com/xenking/coupon-engine/internal/domain/product"
)

// Sentinel errors for order validation.
var (
	ErrEmptyItems = errors.New("items required")
)

// InvalidQuantityError indicates a line item has a non-positive quantity.
type InvalidQuantityError struct {
	ProductID string
}

func (e *InvalidQuantityError) Error() string {
	return fmt.Sprintf("quantity must be greater than 0 for product %s", e.ProductID)
}

// PlaceOrderRequest holds the input for placing an order. When CartID is set
// the items, customer and coupon are taken from the cart instead.
type PlaceOrderRequest struct {
	CartID      string
	CustomerID  string
	Items       []product.Line
	CouponCodes []string
}

// PlaceOrderResult holds the output of a successfully placed order.
type PlaceOrderResult struct {
	Order   *Order
	Lines   []coupon.LineItem
	Applied []coupon.Applied
}

// CommitRequest records a coupon redemption against an existing order.
type CommitRequest struct {
	OrderID        string
	CouponID       int64
	CustomerID     string
	DiscountAmount decimal.Decimal
}

// CouponFinder resolves coupons by id.
type CouponFinder interface {
	FindByID(ctx context.Context, id int64) (*coupon.Coupon, error)
}

// Service encapsulates order placement business logic.
type Service struct {
	products product.Repository
	carts    cart.Repository
	coupons  cart.Quoter
	finder   CouponFinder
	ledger   *coupon.Ledger
	db       Transactor
	now      func() time.Time
}

// NewService creates an order Service with the required domain dependencies.
func NewService(
	products product.Repository,
	carts cart.Repository,
	coupons cart.Quoter,
	finder CouponFinder,
	ledger *coupon.Ledger,
	db Transactor,
) *Service {
	return &Service{
		products: products,
		carts:    carts,
		coupons:  coupons,
		finder:   finder,
		ledger:   ledger,
		db:       db,
		now:      time.Now,
	}
}

// PlaceOrder prices the items, combines the requested coupons with automatic
// discounts and persists the order. The order row and one usage record per
// applied discount are written in a single transaction; if any usage limit is
// reached in the meantime the whole order is rolled back and
// coupon.ErrUsageLimitExceededAtCommit is returned.
func (s *Service) PlaceOrder(ctx context.Context, req PlaceOrderRequest) (*PlaceOrderResult, error) {
	if req.CartID != "" {
		c, err := s.carts.Get(ctx, req.CartID)
		if err != nil {
			return nil, err
		}
		req.CustomerID = c.CustomerID
		req.Items = c.Items
		req.CouponCodes = nil
		if c.CouponCode != "" {
			req.CouponCodes = []string{c.CouponCode}
		}
	}

	if len(req.Items) == 0 {
		return nil, ErrEmptyItems
	}
	for _, item := range req.Items {
		if item.Quantity <= 0 {
			return nil, &InvalidQuantityError{ProductID: item.ProductID}
		}
	}

	lines, err := product.PriceLines(ctx, s.products, req.Items)
	if err != nil {
		return nil, err
	}
	snapshot := coupon.NewCart(lines)

	q, err := s.coupons.Quote(ctx, coupon.QuoteRequest{
		Codes:      req.CouponCodes,
		CustomerID: req.CustomerID,
		Cart:       snapshot,
	})
	if err != nil {
		return nil, errors.Wrap(err, "quote")
	}
	codes := make([]string, 0, len(req.CouponCodes))
	for _, code := range req.CouponCodes {
		code = coupon.NormalizeCode(code)
		if slices.Contains(codes, code) {
			continue
		}
		if err := q.Check(code); err != nil {
			return nil, err
		}
		codes = append(codes, code)
	}

	o := &Order{
		ID:           uuid.New().String(),
		CustomerID:   req.CustomerID,
		Items:        req.Items,
		Subtotal:     snapshot.Subtotal.Round(2),
		Discount:     q.Total.Round(2),
		Total:        q.Payable().Round(2),
		CouponCodes:  codes,
		FreeShipping: q.FreeShipping,
		CreatedAt:    s.now(),
	}

	if err := s.db.WithinTx(ctx, func(ctx context.Context, tx Tx) error {
		if err := tx.CreateOrder(ctx, o); err != nil {
			return errors.Wrap(err, "create order")
		}
		for _, a := range q.Applied {
			if err := s.ledger.TryApply(ctx, tx, coupon.Usage{
				CouponID:       a.Coupon.ID,
				CustomerID:     req.CustomerID,
				OrderID:        o.ID,
				DiscountAmount: a.Discount.Amount,
				CreatedAt:      o.CreatedAt,
			}); err != nil {
				return err
			}
		}
		return nil
	}); err != nil {
		return nil, err
	}

	zctx.From(ctx).Info("Order placed",
		zap.String("order_id", o.ID),
		zap.Strings("coupons", codes),
		zap.Int("discounts", len(q.Applied)),
		zap.Stringer("total", o.Total),
	)

	return &PlaceOrderResult{
		Order:   o,
		Lines:   lines,
		Applied: q.Applied,
	}, nil
}

// CommitCoupon records a coupon redemption for an order placed elsewhere.
// The usage limits are re-checked under the coupon lock and
// coupon.ErrUsageLimitExceededAtCommit is returned when they no longer allow
// it. An unknown coupon id is rejected before any transaction is opened.
func (s *Service) CommitCoupon(ctx context.Context, req CommitRequest) error {
	switch {
	case req.OrderID == "":
		return &coupon.ValidationError{Field: "order_id", Message: "order id is required"}
	case req.CouponID <= 0:
		return &coupon.ValidationError{Field: "coupon_id", Message: "coupon id is required"}
	case req.DiscountAmount.IsNegative():
		return &coupon.ValidationError{Field: "discount_amount", Message: "discount amount must not be negative"}
	}

	if _, err := s.finder.FindByID(ctx, req.CouponID); err != nil {
		if errors.Is(err, coupon.ErrNotFound) {
			return &coupon.ValidationError{Field: "coupon_id", Message: "unknown coupon", Err: coupon.ErrNotFound}
		}
		return errors.Wrap(err, "find coupon")
	}

	return s.db.WithinTx(ctx, func(ctx context.Context, tx Tx) error {
		o, err := tx.GetOrder(ctx, req.OrderID)
		if err != nil {
			return err
		}
		if req.DiscountAmount.GreaterThan(o.Subtotal) {
			return &coupon.ValidationError{
				Field:   "discount_amount",
				Message: "discount amount exceeds order subtotal",
			}
		}
		customerID := req.CustomerID
		if customerID == "" {
			customerID = o.CustomerID
		}
		return s.ledger.TryApply(ctx, tx, coupon.Usage{
			CouponID:       req.CouponID,
			CustomerID:     customerID,
			OrderID:        o.ID,
			DiscountAmount: req.DiscountAmount,
			CreatedAt:      s.now(),
		})
	})
}
