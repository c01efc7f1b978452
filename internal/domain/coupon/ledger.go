package coupon

import (
	"context"
	"strconv"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.uber.org/zap"
)

// Ledger records coupon usage at order commit. It is the only component that
// writes usage and must run inside the order's transaction.
type Ledger struct {
	now      func() time.Time
	recorded metric.Int64Counter
	rejected metric.Int64Counter
}

// NewLedger creates a Ledger reporting to the given meter provider.
func NewLedger(mp metric.MeterProvider) (*Ledger, error) {
	meter := mp.Meter("coupon")

	recorded, err := meter.Int64Counter("coupon.usage.recorded",
		metric.WithDescription("Coupon usages recorded at order commit"),
	)
	if err != nil {
		return nil, errors.Wrap(err, "create recorded counter")
	}
	rejected, err := meter.Int64Counter("coupon.usage.rejected",
		metric.WithDescription("Coupon usages rejected by the commit-time limit check"),
	)
	if err != nil {
		return nil, errors.Wrap(err, "create rejected counter")
	}

	return &Ledger{
		now:      time.Now,
		recorded: recorded,
		rejected: rejected,
	}, nil
}

// TryApply locks the coupon, re-reads its usage counts and inserts u when the
// global and per-customer limits still allow it. It returns
// ErrUsageLimitExceededAtCommit otherwise; the caller must roll back the
// enclosing transaction.
func (l *Ledger) TryApply(ctx context.Context, store UsageStore, u Usage) error {
	c, err := store.LockCoupon(ctx, u.CouponID)
	if err != nil {
		return errors.Wrapf(err, "lock coupon %d", u.CouponID)
	}

	attrs := metric.WithAttributes(attribute.String("coupon.id", strconv.FormatInt(c.ID, 10)))

	if c.UsageLimit != nil {
		total, err := store.CountUsage(ctx, c.ID)
		if err != nil {
			return errors.Wrap(err, "count usage")
		}
		if total >= *c.UsageLimit {
			l.reject(ctx, c, u, "global", attrs)
			return ErrUsageLimitExceededAtCommit
		}
	}

	if u.CustomerID != "" && c.UsageLimitPerCustomer != nil {
		used, err := store.CountUsageByCustomer(ctx, c.ID, u.CustomerID)
		if err != nil {
			return errors.Wrap(err, "count customer usage")
		}
		if used >= *c.UsageLimitPerCustomer {
			l.reject(ctx, c, u, "customer", attrs)
			return ErrUsageLimitExceededAtCommit
		}
	}

	if u.CreatedAt.IsZero() {
		u.CreatedAt = l.now()
	}
	u.DiscountAmount = u.DiscountAmount.Round(2)

	if err := store.InsertUsage(ctx, u); err != nil {
		return errors.Wrap(err, "insert usage")
	}

	l.recorded.Add(ctx, 1, attrs)
	return nil
}

func (l *Ledger) reject(ctx context.Context, c *Coupon, u Usage, limit string, attrs metric.AddOption) {
	l.rejected.Add(ctx, 1, attrs)
	zctx.From(ctx).Warn("Coupon usage limit reached at commit",
		zap.Int64("coupon_id", c.ID),
		zap.String("code", c.Code),
		zap.String("order_id", u.OrderID),
		zap.String("limit", limit),
	)
}
