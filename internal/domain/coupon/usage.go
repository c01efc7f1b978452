package coupon

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

// Usage records one committed redemption of a coupon.
type Usage struct {
	CouponID       int64
	CustomerID     string
	OrderID        string
	DiscountAmount decimal.Decimal
	CreatedAt      time.Time
}

// UsageStore is the transactional view of usage persistence the ledger works
// against. LockCoupon must hold a row lock on the coupon until the enclosing
// transaction ends.
type UsageStore interface {
	LockCoupon(ctx context.Context, couponID int64) (*Coupon, error)
	CountUsage(ctx context.Context, couponID int64) (int, error)
	CountUsageByCustomer(ctx context.Context, couponID int64, customerID string) (int, error)
	InsertUsage(ctx context.Context, u Usage) error
}

// UsageStats summarises redemptions of a coupon within a period.
type UsageStats struct {
	CouponID      int64
	TotalUses     int
	TotalDiscount decimal.Decimal
	Daily         []DailyUsage
}

// DailyUsage is one day of UsageStats.
type DailyUsage struct {
	Day      time.Time
	Uses     int
	Discount decimal.Decimal
}

// UsageReports is the read model over recorded usage.
type UsageReports interface {
	UsageStats(ctx context.Context, couponID int64, from, to time.Time) (*UsageStats, error)
	UsageLogs(ctx context.Context, couponID int64, limit, offset int) ([]Usage, error)
}
