package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/xenking/coupon-engine/internal/codec"
	"github.com/xenking/coupon-engine/internal/domain/coupon"
)

const couponColumns = `id, COALESCE(code, ''), description, is_automatic, is_active, type, rule_type, value,
	applies_to, product_ids, category_ids, exclude_product_ids, exclude_category_ids,
	min_requirement_type, min_requirement_value,
	customer_eligibility, customer_group_ids, customer_ids,
	starts_at, ends_at,
	can_combine_with_other_coupons, can_combine_with_auto_discounts, priority,
	usage_limit, usage_limit_per_customer,
	buy_quantity, get_quantity, get_discount_percentage, buy_product_ids, get_product_ids,
	tiered_data, created_at`

const (
	getCouponByCodeSQL = `SELECT ` + couponColumns + `
		FROM coupons WHERE code = UPPER($1) AND NOT is_automatic`

	getCouponByIDSQL = `SELECT ` + couponColumns + `
		FROM coupons WHERE id = $1`

	lockCouponSQL = `SELECT ` + couponColumns + `
		FROM coupons WHERE id = $1 FOR UPDATE`

	listAutomaticSQL = `SELECT ` + couponColumns + `
		FROM coupons WHERE is_automatic AND is_active
		ORDER BY priority DESC, created_at, id`

	countUsageSQL = `SELECT count(*) FROM coupon_usages WHERE coupon_id = $1`

	countUsageByCustomerSQL = `SELECT count(*) FROM coupon_usages
		WHERE coupon_id = $1 AND customer_id = $2`

	usageStatsSQL = `SELECT date_trunc('day', created_at AT TIME ZONE 'UTC') AS day,
			count(*), COALESCE(sum(discount_amount), 0)
		FROM coupon_usages
		WHERE coupon_id = $1
			AND ($2::timestamptz IS NULL OR created_at >= $2)
			AND ($3::timestamptz IS NULL OR created_at < $3)
		GROUP BY day ORDER BY day`

	usageLogsSQL = `SELECT coupon_id, COALESCE(customer_id, ''), order_id, discount_amount, created_at
		FROM coupon_usages WHERE coupon_id = $1
		ORDER BY created_at DESC, id DESC
		LIMIT $2 OFFSET $3`

	insertCouponSQL = `INSERT INTO coupons (
			code, description, is_automatic, is_active, type, rule_type, value,
			applies_to, product_ids, category_ids, exclude_product_ids, exclude_category_ids,
			min_requirement_type, min_requirement_value,
			customer_eligibility, customer_group_ids, customer_ids,
			starts_at, ends_at,
			can_combine_with_other_coupons, can_combine_with_auto_discounts, priority,
			usage_limit, usage_limit_per_customer,
			buy_quantity, get_quantity, get_discount_percentage, buy_product_ids, get_product_ids,
			tiered_data)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17,
			$18, $19, $20, $21, $22, $23, $24, $25, $26, $27, $28, $29, $30)
		ON CONFLICT (code) DO UPDATE SET
			description = EXCLUDED.description,
			is_active = EXCLUDED.is_active,
			type = EXCLUDED.type,
			rule_type = EXCLUDED.rule_type,
			value = EXCLUDED.value,
			applies_to = EXCLUDED.applies_to,
			product_ids = EXCLUDED.product_ids,
			category_ids = EXCLUDED.category_ids,
			exclude_product_ids = EXCLUDED.exclude_product_ids,
			exclude_category_ids = EXCLUDED.exclude_category_ids,
			min_requirement_type = EXCLUDED.min_requirement_type,
			min_requirement_value = EXCLUDED.min_requirement_value,
			customer_eligibility = EXCLUDED.customer_eligibility,
			customer_group_ids = EXCLUDED.customer_group_ids,
			customer_ids = EXCLUDED.customer_ids,
			starts_at = EXCLUDED.starts_at,
			ends_at = EXCLUDED.ends_at,
			can_combine_with_other_coupons = EXCLUDED.can_combine_with_other_coupons,
			can_combine_with_auto_discounts = EXCLUDED.can_combine_with_auto_discounts,
			priority = EXCLUDED.priority,
			usage_limit = EXCLUDED.usage_limit,
			usage_limit_per_customer = EXCLUDED.usage_limit_per_customer,
			buy_quantity = EXCLUDED.buy_quantity,
			get_quantity = EXCLUDED.get_quantity,
			get_discount_percentage = EXCLUDED.get_discount_percentage,
			buy_product_ids = EXCLUDED.buy_product_ids,
			get_product_ids = EXCLUDED.get_product_ids,
			tiered_data = EXCLUDED.tiered_data
		RETURNING id, created_at`

	cloneCouponSQL = `INSERT INTO coupons (
			code, description, is_automatic, is_active, type, rule_type, value,
			applies_to, product_ids, category_ids, exclude_product_ids, exclude_category_ids,
			min_requirement_type, min_requirement_value,
			customer_eligibility, customer_group_ids, customer_ids,
			starts_at, ends_at,
			can_combine_with_other_coupons, can_combine_with_auto_discounts, priority,
			usage_limit, usage_limit_per_customer,
			buy_quantity, get_quantity, get_discount_percentage, buy_product_ids, get_product_ids,
			tiered_data)
		SELECT UPPER(c.code), t.description, FALSE, t.is_active, t.type, t.rule_type, t.value,
			t.applies_to, t.product_ids, t.category_ids, t.exclude_product_ids, t.exclude_category_ids,
			t.min_requirement_type, t.min_requirement_value,
			t.customer_eligibility, t.customer_group_ids, t.customer_ids,
			t.starts_at, t.ends_at,
			t.can_combine_with_other_coupons, t.can_combine_with_auto_discounts, t.priority,
			t.usage_limit, t.usage_limit_per_customer,
			t.buy_quantity, t.get_quantity, t.get_discount_percentage, t.buy_product_ids, t.get_product_ids,
			t.tiered_data
		FROM coupons t, unnest($2::text[]) AS c(code)
		WHERE t.id = $1
		ON CONFLICT (code) DO NOTHING`
)

var (
	_ coupon.Repository   = (*CouponRepository)(nil)
	_ coupon.UsageReports = (*CouponRepository)(nil)
)

// CouponRepository implements coupon.Repository and coupon.UsageReports
// backed by PostgreSQL.
type CouponRepository struct {
	pool *pgxpool.Pool
}

// NewCouponRepository returns a CouponRepository that uses the given pool.
func NewCouponRepository(pool *pgxpool.Pool) *CouponRepository {
	return &CouponRepository{pool: pool}
}

// FindByCode looks up a manual coupon by its code (case-insensitive).
// Returns coupon.ErrNotFound when no coupon matches.
func (r *CouponRepository) FindByCode(ctx context.Context, code string) (*coupon.Coupon, error) {
	c, err := getCoupon(ctx, r.pool, getCouponByCodeSQL, code)
	if err != nil {
		return nil, fmt.Errorf("finding coupon by code %q: %w", code, err)
	}
	return c, nil
}

// FindByID looks up a coupon or automatic discount by ID.
func (r *CouponRepository) FindByID(ctx context.Context, id int64) (*coupon.Coupon, error) {
	c, err := getCoupon(ctx, r.pool, getCouponByIDSQL, id)
	if err != nil {
		return nil, fmt.Errorf("finding coupon %d: %w", id, err)
	}
	return c, nil
}

// ListAutomatic returns the active automatic discounts, highest priority
// first.
func (r *CouponRepository) ListAutomatic(ctx context.Context) ([]coupon.Coupon, error) {
	rows, err := r.pool.Query(ctx, listAutomaticSQL)
	if err != nil {
		return nil, fmt.Errorf("listing automatic discounts: %w", err)
	}
	return pgx.CollectRows(rows, scanCoupon)
}

// CountUsage returns the number of committed usages of a coupon.
func (r *CouponRepository) CountUsage(ctx context.Context, couponID int64) (int, error) {
	return countUsage(ctx, r.pool, couponID)
}

// CountUsageByCustomer returns the number of committed usages of a coupon by
// one customer.
func (r *CouponRepository) CountUsageByCustomer(ctx context.Context, couponID int64, customerID string) (int, error) {
	return countUsageByCustomer(ctx, r.pool, couponID, customerID)
}

// UsageStats aggregates usage per UTC day within [from, to). Zero bounds are
// open.
func (r *CouponRepository) UsageStats(ctx context.Context, couponID int64, from, to time.Time) (*coupon.UsageStats, error) {
	rows, err := r.pool.Query(ctx, usageStatsSQL, couponID, nullTime(from), nullTime(to))
	if err != nil {
		return nil, fmt.Errorf("usage stats for coupon %d: %w", couponID, err)
	}
	daily, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (coupon.DailyUsage, error) {
		var (
			u    coupon.DailyUsage
			uses int64
		)
		err := row.Scan(&u.Day, &uses, &u.Discount)
		u.Uses = int(uses)
		return u, err
	})
	if err != nil {
		return nil, fmt.Errorf("usage stats for coupon %d: %w", couponID, err)
	}

	stats := &coupon.UsageStats{
		CouponID:      couponID,
		TotalDiscount: decimal.Zero,
		Daily:         daily,
	}
	for _, d := range daily {
		stats.TotalUses += d.Uses
		stats.TotalDiscount = stats.TotalDiscount.Add(d.Discount)
	}
	return stats, nil
}

// UsageLogs returns usage records newest first.
func (r *CouponRepository) UsageLogs(ctx context.Context, couponID int64, limit, offset int) ([]coupon.Usage, error) {
	rows, err := r.pool.Query(ctx, usageLogsSQL, couponID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("usage logs for coupon %d: %w", couponID, err)
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (coupon.Usage, error) {
		var u coupon.Usage
		err := row.Scan(&u.CouponID, &u.CustomerID, &u.OrderID, &u.DiscountAmount, &u.CreatedAt)
		return u, err
	})
}

// Save inserts c, or updates the coupon with the same code. It sets c.ID and
// c.CreatedAt.
func (r *CouponRepository) Save(ctx context.Context, c *coupon.Coupon) error {
	var (
		code   *string
		value  decimal.Decimal
		bxgy   coupon.BuyXGetYRule
		tiered []byte
	)
	if c.Code != "" {
		normalized := coupon.NormalizeCode(c.Code)
		code = &normalized
	}
	switch rule := c.Rule.(type) {
	case coupon.SimpleRule:
		value = rule.Value
	case coupon.BuyXGetYRule:
		bxgy = rule
	case coupon.TieredRule:
		tiered = codec.EncodeTiers(rule.Tiers)
	}

	err := r.pool.QueryRow(ctx, insertCouponSQL,
		code, c.Description, c.IsAutomatic, c.IsActive, string(c.Kind), string(c.RuleType()), value,
		string(c.AppliesTo), nonNil(c.ProductIDs), nonNil(c.CategoryIDs),
		nonNil(c.ExcludeProductIDs), nonNil(c.ExcludeCategoryIDs),
		string(c.MinRequirement), c.MinRequirementValue,
		string(c.CustomerEligibility), nonNil(c.CustomerGroupIDs), nonNil(c.CustomerIDs),
		c.StartsAt, c.EndsAt,
		c.CanCombineWithOtherCoupons, c.CanCombineWithAutoDiscounts, c.Priority,
		c.UsageLimit, c.UsageLimitPerCustomer,
		bxgy.BuyQuantity, bxgy.GetQuantity, bxgy.GetDiscountPercentage,
		nonNil(bxgy.BuyProductIDs), nonNil(bxgy.GetProductIDs),
		tiered,
	).Scan(&c.ID, &c.CreatedAt)
	if err != nil {
		return fmt.Errorf("saving coupon %q: %w", c.Code, err)
	}
	return nil
}

// CloneCodes creates one manual coupon per code copying every rule field of
// the template coupon. Codes that already exist are skipped. It returns the
// number of coupons created.
func (r *CouponRepository) CloneCodes(ctx context.Context, templateID int64, codes []string) (int64, error) {
	tag, err := r.pool.Exec(ctx, cloneCouponSQL, templateID, codes)
	if err != nil {
		return 0, fmt.Errorf("cloning coupon %d: %w", templateID, err)
	}
	return tag.RowsAffected(), nil
}

func getCoupon(ctx context.Context, q querier, sql string, arg any) (*coupon.Coupon, error) {
	rows, err := q.Query(ctx, sql, arg)
	if err != nil {
		return nil, err
	}
	c, err := pgx.CollectExactlyOneRow(rows, scanCoupon)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, coupon.ErrNotFound
		}
		return nil, err
	}
	return &c, nil
}

func countUsage(ctx context.Context, q querier, couponID int64) (int, error) {
	var n int64
	if err := q.QueryRow(ctx, countUsageSQL, couponID).Scan(&n); err != nil {
		return 0, fmt.Errorf("counting usage of coupon %d: %w", couponID, err)
	}
	return int(n), nil
}

func countUsageByCustomer(ctx context.Context, q querier, couponID int64, customerID string) (int, error) {
	var n int64
	if err := q.QueryRow(ctx, countUsageByCustomerSQL, couponID, customerID).Scan(&n); err != nil {
		return 0, fmt.Errorf("counting usage of coupon %d by %q: %w", couponID, customerID, err)
	}
	return int(n), nil
}

func scanCoupon(row pgx.CollectableRow) (coupon.Coupon, error) {
	var (
		c           coupon.Coupon
		kind        string
		ruleType    string
		value       decimal.Decimal
		scope       string
		minType     string
		eligibility string
		bxgy        coupon.BuyXGetYRule
		tiered      []byte
	)
	err := row.Scan(
		&c.ID, &c.Code, &c.Description, &c.IsAutomatic, &c.IsActive, &kind, &ruleType, &value,
		&scope, &c.ProductIDs, &c.CategoryIDs, &c.ExcludeProductIDs, &c.ExcludeCategoryIDs,
		&minType, &c.MinRequirementValue,
		&eligibility, &c.CustomerGroupIDs, &c.CustomerIDs,
		&c.StartsAt, &c.EndsAt,
		&c.CanCombineWithOtherCoupons, &c.CanCombineWithAutoDiscounts, &c.Priority,
		&c.UsageLimit, &c.UsageLimitPerCustomer,
		&bxgy.BuyQuantity, &bxgy.GetQuantity, &bxgy.GetDiscountPercentage,
		&bxgy.BuyProductIDs, &bxgy.GetProductIDs,
		&tiered, &c.CreatedAt,
	)
	if err != nil {
		return c, err
	}

	c.Kind = coupon.Kind(kind)
	c.AppliesTo = coupon.Scope(scope)
	c.MinRequirement = coupon.MinRequirement(minType)
	c.CustomerEligibility = coupon.CustomerEligibility(eligibility)

	switch coupon.RuleType(ruleType) {
	case coupon.RuleBuyXGetY:
		c.Rule = bxgy
	case coupon.RuleTiered:
		tiers, err := codec.DecodeTiers(tiered)
		if err != nil {
			return c, fmt.Errorf("coupon %d: %w", c.ID, err)
		}
		c.Rule = coupon.TieredRule{Tiers: tiers}
	default:
		c.Rule = coupon.SimpleRule{Value: value}
	}
	return c, nil
}

func nullTime(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}

func nonNil(v []string) []string {
	if v == nil {
		return []string{}
	}
	return v
}
