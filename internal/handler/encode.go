package handler

import (
	"time"

	"github.com/go-faster/jx"

	"github.com/xenking/coupon-engine/internal/codec"
	"github.com/xenking/coupon-engine/internal/domain/coupon"
)

func encodeCouponSummary(e *jx.Encoder, c *coupon.Coupon) {
	e.Obj(func(e *jx.Encoder) {
		e.Field("id", func(e *jx.Encoder) { e.Int64(c.ID) })
		if c.Code != "" {
			e.Field("code", func(e *jx.Encoder) { e.Str(c.Code) })
		}
		if c.Description != "" {
			e.Field("description", func(e *jx.Encoder) { e.Str(c.Description) })
		}
		e.Field("kind", func(e *jx.Encoder) { e.Str(string(c.Kind)) })
		e.Field("rule_type", func(e *jx.Encoder) { e.Str(string(c.RuleType())) })
		e.Field("automatic", func(e *jx.Encoder) { e.Bool(c.IsAutomatic) })
		e.Field("can_combine_with_other_coupons", func(e *jx.Encoder) { e.Bool(c.CanCombineWithOtherCoupons) })
		e.Field("can_combine_with_auto_discounts", func(e *jx.Encoder) { e.Bool(c.CanCombineWithAutoDiscounts) })
		if c.EndsAt != nil {
			e.Field("ends_at", func(e *jx.Encoder) { e.Str(c.EndsAt.UTC().Format(time.RFC3339)) })
		}
	})
}

func encodeDiscount(e *jx.Encoder, d *coupon.Discount) {
	e.Obj(func(e *jx.Encoder) {
		e.Field("coupon_id", func(e *jx.Encoder) { e.Int64(d.CouponID) })
		e.Field("amount", func(e *jx.Encoder) { codec.Money(e, d.Amount) })
		e.Field("free_shipping", func(e *jx.Encoder) { e.Bool(d.FreeShipping) })
		e.Field("affected_line_item_ids", func(e *jx.Encoder) { codec.Strings(e, d.AffectedLineItemIDs) })
	})
}

func encodeApplied(e *jx.Encoder, applied []coupon.Applied) {
	e.Arr(func(e *jx.Encoder) {
		for _, a := range applied {
			e.Obj(func(e *jx.Encoder) {
				e.Field("coupon_id", func(e *jx.Encoder) { e.Int64(a.Coupon.ID) })
				if a.Coupon.Code != "" {
					e.Field("code", func(e *jx.Encoder) { e.Str(a.Coupon.Code) })
				}
				e.Field("automatic", func(e *jx.Encoder) { e.Bool(a.Coupon.IsAutomatic) })
				e.Field("amount", func(e *jx.Encoder) { codec.Money(e, a.Discount.Amount) })
				e.Field("free_shipping", func(e *jx.Encoder) { e.Bool(a.Discount.FreeShipping) })
			})
		}
	})
}

func encodeLineItems(e *jx.Encoder, lines []coupon.LineItem) {
	e.Arr(func(e *jx.Encoder) {
		for _, l := range lines {
			e.Obj(func(e *jx.Encoder) {
				if l.ID != "" {
					e.Field("id", func(e *jx.Encoder) { e.Str(l.ID) })
				}
				e.Field("product_id", func(e *jx.Encoder) { e.Str(l.ProductID) })
				if l.VariantID != "" {
					e.Field("variant_id", func(e *jx.Encoder) { e.Str(l.VariantID) })
				}
				e.Field("quantity", func(e *jx.Encoder) { e.Int(l.Quantity) })
				e.Field("unit_price", func(e *jx.Encoder) { codec.Money(e, l.UnitPrice) })
				e.Field("total", func(e *jx.Encoder) { codec.Money(e, l.Total()) })
			})
		}
	})
}
