// Package codec holds the jx JSON encoding of domain values shared by the
// storage and HTTP layers.
package codec

import (
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	"github.com/shopspring/decimal"

	"github.com/xenking/coupon-engine/internal/domain/coupon"
	"github.com/xenking/coupon-engine/internal/domain/product"
)

// Decimal writes v as a JSON number.
func Decimal(e *jx.Encoder, v decimal.Decimal) {
	e.Num(jx.Num(v.String()))
}

// Money writes v rounded to cents as a fixed two-decimal JSON number.
func Money(e *jx.Encoder, v decimal.Decimal) {
	e.Num(jx.Num(v.StringFixed(2)))
}

// ReadDecimal reads a JSON number or numeric string.
func ReadDecimal(d *jx.Decoder) (decimal.Decimal, error) {
	switch d.Next() {
	case jx.String:
		s, err := d.Str()
		if err != nil {
			return decimal.Decimal{}, err
		}
		return decimal.NewFromString(s)
	case jx.Number:
		n, err := d.Num()
		if err != nil {
			return decimal.Decimal{}, err
		}
		return decimal.NewFromString(n.String())
	default:
		return decimal.Decimal{}, errors.Errorf("expected number, got %s", d.Next())
	}
}

// Strings writes a JSON array of strings; nil is written as an empty array.
func Strings(e *jx.Encoder, v []string) {
	e.ArrStart()
	for _, s := range v {
		e.Str(s)
	}
	e.ArrEnd()
}

// ReadStrings reads a JSON array of strings; null yields nil.
func ReadStrings(d *jx.Decoder) ([]string, error) {
	if d.Next() == jx.Null {
		return nil, d.Null()
	}
	var out []string
	err := d.Arr(func(d *jx.Decoder) error {
		s, err := d.Str()
		if err != nil {
			return err
		}
		out = append(out, s)
		return nil
	})
	return out, err
}

// EncodeTiers returns the JSON array stored in the tiered_data column.
func EncodeTiers(tiers []coupon.Tier) []byte {
	var e jx.Encoder
	writeTiers(&e, tiers)
	return e.Bytes()
}

func writeTiers(e *jx.Encoder, tiers []coupon.Tier) {
	e.ArrStart()
	for _, t := range tiers {
		e.ObjStart()
		e.FieldStart("min")
		Decimal(e, t.Min)
		e.FieldStart("value")
		Decimal(e, t.Value)
		e.FieldStart("type")
		e.Str(string(t.Kind))
		e.ObjEnd()
	}
	e.ArrEnd()
}

// DecodeTiers parses tiered_data. Entries are returned in stored order.
func DecodeTiers(data []byte) ([]coupon.Tier, error) {
	if len(data) == 0 {
		return nil, nil
	}
	return readTiers(jx.DecodeBytes(data))
}

func readTiers(d *jx.Decoder) ([]coupon.Tier, error) {
	if d.Next() == jx.Null {
		return nil, d.Null()
	}
	var tiers []coupon.Tier
	err := d.Arr(func(d *jx.Decoder) error {
		var t coupon.Tier
		if err := d.Obj(func(d *jx.Decoder, key string) error {
			var err error
			switch key {
			case "min":
				t.Min, err = ReadDecimal(d)
			case "value":
				t.Value, err = ReadDecimal(d)
			case "type":
				var s string
				s, err = d.Str()
				t.Kind = coupon.Kind(s)
			default:
				err = d.Skip()
			}
			return err
		}); err != nil {
			return err
		}
		tiers = append(tiers, t)
		return nil
	})
	if err != nil {
		return nil, errors.Wrap(err, "decode tiers")
	}
	return tiers, nil
}

// EncodeLines returns the JSON array stored in the orders.items column.
func EncodeLines(lines []product.Line) []byte {
	var e jx.Encoder
	e.ArrStart()
	for _, l := range lines {
		e.ObjStart()
		if l.ID != "" {
			e.FieldStart("id")
			e.Str(l.ID)
		}
		e.FieldStart("product_id")
		e.Str(l.ProductID)
		if l.VariantID != "" {
			e.FieldStart("variant_id")
			e.Str(l.VariantID)
		}
		e.FieldStart("quantity")
		e.Int(l.Quantity)
		e.ObjEnd()
	}
	e.ArrEnd()
	return e.Bytes()
}

// ReadLine reads one {id, product_id, variant_id, quantity} object.
func ReadLine(d *jx.Decoder) (product.Line, error) {
	var l product.Line
	err := d.Obj(func(d *jx.Decoder, key string) error {
		var err error
		switch key {
		case "id":
			l.ID, err = d.Str()
		case "product_id", "productId":
			l.ProductID, err = d.Str()
		case "variant_id":
			l.VariantID, err = d.Str()
		case "quantity":
			l.Quantity, err = d.Int()
		default:
			err = d.Skip()
		}
		return err
	})
	return l, err
}

// DecodeLines parses orders.items.
func DecodeLines(data []byte) ([]product.Line, error) {
	if len(data) == 0 {
		return nil, nil
	}
	var lines []product.Line
	err := jx.DecodeBytes(data).Arr(func(d *jx.Decoder) error {
		l, err := ReadLine(d)
		if err != nil {
			return err
		}
		lines = append(lines, l)
		return nil
	})
	if err != nil {
		return nil, errors.Wrap(err, "decode lines")
	}
	return lines, nil
}

func timePtr(e *jx.Encoder, field string, t *time.Time) {
	if t == nil {
		return
	}
	e.FieldStart(field)
	e.Str(t.UTC().Format(time.RFC3339Nano))
}

func intPtr(e *jx.Encoder, field string, v *int) {
	if v == nil {
		return
	}
	e.FieldStart(field)
	e.Int(*v)
}

// EncodeCoupon returns the full JSON record of c.
func EncodeCoupon(c *coupon.Coupon) []byte {
	var e jx.Encoder
	e.ObjStart()
	e.FieldStart("id")
	e.Int64(c.ID)
	e.FieldStart("code")
	e.Str(c.Code)
	e.FieldStart("description")
	e.Str(c.Description)
	e.FieldStart("is_automatic")
	e.Bool(c.IsAutomatic)
	e.FieldStart("is_active")
	e.Bool(c.IsActive)
	e.FieldStart("type")
	e.Str(string(c.Kind))

	e.FieldStart("rule_type")
	e.Str(string(c.RuleType()))
	switch r := c.Rule.(type) {
	case coupon.SimpleRule:
		e.FieldStart("value")
		Decimal(&e, r.Value)
	case coupon.BuyXGetYRule:
		e.FieldStart("buy_quantity")
		e.Int(r.BuyQuantity)
		e.FieldStart("get_quantity")
		e.Int(r.GetQuantity)
		e.FieldStart("get_discount_percentage")
		Decimal(&e, r.GetDiscountPercentage)
		e.FieldStart("buy_product_ids")
		Strings(&e, r.BuyProductIDs)
		e.FieldStart("get_product_ids")
		Strings(&e, r.GetProductIDs)
	case coupon.TieredRule:
		e.FieldStart("tiered_data")
		writeTiers(&e, r.Tiers)
	}

	e.FieldStart("applies_to")
	e.Str(string(c.AppliesTo))
	e.FieldStart("product_ids")
	Strings(&e, c.ProductIDs)
	e.FieldStart("category_ids")
	Strings(&e, c.CategoryIDs)
	e.FieldStart("exclude_product_ids")
	Strings(&e, c.ExcludeProductIDs)
	e.FieldStart("exclude_category_ids")
	Strings(&e, c.ExcludeCategoryIDs)

	e.FieldStart("min_requirement_type")
	e.Str(string(c.MinRequirement))
	e.FieldStart("min_requirement_value")
	Decimal(&e, c.MinRequirementValue)

	e.FieldStart("customer_eligibility")
	e.Str(string(c.CustomerEligibility))
	e.FieldStart("customer_group_ids")
	Strings(&e, c.CustomerGroupIDs)
	e.FieldStart("customer_ids")
	Strings(&e, c.CustomerIDs)

	timePtr(&e, "starts_at", c.StartsAt)
	timePtr(&e, "ends_at", c.EndsAt)

	e.FieldStart("can_combine_with_other_coupons")
	e.Bool(c.CanCombineWithOtherCoupons)
	e.FieldStart("can_combine_with_auto_discounts")
	e.Bool(c.CanCombineWithAutoDiscounts)
	e.FieldStart("priority")
	e.Int(c.Priority)

	intPtr(&e, "usage_limit", c.UsageLimit)
	intPtr(&e, "usage_limit_per_customer", c.UsageLimitPerCustomer)

	e.FieldStart("created_at")
	e.Str(c.CreatedAt.UTC().Format(time.RFC3339Nano))
	e.ObjEnd()
	return e.Bytes()
}

// DecodeCoupon parses a record written by EncodeCoupon.
func DecodeCoupon(data []byte) (*coupon.Coupon, error) {
	var (
		c        coupon.Coupon
		ruleType coupon.RuleType
		simple   coupon.SimpleRule
		bxgy     coupon.BuyXGetYRule
		tiered   coupon.TieredRule
	)

	readTime := func(d *jx.Decoder) (time.Time, error) {
		s, err := d.Str()
		if err != nil {
			return time.Time{}, err
		}
		return time.Parse(time.RFC3339Nano, s)
	}
	readIntPtr := func(d *jx.Decoder) (*int, error) {
		v, err := d.Int()
		if err != nil {
			return nil, err
		}
		return &v, nil
	}

	err := jx.DecodeBytes(data).Obj(func(d *jx.Decoder, key string) error {
		var err error
		switch key {
		case "id":
			c.ID, err = d.Int64()
		case "code":
			c.Code, err = d.Str()
		case "description":
			c.Description, err = d.Str()
		case "is_automatic":
			c.IsAutomatic, err = d.Bool()
		case "is_active":
			c.IsActive, err = d.Bool()
		case "type":
			var s string
			s, err = d.Str()
			c.Kind = coupon.Kind(s)
		case "rule_type":
			var s string
			s, err = d.Str()
			ruleType = coupon.RuleType(s)
		case "value":
			simple.Value, err = ReadDecimal(d)
		case "buy_quantity":
			bxgy.BuyQuantity, err = d.Int()
		case "get_quantity":
			bxgy.GetQuantity, err = d.Int()
		case "get_discount_percentage":
			bxgy.GetDiscountPercentage, err = ReadDecimal(d)
		case "buy_product_ids":
			bxgy.BuyProductIDs, err = ReadStrings(d)
		case "get_product_ids":
			bxgy.GetProductIDs, err = ReadStrings(d)
		case "tiered_data":
			tiered.Tiers, err = readTiers(d)
		case "applies_to":
			var s string
			s, err = d.Str()
			c.AppliesTo = coupon.Scope(s)
		case "product_ids":
			c.ProductIDs, err = ReadStrings(d)
		case "category_ids":
			c.CategoryIDs, err = ReadStrings(d)
		case "exclude_product_ids":
			c.ExcludeProductIDs, err = ReadStrings(d)
		case "exclude_category_ids":
			c.ExcludeCategoryIDs, err = ReadStrings(d)
		case "min_requirement_type":
			var s string
			s, err = d.Str()
			c.MinRequirement = coupon.MinRequirement(s)
		case "min_requirement_value":
			c.MinRequirementValue, err = ReadDecimal(d)
		case "customer_eligibility":
			var s string
			s, err = d.Str()
			c.CustomerEligibility = coupon.CustomerEligibility(s)
		case "customer_group_ids":
			c.CustomerGroupIDs, err = ReadStrings(d)
		case "customer_ids":
			c.CustomerIDs, err = ReadStrings(d)
		case "starts_at":
			var t time.Time
			t, err = readTime(d)
			c.StartsAt = &t
		case "ends_at":
			var t time.Time
			t, err = readTime(d)
			c.EndsAt = &t
		case "can_combine_with_other_coupons":
			c.CanCombineWithOtherCoupons, err = d.Bool()
		case "can_combine_with_auto_discounts":
			c.CanCombineWithAutoDiscounts, err = d.Bool()
		case "priority":
			c.Priority, err = d.Int()
		case "usage_limit":
			c.UsageLimit, err = readIntPtr(d)
		case "usage_limit_per_customer":
			c.UsageLimitPerCustomer, err = readIntPtr(d)
		case "created_at":
			c.CreatedAt, err = readTime(d)
		default:
			err = d.Skip()
		}
		if err != nil {
			return errors.Wrap(err, key)
		}
		return nil
	})
	if err != nil {
		return nil, errors.Wrap(err, "decode coupon")
	}

	switch ruleType {
	case coupon.RuleBuyXGetY:
		c.Rule = bxgy
	case coupon.RuleTiered:
		c.Rule = tiered
	default:
		c.Rule = simple
	}
	return &c, nil
}
