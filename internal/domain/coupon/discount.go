package coupon

import (
	"sort"

	"github.com/shopspring/decimal"
)

// Discount is the computed benefit of a single coupon against a cart.
type Discount struct {
	CouponID            int64
	Amount              decimal.Decimal
	AffectedLineItemIDs []string
	FreeShipping        bool
}

// Calculate computes the discount c grants on cart. It assumes c has already
// passed CheckEligibility and never fails: when nothing matches the amount is
// zero. The amount is always within [0, cart.Total()].
func Calculate(c *Coupon, cart Cart) Discount {
	d := Discount{CouponID: c.ID, Amount: zero}
	subtotal := cart.Total()

	switch rule := c.Rule.(type) {
	case BuyXGetYRule:
		d.Amount, d.AffectedLineItemIDs = applyBuyXGetY(rule, cart.Items)
	case TieredRule:
		eligible := EligibleItems(c, cart.Items)
		base := sumItems(eligible)
		if tier, ok := selectTier(rule.Tiers, base); ok {
			d.Amount = applyValue(tier.Kind, tier.Value, base)
		}
		d.AffectedLineItemIDs = affected(d.Amount, eligible)
	case SimpleRule:
		eligible := EligibleItems(c, cart.Items)
		if c.Kind == KindFreeShipping {
			d.FreeShipping = true
		} else {
			d.Amount = applyValue(c.Kind, rule.Value, sumItems(eligible))
		}
		d.AffectedLineItemIDs = affected(d.Amount, eligible)
	default:
		// A coupon stored without a rule is a simple coupon with no value.
		if c.Kind == KindFreeShipping {
			d.FreeShipping = true
		}
	}

	d.Amount = clamp(d.Amount, subtotal)
	return d
}

// applyValue applies a fixed or percentage value to base, clamped to base.
func applyValue(kind Kind, value, base decimal.Decimal) decimal.Decimal {
	switch kind {
	case KindFixed:
		return clamp(value, base)
	case KindPercentage:
		return clamp(base.Mul(value).Div(hundred), base)
	default:
		return zero
	}
}

// selectTier returns the last tier, by ascending Min, whose Min does not
// exceed base.
func selectTier(tiers []Tier, base decimal.Decimal) (Tier, bool) {
	sorted := make([]Tier, len(tiers))
	copy(sorted, tiers)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Min.LessThan(sorted[j].Min)
	})

	var (
		selected Tier
		found    bool
	)
	for _, t := range sorted {
		if t.Min.GreaterThan(base) {
			break
		}
		selected, found = t, true
	}
	return selected, found
}

// applyBuyXGetY discounts the cheapest "get" units first. Buy and get lines
// are taken from the whole cart regardless of the coupon's scope.
func applyBuyXGetY(rule BuyXGetYRule, items []LineItem) (decimal.Decimal, []string) {
	if rule.BuyQuantity <= 0 || rule.GetQuantity <= 0 {
		return zero, nil
	}

	buyIDs := newIDSet(rule.BuyProductIDs)
	getIDs := newIDSet(rule.GetProductIDs)

	buyQty := 0
	var getLines []LineItem
	for _, item := range items {
		if item.Quantity <= 0 {
			continue
		}
		if buyIDs.has(item.ProductID) {
			buyQty += item.Quantity
		}
		if getIDs.has(item.ProductID) {
			getLines = append(getLines, item)
		}
	}

	units := (buyQty / rule.BuyQuantity) * rule.GetQuantity
	if units == 0 || len(getLines) == 0 {
		return zero, nil
	}

	sort.SliceStable(getLines, func(i, j int) bool {
		return getLines[i].UnitPrice.LessThan(getLines[j].UnitPrice)
	})

	pct := clamp(rule.GetDiscountPercentage, hundred)
	total := zero
	var ids []string
	for _, line := range getLines {
		if units == 0 {
			break
		}
		n := min(units, line.Quantity)
		units -= n
		total = total.Add(line.UnitPrice.Mul(pct).Div(hundred).Mul(decimalInt(n)))
		ids = append(ids, line.Key())
	}

	if !total.IsPositive() {
		return zero, nil
	}
	return total, ids
}

func affected(amount decimal.Decimal, items []LineItem) []string {
	if !amount.IsPositive() {
		return nil
	}
	ids := make([]string, len(items))
	for i, item := range items {
		ids[i] = item.Key()
	}
	return ids
}
