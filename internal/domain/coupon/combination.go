package coupon

import (
	"sort"

	"github.com/shopspring/decimal"
)

// Candidate is a coupon or automatic discount that passed CheckEligibility
// for the cart being combined.
type Candidate struct {
	Coupon   *Coupon
	Discount Discount
}

// Applied is a candidate included by Combine, with its discount recomputed
// against the subtotal left by the candidates before it.
type Applied struct {
	Coupon   *Coupon
	Discount Discount
}

// RejectReason explains why Combine left a candidate out.
type RejectReason string

const (
	RejectNotCombinable RejectReason = "not_combinable"
	RejectNoDiscount    RejectReason = "no_discount"
)

// Rejected is a candidate left out by Combine.
type Rejected struct {
	Coupon *Coupon
	Reason RejectReason
}

// Combination is the result of stacking candidates on one cart.
type Combination struct {
	Subtotal     decimal.Decimal
	Total        decimal.Decimal
	FreeShipping bool
	Applied      []Applied
	Rejected     []Rejected
}

// Payable returns the subtotal minus the combined discount.
func (c Combination) Payable() decimal.Decimal {
	return c.Subtotal.Sub(c.Total)
}

// Combine decides which candidates apply to cart and in what order.
// Candidates are walked by descending priority (earliest created first on
// ties). A candidate joins only if it and every already included candidate
// allow combining with each other's class. Each joining candidate is
// recomputed against the running discounted subtotal, so stacked percentages
// compound rather than add.
func Combine(cart Cart, candidates []Candidate) Combination {
	original := cart.Total()
	res := Combination{Subtotal: original, Total: zero}

	sorted := make([]Candidate, len(candidates))
	copy(sorted, candidates)
	sort.SliceStable(sorted, func(i, j int) bool {
		a, b := sorted[i].Coupon, sorted[j].Coupon
		if a.Priority != b.Priority {
			return a.Priority > b.Priority
		}
		if !a.CreatedAt.Equal(b.CreatedAt) {
			return a.CreatedAt.Before(b.CreatedAt)
		}
		return a.ID < b.ID
	})

	running := original
	for _, cand := range sorted {
		if cand.Discount.Amount.IsZero() && !cand.Discount.FreeShipping {
			res.Rejected = append(res.Rejected, Rejected{Coupon: cand.Coupon, Reason: RejectNoDiscount})
			continue
		}
		if !combinable(cand.Coupon, res.Applied) {
			res.Rejected = append(res.Rejected, Rejected{Coupon: cand.Coupon, Reason: RejectNotCombinable})
			continue
		}

		d := cand.Discount
		if len(res.Applied) > 0 {
			d = Calculate(cand.Coupon, scaleCart(cart, original, running))
		}
		d.Amount = clamp(d.Amount, running)

		running = running.Sub(d.Amount)
		res.Total = res.Total.Add(d.Amount)
		res.FreeShipping = res.FreeShipping || d.FreeShipping
		res.Applied = append(res.Applied, Applied{Coupon: cand.Coupon, Discount: d})
	}

	res.Total = clamp(res.Total, original)
	return res
}

// combinable reports whether c may join the already applied discounts. Each
// side must accept the other's class: automatic discounts are governed by
// CanCombineWithAutoDiscounts, code coupons by CanCombineWithOtherCoupons.
func combinable(c *Coupon, applied []Applied) bool {
	for _, a := range applied {
		if !accepts(a.Coupon, c) || !accepts(c, a.Coupon) {
			return false
		}
	}
	return true
}

func accepts(holder, other *Coupon) bool {
	if other.IsAutomatic {
		return holder.CanCombineWithAutoDiscounts
	}
	return holder.CanCombineWithOtherCoupons
}

// scaleCart returns a copy of cart whose prices are reduced proportionally
// so that its total equals running.
func scaleCart(cart Cart, original, running decimal.Decimal) Cart {
	if !original.IsPositive() {
		return Cart{Subtotal: zero, Items: cart.Items}
	}
	ratio := running.Div(original)
	items := make([]LineItem, len(cart.Items))
	for i, item := range cart.Items {
		item.UnitPrice = item.UnitPrice.Mul(ratio)
		items[i] = item
	}
	return Cart{Subtotal: running, Items: items}
}
