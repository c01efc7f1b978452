package coupon

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func candidate(c *Coupon, cart Cart) Candidate {
	return Candidate{Coupon: c, Discount: Calculate(c, cart)}
}

func appliedIDs(res Combination) []int64 {
	ids := make([]int64, len(res.Applied))
	for i, a := range res.Applied {
		ids[i] = a.Coupon.ID
	}
	return ids
}

func TestCombine_ExclusiveKeepsHighestPriority(t *testing.T) {
	cart := NewCart([]LineItem{line("l1", "p1", "200", 1)})
	low := &Coupon{ID: 1, Code: "LOW", Kind: KindFixed, Rule: SimpleRule{Value: d("50")}, Priority: 1}
	high := &Coupon{ID: 2, Code: "HIGH", Kind: KindPercentage, Rule: SimpleRule{Value: d("10")}, Priority: 5}

	res := Combine(cart, []Candidate{candidate(low, cart), candidate(high, cart)})

	assert.Equal(t, []int64{2}, appliedIDs(res))
	assert.True(t, d("20").Equal(res.Total), "got %s", res.Total)
	require.Len(t, res.Rejected, 1)
	assert.Equal(t, int64(1), res.Rejected[0].Coupon.ID)
	assert.Equal(t, RejectNotCombinable, res.Rejected[0].Reason)
	assert.True(t, d("180").Equal(res.Payable()))
}

func TestCombine_StacksSequentially(t *testing.T) {
	cart := NewCart([]LineItem{line("l1", "p1", "100", 1)})
	first := &Coupon{
		ID: 1, Kind: KindPercentage, Rule: SimpleRule{Value: d("10")}, Priority: 2,
		CanCombineWithOtherCoupons: true,
	}
	second := &Coupon{
		ID: 2, Kind: KindPercentage, Rule: SimpleRule{Value: d("10")}, Priority: 1,
		CanCombineWithOtherCoupons: true,
	}

	res := Combine(cart, []Candidate{candidate(second, cart), candidate(first, cart)})

	require.Equal(t, []int64{1, 2}, appliedIDs(res))
	assert.True(t, d("10").Equal(res.Applied[0].Discount.Amount))
	// 10% of the remaining 90.
	assert.True(t, d("9").Equal(res.Applied[1].Discount.Amount))
	assert.True(t, d("19").Equal(res.Total), "got %s", res.Total)
}

func TestCombine_NeverExceedsSubtotal(t *testing.T) {
	cart := NewCart([]LineItem{line("l1", "p1", "100", 1)})
	var candidates []Candidate
	for i := range 5 {
		c := &Coupon{
			ID: int64(i + 1), Kind: KindFixed, Rule: SimpleRule{Value: d("60")},
			CanCombineWithOtherCoupons: true,
		}
		candidates = append(candidates, candidate(c, cart))
	}

	res := Combine(cart, candidates)

	assert.True(t, d("100").Equal(res.Total), "got %s", res.Total)
	assert.True(t, res.Payable().IsZero())
	for _, a := range res.Applied {
		assert.False(t, a.Discount.Amount.IsNegative())
	}
}

func TestCombine_TieBreakEarliestCreated(t *testing.T) {
	cart := NewCart([]LineItem{line("l1", "p1", "100", 1)})
	created := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	older := &Coupon{ID: 9, Kind: KindFixed, Rule: SimpleRule{Value: d("5")}, CreatedAt: created}
	newer := &Coupon{ID: 3, Kind: KindFixed, Rule: SimpleRule{Value: d("7")}, CreatedAt: created.Add(time.Hour)}

	res := Combine(cart, []Candidate{candidate(newer, cart), candidate(older, cart)})

	assert.Equal(t, []int64{9}, appliedIDs(res))
}

func TestCombine_AutomaticDiscountFlags(t *testing.T) {
	cart := NewCart([]LineItem{line("l1", "p1", "100", 1)})

	tests := []struct {
		name   string
		manual *Coupon
		auto   *Coupon
		want   []int64
	}{
		{
			name: "both allow each other",
			manual: &Coupon{
				ID: 1, Code: "M", Kind: KindFixed, Rule: SimpleRule{Value: d("10")}, Priority: 2,
				CanCombineWithAutoDiscounts: true,
			},
			auto: &Coupon{
				ID: 2, IsAutomatic: true, Kind: KindFixed, Rule: SimpleRule{Value: d("5")}, Priority: 1,
				CanCombineWithOtherCoupons: true,
			},
			want: []int64{1, 2},
		},
		{
			name: "manual refuses automatic",
			manual: &Coupon{
				ID: 1, Code: "M", Kind: KindFixed, Rule: SimpleRule{Value: d("10")}, Priority: 2,
				CanCombineWithOtherCoupons: true,
			},
			auto: &Coupon{
				ID: 2, IsAutomatic: true, Kind: KindFixed, Rule: SimpleRule{Value: d("5")}, Priority: 1,
				CanCombineWithOtherCoupons:  true,
				CanCombineWithAutoDiscounts: true,
			},
			want: []int64{1},
		},
		{
			name: "automatic refuses coupons",
			manual: &Coupon{
				ID: 1, Code: "M", Kind: KindFixed, Rule: SimpleRule{Value: d("10")}, Priority: 2,
				CanCombineWithAutoDiscounts: true,
			},
			auto: &Coupon{
				ID: 2, IsAutomatic: true, Kind: KindFixed, Rule: SimpleRule{Value: d("5")}, Priority: 1,
				CanCombineWithAutoDiscounts: true,
			},
			want: []int64{1},
		},
		{
			name: "higher priority automatic goes first",
			manual: &Coupon{
				ID: 1, Code: "M", Kind: KindFixed, Rule: SimpleRule{Value: d("10")}, Priority: 1,
			},
			auto: &Coupon{
				ID: 2, IsAutomatic: true, Kind: KindFixed, Rule: SimpleRule{Value: d("5")}, Priority: 3,
			},
			want: []int64{2},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := Combine(cart, []Candidate{candidate(tt.manual, cart), candidate(tt.auto, cart)})
			assert.Equal(t, tt.want, appliedIDs(res))
		})
	}
}

func TestCombine_SkipsZeroDiscount(t *testing.T) {
	cart := NewCart([]LineItem{line("l1", "p1", "100", 1)})
	empty := &Coupon{ID: 1, Kind: KindPercentage, Rule: tieredRule(), Priority: 10}
	shipping := &Coupon{
		ID: 2, Kind: KindFreeShipping, Rule: SimpleRule{}, Priority: 5,
		CanCombineWithOtherCoupons: true,
	}
	fixed := &Coupon{
		ID: 3, Kind: KindFixed, Rule: SimpleRule{Value: d("15")}, Priority: 1,
		CanCombineWithOtherCoupons: true,
	}

	res := Combine(cart, []Candidate{candidate(empty, cart), candidate(shipping, cart), candidate(fixed, cart)})

	assert.Equal(t, []int64{2, 3}, appliedIDs(res))
	assert.True(t, res.FreeShipping)
	assert.True(t, d("15").Equal(res.Total))
	require.Len(t, res.Rejected, 1)
	assert.Equal(t, RejectNoDiscount, res.Rejected[0].Reason)
}

func TestCombine_Empty(t *testing.T) {
	cart := NewCart([]LineItem{line("l1", "p1", "100", 1)})

	res := Combine(cart, nil)

	assert.Empty(t, res.Applied)
	assert.True(t, res.Total.IsZero())
	assert.True(t, d("100").Equal(res.Payable()))
}
