package coupon

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func d(v string) decimal.Decimal {
	return decimal.RequireFromString(v)
}

func line(id, productID, price string, qty int, categories ...string) LineItem {
	return LineItem{
		ID:          id,
		ProductID:   productID,
		CategoryIDs: categories,
		Quantity:    qty,
		UnitPrice:   d(price),
	}
}

func TestCalculate(t *testing.T) {
	tests := []struct {
		name         string
		coupon       *Coupon
		cart         Cart
		wantAmount   decimal.Decimal
		wantAffected []string
		wantShipping bool
	}{
		{
			name: "fixed 50 off 200",
			coupon: &Coupon{
				Kind:      KindFixed,
				Rule:      SimpleRule{Value: d("50")},
				AppliesTo: ScopeAll,
			},
			cart:         NewCart([]LineItem{line("l1", "p1", "100", 2)}),
			wantAmount:   d("50"),
			wantAffected: []string{"l1"},
		},
		{
			name: "fixed 300 clamps to 200 subtotal",
			coupon: &Coupon{
				Kind:      KindFixed,
				Rule:      SimpleRule{Value: d("300")},
				AppliesTo: ScopeAll,
			},
			cart:         NewCart([]LineItem{line("l1", "p1", "100", 2)}),
			wantAmount:   d("200"),
			wantAffected: []string{"l1"},
		},
		{
			name: "percentage 10 of 750",
			coupon: &Coupon{
				Kind:      KindPercentage,
				Rule:      SimpleRule{Value: d("10")},
				AppliesTo: ScopeAll,
			},
			cart:         NewCart([]LineItem{line("l1", "p1", "250", 3)}),
			wantAmount:   d("75"),
			wantAffected: []string{"l1"},
		},
		{
			name: "percentage above 100 clamps to eligible subtotal",
			coupon: &Coupon{
				Kind:      KindPercentage,
				Rule:      SimpleRule{Value: d("150")},
				AppliesTo: ScopeAll,
			},
			cart:         NewCart([]LineItem{line("l1", "p1", "40", 1)}),
			wantAmount:   d("40"),
			wantAffected: []string{"l1"},
		},
		{
			name: "percentage rounds to cents",
			coupon: &Coupon{
				Kind:      KindPercentage,
				Rule:      SimpleRule{Value: d("15")},
				AppliesTo: ScopeAll,
			},
			// 29.97 * 15% = 4.4955
			cart:         NewCart([]LineItem{line("l1", "p1", "9.99", 3)}),
			wantAmount:   d("4.50"),
			wantAffected: []string{"l1"},
		},
		{
			name: "negative fixed value floors at zero",
			coupon: &Coupon{
				Kind:      KindFixed,
				Rule:      SimpleRule{Value: d("-5")},
				AppliesTo: ScopeAll,
			},
			cart:       NewCart([]LineItem{line("l1", "p1", "10", 1)}),
			wantAmount: d("0"),
		},
		{
			name: "specific products only discounts matching lines",
			coupon: &Coupon{
				Kind:       KindPercentage,
				Rule:       SimpleRule{Value: d("50")},
				AppliesTo:  ScopeSpecificProducts,
				ProductIDs: []string{"p2"},
			},
			cart: NewCart([]LineItem{
				line("l1", "p1", "100", 1),
				line("l2", "p2", "40", 1),
			}),
			wantAmount:   d("20"),
			wantAffected: []string{"l2"},
		},
		{
			name: "specific categories minus excluded product",
			coupon: &Coupon{
				Kind:              KindFixed,
				Rule:              SimpleRule{Value: d("1000")},
				AppliesTo:         ScopeSpecificCategories,
				CategoryIDs:       []string{"shoes"},
				ExcludeProductIDs: []string{"p3"},
			},
			cart: NewCart([]LineItem{
				line("l1", "p1", "100", 1, "shoes"),
				line("l2", "p2", "40", 1, "hats"),
				line("l3", "p3", "60", 1, "shoes"),
			}),
			wantAmount:   d("100"),
			wantAffected: []string{"l1"},
		},
		{
			name: "all scope with excluded category",
			coupon: &Coupon{
				Kind:               KindPercentage,
				Rule:               SimpleRule{Value: d("10")},
				AppliesTo:          ScopeAll,
				ExcludeCategoryIDs: []string{"sale"},
			},
			cart: NewCart([]LineItem{
				line("l1", "p1", "100", 1, "sale", "shoes"),
				line("l2", "p2", "50", 2, "shoes"),
			}),
			wantAmount:   d("10"),
			wantAffected: []string{"l2"},
		},
		{
			name: "category match is direct only",
			coupon: &Coupon{
				Kind:        KindFixed,
				Rule:        SimpleRule{Value: d("10")},
				AppliesTo:   ScopeSpecificCategories,
				CategoryIDs: []string{"apparel"},
			},
			cart:       NewCart([]LineItem{line("l1", "p1", "100", 1, "apparel-shoes")}),
			wantAmount: d("0"),
		},
		{
			name: "free shipping sets flag without amount",
			coupon: &Coupon{
				Kind:      KindFreeShipping,
				Rule:      SimpleRule{},
				AppliesTo: ScopeAll,
			},
			cart:         NewCart([]LineItem{line("l1", "p1", "100", 1)}),
			wantAmount:   d("0"),
			wantShipping: true,
		},
		{
			name: "missing rule defaults to simple",
			coupon: &Coupon{
				Kind:      KindFreeShipping,
				AppliesTo: ScopeAll,
			},
			cart:         NewCart([]LineItem{line("l1", "p1", "100", 1)}),
			wantAmount:   d("0"),
			wantShipping: true,
		},
		{
			name: "bxgy buy 2 A get 1 B at 50%",
			coupon: &Coupon{
				Kind: KindPercentage,
				Rule: BuyXGetYRule{
					BuyQuantity:           2,
					GetQuantity:           1,
					GetDiscountPercentage: d("50"),
					BuyProductIDs:         []string{"A"},
					GetProductIDs:         []string{"B"},
				},
				AppliesTo: ScopeAll,
			},
			cart: NewCart([]LineItem{
				line("l1", "A", "100", 4),
				line("l2", "B", "100", 2),
			}),
			wantAmount:   d("100"),
			wantAffected: []string{"l2"},
		},
		{
			name: "bxgy caps at available get quantity",
			coupon: &Coupon{
				Kind: KindPercentage,
				Rule: BuyXGetYRule{
					BuyQuantity:           1,
					GetQuantity:           1,
					GetDiscountPercentage: d("100"),
					BuyProductIDs:         []string{"A"},
					GetProductIDs:         []string{"B"},
				},
				AppliesTo: ScopeAll,
			},
			cart: NewCart([]LineItem{
				line("l1", "A", "10", 5),
				line("l2", "B", "30", 1),
			}),
			wantAmount:   d("30"),
			wantAffected: []string{"l2"},
		},
		{
			name: "bxgy discounts cheapest get units first",
			coupon: &Coupon{
				Kind: KindPercentage,
				Rule: BuyXGetYRule{
					BuyQuantity:           2,
					GetQuantity:           1,
					GetDiscountPercentage: d("100"),
					BuyProductIDs:         []string{"A"},
					GetProductIDs:         []string{"B", "C"},
				},
				AppliesTo: ScopeAll,
			},
			cart: NewCart([]LineItem{
				line("l1", "A", "10", 4),
				line("l2", "B", "80", 1),
				line("l3", "C", "20", 1),
			}),
			wantAmount:   d("100"),
			wantAffected: []string{"l3", "l2"},
		},
		{
			name: "bxgy ignores applies_to scope",
			coupon: &Coupon{
				Kind: KindPercentage,
				Rule: BuyXGetYRule{
					BuyQuantity:           1,
					GetQuantity:           1,
					GetDiscountPercentage: d("50"),
					BuyProductIDs:         []string{"A"},
					GetProductIDs:         []string{"B"},
				},
				AppliesTo:  ScopeSpecificProducts,
				ProductIDs: []string{"Z"},
			},
			cart: NewCart([]LineItem{
				line("l1", "A", "10", 1),
				line("l2", "B", "10", 1),
			}),
			wantAmount:   d("5"),
			wantAffected: []string{"l2"},
		},
		{
			name: "bxgy not enough buy items",
			coupon: &Coupon{
				Kind: KindPercentage,
				Rule: BuyXGetYRule{
					BuyQuantity:           3,
					GetQuantity:           1,
					GetDiscountPercentage: d("50"),
					BuyProductIDs:         []string{"A"},
					GetProductIDs:         []string{"B"},
				},
				AppliesTo: ScopeAll,
			},
			cart: NewCart([]LineItem{
				line("l1", "A", "10", 2),
				line("l2", "B", "10", 1),
			}),
			wantAmount: d("0"),
		},
		{
			name: "bxgy zero buy quantity never matches",
			coupon: &Coupon{
				Kind: KindPercentage,
				Rule: BuyXGetYRule{
					GetQuantity:           1,
					GetDiscountPercentage: d("50"),
					BuyProductIDs:         []string{"A"},
					GetProductIDs:         []string{"B"},
				},
			},
			cart: NewCart([]LineItem{
				line("l1", "A", "10", 2),
				line("l2", "B", "10", 1),
			}),
			wantAmount: d("0"),
		},
		{
			name: "tiered selects 500 bracket for 750",
			coupon: &Coupon{
				Kind:      KindPercentage,
				Rule:      tieredRule(),
				AppliesTo: ScopeAll,
			},
			cart:         NewCart([]LineItem{line("l1", "p1", "750", 1)}),
			wantAmount:   d("75"),
			wantAffected: []string{"l1"},
		},
		{
			name: "tiered only zero bracket for 400",
			coupon: &Coupon{
				Kind:      KindPercentage,
				Rule:      tieredRule(),
				AppliesTo: ScopeAll,
			},
			cart:       NewCart([]LineItem{line("l1", "p1", "400", 1)}),
			wantAmount: d("0"),
		},
		{
			name: "tiered highest bracket at exact threshold",
			coupon: &Coupon{
				Kind:      KindPercentage,
				Rule:      tieredRule(),
				AppliesTo: ScopeAll,
			},
			cart:         NewCart([]LineItem{line("l1", "p1", "500", 2)}),
			wantAmount:   d("200"),
			wantAffected: []string{"l1"},
		},
		{
			name: "tiered no bracket qualifies",
			coupon: &Coupon{
				Kind: KindFixed,
				Rule: TieredRule{Tiers: []Tier{
					{Min: d("100"), Value: d("10"), Kind: KindFixed},
				}},
				AppliesTo: ScopeAll,
			},
			cart:       NewCart([]LineItem{line("l1", "p1", "99.99", 1)}),
			wantAmount: d("0"),
		},
		{
			name: "tiered fixed bracket on eligible subtotal",
			coupon: &Coupon{
				Kind: KindFixed,
				Rule: TieredRule{Tiers: []Tier{
					{Min: d("100"), Value: d("25"), Kind: KindFixed},
					{Min: d("50"), Value: d("10"), Kind: KindFixed},
				}},
				AppliesTo:  ScopeSpecificProducts,
				ProductIDs: []string{"p1"},
			},
			cart: NewCart([]LineItem{
				line("l1", "p1", "60", 1),
				line("l2", "p2", "500", 1),
			}),
			wantAmount:   d("10"),
			wantAffected: []string{"l1"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Calculate(tt.coupon, tt.cart)

			assert.True(t, tt.wantAmount.Equal(got.Amount),
				"expected amount %s, got %s", tt.wantAmount, got.Amount)
			assert.Equal(t, tt.wantAffected, got.AffectedLineItemIDs)
			assert.Equal(t, tt.wantShipping, got.FreeShipping)
		})
	}
}

// tieredRule returns brackets deliberately out of order.
func tieredRule() TieredRule {
	return TieredRule{Tiers: []Tier{
		{Min: d("1000"), Value: d("20"), Kind: KindPercentage},
		{Min: d("0"), Value: d("0"), Kind: KindPercentage},
		{Min: d("500"), Value: d("10"), Kind: KindPercentage},
	}}
}

func TestCalculate_NeverExceedsSubtotal(t *testing.T) {
	coupons := []*Coupon{
		{Kind: KindFixed, Rule: SimpleRule{Value: d("1000000")}},
		{Kind: KindPercentage, Rule: SimpleRule{Value: d("250")}},
		{Kind: KindPercentage, Rule: tieredRule()},
		{Kind: KindPercentage, Rule: BuyXGetYRule{
			BuyQuantity:           1,
			GetQuantity:           10,
			GetDiscountPercentage: d("500"),
			BuyProductIDs:         []string{"p1"},
			GetProductIDs:         []string{"p1", "p2"},
		}},
	}
	carts := []Cart{
		NewCart(nil),
		NewCart([]LineItem{line("l1", "p1", "0.01", 1)}),
		NewCart([]LineItem{line("l1", "p1", "19.99", 3), line("l2", "p2", "5.55", 7)}),
		// Declared subtotal below the line sum.
		{Subtotal: d("10"), Items: []LineItem{line("l1", "p1", "100", 2), line("l2", "p2", "100", 2)}},
	}

	for _, c := range coupons {
		for _, cart := range carts {
			got := Calculate(c, cart)
			require.False(t, got.Amount.IsNegative(), "negative discount %s", got.Amount)
			require.False(t, got.Amount.GreaterThan(cart.Total()),
				"discount %s exceeds subtotal %s", got.Amount, cart.Total())
		}
	}
}

func TestEligibleItems_SkipsNonPositiveQuantity(t *testing.T) {
	c := &Coupon{AppliesTo: ScopeAll}
	items := EligibleItems(c, []LineItem{
		line("l1", "p1", "10", 0),
		line("l2", "p2", "10", -1),
		line("l3", "p3", "10", 1),
	})

	require.Len(t, items, 1)
	assert.Equal(t, "l3", items[0].ID)
}

func TestLineItemKey(t *testing.T) {
	assert.Equal(t, "l1", LineItem{ID: "l1", ProductID: "p1"}.Key())
	assert.Equal(t, "p1:v2", LineItem{ProductID: "p1", VariantID: "v2"}.Key())
	assert.Equal(t, "p1", LineItem{ProductID: "p1"}.Key())
}
