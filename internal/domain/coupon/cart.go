package coupon

import (
	"github.com/shopspring/decimal"
)

var (
	hundred = decimal.NewFromInt(100)
	zero    = decimal.Zero
)

// LineItem is a single cart line as seen by the engine.
type LineItem struct {
	ID          string
	ProductID   string
	VariantID   string
	CategoryIDs []string
	Quantity    int
	UnitPrice   decimal.Decimal
}

// Key identifies the line in Discount.AffectedLineItemIDs. It falls back to
// the product (and variant) when the line has no ID of its own.
func (li LineItem) Key() string {
	if li.ID != "" {
		return li.ID
	}
	if li.VariantID != "" {
		return li.ProductID + ":" + li.VariantID
	}
	return li.ProductID
}

// Total returns unit price times quantity.
func (li LineItem) Total() decimal.Decimal {
	if li.Quantity <= 0 {
		return zero
	}
	return li.UnitPrice.Mul(decimalInt(li.Quantity))
}

// Cart is an ephemeral snapshot of a shopping cart.
type Cart struct {
	Subtotal decimal.Decimal
	Items    []LineItem
}

// NewCart builds a snapshot whose subtotal is the sum of its lines.
func NewCart(items []LineItem) Cart {
	return Cart{Subtotal: sumItems(items), Items: items}
}

// Total returns the declared subtotal, or the sum of lines when none was
// supplied.
func (c Cart) Total() decimal.Decimal {
	if c.Subtotal.IsPositive() {
		return c.Subtotal
	}
	return sumItems(c.Items)
}

// sumItems returns the sum of price * quantity across all items.
func sumItems(items []LineItem) decimal.Decimal {
	sum := zero
	for _, item := range items {
		sum = sum.Add(item.Total())
	}
	return sum
}

// sumQuantity returns the sum of quantities across all items.
func sumQuantity(items []LineItem) int {
	total := 0
	for _, item := range items {
		if item.Quantity > 0 {
			total += item.Quantity
		}
	}
	return total
}

func decimalInt(n int) decimal.Decimal { return decimal.NewFromInt(int64(n)) }

// clamp bounds v to [0, upper] and rounds to cents.
func clamp(v, upper decimal.Decimal) decimal.Decimal {
	if v.IsNegative() {
		return zero
	}
	if upper.IsNegative() {
		upper = zero
	}
	r := decimal.Min(v, upper).Round(2)
	if r.GreaterThan(upper) {
		r = upper.Truncate(2)
	}
	return r
}

type idSet map[string]struct{}

func newIDSet(ids []string) idSet {
	s := make(idSet, len(ids))
	for _, id := range ids {
		s[id] = struct{}{}
	}
	return s
}

func (s idSet) has(id string) bool {
	_, ok := s[id]
	return ok
}

func (s idSet) hasAny(ids []string) bool {
	for _, id := range ids {
		if s.has(id) {
			return true
		}
	}
	return false
}
