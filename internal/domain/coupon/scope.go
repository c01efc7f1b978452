package coupon

import "github.com/shopspring/decimal"

// EligibleItems returns the cart lines selected by the coupon's AppliesTo
// scope minus its product and category exclusions. Category matching uses the
// categories assigned directly to the line; ancestors are not consulted.
func EligibleItems(c *Coupon, items []LineItem) []LineItem {
	var (
		products     = newIDSet(c.ProductIDs)
		categories   = newIDSet(c.CategoryIDs)
		exProducts   = newIDSet(c.ExcludeProductIDs)
		exCategories = newIDSet(c.ExcludeCategoryIDs)
	)

	out := make([]LineItem, 0, len(items))
	for _, item := range items {
		if item.Quantity <= 0 {
			continue
		}
		switch c.AppliesTo {
		case ScopeSpecificProducts:
			if !products.has(item.ProductID) {
				continue
			}
		case ScopeSpecificCategories:
			if !categories.hasAny(item.CategoryIDs) {
				continue
			}
		}
		if exProducts.has(item.ProductID) || exCategories.hasAny(item.CategoryIDs) {
			continue
		}
		out = append(out, item)
	}
	return out
}

// EligibleSubtotal returns the line total and quantity of the coupon's
// eligible items.
func EligibleSubtotal(c *Coupon, cart Cart) (decimal.Decimal, int) {
	items := EligibleItems(c, cart.Items)
	return sumItems(items), sumQuantity(items)
}
