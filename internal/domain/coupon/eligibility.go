package coupon

import "time"

// Eligibility is the outcome of CheckEligibility. Reason is empty when the
// coupon is eligible.
type Eligibility struct {
	Eligible bool
	Reason   Reason
}

// Err returns an *IneligibleError for an ineligible result and nil otherwise.
func (e Eligibility) Err(code string) error {
	if e.Eligible {
		return nil
	}
	return &IneligibleError{Code: code, Reason: e.Reason}
}

func ineligible(r Reason) Eligibility { return Eligibility{Reason: r} }

// CheckEligibility decides whether c may be applied to cart for customer at
// now, given the usage already recorded. Checks run in a fixed order and the
// first failure wins.
func CheckEligibility(c *Coupon, cart Cart, customer Customer, usage UsageCounts, now time.Time) Eligibility {
	if !c.IsActive {
		return ineligible(ReasonInactive)
	}

	if c.StartsAt != nil && now.Before(*c.StartsAt) {
		return ineligible(ReasonExpired)
	}
	if c.EndsAt != nil && now.After(*c.EndsAt) {
		return ineligible(ReasonExpired)
	}

	if c.UsageLimit != nil && usage.Total >= *c.UsageLimit {
		return ineligible(ReasonUsageLimitReached)
	}
	if !customer.IsGuest() && c.UsageLimitPerCustomer != nil && usage.Customer >= *c.UsageLimitPerCustomer {
		return ineligible(ReasonCustomerUsageLimitReached)
	}

	if r, ok := checkCustomer(c, customer); !ok {
		return ineligible(r)
	}

	if !meetsMinimum(c, cart) {
		return ineligible(ReasonBelowMinimum)
	}

	return Eligibility{Eligible: true}
}

func checkCustomer(c *Coupon, customer Customer) (Reason, bool) {
	switch c.CustomerEligibility {
	case CustomersGroups:
		if customer.IsGuest() {
			return ReasonCustomerRequired, false
		}
		if !newIDSet(c.CustomerGroupIDs).hasAny(customer.GroupIDs) {
			return ReasonNotEligibleCustomer, false
		}
	case CustomersSpecific:
		if customer.IsGuest() {
			return ReasonCustomerRequired, false
		}
		if !newIDSet(c.CustomerIDs).has(customer.ID) {
			return ReasonNotEligibleCustomer, false
		}
	}
	return "", true
}

func meetsMinimum(c *Coupon, cart Cart) bool {
	switch c.MinRequirement {
	case MinAmount:
		subtotal, _ := EligibleSubtotal(c, cart)
		return subtotal.GreaterThanOrEqual(c.MinRequirementValue)
	case MinQuantity:
		_, qty := EligibleSubtotal(c, cart)
		return !c.MinRequirementValue.GreaterThan(decimalInt(qty))
	default:
		return true
	}
}
