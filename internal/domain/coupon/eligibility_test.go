package coupon

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func intPtr(v int) *int { return &v }

func TestCheckEligibility(t *testing.T) {
	now := time.Date(2025, 6, 15, 12, 0, 0, 0, time.UTC)
	past := now.Add(-24 * time.Hour)
	future := now.Add(24 * time.Hour)

	base := func() *Coupon {
		return &Coupon{
			ID:                  1,
			Code:                "SAVE10",
			IsActive:            true,
			Kind:                KindPercentage,
			Rule:                SimpleRule{Value: d("10")},
			AppliesTo:           ScopeAll,
			MinRequirement:      MinNone,
			CustomerEligibility: CustomersAll,
		}
	}
	cart := NewCart([]LineItem{
		line("l1", "p1", "100", 2, "shoes"),
		line("l2", "p2", "50", 1, "hats"),
	})
	member := Customer{ID: "c1", GroupIDs: []string{"vip"}}

	tests := []struct {
		name     string
		mutate   func(c *Coupon)
		customer Customer
		usage    UsageCounts
		want     Reason
	}{
		{
			name:     "eligible",
			customer: member,
		},
		{
			name:   "inactive",
			mutate: func(c *Coupon) { c.IsActive = false },
			want:   ReasonInactive,
		},
		{
			name: "inactive wins over expired",
			mutate: func(c *Coupon) {
				c.IsActive = false
				c.EndsAt = &past
			},
			want: ReasonInactive,
		},
		{
			name:   "ended",
			mutate: func(c *Coupon) { c.EndsAt = &past },
			want:   ReasonExpired,
		},
		{
			name:   "not started",
			mutate: func(c *Coupon) { c.StartsAt = &future },
			want:   ReasonExpired,
		},
		{
			name: "inside window",
			mutate: func(c *Coupon) {
				c.StartsAt = &past
				c.EndsAt = &future
			},
		},
		{
			name: "window bounds are inclusive",
			mutate: func(c *Coupon) {
				c.StartsAt = &now
				c.EndsAt = &now
			},
		},
		{
			name:   "global limit reached",
			mutate: func(c *Coupon) { c.UsageLimit = intPtr(5) },
			usage:  UsageCounts{Total: 5},
			want:   ReasonUsageLimitReached,
		},
		{
			name:   "global limit has room",
			mutate: func(c *Coupon) { c.UsageLimit = intPtr(5) },
			usage:  UsageCounts{Total: 4},
		},
		{
			name:     "customer limit reached",
			mutate:   func(c *Coupon) { c.UsageLimitPerCustomer = intPtr(1) },
			customer: member,
			usage:    UsageCounts{Customer: 1},
			want:     ReasonCustomerUsageLimitReached,
		},
		{
			name:   "customer limit ignored for guests",
			mutate: func(c *Coupon) { c.UsageLimitPerCustomer = intPtr(1) },
			usage:  UsageCounts{Customer: 1},
		},
		{
			name: "global limit checked before customer limit",
			mutate: func(c *Coupon) {
				c.UsageLimit = intPtr(1)
				c.UsageLimitPerCustomer = intPtr(1)
			},
			customer: member,
			usage:    UsageCounts{Total: 1, Customer: 1},
			want:     ReasonUsageLimitReached,
		},
		{
			name: "group restricted requires customer",
			mutate: func(c *Coupon) {
				c.CustomerEligibility = CustomersGroups
				c.CustomerGroupIDs = []string{"vip"}
			},
			want: ReasonCustomerRequired,
		},
		{
			name: "group restricted member",
			mutate: func(c *Coupon) {
				c.CustomerEligibility = CustomersGroups
				c.CustomerGroupIDs = []string{"staff", "vip"}
			},
			customer: member,
		},
		{
			name: "group restricted non member",
			mutate: func(c *Coupon) {
				c.CustomerEligibility = CustomersGroups
				c.CustomerGroupIDs = []string{"staff"}
			},
			customer: member,
			want:     ReasonNotEligibleCustomer,
		},
		{
			name: "specific customers requires customer",
			mutate: func(c *Coupon) {
				c.CustomerEligibility = CustomersSpecific
				c.CustomerIDs = []string{"c1"}
			},
			want: ReasonCustomerRequired,
		},
		{
			name: "specific customers listed",
			mutate: func(c *Coupon) {
				c.CustomerEligibility = CustomersSpecific
				c.CustomerIDs = []string{"c1"}
			},
			customer: member,
		},
		{
			name: "specific customers not listed",
			mutate: func(c *Coupon) {
				c.CustomerEligibility = CustomersSpecific
				c.CustomerIDs = []string{"c2"}
			},
			customer: member,
			want:     ReasonNotEligibleCustomer,
		},
		{
			name: "minimum amount met",
			mutate: func(c *Coupon) {
				c.MinRequirement = MinAmount
				c.MinRequirementValue = d("250")
			},
		},
		{
			name: "minimum amount uses eligible lines only",
			mutate: func(c *Coupon) {
				c.MinRequirement = MinAmount
				c.MinRequirementValue = d("250")
				c.ExcludeCategoryIDs = []string{"hats"}
			},
			want: ReasonBelowMinimum,
		},
		{
			name: "minimum quantity met",
			mutate: func(c *Coupon) {
				c.MinRequirement = MinQuantity
				c.MinRequirementValue = d("3")
			},
		},
		{
			name: "minimum quantity on scoped lines",
			mutate: func(c *Coupon) {
				c.MinRequirement = MinQuantity
				c.MinRequirementValue = d("2")
				c.AppliesTo = ScopeSpecificCategories
				c.CategoryIDs = []string{"hats"}
			},
			want: ReasonBelowMinimum,
		},
		{
			name: "customer check precedes minimum",
			mutate: func(c *Coupon) {
				c.CustomerEligibility = CustomersSpecific
				c.MinRequirement = MinAmount
				c.MinRequirementValue = d("100000")
			},
			want: ReasonCustomerRequired,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := base()
			if tt.mutate != nil {
				tt.mutate(c)
			}

			got := CheckEligibility(c, cart, tt.customer, tt.usage, now)

			if tt.want == "" {
				assert.True(t, got.Eligible, "unexpected reason %q", got.Reason)
				assert.NoError(t, got.Err(c.Code))
				return
			}
			assert.False(t, got.Eligible)
			assert.Equal(t, tt.want, got.Reason)

			var ie *IneligibleError
			require.ErrorAs(t, got.Err(c.Code), &ie)
			assert.Equal(t, tt.want, ie.Reason)
		})
	}
}
