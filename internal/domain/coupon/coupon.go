package coupon

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

// Kind is the monetary shape of a coupon's benefit.
type Kind string

const (
	// KindFixed subtracts a fixed amount, capped at the eligible subtotal.
	KindFixed Kind = "fixed"
	// KindPercentage subtracts a percentage of the eligible subtotal.
	KindPercentage Kind = "percentage"
	// KindFreeShipping waives shipping; no monetary amount is computed here.
	KindFreeShipping Kind = "free_shipping"
)

// RuleType names the variant carried in Coupon.Rule.
type RuleType string

const (
	RuleSimple   RuleType = "simple"
	RuleBuyXGetY RuleType = "bxgy"
	RuleTiered   RuleType = "tiered"
)

// Scope selects which cart lines a coupon discounts.
type Scope string

const (
	ScopeAll                Scope = "all"
	ScopeSpecificProducts   Scope = "specific_products"
	ScopeSpecificCategories Scope = "specific_categories"
)

// MinRequirement selects how the minimum purchase threshold is measured.
type MinRequirement string

const (
	MinNone     MinRequirement = "none"
	MinAmount   MinRequirement = "amount"
	MinQuantity MinRequirement = "quantity"
)

// CustomerEligibility restricts who may redeem a coupon.
type CustomerEligibility string

const (
	CustomersAll      CustomerEligibility = "all"
	CustomersGroups   CustomerEligibility = "specific_groups"
	CustomersSpecific CustomerEligibility = "specific_customers"
)

// Rule is the discount-type variant of a coupon: one of SimpleRule,
// BuyXGetYRule or TieredRule.
type Rule interface {
	Type() RuleType
}

// SimpleRule applies Value according to the coupon Kind.
type SimpleRule struct {
	Value decimal.Decimal
}

// Type implements Rule.
func (SimpleRule) Type() RuleType { return RuleSimple }

// BuyXGetYRule discounts "get" items once enough "buy" items are in the cart.
// Buy and get product sets override the coupon's AppliesTo scope.
type BuyXGetYRule struct {
	BuyQuantity           int
	GetQuantity           int
	GetDiscountPercentage decimal.Decimal
	BuyProductIDs         []string
	GetProductIDs         []string
}

// Type implements Rule.
func (BuyXGetYRule) Type() RuleType { return RuleBuyXGetY }

// TieredRule selects the highest bracket whose Min does not exceed the
// eligible subtotal.
type TieredRule struct {
	Tiers []Tier
}

// Type implements Rule.
func (TieredRule) Type() RuleType { return RuleTiered }

// Tier is a single threshold bracket. Kind must be fixed or percentage.
type Tier struct {
	Min   decimal.Decimal
	Value decimal.Decimal
	Kind  Kind
}

// Coupon is an immutable promotional rule definition. Automatic discounts
// share the type and carry an empty Code.
type Coupon struct {
	ID          int64
	Code        string
	Description string
	IsAutomatic bool
	IsActive    bool

	Kind Kind
	Rule Rule

	AppliesTo          Scope
	ProductIDs         []string
	CategoryIDs        []string
	ExcludeProductIDs  []string
	ExcludeCategoryIDs []string

	MinRequirement      MinRequirement
	MinRequirementValue decimal.Decimal

	CustomerEligibility CustomerEligibility
	CustomerGroupIDs    []string
	CustomerIDs         []string

	StartsAt *time.Time
	EndsAt   *time.Time

	CanCombineWithOtherCoupons  bool
	CanCombineWithAutoDiscounts bool
	Priority                    int

	// UsageLimit and UsageLimitPerCustomer are unlimited when nil.
	UsageLimit            *int
	UsageLimitPerCustomer *int

	CreatedAt time.Time
}

// RuleType returns the coupon's variant, defaulting to simple.
func (c *Coupon) RuleType() RuleType {
	if c.Rule == nil {
		return RuleSimple
	}
	return c.Rule.Type()
}

// Customer identifies the shopper an evaluation is performed for. An empty ID
// denotes a guest.
type Customer struct {
	ID       string
	GroupIDs []string
}

// IsGuest reports whether no customer is signed in.
func (c Customer) IsGuest() bool { return c.ID == "" }

// UsageCounts holds the usage already recorded for a coupon.
type UsageCounts struct {
	Total    int
	Customer int
}

// Repository provides coupon lookups and usage counters. Implementations
// return ErrNotFound when no coupon matches.
type Repository interface {
	FindByCode(ctx context.Context, code string) (*Coupon, error)
	FindByID(ctx context.Context, id int64) (*Coupon, error)
	ListAutomatic(ctx context.Context) ([]Coupon, error)
	CountUsage(ctx context.Context, couponID int64) (int, error)
	CountUsageByCustomer(ctx context.Context, couponID int64, customerID string) (int, error)
}

// CustomerDirectory resolves group memberships for a customer.
type CustomerDirectory interface {
	GroupsOf(ctx context.Context, customerID string) ([]string, error)
}
