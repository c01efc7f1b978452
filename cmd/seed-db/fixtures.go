package main

import (
	"io"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"

	"github.com/xenking/coupon-engine/internal/domain/cart"
	"github.com/xenking/coupon-engine/internal/domain/coupon"
	"github.com/xenking/coupon-engine/internal/domain/product"
)

// fixtures is the layout of the seed YAML file.
type fixtures struct {
	Products []productFixture    `yaml:"products"`
	Coupons  []couponFixture     `yaml:"coupons"`
	Groups   map[string][]string `yaml:"customer_groups"`
	Carts    []cartFixture       `yaml:"carts"`
}

type productFixture struct {
	ID         string          `yaml:"id"`
	Name       string          `yaml:"name"`
	Price      decimal.Decimal `yaml:"price"`
	Categories []string        `yaml:"categories"`
}

type tierFixture struct {
	Min   decimal.Decimal `yaml:"min"`
	Value decimal.Decimal `yaml:"value"`
	Kind  string          `yaml:"kind"`
}

type bxgyFixture struct {
	Buy           int             `yaml:"buy"`
	Get           int             `yaml:"get"`
	Percentage    decimal.Decimal `yaml:"percentage"`
	BuyProductIDs []string        `yaml:"buy_product_ids"`
	GetProductIDs []string        `yaml:"get_product_ids"`
}

type couponFixture struct {
	Code        string `yaml:"code"`
	Description string `yaml:"description"`
	Automatic   bool   `yaml:"automatic"`
	Inactive    bool   `yaml:"inactive"`
	Kind        string `yaml:"kind"`

	Value decimal.Decimal `yaml:"value"`
	BXGY  *bxgyFixture    `yaml:"bxgy"`
	Tiers []tierFixture   `yaml:"tiers"`

	AppliesTo          string   `yaml:"applies_to"`
	ProductIDs         []string `yaml:"product_ids"`
	CategoryIDs        []string `yaml:"category_ids"`
	ExcludeProductIDs  []string `yaml:"exclude_product_ids"`
	ExcludeCategoryIDs []string `yaml:"exclude_category_ids"`

	MinRequirement      string          `yaml:"min_requirement"`
	MinRequirementValue decimal.Decimal `yaml:"min_requirement_value"`

	Eligibility      string   `yaml:"eligibility"`
	CustomerGroupIDs []string `yaml:"customer_group_ids"`
	CustomerIDs      []string `yaml:"customer_ids"`

	StartsAt *time.Time `yaml:"starts_at"`
	EndsAt   *time.Time `yaml:"ends_at"`

	CombineWithCoupons bool `yaml:"combine_with_coupons"`
	CombineWithAuto    bool `yaml:"combine_with_auto"`
	Priority           int  `yaml:"priority"`

	UsageLimit            *int `yaml:"usage_limit"`
	UsageLimitPerCustomer *int `yaml:"usage_limit_per_customer"`
}

type cartFixture struct {
	ID         string `yaml:"id"`
	CustomerID string `yaml:"customer_id"`
	Items      []struct {
		ID        string `yaml:"id"`
		ProductID string `yaml:"product_id"`
		VariantID string `yaml:"variant_id"`
		Quantity  int    `yaml:"quantity"`
	} `yaml:"items"`
}

func loadFixtures(r io.Reader) (*fixtures, error) {
	var f fixtures
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&f); err != nil {
		return nil, errors.Wrap(err, "decode fixtures")
	}
	return &f, nil
}

func orDefault[T ~string](v string, def T) T {
	if v == "" {
		return def
	}
	return T(v)
}

func (p productFixture) product() product.Product {
	return product.Product{
		ID:          p.ID,
		Name:        p.Name,
		Price:       p.Price,
		CategoryIDs: p.Categories,
	}
}

func (c couponFixture) coupon() (*coupon.Coupon, error) {
	if c.Code == "" && !c.Automatic {
		return nil, errors.New("manual coupon needs a code")
	}
	out := &coupon.Coupon{
		Code:                        c.Code,
		Description:                 c.Description,
		IsAutomatic:                 c.Automatic,
		IsActive:                    !c.Inactive,
		Kind:                        orDefault(c.Kind, coupon.KindPercentage),
		AppliesTo:                   orDefault(c.AppliesTo, coupon.ScopeAll),
		ProductIDs:                  c.ProductIDs,
		CategoryIDs:                 c.CategoryIDs,
		ExcludeProductIDs:           c.ExcludeProductIDs,
		ExcludeCategoryIDs:          c.ExcludeCategoryIDs,
		MinRequirement:              orDefault(c.MinRequirement, coupon.MinNone),
		MinRequirementValue:         c.MinRequirementValue,
		CustomerEligibility:         orDefault(c.Eligibility, coupon.CustomersAll),
		CustomerGroupIDs:            c.CustomerGroupIDs,
		CustomerIDs:                 c.CustomerIDs,
		StartsAt:                    c.StartsAt,
		EndsAt:                      c.EndsAt,
		CanCombineWithOtherCoupons:  c.CombineWithCoupons,
		CanCombineWithAutoDiscounts: c.CombineWithAuto,
		Priority:                    c.Priority,
		UsageLimit:                  c.UsageLimit,
		UsageLimitPerCustomer:       c.UsageLimitPerCustomer,
	}
	switch {
	case c.BXGY != nil && len(c.Tiers) > 0:
		return nil, errors.New("bxgy and tiers are mutually exclusive")
	case c.BXGY != nil:
		out.Rule = coupon.BuyXGetYRule{
			BuyQuantity:           c.BXGY.Buy,
			GetQuantity:           c.BXGY.Get,
			GetDiscountPercentage: c.BXGY.Percentage,
			BuyProductIDs:         c.BXGY.BuyProductIDs,
			GetProductIDs:         c.BXGY.GetProductIDs,
		}
	case len(c.Tiers) > 0:
		tiers := make([]coupon.Tier, len(c.Tiers))
		for i, t := range c.Tiers {
			tiers[i] = coupon.Tier{Min: t.Min, Value: t.Value, Kind: orDefault(t.Kind, coupon.KindPercentage)}
		}
		out.Rule = coupon.TieredRule{Tiers: tiers}
	default:
		out.Rule = coupon.SimpleRule{Value: c.Value}
	}
	return out, nil
}

func (c cartFixture) cart() *cart.Cart {
	items := make([]product.Line, len(c.Items))
	for i, it := range c.Items {
		items[i] = product.Line{ID: it.ID, ProductID: it.ProductID, VariantID: it.VariantID, Quantity: it.Quantity}
	}
	return &cart.Cart{ID: c.ID, CustomerID: c.CustomerID, Items: items}
}
