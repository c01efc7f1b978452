package coupon

import (
	"context"
	"strings"
	"time"

	"github.com/go-faster/errors"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"
)

// ValidateRequest is the input of Service.Validate.
type ValidateRequest struct {
	Code       string
	CustomerID string
	Cart       Cart
}

// Validation is the outcome of validating one coupon against a cart.
// Discount is set only when Valid is true.
type Validation struct {
	Valid    bool
	Reason   Reason
	Coupon   *Coupon
	Discount *Discount
}

// Err returns the *IneligibleError matching an invalid result.
func (v *Validation) Err() error {
	if v.Valid {
		return nil
	}
	code := ""
	if v.Coupon != nil {
		code = v.Coupon.Code
	}
	return &IneligibleError{Code: code, Reason: v.Reason}
}

// QuoteRequest is the input of Service.Quote. Codes are the manually entered
// coupons; automatic discounts are always considered.
type QuoteRequest struct {
	Codes      []string
	CustomerID string
	Cart       Cart
}

// Quote is the combined discount for a cart.
type Quote struct {
	Combination
	Ineligible []Validation
}

// Check returns nil when the manually entered code made it into the
// combination. Otherwise it returns the *IneligibleError or *NotAppliedError
// explaining why not.
func (q *Quote) Check(code string) error {
	code = NormalizeCode(code)
	for _, a := range q.Applied {
		if !a.Coupon.IsAutomatic && a.Coupon.Code == code {
			return nil
		}
	}
	for i := range q.Ineligible {
		v := &q.Ineligible[i]
		if v.Coupon != nil && v.Coupon.Code == code {
			return v.Err()
		}
	}
	for _, r := range q.Rejected {
		if r.Coupon.Code == code {
			return &NotAppliedError{Code: code, Reason: r.Reason}
		}
	}
	return &NotAppliedError{Code: code, Reason: RejectNotCombinable}
}

// Service evaluates coupons against carts. It never records usage.
type Service struct {
	repo      Repository
	customers CustomerDirectory
	tracer    trace.Tracer
	now       func() time.Time
}

// NewService creates a Service backed by the given repository and customer
// directory.
func NewService(repo Repository, customers CustomerDirectory, tp trace.TracerProvider) *Service {
	return &Service{
		repo:      repo,
		customers: customers,
		tracer:    tp.Tracer("coupon"),
		now:       time.Now,
	}
}

// NormalizeCode canonicalises a user-entered coupon code.
func NormalizeCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

// Validate looks up the coupon for req.Code, checks eligibility and computes
// its discount. Ineligibility is reported in the result; errors are returned
// only for malformed input and infrastructure failures.
func (s *Service) Validate(ctx context.Context, req ValidateRequest) (_ *Validation, rerr error) {
	ctx, span := s.tracer.Start(ctx, "coupon.Validate")
	defer func() {
		if rerr != nil {
			span.RecordError(rerr)
			span.SetStatus(codes.Error, rerr.Error())
		}
		span.End()
	}()

	c, err := s.lookup(ctx, req.Code)
	if err != nil {
		return nil, err
	}
	span.SetAttributes(attribute.Int64("coupon.id", c.ID))

	cust := newCustomerLoader(s.customers, req.CustomerID)
	v, err := s.evaluate(ctx, c, req.Cart, cust)
	if err != nil {
		return nil, err
	}

	span.SetAttributes(
		attribute.Bool("coupon.valid", v.Valid),
		attribute.String("coupon.reason", string(v.Reason)),
	)
	return v, nil
}

// Quote evaluates the requested codes plus every automatic discount and
// combines the eligible ones. Unknown codes are returned as a
// *ValidationError.
func (s *Service) Quote(ctx context.Context, req QuoteRequest) (_ *Quote, rerr error) {
	ctx, span := s.tracer.Start(ctx, "coupon.Quote")
	defer func() {
		if rerr != nil {
			span.RecordError(rerr)
			span.SetStatus(codes.Error, rerr.Error())
		}
		span.End()
	}()

	// A coupon is a candidate at most once, however many times its code is
	// repeated and even when it is also automatic.
	coupons := make([]*Coupon, 0, len(req.Codes))
	seenCodes := make(map[string]struct{}, len(req.Codes))
	seenIDs := make(map[int64]struct{}, len(req.Codes))
	for _, code := range req.Codes {
		norm := NormalizeCode(code)
		if _, ok := seenCodes[norm]; ok {
			continue
		}
		seenCodes[norm] = struct{}{}

		c, err := s.lookup(ctx, code)
		if err != nil {
			return nil, err
		}
		if _, ok := seenIDs[c.ID]; ok {
			continue
		}
		seenIDs[c.ID] = struct{}{}
		coupons = append(coupons, c)
	}

	automatic, err := s.repo.ListAutomatic(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "list automatic discounts")
	}
	for i := range automatic {
		if _, ok := seenIDs[automatic[i].ID]; ok {
			continue
		}
		seenIDs[automatic[i].ID] = struct{}{}
		coupons = append(coupons, &automatic[i])
	}

	cust := newCustomerLoader(s.customers, req.CustomerID)
	q := &Quote{}
	candidates := make([]Candidate, 0, len(coupons))
	for _, c := range coupons {
		v, err := s.evaluate(ctx, c, req.Cart, cust)
		if err != nil {
			return nil, err
		}
		if !v.Valid {
			q.Ineligible = append(q.Ineligible, *v)
			continue
		}
		candidates = append(candidates, Candidate{Coupon: c, Discount: *v.Discount})
	}

	q.Combination = Combine(req.Cart, candidates)
	span.SetAttributes(
		attribute.Int("coupon.candidates", len(candidates)),
		attribute.Int("coupon.applied", len(q.Applied)),
	)
	return q, nil
}

func (s *Service) lookup(ctx context.Context, code string) (*Coupon, error) {
	code = NormalizeCode(code)
	if code == "" {
		return nil, &ValidationError{Field: "code", Message: "coupon code is required"}
	}

	c, err := s.repo.FindByCode(ctx, code)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, &ValidationError{Field: "code", Message: "unknown coupon code", Err: ErrNotFound}
		}
		return nil, errors.Wrap(err, "lookup coupon")
	}
	return c, nil
}

func (s *Service) evaluate(ctx context.Context, c *Coupon, cart Cart, cust *customerLoader) (*Validation, error) {
	customer, err := cust.load(ctx, c)
	if err != nil {
		return nil, err
	}

	usage, err := s.counts(ctx, c, customer)
	if err != nil {
		return nil, err
	}

	e := CheckEligibility(c, cart, customer, usage, s.now())
	if !e.Eligible {
		return &Validation{Reason: e.Reason, Coupon: c}, nil
	}

	d := Calculate(c, cart)
	return &Validation{Valid: true, Coupon: c, Discount: &d}, nil
}

// counts fetches the usage counters a coupon's limits need, concurrently.
func (s *Service) counts(ctx context.Context, c *Coupon, customer Customer) (UsageCounts, error) {
	var usage UsageCounts

	g, ctx := errgroup.WithContext(ctx)
	if c.UsageLimit != nil {
		g.Go(func() error {
			n, err := s.repo.CountUsage(ctx, c.ID)
			if err != nil {
				return errors.Wrap(err, "count usage")
			}
			usage.Total = n
			return nil
		})
	}
	if c.UsageLimitPerCustomer != nil && !customer.IsGuest() {
		g.Go(func() error {
			n, err := s.repo.CountUsageByCustomer(ctx, c.ID, customer.ID)
			if err != nil {
				return errors.Wrap(err, "count customer usage")
			}
			usage.Customer = n
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return UsageCounts{}, err
	}
	return usage, nil
}

// customerLoader fetches group memberships at most once per request, and
// only for coupons restricted to customer groups.
type customerLoader struct {
	dir    CustomerDirectory
	id     string
	loaded bool
	groups []string
}

func newCustomerLoader(dir CustomerDirectory, id string) *customerLoader {
	return &customerLoader{dir: dir, id: id}
}

func (l *customerLoader) load(ctx context.Context, c *Coupon) (Customer, error) {
	customer := Customer{ID: l.id}
	if l.id == "" || c.CustomerEligibility != CustomersGroups {
		return customer, nil
	}
	if !l.loaded {
		groups, err := l.dir.GroupsOf(ctx, l.id)
		if err != nil {
			return Customer{}, errors.Wrap(err, "load customer groups")
		}
		l.groups, l.loaded = groups, true
	}
	customer.GroupIDs = l.groups
	return customer, nil
}
