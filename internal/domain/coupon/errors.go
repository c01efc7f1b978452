package coupon

import (
	"fmt"

	"github.com/go-faster/errors"
)

var (
	// ErrNotFound is returned by repositories when no coupon matches.
	ErrNotFound = errors.New("coupon not found")
	// ErrUsageLimitExceededAtCommit is returned by the ledger when the usage
	// re-check inside the order transaction fails. The order must be rolled
	// back and the coupon re-validated.
	ErrUsageLimitExceededAtCommit = errors.New("coupon usage limit exceeded at commit")
)

// Reason is a machine-readable ineligibility code.
type Reason string

const (
	ReasonInactive                  Reason = "inactive"
	ReasonExpired                   Reason = "expired"
	ReasonUsageLimitReached         Reason = "usage_limit_reached"
	ReasonCustomerUsageLimitReached Reason = "customer_usage_limit_reached"
	ReasonCustomerRequired          Reason = "customer_required"
	ReasonNotEligibleCustomer       Reason = "not_eligible_customer"
	ReasonBelowMinimum              Reason = "below_minimum"
)

// IneligibleError reports why a coupon cannot be applied.
type IneligibleError struct {
	Code   string
	Reason Reason
}

func (e *IneligibleError) Error() string {
	if e.Code == "" {
		return fmt.Sprintf("coupon not eligible: %s", e.Reason)
	}
	return fmt.Sprintf("coupon %s not eligible: %s", e.Code, e.Reason)
}

// ValidationError indicates malformed input such as a missing field or an
// unknown coupon code.
type ValidationError struct {
	Field   string
	Message string
	Err     error
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Message)
}

func (e *ValidationError) Unwrap() error { return e.Err }

// NotAppliedError reports an eligible coupon that Combine left out, for
// example because it grants nothing on this cart or an automatic discount
// excludes it.
type NotAppliedError struct {
	Code   string
	Reason RejectReason
}

func (e *NotAppliedError) Error() string {
	return fmt.Sprintf("coupon %s not applied: %s", e.Code, e.Reason)
}
