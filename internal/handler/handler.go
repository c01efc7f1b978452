// Package handler exposes the coupon engine over HTTP.
package handler

import (
	"context"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-faster/errors"
	"github.com/go-faster/jx"

	"github.com/xenking/coupon-engine/internal/domain/auth"
	"github.com/xenking/coupon-engine/internal/domain/cart"
	"github.com/xenking/coupon-engine/internal/domain/coupon"
	"github.com/xenking/coupon-engine/internal/domain/order"
	"github.com/xenking/coupon-engine/internal/domain/product"
	"github.com/xenking/coupon-engine/pkg/httpmiddleware"
)

const maxBodyBytes = 1 << 20

// CouponService validates coupons without recording usage.
type CouponService interface {
	Validate(ctx context.Context, req coupon.ValidateRequest) (*coupon.Validation, error)
}

// CartService attaches and detaches coupons on carts.
type CartService interface {
	View(ctx context.Context, cartID string) (*cart.View, error)
	ApplyCoupon(ctx context.Context, cartID, code string) (*cart.View, error)
	RemoveCoupon(ctx context.Context, cartID string) (*cart.View, error)
}

// OrderService places orders and commits coupon usage.
type OrderService interface {
	PlaceOrder(ctx context.Context, req order.PlaceOrderRequest) (*order.PlaceOrderResult, error)
	CommitCoupon(ctx context.Context, req order.CommitRequest) error
}

// Config lists the dependencies of Handler.
type Config struct {
	Coupons  CouponService
	Carts    CartService
	Orders   OrderService
	Usage    coupon.UsageReports
	Products product.Repository
	APIKeys  auth.Repository
	Pepper   []byte
	// ValidateLimit guards coupon validation against code enumeration.
	// Nil disables it.
	ValidateLimit httpmiddleware.Middleware
}

// Handler serves the /api routes.
type Handler struct {
	coupons       CouponService
	carts         CartService
	orders        OrderService
	usage         coupon.UsageReports
	products      product.Repository
	auth          *apiKeyAuth
	validateLimit httpmiddleware.Middleware
}

// New creates a Handler.
func New(cfg Config) *Handler {
	limit := cfg.ValidateLimit
	if limit == nil {
		limit = func(next http.Handler) http.Handler { return next }
	}
	return &Handler{
		coupons:       cfg.Coupons,
		carts:         cfg.Carts,
		orders:        cfg.Orders,
		usage:         cfg.Usage,
		products:      cfg.Products,
		auth:          &apiKeyAuth{keys: cfg.APIKeys, pepper: cfg.Pepper},
		validateLimit: limit,
	}
}

// Router returns the chi router for the API. Middlewares run inside the
// router so they can see the matched route.
func (h *Handler) Router(middlewares ...httpmiddleware.Middleware) chi.Router {
	r := chi.NewRouter()
	for _, m := range middlewares {
		r.Use(m)
	}
	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		writeProblem(w, http.StatusNotFound, "not_found", "route not found")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		writeProblem(w, http.StatusMethodNotAllowed, "method_not_allowed", "method not allowed")
	})

	r.Route("/api", func(r chi.Router) {
		r.With(h.validateLimit).Post("/coupons/validate", h.ValidateCoupon)

		r.Get("/carts/{cartID}", h.GetCart)
		r.Post("/carts/{cartID}/coupon", h.ApplyCoupon)
		r.Delete("/carts/{cartID}/coupon", h.RemoveCoupon)

		r.Post("/orders", h.PlaceOrder)
		r.With(h.auth.require(auth.ScopeCommitUsage)).
			Post("/orders/{orderID}/coupon-usage", h.CommitCouponUsage)

		r.Group(func(r chi.Router) {
			r.Use(h.auth.require(auth.ScopeReadUsage))
			r.Get("/coupons/{couponID}/usage/stats", h.UsageStats)
			r.Get("/coupons/{couponID}/usage/logs", h.UsageLogs)
		})
	})
	return r
}

// errBadBody marks a request body that is not the expected JSON.
var errBadBody = errors.New("malformed request body")

// decodeBody reads the request body and decodes it with fn.
func decodeBody(w http.ResponseWriter, r *http.Request, fn func(d *jx.Decoder) error) error {
	data, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		return errors.Wrap(errBadBody, err.Error())
	}
	if err := fn(jx.DecodeBytes(data)); err != nil {
		return errors.Wrap(errBadBody, err.Error())
	}
	return nil
}

func writeJSON(w http.ResponseWriter, status int, fn func(e *jx.Encoder)) {
	var e jx.Encoder
	fn(&e)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(e.Bytes())
}
