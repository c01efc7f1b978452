package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-faster/jx"

	"github.com/xenking/coupon-engine/internal/codec"
	"github.com/xenking/coupon-engine/internal/domain/cart"
	"github.com/xenking/coupon-engine/internal/domain/coupon"
)

// GetCart handles GET /api/carts/{cartID}.
func (h *Handler) GetCart(w http.ResponseWriter, r *http.Request) {
	v, err := h.carts.View(r.Context(), chi.URLParam(r, "cartID"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeCart(w, http.StatusOK, v)
}

// ApplyCoupon handles POST /api/carts/{cartID}/coupon with {"code": "..."}.
func (h *Handler) ApplyCoupon(w http.ResponseWriter, r *http.Request) {
	var code string
	err := decodeBody(w, r, func(d *jx.Decoder) error {
		return d.Obj(func(d *jx.Decoder, key string) error {
			if key != "code" {
				return d.Skip()
			}
			var err error
			code, err = d.Str()
			return err
		})
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	if coupon.NormalizeCode(code) == "" {
		writeError(w, r, &coupon.ValidationError{Field: "code", Message: "coupon code is required"})
		return
	}

	v, err := h.carts.ApplyCoupon(r.Context(), chi.URLParam(r, "cartID"), code)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeCart(w, http.StatusOK, v)
}

// RemoveCoupon handles DELETE /api/carts/{cartID}/coupon.
func (h *Handler) RemoveCoupon(w http.ResponseWriter, r *http.Request) {
	v, err := h.carts.RemoveCoupon(r.Context(), chi.URLParam(r, "cartID"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeCart(w, http.StatusOK, v)
}

func writeCart(w http.ResponseWriter, status int, v *cart.View) {
	writeJSON(w, status, func(e *jx.Encoder) {
		e.Obj(func(e *jx.Encoder) {
			e.Field("id", func(e *jx.Encoder) { e.Str(v.Cart.ID) })
			if v.Cart.CustomerID != "" {
				e.Field("customer_id", func(e *jx.Encoder) { e.Str(v.Cart.CustomerID) })
			}
			if v.Cart.CouponCode != "" {
				e.Field("coupon_code", func(e *jx.Encoder) { e.Str(v.Cart.CouponCode) })
			}
			e.Field("items", func(e *jx.Encoder) { encodeLineItems(e, v.Lines) })
			e.Field("subtotal", func(e *jx.Encoder) { codec.Money(e, v.Subtotal) })
			e.Field("discount", func(e *jx.Encoder) { codec.Money(e, v.Discount) })
			e.Field("total", func(e *jx.Encoder) { codec.Money(e, v.Total) })
			e.Field("free_shipping", func(e *jx.Encoder) { e.Bool(v.FreeShipping) })
			e.Field("applied", func(e *jx.Encoder) { encodeApplied(e, v.Applied) })
		})
	})
}
