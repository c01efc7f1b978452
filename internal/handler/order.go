package handler

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-faster/jx"

	"github.com/xenking/coupon-engine/internal/codec"
	"github.com/xenking/coupon-engine/internal/domain/coupon"
	"github.com/xenking/coupon-engine/internal/domain/order"
)

// PlaceOrder handles POST /api/orders. Either cart_id or items is required;
// coupon_code and coupon_codes are merged.
func (h *Handler) PlaceOrder(w http.ResponseWriter, r *http.Request) {
	var req order.PlaceOrderRequest
	err := decodeBody(w, r, func(d *jx.Decoder) error {
		return d.Obj(func(d *jx.Decoder, key string) error {
			var err error
			switch key {
			case "cart_id", "cartId":
				req.CartID, err = d.Str()
			case "customer_id", "customerId":
				req.CustomerID, err = d.Str()
			case "items":
				req.Items, err = readItems(d)
			case "coupon_code", "couponCode":
				var code string
				code, err = d.Str()
				if code != "" {
					req.CouponCodes = append(req.CouponCodes, code)
				}
			case "coupon_codes":
				var codes []string
				codes, err = codec.ReadStrings(d)
				req.CouponCodes = append(req.CouponCodes, codes...)
			default:
				err = d.Skip()
			}
			return err
		})
	})
	if err != nil {
		writeError(w, r, err)
		return
	}

	res, err := h.orders.PlaceOrder(r.Context(), req)
	if err != nil {
		writeError(w, r, err)
		return
	}

	o := res.Order
	writeJSON(w, http.StatusCreated, func(e *jx.Encoder) {
		e.Obj(func(e *jx.Encoder) {
			e.Field("id", func(e *jx.Encoder) { e.Str(o.ID) })
			if o.CustomerID != "" {
				e.Field("customer_id", func(e *jx.Encoder) { e.Str(o.CustomerID) })
			}
			e.Field("items", func(e *jx.Encoder) { encodeLineItems(e, res.Lines) })
			e.Field("subtotal", func(e *jx.Encoder) { codec.Money(e, o.Subtotal) })
			e.Field("discount", func(e *jx.Encoder) { codec.Money(e, o.Discount) })
			e.Field("total", func(e *jx.Encoder) { codec.Money(e, o.Total) })
			e.Field("free_shipping", func(e *jx.Encoder) { e.Bool(o.FreeShipping) })
			e.Field("coupon_codes", func(e *jx.Encoder) { codec.Strings(e, o.CouponCodes) })
			e.Field("applied", func(e *jx.Encoder) { encodeApplied(e, res.Applied) })
			e.Field("created_at", func(e *jx.Encoder) { e.Str(o.CreatedAt.UTC().Format(time.RFC3339)) })
		})
	})
}

// CommitCouponUsage handles POST /api/orders/{orderID}/coupon-usage. It is the
// only endpoint that records usage for an order placed outside PlaceOrder.
func (h *Handler) CommitCouponUsage(w http.ResponseWriter, r *http.Request) {
	req := order.CommitRequest{OrderID: chi.URLParam(r, "orderID")}
	var hasAmount bool
	err := decodeBody(w, r, func(d *jx.Decoder) error {
		return d.Obj(func(d *jx.Decoder, key string) error {
			var err error
			switch key {
			case "coupon_id", "couponId":
				req.CouponID, err = d.Int64()
			case "customer_id", "customerId":
				req.CustomerID, err = d.Str()
			case "discount_amount", "discountAmount":
				req.DiscountAmount, err = codec.ReadDecimal(d)
				hasAmount = true
			default:
				err = d.Skip()
			}
			return err
		})
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	if !hasAmount {
		writeError(w, r, &coupon.ValidationError{Field: "discount_amount", Message: "discount amount is required"})
		return
	}

	if err := h.orders.CommitCoupon(r.Context(), req); err != nil {
		writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusCreated, func(e *jx.Encoder) {
		e.Obj(func(e *jx.Encoder) {
			e.Field("order_id", func(e *jx.Encoder) { e.Str(req.OrderID) })
			e.Field("coupon_id", func(e *jx.Encoder) { e.Int64(req.CouponID) })
			e.Field("discount_amount", func(e *jx.Encoder) { codec.Money(e, req.DiscountAmount) })
			e.Field("recorded", func(e *jx.Encoder) { e.Bool(true) })
		})
	})
}
