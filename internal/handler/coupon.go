package handler

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-faster/jx"

	"github.com/xenking/coupon-engine/internal/codec"
	"github.com/xenking/coupon-engine/internal/domain/coupon"
	"github.com/xenking/coupon-engine/internal/domain/order"
	"github.com/xenking/coupon-engine/internal/domain/product"
)

const (
	defaultLogLimit = 50
	maxLogLimit     = 500
)

// readItems decodes a JSON array of cart lines.
func readItems(d *jx.Decoder) ([]product.Line, error) {
	var items []product.Line
	err := d.Arr(func(d *jx.Decoder) error {
		l, err := codec.ReadLine(d)
		if err != nil {
			return err
		}
		items = append(items, l)
		return nil
	})
	return items, err
}

func checkQuantities(items []product.Line) error {
	for _, it := range items {
		if it.Quantity <= 0 {
			return &order.InvalidQuantityError{ProductID: it.ProductID}
		}
	}
	return nil
}

// ValidateCoupon handles POST /api/coupons/validate. Items are priced from
// the catalog; any client-sent subtotal is ignored. No usage is recorded.
func (h *Handler) ValidateCoupon(w http.ResponseWriter, r *http.Request) {
	var (
		code, customerID string
		items            []product.Line
	)
	err := decodeBody(w, r, func(d *jx.Decoder) error {
		return d.Obj(func(d *jx.Decoder, key string) error {
			var err error
			switch key {
			case "code":
				code, err = d.Str()
			case "customer_id", "customerId":
				customerID, err = d.Str()
			case "items":
				items, err = readItems(d)
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
	if err := checkQuantities(items); err != nil {
		writeError(w, r, err)
		return
	}

	ctx := r.Context()
	lines, err := product.PriceLines(ctx, h.products, items)
	if err != nil {
		writeError(w, r, err)
		return
	}
	cart := coupon.NewCart(lines)

	v, err := h.coupons.Validate(ctx, coupon.ValidateRequest{
		Code:       code,
		CustomerID: customerID,
		Cart:       cart,
	})
	if err != nil {
		writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, func(e *jx.Encoder) {
		e.Obj(func(e *jx.Encoder) {
			e.Field("valid", func(e *jx.Encoder) { e.Bool(v.Valid) })
			if !v.Valid {
				reason := string(v.Reason)
				e.Field("reason", func(e *jx.Encoder) { e.Str(reason) })
				e.Field("message", func(e *jx.Encoder) { e.Str(localize(r, reason, v.Err().Error())) })
			}
			if v.Coupon != nil {
				e.Field("coupon", func(e *jx.Encoder) { encodeCouponSummary(e, v.Coupon) })
			}
			e.Field("subtotal", func(e *jx.Encoder) { codec.Money(e, cart.Total()) })
			if v.Discount != nil {
				e.Field("discount", func(e *jx.Encoder) { encodeDiscount(e, v.Discount) })
				e.Field("total", func(e *jx.Encoder) { codec.Money(e, cart.Total().Sub(v.Discount.Amount)) })
			}
		})
	})
}

func couponIDParam(r *http.Request) (int64, error) {
	id, err := strconv.ParseInt(chi.URLParam(r, "couponID"), 10, 64)
	if err != nil || id <= 0 {
		return 0, &coupon.ValidationError{Field: "coupon_id", Message: "coupon id must be a positive integer"}
	}
	return id, nil
}

// parseBound parses an RFC 3339 timestamp or a YYYY-MM-DD date. A date used
// as an upper bound covers the whole day.
func parseBound(field, v string, upper bool) (time.Time, error) {
	if v == "" {
		return time.Time{}, nil
	}
	if t, err := time.Parse(time.RFC3339, v); err == nil {
		return t, nil
	}
	t, err := time.Parse(time.DateOnly, v)
	if err != nil {
		return time.Time{}, &coupon.ValidationError{Field: field, Message: "expected RFC 3339 time or YYYY-MM-DD date"}
	}
	if upper {
		t = t.AddDate(0, 0, 1)
	}
	return t, nil
}

// UsageStats handles GET /api/coupons/{couponID}/usage/stats.
func (h *Handler) UsageStats(w http.ResponseWriter, r *http.Request) {
	id, err := couponIDParam(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	q := r.URL.Query()
	from, err := parseBound("from", q.Get("from"), false)
	if err != nil {
		writeError(w, r, err)
		return
	}
	to, err := parseBound("to", q.Get("to"), true)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if !from.IsZero() && !to.IsZero() && !from.Before(to) {
		writeError(w, r, &coupon.ValidationError{Field: "from", Message: "from must be before to"})
		return
	}

	stats, err := h.usage.UsageStats(r.Context(), id, from, to)
	if err != nil {
		writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, func(e *jx.Encoder) {
		e.Obj(func(e *jx.Encoder) {
			e.Field("coupon_id", func(e *jx.Encoder) { e.Int64(stats.CouponID) })
			e.Field("total_uses", func(e *jx.Encoder) { e.Int(stats.TotalUses) })
			e.Field("total_discount", func(e *jx.Encoder) { codec.Money(e, stats.TotalDiscount) })
			e.Field("daily", func(e *jx.Encoder) {
				e.Arr(func(e *jx.Encoder) {
					for _, d := range stats.Daily {
						e.Obj(func(e *jx.Encoder) {
							e.Field("date", func(e *jx.Encoder) { e.Str(d.Day.UTC().Format(time.DateOnly)) })
							e.Field("uses", func(e *jx.Encoder) { e.Int(d.Uses) })
							e.Field("discount", func(e *jx.Encoder) { codec.Money(e, d.Discount) })
						})
					}
				})
			})
		})
	})
}

func intQuery(r *http.Request, field string, def int) (int, error) {
	v := r.URL.Query().Get(field)
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 0 {
		return 0, &coupon.ValidationError{Field: field, Message: "must be a non-negative integer"}
	}
	return n, nil
}

// UsageLogs handles GET /api/coupons/{couponID}/usage/logs.
func (h *Handler) UsageLogs(w http.ResponseWriter, r *http.Request) {
	id, err := couponIDParam(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	limit, err := intQuery(r, "limit", defaultLogLimit)
	if err != nil {
		writeError(w, r, err)
		return
	}
	offset, err := intQuery(r, "offset", 0)
	if err != nil {
		writeError(w, r, err)
		return
	}
	limit = min(max(limit, 1), maxLogLimit)

	logs, err := h.usage.UsageLogs(r.Context(), id, limit, offset)
	if err != nil {
		writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, func(e *jx.Encoder) {
		e.Obj(func(e *jx.Encoder) {
			e.Field("coupon_id", func(e *jx.Encoder) { e.Int64(id) })
			e.Field("limit", func(e *jx.Encoder) { e.Int(limit) })
			e.Field("offset", func(e *jx.Encoder) { e.Int(offset) })
			e.Field("items", func(e *jx.Encoder) {
				e.Arr(func(e *jx.Encoder) {
					for _, u := range logs {
						e.Obj(func(e *jx.Encoder) {
							e.Field("order_id", func(e *jx.Encoder) { e.Str(u.OrderID) })
							if u.CustomerID != "" {
								e.Field("customer_id", func(e *jx.Encoder) { e.Str(u.CustomerID) })
							}
							e.Field("discount_amount", func(e *jx.Encoder) { codec.Money(e, u.DiscountAmount) })
							e.Field("created_at", func(e *jx.Encoder) { e.Str(u.CreatedAt.UTC().Format(time.RFC3339)) })
						})
					}
				})
			})
		})
	})
}
