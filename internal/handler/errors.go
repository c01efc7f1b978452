package handler

import (
	"net/http"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"
	"golang.org/x/text/language"

	"github.com/xenking/coupon-engine/internal/domain/cart"
	"github.com/xenking/coupon-engine/internal/domain/coupon"
	"github.com/xenking/coupon-engine/internal/domain/order"
	"github.com/xenking/coupon-engine/internal/domain/product"
)

var (
	supported = []language.Tag{language.English, language.Turkish}
	matcher   = language.NewMatcher(supported)
)

// messages holds user-facing texts keyed by reason code, per language.
var messages = map[language.Tag]map[string]string{
	language.English: {
		string(coupon.ReasonInactive):                  "This coupon is not active.",
		string(coupon.ReasonExpired):                   "This coupon has expired or is not valid yet.",
		string(coupon.ReasonUsageLimitReached):         "This coupon has reached its usage limit.",
		string(coupon.ReasonCustomerUsageLimitReached): "You have already used this coupon the maximum number of times.",
		string(coupon.ReasonCustomerRequired):          "Please sign in to use this coupon.",
		string(coupon.ReasonNotEligibleCustomer):       "This coupon is not available for your account.",
		string(coupon.ReasonBelowMinimum):              "Your cart does not meet the minimum requirement for this coupon.",
		string(coupon.RejectNotCombinable):             "This coupon cannot be combined with the discounts already applied.",
		string(coupon.RejectNoDiscount):                "This coupon does not apply to any item in your cart.",
		"usage_limit_exceeded":                         "This coupon was used up while you were checking out. Please validate it again.",
		"coupon_not_found":                             "Coupon code not found.",
	},
	language.Turkish: {
		string(coupon.ReasonInactive):                  "Bu kupon aktif değil.",
		string(coupon.ReasonExpired):                   "Bu kuponun süresi dolmuş veya henüz geçerli değil.",
		string(coupon.ReasonUsageLimitReached):         "Bu kuponun kullanım limiti dolmuştur.",
		string(coupon.ReasonCustomerUsageLimitReached): "Bu kuponu kullanabileceğiniz maksimum sayıya ulaştınız.",
		string(coupon.ReasonCustomerRequired):          "Bu kuponu kullanmak için giriş yapmalısınız.",
		string(coupon.ReasonNotEligibleCustomer):       "Bu kupon hesabınız için geçerli değil.",
		string(coupon.ReasonBelowMinimum):              "Sepetiniz bu kuponun minimum şartını karşılamıyor.",
		string(coupon.RejectNotCombinable):             "Bu kupon uygulanan diğer indirimlerle birleştirilemez.",
		string(coupon.RejectNoDiscount):                "Bu kupon sepetinizdeki hiçbir ürüne uygulanmıyor.",
		"usage_limit_exceeded":                         "Bu kupon siz ödeme yaparken tükendi. Lütfen kuponu tekrar doğrulayın.",
		"coupon_not_found":                             "Kupon kodu bulunamadı.",
	},
}

// localize returns the message for key in the best language accepted by r,
// falling back to English and then to fallback.
func localize(r *http.Request, key, fallback string) string {
	tags, _, _ := language.ParseAcceptLanguage(r.Header.Get("Accept-Language"))
	_, idx, _ := matcher.Match(tags...)
	if msg, ok := messages[supported[idx]][key]; ok {
		return msg
	}
	if msg, ok := messages[language.English][key]; ok {
		return msg
	}
	return fallback
}

// problem is the JSON error body of every non-2xx response.
type problem struct {
	Status  int
	Code    string
	Message string
	Reason  string
	Field   string
}

func (p problem) encode(e *jx.Encoder) {
	e.Obj(func(e *jx.Encoder) {
		e.Field("code", func(e *jx.Encoder) { e.Str(p.Code) })
		e.Field("message", func(e *jx.Encoder) { e.Str(p.Message) })
		if p.Reason != "" {
			e.Field("reason", func(e *jx.Encoder) { e.Str(p.Reason) })
		}
		if p.Field != "" {
			e.Field("field", func(e *jx.Encoder) { e.Str(p.Field) })
		}
	})
}

func writeProblem(w http.ResponseWriter, status int, code, message string) {
	p := problem{Status: status, Code: code, Message: message}
	writeJSON(w, status, p.encode)
}

// toProblem maps domain errors to HTTP responses. Unknown errors are 500.
func toProblem(r *http.Request, err error) problem {
	var (
		validation *coupon.ValidationError
		ineligible *coupon.IneligibleError
		notApplied *coupon.NotAppliedError
		quantity   *order.InvalidQuantityError
		missing    *product.NotFoundError
	)
	switch {
	case errors.Is(err, errBadBody):
		return problem{Status: http.StatusBadRequest, Code: "bad_request", Message: err.Error()}
	case errors.As(err, &validation) && errors.Is(err, coupon.ErrNotFound):
		return problem{
			Status:  http.StatusNotFound,
			Code:    "coupon_not_found",
			Message: localize(r, "coupon_not_found", validation.Message),
			Field:   validation.Field,
		}
	case errors.As(err, &validation):
		return problem{
			Status:  http.StatusBadRequest,
			Code:    "validation_error",
			Message: validation.Message,
			Field:   validation.Field,
		}
	case errors.As(err, &ineligible):
		return problem{
			Status:  http.StatusUnprocessableEntity,
			Code:    "coupon_ineligible",
			Message: localize(r, string(ineligible.Reason), ineligible.Error()),
			Reason:  string(ineligible.Reason),
		}
	case errors.As(err, &notApplied):
		return problem{
			Status:  http.StatusUnprocessableEntity,
			Code:    "coupon_not_applied",
			Message: localize(r, string(notApplied.Reason), notApplied.Error()),
			Reason:  string(notApplied.Reason),
		}
	case errors.Is(err, coupon.ErrUsageLimitExceededAtCommit):
		return problem{
			Status:  http.StatusConflict,
			Code:    "usage_limit_exceeded",
			Message: localize(r, "usage_limit_exceeded", err.Error()),
		}
	case errors.Is(err, order.ErrEmptyItems):
		return problem{Status: http.StatusBadRequest, Code: "validation_error", Message: err.Error(), Field: "items"}
	case errors.As(err, &quantity):
		return problem{Status: http.StatusBadRequest, Code: "validation_error", Message: quantity.Error(), Field: "items"}
	case errors.As(err, &missing):
		return problem{Status: http.StatusNotFound, Code: "product_not_found", Message: missing.Error()}
	case errors.Is(err, coupon.ErrNotFound):
		return problem{Status: http.StatusNotFound, Code: "coupon_not_found", Message: localize(r, "coupon_not_found", err.Error())}
	case errors.Is(err, cart.ErrNotFound):
		return problem{Status: http.StatusNotFound, Code: "cart_not_found", Message: "cart not found"}
	case errors.Is(err, order.ErrNotFound):
		return problem{Status: http.StatusNotFound, Code: "order_not_found", Message: "order not found"}
	default:
		return problem{Status: http.StatusInternalServerError, Code: "internal", Message: "internal server error"}
	}
}

// writeError writes the response for err and logs unexpected failures.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	p := toProblem(r, err)
	if p.Status >= http.StatusInternalServerError {
		zctx.From(r.Context()).Error("Request failed",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Error(err),
		)
	}
	writeJSON(w, p.Status, p.encode)
}
