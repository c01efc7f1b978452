package handler

import (
	"crypto/subtle"
	"encoding/hex"
	"net/http"
	"strings"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"

	"github.com/xenking/coupon-engine/internal/domain/auth"
)

// apiKeyAuth authenticates back-office calls by the HMAC-SHA256 of their API
// key.
type apiKeyAuth struct {
	keys   auth.Repository
	pepper []byte
}

// apiKey reads the key from X-API-Key, api_key or a bearer token.
func apiKey(r *http.Request) string {
	if k := r.Header.Get("X-API-Key"); k != "" {
		return k
	}
	if k := r.Header.Get("api_key"); k != "" {
		return k
	}
	if v, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer "); ok {
		return strings.TrimSpace(v)
	}
	return ""
}

// require rejects requests without a valid key granting scope.
func (a *apiKeyAuth) require(scope string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := apiKey(r)
			if key == "" {
				writeProblem(w, http.StatusUnauthorized, "unauthorized", "api key required")
				return
			}

			info, err := a.lookup(r, key)
			switch {
			case errors.Is(err, auth.ErrNotFound):
				writeProblem(w, http.StatusUnauthorized, "unauthorized", "invalid api key")
				return
			case err != nil:
				writeError(w, r, err)
				return
			case !info.HasScope(scope):
				writeProblem(w, http.StatusForbidden, "forbidden", "api key lacks scope "+scope)
				return
			}

			ctx := zctx.With(r.Context(), zap.String("api_key", info.Name))
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func (a *apiKeyAuth) lookup(r *http.Request, key string) (*auth.APIKeyInfo, error) {
	hash := auth.Hash(a.pepper, key)
	info, err := a.keys.FindByHash(r.Context(), hash)
	if err != nil {
		return nil, err
	}
	// Compare in constant time in case the store matched loosely.
	want, err := hex.DecodeString(hash)
	if err != nil {
		return nil, errors.Wrap(err, "decode computed hash")
	}
	got, err := hex.DecodeString(info.KeyHash)
	if err != nil || subtle.ConstantTimeCompare(want, got) != 1 {
		return nil, auth.ErrNotFound
	}
	return info, nil
}
