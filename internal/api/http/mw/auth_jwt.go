package mw

import (
	"context"
	"errors"
	"net/http"

	"ethtrader/internal/security"
	"ethtrader/pkg/httputil"
)

// Key for claims in ctx
type claimsCtxKey struct{}

type JWTMiddleware struct {
	verifier *security.RS256Verifier
}

func NewJWTMiddleware(v *security.RS256Verifier) (*JWTMiddleware, error) {
	if v == nil {
		return nil, errors.New("JWT verifier cannot be nil")
	}
	return &JWTMiddleware{verifier: v}, nil
}

func (m *JWTMiddleware) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		claims, err := m.verifier.VerifyBearer(r.Header.Get("Authorization"))
		if err != nil {
			_ = httputil.Error(w, r, http.StatusUnauthorized, "unauthorized", err.Error(), nil)
			return
		}

		next.ServeHTTP(w, r.WithContext(WithClaims(r.Context(), claims)))
	})
}

func WithClaims(ctx context.Context, c *security.Claims) context.Context {
	return context.WithValue(ctx, claimsCtxKey{}, c)
}

// ClaimsFromContext returns the verified claims, or nil on an unauthenticated route
func ClaimsFromContext(ctx context.Context) *security.Claims {
	c, _ := ctx.Value(claimsCtxKey{}).(*security.Claims)
	return c
}
