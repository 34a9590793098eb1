package mw

import (
	"context"
	"errors"
	"net/http"

	"referralstats/internal/security"
	"referralstats/pkg/httputil"
)

// Key for claims in ctx
type claimsCtxKey struct{}

type JWTMiddleware struct {
	verifier *security.RS256Verifier
	scope    string // required scope, empty = any valid token
}

func NewJWTMiddleware(v *security.RS256Verifier, scope string) (*JWTMiddleware, error) {
	if v == nil {
		return nil, errors.New("JWT verifier cannot be nil")
	}
	return &JWTMiddleware{verifier: v, scope: scope}, nil
}

func (m *JWTMiddleware) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		claims, err := m.verifier.VerifyScope(r.Header.Get("Authorization"), m.scope)
		if err != nil {
			status, code := http.StatusUnauthorized, "unauthorized"
			if errors.Is(err, security.ErrMissingScope) {
				status, code = http.StatusForbidden, "forbidden"
			}
			_ = httputil.Error(w, r, status, code, err.Error(), nil)
			return
		}

		ctx := context.WithValue(r.Context(), claimsCtxKey{}, claims)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// ClaimsFromContext returns the claims stored by JWTMiddleware, or nil.
func ClaimsFromContext(ctx context.Context) *security.Claims {
	c, _ := ctx.Value(claimsCtxKey{}).(*security.Claims)
	return c
}
