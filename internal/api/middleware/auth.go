package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/civium-ai/custodia/internal/api"
	"github.com/civium-ai/custodia/internal/domain"
)

type contextKey string

const TenantContextKey contextKey = "tenant_context"

type CredentialValidator interface {
	ValidateCredential(ctx context.Context, token string) (*domain.TenantContext, error)
}

// CredentialAuth resolves the bearer token to a tenant context and stores it
// on the request. All governance decisions downstream read the context set
// here, never raw headers.
func CredentialAuth(validator CredentialValidator) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			authHeader := r.Header.Get("Authorization")
			if authHeader == "" {
				api.Error(w, http.StatusUnauthorized, "missing authorization header")
				return
			}

			if !strings.HasPrefix(authHeader, "Bearer ") {
				api.Error(w, http.StatusUnauthorized, "invalid authorization format")
				return
			}

			token := strings.TrimPrefix(authHeader, "Bearer ")

			tc, err := validator.ValidateCredential(r.Context(), token)
			if err != nil {
				api.Error(w, http.StatusUnauthorized, "invalid credential")
				return
			}

			ctx := context.WithValue(r.Context(), TenantContextKey, tc)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// GetTenantContext returns the tenant context resolved by CredentialAuth,
// or nil on unauthenticated routes.
func GetTenantContext(ctx context.Context) *domain.TenantContext {
	tc, _ := ctx.Value(TenantContextKey).(*domain.TenantContext)
	return tc
}
