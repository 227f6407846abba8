package middleware

import (
	"context"
	"net/http"

	"github.com/morannon-ai/morannon/internal/auth"
)

type tenantContextKey struct{}

// TenantContext extracts the tenant from the authenticated principal
// and sets it in the request context for downstream use. Principals
// without a tenant get no tenant context — downstream consumers treat
// that as "no tenant-scoped data", never as "all tenants".
func TenantContext(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		principal := auth.GetPrincipal(r.Context())
		if principal != nil && principal.Tenant != "" {
			ctx := context.WithValue(r.Context(), tenantContextKey{}, principal.Tenant)
			next.ServeHTTP(w, r.WithContext(ctx))
			return
		}

		next.ServeHTTP(w, r)
	})
}

// GetTenant retrieves the tenant from the request context.
func GetTenant(ctx context.Context) string {
	if id, ok := ctx.Value(tenantContextKey{}).(string); ok {
		return id
	}
	return ""
}
