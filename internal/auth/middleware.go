package auth

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
)

type principalContextKey struct{}

// Middleware returns HTTP middleware that validates bearer tokens and
// stores the resulting Principal in the request context.
func Middleware(tokenSvc *TokenService) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token, err := extractBearerToken(r)
			if err != nil {
				writeAuthError(w, http.StatusUnauthorized, err.Error())
				return
			}

			principal, err := tokenSvc.ValidateToken(token)
			if err != nil {
				writeAuthError(w, http.StatusUnauthorized, "invalid token")
				return
			}

			if principal.TokenType != "access" {
				writeAuthError(w, http.StatusUnauthorized, "access token required")
				return
			}

			ctx := context.WithValue(r.Context(), principalContextKey{}, principal)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// MiddlewareWithDevMode returns auth middleware that also accepts
// "Bearer dev" in dev mode, mapping it to a fixed dev principal.
func MiddlewareWithDevMode(tokenSvc *TokenService, devPrincipal *Principal) func(http.Handler) http.Handler {
	standard := Middleware(tokenSvc)
	return func(next http.Handler) http.Handler {
		wrapped := standard(next)
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if token, err := extractBearerToken(r); err == nil && token == "dev" && devPrincipal != nil {
				ctx := context.WithValue(r.Context(), principalContextKey{}, devPrincipal)
				next.ServeHTTP(w, r.WithContext(ctx))
				return
			}
			wrapped.ServeHTTP(w, r)
		})
	}
}

// WithPrincipal returns a context carrying the principal. Exported so
// handler tests can inject identities without a token round-trip.
func WithPrincipal(ctx context.Context, principal *Principal) context.Context {
	return context.WithValue(ctx, principalContextKey{}, principal)
}

// GetPrincipal retrieves the authenticated principal from the request
// context, or nil if the request did not pass the auth middleware.
func GetPrincipal(ctx context.Context) *Principal {
	principal, _ := ctx.Value(principalContextKey{}).(*Principal)
	return principal
}

func extractBearerToken(r *http.Request) (string, error) {
	authHeader := r.Header.Get("Authorization")
	if authHeader == "" {
		return "", fmt.Errorf("missing authorization header")
	}

	parts := strings.SplitN(authHeader, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return "", fmt.Errorf("invalid authorization header format")
	}

	return parts[1], nil
}

func writeAuthError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": message})
}
