package policy

import (
	"encoding/json"
	"net/http"

	"github.com/morannon-ai/morannon/internal/audit"
	"github.com/morannon-ai/morannon/internal/auth"
)

// MiddlewareOption configures route protection behavior.
type MiddlewareOption func(*middlewareConfig)

type middlewareConfig struct {
	audit audit.Logger
}

// WithAuditLogger attaches an audit logger to log route denials.
func WithAuditLogger(logger audit.Logger) MiddlewareOption {
	return func(c *middlewareConfig) {
		c.audit = logger
	}
}

// RequireRole returns middleware that admits only principals whose
// effective role set (declared roles expanded through the hierarchy)
// contains the required role. Used on the engine's own admin surface.
func RequireRole(engine *Engine, role string, opts ...MiddlewareOption) func(http.Handler) http.Handler {
	var mc middlewareConfig
	for _, opt := range opts {
		opt(&mc)
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			principal := auth.GetPrincipal(r.Context())
			if principal == nil {
				writeMiddlewareJSON(w, http.StatusUnauthorized, map[string]string{
					"error": "authentication required",
				})
				return
			}

			snap := engine.Current()
			for _, effective := range snap.Expand(principal.Roles) {
				if effective == role {
					next.ServeHTTP(w, r)
					return
				}
			}

			if mc.audit != nil {
				mc.audit.Log(r.Context(), audit.Event{
					Action:        audit.ActionRouteDenied,
					Subject:       principal.Subject,
					Tenant:        principal.Tenant,
					PolicyVersion: snap.Version(),
					Decision:      audit.DecisionDeny,
					Reason:        "missing role " + role,
					Metadata:      map[string]any{"path": r.URL.Path},
				})
			}
			writeMiddlewareJSON(w, http.StatusForbidden, map[string]string{
				"error": "forbidden",
			})
		})
	}
}

// RoleFunc returns a predicate reporting whether a principal's
// effective role set contains the required role. For surfaces that
// authenticate outside the HTTP middleware chain, such as WebSocket
// upgrades; HTTP routes use RequireRole.
func RoleFunc(engine *Engine, role string) func(*auth.Principal) bool {
	return func(principal *auth.Principal) bool {
		if principal == nil {
			return false
		}
		for _, effective := range engine.Current().Expand(principal.Roles) {
			if effective == role {
				return true
			}
		}
		return false
	}
}

func writeMiddlewareJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
