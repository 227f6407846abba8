package policy

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/morannon-ai/morannon/internal/audit"
	"github.com/morannon-ai/morannon/internal/auth"
)

// Handler serves policy inspection and reload endpoints.
type Handler struct {
	engine  *Engine
	builder *Builder
	audit   audit.Logger
}

func NewHandler(engine *Engine, builder *Builder, auditLogger audit.Logger) *Handler {
	return &Handler{engine: engine, builder: builder, audit: auditLogger}
}

// HandleGetPolicy returns the current snapshot version and role table.
// GET /api/v1/policy
func (h *Handler) HandleGetPolicy(w http.ResponseWriter, r *http.Request) {
	snap := h.engine.Current()
	writeHandlerJSON(w, http.StatusOK, map[string]any{
		"version": snap.Version(),
		"roles":   snap.RoleCeilings(),
	})
}

// HandleReload swaps in a freshly loaded policy snapshot. On failure the
// running snapshot stays in effect and the failure is audited.
// POST /api/v1/policy/reload
func (h *Handler) HandleReload(w http.ResponseWriter, r *http.Request) {
	principal := auth.GetPrincipal(r.Context())
	subject := ""
	if principal != nil {
		subject = principal.Subject
	}

	previous := h.engine.Current().Version()
	snap, err := h.engine.Reload()
	if err != nil {
		slog.Error("policy reload failed", "error", err, "running_version", previous)
		h.audit.Log(r.Context(), audit.Event{
			Action:        audit.ActionPolicyReloadFailed,
			Subject:       subject,
			PolicyVersion: previous,
			Decision:      audit.DecisionDeny,
			Reason:        err.Error(),
		})
		writeHandlerJSON(w, http.StatusUnprocessableEntity, map[string]string{
			"error":           "policy reload failed",
			"running_version": previous,
		})
		return
	}

	slog.Info("policy reloaded", "version", snap.Version(), "previous", previous)
	h.audit.Log(r.Context(), audit.Event{
		Action:        audit.ActionPolicyReloaded,
		Subject:       subject,
		PolicyVersion: snap.Version(),
		Decision:      audit.DecisionAllow,
		Metadata:      map[string]any{"previous_version": previous},
	})
	writeHandlerJSON(w, http.StatusOK, map[string]any{
		"version":          snap.Version(),
		"previous_version": previous,
	})
}

// HandleGetFilter returns the caller's compiled AccessFilter. Building a
// filter is deterministic, so this is a faithful preview of what the
// gate will enforce for this principal under the current snapshot.
// GET /api/v1/filter
func (h *Handler) HandleGetFilter(w http.ResponseWriter, r *http.Request) {
	principal := auth.GetPrincipal(r.Context())
	filter := h.builder.Build(r.Context(), principal)
	writeHandlerJSON(w, http.StatusOK, filter)
}

func writeHandlerJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
