package audit

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/morannon-ai/morannon/internal/auth"
	"github.com/morannon-ai/morannon/internal/platform/database"
	"github.com/morannon-ai/morannon/internal/platform/middleware"
)

// TokenValidator validates a raw JWT string and returns the principal.
// The stream endpoint authenticates via query parameter since browsers
// cannot set headers on a WebSocket upgrade.
type TokenValidator interface {
	ValidateToken(token string) (*auth.Principal, error)
}

// Handler serves audit query and live-tail endpoints.
type Handler struct {
	db        database.Querier
	broadcast *Broadcaster
	tokens    TokenValidator
	authorize func(*auth.Principal) bool
}

// NewHandler creates an audit handler. The stream route bypasses the
// route middleware (query-parameter auth), so authorize carries the
// same role requirement the REST events route enforces — nil means
// nobody streams. db may be nil (queries return empty), broadcast and
// tokens may be nil (stream endpoint disabled).
func NewHandler(db database.Querier, broadcast *Broadcaster, tokens TokenValidator, authorize func(*auth.Principal) bool) *Handler {
	return &Handler{db: db, broadcast: broadcast, tokens: tokens, authorize: authorize}
}

// HandleListEvents returns audit events for the caller's tenant.
// GET /api/v1/audit/events?limit=50&action=gate.chunk_denied&after=<ts>
func (h *Handler) HandleListEvents(w http.ResponseWriter, r *http.Request) {
	tenant := middleware.GetTenant(r.Context())

	params := ListEventsParams{Tenant: tenant, Limit: 50}
	q := r.URL.Query()
	if raw := q.Get("limit"); raw != "" {
		var n int
		if _, err := fmt.Sscanf(raw, "%d", &n); err == nil && n > 0 && n <= 200 {
			params.Limit = n
		}
	}
	if raw := q.Get("action"); raw != "" {
		params.Action = &raw
	}
	if raw := q.Get("subject"); raw != "" {
		params.Subject = &raw
	}
	if raw := q.Get("decision"); raw != "" {
		params.Decision = &raw
	}
	if raw := q.Get("chunk_id"); raw != "" {
		params.ChunkID = &raw
	}
	if raw := q.Get("after"); raw != "" {
		if t, err := time.Parse(time.RFC3339, raw); err == nil {
			params.After = &t
		}
	}
	if raw := q.Get("before"); raw != "" {
		if t, err := time.Parse(time.RFC3339, raw); err == nil {
			params.Before = &t
		}
	}

	if h.db == nil {
		writeAuditJSON(w, http.StatusOK, map[string]any{"events": []any{}, "count": 0})
		return
	}

	sql, args := buildListQuery(params)
	rows, err := h.db.Query(r.Context(), sql, args...)
	if err != nil {
		writeAuditJSON(w, http.StatusInternalServerError, map[string]string{"error": "query failed"})
		return
	}
	defer rows.Close()

	var events []map[string]any
	for rows.Next() {
		var (
			id                uuid.UUID
			subject, tenantID string
			action            string
			effectiveRoles    []string
			maxClass          string
			policyVersion     string
			chunkID           string
			decision, reason  string
			metadata          json.RawMessage
			createdAt         time.Time
		)
		if err := rows.Scan(&id, &subject, &tenantID, &action, &effectiveRoles, &maxClass,
			&policyVersion, &chunkID, &decision, &reason, &metadata, &createdAt); err != nil {
			continue
		}
		events = append(events, map[string]any{
			"id":                 id,
			"subject":            subject,
			"tenant":             tenantID,
			"action":             action,
			"effective_roles":    effectiveRoles,
			"max_classification": maxClass,
			"policy_version":     policyVersion,
			"chunk_id":           chunkID,
			"decision":           decision,
			"reason":             reason,
			"metadata":           metadata,
			"created_at":         createdAt,
		})
	}

	if events == nil {
		events = []map[string]any{}
	}

	writeAuditJSON(w, http.StatusOK, map[string]any{"events": events, "count": len(events)})
}

// streamEvent is the JSON shape sent to live-tail subscribers.
type streamEvent struct {
	Subject           string         `json:"subject,omitempty"`
	Tenant            string         `json:"tenant,omitempty"`
	Action            string         `json:"action"`
	EffectiveRoles    []string       `json:"effective_roles,omitempty"`
	MaxClassification string         `json:"max_classification,omitempty"`
	PolicyVersion     string         `json:"policy_version,omitempty"`
	ChunkID           string         `json:"chunk_id,omitempty"`
	Decision          string         `json:"decision,omitempty"`
	Reason            string         `json:"reason,omitempty"`
	Metadata          map[string]any `json:"metadata,omitempty"`
}

// HandleStream upgrades to a WebSocket and tails decision events for the
// caller's tenant. Auth is via access_token query parameter.
// GET /api/v1/audit/stream?access_token=<jwt>
func (h *Handler) HandleStream(w http.ResponseWriter, r *http.Request) {
	if h.broadcast == nil || h.tokens == nil {
		http.Error(w, `{"error":"audit stream not available"}`, http.StatusNotFound)
		return
	}

	rawToken := r.URL.Query().Get("access_token")
	if rawToken == "" {
		http.Error(w, `{"error":"missing access_token"}`, http.StatusUnauthorized)
		return
	}
	principal, err := h.tokens.ValidateToken(rawToken)
	if err != nil {
		http.Error(w, `{"error":"invalid token"}`, http.StatusUnauthorized)
		return
	}
	if h.authorize == nil || !h.authorize(principal) {
		http.Error(w, `{"error":"forbidden"}`, http.StatusForbidden)
		return
	}

	conn, err := websocket.Accept(w, r, nil)
	if err != nil {
		slog.Warn("audit stream accept failed", "error", err)
		return
	}
	defer conn.Close(websocket.StatusNormalClosure, "")

	events, cancelSub := h.broadcast.Subscribe(256)
	defer cancelSub()

	g, ctx := errgroup.WithContext(r.Context())

	// Read loop: clients send nothing; a read returning an error means
	// the connection is gone.
	g.Go(func() error {
		for {
			if _, _, err := conn.Read(ctx); err != nil {
				return err
			}
		}
	})

	g.Go(func() error {
		for {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case e, ok := <-events:
				if !ok {
					return nil
				}
				// Tenant isolation holds on the audit surface too.
				// Tenantless events (policy reloads, filter builds for
				// tenantless principals) are operator events; they stay
				// off every tenant's tail and are read over REST.
				if e.Tenant == "" || e.Tenant != principal.Tenant {
					continue
				}
				writeCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
				err := wsjson.Write(writeCtx, conn, streamEvent{
					Subject:           e.Subject,
					Tenant:            e.Tenant,
					Action:            e.Action,
					EffectiveRoles:    e.EffectiveRoles,
					MaxClassification: e.MaxClassification,
					PolicyVersion:     e.PolicyVersion,
					ChunkID:           e.ChunkID,
					Decision:          e.Decision,
					Reason:            e.Reason,
					Metadata:          e.Metadata,
				})
				cancel()
				if err != nil {
					return err
				}
			}
		}
	})

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		var closeErr websocket.CloseError
		if !errors.As(err, &closeErr) {
			slog.Debug("audit stream closed", "error", err)
		}
	}
}

func writeAuditJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
