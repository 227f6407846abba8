package retrieval

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/google/uuid"

	"github.com/morannon-ai/morannon/internal/auth"
	"github.com/morannon-ai/morannon/internal/corpus"
	"github.com/morannon-ai/morannon/internal/gate"
	"github.com/morannon-ai/morannon/internal/policy"
)

// Handler serves the request path: principal → filter → search → gate →
// generate → verify.
type Handler struct {
	builder   *policy.Builder
	searcher  Searcher
	generator Generator
	gate      *gate.Gate
	verifier  *gate.Verifier
}

func NewHandler(builder *policy.Builder, searcher Searcher, generator Generator, g *gate.Gate, verifier *gate.Verifier) *Handler {
	return &Handler{
		builder:   builder,
		searcher:  searcher,
		generator: generator,
		gate:      g,
		verifier:  verifier,
	}
}

type queryRequest struct {
	Query string `json:"query"`
	Limit int    `json:"limit"`
}

type citationResponse struct {
	ChunkID    uuid.UUID `json:"chunk_id"`
	DocumentID uuid.UUID `json:"document_id"`
	SpanStart  int       `json:"span_start"`
	SpanEnd    int       `json:"span_end"`
}

// HandleSearch returns the gated retrieval results without generation.
// An empty result is indistinguishable from "nothing matched" — policy
// denial is not an error and never reveals what was withheld.
// POST /api/v1/search
func (h *Handler) HandleSearch(w http.ResponseWriter, r *http.Request) {
	principal := auth.GetPrincipal(r.Context())
	req, ok := h.decodeQuery(w, r)
	if !ok {
		return
	}

	filter := h.builder.Build(r.Context(), principal)
	gated, ok := h.searchAndGate(w, r, req, filter)
	if !ok {
		return
	}

	writeRetrievalJSON(w, http.StatusOK, map[string]any{
		"chunks": gated,
		"count":  len(gated),
	})
}

// HandleQuery runs the full answer path including generation and
// citation verification.
// POST /api/v1/query
func (h *Handler) HandleQuery(w http.ResponseWriter, r *http.Request) {
	principal := auth.GetPrincipal(r.Context())
	req, ok := h.decodeQuery(w, r)
	if !ok {
		return
	}

	filter := h.builder.Build(r.Context(), principal)
	gated, ok := h.searchAndGate(w, r, req, filter)
	if !ok {
		return
	}

	answer, err := h.generator.Generate(r.Context(), req.Query, gated)
	if err != nil {
		slog.Error("answer generation failed", "error", err)
		writeRetrievalJSON(w, http.StatusBadGateway, map[string]string{
			"error": "failed to produce a compliant answer",
		})
		return
	}

	if err := h.verifier.Verify(r.Context(), filter, answer.Citations); err != nil {
		// Deliberately generic: the structured denial is in the audit
		// trail, not in the response. A redacted answer could leak the
		// shape of what was removed.
		var denied *gate.DeniedError
		if errors.As(err, &denied) {
			slog.Warn("citation verification rejected answer",
				"subject", filter.Subject, "chunk_id", denied.ChunkID)
		}
		writeRetrievalJSON(w, http.StatusBadGateway, map[string]string{
			"error": "failed to produce a compliant answer",
		})
		return
	}

	citations := make([]citationResponse, len(answer.Citations))
	for i, c := range answer.Citations {
		citations[i] = citationResponse{
			ChunkID:    c.ID,
			DocumentID: c.DocumentID,
			SpanStart:  c.SpanStart,
			SpanEnd:    c.SpanEnd,
		}
	}

	writeRetrievalJSON(w, http.StatusOK, map[string]any{
		"answer":    answer.Text,
		"citations": citations,
	})
}

func (h *Handler) decodeQuery(w http.ResponseWriter, r *http.Request) (queryRequest, bool) {
	var req queryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeRetrievalJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return req, false
	}
	if req.Query == "" {
		writeRetrievalJSON(w, http.StatusBadRequest, map[string]string{"error": "query is required"})
		return req, false
	}
	return req, true
}

func (h *Handler) searchAndGate(w http.ResponseWriter, r *http.Request, req queryRequest, filter policy.AccessFilter) ([]corpus.Chunk, bool) {
	candidates, err := h.searcher.Search(r.Context(), req.Query, filter, req.Limit)
	if err != nil {
		slog.Error("search failed", "error", err)
		writeRetrievalJSON(w, http.StatusBadGateway, map[string]string{"error": "search unavailable"})
		return nil, false
	}

	gated := h.gate.Filter(r.Context(), filter, candidates)
	return gated, true
}

func writeRetrievalJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
