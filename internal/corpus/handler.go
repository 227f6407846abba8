package corpus

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/google/uuid"

	"github.com/morannon-ai/morannon/internal/policy"
)

// Handler serves the ingestion surface used by the (external) document
// pipeline to register tagged documents.
type Handler struct {
	tagger *Tagger
	store  *Store
}

func NewHandler(tagger *Tagger, store *Store) *Handler {
	return &Handler{tagger: tagger, store: store}
}

type chunkRequest struct {
	Text      string `json:"text"`
	SpanStart int    `json:"span_start"`
	SpanEnd   int    `json:"span_end"`
}

type createDocumentRequest struct {
	URI            string         `json:"uri"`
	Owner          string         `json:"owner"`
	Labels         []string       `json:"labels"`
	Tenant         string         `json:"tenant"`
	Classification string         `json:"classification"`
	AllowedRoles   []string       `json:"allowed_roles"`
	Chunks         []chunkRequest `json:"chunks"`
}

// HandleCreate registers a document: derives its security tags, then
// persists the document and its chunks.
// POST /api/v1/documents
func (h *Handler) HandleCreate(w http.ResponseWriter, r *http.Request) {
	var req createDocumentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.URI == "" {
		writeError(w, http.StatusBadRequest, "uri is required")
		return
	}
	if len(req.Chunks) == 0 {
		writeError(w, http.StatusBadRequest, "at least one chunk is required")
		return
	}

	classification, err := policy.ParseClassification(req.Classification)
	if err != nil {
		writeError(w, http.StatusUnprocessableEntity, err.Error())
		return
	}

	tags, err := h.tagger.Tag(r.Context(), classification, req.AllowedRoles, req.Tenant)
	if err != nil {
		switch {
		case errors.Is(err, ErrMissingTenant), errors.Is(err, ErrRoleBelowCeiling):
			writeError(w, http.StatusUnprocessableEntity, err.Error())
		default:
			writeError(w, http.StatusInternalServerError, "tagging failed")
		}
		return
	}

	hash := sha256.New()
	chunks := make([]Chunk, len(req.Chunks))
	for i, c := range req.Chunks {
		hash.Write([]byte(c.Text))
		chunks[i] = Chunk{
			ID:        uuid.New(),
			Text:      c.Text,
			SpanStart: c.SpanStart,
			SpanEnd:   c.SpanEnd,
		}
	}

	doc := &Document{
		ID:             uuid.New(),
		VersionID:      uuid.New(),
		URI:            req.URI,
		Owner:          req.Owner,
		Labels:         req.Labels,
		Tenant:         req.Tenant,
		SecurityTags:   tags,
		Classification: classification,
		Hash:           hex.EncodeToString(hash.Sum(nil)),
	}

	if h.store == nil {
		writeError(w, http.StatusServiceUnavailable, "document store not configured")
		return
	}
	if err := h.store.CreateDocument(r.Context(), doc, chunks); err != nil {
		writeError(w, http.StatusInternalServerError, "storing document failed")
		return
	}

	chunkIDs := make([]uuid.UUID, len(chunks))
	for i, c := range chunks {
		chunkIDs[i] = c.ID
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	_ = json.NewEncoder(w).Encode(map[string]any{
		"document":  doc,
		"chunk_ids": chunkIDs,
	})
}

func writeError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": message})
}
