package corpus

import (
	"time"

	"github.com/google/uuid"

	"github.com/morannon-ai/morannon/internal/policy"
)

// Document is an indexed source document. Security tags and
// classification are fixed at ingestion time; re-indexing produces a new
// version rather than mutating an existing row.
type Document struct {
	ID             uuid.UUID             `json:"id"`
	VersionID      uuid.UUID             `json:"version_id"`
	URI            string                `json:"uri"`
	Owner          string                `json:"owner,omitempty"`
	Labels         []string              `json:"labels,omitempty"`
	Tenant         string                `json:"tenant"`
	SecurityTags   []string              `json:"security_tags"`
	Classification policy.Classification `json:"classification"`
	Hash           string                `json:"hash"`
	CreatedAt      time.Time             `json:"created_at"`
}

// Chunk is a retrievable slice of a document. It inherits security tags
// and classification verbatim from its parent document — the engine
// relies on that inheritance but the chunking pipeline enforces it.
type Chunk struct {
	ID             uuid.UUID             `json:"id"`
	DocumentID     uuid.UUID             `json:"document_id"`
	VersionID      uuid.UUID             `json:"version_id"`
	Text           string                `json:"text"`
	SpanStart      int                   `json:"span_start"`
	SpanEnd        int                   `json:"span_end"`
	SecurityTags   []string              `json:"security_tags"`
	Classification policy.Classification `json:"classification"`
}
