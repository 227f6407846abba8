package corpus

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/morannon-ai/morannon/internal/platform/database"
	"github.com/morannon-ai/morannon/internal/policy"
)

var ErrDocumentNotFound = errors.New("document not found")

// Store persists tagged documents and chunks. Rows are write-once: a
// re-index inserts a new version, nothing updates tags in place.
type Store struct {
	pool *database.Pool
}

func NewStore(pool *database.Pool) *Store {
	return &Store{pool: pool}
}

// CreateDocument inserts a document and its chunks in one transaction.
// Chunks receive the document's security tags and classification
// verbatim; callers supply only text and spans.
func (s *Store) CreateDocument(ctx context.Context, doc *Document, chunks []Chunk) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	err = tx.QueryRow(ctx,
		`INSERT INTO documents (id, version_id, uri, owner, labels, tenant, security_tags, classification, hash)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING created_at`,
		doc.ID, doc.VersionID, doc.URI, doc.Owner, doc.Labels, doc.Tenant,
		doc.SecurityTags, doc.Classification.String(), doc.Hash,
	).Scan(&doc.CreatedAt)
	if err != nil {
		return fmt.Errorf("inserting document: %w", err)
	}

	for i := range chunks {
		chunks[i].DocumentID = doc.ID
		chunks[i].VersionID = doc.VersionID
		chunks[i].SecurityTags = doc.SecurityTags
		chunks[i].Classification = doc.Classification

		_, err = tx.Exec(ctx,
			`INSERT INTO chunks (id, document_id, version_id, text, span_start, span_end, security_tags, classification)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
			chunks[i].ID, chunks[i].DocumentID, chunks[i].VersionID, chunks[i].Text,
			chunks[i].SpanStart, chunks[i].SpanEnd, chunks[i].SecurityTags,
			chunks[i].Classification.String(),
		)
		if err != nil {
			return fmt.Errorf("inserting chunk %d: %w", i, err)
		}
	}

	return tx.Commit(ctx)
}

// GetDocument loads the latest version of a document. Re-indexing
// inserts a new version under the same id, so older rows remain for
// audit reconstruction but are never served here.
func (s *Store) GetDocument(ctx context.Context, id uuid.UUID) (*Document, error) {
	var doc Document
	var classification string
	err := s.pool.QueryRow(ctx,
		`SELECT id, version_id, uri, owner, labels, tenant, security_tags, classification, hash, created_at
		FROM documents WHERE id = $1
		ORDER BY created_at DESC
		LIMIT 1`,
		id,
	).Scan(&doc.ID, &doc.VersionID, &doc.URI, &doc.Owner, &doc.Labels, &doc.Tenant,
		&doc.SecurityTags, &classification, &doc.Hash, &doc.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrDocumentNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("loading document: %w", err)
	}
	if doc.Classification, err = policy.ParseClassification(classification); err != nil {
		return nil, fmt.Errorf("document %s: %w", id, err)
	}
	return &doc, nil
}

// Search is the built-in keyword searcher: a plain-text match with the
// access filter pushed down as a SQL pre-filter. The retrieval gate
// re-applies the full predicate afterwards — the pushdown narrows the
// candidate set, it is not the enforcement point.
func (s *Store) Search(ctx context.Context, query string, filter policy.AccessFilter, limit int) ([]Chunk, error) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}

	// Levels at or below the caller's ceiling.
	levels := make([]string, 0, 3)
	for c := policy.Public; c <= filter.MaxClassification; c++ {
		levels = append(levels, c.String())
	}

	allowTags := filter.AllowTags
	if allowTags == nil {
		allowTags = []string{}
	}

	rows, err := s.pool.Query(ctx,
		`SELECT id, document_id, version_id, text, span_start, span_end, security_tags, classification
		FROM chunks
		WHERE text ILIKE '%' || $1 || '%'
		  AND classification = ANY($2::text[])
		  AND (security_tags && $3::text[]
		       OR NOT EXISTS (SELECT 1 FROM unnest(security_tags) t WHERE t LIKE 'role:%'))
		ORDER BY document_id, span_start
		LIMIT $4`,
		query, levels, allowTags, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("searching chunks: %w", err)
	}
	defer rows.Close()

	var chunks []Chunk
	for rows.Next() {
		var c Chunk
		var classification string
		if err := rows.Scan(&c.ID, &c.DocumentID, &c.VersionID, &c.Text,
			&c.SpanStart, &c.SpanEnd, &c.SecurityTags, &classification); err != nil {
			return nil, fmt.Errorf("scanning chunk: %w", err)
		}
		if c.Classification, err = policy.ParseClassification(classification); err != nil {
			return nil, fmt.Errorf("chunk %s: %w", c.ID, err)
		}
		chunks = append(chunks, c)
	}
	return chunks, rows.Err()
}
