package retrieval

import (
	"context"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/morannon-ai/morannon/internal/corpus"
	"github.com/morannon-ai/morannon/internal/policy"
)

// Searcher is the external vector-search collaborator. Implementations
// may push the access filter down as a pre-filter; the retrieval gate
// re-applies the full predicate to whatever comes back either way.
type Searcher interface {
	Search(ctx context.Context, query string, filter policy.AccessFilter, limit int) ([]corpus.Chunk, error)
}

// Answer is a generated answer plus the chunks it cites. Citations are
// the verifier's input — a generator that cites beyond its context is
// exactly the failure mode the verifier exists for.
type Answer struct {
	Text      string         `json:"text"`
	Citations []corpus.Chunk `json:"-"`
}

// Generator is the external answer-generation collaborator (an LLM call
// in production deployments).
type Generator interface {
	Generate(ctx context.Context, query string, context []corpus.Chunk) (*Answer, error)
}

// NopSearcher returns no candidates. Used when no search backend is
// configured (the service still answers, with nothing to cite).
type NopSearcher struct{}

func (NopSearcher) Search(context.Context, string, policy.AccessFilter, int) ([]corpus.Chunk, error) {
	return nil, nil
}

// StubGenerator produces an extractive answer from the gated chunks,
// citing all of them. The default when no LLM backend is configured.
type StubGenerator struct{}

func (StubGenerator) Generate(_ context.Context, query string, chunks []corpus.Chunk) (*Answer, error) {
	if len(chunks) == 0 {
		return &Answer{Text: fmt.Sprintf("No accessible sources found for %q.", query)}, nil
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Sources for %q:\n", query)
	for _, c := range chunks {
		b.WriteString("- ")
		b.WriteString(excerpt(c.Text, 120))
		b.WriteString("\n")
	}
	return &Answer{Text: b.String(), Citations: chunks}, nil
}

// excerpt truncates to at most max bytes without splitting a rune.
func excerpt(s string, max int) string {
	if len(s) <= max {
		return s
	}
	cut := max
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut] + "…"
}
