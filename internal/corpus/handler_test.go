package corpus_test

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/morannon-ai/morannon/internal/audit"
	"github.com/morannon-ai/morannon/internal/corpus"
)

func createDocumentRequest(t *testing.T, body string) *httptest.ResponseRecorder {
	t.Helper()
	handler := corpus.NewHandler(corpus.NewTagger(testEngine(t), audit.NopLogger{}), nil)
	req := httptest.NewRequest(http.MethodPost, "/api/v1/documents", strings.NewReader(body))
	rec := httptest.NewRecorder()
	handler.HandleCreate(rec, req)
	return rec
}

func TestHandleCreate_RejectsBadJSON(t *testing.T) {
	rec := createDocumentRequest(t, "{not json")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHandleCreate_RequiresURI(t *testing.T) {
	rec := createDocumentRequest(t, `{
		"tenant": "acme",
		"classification": "internal",
		"chunks": [{"text": "hello"}]
	}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "uri")
}

func TestHandleCreate_RequiresChunks(t *testing.T) {
	rec := createDocumentRequest(t, `{
		"uri": "s3://docs/handbook.pdf",
		"tenant": "acme",
		"classification": "internal"
	}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "chunk")
}

func TestHandleCreate_RejectsUnknownClassification(t *testing.T) {
	rec := createDocumentRequest(t, `{
		"uri": "s3://docs/handbook.pdf",
		"tenant": "acme",
		"classification": "topsecret",
		"chunks": [{"text": "hello"}]
	}`)
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
}

func TestHandleCreate_RejectsMissingTenant(t *testing.T) {
	rec := createDocumentRequest(t, `{
		"uri": "s3://docs/handbook.pdf",
		"classification": "internal",
		"allowed_roles": ["employee"],
		"chunks": [{"text": "hello"}]
	}`)
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	assert.Contains(t, rec.Body.String(), "tenant")
}

func TestHandleCreate_RejectsIncapableRoleOnConfidential(t *testing.T) {
	rec := createDocumentRequest(t, `{
		"uri": "s3://docs/salaries.xlsx",
		"tenant": "acme",
		"classification": "confidential",
		"allowed_roles": ["finance.viewer"],
		"chunks": [{"text": "salary table"}]
	}`)
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	assert.Contains(t, rec.Body.String(), "ceiling")
}

func TestHandleCreate_WithoutStoreIs503(t *testing.T) {
	rec := createDocumentRequest(t, `{
		"uri": "s3://docs/handbook.pdf",
		"tenant": "acme",
		"classification": "internal",
		"allowed_roles": ["employee"],
		"chunks": [{"text": "hello", "span_start": 0, "span_end": 5}]
	}`)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}
