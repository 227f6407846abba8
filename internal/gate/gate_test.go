package gate_test

import (
	"context"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/morannon-ai/morannon/internal/audit"
	"github.com/morannon-ai/morannon/internal/auth"
	"github.com/morannon-ai/morannon/internal/corpus"
	"github.com/morannon-ai/morannon/internal/gate"
	"github.com/morannon-ai/morannon/internal/policy"
)

type captureLogger struct {
	mu     sync.Mutex
	events []audit.Event
}

func (l *captureLogger) Log(_ context.Context, event audit.Event) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.events = append(l.events, event)
}

func (l *captureLogger) Close() error { return nil }

func (l *captureLogger) byAction(action string) []audit.Event {
	l.mu.Lock()
	defer l.mu.Unlock()
	var out []audit.Event
	for _, e := range l.events {
		if e.Action == action {
			out = append(out, e)
		}
	}
	return out
}

func chunk(classification policy.Classification, tags ...string) corpus.Chunk {
	return corpus.Chunk{
		ID:             uuid.New(),
		DocumentID:     uuid.New(),
		Text:           "text",
		SecurityTags:   tags,
		Classification: classification,
	}
}

func buildFilter(t *testing.T, principal *auth.Principal) policy.AccessFilter {
	t.Helper()
	snap, err := policy.NewSnapshot("test-1",
		map[string]string{
			"hr.admin":       "employee",
			"finance.viewer": "employee",
			"employee":       "public",
			"public":         "",
		},
		map[string]policy.Classification{
			"hr.admin":       policy.Confidential,
			"finance.viewer": policy.Internal,
			"employee":       policy.Internal,
			"public":         policy.Public,
		},
	)
	require.NoError(t, err)
	engine := policy.NewEngine(snap)
	return policy.NewBuilder(engine, audit.NopLogger{}).Build(context.Background(), principal)
}

func TestAllows_ClassificationCeiling(t *testing.T) {
	filter := buildFilter(t, &auth.Principal{
		Subject: "bob", Roles: []string{"employee"}, Tenant: "acme",
	})

	ok, _ := gate.Allows(&filter, &corpus.Chunk{Classification: policy.Internal, SecurityTags: []string{"role:employee", "tenant:acme"}})
	assert.True(t, ok)

	denied, reason := gate.Allows(&filter, &corpus.Chunk{Classification: policy.Confidential, SecurityTags: []string{"role:employee", "tenant:acme"}})
	assert.False(t, denied)
	assert.Contains(t, reason, "ceiling")
}

func TestAllows_UntaggedChunkNeedsOnlyCeiling(t *testing.T) {
	filter := buildFilter(t, &auth.Principal{Subject: "anon"})

	ok, _ := gate.Allows(&filter, &corpus.Chunk{Classification: policy.Public})
	assert.True(t, ok)

	denied, _ := gate.Allows(&filter, &corpus.Chunk{Classification: policy.Internal})
	assert.False(t, denied)
}

func TestAllows_RoleTagsRequireOneMatch(t *testing.T) {
	filter := buildFilter(t, &auth.Principal{
		Subject: "bob", Roles: []string{"finance.viewer"}, Tenant: "acme",
	})

	// Any one matching role tag is enough.
	ok, _ := gate.Allows(&filter, &corpus.Chunk{
		Classification: policy.Internal,
		SecurityTags:   []string{"role:hr.admin", "role:finance.viewer", "tenant:acme"},
	})
	assert.True(t, ok)

	denied, reason := gate.Allows(&filter, &corpus.Chunk{
		Classification: policy.Internal,
		SecurityTags:   []string{"role:hr.admin", "tenant:acme"},
	})
	assert.False(t, denied)
	assert.Contains(t, reason, "role")
}

func TestAllows_TenantIsolationAndsWithRoleCheck(t *testing.T) {
	filter := buildFilter(t, &auth.Principal{
		Subject: "bob", Roles: []string{"employee"}, Tenant: "acme",
	})

	// Matching role tag does not excuse a foreign tenant tag.
	denied, reason := gate.Allows(&filter, &corpus.Chunk{
		Classification: policy.Internal,
		SecurityTags:   []string{"role:employee", "tenant:globex"},
	})
	assert.False(t, denied)
	assert.Contains(t, reason, "tenant")
}

func TestAllows_NoTenantDeniedTenantScopedChunks(t *testing.T) {
	filter := buildFilter(t, &auth.Principal{Subject: "bob", Roles: []string{"employee"}})

	denied, _ := gate.Allows(&filter, &corpus.Chunk{
		Classification: policy.Internal,
		SecurityTags:   []string{"role:employee", "tenant:acme"},
	})
	assert.False(t, denied)
}

func TestAllows_MalformedTagDenies(t *testing.T) {
	filter := buildFilter(t, &auth.Principal{
		Subject: "bob", Roles: []string{"employee"}, Tenant: "acme",
	})

	for _, tag := range []string{"owner:bob", "role:", ""} {
		denied, reason := gate.Allows(&filter, &corpus.Chunk{
			Classification: policy.Public,
			SecurityTags:   []string{tag},
		})
		assert.False(t, denied, "tag %q", tag)
		assert.Contains(t, reason, "malformed", "tag %q", tag)
	}
}

func TestAllows_HRConfidentialScenario(t *testing.T) {
	hrChunk := corpus.Chunk{
		Classification: policy.Confidential,
		SecurityTags:   []string{"role:hr.admin", "tenant:acme"},
	}

	withStepUp := buildFilter(t, &auth.Principal{
		Subject: "alice", Roles: []string{"hr.admin"}, Tenant: "acme", StepUp: true,
	})
	ok, _ := gate.Allows(&withStepUp, &hrChunk)
	assert.True(t, ok)

	// Same roles without step-up: ceiling drops to internal.
	withoutStepUp := buildFilter(t, &auth.Principal{
		Subject: "alice", Roles: []string{"hr.admin"}, Tenant: "acme",
	})
	denied, reason := gate.Allows(&withoutStepUp, &hrChunk)
	assert.False(t, denied)
	assert.Contains(t, reason, "ceiling")
}

func TestGate_FilterPreservesOrderAndIsIdempotent(t *testing.T) {
	filter := buildFilter(t, &auth.Principal{
		Subject: "bob", Roles: []string{"employee"}, Tenant: "acme",
	})

	candidates := []corpus.Chunk{
		chunk(policy.Public),
		chunk(policy.Confidential, "role:employee", "tenant:acme"),
		chunk(policy.Internal, "role:employee", "tenant:acme"),
		chunk(policy.Internal, "role:hr.admin", "tenant:acme"),
		chunk(policy.Public, "tenant:globex"),
	}

	g := gate.New(audit.NopLogger{})
	once := g.Filter(context.Background(), filter, candidates)
	require.Len(t, once, 2)
	assert.Equal(t, candidates[0].ID, once[0].ID)
	assert.Equal(t, candidates[2].ID, once[1].ID)

	twice := g.Filter(context.Background(), filter, once)
	assert.Equal(t, once, twice)
}

func TestGate_FilterEmptyCandidates(t *testing.T) {
	filter := buildFilter(t, &auth.Principal{Subject: "bob", Roles: []string{"employee"}, Tenant: "acme"})

	g := gate.New(audit.NopLogger{})
	assert.Empty(t, g.Filter(context.Background(), filter, nil))
}

func TestGate_FilterAuditsDenialsIndividually(t *testing.T) {
	logger := &captureLogger{}
	filter := buildFilter(t, &auth.Principal{
		Subject: "bob", Roles: []string{"employee"}, Tenant: "acme",
	})

	deniedChunk := chunk(policy.Internal, "role:hr.admin", "tenant:acme")
	candidates := []corpus.Chunk{
		chunk(policy.Internal, "role:employee", "tenant:acme"),
		deniedChunk,
	}

	gate.New(logger).Filter(context.Background(), filter, candidates)

	denials := logger.byAction(audit.ActionGateChunkDenied)
	require.Len(t, denials, 1)
	assert.Equal(t, deniedChunk.ID.String(), denials[0].ChunkID)
	assert.Equal(t, "bob", denials[0].Subject)
	assert.Equal(t, audit.DecisionDeny, denials[0].Decision)
	assert.NotEmpty(t, denials[0].Reason)

	summaries := logger.byAction(audit.ActionGateFiltered)
	require.Len(t, summaries, 1)
	assert.Equal(t, 2, summaries[0].Metadata[audit.MetadataCandidateCount])
	assert.Equal(t, 1, summaries[0].Metadata[audit.MetadataAllowedCount])
}

func TestGate_TenantIsolationBetweenTenants(t *testing.T) {
	acmeChunk := chunk(policy.Internal, "role:employee", "tenant:acme")
	globexChunk := chunk(policy.Internal, "role:employee", "tenant:globex")
	candidates := []corpus.Chunk{acmeChunk, globexChunk}

	g := gate.New(audit.NopLogger{})

	acme := buildFilter(t, &auth.Principal{Subject: "a", Roles: []string{"employee"}, Tenant: "acme"})
	got := g.Filter(context.Background(), acme, candidates)
	require.Len(t, got, 1)
	assert.Equal(t, acmeChunk.ID, got[0].ID)

	globex := buildFilter(t, &auth.Principal{Subject: "g", Roles: []string{"employee"}, Tenant: "globex"})
	got = g.Filter(context.Background(), globex, candidates)
	require.Len(t, got, 1)
	assert.Equal(t, globexChunk.ID, got[0].ID)
}
