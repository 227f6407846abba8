package audit

import "context"

// Event records one access-control decision for compliance review.
// Filter builds, gate decisions, citation checks, and ingestion outcomes
// all flow through the same shape.
type Event struct {
	Subject           string // principal subject ("" for system/ingestion events)
	Tenant            string
	Action            string // e.g. "gate.chunk_denied"
	EffectiveRoles    []string
	MaxClassification string
	PolicyVersion     string
	ChunkID           string // set on per-chunk decisions
	Decision          string // "allow" or "deny"
	Reason            string // denial reason, empty on allow
	Metadata          map[string]any
}

const (
	DecisionAllow = "allow"
	DecisionDeny  = "deny"
)

const (
	ActionFilterBuilt      = "filter.built"
	ActionGateFiltered     = "gate.filtered"
	ActionGateChunkDenied  = "gate.chunk_denied"
	ActionCitationVerified = "citation.verified"
	ActionCitationDenied   = "citation.denied"

	ActionDocumentTagged   = "ingest.document_tagged"
	ActionDocumentRejected = "ingest.document_rejected"

	ActionPolicyReloaded     = "policy.reloaded"
	ActionPolicyReloadFailed = "policy.reload_failed"
	ActionRouteDenied        = "route.denied"
)

const (
	MetadataCandidateCount = "candidate_count"
	MetadataAllowedCount   = "allowed_count"
	MetadataDocumentID     = "document_id"
	MetadataTag            = "tag"
)

// Logger is the audit logging interface. Log is fire-and-forget.
type Logger interface {
	Log(ctx context.Context, event Event)
	Close() error
}

// NopLogger discards events, for testing and when audit persistence is
// not configured.
type NopLogger struct{}

func (NopLogger) Log(context.Context, Event) {}
func (NopLogger) Close() error               { return nil }
