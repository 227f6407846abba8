package policy

import (
	"context"

	"github.com/morannon-ai/morannon/internal/audit"
	"github.com/morannon-ai/morannon/internal/auth"
)

// AccessFilter is the per-request compiled policy: the allow-tag set and
// classification ceiling the retrieval gate and citation verifier apply.
// It also carries the inputs that produced it (subject, effective roles,
// policy version) so every downstream decision is audit-reproducible.
// Built fresh per request, never cached across principals, immutable
// once built.
type AccessFilter struct {
	Subject           string         `json:"subject"`
	Tenant            string         `json:"tenant,omitempty"`
	EffectiveRoles    []string       `json:"effective_roles"`
	AllowTags         []string       `json:"allow_tags"`
	MaxClassification Classification `json:"max_classification"`
	PolicyVersion     string         `json:"policy_version"`
}

// HasTag reports whether the filter's allow-list contains the tag.
// Allow-tag sets are small (roles plus one tenant), so a linear scan
// beats a per-request map allocation.
func (f *AccessFilter) HasTag(tag string) bool {
	for _, t := range f.AllowTags {
		if t == tag {
			return true
		}
	}
	return false
}

// Builder compiles a Principal into an AccessFilter against the current
// policy snapshot. Pure composition of hierarchy expansion and table
// resolution: the same principal and snapshot version always produce the
// same filter.
type Builder struct {
	engine *Engine
	audit  audit.Logger
}

// NewBuilder creates a Builder. The audit logger may be audit.NopLogger
// but not nil — filter builds are a required audit event.
func NewBuilder(engine *Engine, auditLogger audit.Logger) *Builder {
	return &Builder{engine: engine, audit: auditLogger}
}

// Build compiles the filter for a principal.
//
// A nil principal, or one with no roles and no tenant, still yields a
// valid filter — one that matches nothing beyond untagged public content.
// Absence of identity data degrades to less access, never to an error.
func (b *Builder) Build(ctx context.Context, principal *auth.Principal) AccessFilter {
	snap := b.engine.Current()

	var declared []string
	var subject, tenant string
	if principal != nil {
		declared = principal.Roles
		subject = principal.Subject
		tenant = principal.Tenant
	}

	effective := snap.Expand(declared)
	res := snap.Resolve(effective, principal)

	filter := AccessFilter{
		Subject:           subject,
		Tenant:            tenant,
		EffectiveRoles:    effective,
		AllowTags:         res.AllowTags,
		MaxClassification: res.MaxClassification,
		PolicyVersion:     snap.Version(),
	}

	b.audit.Log(ctx, audit.Event{
		Action:            audit.ActionFilterBuilt,
		Subject:           subject,
		Tenant:            tenant,
		EffectiveRoles:    effective,
		MaxClassification: res.MaxClassification.String(),
		PolicyVersion:     snap.Version(),
		Decision:          audit.DecisionAllow,
	})

	return filter
}
