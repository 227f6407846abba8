package corpus

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/morannon-ai/morannon/internal/audit"
	"github.com/morannon-ai/morannon/internal/policy"
)

var (
	ErrMissingTenant = errors.New("document tenant is required")
	// ErrRoleBelowCeiling rejects a confidential document that lists an
	// allowed role whose policy ceiling cannot reach confidential. Such a
	// document would be either unreachable or over-broad depending on how
	// the mismatch resolved, so it is an ingestion-time configuration
	// error, caught here rather than at request time.
	ErrRoleBelowCeiling = errors.New("allowed role ceiling below document classification")
)

// Tagger derives a document's denormalized security tags from its
// declared classification, allowed roles, and tenant.
type Tagger struct {
	engine *policy.Engine
	audit  audit.Logger
}

func NewTagger(engine *policy.Engine, auditLogger audit.Logger) *Tagger {
	return &Tagger{engine: engine, audit: auditLogger}
}

// Tag produces the security tag set: role:<r> for each allowed role,
// plus tenant:<t>. The result is sorted and deduplicated — tags are
// derived data and must come out identical for identical inputs.
func (t *Tagger) Tag(ctx context.Context, classification policy.Classification, allowedRoles []string, tenant string) ([]string, error) {
	if tenant == "" {
		t.logRejected(ctx, tenant, classification, ErrMissingTenant.Error())
		return nil, ErrMissingTenant
	}

	snap := t.engine.Current()
	if classification == policy.Confidential {
		for _, role := range allowedRoles {
			if roleCeiling(snap, role) < policy.Confidential {
				reason := fmt.Sprintf("role %q ceiling %s", role, roleCeiling(snap, role))
				t.logRejected(ctx, tenant, classification, reason)
				return nil, fmt.Errorf("%w: %s", ErrRoleBelowCeiling, reason)
			}
		}
	}

	set := make(map[string]bool, len(allowedRoles)+1)
	for _, role := range allowedRoles {
		if role == "" {
			continue
		}
		set[policy.RoleTag(role)] = true
	}
	set[policy.TenantTag(tenant)] = true

	tags := make([]string, 0, len(set))
	for tag := range set {
		tags = append(tags, tag)
	}
	sort.Strings(tags)

	t.audit.Log(ctx, audit.Event{
		Action:            audit.ActionDocumentTagged,
		Tenant:            tenant,
		MaxClassification: classification.String(),
		PolicyVersion:     snap.Version(),
		Decision:          audit.DecisionAllow,
		Metadata:          map[string]any{"tags": tags},
	})

	return tags, nil
}

// roleCeiling is the classification a single role can reach: the highest
// ceiling across the role and its inherited ancestors.
func roleCeiling(snap *policy.Snapshot, role string) policy.Classification {
	ceiling := policy.Public
	for _, r := range snap.Expand([]string{role}) {
		if c := snap.Ceiling(r); c > ceiling {
			ceiling = c
		}
	}
	return ceiling
}

func (t *Tagger) logRejected(ctx context.Context, tenant string, classification policy.Classification, reason string) {
	t.audit.Log(ctx, audit.Event{
		Action:            audit.ActionDocumentRejected,
		Tenant:            tenant,
		MaxClassification: classification.String(),
		PolicyVersion:     t.engine.Current().Version(),
		Decision:          audit.DecisionDeny,
		Reason:            reason,
	})
}
