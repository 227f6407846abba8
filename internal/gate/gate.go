// Package gate applies a compiled AccessFilter to candidate chunks.
// The gate runs after the (external) vector search and the verifier runs
// again on the chunks an answer actually cites — the same predicate,
// applied twice, because the generation stage between them is not
// trusted to preserve the first application.
package gate

import (
	"context"
	"fmt"

	"github.com/morannon-ai/morannon/internal/audit"
	"github.com/morannon-ai/morannon/internal/corpus"
	"github.com/morannon-ai/morannon/internal/policy"
)

// Allows reports whether the filter permits the chunk, with a denial
// reason suitable for audit. A chunk passes iff:
//
//  1. its classification is at or below the filter's ceiling,
//  2. it carries no role tags (public to any authenticated principal)
//     or at least one of its role tags is in the allow-list,
//  3. every tenant tag it carries is in the allow-list — tenant
//     isolation ANDs with the role check, it never substitutes for it.
//
// A tag outside the known grammars denies the chunk: a tag that cannot
// be interpreted cannot be matched, and unmatchable must mean closed.
func Allows(filter *policy.AccessFilter, chunk *corpus.Chunk) (bool, string) {
	if chunk.Classification > filter.MaxClassification {
		return false, fmt.Sprintf("classification %s exceeds ceiling %s",
			chunk.Classification, filter.MaxClassification)
	}

	var hasRoleTag, roleMatched bool
	for _, tag := range chunk.SecurityTags {
		kind, _ := policy.ParseTag(tag)
		switch kind {
		case policy.TagRole:
			hasRoleTag = true
			if filter.HasTag(tag) {
				roleMatched = true
			}
		case policy.TagTenant:
			if !filter.HasTag(tag) {
				return false, fmt.Sprintf("tenant isolation: %s not granted", tag)
			}
		default:
			return false, fmt.Sprintf("malformed security tag %q", tag)
		}
	}

	if hasRoleTag && !roleMatched {
		return false, "no role tag granted"
	}

	return true, ""
}

// Gate filters candidate chunks through an AccessFilter. Stateless per
// call; order of input is preserved.
type Gate struct {
	audit audit.Logger
}

func New(auditLogger audit.Logger) *Gate {
	return &Gate{audit: auditLogger}
}

// Filter returns the candidates the filter permits. Every denial is
// audited individually with its reason; allows are summarized in one
// event per call to bound audit volume.
func (g *Gate) Filter(ctx context.Context, filter policy.AccessFilter, candidates []corpus.Chunk) []corpus.Chunk {
	allowed := make([]corpus.Chunk, 0, len(candidates))
	for i := range candidates {
		ok, reason := Allows(&filter, &candidates[i])
		if !ok {
			g.audit.Log(ctx, audit.Event{
				Action:            audit.ActionGateChunkDenied,
				Subject:           filter.Subject,
				Tenant:            filter.Tenant,
				EffectiveRoles:    filter.EffectiveRoles,
				MaxClassification: filter.MaxClassification.String(),
				PolicyVersion:     filter.PolicyVersion,
				ChunkID:           candidates[i].ID.String(),
				Decision:          audit.DecisionDeny,
				Reason:            reason,
			})
			continue
		}
		allowed = append(allowed, candidates[i])
	}

	g.audit.Log(ctx, audit.Event{
		Action:            audit.ActionGateFiltered,
		Subject:           filter.Subject,
		Tenant:            filter.Tenant,
		EffectiveRoles:    filter.EffectiveRoles,
		MaxClassification: filter.MaxClassification.String(),
		PolicyVersion:     filter.PolicyVersion,
		Decision:          audit.DecisionAllow,
		Metadata: map[string]any{
			audit.MetadataCandidateCount: len(candidates),
			audit.MetadataAllowedCount:   len(allowed),
		},
	})

	return allowed
}
