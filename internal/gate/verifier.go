package gate

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/morannon-ai/morannon/internal/audit"
	"github.com/morannon-ai/morannon/internal/corpus"
	"github.com/morannon-ai/morannon/internal/policy"
)

// DeniedError identifies the cited chunk that failed verification.
// Callers must reject the whole answer on any violation — the structured
// detail is for the audit trail, not for the response body.
type DeniedError struct {
	ChunkID uuid.UUID
	Reason  string
}

func (e *DeniedError) Error() string {
	return fmt.Sprintf("citation denied: chunk %s: %s", e.ChunkID, e.Reason)
}

// Verifier re-applies the gate predicate to the chunks an answer
// actually cites. The generation stage between gate and verifier is an
// external, less-trusted collaborator; this is the last line of defense
// before an answer leaves the system.
type Verifier struct {
	audit audit.Logger
}

func NewVerifier(auditLogger audit.Logger) *Verifier {
	return &Verifier{audit: auditLogger}
}

// Verify checks every cited chunk against the filter. The first
// violation fails the whole set — no partial or redacted result.
func (v *Verifier) Verify(ctx context.Context, filter policy.AccessFilter, cited []corpus.Chunk) error {
	for i := range cited {
		ok, reason := Allows(&filter, &cited[i])
		if ok {
			continue
		}
		v.audit.Log(ctx, audit.Event{
			Action:            audit.ActionCitationDenied,
			Subject:           filter.Subject,
			Tenant:            filter.Tenant,
			EffectiveRoles:    filter.EffectiveRoles,
			MaxClassification: filter.MaxClassification.String(),
			PolicyVersion:     filter.PolicyVersion,
			ChunkID:           cited[i].ID.String(),
			Decision:          audit.DecisionDeny,
			Reason:            reason,
		})
		return &DeniedError{ChunkID: cited[i].ID, Reason: reason}
	}

	v.audit.Log(ctx, audit.Event{
		Action:            audit.ActionCitationVerified,
		Subject:           filter.Subject,
		Tenant:            filter.Tenant,
		EffectiveRoles:    filter.EffectiveRoles,
		MaxClassification: filter.MaxClassification.String(),
		PolicyVersion:     filter.PolicyVersion,
		Decision:          audit.DecisionAllow,
		Metadata:          map[string]any{audit.MetadataAllowedCount: len(cited)},
	})
	return nil
}
