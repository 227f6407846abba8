package policy

import (
	"sort"

	"github.com/morannon-ai/morannon/internal/auth"
)

// Snapshot is one immutable version of the loaded policy: the role
// inheritance forest plus the role→ceiling table. Request handling only
// ever sees a *Snapshot, so a reload can swap the whole thing atomically
// without racing in-flight evaluations.
type Snapshot struct {
	version   string
	hierarchy *Hierarchy
	ceilings  map[string]Classification
}

// Resolution is the outcome of resolving a principal against the policy
// table: the classification ceiling plus the allow-tags the retrieval
// gate matches against.
type Resolution struct {
	MaxClassification Classification
	AllowTags         []string
}

// Version identifies this snapshot for audit correlation.
func (s *Snapshot) Version() string {
	return s.version
}

// Expand expands declared roles through the snapshot's hierarchy.
func (s *Snapshot) Expand(declared []string) []string {
	return s.hierarchy.Expand(declared)
}

// Ceiling returns the classification ceiling for a single role. Roles
// absent from the table get Public — an unconfigured role never unlocks
// anything above the lowest tier.
func (s *Snapshot) Ceiling(role string) Classification {
	return s.ceilings[role]
}

// Resolve maps an effective role set plus the principal's context to a
// classification ceiling and allow-tag set.
//
// The ceiling is the highest level any effective role reaches in the
// table, downgraded to Internal when the principal lacks a step-up
// assertion: confidential access requires step-up regardless of role.
// Allow-tags are role:<r> for every effective role, plus tenant:<t> when
// the principal carries a tenant — a principal without a tenant gets no
// tenant tag and is therefore denied every tenant-scoped document.
func (s *Snapshot) Resolve(effectiveRoles []string, principal *auth.Principal) Resolution {
	ceiling := Public
	tags := make([]string, 0, len(effectiveRoles)+1)
	for _, role := range effectiveRoles {
		tags = append(tags, RoleTag(role))
		if c := s.ceilings[role]; c > ceiling {
			ceiling = c
		}
	}

	if ceiling == Confidential && (principal == nil || !principal.StepUp) {
		ceiling = Internal
	}

	if principal != nil && principal.Tenant != "" {
		tags = append(tags, TenantTag(principal.Tenant))
	}

	sort.Strings(tags)
	return Resolution{MaxClassification: ceiling, AllowTags: tags}
}

// RoleCeilings returns a copy of the role→ceiling table, keyed by role,
// for the policy inspection endpoint.
func (s *Snapshot) RoleCeilings() map[string]string {
	out := make(map[string]string, len(s.ceilings))
	for role, c := range s.ceilings {
		out[role] = c.String()
	}
	return out
}
