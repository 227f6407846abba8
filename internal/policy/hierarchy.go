package policy

import (
	"fmt"
	"sort"
)

// Hierarchy is the role inheritance forest: each role has at most one
// parent, roots have none. It is built once at load time and never
// mutated, so concurrent Expand calls need no locking.
type Hierarchy struct {
	parent map[string]string
}

// NewHierarchy validates parent links and builds a Hierarchy.
// Every parent must itself be a known role and following parent links
// must terminate — a cycle is a configuration error, fatal at load time.
func NewHierarchy(parents map[string]string) (*Hierarchy, error) {
	for role, parent := range parents {
		if parent == "" {
			continue
		}
		if _, ok := parents[parent]; !ok {
			return nil, fmt.Errorf("role %q inherits from unknown role %q", role, parent)
		}
		// Walk to a root; revisiting the start means a cycle.
		seen := map[string]bool{role: true}
		for cur := parent; cur != ""; cur = parents[cur] {
			if seen[cur] {
				return nil, fmt.Errorf("role inheritance cycle through %q", role)
			}
			seen[cur] = true
		}
	}

	cp := make(map[string]string, len(parents))
	for role, parent := range parents {
		cp[role] = parent
	}
	return &Hierarchy{parent: cp}, nil
}

// Expand returns the declared roles plus every ancestor reachable through
// inheritance, deduplicated and sorted. Roles not present in the hierarchy
// are retained verbatim but contribute no ancestors: an unknown role never
// grants extra privilege, and never fails the expansion either.
func (h *Hierarchy) Expand(declared []string) []string {
	set := make(map[string]bool, len(declared))
	for _, role := range declared {
		if role == "" {
			continue
		}
		set[role] = true
		if h == nil {
			continue
		}
		for cur := h.parent[role]; cur != ""; cur = h.parent[cur] {
			if set[cur] {
				break
			}
			set[cur] = true
		}
	}

	out := make([]string, 0, len(set))
	for role := range set {
		out = append(out, role)
	}
	sort.Strings(out)
	return out
}
