package policy

import "strings"

// Security tags are opaque strings in one of two grammars: "role:<roleId>"
// or "tenant:<tenantId>". They are derived at ingestion time and matched
// verbatim at request time; anything outside the grammar matches nothing.

// TagKind identifies which grammar a security tag uses.
type TagKind int

const (
	TagUnknown TagKind = iota
	TagRole
	TagTenant
)

const (
	rolePrefix   = "role:"
	tenantPrefix = "tenant:"
)

// RoleTag builds the security tag for a role id.
func RoleTag(role string) string {
	return rolePrefix + role
}

// TenantTag builds the security tag for a tenant id.
func TenantTag(tenant string) string {
	return tenantPrefix + tenant
}

// ParseTag classifies a security tag and extracts its value. Malformed
// tags (empty value, unrecognized prefix) come back as TagUnknown — the
// gate treats those as non-matching, never as wildcards.
func ParseTag(tag string) (TagKind, string) {
	if v, ok := strings.CutPrefix(tag, rolePrefix); ok && v != "" {
		return TagRole, v
	}
	if v, ok := strings.CutPrefix(tag, tenantPrefix); ok && v != "" {
		return TagTenant, v
	}
	return TagUnknown, ""
}
