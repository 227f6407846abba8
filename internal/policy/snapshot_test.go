package policy_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/morannon-ai/morannon/internal/auth"
	"github.com/morannon-ai/morannon/internal/policy"
)

func testSnapshot(t *testing.T) *policy.Snapshot {
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
	return snap
}

func TestSnapshot_ResolveCeilingIsMaxOverRoles(t *testing.T) {
	snap := testSnapshot(t)

	res := snap.Resolve([]string{"employee", "finance.viewer", "public"}, &auth.Principal{
		Subject: "carol", Tenant: "acme",
	})
	assert.Equal(t, policy.Internal, res.MaxClassification)
}

func TestSnapshot_ConfidentialRequiresStepUp(t *testing.T) {
	snap := testSnapshot(t)
	roles := snap.Expand([]string{"hr.admin"})

	withStepUp := snap.Resolve(roles, &auth.Principal{Subject: "alice", Tenant: "acme", StepUp: true})
	assert.Equal(t, policy.Confidential, withStepUp.MaxClassification)

	withoutStepUp := snap.Resolve(roles, &auth.Principal{Subject: "alice", Tenant: "acme"})
	assert.Equal(t, policy.Internal, withoutStepUp.MaxClassification)
}

func TestSnapshot_UnknownRolesResolvePublic(t *testing.T) {
	snap := testSnapshot(t)

	res := snap.Resolve([]string{"ghost"}, &auth.Principal{Subject: "eve"})
	assert.Equal(t, policy.Public, res.MaxClassification)
	assert.Equal(t, []string{"role:ghost"}, res.AllowTags)
}

func TestSnapshot_NoRolesNoTenant(t *testing.T) {
	snap := testSnapshot(t)

	res := snap.Resolve(nil, &auth.Principal{Subject: "anon"})
	assert.Equal(t, policy.Public, res.MaxClassification)
	assert.Empty(t, res.AllowTags)
}

func TestSnapshot_TenantTagOnlyWhenPresent(t *testing.T) {
	snap := testSnapshot(t)

	withTenant := snap.Resolve([]string{"employee"}, &auth.Principal{Subject: "bob", Tenant: "acme"})
	assert.Contains(t, withTenant.AllowTags, "tenant:acme")

	withoutTenant := snap.Resolve([]string{"employee"}, &auth.Principal{Subject: "bob"})
	assert.NotContains(t, withoutTenant.AllowTags, "tenant:")
	assert.Equal(t, []string{"role:employee"}, withoutTenant.AllowTags)
}

func TestSnapshot_AllowTagsSorted(t *testing.T) {
	snap := testSnapshot(t)

	res := snap.Resolve([]string{"hr.admin", "employee", "public"}, &auth.Principal{Subject: "alice", Tenant: "acme"})
	assert.Equal(t, []string{
		"role:employee",
		"role:hr.admin",
		"role:public",
		"tenant:acme",
	}, res.AllowTags)
}

func TestSnapshot_CeilingDefaultsPublic(t *testing.T) {
	snap := testSnapshot(t)
	assert.Equal(t, policy.Public, snap.Ceiling("missing"))
	assert.Equal(t, policy.Confidential, snap.Ceiling("hr.admin"))
}
