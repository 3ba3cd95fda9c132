package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAuthContext_String(t *testing.T) {
	assert.Equal(t, "central", CentralContext().String())
	assert.Equal(t, "tenant:acme", TenantContext("acme").String())
}

func TestParseAuthContext(t *testing.T) {
	tests := []struct {
		input   string
		want    AuthContext
		wantErr bool
	}{
		{input: "central", want: CentralContext()},
		{input: "tenant:acme", want: TenantContext("acme")},
		{input: "tenant:", wantErr: true},
		{input: "", wantErr: true},
		{input: "global", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, err := ParseAuthContext(tt.input)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestAuthContext_AbilitiesAreNamespaced(t *testing.T) {
	central := CentralContext().Abilities(AbilityUsersRead, AbilityUsersWrite)
	assert.Equal(t, []string{"central:users.read", "central:users.write"}, central)

	tenant := TenantContext("acme").Abilities(AbilityUsersRead)
	assert.Equal(t, []string{"tenant:acme:users.read"}, tenant)
}

func TestAuthContext_GrantsWithinContext(t *testing.T) {
	ctx := TenantContext("acme")
	abilities := ctx.Abilities(AbilityUsersRead)

	assert.True(t, ctx.Grants(abilities, AbilityUsersRead))
	assert.False(t, ctx.Grants(abilities, AbilityUsersWrite))
}

func TestAuthContext_GrantsNeverCrossesContexts(t *testing.T) {
	centralAbilities := CentralContext().Abilities(AbilityAll)

	// A central wildcard grants everything centrally and nothing anywhere
	// else, including other tenants.
	assert.True(t, CentralContext().Grants(centralAbilities, AbilityUsersWrite))
	assert.False(t, TenantContext("acme").Grants(centralAbilities, AbilityUsersWrite))

	acmeAbilities := TenantContext("acme").Abilities(AbilityAll)
	assert.True(t, TenantContext("acme").Grants(acmeAbilities, AbilityAuditRead))
	assert.False(t, TenantContext("globex").Grants(acmeAbilities, AbilityAuditRead))
	assert.False(t, CentralContext().Grants(acmeAbilities, AbilityAuditRead))
}

func TestRoleAbilities(t *testing.T) {
	assert.Equal(t, []string{AbilityAll}, RoleAbilities("admin"))
	assert.Equal(t, []string{AbilityUsersRead, AbilityUsersWrite}, RoleAbilities("user"))
	assert.Equal(t, []string{AbilityUsersRead, AbilityUsersWrite}, RoleAbilities(""))
}
