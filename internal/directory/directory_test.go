package directory

import (
	"context"
	"errors"
	"testing"

	"github.com/bcnelson/checkmk-host-manager/internal/domain"
	"github.com/go-ldap/ldap/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var mapping = RoleMapping{
	AdminGroup:          "administrators",
	DepartmentHeadGroup: "departmentheads",
	TeamLeaderGroup:     "teamleaders",
}

func TestRoleMapping(t *testing.T) {
	tests := []struct {
		name   string
		groups []string
		want   []domain.Role
	}{
		{"no groups", nil, []domain.Role{domain.RoleUser}},
		{"admin", []string{"CN=Administrators,OU=Groups,DC=corp"}, []domain.Role{domain.RoleAdmin, domain.RoleUser}},
		{"team leader and head", []string{
			"CN=TeamLeaders,DC=corp", "CN=DepartmentHeads,DC=corp",
		}, []domain.Role{domain.RoleDepartmentHead, domain.RoleTeamLeader, domain.RoleUser}},
		{"unrelated", []string{"CN=Printers,DC=corp"}, []domain.Role{domain.RoleUser}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, mapping.Roles(tt.groups))
		})
	}
}

func TestUserFromEntry(t *testing.T) {
	entry := ldap.NewEntry("CN=Alice,OU=Users,DC=corp", map[string][]string{
		"userPrincipalName":          {"alice@corp.example"},
		"givenName":                  {"Alice"},
		"sn":                         {"Smith"},
		"department":                 {"Operations"},
		"physicalDeliveryOfficeName": {"Platform"},
		"memberOf":                   {"CN=TeamLeaders,OU=Groups,DC=corp"},
	})

	u := userFromEntry(entry, mapping)
	assert.Equal(t, "alice@corp.example", u.Email)
	assert.Equal(t, "Alice", u.FirstName)
	assert.Equal(t, "Operations", u.Department)
	assert.Equal(t, "Platform", u.Team)
	assert.True(t, domain.HasRole(u.Principal(), domain.RoleTeamLeader))
}

func TestStaticDirectory(t *testing.T) {
	dir := NewStatic(&domain.User{Email: "Bob@Example.com", Department: "dev"})
	ctx := context.Background()

	u, err := dir.FindUserByEmail(ctx, "bob@example.com")
	require.NoError(t, err)
	assert.Equal(t, "dev", u.Department)

	_, err = dir.FindUserByEmail(ctx, "nobody@example.com")
	assert.True(t, errors.Is(err, domain.ErrNotFound))

	users, err := dir.ListUsers(ctx)
	require.NoError(t, err)
	assert.Len(t, users, 1)
}
