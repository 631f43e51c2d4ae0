package override

import (
	"testing"

	"github.com/messbook/messbook/pkg/user"
	"github.com/stretchr/testify/assert"
)

func TestGate_CanCreate(t *testing.T) {
	gate := Gate{}

	testCases := []struct {
		role  user.Role
		scope Scope
		want  bool
	}{
		{user.RoleMember, ScopeUser, false},
		{user.RoleMember, ScopeAllUsers, false},
		{user.RoleMember, ScopeGlobal, false},
		{user.RoleManager, ScopeUser, true},
		{user.RoleManager, ScopeAllUsers, false},
		{user.RoleManager, ScopeGlobal, false},
		{user.RoleAdmin, ScopeUser, true},
		{user.RoleAdmin, ScopeAllUsers, true},
		{user.RoleAdmin, ScopeGlobal, true},
		{user.RoleSuperadmin, ScopeUser, true},
		{user.RoleSuperadmin, ScopeAllUsers, true},
		{user.RoleSuperadmin, ScopeGlobal, true},
	}

	for _, tc := range testCases {
		t.Run(string(tc.role)+"/"+string(tc.scope), func(t *testing.T) {
			assert.Equal(t, tc.want, gate.CanCreate(tc.role, tc.scope))
		})
	}
}

func TestGate_CanModify(t *testing.T) {
	gate := Gate{}

	ownUserRule := Rule{ID: "own", Scope: ScopeUser, TargetUserID: intPtr(9), CreatedBy: 5}
	ownGlobalRule := Rule{ID: "own-global", Scope: ScopeGlobal, CreatedBy: 5}
	foreignUserRule := Rule{ID: "foreign", Scope: ScopeUser, TargetUserID: intPtr(9), CreatedBy: 99}

	testCases := []struct {
		name    string
		rule    Rule
		actorID int
		role    user.Role
		want    bool
	}{
		{name: "manager modifies own user-scoped rule", rule: ownUserRule, actorID: 5, role: user.RoleManager, want: true},
		{name: "manager cannot modify a foreign rule", rule: foreignUserRule, actorID: 5, role: user.RoleManager, want: false},
		{name: "manager cannot modify their own global rule", rule: ownGlobalRule, actorID: 5, role: user.RoleManager, want: false},
		{name: "member cannot modify even their own rule", rule: ownUserRule, actorID: 5, role: user.RoleMember, want: false},
		{name: "admin modifies anything", rule: foreignUserRule, actorID: 5, role: user.RoleAdmin, want: true},
		{name: "superadmin modifies anything", rule: ownGlobalRule, actorID: 1, role: user.RoleSuperadmin, want: true},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, gate.CanModify(tc.rule, tc.actorID, tc.role))
		})
	}
}
