package override

import "github.com/messbook/messbook/pkg/user"

// capability lists what a role may do with override rules. The table below is
// the only place rule permissions are defined; the service consults it through
// Gate and nothing else performs role checks.
type capability struct {
	createScopes map[Scope]bool
	modifyAny    bool
	// modifyOwnScopes limits which of their own rules the role may modify.
	// Irrelevant when modifyAny is set.
	modifyOwnScopes map[Scope]bool
}

var allScopes = map[Scope]bool{ScopeUser: true, ScopeAllUsers: true, ScopeGlobal: true}

var roleCapabilities = map[user.Role]capability{
	user.RoleMember: {},
	user.RoleManager: {
		createScopes:    map[Scope]bool{ScopeUser: true},
		modifyOwnScopes: map[Scope]bool{ScopeUser: true},
	},
	user.RoleAdmin: {
		createScopes: allScopes,
		modifyAny:    true,
	},
	user.RoleSuperadmin: {
		createScopes: allScopes,
		modifyAny:    true,
	},
}

// Gate answers permission questions about override rules. Pure predicates
// over the capability table, no side effects.
type Gate struct{}

// CanCreate reports whether the role may create a rule with the given scope.
func (Gate) CanCreate(role user.Role, scope Scope) bool {
	return roleCapabilities[role].createScopes[scope]
}

// CanModify reports whether the actor may update, toggle or delete the rule.
// Admins modify anything; a manager keeps control of the user-scoped rules
// they created. A creator whose role was since reduced loses access, the
// table is strictly role-driven.
func (Gate) CanModify(rule Rule, actorID int, role user.Role) bool {
	c := roleCapabilities[role]
	if c.modifyAny {
		return true
	}
	return rule.CreatedBy == actorID && c.modifyOwnScopes[rule.Scope]
}
