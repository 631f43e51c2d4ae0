package user

import "time"

// Role is a member's position in the mess, resolved by the member directory
// and attached to every request. Capability checks compare roles by rank.
type Role string

const (
	RoleMember     Role = "member"
	RoleManager    Role = "manager"
	RoleAdmin      Role = "admin"
	RoleSuperadmin Role = "superadmin"
)

var roleRank = map[Role]int{
	RoleMember:     0,
	RoleManager:    1,
	RoleAdmin:      2,
	RoleSuperadmin: 3,
}

func (r Role) Valid() bool {
	_, ok := roleRank[r]
	return ok
}

// AtLeast reports whether r ranks equal to or above other. Unknown roles rank
// below everything.
func (r Role) AtLeast(other Role) bool {
	rr, ok := roleRank[r]
	if !ok {
		return false
	}
	or, ok := roleRank[other]
	if !ok {
		return false
	}
	return rr >= or
}

// Rank returns the numeric rank of the role. Used as a tie-breaker when two
// override rules are otherwise equal. Unknown roles rank -1.
func (r Role) Rank() int {
	rank, ok := roleRank[r]
	if !ok {
		return -1
	}
	return rank
}

type User struct {
	Id          int
	Uid         string
	Username    string
	DisplayName string
	Role        Role
	CreatedAt   time.Time
}
