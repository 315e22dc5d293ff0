package auth

import "github.com/geocoder89/projecthub/internal/domain/user"

// Operation names a protected operation in the policy table.
type Operation string

const (
	OpMe               Operation = "auth.me"
	OpChangePassword   Operation = "auth.change_password"
	OpInviteMember     Operation = "members.invite"
	OpListMembers      Operation = "members.list"
	OpDeleteMember     Operation = "members.delete"
	OpUpdateMemberRole Operation = "members.update_role"
)

// policy maps operations to the roles allowed to call them.
// An empty role set means any authenticated identity.
var policy = map[Operation][]user.Role{
	OpMe:               nil,
	OpChangePassword:   nil,
	OpInviteMember:     {user.RoleAdmin, user.RoleManager},
	OpListMembers:      nil,
	OpDeleteMember:     {user.RoleAdmin, user.RoleManager},
	OpUpdateMemberRole: {user.RoleAdmin},
}

// Allowed reports whether role may perform op. Unknown operations are denied.
func Allowed(op Operation, role user.Role) bool {
	roles, ok := policy[op]
	if !ok {
		return false
	}

	if len(roles) == 0 {
		return role.IsValid()
	}

	for _, r := range roles {
		if r == role {
			return true
		}
	}
	return false
}

// IsPrivileged reports roles that see every team member, not just themselves.
func IsPrivileged(role user.Role) bool {
	switch role {
	case user.RoleAdmin, user.RoleManager, user.RoleProjectManager:
		return true
	default:
		return false
	}
}
