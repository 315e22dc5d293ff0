package auth

import (
	"testing"

	"github.com/geocoder89/projecthub/internal/domain/user"
)

func TestAllowed(t *testing.T) {
	tests := []struct {
		op   Operation
		role user.Role
		want bool
	}{
		{OpInviteMember, user.RoleAdmin, true},
		{OpInviteMember, user.RoleManager, true},
		{OpInviteMember, user.RoleProjectManager, false},
		{OpInviteMember, user.RoleUser, false},
		{OpUpdateMemberRole, user.RoleAdmin, true},
		{OpUpdateMemberRole, user.RoleManager, false},
		{OpDeleteMember, user.RoleBusinessDevelopment, false},
		{OpListMembers, user.RoleUser, true},
		{OpMe, user.RoleBusinessDevelopment, true},
		{OpMe, user.Role("ghost"), false},
		{Operation("projects.nuke"), user.RoleAdmin, false},
	}

	for _, tt := range tests {
		if got := Allowed(tt.op, tt.role); got != tt.want {
			t.Fatalf("Allowed(%s, %s) = %v, want %v", tt.op, tt.role, got, tt.want)
		}
	}
}

func TestIsPrivileged(t *testing.T) {
	if !IsPrivileged(user.RoleProjectManager) {
		t.Fatalf("project managers see the whole team")
	}
	if IsPrivileged(user.RoleUser) || IsPrivileged(user.RoleBusinessDevelopment) {
		t.Fatalf("non-privileged roles only see themselves")
	}
}
