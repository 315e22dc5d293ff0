package identity

import (
	"context"
	"errors"
	"strings"

	"github.com/geocoder89/projecthub/internal/apperr"
	"github.com/geocoder89/projecthub/internal/auth"
	"github.com/geocoder89/projecthub/internal/domain/user"
	"github.com/geocoder89/projecthub/internal/notifications"
	"github.com/geocoder89/projecthub/internal/security"
	"github.com/geocoder89/projecthub/internal/utils"
)

const (
	defaultPageSize = 20
	maxPageSize     = 50
)

type InviteInput struct {
	Username string
	Email    string
	Role     string
}

type ListInput struct {
	Limit  int
	Cursor string
}

type MemberPage struct {
	Items      []user.Profile `json:"items"`
	NextCursor *string        `json:"nextCursor"`
	HasMore    bool           `json:"hasMore"`
}

var errAdminOnly = apperr.Authorization("admin_required", "Only an admin can manage admin accounts")

// InviteMember creates a verified account with a temporary password and mails
// it to the invitee. If the mail cannot be sent the account is deleted again.
func (s *Service) InviteMember(ctx context.Context, actor auth.Identity, in InviteInput) (user.Profile, error) {
	p, err := s.inviteMember(ctx, actor, in)
	return p, s.observe("invite_member", err)
}

func (s *Service) inviteMember(ctx context.Context, actor auth.Identity, in InviteInput) (user.Profile, error) {
	username := strings.TrimSpace(in.Username)
	email := user.NormalizeEmail(in.Email)

	if err := checkUsername(username); err != nil {
		return user.Profile{}, err
	}
	if email == "" {
		return user.Profile{}, apperr.Validation("missing_email", "Email is required")
	}

	role := user.RoleUser
	if strings.TrimSpace(in.Role) != "" {
		r, ok := user.ParseRole(in.Role)
		if !ok {
			return user.Profile{}, apperr.Validation("invalid_role", "Unknown role")
		}
		role = r
	}
	if role == user.RoleAdmin && actor.Role != user.RoleAdmin {
		return user.Profile{}, errAdminOnly
	}

	temp, err := security.TemporaryPassword()
	if err != nil {
		return user.Profile{}, internal(err)
	}

	hash, err := security.HashPassword(temp)
	if err != nil {
		return user.Profile{}, internal(err)
	}

	u, err := s.repo.Create(ctx, user.NewUser{
		Username:     username,
		Email:        email,
		PasswordHash: hash,
		Role:         role,
		IsVerified:   true,
		IsFirstLogin: true,
	})
	if err != nil {
		return user.Profile{}, mapCreateErr(err)
	}

	err = s.invitations.Send(ctx, notifications.Message{
		Kind:         notifications.KindInvitation,
		To:           u.Email,
		Username:     u.Username,
		TempPassword: temp,
		At:           s.now().UTC(),
	})
	if err != nil {
		// the invitee never learns the password, so the account must not survive
		if delErr := s.repo.Delete(context.WithoutCancel(ctx), u.ID); delErr != nil {
			s.log.ErrorContext(ctx, "invite.compensation_failed", "user_id", u.ID, "err", delErr)
		}
		return user.Profile{}, apperr.Internal("Could not send the invitation", err)
	}

	s.log.InfoContext(ctx, "member.invited", "user_id", u.ID, "role", string(u.Role), "by", actor.UserID)
	return u.Profile(), nil
}

// ListMembers pages through the team. Roles outside the privileged set only see themselves.
func (s *Service) ListMembers(ctx context.Context, actor auth.Identity, in ListInput) (MemberPage, error) {
	p, err := s.listMembers(ctx, actor, in)
	return p, s.observe("list_members", err)
}

func (s *Service) listMembers(ctx context.Context, actor auth.Identity, in ListInput) (MemberPage, error) {
	limit := in.Limit
	if limit <= 0 {
		limit = defaultPageSize
	}
	if limit > maxPageSize {
		limit = maxPageSize
	}

	f := user.ListFilter{Limit: limit + 1}

	if !auth.IsPrivileged(actor.Role) {
		f.OnlyID = actor.UserID
	}

	if in.Cursor != "" {
		c, err := utils.DecodeMemberCursor(in.Cursor)
		if err != nil {
			return MemberPage{}, apperr.Validation("invalid_cursor", "Cursor is invalid")
		}
		f.AfterCreatedAt = c.CreatedAt
		f.AfterID = c.ID
	}

	users, err := s.repo.List(ctx, f)
	if err != nil {
		return MemberPage{}, internal(err)
	}

	page := MemberPage{Items: make([]user.Profile, 0, limit)}

	if len(users) > limit {
		page.HasMore = true
		users = users[:limit]
	}
	for _, u := range users {
		page.Items = append(page.Items, u.Profile())
	}

	if page.HasMore {
		last := users[len(users)-1]
		next, err := utils.EncodeMemberCursor(last.CreatedAt, last.ID)
		if err != nil {
			return MemberPage{}, internal(err)
		}
		page.NextCursor = &next
	}

	return page, nil
}

// DeleteMember removes an account. Admin accounts can only be removed by an
// admin, and never the last one.
func (s *Service) DeleteMember(ctx context.Context, actor auth.Identity, id string) error {
	return s.observe("delete_member", s.deleteMember(ctx, actor, id))
}

func (s *Service) deleteMember(ctx context.Context, actor auth.Identity, id string) error {
	target, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return mapMemberErr(err)
	}

	if target.Role == user.RoleAdmin && actor.Role != user.RoleAdmin {
		return errAdminOnly
	}

	if err := s.repo.Delete(ctx, target.ID); err != nil {
		return mapMemberErr(err)
	}

	s.log.InfoContext(ctx, "member.deleted", "user_id", target.ID, "by", actor.UserID)
	return nil
}

// UpdateMemberRole changes a role. Granting or taking away admin needs an
// admin, and the last admin cannot be demoted.
func (s *Service) UpdateMemberRole(ctx context.Context, actor auth.Identity, id, rawRole string) (user.Profile, error) {
	p, err := s.updateMemberRole(ctx, actor, id, rawRole)
	return p, s.observe("update_member_role", err)
}

func (s *Service) updateMemberRole(ctx context.Context, actor auth.Identity, id, rawRole string) (user.Profile, error) {
	role, ok := user.ParseRole(rawRole)
	if !ok {
		return user.Profile{}, apperr.Validation("invalid_role", "Unknown role")
	}

	target, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return user.Profile{}, mapMemberErr(err)
	}

	if (role == user.RoleAdmin || target.Role == user.RoleAdmin) && actor.Role != user.RoleAdmin {
		return user.Profile{}, errAdminOnly
	}

	if target.Role == role {
		return target.Profile(), nil
	}

	u, err := s.repo.UpdateRole(ctx, target.ID, role)
	if err != nil {
		return user.Profile{}, mapMemberErr(err)
	}

	s.log.InfoContext(ctx, "member.role_changed", "user_id", u.ID, "from", string(target.Role), "to", string(role), "by", actor.UserID)
	return u.Profile(), nil
}

func mapMemberErr(err error) error {
	switch {
	case errors.Is(err, user.ErrNotFound):
		return apperr.NotFound("user_not_found", "Team member not found")
	case errors.Is(err, user.ErrLastAdmin):
		return apperr.Conflict("last_admin", "The last admin cannot be removed or demoted")
	default:
		return internal(err)
	}
}
