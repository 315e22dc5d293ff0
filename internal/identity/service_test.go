package identity_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/geocoder89/projecthub/internal/apperr"
	"github.com/geocoder89/projecthub/internal/auth"
	"github.com/geocoder89/projecthub/internal/domain/user"
	"github.com/geocoder89/projecthub/internal/identity"
	"github.com/geocoder89/projecthub/internal/notifications"
	"github.com/geocoder89/projecthub/internal/repo/memory"
	"github.com/geocoder89/projecthub/internal/security"
)

type outbox struct {
	mu   sync.Mutex
	msgs []notifications.Message
	err  error
}

func (o *outbox) Send(_ context.Context, msg notifications.Message) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.err != nil {
		return o.err
	}
	o.msgs = append(o.msgs, msg)
	return nil
}

func (o *outbox) last(kind notifications.Kind) (notifications.Message, bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	for i := len(o.msgs) - 1; i >= 0; i-- {
		if o.msgs[i].Kind == kind {
			return o.msgs[i], true
		}
	}
	return notifications.Message{}, false
}

func (o *outbox) count(kind notifications.Kind) int {
	o.mu.Lock()
	defer o.mu.Unlock()
	n := 0
	for _, m := range o.msgs {
		if m.Kind == kind {
			n++
		}
	}
	return n
}

type fixture struct {
	svc    *identity.Service
	repo   *memory.UsersRepo
	tokens *auth.Manager
	mail   *outbox
	invite *outbox
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	repo := memory.NewUsersRepo()
	tokens := auth.NewManager("test-secret", 7*24*time.Hour)
	mail := &outbox{}
	invite := &outbox{}

	svc := identity.NewService(identity.Deps{
		Repo:              repo,
		Tokens:            tokens,
		OTP:               auth.NewOTPService(10 * time.Minute),
		Reset:             auth.NewResetTokenService(time.Hour),
		Dispatcher:        notifications.NewInlineDispatcher(mail, log, nil),
		Invitations:       invite,
		MinPasswordLength: 6,
		Log:               log,
	})

	return &fixture{svc: svc, repo: repo, tokens: tokens, mail: mail, invite: invite}
}

func assertKind(t *testing.T, err error, kind apperr.Kind, code string) {
	t.Helper()

	if err == nil {
		t.Fatalf("expected %s error, got nil", kind)
	}
	got := apperr.As(err)
	if got.Kind != kind {
		t.Fatalf("expected kind %s, got %s (%v)", kind, got.Kind, err)
	}
	if code != "" && got.Code != code {
		t.Fatalf("expected code %q, got %q", code, got.Code)
	}
}

// registerVerified creates an account, redeems its code and returns the profile.
func (f *fixture) registerVerified(t *testing.T, username, email, password string) user.Profile {
	t.Helper()

	p, err := f.svc.Register(context.Background(), identity.RegisterInput{Username: username, Email: email, Password: password})
	if err != nil {
		t.Fatalf("register %s: %v", username, err)
	}
	msg, _ := f.mail.last(notifications.KindVerificationCode)
	if _, err := f.svc.VerifyEmail(context.Background(), email, msg.Code); err != nil {
		t.Fatalf("verify %s: %v", username, err)
	}
	return p
}

// seed inserts an account directly with the given role.
func (f *fixture) seed(t *testing.T, username string, role user.Role) auth.Identity {
	t.Helper()

	hash, err := security.HashPassword("password1")
	if err != nil {
		t.Fatalf("hash: %v", err)
	}
	u, err := f.repo.Create(context.Background(), user.NewUser{
		Username:     username,
		Email:        username + "@x.com",
		PasswordHash: hash,
		Role:         role,
		IsVerified:   true,
	})
	if err != nil {
		t.Fatalf("seed %s: %v", username, err)
	}
	return auth.Identity{UserID: u.ID, Username: u.Username, Email: u.Email, Role: u.Role}
}

func TestRegister_StoresHashAndMailsCode(t *testing.T) {
	f := newFixture(t)

	p, err := f.svc.Register(context.Background(), identity.RegisterInput{Username: "alice", Email: " Alice@X.com ", Password: "secret1"})
	if err != nil {
		t.Fatalf("register: %v", err)
	}
	if p.IsVerified || p.Email != "alice@x.com" || p.Role != user.RoleUser {
		t.Fatalf("unexpected profile %+v", p)
	}

	stored, err := f.repo.GetByID(context.Background(), p.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if stored.PasswordHash == "secret1" || !security.VerifyPassword(stored.PasswordHash, "secret1") {
		t.Fatalf("password must be stored as a verifiable hash")
	}

	msg, ok := f.mail.last(notifications.KindVerificationCode)
	if !ok || msg.To != "alice@x.com" || len(msg.Code) != 6 {
		t.Fatalf("expected verification mail with a six digit code, got %+v", msg)
	}
	if stored.OTPCode == nil || *stored.OTPCode != msg.Code || stored.OTPExpiresAt == nil {
		t.Fatalf("code and expiry must be stored together")
	}
}

func TestRegister_Validation(t *testing.T) {
	f := newFixture(t)

	tests := []struct {
		name string
		in   identity.RegisterInput
		code string
	}{
		{"missing username", identity.RegisterInput{Email: "a@x.com", Password: "secret1"}, "missing_username"},
		{"missing email", identity.RegisterInput{Username: "a", Password: "secret1"}, "missing_email"},
		{"missing password", identity.RegisterInput{Username: "a", Email: "a@x.com"}, "missing_password"},
		{"short password", identity.RegisterInput{Username: "a", Email: "a@x.com", Password: "abc"}, "password_too_short"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.svc.Register(context.Background(), tt.in)
			assertKind(t, err, apperr.KindValidation, tt.code)
		})
	}
}

func TestRegister_DuplicatesConflict(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	if _, err := f.svc.Register(ctx, identity.RegisterInput{Username: "alice", Email: "alice@x.com", Password: "secret1"}); err != nil {
		t.Fatalf("register: %v", err)
	}

	_, err := f.svc.Register(ctx, identity.RegisterInput{Username: "alice", Email: "other@x.com", Password: "secret1"})
	assertKind(t, err, apperr.KindConflict, "username_taken")

	_, err = f.svc.Register(ctx, identity.RegisterInput{Username: "bob", Email: "ALICE@x.com", Password: "secret1"})
	assertKind(t, err, apperr.KindConflict, "email_taken")
}

func TestVerifyEmail_CheckOrder(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	p, err := f.svc.Register(ctx, identity.RegisterInput{Username: "alice", Email: "alice@x.com", Password: "secret1"})
	if err != nil {
		t.Fatalf("register: %v", err)
	}
	msg, _ := f.mail.last(notifications.KindVerificationCode)

	_, err = f.svc.VerifyEmail(ctx, "nobody@x.com", msg.Code)
	assertKind(t, err, apperr.KindNotFound, "user_not_found")

	wrong := "000000"
	if msg.Code == wrong {
		wrong = "111111"
	}
	_, err = f.svc.VerifyEmail(ctx, "alice@x.com", wrong)
	assertKind(t, err, apperr.KindValidation, "code_mismatch")

	// a correct code past its expiry is expired, not accepted
	if err := f.repo.SetOTP(ctx, p.ID, msg.Code, time.Now().Add(-11*time.Minute)); err != nil {
		t.Fatalf("set otp: %v", err)
	}
	_, err = f.svc.VerifyEmail(ctx, "alice@x.com", msg.Code)
	assertKind(t, err, apperr.KindValidation, "code_expired")
	_, err = f.svc.VerifyEmail(ctx, "alice@x.com", wrong)
	assertKind(t, err, apperr.KindValidation, "code_expired")

	if err := f.svc.ResendCode(ctx, "alice@x.com"); err != nil {
		t.Fatalf("resend: %v", err)
	}
	fresh, _ := f.mail.last(notifications.KindVerificationCode)

	got, err := f.svc.VerifyEmail(ctx, "alice@x.com", fresh.Code)
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if !got.IsVerified {
		t.Fatalf("expected verified profile")
	}

	stored, _ := f.repo.GetByID(ctx, p.ID)
	if stored.OTPCode != nil || stored.OTPExpiresAt != nil {
		t.Fatalf("redeemed code must be cleared")
	}

	_, err = f.svc.VerifyEmail(ctx, "alice@x.com", fresh.Code)
	assertKind(t, err, apperr.KindValidation, "already_verified")

	err = f.svc.ResendCode(ctx, "alice@x.com")
	assertKind(t, err, apperr.KindValidation, "already_verified")
}

func TestLogin_UnverifiedAccount(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	if _, err := f.svc.Register(ctx, identity.RegisterInput{Username: "alice", Email: "alice@x.com", Password: "secret1"}); err != nil {
		t.Fatalf("register: %v", err)
	}

	_, err := f.svc.Login(ctx, identity.LoginInput{Login: "alice", Password: "secret1"})
	assertKind(t, err, apperr.KindVerificationRequired, "")

	_, err = f.svc.Login(ctx, identity.LoginInput{Login: "alice", Password: "wrong-password"})
	assertKind(t, err, apperr.KindVerificationRequired, "")
}

func TestLogin_Credentials(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.registerVerified(t, "alice", "alice@x.com", "secret1")

	_, err := f.svc.Login(ctx, identity.LoginInput{Login: "alice", Password: "nope123"})
	assertKind(t, err, apperr.KindAuthentication, "invalid_credentials")

	_, err = f.svc.Login(ctx, identity.LoginInput{Login: "ghost", Password: "secret1"})
	assertKind(t, err, apperr.KindAuthentication, "invalid_credentials")

	_, err = f.svc.Login(ctx, identity.LoginInput{Login: " ", Password: "secret1"})
	assertKind(t, err, apperr.KindValidation, "missing_login")

	first, err := f.svc.Login(ctx, identity.LoginInput{Login: "alice", Password: "secret1"})
	if err != nil {
		t.Fatalf("login by username: %v", err)
	}
	second, err := f.svc.Login(ctx, identity.LoginInput{Login: "ALICE@x.com", Password: "secret1"})
	if err != nil {
		t.Fatalf("login by email: %v", err)
	}

	if first.Token == second.Token {
		t.Fatalf("each login must mint a fresh token")
	}
	if first.RequiresPasswordChange {
		t.Fatalf("self-registered account must not be forced to change password")
	}

	claims, err := f.tokens.Verify(first.Token)
	if err != nil {
		t.Fatalf("verify token: %v", err)
	}
	if claims.Identity().UserID != first.Profile.ID || claims.Role != user.RoleUser {
		t.Fatalf("unexpected claims %+v", claims)
	}

	if f.mail.count(notifications.KindLoginAlert) != 2 {
		t.Fatalf("expected a login alert per login")
	}
}

func TestLogout_AlertsOnlyWhenAuthenticated(t *testing.T) {
	f := newFixture(t)

	f.svc.Logout(context.Background(), auth.Identity{}, false)
	if f.mail.count(notifications.KindLogoutAlert) != 0 {
		t.Fatalf("anonymous logout must not send mail")
	}

	f.svc.Logout(context.Background(), auth.Identity{UserID: "u1", Email: "a@x.com", Username: "a"}, true)
	msg, ok := f.mail.last(notifications.KindLogoutAlert)
	if !ok || msg.To != "a@x.com" {
		t.Fatalf("expected logout alert, got %+v", msg)
	}
}

func TestChangePassword(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	p := f.registerVerified(t, "alice", "alice@x.com", "secret1")
	id := auth.Identity{UserID: p.ID, Username: p.Username, Email: p.Email, Role: p.Role}

	err := f.svc.ChangePassword(ctx, id, "wrong-one", "newpass1")
	assertKind(t, err, apperr.KindAuthentication, "wrong_password")

	err = f.svc.ChangePassword(ctx, id, "secret1", "abc")
	assertKind(t, err, apperr.KindValidation, "password_too_short")

	err = f.svc.ChangePassword(ctx, auth.Identity{UserID: "gone"}, "secret1", "newpass1")
	assertKind(t, err, apperr.KindAuthentication, "unauthorized")

	if err := f.svc.ChangePassword(ctx, id, "secret1", "newpass1"); err != nil {
		t.Fatalf("change password: %v", err)
	}

	if _, err := f.svc.Login(ctx, identity.LoginInput{Login: "alice", Password: "newpass1"}); err != nil {
		t.Fatalf("login with new password: %v", err)
	}
	if f.mail.count(notifications.KindPasswordChanged) != 1 {
		t.Fatalf("expected password changed mail")
	}
}

func TestRequestReset_SameAnswerForUnknownEmail(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	if err := f.svc.RequestReset(ctx, "nobody@x.com"); err != nil {
		t.Fatalf("unknown email must succeed: %v", err)
	}
	if f.mail.count(notifications.KindPasswordReset) != 0 {
		t.Fatalf("no mail for unknown email")
	}

	err := f.svc.RequestReset(ctx, "  ")
	assertKind(t, err, apperr.KindValidation, "missing_email")
}

func TestResetPassword_SingleUse(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.registerVerified(t, "alice", "alice@x.com", "secret1")

	if err := f.svc.RequestReset(ctx, "alice@x.com"); err != nil {
		t.Fatalf("request reset: %v", err)
	}
	msg, ok := f.mail.last(notifications.KindPasswordReset)
	if !ok || len(msg.Token) != 64 {
		t.Fatalf("expected reset mail with a 64 char token, got %+v", msg)
	}

	err := f.svc.ResetPassword(ctx, msg.Token, "abc")
	assertKind(t, err, apperr.KindValidation, "password_too_short")

	if err := f.svc.ResetPassword(ctx, msg.Token, "newpass1"); err != nil {
		t.Fatalf("reset: %v", err)
	}

	err = f.svc.ResetPassword(ctx, msg.Token, "again123")
	assertKind(t, err, apperr.KindValidation, "reset_token_invalid")

	err = f.svc.ResetPassword(ctx, "not-a-token", "again123")
	assertKind(t, err, apperr.KindValidation, "reset_token_invalid")

	if _, err := f.svc.Login(ctx, identity.LoginInput{Login: "alice", Password: "newpass1"}); err != nil {
		t.Fatalf("login after reset: %v", err)
	}
}

func TestResetPassword_ExpiredLooksUnknown(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.registerVerified(t, "alice", "alice@x.com", "secret1")

	token := strings.Repeat("ab", 32)
	if _, err := f.repo.SetResetToken(ctx, "alice@x.com", token, time.Now().Add(-time.Minute)); err != nil {
		t.Fatalf("set token: %v", err)
	}

	expired := f.svc.ResetPassword(ctx, token, "newpass1")
	unknown := f.svc.ResetPassword(ctx, strings.Repeat("cd", 32), "newpass1")

	assertKind(t, expired, apperr.KindValidation, "reset_token_invalid")
	assertKind(t, unknown, apperr.KindValidation, "reset_token_invalid")
	if apperr.As(expired).Message != apperr.As(unknown).Message {
		t.Fatalf("expired and unknown tokens must read the same")
	}
}

func TestInviteMember_FirstLoginFlow(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	admin := f.seed(t, "root", user.RoleAdmin)

	p, err := f.svc.InviteMember(ctx, admin, identity.InviteInput{Username: "bob", Email: "bob@x.com", Role: "manager"})
	if err != nil {
		t.Fatalf("invite: %v", err)
	}
	if !p.IsVerified || !p.IsFirstLogin || p.Role != user.RoleManager {
		t.Fatalf("unexpected invited profile %+v", p)
	}

	msg, ok := f.invite.last(notifications.KindInvitation)
	if !ok || msg.TempPassword == "" {
		t.Fatalf("expected invitation with a temporary password")
	}

	res, err := f.svc.Login(ctx, identity.LoginInput{Login: "bob", Password: msg.TempPassword})
	if err != nil {
		t.Fatalf("login with temp password: %v", err)
	}
	if !res.RequiresPasswordChange || res.Token == "" {
		t.Fatalf("first login must flag a password change and still issue a token")
	}

	bob := auth.Identity{UserID: p.ID, Username: "bob", Email: "bob@x.com", Role: user.RoleManager}
	if err := f.svc.ChangePassword(ctx, bob, msg.TempPassword, "bobpass1"); err != nil {
		t.Fatalf("change password: %v", err)
	}

	res, err = f.svc.Login(ctx, identity.LoginInput{Login: "bob", Password: "bobpass1"})
	if err != nil {
		t.Fatalf("login: %v", err)
	}
	if res.RequiresPasswordChange {
		t.Fatalf("first-login flag must clear after a password change")
	}

	_, err = f.svc.InviteMember(ctx, admin, identity.InviteInput{Username: "bob", Email: "bob2@x.com"})
	assertKind(t, err, apperr.KindConflict, "username_taken")
}

func TestInviteMember_OnlyAdminCreatesAdmin(t *testing.T) {
	f := newFixture(t)
	manager := f.seed(t, "mgr", user.RoleManager)

	_, err := f.svc.InviteMember(context.Background(), manager, identity.InviteInput{Username: "eve", Email: "eve@x.com", Role: "admin"})
	assertKind(t, err, apperr.KindAuthorization, "admin_required")

	_, err = f.svc.InviteMember(context.Background(), manager, identity.InviteInput{Username: "eve", Email: "eve@x.com", Role: "overlord"})
	assertKind(t, err, apperr.KindValidation, "invalid_role")
}

func TestInviteMember_SendFailureDeletesAccount(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	admin := f.seed(t, "root", user.RoleAdmin)
	f.invite.err = errors.New("smtp down")

	_, err := f.svc.InviteMember(ctx, admin, identity.InviteInput{Username: "carol", Email: "carol@x.com"})
	assertKind(t, err, apperr.KindInternal, "")

	if _, err := f.repo.GetByEmail(ctx, "carol@x.com"); !errors.Is(err, user.ErrNotFound) {
		t.Fatalf("invited account must be deleted after a failed send, got %v", err)
	}
}

func TestListMembers_Visibility(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	admin := f.seed(t, "root", user.RoleAdmin)
	plain := f.seed(t, "dev1", user.RoleUser)
	f.seed(t, "dev2", user.RoleBusinessDevelopment)

	page, err := f.svc.ListMembers(ctx, plain, identity.ListInput{})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(page.Items) != 1 || page.Items[0].ID != plain.UserID {
		t.Fatalf("non-privileged role must only see itself, got %+v", page.Items)
	}

	page, err = f.svc.ListMembers(ctx, admin, identity.ListInput{})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(page.Items) != 3 || page.HasMore {
		t.Fatalf("admin must see everyone, got %d hasMore=%v", len(page.Items), page.HasMore)
	}
}

func TestListMembers_Paging(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	admin := f.seed(t, "root", user.RoleAdmin)
	for _, name := range []string{"a1", "a2", "a3", "a4"} {
		f.seed(t, name, user.RoleUser)
	}

	seen := map[string]bool{}
	cursor := ""
	for i := 0; i < 10; i++ {
		page, err := f.svc.ListMembers(ctx, admin, identity.ListInput{Limit: 2, Cursor: cursor})
		if err != nil {
			t.Fatalf("list: %v", err)
		}
		for _, p := range page.Items {
			if seen[p.ID] {
				t.Fatalf("member %s returned twice", p.Username)
			}
			seen[p.ID] = true
		}
		if !page.HasMore {
			break
		}
		cursor = *page.NextCursor
	}

	if len(seen) != 5 {
		t.Fatalf("expected to page through 5 members, saw %d", len(seen))
	}

	_, err := f.svc.ListMembers(ctx, admin, identity.ListInput{Cursor: "garbage"})
	assertKind(t, err, apperr.KindValidation, "invalid_cursor")
}

func TestDeleteMember_LastAdminGuard(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	root := f.seed(t, "root", user.RoleAdmin)

	err := f.svc.DeleteMember(ctx, root, root.UserID)
	assertKind(t, err, apperr.KindConflict, "last_admin")

	second := f.seed(t, "root2", user.RoleAdmin)
	if err := f.svc.DeleteMember(ctx, root, second.UserID); err != nil {
		t.Fatalf("deleting one of two admins: %v", err)
	}

	err = f.svc.DeleteMember(ctx, root, "missing")
	assertKind(t, err, apperr.KindNotFound, "user_not_found")
}

func TestDeleteMember_ManagerCannotDeleteAdmin(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.seed(t, "root", user.RoleAdmin)
	root2 := f.seed(t, "root2", user.RoleAdmin)
	manager := f.seed(t, "mgr", user.RoleManager)
	member := f.seed(t, "dev", user.RoleUser)

	err := f.svc.DeleteMember(ctx, manager, root2.UserID)
	assertKind(t, err, apperr.KindAuthorization, "admin_required")

	if err := f.svc.DeleteMember(ctx, manager, member.UserID); err != nil {
		t.Fatalf("manager deleting a user: %v", err)
	}
}

func TestUpdateMemberRole(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	root := f.seed(t, "root", user.RoleAdmin)
	dev := f.seed(t, "dev", user.RoleUser)

	_, err := f.svc.UpdateMemberRole(ctx, root, root.UserID, "manager")
	assertKind(t, err, apperr.KindConflict, "last_admin")

	p, err := f.svc.UpdateMemberRole(ctx, root, dev.UserID, "admin")
	if err != nil {
		t.Fatalf("promote: %v", err)
	}
	if p.Role != user.RoleAdmin {
		t.Fatalf("expected admin, got %s", p.Role)
	}

	// with two admins, demoting one is allowed
	if _, err := f.svc.UpdateMemberRole(ctx, root, root.UserID, "manager"); err != nil {
		t.Fatalf("demote with a second admin present: %v", err)
	}

	_, err = f.svc.UpdateMemberRole(ctx, root, dev.UserID, "wizard")
	assertKind(t, err, apperr.KindValidation, "invalid_role")

	manager := auth.Identity{UserID: root.UserID, Role: user.RoleManager}
	_, err = f.svc.UpdateMemberRole(ctx, manager, dev.UserID, "user")
	assertKind(t, err, apperr.KindAuthorization, "admin_required")
}

func TestMe(t *testing.T) {
	f := newFixture(t)
	p := f.registerVerified(t, "alice", "alice@x.com", "secret1")

	got, err := f.svc.Me(context.Background(), auth.Identity{UserID: p.ID})
	if err != nil {
		t.Fatalf("me: %v", err)
	}
	if got.Username != "alice" || !got.IsVerified {
		t.Fatalf("unexpected profile %+v", got)
	}

	_, err = f.svc.Me(context.Background(), auth.Identity{UserID: "deleted"})
	assertKind(t, err, apperr.KindAuthentication, "")
}

func TestPasswords_OverBcryptLimitAreValidationErrors(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	long := strings.Repeat("a", 73)

	_, err := f.svc.Register(ctx, identity.RegisterInput{Username: "alice", Email: "alice@x.com", Password: long})
	assertKind(t, err, apperr.KindValidation, "password_too_long")

	// exactly at the limit still hashes
	p := f.registerVerified(t, "bob", "bob@x.com", strings.Repeat("b", 72))
	id := auth.Identity{UserID: p.ID, Username: p.Username, Email: p.Email, Role: p.Role}

	err = f.svc.ChangePassword(ctx, id, strings.Repeat("b", 72), strings.Repeat("c", 80))
	assertKind(t, err, apperr.KindValidation, "password_too_long")

	if err := f.svc.RequestReset(ctx, "bob@x.com"); err != nil {
		t.Fatalf("request reset: %v", err)
	}
	msg, _ := f.mail.last(notifications.KindPasswordReset)

	err = f.svc.ResetPassword(ctx, msg.Token, strings.Repeat("d", 80))
	assertKind(t, err, apperr.KindValidation, "password_too_long")

	// the rejected attempt left the token usable
	if err := f.svc.ResetPassword(ctx, msg.Token, "newpass1"); err != nil {
		t.Fatalf("reset: %v", err)
	}
}

func TestUsernames_RejectAtSign(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.svc.Register(ctx, identity.RegisterInput{Username: "erin@home", Email: "erin@x.com", Password: "secret1"})
	assertKind(t, err, apperr.KindValidation, "invalid_username")

	admin := f.seed(t, "root", user.RoleAdmin)
	_, err = f.svc.InviteMember(ctx, admin, identity.InviteInput{Username: "erin@home", Email: "erin@x.com"})
	assertKind(t, err, apperr.KindValidation, "invalid_username")

	if f.invite.count(notifications.KindInvitation) != 0 {
		t.Fatalf("no invitation for a rejected username")
	}
}

func TestVerifyEmail_ConcurrentRedemptionSucceedsOnce(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	if _, err := f.svc.Register(ctx, identity.RegisterInput{Username: "alice", Email: "alice@x.com", Password: "secret1"}); err != nil {
		t.Fatalf("register: %v", err)
	}
	msg, _ := f.mail.last(notifications.KindVerificationCode)

	const n = 16
	errs := make([]error, n)

	var wg sync.WaitGroup
	start := make(chan struct{})
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			<-start
			_, errs[i] = f.svc.VerifyEmail(ctx, "alice@x.com", msg.Code)
		}(i)
	}
	close(start)
	wg.Wait()

	ok := 0
	for _, err := range errs {
		if err == nil {
			ok++
			continue
		}
		// losers either raced the write or read the account after it
		got := apperr.As(err)
		if got.Kind != apperr.KindValidation || (got.Code != "code_not_found" && got.Code != "already_verified") {
			t.Fatalf("unexpected error %v", err)
		}
	}
	if ok != 1 {
		t.Fatalf("expected exactly one redemption, got %d", ok)
	}
}

func TestResetPassword_ConcurrentRedemptionSucceedsOnce(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.registerVerified(t, "alice", "alice@x.com", "secret1")

	if err := f.svc.RequestReset(ctx, "alice@x.com"); err != nil {
		t.Fatalf("request reset: %v", err)
	}
	msg, _ := f.mail.last(notifications.KindPasswordReset)

	const n = 8
	errs := make([]error, n)

	var wg sync.WaitGroup
	start := make(chan struct{})
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			<-start
			errs[i] = f.svc.ResetPassword(ctx, msg.Token, "newpass1")
		}(i)
	}
	close(start)
	wg.Wait()

	ok := 0
	for _, err := range errs {
		if err == nil {
			ok++
			continue
		}
		assertKind(t, err, apperr.KindValidation, "reset_token_invalid")
	}
	if ok != 1 {
		t.Fatalf("expected exactly one redemption, got %d", ok)
	}
}
