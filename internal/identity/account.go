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
)

type RegisterInput struct {
	Username string
	Email    string
	Password string
}

type LoginInput struct {
	// Login is a username or an email address.
	Login    string
	Password string
}

type LoginResult struct {
	Token                  string
	Profile                user.Profile
	RequiresPasswordChange bool
}

var errInvalidCredentials = apperr.Authentication("invalid_credentials", "Invalid username or password")

// Register creates an unverified account and mails it a verification code.
func (s *Service) Register(ctx context.Context, in RegisterInput) (user.Profile, error) {
	p, err := s.register(ctx, in)
	return p, s.observe("register", err)
}

func (s *Service) register(ctx context.Context, in RegisterInput) (user.Profile, error) {
	username := strings.TrimSpace(in.Username)
	email := user.NormalizeEmail(in.Email)

	if err := checkUsername(username); err != nil {
		return user.Profile{}, err
	}
	if email == "" {
		return user.Profile{}, apperr.Validation("missing_email", "Email is required")
	}
	if err := s.checkPassword("password", in.Password); err != nil {
		return user.Profile{}, err
	}

	hash, err := security.HashPassword(in.Password)
	if err != nil {
		return user.Profile{}, internal(err)
	}

	code, expiresAt, err := s.otp.Generate()
	if err != nil {
		return user.Profile{}, internal(err)
	}

	u, err := s.repo.Create(ctx, user.NewUser{
		Username:     username,
		Email:        email,
		PasswordHash: hash,
		Role:         user.RoleUser,
		OTPCode:      &code,
		OTPExpiresAt: &expiresAt,
	})
	if err != nil {
		return user.Profile{}, mapCreateErr(err)
	}

	s.notify(ctx, notifications.KindVerificationCode, u, func(m *notifications.Message) { m.Code = code })

	return u.Profile(), nil
}

// ResendCode replaces the pending verification code with a fresh one.
func (s *Service) ResendCode(ctx context.Context, email string) error {
	return s.observe("resend_code", s.resendCode(ctx, email))
}

func (s *Service) resendCode(ctx context.Context, email string) error {
	email = user.NormalizeEmail(email)
	if email == "" {
		return apperr.Validation("missing_email", "Email is required")
	}

	u, err := s.repo.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, user.ErrNotFound) {
			return apperr.NotFound("user_not_found", "No account with that email")
		}
		return internal(err)
	}
	if u.IsVerified {
		return otpError(auth.ErrAlreadyVerified)
	}

	code, expiresAt, err := s.otp.Generate()
	if err != nil {
		return internal(err)
	}

	if err := s.repo.SetOTP(ctx, u.ID, code, expiresAt); err != nil {
		if errors.Is(err, user.ErrStateChanged) {
			return otpError(auth.ErrAlreadyVerified)
		}
		return internal(err)
	}

	s.notify(ctx, notifications.KindVerificationCode, u, func(m *notifications.Message) { m.Code = code })
	return nil
}

// VerifyEmail redeems a verification code. The checks run in a fixed order
// and the redemption itself is a single conditional write.
func (s *Service) VerifyEmail(ctx context.Context, email, code string) (user.Profile, error) {
	p, err := s.verifyEmail(ctx, email, code)
	return p, s.observe("verify_email", err)
}

func (s *Service) verifyEmail(ctx context.Context, email, code string) (user.Profile, error) {
	email = user.NormalizeEmail(email)
	code = strings.TrimSpace(code)

	if email == "" {
		return user.Profile{}, apperr.Validation("missing_email", "Email is required")
	}
	if code == "" {
		return user.Profile{}, apperr.Validation("missing_code", "Verification code is required")
	}

	u, err := s.repo.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, user.ErrNotFound) {
			return user.Profile{}, apperr.NotFound("user_not_found", "No account with that email")
		}
		return user.Profile{}, internal(err)
	}

	err = s.otp.Validate(auth.OTPCheck{
		StoredCode:      u.OTPCode,
		StoredExpiresAt: u.OTPExpiresAt,
		AlreadyVerified: u.IsVerified,
		Supplied:        code,
	})
	if err != nil {
		return user.Profile{}, otpError(err)
	}

	if err := s.repo.ConsumeOTP(ctx, u.ID, code, s.now().UTC()); err != nil {
		if errors.Is(err, user.ErrStateChanged) {
			// another request redeemed or replaced the code first
			return user.Profile{}, otpError(auth.ErrCodeNotFound)
		}
		return user.Profile{}, internal(err)
	}

	u.IsVerified = true
	u.OTPCode = nil
	u.OTPExpiresAt = nil
	return u.Profile(), nil
}

func otpError(err error) error {
	switch {
	case errors.Is(err, auth.ErrAlreadyVerified):
		return apperr.Validation("already_verified", "Account is already verified")
	case errors.Is(err, auth.ErrCodeNotFound):
		return apperr.Validation("code_not_found", "No verification code on file")
	case errors.Is(err, auth.ErrCodeExpired):
		return apperr.Validation("code_expired", "Verification code has expired")
	case errors.Is(err, auth.ErrCodeMismatch):
		return apperr.Validation("code_mismatch", "Verification code is incorrect")
	default:
		return internal(err)
	}
}

// Login checks credentials and always issues a fresh session token.
// Unknown accounts still pay for one bcrypt comparison, and an unverified
// account is reported as such whether or not the password matched.
func (s *Service) Login(ctx context.Context, in LoginInput) (LoginResult, error) {
	res, err := s.login(ctx, in)
	return res, s.observe("login", err)
}

func (s *Service) login(ctx context.Context, in LoginInput) (LoginResult, error) {
	login := strings.TrimSpace(in.Login)
	if login == "" {
		return LoginResult{}, apperr.Validation("missing_login", "Username or email is required")
	}
	if in.Password == "" {
		return LoginResult{}, apperr.Validation("missing_password", "Password is required")
	}

	u, err := s.repo.GetByLogin(ctx, login)
	if err != nil {
		if errors.Is(err, user.ErrNotFound) {
			security.BurnCompare(in.Password)
			return LoginResult{}, errInvalidCredentials
		}
		return LoginResult{}, internal(err)
	}

	passwordOK := security.VerifyPassword(u.PasswordHash, in.Password)

	if !u.IsVerified {
		return LoginResult{}, apperr.VerificationRequired("verification_required", "Please verify your email before logging in")
	}
	if !passwordOK {
		return LoginResult{}, errInvalidCredentials
	}

	token, err := s.tokens.Issue(identityOf(u))
	if err != nil {
		return LoginResult{}, internal(err)
	}

	s.notify(ctx, notifications.KindLoginAlert, u, nil)

	return LoginResult{
		Token:                  token,
		Profile:                u.Profile(),
		RequiresPasswordChange: u.IsFirstLogin,
	}, nil
}

// Logout has nothing to revoke; it only sends the alert when the caller was signed in.
func (s *Service) Logout(ctx context.Context, id auth.Identity, authenticated bool) {
	if !authenticated {
		s.metrics.ObserveAuth("logout", "anonymous")
		return
	}

	s.notify(ctx, notifications.KindLogoutAlert, user.User{Email: id.Email, Username: id.Username}, nil)
	s.metrics.ObserveAuth("logout", "ok")
}

// ChangePassword requires the current password and clears the first-login flag.
func (s *Service) ChangePassword(ctx context.Context, id auth.Identity, current, next string) error {
	return s.observe("change_password", s.changePassword(ctx, id, current, next))
}

func (s *Service) changePassword(ctx context.Context, id auth.Identity, current, next string) error {
	if current == "" {
		return apperr.Validation("missing_current_password", "Current password is required")
	}
	if err := s.checkPassword("new_password", next); err != nil {
		return err
	}

	u, err := s.repo.GetByID(ctx, id.UserID)
	if err != nil {
		if errors.Is(err, user.ErrNotFound) {
			return apperr.Authentication("unauthorized", "Not authenticated")
		}
		return internal(err)
	}

	if !security.VerifyPassword(u.PasswordHash, current) {
		return apperr.Authentication("wrong_password", "Current password is incorrect")
	}

	hash, err := security.HashPassword(next)
	if err != nil {
		return internal(err)
	}

	if err := s.repo.UpdatePassword(ctx, u.ID, hash); err != nil {
		if errors.Is(err, user.ErrNotFound) {
			return apperr.Authentication("unauthorized", "Not authenticated")
		}
		return internal(err)
	}

	s.notify(ctx, notifications.KindPasswordChanged, u, nil)
	return nil
}

// RequestReset stores a fresh reset token when the account exists. The
// answer is the same either way.
func (s *Service) RequestReset(ctx context.Context, email string) error {
	return s.observe("request_reset", s.requestReset(ctx, email))
}

func (s *Service) requestReset(ctx context.Context, email string) error {
	email = user.NormalizeEmail(email)
	if email == "" {
		return apperr.Validation("missing_email", "Email is required")
	}

	token, expiresAt, err := s.reset.Generate()
	if err != nil {
		return internal(err)
	}

	u, err := s.repo.SetResetToken(ctx, email, token, expiresAt)
	if err != nil {
		if errors.Is(err, user.ErrNotFound) {
			s.log.DebugContext(ctx, "reset requested for unknown email")
			return nil
		}
		return internal(err)
	}

	s.notify(ctx, notifications.KindPasswordReset, u, func(m *notifications.Message) { m.Token = token })
	return nil
}

// ResetPassword redeems a reset token. Unknown, expired and already used
// tokens are indistinguishable.
func (s *Service) ResetPassword(ctx context.Context, token, next string) error {
	return s.observe("reset_password", s.resetPassword(ctx, token, next))
}

var errResetTokenInvalid = apperr.Validation("reset_token_invalid", "Reset link is invalid or has expired")

func (s *Service) resetPassword(ctx context.Context, token, next string) error {
	token = strings.TrimSpace(token)
	if token == "" {
		return apperr.Validation("missing_token", "Reset token is required")
	}
	if err := s.checkPassword("password", next); err != nil {
		return err
	}
	if !auth.LooksValid(token) {
		return errResetTokenInvalid
	}

	hash, err := security.HashPassword(next)
	if err != nil {
		return internal(err)
	}

	u, err := s.repo.ResetPassword(ctx, token, hash, s.reset.Now())
	if err != nil {
		if errors.Is(err, user.ErrResetTokenInvalid) {
			return errResetTokenInvalid
		}
		return internal(err)
	}

	s.notify(ctx, notifications.KindPasswordChanged, u, nil)
	return nil
}

// Me returns the current profile. A token whose account is gone counts as unauthenticated.
func (s *Service) Me(ctx context.Context, id auth.Identity) (user.Profile, error) {
	u, err := s.repo.GetByID(ctx, id.UserID)
	if err != nil {
		if errors.Is(err, user.ErrNotFound) {
			return user.Profile{}, apperr.Authentication("unauthorized", "Not authenticated")
		}
		return user.Profile{}, internal(err)
	}
	return u.Profile(), nil
}

func identityOf(u user.User) auth.Identity {
	return auth.Identity{
		UserID:   u.ID,
		Username: u.Username,
		Email:    u.Email,
		Role:     u.Role,
	}
}

func mapCreateErr(err error) error {
	switch {
	case errors.Is(err, user.ErrUsernameTaken):
		return apperr.Conflict("username_taken", "Username is already taken")
	case errors.Is(err, user.ErrEmailTaken):
		return apperr.Conflict("email_taken", "Email is already registered")
	default:
		return internal(err)
	}
}
