// Package identity implements registration, email verification, login,
// password changes and resets, and team membership over a Repository.
// Every exported method returns either nil or an *apperr.Error.
package identity

import (
	"context"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/geocoder89/projecthub/internal/apperr"
	"github.com/geocoder89/projecthub/internal/auth"
	"github.com/geocoder89/projecthub/internal/domain/user"
	"github.com/geocoder89/projecthub/internal/notifications"
)

// Repository is the identity persistence contract. Conditional writes
// (ConsumeOTP, ResetPassword, Delete, UpdateRole) are atomic.
type Repository interface {
	Create(ctx context.Context, in user.NewUser) (user.User, error)
	GetByID(ctx context.Context, id string) (user.User, error)
	GetByEmail(ctx context.Context, email string) (user.User, error)
	GetByLogin(ctx context.Context, login string) (user.User, error)
	SetOTP(ctx context.Context, id, code string, expiresAt time.Time) error
	ConsumeOTP(ctx context.Context, id, code string, now time.Time) error
	SetResetToken(ctx context.Context, email, token string, expiresAt time.Time) (user.User, error)
	ResetPassword(ctx context.Context, token, passwordHash string, now time.Time) (user.User, error)
	UpdatePassword(ctx context.Context, id, passwordHash string) error
	Delete(ctx context.Context, id string) error
	UpdateRole(ctx context.Context, id string, role user.Role) (user.User, error)
	List(ctx context.Context, f user.ListFilter) ([]user.User, error)
	Ping(ctx context.Context) error
}

type TokenIssuer interface {
	Issue(id auth.Identity) (string, error)
}

// Metrics counts operation outcomes. *observability.Prom implements it.
type Metrics interface {
	ObserveAuth(operation, outcome string)
}

type noopMetrics struct{}

func (noopMetrics) ObserveAuth(string, string) {}

type Deps struct {
	Repo   Repository
	Tokens TokenIssuer
	OTP    *auth.OTPService
	Reset  *auth.ResetTokenService

	// Dispatcher carries fire-and-forget notifications.
	Dispatcher notifications.Dispatcher
	// Invitations must be sent synchronously: a failed invitation undoes the account.
	Invitations notifications.Notifier

	MinPasswordLength int
	Log               *slog.Logger
	Metrics           Metrics
}

type Service struct {
	repo        Repository
	tokens      TokenIssuer
	otp         *auth.OTPService
	reset       *auth.ResetTokenService
	dispatch    notifications.Dispatcher
	invitations notifications.Notifier
	minPassword int
	log         *slog.Logger
	metrics     Metrics
	now         func() time.Time
}

func NewService(d Deps) *Service {
	if d.MinPasswordLength <= 0 {
		d.MinPasswordLength = 6
	}
	if d.Log == nil {
		d.Log = slog.Default()
	}
	if d.Metrics == nil {
		d.Metrics = noopMetrics{}
	}

	return &Service{
		repo:        d.Repo,
		tokens:      d.Tokens,
		otp:         d.OTP,
		reset:       d.Reset,
		dispatch:    d.Dispatcher,
		invitations: d.Invitations,
		minPassword: d.MinPasswordLength,
		log:         d.Log,
		metrics:     d.Metrics,
		now:         time.Now,
	}
}

// Ping reports whether the backing store is reachable.
func (s *Service) Ping(ctx context.Context) error {
	return s.repo.Ping(ctx)
}

// observe records the outcome of op and hands err back unchanged.
func (s *Service) observe(op string, err error) error {
	outcome := "ok"
	if err != nil {
		outcome = apperr.KindOf(err).String()
	}
	s.metrics.ObserveAuth(op, outcome)
	return err
}

func (s *Service) notify(ctx context.Context, kind notifications.Kind, u user.User, fill func(*notifications.Message)) {
	msg := notifications.Message{
		Kind:     kind,
		To:       u.Email,
		Username: u.Username,
		At:       s.now().UTC(),
	}
	if fill != nil {
		fill(&msg)
	}
	s.dispatch.Dispatch(ctx, msg)
}

// maxPasswordBytes is the most bcrypt will hash.
const maxPasswordBytes = 72

func (s *Service) checkPassword(field, password string) error {
	if strings.TrimSpace(password) == "" {
		return apperr.Validation("missing_"+field, "Password is required")
	}
	if len(password) < s.minPassword {
		return apperr.Validation("password_too_short", "Password must be at least "+strconv.Itoa(s.minPassword)+" characters")
	}
	if len(password) > maxPasswordBytes {
		return apperr.Validation("password_too_long", "Password must be at most "+strconv.Itoa(maxPasswordBytes)+" bytes")
	}
	return nil
}

// checkUsername keeps usernames out of the email namespace: a login
// containing "@" is always looked up as an email.
func checkUsername(username string) error {
	if username == "" {
		return apperr.Validation("missing_username", "Username is required")
	}
	if strings.Contains(username, "@") {
		return apperr.Validation("invalid_username", "Username must not contain @")
	}
	return nil
}

func internal(err error) error {
	return apperr.Internal("Something went wrong", err)
}
