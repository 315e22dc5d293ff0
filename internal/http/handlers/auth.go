package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/geocoder89/projecthub/internal/auth"
	"github.com/geocoder89/projecthub/internal/domain/user"
	"github.com/geocoder89/projecthub/internal/http/middlewares"
	"github.com/geocoder89/projecthub/internal/identity"
	"github.com/gin-gonic/gin"
)

// AccountService is the slice of the identity service the auth routes call.
type AccountService interface {
	Register(ctx context.Context, in identity.RegisterInput) (user.Profile, error)
	ResendCode(ctx context.Context, email string) error
	VerifyEmail(ctx context.Context, email, code string) (user.Profile, error)
	Login(ctx context.Context, in identity.LoginInput) (identity.LoginResult, error)
	Logout(ctx context.Context, id auth.Identity, authenticated bool)
	ChangePassword(ctx context.Context, id auth.Identity, current, next string) error
	RequestReset(ctx context.Context, email string) error
	ResetPassword(ctx context.Context, token, next string) error
	Me(ctx context.Context, id auth.Identity) (user.Profile, error)
}

type CookieConfig struct {
	Secure bool
	MaxAge time.Duration
}

type AuthHandler struct {
	svc    AccountService
	cookie CookieConfig
}

func NewAuthHandler(svc AccountService, cookie CookieConfig) *AuthHandler {
	return &AuthHandler{svc: svc, cookie: cookie}
}

// the minimum length lives in the service so it stays configurable
type RegisterRequest struct {
	Username string `json:"username" binding:"required,max=64,excludes=@"`
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required,max=72"`
}

type VerifyEmailRequest struct {
	Email string `json:"email" binding:"required,email"`
	Code  string `json:"code" binding:"required"`
}

type EmailRequest struct {
	Email string `json:"email" binding:"required,email"`
}

type LoginRequest struct {
	// Login accepts a username or an email address.
	Login    string `json:"login" binding:"required"`
	Password string `json:"password" binding:"required"`
}

type ChangePasswordRequest struct {
	CurrentPassword string `json:"currentPassword" binding:"required"`
	NewPassword     string `json:"newPassword" binding:"required,max=72"`
}

type ResetPasswordRequest struct {
	Token       string `json:"token" binding:"required"`
	NewPassword string `json:"newPassword" binding:"required,max=72"`
}

type LoginResponse struct {
	User                   user.Profile `json:"user"`
	RequiresPasswordChange bool         `json:"requiresPasswordChange"`
}

const resetRequestedMessage = "If an account exists for that email, a reset link has been sent"

func (h *AuthHandler) Register(ctx *gin.Context) {
	var req RegisterRequest

	if !BindJSON(ctx, &req) {
		return
	}

	p, err := h.svc.Register(ctx.Request.Context(), identity.RegisterInput{
		Username: req.Username,
		Email:    req.Email,
		Password: req.Password,
	})
	if err != nil {
		RespondErr(ctx, err)
		return
	}

	RespondOK(ctx, http.StatusCreated, "Account created. Check your email for a verification code", p)
}

func (h *AuthHandler) VerifyEmail(ctx *gin.Context) {
	var req VerifyEmailRequest

	if !BindJSON(ctx, &req) {
		return
	}

	p, err := h.svc.VerifyEmail(ctx.Request.Context(), req.Email, req.Code)
	if err != nil {
		RespondErr(ctx, err)
		return
	}

	RespondOK(ctx, http.StatusOK, "Email verified", p)
}

func (h *AuthHandler) ResendCode(ctx *gin.Context) {
	var req EmailRequest

	if !BindJSON(ctx, &req) {
		return
	}

	if err := h.svc.ResendCode(ctx.Request.Context(), req.Email); err != nil {
		RespondErr(ctx, err)
		return
	}

	RespondOK(ctx, http.StatusOK, "A new verification code has been sent", nil)
}

func (h *AuthHandler) Login(ctx *gin.Context) {
	var req LoginRequest

	if !BindJSON(ctx, &req) {
		return
	}

	res, err := h.svc.Login(ctx.Request.Context(), identity.LoginInput{
		Login:    req.Login,
		Password: req.Password,
	})
	if err != nil {
		RespondErr(ctx, err)
		return
	}

	h.setSessionCookie(ctx, res.Token)

	message := "Logged in"
	if res.RequiresPasswordChange {
		message = "Password change required"
	}

	RespondOK(ctx, http.StatusOK, message, LoginResponse{
		User:                   res.Profile,
		RequiresPasswordChange: res.RequiresPasswordChange,
	})
}

// Logout always succeeds. The token itself stays valid until it expires.
func (h *AuthHandler) Logout(ctx *gin.Context) {
	result := middlewares.AuthResultFromContext(ctx)

	h.svc.Logout(ctx.Request.Context(), result.Identity, result.Authenticated)
	h.clearSessionCookie(ctx)

	RespondOK(ctx, http.StatusOK, "Logged out", nil)
}

func (h *AuthHandler) ChangePassword(ctx *gin.Context) {
	id, ok := middlewares.IdentityFromContext(ctx)
	if !ok {
		RespondUnauthorized(ctx, "Not authenticated")
		return
	}

	var req ChangePasswordRequest

	if !BindJSON(ctx, &req) {
		return
	}

	if err := h.svc.ChangePassword(ctx.Request.Context(), id, req.CurrentPassword, req.NewPassword); err != nil {
		RespondErr(ctx, err)
		return
	}

	RespondOK(ctx, http.StatusOK, "Password updated", nil)
}

func (h *AuthHandler) ForgotPassword(ctx *gin.Context) {
	var req EmailRequest

	if !BindJSON(ctx, &req) {
		return
	}

	if err := h.svc.RequestReset(ctx.Request.Context(), req.Email); err != nil {
		RespondErr(ctx, err)
		return
	}

	RespondOK(ctx, http.StatusOK, resetRequestedMessage, nil)
}

func (h *AuthHandler) ResetPassword(ctx *gin.Context) {
	var req ResetPasswordRequest

	if !BindJSON(ctx, &req) {
		return
	}

	if err := h.svc.ResetPassword(ctx.Request.Context(), req.Token, req.NewPassword); err != nil {
		RespondErr(ctx, err)
		return
	}

	RespondOK(ctx, http.StatusOK, "Password has been reset", nil)
}

func (h *AuthHandler) Me(ctx *gin.Context) {
	id, ok := middlewares.IdentityFromContext(ctx)
	if !ok {
		RespondUnauthorized(ctx, "Not authenticated")
		return
	}

	p, err := h.svc.Me(ctx.Request.Context(), id)
	if err != nil {
		RespondErr(ctx, err)
		return
	}

	RespondOK(ctx, http.StatusOK, "OK", p)
}

func (h *AuthHandler) setSessionCookie(ctx *gin.Context, token string) {
	ctx.SetSameSite(http.SameSiteLaxMode)

	ctx.SetCookie(
		middlewares.SessionCookieName,
		token,
		int(h.cookie.MaxAge.Seconds()),
		"/",
		"",
		h.cookie.Secure,
		true, // HttpOnly.
	)
}

func (h *AuthHandler) clearSessionCookie(ctx *gin.Context) {
	ctx.SetSameSite(http.SameSiteLaxMode)

	// negative MaxAge is written as Max-Age=0
	ctx.SetCookie(
		middlewares.SessionCookieName,
		"",
		-1,
		"/",
		"",
		h.cookie.Secure,
		true,
	)
}
