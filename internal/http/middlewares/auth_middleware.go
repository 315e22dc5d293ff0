package middlewares

import (
	"errors"
	"net/http"

	"github.com/geocoder89/projecthub/internal/actorctx"
	"github.com/geocoder89/projecthub/internal/apperr"
	"github.com/geocoder89/projecthub/internal/auth"
	"github.com/gin-gonic/gin"
)

// SessionCookieName is the cookie carrying the session token.
const SessionCookieName = "token"

var (
	ErrNoCredential      = errors.New("no credential")
	ErrInvalidCredential = errors.New("invalid credential")
)

// Keep this small interface so tests can fake it easily.
type TokenVerifier interface {
	Verify(token string) (*auth.Claims, error)
}

type AuthMiddleware struct {
	tokens TokenVerifier
}

func NewAuthMiddleware(tokens TokenVerifier) *AuthMiddleware {
	return &AuthMiddleware{tokens: tokens}
}

// AuthResult is the non-aborting outcome of the gate.
type AuthResult struct {
	Authenticated bool
	Identity      auth.Identity
	// Err is ErrNoCredential or ErrInvalidCredential when not authenticated.
	Err error
}

// authenticate is the one verification path behind both gate shapes.
func (m *AuthMiddleware) authenticate(c *gin.Context) (auth.Identity, error) {
	raw, err := c.Cookie(SessionCookieName)
	if err != nil || raw == "" {
		return auth.Identity{}, ErrNoCredential
	}

	claims, err := m.tokens.Verify(raw)
	if err != nil {
		return auth.Identity{}, ErrInvalidCredential
	}

	return claims.Identity(), nil
}

func attach(c *gin.Context, id auth.Identity) {
	c.Set(ctxIdentity, id)
	c.Request = c.Request.WithContext(actorctx.WithIdentity(c.Request.Context(), id))
}

// Check runs the gate and reports the outcome without writing a response.
func (m *AuthMiddleware) Check(c *gin.Context) AuthResult {
	id, err := m.authenticate(c)
	if err != nil {
		return AuthResult{Err: err}
	}

	attach(c, id)
	return AuthResult{Authenticated: true, Identity: id}
}

// RequireAuth stops the request with 401 when there is no valid session.
func (m *AuthMiddleware) RequireAuth() gin.HandlerFunc {
	return func(c *gin.Context) {
		res := m.Check(c)

		if !res.Authenticated {
			message := "Not authenticated"
			code := "no_credential"
			if errors.Is(res.Err, ErrInvalidCredential) {
				message = "Invalid or expired session"
				code = "invalid_credential"
			}
			abortWithError(c, http.StatusUnauthorized, apperr.KindAuthentication, code, message)
			return
		}

		c.Next()
	}
}

// Identify never aborts. Handlers read the outcome with AuthResultFromContext.
func (m *AuthMiddleware) Identify() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Set(ctxAuthResult, m.Check(c))
		c.Next()
	}
}

// Optional helpers so handlers don’t need to know the magic keys.

func IdentityFromContext(c *gin.Context) (auth.Identity, bool) {
	v, ok := c.Get(ctxIdentity)
	if !ok {
		return auth.Identity{}, false
	}
	id, ok := v.(auth.Identity)
	return id, ok && id.UserID != ""
}

func AuthResultFromContext(c *gin.Context) AuthResult {
	v, ok := c.Get(ctxAuthResult)
	if !ok {
		return AuthResult{Err: ErrNoCredential}
	}
	res, _ := v.(AuthResult)
	return res
}
