package middlewares

import (
	"net/http"

	"github.com/geocoder89/projecthub/internal/apperr"
	"github.com/geocoder89/projecthub/internal/auth"
	"github.com/gin-gonic/gin"
)

// RequirePolicy consults the policy table for op. It must run after RequireAuth.
func (m *AuthMiddleware) RequirePolicy(op auth.Operation) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := IdentityFromContext(c)

		if !ok {
			abortWithError(c, http.StatusUnauthorized, apperr.KindAuthentication, "no_credential", "Missing identity context")
			return
		}
		if !auth.Allowed(op, id.Role) {
			abortWithError(c, http.StatusForbidden, apperr.KindAuthorization, "insufficient_role", "You do not have permission to do this")
			return
		}
		c.Next()
	}
}
