package middlewares

import (
	"github.com/geocoder89/projecthub/internal/apperr"
	"github.com/gin-gonic/gin"
)

// abortWithError writes the same failure envelope the handlers use.
func abortWithError(c *gin.Context, status int, kind apperr.Kind, code, message string) {
	reqID, _ := c.Get(CtxRequestID)

	c.AbortWithStatusJSON(status, gin.H{
		"success": false,
		"message": message,
		"error": gin.H{
			"code":      code,
			"kind":      kind.String(),
			"message":   message,
			"requestId": reqID,
		},
	})
}
