package middlewares

import (
	"net/http"
	"strings"

	"github.com/geocoder89/projecthub/internal/apperr"
	"github.com/gin-gonic/gin"
)

// RequireJSON rejects write requests whose body is not JSON. Body-less
// writes such as logout pass through.
func RequireJSON() gin.HandlerFunc {
	return func(c *gin.Context) {
		switch c.Request.Method {
		case http.MethodPost, http.MethodPut, http.MethodPatch:
			if c.Request.ContentLength == 0 {
				break
			}
			ct := c.GetHeader("Content-Type")
			// allow "application/json; charset=utf-8"
			if ct == "" || !strings.HasPrefix(strings.ToLower(ct), "application/json") {
				abortWithError(c, http.StatusUnsupportedMediaType, apperr.KindValidation, "unsupported_media_type", "Content-Type must be application/json")
				return
			}
		}
		c.Next()
	}
}
