package handlers

import (
	"log/slog"
	"net/http"

	"github.com/geocoder89/projecthub/internal/apperr"
	"github.com/gin-gonic/gin"
)

type APIError struct {
	Code      string      `json:"code"`
	Kind      string      `json:"kind"`
	Message   string      `json:"message"`
	RequestID string      `json:"requestId,omitempty"`
	Details   interface{} `json:"details,omitempty"`
}

func requestIDFrom(ctx *gin.Context) string {
	v, ok := ctx.Get("request_id")

	if ok {
		s, ok := v.(string)
		if ok && s != "" {
			return s
		}
	}

	// fallback header
	return ctx.GetHeader("X-Request-Id")
}

// StatusFor maps an error kind to its HTTP status.
func StatusFor(kind apperr.Kind) int {
	switch kind {
	case apperr.KindValidation:
		return http.StatusBadRequest
	case apperr.KindAuthentication:
		return http.StatusUnauthorized
	case apperr.KindVerificationRequired, apperr.KindAuthorization:
		return http.StatusForbidden
	case apperr.KindNotFound:
		return http.StatusNotFound
	case apperr.KindConflict:
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

func RespondOK(ctx *gin.Context, status int, message string, data interface{}) {
	body := gin.H{
		"success": true,
		"message": message,
	}
	if data != nil {
		body["data"] = data
	}
	ctx.JSON(status, body)
}

func RespondError(ctx *gin.Context, status int, kind apperr.Kind, code, message string, details interface{}) {
	ctx.JSON(status, gin.H{
		"success": false,
		"message": message,
		"error": APIError{
			Code:      code,
			Kind:      kind.String(),
			Message:   message,
			RequestID: requestIDFrom(ctx),
			Details:   details,
		},
	})
}

// RespondErr writes any error returned by the identity service. Internal
// failures are logged with their cause and answered with a generic message.
func RespondErr(ctx *gin.Context, err error) {
	e := apperr.As(err)

	if e.Kind == apperr.KindInternal {
		slog.Default().ErrorContext(ctx.Request.Context(), "request.failed",
			"route", ctx.FullPath(),
			"request_id", requestIDFrom(ctx),
			"err", err,
		)
	}

	RespondError(ctx, StatusFor(e.Kind), e.Kind, e.Code, e.Message, nil)
}

func RespondBadRequest(ctx *gin.Context, message string, details interface{}) {
	RespondError(ctx, http.StatusBadRequest, apperr.KindValidation, "invalid_request", message, details)
}

func RespondUnauthorized(ctx *gin.Context, message string) {
	RespondError(ctx, http.StatusUnauthorized, apperr.KindAuthentication, "unauthorized", message, nil)
}

func RespondInternal(ctx *gin.Context, message string) {
	RespondError(ctx, http.StatusInternalServerError, apperr.KindInternal, "internal_error", message, nil)
}
