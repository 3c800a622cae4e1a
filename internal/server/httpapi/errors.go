package httpapi

import (
	"context"
	"errors"
	"net/http"

	"github.com/dmitrijs2005/tokenkeeper/internal/server/services"
	"github.com/gin-gonic/gin"
)

// envelope is the body of every JSON response.
type envelope struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
	Data    any    `json:"data,omitempty"`
}

const errorKindKey = "error_kind"

var statusByKind = map[services.Kind]int{
	services.KindValidation:            http.StatusBadRequest,
	services.KindPasswordMismatch:      http.StatusUnprocessableEntity,
	services.KindDuplicateRegistration: http.StatusConflict,
	services.KindRateLimited:           http.StatusTooManyRequests,
	services.KindEmptyToken:            http.StatusUnauthorized,
	services.KindMalformedToken:        http.StatusUnauthorized,
	services.KindExpiredToken:          http.StatusUnauthorized,
	services.KindRevokedToken:          http.StatusUnauthorized,
	services.KindDeviceMismatch:        http.StatusUnauthorized,
	services.KindTokenNotFound:         http.StatusUnauthorized,
	services.KindAuthenticationError:   http.StatusUnauthorized,
	services.KindInvalidCredentials:    http.StatusUnauthorized,
	services.KindForbidden:             http.StatusForbidden,
	services.KindUserNotFound:          http.StatusNotFound,
	services.KindConfiguration:         http.StatusInternalServerError,
	services.KindInternal:              http.StatusInternalServerError,
}

func statusFor(kind services.Kind) int {
	if st, ok := statusByKind[kind]; ok {
		return st
	}
	return http.StatusInternalServerError
}

// publicMessage hides which auth check failed and any server detail unless
// running in development.
func (s *HTTPServer) publicMessage(err error) string {
	msg := err.Error()
	var se *services.Error
	if errors.As(err, &se) {
		msg = se.Msg
	}
	if s.opts.Development {
		return msg
	}

	kind := services.KindOf(err)
	switch {
	case kind == services.KindForbidden:
		return "forbidden"
	case kind.Class() == services.ClassAuth:
		return "unauthorized"
	case kind.Class() == services.ClassServer:
		return "internal server error"
	}
	return msg
}

func (s *HTTPServer) writeError(c *gin.Context, err error) {
	if errors.Is(c.Request.Context().Err(), context.DeadlineExceeded) {
		s.logger.Warn(c.Request.Context(), "request timed out", "error", err, "request_id", c.GetString(requestIDKey))
		abortTimeout(c)
		return
	}

	kind := services.KindOf(err)
	status := statusFor(kind)
	c.Set(errorKindKey, string(kind))

	if status >= http.StatusInternalServerError {
		s.logger.Error(c.Request.Context(), "request failed", "kind", kind, "error", err, "request_id", c.GetString(requestIDKey))
	}

	c.AbortWithStatusJSON(status, envelope{Success: false, Message: s.publicMessage(err)})
}

func writeOK(c *gin.Context, status int, message string, data any) {
	c.JSON(status, envelope{Success: true, Message: message, Data: data})
}
