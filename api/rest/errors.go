package rest

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/kasuganosora/guildhall/server/cache"
	"github.com/kasuganosora/guildhall/server/guild"
)

// statusFor maps a guild error kind to an HTTP status.
func statusFor(err error) int {
	switch {
	case errors.Is(err, guild.ErrValidation):
		return http.StatusBadRequest
	case errors.Is(err, guild.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, guild.ErrPermission):
		return http.StatusForbidden
	case errors.Is(err, guild.ErrInvalidTransition):
		return http.StatusUnprocessableEntity
	case errors.Is(err, guild.ErrInvalidState), errors.Is(err, guild.ErrConflict),
		errors.Is(err, cache.ErrLocked):
		return http.StatusConflict
	case errors.Is(err, guild.ErrStorage):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// errorCode is the machine-readable name sent alongside the message.
func errorCode(err error) string {
	switch {
	case errors.Is(err, guild.ErrValidation):
		return "validation"
	case errors.Is(err, guild.ErrNotFound):
		return "not_found"
	case errors.Is(err, guild.ErrPermission):
		return "permission"
	case errors.Is(err, guild.ErrInvalidTransition):
		return "invalid_transition"
	case errors.Is(err, guild.ErrInvalidState):
		return "invalid_state"
	case errors.Is(err, guild.ErrConflict):
		return "conflict"
	case errors.Is(err, cache.ErrLocked):
		return "busy"
	case errors.Is(err, guild.ErrStorage):
		return "storage"
	default:
		return "internal"
	}
}

// respondError writes err as JSON. Storage and unknown failures hide their
// cause from the client.
func respondError(c *gin.Context, err error) {
	status := statusFor(err)
	msg := err.Error()
	switch status {
	case http.StatusServiceUnavailable:
		msg = "storage unavailable, retry later"
	case http.StatusInternalServerError:
		msg = "internal error"
	}
	if errors.Is(err, cache.ErrLocked) {
		msg = "guild busy, retry"
	}
	_ = c.Error(err)
	c.JSON(status, gin.H{"error": msg, "code": errorCode(err)})
}

func badRequest(c *gin.Context, err error) {
	c.JSON(http.StatusBadRequest, gin.H{"error": err.Error(), "code": "validation"})
}
