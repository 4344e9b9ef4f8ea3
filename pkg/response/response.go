package response

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/ems-calendar/backend/internal/apperr"
)

// Body is the standard API response envelope.
type Body struct {
	Success     bool        `json:"success"`
	Data        interface{} `json:"data,omitempty"`
	Error       string      `json:"error,omitempty"`
	ConflictIDs []uuid.UUID `json:"conflict_ids,omitempty"`
}

// OK sends a 200 JSON response with data.
func OK(c *gin.Context, data interface{}) {
	c.JSON(http.StatusOK, Body{Success: true, Data: data})
}

// Created sends a 201 JSON response with data.
func Created(c *gin.Context, data interface{}) {
	c.JSON(http.StatusCreated, Body{Success: true, Data: data})
}

// NoContent sends 204.
func NoContent(c *gin.Context) {
	c.Status(http.StatusNoContent)
}

// BadRequest sends 400 with error message.
func BadRequest(c *gin.Context, err string) {
	c.JSON(http.StatusBadRequest, Body{Success: false, Error: err})
}

// Unauthorized sends 401.
func Unauthorized(c *gin.Context, err string) {
	c.JSON(http.StatusUnauthorized, Body{Success: false, Error: err})
}

// Forbidden sends 403.
func Forbidden(c *gin.Context, err string) {
	c.JSON(http.StatusForbidden, Body{Success: false, Error: err})
}

// NotFound sends 404.
func NotFound(c *gin.Context, err string) {
	c.JSON(http.StatusNotFound, Body{Success: false, Error: err})
}

// Conflict sends 409 with the ids of the conflicting events.
func Conflict(c *gin.Context, err string, ids []uuid.UUID) {
	c.JSON(http.StatusConflict, Body{Success: false, Error: err, ConflictIDs: ids})
}

// TooManyRequests sends 429.
func TooManyRequests(c *gin.Context, err string) {
	c.JSON(http.StatusTooManyRequests, Body{Success: false, Error: err})
}

// ServiceUnavailable sends 503.
func ServiceUnavailable(c *gin.Context, err string) {
	c.JSON(http.StatusServiceUnavailable, Body{Success: false, Error: err})
}

// Internal sends 500.
func Internal(c *gin.Context, err string) {
	c.JSON(http.StatusInternalServerError, Body{Success: false, Error: err})
}

// Error sends the status matching a domain error's kind. Errors without a kind are reported as a
// generic 500 and the cause is attached to the gin context for the request logger.
func Error(c *gin.Context, err error) {
	kind := apperr.KindOf(err)
	msg := "internal server error"
	var e *apperr.Error
	if kind != apperr.KindInternal && errors.As(err, &e) {
		msg = e.Message
	}
	switch kind {
	case apperr.KindNotFound:
		NotFound(c, msg)
	case apperr.KindForbidden:
		Forbidden(c, msg)
	case apperr.KindConflict:
		Conflict(c, msg, apperr.ConflictIDs(err))
	case apperr.KindValidation, apperr.KindInvalidOperation:
		BadRequest(c, msg)
	default:
		_ = c.Error(err)
		Internal(c, msg)
	}
}
