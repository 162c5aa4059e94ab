// Package httpkit provides HTTP response utilities.
// This is part of the platform layer and contains no business logic.
package httpkit

import (
	"net/http"

	"agent_workbench/platform/apperr"

	"github.com/gin-gonic/gin"
)

// ErrorResponse is the standard error response format.
type ErrorResponse struct {
	Error        string      `json:"error"`
	Code         string      `json:"code"`
	RemoteStatus int         `json:"remoteStatus,omitempty"`
	Details      interface{} `json:"details,omitempty"`
}

// JSON sends a JSON response with the given status code.
func JSON(c *gin.Context, status int, payload interface{}) {
	c.JSON(status, payload)
}

// Error sends an error response with the given status code and message.
func Error(c *gin.Context, status int, message string, details interface{}) {
	c.JSON(status, ErrorResponse{Error: message, Code: codeForStatus(status), Details: details})
}

// OK sends a 200 OK response with the given payload.
func OK(c *gin.Context, payload interface{}) {
	c.JSON(http.StatusOK, payload)
}

// Created sends a 201 Created response with the given payload.
func Created(c *gin.Context, payload interface{}) {
	c.JSON(http.StatusCreated, payload)
}

// HandleError maps domain errors to HTTP responses.
// If the error chain holds a typed *apperr.Error, its Kind decides the status
// code and machine-readable code. Otherwise it is reported as internal.
// Returns true if an error was handled, false otherwise.
func HandleError(c *gin.Context, err error) bool {
	if err == nil {
		return false
	}

	_ = c.Error(err)

	if domainErr, ok := apperr.As(err); ok {
		c.JSON(domainErr.HTTPStatus(), ErrorResponse{
			Error:        domainErr.Message,
			Code:         domainErr.Kind.Code(),
			RemoteStatus: domainErr.Status,
			Details:      domainErr.Details,
		})
		return true
	}

	c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "internal error", Code: apperr.KindInternal.Code()})
	return true
}

func codeForStatus(status int) string {
	switch status {
	case http.StatusBadRequest:
		return apperr.KindValidation.Code()
	case http.StatusUnauthorized:
		return apperr.KindUnauthorized.Code()
	case http.StatusForbidden:
		return apperr.KindForbidden.Code()
	case http.StatusNotFound:
		return apperr.KindNotFound.Code()
	case http.StatusTooManyRequests:
		return "RATE_LIMITED"
	default:
		return apperr.KindUnknown.Code()
	}
}
