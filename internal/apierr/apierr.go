// Package apierr defines the error-kind taxonomy shared by the control and
// generation planes and its mapping onto HTTP status codes.
package apierr

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

type Kind string

const (
	KindAuthMissing Kind = "auth_missing"
	KindAuthInvalid Kind = "auth_invalid"
	KindForbidden   Kind = "forbidden"
	KindBadRequest  Kind = "bad_request"
	KindNotFound    Kind = "not_found"
	KindConflict    Kind = "conflict"
	KindInternal    Kind = "internal"
)

// Error is a typed application error carrying both a machine-readable Kind
// and the user-facing message returned in the JSON error envelope.
type Error struct {
	Kind    Kind
	Message string
}

func (e *Error) Error() string { return e.Message }

func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// Status maps a Kind onto its HTTP status code.
func Status(kind Kind) int {
	switch kind {
	case KindAuthMissing, KindAuthInvalid:
		return http.StatusUnauthorized
	case KindForbidden:
		return http.StatusForbidden
	case KindBadRequest:
		return http.StatusBadRequest
	case KindNotFound:
		return http.StatusNotFound
	case KindConflict:
		return http.StatusConflict
	case KindInternal:
		return http.StatusInternalServerError
	default:
		return http.StatusInternalServerError
	}
}

// Abort writes the standard {"error": kind, "message": ...} envelope at the
// status Kind maps to and stops the gin handler chain.
func Abort(c *gin.Context, kind Kind, message string) {
	c.JSON(Status(kind), gin.H{"error": string(kind), "message": message})
	c.Abort()
}
