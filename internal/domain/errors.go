package domain

import "errors"

// Hub error taxonomy. Every error returned to a client maps onto one of
// these sentinels; transport failures are never returned as responses,
// they close the connection instead.
var (
	ErrInvalidCredential = errors.New("invalid or expired credential")
	ErrForbidden         = errors.New("operation requires manager role")
	ErrMatchNotFound     = errors.New("match not found")
	ErrInvalidTransition = errors.New("invalid match status transition")
	ErrBadRequest        = errors.New("malformed request")
	ErrHubClosed         = errors.New("hub is shutting down")
)

// Error codes carried on the wire.
const (
	CodeUnauthorized      = "UNAUTHORIZED"
	CodeForbidden         = "FORBIDDEN"
	CodeNotFound          = "NOT_FOUND"
	CodeInvalidTransition = "INVALID_TRANSITION"
	CodeBadRequest        = "BAD_REQUEST"
	CodeInternalError     = "INTERNAL_ERROR"
)

// ErrorCode maps an error to its wire code.
func ErrorCode(err error) string {
	switch {
	case errors.Is(err, ErrInvalidCredential):
		return CodeUnauthorized
	case errors.Is(err, ErrForbidden):
		return CodeForbidden
	case errors.Is(err, ErrMatchNotFound):
		return CodeNotFound
	case errors.Is(err, ErrInvalidTransition):
		return CodeInvalidTransition
	case errors.Is(err, ErrBadRequest):
		return CodeBadRequest
	default:
		return CodeInternalError
	}
}
