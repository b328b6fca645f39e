package errors

import (
	"errors"
	"fmt"
	"net/http"
)

// AppError is the error shape rendered to API consumers. Errno doubles as the
// HTTP status code, matching what downstream comment systems expect.
type AppError struct {
	Errno    int    `json:"errno"`
	Message  string `json:"message"`
	Internal error  `json:"-"`
}

func (e *AppError) Error() string {
	if e == nil {
		return "<nil>"
	}
	if e.Internal != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Internal)
	}
	return e.Message
}

// Unwrap exposes the internal error for errors.Is / errors.As compatibility.
func (e *AppError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Internal
}

// WithInternal returns a copy of the AppError with an attached internal error.
func (e *AppError) WithInternal(err error) *AppError {
	if e == nil {
		return nil
	}
	cpy := *e
	cpy.Internal = err
	return &cpy
}

// Sentinel errors for conditions that carry no upstream detail.
var (
	ErrUnknownProvider = &AppError{
		Errno:   http.StatusNotFound,
		Message: "Unknown OAuth provider",
	}

	ErrInvalidState = &AppError{
		Errno:   http.StatusBadRequest,
		Message: "OAuth state is invalid or could not be decoded",
	}

	ErrTokenMissing = &AppError{
		Errno:   http.StatusUnauthorized,
		Message: "Provider did not return an access token",
	}

	ErrInternalServer = &AppError{
		Errno:   http.StatusInternalServerError,
		Message: "Internal server error",
	}
)

// New builds an application error with the provided status and message.
func New(errno int, message string) *AppError {
	return &AppError{Errno: errno, Message: message}
}

// Validation flags a normalized identity that is missing mandatory fields.
func Validation(message string) *AppError {
	return &AppError{Errno: http.StatusBadRequest, Message: message}
}

// TokenExchange wraps a failure from a provider token endpoint. The upstream
// message is surfaced so a restarted login can be diagnosed by the caller.
func TokenExchange(err error) *AppError {
	return &AppError{
		Errno:    http.StatusInternalServerError,
		Message:  fmt.Sprintf("token exchange failed: %v", err),
		Internal: err,
	}
}

// ProfileFetch wraps a failure from a provider profile endpoint.
func ProfileFetch(err error) *AppError {
	return &AppError{
		Errno:    http.StatusBadGateway,
		Message:  fmt.Sprintf("profile fetch failed: %v", err),
		Internal: err,
	}
}

// FromError converts a generic error into an AppError, defaulting to ErrInternalServer.
func FromError(err error) *AppError {
	if err == nil {
		return nil
	}

	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr
	}

	return ErrInternalServer.WithInternal(err)
}
