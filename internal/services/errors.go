package services

import (
	"errors"
	"fmt"

	"github.com/petercegoh/cs203-MatchMage/internal/validation"
)

// ValidationError is an input that failed a format or uniqueness rule.
// Message is safe to show to the caller.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return e.Message
}

func invalid(field, message string) *ValidationError {
	return &ValidationError{Field: field, Message: message}
}

var (
	// ErrUsernameTaken is the uniqueness failure; errors.As also sees it as a *ValidationError.
	ErrUsernameTaken = invalid("userName", validation.MsgUsernameTaken)

	ErrInvalidCredentials = errors.New("email or password is incorrect")
	ErrEmailNotVerified   = errors.New("email address not verified")
	ErrTooManyRequests    = errors.New("too many requests")
	ErrUserNotFound       = errors.New("user not found")
	ErrInvalidBearerToken = errors.New("invalid bearer token")
	ErrInvalidToken       = errors.New("invalid or expired token")
	ErrEmailExists        = errors.New("email already registered")
)

// AccessDeniedError carries the identity provider's refusal message.
type AccessDeniedError struct {
	Message string
}

func (e *AccessDeniedError) Error() string {
	return e.Message
}

// UpstreamError is a 5xx answer from the identity provider.
type UpstreamError struct {
	StatusCode int
	Message    string
}

func (e *UpstreamError) Error() string {
	return fmt.Sprintf("identity provider error (%d): %s", e.StatusCode, e.Message)
}

// PartialDeleteError reports an account removed from the identity provider
// whose profile document could not be deleted.
type PartialDeleteError struct {
	UID string
	Err error
}

func (e *PartialDeleteError) Error() string {
	return fmt.Sprintf("account %s deleted but its profile was not: %v", e.UID, e.Err)
}

func (e *PartialDeleteError) Unwrap() error {
	return e.Err
}
