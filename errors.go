package credauth

import (
	"errors"
	"net/http"
)

// Error codes returned to clients
const (
	ErrCodeValidation            = "validation_error"
	ErrCodeTokenNotFound         = "invalid_token"
	ErrCodeTokenExpired          = "expired_token"
	ErrCodeInvalidOrExpiredToken = "invalid_or_expired_token"
	ErrCodeEmailTaken            = "email_taken"
	ErrCodeInvalidCredentials    = "invalid_credentials"
	ErrCodeOAuthOnlyAccount      = "oauth_only_account"
	ErrCodeEmailNotVerified      = "email_not_verified"
	ErrCodeUnauthorized          = "unauthorized"
	ErrCodeForbidden             = "forbidden"
	ErrCodeRateLimited           = "rate_limited"
	ErrCodeTransitionFailed      = "transition_failed"
	ErrCodeInternal              = "internal_error"
)

// AuthError is the tagged error returned by every workflow operation.
// Code selects the HTTP status; Err carries an internal cause that is logged
// but never shown to callers.
type AuthError struct {
	Code    string            `json:"code"`
	Message string            `json:"error"`
	Field   string            `json:"field,omitempty"`
	Details map[string]string `json:"details,omitempty"`
	Err     error             `json:"-"`
}

// NewAuthError creates an AuthError
func NewAuthError(code, message, field string) *AuthError {
	return &AuthError{Code: code, Message: message, Field: field}
}

func (e *AuthError) Error() string {
	if e.Err != nil {
		return e.Message + ": " + e.Err.Error()
	}
	return e.Message
}

func (e *AuthError) Unwrap() error { return e.Err }

// Is matches any AuthError with the same code, so wrapped copies of a
// sentinel still compare equal to it.
func (e *AuthError) Is(target error) bool {
	t, ok := target.(*AuthError)
	return ok && t.Code == e.Code
}

// Status maps the error code to an HTTP status
func (e *AuthError) Status() int {
	switch e.Code {
	case ErrCodeValidation, ErrCodeTokenNotFound, ErrCodeTokenExpired,
		ErrCodeInvalidOrExpiredToken, ErrCodeEmailTaken:
		return http.StatusBadRequest
	case ErrCodeInvalidCredentials, ErrCodeOAuthOnlyAccount,
		ErrCodeEmailNotVerified, ErrCodeUnauthorized:
		return http.StatusUnauthorized
	case ErrCodeForbidden:
		return http.StatusForbidden
	case ErrCodeRateLimited:
		return http.StatusTooManyRequests
	default:
		return http.StatusInternalServerError
	}
}

// Public returns a copy without the internal cause
func (e *AuthError) Public() *AuthError {
	out := *e
	out.Err = nil
	return &out
}

// with returns a copy of the sentinel carrying cause
func (e *AuthError) with(cause error) *AuthError {
	out := *e
	out.Err = cause
	return &out
}

var (
	ErrTokenNotFound         = NewAuthError(ErrCodeTokenNotFound, "Invalid verification token", "token")
	ErrTokenExpired          = NewAuthError(ErrCodeTokenExpired, "Verification token has expired", "token")
	ErrInvalidOrExpiredToken = NewAuthError(ErrCodeInvalidOrExpiredToken, "Invalid or expired reset token", "token")
	ErrEmailTaken            = NewAuthError(ErrCodeEmailTaken, "User with this email already exists", "email")
	ErrInvalidCredentials    = NewAuthError(ErrCodeInvalidCredentials, "Invalid email or password", "")
	ErrOAuthOnlyAccount      = NewAuthError(ErrCodeOAuthOnlyAccount, "This account was created with OAuth. Please sign in with Google.", "")
	ErrEmailNotVerified      = NewAuthError(ErrCodeEmailNotVerified, "Please verify your email before signing in", "")
	ErrUnauthorized          = NewAuthError(ErrCodeUnauthorized, "Authentication required", "")
	ErrForbidden             = NewAuthError(ErrCodeForbidden, "Not authorized", "")
	ErrRateLimited           = NewAuthError(ErrCodeRateLimited, "Too many requests", "")
	ErrTransitionFailed      = NewAuthError(ErrCodeTransitionFailed, "Internal server error", "")
	ErrInternal              = NewAuthError(ErrCodeInternal, "Internal server error", "")
)

// internalError wraps an unexpected failure as ErrInternal
func internalError(cause error) *AuthError {
	return ErrInternal.with(cause)
}

// AsAuthError converts any error into an AuthError, treating unknown errors
// as internal failures.
func AsAuthError(err error) *AuthError {
	if err == nil {
		return nil
	}
	var authErr *AuthError
	if errors.As(err, &authErr) {
		return authErr
	}
	return internalError(err)
}

// validationError builds a field-level validation failure
func validationError(details map[string]string) *AuthError {
	err := NewAuthError(ErrCodeValidation, "Invalid input data", "")
	err.Details = details
	for field := range details {
		if err.Field == "" || field < err.Field {
			err.Field = field
		}
	}
	return err
}
