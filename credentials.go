package credauth

import (
	"fmt"
	"regexp"
	"strings"
	"unicode/utf8"
)

// Input length limits. bcrypt ignores input beyond 72 bytes so longer
// passwords are rejected rather than silently truncated. Emails are capped at
// the RFC 5321 path limit.
const (
	MinPasswordLength = 8
	MaxPasswordLength = 72
	MaxNameLength     = 100
	MaxEmailLength    = 254
)

var emailRegex = regexp.MustCompile(`^[a-zA-Z0-9._%+-]+@[a-zA-Z0-9.-]+\.[a-zA-Z]{2,}$`)

// RegisterRequest is the input to Register
type RegisterRequest struct {
	Name     string `json:"name"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

// AuthenticateRequest is the input to Authenticate
type AuthenticateRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// PasswordResetRequest is the input to RequestPasswordReset
type PasswordResetRequest struct {
	Email string `json:"email"`
}

// ResetPasswordRequest is the input to ResetPassword
type ResetPasswordRequest struct {
	Token    string `json:"token"`
	Password string `json:"password"`
}

// VerifyEmailRequest is the input to VerifyEmail
type VerifyEmailRequest struct {
	Token string `json:"token"`
}

// Validate checks the registration fields
func (r *RegisterRequest) Validate() *AuthError {
	details := map[string]string{}
	name := strings.TrimSpace(r.Name)
	if name == "" {
		details["name"] = "Name is required"
	} else if utf8.RuneCountInString(name) > MaxNameLength {
		details["name"] = fmt.Sprintf("Name must be at most %d characters", MaxNameLength)
	}
	checkEmail(details, r.Email)
	checkPassword(details, r.Password)
	if len(details) > 0 {
		return validationError(details)
	}
	return nil
}

// Validate checks the sign-in fields
func (r *AuthenticateRequest) Validate() *AuthError {
	details := map[string]string{}
	checkEmail(details, r.Email)
	if r.Password == "" {
		details["password"] = "Password is required"
	}
	if len(details) > 0 {
		return validationError(details)
	}
	return nil
}

// Validate checks the reset request fields
func (r *PasswordResetRequest) Validate() *AuthError {
	details := map[string]string{}
	checkEmail(details, r.Email)
	if len(details) > 0 {
		return validationError(details)
	}
	return nil
}

// Validate checks the reset fields
func (r *ResetPasswordRequest) Validate() *AuthError {
	details := map[string]string{}
	if r.Token == "" {
		details["token"] = "Token is required"
	}
	checkPassword(details, r.Password)
	if len(details) > 0 {
		return validationError(details)
	}
	return nil
}

// Validate checks the verification fields
func (r *VerifyEmailRequest) Validate() *AuthError {
	if r.Token == "" {
		return validationError(map[string]string{"token": "Verification token is required"})
	}
	return nil
}

func checkEmail(details map[string]string, email string) {
	if email == "" {
		details["email"] = "Email is required"
	} else if len(email) > MaxEmailLength {
		details["email"] = fmt.Sprintf("Email must be at most %d characters", MaxEmailLength)
	} else if !emailRegex.MatchString(email) {
		details["email"] = "Invalid email address"
	}
}

func checkPassword(details map[string]string, password string) {
	switch {
	case len(password) < MinPasswordLength:
		details["password"] = fmt.Sprintf("Password must be at least %d characters", MinPasswordLength)
	case len(password) > MaxPasswordLength:
		details["password"] = fmt.Sprintf("Password must be at most %d bytes", MaxPasswordLength)
	}
}
