package credauth

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"time"
)

// TokenKind distinguishes the two single-use token purposes
type TokenKind string

const (
	TokenKindEmailVerification TokenKind = "email_verification"
	TokenKindPasswordReset     TokenKind = "password_reset"
)

// Default token lifetimes
const (
	TokenExpiryEmailVerification = 24 * time.Hour
	TokenExpiryPasswordReset     = 1 * time.Hour
)

// Lifetime returns the default lifetime for tokens of this kind
func (k TokenKind) Lifetime() time.Duration {
	switch k {
	case TokenKindPasswordReset:
		return TokenExpiryPasswordReset
	default:
		return TokenExpiryEmailVerification
	}
}

// Valid reports whether k is one of the known kinds
func (k TokenKind) Valid() bool {
	return k == TokenKindEmailVerification || k == TokenKindPasswordReset
}

// VerificationToken is a persisted single-use token. Email links the token
// to an account by convention only.
type VerificationToken struct {
	Kind      TokenKind `json:"kind"`
	Token     string    `json:"token"`
	Email     string    `json:"email"`
	CreatedAt time.Time `json:"created_at"`
	ExpiresAt time.Time `json:"expires_at"`
}

// GenerateSecureToken generates a cryptographically secure random token
func GenerateSecureToken() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("failed to generate token: %w", err)
	}
	return hex.EncodeToString(b), nil
}

// IsExpired checks if the token has expired
func (t *VerificationToken) IsExpired() bool {
	return t.IsExpiredAt(time.Now())
}

// IsExpiredAt checks if the token has expired as of now
func (t *VerificationToken) IsExpiredAt(now time.Time) bool {
	return now.After(t.ExpiresAt)
}
