// Package client is a Go client for the credauth HTTP endpoints. It keeps the
// bearer token returned by sign-in in a CredentialStore and attaches it to
// later requests.
package client

import (
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/panyam/credauth"
)

// ServerCredential is the signed-in state for a single server
type ServerCredential struct {
	AccessToken string        `json:"access_token"`
	TokenType   string        `json:"token_type,omitempty"`
	AccountID   string        `json:"account_id,omitempty"`
	Email       string        `json:"email,omitempty"`
	Role        credauth.Role `json:"role,omitempty"`
	ExpiresAt   time.Time     `json:"expires_at"`
	CreatedAt   time.Time     `json:"created_at"`
}

// IsExpired returns true if the access token has expired
func (c *ServerCredential) IsExpired() bool {
	return !c.ExpiresAt.IsZero() && time.Now().After(c.ExpiresAt)
}

// IsExpiringSoon returns true if the token expires within the given duration
func (c *ServerCredential) IsExpiringSoon(within time.Duration) bool {
	return !c.ExpiresAt.IsZero() && time.Now().Add(within).After(c.ExpiresAt)
}

// credentialFromToken reads the claims of a session token without checking
// its signature. Only the server can verify it; the client only needs the
// expiry and identity for display.
func credentialFromToken(token string) *ServerCredential {
	cred := &ServerCredential{AccessToken: token, TokenType: "Bearer", CreatedAt: time.Now()}
	claims := &credauth.SessionClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		return cred
	}
	cred.AccountID = claims.Subject
	cred.Email = claims.Email
	cred.Role = claims.Role
	if claims.ExpiresAt != nil {
		cred.ExpiresAt = claims.ExpiresAt.Time
	}
	return cred
}

// CredentialStore defines the interface for storing and retrieving credentials
type CredentialStore interface {
	// GetCredential retrieves a credential for a server URL
	// Returns nil, nil if no credential exists for the server
	GetCredential(serverURL string) (*ServerCredential, error)

	// SetCredential stores a credential for a server URL
	SetCredential(serverURL string, cred *ServerCredential) error

	// RemoveCredential removes a credential for a server URL
	RemoveCredential(serverURL string) error

	// Save persists any pending changes (for stores that batch writes)
	Save() error
}
