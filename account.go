package credauth

import "time"

// Role is the binary authorization flag carried by an account
type Role string

const (
	RoleUser  Role = "USER"
	RoleAdmin Role = "ADMIN"
)

// Account is a sign-in identity keyed by email. PasswordHash is nil for
// accounts created through an OAuth provider and VerifiedAt is nil until the
// email address has been confirmed.
type Account struct {
	ID           string     `json:"id"`
	Email        string     `json:"email"`
	Name         string     `json:"name"`
	PasswordHash *string    `json:"password_hash,omitempty"`
	VerifiedAt   *time.Time `json:"verified_at,omitempty"`
	Role         Role       `json:"role"`
	CreatedAt    time.Time  `json:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at"`
}

// HasPassword reports whether the account can sign in with credentials
func (a *Account) HasPassword() bool {
	return a.PasswordHash != nil && *a.PasswordHash != ""
}

// IsVerified reports whether the account's email has been confirmed
func (a *Account) IsVerified() bool {
	return a.VerifiedAt != nil
}

// IsAdmin reports whether the account carries the admin flag
func (a *Account) IsAdmin() bool {
	return a.Role == RoleAdmin
}

// AccountSummary is the externally visible view of an account
type AccountSummary struct {
	ID         string     `json:"id"`
	Email      string     `json:"email"`
	Name       string     `json:"name"`
	Role       Role       `json:"role"`
	VerifiedAt *time.Time `json:"verifiedAt"`
}

// Summary strips credentials from the account
func (a *Account) Summary() *AccountSummary {
	return &AccountSummary{
		ID:         a.ID,
		Email:      a.Email,
		Name:       a.Name,
		Role:       a.Role,
		VerifiedAt: a.VerifiedAt,
	}
}
