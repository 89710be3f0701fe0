package credauth

import (
	"context"
	"errors"
	"time"
)

// ErrAccountNotFound is returned by account stores when no account matches
var ErrAccountNotFound = errors.New("account not found")

// AccountStore persists accounts
type AccountStore interface {
	// CreateAccount inserts a new account. Returns ErrEmailTaken if the email
	// is already used by any account.
	CreateAccount(ctx context.Context, account *Account) error

	// GetAccountByEmail looks up an account by its exact email
	GetAccountByEmail(ctx context.Context, email string) (*Account, error)

	// GetAccountByID looks up an account by its ID
	GetAccountByID(ctx context.Context, id string) (*Account, error)

	// MarkVerified sets VerifiedAt for the account with the given email.
	// Returns ErrAccountNotFound if no account was updated.
	MarkVerified(ctx context.Context, email string, at time.Time) error

	// SetPasswordHash replaces the password hash for the account with the
	// given email. Returns ErrAccountNotFound if no account was updated.
	SetPasswordHash(ctx context.Context, email string, passwordHash string) error
}

// TokenStore persists single-use verification and reset tokens
type TokenStore interface {
	// SaveToken inserts a token
	SaveToken(ctx context.Context, token *VerificationToken) error

	// GetToken returns the token of the given kind, expired or not.
	// Returns ErrTokenNotFound if there is none.
	GetToken(ctx context.Context, kind TokenKind, token string) (*VerificationToken, error)

	// DeleteToken removes a token and reports whether a record was removed.
	// Validation relies on this to decide which of two racing claims wins.
	DeleteToken(ctx context.Context, kind TokenKind, token string) (bool, error)

	// DeleteTokensForEmail removes every token of kind issued to email
	DeleteTokensForEmail(ctx context.Context, kind TokenKind, email string) error

	// ListTokensForEmail returns the tokens of kind issued to email
	ListTokensForEmail(ctx context.Context, kind TokenKind, email string) ([]*VerificationToken, error)
}

// Store bundles the account and token stores of one backend.
//
// RunInTx runs fn against a transactional view of the store: every write made
// through the Store passed to fn is committed when fn returns nil and rolled
// back otherwise.
type Store interface {
	Accounts() AccountStore
	Tokens() TokenStore
	RunInTx(ctx context.Context, fn func(ctx context.Context, tx Store) error) error
	Close() error
}
