package credauth

import (
	"context"
	"fmt"
	"time"
)

// TokenIssuer creates single-use tokens, keeping at most one live token per
// kind and email.
type TokenIssuer struct {
	Store Store

	// Lifetimes overrides the default lifetime per kind
	Lifetimes map[TokenKind]time.Duration

	// Now defaults to time.Now
	Now func() time.Time
}

// NewTokenIssuer creates an issuer over store
func NewTokenIssuer(store Store) *TokenIssuer {
	return &TokenIssuer{Store: store}
}

// Issue replaces every token of kind for email with a fresh one. The delete
// and insert are committed together.
func (i *TokenIssuer) Issue(ctx context.Context, kind TokenKind, email string) (*VerificationToken, error) {
	var out *VerificationToken
	err := i.Store.RunInTx(ctx, func(ctx context.Context, tx Store) error {
		var err error
		out, err = i.IssueWithin(ctx, tx, kind, email)
		return err
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// IssueWithin is Issue running inside a transaction owned by the caller
func (i *TokenIssuer) IssueWithin(ctx context.Context, tx Store, kind TokenKind, email string) (*VerificationToken, error) {
	if !kind.Valid() {
		return nil, fmt.Errorf("unknown token kind %q", kind)
	}
	value, err := GenerateSecureToken()
	if err != nil {
		return nil, err
	}

	now := i.now()
	token := &VerificationToken{
		Kind:      kind,
		Token:     value,
		Email:     email,
		CreatedAt: now,
		ExpiresAt: now.Add(i.lifetime(kind)),
	}

	if err := tx.Tokens().DeleteTokensForEmail(ctx, kind, email); err != nil {
		return nil, fmt.Errorf("failed to delete previous tokens: %w", err)
	}
	if err := tx.Tokens().SaveToken(ctx, token); err != nil {
		return nil, fmt.Errorf("failed to save token: %w", err)
	}
	return token, nil
}

func (i *TokenIssuer) lifetime(kind TokenKind) time.Duration {
	if d, ok := i.Lifetimes[kind]; ok && d > 0 {
		return d
	}
	return kind.Lifetime()
}

func (i *TokenIssuer) now() time.Time {
	if i.Now != nil {
		return i.Now()
	}
	return time.Now()
}
