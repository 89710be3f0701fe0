package credauth

import (
	"context"
	"errors"
	"log/slog"
	"time"
)

// Transition is the account change a token authorizes. It runs in the same
// transaction that deletes the token.
type Transition func(ctx context.Context, accounts AccountStore, token *VerificationToken) error

// transitionError marks a failure raised by the Transition itself
type transitionError struct{ err error }

func (e *transitionError) Error() string { return e.err.Error() }
func (e *transitionError) Unwrap() error { return e.err }

// TokenValidator consumes tokens exactly once
type TokenValidator struct {
	Store  Store
	Logger *slog.Logger

	// Now defaults to time.Now
	Now func() time.Time
}

// NewTokenValidator creates a validator over store
func NewTokenValidator(store Store) *TokenValidator {
	return &TokenValidator{Store: store}
}

// Validate looks up value, rejects it if missing or expired (deleting expired
// records), and otherwise claims the token and applies transition in one
// transaction. If transition fails the claim is rolled back so the token can
// be used again, and the error is ErrTransitionFailed.
//
// Of two concurrent validations of the same token only the first claim
// succeeds; the other gets ErrTokenNotFound.
func (v *TokenValidator) Validate(ctx context.Context, kind TokenKind, value string, transition Transition) (*VerificationToken, error) {
	token, err := v.Store.Tokens().GetToken(ctx, kind, value)
	if errors.Is(err, ErrTokenNotFound) {
		return nil, ErrTokenNotFound
	} else if err != nil {
		return nil, internalError(err)
	}

	if token.IsExpiredAt(v.now()) {
		if _, err := v.Store.Tokens().DeleteToken(ctx, kind, value); err != nil {
			v.logger().WarnContext(ctx, "failed to delete expired token", "kind", kind, "err", err)
		}
		return nil, ErrTokenExpired
	}

	err = v.Store.RunInTx(ctx, func(ctx context.Context, tx Store) error {
		removed, err := tx.Tokens().DeleteToken(ctx, kind, value)
		if err != nil {
			return err
		}
		if !removed {
			return ErrTokenNotFound
		}
		if err := transition(ctx, tx.Accounts(), token); err != nil {
			return &transitionError{err}
		}
		return nil
	})

	var terr *transitionError
	switch {
	case err == nil:
		return token, nil
	case errors.As(err, &terr):
		return nil, ErrTransitionFailed.with(terr.err)
	case errors.Is(err, ErrTokenNotFound):
		return nil, ErrTokenNotFound
	default:
		return nil, internalError(err)
	}
}

// VerifyEmail consumes an email-verification token and marks its account verified
func (v *TokenValidator) VerifyEmail(ctx context.Context, value string) (*VerificationToken, error) {
	now := v.now()
	return v.Validate(ctx, TokenKindEmailVerification, value,
		func(ctx context.Context, accounts AccountStore, token *VerificationToken) error {
			return accounts.MarkVerified(ctx, token.Email, now)
		})
}

// ResetPassword consumes a password-reset token and stores passwordHash on its account
func (v *TokenValidator) ResetPassword(ctx context.Context, value string, passwordHash string) (*VerificationToken, error) {
	return v.Validate(ctx, TokenKindPasswordReset, value,
		func(ctx context.Context, accounts AccountStore, token *VerificationToken) error {
			return accounts.SetPasswordHash(ctx, token.Email, passwordHash)
		})
}

func (v *TokenValidator) now() time.Time {
	if v.Now != nil {
		return v.Now()
	}
	return time.Now()
}

func (v *TokenValidator) logger() *slog.Logger {
	if v.Logger != nil {
		return v.Logger
	}
	return slog.Default()
}
