// Package storetest holds the behaviour every credauth.Store must share.
// Store packages call Run from their own tests.
package storetest

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	ca "github.com/panyam/credauth"
)

// Factory returns an empty store. It is called once per subtest.
type Factory func(t *testing.T) ca.Store

// Run exercises store against the account and token contracts
func Run(t *testing.T, newStore Factory) {
	t.Run("CreateAndGetAccount", func(t *testing.T) { testCreateAndGetAccount(t, newStore(t)) })
	t.Run("DuplicateEmail", func(t *testing.T) { testDuplicateEmail(t, newStore(t)) })
	t.Run("MarkVerifiedAndSetPassword", func(t *testing.T) { testAccountUpdates(t, newStore(t)) })
	t.Run("TokenLifecycle", func(t *testing.T) { testTokenLifecycle(t, newStore(t)) })
	t.Run("TokenKindsAreSeparate", func(t *testing.T) { testTokenKinds(t, newStore(t)) })
	t.Run("DeleteTokensForEmail", func(t *testing.T) { testDeleteTokensForEmail(t, newStore(t)) })
	t.Run("TxCommit", func(t *testing.T) { testTxCommit(t, newStore(t)) })
	t.Run("TxRollback", func(t *testing.T) { testTxRollback(t, newStore(t)) })
}

func newAccount(id, email string) *ca.Account {
	hash := "hash-" + id
	now := time.Now().UTC().Truncate(time.Second)
	return &ca.Account{
		ID:           id,
		Email:        email,
		Name:         "User " + id,
		PasswordHash: &hash,
		Role:         ca.RoleUser,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
}

func newToken(kind ca.TokenKind, value, email string) *ca.VerificationToken {
	now := time.Now().UTC().Truncate(time.Second)
	return &ca.VerificationToken{
		Kind:      kind,
		Token:     value,
		Email:     email,
		CreatedAt: now,
		ExpiresAt: now.Add(kind.Lifetime()),
	}
}

func testCreateAndGetAccount(t *testing.T, store ca.Store) {
	ctx := context.Background()
	accounts := store.Accounts()

	_, err := accounts.GetAccountByEmail(ctx, "alice@example.com")
	assert.True(t, errors.Is(err, ca.ErrAccountNotFound))

	require.NoError(t, accounts.CreateAccount(ctx, newAccount("a1", "alice@example.com")))

	got, err := accounts.GetAccountByEmail(ctx, "alice@example.com")
	require.NoError(t, err)
	assert.Equal(t, "a1", got.ID)
	assert.Equal(t, "User a1", got.Name)
	assert.Equal(t, ca.RoleUser, got.Role)
	assert.True(t, got.HasPassword())
	assert.False(t, got.IsVerified())

	byID, err := accounts.GetAccountByID(ctx, "a1")
	require.NoError(t, err)
	assert.Equal(t, "alice@example.com", byID.Email)

	_, err = accounts.GetAccountByID(ctx, "missing")
	assert.True(t, errors.Is(err, ca.ErrAccountNotFound))
}

func testDuplicateEmail(t *testing.T, store ca.Store) {
	ctx := context.Background()
	accounts := store.Accounts()

	oauthOnly := newAccount("a1", "alice@example.com")
	oauthOnly.PasswordHash = nil
	require.NoError(t, accounts.CreateAccount(ctx, oauthOnly))

	err := accounts.CreateAccount(ctx, newAccount("a2", "alice@example.com"))
	assert.True(t, errors.Is(err, ca.ErrEmailTaken), "got %v", err)
}

func testAccountUpdates(t *testing.T, store ca.Store) {
	ctx := context.Background()
	accounts := store.Accounts()
	require.NoError(t, accounts.CreateAccount(ctx, newAccount("a1", "alice@example.com")))

	at := time.Now().UTC().Truncate(time.Second)
	require.NoError(t, accounts.MarkVerified(ctx, "alice@example.com", at))
	require.NoError(t, accounts.SetPasswordHash(ctx, "alice@example.com", "new-hash"))

	got, err := accounts.GetAccountByEmail(ctx, "alice@example.com")
	require.NoError(t, err)
	require.NotNil(t, got.VerifiedAt)
	assert.True(t, got.VerifiedAt.Equal(at))
	assert.Equal(t, "new-hash", *got.PasswordHash)

	assert.True(t, errors.Is(accounts.MarkVerified(ctx, "nobody@example.com", at), ca.ErrAccountNotFound))
	assert.True(t, errors.Is(accounts.SetPasswordHash(ctx, "nobody@example.com", "x"), ca.ErrAccountNotFound))
}

func testTokenLifecycle(t *testing.T, store ca.Store) {
	ctx := context.Background()
	tokens := store.Tokens()

	tok := newToken(ca.TokenKindEmailVerification, "tok1", "alice@example.com")
	require.NoError(t, tokens.SaveToken(ctx, tok))

	got, err := tokens.GetToken(ctx, ca.TokenKindEmailVerification, "tok1")
	require.NoError(t, err)
	assert.Equal(t, "alice@example.com", got.Email)
	assert.True(t, got.ExpiresAt.Equal(tok.ExpiresAt))

	removed, err := tokens.DeleteToken(ctx, ca.TokenKindEmailVerification, "tok1")
	require.NoError(t, err)
	assert.True(t, removed)

	removed, err = tokens.DeleteToken(ctx, ca.TokenKindEmailVerification, "tok1")
	require.NoError(t, err)
	assert.False(t, removed, "second delete must report nothing removed")

	_, err = tokens.GetToken(ctx, ca.TokenKindEmailVerification, "tok1")
	assert.True(t, errors.Is(err, ca.ErrTokenNotFound))
}

func testTokenKinds(t *testing.T, store ca.Store) {
	ctx := context.Background()
	tokens := store.Tokens()
	require.NoError(t, tokens.SaveToken(ctx, newToken(ca.TokenKindPasswordReset, "reset1", "alice@example.com")))

	_, err := tokens.GetToken(ctx, ca.TokenKindEmailVerification, "reset1")
	assert.True(t, errors.Is(err, ca.ErrTokenNotFound))

	removed, err := tokens.DeleteToken(ctx, ca.TokenKindEmailVerification, "reset1")
	require.NoError(t, err)
	assert.False(t, removed)

	_, err = tokens.GetToken(ctx, ca.TokenKindPasswordReset, "reset1")
	assert.NoError(t, err)
}

func testDeleteTokensForEmail(t *testing.T, store ca.Store) {
	ctx := context.Background()
	tokens := store.Tokens()
	require.NoError(t, tokens.SaveToken(ctx, newToken(ca.TokenKindPasswordReset, "r1", "alice@example.com")))
	require.NoError(t, tokens.SaveToken(ctx, newToken(ca.TokenKindPasswordReset, "r2", "alice@example.com")))
	require.NoError(t, tokens.SaveToken(ctx, newToken(ca.TokenKindPasswordReset, "r3", "bob@example.com")))
	require.NoError(t, tokens.SaveToken(ctx, newToken(ca.TokenKindEmailVerification, "v1", "alice@example.com")))

	list, err := tokens.ListTokensForEmail(ctx, ca.TokenKindPasswordReset, "alice@example.com")
	require.NoError(t, err)
	assert.Len(t, list, 2)

	require.NoError(t, tokens.DeleteTokensForEmail(ctx, ca.TokenKindPasswordReset, "alice@example.com"))

	list, err = tokens.ListTokensForEmail(ctx, ca.TokenKindPasswordReset, "alice@example.com")
	require.NoError(t, err)
	assert.Empty(t, list)

	list, err = tokens.ListTokensForEmail(ctx, ca.TokenKindPasswordReset, "bob@example.com")
	require.NoError(t, err)
	assert.Len(t, list, 1)

	list, err = tokens.ListTokensForEmail(ctx, ca.TokenKindEmailVerification, "alice@example.com")
	require.NoError(t, err)
	assert.Len(t, list, 1)
}

func testTxCommit(t *testing.T, store ca.Store) {
	ctx := context.Background()
	err := store.RunInTx(ctx, func(ctx context.Context, tx ca.Store) error {
		if err := tx.Accounts().CreateAccount(ctx, newAccount("a1", "alice@example.com")); err != nil {
			return err
		}
		return tx.Tokens().SaveToken(ctx, newToken(ca.TokenKindEmailVerification, "tok1", "alice@example.com"))
	})
	require.NoError(t, err)

	_, err = store.Accounts().GetAccountByEmail(ctx, "alice@example.com")
	assert.NoError(t, err)
	_, err = store.Tokens().GetToken(ctx, ca.TokenKindEmailVerification, "tok1")
	assert.NoError(t, err)
}

func testTxRollback(t *testing.T, store ca.Store) {
	ctx := context.Background()
	require.NoError(t, store.Accounts().CreateAccount(ctx, newAccount("a1", "alice@example.com")))
	require.NoError(t, store.Tokens().SaveToken(ctx, newToken(ca.TokenKindPasswordReset, "tok1", "alice@example.com")))

	boom := errors.New("boom")
	err := store.RunInTx(ctx, func(ctx context.Context, tx ca.Store) error {
		removed, err := tx.Tokens().DeleteToken(ctx, ca.TokenKindPasswordReset, "tok1")
		if err != nil || !removed {
			return errors.New("expected token to be removed")
		}
		if err := tx.Accounts().SetPasswordHash(ctx, "alice@example.com", "changed"); err != nil {
			return err
		}
		if err := tx.Accounts().CreateAccount(ctx, newAccount("a2", "bob@example.com")); err != nil {
			return err
		}
		return boom
	})
	require.ErrorIs(t, err, boom)

	_, err = store.Tokens().GetToken(ctx, ca.TokenKindPasswordReset, "tok1")
	assert.NoError(t, err, "token delete must be rolled back")

	got, err := store.Accounts().GetAccountByEmail(ctx, "alice@example.com")
	require.NoError(t, err)
	assert.Equal(t, "hash-a1", *got.PasswordHash, "password change must be rolled back")

	_, err = store.Accounts().GetAccountByEmail(ctx, "bob@example.com")
	assert.True(t, errors.Is(err, ca.ErrAccountNotFound), "account insert must be rolled back")
}
