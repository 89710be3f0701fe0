//go:build !wasm
// +build !wasm

package gorm_test

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	ca "github.com/panyam/credauth"
	gormstore "github.com/panyam/credauth/stores/gorm"
	"github.com/panyam/credauth/stores/storetest"
)

func newTestDB(t *testing.T) *gorm.DB {
	dsn := filepath.Join(t.TempDir(), "credauth.db")
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		TranslateError: true,
		Logger:         logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	require.NoError(t, gormstore.AutoMigrate(db))
	return db
}

func newTestStore(t *testing.T) ca.Store {
	store := gormstore.New(newTestDB(t))
	t.Cleanup(func() { store.Close() })
	return store
}

func TestGORMStore(t *testing.T) {
	storetest.Run(t, newTestStore)
}

func TestGORMStore_ValidateTwice(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	now := time.Now()
	require.NoError(t, store.Accounts().CreateAccount(ctx, &ca.Account{
		ID: "a1", Email: "alice@example.com", Name: "Alice", Role: ca.RoleUser,
		CreatedAt: now, UpdatedAt: now,
	}))

	issuer := ca.NewTokenIssuer(store)
	token, err := issuer.Issue(ctx, ca.TokenKindEmailVerification, "alice@example.com")
	require.NoError(t, err)

	validator := ca.NewTokenValidator(store)
	_, err = validator.VerifyEmail(ctx, token.Token)
	require.NoError(t, err)

	_, err = validator.VerifyEmail(ctx, token.Token)
	assert.ErrorIs(t, err, ca.ErrTokenNotFound)

	account, err := store.Accounts().GetAccountByEmail(ctx, "alice@example.com")
	require.NoError(t, err)
	assert.True(t, account.IsVerified())
}

func TestGORMStore_FailedTransitionKeepsToken(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	// no account exists for the email so the transition fails
	token, err := ca.NewTokenIssuer(store).Issue(ctx, ca.TokenKindPasswordReset, "ghost@example.com")
	require.NoError(t, err)

	_, err = ca.NewTokenValidator(store).ResetPassword(ctx, token.Token, "hash")
	assert.ErrorIs(t, err, ca.ErrTransitionFailed)

	_, err = store.Tokens().GetToken(ctx, ca.TokenKindPasswordReset, token.Token)
	assert.NoError(t, err, "token must survive a failed transition")
}
