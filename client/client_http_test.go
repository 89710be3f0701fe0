package client_test

import (
	"context"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/panyam/credauth"
	"github.com/panyam/credauth/client"
	fsstore "github.com/panyam/credauth/stores/fs"
)

type outbox struct {
	mu   sync.Mutex
	sent []credauth.Notification
}

func (o *outbox) Send(ctx context.Context, n credauth.Notification) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.sent = append(o.sent, n)
	return nil
}

func (o *outbox) last(t *testing.T, kind credauth.TokenKind) credauth.Notification {
	t.Helper()
	o.mu.Lock()
	defer o.mu.Unlock()
	for i := len(o.sent) - 1; i >= 0; i-- {
		if o.sent[i].Kind == kind {
			return o.sent[i]
		}
	}
	t.Fatalf("no %s notification sent", kind)
	return credauth.Notification{}
}

func newTestServer(t *testing.T) (*httptest.Server, *outbox) {
	t.Helper()
	store, err := fsstore.New(t.TempDir())
	require.NoError(t, err)

	box := &outbox{}
	service := (&credauth.Service{Store: store, Notifier: box, BaseURL: "http://app.test"}).EnsureDefaults()
	service.Hasher = &credauth.BcryptHasher{Cost: 4}
	api := &credauth.API{
		Service:  service,
		Sessions: &credauth.Sessions{JWTSecretKey: "client-test-secret"},
	}
	server := httptest.NewServer(api.Routes())
	t.Cleanup(server.Close)
	return server, box
}

func TestAuthClient_RegisterVerifySignIn(t *testing.T) {
	ctx := context.Background()
	server, box := newTestServer(t)
	c := client.NewAuthClient(server.URL, nil)

	msg, err := c.Register(ctx, "Alice", "alice@example.com", "secret123")
	require.NoError(t, err)
	assert.Equal(t, credauth.MsgRegistered, msg.Message)

	_, err = c.SignIn(ctx, "alice@example.com", "secret123")
	assert.ErrorIs(t, err, credauth.ErrEmailNotVerified)
	assert.False(t, c.IsLoggedIn())

	verify := box.last(t, credauth.TokenKindEmailVerification)
	_, err = c.VerifyEmail(ctx, verify.Token)
	require.NoError(t, err)

	_, err = c.VerifyEmail(ctx, verify.Token)
	assert.ErrorIs(t, err, credauth.ErrTokenNotFound)

	account, err := c.SignIn(ctx, "alice@example.com", "secret123")
	require.NoError(t, err)
	assert.Equal(t, "alice@example.com", account.Email)
	assert.NotNil(t, account.VerifiedAt)
	assert.True(t, c.IsLoggedIn())

	cred, err := c.Credential()
	require.NoError(t, err)
	assert.Equal(t, account.ID, cred.AccountID)

	current, err := c.Session(ctx)
	require.NoError(t, err)
	assert.Equal(t, account.ID, current.ID)

	require.NoError(t, c.SignOut(ctx))
	assert.False(t, c.IsLoggedIn())
	_, err = c.Session(ctx)
	assert.ErrorIs(t, err, credauth.ErrUnauthorized)
}

func TestAuthClient_ErrorsDecodeToAuthErrors(t *testing.T) {
	ctx := context.Background()
	server, _ := newTestServer(t)
	c := client.NewAuthClient(server.URL, nil)

	_, err := c.Register(ctx, "", "not-an-email", "short")
	var authErr *credauth.AuthError
	require.ErrorAs(t, err, &authErr)
	assert.Equal(t, credauth.ErrCodeValidation, authErr.Code)
	assert.Contains(t, authErr.Details, "name")
	assert.Contains(t, authErr.Details, "email")
	assert.Contains(t, authErr.Details, "password")

	_, err = c.Register(ctx, "Alice", "alice@example.com", "secret123")
	require.NoError(t, err)
	_, err = c.Register(ctx, "Alice", "alice@example.com", "secret123")
	assert.ErrorIs(t, err, credauth.ErrEmailTaken)

	_, err = c.SignIn(ctx, "nobody@example.com", "secret123")
	assert.ErrorIs(t, err, credauth.ErrInvalidCredentials)
}

func TestAuthClient_PasswordReset(t *testing.T) {
	ctx := context.Background()
	server, box := newTestServer(t)
	c := client.NewAuthClient(server.URL, nil)

	_, err := c.Register(ctx, "Alice", "alice@example.com", "secret123")
	require.NoError(t, err)
	_, err = c.VerifyEmail(ctx, box.last(t, credauth.TokenKindEmailVerification).Token)
	require.NoError(t, err)

	known, err := c.RequestPasswordReset(ctx, "alice@example.com")
	require.NoError(t, err)
	unknown, err := c.RequestPasswordReset(ctx, "nobody@example.com")
	require.NoError(t, err)
	assert.Equal(t, known, unknown)

	reset := box.last(t, credauth.TokenKindPasswordReset)
	assert.Equal(t, "alice@example.com", reset.Email)
	assert.Contains(t, reset.Link, "http://app.test/reset-password?token=")

	_, err = c.ResetPassword(ctx, reset.Token, "newsecret456")
	require.NoError(t, err)
	_, err = c.ResetPassword(ctx, reset.Token, "another789")
	assert.ErrorIs(t, err, credauth.ErrInvalidOrExpiredToken)

	_, err = c.SignIn(ctx, "alice@example.com", "secret123")
	assert.ErrorIs(t, err, credauth.ErrInvalidCredentials)
	_, err = c.SignIn(ctx, "alice@example.com", "newsecret456")
	assert.NoError(t, err)
}

func TestAuthClient_HTTPClientSendsBearer(t *testing.T) {
	ctx := context.Background()
	server, box := newTestServer(t)
	c := client.NewAuthClient(server.URL, nil)

	_, err := c.Register(ctx, "Alice", "alice@example.com", "secret123")
	require.NoError(t, err)
	_, err = c.VerifyEmail(ctx, box.last(t, credauth.TokenKindEmailVerification).Token)
	require.NoError(t, err)
	_, err = c.SignIn(ctx, "alice@example.com", "secret123")
	require.NoError(t, err)

	resp, err := c.HTTPClient().Get(server.URL + "/auth/session")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, 200, resp.StatusCode)
}
