package credauth_test

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	ca "github.com/panyam/credauth"
	fsstore "github.com/panyam/credauth/stores/fs"
)

// clock is a settable time source shared by every component of a test service
type clock struct {
	mu  sync.Mutex
	now time.Time
}

func newClock() *clock {
	return &clock{now: time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// outbox records notifications instead of sending them
type outbox struct {
	mu   sync.Mutex
	sent []ca.Notification
	err  error
}

func (o *outbox) Send(ctx context.Context, n ca.Notification) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.err != nil {
		return o.err
	}
	o.sent = append(o.sent, n)
	return nil
}

func (o *outbox) count() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return len(o.sent)
}

func (o *outbox) last(t *testing.T, kind ca.TokenKind) ca.Notification {
	t.Helper()
	o.mu.Lock()
	defer o.mu.Unlock()
	for i := len(o.sent) - 1; i >= 0; i-- {
		if o.sent[i].Kind == kind {
			return o.sent[i]
		}
	}
	t.Fatalf("no %s notification sent", kind)
	return ca.Notification{}
}

type testEnv struct {
	store   ca.Store
	service *ca.Service
	box     *outbox
	clock   *clock
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	store, err := fsstore.New(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	env := &testEnv{store: store, box: &outbox{}, clock: newClock()}
	env.service = (&ca.Service{
		Store:    store,
		Notifier: env.box,
		Hasher:   &ca.BcryptHasher{Cost: 4},
		Logger:   quietLogger(),
		BaseURL:  "https://app.example.com",
		Now:      env.clock.Now,
	}).EnsureDefaults()
	return env
}

// registerVerified creates a verified credentials account
func (e *testEnv) registerVerified(t *testing.T, name, email, password string) {
	t.Helper()
	ctx := context.Background()
	_, err := e.service.Register(ctx, ca.RegisterRequest{Name: name, Email: email, Password: password})
	require.NoError(t, err)
	_, err = e.service.VerifyEmail(ctx, ca.VerifyEmailRequest{Token: e.box.last(t, ca.TokenKindEmailVerification).Token})
	require.NoError(t, err)
}
