package credauth

import (
	"context"
	"log/slog"
)

// Notification is a message about a freshly issued token
type Notification struct {
	Kind  TokenKind
	Email string
	Token string
	Name  string // empty unless known at issue time
	Link  string // BaseURL link embedding the token
}

// Notifier delivers token notifications, usually by email. Delivery is
// fire-and-forget from the workflow's side; a returned error is surfaced to
// the caller but never retried.
type Notifier interface {
	Send(ctx context.Context, n Notification) error
}

// NotifierFunc adapts a function to the Notifier interface
type NotifierFunc func(ctx context.Context, n Notification) error

func (f NotifierFunc) Send(ctx context.Context, n Notification) error {
	return f(ctx, n)
}

// ConsoleNotifier is a development notifier that logs messages instead of
// sending them
type ConsoleNotifier struct {
	Logger *slog.Logger
}

func (c *ConsoleNotifier) Send(ctx context.Context, n Notification) error {
	logger := c.Logger
	if logger == nil {
		logger = slog.Default()
	}
	subject := "Verify your email address"
	if n.Kind == TokenKindPasswordReset {
		subject = "Reset your password"
	}
	logger.InfoContext(ctx, "email notification",
		"to", n.Email,
		"name", n.Name,
		"subject", subject,
		"link", n.Link)
	return nil
}
