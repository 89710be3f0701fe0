package credauth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Messages returned on success. The reset request message is identical
// whether or not the account exists.
const (
	MsgRegistered          = "User registered successfully. Please check your email to verify your account."
	MsgPasswordResetSent   = "If an account with that email exists, a password reset link has been sent."
	MsgPasswordReset       = "Password has been reset successfully"
	MsgEmailVerified       = "Email verified successfully"
	MsgAuthenticated       = "Authentication successful"
	MsgSignedOut           = "Signed out"
	dummyPasswordForTiming = "credauth-timing-equalizer"
)

// MessageResponse is the body of operations that only report success
type MessageResponse struct {
	Message string `json:"message"`
}

// OAuthProfile is what an OAuth provider tells us about a signed-in user
type OAuthProfile struct {
	Provider      string
	Email         string
	Name          string
	EmailVerified bool
}

// Service runs the registration, sign-in, verification and password reset
// workflows over a Store.
type Service struct {
	Store     Store
	Issuer    *TokenIssuer
	Validator *TokenValidator
	Hasher    PasswordHasher
	Notifier  Notifier
	Logger    *slog.Logger

	// BaseURL prefixes the links placed in notifications
	BaseURL string

	// Paths of the pages that consume tokens
	VerifyPath        string
	ResetPasswordPath string

	// Now defaults to time.Now
	Now func() time.Time

	dummyOnce sync.Once
	dummyHash string
}

// NewService creates a Service with default components
func NewService(store Store, notifier Notifier) *Service {
	return (&Service{Store: store, Notifier: notifier}).EnsureDefaults()
}

// EnsureDefaults fills in unset components
func (s *Service) EnsureDefaults() *Service {
	if s.Now == nil {
		s.Now = time.Now
	}
	if s.Logger == nil {
		s.Logger = slog.Default()
	}
	if s.Hasher == nil {
		s.Hasher = &BcryptHasher{}
	}
	if s.Notifier == nil {
		s.Notifier = &ConsoleNotifier{Logger: s.Logger}
	}
	if s.Issuer == nil {
		s.Issuer = &TokenIssuer{Store: s.Store, Now: s.Now}
	}
	if s.Validator == nil {
		s.Validator = &TokenValidator{Store: s.Store, Logger: s.Logger, Now: s.Now}
	}
	if s.VerifyPath == "" {
		s.VerifyPath = "/auth/verify"
	}
	if s.ResetPasswordPath == "" {
		s.ResetPasswordPath = "/reset-password"
	}
	return s
}

// Register creates an unverified credentials account and sends it an email
// verification token. The account cannot sign in until verified.
func (s *Service) Register(ctx context.Context, req RegisterRequest) (*MessageResponse, error) {
	if verr := req.Validate(); verr != nil {
		return nil, verr
	}
	name := strings.TrimSpace(req.Name)

	if _, err := s.Store.Accounts().GetAccountByEmail(ctx, req.Email); err == nil {
		return nil, ErrEmailTaken
	} else if !errors.Is(err, ErrAccountNotFound) {
		return nil, s.internal(ctx, "register: lookup failed", err)
	}

	hash, err := s.Hasher.Hash(req.Password)
	if err != nil {
		return nil, s.internal(ctx, "register: hashing failed", err)
	}

	now := s.Now()
	account := &Account{
		ID:           uuid.NewString(),
		Email:        req.Email,
		Name:         name,
		PasswordHash: &hash,
		Role:         RoleUser,
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	var token *VerificationToken
	err = s.Store.RunInTx(ctx, func(ctx context.Context, tx Store) error {
		if err := tx.Accounts().CreateAccount(ctx, account); err != nil {
			return err
		}
		token, err = s.Issuer.IssueWithin(ctx, tx, TokenKindEmailVerification, account.Email)
		return err
	})
	if errors.Is(err, ErrEmailTaken) {
		return nil, ErrEmailTaken
	} else if err != nil {
		return nil, s.internal(ctx, "register: create failed", err)
	}
	s.Logger.InfoContext(ctx, "registered account", "account_id", account.ID)

	if err := s.notify(ctx, token, name); err != nil {
		return nil, s.internal(ctx, "register: notification failed", err)
	}
	return &MessageResponse{Message: MsgRegistered}, nil
}

// Authenticate checks email and password. Unknown emails and wrong passwords
// fail with the same ErrInvalidCredentials; the verification state is only
// revealed for accounts that exist and have a password.
func (s *Service) Authenticate(ctx context.Context, req AuthenticateRequest) (*AccountSummary, error) {
	if verr := req.Validate(); verr != nil {
		return nil, verr
	}

	account, err := s.Store.Accounts().GetAccountByEmail(ctx, req.Email)
	if errors.Is(err, ErrAccountNotFound) {
		// spend a hash comparison so a missing account costs about as much as a bad password
		_ = s.Hasher.Compare(s.timingHash(), req.Password)
		return nil, ErrInvalidCredentials
	} else if err != nil {
		return nil, s.internal(ctx, "authenticate: lookup failed", err)
	}

	if !account.HasPassword() {
		return nil, ErrOAuthOnlyAccount
	}
	if !account.IsVerified() {
		return nil, ErrEmailNotVerified
	}

	if err := s.Hasher.Compare(*account.PasswordHash, req.Password); errors.Is(err, ErrPasswordMismatch) {
		return nil, ErrInvalidCredentials
	} else if err != nil {
		return nil, s.internal(ctx, "authenticate: compare failed", err)
	}
	return account.Summary(), nil
}

// RequestPasswordReset issues and sends a reset token when an account exists
// for the email. The response never depends on whether it does. A delivery
// failure is returned as an internal error.
func (s *Service) RequestPasswordReset(ctx context.Context, req PasswordResetRequest) (*MessageResponse, error) {
	if verr := req.Validate(); verr != nil {
		return nil, verr
	}
	resp := &MessageResponse{Message: MsgPasswordResetSent}

	account, err := s.Store.Accounts().GetAccountByEmail(ctx, req.Email)
	if errors.Is(err, ErrAccountNotFound) {
		return resp, nil
	} else if err != nil {
		return nil, s.internal(ctx, "password reset request: lookup failed", err)
	}

	// OAuth-only accounts get a token too; resetting sets their first password
	token, err := s.Issuer.Issue(ctx, TokenKindPasswordReset, account.Email)
	if err != nil {
		return nil, s.internal(ctx, "password reset request: issue failed", err)
	}
	if err := s.notify(ctx, token, account.Name); err != nil {
		return nil, s.internal(ctx, "password reset request: notification failed", err)
	}
	return resp, nil
}

// ResetPassword consumes a reset token and replaces the account's password.
// Unknown and expired tokens are reported alike.
func (s *Service) ResetPassword(ctx context.Context, req ResetPasswordRequest) (*MessageResponse, error) {
	if verr := req.Validate(); verr != nil {
		return nil, verr
	}
	hash, err := s.Hasher.Hash(req.Password)
	if err != nil {
		return nil, s.internal(ctx, "reset password: hashing failed", err)
	}

	_, err = s.Validator.ResetPassword(ctx, req.Token, hash)
	switch {
	case err == nil:
		return &MessageResponse{Message: MsgPasswordReset}, nil
	case errors.Is(err, ErrTokenNotFound), errors.Is(err, ErrTokenExpired):
		return nil, ErrInvalidOrExpiredToken
	default:
		return nil, s.internal(ctx, "reset password: validation failed", err)
	}
}

// VerifyEmail consumes an email verification token and marks the account verified
func (s *Service) VerifyEmail(ctx context.Context, req VerifyEmailRequest) (*MessageResponse, error) {
	if verr := req.Validate(); verr != nil {
		return nil, verr
	}
	_, err := s.Validator.VerifyEmail(ctx, req.Token)
	switch {
	case err == nil:
		return &MessageResponse{Message: MsgEmailVerified}, nil
	case errors.Is(err, ErrTokenNotFound), errors.Is(err, ErrTokenExpired):
		return nil, err
	default:
		return nil, s.internal(ctx, "verify email: validation failed", err)
	}
}

// EnsureOAuthAccount returns the account for a provider-authenticated email,
// creating an OAuth-only account (no password, verified) on first sign-in.
func (s *Service) EnsureOAuthAccount(ctx context.Context, profile OAuthProfile) (*AccountSummary, error) {
	if profile.Email == "" || !profile.EmailVerified {
		return nil, ErrUnauthorized
	}

	account, err := s.Store.Accounts().GetAccountByEmail(ctx, profile.Email)
	if err == nil {
		return account.Summary(), nil
	} else if !errors.Is(err, ErrAccountNotFound) {
		return nil, s.internal(ctx, "oauth: lookup failed", err)
	}

	now := s.Now()
	account = &Account{
		ID:         uuid.NewString(),
		Email:      profile.Email,
		Name:       profile.Name,
		VerifiedAt: &now,
		Role:       RoleUser,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	if err := s.Store.Accounts().CreateAccount(ctx, account); errors.Is(err, ErrEmailTaken) {
		// lost a race with another first sign-in; use the winner's account
		existing, err := s.Store.Accounts().GetAccountByEmail(ctx, profile.Email)
		if err != nil {
			return nil, s.internal(ctx, "oauth: lookup failed", err)
		}
		return existing.Summary(), nil
	} else if err != nil {
		return nil, s.internal(ctx, "oauth: create failed", err)
	}
	s.Logger.InfoContext(ctx, "created oauth account", "account_id", account.ID, "provider", profile.Provider)
	return account.Summary(), nil
}

// GetAccount returns the summary of the account with the given ID
func (s *Service) GetAccount(ctx context.Context, id string) (*AccountSummary, error) {
	account, err := s.Store.Accounts().GetAccountByID(ctx, id)
	if errors.Is(err, ErrAccountNotFound) {
		return nil, ErrUnauthorized
	} else if err != nil {
		return nil, s.internal(ctx, "get account failed", err)
	}
	return account.Summary(), nil
}

func (s *Service) notify(ctx context.Context, token *VerificationToken, name string) error {
	path := s.VerifyPath
	if token.Kind == TokenKindPasswordReset {
		path = s.ResetPasswordPath
	}
	link := fmt.Sprintf("%s%s?token=%s", strings.TrimSuffix(s.BaseURL, "/"), path, url.QueryEscape(token.Token))
	return s.Notifier.Send(ctx, Notification{
		Kind:  token.Kind,
		Email: token.Email,
		Token: token.Token,
		Name:  name,
		Link:  link,
	})
}

// timingHash lazily computes a throwaway hash for unknown-account sign-ins
func (s *Service) timingHash() string {
	s.dummyOnce.Do(func() {
		hash, err := s.Hasher.Hash(dummyPasswordForTiming)
		if err != nil {
			s.Logger.Warn("failed to compute timing hash", "err", err)
		}
		s.dummyHash = hash
	})
	return s.dummyHash
}

func (s *Service) internal(ctx context.Context, msg string, err error) *AuthError {
	s.Logger.ErrorContext(ctx, msg, "err", err)
	return AsAuthError(err)
}
