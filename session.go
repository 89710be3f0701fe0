package credauth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/alexedwards/scs/v2"
	"github.com/golang-jwt/jwt/v5"
)

const (
	sessionKeyAccountID = "accountID"
	sessionKeyRole      = "role"
	sessionKeyEmail     = "email"
)

type principalKey struct{}

// Principal is the signed-in account attached to a request
type Principal struct {
	AccountID string
	Email     string
	Role      Role
}

// IsAdmin reports whether the principal carries the admin role
func (p *Principal) IsAdmin() bool { return p != nil && p.Role == RoleAdmin }

// PrincipalFromContext returns the principal set by RequireAccount, or nil
func PrincipalFromContext(ctx context.Context) *Principal {
	p, _ := ctx.Value(principalKey{}).(*Principal)
	return p
}

// WithPrincipal returns ctx carrying p
func WithPrincipal(ctx context.Context, p *Principal) context.Context {
	return context.WithValue(ctx, principalKey{}, p)
}

// SessionClaims are the claims of a bearer session token
type SessionClaims struct {
	Email string `json:"email"`
	Role  Role   `json:"role"`
	jwt.RegisteredClaims
}

// Sessions signs accounts in after a successful Authenticate. Browsers get a
// cookie session from Manager; API clients get an HS256 bearer token.
type Sessions struct {
	Manager *scs.SessionManager

	JWTSecretKey string
	JWTIssuer    string

	// TokenTTL defaults to 24 hours
	TokenTTL time.Duration

	Logger *slog.Logger

	// Now defaults to time.Now
	Now func() time.Time
}

// EnsureDefaults fills in unset fields
func (s *Sessions) EnsureDefaults() *Sessions {
	if s.Manager == nil {
		s.Manager = scs.New()
	}
	if s.TokenTTL <= 0 {
		s.TokenTTL = 24 * time.Hour
	}
	if s.JWTIssuer == "" {
		s.JWTIssuer = "credauth"
	}
	if s.Logger == nil {
		s.Logger = slog.Default()
	}
	if s.Now == nil {
		s.Now = time.Now
	}
	s.Manager.Lifetime = s.TokenTTL
	return s
}

// Login stores the account in the cookie session, when one is loaded, and
// returns a bearer token for it.
func (s *Sessions) Login(ctx context.Context, account *AccountSummary) (string, error) {
	if hasSession(s.Manager, ctx) {
		// new session token on privilege change
		if err := s.Manager.RenewToken(ctx); err != nil {
			return "", fmt.Errorf("failed to renew session: %w", err)
		}
		s.Manager.Put(ctx, sessionKeyAccountID, account.ID)
		s.Manager.Put(ctx, sessionKeyEmail, account.Email)
		s.Manager.Put(ctx, sessionKeyRole, string(account.Role))
	}
	return s.IssueToken(account)
}

// Logout destroys the cookie session
func (s *Sessions) Logout(ctx context.Context) error {
	if !hasSession(s.Manager, ctx) {
		return nil
	}
	return s.Manager.Destroy(ctx)
}

// IssueToken signs a bearer token for account
func (s *Sessions) IssueToken(account *AccountSummary) (string, error) {
	now := s.Now()
	claims := SessionClaims{
		Email: account.Email,
		Role:  account.Role,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   account.ID,
			Issuer:    s.JWTIssuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.TokenTTL)),
		},
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(s.JWTSecretKey))
	if err != nil {
		return "", fmt.Errorf("failed to sign token: %w", err)
	}
	return token, nil
}

// VerifyToken checks a bearer token's signature, issuer and expiry
func (s *Sessions) VerifyToken(tokenString string) (*Principal, error) {
	claims := &SessionClaims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (any, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return []byte(s.JWTSecretKey), nil
	}, jwt.WithIssuer(s.JWTIssuer), jwt.WithTimeFunc(s.Now), jwt.WithExpirationRequired())
	if err != nil {
		return nil, err
	}
	if !token.Valid || claims.Subject == "" {
		return nil, errors.New("invalid token")
	}
	return &Principal{AccountID: claims.Subject, Email: claims.Email, Role: claims.Role}, nil
}

// Current returns the signed-in principal of r from the cookie session or
// the Authorization header.
func (s *Sessions) Current(r *http.Request) *Principal {
	ctx := r.Context()
	if p := PrincipalFromContext(ctx); p != nil {
		return p
	}
	if hasSession(s.Manager, ctx) {
		if id := s.Manager.GetString(ctx, sessionKeyAccountID); id != "" {
			return &Principal{
				AccountID: id,
				Email:     s.Manager.GetString(ctx, sessionKeyEmail),
				Role:      Role(s.Manager.GetString(ctx, sessionKeyRole)),
			}
		}
	}
	bearer := BearerToken(r)
	if bearer == "" {
		return nil
	}
	p, err := s.VerifyToken(bearer)
	if err != nil {
		s.Logger.DebugContext(ctx, "rejected bearer token", "err", err)
		return nil
	}
	return p
}

// RequireAccount rejects requests without a signed-in account with 401
func (s *Sessions) RequireAccount(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		p := s.Current(r)
		if p == nil {
			WriteError(w, r, s.Logger, ErrUnauthorized)
			return
		}
		next.ServeHTTP(w, r.WithContext(WithPrincipal(r.Context(), p)))
	})
}

// RequireAdmin is RequireAccount plus a 403 for non-admin accounts
func (s *Sessions) RequireAdmin(next http.Handler) http.Handler {
	return s.RequireAccount(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !PrincipalFromContext(r.Context()).IsAdmin() {
			WriteError(w, r, s.Logger, ErrForbidden)
			return
		}
		next.ServeHTTP(w, r)
	}))
}

// BearerToken extracts the token of an "Authorization: Bearer" header
func BearerToken(r *http.Request) string {
	parts := strings.SplitN(r.Header.Get("Authorization"), " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return ""
	}
	return strings.TrimSpace(parts[1])
}

type sessionLoadedKey struct{}

// LoadAndSave wraps Manager.LoadAndSave and marks the request so Login,
// Logout and Current use the cookie session. Handlers mounted behind the bare
// Manager.LoadAndSave only see bearer tokens.
func (s *Sessions) LoadAndSave(next http.Handler) http.Handler {
	return s.Manager.LoadAndSave(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := context.WithValue(r.Context(), sessionLoadedKey{}, s.Manager)
		next.ServeHTTP(w, r.WithContext(ctx))
	}))
}

// hasSession reports whether s.LoadAndSave loaded a session for m into ctx
func hasSession(m *scs.SessionManager, ctx context.Context) bool {
	loaded, _ := ctx.Value(sessionLoadedKey{}).(*scs.SessionManager)
	return m != nil && loaded == m
}
