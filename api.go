package credauth

import (
	"context"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/gorilla/mux"
	"golang.org/x/oauth2"
)

// RateLimiter decides whether a request identified by key may proceed
type RateLimiter interface {
	Allow(ctx context.Context, key string) (bool, error)
}

// SignInResponse is the account summary plus a bearer token
type SignInResponse struct {
	*AccountSummary
	AccessToken string `json:"accessToken"`
}

// API exposes a Service and its Sessions over HTTP
type API struct {
	Service  *Service
	Sessions *Sessions

	// Limiter throttles sign-in and reset requests per client IP. Optional.
	Limiter RateLimiter

	// TrustProxyHeaders keys the limiter on X-Forwarded-For or X-Real-IP.
	// Enable only behind a proxy that overwrites them; otherwise clients can
	// pick their own key.
	TrustProxyHeaders bool

	// Prefix of every route, defaults to /auth
	Prefix string

	// Providers are OAuth sign-in flows mounted at Prefix/<name>/
	Providers map[string]http.Handler

	// PostOAuthRedirect is where OAuth sign-ins land when no callback URL was given
	PostOAuthRedirect string

	Logger *slog.Logger
}

// EnsureDefaults fills in unset fields
func (a *API) EnsureDefaults() *API {
	if a.Logger == nil {
		a.Logger = slog.Default()
	}
	if a.Sessions == nil {
		a.Sessions = &Sessions{}
	}
	a.Sessions.EnsureDefaults()
	if a.Prefix == "" {
		a.Prefix = "/auth"
	}
	a.Prefix = "/" + strings.Trim(a.Prefix, "/")
	if a.PostOAuthRedirect == "" {
		a.PostOAuthRedirect = "/"
	}
	return a
}

// Routes returns a new router with every endpoint mounted under Prefix
func (a *API) Routes() *mux.Router {
	a.EnsureDefaults()
	r := mux.NewRouter()
	a.Mount(r.PathPrefix(a.Prefix).Subrouter())
	return r
}

// Mount registers the endpoints on r, a router already scoped to Prefix
func (a *API) Mount(r *mux.Router) {
	a.EnsureDefaults()
	s := a.Service
	r.Use(a.Sessions.LoadAndSave)

	for name, h := range a.Providers {
		prefix := a.Prefix + "/" + name
		r.PathPrefix("/" + name + "/").Handler(http.StripPrefix(prefix, h))
		r.Handle("/"+name, http.RedirectHandler(prefix+"/", http.StatusFound))
	}

	r.Handle("/register", JSONEndpoint(s.RegisterHandler(), DecodeJSON[RegisterRequest], http.StatusCreated, a.Logger)).Methods(http.MethodPost)
	r.Handle("/signin", a.limit("signin",
		JSONEndpoint(a.signInHandler(), DecodeForm[AuthenticateRequest], http.StatusOK, a.Logger))).Methods(http.MethodPost)
	r.Handle("/forgot-password", a.limit("forgot-password",
		JSONEndpoint(s.PasswordResetRequestHandler(), DecodeForm[PasswordResetRequest], http.StatusOK, a.Logger))).Methods(http.MethodPost)
	r.Handle("/reset-password", JSONEndpoint(s.ResetPasswordHandler(), DecodeForm[ResetPasswordRequest], http.StatusOK, a.Logger)).Methods(http.MethodPost)
	r.Handle("/verify", JSONEndpoint(s.VerifyEmailHandler(), DecodeForm[VerifyEmailRequest], http.StatusOK, a.Logger)).Methods(http.MethodPost)
	r.Handle("/verify", JSONEndpoint(s.VerifyEmailHandler(), decodeTokenQuery, http.StatusOK, a.Logger)).Methods(http.MethodGet)
	r.Handle("/session", a.Sessions.RequireAccount(JSONEndpoint(a.sessionHandler(), decodeNothing, http.StatusOK, a.Logger))).Methods(http.MethodGet)
	r.Handle("/signout", JSONEndpoint(a.signOutHandler(), decodeNothing, http.StatusOK, a.Logger)).Methods(http.MethodPost)
}

func (a *API) signInHandler() Handler[AuthenticateRequest, *SignInResponse] {
	return HandlerFunc[AuthenticateRequest, *SignInResponse](func(ctx context.Context, req AuthenticateRequest) (*SignInResponse, error) {
		account, err := a.Service.Authenticate(ctx, req)
		if err != nil {
			return nil, err
		}
		token, err := a.Sessions.Login(ctx, account)
		if err != nil {
			return nil, internalError(err)
		}
		return &SignInResponse{AccountSummary: account, AccessToken: token}, nil
	})
}

func (a *API) sessionHandler() Handler[struct{}, *AccountSummary] {
	return HandlerFunc[struct{}, *AccountSummary](func(ctx context.Context, _ struct{}) (*AccountSummary, error) {
		p := PrincipalFromContext(ctx)
		if p == nil {
			return nil, ErrUnauthorized
		}
		return a.Service.GetAccount(ctx, p.AccountID)
	})
}

func (a *API) signOutHandler() Handler[struct{}, *MessageResponse] {
	return HandlerFunc[struct{}, *MessageResponse](func(ctx context.Context, _ struct{}) (*MessageResponse, error) {
		if err := a.Sessions.Logout(ctx); err != nil {
			return nil, internalError(err)
		}
		return &MessageResponse{Message: MsgSignedOut}, nil
	})
}

// limit applies the rate limiter to next, keyed by action and client IP.
// Limiter failures let the request through.
func (a *API) limit(action string, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if a.Limiter != nil {
			allowed, err := a.Limiter.Allow(r.Context(), action+":"+getClientIP(r, a.TrustProxyHeaders))
			if err != nil {
				a.Logger.WarnContext(r.Context(), "rate limiter unavailable", "action", action, "err", err)
			} else if !allowed {
				w.Header().Set("Retry-After", "60")
				WriteError(w, r, a.Logger, ErrRateLimited)
				return
			}
		}
		next.ServeHTTP(w, r)
	})
}

// HandleOAuthUser completes an OAuth sign-in: it finds or creates the
// OAuth-only account for the provider's email, signs it in and redirects to
// the callback URL the sign-in started with.
func (a *API) HandleOAuthUser(authtype string, provider string, token *oauth2.Token, userInfo map[string]any, w http.ResponseWriter, r *http.Request) {
	profile := OAuthProfile{Provider: provider}
	profile.Email, _ = userInfo["email"].(string)
	profile.Name, _ = userInfo["name"].(string)
	switch v := userInfo["verified_email"].(type) {
	case bool:
		profile.EmailVerified = v
	default:
		profile.EmailVerified, _ = userInfo["email_verified"].(bool)
	}

	account, err := a.Service.EnsureOAuthAccount(r.Context(), profile)
	if err != nil {
		WriteError(w, r, a.Logger, err)
		return
	}
	if _, err := a.Sessions.Login(r.Context(), account); err != nil {
		WriteError(w, r, a.Logger, internalError(err))
		return
	}
	a.Logger.InfoContext(r.Context(), "oauth sign-in", "provider", provider, "account_id", account.ID)

	target := a.PostOAuthRedirect
	if c, _ := r.Cookie("oauthCallbackURL"); c != nil && isLocalPath(c.Value) {
		target = c.Value
	}
	http.SetCookie(w, &http.Cookie{
		Name:    "oauthCallbackURL",
		Path:    "/",
		MaxAge:  -1,
		Expires: time.Now(),
	})
	http.Redirect(w, r, target, http.StatusFound)
}

func decodeTokenQuery(r *http.Request, req *VerifyEmailRequest) error {
	req.Token = r.URL.Query().Get("token")
	return nil
}

func decodeNothing(*http.Request, *struct{}) error { return nil }

// isLocalPath only allows same-site redirects
func isLocalPath(s string) bool {
	if !strings.HasPrefix(s, "/") || strings.HasPrefix(s, "//") {
		return false
	}
	u, err := url.Parse(s)
	return err == nil && u.Scheme == "" && u.Host == ""
}

// getClientIP returns the peer address of r, or the proxy-reported client
// when trustProxy is set
func getClientIP(r *http.Request, trustProxy bool) string {
	if trustProxy {
		if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
			if ip := strings.TrimSpace(strings.Split(xff, ",")[0]); ip != "" {
				return ip
			}
		}
		if xri := strings.TrimSpace(r.Header.Get("X-Real-IP")); xri != "" {
			return xri
		}
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
