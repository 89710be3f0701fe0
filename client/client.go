package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"

	"github.com/panyam/credauth"
)

// AuthClient calls the credauth endpoints of one server and remembers the
// token returned by SignIn
type AuthClient struct {
	mu            sync.Mutex
	serverURL     string
	prefix        string
	store         CredentialStore
	httpClient    *http.Client
	baseTransport http.RoundTripper
}

// ClientOption configures an AuthClient
type ClientOption func(*AuthClient)

// WithPathPrefix sets the path the auth routes are mounted under, "/auth" by default
func WithPathPrefix(prefix string) ClientOption {
	return func(c *AuthClient) {
		c.prefix = "/" + strings.Trim(prefix, "/")
	}
}

// WithHTTPClient sets a custom base HTTP client (for timeouts, TLS config, etc.)
// The transport from this client will be wrapped with auth handling.
func WithHTTPClient(client *http.Client) ClientOption {
	return func(c *AuthClient) {
		if client == nil {
			return
		}
		if client.Transport != nil {
			c.baseTransport = client.Transport
		}
		c.httpClient.Timeout = client.Timeout
		c.httpClient.CheckRedirect = client.CheckRedirect
		c.httpClient.Jar = client.Jar
	}
}

// WithTransport sets a custom base transport
func WithTransport(transport http.RoundTripper) ClientOption {
	return func(c *AuthClient) {
		c.baseTransport = transport
	}
}

// NewAuthClient creates a client for the server at serverURL. A nil store
// keeps credentials in memory.
func NewAuthClient(serverURL string, store CredentialStore, opts ...ClientOption) *AuthClient {
	u, err := url.Parse(serverURL)
	if err == nil && u.Scheme != "" && u.Host != "" {
		serverURL = fmt.Sprintf("%s://%s", u.Scheme, u.Host)
	}
	if store == nil {
		store = NewMemoryCredentialStore()
	}

	c := &AuthClient{
		serverURL:     serverURL,
		prefix:        "/auth",
		store:         store,
		httpClient:    &http.Client{},
		baseTransport: http.DefaultTransport,
	}
	for _, opt := range opts {
		opt(c)
	}
	c.httpClient.Transport = &AuthTransport{Base: c.baseTransport, Source: c}
	return c
}

// HTTPClient returns an HTTP client that signs requests with the stored token
func (c *AuthClient) HTTPClient() *http.Client {
	return c.httpClient
}

// ServerURL returns the server URL this client is configured for
func (c *AuthClient) ServerURL() string {
	return c.serverURL
}

// Token returns the stored access token, or "" when signed out or expired
func (c *AuthClient) Token() (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	cred, err := c.store.GetCredential(c.serverURL)
	if err != nil {
		return "", err
	}
	if cred == nil || cred.IsExpired() {
		return "", nil
	}
	return cred.AccessToken, nil
}

// Credential returns the stored credential, if any
func (c *AuthClient) Credential() (*ServerCredential, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.store.GetCredential(c.serverURL)
}

// IsLoggedIn reports whether a non-expired token is stored
func (c *AuthClient) IsLoggedIn() bool {
	token, err := c.Token()
	return err == nil && token != ""
}

// Register creates an account. The server sends the verification token out
// of band.
func (c *AuthClient) Register(ctx context.Context, name, email, password string) (*credauth.MessageResponse, error) {
	var out credauth.MessageResponse
	err := c.post(ctx, "/register", credauth.RegisterRequest{Name: name, Email: email, Password: password}, &out)
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// SignIn authenticates with email and password and stores the returned token
func (c *AuthClient) SignIn(ctx context.Context, email, password string) (*credauth.AccountSummary, error) {
	var out credauth.SignInResponse
	err := c.post(ctx, "/signin", credauth.AuthenticateRequest{Email: email, Password: password}, &out)
	if err != nil {
		return nil, err
	}
	if out.AccessToken == "" || out.AccountSummary == nil {
		return nil, fmt.Errorf("signin response carried no token")
	}

	cred := credentialFromToken(out.AccessToken)
	if cred.AccountID == "" {
		cred.AccountID = out.ID
		cred.Email = out.Email
		cred.Role = out.Role
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.store.SetCredential(c.serverURL, cred); err != nil {
		return nil, fmt.Errorf("failed to store credential: %w", err)
	}
	if err := c.store.Save(); err != nil {
		return nil, fmt.Errorf("failed to save credentials: %w", err)
	}
	return out.AccountSummary, nil
}

// RequestPasswordReset asks for a reset link. The reply is the same whether
// or not the account exists.
func (c *AuthClient) RequestPasswordReset(ctx context.Context, email string) (*credauth.MessageResponse, error) {
	var out credauth.MessageResponse
	if err := c.post(ctx, "/forgot-password", credauth.PasswordResetRequest{Email: email}, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// ResetPassword consumes a reset token and sets a new password
func (c *AuthClient) ResetPassword(ctx context.Context, token, password string) (*credauth.MessageResponse, error) {
	var out credauth.MessageResponse
	if err := c.post(ctx, "/reset-password", credauth.ResetPasswordRequest{Token: token, Password: password}, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// VerifyEmail consumes an email verification token
func (c *AuthClient) VerifyEmail(ctx context.Context, token string) (*credauth.MessageResponse, error) {
	var out credauth.MessageResponse
	if err := c.post(ctx, "/verify", credauth.VerifyEmailRequest{Token: token}, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Session returns the account the stored token belongs to
func (c *AuthClient) Session(ctx context.Context) (*credauth.AccountSummary, error) {
	var out credauth.AccountSummary
	if err := c.do(ctx, http.MethodGet, "/session", nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// SignOut ends the server session and forgets the stored token. The token is
// forgotten even when the server call fails.
func (c *AuthClient) SignOut(ctx context.Context) error {
	callErr := c.do(ctx, http.MethodPost, "/signout", nil, nil)

	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.store.RemoveCredential(c.serverURL); err != nil {
		return err
	}
	if err := c.store.Save(); err != nil {
		return err
	}
	return callErr
}

func (c *AuthClient) post(ctx context.Context, path string, body, out any) error {
	return c.do(ctx, http.MethodPost, path, body, out)
}

// do sends a JSON request and decodes the JSON reply into out. Error replies
// are returned as *credauth.AuthError so callers can match them with errors.Is.
func (c *AuthClient) do(ctx context.Context, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to encode request: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.serverURL+c.prefix+path, reader)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode >= 400 {
		authErr := &credauth.AuthError{}
		if json.Unmarshal(data, authErr) != nil || authErr.Code == "" {
			return fmt.Errorf("server returned %d: %s", resp.StatusCode, strings.TrimSpace(string(data)))
		}
		return authErr
	}
	if out == nil || len(data) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}
