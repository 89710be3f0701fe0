package oauth2_test

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/panyam/credauth/oauth2"
	oauth2lib "golang.org/x/oauth2"
)

// mockOAuthServer is a provider with /token and /userinfo endpoints
type mockOAuthServer struct {
	server           *httptest.Server
	tokenEndpoint    string
	userInfoEndpoint string

	userInfoResponse map[string]any
	tokenError       bool
	userInfoError    bool
	lastAuthHeader   string
}

func newMockOAuthServer() *mockOAuthServer {
	mock := &mockOAuthServer{
		userInfoResponse: map[string]any{
			"id":             "12345",
			"email":          "testuser@example.com",
			"verified_email": true,
			"name":           "Test User",
		},
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/token", func(w http.ResponseWriter, r *http.Request) {
		if mock.tokenError {
			http.Error(w, "token exchange failed", http.StatusBadRequest)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{
			"access_token": "mock_access_token",
			"token_type":   "Bearer",
			"expires_in":   3600,
		})
	})
	mux.HandleFunc("/userinfo", func(w http.ResponseWriter, r *http.Request) {
		mock.lastAuthHeader = r.Header.Get("Authorization")
		if mock.userInfoError {
			http.Error(w, "user info failed", http.StatusUnauthorized)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(mock.userInfoResponse)
	})

	mock.server = httptest.NewServer(mux)
	mock.tokenEndpoint = mock.server.URL + "/token"
	mock.userInfoEndpoint = mock.server.URL + "/userinfo"
	return mock
}

func (m *mockOAuthServer) Close() {
	m.server.Close()
}

func findCookie(rr *httptest.ResponseRecorder, name string) *http.Cookie {
	for _, c := range rr.Result().Cookies() {
		if c.Name == name {
			return c
		}
	}
	return nil
}

func TestOauthRedirector(t *testing.T) {
	config := &oauth2lib.Config{
		ClientID:     "test-client-id",
		ClientSecret: "test-client-secret",
		RedirectURL:  "http://localhost:8080/callback",
		Scopes:       []string{"email", "profile"},
		Endpoint: oauth2lib.Endpoint{
			AuthURL:  "https://provider.example.com/auth",
			TokenURL: "https://provider.example.com/token",
		},
	}
	redirector := oauth2.OauthRedirector(config)

	t.Run("redirects to OAuth provider", func(t *testing.T) {
		rr := httptest.NewRecorder()
		redirector(rr, httptest.NewRequest(http.MethodGet, "/", nil))

		if rr.Code != http.StatusFound {
			t.Errorf("Expected status %d, got %d", http.StatusFound, rr.Code)
		}
		location := rr.Header().Get("Location")
		if !strings.HasPrefix(location, "https://provider.example.com/auth") {
			t.Errorf("Expected redirect to OAuth provider, got: %s", location)
		}
		parsedURL, err := url.Parse(location)
		if err != nil {
			t.Fatalf("Failed to parse redirect URL: %v", err)
		}
		query := parsedURL.Query()
		if query.Get("client_id") != "test-client-id" {
			t.Errorf("Expected client_id in URL")
		}
		if query.Get("redirect_uri") != "http://localhost:8080/callback" {
			t.Errorf("Expected redirect_uri in URL")
		}
		if query.Get("response_type") != "code" {
			t.Errorf("Expected response_type=code in URL")
		}
	})

	t.Run("state in URL matches cookie", func(t *testing.T) {
		rr := httptest.NewRecorder()
		redirector(rr, httptest.NewRequest(http.MethodGet, "/", nil))

		cookie := findCookie(rr, "oauthstate")
		if cookie == nil || cookie.Value == "" {
			t.Fatal("Expected oauthstate cookie to be set")
		}
		if !cookie.HttpOnly {
			t.Error("Expected oauthstate cookie to be HttpOnly")
		}
		parsedURL, _ := url.Parse(rr.Header().Get("Location"))
		if got := parsedURL.Query().Get("state"); got != cookie.Value {
			t.Errorf("State mismatch: cookie=%s, url=%s", cookie.Value, got)
		}
		if cookie.Expires.After(time.Now().Add(11 * time.Minute)) {
			t.Errorf("State cookie lives too long: %v", cookie.Expires)
		}
	})

	t.Run("sets callback URL cookie when provided", func(t *testing.T) {
		rr := httptest.NewRecorder()
		redirector(rr, httptest.NewRequest(http.MethodGet, "/?callbackURL=/dashboard", nil))

		cookie := findCookie(rr, "oauthCallbackURL")
		if cookie == nil {
			t.Fatal("Expected oauthCallbackURL cookie to be set")
		}
		if cookie.Value != "/dashboard" {
			t.Errorf("Expected callback URL '/dashboard', got '%s'", cookie.Value)
		}
	})

	t.Run("generates unique state for each request", func(t *testing.T) {
		states := map[string]bool{}
		for i := 0; i < 10; i++ {
			rr := httptest.NewRecorder()
			redirector(rr, httptest.NewRequest(http.MethodGet, "/", nil))
			if c := findCookie(rr, "oauthstate"); c != nil {
				states[c.Value] = true
			}
		}
		if len(states) != 10 {
			t.Errorf("Expected 10 unique states, got %d", len(states))
		}
	})
}

func TestGoogleOAuth2Callback(t *testing.T) {
	mock := newMockOAuthServer()
	defer mock.Close()

	var handledCalled bool
	var handledProvider string
	var handledUserInfo map[string]any

	googleAuth := oauth2.NewGoogleOAuth2(
		"test-client-id",
		"test-client-secret",
		"http://localhost:8080/callback",
		func(authtype, provider string, token *oauth2lib.Token, userInfo map[string]any, w http.ResponseWriter, r *http.Request) {
			handledCalled = true
			handledProvider = provider
			handledUserInfo = userInfo
			w.WriteHeader(http.StatusOK)
		},
	)
	googleAuth.UserInfoURL = mock.userInfoEndpoint
	googleAuth.SetHTTPClient(mock.server.Client())
	googleAuth.SetOAuthEndpoint(oauth2lib.Endpoint{
		AuthURL:  mock.server.URL + "/auth",
		TokenURL: mock.tokenEndpoint,
	})

	callback := func(state string, cookie string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodGet, "/callback?code=test_code&state="+state, nil)
		if cookie != "" {
			req.AddCookie(&http.Cookie{Name: "oauthstate", Value: cookie})
		}
		rr := httptest.NewRecorder()
		googleAuth.Handler().ServeHTTP(rr, req)
		return rr
	}

	t.Run("root starts the flow", func(t *testing.T) {
		rr := httptest.NewRecorder()
		googleAuth.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/", nil))
		if rr.Code != http.StatusFound {
			t.Errorf("Expected status %d, got %d", http.StatusFound, rr.Code)
		}
		if !strings.HasPrefix(rr.Header().Get("Location"), mock.server.URL+"/auth") {
			t.Errorf("Unexpected redirect: %s", rr.Header().Get("Location"))
		}
	})

	t.Run("rejects missing state cookie", func(t *testing.T) {
		handledCalled = false
		rr := callback("test_state", "")
		if rr.Code != http.StatusBadRequest {
			t.Errorf("Expected status %d, got %d", http.StatusBadRequest, rr.Code)
		}
		if handledCalled {
			t.Error("HandleUser should not be called without state cookie")
		}
	})

	t.Run("rejects mismatched state", func(t *testing.T) {
		handledCalled = false
		rr := callback("wrong_state", "correct_state")
		if rr.Code != http.StatusBadRequest {
			t.Errorf("Expected status %d, got %d", http.StatusBadRequest, rr.Code)
		}
		if !strings.Contains(rr.Body.String(), "invalid oauth") {
			t.Errorf("Expected invalid oauth error, got: %s", rr.Body.String())
		}
		if handledCalled {
			t.Error("HandleUser should not be called with mismatched state")
		}
	})

	t.Run("successful callback flow", func(t *testing.T) {
		handledCalled = false
		mock.userInfoResponse = map[string]any{
			"id":             "google123",
			"email":          "user@gmail.com",
			"verified_email": true,
			"name":           "Google User",
		}

		rr := callback("valid_state", "valid_state")

		if !handledCalled {
			t.Fatal("HandleUser should have been called")
		}
		if handledProvider != "google" {
			t.Errorf("Expected provider 'google', got '%s'", handledProvider)
		}
		if handledUserInfo["email"] != "user@gmail.com" {
			t.Errorf("Expected email 'user@gmail.com', got '%v'", handledUserInfo["email"])
		}
		if mock.lastAuthHeader != "Bearer mock_access_token" {
			t.Errorf("Expected bearer access token on user info request, got '%s'", mock.lastAuthHeader)
		}
		if c := findCookie(rr, "oauthstate"); c == nil || c.MaxAge >= 0 {
			t.Error("Expected state cookie to be cleared")
		}
	})

	t.Run("redirects on token exchange failure", func(t *testing.T) {
		handledCalled = false
		mock.tokenError = true
		defer func() { mock.tokenError = false }()

		rr := callback("valid_state", "valid_state")
		if rr.Code != http.StatusTemporaryRedirect {
			t.Errorf("Expected redirect status, got %d", rr.Code)
		}
		if handledCalled {
			t.Error("HandleUser should not be called on token exchange failure")
		}
	})

	t.Run("redirects on user info failure", func(t *testing.T) {
		handledCalled = false
		mock.userInfoError = true
		defer func() { mock.userInfoError = false }()

		rr := callback("valid_state", "valid_state")
		if rr.Code != http.StatusTemporaryRedirect {
			t.Errorf("Expected redirect status, got %d", rr.Code)
		}
		if rr.Header().Get("Location") != googleAuth.AuthFailureUrl {
			t.Errorf("Expected redirect to %s, got %s", googleAuth.AuthFailureUrl, rr.Header().Get("Location"))
		}
		if handledCalled {
			t.Error("HandleUser should not be called on user info failure")
		}
	})
}

func TestGoogleDefaults(t *testing.T) {
	t.Run("uses Google user info endpoint", func(t *testing.T) {
		googleAuth := oauth2.NewGoogleOAuth2("id", "secret", "http://localhost/callback", nil)
		if googleAuth.UserInfoURL != "https://www.googleapis.com/oauth2/v2/userinfo" {
			t.Errorf("Unexpected default UserInfoURL '%s'", googleAuth.UserInfoURL)
		}
		if googleAuth.HTTPClient != nil {
			t.Error("Expected HTTPClient to be nil by default")
		}
	})

	t.Run("reads from environment when empty", func(t *testing.T) {
		t.Setenv("OAUTH2_GOOGLE_CLIENT_ID", "env-client-id")
		t.Setenv("OAUTH2_GOOGLE_CLIENT_SECRET", "env-secret")
		t.Setenv("OAUTH2_GOOGLE_CALLBACK_URL", "http://env/callback")

		googleAuth := oauth2.NewGoogleOAuth2("", "", "", nil)
		if googleAuth.ClientId != "env-client-id" {
			t.Errorf("Expected ClientId from env, got '%s'", googleAuth.ClientId)
		}
		if googleAuth.CallbackURL != "http://env/callback" {
			t.Errorf("Expected CallbackURL from env, got '%s'", googleAuth.CallbackURL)
		}
	})

	t.Run("explicit values override environment", func(t *testing.T) {
		t.Setenv("OAUTH2_GOOGLE_CLIENT_ID", "env-client-id")
		googleAuth := oauth2.NewGoogleOAuth2("explicit-client-id", "explicit-secret", "http://explicit-callback.com", nil)
		if googleAuth.ClientId != "explicit-client-id" {
			t.Errorf("Expected explicit ClientId, got '%s'", googleAuth.ClientId)
		}
		if googleAuth.ClientSecret != "explicit-secret" {
			t.Errorf("Expected explicit ClientSecret, got '%s'", googleAuth.ClientSecret)
		}
	})
}
