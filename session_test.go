package credauth_test

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	ca "github.com/panyam/credauth"
)

func newSessions(secret string) *ca.Sessions {
	return (&ca.Sessions{JWTSecretKey: secret, Logger: quietLogger()}).EnsureDefaults()
}

func TestSessions_TokenRoundTrip(t *testing.T) {
	s := newSessions("secret")
	token, err := s.IssueToken(&ca.AccountSummary{ID: "acct-1", Email: "alice@example.com", Role: ca.RoleAdmin})
	require.NoError(t, err)

	p, err := s.VerifyToken(token)
	require.NoError(t, err)
	assert.Equal(t, "acct-1", p.AccountID)
	assert.Equal(t, "alice@example.com", p.Email)
	assert.True(t, p.IsAdmin())
}

func TestSessions_RejectsTokens(t *testing.T) {
	s := newSessions("secret")
	account := &ca.AccountSummary{ID: "acct-1", Email: "alice@example.com", Role: ca.RoleUser}

	otherKey, _ := newSessions("other").IssueToken(account)
	otherIssuer, _ := (&ca.Sessions{JWTSecretKey: "secret", JWTIssuer: "someone-else"}).EnsureDefaults().IssueToken(account)
	expired, _ := (&ca.Sessions{
		JWTSecretKey: "secret",
		Now:          func() time.Time { return time.Now().Add(-25 * time.Hour) },
	}).EnsureDefaults().IssueToken(account)
	unsigned, _ := jwt.NewWithClaims(jwt.SigningMethodNone, ca.SessionClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   "acct-1",
			Issuer:    "credauth",
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	}).SignedString(jwt.UnsafeAllowNoneSignatureType)
	noExpiry, _ := jwt.NewWithClaims(jwt.SigningMethodHS256, ca.SessionClaims{
		RegisteredClaims: jwt.RegisteredClaims{Subject: "acct-1", Issuer: "credauth"},
	}).SignedString([]byte("secret"))

	for name, token := range map[string]string{
		"garbage":      "not-a-token",
		"other key":    otherKey,
		"other issuer": otherIssuer,
		"expired":      expired,
		"alg none":     unsigned,
		"no expiry":    noExpiry,
	} {
		t.Run(name, func(t *testing.T) {
			_, err := s.VerifyToken(token)
			assert.Error(t, err)
		})
	}
}

func TestBearerToken(t *testing.T) {
	tests := map[string]string{
		"Bearer abc":  "abc",
		"bearer abc ": "abc",
		"Basic abc":   "",
		"Bearer":      "",
		"":            "",
	}
	for header, want := range tests {
		r := httptest.NewRequest(http.MethodGet, "/", nil)
		if header != "" {
			r.Header.Set("Authorization", header)
		}
		assert.Equal(t, want, ca.BearerToken(r), header)
	}
}

func TestSessions_RequireAdmin(t *testing.T) {
	s := newSessions("secret")
	h := s.RequireAdmin(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		p := ca.PrincipalFromContext(r.Context())
		w.Write([]byte(p.AccountID))
	}))

	serve := func(role ca.Role) *httptest.ResponseRecorder {
		r := httptest.NewRequest(http.MethodGet, "/admin", nil)
		if role != "" {
			token, err := s.IssueToken(&ca.AccountSummary{ID: "acct-1", Role: role})
			require.NoError(t, err)
			r.Header.Set("Authorization", "Bearer "+token)
		}
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, r)
		return rec
	}

	assert.Equal(t, http.StatusUnauthorized, serve("").Code)
	assert.Equal(t, http.StatusForbidden, serve(ca.RoleUser).Code)
	rec := serve(ca.RoleAdmin)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "acct-1", rec.Body.String())
}

func TestSessions_PrincipalFromContextWins(t *testing.T) {
	s := newSessions("secret")
	r := httptest.NewRequest(http.MethodGet, "/", nil)
	r = r.WithContext(ca.WithPrincipal(r.Context(), &ca.Principal{AccountID: "from-ctx"}))
	r.Header.Set("Authorization", "Bearer garbage")

	p := s.Current(r)
	require.NotNil(t, p)
	assert.Equal(t, "from-ctx", p.AccountID)
}

func TestSessions_LoginWithoutCookieSession(t *testing.T) {
	s := newSessions("secret")
	r := httptest.NewRequest(http.MethodGet, "/", nil)

	token, err := s.Login(r.Context(), &ca.AccountSummary{ID: "acct-1", Role: ca.RoleUser})
	require.NoError(t, err)
	assert.NotEmpty(t, token)
	assert.NoError(t, s.Logout(r.Context()))
}

func TestSessions_LoadAndSaveCarriesLogin(t *testing.T) {
	s := newSessions("secret")
	mux := http.NewServeMux()
	mux.HandleFunc("/login", func(w http.ResponseWriter, r *http.Request) {
		_, err := s.Login(r.Context(), &ca.AccountSummary{ID: "acct-1", Email: "alice@example.com", Role: ca.RoleAdmin})
		require.NoError(t, err)
	})
	mux.HandleFunc("/me", func(w http.ResponseWriter, r *http.Request) {
		if p := s.Current(r); p != nil {
			w.Write([]byte(p.AccountID + " " + string(p.Role)))
		}
	})
	mux.HandleFunc("/logout", func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, s.Logout(r.Context()))
	})
	h := s.LoadAndSave(mux)

	serve := func(path string, cookies []*http.Cookie) *httptest.ResponseRecorder {
		r := httptest.NewRequest(http.MethodGet, path, nil)
		for _, c := range cookies {
			r.AddCookie(c)
		}
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, r)
		return rec
	}

	cookies := serve("/login", nil).Result().Cookies()
	require.NotEmpty(t, cookies)
	assert.Equal(t, "acct-1 ADMIN", serve("/me", cookies).Body.String())

	serve("/logout", cookies)
	assert.Empty(t, serve("/me", cookies).Body.String())
}

func TestSessions_BareManagerMiddlewareUsesBearerOnly(t *testing.T) {
	s := newSessions("secret")
	h := s.Manager.LoadAndSave(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token, err := s.Login(r.Context(), &ca.AccountSummary{ID: "acct-1", Role: ca.RoleUser})
		require.NoError(t, err)
		assert.Nil(t, s.Current(r))
		r.Header.Set("Authorization", "Bearer "+token)
		p := s.Current(r)
		require.NotNil(t, p)
		assert.Equal(t, "acct-1", p.AccountID)
	}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, rec.Result().Cookies())
}
