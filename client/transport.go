package client

import (
	"net/http"
)

// TokenSource supplies the bearer token for outgoing requests. An empty token
// sends the request unauthenticated.
type TokenSource interface {
	Token() (string, error)
}

// StaticToken is a TokenSource that always returns the same token
type StaticToken string

func (s StaticToken) Token() (string, error) { return string(s), nil }

// AuthTransport wraps an http.RoundTripper to add Authorization headers
type AuthTransport struct {
	Base   http.RoundTripper
	Source TokenSource
}

// RoundTrip implements http.RoundTripper
func (t *AuthTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	if t.Source != nil && req.Header.Get("Authorization") == "" {
		token, err := t.Source.Token()
		if err != nil {
			return nil, err
		}
		if token != "" {
			req = req.Clone(req.Context())
			req.Header.Set("Authorization", "Bearer "+token)
		}
	}

	base := t.Base
	if base == nil {
		base = http.DefaultTransport
	}
	return base.RoundTrip(req)
}

// NewAuthTransport creates an AuthTransport sending a fixed token
func NewAuthTransport(token string) *AuthTransport {
	return &AuthTransport{Base: http.DefaultTransport, Source: StaticToken(token)}
}
