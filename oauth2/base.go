// Package oauth2 runs the authorization-code flow against an OAuth provider
// and hands the verified user info to a HandleUserFunc.
package oauth2

import (
	"context"
	"net/http"
	"os"
	"strings"

	"golang.org/x/oauth2"
)

type BaseOAuth2 struct {
	ClientId     string
	ClientSecret string
	CallbackURL  string
	HandleUser   HandleUserFunc

	// AuthFailureUrl is where failed callbacks are redirected
	AuthFailureUrl string

	// HTTPClient is used for the token exchange and user info requests.
	// http.DefaultClient when nil.
	HTTPClient *http.Client

	oauthConfig oauth2.Config
	mux         *http.ServeMux
}

func NewBaseOAuth2(clientId string, clientSecret string, callbackUrl string, handleUser HandleUserFunc) *BaseOAuth2 {
	if clientId == "" {
		clientId = strings.TrimSpace(os.Getenv("OAUTH2_CLIENT_ID"))
	}
	if clientSecret == "" {
		clientSecret = strings.TrimSpace(os.Getenv("OAUTH2_CLIENT_SECRET"))
	}
	if callbackUrl == "" {
		callbackUrl = strings.TrimSpace(os.Getenv("OAUTH2_CALLBACK_URL"))
	}
	out := &BaseOAuth2{
		ClientId:       clientId,
		ClientSecret:   clientSecret,
		CallbackURL:    callbackUrl,
		HandleUser:     handleUser,
		AuthFailureUrl: "/auth/failed",
		mux:            http.NewServeMux(),
		oauthConfig: oauth2.Config{
			ClientID:     clientId,
			ClientSecret: clientSecret,
			RedirectURL:  callbackUrl,
		},
	}
	out.mux.HandleFunc("/{$}", OauthRedirector(&out.oauthConfig))
	return out
}

// Handler serves "/" (start the flow) and whatever callbacks the provider adds
func (b *BaseOAuth2) Handler() http.Handler {
	return b.mux
}

func (b *BaseOAuth2) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	b.mux.ServeHTTP(w, r)
}

// SetHTTPClient sets the client used to talk to the provider
func (b *BaseOAuth2) SetHTTPClient(client *http.Client) {
	b.HTTPClient = client
}

// SetOAuthEndpoint overrides the provider's auth and token URLs
func (b *BaseOAuth2) SetOAuthEndpoint(endpoint oauth2.Endpoint) {
	b.oauthConfig.Endpoint = endpoint
}

// ExchangeContext returns ctx carrying the injected HTTP client, if any, so
// the oauth2 library uses it for the token exchange.
func (b *BaseOAuth2) ExchangeContext(ctx context.Context) context.Context {
	if b.HTTPClient != nil {
		return context.WithValue(ctx, oauth2.HTTPClient, b.HTTPClient)
	}
	return ctx
}

func (b *BaseOAuth2) getHTTPClient() *http.Client {
	if b.HTTPClient != nil {
		return b.HTTPClient
	}
	return http.DefaultClient
}
