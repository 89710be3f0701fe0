package oauth2

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"log/slog"
	"net/http"
	"time"

	"golang.org/x/oauth2"
)

type HandleUserFunc func(authtype string, provider string, token *oauth2.Token, userInfo map[string]any, w http.ResponseWriter, r *http.Request)

const (
	stateCookieName       = "oauthstate"
	callbackURLCookieName = "oauthCallbackURL"
	stateCookieLifetime   = 10 * time.Minute
)

func generateStateOauthCookie(w http.ResponseWriter) string {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		slog.Error("error generating oauth state", "err", err)
	}
	state := base64.URLEncoding.EncodeToString(b)
	http.SetCookie(w, &http.Cookie{
		Name:     stateCookieName,
		Value:    state,
		Path:     "/",
		Expires:  time.Now().Add(stateCookieLifetime),
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
	return state
}

// checkState compares the state query parameter with the state cookie and
// clears the cookie either way
func checkState(w http.ResponseWriter, r *http.Request) bool {
	cookie, _ := r.Cookie(stateCookieName)
	http.SetCookie(w, &http.Cookie{Name: stateCookieName, Path: "/", MaxAge: -1})
	if cookie == nil || cookie.Value == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(r.FormValue("state")), []byte(cookie.Value)) == 1
}

func OauthRedirector(oauthConfig *oauth2.Config) func(w http.ResponseWriter, r *http.Request) {
	return func(w http.ResponseWriter, r *http.Request) {
		// remember where to go back to after the callback
		callbackURL := r.URL.Query().Get("callbackURL")
		if callbackURL != "" {
			http.SetCookie(w, &http.Cookie{
				Name:     callbackURLCookieName,
				Value:    callbackURL,
				Path:     "/",
				Expires:  time.Now().Add(stateCookieLifetime),
				MaxAge:   int(stateCookieLifetime.Seconds()),
				HttpOnly: true,
			})
		}
		oauthState := generateStateOauthCookie(w)
		http.Redirect(w, r, oauthConfig.AuthCodeURL(oauthState), http.StatusFound)
	}
}
