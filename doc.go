// Package credauth implements email and password accounts with single-use
// verification and password reset tokens.
//
// # Accounts and tokens
//
// An Account is keyed by email. Accounts created through Register carry a
// bcrypt password hash and stay unverified until the emailed verification
// token is consumed. Accounts created by an OAuth provider have no password
// and are verified from the start.
//
// Tokens come in two kinds, TokenKindEmailVerification (24 hours) and
// TokenKindPasswordReset (1 hour). Issuing a token replaces any live token of
// the same kind for the email. Expiry is checked lazily when a token is
// validated, and an expired token is deleted on that read. Validation deletes
// the token and applies its account change in one transaction, so a token
// can be consumed at most once.
//
// # Basic Usage
//
// Open a store and build a Service over it:
//
//	store, err := fs.New("/path/to/storage")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer store.Close()
//
//	service := credauth.NewService(store, myNotifier)
//
// Expose it over HTTP, with cookie sessions and bearer tokens:
//
//	api := &credauth.API{
//	    Service:  service,
//	    Sessions: &credauth.Sessions{JWTSecretKey: os.Getenv("AUTH_JWT_SECRET")},
//	}
//	http.Handle("/auth/", api.Routes())
//
// This serves:
//
//	POST /auth/register          create an unverified account
//	POST /auth/signin            sign in, returns the account and an access token
//	POST /auth/forgot-password   email a reset link if the account exists
//	POST /auth/reset-password    consume a reset token
//	POST /auth/verify            consume a verification token (also GET ?token=)
//	GET  /auth/session           the signed-in account
//	POST /auth/signout           end the cookie session
//
// # Errors
//
// Every operation fails with an *AuthError. Compare against the exported
// sentinels with errors.Is; Status gives the HTTP status. Sign-in with an
// unknown email and with a wrong password fail with the same
// ErrInvalidCredentials, and a password reset request answers identically
// whether or not the account exists.
//
// # Stores
//
// Store implementations live under stores/: fs keeps JSON files on disk and
// gorm works with any gorm dialect (postgres and sqlite are wired in
// cmd/authserver). stores/storetest holds the conformance suite both run.
package credauth
