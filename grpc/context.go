// Package grpc authenticates gRPC calls with the bearer session tokens issued
// at sign-in. Tokens travel in the "authorization" metadata key.
package grpc

import (
	"context"
	"strings"

	"google.golang.org/grpc/metadata"

	ca "github.com/panyam/credauth"
)

// DefaultMetadataKeyAuthorization is the metadata key carrying "Bearer <token>"
const DefaultMetadataKeyAuthorization = "authorization"

// Config holds the metadata key configuration for auth context.
type Config struct {
	// MetadataKeyAuthorization defaults to "authorization"
	MetadataKeyAuthorization string
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{MetadataKeyAuthorization: DefaultMetadataKeyAuthorization}
}

// EnsureDefaults fills in default values for any unset fields.
func (c *Config) EnsureDefaults() {
	if c.MetadataKeyAuthorization == "" {
		c.MetadataKeyAuthorization = DefaultMetadataKeyAuthorization
	}
}

// PrincipalFromContext returns the account authenticated by the interceptor, or nil
func PrincipalFromContext(ctx context.Context) *ca.Principal {
	return ca.PrincipalFromContext(ctx)
}

// AccountIDFromContext returns the authenticated account ID, or ""
func AccountIDFromContext(ctx context.Context) string {
	if p := ca.PrincipalFromContext(ctx); p != nil {
		return p.AccountID
	}
	return ""
}

// IsAuthenticated returns true if there is an authenticated account in the context.
func IsAuthenticated(ctx context.Context) bool {
	return AccountIDFromContext(ctx) != ""
}

// TokenToOutgoingContext attaches a bearer token to outgoing call metadata
func TokenToOutgoingContext(ctx context.Context, token string) context.Context {
	return metadata.AppendToOutgoingContext(ctx, DefaultMetadataKeyAuthorization, "Bearer "+token)
}

// bearerFromIncoming extracts the bearer token from incoming metadata
func bearerFromIncoming(ctx context.Context, key string) string {
	md, ok := metadata.FromIncomingContext(ctx)
	if !ok {
		return ""
	}
	for _, v := range md.Get(key) {
		parts := strings.SplitN(v, " ", 2)
		if len(parts) == 2 && strings.EqualFold(parts[0], "Bearer") {
			if token := strings.TrimSpace(parts[1]); token != "" {
				return token
			}
		}
	}
	return ""
}
