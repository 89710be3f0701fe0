package grpc

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	ca "github.com/panyam/credauth"
)

// TokenVerifier checks a bearer token. *credauth.Sessions implements it.
type TokenVerifier interface {
	VerifyToken(token string) (*ca.Principal, error)
}

// InterceptorConfig configures the auth interceptor behavior.
type InterceptorConfig struct {
	*Config

	Verifier TokenVerifier

	// RequireAuth when true rejects unauthenticated requests.
	// When false, requests proceed but PrincipalFromContext returns nil.
	RequireAuth bool

	// PublicMethods don't require auth. Keys are full method names like
	// "/package.Service/Method".
	PublicMethods map[string]bool

	// AdminMethods require an account with the admin role
	AdminMethods map[string]bool
}

// DefaultInterceptorConfig returns a config that requires auth for all methods.
func DefaultInterceptorConfig(verifier TokenVerifier) *InterceptorConfig {
	return &InterceptorConfig{
		Config:        DefaultConfig(),
		Verifier:      verifier,
		RequireAuth:   true,
		PublicMethods: map[string]bool{},
		AdminMethods:  map[string]bool{},
	}
}

// NewPublicMethodsConfig creates a config with the specified public methods.
func NewPublicMethodsConfig(verifier TokenVerifier, publicMethods ...string) *InterceptorConfig {
	config := DefaultInterceptorConfig(verifier)
	for _, method := range publicMethods {
		config.PublicMethods[method] = true
	}
	return config
}

// OptionalAuthConfig returns a config that allows unauthenticated requests.
func OptionalAuthConfig(verifier TokenVerifier) *InterceptorConfig {
	config := DefaultInterceptorConfig(verifier)
	config.RequireAuth = false
	return config
}

func (c *InterceptorConfig) ensureDefaults() *InterceptorConfig {
	if c.Config == nil {
		c.Config = DefaultConfig()
	}
	c.Config.EnsureDefaults()
	return c
}

// authorize verifies the caller and returns ctx carrying its principal
func (c *InterceptorConfig) authorize(ctx context.Context, method string) (context.Context, error) {
	var principal *ca.Principal
	if token := bearerFromIncoming(ctx, c.MetadataKeyAuthorization); token != "" && c.Verifier != nil {
		p, err := c.Verifier.VerifyToken(token)
		if err != nil {
			return nil, status.Error(codes.Unauthenticated, "invalid token")
		}
		principal = p
	}

	needsAuth := c.AdminMethods[method] || (c.RequireAuth && !c.PublicMethods[method])
	if principal == nil {
		if needsAuth {
			return nil, status.Error(codes.Unauthenticated, "authentication required")
		}
		return ctx, nil
	}
	if c.AdminMethods[method] && !principal.IsAdmin() {
		return nil, status.Error(codes.PermissionDenied, "admin role required")
	}
	return ca.WithPrincipal(ctx, principal), nil
}

// UnaryAuthInterceptor returns a gRPC unary interceptor that verifies bearer tokens.
func UnaryAuthInterceptor(config *InterceptorConfig) grpc.UnaryServerInterceptor {
	if config == nil {
		config = DefaultInterceptorConfig(nil)
	}
	config.ensureDefaults()

	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		ctx, err := config.authorize(ctx, info.FullMethod)
		if err != nil {
			return nil, err
		}
		return handler(ctx, req)
	}
}

// StreamAuthInterceptor returns a gRPC stream interceptor that verifies bearer tokens.
func StreamAuthInterceptor(config *InterceptorConfig) grpc.StreamServerInterceptor {
	if config == nil {
		config = DefaultInterceptorConfig(nil)
	}
	config.ensureDefaults()

	return func(srv any, ss grpc.ServerStream, info *grpc.StreamServerInfo, handler grpc.StreamHandler) error {
		ctx, err := config.authorize(ss.Context(), info.FullMethod)
		if err != nil {
			return err
		}
		return handler(srv, &wrappedStream{ServerStream: ss, ctx: ctx})
	}
}

// wrappedStream overrides Context so handlers see the principal
type wrappedStream struct {
	grpc.ServerStream
	ctx context.Context
}

func (w *wrappedStream) Context() context.Context {
	return w.ctx
}
