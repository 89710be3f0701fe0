// Command authserver serves the credauth endpoints over HTTP
package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/go-chi/cors"
	"github.com/redis/go-redis/v9"

	"github.com/panyam/credauth"
	"github.com/panyam/credauth/oauth2"
	"github.com/panyam/credauth/ratelimit"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	if p := loadDotenv(); p != "" {
		logger.Info("loaded env file", "path", p)
	}
	cfg, err := LoadConfig(os.Getenv)
	if err != nil {
		logger.Error("invalid configuration", "err", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Error("authserver stopped", "err", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *Config, logger *slog.Logger) error {
	store, err := openStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer store.Close()
	logger.Info("store ready", "backend", cfg.Store)

	handler, cleanup, err := newHandler(cfg, store, logger)
	if err != nil {
		return err
	}
	defer cleanup()

	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errc := make(chan error, 1)
	go func() {
		logger.Info("listening", "addr", cfg.Addr, "cors_origins", cfg.CORSOrigins)
		errc <- srv.ListenAndServe()
	}()

	select {
	case err := <-errc:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

// newHandler wires the service, sessions, limiter and providers into one
// CORS-wrapped handler
func newHandler(cfg *Config, store credauth.Store, logger *slog.Logger) (http.Handler, func(), error) {
	cleanup := func() {}

	service := &credauth.Service{
		Store:   store,
		Logger:  logger,
		BaseURL: cfg.BaseURL,
		Hasher:  &credauth.BcryptHasher{Cost: cfg.BcryptCost},
	}
	service.EnsureDefaults()

	api := &credauth.API{
		Service: service,
		Sessions: &credauth.Sessions{
			JWTSecretKey: cfg.JWTSecret,
			JWTIssuer:    cfg.JWTIssuer,
			TokenTTL:     cfg.SessionTTL,
			Logger:       logger,
		},
		TrustProxyHeaders: cfg.TrustProxy,
		Logger:            logger,
	}
	api.EnsureDefaults()
	api.Sessions.Manager.Cookie.Secure = isHTTPS(cfg.BaseURL)

	if cfg.RedisURL != "" {
		opts, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			return nil, cleanup, err
		}
		client := redis.NewClient(opts)
		cleanup = func() { client.Close() }
		api.Limiter = ratelimit.New(client, ratelimit.Config{Limit: cfg.RateLimit, Window: cfg.RateWindow})
		logger.Info("rate limiting enabled", "limit", cfg.RateLimit, "window", cfg.RateWindow)
	}

	if cfg.GoogleEnabled() {
		callback := cfg.GoogleCallbackURL
		if callback == "" {
			callback = cfg.BaseURL + api.Prefix + "/google/callback"
		}
		google := oauth2.NewGoogleOAuth2(cfg.GoogleClientID, cfg.GoogleClientSecret, callback, api.HandleOAuthUser)
		google.AuthFailureUrl = api.PostOAuthRedirect + "?error=oauth_failed"
		api.Providers = map[string]http.Handler{"google": google.Handler()}
	}

	router := api.Routes()
	router.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		credauth.WriteJSON(w, http.StatusOK, map[string]any{"ok": true})
	}).Methods(http.MethodGet)

	handler := cors.Handler(cors.Options{
		AllowedOrigins:   cfg.CORSOrigins,
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Requested-With"},
		AllowCredentials: true,
		MaxAge:           300,
	})(router)
	return handler, cleanup, nil
}

func isHTTPS(baseURL string) bool {
	return strings.HasPrefix(baseURL, "https://")
}
