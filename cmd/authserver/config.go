package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config is everything authserver reads from the environment
type Config struct {
	Addr    string
	BaseURL string

	// Store is one of postgres, sqlite or fs
	Store       string
	DatabaseURL string
	SQLitePath  string
	FSPath      string

	RedisURL   string
	RateLimit  int
	RateWindow time.Duration

	// TrustProxy keys rate limits on X-Forwarded-For; set only behind a proxy
	TrustProxy bool

	JWTSecret  string
	JWTIssuer  string
	SessionTTL time.Duration
	BcryptCost int

	CORSOrigins []string

	GoogleClientID     string
	GoogleClientSecret string
	GoogleCallbackURL  string
}

// loadDotenv loads the first .env found in the working directory or its parents
func loadDotenv() string {
	for _, p := range []string{".env", filepath.Join("..", ".env"), filepath.Join("..", "..", ".env")} {
		if _, err := os.Stat(p); err == nil {
			if godotenv.Load(p) == nil {
				return p
			}
		}
	}
	return ""
}

// LoadConfig reads the configuration through getenv, usually os.Getenv
func LoadConfig(getenv func(string) string) (*Config, error) {
	env := func(k, def string) string {
		if v := strings.TrimSpace(getenv(k)); v != "" {
			return v
		}
		return def
	}

	c := &Config{
		Addr:               env("AUTH_ADDR", ":8080"),
		BaseURL:            strings.TrimRight(env("AUTH_BASE_URL", "http://localhost:8080"), "/"),
		Store:              strings.ToLower(env("AUTH_STORE", "")),
		DatabaseURL:        env("DATABASE_URL", ""),
		SQLitePath:         env("AUTH_SQLITE_PATH", "credauth.db"),
		FSPath:             env("AUTH_FS_PATH", "./data"),
		RedisURL:           env("REDIS_URL", ""),
		JWTSecret:          env("AUTH_JWT_SECRET", ""),
		JWTIssuer:          env("AUTH_JWT_ISSUER", "credauth"),
		GoogleClientID:     env("OAUTH2_GOOGLE_CLIENT_ID", ""),
		GoogleClientSecret: env("OAUTH2_GOOGLE_CLIENT_SECRET", ""),
		GoogleCallbackURL:  env("OAUTH2_GOOGLE_CALLBACK_URL", ""),
	}

	if c.Store == "" {
		c.Store = "sqlite"
		if c.DatabaseURL != "" {
			c.Store = "postgres"
		}
	}
	switch c.Store {
	case "postgres":
		if c.DatabaseURL == "" {
			return nil, fmt.Errorf("DATABASE_URL is required for the postgres store")
		}
	case "sqlite", "fs":
	default:
		return nil, fmt.Errorf("AUTH_STORE must be postgres, sqlite or fs, got %q", c.Store)
	}

	if c.JWTSecret == "" {
		return nil, fmt.Errorf("AUTH_JWT_SECRET is required")
	}

	var err error
	if c.SessionTTL, err = parseDuration(env("AUTH_SESSION_TTL", "24h"), "AUTH_SESSION_TTL"); err != nil {
		return nil, err
	}
	if c.RateWindow, err = parseDuration(env("AUTH_RATE_WINDOW", "1m"), "AUTH_RATE_WINDOW"); err != nil {
		return nil, err
	}
	if c.RateLimit, err = parseInt(env("AUTH_RATE_LIMIT", "10"), "AUTH_RATE_LIMIT"); err != nil {
		return nil, err
	}
	if c.TrustProxy, err = parseBool(env("AUTH_TRUST_PROXY", "false"), "AUTH_TRUST_PROXY"); err != nil {
		return nil, err
	}
	if c.BcryptCost, err = parseInt(env("AUTH_BCRYPT_COST", "0"), "AUTH_BCRYPT_COST"); err != nil {
		return nil, err
	}

	for _, p := range strings.Split(env("CORS_ORIGIN", "http://localhost:3000"), ",") {
		if o := strings.TrimRight(strings.TrimSpace(p), "/"); o != "" {
			c.CORSOrigins = append(c.CORSOrigins, o)
		}
	}
	return c, nil
}

// GoogleEnabled reports whether Google sign-in is configured
func (c *Config) GoogleEnabled() bool {
	return c.GoogleClientID != "" && c.GoogleClientSecret != ""
}

func parseDuration(v, key string) (time.Duration, error) {
	d, err := time.ParseDuration(v)
	if err != nil || d <= 0 {
		return 0, fmt.Errorf("%s must be a positive duration, got %q", key, v)
	}
	return d, nil
}

func parseInt(v, key string) (int, error) {
	n, err := strconv.Atoi(v)
	if err != nil || n < 0 {
		return 0, fmt.Errorf("%s must be a non-negative integer, got %q", key, v)
	}
	return n, nil
}

func parseBool(v, key string) (bool, error) {
	b, err := strconv.ParseBool(v)
	if err != nil {
		return false, fmt.Errorf("%s must be a boolean, got %q", key, v)
	}
	return b, nil
}
