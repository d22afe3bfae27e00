// Package config reads service configuration from environment variables.
package config

import (
	"errors"
	"os"

	"github.com/joho/godotenv"
)

// DefaultAddr is the default listen address for the HTTP server.
const DefaultAddr = "127.0.0.1:8080"

// Errors returned when required environment variables are not set.
var (
	ErrMissingClientID     = errors.New("missing SPOTIFY_CLIENT_ID environment variable")
	ErrMissingClientSecret = errors.New("missing SPOTIFY_CLIENT_SECRET environment variable")
	ErrMissingRedirectURI  = errors.New("missing SPOTIFY_REDIRECT_URI environment variable")
)

// Config holds the environment-level configuration for the service.
type Config struct {
	// Addr is the HTTP listen address (NOWPLAYING_ADDR).
	Addr string

	// ClientID and ClientSecret identify the confidential Spotify app.
	ClientID     string
	ClientSecret string

	// RedirectURI must exactly match the URI registered with Spotify;
	// it differs between production and local deployments.
	RedirectURI string

	// DatabaseURL is the Postgres connection string for the credential
	// store. Empty means run with the in-memory store.
	DatabaseURL string
}

// Load reads configuration from the environment. A .env file in the
// working directory is loaded first when present, so local runs do not
// need exported variables.
func Load() (*Config, error) {
	// Missing .env is the normal case in production.
	_ = godotenv.Load()

	cfg := &Config{
		Addr:         os.Getenv("NOWPLAYING_ADDR"),
		ClientID:     os.Getenv("SPOTIFY_CLIENT_ID"),
		ClientSecret: os.Getenv("SPOTIFY_CLIENT_SECRET"),
		RedirectURI:  os.Getenv("SPOTIFY_REDIRECT_URI"),
		DatabaseURL:  os.Getenv("DATABASE_URL"),
	}

	if cfg.Addr == "" {
		cfg.Addr = DefaultAddr
	}
	if cfg.ClientID == "" {
		return nil, ErrMissingClientID
	}
	if cfg.ClientSecret == "" {
		return nil, ErrMissingClientSecret
	}
	if cfg.RedirectURI == "" {
		return nil, ErrMissingRedirectURI
	}

	return cfg, nil
}
