// Command spotify-now-playing runs the Spotify now-playing service.
package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/farukhdev/spotify-now-playing/internal/config"
	"github.com/farukhdev/spotify-now-playing/internal/spotify"
	"github.com/farukhdev/spotify-now-playing/internal/store"
	"github.com/farukhdev/spotify-now-playing/internal/token"
	"github.com/farukhdev/spotify-now-playing/internal/web"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	st, err := newStore(cfg)
	if err != nil {
		return fmt.Errorf("creating credential store: %w", err)
	}
	if pg, ok := st.(*store.Postgres); ok {
		defer pg.Close()
	}

	auth := spotify.NewAuthenticator(spotify.AuthConfig{
		ClientID:     cfg.ClientID,
		ClientSecret: cfg.ClientSecret,
		RedirectURI:  cfg.RedirectURI,
	})

	server := web.NewServer(web.ServerConfig{
		Addr:         cfg.Addr,
		Store:        st,
		Tokens:       token.NewService(st, auth),
		Auth:         auth,
		Spotify:      spotify.NewClient(),
		RedirectPath: "/",
	})

	return server.Run()
}

// newStore picks the credential store from configuration: Postgres when
// DATABASE_URL is set, otherwise in-memory for local runs.
func newStore(cfg *config.Config) (store.Store, error) {
	if cfg.DatabaseURL == "" {
		log.Println("DATABASE_URL not set, using in-memory credential store")
		return store.NewMemory(), nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return store.NewPostgres(ctx, cfg.DatabaseURL)
}
