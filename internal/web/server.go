// Package web provides the HTTP surface for the now-playing service.
package web

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/farukhdev/spotify-now-playing/internal/spotify"
	"github.com/farukhdev/spotify-now-playing/internal/store"
	"github.com/farukhdev/spotify-now-playing/internal/token"
)

// ServerConfig holds server configuration and dependencies.
type ServerConfig struct {
	Addr string

	Store   store.Store
	Tokens  *token.Service
	Auth    *spotify.Authenticator
	Spotify *spotify.Client

	// RedirectPath is where the authorization callback sends the
	// browser, with a spotify=success|error query appended.
	RedirectPath string
}

// Server is the HTTP server for the now-playing service.
type Server struct {
	router   chi.Router
	server   *http.Server
	handlers *Handlers
}

// NewServer creates a new web server.
func NewServer(cfg ServerConfig) *Server {
	if cfg.RedirectPath == "" {
		cfg.RedirectPath = "/"
	}

	handlers := NewHandlers(cfg.Store, cfg.Tokens, cfg.Auth, cfg.Spotify, cfg.RedirectPath)

	router := chi.NewRouter()

	s := &Server{
		router:   router,
		handlers: handlers,
	}

	s.setupMiddleware()
	s.setupRoutes()

	s.server = &http.Server{
		Addr:         cfg.Addr,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return s
}

// Handler returns the configured router. Tests mount it on httptest
// servers directly.
func (s *Server) Handler() http.Handler {
	return s.router
}

// setupMiddleware configures middleware for the router.
func (s *Server) setupMiddleware() {
	s.router.Use(middleware.RequestID)
	s.router.Use(middleware.RealIP)
	s.router.Use(middleware.Logger)
	s.router.Use(middleware.Recoverer)
	s.router.Use(middleware.Compress(5))
}

// setupRoutes configures routes for the service.
func (s *Server) setupRoutes() {
	// Authorization flow
	s.router.Get("/auth/start", s.handlers.AuthStart)
	s.router.Get("/auth/callback", s.handlers.AuthCallback)
	s.router.Post("/auth/disconnect", s.handlers.AuthDisconnect)
	s.router.Post("/token/exchange", s.handlers.TokenExchange)
	s.router.Get("/token/status", s.handlers.TokenStatus)

	// Playback read model
	s.router.Get("/now-playing", s.handlers.NowPlaying)
	s.router.Get("/now-playing/public", s.handlers.PublicNowPlaying)
	s.router.Get("/recently-played", s.handlers.RecentlyPlayed)
}

// Start starts the HTTP server.
func (s *Server) Start() error {
	log.Printf("Starting server at http://%s", s.server.Addr)
	return s.server.ListenAndServe()
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}

// Run starts the server and handles graceful shutdown on interrupt signals.
func (s *Server) Run() error {
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

	errCh := make(chan error, 1)
	go func() {
		if err := s.Start(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-stop:
		log.Println("Shutting down server...")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := s.Shutdown(ctx); err != nil {
		return err
	}

	log.Println("Server stopped")
	return nil
}
