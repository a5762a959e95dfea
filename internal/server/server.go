// Package server sets up the HTTP server, router, and all route definitions.
//
// This is the composition root: every dependency in the process — the
// database, the token and password services, the GitHub provider, the
// link builder, the signing coordinator — is constructed and wired here,
// then handed down the chain. Handlers see services, services see
// repository interfaces, and nothing below this package knows how its
// collaborators were built.
package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"

	"github.com/sakif/identity-hub/internal/auth"
	"github.com/sakif/identity-hub/internal/handler"
	"github.com/sakif/identity-hub/internal/linking"
	"github.com/sakif/identity-hub/internal/middleware"
	"github.com/sakif/identity-hub/internal/nostr"
	sqliteRepo "github.com/sakif/identity-hub/internal/repository/sqlite"
	"github.com/sakif/identity-hub/internal/service"
)

// Config holds server configuration, loaded from the environment by main.
type Config struct {
	Port   int
	DBPath string

	// JWTSecret signs session tokens. Min 16 bytes.
	JWTSecret string

	// GitHub OAuth app credentials. The same callback URL serves both
	// login and account linking.
	GitHubClientID     string
	GitHubClientSecret string
	GitHubCallbackURL  string

	// NostrSignerURL points at a NIP-46-style signing bridge. Empty
	// means no signer is available; profile updates will report that
	// rather than fail at startup.
	NostrSignerURL string
}

// Server owns the router and the process-lifetime resources.
type Server struct {
	router *chi.Mux
	config Config
	logger *slog.Logger
	db     *sqliteRepo.DB // closed on shutdown
}

// New assembles the full dependency chain and the route table.
func New(cfg Config, logger *slog.Logger) (*Server, error) {
	db, err := sqliteRepo.New(cfg.DBPath)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	s := &Server{
		router: chi.NewRouter(),
		config: cfg,
		logger: logger,
		db:     db,
	}

	if err := s.setupRoutes(); err != nil {
		db.Close()
		return nil, fmt.Errorf("setting up routes: %w", err)
	}

	return s, nil
}

// setupRoutes configures all middleware and route handlers.
//
// ROUTE STRUCTURE:
// POST   /auth/register         → email + password registration
// POST   /auth/login            → email + password login
// POST   /auth/anonymous        → throwaway account
// POST   /auth/nostr            → pubkey login
// POST   /auth/logout           → clear session cookie
// GET    /auth/github/login     → redirect to GitHub (login flow)
// GET    /auth/github/link      → redirect to GitHub (linking flow, auth required)
// GET    /auth/github/callback  → shared callback for both flows
// GET    /api/me                → account + linked identities
// GET    /api/profile           → aggregated profile
// PUT    /api/profile           → signed profile update
// PUT    /api/preferences       → merge preferences
// POST   /api/identities/nostr  → attach a nostr pubkey
//
// The callback route runs under OptionalAuth: a login callback arrives
// without a session, a linking callback needs one, and the handler
// decides which flow it is from the state parameter.
func (s *Server) setupRoutes() error {
	s.router.Use(chimiddleware.RequestID)
	s.router.Use(chimiddleware.RealIP)
	s.router.Use(chimiddleware.Recoverer)
	s.router.Use(middleware.Logger(s.logger))

	tokens, err := auth.NewTokenService(s.config.JWTSecret)
	if err != nil {
		return fmt.Errorf("creating token service: %w", err)
	}
	passwords := auth.NewPasswordService()

	github := auth.NewGitHubProvider(
		s.config.GitHubClientID,
		s.config.GitHubClientSecret,
		s.config.GitHubCallbackURL,
	)
	builder := linking.NewBuilder(linking.ProviderConfig{
		ClientID:    s.config.GitHubClientID,
		CallbackURL: s.config.GitHubCallbackURL,
	})

	// The signer capability is optional at startup. A nil capability is
	// reported per-request by the coordinator, so the rest of the app
	// works without a signing bridge.
	var signer nostr.Capability
	if s.config.NostrSignerURL != "" {
		signer = nostr.NewHTTPSigner(s.config.NostrSignerURL)
		s.logger.Info("nostr signer configured", slog.String("url", s.config.NostrSignerURL))
	} else {
		s.logger.Warn("no nostr signer configured, profile updates will be unavailable")
	}

	authSvc := service.NewAuthService(s.db, s.db, tokens, passwords, s.logger)
	identitySvc := service.NewIdentityService(s.db, s.db, builder, nostr.NewCoordinator(s.logger), signer, s.logger)

	authHandler := handler.NewAuthHandler(github, authSvc, identitySvc, s.logger)
	profileHandler := handler.NewProfileHandler(identitySvc, s.logger)

	s.router.Route("/auth", func(r chi.Router) {
		r.Post("/register", authHandler.HandleRegister)
		r.Post("/login", authHandler.HandleLogin)
		r.Post("/anonymous", authHandler.HandleAnonymous)
		r.Post("/nostr", authHandler.HandleNostrLogin)
		r.Post("/logout", authHandler.HandleLogout)

		r.Get("/github/login", authHandler.HandleGitHubLogin)
		r.With(auth.OptionalAuth(tokens)).Get("/github/callback", authHandler.HandleGitHubCallback)
		r.With(auth.RequireAuth(tokens)).Get("/github/link", authHandler.HandleGitHubLink)
	})

	s.router.Route("/api", func(r chi.Router) {
		r.Use(auth.RequireAuth(tokens))

		r.Get("/me", authHandler.HandleMe)
		r.Get("/profile", profileHandler.HandleGetProfile)
		r.Put("/profile", profileHandler.HandleUpdateProfile)
		r.Put("/preferences", profileHandler.HandleUpdatePreferences)
		r.Post("/identities/nostr", profileHandler.HandleLinkNostr)
	})

	return nil
}

// Start runs the HTTP server until a shutdown signal arrives.
//
// GRACEFUL SHUTDOWN:
// 1. Stop accepting new connections
// 2. Wait for in-flight requests to finish (30s bound)
// 3. Close the database (flushes WAL, releases the file lock)
func (s *Server) Start() error {
	defer s.db.Close()

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", s.config.Port),
		Handler:      s.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	serverErrors := make(chan error, 1)

	go func() {
		s.logger.Info("server starting",
			slog.Int("port", s.config.Port),
			slog.String("database", s.config.DBPath),
		)
		serverErrors <- srv.ListenAndServe()
	}()

	select {
	case err := <-serverErrors:
		if err != http.ErrServerClosed {
			return fmt.Errorf("server error: %w", err)
		}

	case sig := <-quit:
		s.logger.Info("shutdown signal received", slog.String("signal", sig.String()))

		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		if err := srv.Shutdown(ctx); err != nil {
			return fmt.Errorf("graceful shutdown failed: %w", err)
		}
		s.logger.Info("server stopped gracefully")
	}

	return nil
}
