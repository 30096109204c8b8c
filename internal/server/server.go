// Package server sets up the HTTP server, router, and all route definitions.
//
// SERVER ARCHITECTURE:
// This package is the "wiring" layer — it connects handlers, middleware,
// and routes. It is also the composition root: the entire dependency
// chain (DB → repositories → services → handlers) is assembled in New,
// rather than scattered across the codebase.
//
// WHY SEPARATE FROM main.go?
// Keeping server setup in its own package makes it:
// - Testable (tests can create a server without running main)
// - Reusable (multiple entry points could share the same wiring)
// - Clean (main.go stays minimal — just read config and start)
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

	"github.com/amity-app/amity-server/internal/auth"
	"github.com/amity-app/amity-server/internal/handler"
	"github.com/amity-app/amity-server/internal/middleware"
	sqliteRepo "github.com/amity-app/amity-server/internal/repository/sqlite"
	"github.com/amity-app/amity-server/internal/service"
)

// Config holds server configuration. A struct (instead of individual
// parameters) means new options never change function signatures, and
// config can be loaded from env vars in one place (main.go).
type Config struct {
	Port   int
	DBPath string

	// JWTSecret signs session tokens. Required.
	JWTSecret string

	// Google OAuth credentials. Optional — when ClientID is empty the
	// OAuth routes are not registered and sign-in is email-code only.
	GoogleClientID     string
	GoogleClientSecret string
	GoogleCallbackURL  string
}

// sweepInterval is how often expired invite codes and login codes are
// purged. Expiry is enforced at read time regardless — the sweep only
// reclaims space, so the interval is a housekeeping choice, not a
// correctness one.
const sweepInterval = time.Hour

// Server represents the HTTP server and all its dependencies.
//
// The Server owns the database connection and closes it on shutdown to
// flush pending writes and release the file lock. It also owns the
// background sweeper goroutine, stopped via sweepCancel during shutdown.
type Server struct {
	router *chi.Mux
	config Config
	logger *slog.Logger
	db     *sqliteRepo.DB
	vault  *service.VaultService
}

// New creates a Server with the given config and wires the full
// dependency chain.
//
// Each layer only receives what it needs: services get repository
// interfaces (not the concrete sqlite.DB), handlers get services (not
// repositories). The handler never touches the database directly and the
// service never touches HTTP.
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
		db.Close() // clean up the DB if route setup fails
		return nil, fmt.Errorf("setting up routes: %w", err)
	}

	return s, nil
}

// setupRoutes configures all middleware and route handlers.
//
// ROUTE STRUCTURE:
//
//	GET    /auth/login                          → redirect to Google
//	GET    /auth/callback                       → complete OAuth, set session
//	POST   /auth/otp/request                    → email a login code
//	POST   /auth/otp/verify                     → verify code, set session
//	POST   /auth/logout                         → clear session
//	GET    /api/me                              → current user
//	GET    /api/users/search                    → find users by username
//	GET    /api/users/username-check            → availability probe
//	GET    /api/users/{id}                      → public profile
//	GET    /api/conversations                   → list with unread counts
//	POST   /api/conversations                   → create
//	GET    /api/conversations/{id}              → fetch one
//	GET    /api/conversations/{id}/messages     → paginated history
//	POST   /api/conversations/{id}/messages     → post a message
//	POST   /api/conversations/{id}/read         → mark all read
//	PUT    /api/messages/{id}/pin               → pin/unpin
//	POST   /api/messages/{id}/reactions         → react
//	GET    /api/messages/{id}/reactions         → list reactions
//	POST   /api/invites                         → issue a code
//	GET    /api/invites/{code}                  → inspect a live code
//	POST   /api/invites/{code}/redeem           → consume one use
//	GET    /api/notifications                   → feed, newest first
//	POST   /api/notifications/{id}/read         → mark one read
//	POST   /api/meetings                        → schedule a call
//	GET    /api/meetings                        → caller's calls
//	GET    /api/meetings/{id}                   → fetch one
//	GET    /api/meetings/room/{roomId}          → fetch by media room
//	PUT    /api/meetings/{id}/status            → lifecycle transition
//	POST   /api/meetings/{id}/participants      → join
//	DELETE /api/meetings/{id}/participants      → leave
//	PUT    /api/meetings/{id}/analytics         → record call stats
//	POST   /api/meetings/{id}/recordings        → append a recording URL
//
// MIDDLEWARE ORDER MATTERS — middleware executes in the order added:
// RequestID → RealIP → Recoverer → Logger, then RequireAuth on the /api
// subtree only. Auth routes stay public (they're how you GET a session).
func (s *Server) setupRoutes() error {
	s.router.Use(chimiddleware.RequestID) // adds X-Request-ID header
	s.router.Use(chimiddleware.RealIP)    // extracts real IP from X-Forwarded-For
	s.router.Use(chimiddleware.Recoverer) // recovers from panics, returns 500
	s.router.Use(middleware.Logger(s.logger))

	tokens, err := auth.NewTokenService(s.config.JWTSecret)
	if err != nil {
		return fmt.Errorf("creating token service: %w", err)
	}

	// === SERVICES ===
	// The sqlite accessors (s.db.Users() etc.) satisfy the repository
	// interfaces each service declares.
	identitySvc := service.NewIdentityService(s.db.Users(), s.logger)
	vaultSvc := service.NewVaultService(s.db.Invites(), s.db.OTPs(), s.db.Notifications(), auth.NewCodeHasher(), s.logger)
	convSvc := service.NewConversationService(s.db.Conversations(), s.db.Messages(), s.db.Users(), s.logger)
	notifySvc := service.NewNotificationService(s.db.Notifications(), s.logger)
	meetingSvc := service.NewMeetingService(s.db.Meetings(), s.db.Notifications(), s.logger)

	// The server keeps a handle on the vault for the background sweep.
	s.vault = vaultSvc

	// === HANDLERS ===
	var google *auth.Provider
	if s.config.GoogleClientID != "" {
		google = auth.NewProvider(s.config.GoogleClientID, s.config.GoogleClientSecret, s.config.GoogleCallbackURL)
	}

	authHandler := handler.NewAuthHandler(google, tokens, identitySvc, vaultSvc,
		&handler.LogCodeSender{Logger: s.logger}, s.logger)
	userHandler := handler.NewUserHandler(identitySvc, s.logger)
	convHandler := handler.NewConversationHandler(convSvc, s.logger)
	inviteHandler := handler.NewInviteHandler(vaultSvc, s.logger)
	notifyHandler := handler.NewNotificationHandler(notifySvc, s.logger)
	meetingHandler := handler.NewMeetingHandler(meetingSvc, s.logger)

	// === AUTH ROUTES (public) ===
	if google != nil {
		s.router.Get("/auth/login", authHandler.HandleGoogleLogin)
		s.router.Get("/auth/callback", authHandler.HandleGoogleCallback)
	} else {
		s.logger.Warn("Google OAuth not configured — sign-in is email-code only")
	}
	s.router.Post("/auth/otp/request", authHandler.HandleOTPRequest)
	s.router.Post("/auth/otp/verify", authHandler.HandleOTPVerify)
	s.router.Post("/auth/logout", authHandler.HandleLogout)

	// === API ROUTES (session required) ===
	s.router.Route("/api", func(r chi.Router) {
		r.Use(auth.RequireAuth(tokens))

		r.Get("/me", authHandler.HandleMe)

		r.Get("/users/search", userHandler.HandleSearch)
		r.Get("/users/username-check", userHandler.HandleUsernameCheck)
		r.Get("/users/{id}", userHandler.HandleGet)

		r.Get("/conversations", convHandler.HandleList)
		r.Post("/conversations", convHandler.HandleCreate)
		r.Get("/conversations/{id}", convHandler.HandleGet)
		r.Get("/conversations/{id}/messages", convHandler.HandleListMessages)
		r.Post("/conversations/{id}/messages", convHandler.HandlePostMessage)
		r.Post("/conversations/{id}/read", convHandler.HandleMarkRead)

		r.Put("/messages/{id}/pin", convHandler.HandlePin)
		r.Post("/messages/{id}/reactions", convHandler.HandleReact)
		r.Get("/messages/{id}/reactions", convHandler.HandleListReactions)

		r.Post("/invites", inviteHandler.HandleIssue)
		r.Get("/invites/{code}", inviteHandler.HandleGet)
		r.Post("/invites/{code}/redeem", inviteHandler.HandleRedeem)

		r.Get("/notifications", notifyHandler.HandleList)
		r.Post("/notifications/{id}/read", notifyHandler.HandleMarkRead)

		r.Post("/meetings", meetingHandler.HandleCreate)
		r.Get("/meetings", meetingHandler.HandleList)
		r.Get("/meetings/room/{roomId}", meetingHandler.HandleGetByRoom)
		r.Get("/meetings/{id}", meetingHandler.HandleGet)
		r.Put("/meetings/{id}/status", meetingHandler.HandleSetStatus)
		r.Post("/meetings/{id}/participants", meetingHandler.HandleJoin)
		r.Delete("/meetings/{id}/participants", meetingHandler.HandleLeave)
		r.Put("/meetings/{id}/analytics", meetingHandler.HandleAnalytics)
		r.Post("/meetings/{id}/recordings", meetingHandler.HandleAddRecording)
	})

	return nil
}

// runSweeper purges expired invite and login codes every sweepInterval
// until ctx is cancelled. Failures are logged and retried on the next
// tick — a missed sweep costs disk space, nothing else.
func (s *Server) runSweeper(ctx context.Context) {
	ticker := time.NewTicker(sweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := s.vault.PurgeExpired(ctx)
			if err != nil {
				s.logger.Error("token sweep failed", slog.String("error", err.Error()))
				continue
			}
			if n > 0 {
				s.logger.Info("token sweep completed", slog.Int("purged", n))
			}
		}
	}
}

// Start starts the HTTP server and handles graceful shutdown.
//
// GRACEFUL SHUTDOWN:
//  1. Stop accepting new HTTP connections
//  2. Wait for in-flight requests to finish (30s timeout)
//  3. Stop the background sweeper
//  4. Close the database connection (flushes WAL, releases the file lock)
func (s *Server) Start() error {
	defer s.db.Close()

	// The sweeper lives exactly as long as Start does.
	sweepCtx, stopSweep := context.WithCancel(context.Background())
	defer stopSweep()
	go s.runSweeper(sweepCtx)

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

// Router exposes the configured chi router for tests that want to drive
// the full middleware-and-handler stack with httptest.
func (s *Server) Router() http.Handler {
	return s.router
}
