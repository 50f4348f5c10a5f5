package api

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/bcnelson/checkmk-host-manager/internal/api/handler"
	"github.com/bcnelson/checkmk-host-manager/internal/api/middleware"
	"github.com/bcnelson/checkmk-host-manager/internal/auth"
	"github.com/bcnelson/checkmk-host-manager/internal/directory"
	"github.com/bcnelson/checkmk-host-manager/internal/domain"
	"github.com/bcnelson/checkmk-host-manager/internal/service"
	"github.com/bcnelson/checkmk-host-manager/internal/storage"
)

// Deps holds everything the router wires into handlers.
type Deps struct {
	Store         storage.Storage
	Hosts         *service.HostService
	Access        *service.AccessFilter
	Live          *service.LiveInfoService
	Imports       *service.ImportService
	Notifications *service.NotificationService
	Installer     handler.AgentInstaller
	Directory     directory.Directory
	BootstrapKey  string
	RateLimiter   *middleware.RateLimiter
	Logger        *slog.Logger

	// Login is nil when OIDC is disabled.
	Login *LoginDeps
}

// LoginDeps holds the OIDC login components.
type LoginDeps struct {
	Provider handler.LoginProvider
	States   *auth.StateStore
	Sessions *auth.SessionManager
}

// NewRouter creates a new HTTP router with all routes configured.
func NewRouter(d Deps) http.Handler {
	logger := d.Logger
	if logger == nil {
		logger = slog.Default()
	}

	r := chi.NewRouter()

	// Global middleware
	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(chimw.Recoverer)
	r.Use(middleware.Logging(logger))

	// Health check (no auth required)
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"status":"ok"}`))
	})

	var sessions *auth.SessionManager
	if d.Login != nil {
		sessions = d.Login.Sessions
		authHandler := handler.NewAuthHandler(d.Login.Provider, d.Login.States, d.Login.Sessions, d.Directory, d.Store, logger)
		r.Route("/auth", func(r chi.Router) {
			r.Get("/login", authHandler.Login)
			r.Get("/callback", authHandler.Callback)
			r.Post("/logout", authHandler.Logout)
		})
	}

	// API routes (auth required, JSON Content-Type)
	r.Route("/api/v1", func(r chi.Router) {
		r.Use(middleware.ContentType)
		if d.RateLimiter != nil {
			r.Use(d.RateLimiter.Middleware)
		}
		r.Use(middleware.Auth(d.Store, d.BootstrapKey, sessions, logger))

		hostHandler := handler.NewHostHandler(d.Hosts, d.Access, d.Live)
		importHandler := handler.NewImportHandler(d.Imports)
		notificationHandler := handler.NewNotificationHandler(d.Notifications)
		userHandler := handler.NewUserHandler(d.Directory)

		// Any authenticated principal
		r.Get("/hosts", hostHandler.List)
		r.Get("/hosts/{id}", hostHandler.Get)
		r.Get("/hosts/{id}/services", hostHandler.Services)
		r.Get("/users", userHandler.List)
		r.Get("/users/me", userHandler.Me)
		r.Get("/notifications", notificationHandler.List)
		r.Post("/notifications/{id}/read", notificationHandler.MarkRead)

		// Admin only
		r.Group(func(r chi.Router) {
			r.Use(middleware.RequireRole(domain.RoleAdmin))

			r.Post("/hosts", hostHandler.Create)
			r.Put("/hosts/{id}", hostHandler.Update)
			r.Delete("/hosts/{id}", hostHandler.Delete)
			r.Post("/hosts/{id}/discovery", hostHandler.Discover)
			r.Post("/activate", hostHandler.Activate)
			r.Get("/events", hostHandler.Events)

			r.Get("/import", importHandler.List)
			r.Post("/import", importHandler.Import)

			r.Post("/notifications", notificationHandler.Send)

			if d.Installer != nil {
				agentHandler := handler.NewAgentHandler(d.Installer)
				r.Post("/agent/install", agentHandler.Install)
			}

			// API Keys
			keyHandler := handler.NewAPIKeyHandler(d.Store)
			r.Post("/keys", keyHandler.Create)
			r.Get("/keys", keyHandler.List)
			r.Delete("/keys/{id}", keyHandler.Delete)
		})
	})

	return r
}
