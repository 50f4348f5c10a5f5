package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/bcnelson/checkmk-host-manager/internal/agent"
	"github.com/bcnelson/checkmk-host-manager/internal/api"
	"github.com/bcnelson/checkmk-host-manager/internal/api/middleware"
	"github.com/bcnelson/checkmk-host-manager/internal/auth"
	"github.com/bcnelson/checkmk-host-manager/internal/checkmk"
	"github.com/bcnelson/checkmk-host-manager/internal/config"
	"github.com/bcnelson/checkmk-host-manager/internal/directory"
	"github.com/bcnelson/checkmk-host-manager/internal/notify"
	"github.com/bcnelson/checkmk-host-manager/internal/service"
	"github.com/bcnelson/checkmk-host-manager/internal/storage"
	"github.com/bcnelson/checkmk-host-manager/internal/storage/memory"
	"github.com/bcnelson/checkmk-host-manager/internal/storage/sql"
)

// Used for the endpoints when the file shim runs without a Checkmk URL.
const (
	shimBaseURL = "http://localhost/cmk/check_mk"
	shimSite    = "cmk"
)

func newLogger(level string) *slog.Logger {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(level)); err != nil {
		lvl = slog.LevelInfo
	}
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: lvl}))
	slog.SetDefault(logger)
	return logger
}

func loadConfig() (*config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("loading configuration: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

func openStore(cfg *config.Config, logger *slog.Logger) (storage.Storage, error) {
	if cfg.Database.Driver == "memory" {
		logger.Warn("using in-memory storage, data is lost on exit")
		return memory.New(), nil
	}

	// Create data directory if needed (for SQLite)
	if cfg.Database.Driver == "sqlite3" {
		if dir := filepath.Dir(cfg.Database.DSN); dir != "." {
			if err := os.MkdirAll(dir, 0755); err != nil {
				return nil, fmt.Errorf("creating data directory: %w", err)
			}
		}
	}

	store, err := sql.New(cfg.Database.Driver, cfg.Database.DSN)
	if err != nil {
		return nil, fmt.Errorf("initializing storage: %w", err)
	}
	return store, nil
}

// app holds the wired components shared by all commands.
type app struct {
	cfg           *config.Config
	logger        *slog.Logger
	store         storage.Storage
	endpoints     checkmk.Endpoints
	client        checkmk.Requester
	dir           directory.Directory
	hosts         *service.HostService
	live          *service.LiveInfoService
	notifications *service.NotificationService
}

func newApp(cfg *config.Config, logger *slog.Logger) (*app, error) {
	store, err := openStore(cfg, logger)
	if err != nil {
		return nil, err
	}

	a := &app{cfg: cfg, logger: logger, store: store}

	// Checkmk client (or file shim for testing)
	if cfg.UseFileShim() {
		logger.Info("using file shim for Checkmk API", "path", cfg.Checkmk.FileShim)
		shim, err := checkmk.NewFileShim(cfg.Checkmk.FileShim, logger)
		if err != nil {
			store.Close()
			return nil, fmt.Errorf("initializing Checkmk file shim: %w", err)
		}
		a.client = shim
		base, site := cfg.Checkmk.URL, cfg.Checkmk.Site
		if base == "" {
			base = shimBaseURL
		}
		if site == "" {
			site = shimSite
		}
		a.endpoints = checkmk.NewEndpoints(base, site)
	} else {
		a.client = checkmk.NewRestClient(checkmk.Options{
			Username: cfg.Checkmk.Username,
			Password: cfg.Checkmk.Password,
			Timeout:  cfg.Checkmk.Timeout,
		})
		a.endpoints = checkmk.NewEndpoints(cfg.Checkmk.URL, cfg.Checkmk.Site)
	}

	if cfg.LDAP.Enabled() {
		a.dir = directory.NewLDAP(directory.LDAPConfig{
			URL:          cfg.LDAP.URL,
			BindDN:       cfg.LDAP.BindDN,
			BindPassword: cfg.LDAP.BindPassword,
			BaseDN:       cfg.LDAP.BaseDN,
			UserFilter:   cfg.LDAP.UserFilter,
			Roles: directory.RoleMapping{
				AdminGroup:          cfg.LDAP.AdminGroup,
				DepartmentHeadGroup: cfg.LDAP.DepartmentHeadGroup,
				TeamLeaderGroup:     cfg.LDAP.TeamLeaderGroup,
			},
		}, logger)
	} else {
		logger.Warn("no directory configured, department and team access is disabled")
		a.dir = directory.NewStatic()
	}

	var notifier notify.Notifier = notify.Nop{}
	if cfg.Notify.WebhookURL != "" {
		notifier = notify.NewWebhook(cfg.Notify.WebhookURL, nil)
	}

	poller := service.NewDiscoveryPoller(a.client, a.endpoints, cfg.Discovery.PollAttempts, cfg.Discovery.PollInterval, nil, logger)
	a.hosts = service.NewHostService(store, a.client, a.endpoints, logger, service.WithPoller(poller))
	a.live = service.NewLiveInfoService(a.client, a.endpoints, logger)
	a.notifications = service.NewNotificationService(store, store, a.live, notifier, cfg.Notify.ExpiryWarningDays, logger)
	return a, nil
}

func (a *app) router(ctx context.Context) (http.Handler, error) {
	deps := api.Deps{
		Store:         a.store,
		Hosts:         a.hosts,
		Access:        service.NewAccessFilter(a.store, a.dir, a.logger),
		Live:          a.live,
		Imports:       service.NewImportService(a.store, a.client, a.endpoints, a.logger),
		Notifications: a.notifications,
		Installer: agent.NewInstaller(a.endpoints, agent.Options{
			Port:           a.cfg.Agent.SSHPort,
			Timeout:        a.cfg.Agent.SSHTimeout,
			KnownHostsFile: a.cfg.Agent.KnownHostsFile,
		}, a.logger),
		Directory:    a.dir,
		BootstrapKey: a.cfg.Auth.BootstrapAPIKey,
		RateLimiter:  middleware.NewRateLimiter(a.cfg.Server.RateLimit, a.cfg.Server.RateBurst),
		Logger:       a.logger,
	}

	if a.cfg.OIDC.Enabled {
		oc := &a.cfg.OIDC
		key, err := oc.GetSessionSecretBytes()
		if err != nil {
			return nil, err
		}
		provider, err := auth.NewOIDCProvider(ctx, oc.IssuerURL, oc.ClientID, oc.ClientSecret, oc.RedirectURL,
			oc.GetScopes(), oc.GetAllowedDomains())
		if err != nil {
			return nil, err
		}
		states, err := auth.NewStateStore(key, oc.SecureCookies)
		if err != nil {
			return nil, err
		}
		sessions, err := auth.NewSessionManager(key, oc.SessionDuration, oc.SecureCookies)
		if err != nil {
			return nil, err
		}
		deps.Login = &api.LoginDeps{Provider: provider, States: states, Sessions: sessions}
		a.logger.Info("oidc login enabled", "issuer", oc.IssuerURL)
	}

	return api.NewRouter(deps), nil
}

func runServe(ctx context.Context, logLevel string) error {
	logger := newLogger(logLevel)
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := newApp(cfg, logger)
	if err != nil {
		return err
	}
	defer a.store.Close()

	router, err := a.router(ctx)
	if err != nil {
		return err
	}

	if cfg.Notify.Enabled {
		go a.notifications.Run(ctx, cfg.Notify.Interval)
	}

	server := &http.Server{
		Addr:         cfg.Server.Addr(),
		Handler:      router,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 120 * time.Second, // discovery waits up to attempts * interval
		IdleTimeout:  120 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("starting host manager", "addr", cfg.Server.Addr())
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("server failed: %w", err)
	case <-ctx.Done():
	}

	logger.Info("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server forced to shutdown: %w", err)
	}
	logger.Info("server stopped")
	return nil
}

func runMigrate(logLevel string) error {
	logger := newLogger(logLevel)
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("loading configuration: %w", err)
	}

	store, err := openStore(cfg, logger)
	if err != nil {
		return err
	}
	defer store.Close()

	if s, ok := store.(*sql.Store); ok {
		version, err := s.SchemaVersion()
		if err != nil {
			return fmt.Errorf("reading schema version: %w", err)
		}
		logger.Info("migrations applied", "driver", cfg.Database.Driver, "version", version)
	}
	return nil
}

func runNotifyOnce(ctx context.Context, logLevel string) error {
	logger := newLogger(logLevel)
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	a, err := newApp(cfg, logger)
	if err != nil {
		return err
	}
	defer a.store.Close()

	a.notifications.RunOnce(ctx)
	return nil
}
