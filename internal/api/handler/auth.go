package handler

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/bcnelson/checkmk-host-manager/internal/auth"
	"github.com/bcnelson/checkmk-host-manager/internal/directory"
	"github.com/bcnelson/checkmk-host-manager/internal/domain"
	"github.com/bcnelson/checkmk-host-manager/internal/storage"
)

// LoginProvider is the identity provider side of the login flow.
type LoginProvider interface {
	AuthCodeURL(state, nonce string) string
	Exchange(ctx context.Context, code, nonce string) (*auth.Claims, error)
	ValidateClaims(claims *auth.Claims) error
}

// AuthHandler handles the OIDC login flow.
type AuthHandler struct {
	provider LoginProvider
	states   *auth.StateStore
	sessions *auth.SessionManager
	dir      directory.Directory
	store    storage.Storage
	logger   *slog.Logger
	now      func() time.Time
}

// NewAuthHandler creates a new AuthHandler.
func NewAuthHandler(provider LoginProvider, states *auth.StateStore, sessions *auth.SessionManager, dir directory.Directory, store storage.Storage, logger *slog.Logger) *AuthHandler {
	return &AuthHandler{
		provider: provider,
		states:   states,
		sessions: sessions,
		dir:      dir,
		store:    store,
		logger:   logger.With("component", "auth"),
		now:      time.Now,
	}
}

// Login starts the login flow and redirects to the identity provider.
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	stateData, err := h.states.Generate(w, safeRedirect(r.URL.Query().Get("redirect")))
	if err != nil {
		h.logger.Error("generating oidc state failed", "error", err)
		respondError(w, http.StatusInternalServerError, "failed to initiate login")
		return
	}

	http.Redirect(w, r, h.provider.AuthCodeURL(stateData.State, stateData.Nonce), http.StatusSeeOther)
}

// Callback completes the login flow and creates the session.
func (h *AuthHandler) Callback(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	q := r.URL.Query()

	if errParam := q.Get("error"); errParam != "" {
		desc := q.Get("error_description")
		if desc == "" {
			desc = errParam
		}
		h.logger.Warn("identity provider returned error", "error", errParam, "description", desc)
		respondError(w, http.StatusUnauthorized, desc)
		return
	}

	code := q.Get("code")
	if code == "" {
		respondError(w, http.StatusBadRequest, "no authorization code received")
		return
	}

	stateData, err := h.states.Validate(r, q.Get("state"))
	if err != nil {
		h.logger.Warn("oidc state validation failed", "error", err)
		respondError(w, http.StatusBadRequest, "invalid state parameter")
		return
	}
	h.states.Clear(w)

	claims, err := h.provider.Exchange(ctx, code, stateData.Nonce)
	if err != nil {
		h.logger.Error("oidc token exchange failed", "error", err)
		respondError(w, http.StatusUnauthorized, "failed to complete authentication")
		return
	}
	if err := h.provider.ValidateClaims(claims); err != nil {
		h.logger.Warn("oidc claims rejected", "email", claims.Email, "error", err)
		respondError(w, http.StatusForbidden, err.Error())
		return
	}

	user, err := h.resolveUser(ctx, claims)
	if err != nil {
		h.logger.Error("resolving user failed", "email", claims.Email, "error", err)
		respondError(w, http.StatusInternalServerError, "failed to resolve user")
		return
	}

	p := user.Principal()
	session := &auth.Session{
		Subject:    claims.Subject,
		Email:      user.Email,
		Name:       claims.Name,
		Roles:      p.Roles(),
		Department: user.Department,
		Team:       user.Team,
	}
	if err := h.sessions.Create(w, session); err != nil {
		h.logger.Error("creating session failed", "error", err)
		respondError(w, http.StatusInternalServerError, "failed to create session")
		return
	}
	h.logger.Info("user logged in", "email", user.Email, "roles", p.Roles())

	redirectTo := stateData.RedirectTo
	if redirectTo == "" {
		redirectTo = "/"
	}
	http.Redirect(w, r, redirectTo, http.StatusSeeOther)
}

// Logout clears the session.
func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	h.sessions.Clear(w)
	w.WriteHeader(http.StatusNoContent)
}

// resolveUser enriches the login with the directory entry and records it.
// Users missing from the directory log in with the plain user role.
func (h *AuthHandler) resolveUser(ctx context.Context, claims *auth.Claims) (*domain.User, error) {
	user, err := h.dir.FindUserByEmail(ctx, claims.Email)
	switch {
	case errors.Is(err, domain.ErrNotFound):
		user = &domain.User{
			Email:     claims.Email,
			FirstName: claims.GivenName,
			LastName:  claims.FamilyName,
			Roles:     []domain.Role{domain.RoleUser},
		}
	case err != nil:
		return nil, err
	}

	user.LastSeenAt = h.now().UTC()
	if err := h.store.SaveUser(ctx, user); err != nil {
		return nil, err
	}
	return user, nil
}

// safeRedirect only allows local paths.
func safeRedirect(target string) string {
	if !strings.HasPrefix(target, "/") || strings.HasPrefix(target, "//") || strings.HasPrefix(target, "/\\") {
		return ""
	}
	return target
}
