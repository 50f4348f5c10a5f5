package middleware

import (
	"context"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/bcnelson/checkmk-host-manager/internal/auth"
	"github.com/bcnelson/checkmk-host-manager/internal/domain"
	"github.com/bcnelson/checkmk-host-manager/internal/storage"
)

type contextKey string

const (
	APIKeyContextKey    contextKey = "api_key"
	PrincipalContextKey contextKey = "principal"
)

// Auth creates authentication middleware. Callers authenticate with an API
// key in the Authorization header or, when sessions is not nil, with a login
// session cookie. API key callers act as an admin service principal.
func Auth(store storage.Storage, bootstrapKey string, sessions *auth.SessionManager, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()

			authHeader := r.Header.Get("Authorization")
			if authHeader == "" {
				if sessions != nil {
					if s, err := sessions.Get(r); err == nil {
						ctx = context.WithValue(ctx, PrincipalContextKey, s.Principal())
						next.ServeHTTP(w, r.WithContext(ctx))
						return
					}
				}
				writeError(w, http.StatusUnauthorized, "missing authorization header")
				return
			}

			apiKey, ok := strings.CutPrefix(authHeader, "Bearer ")
			if !ok {
				writeError(w, http.StatusUnauthorized, "invalid authorization header format")
				return
			}
			if apiKey == "" {
				writeError(w, http.StatusUnauthorized, "empty API key")
				return
			}

			// Check if we have any API keys in the database
			keyCount, err := store.CountAPIKeys(ctx)
			if err != nil {
				logger.Error("counting api keys failed", "error", err)
				writeError(w, http.StatusInternalServerError, "internal server error")
				return
			}

			// If no keys exist and bootstrap key is set, allow bootstrap key
			if keyCount == 0 && bootstrapKey != "" {
				if subtle.ConstantTimeCompare([]byte(apiKey), []byte(bootstrapKey)) == 1 {
					key := &domain.APIKey{ID: "bootstrap", Name: "Bootstrap Key"}
					next.ServeHTTP(w, r.WithContext(withAPIKey(ctx, key)))
					return
				}
			}

			// Hash the provided key and look it up
			storedKey, err := store.GetAPIKeyByHash(ctx, HashAPIKey(apiKey))
			if err != nil {
				if errors.Is(err, domain.ErrNotFound) {
					writeError(w, http.StatusUnauthorized, "invalid API key")
					return
				}
				logger.Error("api key lookup failed", "error", err)
				writeError(w, http.StatusInternalServerError, "internal server error")
				return
			}

			// Update last used timestamp (fire and forget)
			go func() {
				if err := store.UpdateAPIKeyLastUsed(context.Background(), storedKey.ID); err != nil {
					logger.Warn("updating api key usage failed", "key", storedKey.ID, "error", err)
				}
			}()

			next.ServeHTTP(w, r.WithContext(withAPIKey(ctx, storedKey)))
		})
	}
}

func withAPIKey(ctx context.Context, key *domain.APIKey) context.Context {
	ctx = context.WithValue(ctx, APIKeyContextKey, key)
	return context.WithValue(ctx, PrincipalContextKey, &domain.ServicePrincipal{Name: key.Name})
}

// RequireRole rejects principals holding none of roles.
func RequireRole(roles ...domain.Role) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			p := GetPrincipal(r.Context())
			if p == nil {
				writeError(w, http.StatusUnauthorized, "unauthorized")
				return
			}
			for _, role := range roles {
				if domain.HasRole(p, role) {
					next.ServeHTTP(w, r)
					return
				}
			}
			writeError(w, http.StatusForbidden, "forbidden")
		})
	}
}

// HashAPIKey creates a SHA-256 hash of the API key.
// We use SHA-256 for fast lookups since API keys are already high-entropy random strings.
func HashAPIKey(key string) string {
	hash := sha256.Sum256([]byte(key))
	return hex.EncodeToString(hash[:])
}

// GetAPIKeyFromContext retrieves the API key from the request context.
func GetAPIKeyFromContext(ctx context.Context) *domain.APIKey {
	key, _ := ctx.Value(APIKeyContextKey).(*domain.APIKey)
	return key
}

// GetPrincipal retrieves the authenticated principal from the request context.
func GetPrincipal(ctx context.Context) domain.Principal {
	p, _ := ctx.Value(PrincipalContextKey).(domain.Principal)
	return p
}

// WithPrincipal returns a copy of ctx carrying p.
func WithPrincipal(ctx context.Context, p domain.Principal) context.Context {
	return context.WithValue(ctx, PrincipalContextKey, p)
}
