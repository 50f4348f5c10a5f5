// Package handler implements the HTTP handlers of the API.
package handler

import (
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/google/uuid"

	"github.com/bcnelson/checkmk-host-manager/internal/api/middleware"
	"github.com/bcnelson/checkmk-host-manager/internal/domain"
	"github.com/bcnelson/checkmk-host-manager/internal/validation"
)

// respondJSON writes a JSON response.
func respondJSON(w http.ResponseWriter, status int, data any) {
	w.WriteHeader(status)
	if data != nil {
		json.NewEncoder(w).Encode(data)
	}
}

// respondError writes a JSON error response.
func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, &domain.APIError{
		Code:    status,
		Message: message,
	})
}

// handleError converts domain errors to HTTP errors.
func handleError(w http.ResponseWriter, err error) {
	var verrs validation.ValidationErrors
	var opErr *domain.HostOperationError

	switch {
	case errors.As(err, &verrs):
		respondValidationErrors(w, verrs)
	case errors.Is(err, domain.ErrDuplicateHost):
		respondError(w, http.StatusConflict, domain.ErrDuplicateHost.Error())
	case errors.Is(err, domain.ErrHostNotFound):
		respondError(w, http.StatusNotFound, domain.ErrHostNotFound.Error())
	case errors.Is(err, domain.ErrDiscoveryTimeout):
		respondError(w, http.StatusGatewayTimeout, domain.ErrDiscoveryTimeout.Error())
	case errors.As(err, &opErr):
		slog.Warn("host operation failed", "op", opErr.Op, "host", opErr.Host, "error", opErr.Err)
		respondError(w, http.StatusBadGateway, "checkmk request failed: "+opErr.Op)
	case errors.Is(err, domain.ErrNotFound):
		respondError(w, http.StatusNotFound, "not found")
	case errors.Is(err, domain.ErrAlreadyExists):
		respondError(w, http.StatusConflict, "already exists")
	case errors.Is(err, domain.ErrInvalidInput):
		respondError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, domain.ErrUnauthorized):
		respondError(w, http.StatusUnauthorized, "unauthorized")
	case errors.Is(err, domain.ErrForbidden):
		respondError(w, http.StatusForbidden, "forbidden")
	case errors.Is(err, domain.ErrPreconditionFailed):
		respondError(w, http.StatusPreconditionFailed, "precondition failed")
	default:
		slog.Error("request failed", "error", err)
		respondError(w, http.StatusInternalServerError, "internal server error")
	}
}

// decodeJSON decodes JSON from request body.
func decodeJSON(r *http.Request, v any) error {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return domain.ErrInvalidInput
	}
	return nil
}

// decodeAndValidate decodes the body into v and checks its validate tags.
func decodeAndValidate(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := decodeJSON(r, v); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return false
	}
	if err := validation.ValidateStruct(v); err != nil {
		handleError(w, err)
		return false
	}
	return true
}

// principal returns the authenticated caller or writes 401.
func principal(w http.ResponseWriter, r *http.Request) (domain.Principal, bool) {
	p := middleware.GetPrincipal(r.Context())
	if p == nil {
		respondError(w, http.StatusUnauthorized, "unauthorized")
		return nil, false
	}
	return p, true
}

// generateID generates a new UUID.
func generateID() string {
	return uuid.New().String()
}

// generateAPIKey generates a new random API key.
func generateAPIKey() (key string, hash string, prefix string, err error) {
	// Generate 32 random bytes for the key
	bytes := make([]byte, 32)
	if _, err := rand.Read(bytes); err != nil {
		return "", "", "", err
	}

	key = "chm_" + hex.EncodeToString(bytes)
	hash = middleware.HashAPIKey(key)
	prefix = key[:12] // "chm_" + first 8 chars of hex

	return key, hash, prefix, nil
}

// respondValidationErrors writes a JSON response for multiple validation errors.
func respondValidationErrors(w http.ResponseWriter, errs validation.ValidationErrors) {
	respondJSON(w, http.StatusBadRequest, map[string]any{
		"code":    http.StatusBadRequest,
		"message": errs.Error(),
		"errors":  errs,
	})
}
