package handler

import (
	"net/http"

	"github.com/bcnelson/checkmk-host-manager/internal/directory"
	"github.com/bcnelson/checkmk-host-manager/internal/domain"
)

// UserHandler handles user endpoints.
type UserHandler struct {
	dir directory.Directory
}

// NewUserHandler creates a new UserHandler.
func NewUserHandler(dir directory.Directory) *UserHandler {
	return &UserHandler{dir: dir}
}

// List lists the users of the directory, e.g. to pick a host owner.
func (h *UserHandler) List(w http.ResponseWriter, r *http.Request) {
	users, err := h.dir.ListUsers(r.Context())
	if err != nil {
		handleError(w, err)
		return
	}
	if users == nil {
		users = []*domain.User{}
	}

	respondJSON(w, http.StatusOK, users)
}

// Me describes the caller.
func (h *UserHandler) Me(w http.ResponseWriter, r *http.Request) {
	p, ok := principal(w, r)
	if !ok {
		return
	}

	respondJSON(w, http.StatusOK, map[string]any{
		"email":      p.Email(),
		"roles":      p.Roles(),
		"department": p.Department(),
		"team":       p.Team(),
	})
}
