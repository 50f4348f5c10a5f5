package handler

import (
	"net/http"

	"github.com/bcnelson/checkmk-host-manager/internal/domain"
	"github.com/bcnelson/checkmk-host-manager/internal/service"
)

// ImportHandler handles adopting hosts that already exist in Checkmk.
type ImportHandler struct {
	imports *service.ImportService
}

// NewImportHandler creates a new ImportHandler.
func NewImportHandler(imports *service.ImportService) *ImportHandler {
	return &ImportHandler{imports: imports}
}

// List lists the hosts configured in Checkmk.
func (h *ImportHandler) List(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, h.imports.RemoteHosts(r.Context()))
}

// Import stores the selected Checkmk hosts locally.
func (h *ImportHandler) Import(w http.ResponseWriter, r *http.Request) {
	var req domain.ImportHostsRequest
	if !decodeAndValidate(w, r, &req) {
		return
	}

	resp, err := h.imports.ImportHosts(r.Context(), req.Names)
	if err != nil {
		handleError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, resp)
}
