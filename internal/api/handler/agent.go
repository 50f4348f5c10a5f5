package handler

import (
	"context"
	"net/http"

	"github.com/bcnelson/checkmk-host-manager/internal/domain"
)

// AgentInstaller installs the monitoring agent on a machine.
type AgentInstaller interface {
	Install(ctx context.Context, req *domain.InstallAgentRequest) (*domain.InstallAgentResponse, error)
}

// AgentHandler handles agent installation.
type AgentHandler struct {
	installer AgentInstaller
}

// NewAgentHandler creates a new AgentHandler.
func NewAgentHandler(installer AgentInstaller) *AgentHandler {
	return &AgentHandler{installer: installer}
}

// Install connects to the machine over SSH and installs the agent.
func (h *AgentHandler) Install(w http.ResponseWriter, r *http.Request) {
	var req domain.InstallAgentRequest
	if !decodeAndValidate(w, r, &req) {
		return
	}

	resp, err := h.installer.Install(r.Context(), &req)
	if err != nil {
		handleError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, resp)
}
