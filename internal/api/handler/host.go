package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/bcnelson/checkmk-host-manager/internal/domain"
	"github.com/bcnelson/checkmk-host-manager/internal/service"
)

// HostHandler handles host endpoints.
type HostHandler struct {
	hosts  *service.HostService
	access *service.AccessFilter
	live   *service.LiveInfoService
}

// NewHostHandler creates a new HostHandler.
func NewHostHandler(hosts *service.HostService, access *service.AccessFilter, live *service.LiveInfoService) *HostHandler {
	return &HostHandler{hosts: hosts, access: access, live: live}
}

// List lists the hosts visible to the caller. With ?live=true every host
// carries its current monitoring state.
func (h *HostHandler) List(w http.ResponseWriter, r *http.Request) {
	p, ok := principal(w, r)
	if !ok {
		return
	}

	hosts, err := h.access.VisibleHosts(r.Context(), p)
	if err != nil {
		handleError(w, err)
		return
	}

	if r.URL.Query().Get("live") == "true" {
		respondJSON(w, http.StatusOK, h.live.Attach(r.Context(), hosts))
		return
	}
	respondJSON(w, http.StatusOK, hosts)
}

// Get gets a host by name.
func (h *HostHandler) Get(w http.ResponseWriter, r *http.Request) {
	host, ok := h.visibleHost(w, r)
	if !ok {
		return
	}
	respondJSON(w, http.StatusOK, host)
}

// Create adds a host to Checkmk and the local store.
func (h *HostHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req domain.CreateHostRequest
	if !decodeAndValidate(w, r, &req) {
		return
	}

	host, err := h.hosts.AddHost(r.Context(), &req)
	if err != nil {
		handleError(w, err)
		return
	}

	respondJSON(w, http.StatusCreated, host)
}

// Update changes the address, expiration or owner of a host.
func (h *HostHandler) Update(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "id")

	var req domain.UpdateHostRequest
	if !decodeAndValidate(w, r, &req) {
		return
	}

	host, err := h.hosts.UpdateHost(r.Context(), name, &req)
	if err != nil {
		handleError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, host)
}

// Delete removes a host from Checkmk and the local store.
func (h *HostHandler) Delete(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "id")

	if err := h.hosts.DeleteHost(r.Context(), name); err != nil {
		handleError(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// Discover runs a service discovery on the host and monitors every found
// service. The request blocks until discovery finished or timed out.
func (h *HostHandler) Discover(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "id")

	if err := h.hosts.TriggerServiceDiscoveryAndMonitor(r.Context(), name); err != nil {
		handleError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, &domain.DiscoveryResponse{HostName: name, Status: "completed"})
}

// Activate activates all pending changes on the site.
func (h *HostHandler) Activate(w http.ResponseWriter, r *http.Request) {
	if err := h.hosts.ActivateChanges(r.Context()); err != nil {
		handleError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, map[string]string{"status": "activated"})
}

// Services lists the services of a host in the state given by ?state=.
func (h *HostHandler) Services(w http.ResponseWriter, r *http.Request) {
	host, ok := h.visibleHost(w, r)
	if !ok {
		return
	}

	state := service.ServiceState(r.URL.Query().Get("state"))
	if state == "" {
		state = service.ServiceStateCrit
	}

	services, err := h.live.Services(r.Context(), host.Name, state)
	if err != nil {
		handleError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, services)
}

// Events lists recent monitoring notifications recorded by Checkmk.
func (h *HostHandler) Events(w http.ResponseWriter, r *http.Request) {
	events, err := h.live.Events(r.Context())
	if err != nil {
		handleError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, events)
}

func (h *HostHandler) visibleHost(w http.ResponseWriter, r *http.Request) (*domain.Host, bool) {
	p, ok := principal(w, r)
	if !ok {
		return nil, false
	}

	host, err := h.hosts.GetHost(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		handleError(w, err)
		return nil, false
	}
	if !h.access.CanView(r.Context(), p, host) {
		handleError(w, domain.ErrForbidden)
		return nil, false
	}
	return host, true
}
