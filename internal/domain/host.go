package domain

import "time"

// DateLayout is the format of host creation and expiration dates.
const DateLayout = "2006-01-02"

// Host is a monitored machine. The host name is its identity, both locally
// and in Checkmk.
type Host struct {
	ID             string `json:"id" db:"id"`
	Name           string `json:"host_name" db:"host_name"`
	IPAddress      string `json:"ip_address" db:"ip_address"`
	CreationDate   string `json:"creation_date" db:"creation_date"`
	ExpirationDate string `json:"expiration_date" db:"expiration_date"`
	OwnerEmail     string `json:"owner_email" db:"owner_email"`

	// Imported is only set when listing remote hosts.
	Imported bool `json:"imported,omitempty" db:"-"`
}

// Expiration parses the expiration date. ok is false when the host has none
// or it is malformed.
func (h *Host) Expiration() (t time.Time, ok bool) {
	if h.ExpirationDate == "" {
		return time.Time{}, false
	}
	t, err := time.Parse(DateLayout, h.ExpirationDate)
	if err != nil {
		return time.Time{}, false
	}
	return t, true
}

// CreateHostRequest is the request body for creating a host.
type CreateHostRequest struct {
	Name           string `json:"host_name" validate:"required,cmk_hostname"`
	IPAddress      string `json:"ip_address" validate:"required,ip"`
	ExpirationDate string `json:"expiration_date,omitempty" validate:"omitempty,datetime=2006-01-02"`
	OwnerEmail     string `json:"owner_email,omitempty" validate:"omitempty,email"`
}

// UpdateHostRequest is the request body for updating a host.
// The host name and creation date can not be changed.
type UpdateHostRequest struct {
	IPAddress      string `json:"ip_address" validate:"required,ip"`
	ExpirationDate string `json:"expiration_date,omitempty" validate:"omitempty,datetime=2006-01-02"`
	OwnerEmail     string `json:"owner_email,omitempty" validate:"omitempty,email"`
}

// ImportHostsRequest selects remote hosts to adopt into the local store.
type ImportHostsRequest struct {
	Names []string `json:"host_names" validate:"required,min=1,dive,required"`
}

// ImportHostsResponse reports the outcome of an import.
type ImportHostsResponse struct {
	Imported []string `json:"imported"`
	Skipped  []string `json:"skipped,omitempty"`
}

// LiveInfo is the current monitoring state of a host.
type LiveInfo struct {
	HostName     string `json:"host_name"`
	HostState    string `json:"host_state"`
	ServicesOK   string `json:"services_ok"`
	ServicesWarn string `json:"services_warn"`
	ServicesCrit string `json:"services_crit"`
}

// HostWithLiveInfo pairs a stored host with its monitoring state.
type HostWithLiveInfo struct {
	Host     *Host     `json:"host"`
	LiveInfo *LiveInfo `json:"live_info,omitempty"`
}

// ServiceInfo is one service row of a host.
type ServiceInfo struct {
	State        string `json:"state"`
	Description  string `json:"description"`
	PluginOutput string `json:"plugin_output"`
}

// MonitoringEvent is one row of the Checkmk notifications view.
type MonitoringEvent struct {
	Type     string `json:"type"`
	Message  string `json:"message"`
	Time     string `json:"time"`
	Severity string `json:"severity"`
}

// DiscoveryResponse is returned after discovery and activation completed.
type DiscoveryResponse struct {
	HostName string `json:"host_name"`
	Status   string `json:"status"`
}
