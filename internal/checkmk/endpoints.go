package checkmk

import (
	"net/url"
	"strings"
)

const apiPrefix = "/api/1.0"

// Discovery modes of the service discovery start action.
const (
	DiscoveryModeRefresh = "refresh"
	DiscoveryModeFixAll  = "fix_all"
)

// Service state views of a single host.
const (
	ViewAllHosts      = "allhosts"
	ViewHostOK        = "host_ok"
	ViewHostWarn      = "host_warn"
	ViewHostCrit      = "host_crit"
	ViewNotifications = "notifications"
)

// Endpoints builds Checkmk URLs below a site base URL such as
// https://monitoring.example.com/prod/check_mk.
type Endpoints struct {
	base string
	site string
}

// NewEndpoints creates an URL builder for the given site.
func NewEndpoints(baseURL, site string) Endpoints {
	return Endpoints{base: strings.TrimRight(baseURL, "/"), site: site}
}

// Site returns the monitoring site changes are activated on.
func (e Endpoints) Site() string {
	return e.site
}

// Base returns the site base URL.
func (e Endpoints) Base() string {
	return e.base
}

// Host is the URL of a single host configuration object.
func (e Endpoints) Host(name string) string {
	return e.base + apiPrefix + "/objects/host_config/" + url.PathEscape(name)
}

// HostCollection is the URL used to list and create hosts.
func (e Endpoints) HostCollection() string {
	return e.base + apiPrefix + "/domain-types/host_config/collections/all"
}

// ActivateChanges is the URL of the activate-changes action.
func (e Endpoints) ActivateChanges() string {
	return e.base + apiPrefix + "/domain-types/activation_run/actions/activate-changes/invoke"
}

// DiscoveryStart is the URL that starts a service discovery run.
func (e Endpoints) DiscoveryStart() string {
	return e.base + apiPrefix + "/domain-types/service_discovery_run/actions/start/invoke"
}

// DiscoveryWait is the URL that reports whether discovery of host finished.
func (e Endpoints) DiscoveryWait(host string) string {
	return e.base + apiPrefix + "/objects/service_discovery_run/" + url.PathEscape(host) +
		"/actions/wait-for-completion/invoke"
}

// View is the JSON export URL of a global view.
func (e Endpoints) View(name string) string {
	q := url.Values{}
	q.Set("output_format", "json_export")
	q.Set("view_name", name)
	return e.base + "/view.py?" + q.Encode()
}

// HostView is the JSON export URL of a per-host view.
func (e Endpoints) HostView(host, name string) string {
	q := url.Values{}
	q.Set("host", host)
	q.Set("output_format", "json_export")
	q.Set("site", e.site)
	q.Set("view_name", name)
	return e.base + "/view.py?" + q.Encode()
}

// AgentURL is the download URL of an agent package.
func (e Endpoints) AgentURL(file string) string {
	return e.base + "/agents/" + file
}
