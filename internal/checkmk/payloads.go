package checkmk

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/bcnelson/checkmk-host-manager/internal/domain"
)

// HostAttributes are the host_config attributes this application manages.
type HostAttributes struct {
	IPAddress string `json:"ipaddress"`
}

// CreateHostPayload is the body of a host creation request.
type CreateHostPayload struct {
	Folder     string         `json:"folder"`
	HostName   string         `json:"host_name"`
	Attributes HostAttributes `json:"attributes"`
}

// UpdateHostPayload is the body of a host update request.
type UpdateHostPayload struct {
	Attributes HostAttributes `json:"attributes"`
}

// ActivatePayload is the body of an activate-changes request.
type ActivatePayload struct {
	Redirect            bool     `json:"redirect"`
	Sites               []string `json:"sites"`
	ForceForeignChanges bool     `json:"force_foreign_changes"`
}

// DiscoveryPayload is the body of a service discovery start request.
type DiscoveryPayload struct {
	HostName string `json:"host_name"`
	Mode     string `json:"mode"`
}

// NewCreateHostPayload creates a host in the root folder.
func NewCreateHostPayload(name, ip string) CreateHostPayload {
	return CreateHostPayload{
		Folder:     "/",
		HostName:   name,
		Attributes: HostAttributes{IPAddress: ip},
	}
}

// NewUpdateHostPayload replaces the address of a host.
func NewUpdateHostPayload(ip string) UpdateHostPayload {
	return UpdateHostPayload{Attributes: HostAttributes{IPAddress: ip}}
}

// NewActivatePayload activates pending changes on site, including changes
// made by other users.
func NewActivatePayload(site string) ActivatePayload {
	return ActivatePayload{
		Redirect:            false,
		Sites:               []string{site},
		ForceForeignChanges: true,
	}
}

// NewDiscoveryPayload starts discovery of host in the given mode.
func NewDiscoveryPayload(host, mode string) DiscoveryPayload {
	return DiscoveryPayload{HostName: host, Mode: mode}
}

type hostCollection struct {
	Value []hostObject `json:"value"`
}

type hostObject struct {
	ID         string `json:"id"`
	Title      string `json:"title"`
	Extensions struct {
		Attributes struct {
			IPAddress string `json:"ipaddress"`
			MetaData  struct {
				CreatedAt string `json:"created_at"`
			} `json:"meta_data"`
		} `json:"attributes"`
	} `json:"extensions"`
}

// ParseHostCollection decodes the host_config collection into hosts. The
// creation timestamp is truncated to a date.
func ParseHostCollection(body []byte) ([]*domain.Host, error) {
	var coll hostCollection
	if err := json.Unmarshal(body, &coll); err != nil {
		return nil, fmt.Errorf("decoding host collection: %w", err)
	}

	hosts := make([]*domain.Host, 0, len(coll.Value))
	for _, obj := range coll.Value {
		name := obj.ID
		if name == "" {
			name = obj.Title
		}
		if name == "" {
			continue
		}
		hosts = append(hosts, &domain.Host{
			ID:           name,
			Name:         name,
			IPAddress:    obj.Extensions.Attributes.IPAddress,
			CreationDate: formatDate(obj.Extensions.Attributes.MetaData.CreatedAt),
		})
	}
	return hosts, nil
}

func formatDate(ts string) string {
	if ts == "" {
		return ""
	}
	t, err := time.Parse(time.RFC3339Nano, ts)
	if err != nil {
		if len(ts) >= len(domain.DateLayout) {
			return ts[:len(domain.DateLayout)]
		}
		return ts
	}
	return t.Format(domain.DateLayout)
}
