package service

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/bcnelson/checkmk-host-manager/internal/checkmk"
	"github.com/bcnelson/checkmk-host-manager/internal/domain"
)

// ServiceState selects one of the per-host service views.
type ServiceState string

const (
	ServiceStateOK   ServiceState = "ok"
	ServiceStateWarn ServiceState = "warn"
	ServiceStateCrit ServiceState = "crit"
)

func (s ServiceState) view() (string, bool) {
	switch s {
	case ServiceStateOK:
		return checkmk.ViewHostOK, true
	case ServiceStateWarn:
		return checkmk.ViewHostWarn, true
	case ServiceStateCrit:
		return checkmk.ViewHostCrit, true
	}
	return "", false
}

// LiveInfoService reads current monitoring state from Checkmk views.
type LiveInfoService struct {
	client    checkmk.Requester
	endpoints checkmk.Endpoints
	logger    *slog.Logger
}

// NewLiveInfoService creates a LiveInfoService.
func NewLiveInfoService(client checkmk.Requester, endpoints checkmk.Endpoints, logger *slog.Logger) *LiveInfoService {
	return &LiveInfoService{
		client:    client,
		endpoints: endpoints,
		logger:    logger.With("component", "live-info"),
	}
}

// All returns the state of every monitored host.
func (s *LiveInfoService) All(ctx context.Context) ([]*domain.LiveInfo, error) {
	resp, err := s.client.Get(ctx, s.endpoints.View(checkmk.ViewAllHosts))
	if err != nil {
		return nil, fmt.Errorf("fetching host states: %w", err)
	}
	return checkmk.ParseLiveInfo(resp.Body)
}

// ForHost returns the state of one host, or domain.ErrNotFound when Checkmk
// does not report it.
func (s *LiveInfoService) ForHost(ctx context.Context, host string) (*domain.LiveInfo, error) {
	all, err := s.All(ctx)
	if err != nil {
		return nil, err
	}
	for _, info := range all {
		if strings.EqualFold(info.HostName, host) {
			return info, nil
		}
	}
	return nil, domain.ErrNotFound
}

// Services lists the services of host in the given state.
func (s *LiveInfoService) Services(ctx context.Context, host string, state ServiceState) ([]*domain.ServiceInfo, error) {
	view, ok := state.view()
	if !ok {
		return nil, fmt.Errorf("%w: unknown service state %q", domain.ErrInvalidInput, state)
	}
	resp, err := s.client.Get(ctx, s.endpoints.HostView(host, view))
	if err != nil {
		return nil, fmt.Errorf("fetching %s services of %s: %w", state, host, err)
	}
	return checkmk.ParseServices(resp.Body)
}

// Events returns recent monitoring notifications recorded by Checkmk.
func (s *LiveInfoService) Events(ctx context.Context) ([]*domain.MonitoringEvent, error) {
	resp, err := s.client.Get(ctx, s.endpoints.View(checkmk.ViewNotifications))
	if err != nil {
		return nil, fmt.Errorf("fetching monitoring events: %w", err)
	}
	return checkmk.ParseMonitoringEvents(resp.Body)
}

// Attach pairs hosts with their live state. Hosts Checkmk does not report
// get no live info. A failed fetch is logged and yields hosts without state.
func (s *LiveInfoService) Attach(ctx context.Context, hosts []*domain.Host) []*domain.HostWithLiveInfo {
	byName := map[string]*domain.LiveInfo{}
	infos, err := s.All(ctx)
	if err != nil {
		s.logger.Warn("live info unavailable", "error", err)
	}
	for _, info := range infos {
		byName[strings.ToLower(info.HostName)] = info
	}

	out := make([]*domain.HostWithLiveInfo, 0, len(hosts))
	for _, h := range hosts {
		out = append(out, &domain.HostWithLiveInfo{Host: h, LiveInfo: byName[strings.ToLower(h.Name)]})
	}
	return out
}
