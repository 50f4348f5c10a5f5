package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/bcnelson/checkmk-host-manager/internal/checkmk"
	"github.com/bcnelson/checkmk-host-manager/internal/domain"
	"github.com/bcnelson/checkmk-host-manager/internal/storage"
)

// HostService keeps the local host store and Checkmk's host configuration in
// step. Every remote mutation is followed by an activation of changes on the
// configured site. There is no rollback across the two systems: when a local
// write fails after a successful remote call the two diverge.
type HostService struct {
	store     storage.HostStore
	client    checkmk.Requester
	endpoints checkmk.Endpoints
	poller    *DiscoveryPoller
	logger    *slog.Logger
	now       func() time.Time
}

// HostServiceOption customizes a HostService.
type HostServiceOption func(*HostService)

// WithClock sets the clock used for creation dates.
func WithClock(now func() time.Time) HostServiceOption {
	return func(s *HostService) { s.now = now }
}

// WithPoller replaces the discovery poller.
func WithPoller(p *DiscoveryPoller) HostServiceOption {
	return func(s *HostService) { s.poller = p }
}

// NewHostService creates a HostService. Discovery is awaited with 10 polls,
// 3 seconds apart, unless WithPoller is given.
func NewHostService(store storage.HostStore, client checkmk.Requester, endpoints checkmk.Endpoints, logger *slog.Logger, opts ...HostServiceOption) *HostService {
	logger = logger.With("component", "host-service")
	s := &HostService{
		store:     store,
		client:    client,
		endpoints: endpoints,
		logger:    logger,
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.poller == nil {
		s.poller = NewDiscoveryPoller(client, endpoints, 10, 3*time.Second, nil, logger)
	}
	return s
}

// ListHosts returns all stored hosts.
func (s *HostService) ListHosts(ctx context.Context) ([]*domain.Host, error) {
	return s.store.ListHosts(ctx)
}

// GetHost returns a stored host or domain.ErrHostNotFound.
func (s *HostService) GetHost(ctx context.Context, name string) (*domain.Host, error) {
	host, err := s.store.GetHost(ctx, name)
	if errors.Is(err, domain.ErrNotFound) {
		return nil, domain.ErrHostNotFound
	}
	return host, err
}

// AddHost creates the host in Checkmk, activates the change and stores it
// with today's date as creation date.
//
// The name must be unused both locally and in Checkmk. The local store is
// checked first; the remote check treats any failed GET as "absent".
func (s *HostService) AddHost(ctx context.Context, req *domain.CreateHostRequest) (*domain.Host, error) {
	exists, err := s.store.HostExists(ctx, req.Name)
	if err != nil {
		return nil, fmt.Errorf("checking local host: %w", err)
	}
	if exists || s.existsRemotely(ctx, req.Name) {
		return nil, domain.ErrDuplicateHost
	}

	payload := checkmk.NewCreateHostPayload(req.Name, req.IPAddress)
	if _, err := s.client.Post(ctx, s.endpoints.HostCollection(), payload); err != nil {
		return nil, domain.NewHostOperationError("create", req.Name, err)
	}
	if err := s.activate(ctx, req.Name); err != nil {
		return nil, err
	}

	host := &domain.Host{
		ID:             req.Name,
		Name:           req.Name,
		IPAddress:      req.IPAddress,
		CreationDate:   s.now().Format(domain.DateLayout),
		ExpirationDate: req.ExpirationDate,
		OwnerEmail:     req.OwnerEmail,
	}
	if err := s.store.SaveHost(ctx, host); err != nil {
		return nil, fmt.Errorf("saving host: %w", err)
	}

	s.logger.Info("host added", "host", host.Name, "ip", host.IPAddress)
	return host, nil
}

func (s *HostService) existsRemotely(ctx context.Context, name string) bool {
	_, err := s.client.Get(ctx, s.endpoints.Host(name))
	return err == nil
}

// UpdateHost changes the address of an existing host in Checkmk, guarded by
// the host's current ETag, and stores the result. The name and creation date
// are always kept from the stored record.
func (s *HostService) UpdateHost(ctx context.Context, name string, req *domain.UpdateHostRequest) (*domain.Host, error) {
	existing, err := s.GetHost(ctx, name)
	if err != nil {
		return nil, err
	}

	url := s.endpoints.Host(existing.Name)
	etag, err := s.etag(ctx, url, existing.Name)
	if err != nil {
		return nil, err
	}
	if _, err := s.client.Put(ctx, url, checkmk.NewUpdateHostPayload(req.IPAddress), etag); err != nil {
		return nil, domain.NewHostOperationError("update", existing.Name, err)
	}
	if err := s.activate(ctx, existing.Name); err != nil {
		return nil, err
	}

	updated := &domain.Host{
		ID:             existing.Name,
		Name:           existing.Name,
		IPAddress:      req.IPAddress,
		CreationDate:   existing.CreationDate,
		ExpirationDate: existing.ExpirationDate,
		OwnerEmail:     existing.OwnerEmail,
	}
	if req.ExpirationDate != "" {
		updated.ExpirationDate = req.ExpirationDate
	}
	if req.OwnerEmail != "" {
		updated.OwnerEmail = req.OwnerEmail
	}
	if err := s.store.SaveHost(ctx, updated); err != nil {
		return nil, fmt.Errorf("saving host: %w", err)
	}

	s.logger.Info("host updated", "host", updated.Name, "ip", updated.IPAddress)
	return updated, nil
}

// DeleteHost removes the host from Checkmk and then from the local store.
// The local record is kept when the remote delete fails.
func (s *HostService) DeleteHost(ctx context.Context, name string) error {
	existing, err := s.GetHost(ctx, name)
	if err != nil {
		return err
	}

	url := s.endpoints.Host(existing.Name)
	etag, err := s.etag(ctx, url, existing.Name)
	if err != nil {
		return err
	}
	if _, err := s.client.Delete(ctx, url, etag); err != nil {
		return domain.NewHostOperationError("delete", existing.Name, err)
	}
	if err := s.activate(ctx, existing.Name); err != nil {
		return err
	}
	if err := s.store.DeleteHost(ctx, existing.Name); err != nil {
		return fmt.Errorf("deleting host: %w", err)
	}

	s.logger.Info("host deleted", "host", existing.Name)
	return nil
}

// TriggerServiceDiscoveryAndMonitor rescans the services of host, waits for
// the scan to finish, accepts every discovered service and activates the
// result. When the scan does not finish in time no services are accepted.
func (s *HostService) TriggerServiceDiscoveryAndMonitor(ctx context.Context, host string) error {
	start := s.endpoints.DiscoveryStart()

	if _, err := s.client.Post(ctx, start, checkmk.NewDiscoveryPayload(host, checkmk.DiscoveryModeRefresh)); err != nil {
		return domain.NewHostOperationError("start discovery", host, err)
	}

	res, err := s.poller.Wait(ctx, host)
	if err != nil {
		return err
	}
	s.logger.Debug("discovery completed", "host", host, "attempts", res.Attempts)

	if _, err := s.client.Post(ctx, start, checkmk.NewDiscoveryPayload(host, checkmk.DiscoveryModeFixAll)); err != nil {
		return domain.NewHostOperationError("accept services", host, err)
	}
	if err := s.activate(ctx, host); err != nil {
		return err
	}

	s.logger.Info("services discovered and monitored", "host", host)
	return nil
}

// ActivateChanges applies all pending configuration on the site. It is not
// retried.
func (s *HostService) ActivateChanges(ctx context.Context) error {
	return s.activate(ctx, "")
}

func (s *HostService) activate(ctx context.Context, host string) error {
	payload := checkmk.NewActivatePayload(s.endpoints.Site())
	if _, err := s.client.Post(ctx, s.endpoints.ActivateChanges(), payload); err != nil {
		return domain.NewHostOperationError("activate changes", host, err)
	}
	return nil
}

func (s *HostService) etag(ctx context.Context, url, host string) (string, error) {
	resp, err := s.client.Get(ctx, url)
	if err != nil {
		return "", domain.NewHostOperationError("fetch etag", host, err)
	}
	return resp.ETag, nil
}
