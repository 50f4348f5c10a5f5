package service

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/bcnelson/checkmk-host-manager/internal/checkmk"
	"github.com/bcnelson/checkmk-host-manager/internal/domain"
	"github.com/bcnelson/checkmk-host-manager/internal/storage"
)

// ImportService adopts hosts that already exist in Checkmk into the local
// store.
type ImportService struct {
	store     storage.Storage
	client    checkmk.Requester
	endpoints checkmk.Endpoints
	logger    *slog.Logger
}

// NewImportService creates an ImportService.
func NewImportService(store storage.Storage, client checkmk.Requester, endpoints checkmk.Endpoints, logger *slog.Logger) *ImportService {
	return &ImportService{
		store:     store,
		client:    client,
		endpoints: endpoints,
		logger:    logger.With("component", "import"),
	}
}

// RemoteHosts lists the hosts configured in Checkmk, marking those already
// stored locally as imported. When Checkmk can not be read the error is
// logged and an empty list returned.
func (s *ImportService) RemoteHosts(ctx context.Context) []*domain.Host {
	hosts, err := s.fetch(ctx)
	if err != nil {
		s.logger.Error("listing remote hosts failed", "error", err)
		return []*domain.Host{}
	}
	for _, h := range hosts {
		exists, err := s.store.HostExists(ctx, h.Name)
		if err != nil {
			s.logger.Warn("checking local host failed", "host", h.Name, "error", err)
			continue
		}
		h.Imported = exists
	}
	return hosts
}

// ImportHosts stores the selected remote hosts in one transaction. Names
// Checkmk does not know are reported as skipped.
func (s *ImportService) ImportHosts(ctx context.Context, names []string) (*domain.ImportHostsResponse, error) {
	remote, err := s.fetch(ctx)
	if err != nil {
		return nil, domain.NewHostOperationError("list hosts", "", err)
	}
	byName := make(map[string]*domain.Host, len(remote))
	for _, h := range remote {
		byName[h.Name] = h
	}

	tx, err := s.store.BeginTx(ctx)
	if err != nil {
		return nil, fmt.Errorf("starting transaction: %w", err)
	}
	defer tx.Rollback()

	resp := &domain.ImportHostsResponse{Imported: []string{}}
	for _, name := range names {
		h, ok := byName[name]
		if !ok {
			resp.Skipped = append(resp.Skipped, name)
			continue
		}
		h.ID = h.Name
		if existing, err := tx.GetHost(ctx, h.Name); err == nil {
			// Keep locally maintained fields.
			h.ExpirationDate = existing.ExpirationDate
			h.OwnerEmail = existing.OwnerEmail
			if existing.CreationDate != "" {
				h.CreationDate = existing.CreationDate
			}
		}
		if err := tx.SaveHost(ctx, h); err != nil {
			return nil, fmt.Errorf("saving host %s: %w", h.Name, err)
		}
		resp.Imported = append(resp.Imported, h.Name)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("committing import: %w", err)
	}
	s.logger.Info("hosts imported", "imported", len(resp.Imported), "skipped", len(resp.Skipped))
	return resp, nil
}

func (s *ImportService) fetch(ctx context.Context) ([]*domain.Host, error) {
	resp, err := s.client.Get(ctx, s.endpoints.HostCollection())
	if err != nil {
		return nil, err
	}
	return checkmk.ParseHostCollection(resp.Body)
}
