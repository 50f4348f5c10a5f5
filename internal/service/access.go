package service

import (
	"context"
	"errors"
	"log/slog"
	"strings"

	"github.com/bcnelson/checkmk-host-manager/internal/directory"
	"github.com/bcnelson/checkmk-host-manager/internal/domain"
	"github.com/bcnelson/checkmk-host-manager/internal/storage"
)

// AccessFilter decides which hosts a principal may see.
//
//   - admins see every host
//   - department heads see hosts owned by members of their department
//   - team leaders see hosts owned by members of their team
//   - everyone else sees the hosts they own
type AccessFilter struct {
	store  storage.HostStore
	dir    directory.Directory
	logger *slog.Logger
}

// NewAccessFilter creates an AccessFilter resolving owners through dir.
func NewAccessFilter(store storage.HostStore, dir directory.Directory, logger *slog.Logger) *AccessFilter {
	return &AccessFilter{store: store, dir: dir, logger: logger.With("component", "access")}
}

// VisibleHosts returns the hosts p may see.
func (a *AccessFilter) VisibleHosts(ctx context.Context, p domain.Principal) ([]*domain.Host, error) {
	if p == nil {
		return nil, domain.ErrUnauthorized
	}
	if domain.HasRole(p, domain.RoleAdmin) {
		return a.store.ListHosts(ctx)
	}
	if !domain.HasRole(p, domain.RoleDepartmentHead) && !domain.HasRole(p, domain.RoleTeamLeader) {
		return a.store.ListHostsByOwner(ctx, p.Email())
	}

	all, err := a.store.ListHosts(ctx)
	if err != nil {
		return nil, err
	}
	owners := map[string]*domain.User{}
	visible := make([]*domain.Host, 0, len(all))
	for _, h := range all {
		if a.canSee(ctx, p, h, owners) {
			visible = append(visible, h)
		}
	}
	return visible, nil
}

// CanView reports whether p may see host.
func (a *AccessFilter) CanView(ctx context.Context, p domain.Principal, host *domain.Host) bool {
	if p == nil {
		return false
	}
	if domain.HasRole(p, domain.RoleAdmin) {
		return true
	}
	return a.canSee(ctx, p, host, map[string]*domain.User{})
}

func (a *AccessFilter) canSee(ctx context.Context, p domain.Principal, h *domain.Host, owners map[string]*domain.User) bool {
	if h.OwnerEmail != "" && strings.EqualFold(h.OwnerEmail, p.Email()) {
		return true
	}
	if h.OwnerEmail == "" {
		return false
	}

	owner, ok := owners[h.OwnerEmail]
	if !ok {
		u, err := a.dir.FindUserByEmail(ctx, h.OwnerEmail)
		if err != nil && !errors.Is(err, domain.ErrNotFound) {
			a.logger.Warn("owner lookup failed", "owner", h.OwnerEmail, "error", err)
		}
		owner = u
		owners[h.OwnerEmail] = u
	}
	if owner == nil {
		return false
	}

	if domain.HasRole(p, domain.RoleDepartmentHead) && p.Department() != "" &&
		strings.EqualFold(owner.Department, p.Department()) {
		return true
	}
	if domain.HasRole(p, domain.RoleTeamLeader) && p.Team() != "" &&
		strings.EqualFold(owner.Team, p.Team()) {
		return true
	}
	return false
}
