// Package directory resolves users and their organisational attributes.
package directory

import (
	"context"
	"sort"
	"strings"
	"sync"

	"github.com/bcnelson/checkmk-host-manager/internal/domain"
)

// Directory looks up users by email address.
type Directory interface {
	// FindUserByEmail returns domain.ErrNotFound for unknown addresses.
	FindUserByEmail(ctx context.Context, email string) (*domain.User, error)
	ListUsers(ctx context.Context) ([]*domain.User, error)
}

// Static is an in-memory Directory. It backs tests and deployments without a
// directory server.
type Static struct {
	mu    sync.RWMutex
	users map[string]*domain.User
}

// NewStatic creates a directory holding users.
func NewStatic(users ...*domain.User) *Static {
	s := &Static{users: make(map[string]*domain.User, len(users))}
	for _, u := range users {
		s.Put(u)
	}
	return s
}

// Put adds or replaces a user.
func (s *Static) Put(u *domain.User) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c := *u
	s.users[strings.ToLower(u.Email)] = &c
}

func (s *Static) FindUserByEmail(ctx context.Context, email string) (*domain.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	u, ok := s.users[strings.ToLower(email)]
	if !ok {
		return nil, domain.ErrNotFound
	}
	c := *u
	return &c, nil
}

func (s *Static) ListUsers(ctx context.Context) ([]*domain.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	users := make([]*domain.User, 0, len(s.users))
	for _, u := range s.users {
		c := *u
		users = append(users, &c)
	}
	sort.Slice(users, func(i, j int) bool { return users[i].Email < users[j].Email })
	return users, nil
}

// RoleMapping maps group memberships to roles by case-insensitive substring
// match on the group DN.
type RoleMapping struct {
	AdminGroup          string
	DepartmentHeadGroup string
	TeamLeaderGroup     string
}

// Roles returns the roles granted by groups. Every user has RoleUser.
func (m RoleMapping) Roles(groups []string) []domain.Role {
	granted := map[domain.Role]bool{}
	match := func(group, needle string) bool {
		return needle != "" && strings.Contains(strings.ToLower(group), strings.ToLower(needle))
	}
	for _, g := range groups {
		switch {
		case match(g, m.AdminGroup):
			granted[domain.RoleAdmin] = true
		case match(g, m.DepartmentHeadGroup):
			granted[domain.RoleDepartmentHead] = true
		case match(g, m.TeamLeaderGroup):
			granted[domain.RoleTeamLeader] = true
		}
	}

	var roles []domain.Role
	for _, r := range []domain.Role{domain.RoleAdmin, domain.RoleDepartmentHead, domain.RoleTeamLeader} {
		if granted[r] {
			roles = append(roles, r)
		}
	}
	return append(roles, domain.RoleUser)
}
