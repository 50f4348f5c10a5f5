package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/bcnelson/checkmk-host-manager/internal/domain"
	"github.com/bcnelson/checkmk-host-manager/internal/storage"
)

// Store is an in-memory implementation of the storage interface for testing.
type Store struct {
	mu sync.RWMutex

	hosts          map[string]*domain.Host // key: host name
	users          map[string]*domain.User // key: email
	notifications  map[string]*domain.Notification
	apiKeys        map[string]*domain.APIKey
	criticalCounts map[string]int
}

// New creates a new in-memory store.
func New() *Store {
	return &Store{
		hosts:          make(map[string]*domain.Host),
		users:          make(map[string]*domain.User),
		notifications:  make(map[string]*domain.Notification),
		apiKeys:        make(map[string]*domain.APIKey),
		criticalCounts: make(map[string]int),
	}
}

func (s *Store) Close() error { return nil }

func (s *Store) BeginTx(ctx context.Context) (storage.Transaction, error) {
	return &Tx{Store: s}, nil
}

// Tx is a no-op transaction for the in-memory store. Writes are applied
// immediately.
type Tx struct {
	*Store
}

func (t *Tx) Commit() error   { return nil }
func (t *Tx) Rollback() error { return nil }
func (t *Tx) BeginTx(ctx context.Context) (storage.Transaction, error) {
	return nil, domain.ErrInvalidInput
}

// ============================================
// Hosts
// ============================================

func copyHost(h *domain.Host) *domain.Host {
	c := *h
	c.ID = c.Name
	c.Imported = false
	return &c
}

func sortHosts(hosts []*domain.Host) {
	sort.Slice(hosts, func(i, j int) bool { return hosts[i].Name < hosts[j].Name })
}

func (s *Store) ListHosts(ctx context.Context) ([]*domain.Host, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	hosts := make([]*domain.Host, 0, len(s.hosts))
	for _, h := range s.hosts {
		hosts = append(hosts, copyHost(h))
	}
	sortHosts(hosts)
	return hosts, nil
}

func (s *Store) GetHost(ctx context.Context, name string) (*domain.Host, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	h, ok := s.hosts[name]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return copyHost(h), nil
}

func (s *Store) ListHostsByOwner(ctx context.Context, email string) ([]*domain.Host, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var hosts []*domain.Host
	for _, h := range s.hosts {
		if h.OwnerEmail == email {
			hosts = append(hosts, copyHost(h))
		}
	}
	sortHosts(hosts)
	return hosts, nil
}

func (s *Store) SaveHost(ctx context.Context, host *domain.Host) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	host.ID = host.Name
	s.hosts[host.Name] = copyHost(host)
	return nil
}

func (s *Store) DeleteHost(ctx context.Context, name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.hosts[name]; !ok {
		return domain.ErrNotFound
	}
	delete(s.hosts, name)
	return nil
}

func (s *Store) HostExists(ctx context.Context, name string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	_, ok := s.hosts[name]
	return ok, nil
}

// ============================================
// Critical service counts
// ============================================

func (s *Store) GetCriticalCount(ctx context.Context, hostName string) (int, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	count, ok := s.criticalCounts[hostName]
	return count, ok, nil
}

func (s *Store) SetCriticalCount(ctx context.Context, hostName string, count int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.criticalCounts[hostName] = count
	return nil
}

// ============================================
// Users
// ============================================

func (s *Store) SaveUser(ctx context.Context, user *domain.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	u := *user
	u.Roles = append([]domain.Role(nil), user.Roles...)
	s.users[user.Email] = &u
	return nil
}

func (s *Store) GetUser(ctx context.Context, email string) (*domain.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	u, ok := s.users[email]
	if !ok {
		return nil, domain.ErrNotFound
	}
	c := *u
	return &c, nil
}

func (s *Store) ListUsers(ctx context.Context) ([]*domain.User, error) {
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

// ============================================
// Notifications
// ============================================

func (s *Store) CreateNotification(ctx context.Context, n *domain.Notification) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.notifications[n.ID]; ok {
		return domain.ErrAlreadyExists
	}
	c := *n
	s.notifications[n.ID] = &c
	return nil
}

func (s *Store) ListNotifications(ctx context.Context, email string, unreadOnly bool) ([]*domain.Notification, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*domain.Notification
	for _, n := range s.notifications {
		if n.UserEmail != email || (unreadOnly && n.Read) {
			continue
		}
		c := *n
		result = append(result, &c)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].CreatedAt.After(result[j].CreatedAt) })
	return result, nil
}

func (s *Store) MarkNotificationRead(ctx context.Context, email, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	n, ok := s.notifications[id]
	if !ok || n.UserEmail != email {
		return domain.ErrNotFound
	}
	n.Read = true
	return nil
}

// ============================================
// API Keys
// ============================================

func (s *Store) CreateAPIKey(ctx context.Context, key *domain.APIKey) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.apiKeys[key.ID]; ok {
		return domain.ErrAlreadyExists
	}
	c := *key
	s.apiKeys[key.ID] = &c
	return nil
}

func (s *Store) GetAPIKeyByHash(ctx context.Context, keyHash string) (*domain.APIKey, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, k := range s.apiKeys {
		if k.KeyHash == keyHash {
			c := *k
			return &c, nil
		}
	}
	return nil, domain.ErrNotFound
}

func (s *Store) ListAPIKeys(ctx context.Context) ([]*domain.APIKey, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	keys := make([]*domain.APIKey, 0, len(s.apiKeys))
	for _, k := range s.apiKeys {
		c := *k
		keys = append(keys, &c)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i].CreatedAt.After(keys[j].CreatedAt) })
	return keys, nil
}

func (s *Store) DeleteAPIKey(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.apiKeys[id]; !ok {
		return domain.ErrNotFound
	}
	delete(s.apiKeys, id)
	return nil
}

func (s *Store) UpdateAPIKeyLastUsed(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	k, ok := s.apiKeys[id]
	if !ok {
		return domain.ErrNotFound
	}
	now := time.Now()
	k.LastUsedAt = &now
	return nil
}

func (s *Store) CountAPIKeys(ctx context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return len(s.apiKeys), nil
}

var (
	_ storage.Storage     = (*Store)(nil)
	_ storage.Transaction = (*Tx)(nil)
)
