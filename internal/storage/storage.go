package storage

import (
	"context"

	"github.com/bcnelson/checkmk-host-manager/internal/domain"
)

// Storage defines the interface for the storage layer.
// Implementations must be safe for concurrent use.
type Storage interface {
	// Close closes the storage connection.
	Close() error

	HostStore
	CriticalStateStore

	// Users
	SaveUser(ctx context.Context, user *domain.User) error
	GetUser(ctx context.Context, email string) (*domain.User, error)
	ListUsers(ctx context.Context) ([]*domain.User, error)

	// Notifications
	CreateNotification(ctx context.Context, n *domain.Notification) error
	ListNotifications(ctx context.Context, email string, unreadOnly bool) ([]*domain.Notification, error)
	MarkNotificationRead(ctx context.Context, email, id string) error

	// API Keys
	CreateAPIKey(ctx context.Context, key *domain.APIKey) error
	GetAPIKeyByHash(ctx context.Context, keyHash string) (*domain.APIKey, error)
	ListAPIKeys(ctx context.Context) ([]*domain.APIKey, error)
	DeleteAPIKey(ctx context.Context, id string) error
	UpdateAPIKeyLastUsed(ctx context.Context, id string) error
	CountAPIKeys(ctx context.Context) (int, error)

	// Transaction support
	BeginTx(ctx context.Context) (Transaction, error)
}

// HostStore persists hosts keyed by host name.
type HostStore interface {
	ListHosts(ctx context.Context) ([]*domain.Host, error)
	GetHost(ctx context.Context, name string) (*domain.Host, error)
	ListHostsByOwner(ctx context.Context, email string) ([]*domain.Host, error)
	// SaveHost inserts the host or replaces the stored record with the same name.
	SaveHost(ctx context.Context, host *domain.Host) error
	DeleteHost(ctx context.Context, name string) error
	HostExists(ctx context.Context, name string) (bool, error)
}

// CriticalStateStore remembers the last observed number of critical
// services per host.
type CriticalStateStore interface {
	GetCriticalCount(ctx context.Context, hostName string) (count int, ok bool, err error)
	SetCriticalCount(ctx context.Context, hostName string, count int) error
}

// Transaction represents a database transaction.
type Transaction interface {
	Storage
	Commit() error
	Rollback() error
}
