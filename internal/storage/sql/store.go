package sql

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/bcnelson/checkmk-host-manager/internal/domain"
	"github.com/bcnelson/checkmk-host-manager/internal/storage"
	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"
	"github.com/pressly/goose/v3"
)

//go:embed migrations/*.sql
var embedMigrations embed.FS

// isUniqueViolation checks if an error is a UNIQUE constraint violation.
func isUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	errStr := err.Error()
	// SQLite
	if strings.Contains(errStr, "UNIQUE constraint failed") {
		return true
	}
	// PostgreSQL
	if strings.Contains(errStr, "duplicate key value violates unique constraint") {
		return true
	}
	return false
}

// wrapUniqueError converts UNIQUE violations to domain.ErrAlreadyExists.
func wrapUniqueError(err error) error {
	if isUniqueViolation(err) {
		return domain.ErrAlreadyExists
	}
	return err
}

// Store implements the storage.Storage interface using SQL.
type Store struct {
	db     *sqlx.DB
	driver string
}

// New connects to the database and applies all pending migrations.
func New(driver, dsn string) (*Store, error) {
	db, err := sqlx.Connect(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("connecting to database: %w", err)
	}

	if err := migrate(db, driver); err != nil {
		db.Close()
		return nil, err
	}

	return &Store{db: db, driver: driver}, nil
}

func migrate(db *sqlx.DB, driver string) error {
	goose.SetBaseFS(embedMigrations)
	if err := goose.SetDialect(driver); err != nil {
		return fmt.Errorf("setting goose dialect: %w", err)
	}
	if err := goose.Up(db.DB, "migrations"); err != nil {
		return fmt.Errorf("running migrations: %w", err)
	}
	return nil
}

// SchemaVersion returns the applied migration version.
func (s *Store) SchemaVersion() (int64, error) {
	return goose.GetDBVersion(s.db.DB)
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// BeginTx starts a new transaction.
func (s *Store) BeginTx(ctx context.Context) (storage.Transaction, error) {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, err
	}
	return &Tx{tx: tx, driver: s.driver}, nil
}

// Tx wraps a database transaction.
type Tx struct {
	tx     *sqlx.Tx
	driver string
}

// Commit commits the transaction.
func (t *Tx) Commit() error {
	return t.tx.Commit()
}

// Rollback rolls back the transaction.
func (t *Tx) Rollback() error {
	return t.tx.Rollback()
}

// Close is a no-op for transactions (they should be committed or rolled back).
func (t *Tx) Close() error {
	return nil
}

// BeginTx is not supported within a transaction.
func (t *Tx) BeginTx(ctx context.Context) (storage.Transaction, error) {
	return nil, fmt.Errorf("nested transactions not supported")
}

// helper to get the correct database interface
type dbInterface interface {
	sqlx.ExtContext
	SelectContext(ctx context.Context, dest any, query string, args ...any) error
	GetContext(ctx context.Context, dest any, query string, args ...any) error
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

// ============================================
// Hosts
// ============================================

const hostColumns = `host_name AS id, host_name, ip_address, creation_date, expiration_date, owner_email`

func listHosts(ctx context.Context, db dbInterface) ([]*domain.Host, error) {
	var hosts []*domain.Host
	err := db.SelectContext(ctx, &hosts,
		`SELECT `+hostColumns+` FROM hosts ORDER BY host_name`)
	if err != nil {
		return nil, err
	}
	return hosts, nil
}

func (s *Store) ListHosts(ctx context.Context) ([]*domain.Host, error) {
	return listHosts(ctx, s.db)
}

func (t *Tx) ListHosts(ctx context.Context) ([]*domain.Host, error) {
	return listHosts(ctx, t.tx)
}

func getHost(ctx context.Context, db dbInterface, name string) (*domain.Host, error) {
	var host domain.Host
	err := db.GetContext(ctx, &host,
		`SELECT `+hostColumns+` FROM hosts WHERE host_name = $1`, name)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &host, nil
}

func (s *Store) GetHost(ctx context.Context, name string) (*domain.Host, error) {
	return getHost(ctx, s.db, name)
}

func (t *Tx) GetHost(ctx context.Context, name string) (*domain.Host, error) {
	return getHost(ctx, t.tx, name)
}

func listHostsByOwner(ctx context.Context, db dbInterface, email string) ([]*domain.Host, error) {
	var hosts []*domain.Host
	err := db.SelectContext(ctx, &hosts,
		`SELECT `+hostColumns+` FROM hosts WHERE owner_email = $1 ORDER BY host_name`, email)
	if err != nil {
		return nil, err
	}
	return hosts, nil
}

func (s *Store) ListHostsByOwner(ctx context.Context, email string) ([]*domain.Host, error) {
	return listHostsByOwner(ctx, s.db, email)
}

func (t *Tx) ListHostsByOwner(ctx context.Context, email string) ([]*domain.Host, error) {
	return listHostsByOwner(ctx, t.tx, email)
}

func saveHost(ctx context.Context, db dbInterface, host *domain.Host) error {
	_, err := db.ExecContext(ctx,
		`INSERT INTO hosts (host_name, ip_address, creation_date, expiration_date, owner_email)
		 VALUES ($1, $2, $3, $4, $5)
		 ON CONFLICT (host_name) DO UPDATE SET
		   ip_address = excluded.ip_address,
		   creation_date = excluded.creation_date,
		   expiration_date = excluded.expiration_date,
		   owner_email = excluded.owner_email`,
		host.Name, host.IPAddress, host.CreationDate, host.ExpirationDate, host.OwnerEmail)
	if err != nil {
		return err
	}
	host.ID = host.Name
	return nil
}

func (s *Store) SaveHost(ctx context.Context, host *domain.Host) error {
	return saveHost(ctx, s.db, host)
}

func (t *Tx) SaveHost(ctx context.Context, host *domain.Host) error {
	return saveHost(ctx, t.tx, host)
}

func deleteHost(ctx context.Context, db dbInterface, name string) error {
	result, err := db.ExecContext(ctx, `DELETE FROM hosts WHERE host_name = $1`, name)
	if err != nil {
		return err
	}
	rows, _ := result.RowsAffected()
	if rows == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func (s *Store) DeleteHost(ctx context.Context, name string) error {
	return deleteHost(ctx, s.db, name)
}

func (t *Tx) DeleteHost(ctx context.Context, name string) error {
	return deleteHost(ctx, t.tx, name)
}

func hostExists(ctx context.Context, db dbInterface, name string) (bool, error) {
	var count int
	err := db.GetContext(ctx, &count, `SELECT COUNT(*) FROM hosts WHERE host_name = $1`, name)
	return count > 0, err
}

func (s *Store) HostExists(ctx context.Context, name string) (bool, error) {
	return hostExists(ctx, s.db, name)
}

func (t *Tx) HostExists(ctx context.Context, name string) (bool, error) {
	return hostExists(ctx, t.tx, name)
}

// ============================================
// Critical service counts
// ============================================

func getCriticalCount(ctx context.Context, db dbInterface, hostName string) (int, bool, error) {
	var count int
	err := db.GetContext(ctx, &count, `SELECT count FROM critical_counts WHERE host_name = $1`, hostName)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, err
	}
	return count, true, nil
}

func (s *Store) GetCriticalCount(ctx context.Context, hostName string) (int, bool, error) {
	return getCriticalCount(ctx, s.db, hostName)
}

func (t *Tx) GetCriticalCount(ctx context.Context, hostName string) (int, bool, error) {
	return getCriticalCount(ctx, t.tx, hostName)
}

func setCriticalCount(ctx context.Context, db dbInterface, hostName string, count int) error {
	_, err := db.ExecContext(ctx,
		`INSERT INTO critical_counts (host_name, count, updated_at) VALUES ($1, $2, $3)
		 ON CONFLICT (host_name) DO UPDATE SET count = excluded.count, updated_at = excluded.updated_at`,
		hostName, count, time.Now())
	return err
}

func (s *Store) SetCriticalCount(ctx context.Context, hostName string, count int) error {
	return setCriticalCount(ctx, s.db, hostName, count)
}

func (t *Tx) SetCriticalCount(ctx context.Context, hostName string, count int) error {
	return setCriticalCount(ctx, t.tx, hostName, count)
}

// ============================================
// Users
// ============================================

type userRow struct {
	Email      string       `db:"email"`
	FirstName  string       `db:"first_name"`
	LastName   string       `db:"last_name"`
	Department string       `db:"department"`
	Team       string       `db:"team"`
	Roles      string       `db:"roles"`
	LastSeenAt sql.NullTime `db:"last_seen_at"`
}

func (r *userRow) toDomain() *domain.User {
	u := &domain.User{
		Email:      r.Email,
		FirstName:  r.FirstName,
		LastName:   r.LastName,
		Department: r.Department,
		Team:       r.Team,
	}
	if r.LastSeenAt.Valid {
		u.LastSeenAt = r.LastSeenAt.Time
	}
	for _, role := range strings.Split(r.Roles, ",") {
		if role != "" {
			u.Roles = append(u.Roles, domain.Role(role))
		}
	}
	return u
}

func joinRoles(roles []domain.Role) string {
	parts := make([]string, len(roles))
	for i, r := range roles {
		parts[i] = string(r)
	}
	return strings.Join(parts, ",")
}

func saveUser(ctx context.Context, db dbInterface, user *domain.User) error {
	var lastSeen sql.NullTime
	if !user.LastSeenAt.IsZero() {
		lastSeen = sql.NullTime{Time: user.LastSeenAt, Valid: true}
	}
	_, err := db.ExecContext(ctx,
		`INSERT INTO users (email, first_name, last_name, department, team, roles, last_seen_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)
		 ON CONFLICT (email) DO UPDATE SET
		   first_name = excluded.first_name,
		   last_name = excluded.last_name,
		   department = excluded.department,
		   team = excluded.team,
		   roles = excluded.roles,
		   last_seen_at = excluded.last_seen_at`,
		user.Email, user.FirstName, user.LastName, user.Department, user.Team, joinRoles(user.Roles), lastSeen)
	return err
}

func (s *Store) SaveUser(ctx context.Context, user *domain.User) error {
	return saveUser(ctx, s.db, user)
}

func (t *Tx) SaveUser(ctx context.Context, user *domain.User) error {
	return saveUser(ctx, t.tx, user)
}

func getUser(ctx context.Context, db dbInterface, email string) (*domain.User, error) {
	var row userRow
	err := db.GetContext(ctx, &row,
		`SELECT email, first_name, last_name, department, team, roles, last_seen_at FROM users WHERE email = $1`, email)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return row.toDomain(), nil
}

func (s *Store) GetUser(ctx context.Context, email string) (*domain.User, error) {
	return getUser(ctx, s.db, email)
}

func (t *Tx) GetUser(ctx context.Context, email string) (*domain.User, error) {
	return getUser(ctx, t.tx, email)
}

func listUsers(ctx context.Context, db dbInterface) ([]*domain.User, error) {
	var rows []userRow
	err := db.SelectContext(ctx, &rows,
		`SELECT email, first_name, last_name, department, team, roles, last_seen_at FROM users ORDER BY email`)
	if err != nil {
		return nil, err
	}
	users := make([]*domain.User, 0, len(rows))
	for i := range rows {
		users = append(users, rows[i].toDomain())
	}
	return users, nil
}

func (s *Store) ListUsers(ctx context.Context) ([]*domain.User, error) {
	return listUsers(ctx, s.db)
}

func (t *Tx) ListUsers(ctx context.Context) ([]*domain.User, error) {
	return listUsers(ctx, t.tx)
}

// ============================================
// Notifications
// ============================================

func createNotification(ctx context.Context, db dbInterface, n *domain.Notification) error {
	_, err := db.ExecContext(ctx,
		`INSERT INTO notifications (id, user_email, host_name, title, message, is_read, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		n.ID, n.UserEmail, n.HostName, n.Title, n.Message, n.Read, n.CreatedAt)
	return wrapUniqueError(err)
}

func (s *Store) CreateNotification(ctx context.Context, n *domain.Notification) error {
	return createNotification(ctx, s.db, n)
}

func (t *Tx) CreateNotification(ctx context.Context, n *domain.Notification) error {
	return createNotification(ctx, t.tx, n)
}

func listNotifications(ctx context.Context, db dbInterface, email string, unreadOnly bool) ([]*domain.Notification, error) {
	query := `SELECT id, user_email, host_name, title, message, is_read, created_at
		FROM notifications WHERE user_email = $1`
	if unreadOnly {
		query += ` AND is_read = FALSE`
	}
	query += ` ORDER BY created_at DESC`

	var notifications []*domain.Notification
	if err := db.SelectContext(ctx, &notifications, query, email); err != nil {
		return nil, err
	}
	return notifications, nil
}

func (s *Store) ListNotifications(ctx context.Context, email string, unreadOnly bool) ([]*domain.Notification, error) {
	return listNotifications(ctx, s.db, email, unreadOnly)
}

func (t *Tx) ListNotifications(ctx context.Context, email string, unreadOnly bool) ([]*domain.Notification, error) {
	return listNotifications(ctx, t.tx, email, unreadOnly)
}

func markNotificationRead(ctx context.Context, db dbInterface, email, id string) error {
	result, err := db.ExecContext(ctx,
		`UPDATE notifications SET is_read = TRUE WHERE id = $1 AND user_email = $2`, id, email)
	if err != nil {
		return err
	}
	rows, _ := result.RowsAffected()
	if rows == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func (s *Store) MarkNotificationRead(ctx context.Context, email, id string) error {
	return markNotificationRead(ctx, s.db, email, id)
}

func (t *Tx) MarkNotificationRead(ctx context.Context, email, id string) error {
	return markNotificationRead(ctx, t.tx, email, id)
}

// ============================================
// API Keys
// ============================================

func createAPIKey(ctx context.Context, db dbInterface, key *domain.APIKey) error {
	_, err := db.ExecContext(ctx,
		`INSERT INTO api_keys (id, name, key_hash, key_prefix, created_at, last_used_at)
		 VALUES ($1, $2, $3, $4, $5, $6)`,
		key.ID, key.Name, key.KeyHash, key.KeyPrefix, key.CreatedAt, key.LastUsedAt)
	return wrapUniqueError(err)
}

func (s *Store) CreateAPIKey(ctx context.Context, key *domain.APIKey) error {
	return createAPIKey(ctx, s.db, key)
}

func (t *Tx) CreateAPIKey(ctx context.Context, key *domain.APIKey) error {
	return createAPIKey(ctx, t.tx, key)
}

func getAPIKeyByHash(ctx context.Context, db dbInterface, keyHash string) (*domain.APIKey, error) {
	var key domain.APIKey
	err := db.GetContext(ctx, &key,
		`SELECT id, name, key_hash, key_prefix, created_at, last_used_at FROM api_keys WHERE key_hash = $1`, keyHash)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &key, nil
}

func (s *Store) GetAPIKeyByHash(ctx context.Context, keyHash string) (*domain.APIKey, error) {
	return getAPIKeyByHash(ctx, s.db, keyHash)
}

func (t *Tx) GetAPIKeyByHash(ctx context.Context, keyHash string) (*domain.APIKey, error) {
	return getAPIKeyByHash(ctx, t.tx, keyHash)
}

func listAPIKeys(ctx context.Context, db dbInterface) ([]*domain.APIKey, error) {
	var keys []*domain.APIKey
	err := db.SelectContext(ctx, &keys,
		`SELECT id, name, key_hash, key_prefix, created_at, last_used_at FROM api_keys ORDER BY created_at DESC`)
	if err != nil {
		return nil, err
	}
	return keys, nil
}

func (s *Store) ListAPIKeys(ctx context.Context) ([]*domain.APIKey, error) {
	return listAPIKeys(ctx, s.db)
}

func (t *Tx) ListAPIKeys(ctx context.Context) ([]*domain.APIKey, error) {
	return listAPIKeys(ctx, t.tx)
}

func deleteAPIKey(ctx context.Context, db dbInterface, id string) error {
	result, err := db.ExecContext(ctx, `DELETE FROM api_keys WHERE id = $1`, id)
	if err != nil {
		return err
	}
	rows, _ := result.RowsAffected()
	if rows == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func (s *Store) DeleteAPIKey(ctx context.Context, id string) error {
	return deleteAPIKey(ctx, s.db, id)
}

func (t *Tx) DeleteAPIKey(ctx context.Context, id string) error {
	return deleteAPIKey(ctx, t.tx, id)
}

func updateAPIKeyLastUsed(ctx context.Context, db dbInterface, id string) error {
	_, err := db.ExecContext(ctx,
		`UPDATE api_keys SET last_used_at = $1 WHERE id = $2`, time.Now(), id)
	return err
}

func (s *Store) UpdateAPIKeyLastUsed(ctx context.Context, id string) error {
	return updateAPIKeyLastUsed(ctx, s.db, id)
}

func (t *Tx) UpdateAPIKeyLastUsed(ctx context.Context, id string) error {
	return updateAPIKeyLastUsed(ctx, t.tx, id)
}

func countAPIKeys(ctx context.Context, db dbInterface) (int, error) {
	var count int
	err := db.GetContext(ctx, &count, `SELECT COUNT(*) FROM api_keys`)
	return count, err
}

func (s *Store) CountAPIKeys(ctx context.Context) (int, error) {
	return countAPIKeys(ctx, s.db)
}

func (t *Tx) CountAPIKeys(ctx context.Context) (int, error) {
	return countAPIKeys(ctx, t.tx)
}

var (
	_ storage.Storage     = (*Store)(nil)
	_ storage.Transaction = (*Tx)(nil)
)
