package directory

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"sort"
	"time"

	"github.com/bcnelson/checkmk-host-manager/internal/domain"
	"github.com/go-ldap/ldap/v3"
)

var userAttributes = []string{
	"mail", "userPrincipalName", "givenName", "sn", "department", "physicalDeliveryOfficeName", "memberOf",
}

// LDAPConfig configures an LDAP directory.
type LDAPConfig struct {
	URL          string
	BindDN       string
	BindPassword string
	BaseDN       string
	UserFilter   string
	Roles        RoleMapping
	Timeout      time.Duration
}

// LDAP is a Directory backed by an LDAP or Active Directory server. Every
// lookup opens its own connection.
type LDAP struct {
	cfg    LDAPConfig
	logger *slog.Logger
}

// Ensure LDAP implements Directory.
var _ Directory = (*LDAP)(nil)

// NewLDAP creates an LDAP directory.
func NewLDAP(cfg LDAPConfig, logger *slog.Logger) *LDAP {
	if cfg.UserFilter == "" {
		cfg.UserFilter = "(objectClass=person)"
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 10 * time.Second
	}
	return &LDAP{cfg: cfg, logger: logger.With("component", "ldap")}
}

func (d *LDAP) connect() (*ldap.Conn, error) {
	conn, err := ldap.DialURL(d.cfg.URL, ldap.DialWithDialer(&net.Dialer{Timeout: d.cfg.Timeout}))
	if err != nil {
		return nil, fmt.Errorf("connecting to directory: %w", err)
	}
	conn.SetTimeout(d.cfg.Timeout)
	if d.cfg.BindDN != "" {
		if err := conn.Bind(d.cfg.BindDN, d.cfg.BindPassword); err != nil {
			conn.Close()
			return nil, fmt.Errorf("binding to directory: %w", err)
		}
	}
	return conn, nil
}

func (d *LDAP) search(filter string, sizeLimit int) ([]*ldap.Entry, error) {
	conn, err := d.connect()
	if err != nil {
		return nil, err
	}
	defer conn.Close()

	req := ldap.NewSearchRequest(
		d.cfg.BaseDN,
		ldap.ScopeWholeSubtree, ldap.NeverDerefAliases,
		sizeLimit, int(d.cfg.Timeout.Seconds()), false,
		filter,
		userAttributes,
		nil,
	)
	res, err := conn.SearchWithPaging(req, 500)
	if err != nil {
		return nil, fmt.Errorf("searching directory: %w", err)
	}
	return res.Entries, nil
}

// FindUserByEmail looks up a user by mail or userPrincipalName.
func (d *LDAP) FindUserByEmail(ctx context.Context, email string) (*domain.User, error) {
	escaped := ldap.EscapeFilter(email)
	filter := fmt.Sprintf("(&%s(|(mail=%s)(userPrincipalName=%s)))", d.cfg.UserFilter, escaped, escaped)

	entries, err := d.search(filter, 2)
	if err != nil {
		return nil, err
	}
	if len(entries) == 0 {
		return nil, domain.ErrNotFound
	}
	if len(entries) > 1 {
		d.logger.Warn("multiple directory entries for address, using first", "email", email)
	}
	return userFromEntry(entries[0], d.cfg.Roles), nil
}

// ListUsers returns every user matching the configured filter that has an
// email address.
func (d *LDAP) ListUsers(ctx context.Context) ([]*domain.User, error) {
	entries, err := d.search(d.cfg.UserFilter, 0)
	if err != nil {
		return nil, err
	}

	users := make([]*domain.User, 0, len(entries))
	for _, e := range entries {
		u := userFromEntry(e, d.cfg.Roles)
		if u.Email == "" {
			continue
		}
		users = append(users, u)
	}
	sort.Slice(users, func(i, j int) bool { return users[i].Email < users[j].Email })
	return users, nil
}

func userFromEntry(e *ldap.Entry, roles RoleMapping) *domain.User {
	email := e.GetAttributeValue("mail")
	if email == "" {
		email = e.GetAttributeValue("userPrincipalName")
	}
	return &domain.User{
		Email:      email,
		FirstName:  e.GetAttributeValue("givenName"),
		LastName:   e.GetAttributeValue("sn"),
		Department: e.GetAttributeValue("department"),
		Team:       e.GetAttributeValue("physicalDeliveryOfficeName"),
		Roles:      roles.Roles(e.GetAttributeValues("memberOf")),
	}
}
