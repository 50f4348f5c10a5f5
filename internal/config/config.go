package config

import (
	"encoding/hex"
	"fmt"
	"strings"
	"time"

	"github.com/caarlos0/env/v9"
)

// Config holds all configuration for the application.
type Config struct {
	Server    ServerConfig
	Database  DatabaseConfig
	Checkmk   CheckmkConfig
	Discovery DiscoveryConfig
	Agent     AgentConfig
	LDAP      LDAPConfig
	OIDC      OIDCConfig
	Notify    NotifyConfig
	Auth      AuthConfig
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Host      string  `env:"SERVER_HOST" envDefault:"0.0.0.0"`
	Port      int     `env:"SERVER_PORT" envDefault:"8080"`
	RateLimit float64 `env:"SERVER_RATE_LIMIT" envDefault:"20"`
	RateBurst int     `env:"SERVER_RATE_BURST" envDefault:"40"`
}

// DatabaseConfig holds database configuration.
type DatabaseConfig struct {
	Driver string `env:"DB_DRIVER" envDefault:"sqlite3"`
	DSN    string `env:"DB_DSN" envDefault:"data/host-manager.db"`
}

// CheckmkConfig holds Checkmk REST API configuration.
type CheckmkConfig struct {
	URL      string        `env:"CHECKMK_URL"`
	Username string        `env:"CHECKMK_USERNAME"`
	Password string        `env:"CHECKMK_PASSWORD"`
	Site     string        `env:"CHECKMK_SITE"`
	Timeout  time.Duration `env:"CHECKMK_TIMEOUT" envDefault:"30s"`
	FileShim string        `env:"CHECKMK_FILE_SHIM"` // Path to file for testing shim (disables real API)
}

// DiscoveryConfig controls how long service discovery is awaited.
type DiscoveryConfig struct {
	PollAttempts int           `env:"DISCOVERY_POLL_ATTEMPTS" envDefault:"10"`
	PollInterval time.Duration `env:"DISCOVERY_POLL_INTERVAL" envDefault:"3s"`
}

// AgentConfig controls agent installation over SSH.
type AgentConfig struct {
	SSHPort        int           `env:"AGENT_SSH_PORT" envDefault:"22"`
	SSHTimeout     time.Duration `env:"AGENT_SSH_TIMEOUT" envDefault:"15s"`
	KnownHostsFile string        `env:"AGENT_KNOWN_HOSTS"` // Empty accepts any host key
}

// LDAPConfig holds directory configuration. The directory is optional.
type LDAPConfig struct {
	URL                 string `env:"LDAP_URL"`
	BindDN              string `env:"LDAP_BIND_DN"`
	BindPassword        string `env:"LDAP_BIND_PASSWORD"`
	BaseDN              string `env:"LDAP_BASE_DN"`
	UserFilter          string `env:"LDAP_USER_FILTER" envDefault:"(objectClass=person)"`
	AdminGroup          string `env:"LDAP_ADMIN_GROUP" envDefault:"administrators"`
	DepartmentHeadGroup string `env:"LDAP_DEPARTMENT_HEAD_GROUP" envDefault:"departmentheads"`
	TeamLeaderGroup     string `env:"LDAP_TEAM_LEADER_GROUP" envDefault:"teamleaders"`
}

// Enabled reports whether a directory server is configured.
func (c *LDAPConfig) Enabled() bool {
	return c.URL != ""
}

// OIDCConfig holds OIDC authentication configuration.
type OIDCConfig struct {
	Enabled         bool          `env:"OIDC_ENABLED" envDefault:"false"`
	IssuerURL       string        `env:"OIDC_ISSUER_URL"`
	ClientID        string        `env:"OIDC_CLIENT_ID"`
	ClientSecret    string        `env:"OIDC_CLIENT_SECRET"`
	RedirectURL     string        `env:"OIDC_REDIRECT_URL"`
	Scopes          string        `env:"OIDC_SCOPES" envDefault:"openid,email,profile"`
	SessionSecret   string        `env:"OIDC_SESSION_SECRET"`
	SessionDuration time.Duration `env:"OIDC_SESSION_DURATION" envDefault:"24h"`
	AllowedDomains  string        `env:"OIDC_ALLOWED_DOMAINS"`
	SecureCookies   bool          `env:"OIDC_SECURE_COOKIES" envDefault:"true"`
}

// GetScopes returns the OIDC scopes as a slice.
func (c *OIDCConfig) GetScopes() []string {
	if c.Scopes == "" {
		return []string{"openid", "email", "profile"}
	}
	return strings.Split(c.Scopes, ",")
}

// GetAllowedDomains returns the allowed domains as a slice.
func (c *OIDCConfig) GetAllowedDomains() []string {
	if c.AllowedDomains == "" {
		return nil
	}
	domains := strings.Split(c.AllowedDomains, ",")
	for i := range domains {
		domains[i] = strings.TrimSpace(domains[i])
	}
	return domains
}

// GetSessionSecretBytes returns the session secret as bytes.
func (c *OIDCConfig) GetSessionSecretBytes() ([]byte, error) {
	if c.SessionSecret == "" {
		return nil, fmt.Errorf("OIDC_SESSION_SECRET is required")
	}
	// 64 hex chars = 32 bytes
	if len(c.SessionSecret) == 64 {
		decoded, err := hex.DecodeString(c.SessionSecret)
		if err == nil {
			return decoded, nil
		}
	}
	if len(c.SessionSecret) != 32 {
		return nil, fmt.Errorf("OIDC_SESSION_SECRET must be 32 bytes (or 64 hex characters)")
	}
	return []byte(c.SessionSecret), nil
}

// NotifyConfig controls the periodic host checks.
type NotifyConfig struct {
	Enabled           bool          `env:"NOTIFY_ENABLED" envDefault:"true"`
	Interval          time.Duration `env:"NOTIFY_INTERVAL" envDefault:"1h"`
	ExpiryWarningDays int           `env:"NOTIFY_EXPIRY_WARNING_DAYS" envDefault:"7"`
	WebhookURL        string        `env:"NOTIFY_WEBHOOK_URL"`
}

// AuthConfig holds API authentication configuration.
type AuthConfig struct {
	BootstrapAPIKey string `env:"BOOTSTRAP_API_KEY"`
}

// Load loads configuration from environment variables.
func Load() (*Config, error) {
	cfg := &Config{}

	sections := []struct {
		name string
		dst  any
	}{
		{"server", &cfg.Server},
		{"database", &cfg.Database},
		{"checkmk", &cfg.Checkmk},
		{"discovery", &cfg.Discovery},
		{"agent", &cfg.Agent},
		{"ldap", &cfg.LDAP},
		{"oidc", &cfg.OIDC},
		{"notify", &cfg.Notify},
		{"auth", &cfg.Auth},
	}
	for _, s := range sections {
		if err := env.Parse(s.dst); err != nil {
			return nil, fmt.Errorf("parsing %s config: %w", s.name, err)
		}
	}

	cfg.Checkmk.URL = strings.TrimRight(cfg.Checkmk.URL, "/")
	return cfg, nil
}

// Addr returns the server address in host:port format.
func (c *ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// Validate checks if the configuration is valid.
func (c *Config) Validate() error {
	// With the file shim, Checkmk credentials are not required.
	if c.Checkmk.FileShim == "" {
		required := []struct{ name, value string }{
			{"CHECKMK_URL", c.Checkmk.URL},
			{"CHECKMK_USERNAME", c.Checkmk.Username},
			{"CHECKMK_PASSWORD", c.Checkmk.Password},
			{"CHECKMK_SITE", c.Checkmk.Site},
		}
		for _, r := range required {
			if r.value == "" {
				return fmt.Errorf("%s is required (or set CHECKMK_FILE_SHIM for testing)", r.name)
			}
		}
	}

	if c.Discovery.PollAttempts < 1 {
		return fmt.Errorf("DISCOVERY_POLL_ATTEMPTS must be at least 1")
	}
	if c.Discovery.PollInterval < 0 {
		return fmt.Errorf("DISCOVERY_POLL_INTERVAL must not be negative")
	}

	if c.LDAP.Enabled() && c.LDAP.BaseDN == "" {
		return fmt.Errorf("LDAP_BASE_DN is required when LDAP_URL is set")
	}

	if c.Notify.Enabled && c.Notify.Interval <= 0 {
		return fmt.Errorf("NOTIFY_INTERVAL must be positive")
	}

	if c.OIDC.Enabled {
		if c.OIDC.IssuerURL == "" {
			return fmt.Errorf("OIDC_ISSUER_URL is required when OIDC is enabled")
		}
		if c.OIDC.ClientID == "" {
			return fmt.Errorf("OIDC_CLIENT_ID is required when OIDC is enabled")
		}
		if c.OIDC.ClientSecret == "" {
			return fmt.Errorf("OIDC_CLIENT_SECRET is required when OIDC is enabled")
		}
		if c.OIDC.RedirectURL == "" {
			return fmt.Errorf("OIDC_REDIRECT_URL is required when OIDC is enabled")
		}
		if _, err := c.OIDC.GetSessionSecretBytes(); err != nil {
			return err
		}
	}

	return nil
}

// UseFileShim returns true if the file shim should be used instead of the real API.
func (c *Config) UseFileShim() bool {
	return c.Checkmk.FileShim != ""
}
