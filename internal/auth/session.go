package auth

import (
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/bcnelson/checkmk-host-manager/internal/domain"
)

const (
	// SessionCookieName is the name of the login session cookie.
	SessionCookieName = "chm_session"
)

// ErrNoSession is returned when the request has no valid session.
var ErrNoSession = errors.New("no session")

// SessionManager handles encrypted session cookies.
type SessionManager struct {
	sealer   *sealer
	duration time.Duration
	now      func() time.Time
}

// Session represents the session data stored in the encrypted cookie.
type Session struct {
	Subject    string        `json:"sub"`
	Email      string        `json:"email"`
	Name       string        `json:"name"`
	Roles      []domain.Role `json:"roles"`
	Department string        `json:"department,omitempty"`
	Team       string        `json:"team,omitempty"`
	ExpiresAt  time.Time     `json:"expires_at"`
	CreatedAt  time.Time     `json:"created_at"`
}

// Principal returns the caller described by the session.
func (s *Session) Principal() domain.Principal {
	return &domain.SessionPrincipal{
		UserEmail:      s.Email,
		UserRoles:      s.Roles,
		UserDepartment: s.Department,
		UserTeam:       s.Team,
	}
}

// NewSessionManager creates a new session manager with the given encryption key.
// The key must be exactly 32 bytes for AES-256.
func NewSessionManager(key []byte, duration time.Duration, secure bool) (*SessionManager, error) {
	s, err := newSealer(key, secure)
	if err != nil {
		return nil, err
	}
	return &SessionManager{sealer: s, duration: duration, now: time.Now}, nil
}

// Create creates an encrypted session cookie.
func (sm *SessionManager) Create(w http.ResponseWriter, session *Session) error {
	session.CreatedAt = sm.now()
	session.ExpiresAt = session.CreatedAt.Add(sm.duration)

	encoded, err := sm.sealer.seal(session)
	if err != nil {
		return fmt.Errorf("failed to seal session: %w", err)
	}
	sm.sealer.setCookie(w, SessionCookieName, encoded, int(sm.duration.Seconds()))
	return nil
}

// Get retrieves and validates the session from the cookie.
func (sm *SessionManager) Get(r *http.Request) (*Session, error) {
	var session Session
	if err := sm.sealer.readCookie(r, SessionCookieName, &session); err != nil {
		if errors.Is(err, errNoCookie) {
			return nil, ErrNoSession
		}
		return nil, fmt.Errorf("%w: %v", ErrNoSession, err)
	}

	if sm.now().After(session.ExpiresAt) {
		return nil, fmt.Errorf("%w: session expired", ErrNoSession)
	}
	return &session, nil
}

// Clear clears the session cookie.
func (sm *SessionManager) Clear(w http.ResponseWriter) {
	sm.sealer.setCookie(w, SessionCookieName, "", -1)
}
