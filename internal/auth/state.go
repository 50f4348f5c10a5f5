package auth

import (
	"fmt"
	"net/http"
	"time"
)

const (
	// StateCookieName is the name of the state cookie.
	StateCookieName = "chm_oidc_state"
	// StateCookieMaxAge is how long the state cookie is valid (5 minutes).
	StateCookieMaxAge = 5 * 60
)

// StateStore manages state and nonce for OIDC CSRF protection.
type StateStore struct {
	sealer *sealer
	now    func() time.Time
}

// StateData holds the state and nonce for an OIDC request.
type StateData struct {
	State      string    `json:"state"`
	Nonce      string    `json:"nonce"`
	RedirectTo string    `json:"redirect_to,omitempty"`
	ExpiresAt  time.Time `json:"expires_at"`
}

// NewStateStore creates a new state store with encryption.
func NewStateStore(key []byte, secure bool) (*StateStore, error) {
	s, err := newSealer(key, secure)
	if err != nil {
		return nil, err
	}
	return &StateStore{sealer: s, now: time.Now}, nil
}

// Generate creates a new state/nonce pair and stores it in an encrypted
// cookie. redirectTo is where the user returns after login.
func (ss *StateStore) Generate(w http.ResponseWriter, redirectTo string) (*StateData, error) {
	state, err := GenerateSecureString(32)
	if err != nil {
		return nil, fmt.Errorf("failed to generate state: %w", err)
	}

	nonce, err := GenerateSecureString(32)
	if err != nil {
		return nil, fmt.Errorf("failed to generate nonce: %w", err)
	}

	data := &StateData{
		State:      state,
		Nonce:      nonce,
		RedirectTo: redirectTo,
		ExpiresAt:  ss.now().Add(StateCookieMaxAge * time.Second),
	}

	encoded, err := ss.sealer.seal(data)
	if err != nil {
		return nil, fmt.Errorf("failed to seal state: %w", err)
	}
	ss.sealer.setCookie(w, StateCookieName, encoded, StateCookieMaxAge)
	return data, nil
}

// Validate retrieves and validates the state from the cookie.
func (ss *StateStore) Validate(r *http.Request, state string) (*StateData, error) {
	var data StateData
	if err := ss.sealer.readCookie(r, StateCookieName, &data); err != nil {
		return nil, fmt.Errorf("reading state cookie: %w", err)
	}

	if ss.now().After(data.ExpiresAt) {
		return nil, fmt.Errorf("state expired")
	}

	// Validate state matches (constant-time comparison)
	if !ConstantTimeCompare(data.State, state) {
		return nil, fmt.Errorf("state mismatch")
	}

	return &data, nil
}

// Clear clears the state cookie.
func (ss *StateStore) Clear(w http.ResponseWriter) {
	ss.sealer.setCookie(w, StateCookieName, "", -1)
}
