// Package session exposes the authenticated identity the uploader acts as.
// Token acquisition and refresh happen elsewhere; this layer only answers
// "is there a usable session right now".
package session

import (
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

type Session struct {
	Token    string
	DriverID string
}

// Source yields the current session, or nil when none is usable. Absence is
// a recoverable condition, not an error.
type Source interface {
	Session() *Session
}

// Manager holds a bearer token handed in by the surrounding application. If
// the token is a JWT its exp claim is honored: an expired token yields no
// session. Opaque tokens are passed through as-is.
type Manager struct {
	mu       sync.RWMutex
	token    string
	driverID string
	expires  time.Time

	now func() time.Time
}

func NewManager() *Manager {
	return &Manager{now: time.Now}
}

// SetToken installs or replaces the active token. An empty token clears the
// session.
func (m *Manager) SetToken(token string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.token = token
	m.driverID = ""
	m.expires = time.Time{}
	if token == "" {
		return
	}

	// Signature verification belongs to the server; we only read claims to
	// know when the token stops being worth sending.
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		return
	}
	if exp, err := claims.GetExpirationTime(); err == nil && exp != nil {
		m.expires = exp.Time
	}
	if sub, err := claims.GetSubject(); err == nil {
		m.driverID = sub
	}
}

func (m *Manager) Session() *Session {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.token == "" {
		return nil
	}
	if !m.expires.IsZero() && !m.now().Before(m.expires) {
		return nil
	}
	return &Session{Token: m.token, DriverID: m.driverID}
}
