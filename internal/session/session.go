package session

import (
	"errors"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Role identifies which side of an order the session acts for.
type Role string

const (
	RoleCustomer Role = "customer"
	RoleDriver   Role = "driver"
)

var (
	// ErrNoToken is returned when an operation requires a credential and the
	// session has none.
	ErrNoToken = errors.New("session has no bearer token")

	// ErrMalformedToken is returned when the bearer token cannot be parsed.
	ErrMalformedToken = errors.New("malformed bearer token")
)

// Session carries the authenticated identity for one signed-in user. It is
// passed explicitly to every component that needs it, so tests and tools can
// run multiple sessions side by side.
type Session struct {
	mu sync.RWMutex

	userID      string
	role        Role
	displayName string
	token       string
	expiresAt   time.Time
}

// New creates a session with an explicit identity and bearer token.
func New(userID string, role Role, token string) *Session {
	return &Session{userID: userID, role: role, token: token}
}

// FromToken builds a session from a JWT bearer token, reading identity
// claims without verifying the signature. Verification is the server's job;
// the client only needs the subject and expiry for local bookkeeping.
func FromToken(token string, role Role) (*Session, error) {
	if token == "" {
		return nil, ErrNoToken
	}

	claims := jwt.MapClaims{}
	parser := jwt.NewParser()
	if _, _, err := parser.ParseUnverified(token, claims); err != nil {
		return nil, ErrMalformedToken
	}

	s := &Session{role: role, token: token}
	if sub, err := claims.GetSubject(); err == nil {
		s.userID = sub
	}
	if exp, err := claims.GetExpirationTime(); err == nil && exp != nil {
		s.expiresAt = exp.Time
	}
	if name, ok := claims["name"].(string); ok {
		s.displayName = name
	}

	if s.userID == "" {
		return nil, ErrMalformedToken
	}
	return s, nil
}

// UserID returns the authenticated user id.
func (s *Session) UserID() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.userID
}

// Role returns the session role.
func (s *Session) Role() Role {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.role
}

// DisplayName returns the user's display name, if known.
func (s *Session) DisplayName() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.displayName
}

// SetDisplayName records the user's display name for denormalized writes.
func (s *Session) SetDisplayName(name string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.displayName = name
}

// Token returns the current bearer token, or ErrNoToken when the session is
// unauthenticated or the token is known to be expired.
func (s *Session) Token() (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.token == "" {
		return "", ErrNoToken
	}
	if !s.expiresAt.IsZero() && time.Now().After(s.expiresAt) {
		return "", ErrNoToken
	}
	return s.token, nil
}

// SetToken replaces the bearer token after a refresh.
func (s *Session) SetToken(token string, expiresAt time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.token = token
	s.expiresAt = expiresAt
}
