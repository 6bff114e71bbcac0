package auth

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"fmt"
	"sync"
	"time"

	"golang.org/x/crypto/bcrypt"
)

var (
	// ErrInvalidCredentials is the single error for any failed login.
	// It never says which of username or password was wrong.
	ErrInvalidCredentials = errors.New("invalid credentials")

	// ErrUnauthorized is the single error for any invalid session token:
	// empty, malformed, unknown, or expired all look the same.
	ErrUnauthorized = errors.New("unauthorized")
)

// Session is an issued admin credential.
type Session struct {
	Token     string
	Subject   string
	CreatedAt time.Time
	ExpiresAt time.Time // zero when sessions live until logout
}

// Guard issues and validates opaque admin session tokens. Sessions are
// held server-side, so logout is real revocation.
type Guard struct {
	mu       sync.RWMutex
	sessions map[string]*Session

	username     string
	passwordHash string
	ttl          time.Duration
	now          func() time.Time
}

// NewGuard creates a session guard for a single admin identity.
// passwordHash is a bcrypt hash; an empty hash locks all logins out.
// ttl of zero means sessions persist until explicit logout.
func NewGuard(username, passwordHash string, ttl time.Duration) *Guard {
	return &Guard{
		sessions:     make(map[string]*Session),
		username:     username,
		passwordHash: passwordHash,
		ttl:          ttl,
		now:          time.Now,
	}
}

// Login verifies the credentials and issues a new session.
func (g *Guard) Login(username, password string) (*Session, error) {
	if g.passwordHash == "" {
		return nil, ErrInvalidCredentials
	}

	userOK := subtle.ConstantTimeCompare([]byte(username), []byte(g.username)) == 1

	// The password check always runs so a bad username costs the same
	// as a bad password.
	passErr := bcrypt.CompareHashAndPassword([]byte(g.passwordHash), []byte(password))

	if !userOK || passErr != nil {
		return nil, ErrInvalidCredentials
	}

	token, err := newToken(32)
	if err != nil {
		return nil, fmt.Errorf("failed to issue session token: %w", err)
	}

	now := g.now()
	session := &Session{
		Token:     token,
		Subject:   username,
		CreatedAt: now,
	}
	if g.ttl > 0 {
		session.ExpiresAt = now.Add(g.ttl)
	}

	g.mu.Lock()
	g.sessions[token] = session
	g.mu.Unlock()

	return session, nil
}

// Validate checks a presented token and returns the bound subject.
// Any failure is ErrUnauthorized regardless of token shape.
func (g *Guard) Validate(token string) (string, error) {
	if token == "" {
		return "", ErrUnauthorized
	}

	g.mu.RLock()
	session, ok := g.sessions[token]
	g.mu.RUnlock()

	if !ok {
		return "", ErrUnauthorized
	}

	if !session.ExpiresAt.IsZero() && g.now().After(session.ExpiresAt) {
		g.mu.Lock()
		delete(g.sessions, token)
		g.mu.Unlock()
		return "", ErrUnauthorized
	}

	return session.Subject, nil
}

// Logout revokes a session. Revoking an unknown token is a no-op.
func (g *Guard) Logout(token string) {
	g.mu.Lock()
	delete(g.sessions, token)
	g.mu.Unlock()
}

// newToken produces a cryptographically secure, URL-safe token.
func newToken(nbytes int) (string, error) {
	b := make([]byte, nbytes)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}
