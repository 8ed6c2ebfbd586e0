// Package session resolves the shopper's authentication state from the
// signed session token the storefront carries. An unreadable token always
// degrades to the anonymous session; it is never an error to the caller.
package session

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	jwt "github.com/golang-jwt/jwt/v4"
	"go.uber.org/zap"
)

// Session is the resolved authentication state.
type Session struct {
	Authenticated bool
	AccountID     string
	Token         string
}

// Anonymous is the zero-value session.
var Anonymous = Session{}

// Source yields the current session for the running storefront.
type Source interface {
	Current(ctx context.Context) (Session, error)
}

// Verifier validates HMAC-signed session tokens and extracts the account
// identity from their claims.
type Verifier struct {
	secret []byte
	parser *jwt.Parser
	logger *zap.Logger
	now    func() time.Time
}

// VerifierOption customises Verifier construction.
type VerifierOption func(*Verifier)

// WithClock overrides the time source used for expiry validation.
func WithClock(now func() time.Time) VerifierOption {
	return func(v *Verifier) {
		if now != nil {
			v.now = now
		}
	}
}

// NewVerifier constructs a Verifier around the shared signing secret.
func NewVerifier(secret string, logger *zap.Logger, opts ...VerifierOption) (*Verifier, error) {
	trimmed := strings.TrimSpace(secret)
	if trimmed == "" {
		return nil, errors.New("session: signing secret is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	v := &Verifier{
		secret: []byte(trimmed),
		logger: logger,
		now:    time.Now,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(v)
		}
	}
	// Claims validation is done by hand so the clock stays injectable; the
	// parser itself only checks the signature and algorithm.
	v.parser = jwt.NewParser(
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithoutClaimsValidation(),
	)
	return v, nil
}

// Parse resolves a raw token into a session. Absent, malformed, expired, or
// badly signed tokens all resolve to the anonymous session.
func (v *Verifier) Parse(token string) Session {
	raw := strings.TrimSpace(token)
	if raw == "" {
		return Anonymous
	}

	claims := jwt.MapClaims{}
	if _, err := v.parser.ParseWithClaims(raw, claims, func(*jwt.Token) (any, error) {
		return v.secret, nil
	}); err != nil {
		v.logger.Debug("session token rejected", zap.Error(err))
		return Anonymous
	}

	nowUnix := v.now().Unix()
	if !claims.VerifyExpiresAt(nowUnix, false) {
		v.logger.Debug("session token expired")
		return Anonymous
	}
	if !claims.VerifyNotBefore(nowUnix, false) {
		v.logger.Debug("session token not yet valid")
		return Anonymous
	}

	accountID := ""
	if sub, ok := claims["sub"].(string); ok {
		accountID = strings.TrimSpace(sub)
	}
	if accountID == "" {
		v.logger.Debug("session token missing subject claim")
		return Anonymous
	}

	return Session{
		Authenticated: true,
		AccountID:     accountID,
		Token:         raw,
	}
}

// Manager holds the mutable current session for the storefront process. The
// composition root owns the single instance; handlers update it when the
// shopper signs in or out.
type Manager struct {
	verifier *Verifier

	mu      sync.RWMutex
	current Session
}

// NewManager constructs a Manager starting from the anonymous session.
func NewManager(verifier *Verifier) (*Manager, error) {
	if verifier == nil {
		return nil, errors.New("session: verifier is required")
	}
	return &Manager{verifier: verifier, current: Anonymous}, nil
}

// SetToken resolves and stores the session for the provided token, returning
// the resolved session. An empty or invalid token signs the shopper out.
func (m *Manager) SetToken(token string) Session {
	resolved := m.verifier.Parse(token)
	m.mu.Lock()
	m.current = resolved
	m.mu.Unlock()
	return resolved
}

// Clear signs the shopper out.
func (m *Manager) Clear() {
	m.mu.Lock()
	m.current = Anonymous
	m.mu.Unlock()
}

// Current implements Source.
func (m *Manager) Current(ctx context.Context) (Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.current, nil
}
