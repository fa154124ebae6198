package services

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/custodia-labs/investigraph/internal/core/domain"
	"github.com/custodia-labs/investigraph/internal/core/ports/driven"
)

// Ensure SessionManager implements TokenSource
var _ driven.TokenSource = (*SessionManager)(nil)

// SessionManager owns the single process-wide session. It mirrors the
// persisted session in memory so every outbound request can read the
// token without a store round trip.
type SessionManager struct {
	store     driven.SessionStore
	inspector driven.TokenInspector
	logger    *slog.Logger

	mu      sync.RWMutex
	session *domain.Session
}

// NewSessionManager creates a session manager. inspector may be nil, in
// which case the token is stored without reading its claims.
func NewSessionManager(store driven.SessionStore, inspector driven.TokenInspector, logger *slog.Logger) *SessionManager {
	if logger == nil {
		logger = slog.Default()
	}
	return &SessionManager{
		store:     store,
		inspector: inspector,
		logger:    logger,
	}
}

// Init restores a previously persisted session. A missing session is not
// an error.
func (m *SessionManager) Init(ctx context.Context) error {
	session, err := m.store.Load(ctx)
	if errors.Is(err, domain.ErrSessionNotFound) {
		return nil
	}
	if err != nil {
		return err
	}

	m.mu.Lock()
	m.session = session
	m.mu.Unlock()

	m.logger.Debug("session restored", "username", session.Username)
	return nil
}

// Begin stores a freshly issued token, replacing any previous session
func (m *SessionManager) Begin(ctx context.Context, token string) (*domain.Session, error) {
	if token == "" {
		return nil, domain.ErrTokenInvalid
	}

	session := &domain.Session{
		Token:     token,
		CreatedAt: time.Now(),
	}
	if m.inspector != nil {
		// Opaque tokens are valid; claims are informational only
		if claims, err := m.inspector.Inspect(token); err == nil {
			session.Username = claims.Subject
			session.ExpiresAt = claims.ExpiresAt
		} else {
			m.logger.Debug("token claims unreadable", "error", err)
		}
	}

	if err := m.store.Save(ctx, session); err != nil {
		return nil, err
	}

	m.mu.Lock()
	m.session = session
	m.mu.Unlock()

	return session, nil
}

// End clears the session from memory and from the store
func (m *SessionManager) End(ctx context.Context) error {
	m.mu.Lock()
	m.session = nil
	m.mu.Unlock()

	return m.store.Delete(ctx)
}

// Current returns a copy of the session or domain.ErrSessionNotFound
func (m *SessionManager) Current() (*domain.Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.session == nil {
		return nil, domain.ErrSessionNotFound
	}
	copied := *m.session
	return &copied, nil
}

// Token returns the bearer token for outbound requests
func (m *SessionManager) Token(ctx context.Context) (string, error) {
	session, err := m.Current()
	if err != nil {
		return "", err
	}
	return session.Token, nil
}
